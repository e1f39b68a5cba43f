package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes data as the whole JSON body.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Message writes a {"message": msg} body.
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Fail writes an {"error", "code"} body and aborts the chain.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"error": msg,
		"code":  code,
	})
}
