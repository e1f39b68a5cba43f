package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
)

// NewRouter wires the routes. deny may be nil when no denylist is
// configured.
func NewRouter(h *handlers.Handler, tokens middleware.TokenParser, deny middleware.Denylist) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// auth
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	// anonymous callers allowed
	open := r.Group("/")
	open.Use(middleware.OptionalAuth(tokens, deny))
	open.POST("/chat", h.Chat)
	open.POST("/search", h.Search)

	// JWT required
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(tokens, deny))
	authGroup.GET("/logout", h.Logout)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.POST("/load_conversation", h.LoadConversation)
	authGroup.POST("/delete_conversation", h.DeleteConversation)
	authGroup.POST("/rename_conversation", h.RenameConversation)
	return r
}
