package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
)

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	u, err := h.AuthSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			common.Fail(c, http.StatusBadRequest, 10002, "username and password (min 6 chars) required")
		case errors.Is(err, auth.ErrUserExists):
			common.Fail(c, http.StatusConflict, 10003, "username already taken")
		default:
			log.Error("register failed", "username", req.Username, "err", err)
			common.Fail(c, http.StatusInternalServerError, 20001, "failed to create user")
		}
		return
	}

	log.Info("user registered", "user_id", u.ID, "username", u.Username)
	common.Message(c, "registration successful")
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	token, claims, err := h.AuthSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			common.Fail(c, http.StatusBadRequest, 10002, "username and password required")
		case errors.Is(err, auth.ErrInvalidCredentials):
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid username or password")
		default:
			log.Error("login failed", "username", req.Username, "err", err)
			common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		}
		return
	}

	maxAge := int(time.Until(claims.ExpiresAt.Time).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", h.SecureCookies, true)
	common.OK(c, gin.H{
		"message": "login successful",
		"token":   token,
	})
}

// Logout revokes the current token and clears the cookie.
func (h *Handler) Logout(c *gin.Context) {
	if claims, ok := middleware.ClaimsFrom(c); ok && h.Revoker != nil && claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if err := h.Revoker.RevokeToken(c.Request.Context(), claims.ID, ttl); err != nil {
			log.Error("revoke token failed", "user_id", claims.UserID, "err", err)
			common.Fail(c, http.StatusInternalServerError, 20002, "logout failed")
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.SecureCookies, true)
	c.Redirect(http.StatusFound, "/")
}
