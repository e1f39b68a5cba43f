package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/common"
)

// TokenRevoker denylists a token id for the rest of its lifetime.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Handler struct {
	ChatSvc *chat.Service
	AuthSvc *auth.Service
	// optional; without it logout only clears the cookie
	Revoker       TokenRevoker
	SecureCookies bool
}

func NewHandler(chatSvc *chat.Service, authSvc *auth.Service, revoker TokenRevoker, secureCookies bool) *Handler {
	return &Handler{
		ChatSvc:       chatSvc,
		AuthSvc:       authSvc,
		Revoker:       revoker,
		SecureCookies: secureCookies,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.Message(c, "pong")
}
