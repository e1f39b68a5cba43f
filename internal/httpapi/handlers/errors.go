package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/common"
)

// failChat maps a service error onto a status and a client-safe message.
// Store and upstream details stay in the logs.
func failChat(c *gin.Context, err error) {
	var reason string
	var ce *chat.Error
	if errors.As(err, &ce) {
		reason = ce.Reason
	}

	switch chat.CodeOf(err) {
	case chat.ErrorInvalidRequest:
		common.Fail(c, http.StatusBadRequest, 40000, humanize(reason, "invalid request"))
	case chat.ErrorAuthRequired:
		common.Fail(c, http.StatusUnauthorized, 40100, "authentication required")
	case chat.ErrorNotFound:
		common.Fail(c, http.StatusNotFound, 40400, humanize(reason, "not found"))
	case chat.ErrorUpstream:
		common.Fail(c, http.StatusBadGateway, 50200, "assistant unavailable")
	case chat.ErrorUpstreamTimeout:
		common.Fail(c, http.StatusGatewayTimeout, 50400, "assistant timed out")
	default:
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
	}
}

func humanize(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return strings.ReplaceAll(reason, "_", " ")
}
