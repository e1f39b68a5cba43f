package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
)

type chatReq struct {
	Message          string `json:"message"`
	ConversationID   string `json:"conversation_id"`
	ConversationName string `json:"conversation_name"`
	Subject          string `json:"subject"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.ChatSvc.Chat(c.Request.Context(), middleware.PrincipalFrom(c), chat.ChatRequest{
		Message:          req.Message,
		ConversationID:   req.ConversationID,
		ConversationName: req.ConversationName,
		Subject:          req.Subject,
		IdempotencyKey:   strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, reply)
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, convs)
}

type searchReq struct {
	SearchTerm string `json:"search_term"`
}

func (h *Handler) Search(c *gin.Context) {
	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	turns, err := h.ChatSvc.Search(c.Request.Context(), middleware.PrincipalFrom(c), req.SearchTerm)
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, turns)
}

type conversationReq struct {
	ConversationID string `json:"conversation_id"`
}

func (h *Handler) LoadConversation(c *gin.Context) {
	var req conversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	turns, err := h.ChatSvc.LoadConversation(c.Request.Context(), middleware.PrincipalFrom(c), req.ConversationID)
	if err != nil {
		failChat(c, err)
		return
	}
	common.OK(c, turns)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	var req conversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.ChatSvc.DeleteConversation(c.Request.Context(), middleware.PrincipalFrom(c), req.ConversationID); err != nil {
		failChat(c, err)
		return
	}
	common.Message(c, "conversation deleted")
}

type renameReq struct {
	ConversationID string `json:"conversation_id"`
	NewName        string `json:"new_name"`
}

func (h *Handler) RenameConversation(c *gin.Context) {
	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.ChatSvc.RenameConversation(c.Request.Context(), middleware.PrincipalFrom(c), req.ConversationID, req.NewName); err != nil {
		failChat(c, err)
		return
	}
	common.Message(c, "conversation renamed")
}
