package chat

import (
	"github.com/google/uuid"
	"github.com/suPer8Hu/ai-chat/internal/common"
)

// NewConversationID mints a random (v4) conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// NewTurnID mints the idempotency key of a turn.
func NewTurnID() (string, error) {
	return common.NewULID()
}
