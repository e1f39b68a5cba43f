package chat

import (
	"context"
	"errors"
)

// ErrDuplicateTurn is returned by InsertTurn when a turn with the same
// TurnID already exists.
var ErrDuplicateTurn = errors.New("chat: duplicate turn")

// Store is the conversation store. Turns come back in insertion order.
type Store interface {
	InsertTurn(ctx context.Context, t *Turn) error
	ListTurns(ctx context.Context, conversationID string, scope Scope) ([]Turn, error)
	ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error)
	SearchTurns(ctx context.Context, term string, scope Scope, limit int) ([]Turn, error)
	RenameConversation(ctx context.Context, conversationID string, ownerID string, name string) (int64, error)
	DeleteConversation(ctx context.Context, conversationID string, ownerID string) (int64, error)
}
