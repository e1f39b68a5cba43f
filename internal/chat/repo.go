package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Repo is the SQL conversation store.
type Repo struct {
	db *gorm.DB
}

var _ Store = (*Repo)(nil)

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func scoped(q *gorm.DB, scope Scope) *gorm.DB {
	if scope.Scoped {
		return q.Where("owner_id = ?", scope.OwnerID)
	}
	return q
}

// InsertTurn creates t. If a turn with the same TurnID already exists it
// returns ErrDuplicateTurn, so a retried insert never writes twice.
func (r *Repo) InsertTurn(ctx context.Context, t *Turn) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err == nil {
		return nil
	}

	var existing Turn
	getErr := r.db.WithContext(ctx).
		Where("turn_id = ?", t.TurnID).
		First(&existing).Error
	if getErr == nil {
		t.ID = existing.ID
		return ErrDuplicateTurn
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return err
	}
	return fmt.Errorf("%w (lookup: %v)", err, getErr)
}

// ListTurns returns the turns of one conversation in ASC id order.
func (r *Repo) ListTurns(ctx context.Context, conversationID string, scope Scope) ([]Turn, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC")

	var turns []Turn
	if err := scoped(q, scope).Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

// ListConversations returns one summary per conversation owned by ownerID,
// built from each conversation's earliest turn and ordered by it.
func (r *Repo) ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error) {
	firstIDs := r.db.Model(&Turn{}).
		Select("MIN(id)").
		Where("owner_id = ?", ownerID).
		Group("conversation_id")

	var firsts []Turn
	if err := r.db.WithContext(ctx).
		Where("id IN (?)", firstIDs).
		Order("id ASC").
		Find(&firsts).Error; err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(firsts))
	for _, t := range firsts {
		out = append(out, ConversationSummary{
			ConversationID:   t.ConversationID,
			ConversationName: t.ConversationName,
			Subject:          t.Subject,
			DisplayName:      DisplayName(t.ConversationID, t.ConversationName, t.Subject),
			FirstTurnID:      t.ID,
		})
	}
	return out, nil
}

// likeEscaper escapes LIKE wildcards using '!' so the same pattern works on
// MySQL and SQLite.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SearchTurns does a case-insensitive substring match on user text, bot
// text and subject. Both sides are folded in Go, so non-ASCII terms match
// on SQLite too.
func (r *Repo) SearchTurns(ctx context.Context, term string, scope Scope, limit int) ([]Turn, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	q := r.db.WithContext(ctx).
		Where("search_text LIKE ? ESCAPE '!'", pattern).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var turns []Turn
	if err := scoped(q, scope).Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *Repo) conversationQuery(ctx context.Context, conversationID, ownerID string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&Turn{}).
		Where("conversation_id = ? AND owner_id = ?", conversationID, ownerID)
}

// RenameConversation sets conversation_name on every matching turn and
// returns how many turns matched.
func (r *Repo) RenameConversation(ctx context.Context, conversationID string, ownerID string, name string) (int64, error) {
	// MySQL reports changed rows, not matched rows; count first so renaming
	// to the current name is not mistaken for a missing conversation.
	var matched int64
	if err := r.conversationQuery(ctx, conversationID, ownerID).Count(&matched).Error; err != nil {
		return 0, err
	}
	if matched == 0 {
		return 0, nil
	}
	if err := r.conversationQuery(ctx, conversationID, ownerID).
		Update("conversation_name", name).Error; err != nil {
		return 0, err
	}
	return matched, nil
}

// DeleteConversation removes every matching turn.
func (r *Repo) DeleteConversation(ctx context.Context, conversationID string, ownerID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("conversation_id = ? AND owner_id = ?", conversationID, ownerID).
		Delete(&Turn{})
	return res.RowsAffected, res.Error
}
