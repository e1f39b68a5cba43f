package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/suPer8Hu/ai-chat/internal/ai"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Turn{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// recordingProvider answers title prompts with title and everything else
// with reply, recording each call.
type recordingProvider struct {
	mu       sync.Mutex
	calls    [][]ai.Message
	reply    string
	title    string
	chatErr  error
	titleErr error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	// copy to avoid mutations
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	if isTitlePrompt(messages) {
		if p.titleErr != nil {
			return "", p.titleErr
		}
		return p.title, nil
	}
	if p.chatErr != nil {
		return "", p.chatErr
	}
	return p.reply, nil
}

func isTitlePrompt(messages []ai.Message) bool {
	return len(messages) == 1 && len(messages[0].Content) >= len(titlePrompt) && messages[0].Content[:len(titlePrompt)] == titlePrompt
}

// completions returns the non-title calls.
func (p *recordingProvider) completions() [][]ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]ai.Message
	for _, c := range p.calls {
		if !isTitlePrompt(c) {
			out = append(out, c)
		}
	}
	return out
}

type memReplyCache struct {
	mu      sync.Mutex
	replies map[string]*CachedReply
}

func (c *memReplyCache) GetReply(ctx context.Context, key string) (*CachedReply, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.replies[key]
	return r, ok, nil
}

func (c *memReplyCache) SaveReply(ctx context.Context, key string, entry *CachedReply, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replies == nil {
		c.replies = map[string]*CachedReply{}
	}
	c.replies[key] = entry
	return nil
}

type memRetryQueue struct {
	turns   []Turn
	ctxErrs []error
}

func (q *memRetryQueue) EnqueueTurn(ctx context.Context, t *Turn) error {
	q.turns = append(q.turns, *t)
	q.ctxErrs = append(q.ctxErrs, ctx.Err())
	return nil
}

// failingInsertStore wraps a store and fails every insert.
type failingInsertStore struct {
	Store
}

func (s failingInsertStore) InsertTurn(ctx context.Context, t *Turn) error {
	return errors.New("store unavailable")
}

// hangingStore wraps a store whose inserts block until the context ends.
type hangingStore struct {
	Store
}

func (s hangingStore) InsertTurn(ctx context.Context, t *Turn) error {
	<-ctx.Done()
	return ctx.Err()
}

// reversedStore returns turns in the reverse of insertion order.
type reversedStore struct {
	Store
}

func (s reversedStore) ListTurns(ctx context.Context, conversationID string, scope Scope) ([]Turn, error) {
	turns, err := s.Store.ListTurns(ctx, conversationID, scope)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, err
}

func strPtr(s string) *string { return &s }

func seedTurn(t *testing.T, repo *Repo, convID string, owner *string, user, bot string) Turn {
	t.Helper()
	id, err := NewTurnID()
	if err != nil {
		t.Fatalf("turn id: %v", err)
	}
	turn := Turn{TurnID: id, ConversationID: convID, OwnerID: owner, UserText: user, BotText: bot}
	if err := repo.InsertTurn(context.Background(), &turn); err != nil {
		t.Fatalf("seed turn: %v", err)
	}
	return turn
}
