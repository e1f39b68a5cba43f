package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RetryQueue takes turns whose insert failed after a reply was produced and
// re-delivers them to RetryPersist, typically from another process.
type RetryQueue interface {
	EnqueueTurn(ctx context.Context, t *Turn) error
}

// ReplyCache remembers replies by idempotency key so a retried /chat call
// neither hits the provider nor writes a second turn.
type ReplyCache interface {
	GetReply(ctx context.Context, key string) (*CachedReply, bool, error)
	SaveReply(ctx context.Context, key string, entry *CachedReply, ttl time.Duration) error
}

// CachedReply is a reply plus the fingerprint of the request that produced
// it. A key replayed with a different request is rejected, not answered
// from the cache.
type CachedReply struct {
	Fingerprint string    `json:"fingerprint"`
	Reply       ChatReply `json:"reply"`
}

// requestFingerprint hashes the fields that decide what a /chat call does.
func requestFingerprint(message string, req ChatRequest) string {
	h := sha256.New()
	for _, f := range []string{
		message,
		strings.TrimSpace(req.ConversationID),
		strings.TrimSpace(req.ConversationName),
		strings.TrimSpace(req.Subject),
	} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func idempotencyKey(p Principal, key string) string {
	if p.Authenticated() {
		return "u:" + p.UserID + ":" + key
	}
	return "anon:" + key
}
