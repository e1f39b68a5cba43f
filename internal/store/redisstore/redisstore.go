package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/ai-chat/internal/chat"
)

const (
	revokedPrefix = "auth:revoked:"
	replyPrefix   = "chat:reply:"
)

// Store keeps the short-lived state that must be shared between server
// instances: revoked tokens and idempotent chat replies.
type Store struct {
	rdb *redis.Client
}

var _ chat.ReplyCache = (*Store)(nil)

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func revokedKey(jti string) string { return revokedPrefix + jti }

func replyKey(key string) string { return replyPrefix + key }

// RevokeToken denylists a token id until the token would have expired.
func (s *Store) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetReply(ctx context.Context, key string) (*chat.CachedReply, bool, error) {
	data, err := s.rdb.Get(ctx, replyKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var entry chat.CachedReply
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

func (s *Store) SaveReply(ctx context.Context, key string, entry *chat.CachedReply, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, replyKey(key), data, ttl).Err()
}
