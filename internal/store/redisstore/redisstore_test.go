package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/ai-chat/internal/chat"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "auth:revoked:abc", revokedKey("abc"))
	assert.Equal(t, "chat:reply:u:1:k", replyKey("u:1:k"))
}

// Runs against a live server only when REDIS_TEST_ADDR is set.
func TestStore_Live(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	s := New(addr, "", 0)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.RevokeToken(ctx, "jti-test", time.Minute))
	revoked, err := s.IsTokenRevoked(ctx, "jti-test")
	require.NoError(t, err)
	assert.True(t, revoked)

	subject := "Greeting"
	want := &chat.CachedReply{
		Fingerprint: "abc123",
		Reply:       chat.ChatReply{Reply: "hi", ConversationID: "c1", Subject: &subject},
	}
	require.NoError(t, s.SaveReply(ctx, "test:key", want, time.Minute))
	got, ok, err := s.GetReply(ctx, "test:key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = s.GetReply(ctx, "test:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
