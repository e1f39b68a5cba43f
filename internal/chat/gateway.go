package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/ai-chat/internal/ai"
)

const (
	FallbackSubject = "New Chat"

	defaultCompletionTimeout = 60 * time.Second
	defaultTitleTimeout      = 15 * time.Second
	maxTitleRunes            = 80
)

const titlePrompt = "Write a short title of 3 to 5 words for a conversation that starts with the message below. " +
	"Reply with the title only, without quotes.\n\n"

// Gateway wraps a provider with bounded calls and error classification.
type Gateway struct {
	provider          ai.Provider
	completionTimeout time.Duration
	titleTimeout      time.Duration
}

func NewGateway(provider ai.Provider, completionTimeout, titleTimeout time.Duration) *Gateway {
	if completionTimeout <= 0 {
		completionTimeout = defaultCompletionTimeout
	}
	if titleTimeout <= 0 {
		titleTimeout = defaultTitleTimeout
	}
	return &Gateway{provider: provider, completionTimeout: completionTimeout, titleTimeout: titleTimeout}
}

// Complete sends messages upstream once. Failures come back as *Error with
// ErrorUpstream, or ErrorUpstreamTimeout when the deadline expired.
func (g *Gateway) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.completionTimeout)
	defer cancel()

	reply, err := g.provider.Chat(cctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return "", newError(ErrorUpstreamTimeout, "completion_timeout", err)
		}
		return "", newError(ErrorUpstream, "completion_failed", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", newError(ErrorUpstream, "completion_empty", nil)
	}
	return reply, nil
}

// DeriveTitle asks for a short title for a conversation opened by seed.
// Callers are expected to fall back to FallbackSubject on error.
func (g *Gateway) DeriveTitle(ctx context.Context, seed string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.titleTimeout)
	defer cancel()

	raw, err := g.provider.Chat(cctx, []ai.Message{{Role: ai.RoleUser, Content: titlePrompt + seed}})
	if err != nil {
		return "", errors.Join(ErrTitleGeneration, err)
	}
	title := cleanTitle(raw)
	if title == "" {
		return "", ErrTitleGeneration
	}
	return title, nil
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.TrimPrefix(title, "Title:")
	title = strings.Trim(title, " \t\"'`*#.")
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	return title
}
