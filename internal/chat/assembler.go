package chat

import (
	"context"
	"sort"

	"github.com/suPer8Hu/ai-chat/internal/ai"
)

const (
	defaultWindowTurns = 20
	maxWindowTurns     = 100
)

// Assembler rebuilds the prompt context of a conversation from stored turns.
type Assembler struct {
	store        Store
	systemPrompt string
	windowTurns  int
}

func NewAssembler(store Store, systemPrompt string, windowTurns int) *Assembler {
	if windowTurns <= 0 || windowTurns > maxWindowTurns {
		windowTurns = defaultWindowTurns
	}
	return &Assembler{store: store, systemPrompt: systemPrompt, windowTurns: windowTurns}
}

// Assemble returns the system preamble, the most recent turns of the
// conversation in insertion order, and newMessage last. The turns it used
// are returned as well. An empty conversationID assembles a fresh context.
func (a *Assembler) Assemble(ctx context.Context, conversationID string, p Principal, newMessage string) ([]ai.Message, []Turn, error) {
	var history []Turn
	if conversationID != "" {
		turns, err := a.store.ListTurns(ctx, conversationID, p.ReadScope())
		if err != nil {
			return nil, nil, err
		}
		history = turns
	}

	// order must not depend on what the backend returned
	sort.SliceStable(history, func(i, j int) bool { return history[i].ID < history[j].ID })
	if len(history) > a.windowTurns {
		history = history[len(history)-a.windowTurns:]
	}

	msgs := make([]ai.Message, 0, 2*len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: a.systemPrompt})
	for _, t := range history {
		if t.UserText != "" {
			msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: t.UserText})
		}
		if t.BotText != "" {
			msgs = append(msgs, ai.Message{Role: ai.RoleAssistant, Content: t.BotText})
		}
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: newMessage})
	return msgs, history, nil
}
