package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/ai-chat/internal/chat"
)

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "chat_turn_retry.retry", retryQueue("chat_turn_retry"))
	assert.Equal(t, "chat_turn_retry.dlq", deadLetterQueue("chat_turn_retry"))
}

func TestTurnMessage_RoundTripKeepsTurnID(t *testing.T) {
	owner := "u1"
	in := newTurnMessage(&chat.Turn{
		TurnID:         "01HZX",
		ConversationID: "c1",
		OwnerID:        &owner,
		UserText:       "hi",
		BotText:        "hello",
		Subject:        "Greeting",
	})
	in.Attempt = 2
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out TurnMessage
	require.NoError(t, json.Unmarshal(b, &out))
	turn := out.turn()
	assert.Equal(t, "01HZX", turn.TurnID)
	assert.Equal(t, "c1", turn.ConversationID)
	require.NotNil(t, turn.OwnerID)
	assert.Equal(t, "u1", *turn.OwnerID)
	assert.Equal(t, "Greeting", turn.Subject)
	assert.Equal(t, 2, out.Attempt)
}

func TestDecide(t *testing.T) {
	boom := errors.New("db down")
	assert.Equal(t, outcomeAck, decide(nil, 0, 5))
	assert.Equal(t, outcomeRetry, decide(boom, 0, 5))
	assert.Equal(t, outcomeRetry, decide(boom, 3, 5))
	assert.Equal(t, outcomeDeadLetter, decide(boom, 4, 5))
	assert.Equal(t, outcomeDeadLetter, decide(&chat.Error{Code: chat.ErrorInvalidRequest}, 0, 5))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 10*time.Second, backoff(10*time.Second, 0))
	assert.Equal(t, 30*time.Second, backoff(10*time.Second, 2))
}
