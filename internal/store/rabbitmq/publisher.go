package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/ai-chat/internal/chat"
)

// TurnMessage carries a turn whose insert failed. TurnID and OwnerID travel
// separately because they are not part of the turn's public JSON.
type TurnMessage struct {
	TurnID  string    `json:"turn_id"`
	OwnerID *string   `json:"owner_id,omitempty"`
	Turn    chat.Turn `json:"turn"`
	Attempt int       `json:"attempt"`
}

func newTurnMessage(t *chat.Turn) TurnMessage {
	return TurnMessage{TurnID: t.TurnID, OwnerID: t.OwnerID, Turn: *t}
}

func (m *TurnMessage) turn() *chat.Turn {
	t := m.Turn
	t.TurnID = m.TurnID
	t.OwnerID = m.OwnerID
	return &t
}

func retryQueue(queue string) string { return queue + ".retry" }

func deadLetterQueue(queue string) string { return queue + ".dlq" }

// declareTopology declares main, retry and dead-letter queues. Rejected
// messages on the main queue go to the DLQ; messages on the retry queue
// expire back into the main queue.
func declareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := retryQueue(queue)
	dlqQ := deadLetterQueue(queue)

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ chat.RetryQueue = (*Publisher)(nil)

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// EnqueueTurn hands a turn to the retry worker.
func (p *Publisher) EnqueueTurn(ctx context.Context, t *chat.Turn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return publish(ctx, p.ch, p.queue, newTurnMessage(t), 0)
}

// publish sends msg to queue. A positive delay sets a per-message TTL,
// which on the retry queue becomes the backoff.
func publish(ctx context.Context, ch *amqp.Channel, queue string, msg TurnMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if delay > 0 {
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	return ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		pub,
	)
}
