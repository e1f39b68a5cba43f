package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/ai-chat/internal/chat"
)

// TurnHandler persists one redelivered turn.
type TurnHandler func(ctx context.Context, t *chat.Turn) error

type ConsumerConfig struct {
	URL         string
	Queue       string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
}

type Consumer struct {
	cfg  ConsumerConfig
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, cfg.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(cfg.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{cfg: cfg, conn: conn, ch: ch}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// decide maps a handler result to what happens to the delivery.
func decide(handleErr error, attempt, maxAttempts int) outcome {
	if handleErr == nil {
		return outcomeAck
	}
	if chat.CodeOf(handleErr) == chat.ErrorInvalidRequest {
		return outcomeDeadLetter
	}
	if attempt+1 >= maxAttempts {
		return outcomeDeadLetter
	}
	return outcomeRetry
}

// backoff grows linearly with the attempt number.
func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt+1)
}

// Run consumes until ctx is cancelled, handing turns to a bounded pool of
// workers.
func (c *Consumer) Run(ctx context.Context, handle TurnHandler) error {
	msgs, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Info("worker started", "queue", c.cfg.Queue, "concurrency", c.cfg.Concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, c.cfg.Concurrency*2)
	var pubMu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(c.cfg.Concurrency)
	for i := 0; i < c.cfg.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handleDelivery(ctx, workerID, d, handle, &pubMu)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return amqp.ErrClosed
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, handle TurnHandler, pubMu *sync.Mutex) {
	var m TurnMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.TurnID == "" {
		log.Error("bad message", "worker", workerID, "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := handle(ctx, m.turn())
	switch decide(err, m.Attempt, c.cfg.MaxAttempts) {
	case outcomeAck:
		if err := d.Ack(false); err != nil {
			log.Error("ack failed", "worker", workerID, "turn_id", m.TurnID, "err", err)
		}

	case outcomeRetry:
		delay := backoff(c.cfg.RetryDelay, m.Attempt)
		log.Warn("turn retry scheduled", "worker", workerID, "turn_id", m.TurnID,
			"attempt", m.Attempt+1, "delay", delay, "cost", time.Since(start), "err", err)
		m.Attempt++
		// amqp channels are not safe for concurrent publishing
		pubMu.Lock()
		perr := publish(ctx, c.ch, retryQueue(c.cfg.Queue), m, delay)
		pubMu.Unlock()
		if perr != nil {
			log.Error("retry publish failed", "worker", workerID, "turn_id", m.TurnID, "err", perr)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)

	case outcomeDeadLetter:
		log.Error("turn dead-lettered", "worker", workerID, "turn_id", m.TurnID,
			"attempt", m.Attempt+1, "cost", time.Since(start), "err", err)
		_ = d.Nack(false, false)
	}
}
