package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/store/rabbitmq"
)

func workerCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Retry turn writes that failed during /chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cfg)
		},
	}
}

func runWorker(cfg config.Config) error {
	if cfg.RabbitURL == "" {
		return errors.New("RABBIT_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// the worker only re-inserts turns; it never calls a provider
	svc := chat.NewService(st.turns, nil, chat.Options{})

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitURL,
		Queue:       cfg.RabbitQueue,
		Concurrency: cfg.WorkerConcurrency,
		MaxAttempts: cfg.RabbitMaxAttempts,
		RetryDelay:  cfg.RabbitRetryDelay,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx, svc.RetryPersist)
}
