package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/httpapi"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-chat/internal/store/redisstore"
)

func serveCmd(cfg config.Config) *cobra.Command {
	var secureCookies bool

	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg, secureCookies)
		},
	}
	command.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark the login cookie Secure (serve behind TLS)")
	return command
}

func runServe(cfg config.Config, secureCookies bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.close()

	provider, err := newProviderRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return err
	}

	opts := chat.Options{
		SystemPrompt:      cfg.ChatSystemPrompt,
		ContextWindowSize: cfg.ChatContextWindowSize,
		CompletionTimeout: cfg.CompletionTimeout,
		TitleTimeout:      cfg.TitleTimeout,
		IdempotencyTTL:    cfg.IdempotencyTTL,
	}

	var (
		revoker handlers.TokenRevoker
		deny    middleware.Denylist
	)
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rds.Ping(pctx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		revoker, deny = rds, rds
		opts.ReplyCache = rds
	} else {
		log.Warn("REDIS_ADDR empty: logout will not revoke tokens and Idempotency-Key is ignored")
	}

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, failed writes will not be retried", "err", err)
		} else {
			defer pub.Close()
			opts.RetryQueue = pub
		}
	}

	chatSvc := chat.NewService(st.turns, provider, opts)
	authSvc := auth.NewService(st.users, cfg.JWTSecret, cfg.JWTTTL)
	h := handlers.NewHandler(chatSvc, authSvc, revoker, secureCookies)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, authSvc, deny),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "provider", cfg.AIProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
