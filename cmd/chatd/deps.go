package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/db"
	"github.com/suPer8Hu/ai-chat/internal/store/mongostore"
)

type stores struct {
	turns chat.Store
	users auth.UserStore
	close func()
}

// openStores connects the configured backend and brings its schema up to
// date.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case "mongo":
		ms, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			_ = ms.Close(ctx)
			return nil, err
		}
		return &stores{
			turns: ms,
			users: ms,
			close: func() { _ = ms.Close(context.Background()) },
		}, nil

	default:
		gdb, err := db.Connect(cfg.DBDSN, strings.EqualFold(cfg.LogLevel, "debug"))
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(gdb); err != nil {
			_ = db.Close(gdb)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &stores{
			turns: chat.NewRepo(gdb),
			users: auth.NewUserRepo(gdb),
			close: func() { _ = db.Close(gdb) },
		}, nil
	}
}

func newProviderRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m), nil
	})

	log.Debug("ai providers registered", "names", reg.Names())
	return reg
}
