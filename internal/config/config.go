package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr  string
	GinMode   string
	LogLevel  string
	LogFormat string

	// conversation store
	StoreBackend  string
	DBDSN         string
	MongoURI      string
	MongoDatabase string

	JWTSecret string
	JWTTTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChatContextWindowSize int
	ChatSystemPrompt      string
	CompletionTimeout     time.Duration
	TitleTimeout          time.Duration
	IdempotencyTTL        time.Duration

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string

	// rabbitMQ; an empty URL disables the persistence retry queue
	RabbitURL         string
	RabbitQueue       string
	RabbitMaxAttempts int
	RabbitRetryDelay  time.Duration
	WorkerConcurrency int
}

const DefaultSystemPrompt = "You are a helpful, friendly assistant. " +
	"Answer in the language the user writes in. " +
	"Format replies with Markdown, use metric units and ISO 8601 dates, " +
	"and keep answers concise unless the user asks for detail."

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("STORE_BACKEND", "sql")
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/ai_chat?charset=utf8mb4&parseTime=true&loc=Local
	v.SetDefault("DB_DSN", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		"app", "apppass", "127.0.0.1", "3306", "ai_chat",
	))
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "ai_chat")

	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("JWT_TTL", 24*time.Hour)

	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CHAT_CONTEXT_WINDOW_SIZE", 20)
	v.SetDefault("CHAT_SYSTEM_PROMPT", DefaultSystemPrompt)
	v.SetDefault("CHAT_COMPLETION_TIMEOUT", 60*time.Second)
	v.SetDefault("CHAT_TITLE_TIMEOUT", 15*time.Second)
	v.SetDefault("CHAT_IDEMPOTENCY_TTL", 24*time.Hour)

	v.SetDefault("AI_PROVIDER", "ollama")
	v.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3:latest")
	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("OPENROUTER_MODEL", "openrouter/auto")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_MODEL", "gpt-3.5-turbo")

	v.SetDefault("RABBIT_URL", "")
	v.SetDefault("RABBIT_QUEUE", "chat_turn_retry")
	v.SetDefault("RABBIT_MAX_ATTEMPTS", 5)
	v.SetDefault("RABBIT_RETRY_DELAY", 10*time.Second)
	v.SetDefault("WORKER_CONCURRENCY", 2)
}

// Load reads configuration from the environment, optionally layered over the
// yaml file named by CONFIG_FILE.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPAddr:  v.GetString("HTTP_ADDR"),
		GinMode:   v.GetString("GIN_MODE"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),

		StoreBackend:  strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
		DBDSN:         v.GetString("DB_DSN"),
		MongoURI:      v.GetString("MONGO_URI"),
		MongoDatabase: v.GetString("MONGO_DATABASE"),

		JWTSecret: v.GetString("JWT_SECRET"),
		JWTTTL:    v.GetDuration("JWT_TTL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		ChatContextWindowSize: v.GetInt("CHAT_CONTEXT_WINDOW_SIZE"),
		ChatSystemPrompt:      v.GetString("CHAT_SYSTEM_PROMPT"),
		CompletionTimeout:     v.GetDuration("CHAT_COMPLETION_TIMEOUT"),
		TitleTimeout:          v.GetDuration("CHAT_TITLE_TIMEOUT"),
		IdempotencyTTL:        v.GetDuration("CHAT_IDEMPOTENCY_TTL"),

		AIProvider:        strings.ToLower(strings.TrimSpace(v.GetString("AI_PROVIDER"))),
		OllamaBaseURL:     v.GetString("OLLAMA_BASE_URL"),
		OllamaModel:       v.GetString("OLLAMA_MODEL"),
		OpenRouterBaseURL: v.GetString("OPENROUTER_BASE_URL"),
		OpenRouterAPIKey:  v.GetString("OPENROUTER_API_KEY"),
		OpenRouterModel:   v.GetString("OPENROUTER_MODEL"),
		OpenRouterSiteURL: v.GetString("OPENROUTER_SITE_URL"),
		OpenRouterAppName: v.GetString("OPENROUTER_APP_NAME"),
		OpenAIBaseURL:     v.GetString("OPENAI_BASE_URL"),
		OpenAIAPIKey:      v.GetString("OPENAI_API_KEY"),
		OpenAIModel:       v.GetString("OPENAI_MODEL"),

		RabbitURL:         v.GetString("RABBIT_URL"),
		RabbitQueue:       v.GetString("RABBIT_QUEUE"),
		RabbitMaxAttempts: v.GetInt("RABBIT_MAX_ATTEMPTS"),
		RabbitRetryDelay:  v.GetDuration("RABBIT_RETRY_DELAY"),
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
	}

	switch cfg.StoreBackend {
	case "sql", "mongo":
	default:
		return Config{}, fmt.Errorf("unsupported STORE_BACKEND=%q", cfg.StoreBackend)
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 2
	}
	if cfg.WorkerConcurrency > 50 {
		cfg.WorkerConcurrency = 50
	}
	return cfg, nil
}
