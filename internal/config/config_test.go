package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sql", cfg.StoreBackend)
	assert.Equal(t, 20, cfg.ChatContextWindowSize)
	assert.Equal(t, 60*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "ollama", cfg.AIProvider)
	assert.Equal(t, DefaultSystemPrompt, cfg.ChatSystemPrompt)
	assert.Empty(t, cfg.RabbitURL)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("CHAT_CONTEXT_WINDOW_SIZE", "7")
	t.Setenv("CHAT_TITLE_TIMEOUT", "3s")
	t.Setenv("WORKER_CONCURRENCY", "500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, 7, cfg.ChatContextWindowSize)
	assert.Equal(t, 3*time.Second, cfg.TitleTimeout)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("AI_PROVIDER: openrouter\nOPENROUTER_MODEL: some/model\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openrouter", cfg.AIProvider)
	assert.Equal(t, "some/model", cfg.OpenRouterModel)
}
