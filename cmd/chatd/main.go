// Command chatd runs the chat backend: the HTTP API, the persistence retry
// worker and schema migrations.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/ai-chat/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	rootCmd := &cobra.Command{
		Use:   "chatd",
		Short: "Conversation-history chat backend",
		Long: `chatd proxies chat messages to an LLM provider, rebuilds each
conversation's context from stored turns and persists every exchange.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		serveCmd(cfg),
		workerCmd(cfg),
		migrateCmd(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) {
	if lvl, err := log.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(log.JSONFormatter)
	}
	log.SetReportTimestamp(true)
}
