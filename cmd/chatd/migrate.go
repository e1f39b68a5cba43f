package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/ai-chat/internal/config"
)

func migrateCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and indexes for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStores(context.Background(), cfg)
			if err != nil {
				return err
			}
			st.close()
			log.Info("migration complete", "store", cfg.StoreBackend)
			return nil
		},
	}
}
