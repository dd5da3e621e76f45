package main

import (
	"encoding/json"
	"fmt"

	"github.com/foodfinderyyc/smsbot/internal/store"
	"github.com/spf13/cobra"
)

func newStatsCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the conversation statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(cfg)
			if err != nil {
				return err
			}
			log, err := store.Open(cfg.DSN())
			if err != nil {
				return fmt.Errorf("failed to open event log: %w", err)
			}
			defer log.Close()

			stats, err := store.ComputeStats(cmd.Context(), log, def.StatsQuery(cfg.TestUser))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
