package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cfg := loadEnvironmentConfig()

	cmd := &cobra.Command{
		Use:           "foodfinder",
		Short:         "Food Finder SMS bot",
		Long:          "Food Finder answers text messages with the nearest free meal and food-hamper locations.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeLogger(cmd.ErrOrStderr(), cfg.LogLevel)
		},
	}
	bindFlags(cmd, &cfg)

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&cfg))
	cmd.AddCommand(newStatsCmd(&cfg))
	cmd.AddCommand(newTestConvoCmd(&cfg))
	cmd.AddCommand(newValidateDataCmd(&cfg))
	cmd.AddCommand(newGeocodePlacesCmd(&cfg))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "foodfinder %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
