// Package cli provides the command-line interface for the report service.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitCode is set by commands that succeed but want a non-zero status.
var exitCode = 0

// Execute runs the root command and returns the exit code.
func Execute() int {
	exitCode = 0
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors keeps cobra from printing it twice
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return exitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shizuku-reports",
		Short: "Telemetry merge and aggregate reporting",
		Long: `shizuku-reports merges monitored-entity metadata with periodic readings and
turns a selected month or week into a report document.

Configuration comes from the environment (optionally a .env file):
  ENTITIES_URL / READINGS_URL   upstream JSON feeds
  DATABASE_URL                  Postgres source, or mirror when feeds are set
  CACHE_DIR                     last-good snapshot for warm starts and --offline
  SETTINGS_PATH                 YAML settings file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewReportCommand())
	rootCmd.AddCommand(NewPeriodsCommand())
	rootCmd.AddCommand(NewSettingsCommand())
	rootCmd.AddCommand(NewCacheCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
