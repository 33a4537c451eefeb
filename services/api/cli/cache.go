package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/02loveslollipop/shizuku-reports/services/api/cache"
	"github.com/02loveslollipop/shizuku-reports/services/api/config"
)

// NewCacheCommand creates the cache management command.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the snapshot cache",
		Long: `The snapshot cache keeps the last committed fetch so the service can
warm-start and the report command can run with --offline.`,
	}

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func openCache() (*cache.Cache, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("CACHE_DIR is empty")
	}
	return cache.Open(cfg.CacheDir)
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.GetStats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache:     %s\n", c.Path())
			fmt.Fprintf(out, "Snapshots: %d\n", stats.Snapshots)
			fmt.Fprintf(out, "Entities:  %d\n", stats.Entities)
			fmt.Fprintf(out, "Readings:  %d\n", stats.Readings)
			if !stats.Newest.IsZero() {
				fmt.Fprintf(out, "Newest:    %s\n", stats.Newest.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}
}
