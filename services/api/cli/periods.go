package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/02loveslollipop/shizuku-reports/services/api/cache"
	"github.com/02loveslollipop/shizuku-reports/services/api/config"
	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
)

// NewPeriodsCommand creates the periods command.
func NewPeriodsCommand() *cobra.Command {
	var (
		earliest string
		month    string
	)

	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List selectable months, or the weeks of a month",
		Long: `List months from the earliest reading through now, most recent first.

The earliest date comes from --earliest or, when omitted, from the cached
snapshot. With --month YYYY-MM the weeks of that month are listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			resolver := engine.NewResolver(cfg.Location)

			var periods []engine.Period
			if month != "" {
				p, err := resolver.ParsePeriod(month)
				if err != nil {
					return err
				}
				periods = resolver.ListWeeks(p.Year, p.Month)
			} else {
				if earliest == "" {
					earliest = cachedEarliest(cfg)
				}
				periods = resolver.ListMonths(earliest, time.Now())
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tSTART\tEND")
			for _, p := range periods {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Key(), p.Label(),
					p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&earliest, "earliest", "", "Earliest reading date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&month, "month", "", "List the weeks of this month (YYYY-MM)")

	return cmd
}

// cachedEarliest returns the oldest cached reading as RFC3339, or "" when
// nothing is cached.
func cachedEarliest(cfg config.Config) string {
	if cfg.CacheDir == "" {
		return ""
	}
	c, err := cache.Open(cfg.CacheDir)
	if err != nil {
		return ""
	}
	defer c.Close()

	snap, err := c.Load(cfg.Kind)
	if err != nil {
		if !errors.Is(err, cache.ErrNoSnapshot) {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		return ""
	}
	if t, ok := engine.EarliestReading(snap.Readings); ok {
		return t.Format(time.RFC3339)
	}
	return ""
}
