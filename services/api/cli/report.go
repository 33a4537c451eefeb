package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/02loveslollipop/shizuku-reports/services/api/config"
	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

// ReportOptions holds command-line options for the report command.
type ReportOptions struct {
	Period  string
	Format  string
	Output  string
	Export  string
	Offline bool
}

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report for a month or week",
		Long: `Run one fetch cycle and render the report for the selected period.

Without --period the newest month with readings is used. With --offline the
report is built from the snapshot cache and no source is contacted.

Exit codes:
  0 - Report generated (ready or no_data)
  1 - Data could not be fetched (error status)
  2 - Configuration or runtime error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Period, "period", "p", "", "Period key (2024-03 or 2024-03-w2)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "Output format (json|yaml|text|html)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&opts.Export, "export", "", "Also export to a target (file|webhook|archive)")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "Use the cached snapshot only")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter, err := report.NewFormatter(opts.Format)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	a, err := newApp(ctx, cfg, opts.Offline)
	if err != nil {
		return err
	}
	defer a.Close()

	var data report.Data
	if opts.Offline {
		if data, err = a.offlineData(); err != nil {
			return fmt.Errorf("loading cached snapshot: %w", err)
		}
	} else {
		if err := a.poller.Warm(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if err := a.poller.Cycle(ctx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: fetch failed: %v\n", err)
		}
		data = a.poller.Snapshot().ReportData()
	}

	period, err := a.generator.Resolver().Select(opts.Period, data.Readings, time.Now())
	if err != nil {
		return err
	}
	doc := a.generator.Generate(data, period, a.settings.Current())

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := formatter.Format(ctx, doc, w); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if opts.Export != "" {
		res, err := a.exporters.Export(ctx, opts.Export, doc)
		if err != nil {
			return fmt.Errorf("export %s: %w", opts.Export, err)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Exported to %s: %s\n", res.Target, res.Location)
	}

	if doc.Status == report.StatusError {
		exitCode = 1
	}
	return nil
}
