package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/02loveslollipop/shizuku-reports/services/api/config"
	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
	"github.com/02loveslollipop/shizuku-reports/services/api/source"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show, change or check report settings",
	}

	cmd.AddCommand(newSettingsShowCommand())
	cmd.AddCommand(newSettingsSetCommand())
	cmd.AddCommand(newSettingsCheckCommand())

	return cmd
}

func openSettings(cmd *cobra.Command) (*settings.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return settings.Open(commandContext(cmd), cfg.SettingsPath)
}

func newSettingsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openSettings(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(st.Current()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newSettingsSetCommand() *cobra.Command {
	var (
		interval  int
		threshold float64
		alert     string
		unit      string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Long: `Change settings and write them to SETTINGS_PATH.

Only the flags given are changed. The update is rejected as a whole when any
value is invalid.`,
		Example: `  shizuku-reports settings set --interval 10
  shizuku-reports settings set --alert "VERY HIGH" --unit fahrenheit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openSettings(cmd)
			if err != nil {
				return err
			}

			next := st.Current()
			flags := cmd.Flags()
			if flags.Changed("interval") {
				next.RefreshIntervalMinutes = interval
			}
			if flags.Changed("threshold") {
				next.HeatStressThresholdCelsius = threshold
			}
			if flags.Changed("alert") {
				next.MinimumAlertSeverity = alert
			}
			if flags.Changed("unit") {
				next.TemperatureUnit = settings.TemperatureUnit(unit)
			}

			saved, err := st.Update(commandContext(cmd), next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved settings to %s (refresh every %d min, alert at %s, %s)\n",
				displayPath(st.Path()), saved.RefreshIntervalMinutes, saved.MinimumAlertSeverity, saved.TemperatureUnit)
			return nil
		},
	}

	cmd.Flags().IntVar(&interval, "interval", settings.DefaultRefreshIntervalMinutes, "Refresh interval in minutes")
	cmd.Flags().Float64Var(&threshold, "threshold", settings.DefaultHeatStressThresholdCelsius, "Heat stress threshold in Celsius")
	cmd.Flags().StringVar(&alert, "alert", settings.DefaultMinimumAlertSeverity, "Minimum alert severity (HIGH|VERY HIGH)")
	cmd.Flags().StringVar(&unit, "unit", string(settings.DefaultTemperatureUnit), "Temperature unit (celsius|fahrenheit)")

	return cmd
}

func newSettingsCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the configured upstream feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.SourceMode() != config.SourceHTTP {
				return fmt.Errorf("%w: settings check needs ENTITIES_URL and READINGS_URL", config.ErrNoSource)
			}

			urls := map[string]string{"entities": cfg.EntitiesURL, "readings": cfg.ReadingsURL}
			probes := source.HealthCheck(commandContext(cmd), nil, urls)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FEED\tSTATUS\tITEMS\tLATENCY\tDETAIL")
			failed := 0
			for _, p := range probes {
				status := "ok"
				detail := p.Shape
				if !p.OK {
					status = "FAIL"
					detail = p.Error
					failed++
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%dms\t%s\n", p.Name, status, p.Items, p.LatencyMS, detail)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				exitCode = 1
			}
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func displayPath(p string) string {
	if p == "" {
		return "memory"
	}
	return p
}
