package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/shizuku-reports/services/api/config"
	httpserver "github.com/02loveslollipop/shizuku-reports/services/api/http"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the REST API",
		Long: `Start the fetch-cycle poller and serve reports over HTTP.

The poller warm-starts from the snapshot cache (reports are marked stale until
the first cycle commits) and then fetches on the configured refresh interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.poller.Warm(); err != nil {
		log.Printf("warm start skipped: %v", err)
	}

	deps := httpserver.Deps{
		Poller:     a.poller,
		Generator:  a.generator,
		Settings:   a.settings,
		Exporters:  a.exporters,
		Metrics:    a.metrics.Handler(),
		HealthURLs: a.healthURLs,
	}
	if a.cache != nil {
		deps.Cache = a.cache
	}
	if a.store != nil {
		deps.Archive = a.store
	}
	srv := httpserver.New(cfg, deps)

	log.Printf("REST API listening on %s (kind=%s, source=%s, mirror=%v)", cfg.ListenAddr(), cfg.Kind, cfg.SourceMode(), cfg.Mirror())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.poller.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}
