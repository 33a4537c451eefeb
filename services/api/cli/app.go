package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/cache"
	"github.com/02loveslollipop/shizuku-reports/services/api/config"
	"github.com/02loveslollipop/shizuku-reports/services/api/db"
	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/export"
	"github.com/02loveslollipop/shizuku-reports/services/api/poller"
	"github.com/02loveslollipop/shizuku-reports/services/api/report"
	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
	"github.com/02loveslollipop/shizuku-reports/services/api/source"
)

// app is the wired service shared by serve and report.
type app struct {
	cfg        config.Config
	settings   *settings.Store
	generator  *report.Generator
	cache      *cache.Cache
	store      *db.Store
	poller     *poller.Poller
	metrics    *poller.Metrics
	exporters  *export.Set
	healthURLs map[string]string
}

// newApp wires the collaborators from cfg. With offline set no source is
// built and the poller is left nil.
func newApp(ctx context.Context, cfg config.Config, offline bool) (*app, error) {
	st, err := settings.Open(ctx, cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}

	a := &app{
		cfg:        cfg,
		settings:   st,
		metrics:    poller.NewMetrics(),
		healthURLs: map[string]string{},
		generator: report.NewGenerator(engine.NewResolver(cfg.Location), report.Options{
			Kind: cfg.Kind,
			Fields: report.Fields{
				Index:       cfg.IndexField,
				Temperature: cfg.TemperatureField,
				Humidity:    cfg.HumidityField,
				Heat:        cfg.HeatField,
				Extra:       cfg.MetricFields,
			},
			TopN: cfg.TopN,
		}),
	}

	if cfg.CacheDir != "" {
		c, err := cache.Open(cfg.CacheDir)
		if err != nil {
			if offline {
				return nil, err
			}
			log.Printf("snapshot cache disabled: %v", err)
		} else {
			a.cache = c
		}
	}

	if offline {
		a.exporters = a.buildExporters()
		return a, nil
	}

	pcfg := poller.Config{
		Kind:       cfg.Kind,
		IndexField: cfg.IndexField,
		Timeout:    cfg.FetchTimeout,
		Metrics:    a.metrics,
		Interval:   a.interval,
	}
	if a.cache != nil {
		pcfg.Cache = a.cache
	}

	switch cfg.SourceMode() {
	case config.SourceHTTP:
		client := source.NewClient(cfg.Kind, cfg.EntitiesURL, cfg.ReadingsURL,
			source.WithTimeout(cfg.FetchTimeout),
			source.WithBearerToken(cfg.SourceToken),
			source.WithSkipFunc(a.metrics.Skipped),
		)
		pcfg.Entities, pcfg.Readings = client, client
		a.healthURLs = client.URLs()

		if cfg.Mirror() {
			if err := a.openStore(ctx); err != nil {
				a.Close()
				return nil, err
			}
			pcfg.Sink = a.store
		}
	case config.SourcePostgres:
		if err := a.openStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
		src := a.store.Source(cfg.Kind, cfg.ReadingWindow)
		pcfg.Entities, pcfg.Readings = src, src
	default:
		a.Close()
		return nil, config.ErrNoSource
	}

	a.poller = poller.New(pcfg)
	a.exporters = a.buildExporters()
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	store, err := db.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connection error: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return err
	}
	a.store = store
	return nil
}

func (a *app) buildExporters() *export.Set {
	exporters := []export.Exporter{export.NewFileExporter(a.cfg.ExportDir, nil)}
	if a.cfg.WebhookURL != "" {
		exporters = append(exporters, export.NewWebhookExporter(a.cfg.WebhookURL, export.WithWebhookToken(a.cfg.WebhookToken)))
	}
	if a.store != nil {
		exporters = append(exporters, export.NewArchiveExporter(a.store))
	}
	return export.NewSet(exporters...)
}

// interval prefers the REFRESH_INTERVAL override, then the settings store.
func (a *app) interval() time.Duration {
	if a.cfg.RefreshInterval > 0 {
		return a.cfg.RefreshInterval
	}
	return a.settings.Current().RefreshInterval()
}

// Close releases the cache and database.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Printf("closing cache: %v", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

// offlineData loads the cached snapshot as report data.
func (a *app) offlineData() (report.Data, error) {
	if a.cache == nil {
		return report.Data{}, fmt.Errorf("offline mode needs CACHE_DIR")
	}
	snap, err := a.cache.Load(a.cfg.Kind)
	if err != nil {
		return report.Data{}, err
	}
	return report.Data{
		Entities:  snap.Entities,
		Readings:  snap.Readings,
		Committed: true,
		Stale:     true,
	}, nil
}
