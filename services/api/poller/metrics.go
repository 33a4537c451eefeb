package poller

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the poller's Prometheus collectors. Each Metrics owns its
// registry so several pollers (and tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	skipped       *prometheus.CounterVec
	entities      prometheus.Gauge
	readings      prometheus.Gauge
	lastSuccess   prometheus.Gauge
	baselines     prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shizuku_fetch_cycles_total",
			Help: "Fetch cycles by result (ok, error).",
		}, []string{"kind", "result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shizuku_fetch_cycle_duration_seconds",
			Help:    "Wall time of a fetch cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shizuku_skipped_records_total",
			Help: "Upstream records dropped for a missing key or timestamp.",
		}, []string{"collection"}),
		entities: f.NewGauge(prometheus.GaugeOpts{
			Name: "shizuku_snapshot_entities",
			Help: "Entities in the committed snapshot.",
		}),
		readings: f.NewGauge(prometheus.GaugeOpts{
			Name: "shizuku_snapshot_readings",
			Help: "Readings in the committed snapshot.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "shizuku_last_success_timestamp_seconds",
			Help: "Unix time of the last committed fetch cycle.",
		}),
		baselines: f.NewGauge(prometheus.GaugeOpts{
			Name: "shizuku_delta_baselines",
			Help: "Entities with a stored delta baseline.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Skipped records dropped upstream records. It matches source.SkipFunc.
func (m *Metrics) Skipped(collection string, n int) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(collection).Add(float64(n))
}

func (m *Metrics) observeCycle(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(kind, result).Inc()
	m.cycleDuration.Observe(seconds)
}

func (m *Metrics) observeSnapshot(s *Snapshot, baselines int) {
	if m == nil {
		return
	}
	m.entities.Set(float64(len(s.Entities)))
	m.readings.Set(float64(len(s.Readings)))
	if !s.FetchedAt.IsZero() {
		m.lastSuccess.Set(float64(s.FetchedAt.Unix()))
	}
	m.baselines.Set(float64(baselines))
}
