// Package poller runs fetch cycles against the entity and reading sources and
// holds the last committed snapshot.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/shizuku-reports/services/api/cache"
	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
	"github.com/02loveslollipop/shizuku-reports/services/api/report"
	"github.com/02loveslollipop/shizuku-reports/services/api/source"
)

// DefaultInterval is used when no interval function is configured.
const DefaultInterval = 5 * time.Minute

// ErrStopped is returned by Refresh after Run has returned.
var ErrStopped = errors.New("poller stopped")

// SnapshotCache persists committed cycles for warm starts.
type SnapshotCache interface {
	Save(s cache.Snapshot) error
	Load(kind models.EntityKind) (*cache.Snapshot, error)
}

// Sink mirrors committed cycles somewhere else, e.g. Postgres.
type Sink interface {
	SaveCycle(ctx context.Context, kind models.EntityKind, entities []models.Entity, readings []models.Reading) error
}

// Snapshot is the committed state plus the outcome of the latest attempt.
// A committed Snapshot is never modified; a new one replaces it.
type Snapshot struct {
	Kind        models.EntityKind  `json:"kind"`
	Entities    []models.Entity    `json:"-"`
	Readings    []models.Reading   `json:"-"`
	Deltas      map[string]float64 `json:"-"`
	FetchedAt   time.Time          `json:"fetched_at"`
	LastAttempt time.Time          `json:"last_attempt"`
	Committed   bool               `json:"committed"`
	Stale       bool               `json:"stale"`
	Failed      bool               `json:"failed"`
	LastError   string             `json:"last_error,omitempty"`
	Cycles      int                `json:"cycles"`
}

// ReportData returns the snapshot in the shape the report generator reads.
func (s Snapshot) ReportData() report.Data {
	return report.Data{
		Entities:  s.Entities,
		Readings:  s.Readings,
		Deltas:    s.Deltas,
		Committed: s.Committed,
		Stale:     s.Stale,
		LastError: s.LastError,
	}
}

// Config wires a Poller.
type Config struct {
	Kind       models.EntityKind
	Entities   source.EntitySource
	Readings   source.ReadingSource
	Tracker    *engine.DeltaTracker
	IndexField string

	// Interval is consulted before each countdown so settings changes apply
	// from the next cycle on.
	Interval func() time.Duration
	Timeout  time.Duration

	Cache   SnapshotCache
	Sink    Sink
	Metrics *Metrics
	Now     func() time.Time
}

// Poller owns the fetch cycles for one entity kind.
type Poller struct {
	cfg Config

	cycleMu sync.Mutex
	mu      sync.RWMutex
	snap    Snapshot

	running atomic.Bool
	refresh chan refreshRequest
	stopped chan struct{}
}

type refreshRequest struct {
	ctx  context.Context
	done chan error
}

// New creates a Poller. Entities, Readings and Tracker are required.
func New(cfg Config) *Poller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracker == nil {
		cfg.Tracker = engine.NewDeltaTracker(cfg.Now)
	}
	return &Poller{
		cfg:     cfg,
		snap:    Snapshot{Kind: cfg.Kind},
		refresh: make(chan refreshRequest),
		stopped: make(chan struct{}),
	}
}

// Snapshot returns the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Tracker exposes the delta tracker.
func (p *Poller) Tracker() *engine.DeltaTracker {
	return p.cfg.Tracker
}

// Kind returns the entity kind this poller fetches.
func (p *Poller) Kind() models.EntityKind {
	return p.cfg.Kind
}

// Warm loads the cached snapshot, marked stale. It is a no-op when the
// poller already committed a cycle.
func (p *Poller) Warm() error {
	if p.cfg.Cache == nil {
		return nil
	}
	cached, err := p.cfg.Cache.Load(p.cfg.Kind)
	if err != nil {
		if errors.Is(err, cache.ErrNoSnapshot) {
			return nil
		}
		return fmt.Errorf("load cached snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap.Committed {
		return nil
	}
	p.snap = Snapshot{
		Kind:      p.cfg.Kind,
		Entities:  cached.Entities,
		Readings:  cached.Readings,
		FetchedAt: cached.FetchedAt,
		Committed: true,
		Stale:     true,
	}
	log.Printf("warm start from cache: %d entities, %d readings (fetched %s)",
		len(cached.Entities), len(cached.Readings), cached.FetchedAt.Format(time.RFC3339))
	return nil
}

// Run performs an immediate cycle and then one per interval until ctx is
// done. Manual refreshes are executed on this goroutine, so cycles never
// overlap.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("poller already running")
	}
	defer close(p.stopped)

	_ = p.Cycle(ctx)

	timer := time.NewTimer(p.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			_ = p.Cycle(ctx)
			timer.Reset(p.interval())
		case req := <-p.refresh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			req.done <- p.Cycle(req.ctx)
			timer.Reset(p.interval())
		}
	}
}

// Refresh runs a cycle now and restarts the countdown. When Run is not
// active the cycle runs on the caller's goroutine.
func (p *Poller) Refresh(ctx context.Context) error {
	if !p.running.Load() {
		return p.Cycle(ctx)
	}

	req := refreshRequest{ctx: ctx, done: make(chan error, 1)}
	select {
	case p.refresh <- req:
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cycle fetches both collections concurrently and commits them only when
// both succeed. On failure the previous snapshot and the delta baselines are
// kept and the error is recorded.
func (p *Poller) Cycle(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := p.cfg.Now()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	var (
		entities []models.Entity
		readings []models.Reading
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entities, err = p.cfg.Entities.FetchEntities(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		readings, err = p.cfg.Readings.FetchReadings(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		p.fail(err, start)
		p.cfg.Metrics.observeCycle(string(p.cfg.Kind), "error", time.Since(start).Seconds())
		log.Printf("fetch cycle failed (kind=%s): %v", p.cfg.Kind, err)
		return err
	}

	fetchedAt := p.cfg.Now().UTC()
	values := make(map[string]float64)
	for _, rec := range engine.Latest(entities, readings) {
		if v, ok := rec.Number(p.cfg.IndexField); ok {
			values[rec.Key] = v
		}
	}
	deltas := p.cfg.Tracker.ObserveCycle(values, fetchedAt)

	p.mu.Lock()
	next := Snapshot{
		Kind:        p.cfg.Kind,
		Entities:    entities,
		Readings:    readings,
		Deltas:      deltas,
		FetchedAt:   fetchedAt,
		LastAttempt: fetchedAt,
		Committed:   true,
		Cycles:      p.snap.Cycles + 1,
	}
	p.snap = next
	p.mu.Unlock()

	p.cfg.Metrics.observeCycle(string(p.cfg.Kind), "ok", time.Since(start).Seconds())
	p.cfg.Metrics.observeSnapshot(&next, p.cfg.Tracker.Len())
	log.Printf("committed fetch cycle (kind=%s): %d entities, %d readings", p.cfg.Kind, len(entities), len(readings))

	p.persist(ctx, next)
	return nil
}

func (p *Poller) fail(err error, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.snap
	next.Failed = true
	next.LastError = err.Error()
	next.LastAttempt = at.UTC()
	next.Cycles++
	p.snap = next
}

// persist writes the committed cycle to the cache and sink. Failures are
// logged and never undo the commit.
func (p *Poller) persist(ctx context.Context, s Snapshot) {
	if p.cfg.Cache != nil {
		err := p.cfg.Cache.Save(cache.Snapshot{
			Kind:      s.Kind,
			Entities:  s.Entities,
			Readings:  s.Readings,
			FetchedAt: s.FetchedAt,
		})
		if err != nil {
			log.Printf("cache snapshot failed: %v", err)
		}
	}
	if p.cfg.Sink != nil {
		if err := p.cfg.Sink.SaveCycle(ctx, s.Kind, s.Entities, s.Readings); err != nil {
			log.Printf("mirror cycle failed: %v", err)
		}
	}
}

func (p *Poller) interval() time.Duration {
	if p.cfg.Interval != nil {
		if d := p.cfg.Interval(); d > 0 {
			return d
		}
	}
	return DefaultInterval
}
