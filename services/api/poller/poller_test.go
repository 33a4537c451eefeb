package poller

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/cache"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

type fakeSource struct {
	mu          sync.Mutex
	entities    []models.Entity
	readings    []models.Reading
	entitiesErr error
	readingsErr error
	calls       atomic.Int32
}

func (f *fakeSource) FetchEntities(context.Context) ([]models.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Add(1)
	return f.entities, f.entitiesErr
}

func (f *fakeSource) FetchReadings(context.Context) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readings, f.readingsErr
}

func (f *fakeSource) set(readings []models.Reading, readingsErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = readings
	f.readingsErr = readingsErr
}

type memCache struct {
	saved []cache.Snapshot
	load  *cache.Snapshot
}

func (m *memCache) Save(s cache.Snapshot) error {
	m.saved = append(m.saved, s)
	return nil
}

func (m *memCache) Load(models.EntityKind) (*cache.Snapshot, error) {
	if m.load == nil {
		return nil, cache.ErrNoSnapshot
	}
	return m.load, nil
}

type memSink struct {
	cycles int
}

func (m *memSink) SaveCycle(context.Context, models.EntityKind, []models.Entity, []models.Reading) error {
	m.cycles++
	return nil
}

var cycleTime = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

func reading(key string, co2 float64) models.Reading {
	return models.Reading{
		EntityKey: key,
		Timestamp: cycleTime.Add(-time.Hour),
		Severity:  models.SeverityHigh,
		Fields:    map[string]any{"co2": co2},
	}
}

func newTestPoller(src *fakeSource, cfg Config) *Poller {
	cfg.Kind = models.KindSensor
	cfg.Entities = src
	cfg.Readings = src
	cfg.IndexField = "co2"
	cfg.Now = func() time.Time { return cycleTime }
	return New(cfg)
}

func testSource() *fakeSource {
	return &fakeSource{
		entities: []models.Entity{{Key: "1", Kind: models.KindSensor}, {Key: "2", Kind: models.KindSensor}},
		readings: []models.Reading{reading("1", 400), reading("2", 0)},
	}
}

func TestCycle_CommitsAndTracksDeltas(t *testing.T) {
	src := testSource()
	p := newTestPoller(src, Config{})

	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	snap := p.Snapshot()
	if !snap.Committed || snap.Failed || snap.Stale {
		t.Errorf("snapshot flags = %+v", snap)
	}
	if len(snap.Entities) != 2 || len(snap.Readings) != 2 {
		t.Errorf("snapshot sizes = %d/%d", len(snap.Entities), len(snap.Readings))
	}
	if snap.Deltas["1"] != 0 {
		t.Errorf("first delta = %v, want 0", snap.Deltas["1"])
	}

	src.set([]models.Reading{reading("1", 500), reading("2", 50)}, nil)
	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	snap = p.Snapshot()
	if snap.Deltas["1"] != 25 {
		t.Errorf("delta 1 = %v, want 25", snap.Deltas["1"])
	}
	if snap.Deltas["2"] != 0 {
		t.Errorf("delta from zero baseline = %v, want 0", snap.Deltas["2"])
	}
	if snap.Cycles != 2 {
		t.Errorf("cycles = %d, want 2", snap.Cycles)
	}
}

func TestCycle_FailureKeepsPreviousState(t *testing.T) {
	src := testSource()
	p := newTestPoller(src, Config{})

	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	before := p.Snapshot()
	baseline, _ := p.Tracker().Baseline("1")

	src.set([]models.Reading{reading("1", 999)}, errors.New("upstream down"))
	err := p.Cycle(context.Background())
	if err == nil {
		t.Fatal("Cycle() expected error")
	}

	after := p.Snapshot()
	if !after.Failed || !strings.Contains(after.LastError, "upstream down") {
		t.Errorf("failure not recorded: %+v", after)
	}
	if len(after.Readings) != len(before.Readings) || !after.FetchedAt.Equal(before.FetchedAt) {
		t.Errorf("committed data changed after failed cycle")
	}
	if got, _ := p.Tracker().Baseline("1"); got != baseline {
		t.Errorf("baseline changed after failed cycle: %+v -> %+v", baseline, got)
	}

	data := after.ReportData()
	if !data.Committed {
		t.Error("report data should stay committed after a later failure")
	}

	src.set([]models.Reading{reading("1", 400)}, nil)
	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if snap := p.Snapshot(); snap.Failed || snap.LastError != "" {
		t.Errorf("error flag not cleared: %+v", snap)
	}
}

func TestCycle_FirstFailureNotCommitted(t *testing.T) {
	src := testSource()
	src.entitiesErr = errors.New("timeout")
	p := newTestPoller(src, Config{})

	if err := p.Cycle(context.Background()); err == nil {
		t.Fatal("Cycle() expected error")
	}
	data := p.Snapshot().ReportData()
	if data.Committed || data.LastError == "" {
		t.Errorf("report data = %+v", data)
	}
}

func TestCycle_PersistsToCacheAndSink(t *testing.T) {
	src := testSource()
	mc := &memCache{}
	sink := &memSink{}
	p := newTestPoller(src, Config{Cache: mc, Sink: sink})

	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if len(mc.saved) != 1 || len(mc.saved[0].Readings) != 2 {
		t.Errorf("cache saves = %+v", mc.saved)
	}
	if sink.cycles != 1 {
		t.Errorf("sink cycles = %d, want 1", sink.cycles)
	}

	src.set(nil, errors.New("boom"))
	_ = p.Cycle(context.Background())
	if len(mc.saved) != 1 || sink.cycles != 1 {
		t.Error("failed cycle should not be persisted")
	}
}

func TestWarm(t *testing.T) {
	mc := &memCache{load: &cache.Snapshot{
		Kind:      models.KindSensor,
		Entities:  []models.Entity{{Key: "1"}},
		Readings:  []models.Reading{reading("1", 420)},
		FetchedAt: cycleTime.Add(-time.Hour),
	}}
	p := newTestPoller(testSource(), Config{Cache: mc})

	if err := p.Warm(); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	snap := p.Snapshot()
	if !snap.Committed || !snap.Stale || len(snap.Readings) != 1 {
		t.Errorf("warm snapshot = %+v", snap)
	}
	if p.Tracker().Len() != 0 {
		t.Error("warm start must not seed delta baselines")
	}

	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if p.Snapshot().Stale {
		t.Error("stale flag not cleared by a fresh cycle")
	}
}

func TestWarm_NoSnapshot(t *testing.T) {
	p := newTestPoller(testSource(), Config{Cache: &memCache{}})
	if err := p.Warm(); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if p.Snapshot().Committed {
		t.Error("empty cache should leave the poller uncommitted")
	}
}

func TestRun_RefreshRunsCycle(t *testing.T) {
	src := testSource()
	p := newTestPoller(src, Config{Interval: func() time.Duration { return time.Hour }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	for !p.running.Load() {
		time.Sleep(time.Millisecond)
	}

	refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer refreshCancel()
	if err := p.Refresh(refreshCtx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if err := p.Refresh(refreshCtx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// initial cycle plus two refreshes
	if got := src.calls.Load(); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	if err := p.Refresh(refreshCtx); !errors.Is(err, ErrStopped) {
		t.Errorf("Refresh() after stop = %v, want ErrStopped", err)
	}
}

func TestRun_RefreshRestartsCountdown(t *testing.T) {
	const interval = 400 * time.Millisecond
	src := testSource()
	p := newTestPoller(src, Config{Interval: func() time.Duration { return interval }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for src.calls.Load() < 1 {
		time.Sleep(time.Millisecond)
	}
	start := time.Now()

	time.Sleep(150 * time.Millisecond)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	refreshed := time.Now()

	// the countdown started before the refresh would have fired by now
	time.Sleep(start.Add(interval + 50*time.Millisecond).Sub(time.Now()))
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("fetches at %v = %d, want 2", time.Since(start).Round(time.Millisecond), got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for src.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := src.calls.Load(); got != 3 {
		t.Fatalf("fetches = %d, want 3 after the restarted countdown", got)
	}
	if elapsed := time.Since(refreshed); elapsed < interval-50*time.Millisecond {
		t.Errorf("scheduled cycle ran %v after refresh, want about %v", elapsed, interval)
	}
}

func TestRun_TimerCycles(t *testing.T) {
	src := testSource()
	p := newTestPoller(src, Config{Interval: func() time.Duration { return 10 * time.Millisecond }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for src.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := src.calls.Load(); got < 3 {
		t.Errorf("fetches = %d, want at least 3", got)
	}
}

func TestRefresh_WithoutRun(t *testing.T) {
	src := testSource()
	p := newTestPoller(src, Config{})

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !p.Snapshot().Committed {
		t.Error("refresh without Run should still commit")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	src := testSource()
	p := newTestPoller(src, Config{Metrics: m})
	m.Skipped("readings", 2)

	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`shizuku_fetch_cycles_total{kind="sensor",result="ok"} 1`,
		`shizuku_skipped_records_total{collection="readings"} 2`,
		"shizuku_snapshot_entities 2",
		"shizuku_delta_baselines 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_DefaultTracker(t *testing.T) {
	p := New(Config{Kind: models.KindSensor, Entities: testSource(), Readings: testSource()})
	if p.Tracker() == nil {
		t.Fatal("tracker not created")
	}
	if p.interval() != DefaultInterval {
		t.Errorf("interval = %s, want %s", p.interval(), DefaultInterval)
	}
}
