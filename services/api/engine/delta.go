package engine

import (
	"sync"
	"time"
)

// Baseline is the last value observed for a key.
type Baseline struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// DeltaTracker keeps a per-key baseline for the lifetime of the process and
// reports percentage change between successive observations.
type DeltaTracker struct {
	mu        sync.Mutex
	now       func() time.Time
	baselines map[string]Baseline
}

// NewDeltaTracker creates an empty tracker. clock may be nil.
func NewDeltaTracker(clock func() time.Time) *DeltaTracker {
	if clock == nil {
		clock = time.Now
	}
	return &DeltaTracker{now: clock, baselines: make(map[string]Baseline)}
}

// Observe records value for key and returns the change from the previous
// baseline in percent, rounded to one decimal. The first observation and a
// zero baseline both yield 0.
func (t *DeltaTracker) Observe(key string, value float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observe(key, value, t.now())
}

// ObserveCycle commits one fetch cycle's values in a single step.
func (t *DeltaTracker) ObserveCycle(values map[string]float64, at time.Time) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	deltas := make(map[string]float64, len(values))
	for key, v := range values {
		deltas[key] = t.observe(key, v, at)
	}
	return deltas
}

func (t *DeltaTracker) observe(key string, value float64, at time.Time) float64 {
	prev, ok := t.baselines[key]
	t.baselines[key] = Baseline{Value: value, ObservedAt: at}
	if !ok || prev.Value == 0 {
		return 0
	}
	return Round1((value - prev.Value) / prev.Value * 100)
}

// Baseline returns the stored baseline for key.
func (t *DeltaTracker) Baseline(key string) (Baseline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.baselines[key]
	return b, ok
}

// Len returns the number of tracked keys.
func (t *DeltaTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.baselines)
}

// Reset forgets every baseline.
func (t *DeltaTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baselines = make(map[string]Baseline)
}
