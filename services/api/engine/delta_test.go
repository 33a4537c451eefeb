package engine

import (
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Minute)
		return at
	}
}

func TestDeltaTracker_Observe(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{"first observation", []float64{42}, []float64{0}},
		{"increase", []float64{100, 150}, []float64{0, 50}},
		{"decrease", []float64{200, 150}, []float64{0, -25}},
		{"zero baseline", []float64{0, 75}, []float64{0, 0}},
		{"baseline overwritten after zero", []float64{0, 80, 100}, []float64{0, 0, 25}},
		{"rounded", []float64{3, 4}, []float64{0, 33.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewDeltaTracker(fixedClock())
			for i, v := range tt.values {
				if got := tr.Observe("k", v); got != tt.want[i] {
					t.Errorf("Observe #%d(%v) = %v, want %v", i, v, got, tt.want[i])
				}
			}
			b, ok := tr.Baseline("k")
			if !ok || b.Value != tt.values[len(tt.values)-1] {
				t.Errorf("Baseline = %+v, want last observed value", b)
			}
		})
	}
}

func TestDeltaTracker_KeysIndependent(t *testing.T) {
	tr := NewDeltaTracker(nil)
	tr.Observe("a", 10)
	if got := tr.Observe("b", 20); got != 0 {
		t.Errorf("first observation of b = %v, want 0", got)
	}
	if got := tr.Observe("a", 20); got != 100 {
		t.Errorf("Observe(a, 20) = %v, want 100", got)
	}
}

func TestDeltaTracker_ObserveCycleAndReset(t *testing.T) {
	tr := NewDeltaTracker(nil)
	first := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	deltas := tr.ObserveCycle(map[string]float64{"a": 100, "b": 0}, first)
	if deltas["a"] != 0 || deltas["b"] != 0 {
		t.Errorf("first cycle deltas = %v, want zeros", deltas)
	}

	second := first.Add(5 * time.Minute)
	deltas = tr.ObserveCycle(map[string]float64{"a": 150, "b": 10}, second)
	if deltas["a"] != 50 || deltas["b"] != 0 {
		t.Errorf("second cycle deltas = %v, want a=50 b=0", deltas)
	}
	if b, _ := tr.Baseline("a"); !b.ObservedAt.Equal(second) {
		t.Errorf("ObservedAt = %s, want %s", b.ObservedAt, second)
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}

	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("Len() after Reset = %d", tr.Len())
	}
	if got := tr.Observe("a", 300); got != 0 {
		t.Errorf("Observe after Reset = %v, want 0", got)
	}
}
