package engine

import (
	"math"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// AggregateOptions selects which numeric fields are averaged and how heat
// stress is counted.
type AggregateOptions struct {
	Fields               []string
	HeatField            string
	HeatThresholdCelsius float64
}

// Mean is the arithmetic mean of a field. Valid is false when no record
// carried a finite value for it.
type Mean struct {
	Value   float64 `json:"value"`
	Samples int     `json:"samples"`
	Valid   bool    `json:"valid"`
}

// BucketCount is one severity bucket of the distribution.
type BucketCount struct {
	Severity models.Severity `json:"severity"`
	Count    int             `json:"count"`
	Percent  float64         `json:"percent"`
}

// Metrics summarises a merged record set.
type Metrics struct {
	Count           int             `json:"count"`
	Means           map[string]Mean `json:"means"`
	Distribution    [5]BucketCount  `json:"distribution"`
	HeatStressCount int             `json:"heat_stress_count"`
}

// Mean returns the mean for field; a field that was never requested is invalid.
func (m Metrics) Mean(field string) Mean {
	return m.Means[field]
}

// CountAtLeast returns how many records have severity >= min.
func (m Metrics) CountAtLeast(min models.Severity) int {
	n := 0
	for _, b := range m.Distribution {
		if b.Severity.Rank() >= min.Rank() {
			n += b.Count
		}
	}
	return n
}

// Bucket returns the distribution entry for s.
func (m Metrics) Bucket(s models.Severity) BucketCount {
	for _, b := range m.Distribution {
		if b.Severity == s {
			return b
		}
	}
	return BucketCount{Severity: s}
}

// Aggregate computes means, the severity distribution and the heat stress
// count. Empty input yields zero counts and invalid means.
func Aggregate(records []models.MergedRecord, opts AggregateOptions) Metrics {
	metrics := Metrics{
		Count: len(records),
		Means: make(map[string]Mean, len(opts.Fields)),
	}

	sums := make(map[string]float64, len(opts.Fields))
	samples := make(map[string]int, len(opts.Fields))
	counts := make(map[models.Severity]int, 5)

	for _, rec := range records {
		for _, f := range opts.Fields {
			if v, ok := rec.Number(f); ok {
				sums[f] += v
				samples[f]++
			}
		}

		counts[models.Severity(rec.Severity.Rank())]++

		if opts.HeatField != "" {
			if v, ok := rec.Number(opts.HeatField); ok && v >= opts.HeatThresholdCelsius {
				metrics.HeatStressCount++
			}
		}
	}

	for _, f := range opts.Fields {
		if n := samples[f]; n > 0 {
			metrics.Means[f] = Mean{Value: sums[f] / float64(n), Samples: n, Valid: true}
		} else {
			metrics.Means[f] = Mean{}
		}
	}

	for i, s := range models.Severities() {
		b := BucketCount{Severity: s, Count: counts[s]}
		if metrics.Count > 0 {
			b.Percent = Round1(float64(b.Count) / float64(metrics.Count) * 100)
		}
		metrics.Distribution[i] = b
	}

	return metrics
}

// Round1 rounds to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
