package engine

import (
	"sort"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// Rank orders records by severity then by indexField, both descending. A
// missing or unparsable index compares as 0. Equal keys keep input order.
// The input slice is not modified.
func Rank(records []models.MergedRecord, indexField string) []models.MergedRecord {
	ranked := make([]models.MergedRecord, len(records))
	copy(ranked, records)

	index := make([]float64, len(ranked))
	for i, rec := range ranked {
		index[i] = IndexValue(rec, indexField)
	}

	// sort a permutation so the cached index values move with their records
	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ranked[order[a]], ranked[order[b]]
		if ra.Severity.Rank() != rb.Severity.Rank() {
			return ra.Severity.Rank() > rb.Severity.Rank()
		}
		return index[order[a]] > index[order[b]]
	})

	out := make([]models.MergedRecord, len(ranked))
	for i, idx := range order {
		out[i] = ranked[idx]
	}
	return out
}

// Top truncates an already ranked slice. n <= 0 keeps everything.
func Top(ranked []models.MergedRecord, n int) []models.MergedRecord {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// IndexValue reads the ranking index of a record, 0 when absent.
func IndexValue(rec models.MergedRecord, indexField string) float64 {
	v, ok := rec.Number(indexField)
	if !ok {
		return 0
	}
	return v
}
