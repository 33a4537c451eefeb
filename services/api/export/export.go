// Package export hands finished report documents to external collaborators:
// a directory on disk, a webhook, or the Postgres archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

// ErrUnknownTarget is returned when no exporter is registered under a name.
var ErrUnknownTarget = errors.New("unknown export target")

// Result describes a completed export.
type Result struct {
	Target     string        `json:"target"`
	Location   string        `json:"location,omitempty"`
	Bytes      int           `json:"bytes"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Exporter delivers a document. Implementations must not modify doc.
type Exporter interface {
	Export(ctx context.Context, doc *report.Document) (*Result, error)
	Name() string
}

// Set is a lookup of exporters by name.
type Set struct {
	byName map[string]Exporter
}

// NewSet registers exporters under their Name. Nil entries are skipped.
func NewSet(exporters ...Exporter) *Set {
	s := &Set{byName: make(map[string]Exporter)}
	for _, e := range exporters {
		if e == nil {
			continue
		}
		s.byName[e.Name()] = e
	}
	return s
}

// Get returns the exporter for name.
func (s *Set) Get(name string) (Exporter, error) {
	e, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownTarget, name, strings.Join(s.Names(), ", "))
	}
	return e, nil
}

// Names lists registered targets, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export runs the exporter registered under target.
func (s *Set) Export(ctx context.Context, target string, doc *report.Document) (*Result, error) {
	e, err := s.Get(target)
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, doc)
}

func finish(r *Result, start time.Time) *Result {
	r.Duration = time.Since(start)
	r.DurationMS = r.Duration.Milliseconds()
	return r
}
