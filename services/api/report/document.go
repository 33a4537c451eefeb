// Package report turns merged telemetry into a report document. The same
// Document backs the JSON screen state and every printable rendering.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
)

// Status tells screens which state to render.
type Status string

const (
	StatusReady  Status = "ready"
	StatusNoData Status = "no_data"
	StatusError  Status = "error"
)

// Fields names the payload fields with a fixed role in the report.
type Fields struct {
	Index       string
	Temperature string
	Humidity    string
	Heat        string
	Extra       []string
}

// Metrics returns every field to average, without duplicates.
func (f Fields) Metrics() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, 4+len(f.Extra))
	for _, name := range append([]string{f.Index, f.Temperature, f.Humidity, f.Heat}, f.Extra...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (f Fields) isTemperature(name string) bool {
	return name != "" && (name == f.Temperature || name == f.Heat)
}

// Comparison carries the previous period's metrics.
type Comparison struct {
	Period  engine.Period
	Metrics engine.Metrics
}

// Input is everything Build needs. It is produced by Generator or assembled
// directly in tests.
type Input struct {
	Kind        models.EntityKind
	Period      engine.Period
	Records     []models.MergedRecord
	Metrics     engine.Metrics
	Ranked      []models.MergedRecord
	Comparison  *Comparison
	Deltas      map[string]float64
	Settings    settings.Settings
	Fields      Fields
	Status      Status
	Error       string
	Stale       bool
	GeneratedAt time.Time
}

// PeriodInfo describes the reported period.
type PeriodInfo struct {
	Key   string            `json:"key" yaml:"key"`
	Label string            `json:"label" yaml:"label"`
	Kind  engine.PeriodKind `json:"kind" yaml:"kind"`
	Start time.Time         `json:"start" yaml:"start"`
	End   time.Time         `json:"end" yaml:"end"`
}

// SummaryMetric is one mean in the summary block.
type SummaryMetric struct {
	Field   string  `json:"field" yaml:"field"`
	Label   string  `json:"label" yaml:"label"`
	Value   float64 `json:"value" yaml:"value"`
	Unit    string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Display string  `json:"display" yaml:"display"`
	Samples int     `json:"samples" yaml:"samples"`
	Valid   bool    `json:"valid" yaml:"valid"`
}

// HeatStress summarises records at or above the heat threshold.
type HeatStress struct {
	Count            int     `json:"count" yaml:"count"`
	ThresholdCelsius float64 `json:"threshold_celsius" yaml:"threshold_celsius"`
	ThresholdDisplay string  `json:"threshold_display" yaml:"threshold_display"`
}

// RankedRow is one line of the top-N table.
type RankedRow struct {
	Rank     int             `json:"rank" yaml:"rank"`
	Key      string          `json:"key" yaml:"key"`
	Name     string          `json:"name" yaml:"name"`
	Severity models.Severity `json:"severity" yaml:"severity"`
	Badge    string          `json:"badge" yaml:"badge"`
	Index    float64         `json:"index" yaml:"index"`
	Delta    float64         `json:"delta_percent" yaml:"delta_percent"`
	HasDelta bool            `json:"has_delta" yaml:"has_delta"`
	At       time.Time       `json:"ts" yaml:"ts"`
}

// DistributionRow is one severity bucket.
type DistributionRow struct {
	Severity models.Severity `json:"severity" yaml:"severity"`
	Badge    string          `json:"badge" yaml:"badge"`
	Count    int             `json:"count" yaml:"count"`
	Percent  float64         `json:"percent" yaml:"percent"`
}

// Document is the structured report.
type Document struct {
	ID           string            `json:"id" yaml:"id"`
	Title        string            `json:"title" yaml:"title"`
	GeneratedAt  time.Time         `json:"generated_at" yaml:"generated_at"`
	Period       PeriodInfo        `json:"period" yaml:"period"`
	EntityKind   models.EntityKind `json:"entity_kind" yaml:"entity_kind"`
	EntityCount  int               `json:"entity_count" yaml:"entity_count"`
	Status       Status            `json:"status" yaml:"status"`
	Error        string            `json:"error,omitempty" yaml:"error,omitempty"`
	Stale        bool              `json:"stale" yaml:"stale"`
	IndexField   string            `json:"index_field" yaml:"index_field"`
	Summary      []SummaryMetric   `json:"summary" yaml:"summary"`
	HeatStress   HeatStress        `json:"heat_stress" yaml:"heat_stress"`
	Top          []RankedRow       `json:"top" yaml:"top"`
	Distribution []DistributionRow `json:"distribution" yaml:"distribution"`
	Insights     []string          `json:"insights" yaml:"insights"`
}

// Build projects aggregated state into a Document. It never fails; missing
// values render as "n/a".
func Build(in Input) *Document {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}
	unit := in.Settings.TemperatureUnit

	doc := &Document{
		ID:          uuid.NewString(),
		Title:       fmt.Sprintf("%s Report: %s", in.Kind.Title(), in.Period.Label()),
		GeneratedAt: in.GeneratedAt,
		Period: PeriodInfo{
			Key:   in.Period.Key(),
			Label: in.Period.Label(),
			Kind:  in.Period.Kind,
			Start: in.Period.Start,
			End:   in.Period.End,
		},
		EntityKind:  in.Kind,
		EntityCount: len(in.Records),
		Status:      in.Status,
		Error:       in.Error,
		Stale:       in.Stale,
		IndexField:  in.Fields.Index,
		HeatStress: HeatStress{
			Count:            in.Metrics.HeatStressCount,
			ThresholdCelsius: in.Settings.HeatStressThresholdCelsius,
			ThresholdDisplay: formatTemperature(in.Settings.HeatStressThresholdCelsius, unit),
		},
	}
	if doc.Status == "" {
		doc.Status = StatusReady
		if len(in.Records) == 0 {
			doc.Status = StatusNoData
		}
	}

	for _, field := range in.Fields.Metrics() {
		mean := in.Metrics.Mean(field)
		sm := SummaryMetric{
			Field:   field,
			Label:   FieldLabel(field),
			Samples: mean.Samples,
			Valid:   mean.Valid,
			Display: "n/a",
		}
		switch {
		case in.Fields.isTemperature(field):
			sm.Unit = unit.Symbol()
		case field == in.Fields.Humidity:
			sm.Unit = "%"
		}
		if mean.Valid {
			sm.Value = engine.Round1(mean.Value)
			if in.Fields.isTemperature(field) {
				sm.Value = engine.Round1(unit.Convert(mean.Value))
			}
			sm.Display = fmt.Sprintf("%.1f%s", sm.Value, sm.Unit)
		}
		doc.Summary = append(doc.Summary, sm)
	}

	for i, rec := range in.Ranked {
		delta, ok := in.Deltas[rec.Key]
		doc.Top = append(doc.Top, RankedRow{
			Rank:     i + 1,
			Key:      rec.Key,
			Name:     rec.Name,
			Severity: rec.Severity,
			Badge:    rec.Severity.Badge(),
			Index:    engine.IndexValue(rec, in.Fields.Index),
			Delta:    delta,
			HasDelta: ok,
			At:       rec.Timestamp,
		})
	}

	for _, b := range in.Metrics.Distribution {
		doc.Distribution = append(doc.Distribution, DistributionRow{
			Severity: b.Severity,
			Badge:    b.Severity.Badge(),
			Count:    b.Count,
			Percent:  b.Percent,
		})
	}

	doc.Insights = Insights(in)
	return doc
}

// Data is the committed fetch state a report is generated from.
type Data struct {
	Entities  []models.Entity
	Readings  []models.Reading
	Deltas    map[string]float64
	Committed bool
	Stale     bool
	LastError string
}

// Options configures a Generator.
type Options struct {
	Kind   models.EntityKind
	Fields Fields
	TopN   int
}

// Generator runs the merge, aggregate and rank pipeline for one entity kind.
type Generator struct {
	resolver *engine.Resolver
	opts     Options
	now      func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a Generator.
func NewGenerator(resolver *engine.Resolver, opts Options, options ...GeneratorOption) *Generator {
	if resolver == nil {
		resolver = engine.NewResolver(nil)
	}
	g := &Generator{resolver: resolver, opts: opts, now: time.Now}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Resolver exposes the period resolver.
func (g *Generator) Resolver() *engine.Resolver {
	return g.resolver
}

// Options returns the generator configuration.
func (g *Generator) Options() Options {
	return g.opts
}

// Generate builds the report for period from d.
func (g *Generator) Generate(d Data, period engine.Period, st settings.Settings) *Document {
	return Build(g.Input(d, period, st))
}

// Input computes the intermediate state for period without rendering it.
func (g *Generator) Input(d Data, period engine.Period, st settings.Settings) Input {
	aggOpts := engine.AggregateOptions{
		Fields:               g.opts.Fields.Metrics(),
		HeatField:            g.opts.Fields.Heat,
		HeatThresholdCelsius: st.HeatStressThresholdCelsius,
	}

	records := engine.Merge(d.Entities, d.Readings, period)
	in := Input{
		Kind:        g.opts.Kind,
		Period:      period,
		Records:     records,
		Metrics:     engine.Aggregate(records, aggOpts),
		Ranked:      engine.Top(engine.Rank(records, g.opts.Fields.Index), g.opts.TopN),
		Deltas:      d.Deltas,
		Settings:    st,
		Fields:      g.opts.Fields,
		Stale:       d.Stale,
		GeneratedAt: g.now().UTC(),
	}

	prev := g.resolver.Previous(period)
	if prevRecords := engine.Merge(d.Entities, d.Readings, prev); len(prevRecords) > 0 {
		in.Comparison = &Comparison{Period: prev, Metrics: engine.Aggregate(prevRecords, aggOpts)}
	}

	switch {
	case !d.Committed && d.LastError != "":
		in.Status = StatusError
		in.Error = d.LastError
	case len(records) == 0:
		in.Status = StatusNoData
	default:
		in.Status = StatusReady
	}
	return in
}

// FieldLabel turns a payload field name into a heading: "heat_index" becomes
// "Heat index".
func FieldLabel(field string) string {
	s := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(field))
	if s == "" {
		return s
	}
	switch strings.ToLower(s) {
	case "co2", "pm25", "pm10", "aqi":
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatTemperature(celsius float64, unit settings.TemperatureUnit) string {
	return fmt.Sprintf("%.1f%s", engine.Round1(unit.Convert(celsius)), unit.Symbol())
}
