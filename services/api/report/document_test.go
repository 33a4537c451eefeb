package report

import (
	"strings"
	"testing"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
)

var testFields = Fields{
	Index:       "co2",
	Temperature: "temperature",
	Humidity:    "humidity",
	Heat:        "heat_index",
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestGenerator() *Generator {
	return NewGenerator(engine.NewResolver(time.UTC), Options{
		Kind:   models.KindSensor,
		Fields: testFields,
		TopN:   3,
	}, WithClock(func() time.Time { return at("2024-04-02T09:00:00Z") }))
}

func scenarioData() Data {
	return Data{
		Entities: []models.Entity{{Key: "1", Kind: models.KindSensor, Name: "A"}},
		Readings: []models.Reading{
			{EntityKey: "1", Timestamp: at("2024-03-01T00:00:00Z"), Severity: models.SeverityLow, Fields: map[string]any{"co2": 400.0}},
			{EntityKey: "1", Timestamp: at("2024-03-02T00:00:00Z"), Severity: models.SeverityHigh, Fields: map[string]any{"co2": 500.0}},
		},
		Committed: true,
	}
}

func TestGenerator_LatestWinsScenario(t *testing.T) {
	g := newTestGenerator()
	march, _ := g.Resolver().ParsePeriod("2024-03")

	doc := g.Generate(scenarioData(), march, settings.Default())

	if doc.Status != StatusReady {
		t.Fatalf("Status = %s, want ready", doc.Status)
	}
	if doc.EntityCount != 1 || len(doc.Top) != 1 {
		t.Fatalf("EntityCount/Top = %d/%d, want 1/1", doc.EntityCount, len(doc.Top))
	}
	row := doc.Top[0]
	if row.Key != "1" || row.Index != 500 || row.Severity != models.SeverityHigh {
		t.Errorf("top row = %+v, want key 1 co2 500 HIGH", row)
	}
	if doc.Title != "Sensor Report: March 2024" {
		t.Errorf("Title = %q", doc.Title)
	}
	if !doc.GeneratedAt.Equal(at("2024-04-02T09:00:00Z")) {
		t.Errorf("GeneratedAt = %s", doc.GeneratedAt)
	}
	if doc.ID == "" {
		t.Error("ID should be set")
	}
}

func TestGenerator_NoDataIsNotError(t *testing.T) {
	g := newTestGenerator()
	april, _ := g.Resolver().ParsePeriod("2024-04")

	doc := g.Generate(scenarioData(), april, settings.Default())
	if doc.Status != StatusNoData {
		t.Errorf("Status = %s, want no_data", doc.Status)
	}
	if doc.EntityCount != 0 || len(doc.Top) != 0 {
		t.Errorf("empty period produced rows: %+v", doc.Top)
	}
	if len(doc.Distribution) != 5 {
		t.Errorf("Distribution has %d buckets, want 5", len(doc.Distribution))
	}
}

func TestGenerator_ErrorOnlyBeforeFirstCommit(t *testing.T) {
	g := newTestGenerator()
	march, _ := g.Resolver().ParsePeriod("2024-03")

	doc := g.Generate(Data{LastError: "request entities: connection refused"}, march, settings.Default())
	if doc.Status != StatusError || !strings.Contains(doc.Error, "connection refused") {
		t.Errorf("Status/Error = %s/%q, want error", doc.Status, doc.Error)
	}

	data := scenarioData()
	data.LastError = "request readings: timeout"
	doc = g.Generate(data, march, settings.Default())
	if doc.Status != StatusReady {
		t.Errorf("Status = %s, committed data must still render", doc.Status)
	}
}

func TestBuild_DistributionAndSummary(t *testing.T) {
	records := []models.MergedRecord{
		{Key: "1", Name: "North", Severity: models.SeverityVeryHigh, Fields: map[string]any{"co2": 900.0, "temperature": 35.0, "humidity": 80.0, "heat_index": 44.0}},
		{Key: "2", Name: "South", Severity: models.SeverityHigh, Fields: map[string]any{"co2": 600.0, "temperature": 33.0, "humidity": 70.0, "heat_index": 41.0}},
		{Key: "3", Name: "East", Severity: models.SeverityHigh, Fields: map[string]any{"co2": 500.0, "temperature": "broken"}},
		{Key: "4", Name: "West", Severity: models.SeverityLow, Fields: map[string]any{"co2": 300.0}},
	}
	st := settings.Default()
	metrics := engine.Aggregate(records, engine.AggregateOptions{Fields: testFields.Metrics(), HeatField: "heat_index", HeatThresholdCelsius: st.HeatStressThresholdCelsius})

	doc := Build(Input{
		Kind:     models.KindBarangay,
		Period:   engine.NewResolver(nil).Month(2024, 2),
		Records:  records,
		Metrics:  metrics,
		Ranked:   engine.Top(engine.Rank(records, "co2"), 3),
		Deltas:   map[string]float64{"1": 12.5},
		Settings: st,
		Fields:   testFields,
	})

	wantPct := []float64{25, 50, 0, 25, 0}
	for i, d := range doc.Distribution {
		if d.Percent != wantPct[i] {
			t.Errorf("Distribution[%d] (%s) = %v%%, want %v%%", i, d.Severity, d.Percent, wantPct[i])
		}
	}

	if len(doc.Top) != 3 || doc.Top[0].Key != "1" || doc.Top[2].Key != "3" {
		t.Errorf("Top = %+v", doc.Top)
	}
	if !doc.Top[0].HasDelta || doc.Top[0].Delta != 12.5 || doc.Top[1].HasDelta {
		t.Errorf("deltas = %+v / %+v", doc.Top[0], doc.Top[1])
	}

	byField := make(map[string]SummaryMetric)
	for _, m := range doc.Summary {
		byField[m.Field] = m
	}
	if m := byField["temperature"]; !m.Valid || m.Display != "34.0°C" || m.Samples != 2 {
		t.Errorf("temperature summary = %+v", m)
	}
	if m := byField["humidity"]; m.Display != "75.0%" {
		t.Errorf("humidity summary = %+v", m)
	}
	if doc.HeatStress.Count != 2 {
		t.Errorf("HeatStress.Count = %d, want 2", doc.HeatStress.Count)
	}
}

func TestBuild_FahrenheitDisplay(t *testing.T) {
	records := []models.MergedRecord{{Key: "1", Fields: map[string]any{"temperature": 40.0}}}
	st := settings.Default()
	st.TemperatureUnit = settings.Fahrenheit

	doc := Build(Input{
		Period:   engine.NewResolver(nil).Month(2024, 2),
		Records:  records,
		Metrics:  engine.Aggregate(records, engine.AggregateOptions{Fields: []string{"temperature"}}),
		Settings: st,
		Fields:   Fields{Temperature: "temperature"},
	})

	if doc.Summary[0].Display != "104.0°F" {
		t.Errorf("Display = %q, want 104.0°F", doc.Summary[0].Display)
	}
	if doc.HeatStress.ThresholdDisplay != "104.0°F" {
		t.Errorf("ThresholdDisplay = %q", doc.HeatStress.ThresholdDisplay)
	}
}

func TestFieldLabel(t *testing.T) {
	tests := map[string]string{
		"heat_index":  "Heat index",
		"co2":         "CO2",
		"temperature": "Temperature",
		"":            "",
	}
	for in, want := range tests {
		if got := FieldLabel(in); got != want {
			t.Errorf("FieldLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
