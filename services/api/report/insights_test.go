package report

import (
	"strings"
	"testing"

	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
)

func insightInput(records []models.MergedRecord, st settings.Settings) Input {
	r := engine.NewResolver(nil)
	return Input{
		Kind:     models.KindBarangay,
		Period:   r.Month(2024, 2),
		Records:  records,
		Metrics:  engine.Aggregate(records, engine.AggregateOptions{Fields: testFields.Metrics(), HeatField: "heat_index", HeatThresholdCelsius: st.HeatStressThresholdCelsius}),
		Ranked:   engine.Top(engine.Rank(records, "co2"), 3),
		Settings: st,
		Fields:   testFields,
	}
}

func TestInsights_AllRules(t *testing.T) {
	records := []models.MergedRecord{
		{Key: "1", Name: "North", Severity: models.SeverityVeryHigh, Fields: map[string]any{"co2": 900.0, "temperature": 35.0, "humidity": 80.0, "heat_index": 44.0}},
		{Key: "2", Name: "South", Severity: models.SeverityHigh, Fields: map[string]any{"co2": 600.0, "temperature": 33.0, "humidity": 70.0, "heat_index": 41.0}},
		{Key: "3", Name: "East", Severity: models.SeverityHigh, Fields: map[string]any{"co2": 500.0}},
		{Key: "4", Name: "West", Severity: models.SeverityLow, Fields: map[string]any{"co2": 300.0}},
	}
	in := insightInput(records, settings.Default())

	prevRecords := []models.MergedRecord{{Key: "1", Fields: map[string]any{"co2": 400.0}}}
	in.Comparison = &Comparison{
		Period:  engine.NewResolver(nil).Month(2024, 1),
		Metrics: engine.Aggregate(prevRecords, engine.AggregateOptions{Fields: []string{"co2"}}),
	}

	want := []string{
		"Highest severity: North (VERY HIGH, CO2 900.0).",
		"1 barangay at VERY HIGH severity.",
		"3 of 4 barangays at or above the HIGH alert level.",
		"Average temperature 34.0°C, average humidity 75.0%.",
		"2 barangays at or above the heat stress threshold of 40.0°C.",
		"North is 50.0% higher than South on CO2.",
		"Average co2 up 43.8% vs February 2024.",
	}

	got := Insights(in)
	if len(got) != len(want) {
		t.Fatalf("Insights() = %q, want %d lines", got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("insight[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInsights_Conditional(t *testing.T) {
	tests := []struct {
		name     string
		records  []models.MergedRecord
		settings func(*settings.Settings)
		absent   []string
		present  []string
	}{
		{
			name:   "empty input fires nothing",
			absent: []string{"Highest", "VERY HIGH", "alert", "temperature", "heat stress", "higher", "vs"},
		},
		{
			name: "single ranked entity has no top-two comparison",
			records: []models.MergedRecord{
				{Key: "1", Name: "Only", Severity: models.SeverityModerate, Fields: map[string]any{"co2": 10.0}},
			},
			present: []string{"Highest severity: Only (MODERATE, CO2 10.0)."},
			absent:  []string{"higher than", "lower than", "alert level", "VERY HIGH severity"},
		},
		{
			name: "zero runner-up skips comparison",
			records: []models.MergedRecord{
				{Key: "1", Name: "A", Severity: models.SeverityHigh, Fields: map[string]any{"co2": 10.0}},
				{Key: "2", Name: "B", Severity: models.SeverityLow, Fields: map[string]any{"co2": 0.0}},
			},
			absent: []string{"higher than", "level with"},
		},
		{
			name: "humidity omitted when invalid",
			records: []models.MergedRecord{
				{Key: "1", Name: "A", Fields: map[string]any{"temperature": 30.0, "humidity": "?"}},
			},
			present: []string{"Average temperature 30.0°C."},
		},
		{
			name: "very high alert level",
			records: []models.MergedRecord{
				{Key: "1", Name: "A", Severity: models.SeverityHigh},
			},
			settings: func(s *settings.Settings) { s.MinimumAlertSeverity = "VERY HIGH" },
			absent:   []string{"alert level"},
		},
		{
			name: "fahrenheit threshold",
			records: []models.MergedRecord{
				{Key: "1", Name: "A", Fields: map[string]any{"heat_index": 50.0}},
			},
			settings: func(s *settings.Settings) { s.TemperatureUnit = settings.Fahrenheit },
			present:  []string{"1 barangay at or above the heat stress threshold of 104.0°F."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := settings.Default()
			if tt.settings != nil {
				tt.settings(&st)
			}
			got := strings.Join(Insights(insightInput(tt.records, st)), "\n")
			for _, s := range tt.present {
				if !strings.Contains(got, s) {
					t.Errorf("insights missing %q:\n%s", s, got)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(got, s) {
					t.Errorf("insights should not contain %q:\n%s", s, got)
				}
			}
		})
	}
}

func TestInsights_PriorPeriodRequiresNonZeroBaseline(t *testing.T) {
	records := []models.MergedRecord{{Key: "1", Name: "A", Fields: map[string]any{"co2": 50.0}}}
	in := insightInput(records, settings.Default())
	in.Comparison = &Comparison{
		Period:  engine.NewResolver(nil).Month(2024, 1),
		Metrics: engine.Aggregate([]models.MergedRecord{{Key: "1", Fields: map[string]any{"co2": 0.0}}}, engine.AggregateOptions{Fields: []string{"co2"}}),
	}

	for _, line := range Insights(in) {
		if strings.Contains(line, " vs ") {
			t.Errorf("unexpected prior-period insight %q", line)
		}
	}
}

func TestCountNoun(t *testing.T) {
	tests := []struct {
		n    int
		noun string
		want string
	}{
		{1, "sensor", "1 sensor"},
		{2, "sensor", "2 sensors"},
		{3, "entity", "3 entities"},
		{4, "barangay", "4 barangays"},
	}
	for _, tt := range tests {
		if got := countNoun(tt.n, tt.noun); got != tt.want {
			t.Errorf("countNoun(%d, %q) = %q, want %q", tt.n, tt.noun, got, tt.want)
		}
	}
}
