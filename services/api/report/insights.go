package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// Insights evaluates the fixed insight rules in order. Each rule adds at most
// one line and only when its condition holds.
func Insights(in Input) []string {
	out := make([]string, 0, 7)
	noun := strings.ToLower(in.Kind.Title())
	index := FieldLabel(in.Fields.Index)
	unit := in.Settings.TemperatureUnit

	if len(in.Ranked) > 0 {
		top := in.Ranked[0]
		line := fmt.Sprintf("Highest severity: %s (%s)", top.Name, top.Severity)
		if v, ok := top.Number(in.Fields.Index); ok && index != "" {
			line = fmt.Sprintf("Highest severity: %s (%s, %s %.1f)", top.Name, top.Severity, index, v)
		}
		out = append(out, line+".")
	}

	if n := in.Metrics.Bucket(models.SeverityVeryHigh).Count; n > 0 {
		out = append(out, fmt.Sprintf("%s at VERY HIGH severity.", countNoun(n, noun)))
	}

	alert := in.Settings.AlertSeverity()
	if alert.Rank() < models.SeverityHigh.Rank() {
		alert = models.SeverityHigh
	}
	if n := in.Metrics.CountAtLeast(alert); n > 0 {
		out = append(out, fmt.Sprintf("%d of %s at or above the %s alert level.", n, countNoun(in.Metrics.Count, noun), alert))
	}

	if temp := in.Metrics.Mean(in.Fields.Temperature); in.Fields.Temperature != "" && temp.Valid {
		line := fmt.Sprintf("Average temperature %s", formatTemperature(temp.Value, unit))
		if hum := in.Metrics.Mean(in.Fields.Humidity); in.Fields.Humidity != "" && hum.Valid {
			line += fmt.Sprintf(", average humidity %.1f%%", engine.Round1(hum.Value))
		}
		out = append(out, line+".")
	}

	if n := in.Metrics.HeatStressCount; n > 0 {
		out = append(out, fmt.Sprintf("%s at or above the heat stress threshold of %s.",
			countNoun(n, noun), formatTemperature(in.Settings.HeatStressThresholdCelsius, unit)))
	}

	if len(in.Ranked) >= 2 && index != "" {
		first, second := in.Ranked[0], in.Ranked[1]
		a := engine.IndexValue(first, in.Fields.Index)
		b := engine.IndexValue(second, in.Fields.Index)
		if b != 0 {
			out = append(out, fmt.Sprintf("%s %s %s on %s.", first.Name, compare(a, b), second.Name, index))
		}
	}

	if in.Comparison != nil && index != "" {
		prev := in.Comparison.Metrics.Mean(in.Fields.Index)
		cur := in.Metrics.Mean(in.Fields.Index)
		if prev.Valid && prev.Value != 0 && cur.Valid {
			out = append(out, fmt.Sprintf("Average %s %s vs %s.",
				strings.ToLower(index), trend(cur.Value, prev.Value), in.Comparison.Period.Label()))
		}
	}

	return out
}

func compare(a, b float64) string {
	pct := engine.Round1((a - b) / b * 100)
	switch {
	case pct > 0:
		return fmt.Sprintf("is %.1f%% higher than", pct)
	case pct < 0:
		return fmt.Sprintf("is %.1f%% lower than", math.Abs(pct))
	default:
		return "is level with"
	}
}

func trend(cur, prev float64) string {
	pct := engine.Round1((cur - prev) / prev * 100)
	switch {
	case pct > 0:
		return fmt.Sprintf("up %.1f%%", pct)
	case pct < 0:
		return fmt.Sprintf("down %.1f%%", math.Abs(pct))
	default:
		return "unchanged"
	}
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "y") && !strings.HasSuffix(noun, "ay") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
