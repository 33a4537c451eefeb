package models

import (
	"encoding/json"
	"strings"
)

// Severity is the ordered categorical level attached to a reading.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityLow
	SeverityModerate
	SeverityHigh
	SeverityVeryHigh
)

var severityLabels = [...]string{"NORMAL", "LOW", "MODERATE", "HIGH", "VERY HIGH"}

// Severities lists every bucket, highest first.
func Severities() []Severity {
	return []Severity{SeverityVeryHigh, SeverityHigh, SeverityModerate, SeverityLow, SeverityNormal}
}

// ParseSeverity maps an upstream label onto the taxonomy; unknown or empty labels are NORMAL.
func ParseSeverity(label string) Severity {
	s := strings.ToUpper(strings.TrimSpace(label))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	switch s {
	case "VERY HIGH", "VERYHIGH", "EXTREME":
		return SeverityVeryHigh
	case "HIGH":
		return SeverityHigh
	case "MODERATE", "MEDIUM":
		return SeverityModerate
	case "LOW":
		return SeverityLow
	default:
		return SeverityNormal
	}
}

// Rank returns the numeric rank used for ordering (NORMAL=0 ... VERY HIGH=4).
func (s Severity) Rank() int {
	if s < SeverityNormal || s > SeverityVeryHigh {
		return 0
	}
	return int(s)
}

func (s Severity) String() string {
	return severityLabels[s.Rank()]
}

// Badge returns the display colour for severity badges.
func (s Severity) Badge() string {
	switch s {
	case SeverityVeryHigh:
		return "#b91c1c"
	case SeverityHigh:
		return "#ea580c"
	case SeverityModerate:
		return "#ca8a04"
	case SeverityLow:
		return "#2563eb"
	default:
		return "#16a34a"
	}
}

// MarshalJSON encodes the severity as its label.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either a label or a numeric rank.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*s = ParseSeverity(label)
		return nil
	}
	var rank int
	if err := json.Unmarshal(data, &rank); err != nil {
		return err
	}
	*s = Severity(rank)
	if s.Rank() != rank {
		*s = SeverityNormal
	}
	return nil
}

// MarshalYAML encodes the severity as its label.
func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
