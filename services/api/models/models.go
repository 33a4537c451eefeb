package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// EntityKind names the kind of monitored location a deployment reports on.
type EntityKind string

const (
	KindSensor        EntityKind = "sensor"
	KindBarangay      EntityKind = "barangay"
	KindEstablishment EntityKind = "establishment"
)

// ParseEntityKind validates an entity kind name.
func ParseEntityKind(s string) (EntityKind, bool) {
	switch EntityKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSensor:
		return KindSensor, true
	case KindBarangay:
		return KindBarangay, true
	case KindEstablishment:
		return KindEstablishment, true
	default:
		return "", false
	}
}

// Title returns the capitalised kind, used in synthesized names.
func (k EntityKind) Title() string {
	if k == "" {
		return "Entity"
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// Entity is a monitored location after normalization.
type Entity struct {
	Key      string         `json:"key"`
	Kind     EntityKind     `json:"kind"`
	Name     string         `json:"name"`
	Lat      *float64       `json:"lat,omitempty"`
	Lon      *float64       `json:"lon,omitempty"`
	Category string         `json:"category,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Reading is one periodic measurement for an entity.
type Reading struct {
	EntityKey string         `json:"entity_key"`
	Timestamp time.Time      `json:"ts"`
	Severity  Severity       `json:"severity"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// MergedRecord joins an entity with its latest reading inside a period.
type MergedRecord struct {
	Key       string         `json:"key"`
	Kind      EntityKind     `json:"kind"`
	Name      string         `json:"name"`
	Lat       *float64       `json:"lat,omitempty"`
	Lon       *float64       `json:"lon,omitempty"`
	Category  string         `json:"category,omitempty"`
	Timestamp time.Time      `json:"ts"`
	Severity  Severity       `json:"severity"`
	Fields    map[string]any `json:"fields"`
}

// Number returns the named field as a finite float.
func (m MergedRecord) Number(field string) (float64, bool) {
	return NumberField(m.Fields, field)
}

// NumberField reads a numeric field from a loosely typed payload map. Values that are
// absent, non-numeric, NaN or infinite report false.
func NumberField(fields map[string]any, field string) (float64, bool) {
	v, ok := fields[field]
	if !ok || v == nil {
		return 0, false
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// StringField reads a non-empty string-ish field from a payload map.
func StringField(fields map[string]any, field string) (string, bool) {
	v, ok := fields[field]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
