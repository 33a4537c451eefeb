package source

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

var (
	timestampFields = []string{"timestamp", "ts", "recorded_at", "measured_at", "created_at", "time", "date"}
	severityFields  = []string{"severity", "severity_level", "alert_level", "level"}
	latFields       = []string{"lat", "latitude"}
	lonFields       = []string{"lon", "lng", "longitude"}
	categoryFields  = []string{"category", "type"}
)

func entityKeyFields(kind models.EntityKind) []string {
	return []string{"id", string(kind) + "_id", "key", "code"}
}

func readingKeyFields(kind models.EntityKind) []string {
	return []string{string(kind) + "_id", "entity_id", "entity_key", "key"}
}

// NormalizeEntities converts raw items into entities of kind. Items without a
// usable key are dropped and counted in skipped.
func NormalizeEntities(kind models.EntityKind, items []map[string]any) (entities []models.Entity, skipped int) {
	entities = make([]models.Entity, 0, len(items))
	for _, item := range items {
		key, ok := firstString(item, entityKeyFields(kind))
		if !ok {
			skipped++
			continue
		}

		ent := models.Entity{
			Key:    key,
			Kind:   kind,
			Name:   engine.ResolveName(kind, key, item, ""),
			Fields: item,
		}
		if v, ok := firstNumber(item, latFields); ok {
			ent.Lat = &v
		}
		if v, ok := firstNumber(item, lonFields); ok {
			ent.Lon = &v
		}
		if c, ok := firstString(item, categoryFields); ok {
			ent.Category = c
		}
		entities = append(entities, ent)
	}
	return entities, skipped
}

// NormalizeReadings converts raw items into readings. Items without an entity
// key or with an unparsable timestamp are dropped and counted in skipped.
// Unknown severity labels become NORMAL.
func NormalizeReadings(kind models.EntityKind, items []map[string]any) (readings []models.Reading, skipped int) {
	readings = make([]models.Reading, 0, len(items))
	for _, item := range items {
		key, ok := firstString(item, readingKeyFields(kind))
		if !ok {
			skipped++
			continue
		}
		ts, ok := firstTime(item, timestampFields)
		if !ok {
			skipped++
			continue
		}

		sev, _ := firstString(item, severityFields)
		readings = append(readings, models.Reading{
			EntityKey: key,
			Timestamp: ts,
			Severity:  models.ParseSeverity(sev),
			Fields:    item,
		})
	}
	return readings, skipped
}

// ParseTimestamp accepts ISO-8601 strings and unix seconds or milliseconds.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n), true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromUnix(n), true
		}
		if f, err := t.Float64(); err == nil {
			return fromUnix(int64(f)), true
		}
	case float64:
		return fromUnix(int64(t)), true
	case time.Time:
		return t.UTC(), true
	}
	return time.Time{}, false
}

func fromUnix(n int64) time.Time {
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func firstString(item map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		if s, ok := models.StringField(item, f); ok {
			return s, true
		}
	}
	return "", false
}

func firstNumber(item map[string]any, fields []string) (float64, bool) {
	for _, f := range fields {
		if v, ok := models.NumberField(item, f); ok {
			return v, true
		}
	}
	return 0, false
}

func firstTime(item map[string]any, fields []string) (time.Time, bool) {
	for _, f := range fields {
		if v, ok := item[f]; ok && v != nil {
			if ts, ok := ParseTimestamp(v); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
