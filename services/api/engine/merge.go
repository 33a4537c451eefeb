package engine

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// Merge joins each entity with its latest reading inside period. Entities
// without an in-period reading are omitted and readings for unknown entities
// are ignored. Output follows the entity order.
func Merge(entities []models.Entity, readings []models.Reading, period Period) []models.MergedRecord {
	return merge(entities, readings, period.Contains)
}

// Latest joins each entity with its newest reading regardless of period.
func Latest(entities []models.Entity, readings []models.Reading) []models.MergedRecord {
	return merge(entities, readings, func(time.Time) bool { return true })
}

func merge(entities []models.Entity, readings []models.Reading, inWindow func(time.Time) bool) []models.MergedRecord {
	latest := make(map[string]models.Reading, len(entities))
	for _, rd := range readings {
		if !inWindow(rd.Timestamp) {
			continue
		}
		prev, ok := latest[rd.EntityKey]
		// strict > keeps the first-seen reading on equal timestamps
		if !ok || rd.Timestamp.After(prev.Timestamp) {
			latest[rd.EntityKey] = rd
		}
	}

	records := make([]models.MergedRecord, 0, len(latest))
	seen := make(map[string]bool, len(entities))
	for _, ent := range entities {
		rd, ok := latest[ent.Key]
		if !ok || seen[ent.Key] {
			continue
		}
		seen[ent.Key] = true

		fields := make(map[string]any, len(ent.Fields)+len(rd.Fields))
		for k, v := range ent.Fields {
			fields[k] = v
		}
		for k, v := range rd.Fields {
			fields[k] = v
		}

		records = append(records, models.MergedRecord{
			Key:       ent.Key,
			Kind:      ent.Kind,
			Name:      ResolveName(ent.Kind, ent.Key, fields, ent.Name),
			Lat:       ent.Lat,
			Lon:       ent.Lon,
			Category:  ent.Category,
			Timestamp: rd.Timestamp,
			Severity:  rd.Severity,
			Fields:    fields,
		})
	}
	return records
}

// NameFields returns the name fields for kind, most specific first.
func NameFields(kind models.EntityKind) []string {
	fields := make([]string, 0, 4)
	if kind != "" {
		fields = append(fields, string(kind)+"_name")
	}
	return append(fields, "recorded_name", "display_name", "name")
}

// ResolveName coalesces a display name from payload fields: the most specific
// name field, then the generic one, then fallback, then "<Kind> #<key>".
func ResolveName(kind models.EntityKind, key string, fields map[string]any, fallback string) string {
	for _, f := range NameFields(kind) {
		if s, ok := models.StringField(fields, f); ok {
			if name := NormalizeName(s); name != "" {
				return name
			}
		}
	}
	if name := NormalizeName(fallback); name != "" {
		return name
	}
	return kind.Title() + " #" + key
}

// NormalizeName trims, collapses inner whitespace and applies NFC so composed
// and decomposed spellings compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
