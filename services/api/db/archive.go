package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS shizuku;

CREATE TABLE IF NOT EXISTS shizuku.entities (
    kind TEXT NOT NULL,
    key TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    name TEXT,
    lat DOUBLE PRECISION,
    lon DOUBLE PRECISION,
    category TEXT,
    fields JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (kind, key)
);

CREATE TABLE IF NOT EXISTS shizuku.readings (
    id BIGSERIAL PRIMARY KEY,
    kind TEXT NOT NULL,
    entity_key TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    severity TEXT,
    fields JSONB,
    ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (kind, entity_key, ts)
);

CREATE INDEX IF NOT EXISTS idx_readings_kind_ts ON shizuku.readings (kind, ts);

CREATE TABLE IF NOT EXISTS shizuku.report_archive (
    id UUID PRIMARY KEY,
    kind TEXT NOT NULL,
    period_key TEXT NOT NULL,
    status TEXT NOT NULL,
    title TEXT NOT NULL,
    entity_count INTEGER NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    document JSONB NOT NULL,
    html TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables used by the store if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveDocument archives a rendered report. Saving the same document twice
// replaces the stored copy.
func (s *Store) SaveDocument(ctx context.Context, doc *report.Document, html []byte) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	var htmlText *string
	if len(html) > 0 {
		h := string(html)
		htmlText = &h
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO shizuku.report_archive (id, kind, period_key, status, title, entity_count, generated_at, document, html)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE
SET document = EXCLUDED.document,
    html = EXCLUDED.html,
    status = EXCLUDED.status`,
		doc.ID, string(doc.EntityKind), doc.Period.Key, string(doc.Status), doc.Title,
		doc.EntityCount, doc.GeneratedAt, payload, htmlText)
	if err != nil {
		return fmt.Errorf("archive document %s: %w", doc.ID, err)
	}
	return nil
}

// ArchivedReport is one row of the archive listing.
type ArchivedReport struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	PeriodKey   string    `json:"period_key"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	EntityCount int       `json:"entity_count"`
	GeneratedAt time.Time `json:"generated_at"`
	HasHTML     bool      `json:"has_html"`
}

// ArchivePage is a page of archived reports.
type ArchivePage struct {
	Reports    []ArchivedReport `json:"reports"`
	TotalCount int              `json:"total_count"`
}

// ListArchived pages through archived reports, newest first, optionally
// filtered by period key.
func (s *Store) ListArchived(ctx context.Context, periodKey string, limit, offset int) (*ArchivePage, error) {
	where, args := archiveFilter(periodKey)

	var totalCount int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM shizuku.report_archive "+where, args...).Scan(&totalCount); err != nil {
		return nil, err
	}

	query, args := buildArchivePageQuery(where, args, limit, offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]ArchivedReport, 0, limit)
	for rows.Next() {
		var r ArchivedReport
		if err := rows.Scan(&r.ID, &r.Kind, &r.PeriodKey, &r.Status, &r.Title, &r.EntityCount, &r.GeneratedAt, &r.HasHTML); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ArchivePage{Reports: reports, TotalCount: totalCount}, nil
}

func archiveFilter(periodKey string) (string, []any) {
	conditions := []string{}
	args := []any{}

	if periodKey != "" {
		conditions = append(conditions, "period_key = $"+strconv.Itoa(len(args)+1))
		args = append(args, periodKey)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// buildArchivePageQuery appends LIMIT and OFFSET after the filter arguments.
func buildArchivePageQuery(where string, filterArgs []any, limit, offset int) (string, []any) {
	args := append(append([]any{}, filterArgs...), limit, offset)
	limitPos := len(filterArgs) + 1
	offsetPos := len(filterArgs) + 2

	query := strings.Builder{}
	query.WriteString("SELECT id::text, kind, period_key, status, title, entity_count, generated_at, html IS NOT NULL ")
	query.WriteString("FROM shizuku.report_archive ")
	if where != "" {
		query.WriteString(where + " ")
	}
	query.WriteString("ORDER BY generated_at DESC ")
	query.WriteString("LIMIT $" + strconv.Itoa(limitPos) + " OFFSET $" + strconv.Itoa(offsetPos))
	return query.String(), args
}
