package db

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const listEntitiesSQL = `
    SELECT key, name, lat, lon, category, fields
    FROM shizuku.entities
    WHERE kind = $1
    ORDER BY position, key
`

// ListEntities returns all entities of kind in their stored order.
func (s *Store) ListEntities(ctx context.Context, kind models.EntityKind) ([]models.Entity, error) {
	rows, err := s.pool.Query(ctx, listEntitiesSQL, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make([]models.Entity, 0)
	for rows.Next() {
		var (
			ent      models.Entity
			name     *string
			category *string
		)
		if err := rows.Scan(&ent.Key, &name, &ent.Lat, &ent.Lon, &category, &ent.Fields); err != nil {
			return nil, err
		}
		ent.Kind = kind
		if name != nil {
			ent.Name = *name
		}
		if category != nil {
			ent.Category = *category
		}
		entities = append(entities, ent)
	}
	return entities, rows.Err()
}

// ReadingQuery holds filters for retrieving readings.
type ReadingQuery struct {
	Kind  models.EntityKind
	Since *time.Time
	Until *time.Time
	Limit int
}

const readingsBase = `
    SELECT entity_key, ts, severity, fields
    FROM shizuku.readings
    WHERE kind = $1
`

// FetchReadings returns readings of a kind in timestamp order.
func (s *Store) FetchReadings(ctx context.Context, q ReadingQuery) ([]models.Reading, error) {
	query, args := buildReadingsQuery(q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		var (
			rd       models.Reading
			severity *string
		)
		if err := rows.Scan(&rd.EntityKey, &rd.Timestamp, &severity, &rd.Fields); err != nil {
			return nil, err
		}
		if severity != nil {
			rd.Severity = models.ParseSeverity(*severity)
		}
		rd.Timestamp = rd.Timestamp.UTC()
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

// buildReadingsQuery numbers placeholders in the order Since, Until, Limit
// after the kind at $1.
func buildReadingsQuery(q ReadingQuery) (string, []any) {
	args := []any{string(q.Kind)}
	clause := ""
	argPos := 2
	if q.Since != nil {
		clause += " AND ts >= $" + strconv.Itoa(argPos)
		args = append(args, *q.Since)
		argPos++
	}
	if q.Until != nil {
		clause += " AND ts <= $" + strconv.Itoa(argPos)
		args = append(args, *q.Until)
		argPos++
	}
	order := " ORDER BY ts, id"
	limit := ""
	if q.Limit > 0 {
		limit = " LIMIT $" + strconv.Itoa(argPos)
		args = append(args, q.Limit)
	}
	return readingsBase + clause + order + limit, args
}

// SaveCycle mirrors one committed fetch cycle: entities are upserted and
// readings inserted, skipping ones already stored.
func (s *Store) SaveCycle(ctx context.Context, kind models.EntityKind, entities []models.Entity, readings []models.Reading) error {
	if len(entities) == 0 && len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	entityQuery := `INSERT INTO shizuku.entities (kind, key, position, name, lat, lon, category, fields, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
ON CONFLICT (kind, key) DO UPDATE
SET position = EXCLUDED.position,
    name = EXCLUDED.name,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    category = EXCLUDED.category,
    fields = EXCLUDED.fields,
    updated_at = NOW()`

	for i, e := range entities {
		batch.Queue(entityQuery, string(kind), e.Key, i, e.Name, e.Lat, e.Lon, e.Category, e.Fields)
	}

	readingQuery := `INSERT INTO shizuku.readings (kind, entity_key, ts, severity, fields, ingested_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (kind, entity_key, ts) DO NOTHING`

	for _, r := range readings {
		batch.Queue(readingQuery, string(kind), r.EntityKey, r.Timestamp, r.Severity.String(), r.Fields)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Source adapts the store to the engine's entity and reading sources.
type Source struct {
	store *Store
	kind  models.EntityKind
	since time.Duration
}

// Source returns a reading/entity source for kind. A positive window limits
// readings to that look-back from now.
func (s *Store) Source(kind models.EntityKind, window time.Duration) *Source {
	return &Source{store: s, kind: kind, since: window}
}

// FetchEntities implements source.EntitySource.
func (src *Source) FetchEntities(ctx context.Context) ([]models.Entity, error) {
	return src.store.ListEntities(ctx, src.kind)
}

// FetchReadings implements source.ReadingSource.
func (src *Source) FetchReadings(ctx context.Context) ([]models.Reading, error) {
	q := ReadingQuery{Kind: src.kind}
	if src.since > 0 {
		since := time.Now().UTC().Add(-src.since)
		q.Since = &since
	}
	return src.store.FetchReadings(ctx, q)
}
