// Package cache keeps the last committed fetch cycle in SQLite so the service
// can warm-start and render reports while the upstream sources are down.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// ErrNoSnapshot is returned when nothing has been cached for a kind yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// schemaSQL defines the snapshot tables.
// Tables:
//   - snapshots: one row per entity kind with the commit time
//   - entities / readings: the rows of that snapshot, as JSON
const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    kind TEXT PRIMARY KEY,
    fetched_at TEXT NOT NULL,
    entity_count INTEGER NOT NULL DEFAULT 0,
    reading_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entities (
    kind TEXT NOT NULL,
    position INTEGER NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (kind, position)
);

CREATE TABLE IF NOT EXISTS readings (
    kind TEXT NOT NULL,
    position INTEGER NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (kind, position)
);
`

// Cache manages the snapshot database.
type Cache struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates dir/snapshots.db.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	dbPath := filepath.Join(dir, "snapshots.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	c := &Cache{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	_, err := c.db.Exec(schemaSQL)
	return err
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

// Snapshot is one committed fetch cycle.
type Snapshot struct {
	Kind      models.EntityKind
	Entities  []models.Entity
	Readings  []models.Reading
	FetchedAt time.Time
}

// Save replaces the snapshot for s.Kind in a single transaction.
func (c *Cache) Save(s Snapshot) error {
	kind := string(s.Kind)
	fetchedAt := s.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for _, stmt := range []string{
		"DELETE FROM entities WHERE kind = ?",
		"DELETE FROM readings WHERE kind = ?",
	} {
		if _, err := tx.Exec(stmt, kind); err != nil {
			tx.Rollback()
			return fmt.Errorf("clear snapshot %s: %w", kind, err)
		}
	}

	if err := insertRows(tx, "entities", kind, s.Entities); err != nil {
		tx.Rollback()
		return err
	}
	if err := insertRows(tx, "readings", kind, s.Readings); err != nil {
		tx.Rollback()
		return err
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO snapshots (kind, fetched_at, entity_count, reading_count)
		VALUES (?, ?, ?, ?)`,
		kind, fetchedAt.UTC().Format(time.RFC3339Nano), len(s.Entities), len(s.Readings))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save snapshot %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertRows[T any](tx *sql.Tx, table, kind string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("INSERT INTO " + table + " (kind, position, payload) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode %s row %d: %w", table, i, err)
		}
		if _, err := stmt.Exec(kind, i, string(payload)); err != nil {
			return fmt.Errorf("save %s row %d: %w", table, i, err)
		}
	}
	return nil
}

// Load returns the cached snapshot for kind, or ErrNoSnapshot.
func (c *Cache) Load(kind models.EntityKind) (*Snapshot, error) {
	var fetchedAt string
	err := c.db.QueryRow("SELECT fetched_at FROM snapshots WHERE kind = ?", string(kind)).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", kind, err)
	}

	s := &Snapshot{Kind: kind}
	if t, err := time.Parse(time.RFC3339Nano, fetchedAt); err == nil {
		s.FetchedAt = t
	}

	if s.Entities, err = loadRows[models.Entity](c.db, "entities", string(kind)); err != nil {
		return nil, err
	}
	if s.Readings, err = loadRows[models.Reading](c.db, "readings", string(kind)); err != nil {
		return nil, err
	}
	return s, nil
}

func loadRows[T any](db *sql.DB, table, kind string) ([]T, error) {
	rows, err := db.Query("SELECT payload FROM "+table+" WHERE kind = ? ORDER BY position", kind)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Clear removes every cached snapshot.
func (c *Cache) Clear() error {
	_, err := c.db.Exec("DELETE FROM snapshots; DELETE FROM entities; DELETE FROM readings;")
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Stats describes the cache contents.
type Stats struct {
	Snapshots int64     `json:"snapshots"`
	Entities  int64     `json:"entities"`
	Readings  int64     `json:"readings"`
	Newest    time.Time `json:"newest,omitempty"`
}

// GetStats returns statistics about the cache contents.
func (c *Cache) GetStats() (*Stats, error) {
	var (
		stats  Stats
		newest sql.NullString
	)

	err := c.db.QueryRow("SELECT COUNT(*), MAX(fetched_at) FROM snapshots").Scan(&stats.Snapshots, &newest)
	if err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	if newest.Valid {
		if t, err := time.Parse(time.RFC3339Nano, newest.String); err == nil {
			stats.Newest = t
		}
	}

	if err := c.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&stats.Entities); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	if err := c.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.Readings); err != nil {
		return nil, fmt.Errorf("count readings: %w", err)
	}
	return &stats, nil
}
