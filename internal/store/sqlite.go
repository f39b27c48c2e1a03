package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/islandways/placesync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	region      TEXT NOT NULL DEFAULT '',
	quality     INTEGER NOT NULL DEFAULT 0,
	enriched_at DATETIME,
	record      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_places_category ON places(category);
CREATE INDEX IF NOT EXISTS idx_places_region ON places(region);
CREATE INDEX IF NOT EXISTS idx_places_quality ON places(quality);
CREATE INDEX IF NOT EXISTS idx_places_enriched_at ON places(enriched_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertPlaces(ctx context.Context, recs []model.PlaceRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO places (id, name, category, region, quality, enriched_at, record, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, category = excluded.category, region = excluded.region,
		   quality = excluded.quality, enriched_at = excluded.enriched_at,
		   record = excluded.record, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var n int64
	now := time.Now().UTC()
	for _, rec := range recs {
		row, err := placeRow(rec, now)
		if err != nil {
			return n, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert place %s", rec.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return n, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) GetPlace(ctx context.Context, id string) (*model.PlaceRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM places WHERE id = ?`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get place %s", id)
	}
	return decodePlace([]byte(payload))
}

func (s *SQLiteStore) ListPlaces(ctx context.Context, filter ListFilter) ([]model.PlaceRecord, error) {
	query := `SELECT record FROM places WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Region != "" {
		query += ` AND region = ?`
		args = append(args, filter.Region)
	}
	if filter.BelowQuality > 0 {
		query += ` AND quality < ?`
		args = append(args, filter.BelowQuality)
	}
	if filter.Unenriched {
		query += ` AND enriched_at IS NULL`
	}
	query += ` ORDER BY name, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list places")
	}
	defer rows.Close()

	var recs []model.PlaceRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place")
		}
		rec, err := decodePlace([]byte(payload))
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list places iterate")
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, rec model.PlaceRecord) error {
	payload, err := encodePlace(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET quality = ?, enriched_at = ?, record = ?, updated_at = ? WHERE id = ?`,
		rec.Quality.Score, enrichedAt(rec), string(payload), time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", rec.ID)
	}
	return checkRowsAffected(res, "place", rec.ID)
}

func (s *SQLiteStore) CountPlaces(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count places")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// placeRow flattens a record into the upsert column order. The zero
// CreatedAt of freshly loaded feed rows becomes the import time.
func placeRow(rec model.PlaceRecord, now time.Time) ([]any, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	payload, err := encodePlace(rec)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.ID, rec.Name, rec.Category, rec.Region, rec.Quality.Score,
		enrichedAt(rec), string(payload), rec.CreatedAt, rec.UpdatedAt,
	}, nil
}

func encodePlace(rec model.PlaceRecord) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal place %s", rec.ID)
	}
	return payload, nil
}

// enrichedAt returns the enrichment timestamp or nil for the NULL column.
func enrichedAt(rec model.PlaceRecord) *time.Time {
	if rec.Enrichment == nil || rec.Enrichment.PlaceID == "" {
		return nil
	}
	t := rec.Enrichment.EnrichedAt
	return &t
}

func decodePlace(payload []byte) (*model.PlaceRecord, error) {
	var rec model.PlaceRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal place")
	}
	return &rec, nil
}
