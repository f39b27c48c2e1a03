package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/islandways/placesync/internal/db"
	"github.com/islandways/placesync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// placeColumns is the column order shared by the upsert paths.
var placeColumns = []string{
	"id", "name", "category", "region", "quality", "enriched_at", "record", "created_at", "updated_at",
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_place":         `SELECT record FROM places WHERE id = $1`,
	"update_enrichment": `UPDATE places SET quality = $1, enriched_at = $2, record = $3, updated_at = $4 WHERE id = $5`,
	"count_places":      `SELECT COUNT(*) FROM places`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that
// need direct query access (e.g., feed staging imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	region      TEXT NOT NULL DEFAULT '',
	quality     INTEGER NOT NULL DEFAULT 0,
	enriched_at TIMESTAMPTZ,
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_places_category ON places(category);
CREATE INDEX IF NOT EXISTS idx_places_region ON places(region);
CREATE INDEX IF NOT EXISTS idx_places_quality ON places(quality);
CREATE INDEX IF NOT EXISTS idx_places_enriched_at ON places(enriched_at);
CREATE INDEX IF NOT EXISTS idx_places_region_category ON places(region, category);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertPlaces(ctx context.Context, recs []model.PlaceRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		row, err := placeRow(rec, now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	// The first import into an empty table streams through COPY; later
	// imports merge through the temp-table upsert.
	total, err := s.CountPlaces(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return db.CopyFrom(ctx, s.pool, "places", placeColumns, rows)
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "places",
		Columns:      placeColumns,
		ConflictKeys: []string{"id"},
		// created_at keeps its first-import value on conflict.
		UpdateCols: []string{"name", "category", "region", "quality", "enriched_at", "record", "updated_at"},
	}, rows)
}

func (s *PostgresStore) GetPlace(ctx context.Context, id string) (*model.PlaceRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM places WHERE id = $1`, id,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get place %s", id)
	}
	return decodePlace(payload)
}

func (s *PostgresStore) ListPlaces(ctx context.Context, filter ListFilter) ([]model.PlaceRecord, error) {
	query := `SELECT record FROM places WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	if filter.Region != "" {
		query += fmt.Sprintf(` AND region = $%d`, argIdx)
		args = append(args, filter.Region)
		argIdx++
	}
	if filter.BelowQuality > 0 {
		query += fmt.Sprintf(` AND quality < $%d`, argIdx)
		args = append(args, filter.BelowQuality)
		argIdx++
	}
	if filter.Unenriched {
		query += ` AND enriched_at IS NULL`
	}
	query += ` ORDER BY name, id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
			argIdx++
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list places")
	}
	defer rows.Close()

	var recs []model.PlaceRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan place")
		}
		rec, err := decodePlace(payload)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list places iterate")
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, rec model.PlaceRecord) error {
	payload, err := encodePlace(rec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET quality = $1, enriched_at = $2, record = $3, updated_at = $4 WHERE id = $5`,
		rec.Quality.Score, enrichedAt(rec), payload, time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("place not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) CountPlaces(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM places`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count places")
}
