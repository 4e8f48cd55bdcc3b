package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pricefeed/internal/config"
	"pricefeed/internal/model"
)

// Pagination bounds for Query.
const (
	MinLimit = 1
	MaxLimit = 1000
)

// ErrNoRows means no history exists for the requested asset.
var ErrNoRows = errors.New("no history rows for asset")

const createTableSQL = `
CREATE TABLE IF NOT EXISTS prices (
	id UUID PRIMARY KEY,
	asset_id TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS prices_asset_observed_idx ON prices (asset_id, observed_at);
`

// Store is the append-only history log.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// Connect creates the connection pool and verifies it.
func Connect(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

// InitSchema creates the prices table, retrying with a short capped
// backoff while the database warms up.
func (s *Store) InitSchema(ctx context.Context) error {
	attempt := 0
	for {
		_, err := s.db.Exec(ctx, createTableSQL)
		if err == nil {
			return nil
		}

		attempt++
		wait := time.Duration(attempt) * 500 * time.Millisecond
		if wait > 5*time.Second {
			wait = 5 * time.Second
		}
		s.logger.Warn("database not ready",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("init schema: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// Append durably writes one observation. The generated record is
// returned so callers can echo it back.
func (s *Store) Append(ctx context.Context, obs model.PriceObservation) (model.HistoryRecord, error) {
	rec := model.HistoryRecord{
		ID:         uuid.New(),
		AssetID:    obs.AssetID,
		Price:      obs.Price,
		ObservedAt: obs.ObservedAt,
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO prices (id, asset_id, price, observed_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.AssetID, rec.Price, rec.ObservedAt)
	if err != nil {
		return model.HistoryRecord{}, fmt.Errorf("append history: %w", err)
	}

	return rec, nil
}

// AppendBatch writes a cycle's observations with pgx.Batch. A failure
// is reported once; rows from the failed batch are lost (at-most-once).
func (s *Store) AppendBatch(ctx context.Context, observations []model.PriceObservation) error {
	if len(observations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, obs := range observations {
		batch.Queue(`
			INSERT INTO prices (id, asset_id, price, observed_at)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), obs.AssetID, obs.Price, obs.ObservedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range observations {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
	}
	return nil
}

// Latest returns the most recent record for an asset. Static-mode
// get_latest reads fall through to this.
func (s *Store) Latest(ctx context.Context, assetID string) (model.HistoryRecord, error) {
	var rec model.HistoryRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, asset_id, price, observed_at
		FROM prices
		WHERE asset_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`, assetID).Scan(&rec.ID, &rec.AssetID, &rec.Price, &rec.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.HistoryRecord{}, ErrNoRows
	}
	if err != nil {
		return model.HistoryRecord{}, fmt.Errorf("query latest: %w", err)
	}
	return rec, nil
}

// Query returns a page of records in ascending observed_at order plus
// the total row count for the asset. Limit is clamped to [1, 1000],
// offset to [0, ∞).
func (s *Store) Query(ctx context.Context, assetID string, limit, offset int) ([]model.HistoryRecord, int, error) {
	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM prices WHERE asset_id = $1
	`, assetID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, asset_id, price, observed_at
		FROM prices
		WHERE asset_id = $1
		ORDER BY observed_at ASC
		OFFSET $2 LIMIT $3
	`, assetID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]model.HistoryRecord, 0, limit)
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.AssetID, &rec.Price, &rec.ObservedAt); err != nil {
			return nil, 0, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate history rows: %w", err)
	}

	return records, total, nil
}

// Ping verifies the pool connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// ClampLimit bounds a page size to [MinLimit, MaxLimit].
func ClampLimit(limit int) int {
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ClampOffset bounds an offset to be non-negative.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
