// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultSeriesTable   = "progress_series"
	defaultSnapshotTable = "progress_snapshots"
)

// SeriesStoreConfig controls the Postgres connection pool used for series history.
type SeriesStoreConfig struct {
	DSN             string
	SeriesTable     string
	SnapshotTable   string
	MaxConns        int32
	ConnectAttempts uint
	RetryDelay      time.Duration
	Logger          *zap.Logger
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// SeriesStore implements store.SeriesRepository on Postgres.
type SeriesStore struct {
	pool          pool
	seriesTable   string
	snapshotTable string
}

var _ store.SeriesRepository = (*SeriesStore)(nil)

// NewSeriesStore connects to Postgres, retrying the initial ping with backoff.
func NewSeriesStore(ctx context.Context, cfg SeriesStoreConfig) (*SeriesStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var p *pgxpool.Pool
	err = retry.Do(
		func() error {
			candidate, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				return err
			}
			if err := candidate.Ping(ctx); err != nil {
				candidate.Close()
				return err
			}
			p = candidate
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("postgres connect failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s, err := NewSeriesStoreWithPool(p, cfg.SeriesTable, cfg.SnapshotTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewSeriesStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSeriesStoreWithPool(p pool, seriesTable, snapshotTable string) (*SeriesStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if seriesTable == "" {
		seriesTable = defaultSeriesTable
	}
	if snapshotTable == "" {
		snapshotTable = defaultSnapshotTable
	}
	for _, table := range []string{seriesTable, snapshotTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &SeriesStore{pool: p, seriesTable: seriesTable, snapshotTable: snapshotTable}, nil
}

// Close releases the underlying pool resources.
func (s *SeriesStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *SeriesStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the series and snapshot tables when missing.
func (s *SeriesStore) Migrate(ctx context.Context) error {
	series := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	label text NOT NULL DEFAULT '',
	total bigint NOT NULL,
	started_at timestamptz NOT NULL,
	finished_at timestamptz,
	status text NOT NULL,
	last_count bigint NOT NULL DEFAULT 0,
	last_percent integer NOT NULL DEFAULT 0
)`, s.seriesTable)
	snapshots := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id bigserial PRIMARY KEY,
	series_id uuid NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	count bigint NOT NULL,
	percent integer NOT NULL,
	calculated_at timestamptz NOT NULL,
	time_to_complete_s double precision,
	time_to_complete_avg_s double precision
)`, s.snapshotTable, s.seriesTable)

	for _, ddl := range []string{series, snapshots} {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// CreateSeries inserts a running series; an existing ID is left untouched.
func (s *SeriesStore) CreateSeries(ctx context.Context, rec store.SeriesRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, label, total, started_at, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`, s.seriesTable)
	_, err := s.pool.Exec(ctx, query, rec.ID, rec.Label, rec.Total, rec.StartedAt, string(store.SeriesRunning))
	if err != nil {
		return fmt.Errorf("failed to create series: %w", err)
	}
	return nil
}

// AppendSnapshots inserts snapshots and refreshes the owning series in one transaction.
func (s *SeriesStore) AppendSnapshots(ctx context.Context, snaps []store.SnapshotRecord) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append snapshots: %w", err)
	}
	if err := s.appendSnapshots(ctx, tx, snaps); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append snapshots: %w", err)
	}
	return nil
}

func (s *SeriesStore) appendSnapshots(ctx context.Context, tx pgx.Tx, snaps []store.SnapshotRecord) error {
	insert := fmt.Sprintf(`
INSERT INTO %s (series_id, count, percent, calculated_at, time_to_complete_s, time_to_complete_avg_s)
VALUES ($1, $2, $3, $4, $5, $6)`, s.snapshotTable)
	update := fmt.Sprintf(`
UPDATE %s SET last_count = $1, last_percent = $2 WHERE id = $3`, s.seriesTable)

	for _, snap := range snaps {
		_, err := tx.Exec(ctx, insert,
			snap.SeriesID,
			snap.Count,
			snap.Percent,
			snap.CalculatedAt,
			snap.TimeToComplete,
			snap.TimeToCompleteAveraged,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		tag, err := tx.Exec(ctx, update, snap.Count, snap.Percent, snap.SeriesID)
		if err != nil {
			return fmt.Errorf("failed to update series: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("append snapshot for %s: %w", snap.SeriesID, store.ErrNotFound)
		}
	}
	return nil
}

// CompleteSeries records the terminal status of a series.
func (s *SeriesStore) CompleteSeries(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.SeriesStatus,
) error {
	query := fmt.Sprintf(`
UPDATE %s SET finished_at = $1, status = $2 WHERE id = $3`, s.seriesTable)
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to complete series: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetSeries fetches one series by ID.
func (s *SeriesStore) GetSeries(ctx context.Context, id uuid.UUID) (store.SeriesRecord, error) {
	query := fmt.Sprintf(`
SELECT id, label, total, started_at, finished_at, status, last_count, last_percent
FROM %s WHERE id = $1`, s.seriesTable)
	rec, err := scanSeries(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.SeriesRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.SeriesRecord{}, fmt.Errorf("failed to get series: %w", err)
	}
	return rec, nil
}

// ListSeries returns series newest first. A non-positive limit means no limit.
func (s *SeriesStore) ListSeries(
	ctx context.Context,
	status *store.SeriesStatus,
	limit,
	offset int,
) ([]store.SeriesRecord, error) {
	var statusArg any
	if status != nil {
		statusArg = string(*status)
	}
	query := fmt.Sprintf(`
SELECT id, label, total, started_at, finished_at, status, last_count, last_percent
FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC, id DESC
LIMIT $2 OFFSET $3`, s.seriesTable)
	rows, err := s.pool.Query(ctx, query, statusArg, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	out := []store.SeriesRecord{}
	for rows.Next() {
		rec, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	return out, nil
}

// ListSnapshots returns a series' snapshots oldest first.
func (s *SeriesStore) ListSnapshots(
	ctx context.Context,
	id uuid.UUID,
	limit,
	offset int,
) ([]store.SnapshotRecord, error) {
	if _, err := s.GetSeries(ctx, id); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT series_id, count, percent, calculated_at, time_to_complete_s, time_to_complete_avg_s
FROM %s
WHERE series_id = $1
ORDER BY id
LIMIT $2 OFFSET $3`, s.snapshotTable)
	rows, err := s.pool.Query(ctx, query, id, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	out := []store.SnapshotRecord{}
	for rows.Next() {
		var snap store.SnapshotRecord
		if err := rows.Scan(
			&snap.SeriesID,
			&snap.Count,
			&snap.Percent,
			&snap.CalculatedAt,
			&snap.TimeToComplete,
			&snap.TimeToCompleteAveraged,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return out, nil
}

func scanSeries(row pgx.Row) (store.SeriesRecord, error) {
	var (
		rec    store.SeriesRecord
		status string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Label,
		&rec.Total,
		&rec.StartedAt,
		&rec.FinishedAt,
		&status,
		&rec.LastCount,
		&rec.LastPercent,
	); err != nil {
		return store.SeriesRecord{}, err
	}
	rec.Status = store.SeriesStatus(status)
	return rec, nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
