package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("series record not found")

// SeriesStatus mirrors the series status column.
type SeriesStatus string

// Series statuses persisted in the status column.
const (
	SeriesRunning   SeriesStatus = "running"
	SeriesDone      SeriesStatus = "done"
	SeriesAbandoned SeriesStatus = "abandoned"
)

// ParseSeriesStatus accepts a status name, case-sensitively.
func ParseSeriesStatus(s string) (SeriesStatus, error) {
	switch SeriesStatus(s) {
	case SeriesRunning, SeriesDone, SeriesAbandoned:
		return SeriesStatus(s), nil
	default:
		return "", errors.New("invalid series status")
	}
}

// SeriesRecord is one tracked process.
type SeriesRecord struct {
	ID    uuid.UUID
	Label string
	Total int64
	// StartedAt is when the series was configured.
	StartedAt time.Time
	// FinishedAt is nil while the series is running.
	FinishedAt *time.Time
	Status     SeriesStatus
	// LastCount and LastPercent reflect the most recent stored snapshot.
	LastCount   int64
	LastPercent int
}

// SnapshotRecord is one persisted observation.
type SnapshotRecord struct {
	SeriesID     uuid.UUID
	Count        int64
	Percent      int
	CalculatedAt time.Time
	// TimeToComplete and TimeToCompleteAveraged are nil when not estimable.
	TimeToComplete         *float64
	TimeToCompleteAveraged *float64
}

// SeriesRepository persists series and their snapshots.
type SeriesRepository interface {
	// CreateSeries inserts a running series; repeating it for an existing ID is a no-op.
	CreateSeries(ctx context.Context, rec SeriesRecord) error
	// AppendSnapshots stores observations and advances each series' last count/percent.
	AppendSnapshots(ctx context.Context, snaps []SnapshotRecord) error
	// CompleteSeries marks a series done or abandoned.
	CompleteSeries(ctx context.Context, id uuid.UUID, finishedAt time.Time, status SeriesStatus) error

	// GetSeries loads one series or returns ErrNotFound.
	GetSeries(ctx context.Context, id uuid.UUID) (SeriesRecord, error)
	// ListSeries returns series filtered by optional status, newest first.
	ListSeries(ctx context.Context, status *SeriesStatus, limit, offset int) ([]SeriesRecord, error)
	// ListSnapshots returns a series' observations, oldest first.
	ListSnapshots(ctx context.Context, id uuid.UUID, limit, offset int) ([]SnapshotRecord, error)
}
