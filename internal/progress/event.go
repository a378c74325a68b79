package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-eta/internal/estimator"
)

// Stage denotes the lifecycle moment an Event describes.
type Stage string

// Supported series stages.
const (
	StageSeriesStart     Stage = "SERIES_START"
	StageObserve         Stage = "SERIES_OBSERVE"
	StageSeriesDone      Stage = "SERIES_DONE"
	StageSeriesAbandoned Stage = "SERIES_ABANDONED"
)

// Terminal reports whether no further events follow this stage for a series.
func (s Stage) Terminal() bool {
	return s == StageSeriesDone || s == StageSeriesAbandoned
}

// Event captures one step of a tracked series.
type Event struct {
	// SeriesID identifies the tracked process.
	SeriesID uuid.UUID
	// TS is when the event happened; for observations it equals Snapshot.CalculatedAt.
	TS time.Time
	// Stage denotes which lifecycle moment occurred.
	Stage Stage
	// Label is the caller supplied, human readable series name.
	Label string
	// Total is the count that represents completion.
	Total int64
	// Count is the clamped count at the time of the event.
	Count int64
	// Snapshot is set for SERIES_OBSERVE and SERIES_DONE.
	Snapshot *estimator.Snapshot
	// Elapsed is the wall time since the series started.
	Elapsed time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SeriesID == uuid.Nil {
		return errors.New("series id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Total <= 0 {
		return errors.New("total must be > 0")
	}
	if e.Count < 0 || e.Count > e.Total {
		return fmt.Errorf("count %d outside [0,%d]", e.Count, e.Total)
	}
	switch e.Stage {
	case StageSeriesStart, StageSeriesAbandoned:
	case StageObserve, StageSeriesDone:
		if e.Snapshot == nil {
			return fmt.Errorf("%s requires a snapshot", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Elapsed < 0 {
		return errors.New("elapsed must be >= 0")
	}
	return nil
}

// Percent returns the snapshot percent, or 0 when the event carries none.
func (e Event) Percent() int {
	if e.Snapshot == nil {
		return 0
	}
	return e.Snapshot.PercentComplete
}
