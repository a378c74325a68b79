// Package tracker keeps a registry of live progress series. Each series wraps
// one estimator.Series, serializes observations behind its own mutex, and
// reports lifecycle changes to a progress.Emitter.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/estimator"
	"github.com/JakeFAU/progress-eta/internal/progress"
)

var (
	// ErrSeriesNotFound is returned for IDs the registry does not hold.
	ErrSeriesNotFound = errors.New("series not found")
	// ErrSeriesClosed is returned when observing or abandoning a finished series.
	ErrSeriesClosed = errors.New("series is closed")
	// ErrTooManySeries is returned by Start when MaxSeries series are running.
	ErrTooManySeries = errors.New("too many running series")
)

// Status is the lifecycle state of a series.
type Status string

// Series statuses.
const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusAbandoned Status = "abandoned"
)

// ParseStatus accepts a status name, case-sensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusRunning, StatusDone, StatusAbandoned:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}

// Clock supplies milliseconds since the Unix epoch.
type Clock interface {
	NowMillis() int64
}

// IDGenerator mints series identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config bounds the registry.
type Config struct {
	// MaxSeries caps concurrently running series. Zero disables the cap.
	MaxSeries int
	// RetainFinished is how many finished series stay queryable.
	RetainFinished int
	// Precision is the number of decimals ETAs are rounded to.
	Precision int
}

// StartRequest describes a new series.
type StartRequest struct {
	Total int64
	Label string
}

// Info is a point-in-time copy of a series' state.
type Info struct {
	ID           uuid.UUID
	Label        string
	Total        int64
	Count        int64
	Status       Status
	StartedAt    time.Time
	FinishedAt   *time.Time
	Observations int64
	// Last is the most recent snapshot; nil before the first observation.
	Last *estimator.Snapshot
}

// Observation is the result of one Observe call.
type Observation struct {
	Series   Info
	Snapshot estimator.Snapshot
}

type entry struct {
	mu sync.Mutex

	id        uuid.UUID
	label     string
	startedAt time.Time
	series    *estimator.Series

	status       Status
	finishedAt   *time.Time
	observations int64
	last         *estimator.Snapshot
}

func (e *entry) info() Info {
	info := Info{
		ID:           e.id,
		Label:        e.label,
		Total:        e.series.Total(),
		Count:        e.series.Count(),
		Status:       e.status,
		StartedAt:    e.startedAt,
		Observations: e.observations,
	}
	if e.finishedAt != nil {
		at := *e.finishedAt
		info.FinishedAt = &at
	}
	if e.last != nil {
		snap := *e.last
		info.Last = &snap
	}
	return info
}

// Tracker is the series registry. It is safe for concurrent use.
type Tracker struct {
	cfg     Config
	clock   Clock
	ids     IDGenerator
	est     *estimator.Estimator
	emitter progress.Emitter
	logger  *zap.Logger

	mu       sync.RWMutex
	series   map[uuid.UUID]*entry
	running  int
	finished []uuid.UUID
}

// New constructs a Tracker. A nil emitter discards events.
func New(cfg Config, clock Clock, ids IDGenerator, emitter progress.Emitter, logger *zap.Logger) *Tracker {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		clock:   clock,
		ids:     ids,
		est:     estimator.New(estimator.WithTimeSource(clock.NowMillis), estimator.WithPrecision(cfg.Precision)),
		emitter: emitter,
		logger:  logger.Named("tracker"),
		series:  make(map[uuid.UUID]*entry),
	}
}

// Start registers a new running series and emits SERIES_START.
func (t *Tracker) Start(ctx context.Context, req StartRequest) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	series, err := t.est.Configure(req.Total)
	if err != nil {
		return Info{}, err
	}
	id, err := t.ids.NewRawID()
	if err != nil {
		return Info{}, fmt.Errorf("allocate series id: %w", err)
	}
	e := &entry{
		id:        id,
		label:     req.Label,
		startedAt: time.UnixMilli(t.clock.NowMillis()).UTC(),
		series:    series,
		status:    StatusRunning,
	}

	t.mu.Lock()
	if t.cfg.MaxSeries > 0 && t.running >= t.cfg.MaxSeries {
		t.mu.Unlock()
		return Info{}, fmt.Errorf("start series (limit %d): %w", t.cfg.MaxSeries, ErrTooManySeries)
	}
	t.series[id] = e
	t.running++
	// Hold the entry lock across the emit so SERIES_START precedes any observation event.
	e.mu.Lock()
	t.mu.Unlock()
	defer e.mu.Unlock()

	t.emitter.Emit(progress.Event{
		SeriesID: id,
		TS:       e.startedAt,
		Stage:    progress.StageSeriesStart,
		Label:    e.label,
		Total:    req.Total,
	})
	t.logger.Debug("series started", zap.String("series_id", id.String()), zap.Int64("total", req.Total))
	return e.info(), nil
}

// Observe records count for a running series. The observation that reaches
// 100% finishes the series and is reported as SERIES_DONE instead of
// SERIES_OBSERVE.
func (t *Tracker) Observe(ctx context.Context, id uuid.UUID, count int64) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	e, err := t.lookup(id)
	if err != nil {
		return Observation{}, err
	}

	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return Observation{}, fmt.Errorf("observe %s: %w", id, ErrSeriesClosed)
	}
	snap := e.series.Observe(count)
	e.observations++
	e.last = &snap

	stage := progress.StageObserve
	if snap.PercentComplete >= 100 {
		stage = progress.StageSeriesDone
		at := snap.CalculatedAt
		e.status = StatusDone
		e.finishedAt = &at
	}
	t.emitter.Emit(progress.Event{
		SeriesID: id,
		TS:       snap.CalculatedAt,
		Stage:    stage,
		Label:    e.label,
		Total:    e.series.Total(),
		Count:    e.series.Count(),
		Snapshot: &snap,
		Elapsed:  elapsed(e.startedAt, snap.CalculatedAt),
	})
	obs := Observation{Series: e.info(), Snapshot: snap}
	e.mu.Unlock()

	if stage == progress.StageSeriesDone {
		t.retire(id)
		t.logger.Debug("series done", zap.String("series_id", id.String()))
	}
	return obs, nil
}

// Abandon stops a running series without completing it and emits SERIES_ABANDONED.
func (t *Tracker) Abandon(ctx context.Context, id uuid.UUID) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	e, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}

	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return Info{}, fmt.Errorf("abandon %s: %w", id, ErrSeriesClosed)
	}
	at := time.UnixMilli(t.clock.NowMillis()).UTC()
	e.status = StatusAbandoned
	e.finishedAt = &at
	t.emitter.Emit(progress.Event{
		SeriesID: id,
		TS:       at,
		Stage:    progress.StageSeriesAbandoned,
		Label:    e.label,
		Total:    e.series.Total(),
		Count:    e.series.Count(),
		Elapsed:  elapsed(e.startedAt, at),
	})
	info := e.info()
	e.mu.Unlock()

	t.retire(id)
	t.logger.Debug("series abandoned", zap.String("series_id", id.String()))
	return info, nil
}

// Get returns the current state of one series.
func (t *Tracker) Get(id uuid.UUID) (Info, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info(), nil
}

// List returns series newest first, optionally filtered by status.
func (t *Tracker) List(status *Status) []Info {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.series))
	for _, e := range t.series {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		info := e.info()
		e.mu.Unlock()
		if status != nil && info.Status != *status {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Running reports how many series are still running.
func (t *Tracker) Running() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *Tracker) lookup(id uuid.UUID) (*entry, error) {
	t.mu.RLock()
	e, ok := t.series[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("series %s: %w", id, ErrSeriesNotFound)
	}
	return e, nil
}

// retire moves a series from running to finished and evicts the oldest
// finished series beyond RetainFinished.
func (t *Tracker) retire(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	t.finished = append(t.finished, id)
	retain := max(t.cfg.RetainFinished, 0)
	for len(t.finished) > retain {
		delete(t.series, t.finished[0])
		t.finished = t.finished[1:]
	}
}

func elapsed(start, at time.Time) time.Duration {
	return max(at.Sub(start), 0)
}
