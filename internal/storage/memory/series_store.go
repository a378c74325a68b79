package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-eta/internal/store"
)

// SeriesStore keeps series history in process memory. It backs the history
// endpoints when no database is configured and doubles as a test fake.
type SeriesStore struct {
	mu          sync.RWMutex
	series      map[uuid.UUID]store.SeriesRecord
	snapshots   map[uuid.UUID][]store.SnapshotRecord
	finished    []uuid.UUID
	maxFinished int
}

// Option customizes a SeriesStore.
type Option func(*SeriesStore)

// WithMaxFinished keeps at most n finished series; older ones are dropped
// together with their snapshots. Zero or less keeps everything.
func WithMaxFinished(n int) Option {
	return func(s *SeriesStore) {
		s.maxFinished = n
	}
}

// NewSeriesStore constructs an empty SeriesStore.
func NewSeriesStore(opts ...Option) *SeriesStore {
	s := &SeriesStore{
		series:    make(map[uuid.UUID]store.SeriesRecord),
		snapshots: make(map[uuid.UUID][]store.SnapshotRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSeries stores rec as running unless the ID already exists.
func (s *SeriesStore) CreateSeries(_ context.Context, rec store.SeriesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.series[rec.ID]; exists {
		return nil
	}
	rec.Status = store.SeriesRunning
	rec.FinishedAt = nil
	s.series[rec.ID] = rec
	return nil
}

// AppendSnapshots records observations in order and refreshes each series' latest values.
func (s *SeriesStore) AppendSnapshots(_ context.Context, snaps []store.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		rec, ok := s.series[snap.SeriesID]
		if !ok {
			return fmt.Errorf("append snapshot for %s: %w", snap.SeriesID, store.ErrNotFound)
		}
		s.snapshots[snap.SeriesID] = append(s.snapshots[snap.SeriesID], snap)
		rec.LastCount = snap.Count
		rec.LastPercent = snap.Percent
		s.series[snap.SeriesID] = rec
	}
	return nil
}

// CompleteSeries sets the terminal status and finish time.
func (s *SeriesStore) CompleteSeries(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.SeriesStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.series[id]
	if !ok {
		return store.ErrNotFound
	}
	wasRunning := rec.Status == store.SeriesRunning
	rec.Status = status
	rec.FinishedAt = &finishedAt
	s.series[id] = rec
	if wasRunning {
		s.finished = append(s.finished, id)
		s.evictLocked()
	}
	return nil
}

// evictLocked drops the oldest finished series beyond maxFinished.
func (s *SeriesStore) evictLocked() {
	if s.maxFinished <= 0 {
		return
	}
	for len(s.finished) > s.maxFinished {
		oldest := s.finished[0]
		s.finished[0] = uuid.Nil
		s.finished = s.finished[1:]
		delete(s.series, oldest)
		delete(s.snapshots, oldest)
	}
}

// GetSeries fetches one series by ID.
func (s *SeriesStore) GetSeries(_ context.Context, id uuid.UUID) (store.SeriesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.series[id]
	if !ok {
		return store.SeriesRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// ListSeries returns series newest first, optionally filtered by status.
func (s *SeriesStore) ListSeries(
	_ context.Context,
	status *store.SeriesStatus,
	limit,
	offset int,
) ([]store.SeriesRecord, error) {
	s.mu.RLock()
	out := make([]store.SeriesRecord, 0, len(s.series))
	for _, rec := range s.series {
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return page(out, limit, offset), nil
}

// ListSnapshots returns a series' snapshots in insertion order.
func (s *SeriesStore) ListSnapshots(
	_ context.Context,
	id uuid.UUID,
	limit,
	offset int,
) ([]store.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.series[id]; !ok {
		return nil, store.ErrNotFound
	}
	snaps := append([]store.SnapshotRecord(nil), s.snapshots[id]...)
	return page(snaps, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
