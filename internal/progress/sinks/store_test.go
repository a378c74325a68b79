package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-eta/internal/progress"
	"github.com/JakeFAU/progress-eta/internal/storage/memory"
	"github.com/JakeFAU/progress-eta/internal/store"
)

// TestStoreSinkPersistsLifecycle writes series, snapshots and the terminal status.
func TestStoreSinkPersistsLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewSeriesStore()
	sink := NewStoreSink(repo, nil)

	batch := []progress.Event{
		newEvent(progress.StageSeriesStart, 0, nil),
		newEvent(progress.StageObserve, 5, snapshot(50, 9, 9)),
		newEvent(progress.StageObserve, 7, snapshot(70, 3, 6)),
		newEvent(progress.StageSeriesDone, 10, snapshot(100, 0, 0)),
	}
	require.NoError(t, sink.Consume(ctx, batch))

	rec, err := repo.GetSeries(ctx, testSeriesID)
	require.NoError(t, err)
	require.Equal(t, store.SeriesDone, rec.Status)
	require.Equal(t, "copy", rec.Label)
	require.Equal(t, 100, rec.LastPercent)
	require.NotNil(t, rec.FinishedAt)

	snaps, err := repo.ListSnapshots(ctx, testSeriesID, 0, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.Equal(t, int64(7), snaps[1].Count)
}

// TestStoreSinkBatchesSnapshots groups consecutive observations into one write.
func TestStoreSinkBatchesSnapshots(t *testing.T) {
	t.Parallel()

	repo := &recordingRepo{}
	sink := NewStoreSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageObserve, 1, snapshot(10, 9, 9)),
		newEvent(progress.StageObserve, 2, snapshot(20, 8, 8)),
		newEvent(progress.StageSeriesAbandoned, 2, nil),
	}))

	require.Equal(t, []int{2}, repo.appendSizes)
	require.Equal(t, []store.SeriesStatus{store.SeriesAbandoned}, repo.completed)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &recordingRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{newEvent(progress.StageSeriesStart, 0, nil)})
	require.Error(t, err)

	var nilSink *StoreSink
	require.NoError(t, nilSink.Consume(context.Background(), nil))
}

type recordingRepo struct {
	fail        bool
	appendSizes []int
	completed   []store.SeriesStatus
}

var errRepo = errors.New("repo failure")

func (r *recordingRepo) CreateSeries(context.Context, store.SeriesRecord) error {
	if r.fail {
		return errRepo
	}
	return nil
}

func (r *recordingRepo) AppendSnapshots(_ context.Context, snaps []store.SnapshotRecord) error {
	if r.fail {
		return errRepo
	}
	r.appendSizes = append(r.appendSizes, len(snaps))
	return nil
}

func (r *recordingRepo) CompleteSeries(_ context.Context, _ uuid.UUID, _ time.Time, status store.SeriesStatus) error {
	if r.fail {
		return errRepo
	}
	r.completed = append(r.completed, status)
	return nil
}

func (r *recordingRepo) GetSeries(context.Context, uuid.UUID) (store.SeriesRecord, error) {
	return store.SeriesRecord{}, store.ErrNotFound
}

func (r *recordingRepo) ListSeries(context.Context, *store.SeriesStatus, int, int) ([]store.SeriesRecord, error) {
	return nil, nil
}

func (r *recordingRepo) ListSnapshots(context.Context, uuid.UUID, int, int) ([]store.SnapshotRecord, error) {
	return nil, nil
}
