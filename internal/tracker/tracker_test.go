package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-eta/internal/clock/fake"
	"github.com/JakeFAU/progress-eta/internal/estimator"
	idgen "github.com/JakeFAU/progress-eta/internal/id/uuid"
	"github.com/JakeFAU/progress-eta/internal/progress"
)

var testBase = time.Unix(1700000000, 0).UTC()

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func newTracker(cfg Config, clock Clock) (*Tracker, *recordingEmitter) {
	em := &recordingEmitter{}
	return New(cfg, clock, idgen.New(), em, nil), em
}

// TestTrackerLifecycle runs a series to completion and closes it.
func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	// start and first observation share a timestamp
	clock := fake.NewSequence(testBase, 0, 0, time.Second, 8*time.Second, time.Second)
	tr, em := newTracker(Config{Precision: 2, RetainFinished: 4}, clock)
	ctx := context.Background()

	info, err := tr.Start(ctx, StartRequest{Total: 10, Label: "copy"})
	require.NoError(t, err)
	require.Equal(t, StatusRunning, info.Status)
	require.Equal(t, testBase, info.StartedAt)
	require.Nil(t, info.Last)

	obs, err := tr.Observe(ctx, info.ID, 0)
	require.NoError(t, err)
	require.Nil(t, obs.Snapshot.TimeToComplete)

	obs, err = tr.Observe(ctx, info.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 10, obs.Snapshot.PercentComplete)
	require.Equal(t, 9.0, *obs.Snapshot.TimeToComplete)

	obs, err = tr.Observe(ctx, info.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 50, obs.Snapshot.PercentComplete)
	require.Equal(t, 10.0, *obs.Snapshot.TimeToComplete)
	require.Equal(t, 7.5, *obs.Snapshot.TimeToCompleteAveraged)

	obs, err = tr.Observe(ctx, info.ID, 12)
	require.NoError(t, err)
	require.Equal(t, 100, obs.Snapshot.PercentComplete)
	require.Equal(t, StatusDone, obs.Series.Status)
	require.Equal(t, int64(10), obs.Series.Count)
	require.NotNil(t, obs.Series.FinishedAt)

	_, err = tr.Observe(ctx, info.ID, 10)
	require.True(t, errors.Is(err, ErrSeriesClosed))
	_, err = tr.Abandon(ctx, info.ID)
	require.True(t, errors.Is(err, ErrSeriesClosed))

	require.Equal(t, []progress.Stage{
		progress.StageSeriesStart,
		progress.StageObserve,
		progress.StageObserve,
		progress.StageObserve,
		progress.StageSeriesDone,
	}, em.stages())
	for _, evt := range em.events {
		require.NoError(t, evt.Validate())
	}
	require.Equal(t, 10*time.Second, em.events[4].Elapsed)
	require.Zero(t, tr.Running())

	got, err := tr.Get(info.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), got.Observations)
	require.Equal(t, 100, got.Last.PercentComplete)
}

// TestTrackerRejectsInvalidTotal surfaces the estimator error.
func TestTrackerRejectsInvalidTotal(t *testing.T) {
	t.Parallel()

	tr, em := newTracker(Config{}, fake.NewSequence(testBase))
	_, err := tr.Start(context.Background(), StartRequest{Total: 0})
	require.True(t, errors.Is(err, estimator.ErrInvalidTotal))
	require.Empty(t, em.stages())
}

// TestTrackerUnknownSeries maps missing IDs to ErrSeriesNotFound.
func TestTrackerUnknownSeries(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(Config{}, fake.NewSequence(testBase))
	id, err := idgen.New().NewRawID()
	require.NoError(t, err)

	_, err = tr.Observe(context.Background(), id, 1)
	require.True(t, errors.Is(err, ErrSeriesNotFound))
	_, err = tr.Abandon(context.Background(), id)
	require.True(t, errors.Is(err, ErrSeriesNotFound))
	_, err = tr.Get(id)
	require.True(t, errors.Is(err, ErrSeriesNotFound))
}

// TestTrackerMaxSeries refuses new series until one finishes.
func TestTrackerMaxSeries(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(Config{MaxSeries: 1, RetainFinished: 1}, fake.NewTicker(testBase, time.Second))
	ctx := context.Background()

	first, err := tr.Start(ctx, StartRequest{Total: 5})
	require.NoError(t, err)
	_, err = tr.Start(ctx, StartRequest{Total: 5})
	require.True(t, errors.Is(err, ErrTooManySeries))

	abandoned, err := tr.Abandon(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAbandoned, abandoned.Status)
	// the rejected start still read the clock
	require.Equal(t, 2*time.Second, abandoned.FinishedAt.Sub(abandoned.StartedAt))

	_, err = tr.Start(ctx, StartRequest{Total: 5})
	require.NoError(t, err)
	require.Equal(t, 1, tr.Running())
}

// TestTrackerEvictsFinishedSeries keeps only the newest finished series.
func TestTrackerEvictsFinishedSeries(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(Config{RetainFinished: 1}, fake.NewTicker(testBase, time.Second))
	ctx := context.Background()

	a, err := tr.Start(ctx, StartRequest{Total: 1})
	require.NoError(t, err)
	b, err := tr.Start(ctx, StartRequest{Total: 1})
	require.NoError(t, err)
	live, err := tr.Start(ctx, StartRequest{Total: 1})
	require.NoError(t, err)

	_, err = tr.Observe(ctx, a.ID, 1)
	require.NoError(t, err)
	_, err = tr.Observe(ctx, b.ID, 1)
	require.NoError(t, err)

	_, err = tr.Get(a.ID)
	require.True(t, errors.Is(err, ErrSeriesNotFound))
	_, err = tr.Get(b.ID)
	require.NoError(t, err)
	_, err = tr.Get(live.ID)
	require.NoError(t, err)
}

// TestTrackerList orders newest first and filters by status.
func TestTrackerList(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(Config{RetainFinished: 10}, fake.NewTicker(testBase, time.Second))
	ctx := context.Background()

	older, err := tr.Start(ctx, StartRequest{Total: 3, Label: "older"})
	require.NoError(t, err)
	newer, err := tr.Start(ctx, StartRequest{Total: 3, Label: "newer"})
	require.NoError(t, err)
	_, err = tr.Abandon(ctx, older.ID)
	require.NoError(t, err)

	all := tr.List(nil)
	require.Len(t, all, 2)
	require.Equal(t, newer.ID, all[0].ID)

	abandoned := StatusAbandoned
	only := tr.List(&abandoned)
	require.Len(t, only, 1)
	require.Equal(t, "older", only[0].Label)
}

// TestTrackerConcurrentObservations serializes observations per series.
func TestTrackerConcurrentObservations(t *testing.T) {
	t.Parallel()

	tr, em := newTracker(Config{}, fake.NewTicker(testBase, 10*time.Millisecond))
	ctx := context.Background()
	info, err := tr.Start(ctx, StartRequest{Total: 1000})
	require.NoError(t, err)

	var wg conc.WaitGroup
	for w := range 8 {
		wg.Go(func() {
			for i := range 50 {
				_, err := tr.Observe(ctx, info.ID, int64(w*50+i))
				assert.NoError(t, err)
			}
		})
	}
	wg.Wait()

	got, err := tr.Get(info.ID)
	require.NoError(t, err)
	require.Equal(t, int64(400), got.Observations)
	require.Len(t, em.stages(), 401)
}

// TestTrackerHonorsContext fails fast on a cancelled context.
func TestTrackerHonorsContext(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(Config{}, fake.NewSequence(testBase))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Start(ctx, StartRequest{Total: 1})
	require.ErrorIs(t, err, context.Canceled)
}

// TestParseStatus accepts known names only.
func TestParseStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseStatus("done")
	require.NoError(t, err)
	require.Equal(t, StatusDone, s)
	_, err = ParseStatus("DONE")
	require.Error(t, err)
}
