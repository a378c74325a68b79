package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-eta/internal/progress"
	"github.com/JakeFAU/progress-eta/internal/publisher"
	"github.com/JakeFAU/progress-eta/internal/publisher/memory"
)

// TestPublishSinkSendsLifecycleEvents skips observations unless enabled.
func TestPublishSinkSendsLifecycleEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, PublishConfig{Topic: "progress"}, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageSeriesStart, 0, nil),
		newEvent(progress.StageObserve, 5, snapshot(50, 9, 9)),
		newEvent(progress.StageSeriesDone, 10, snapshot(100, 0, 0)),
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "progress", msgs[0].Topic)
	require.Equal(t, "SERIES_START", msgs[0].Attributes["stage"])
	require.Equal(t, testSeriesID.String(), msgs[1].Attributes["series_id"])

	done, ok := msgs[1].Payload.(Notification)
	require.True(t, ok)
	require.Equal(t, 100, done.PercentComplete)
	require.NotNil(t, done.TimeToComplete)
	require.Equal(t, int64(100000), done.ElapsedMilliseconds)
}

// TestPublishSinkIncludesObservations forwards every event when enabled.
func TestPublishSinkIncludesObservations(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, PublishConfig{Observations: true}, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageObserve, 5, snapshot(50, 9, 9)),
	}))
	require.Len(t, pub.Messages(), 1)
}

// TestPublishSinkRetries succeeds once the publisher recovers.
func TestPublishSinkRetries(t *testing.T) {
	t.Parallel()

	pub := &flakyPublisher{failures: 2}
	sink := NewPublishSink(pub, PublishConfig{Attempts: 3, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageSeriesStart, 0, nil),
	}))
	require.Equal(t, 3, pub.calls)
}

// TestPublishSinkReportsFailures joins errors after exhausting attempts.
func TestPublishSinkReportsFailures(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("broker down"))
	sink := NewPublishSink(pub, PublishConfig{Attempts: 2, RetryDelay: time.Millisecond}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageSeriesStart, 0, nil),
		newEvent(progress.StageSeriesAbandoned, 0, nil),
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "SERIES_ABANDONED")
}

// TestNewNotificationWithoutSnapshot leaves estimates null.
func TestNewNotificationWithoutSnapshot(t *testing.T) {
	t.Parallel()

	n := NewNotification(newEvent(progress.StageSeriesStart, 0, nil))
	require.Equal(t, "SERIES_START", n.Stage)
	require.Nil(t, n.TimeToComplete)
	require.Zero(t, n.PercentComplete)
	require.Equal(t, "2023-11-14T22:13:20Z", n.OccurredAt)
}

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(context.Context, publisher.Message) (string, error) {
	p.calls++
	if p.calls <= p.failures {
		return "", errors.New("transient")
	}
	return "ok", nil
}
