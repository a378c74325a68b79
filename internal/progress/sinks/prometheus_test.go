package sinks

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-eta/internal/progress"
)

// TestPrometheusSinkTracksLiveSeries sets per-series gauges while running.
func TestPrometheusSinkTracksLiveSeries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	id := testSeriesID.String()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageSeriesStart, 0, nil),
		newEvent(progress.StageObserve, 5, snapshot(50, 9, 12.25)),
	}))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.seriesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.seriesRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.observations))
	require.Equal(t, 50.0, testutil.ToFloat64(sink.percent.WithLabelValues(id)))
	require.Equal(t, 9.0, testutil.ToFloat64(sink.eta.WithLabelValues(id, "instant")))
	require.Equal(t, 12.25, testutil.ToFloat64(sink.eta.WithLabelValues(id, "averaged")))
}

// TestPrometheusSinkDropsFinishedSeries removes per-series labels at a terminal stage.
func TestPrometheusSinkDropsFinishedSeries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		newEvent(progress.StageSeriesStart, 0, nil),
		newEvent(progress.StageObserve, 5, snapshot(50, 9, 9)),
		newEvent(progress.StageSeriesDone, 10, snapshot(100, 0, 0)),
		// a repeated terminal event must not drive the gauge negative
		newEvent(progress.StageSeriesAbandoned, 10, nil),
	}))

	require.Equal(t, 0.0, testutil.ToFloat64(sink.seriesRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.seriesFinished.WithLabelValues(resultDone)))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.seriesFinished.WithLabelValues(resultAbandoned)))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.observations))
	require.Equal(t, 0, testutil.CollectAndCount(sink.percent, "progress_series_percent_complete"))
	require.Equal(t, 0, testutil.CollectAndCount(sink.eta, "progress_series_eta_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.seriesDuration, "progress_series_duration_seconds"))
}

// TestPrometheusSinkRejectsDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
