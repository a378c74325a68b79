package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progress-eta/internal/progress"
)

const (
	resultDone      = "done"
	resultAbandoned = "abandoned"
)

// PrometheusSink exports series progress via Prometheus. Per-series gauges are
// keyed by series_id and removed once the series reaches a terminal stage, so
// cardinality is bounded by the number of live series.
type PrometheusSink struct {
	seriesStarted  prometheus.Counter
	seriesFinished *prometheus.CounterVec
	seriesRunning  prometheus.Gauge
	seriesDuration *prometheus.HistogramVec
	observations   prometheus.Counter

	percent *prometheus.GaugeVec
	eta     *prometheus.GaugeVec

	tracker *seriesTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		seriesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_series_started_total",
			Help: "Total series that have started.",
		}),
		seriesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_series_finished_total",
			Help: "Total series finished partitioned by result.",
		}, []string{"result"}),
		seriesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_series_running",
			Help: "Current number of running series.",
		}),
		seriesDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_series_duration_seconds",
			Help:    "Wall time from start to a terminal stage.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_observations_total",
			Help: "Observations recorded across all series.",
		}),
		percent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "progress_series_percent_complete",
			Help: "Latest percent complete per running series.",
		}, []string{"series_id"}),
		eta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "progress_series_eta_seconds",
			Help: "Latest time-to-complete estimate per running series.",
		}, []string{"series_id", "kind"}),
		tracker: newSeriesTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.seriesStarted,
		s.seriesFinished,
		s.seriesRunning,
		s.seriesDuration,
		s.observations,
		s.percent,
		s.eta,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	id := evt.SeriesID.String()
	switch evt.Stage {
	case progress.StageSeriesStart:
		s.seriesStarted.Inc()
		if s.tracker.start(evt.SeriesID) {
			s.seriesRunning.Inc()
		}
	case progress.StageObserve:
		s.observations.Inc()
		s.setSnapshot(id, evt)
	case progress.StageSeriesDone:
		s.observations.Inc()
		s.finish(id, evt, resultDone)
	case progress.StageSeriesAbandoned:
		s.finish(id, evt, resultAbandoned)
	}
}

func (s *PrometheusSink) setSnapshot(id string, evt progress.Event) {
	if evt.Snapshot == nil {
		return
	}
	s.percent.WithLabelValues(id).Set(float64(evt.Snapshot.PercentComplete))
	if v := evt.Snapshot.TimeToComplete; v != nil {
		s.eta.WithLabelValues(id, "instant").Set(*v)
	}
	if v := evt.Snapshot.TimeToCompleteAveraged; v != nil {
		s.eta.WithLabelValues(id, "averaged").Set(*v)
	}
}

// finish drops the per-series labels. Counters only move for series this
// sink saw start, so a repeated terminal event is counted once.
func (s *PrometheusSink) finish(id string, evt progress.Event, result string) {
	s.percent.DeleteLabelValues(id)
	s.eta.DeletePartialMatch(prometheus.Labels{"series_id": id})
	if !s.tracker.complete(evt.SeriesID) {
		return
	}
	s.seriesRunning.Dec()
	s.seriesFinished.WithLabelValues(result).Inc()
	if evt.Elapsed > 0 {
		s.seriesDuration.WithLabelValues(result).Observe(evt.Elapsed.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type seriesTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newSeriesTracker() *seriesTracker {
	return &seriesTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *seriesTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *seriesTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
