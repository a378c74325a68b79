package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/progress"
)

// LogSink emits one structured log line per event. It is useful during
// development or when no durable store is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("series_id", evt.SeriesID.String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("label", evt.Label),
			zap.Int64("total", evt.Total),
			zap.Int64("count", evt.Count),
			zap.Duration("elapsed", evt.Elapsed),
		}
		if evt.Snapshot != nil {
			fields = append(fields,
				zap.Int("percent", evt.Snapshot.PercentComplete),
				zap.Float64p("eta_s", evt.Snapshot.TimeToComplete),
				zap.Float64p("eta_avg_s", evt.Snapshot.TimeToCompleteAveraged),
			)
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
