package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/progress"
	"github.com/JakeFAU/progress-eta/internal/publisher"
)

// Notification is the JSON body published for a progress event.
type Notification struct {
	SeriesID            string   `json:"series_id"`
	Stage               string   `json:"stage"`
	Label               string   `json:"label,omitempty"`
	Total               int64    `json:"total"`
	Count               int64    `json:"count"`
	PercentComplete     int      `json:"percent_complete"`
	TimeToComplete      *float64 `json:"time_to_complete_s"`
	TimeToCompleteAvg   *float64 `json:"time_to_complete_avg_s"`
	OccurredAt          string   `json:"occurred_at"`
	ElapsedMilliseconds int64    `json:"elapsed_ms"`
}

// PublishConfig tunes the PublishSink.
type PublishConfig struct {
	// Topic is recorded on every message.
	Topic string
	// Observations also publishes SERIES_OBSERVE events; lifecycle events are always sent.
	Observations bool
	// Attempts bounds publish retries per message. Zero means one attempt.
	Attempts uint
	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
}

// PublishSink forwards progress events to a publisher.Publisher.
type PublishSink struct {
	pub    publisher.Publisher
	cfg    PublishConfig
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink.
func NewPublishSink(pub publisher.Publisher, cfg PublishConfig, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &PublishSink{pub: pub, cfg: cfg, logger: logger}
}

// Consume publishes each selected event, retrying transient failures. Every
// event is attempted; the joined errors are returned.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage == progress.StageObserve && !s.cfg.Observations {
			continue
		}
		msg := publisher.Message{
			Topic: s.cfg.Topic,
			Attributes: map[string]string{
				"series_id": evt.SeriesID.String(),
				"stage":     string(evt.Stage),
			},
			Payload: NewNotification(evt),
		}
		err := retry.Do(
			func() error {
				id, err := s.pub.Publish(ctx, msg)
				if err == nil {
					s.logger.Debug("published progress event", zap.String("message_id", id))
				}
				return err
			},
			retry.Context(ctx),
			retry.Attempts(s.cfg.Attempts),
			retry.Delay(s.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s for %s: %w", evt.Stage, evt.SeriesID, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

// NewNotification converts an event into its published representation.
func NewNotification(evt progress.Event) Notification {
	n := Notification{
		SeriesID:            evt.SeriesID.String(),
		Stage:               string(evt.Stage),
		Label:               evt.Label,
		Total:               evt.Total,
		Count:               evt.Count,
		OccurredAt:          evt.TS.UTC().Format(time.RFC3339Nano),
		ElapsedMilliseconds: evt.Elapsed.Milliseconds(),
	}
	if evt.Snapshot != nil {
		n.PercentComplete = evt.Snapshot.PercentComplete
		n.TimeToComplete = evt.Snapshot.TimeToComplete
		n.TimeToCompleteAvg = evt.Snapshot.TimeToCompleteAveraged
	}
	return n
}
