package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/progress"
	"github.com/JakeFAU/progress-eta/internal/store"
)

// StoreSink persists series lifecycle and snapshots via a store.SeriesRepository.
// Consecutive observations in a batch are written with a single AppendSnapshots call.
type StoreSink struct {
	repo   store.SeriesRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SeriesRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes the batch in event order. It respects ctx deadlines and
// returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var pending []store.SnapshotRecord
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.repo.AppendSnapshots(ctx, pending); err != nil {
			return fmt.Errorf("append snapshots: %w", err)
		}
		pending = nil
		return nil
	}

	for _, evt := range batch {
		if evt.Snapshot != nil {
			pending = append(pending, snapshotRecord(evt))
		}
		switch evt.Stage {
		case progress.StageSeriesStart:
			if err := flush(); err != nil {
				return err
			}
			if err := s.repo.CreateSeries(ctx, store.SeriesRecord{
				ID:        evt.SeriesID,
				Label:     evt.Label,
				Total:     evt.Total,
				StartedAt: evt.TS,
			}); err != nil {
				return fmt.Errorf("create series: %w", err)
			}
		case progress.StageSeriesDone, progress.StageSeriesAbandoned:
			if err := flush(); err != nil {
				return err
			}
			status := store.SeriesDone
			if evt.Stage == progress.StageSeriesAbandoned {
				status = store.SeriesAbandoned
			}
			if err := s.repo.CompleteSeries(ctx, evt.SeriesID, evt.TS, status); err != nil {
				return fmt.Errorf("complete series: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	s.logger.Debug("persisted progress batch", zap.Int("events", len(batch)))
	return nil
}

func snapshotRecord(evt progress.Event) store.SnapshotRecord {
	return store.SnapshotRecord{
		SeriesID:               evt.SeriesID,
		Count:                  evt.Count,
		Percent:                evt.Snapshot.PercentComplete,
		CalculatedAt:           evt.Snapshot.CalculatedAt,
		TimeToComplete:         evt.Snapshot.TimeToComplete,
		TimeToCompleteAveraged: evt.Snapshot.TimeToCompleteAveraged,
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
