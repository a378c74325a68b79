package api

import (
	"time"

	"github.com/JakeFAU/progress-eta/internal/estimator"
	"github.com/JakeFAU/progress-eta/internal/store"
	"github.com/JakeFAU/progress-eta/internal/tracker"
)

type startSeriesRequest struct {
	Total int64  `json:"total"`
	Label string `json:"label"`
}

type observeRequest struct {
	Count *int64 `json:"count"`
}

// snapshotDTO keeps the estimate fields present as null when not yet estimable.
type snapshotDTO struct {
	PercentComplete   int       `json:"percent_complete"`
	CalculatedAt      time.Time `json:"calculated_at"`
	TimeToComplete    *float64  `json:"time_to_complete_s"`
	TimeToCompleteAvg *float64  `json:"time_to_complete_avg_s"`
}

type seriesDTO struct {
	ID           string       `json:"id"`
	Label        string       `json:"label,omitempty"`
	Total        int64        `json:"total"`
	Count        int64        `json:"count"`
	Status       string       `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
	Observations int64        `json:"observations"`
	Last         *snapshotDTO `json:"last_snapshot,omitempty"`
}

type observationDTO struct {
	SeriesID string `json:"series_id"`
	Status   string `json:"status"`
	Count    int64  `json:"count"`
	snapshotDTO
}

type historySeriesDTO struct {
	ID          string     `json:"id"`
	Label       string     `json:"label,omitempty"`
	Total       int64      `json:"total"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	LastCount   int64      `json:"last_count"`
	LastPercent int        `json:"last_percent"`
}

type historySnapshotDTO struct {
	Count int64 `json:"count"`
	snapshotDTO
}

func toSnapshotDTO(s estimator.Snapshot) snapshotDTO {
	return snapshotDTO{
		PercentComplete:   s.PercentComplete,
		CalculatedAt:      s.CalculatedAt,
		TimeToComplete:    s.TimeToComplete,
		TimeToCompleteAvg: s.TimeToCompleteAveraged,
	}
}

func toSeriesDTO(info tracker.Info) seriesDTO {
	dto := seriesDTO{
		ID:           info.ID.String(),
		Label:        info.Label,
		Total:        info.Total,
		Count:        info.Count,
		Status:       string(info.Status),
		StartedAt:    info.StartedAt,
		FinishedAt:   info.FinishedAt,
		Observations: info.Observations,
	}
	if info.Last != nil {
		last := toSnapshotDTO(*info.Last)
		dto.Last = &last
	}
	return dto
}

func toSeriesDTOs(in []tracker.Info) []seriesDTO {
	out := make([]seriesDTO, 0, len(in))
	for _, info := range in {
		out = append(out, toSeriesDTO(info))
	}
	return out
}

func toObservationDTO(obs tracker.Observation) observationDTO {
	return observationDTO{
		SeriesID:    obs.Series.ID.String(),
		Status:      string(obs.Series.Status),
		Count:       obs.Series.Count,
		snapshotDTO: toSnapshotDTO(obs.Snapshot),
	}
}

func toHistorySeriesDTO(rec store.SeriesRecord) historySeriesDTO {
	return historySeriesDTO{
		ID:          rec.ID.String(),
		Label:       rec.Label,
		Total:       rec.Total,
		Status:      string(rec.Status),
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		LastCount:   rec.LastCount,
		LastPercent: rec.LastPercent,
	}
}

func toHistorySeriesDTOs(in []store.SeriesRecord) []historySeriesDTO {
	out := make([]historySeriesDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toHistorySeriesDTO(rec))
	}
	return out
}

func toHistorySnapshotDTOs(in []store.SnapshotRecord) []historySnapshotDTO {
	out := make([]historySnapshotDTO, 0, len(in))
	for _, snap := range in {
		out = append(out, historySnapshotDTO{
			Count: snap.Count,
			snapshotDTO: snapshotDTO{
				PercentComplete:   snap.Percent,
				CalculatedAt:      snap.CalculatedAt,
				TimeToComplete:    snap.TimeToComplete,
				TimeToCompleteAvg: snap.TimeToCompleteAveraged,
			},
		})
	}
	return out
}
