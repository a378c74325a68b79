package sinks

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-eta/internal/estimator"
	"github.com/JakeFAU/progress-eta/internal/progress"
)

var (
	testSeriesID = uuid.MustParse("0190f5a6-7b1c-7000-8000-000000000001")
	testStart    = time.Unix(1700000000, 0).UTC()
)

func newEvent(stage progress.Stage, count int64, snap *estimator.Snapshot) progress.Event {
	ts := testStart.Add(time.Duration(count) * time.Second)
	if snap != nil {
		ts = snap.CalculatedAt
	}
	return progress.Event{
		SeriesID: testSeriesID,
		TS:       ts,
		Stage:    stage,
		Label:    "copy",
		Total:    10,
		Count:    count,
		Snapshot: snap,
		Elapsed:  ts.Sub(testStart),
	}
}

func snapshot(percent int, eta, avg float64) *estimator.Snapshot {
	return &estimator.Snapshot{
		PercentComplete:        percent,
		CalculatedAt:           testStart.Add(time.Duration(percent) * time.Second),
		TimeToComplete:         &eta,
		TimeToCompleteAveraged: &avg,
	}
}
