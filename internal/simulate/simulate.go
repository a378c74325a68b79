// Package simulate drives synthetic progress series against deterministic
// clocks so the estimator's smoothing can be inspected without real work.
package simulate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/clock/fake"
	"github.com/JakeFAU/progress-eta/internal/estimator"
)

// MaxObservations bounds how many observations one series may make.
const MaxObservations = 1_000_000

// Config shapes a simulation run.
type Config struct {
	// Series is how many independent series run.
	Series int
	// Total is the completion count of every series.
	Total int64
	// Step is how much the count advances per observation.
	Step int64
	// Interval is the base spacing between observations. Each series cycles
	// through 1x, 2x and 3x this interval so its pace is uneven.
	Interval time.Duration
	// Concurrency bounds how many series run at once.
	Concurrency int
	// Precision is the number of decimals ETAs are rounded to.
	Precision int
	// Start is the fake clock's first reading.
	Start time.Time
}

// Result is the snapshot trail of one simulated series.
type Result struct {
	Index     int
	Label     string
	Snapshots []estimator.Snapshot
}

// Final returns the last snapshot of the series.
func (r Result) Final() estimator.Snapshot {
	if len(r.Snapshots) == 0 {
		return estimator.Snapshot{}
	}
	return r.Snapshots[len(r.Snapshots)-1]
}

func (c Config) validate() error {
	if c.Series <= 0 {
		return fmt.Errorf("series must be > 0")
	}
	if c.Total <= 0 {
		return fmt.Errorf("total must be > 0")
	}
	if c.Step <= 0 {
		return fmt.Errorf("step must be > 0")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if c.steps() >= MaxObservations {
		return fmt.Errorf("total/step must stay below %d observations", MaxObservations)
	}
	return nil
}

// steps is how many advances take a series from zero to Total.
func (c Config) steps() int64 {
	n := c.Total / c.Step
	if c.Total%c.Step != 0 {
		n++
	}
	return n
}

// Run simulates every series and returns their trails ordered by index.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) ([]Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.Series
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Unix(0, 0).UTC()
	}

	p := pool.NewWithResults[Result]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(cfg.Concurrency)
	for i := 0; i < cfg.Series; i++ {
		p.Go(func(ctx context.Context) (Result, error) {
			return runSeries(ctx, cfg, i, logger)
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results, nil
}

func runSeries(ctx context.Context, cfg Config, index int, logger *zap.Logger) (Result, error) {
	label := fmt.Sprintf("series-%d", index)
	steps := int(cfg.steps())
	// first observation is at zero, then one offset per step
	offsets := make([]time.Duration, 0, steps+1)
	offsets = append(offsets, 0)
	for k := 0; k < steps; k++ {
		offsets = append(offsets, cfg.Interval*time.Duration(1+(k+index)%3))
	}
	clock := fake.NewSequence(cfg.Start, offsets...)

	est := estimator.New(estimator.WithTimeSource(clock.NowMillis), estimator.WithPrecision(cfg.Precision))
	series, err := est.Configure(cfg.Total)
	if err != nil {
		return Result{}, err
	}
	log := logger.With(zap.String("label", label))

	res := Result{Index: index, Label: label, Snapshots: make([]estimator.Snapshot, 0, steps+1)}
	for count := int64(0); ; count = advance(count, cfg.Step, cfg.Total) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		snap := series.Observe(count)
		res.Snapshots = append(res.Snapshots, snap)
		log.Info("snapshot",
			zap.Int64("count", series.Count()),
			zap.Int("percent", snap.PercentComplete),
			zap.Time("at", snap.CalculatedAt),
			zap.Float64p("eta_s", snap.TimeToComplete),
			zap.Float64p("eta_avg_s", snap.TimeToCompleteAveraged),
		)
		if series.Count() >= cfg.Total {
			break
		}
	}
	return res, nil
}

// advance adds step to count without passing total or overflowing.
func advance(count, step, total int64) int64 {
	if count > total-step {
		return total
	}
	return count + step
}
