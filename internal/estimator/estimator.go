// Package estimator turns irregularly spaced (count, timestamp) samples into
// percent-complete and time-to-complete estimates for a counted process.
package estimator

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"
)

// ErrInvalidTotal is returned by Configure when the total is not positive.
var ErrInvalidTotal = errors.New("total must be > 0")

const defaultPrecision = 2

// TimeSource returns the current time in milliseconds since the Unix epoch.
type TimeSource func() int64

// ObserveFunc records a raw count and returns the resulting snapshot.
type ObserveFunc func(rawCount int64) Snapshot

// Snapshot is the immutable result of one observation.
type Snapshot struct {
	// PercentComplete is floor(100*count/total), always within [0,100].
	PercentComplete int
	// CalculatedAt is the time source value read by the observation.
	CalculatedAt time.Time
	// TimeToComplete is the estimate in seconds using the velocity since the
	// previous observation. Nil until two observations exist.
	TimeToComplete *float64
	// TimeToCompleteAveraged uses the running average velocity instead.
	TimeToCompleteAveraged *float64
}

// Estimable reports whether the snapshot carries a time estimate.
func (s Snapshot) Estimable() bool {
	return s.TimeToComplete != nil
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithTimeSource overrides the clock used by every series the Estimator configures.
func WithTimeSource(now TimeSource) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPrecision sets how many decimal places time estimates are rounded to.
func WithPrecision(places int) Option {
	return func(e *Estimator) {
		if places >= 0 {
			e.precision = places
		}
	}
}

// Estimator configures independent progress series that share a time source.
type Estimator struct {
	now       TimeSource
	precision int
}

// New returns an Estimator backed by the system clock unless overridden.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		now:       systemMillis,
		precision: defaultPrecision,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure starts a fresh series tracking total. Each call returns a new,
// independent Series; no velocity history carries over between calls.
func (e *Estimator) Configure(total int64) (*Series, error) {
	if total <= 0 {
		return nil, fmt.Errorf("configure total %d: %w", total, ErrInvalidTotal)
	}
	return &Series{
		total:     total,
		now:       e.now,
		precision: e.precision,
	}, nil
}

// Series holds the velocity state for one tracked total. A Series must be
// driven by a single caller; it is not safe for concurrent use.
type Series struct {
	total     int64
	now       TimeSource
	precision int

	count       int64
	hasPrev     bool
	prevCount   int64
	prevMillis  int64
	hasVelocity bool
	velocity    float64
	hasAverage  bool
	average     float64
}

// Total returns the count that represents 100% completion.
func (s *Series) Total() int64 {
	return s.total
}

// Count returns the last clamped count observed.
func (s *Series) Count() int64 {
	return s.count
}

// Func returns Observe bound to this series.
func (s *Series) Func() ObserveFunc {
	return s.Observe
}

// Observe records rawCount at the current time. Counts outside [0,total] are
// clamped. Consecutive observations with the same count leave the velocity
// state untouched.
func (s *Series) Observe(rawCount int64) Snapshot {
	nowMillis := s.now()
	count := clamp(rawCount, s.total)
	s.count = count

	percent := percentOf(count, s.total)

	if s.hasPrev {
		s.updateVelocity(nowMillis, count)
	}

	left := float64(s.total - count)
	snap := Snapshot{
		PercentComplete: percent,
		CalculatedAt:    time.UnixMilli(nowMillis).UTC(),
	}
	if s.hasVelocity {
		snap.TimeToComplete = ptr(roundTo(left*s.velocity, s.precision))
	}
	if s.hasAverage {
		snap.TimeToCompleteAveraged = ptr(roundTo(left*s.average, s.precision))
	}

	s.hasPrev = true
	s.prevCount = count
	s.prevMillis = nowMillis
	return snap
}

func (s *Series) updateVelocity(nowMillis, count int64) {
	delta := count - s.prevCount
	if delta == 0 {
		return
	}
	elapsed := float64(nowMillis - s.prevMillis)
	s.velocity = elapsed / float64(delta) / 1000
	s.hasVelocity = true
	if s.hasAverage {
		s.average = (s.velocity + s.average) / 2
	} else {
		s.average = s.velocity
		s.hasAverage = true
	}
}

func clamp(raw, total int64) int64 {
	switch {
	case raw < 0:
		return 0
	case raw > total:
		return total
	default:
		return raw
	}
}

// percentOf computes floor(100*count/total) without overflowing for counts
// near the int64 limit. It requires 0 <= count <= total.
func percentOf(count, total int64) int {
	hi, lo := bits.Mul64(uint64(count), 100)
	q, _ := bits.Div64(hi, lo, uint64(total))
	return int(q)
}

// roundTo rounds half away from zero to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

func ptr(v float64) *float64 {
	return &v
}

func systemMillis() int64 {
	return time.Now().UnixMilli()
}
