// Package fake provides deterministic clocks for tests and simulations.
package fake

import (
	"sync"
	"time"
)

// Sequence replays a fixed list of timestamps. Offsets are cumulative: each
// one is added to the previous timestamp, the first to the base. Once the list
// is exhausted the last timestamp repeats.
type Sequence struct {
	mu     sync.Mutex
	stamps []int64
	next   int
}

// NewSequence builds a Sequence starting at base.
func NewSequence(base time.Time, offsets ...time.Duration) *Sequence {
	stamps := make([]int64, 0, len(offsets))
	cur := base.UnixMilli()
	for _, off := range offsets {
		cur += off.Milliseconds()
		stamps = append(stamps, cur)
	}
	if len(stamps) == 0 {
		stamps = append(stamps, cur)
	}
	return &Sequence{stamps: stamps}
}

// NowMillis returns the next timestamp in milliseconds.
func (s *Sequence) NowMillis() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.stamps[s.next]
	if s.next < len(s.stamps)-1 {
		s.next++
	}
	return v
}

// Now returns the next timestamp as a UTC time.
func (s *Sequence) Now() time.Time {
	return time.UnixMilli(s.NowMillis()).UTC()
}

// Ticker advances by a fixed step on every reading.
type Ticker struct {
	mu   sync.Mutex
	cur  int64
	step int64
}

// NewTicker returns a Ticker whose first reading is start.
func NewTicker(start time.Time, step time.Duration) *Ticker {
	return &Ticker{cur: start.UnixMilli(), step: step.Milliseconds()}
}

// NowMillis returns the current reading and advances by one step.
func (t *Ticker) NowMillis() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.cur
	t.cur += t.step
	return v
}
