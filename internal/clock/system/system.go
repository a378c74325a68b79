// Package system provides a real clock implementation.
package system

import "time"

// Clock reads wall-clock time from the operating system.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// NowMillis returns the current time in milliseconds since the Unix epoch. It
// satisfies estimator.TimeSource.
func (c Clock) NowMillis() int64 {
	return c.Now().UnixMilli()
}
