// Package ratelimit throttles observation ingest with a token bucket per key.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

const defaultMaxKeys = 10000

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained rate per key. Zero or less disables limiting.
	RPS float64
	// Burst is how many calls a key may make back to back.
	Burst int
	// MaxKeys bounds memory; once reached, every bucket is reset.
	MaxKeys int
}

// Limiter manages per-key rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	maxKeys  int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    r,
		burst:    burst,
		maxKeys:  maxKeys,
	}
}

// Allow reports whether key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) >= l.maxKeys {
			clear(l.limiters)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
