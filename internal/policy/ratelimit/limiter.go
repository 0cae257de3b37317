// Package ratelimit implements a token bucket rate limiter for per-task report throttling.
package ratelimit

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/progressd/internal/telemetry"
)

// Limiter manages per-task rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[uuid.UUID]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[uuid.UUID]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Allow reports whether the task may record another progress report right
// now. Reports never block on the limiter; a denied report is counted and
// the caller surfaces a retryable error instead.
func (l *Limiter) Allow(taskID uuid.UUID) bool {
	l.mu.Lock()
	limiter, exists := l.limiters[taskID]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[taskID] = limiter
	}
	l.mu.Unlock()

	if limiter.Allow() {
		return true
	}
	telemetry.ObserveReportThrottled()
	return false
}

// Forget drops the limiter state for a task. Call it when the task
// finishes so the map does not grow without bound.
func (l *Limiter) Forget(taskID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, taskID)
}
