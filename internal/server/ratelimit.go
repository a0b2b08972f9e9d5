package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces a fixed-window per-minute request cap per client.
// Scans are expensive; a funnel user has no legitimate reason to submit
// dozens of photos a minute.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	windows   map[string]*clientWindow
}

type clientWindow struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a limiter allowing perMinute requests per client.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		windows:   make(map[string]*clientWindow),
	}
}

// RateLimitError reports a rejected request and when to retry.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d/min, retry after: %v)", e.Limit, e.RetryAfter)
}

// Allow records a request for clientID and reports whether it is within
// the limit.
func (rl *RateLimiter) Allow(clientID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[clientID]
	if !ok || now.Sub(w.windowStart) >= time.Minute {
		rl.windows[clientID] = &clientWindow{windowStart: now, count: 1}
		return nil
	}
	if w.count >= rl.perMinute {
		return &RateLimitError{
			Limit:      rl.perMinute,
			RetryAfter: time.Minute - now.Sub(w.windowStart),
		}
	}
	w.count++
	return nil
}
