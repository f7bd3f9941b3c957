package ingest

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests per host. Sources are independent sites,
// so each host gets its own limiter; concurrent workers hitting the same
// host queue up behind it.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	delay    time.Duration
}

// NewRateLimiter creates a rate limiter with the given default per-host delay.
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    defaultDelay,
	}
}

// Wait blocks until a request to the given URL's host may proceed.
func (r *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return r.hostLimiter(parsed.Host).Wait(ctx)
}

// SetHostDelay overrides the delay for one host, e.g. from a source's
// configured rate_limit_delay.
func (r *RateLimiter) SetHostDelay(host string, delay time.Duration) {
	if delay <= 0 {
		delay = r.delay
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[host] = rate.NewLimiter(rate.Every(delay), 1)
}

func (r *RateLimiter) hostLimiter(host string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[host]
	r.mu.RUnlock()
	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another worker may have won the race
	if limiter, exists := r.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(r.delay), 1)
	r.limiters[host] = limiter
	return limiter
}
