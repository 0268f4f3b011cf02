package translator

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/toonrelay/pipeline/internal/logger"
)

// DefaultRateLimit is the QPS used when config supplies none.
const DefaultRateLimit = 10

// RateLimiter throttles outgoing translate calls to a single backend.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter creates a limiter with the given QPS (and matching burst).
func NewRateLimiter(qps int) *RateLimiter {
	if qps <= 0 {
		qps = DefaultRateLimit
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(qps), qps)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.RLock()
	limiter := r.limiter
	r.mu.RUnlock()
	return limiter.Wait(ctx)
}

// SetLimit updates the rate limit at runtime.
func (r *RateLimiter) SetLimit(qps int) {
	if qps <= 0 {
		qps = DefaultRateLimit
	}
	r.mu.Lock()
	r.limiter.SetLimit(rate.Limit(qps))
	r.limiter.SetBurst(qps)
	r.mu.Unlock()
	logger.Info("translate rate limit updated", "module", "translator", "action", "update", "resource", "rate_limit", "result", "ok", "qps", qps)
}

// GetLimit returns the current QPS.
func (r *RateLimiter) GetLimit() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.limiter.Limit())
}
