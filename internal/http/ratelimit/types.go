package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config holds outbound pacing and retry settings.
type Config struct {
	RequestsPerSecond float64       `json:"requestsPerSecond"`
	Burst             int           `json:"burst"`
	MaxRetries        int           `json:"maxRetries"`
	InitialBackoff    time.Duration `json:"initialBackoff"`
	MaxBackoff        time.Duration `json:"maxBackoff"`
}

// DefaultConfig returns the default pacing configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		Burst:             1,
		MaxRetries:        2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
	}
}

// RateLimiter paces requests to remote feed hosts.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter; a non-positive rate disables pacing.
func NewRateLimiter(config Config) *RateLimiter {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
