package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// IsRetryableStatus checks if an HTTP status code is retryable
// Retryable: 429, 5xx
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// CalculateBackoff returns initialBackoff * 2^attempt capped at MaxBackoff,
// plus up to 25% jitter.
func CalculateBackoff(attempt int, config Config) time.Duration {
	delay := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))
	delay = math.Min(delay, float64(config.MaxBackoff))
	return time.Duration(delay + rand.Float64()*0.25*delay)
}

// CalculateRateLimitBackoff honours a Retry-After header given in seconds and
// otherwise backs off faster than CalculateBackoff (3^attempt).
func CalculateRateLimitBackoff(attempt int, config Config, retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		d := time.Duration(seconds) * time.Second
		if config.MaxBackoff > 0 && d > config.MaxBackoff {
			d = config.MaxBackoff
		}
		return d
	}
	delay := float64(config.InitialBackoff) * math.Pow(3, float64(attempt))
	delay = math.Min(delay, float64(config.MaxBackoff))
	return time.Duration(delay + rand.Float64()*0.25*delay)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
