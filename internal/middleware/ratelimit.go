package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops limiters of clients not seen for this long.
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig returns default rate limiting settings
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter tracks one limiter per client key (tenant or IP)
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	config   RateLimiterConfig
}

// NewKeyedRateLimiter creates a new per-client rate limiter
func NewKeyedRateLimiter(config RateLimiterConfig) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*clientLimiter),
		config:   config,
	}
}

// Allow reports whether key may make a request now
func (rl *KeyedRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// Cleanup removes limiters idle for longer than IdleTTL
func (rl *KeyedRateLimiter) Cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.config.IdleTTL {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// RunCleanup prunes idle limiters until ctx is done
func (rl *KeyedRateLimiter) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Cleanup(now)
		}
	}
}

// RateLimitMiddleware limits each tenant, or each client IP when no tenant
// is set, to the configured rate
func RateLimitMiddleware(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := TenantID(c)
		if key == "" {
			key = c.GetHeader(TenantHeader)
		}
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
