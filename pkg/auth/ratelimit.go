package auth

import (
	"context"
	"sync"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// RateLimitConfig configures per-caller request budgets.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int

	// IdleTTL drops buckets unused for this long. Defaults to ten minutes.
	IdleTTL time.Duration
}

// RateLimiter tracks a token bucket per key.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	config    RateLimitConfig
	now       func() time.Time
	lastSweep time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter. Non-positive values default to 60
// requests per minute with a burst of 10.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  config,
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether the call fits the
// budget. When it does not, the returned duration is the wait until the
// next token.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	rate := float64(l.config.RequestsPerMinute) / 60.0
	bucket, exists := l.buckets[key]
	if !exists {
		bucket = &tokenBucket{tokens: float64(l.config.BurstSize), lastRefill: now}
		l.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens = min(bucket.tokens+elapsed*rate, float64(l.config.BurstSize))
	bucket.lastRefill = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	wait := time.Duration((1 - bucket.tokens) / rate * float64(time.Second))
	return false, wait
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.IdleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) > l.config.IdleTTL {
			delete(l.buckets, key)
		}
	}
}

// RateLimit rejects requests over budget with a rate_limited error. The
// key is the authenticated actor when present, else the envelope source.
func RateLimit(limiter *RateLimiter) middleware.RequestMiddleware {
	return func(ctx context.Context, req *protocol.Request, next middleware.RequestNext) (*protocol.Response, error) {
		key := rateLimitKey(ctx, req)
		if ok, wait := limiter.Allow(key); !ok {
			return nil, sdkerrors.RateLimited(key, wait)
		}
		return next(ctx, req)
	}
}

func rateLimitKey(ctx context.Context, req *protocol.Request) string {
	if user, ok := UserInfoFromContext(ctx); ok {
		return "user:" + user.ID
	}
	if req.Context.Auth != nil && req.Context.Auth.Actor != "" {
		return "user:" + req.Context.Auth.Actor
	}
	if req.Context.Source != "" {
		return "source:" + req.Context.Source
	}
	return "global"
}
