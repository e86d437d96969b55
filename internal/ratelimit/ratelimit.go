// Package ratelimit provides Redis-based rate limiting for API endpoints.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter provides rate limiting functionality using Redis.
type Limiter struct {
	redis *redis.Client
}

// NewLimiter creates a new rate limiter. redis may be nil, in which case
// the limiter fails open (allows every request).
func NewLimiter(redis *redis.Client) *Limiter {
	return &Limiter{redis: redis}
}

// PushLimits defines the rate limits applied to the POST / push endpoint.
type PushLimits struct {
	// Per-IP: how many pushes a single remote address can make.
	IPLimit  int
	IPWindow time.Duration
}

// DefaultPushLimits returns the recommended push rate limits.
func DefaultPushLimits() PushLimits {
	return PushLimits{
		IPLimit:  30,
		IPWindow: time.Minute,
	}
}

// CheckPush checks the per-IP push rate limit. Returns nil if allowed,
// ErrRateLimited if the limit is exceeded.
func (l *Limiter) CheckPush(ctx context.Context, remoteIP string) error {
	if l == nil || l.redis == nil {
		// If Redis is unavailable, allow the request (fail-open for availability).
		return nil
	}

	limits := DefaultPushLimits()
	key := fmt.Sprintf("ratelimit:push:ip:%s", remoteIP)
	if err := l.checkLimit(ctx, key, limits.IPLimit, limits.IPWindow); err != nil {
		log.Printf("[RateLimit] %s exceeded push rate limit", remoteIP)
		return ErrRateLimited
	}
	return nil
}

// checkLimit performs the actual rate limit check using Redis INCR.
func (l *Limiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	// Use INCR to atomically increment the counter.
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		// Fail-open on Redis errors to maintain availability.
		return nil
	}

	// If this is the first request, set the expiry.
	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}

	if int(count) > limit {
		return ErrRateLimited
	}
	return nil
}
