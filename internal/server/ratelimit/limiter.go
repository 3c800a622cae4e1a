// Package ratelimit throttles anonymous endpoints (login, registration) with
// fixed-window counters in Redis: INCR, and EXPIRE on the first hit of a
// window. Keys look like "rl:<operation>:<client ip>".
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

// Rule is the budget of one operation.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the result of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	redis redis.UniversalClient
	rules map[string]Rule
}

func New(client redis.UniversalClient, rules map[string]Rule) *Limiter {
	return &Limiter{redis: client, rules: rules}
}

// Allow counts one hit of operation for key. Operations without a rule are
// always allowed. A Redis failure is returned wrapped in
// ErrRedisUnavailable together with an allowing decision, so callers that
// fail open can simply log it.
func (l *Limiter) Allow(ctx context.Context, operation, key string) (Decision, error) {
	rule, ok := l.rules[operation]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	redisKey := fmt.Sprintf("rl:%s:%s", operation, key)

	count, err := l.incrementWithTTL(ctx, redisKey, rule.Window)
	if err != nil {
		return Decision{Allowed: true}, err
	}

	if count > int64(rule.Limit) {
		return Decision{Allowed: false, RetryAfter: l.retryAfter(ctx, redisKey, rule.Window)}, nil
	}

	return Decision{Allowed: true, Remaining: rule.Limit - int(count)}, nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// retryAfter reports how long the window of key has left. A counter that
// lost its expiry (EXPIRE failed after the first INCR) gets a fresh window
// so the client is not locked out for good.
func (l *Limiter) retryAfter(ctx context.Context, key string, window time.Duration) time.Duration {
	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil {
		return window
	}
	if ttl < 0 {
		_ = l.redis.Expire(ctx, key, window).Err()
		return window
	}
	return ttl
}

// Ping checks the Redis connection.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}
