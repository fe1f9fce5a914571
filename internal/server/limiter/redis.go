package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the subset of the Redis client used by RedisLimiter.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter is a fixed-window counter shared by every server instance.
type RedisLimiter struct {
	client Counter
	prefix string
	limit  int64
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter allows limit events per key per window. client is
// usually a redis.UniversalClient.
func NewRedisLimiter(client Counter, prefix string, limit int, window time.Duration) *RedisLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + ":" + key
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	k := l.key(key)
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr counter: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire counter: %w", err)
		}
	}
	if n <= l.limit {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: l.retryAfter(ctx, k)}, nil
}

func (l *RedisLimiter) Blocked(ctx context.Context, key string) (Decision, error) {
	k := l.key(key)
	n, err := l.client.Get(ctx, k).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Decision{Allowed: true}, nil
		}
		return Decision{}, fmt.Errorf("load counter: %w", err)
	}
	if n < l.limit {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: l.retryAfter(ctx, k)}, nil
}

// retryAfter falls back to the full window when the TTL is unknown.
func (l *RedisLimiter) retryAfter(ctx context.Context, k string) time.Duration {
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		return l.window
	}
	return ttl
}
