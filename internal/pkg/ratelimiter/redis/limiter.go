package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blastline/blastline/internal/pkg/ratelimiter"
)

type RedisLimiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

// Allow implements a fixed window counter: INCR the key, set the expiry on
// first hit, compare against the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimiter.Result, error) {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimiter: incr: %w", err)
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return nil, fmt.Errorf("ratelimiter: expire: %w", err)
		}
	}

	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := &ratelimiter.Result{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		Reset:     time.Now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}

	return res, nil
}
