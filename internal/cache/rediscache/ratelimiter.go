package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RateLimiter считает события в фиксированном окне: TTL ставится при первом INCR.
type RateLimiter struct {
	c *Client
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c}
}

// Allow returns whether the event fits under limit and the count so far.
func (rl *RateLimiter) Allow(ctx context.Context, k string, limit int64, window time.Duration) (bool, int64, error) {
	full := key(k)
	n, err := rl.c.rdb.Incr(ctx, full).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit incr")
	}
	if n == 1 {
		if err := rl.c.rdb.Expire(ctx, full, window).Err(); err != nil {
			return false, n, errors.Wrap(err, "redis ratelimit expire")
		}
	}
	return n <= limit, n, nil
}
