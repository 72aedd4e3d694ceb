package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix отделяет ключи сервиса от чужих в общем Redis.
const KeyPrefix = "dispatch:"

// Client is one connection pool shared by Cache, RateLimiter and Locker.
type Client struct {
	rdb *redis.Client
}

func Dial(addr string) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *Client) Ping(ctx context.Context) error {
	return errors.Wrap(c.rdb.Ping(ctx).Err(), "redis ping")
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func key(k string) string {
	return KeyPrefix + k
}

// Cache хранит готовые JSON-ответы с TTL.
type Cache struct {
	c *Client
}

func NewCache(c *Client) *Cache {
	return &Cache{c: c}
}

func (r *Cache) Get(ctx context.Context, k string) ([]byte, bool, error) {
	val, err := r.c.rdb.Get(ctx, key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	return val, true, nil
}

func (r *Cache) Set(ctx context.Context, k string, value []byte, ttl time.Duration) error {
	return errors.Wrap(r.c.rdb.Set(ctx, key(k), value, ttl).Err(), "redis set")
}

func (r *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, key(k))
	}
	return errors.Wrap(r.c.rdb.Del(ctx, full...).Err(), "redis del")
}
