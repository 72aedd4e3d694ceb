package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock wait timeout")

// Снимаем лок только если он всё ещё наш.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SET NX based mutex shared between instances.
type Locker struct {
	c     *Client
	retry time.Duration
}

func NewLocker(c *Client) *Locker {
	return &Locker{c: c, retry: 50 * time.Millisecond}
}

// Lock blocks until key is acquired or ctx is done. ttl bounds how long a
// crashed holder keeps the key.
func (l *Locker) Lock(ctx context.Context, k string, ttl time.Duration) (func(), error) {
	full := key(k)
	token := uuid.NewString()
	for {
		ok, err := l.c.rdb.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "redis lock")
		}
		if ok {
			return func() {
				_ = unlockScript.Run(context.Background(), l.c.rdb, []string{full}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrLockTimeout, ctx.Err().Error())
		case <-time.After(l.retry):
		}
	}
}
