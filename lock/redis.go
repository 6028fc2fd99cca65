package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ Locker = &RedisLocker{}

// RedisLocker holds a lock as a key with a random token and a TTL, so a
// crashed holder cannot block others for longer than the TTL.
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

type RedisOption func(*RedisLocker)

func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.poll = d }
}

func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

func NewRedisLocker(rdb redis.Cmdable, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{rdb: rdb, prefix: "integrations:lock:", ttl: DefaultTTL, poll: DefaultPollInterval}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	name := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := releaseScript.Run(ctx, l.rdb, []string{name}, token).Int()
				if err != nil {
					return fmt.Errorf("release lock %s: %w", key, err)
				}
				if n == 0 {
					return ErrNotHeld
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
