package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultCacheTTL = 5 * time.Second
	cachePrefix     = "integrations:connection:"
)

// tombstone marks a key written since the last fill. Fills use SET NX, so a
// reader that loaded the record before the write cannot put it back.
var tombstone = []byte("-")

type uncachedKey struct{}

// Uncached makes CachedStore.Get read the inner store and leave the cache
// untouched. Reads that decide on a refresh under the connection lock use it.
func Uncached(ctx context.Context) context.Context {
	return context.WithValue(ctx, uncachedKey{}, true)
}

func uncached(ctx context.Context) bool {
	v, _ := ctx.Value(uncachedKey{}).(bool)
	return v
}

var _ Store = &CachedStore{}

// CachedStore is a short-lived read-through cache in front of another Store.
// Writes go to the inner store first and then replace the cached copy with a
// tombstone for one TTL, during which reads go to the inner store.
type CachedStore struct {
	inner  Store
	rdb    redis.Cmdable
	ttl    time.Duration
	sealer Sealer
	log    *zap.Logger
}

func NewCachedStore(inner Store, rdb redis.Cmdable, ttl time.Duration, sealer Sealer, log *zap.Logger) *CachedStore {
	if ttl <= 0 || ttl > DefaultCacheTTL {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl, sealer: sealer, log: log}
}

func cacheKey(key Key) string {
	return cachePrefix + key.String()
}

func (s *CachedStore) Get(ctx context.Context, key Key) (*Connection, error) {
	if uncached(ctx) {
		return s.inner.Get(ctx, key)
	}
	if c, ok := s.lookup(ctx, key); ok {
		return c, nil
	}
	c, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, c)
	return c, nil
}

func (s *CachedStore) lookup(ctx context.Context, key Key) (*Connection, bool) {
	raw, err := s.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("connection cache read failed", zap.String("key", key.String()), zap.Error(err))
		}
		return nil, false
	}
	if bytes.Equal(raw, tombstone) {
		return nil, false
	}
	if s.sealer != nil {
		if raw, err = s.sealer.Open(raw); err != nil {
			s.log.Warn("connection cache entry unreadable", zap.String("key", key.String()), zap.Error(err))
			return nil, false
		}
	}
	var c Connection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false
	}
	return &c, true
}

func (s *CachedStore) fill(ctx context.Context, key Key, c *Connection) {
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if s.sealer != nil {
		if raw, err = s.sealer.Seal(raw); err != nil {
			return
		}
	}
	if err := s.rdb.SetNX(ctx, cacheKey(key), raw, s.ttl).Err(); err != nil {
		s.log.Warn("connection cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// invalidate never fails the write it follows; the TTL bounds staleness.
func (s *CachedStore) invalidate(ctx context.Context, key Key) {
	if err := s.rdb.Set(ctx, cacheKey(key), tombstone, s.ttl).Err(); err != nil {
		s.log.Warn("connection cache invalidation failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (s *CachedStore) Save(ctx context.Context, c *Connection) error {
	if err := s.inner.Save(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, c.Key())
	return nil
}

func (s *CachedStore) UpdateTokens(ctx context.Context, key Key, tokens TokenSet) error {
	if err := s.inner.UpdateTokens(ctx, key, tokens); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *CachedStore) MarkDisconnected(ctx context.Context, key Key, reason string) error {
	if err := s.inner.MarkDisconnected(ctx, key, reason); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *CachedStore) UpdateSyncState(ctx context.Context, key Key, state SyncState) error {
	if err := s.inner.UpdateSyncState(ctx, key, state); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key Key) error {
	if err := s.inner.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}
