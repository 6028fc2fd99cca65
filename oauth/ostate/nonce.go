package ostate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultNonceTTL = 10 * time.Minute

var (
	// ErrNonceUnknown is returned when a nonce was never issued, already consumed or expired.
	ErrNonceUnknown = errors.New("nonce unknown or already used")
	ErrNonceExists  = errors.New("nonce already issued")
)

// NonceStore tracks issued nonces so each can be consumed exactly once.
type NonceStore interface {
	Issue(ctx context.Context, nonce, organizationID string, ttl time.Duration) error
	// Consume returns the organization the nonce was issued for and forgets it.
	Consume(ctx context.Context, nonce string) (string, error)
}

var _ NonceStore = &RedisNonceStore{}

type RedisNonceStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisNonceStore(rdb redis.Cmdable) *RedisNonceStore {
	return &RedisNonceStore{rdb: rdb, prefix: "integrations:oauth_state:"}
}

func (s *RedisNonceStore) Issue(ctx context.Context, nonce, organizationID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	ok, err := s.rdb.SetNX(ctx, s.prefix+nonce, organizationID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNonceExists
	}
	return nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (string, error) {
	org, err := s.rdb.GetDel(ctx, s.prefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNonceUnknown
	}
	if err != nil {
		return "", err
	}
	return org, nil
}

var _ NonceStore = &MemoryNonceStore{}

type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]issued
	now    func() time.Time
}

type issued struct {
	org     string
	expires time.Time
}

func NewMemoryNonceStore(now func() time.Time) *MemoryNonceStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryNonceStore{nonces: make(map[string]issued), now: now}
}

func (s *MemoryNonceStore) Issue(_ context.Context, nonce, organizationID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.nonces {
		if !now.Before(v.expires) {
			delete(s.nonces, k)
		}
	}
	if _, ok := s.nonces[nonce]; ok {
		return ErrNonceExists
	}
	s.nonces[nonce] = issued{org: organizationID, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, nonce string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.nonces[nonce]
	if !ok {
		return "", ErrNonceUnknown
	}
	delete(s.nonces, nonce)
	if !s.now().Before(v.expires) {
		return "", ErrNonceUnknown
	}
	return v.org, nil
}
