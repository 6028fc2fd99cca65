package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, inner Store, sealer Sealer) (*CachedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCachedStore(inner, rdb, 0, sealer, nil), mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	calls := 0
	inner := &MockStore{GetFunc: func(ctx context.Context, key Key) (*Connection, error) {
		calls++
		return &Connection{OrganizationID: key.OrganizationID, Provider: key.Provider, Connected: true}, nil
	}}
	store, mr := newTestCache(t, inner, nil)

	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.True(t, got.Connected)
	}
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists(cacheKey(testKey)))
	assert.Equal(t, DefaultCacheTTL, mr.TTL(cacheKey(testKey)))

	mr.FastForward(6 * time.Second)
	_, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestCache(t, &MockStore{}, nil)

	_, err := store.Get(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(cacheKey(testKey)))
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(fixedClock)
	require.NoError(t, inner.Save(ctx, &Connection{OrganizationID: "org-1", Provider: ProviderQuickBooks,
		Connected: true, Tokens: TokenSet{AccessToken: "old"}}))
	store, mr := newTestCache(t, inner, nil)

	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "old", got.Tokens.AccessToken)

	require.NoError(t, store.UpdateTokens(ctx, testKey, TokenSet{AccessToken: "new"}))
	raw, err := mr.Get(cacheKey(testKey))
	require.NoError(t, err)
	assert.Equal(t, string(tombstone), raw)

	got, err = store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Tokens.AccessToken)

	require.NoError(t, store.MarkDisconnected(ctx, testKey, "revoked"))
	got, err = store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, got.Connected)

	require.NoError(t, store.Delete(ctx, testKey))
	_, err = store.Get(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_SealsCachedBlob(t *testing.T) {
	ctx := context.Background()
	sealer, err := NewXChaChaSealer(make([]byte, 32))
	require.NoError(t, err)
	inner := NewMemoryStore(fixedClock)
	require.NoError(t, inner.Save(ctx, &Connection{OrganizationID: "org-1", Provider: ProviderQuickBooks,
		Tokens: TokenSet{AccessToken: "very-secret"}}))
	store, mr := newTestCache(t, inner, sealer)

	_, err = store.Get(ctx, testKey)
	require.NoError(t, err)
	raw, err := mr.Get(cacheKey(testKey))
	require.NoError(t, err)
	assert.NotContains(t, raw, "very-secret")

	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "very-secret", got.Tokens.AccessToken)
}

func TestCachedStore_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(fixedClock)
	require.NoError(t, inner.Save(ctx, &Connection{OrganizationID: "org-1", Provider: ProviderQuickBooks, Connected: true}))
	store, mr := newTestCache(t, inner, nil)
	mr.Close()

	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, got.Connected)
	assert.NoError(t, store.UpdateTokens(ctx, testKey, TokenSet{AccessToken: "x"}))
}

// pausingStore blocks the first Get after its inner read until release is closed.
type pausingStore struct {
	Store
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func newPausingStore(inner Store) *pausingStore {
	return &pausingStore{Store: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (s *pausingStore) Get(ctx context.Context, key Key) (*Connection, error) {
	c, err := s.Store.Get(ctx, key)
	s.once.Do(func() {
		close(s.loaded)
		<-s.release
	})
	return c, err
}

func TestCachedStore_StaleFillAfterWriteIsDropped(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(fixedClock)
	require.NoError(t, inner.Save(ctx, &Connection{OrganizationID: "org-1", Provider: ProviderQuickBooks,
		Connected: true, Tokens: TokenSet{AccessToken: "old", RefreshToken: "rt-old"}}))
	slow := newPausingStore(inner)
	store, _ := newTestCache(t, slow, nil)

	done := make(chan *Connection)
	go func() {
		c, err := store.Get(ctx, testKey)
		assert.NoError(t, err)
		done <- c
	}()
	<-slow.loaded

	require.NoError(t, store.UpdateTokens(ctx, testKey, TokenSet{AccessToken: "new", RefreshToken: "rt-new"}))
	close(slow.release)
	assert.Equal(t, "rt-old", (<-done).Tokens.RefreshToken)

	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "rt-new", got.Tokens.RefreshToken)

	require.NoError(t, store.Delete(ctx, testKey))
	_, err = store.Get(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_UncachedSkipsRedis(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(fixedClock)
	require.NoError(t, inner.Save(ctx, &Connection{OrganizationID: "org-1", Provider: ProviderQuickBooks,
		Connected: true, Tokens: TokenSet{AccessToken: "inner"}}))
	store, mr := newTestCache(t, inner, nil)
	require.NoError(t, mr.Set(cacheKey(testKey), `{"organization_id":"org-1","provider":"quickbooks","connected":false}`))

	got, err := store.Get(Uncached(ctx), testKey)
	require.NoError(t, err)
	assert.True(t, got.Connected)
	assert.Equal(t, "inner", got.Tokens.AccessToken)

	raw, err := mr.Get(cacheKey(testKey))
	require.NoError(t, err)
	assert.Contains(t, raw, `"connected":false`)
}
