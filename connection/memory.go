package connection

import (
	"context"
	"sync"
	"time"
)

var _ Store = &MemoryStore{}

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[Key]Connection
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{conns: make(map[Key]Connection), now: now}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) Save(_ context.Context, c *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	next := *c
	if prev, ok := s.conns[c.Key()]; ok {
		next.CreatedAt = prev.CreatedAt
		next.LastSyncAt = prev.LastSyncAt
		next.SyncStatus = prev.SyncStatus
		next.ItemsSyncedLast24h = prev.ItemsSyncedLast24h
		next.ErrorCount = prev.ErrorCount
	} else {
		next.CreatedAt = now
		if next.SyncStatus == "" {
			next.SyncStatus = SyncStatusNeverSynced
		}
	}
	next.UpdatedAt = now
	s.conns[c.Key()] = next
	c.CreatedAt, c.UpdatedAt = next.CreatedAt, next.UpdatedAt
	return nil
}

func (s *MemoryStore) UpdateTokens(_ context.Context, key Key, tokens TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[key]
	if !ok {
		return ErrNotFound
	}
	c.Tokens = tokens
	c.UpdatedAt = s.now().UTC()
	s.conns[key] = c
	return nil
}

func (s *MemoryStore) MarkDisconnected(_ context.Context, key Key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[key]
	if !ok {
		return ErrNotFound
	}
	c.Connected = false
	c.LastError = reason
	c.UpdatedAt = s.now().UTC()
	s.conns[key] = c
	return nil
}

func (s *MemoryStore) UpdateSyncState(_ context.Context, key Key, state SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[key]
	if !ok {
		return ErrNotFound
	}
	last := state.LastSyncAt.UTC()
	c.LastSyncAt = &last
	c.ItemsSyncedLast24h = state.ItemsSyncedLast24h
	c.ErrorCount = state.ErrorCount
	c.LastError = state.LastError
	c.SyncStatus = state.SyncStatus
	c.UpdatedAt = s.now().UTC()
	s.conns[key] = c
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, key)
	return nil
}

func clone(c Connection) *Connection {
	if c.LastSyncAt != nil {
		t := *c.LastSyncAt
		c.LastSyncAt = &t
	}
	return &c
}
