package syncstatus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Seann-Moser/integrations/connection"
	"github.com/google/uuid"
)

var (
	_ LogStore     = &MemoryLogStore{}
	_ RequestStore = &MemoryRequestStore{}
)

type MemoryLogStore struct {
	mu      sync.RWMutex
	entries map[connection.Key][]SyncLogEntry
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{entries: make(map[connection.Key][]SyncLogEntry)}
}

func (s *MemoryLogStore) Append(_ context.Context, e *SyncLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	cp.EntityTypes = append([]string(nil), e.EntityTypes...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Key()] = append(s.entries[e.Key()], cp)
	return nil
}

func (s *MemoryLogStore) Recent(_ context.Context, key connection.Key, limit int) ([]SyncLogEntry, error) {
	s.mu.RLock()
	out := append([]SyncLogEntry(nil), s.entries[key]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]SyncRequest
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]SyncRequest)}
}

func (s *MemoryRequestStore) Create(_ context.Context, r *SyncRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = *r
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, id string) (*SyncRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (s *MemoryRequestStore) Active(_ context.Context, key connection.Key, since time.Time) (*SyncRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *SyncRequest
	for _, r := range s.requests {
		if r.Key() != key || !r.Status.Active() || r.RequestedAt.Before(since) {
			continue
		}
		if found == nil || r.RequestedAt.After(found.RequestedAt) {
			r := r
			found = &r
		}
	}
	if found == nil {
		return nil, ErrRequestNotFound
	}
	return found, nil
}

func (s *MemoryRequestStore) SetStatus(_ context.Context, id string, status RequestStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	r.Status = status
	if !status.Active() {
		t := at.UTC()
		r.FinishedAt = &t
	}
	s.requests[id] = r
	return nil
}
