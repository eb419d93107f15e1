package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store. It is concurrency-safe
// and intended for single-process deployments or testing.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Session)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (s *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byID[id]
	p.ID = id
	p.LastPingAt = at
	if p.Status == "" {
		p.Status = StatusActive
	}
	s.byID[id] = p
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byID[id]
	p.ID = id
	p.Status = status
	s.byID[id] = p
	return nil
}
