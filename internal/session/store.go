package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the persistence surface behind the Manager. Get returns
// (nil, nil) when the id is unknown; lifecycle rules such as TTL
// semantics live in the Manager, not here.
type Store interface {
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

// memstore is the default in-memory store.
type memstore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns the in-memory store used when no external
// session backend is configured.
func NewMemoryStore() Store {
	return &memstore{sessions: make(map[string]*Session)}
}

func (m *memstore) Put(ctx context.Context, s *Session, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	m.sessions[s.ID] = s.Clone()
	m.mu.Unlock()
	return nil
}

func (m *memstore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memstore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *memstore) List(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
