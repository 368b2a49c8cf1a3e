package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store for demo/development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by ID
	byHash   map[string]string   // token hash → ID
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byHash:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	m.byHash[s.TokenHash] = s.ID
	return nil
}

func (m *MemoryStore) GetByTokenHash(_ context.Context, hash string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *m.sessions[id]
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.byHash, s.TokenHash)
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.byHash, s.TokenHash)
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.byHash, s.TokenHash)
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountActive(_ context.Context, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.sessions {
		if !s.Expired(now) {
			count++
		}
	}
	return count, nil
}

var _ Store = (*MemoryStore)(nil)
