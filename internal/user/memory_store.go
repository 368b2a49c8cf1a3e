package user

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory user store for demo/development.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User  // by ID
	emails map[string]string // email → ID
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		emails: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[u.Email]; exists {
		return ErrEmailTaken
	}

	cp := *u
	m.users[u.ID] = &cp
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) GetByResetTokenHash(_ context.Context, hash string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ResetTokenHash != "" && u.ResetTokenHash == hash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	if old.Email != u.Email {
		if _, taken := m.emails[u.Email]; taken {
			return ErrEmailTaken
		}
		delete(m.emails, old.Email)
		m.emails[u.Email] = u.ID
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*User
	for _, u := range m.users {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CountByTenant(_ context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, u := range m.users {
		if u.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

var _ Store = (*MemoryStore)(nil)
