// Package session provides opaque-token sessions backed by a pluggable store.
//
// The raw token is issued once in a cookie and only its SHA256 hash is kept
// at rest, so a leaked session table cannot be replayed.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/kaledsoft/platform/internal/idgen"
)

// Errors
var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionExpired  = errors.New("session: expired")
)

// CookieName is the session cookie issued on login.
const CookieName = "session_token"

// Session is a server-side session record.
type Session struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"`
	UserID    string    `json:"userId"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	GetByTokenHash(ctx context.Context, hash string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// Manager issues and validates sessions.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager creates a session manager with the given session lifetime.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a new session for the user and returns the raw token.
// The raw token is never stored; only its hash is.
func (m *Manager) Create(ctx context.Context, userID, ip, userAgent string) (string, *Session, error) {
	raw := "ses_" + idgen.Hex(32)
	now := time.Now()
	s := &Session{
		ID:        idgen.WithPrefix("sid_"),
		TokenHash: HashToken(raw),
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return "", nil, err
	}
	return raw, s, nil
}

// Validate resolves a raw token to its live session. Expired sessions are
// deleted on sight rather than waiting for the sweep.
func (m *Manager) Validate(ctx context.Context, rawToken string) (*Session, error) {
	if rawToken == "" {
		return nil, ErrSessionNotFound
	}
	s, err := m.store.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if s.Expired(time.Now()) {
		_ = m.store.Delete(ctx, s.ID)
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Destroy deletes the session behind a raw token. Missing sessions are fine;
// logout is idempotent.
func (m *Manager) Destroy(ctx context.Context, rawToken string) error {
	s, err := m.store.GetByTokenHash(ctx, HashToken(rawToken))
	if err == ErrSessionNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, s.ID)
}

// DestroyAllForUser revokes every session for a user, used on password reset.
func (m *Manager) DestroyAllForUser(ctx context.Context, userID string) (int, error) {
	return m.store.DeleteByUser(ctx, userID)
}

// CountActive returns the number of unexpired sessions.
func (m *Manager) CountActive(ctx context.Context) (int, error) {
	return m.store.CountActive(ctx, time.Now())
}

// HashToken returns the hex SHA256 of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
