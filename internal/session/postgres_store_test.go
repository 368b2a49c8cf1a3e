//go:build integration

package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/kaledsoft/platform/internal/testutil"
)

func seedSessionUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, email, password_hash, name, is_active, must_change_password, created_at, updated_at)
		VALUES ($1, $1 || '@example.com', 'hash', 'Session User', true, false, $2, $2)`, id, now)
	if err != nil {
		t.Fatalf("Seed user failed: %v", err)
	}
}

func newPostgresSession(id, userID string, expiresAt time.Time) *Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Session{
		ID:        id,
		TokenHash: HashToken("ses_" + id),
		UserID:    userID,
		IP:        "203.0.113.7",
		UserAgent: "integration-test",
		CreatedAt: now,
		ExpiresAt: expiresAt.Truncate(time.Microsecond),
	}
}

func TestPostgresSession_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	seedSessionUser(t, db, "usr_sespg1")
	s := newPostgresSession("sid_pg001", "usr_sespg1", time.Now().UTC().Add(time.Hour))

	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByTokenHash(ctx, s.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash failed: %v", err)
	}
	if got.ID != "sid_pg001" {
		t.Errorf("ID: got %s, want sid_pg001", got.ID)
	}
	if got.UserID != "usr_sespg1" {
		t.Errorf("UserID: got %s, want usr_sespg1", got.UserID)
	}
	if got.IP != "203.0.113.7" {
		t.Errorf("IP: got %s, want 203.0.113.7", got.IP)
	}

	if _, err := store.GetByTokenHash(ctx, HashToken("ses_unknown")); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestPostgresSession_DeleteByUser(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	seedSessionUser(t, db, "usr_sespg2")
	seedSessionUser(t, db, "usr_sespg3")
	future := time.Now().UTC().Add(time.Hour)

	for _, id := range []string{"sid_pg010", "sid_pg011"} {
		if err := store.Create(ctx, newPostgresSession(id, "usr_sespg2", future)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	other := newPostgresSession("sid_pg012", "usr_sespg3", future)
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create other failed: %v", err)
	}

	n, err := store.DeleteByUser(ctx, "usr_sespg2")
	if err != nil {
		t.Fatalf("DeleteByUser failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 deleted, got %d", n)
	}

	// The other user's session survives.
	if _, err := store.GetByTokenHash(ctx, other.TokenHash); err != nil {
		t.Errorf("Other user's session should survive, got %v", err)
	}
}

func TestPostgresSession_DeleteExpiredAndCount(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	seedSessionUser(t, db, "usr_sespg4")
	now := time.Now().UTC()

	expired := newPostgresSession("sid_pg020", "usr_sespg4", now.Add(-time.Minute))
	live := newPostgresSession("sid_pg021", "usr_sespg4", now.Add(time.Hour))
	for _, s := range []*Session{expired, live} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create %s failed: %v", s.ID, err)
		}
	}

	count, err := store.CountActive(ctx, now)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 active, got %d", count)
	}

	n, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deleted, got %d", n)
	}

	if _, err := store.GetByTokenHash(ctx, expired.TokenHash); err != ErrSessionNotFound {
		t.Errorf("Expired session should be gone, got %v", err)
	}
	if _, err := store.GetByTokenHash(ctx, live.TokenHash); err != nil {
		t.Errorf("Live session should remain, got %v", err)
	}
}
