//go:build integration

package user

import (
	"context"
	"testing"
	"time"

	"github.com/kaledsoft/platform/internal/testutil"
)

func newPostgresUser(id, email string) *User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$04$pghashpghashpghashpgha",
		Name:         "Test User",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresUser_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	u := newPostgresUser("usr_pg001", "pg001@example.com")
	u.PlatformRole = RoleSuperAdmin

	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "usr_pg001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Email != "pg001@example.com" {
		t.Errorf("Email: got %s, want pg001@example.com", got.Email)
	}
	if got.PlatformRole != RoleSuperAdmin {
		t.Errorf("PlatformRole: got %s, want SUPER_ADMIN", got.PlatformRole)
	}
	if got.TenantID != "" {
		t.Errorf("TenantID should be empty, got %s", got.TenantID)
	}
	if !got.IsActive {
		t.Error("IsActive should be true")
	}

	byEmail, err := store.GetByEmail(ctx, "pg001@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if byEmail.ID != "usr_pg001" {
		t.Errorf("GetByEmail returned %s, want usr_pg001", byEmail.ID)
	}
}

func TestPostgresUser_DuplicateEmail(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, newPostgresUser("usr_pg010", "dup@example.com")); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	if err := store.Create(ctx, newPostgresUser("usr_pg011", "dup@example.com")); err != ErrEmailTaken {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestPostgresUser_ResetTokenRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	u := newPostgresUser("usr_pg020", "reset@example.com")
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	u.ResetTokenHash = "abcdef0123456789"
	u.ResetTokenExpiry = &expiry
	if err := store.Update(ctx, u); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByResetTokenHash(ctx, "abcdef0123456789")
	if err != nil {
		t.Fatalf("GetByResetTokenHash failed: %v", err)
	}
	if got.ID != "usr_pg020" {
		t.Errorf("Got user %s, want usr_pg020", got.ID)
	}
	if got.ResetTokenExpiry == nil || !got.ResetTokenExpiry.Equal(expiry) {
		t.Errorf("ResetTokenExpiry: got %v, want %v", got.ResetTokenExpiry, expiry)
	}

	// Clearing the token makes the hash unmatchable.
	got.ResetTokenHash = ""
	got.ResetTokenExpiry = nil
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Clear update failed: %v", err)
	}
	if _, err := store.GetByResetTokenHash(ctx, "abcdef0123456789"); err != ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound after clear, got %v", err)
	}
}

func TestPostgresUser_TenantScoping(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, plan, status, settings, created_at, updated_at)
		VALUES ('ten_pgscope', 'Scope Co', 'scope-co', 'starter', 'active', '{}', $1, $1)`, now); err != nil {
		t.Fatalf("Seed tenant failed: %v", err)
	}

	for i, email := range []string{"a@scope.co", "b@scope.co"} {
		u := newPostgresUser("usr_pgscope"+string(rune('0'+i)), email)
		u.TenantID = "ten_pgscope"
		u.RoleID = "rol_staff"
		if err := store.Create(ctx, u); err != nil {
			t.Fatalf("Create %s failed: %v", email, err)
		}
	}
	outsider := newPostgresUser("usr_pgout", "out@other.co")
	if err := store.Create(ctx, outsider); err != nil {
		t.Fatalf("Create outsider failed: %v", err)
	}

	list, err := store.ListByTenant(ctx, "ten_pgscope")
	if err != nil {
		t.Fatalf("ListByTenant failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 users, got %d", len(list))
	}

	count, err := store.CountByTenant(ctx, "ten_pgscope")
	if err != nil {
		t.Fatalf("CountByTenant failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
}
