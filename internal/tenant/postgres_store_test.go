//go:build integration

package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/kaledsoft/platform/internal/testutil"
)

func newPostgresTenant(slug string, status Status) *Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Tenant{
		ID:     "ten_pg_" + slug,
		Name:   "Tenant " + slug,
		Slug:   slug,
		Plan:   PlanStarter,
		Status: status,
		Settings: Settings{
			RateLimitRPM: 120,
			MaxSeats:     10,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresTenant_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	ten := newPostgresTenant("north-academy", StatusActive)
	ten.Domain = "portal.north-academy.com"
	ten.StripeCustomerID = "cus_pg001"

	if err := store.Create(ctx, ten); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, ten.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Slug != "north-academy" {
		t.Errorf("Slug: got %s, want north-academy", got.Slug)
	}
	if got.Domain != "portal.north-academy.com" {
		t.Errorf("Domain: got %s, want portal.north-academy.com", got.Domain)
	}
	if got.StripeCustomerID != "cus_pg001" {
		t.Errorf("StripeCustomerID: got %s, want cus_pg001", got.StripeCustomerID)
	}
	if got.Settings.MaxSeats != 10 {
		t.Errorf("Settings.MaxSeats: got %d, want 10", got.Settings.MaxSeats)
	}

	bySlug, err := store.GetBySlug(ctx, "north-academy")
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if bySlug.ID != ten.ID {
		t.Errorf("GetBySlug returned %s, want %s", bySlug.ID, ten.ID)
	}

	byDomain, err := store.GetByDomain(ctx, "portal.north-academy.com")
	if err != nil {
		t.Fatalf("GetByDomain failed: %v", err)
	}
	if byDomain.ID != ten.ID {
		t.Errorf("GetByDomain returned %s, want %s", byDomain.ID, ten.ID)
	}
}

func TestPostgresTenant_DuplicateSlug(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, newPostgresTenant("dup-slug", StatusActive)); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	dup := newPostgresTenant("dup-slug", StatusActive)
	dup.ID = "ten_pg_dup2"
	if err := store.Create(ctx, dup); err != ErrSlugTaken {
		t.Errorf("Expected ErrSlugTaken, got %v", err)
	}
}

func TestPostgresTenant_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	if _, err := store.Get(ctx, "ten_missing"); err != ErrTenantNotFound {
		t.Errorf("Get: expected ErrTenantNotFound, got %v", err)
	}
	if _, err := store.GetBySlug(ctx, "missing"); err != ErrTenantNotFound {
		t.Errorf("GetBySlug: expected ErrTenantNotFound, got %v", err)
	}
	if err := store.Update(ctx, newPostgresTenant("ghost", StatusActive)); err != ErrTenantNotFound {
		t.Errorf("Update: expected ErrTenantNotFound, got %v", err)
	}
}

func TestPostgresTenant_EarliestActive(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	oldest := newPostgresTenant("oldest-suspended", StatusSuspended)
	oldest.CreatedAt = oldest.CreatedAt.Add(-48 * time.Hour)
	second := newPostgresTenant("second-active", StatusActive)
	second.CreatedAt = second.CreatedAt.Add(-24 * time.Hour)
	third := newPostgresTenant("third-active", StatusActive)

	for _, ten := range []*Tenant{oldest, second, third} {
		if err := store.Create(ctx, ten); err != nil {
			t.Fatalf("Create %s failed: %v", ten.Slug, err)
		}
	}

	got, err := store.EarliestActive(ctx)
	if err != nil {
		t.Fatalf("EarliestActive failed: %v", err)
	}
	if got.Slug != "second-active" {
		t.Errorf("EarliestActive: got %s, want second-active", got.Slug)
	}
}

func TestPostgresTenant_SuspendExpired(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newPostgresTenant("lapsed", StatusActive)
	past := now.Add(-time.Hour)
	expired.SubscriptionEndsAt = &past

	current := newPostgresTenant("paid-up", StatusActive)
	future := now.Add(30 * 24 * time.Hour)
	current.SubscriptionEndsAt = &future

	perpetual := newPostgresTenant("no-end-date", StatusActive)

	for _, ten := range []*Tenant{expired, current, perpetual} {
		if err := store.Create(ctx, ten); err != nil {
			t.Fatalf("Create %s failed: %v", ten.Slug, err)
		}
	}

	n, err := store.SuspendExpired(ctx, now)
	if err != nil {
		t.Fatalf("SuspendExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 tenant suspended, got %d", n)
	}

	got, err := store.Get(ctx, expired.ID)
	if err != nil {
		t.Fatalf("Get after sweep failed: %v", err)
	}
	if got.Status != StatusSuspended {
		t.Errorf("Status: got %s, want suspended", got.Status)
	}

	// Rerun matches nothing: already-suspended rows are excluded.
	n, err = store.SuspendExpired(ctx, now)
	if err != nil {
		t.Fatalf("Second SuspendExpired failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 on rerun, got %d", n)
	}
}
