package tenant

import (
	"context"
	"time"
)

// Store persists tenant data.
type Store interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	GetByDomain(ctx context.Context, domain string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	List(ctx context.Context, limit int) ([]*Tenant, error)

	// EarliestActive returns the oldest ACTIVE tenant. It backs the
	// platform-support fallback and nothing else.
	EarliestActive(ctx context.Context) (*Tenant, error)

	// SuspendExpired moves ACTIVE tenants whose subscription ended before now
	// to SUSPENDED. Idempotent; returns how many rows changed.
	SuspendExpired(ctx context.Context, now time.Time) (int, error)
}
