package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, name, slug, domain, plan, status, stripe_customer_id, subscription_ends_at, settings, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, domain, plan, status, stripe_customer_id, subscription_ends_at, settings, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`,
		t.ID, t.Name, t.Slug, t.Domain, string(t.Plan), string(t.Status),
		t.StripeCustomerID, t.SubscriptionEndsAt, settingsJSON, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
}

func (p *PostgresStore) GetByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE domain = $1`, domain))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET name = $1, domain = NULLIF($2, ''), plan = $3, status = $4,
			stripe_customer_id = NULLIF($5, ''), subscription_ends_at = $6, settings = $7, updated_at = $8
		WHERE id = $9`,
		t.Name, t.Domain, string(t.Plan), string(t.Status),
		t.StripeCustomerID, t.SubscriptionEndsAt, settingsJSON, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Tenant, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (p *PostgresStore) EarliestActive(ctx context.Context) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE status = 'active' ORDER BY created_at ASC LIMIT 1`))
}

// SuspendExpired is the subscription sweep. Deleting nothing on a rerun is the
// expected idempotent outcome: rows already SUSPENDED no longer match.
func (p *PostgresStore) SuspendExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET status = 'suspended', updated_at = $1
		WHERE status = 'active' AND subscription_ends_at IS NOT NULL AND subscription_ends_at < $1`, now)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanTenant(row *sql.Row) (*Tenant, error) {
	t, err := scanTenantRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	return t, err
}

func scanTenantRow(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var (
		plan, status string
		domain       sql.NullString
		stripeID     sql.NullString
		endsAt       sql.NullTime
		settingsJSON []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &domain, &plan, &status, &stripeID,
		&endsAt, &settingsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Plan = Plan(plan)
	t.Status = Status(status)
	if domain.Valid {
		t.Domain = domain.String
	}
	if stripeID.Valid {
		t.StripeCustomerID = stripeID.String
	}
	if endsAt.Valid {
		ends := endsAt.Time
		t.SubscriptionEndsAt = &ends
	}
	if len(settingsJSON) > 0 {
		_ = json.Unmarshal(settingsJSON, &t.Settings)
	}
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
