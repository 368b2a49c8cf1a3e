package user

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, name, tenant_id, role_id, platform_role, is_active, must_change_password, reset_token_hash, reset_token_expiry, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, tenant_id, role_id, platform_role, is_active, must_change_password, reset_token_hash, reset_token_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11, $12, $13)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.TenantID, u.RoleID, string(u.PlatformRole),
		u.IsActive, u.MustChangePass, u.ResetTokenHash, u.ResetTokenExpiry, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (p *PostgresStore) GetByResetTokenHash(ctx context.Context, hash string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, hash))
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET email = $1, password_hash = $2, name = $3, tenant_id = NULLIF($4, ''),
			role_id = NULLIF($5, ''), platform_role = NULLIF($6, ''), is_active = $7,
			must_change_password = $8, reset_token_hash = NULLIF($9, ''), reset_token_expiry = $10,
			updated_at = $11
		WHERE id = $12`,
		u.Email, u.PasswordHash, u.Name, u.TenantID, u.RoleID, string(u.PlatformRole),
		u.IsActive, u.MustChangePass, u.ResetTokenHash, u.ResetTokenExpiry, u.UpdatedAt, u.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresStore) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE tenant_id = $1`, tenantID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	u, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return u, err
}

func scanUserRow(row rowScanner) (*User, error) {
	u := &User{}
	var (
		tenantID, roleID, platformRole, resetHash sql.NullString
		resetExpiry                               sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &tenantID, &roleID,
		&platformRole, &u.IsActive, &u.MustChangePass, &resetHash, &resetExpiry,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tenantID.Valid {
		u.TenantID = tenantID.String
	}
	if roleID.Valid {
		u.RoleID = roleID.String
	}
	if platformRole.Valid {
		u.PlatformRole = PlatformRole(platformRole.String)
	}
	if resetHash.Valid {
		u.ResetTokenHash = resetHash.String
	}
	if resetExpiry.Valid {
		expiry := resetExpiry.Time
		u.ResetTokenExpiry = &expiry
	}
	return u, nil
}

var _ Store = (*PostgresStore)(nil)
