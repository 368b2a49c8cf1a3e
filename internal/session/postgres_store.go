package session

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, token_hash, user_id, ip, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		s.ID, s.TokenHash, s.UserID, s.IP, s.UserAgent, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

func (p *PostgresStore) GetByTokenHash(ctx context.Context, hash string) (*Session, error) {
	s := &Session{}
	var ip, userAgent sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, ip, user_agent, created_at, expires_at
		FROM sessions WHERE token_hash = $1`, hash).Scan(
		&s.ID, &s.TokenHash, &s.UserID, &ip, &userAgent, &s.CreatedAt, &s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if ip.Valid {
		s.IP = ip.String
	}
	if userAgent.Valid {
		s.UserAgent = userAgent.String
	}
	return s, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

func (p *PostgresStore) CountActive(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE expires_at >= $1`, now).Scan(&count)
	return count, err
}

var _ Store = (*PostgresStore)(nil)
