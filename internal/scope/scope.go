// Package scope provides tenant-scoped database access. A Scope is created
// from an already-authorized tenant id and binds that id to every statement
// it runs, so business queries cannot read or write another tenant's rows by
// construction rather than by reviewer diligence.
package scope

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoTenant is returned when a scope is requested without a tenant id.
var ErrNoTenant = errors.New("scope: tenant id required")

// Querier is the subset of *sql.DB the scope needs. *sql.Tx satisfies it too.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scope runs statements bound to one tenant. The tenant id is always bound
// as $1; queries are written with `tenant_id = $1` and their own arguments
// starting at $2.
type Scope struct {
	q        Querier
	tenantID string
}

// ForTenant creates a scope for an authorized tenant id. The id comes from
// the authorization wrapper, never from client input.
func ForTenant(q Querier, tenantID string) (*Scope, error) {
	if tenantID == "" {
		return nil, ErrNoTenant
	}
	return &Scope{q: q, tenantID: tenantID}, nil
}

// TenantID returns the bound tenant id.
func (s *Scope) TenantID() string {
	return s.tenantID
}

// Query runs a scoped query. The tenant id is prepended as $1.
func (s *Scope) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, query, s.bind(args)...)
}

// QueryRow runs a scoped single-row query. The tenant id is prepended as $1.
func (s *Scope) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, query, s.bind(args)...)
}

// Exec runs a scoped statement. The tenant id is prepended as $1.
func (s *Scope) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, query, s.bind(args)...)
}

func (s *Scope) bind(args []any) []any {
	bound := make([]any, 0, len(args)+1)
	bound = append(bound, s.tenantID)
	return append(bound, args...)
}
