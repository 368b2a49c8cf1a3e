// Package user provides user accounts: platform staff (no tenant, governed
// by platform roles) and tenant-scoped staff (governed by tenant roles).
package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Errors
var (
	ErrUserNotFound = errors.New("user: not found")
	ErrEmailTaken   = errors.New("user: email already registered")
)

// PlatformRole governs access to the platform-admin console. Only users with
// no tenant affiliation carry one.
type PlatformRole string

const (
	RoleSuperAdmin      PlatformRole = "SUPER_ADMIN"
	RoleAsesorComercial PlatformRole = "ASESOR_COMERCIAL"
	RoleMarketing       PlatformRole = "MARKETING"
)

// AcademyRolePrefix marks platform roles granted to academy operations staff.
// They are matched by prefix so new academy roles don't require a release.
const AcademyRolePrefix = "ACADEMY_"

// IsAcademyRole reports whether the role is an academy operations role.
func IsAcademyRole(r PlatformRole) bool {
	return strings.HasPrefix(string(r), AcademyRolePrefix)
}

// ValidPlatformRole reports whether the role is recognised.
func ValidPlatformRole(r PlatformRole) bool {
	switch r {
	case RoleSuperAdmin, RoleAsesorComercial, RoleMarketing:
		return true
	}
	return IsAcademyRole(r)
}

// User is an account on the platform. TenantID and PlatformRole are mutually
// exclusive: tenant staff get their authority from tenant membership, platform
// staff from their role. The authorization layer enforces this, not the schema.
type User struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	PasswordHash     string       `json:"-"`
	Name             string       `json:"name"`
	TenantID         string       `json:"tenantId,omitempty"`
	RoleID           string       `json:"roleId,omitempty"` // tenant-scoped role
	PlatformRole     PlatformRole `json:"platformRole,omitempty"`
	IsActive         bool         `json:"isActive"`
	MustChangePass   bool         `json:"mustChangePassword"`
	ResetTokenHash   string       `json:"-"`
	ResetTokenExpiry *time.Time   `json:"-"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// IsPlatform reports whether the user is platform staff.
func (u *User) IsPlatform() bool {
	return u.TenantID == "" && u.PlatformRole != ""
}

// HasPlatformRole reports whether the user carries one of the allowed roles.
func (u *User) HasPlatformRole(allowed ...PlatformRole) bool {
	for _, r := range allowed {
		if u.PlatformRole == r {
			return true
		}
	}
	return false
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*User, error)
	Update(ctx context.Context, u *User) error
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}
