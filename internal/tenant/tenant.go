// Package tenant provides multi-tenancy for the platform: the tenant model,
// slug rules, hostname resolution, and the subscription sweep.
package tenant

import (
	"errors"
	"regexp"
	"time"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrSlugTaken      = errors.New("tenant: slug already taken")
	ErrSlugReserved   = errors.New("tenant: slug is reserved")
	ErrInvalidSlug    = errors.New("tenant: invalid slug format")
)

// Status represents a tenant's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Plan identifies the pricing tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// Settings stores configurable tenant limits.
type Settings struct {
	RateLimitRPM   int      `json:"rateLimitRpm"`
	MaxSeats       int      `json:"maxSeats"` // staff accounts (0 = unlimited)
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// Tenant represents an organisation using the platform. Each tenant is
// reachable on {slug}.{root domain}; the slug doubles as the DNS label.
type Tenant struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Slug               string     `json:"slug"`
	Domain             string     `json:"domain,omitempty"` // optional custom domain
	Plan               Plan       `json:"plan"`
	Status             Status     `json:"status"`
	StripeCustomerID   string     `json:"stripeCustomerId,omitempty"`
	SubscriptionEndsAt *time.Time `json:"subscriptionEndsAt,omitempty"`
	Settings           Settings   `json:"settings"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// CanServe reports whether requests for this tenant may reach business logic.
// Suspended and cancelled tenants resolve (the identity is known) but are
// denied at the authorization boundary.
func (t *Tenant) CanServe() bool {
	return t.Status == StatusActive
}

// slug rules: DNS label, lowercase alphanumeric plus hyphens, 3-63 chars,
// starts and ends alphanumeric.
var validSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// reservedSlugs are subdomains with platform meaning; no tenant may claim them.
var reservedSlugs = map[string]bool{
	"admin": true,
	"www":   true,
}

// ValidateSlug checks a candidate slug for format and reservation.
// Provisioning must lowercase before calling; "ACME-1" fails the format check
// rather than being silently normalized.
func ValidateSlug(slug string) error {
	if !validSlug.MatchString(slug) {
		return ErrInvalidSlug
	}
	if reservedSlugs[slug] {
		return ErrSlugReserved
	}
	return nil
}

// IsReservedSlug reports whether the label is reserved (admin, www).
func IsReservedSlug(slug string) bool {
	return reservedSlugs[slug]
}
