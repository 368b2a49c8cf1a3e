// Package billing integrates tenant provisioning with Stripe. When no API
// key is configured the service is disabled and provisioning proceeds
// without a billing customer.
package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
)

// ErrDisabled is returned when billing is not configured.
var ErrDisabled = errors.New("billing: not configured")

// Service creates billing customers for tenants.
type Service struct {
	enabled bool
}

// New creates the billing service. An empty key disables it.
func New(apiKey string) *Service {
	if apiKey == "" {
		return &Service{}
	}
	stripe.Key = apiKey
	return &Service{enabled: true}
}

// Enabled reports whether billing is configured.
func (s *Service) Enabled() bool {
	return s.enabled
}

// CreateCustomer registers a Stripe customer for a tenant and returns its id.
func (s *Service) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if !s.enabled {
		return "", ErrDisabled
	}
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}
