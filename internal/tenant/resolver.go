package tenant

import (
	"context"
	"net"
	"strings"
)

// SlugHeader is set by the edge dispatcher for tenant-context requests so
// downstream handlers never re-parse the Host header.
const SlugHeader = "X-Tenant-Slug"

// Resolver maps an untrusted hostname (or an explicit slug header) to a
// durable tenant identity.
type Resolver struct {
	store      Store
	rootDomain string
	devMode    bool // also match {slug}.localhost
}

// NewResolver creates a resolver for the given root domain.
func NewResolver(store Store, rootDomain string, devMode bool) *Resolver {
	return &Resolver{
		store:      store,
		rootDomain: strings.ToLower(rootDomain),
		devMode:    devMode,
	}
}

// Resolve produces the tenant for a request, or nil when the request carries
// no tenant identity. "No tenant" is a valid outcome (the generic landing
// experience), not an error; errors are reserved for store failures.
//
// Resolution order:
//  1. explicit slug header (unless it names the reserved admin marker)
//  2. subdomain of the root domain (or .localhost in development)
//  3. exact custom-domain match
func (r *Resolver) Resolve(ctx context.Context, host, slugHeader string) (*Tenant, error) {
	if slugHeader != "" && !IsReservedSlug(slugHeader) {
		return r.lookupSlug(ctx, slugHeader)
	}

	hostname := StripPort(host)
	if slug := r.CandidateSlug(hostname); slug != "" {
		return r.lookupSlug(ctx, slug)
	}

	// Not under the root domain at all: try custom domains.
	if hostname != "" && !strings.HasSuffix(strings.ToLower(hostname), r.rootDomain) {
		t, err := r.store.GetByDomain(ctx, hostname)
		if err == ErrTenantNotFound {
			return nil, nil
		}
		return t, err
	}

	return nil, nil
}

func (r *Resolver) lookupSlug(ctx context.Context, slug string) (*Tenant, error) {
	// No case normalization here: tenants are provisioned lowercase, and a
	// look-alike uppercase label must not silently merge into them.
	t, err := r.store.GetBySlug(ctx, slug)
	if err == ErrTenantNotFound {
		return nil, nil
	}
	return t, err
}

// CandidateSlug extracts the leftmost label when the hostname is a subdomain
// of the root domain (or of .localhost in development). Reserved labels and
// the bare root domain yield "".
func (r *Resolver) CandidateSlug(hostname string) string {
	lower := strings.ToLower(hostname)

	suffixes := []string{"." + r.rootDomain}
	if r.devMode {
		suffixes = append(suffixes, ".localhost")
	}

	for _, suffix := range suffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		prefix := hostname[:len(hostname)-len(suffix)]
		// Only direct subdomains: a.b.root resolves nothing.
		if prefix == "" || strings.Contains(prefix, ".") {
			return ""
		}
		if IsReservedSlug(strings.ToLower(prefix)) {
			return ""
		}
		return prefix
	}
	return ""
}

// StripPort removes a :port suffix from a Host header value.
func StripPort(host string) string {
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
