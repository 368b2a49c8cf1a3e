// Package edge classifies every inbound request into one of three worlds:
// the public marketing site, the platform-admin console, or a specific
// tenant's application. It runs before any handler, stays side-effect-free,
// and only ever answers with a pass-through or a redirect.
package edge

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kaledsoft/platform/internal/metrics"
	"github.com/kaledsoft/platform/internal/session"
	"github.com/kaledsoft/platform/internal/tenant"
)

// Context is the world a request belongs to.
type Context string

const (
	ContextLanding Context = "landing"
	ContextAdmin   Context = "admin"
	ContextTenant  Context = "tenant"
)

// Gin context keys set by the dispatcher.
const (
	CtxKeyContext    = "edge_context"
	CtxKeyTenantSlug = "edge_tenant_slug"
)

// Login paths per context.
const (
	AdminLoginPath  = "/login"
	TenantLoginPath = "/auth/login"
)

// Dispatcher is the edge classifier.
type Dispatcher struct {
	rootDomain string
	devMode    bool

	// Per-context public path prefixes. Anything else needs a session
	// cookie to proceed.
	adminAllow  []string
	tenantAllow []string
}

// NewDispatcher creates the edge dispatcher for the given root domain.
func NewDispatcher(rootDomain string, devMode bool) *Dispatcher {
	return &Dispatcher{
		rootDomain: strings.ToLower(rootDomain),
		devMode:    devMode,
		adminAllow: []string{
			"/login", "/forgot-password", "/reset-password",
			"/health", "/metrics", "/static/",
		},
		tenantAllow: []string{
			"/auth/", "/suspended", "/api/tenant",
			"/health", "/metrics", "/static/",
		},
	}
}

// Classify maps a Host header to a request context and, for tenant context,
// the candidate slug. The slug is a hostname label at this point, not a
// verified tenant; verification happens in the authorization layer.
func (d *Dispatcher) Classify(host string) (Context, string) {
	hostname := strings.ToLower(tenant.StripPort(host))

	label := d.subdomainLabel(hostname)
	switch {
	case label == "admin":
		return ContextAdmin, ""
	case label != "" && label != "www":
		return ContextTenant, label
	}

	// A host outside the root domain entirely is a tenant custom domain
	// unless it is the bare root or localhost.
	if hostname != "" && hostname != d.rootDomain && hostname != "localhost" &&
		!strings.HasSuffix(hostname, "."+d.rootDomain) &&
		!strings.HasSuffix(hostname, ".localhost") {
		return ContextTenant, ""
	}

	return ContextLanding, ""
}

// subdomainLabel returns the leftmost label for direct subdomains of the
// root domain (or .localhost in development), "" otherwise.
func (d *Dispatcher) subdomainLabel(hostname string) string {
	suffixes := []string{"." + d.rootDomain}
	if d.devMode {
		suffixes = append(suffixes, ".localhost")
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(hostname, suffix) {
			label := strings.TrimSuffix(hostname, suffix)
			if label != "" && !strings.Contains(label, ".") {
				return label
			}
		}
	}
	return ""
}

// RequestHost returns the host the client addressed: X-Forwarded-Host when a
// proxy set it, the Host header otherwise.
func RequestHost(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		// Proxies may append hops comma-separated; the first is the client's.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	return c.Request.Host
}

// Middleware classifies the request and enforces the cookie-presence gate.
//
// The gate is presence-only: the cookie's validity is re-verified by the
// authorization wrappers, because the dispatcher cannot safely reach the
// session store in every deployment topology. On failure it only redirects,
// never writes JSON, since it runs ahead of content negotiation. Tenant
// status (suspended, cancelled) is deliberately not checked here.
func (d *Dispatcher) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqCtx, slug := d.Classify(RequestHost(c))

		c.Set(CtxKeyContext, string(reqCtx))
		// The slug header is dispatcher-owned: whatever the client sent is
		// dropped so only a host-derived value ever reaches handlers.
		c.Request.Header.Del(tenant.SlugHeader)
		if slug != "" {
			c.Set(CtxKeyTenantSlug, slug)
			// Forwarded so downstream handlers never re-parse the host.
			c.Request.Header.Set(tenant.SlugHeader, slug)
		}
		metrics.RequestContextTotal.WithLabelValues(string(reqCtx)).Inc()

		if d.requiresCookie(reqCtx, c.Request.URL.Path) {
			if _, err := c.Cookie(session.CookieName); err != nil {
				c.Redirect(http.StatusFound, loginPath(reqCtx))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

func (d *Dispatcher) requiresCookie(reqCtx Context, path string) bool {
	var allow []string
	switch reqCtx {
	case ContextAdmin:
		allow = d.adminAllow
	case ContextTenant:
		allow = d.tenantAllow
	default:
		// Landing pages are all public.
		return false
	}
	for _, prefix := range allow {
		if path == prefix || strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func loginPath(reqCtx Context) string {
	if reqCtx == ContextAdmin {
		return AdminLoginPath
	}
	return TenantLoginPath
}

// RequestContext reads the classified context from a gin context.
func RequestContext(c *gin.Context) Context {
	if v, ok := c.Get(CtxKeyContext); ok {
		return Context(v.(string))
	}
	return ContextLanding
}

// TenantSlug reads the classified tenant slug, if any.
func TenantSlug(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyTenantSlug); ok {
		return v.(string)
	}
	return ""
}
