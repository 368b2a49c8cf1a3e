// Package authz provides the scoped authorization wrappers. Every protected
// handler sits behind one of three escalating contracts: a valid session, a
// platform role, or a fully resolved tenant scope. The wrappers are the only
// producers of structured auth errors; the edge dispatcher only redirects.
package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaledsoft/platform/internal/csrf"
	"github.com/kaledsoft/platform/internal/logging"
	"github.com/kaledsoft/platform/internal/metrics"
	"github.com/kaledsoft/platform/internal/session"
	"github.com/kaledsoft/platform/internal/tenant"
	"github.com/kaledsoft/platform/internal/user"
)

// SuspendedPath is the notice page suspended tenants redirect to.
const SuspendedPath = "/suspended"

const principalKey = "authz_principal"

// Principal is the authenticated caller, available to handlers after a
// wrapper has run. TenantID is set only by the tenant-scoped wrappers and is
// the single source of truth for data scoping; handlers must never re-derive
// it from client input.
type Principal struct {
	User     *user.User
	Session  *session.Session
	TenantID string
}

// CurrentPrincipal returns the principal set by a wrapper, or nil.
func CurrentPrincipal(c *gin.Context) *Principal {
	if v, ok := c.Get(principalKey); ok {
		return v.(*Principal)
	}
	return nil
}

// Authorizer builds the wrapper middlewares.
type Authorizer struct {
	sessions *session.Manager
	users    user.Store
	tenants  tenant.Store
	csrf     *csrf.Validator
}

// New creates an authorizer.
func New(sessions *session.Manager, users user.Store, tenants tenant.Store, v *csrf.Validator) *Authorizer {
	return &Authorizer{sessions: sessions, users: users, tenants: tenants, csrf: v}
}

// RequireSession resolves the session cookie to a live session and an active
// user. Mutating verbs are CSRF-checked first; a cross-site request fails
// with 403 regardless of session validity.
func (a *Authorizer) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := a.authenticate(c); p != nil {
			c.Set(principalKey, p)
			c.Next()
		}
	}
}

// RequirePlatformRole is RequireSession plus a platform-role check. Used only
// on the admin surface.
func (a *Authorizer) RequirePlatformRole(allowed ...user.PlatformRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := a.authenticate(c)
		if p == nil {
			return
		}
		if !p.User.HasPlatformRole(allowed...) {
			metrics.AuthAttemptsTotal.WithLabelValues("platform_role", "forbidden").Inc()
			forbidden(c, "insufficient role")
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireTenantSession is RequireSession plus tenant-scope resolution.
//
// The acting tenant is, in order: the user's own tenant binding, else the
// slug the edge dispatcher forwarded, looked up fresh so a stale or forged
// header can never grant access. A user bound to one tenant can therefore
// never act on another, whatever the header says. No resolvable tenant is a
// distinct 401 condition; a resolved but suspended tenant redirects to the
// notice page instead of erroring.
func (a *Authorizer) RequireTenantSession() gin.HandlerFunc {
	return a.tenantSession(false)
}

// RequirePlatformSupportSession is RequireTenantSession with the support
// escape hatch: platform staff acting without an explicit tenant fall back to
// the earliest-created active tenant. Only operational support tooling mounts
// this; everything else uses RequireTenantSession, where a missing tenant is
// an error.
func (a *Authorizer) RequirePlatformSupportSession() gin.HandlerFunc {
	return a.tenantSession(true)
}

func (a *Authorizer) tenantSession(supportFallback bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := a.authenticate(c)
		if p == nil {
			return
		}

		t, err := a.resolveActingTenant(c, p, supportFallback)
		if err != nil {
			logging.L(c.Request.Context()).Error("tenant scope resolution failed", "error", err)
			internalError(c)
			return
		}
		if t == nil {
			metrics.AuthAttemptsTotal.WithLabelValues("tenant_session", "unresolved").Inc()
			tenantUnresolved(c)
			return
		}
		if !t.CanServe() {
			// Resolved identity, denied access. Different from unresolved.
			c.Redirect(http.StatusFound, SuspendedPath)
			c.Abort()
			return
		}

		p.TenantID = t.ID
		c.Set(principalKey, p)
		c.Next()
	}
}

func (a *Authorizer) resolveActingTenant(c *gin.Context, p *Principal, supportFallback bool) (*tenant.Tenant, error) {
	ctx := c.Request.Context()

	// The user's own binding always wins over any header.
	if p.User.TenantID != "" {
		t, err := a.tenants.Get(ctx, p.User.TenantID)
		if err == tenant.ErrTenantNotFound {
			return nil, nil
		}
		return t, err
	}

	if slug := c.GetHeader(tenant.SlugHeader); slug != "" && !tenant.IsReservedSlug(slug) {
		t, err := a.tenants.GetBySlug(ctx, slug)
		if err == tenant.ErrTenantNotFound {
			return nil, nil
		}
		return t, err
	}

	if supportFallback && p.User.IsPlatform() {
		t, err := a.tenants.EarliestActive(ctx)
		if err == tenant.ErrTenantNotFound {
			return nil, nil
		}
		if t != nil {
			logging.L(ctx).Warn("support session fell back to earliest active tenant",
				"user_id", p.User.ID, "tenant_id", t.ID)
		}
		return t, err
	}

	return nil, nil
}

// authenticate runs the shared CSRF + session + user checks. On failure it
// writes the response and returns nil.
func (a *Authorizer) authenticate(c *gin.Context) *Principal {
	if !a.csrf.Validate(c.Request) {
		metrics.CSRFRejectedTotal.Inc()
		forbidden(c, "cross-site request rejected")
		return nil
	}

	raw, err := c.Cookie(session.CookieName)
	if err != nil || raw == "" {
		unauthorized(c, "authentication required")
		return nil
	}

	s, err := a.sessions.Validate(c.Request.Context(), raw)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("session", "invalid").Inc()
		unauthorized(c, "invalid or expired session")
		return nil
	}

	u, err := a.users.Get(c.Request.Context(), s.UserID)
	if err != nil {
		unauthorized(c, "invalid or expired session")
		return nil
	}
	if !u.IsActive {
		metrics.AuthAttemptsTotal.WithLabelValues("session", "inactive_user").Inc()
		unauthorized(c, "account disabled")
		return nil
	}

	metrics.AuthAttemptsTotal.WithLabelValues("session", "ok").Inc()
	return &Principal{User: u, Session: s}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false, "error": "unauthorized", "message": msg,
	})
}

func forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"success": false, "error": "forbidden", "message": msg,
	})
}

func tenantUnresolved(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false, "error": "tenant_unresolved", "message": "no tenant could be resolved for this request",
	})
}

func internalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false, "error": "internal_error", "message": "something went wrong",
	})
}

// ErrorBoundary keeps handler failures from leaking internals to a possibly
// cross-tenant caller: any panic past the wrappers becomes a generic 500.
func ErrorBoundary() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logging.L(c.Request.Context()).Error("handler panic", "panic", r, "path", c.FullPath())
				internalError(c)
			}
		}()
		c.Next()
	}
}
