// Package csrf provides same-site validation for mutating requests.
//
// The check is Origin-based: the Origin (or Referer as a fallback) must name
// the request's own host, or a direct subdomain of it so a tenant subdomain
// may post to a shared API origin. No per-form tokens; sessions ride a
// SameSite=Lax cookie and this check closes the cross-site POST gap.
package csrf

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kaledsoft/platform/internal/metrics"
	"github.com/kaledsoft/platform/internal/tenant"
)

var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// IsMutating reports whether the method requires CSRF validation.
func IsMutating(method string) bool {
	return mutatingMethods[method]
}

// Validator checks mutating requests for same-site origins.
type Validator struct {
	// disabled bypasses validation entirely. Config refuses to set it
	// outside development.
	disabled bool
}

// NewValidator creates a validator. disabled is only honored in development
// builds; config validation rejects the flag elsewhere.
func NewValidator(disabled bool) *Validator {
	return &Validator{disabled: disabled}
}

// Validate reports whether the request passes the same-site check.
// Non-mutating methods always pass.
func (v *Validator) Validate(r *http.Request) bool {
	if v.disabled {
		return true
	}
	if !IsMutating(r.Method) {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	// A mutating request that proves no origin at all is a hard failure.
	if origin == "" {
		return false
	}

	originHost := hostnameOf(origin)
	reqHost := tenant.StripPort(r.Host)
	if originHost == "" || reqHost == "" {
		return false
	}

	return SameSite(originHost, reqHost)
}

// SameSite reports whether originHost equals reqHost or is a direct
// subdomain of it.
func SameSite(originHost, reqHost string) bool {
	originHost = strings.ToLower(originHost)
	reqHost = strings.ToLower(reqHost)

	if originHost == reqHost {
		return true
	}
	if !strings.HasSuffix(originHost, "."+reqHost) {
		return false
	}
	// Direct subdomain only: acme.example.com may post to example.com,
	// a.b.example.com may not.
	prefix := strings.TrimSuffix(originHost, "."+reqHost)
	return prefix != "" && !strings.Contains(prefix, ".")
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Middleware rejects mutating cross-site requests with 403.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Validate(c.Request) {
			metrics.CSRFRejectedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "forbidden",
				"message": "cross-site request rejected",
			})
			return
		}
		c.Next()
	}
}
