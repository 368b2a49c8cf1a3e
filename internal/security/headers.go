// Package security provides security middleware for the HTTP tier.
package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware adds security headers to all responses
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		c.Header("X-Frame-Options", "DENY")

		// Referrer policy
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Content Security Policy for the server-rendered surfaces
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; font-src 'self' https://fonts.gstatic.com; img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'")

		// Permissions Policy
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// CORSMiddleware handles CORS for API endpoints.
// Tenant subdomains call the shared API origin, so the allow-list is usually
// built from the root domain at startup.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originsMap := make(map[string]bool)
	var wildcardSuffixes []string
	for _, o := range allowedOrigins {
		// "https://*.example.com" allows any direct subdomain.
		if i := strings.Index(o, "*."); i >= 0 {
			wildcardSuffixes = append(wildcardSuffixes, o[:i]+o[i+2:])
			continue
		}
		originsMap[o] = true
	}

	allowed := func(origin string) bool {
		if originsMap[origin] {
			return true
		}
		for _, suffix := range wildcardSuffixes {
			scheme, host, ok := strings.Cut(suffix, "://")
			if !ok {
				continue
			}
			if rest, found := strings.CutPrefix(origin, scheme+"://"); found &&
				strings.HasSuffix(rest, "."+host) &&
				!strings.Contains(strings.TrimSuffix(rest, "."+host), ".") {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if len(allowedOrigins) == 0 || allowed(origin) || originsMap["*"] {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Tenant-Slug")
			c.Header("Access-Control-Max-Age", "86400")
			// Only set Allow-Credentials when NOT using wildcard origins
			// (wildcard + credentials is a security vulnerability per CORS spec)
			if !originsMap["*"] {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		// Handle preflight
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
