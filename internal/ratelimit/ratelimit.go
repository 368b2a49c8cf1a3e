// Package ratelimit provides fixed-window rate limiting for sensitive actions.
//
// The limiter is process-local and best-effort: a defense-in-depth control,
// not a security boundary. Exceeding a known quota always denies; an internal
// limiter fault never blocks the request path (the caller treats a fault as
// allowed).
package ratelimit

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaledsoft/platform/internal/metrics"
)

// Config configures one action's window.
type Config struct {
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int
	// Window is the fixed window length.
	Window time.Duration
}

// Result is the outcome of a window check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is the injectable rate-limiting contract. Handlers depend on this
// interface so a shared (e.g. Redis-backed) implementation can be swapped in
// without touching call sites.
type Limiter interface {
	Check(key string, cfg Config) Result
	Reset(key string)
}

// Key builds a limiter key from an identity and an action. The identity is
// lowercased so "Ana@Example.com" and "ana@example.com" share a budget, and
// the action is part of the key so login and register never share one.
func Key(identity, action string) string {
	return strings.ToLower(identity) + ":" + action
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is the in-process fixed-window limiter.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	stop    chan struct{}
}

// New creates a fixed-window limiter and starts its cleanup goroutine.
func New() *FixedWindow {
	l := &FixedWindow{
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// cleanup drops windows that have long since reset.
func (l *FixedWindow) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, w := range l.windows {
				if now.After(w.resetAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *FixedWindow) Stop() {
	close(l.stop)
}

// Check counts a request against the key's current window.
func (l *FixedWindow) Check(key string, cfg Config) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(cfg.Window)}
		l.windows[key] = w
	}

	if w.count >= cfg.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Result{
		Allowed:   true,
		Remaining: cfg.MaxRequests - w.count,
		ResetAt:   w.resetAt,
	}
}

// Reset clears the key's window immediately. Called after a successful login
// so a mistyped password does not keep penalizing the user.
func (l *FixedWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

var _ Limiter = (*FixedWindow)(nil)

// Deny writes the 429 response for an exhausted window and aborts.
func Deny(c *gin.Context, action string, res Result) {
	metrics.RateLimitedTotal.WithLabelValues(action).Inc()
	retryAfter := int(time.Until(res.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(429, gin.H{
		"success": false,
		"error":   "rate_limited",
		"message": "Too many attempts. Try again later.",
		"resetAt": res.ResetAt.UTC().Format(time.RFC3339),
	})
}

// Middleware limits a route by client IP, for anonymous endpoints.
func Middleware(l Limiter, action string, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := l.Check(Key(c.ClientIP(), action), cfg)
		if !res.Allowed {
			Deny(c, action, res)
			return
		}
		c.Next()
	}
}
