// Package account provides the auth endpoints: login, logout, registration
// and password reset. All of them are publicly reachable per context and all
// are rate limited by email and client IP.
package account

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/kaledsoft/platform/internal/idgen"
	"github.com/kaledsoft/platform/internal/logging"
	"github.com/kaledsoft/platform/internal/metrics"
	"github.com/kaledsoft/platform/internal/ratelimit"
	"github.com/kaledsoft/platform/internal/session"
	"github.com/kaledsoft/platform/internal/tenant"
	"github.com/kaledsoft/platform/internal/user"
	"github.com/kaledsoft/platform/internal/validation"
)

const resetTokenTTL = time.Hour

// Limits bundles the per-action rate limit windows.
type Limits struct {
	Login    ratelimit.Config
	Register ratelimit.Config
	Reset    ratelimit.Config
}

// CookieSettings controls the session cookie.
type CookieSettings struct {
	Domain string
	Secure bool
}

// Handler serves the auth endpoints.
type Handler struct {
	users    user.Store
	tenants  tenant.Store
	sessions *session.Manager
	limiter  ratelimit.Limiter
	limits   Limits
	cookie   CookieSettings
}

// NewHandler creates the auth handler.
func NewHandler(users user.Store, tenants tenant.Store, sessions *session.Manager, limiter ratelimit.Limiter, limits Limits, cookie CookieSettings) *Handler {
	return &Handler{
		users:    users,
		tenants:  tenants,
		sessions: sessions,
		limiter:  limiter,
		limits:   limits,
		cookie:   cookie,
	}
}

// RegisterRoutes mounts the endpoints on a context's auth group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	r.POST("/register", h.Register)
	r.POST("/forgot-password", h.ForgotPassword)
	r.POST("/reset-password", h.ResetPassword)
}

// Login handles POST /login.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "email and password required"})
		return
	}
	email := validation.NormalizeEmail(req.Email)

	emailKey := ratelimit.Key(email, "login")
	ipKey := ratelimit.Key(c.ClientIP(), "login")
	if res := h.limiter.Check(emailKey, h.limits.Login); !res.Allowed {
		ratelimit.Deny(c, "login", res)
		return
	}
	if res := h.limiter.Check(ipKey, h.limits.Login); !res.Allowed {
		ratelimit.Deny(c, "login", res)
		return
	}

	ctx := c.Request.Context()
	u, err := h.users.GetByEmail(ctx, email)
	if err != nil || !u.IsActive || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "failed").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": "invalid credentials"})
		return
	}

	// A successful login clears the window so one typo earlier in the
	// minute doesn't keep counting against the user.
	h.limiter.Reset(emailKey)
	h.limiter.Reset(ipKey)

	raw, _, err := h.sessions.Create(ctx, u.ID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		logging.L(ctx).Error("session creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "login failed"})
		return
	}
	h.setSessionCookie(c, raw, int(h.sessions.TTL().Seconds()))

	metrics.AuthAttemptsTotal.WithLabelValues("login", "ok").Inc()
	logging.L(ctx).Info("user logged in", "user_id", u.ID)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u, "mustChangePassword": u.MustChangePass})
}

// Logout handles POST /logout. Idempotent: no session is still a success.
func (h *Handler) Logout(c *gin.Context) {
	if raw, err := c.Cookie(session.CookieName); err == nil && raw != "" {
		if err := h.sessions.Destroy(c.Request.Context(), raw); err != nil {
			logging.L(c.Request.Context()).Warn("session destroy failed", "error", err)
		}
	}
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Register handles POST /register. Registration is tenant-context only: the
// new account is bound to the tenant the edge dispatcher resolved.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "email, password and name required"})
		return
	}
	email := validation.NormalizeEmail(req.Email)
	if !validation.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "invalid email"})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "password must be at least 8 characters"})
		return
	}

	if res := h.limiter.Check(ratelimit.Key(c.ClientIP(), "register"), h.limits.Register); !res.Allowed {
		ratelimit.Deny(c, "register", res)
		return
	}

	ctx := c.Request.Context()
	slug := c.GetHeader(tenant.SlugHeader)
	if slug == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "tenant_unresolved", "message": "registration requires a tenant"})
		return
	}
	t, err := h.tenants.GetBySlug(ctx, slug)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "tenant_unresolved", "message": "registration requires a tenant"})
		return
	}
	if !t.CanServe() {
		c.Redirect(http.StatusFound, "/suspended")
		c.Abort()
		return
	}
	if t.Settings.MaxSeats > 0 {
		count, err := h.users.CountByTenant(ctx, t.ID)
		if err != nil {
			// Quota checks fail closed: an unknown count must not admit a seat.
			logging.L(ctx).Error("seat count failed", "error", err, "tenant_id", t.ID)
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "internal_error", "message": "registration temporarily unavailable"})
			return
		}
		if count >= t.Settings.MaxSeats {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden", "message": "seat limit reached for this plan"})
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "registration failed"})
		return
	}

	now := time.Now()
	u := &user.User{
		ID:           idgen.WithPrefix("usr_"),
		Email:        email,
		PasswordHash: string(hash),
		Name:         validation.SanitizeString(req.Name, 200),
		TenantID:     t.ID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.users.Create(ctx, u); err != nil {
		if err == user.ErrEmailTaken {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "email_taken", "message": "email already registered"})
			return
		}
		logging.L(ctx).Error("user creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "registration failed"})
		return
	}

	raw, _, err := h.sessions.Create(ctx, u.ID, c.ClientIP(), c.Request.UserAgent())
	if err == nil {
		h.setSessionCookie(c, raw, int(h.sessions.TTL().Seconds()))
	}

	metrics.AuthAttemptsTotal.WithLabelValues("register", "ok").Inc()
	logging.L(ctx).Info("user registered", "user_id", u.ID, "tenant_id", t.ID)
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": u})
}

// ForgotPassword handles POST /forgot-password. The response never reveals
// whether the email exists.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "email required"})
		return
	}
	email := validation.NormalizeEmail(req.Email)

	if res := h.limiter.Check(ratelimit.Key(email, "reset"), h.limits.Reset); !res.Allowed {
		ratelimit.Deny(c, "reset", res)
		return
	}

	ctx := c.Request.Context()
	if u, err := h.users.GetByEmail(ctx, email); err == nil && u.IsActive {
		raw := idgen.Hex(32)
		expiry := time.Now().Add(resetTokenTTL)
		u.ResetTokenHash = session.HashToken(raw)
		u.ResetTokenExpiry = &expiry
		u.UpdatedAt = time.Now()
		if err := h.users.Update(ctx, u); err != nil {
			logging.L(ctx).Error("reset token persist failed", "error", err)
		} else {
			// Delivery is owned by the email module; we only mint the token.
			logging.L(ctx).Info("password reset token issued", "user_id", u.ID)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "if the account exists, a reset link has been sent"})
}

// ResetPassword handles POST /reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "token and password required"})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "password must be at least 8 characters"})
		return
	}

	if res := h.limiter.Check(ratelimit.Key(c.ClientIP(), "reset"), h.limits.Reset); !res.Allowed {
		ratelimit.Deny(c, "reset", res)
		return
	}

	ctx := c.Request.Context()
	u, err := h.users.GetByResetTokenHash(ctx, session.HashToken(req.Token))
	if err != nil || u.ResetTokenExpiry == nil || time.Now().After(*u.ResetTokenExpiry) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": "invalid or expired reset token"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "reset failed"})
		return
	}

	u.PasswordHash = string(hash)
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	u.MustChangePass = false
	u.UpdatedAt = time.Now()
	if err := h.users.Update(ctx, u); err != nil {
		logging.L(ctx).Error("password update failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "reset failed"})
		return
	}

	// Every outstanding session dies with the old password.
	if n, err := h.sessions.DestroyAllForUser(ctx, u.ID); err == nil && n > 0 {
		logging.L(ctx).Info("revoked sessions after password reset", "user_id", u.ID, "count", n)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
