// Package server wires the HTTP tier: middleware chain, edge dispatch,
// authorization wrappers and the per-context routes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/kaledsoft/platform/internal/account"
	"github.com/kaledsoft/platform/internal/authz"
	"github.com/kaledsoft/platform/internal/billing"
	"github.com/kaledsoft/platform/internal/config"
	"github.com/kaledsoft/platform/internal/csrf"
	"github.com/kaledsoft/platform/internal/edge"
	"github.com/kaledsoft/platform/internal/logging"
	"github.com/kaledsoft/platform/internal/metrics"
	"github.com/kaledsoft/platform/internal/ratelimit"
	"github.com/kaledsoft/platform/internal/scope"
	"github.com/kaledsoft/platform/internal/security"
	"github.com/kaledsoft/platform/internal/session"
	"github.com/kaledsoft/platform/internal/tenant"
	"github.com/kaledsoft/platform/internal/traces"
	"github.com/kaledsoft/platform/internal/user"
	"github.com/kaledsoft/platform/internal/validation"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB // nil if using in-memory
	tenants  tenant.Store
	users    user.Store
	sessions *session.Manager
	limiter  *ratelimit.FixedWindow
	billing  *billing.Service
	csrf     *csrf.Validator

	dispatcher    *edge.Dispatcher
	resolver      *tenant.Resolver
	authorizer    *authz.Authorizer
	tenantSweep   *tenant.Sweeper
	sessionSweep  *session.Sweeper
	router        *gin.Engine
	httpSrv       *http.Server
	cancelRunCtx  context.CancelFunc
	shutdownTrace func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var sessionStore session.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.tenants = tenant.NewPostgresStore(db)
		s.users = user.NewPostgresStore(db)
		sessionStore = session.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.tenants = tenant.NewMemoryStore()
		s.users = user.NewMemoryStore()
		sessionStore = session.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}
	s.sessions = session.NewManager(sessionStore, cfg.SessionTTL)

	// Tracing (no-op when no OTLP endpoint is configured)
	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("trace exporter init failed", "error", err)
	} else {
		s.shutdownTrace = shutdown
	}

	s.billing = billing.New(cfg.StripeSecretKey)
	if s.billing.Enabled() {
		s.logger.Info("stripe billing enabled")
	}

	s.limiter = ratelimit.New()
	s.dispatcher = edge.NewDispatcher(cfg.RootDomain, cfg.IsDevelopment())
	s.resolver = tenant.NewResolver(s.tenants, cfg.RootDomain, cfg.IsDevelopment())

	s.csrf = csrf.NewValidator(cfg.DisableCSRF && cfg.IsDevelopment())
	s.authorizer = authz.New(s.sessions, s.users, s.tenants, s.csrf)

	s.tenantSweep = tenant.NewSweeper(s.tenants, s.logger)
	s.sessionSweep = session.NewSweeper(sessionStore, s.logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: tenant subdomains call the shared API origin
	if s.cfg.IsDevelopment() {
		s.router.Use(security.CORSMiddleware([]string{"*"}))
	} else {
		s.router.Use(security.CORSMiddleware([]string{
			"https://" + s.cfg.RootDomain,
			"https://*." + s.cfg.RootDomain,
		}))
	}

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())

	// Edge dispatch: classify the request's world, enforce the
	// cookie-presence gate
	s.router.Use(s.dispatcher.Middleware())

	// Business errors never leak past the authorization tier
	s.router.Use(authz.ErrorBoundary())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())
		if slug := edge.TenantSlug(c); slug != "" {
			logger = logger.With("tenant_slug", slug)
		}

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Auth endpoints, rate limited by email/IP inside the handler. The same
	// handler serves both surfaces: /auth/* on tenant subdomains, bare paths
	// on the admin console.
	accountHandler := account.NewHandler(s.users, s.tenants, s.sessions, s.limiter,
		account.Limits{
			Login:    ratelimit.Config{MaxRequests: s.cfg.LoginMaxAttempts, Window: s.cfg.LoginWindow},
			Register: ratelimit.Config{MaxRequests: s.cfg.RegisterMaxAttempts, Window: s.cfg.RegisterWindow},
			Reset:    ratelimit.Config{MaxRequests: s.cfg.ResetMaxAttempts, Window: s.cfg.ResetWindow},
		},
		account.CookieSettings{
			Domain: s.cfg.CookieDomain,
			Secure: s.cfg.IsProduction(),
		},
	)
	// The auth endpoints sit outside the authorization wrappers, so the
	// same-site check is mounted here; a cross-site login POST is rejected
	// before credentials are even read.
	csrfMW := s.csrf.Middleware()
	authGroup := s.router.Group("/auth")
	authGroup.Use(csrfMW)
	accountHandler.RegisterRoutes(authGroup)
	s.router.POST("/login", csrfMW, accountHandler.Login)
	s.router.POST("/logout", csrfMW, accountHandler.Logout)
	s.router.POST("/forgot-password", csrfMW, accountHandler.ForgotPassword)
	s.router.POST("/reset-password", csrfMW, accountHandler.ResetPassword)

	// Suspended-notice page: resolved identity, denied access
	s.router.GET(authz.SuspendedPath, s.suspendedHandler)

	// Public tenant lookup (branding for the login page, custom domains)
	s.router.GET("/api/tenant", s.tenantInfoHandler)

	// Current-user endpoint for any authenticated context
	s.router.GET("/api/me", s.authorizer.RequireSession(), s.meHandler)

	// Tenant application surface
	s.router.GET("/dashboard", s.authorizer.RequireTenantSession(), s.dashboardHandler)
	s.router.GET("/api/workspace", s.authorizer.RequireTenantSession(), s.workspaceHandler)

	// Platform-admin console API
	adminAPI := s.router.Group("/api/admin")
	adminAPI.Use(s.authorizer.RequirePlatformRole(user.RoleSuperAdmin, user.RoleAsesorComercial))
	var customers tenant.CustomerCreator
	if s.billing.Enabled() {
		customers = s.billing
	}
	tenant.NewHandler(s.tenants, customers).RegisterRoutes(adminAPI)

	// Support tooling: the only surface allowed to fall back to the earliest
	// active tenant when no tenant is named explicitly
	s.router.GET("/api/support/workspace",
		s.authorizer.RequirePlatformSupportSession(), s.workspaceHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) suspendedHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"error":   "tenant_suspended",
		"message": "This workspace is suspended. Contact your administrator to restore access.",
	})
}

// tenantInfoHandler resolves the caller's tenant from the hostname or the
// slug header and returns its public identity. No tenant is a valid outcome.
func (s *Server) tenantInfoHandler(c *gin.Context) {
	ctx, span := traces.StartSpan(c.Request.Context(), "tenant.resolve")
	defer span.End()

	t, err := s.resolver.Resolve(ctx, edge.RequestHost(c), c.GetHeader(tenant.SlugHeader))
	if err != nil {
		metrics.TenantLookupsTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Error("tenant resolution failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "tenant lookup failed"})
		return
	}
	if t == nil {
		metrics.TenantLookupsTotal.WithLabelValues("miss").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "tenant": nil})
		return
	}

	metrics.TenantLookupsTotal.WithLabelValues("hit").Inc()
	span.SetAttributes(traces.TenantID(t.ID), traces.TenantSlug(t.Slug))
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": gin.H{
		"id":     t.ID,
		"name":   t.Name,
		"slug":   t.Slug,
		"status": t.Status,
		"plan":   t.Plan,
	}})
}

func (s *Server) meHandler(c *gin.Context) {
	p := authz.CurrentPrincipal(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": p.User})
}

// dashboardHandler stands in for the tenant application shell. The principal
// carries the only tenant id the handler may use.
func (s *Server) dashboardHandler(c *gin.Context) {
	p := authz.CurrentPrincipal(c)

	ctx := logging.WithTenantID(c.Request.Context(), p.TenantID)
	logging.L(ctx).Info("dashboard served", "user_id", p.User.ID)

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"tenantId": p.TenantID,
		"user":     p.User,
	})
}

// workspaceHandler reports the workspace the caller is scoped to, including
// the seat usage read through a tenant-scoped query.
func (s *Server) workspaceHandler(c *gin.Context) {
	p := authz.CurrentPrincipal(c)
	ctx := c.Request.Context()

	t, err := s.tenants.Get(ctx, p.TenantID)
	if err != nil {
		logging.L(ctx).Error("workspace lookup failed", "error", err, "tenant_id", p.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "workspace lookup failed"})
		return
	}

	seats, err := s.seatCount(ctx, p.TenantID)
	if err != nil {
		logging.L(ctx).Warn("seat count failed", "error", err, "tenant_id", p.TenantID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"workspace": gin.H{
			"id":       t.ID,
			"name":     t.Name,
			"slug":     t.Slug,
			"plan":     t.Plan,
			"status":   t.Status,
			"seats":    seats,
			"maxSeats": t.Settings.MaxSeats,
		},
	})
}

// seatCount counts the workspace's staff accounts. With Postgres the count
// goes through a tenant-scoped query so the binding is structural.
func (s *Server) seatCount(ctx context.Context, tenantID string) (int, error) {
	if s.db != nil {
		sc, err := scope.ForTenant(s.db, tenantID)
		if err != nil {
			return 0, err
		}
		var count int
		err = sc.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id = $1`).Scan(&count)
		return count, err
	}
	return s.users.CountByTenant(ctx, tenantID)
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"root_domain", s.cfg.RootDomain,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Background sweeps
	go s.sessionSweep.Start(runCtx)
	go s.tenantSweep.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.sessionSweep.Stop()
	s.tenantSweep.Stop()
	s.limiter.Stop()
	s.logger.Info("background workers stopped")

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
