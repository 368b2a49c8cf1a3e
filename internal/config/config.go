// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Multi-tenancy
	RootDomain string // e.g. "kaledsoft.tech"; tenant subdomains hang off this

	// Sessions
	SessionTTL   time.Duration
	CookieDomain string // optional; defaults to host-only cookies

	// Security
	DisableCSRF bool // development escape hatch, refused outside development

	// Rate limiting (auth-sensitive actions)
	LoginMaxAttempts    int
	LoginWindow         time.Duration
	RegisterMaxAttempts int
	RegisterWindow      time.Duration
	ResetMaxAttempts    int
	ResetWindow         time.Duration

	// Billing
	StripeSecretKey string // optional; tenant provisioning skips Stripe when empty

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultRootDomain = "kaledsoft.tech"

	DefaultSessionTTLHours   = 24 * 7
	DefaultLoginAttempts     = 5
	DefaultRegisterAttempts  = 3
	DefaultResetAttempts     = 3
	DefaultAuthWindowMinutes = 15
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RootDomain:  getEnv("ROOT_DOMAIN", DefaultRootDomain),

		SessionTTL:   time.Duration(getEnvInt64("SESSION_TTL_HOURS", DefaultSessionTTLHours)) * time.Hour,
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),

		DisableCSRF: getEnvBool("DISABLE_CSRF", false),

		LoginMaxAttempts:    int(getEnvInt64("LOGIN_MAX_ATTEMPTS", DefaultLoginAttempts)),
		LoginWindow:         time.Duration(getEnvInt64("LOGIN_WINDOW_MINUTES", DefaultAuthWindowMinutes)) * time.Minute,
		RegisterMaxAttempts: int(getEnvInt64("REGISTER_MAX_ATTEMPTS", DefaultRegisterAttempts)),
		RegisterWindow:      time.Duration(getEnvInt64("REGISTER_WINDOW_MINUTES", DefaultAuthWindowMinutes)) * time.Minute,
		ResetMaxAttempts:    int(getEnvInt64("RESET_MAX_ATTEMPTS", DefaultResetAttempts)),
		ResetWindow:         time.Duration(getEnvInt64("RESET_WINDOW_MINUTES", DefaultAuthWindowMinutes)) * time.Minute,

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RootDomain == "" {
		return fmt.Errorf("ROOT_DOMAIN is required")
	}
	if strings.Contains(c.RootDomain, "://") || strings.Contains(c.RootDomain, "/") {
		return fmt.Errorf("ROOT_DOMAIN must be a bare hostname, got %q", c.RootDomain)
	}
	// The CSRF bypass is a local-development convenience only. Refusing it
	// here keeps a stray DISABLE_CSRF=true from shipping to production.
	if c.DisableCSRF && c.Env != "development" {
		return fmt.Errorf("DISABLE_CSRF is only allowed when ENV=development")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
