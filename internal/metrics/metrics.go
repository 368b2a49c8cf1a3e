// Package metrics provides Prometheus instrumentation for the platform core.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaledsoft",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kaledsoft",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RequestContextTotal counts classified requests per edge context.
	RequestContextTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaledsoft",
			Name:      "request_context_total",
			Help:      "Requests classified by edge context (landing, admin, tenant).",
		},
		[]string{"context"},
	)

	// AuthAttemptsTotal counts authentication attempts by action and result.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaledsoft",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by action (login, register, reset) and result.",
		},
		[]string{"action", "result"},
	)

	// RateLimitedTotal counts requests denied by the rate limiter, per action.
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaledsoft",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by action.",
		},
		[]string{"action"},
	)

	// CSRFRejectedTotal counts mutating requests rejected by CSRF validation.
	CSRFRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaledsoft",
		Name:      "csrf_rejected_total",
		Help:      "Mutating requests rejected by same-site validation.",
	})

	// TenantLookupsTotal counts tenant resolutions by outcome.
	TenantLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaledsoft",
			Name:      "tenant_lookups_total",
			Help:      "Tenant resolutions by outcome (resolved, none, suspended).",
		},
		[]string{"outcome"},
	)

	// SessionsSweptTotal counts expired session rows deleted by the sweep.
	SessionsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaledsoft",
		Name:      "sessions_swept_total",
		Help:      "Expired session rows deleted by the background sweep.",
	})

	// TenantsSuspendedTotal counts tenants moved to SUSPENDED by the sweep.
	TenantsSuspendedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaledsoft",
		Name:      "tenants_suspended_total",
		Help:      "Tenants suspended by the subscription sweep.",
	})

	// ActiveSessions tracks live (non-expired) sessions, sampled periodically.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft",
		Name:      "active_sessions",
		Help:      "Number of currently live sessions.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaledsoft", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RequestContextTotal,
		AuthAttemptsTotal,
		RateLimitedTotal,
		CSRFRejectedTotal,
		TenantLookupsTotal,
		SessionsSweptTotal,
		TenantsSuspendedTotal,
		ActiveSessions,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
