package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Tenant resolution outcomes by method ("custom_domain", "subdomain",
	// "header", "path", "claims") or "none" for system endpoints
	ResolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolution_total",
			Help: "Total number of tenant resolution attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// Tenant lifecycle operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_operations_total",
			Help: "Total number of tenant lifecycle operations",
		},
		[]string{"operation"}, // "create", "update", "change_plan", "suspend", etc.
	)

	// Isolation-layer error counter
	IsolationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_isolation_errors_total",
			Help: "Total number of isolation-layer errors by code",
		},
		[]string{"code"},
	)

	// Rate-limit refusals by limit type
	RateLimitRejectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_rate_limit_rejections_total",
			Help: "Total number of requests refused by the rate limiter",
		},
		[]string{"limit_type"},
	)

	// Quota violations by metric
	QuotaViolationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_quota_violations_total",
			Help: "Total number of quota violations recorded",
		},
		[]string{"metric"},
	)

	// Tenant migration runs
	MigrationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_migrations_total",
			Help: "Total number of tenant migrations by outcome",
		},
		[]string{"outcome"}, // "applied", "skipped", "failed"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "migrate"
	)
)

// Gauge metrics
var (
	// Cached per-tenant connections
	ConnectionCacheGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_cached_connections",
			Help: "Number of cached per-tenant storage connections",
		},
	)

	// Live rate-limit buckets
	RateLimitBucketGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_rate_limit_buckets",
			Help: "Number of live rate-limit buckets",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenant_service_info",
			Help: "Information about the tenant service",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(ResolutionCounter)
	prometheus.MustRegister(TenantOperationCounter)
	prometheus.MustRegister(IsolationErrorCounter)
	prometheus.MustRegister(RateLimitRejectionCounter)
	prometheus.MustRegister(QuotaViolationCounter)
	prometheus.MustRegister(MigrationCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ConnectionCacheGauge)
	prometheus.MustRegister(RateLimitBucketGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// RecordResolution records a tenant resolution attempt.
func RecordResolution(method, outcome string) {
	ResolutionCounter.With(prometheus.Labels{"method": method, "outcome": outcome}).Inc()
}

// RecordTenantOperation records a tenant lifecycle operation.
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordIsolationError records an isolation-layer error by code.
func RecordIsolationError(code string) {
	IsolationErrorCounter.With(prometheus.Labels{"code": code}).Inc()
}

// RecordRateLimitRejection records a refused consume.
func RecordRateLimitRejection(limitType string) {
	RateLimitRejectionCounter.With(prometheus.Labels{"limit_type": limitType}).Inc()
}

// RecordQuotaViolation records an over-quota usage metric.
func RecordQuotaViolation(metric string) {
	QuotaViolationCounter.With(prometheus.Labels{"metric": metric}).Inc()
}

// RecordMigration records a tenant migration outcome.
func RecordMigration(outcome string) {
	MigrationCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
