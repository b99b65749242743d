package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/isolation"
	"tenant-service/internal/model"
	"tenant-service/internal/quota"
	"tenant-service/internal/ratelimit"
	"tenant-service/internal/security"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"
)

// Context keys set by the pipeline for downstream handlers.
const (
	ContextKeyTenant = "tenant"
	ContextKeyAccess = "access"
)

// Pipeline orchestrates the per-request isolation sequence: resolve the
// tenant, validate its status, establish data isolation, apply the security
// context, check quota, consume the rate limit, then invoke the handler. A
// cleanup step bound to request completion releases the access context and
// records usage on every path, including aborts.
type Pipeline struct {
	resolver  *tenant.Resolver
	isolation *isolation.Enforcer
	security  *security.Enforcer
	quota     *quota.Guard
	limiter   *ratelimit.Limiter
	log       *zap.Logger
}

// NewPipeline wires the pipeline from its explicitly constructed components.
func NewPipeline(
	resolver *tenant.Resolver,
	isolationEnforcer *isolation.Enforcer,
	securityEnforcer *security.Enforcer,
	quotaGuard *quota.Guard,
	limiter *ratelimit.Limiter,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		isolation: isolationEnforcer,
		security:  securityEnforcer,
		quota:     quotaGuard,
		limiter:   limiter,
		log:       log,
	}
}

// Middleware returns the echo middleware enforcing the full sequence.
func (p *Pipeline) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			log := logger.FromEcho(c)

			claimTenantID, _ := c.Get("claim_tenant_id").(string)
			input := tenant.ResolveInput{
				Host:          c.Request().Host,
				Path:          c.Request().URL.Path,
				TenantHeader:  c.Request().Header.Get(tenant.HeaderTenantID),
				ClaimTenantID: claimTenantID,
			}

			tc, err := p.resolver.ResolveAndValidate(ctx, input)
			if err != nil {
				prometheus.RecordResolution("none", "rejected")
				return respondError(c, err)
			}
			if tc == nil {
				// System endpoint, proceeds with no tenant
				prometheus.RecordResolution("none", "system")
				return next(c)
			}
			prometheus.RecordResolution(string(tc.Method), "resolved")

			c.Set(ContextKeyTenant, tc)
			log = logger.AttachTenant(c, tc.ID)

			access, err := p.isolation.Acquire(ctx, tc)
			if err != nil {
				return respondError(c, err)
			}
			c.Set(ContextKeyAccess, access)
			// Bound to request completion: the access context is released
			// and usage recorded on success, failure and abort alike.
			defer p.finish(tc, access, log)

			email, _ := c.Get("email").(string)
			if err := p.security.Check(tc, c.RealIP(), email); err != nil {
				return respondError(c, err)
			}

			if err := p.quota.CanCreate(tc, model.ResourceAPICalls); err != nil {
				return respondError(c, err)
			}

			result := p.limiter.Consume(tc, model.LimitAPI, 1)
			setRateLimitHeaders(c, result)
			if !result.Allowed {
				prometheus.RecordRateLimitRejection(model.LimitAPI)
				return respondError(c, apperr.RateLimitExceeded(model.LimitAPI, result.Limit, result.WindowSeconds, int64(result.RetryAfter.Seconds())))
			}

			return next(c)
		}
	}
}

// finish releases the request's data-access context and records one API
// call of usage. Recording is non-blocking with respect to quota: an
// over-quota counter still persists and is only flagged.
func (p *Pipeline) finish(tc *tenant.Context, access isolation.AccessContext, log *zap.Logger) {
	if err := access.Release(); err != nil {
		log.Warn("Failed to release access context", zap.Error(err))
	}

	// Detached from the request context so a client abort cannot lose the
	// usage write
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	violations, err := p.quota.RecordUsage(ctx, tc.ID, model.UsageDelta{APICalls: 1})
	if err != nil {
		log.Warn("Failed to record API usage", zap.Error(err))
		return
	}
	for _, v := range violations {
		prometheus.RecordQuotaViolation(v.Metric)
	}
}

func setRateLimitHeaders(c echo.Context, result ratelimit.Result) {
	if result.Limit == 0 {
		return
	}
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed && result.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// respondError renders a typed isolation-layer error as its JSON body and
// mapped status; anything untyped becomes an opaque 500.
func respondError(c echo.Context, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		prometheus.RecordIsolationError(appErr.Code)
		return c.JSON(appErr.Status, appErr.Body())
	}

	logger.FromEcho(c).Error("Unhandled pipeline error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":   apperr.CodeSecurityContextError,
		"message": "internal error",
	})
}

// TenantFromEcho returns the resolved tenant context attached by the
// pipeline, or nil for system endpoints.
func TenantFromEcho(c echo.Context) *tenant.Context {
	tc, _ := c.Get(ContextKeyTenant).(*tenant.Context)
	return tc
}

// AccessFromEcho returns the request's data-access context.
func AccessFromEcho(c echo.Context) isolation.AccessContext {
	access, _ := c.Get(ContextKeyAccess).(isolation.AccessContext)
	return access
}
