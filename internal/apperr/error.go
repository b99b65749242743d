package apperr

import (
	"fmt"
	"net/http"
)

// Error codes returned by the tenant isolation layer. Codes are stable and
// machine-readable; clients branch on them.
const (
	CodeTenantNotFound       = "TENANT_NOT_FOUND"
	CodeTenantInactive       = "TENANT_INACTIVE"
	CodeTenantSuspended      = "TENANT_SUSPENDED"
	CodeTrialExpired         = "TRIAL_EXPIRED"
	CodeDataIsolationError   = "DATA_ISOLATION_ERROR"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
	CodeQuotaValidationError = "QUOTA_VALIDATION_ERROR"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeIPNotWhitelisted     = "IP_NOT_WHITELISTED"
	CodeDomainNotAllowed     = "DOMAIN_NOT_ALLOWED"
	CodeSecurityContextError = "SECURITY_CONTEXT_ERROR"
	CodeFeatureNotAvailable  = "FEATURE_NOT_AVAILABLE"
	CodeSlugTaken            = "SLUG_TAKEN"
	CodeDomainExists         = "DOMAIN_EXISTS"
	CodeDomainTaken          = "DOMAIN_TAKEN"
)

// Error is the typed error returned by every component in the isolation
// layer. It carries a stable code, an HTTP status and optional
// failure-specific fields that are merged into the JSON response body.
type Error struct {
	Code    string
	Message string
	Status  int
	Fields  map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithField attaches a failure-specific field to the response body.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = map[string]interface{}{}
	}
	e.Fields[key] = value
	return e
}

// WithCause records the underlying error without exposing it to clients.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Body returns the JSON response body for this error.
func (e *Error) Body() map[string]interface{} {
	body := map[string]interface{}{
		"error":   e.Code,
		"message": e.Message,
	}
	for k, v := range e.Fields {
		body[k] = v
	}
	return body
}

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// TenantNotFound reports that no tenant could be resolved from the request.
func TenantNotFound(identifier string) *Error {
	e := newError(CodeTenantNotFound, "tenant could not be identified from the request", http.StatusBadRequest)
	if identifier != "" {
		e.WithField("identifier", identifier)
	}
	return e
}

// TenantInactive reports a tenant whose status is not active.
func TenantInactive(tenantID, status string) *Error {
	return newError(CodeTenantInactive, "tenant account is not active", http.StatusForbidden).
		WithField("tenantId", tenantID).
		WithField("status", status)
}

// TenantSuspended reports a tenant whose subscription is suspended.
func TenantSuspended(tenantID string) *Error {
	return newError(CodeTenantSuspended, "tenant subscription is suspended", http.StatusForbidden).
		WithField("tenantId", tenantID)
}

// TrialExpired reports a trial tenant past its expiry timestamp.
func TrialExpired(tenantID string) *Error {
	return newError(CodeTrialExpired, "trial period has expired, a paid plan is required", http.StatusPaymentRequired).
		WithField("tenantId", tenantID)
}

// DataIsolation reports a failure to establish the tenant's data-access
// context. Always fatal to the request.
func DataIsolation(err error) *Error {
	return newError(CodeDataIsolationError, "failed to establish tenant data isolation", http.StatusInternalServerError).
		WithCause(err)
}

// QuotaExceeded reports a blocked resource creation.
func QuotaExceeded(resource string, current, quota int64, plan string) *Error {
	return newError(CodeQuotaExceeded, fmt.Sprintf("quota exceeded for %s", resource), http.StatusTooManyRequests).
		WithField("resource", resource).
		WithField("current", current).
		WithField("quota", quota).
		WithField("plan", plan)
}

// QuotaValidation reports an inability to evaluate a quota, distinct from the
// quota being exceeded.
func QuotaValidation(err error) *Error {
	return newError(CodeQuotaValidationError, "quota check could not be evaluated", http.StatusInternalServerError).
		WithCause(err)
}

// RateLimitExceeded reports a refused consume with self-correction metadata:
// the configured limit, its window length, and seconds until tokens return.
func RateLimitExceeded(limitType string, limit, windowSeconds int, retryAfterSeconds int64) *Error {
	return newError(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithField("limitType", limitType).
		WithField("limit", limit).
		WithField("window", windowSeconds).
		WithField("retryAfter", retryAfterSeconds)
}

// IPNotWhitelisted reports a request origin excluded by the tenant's IP allow-list.
func IPNotWhitelisted(ip string) *Error {
	return newError(CodeIPNotWhitelisted, "request origin is not on the tenant's IP allow-list", http.StatusForbidden).
		WithField("ip", ip)
}

// DomainNotAllowed reports a caller email domain excluded by the tenant.
func DomainNotAllowed(domain string) *Error {
	return newError(CodeDomainNotAllowed, "email domain is not allowed for this tenant", http.StatusForbidden).
		WithField("domain", domain)
}

// SecurityContext reports an internal failure while applying security checks.
func SecurityContext(err error) *Error {
	return newError(CodeSecurityContextError, "failed to apply tenant security context", http.StatusInternalServerError).
		WithCause(err)
}

// FeatureNotAvailable reports a feature excluded from the tenant's plan.
func FeatureNotAvailable(feature, plan, requiredPlan string) *Error {
	return newError(CodeFeatureNotAvailable, fmt.Sprintf("feature %q is not available on the %s plan", feature, plan), http.StatusForbidden).
		WithField("feature", feature).
		WithField("plan", plan).
		WithField("requiredPlan", requiredPlan)
}

// SlugTaken reports a slug collision on tenant creation.
func SlugTaken(slug string) *Error {
	return newError(CodeSlugTaken, "tenant slug is already in use", http.StatusConflict).
		WithField("slug", slug)
}

// DomainExists reports a domain already registered for the same tenant.
func DomainExists(domain string) *Error {
	return newError(CodeDomainExists, "domain is already registered for this tenant", http.StatusConflict).
		WithField("domain", domain)
}

// DomainTaken reports a domain registered by a different tenant.
func DomainTaken(domain string) *Error {
	return newError(CodeDomainTaken, "domain is already registered by another tenant", http.StatusConflict).
		WithField("domain", domain)
}
