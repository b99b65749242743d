package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   string
		status int
	}{
		{"not found", TenantNotFound("acme.example.com"), CodeTenantNotFound, http.StatusBadRequest},
		{"inactive", TenantInactive("t-1", "archived"), CodeTenantInactive, http.StatusForbidden},
		{"suspended", TenantSuspended("t-1"), CodeTenantSuspended, http.StatusForbidden},
		{"trial expired", TrialExpired("t-1"), CodeTrialExpired, http.StatusPaymentRequired},
		{"isolation", DataIsolation(errors.New("dial failed")), CodeDataIsolationError, http.StatusInternalServerError},
		{"quota exceeded", QuotaExceeded("projects", 5, 5, "trial"), CodeQuotaExceeded, http.StatusTooManyRequests},
		{"quota validation", QuotaValidation(errors.New("bad resource")), CodeQuotaValidationError, http.StatusInternalServerError},
		{"rate limit", RateLimitExceeded("api", 60, 60, 12), CodeRateLimitExceeded, http.StatusTooManyRequests},
		{"ip", IPNotWhitelisted("10.0.0.9"), CodeIPNotWhitelisted, http.StatusForbidden},
		{"email domain", DomainNotAllowed("gmail.com"), CodeDomainNotAllowed, http.StatusForbidden},
		{"security", SecurityContext(errors.New("boom")), CodeSecurityContextError, http.StatusInternalServerError},
		{"feature", FeatureNotAvailable("sso", "starter", "enterprise"), CodeFeatureNotAvailable, http.StatusForbidden},
		{"slug taken", SlugTaken("acme"), CodeSlugTaken, http.StatusConflict},
		{"domain exists", DomainExists("acme.io"), CodeDomainExists, http.StatusConflict},
		{"domain taken", DomainTaken("acme.io"), CodeDomainTaken, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
}

func TestBodyMergesFields(t *testing.T) {
	err := QuotaExceeded("projects", 5, 5, "trial")
	body := err.Body()

	assert.Equal(t, CodeQuotaExceeded, body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, "projects", body["resource"])
	assert.Equal(t, int64(5), body["current"])
	assert.Equal(t, int64(5), body["quota"])
	assert.Equal(t, "trial", body["plan"])
}

func TestCauseIsWrappedNotExposed(t *testing.T) {
	cause := errors.New("connection refused")
	err := DataIsolation(cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")

	// The cause stays out of the client-facing body
	for _, v := range err.Body() {
		assert.NotContains(t, v, "connection refused")
	}
}

func TestErrorsAsRecoversType(t *testing.T) {
	var wrapped error = RateLimitExceeded("api", 60, 60, 3)

	var appErr *Error
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, CodeRateLimitExceeded, appErr.Code)
	assert.Equal(t, int64(3), appErr.Fields["retryAfter"])
}

func TestRateLimitExceededCarriesWindow(t *testing.T) {
	err := RateLimitExceeded("api", 120, 60, 12)

	body := err.Body()
	assert.Equal(t, "api", body["limitType"])
	assert.Equal(t, 120, body["limit"])
	assert.Equal(t, 60, body["window"])
	assert.Equal(t, int64(12), body["retryAfter"])
}

func TestWithFieldInitializesMap(t *testing.T) {
	err := newError("X", "x", http.StatusTeapot).WithField("k", "v")
	assert.Equal(t, "v", err.Fields["k"])
}
