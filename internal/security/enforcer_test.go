package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
)

func securedContext(ips, domains []string) *tenant.Context {
	return &tenant.Context{
		ID: "t-1",
		Security: model.Security{
			IPAllowList:         model.EncodeStringList(ips),
			AllowedEmailDomains: model.EncodeStringList(domains),
		},
	}
}

func TestEmptyListsMeanUnrestricted(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext(nil, nil)

	assert.NoError(t, e.Check(tc, "203.0.113.7", "anyone@anywhere.org"))
}

func TestIPAllowListExactMatch(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext([]string{"10.0.0.1", "10.0.0.2"}, nil)

	assert.NoError(t, e.Check(tc, "10.0.0.2", ""))

	err := e.Check(tc, "10.0.0.3", "")
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeIPNotWhitelisted, appErr.Code)
	assert.Equal(t, "10.0.0.3", appErr.Fields["ip"])
}

func TestIPAllowListCIDRMatch(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext([]string{"192.168.1.0/24"}, nil)

	assert.NoError(t, e.Check(tc, "192.168.1.200", ""))
	assert.Error(t, e.Check(tc, "192.168.2.1", ""))
}

func TestIPAllowListUnparseableOriginRejected(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext([]string{"10.0.0.1"}, nil)

	var appErr *apperr.Error
	require.ErrorAs(t, e.Check(tc, "not-an-ip", ""), &appErr)
	assert.Equal(t, apperr.CodeIPNotWhitelisted, appErr.Code)
}

func TestEmailDomainRestriction(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext(nil, []string{"acme.com", "acme.io"})

	assert.NoError(t, e.Check(tc, "10.0.0.1", "dev@acme.io"))
	// Comparison is case-insensitive
	assert.NoError(t, e.Check(tc, "10.0.0.1", "dev@ACME.COM"))
	// Anonymous callers are not subject to the domain restriction
	assert.NoError(t, e.Check(tc, "10.0.0.1", ""))

	err := e.Check(tc, "10.0.0.1", "dev@gmail.com")
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeDomainNotAllowed, appErr.Code)
	assert.Equal(t, "gmail.com", appErr.Fields["domain"])
}

func TestEmailWithoutDomainRejected(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext(nil, []string{"acme.com"})

	assert.Error(t, e.Check(tc, "10.0.0.1", "no-at-sign"))
	assert.Error(t, e.Check(tc, "10.0.0.1", "trailing@"))
}

func TestIPCheckedBeforeEmailDomain(t *testing.T) {
	e := NewEnforcer(zap.NewNop())
	tc := securedContext([]string{"10.0.0.1"}, []string{"acme.com"})

	// Both checks would fail; the IP violation is reported
	var appErr *apperr.Error
	require.ErrorAs(t, e.Check(tc, "203.0.113.7", "dev@gmail.com"), &appErr)
	assert.Equal(t, apperr.CodeIPNotWhitelisted, appErr.Code)
}
