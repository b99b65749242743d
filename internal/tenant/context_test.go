package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-service/internal/model"
)

func TestNewContextProjection(t *testing.T) {
	tn := activeTenant("id-1", "acme")
	tn.IsolationStrategy = model.IsolationSchema
	tn.SchemaName = "tenant_acme"
	tn.StorageDSN = "host=secret"
	tn.RateLimits = []byte(`{"api":{"window_seconds":60,"max_requests":500}}`)

	tc := NewContext(tn, MethodSubdomain, "acme")

	assert.Equal(t, "id-1", tc.ID)
	assert.Equal(t, model.IsolationSchema, tc.Strategy)
	assert.Equal(t, "tenant_acme", tc.SchemaName)
	assert.Equal(t, model.PlanStarter, tc.Plan)
	assert.Equal(t, MethodSubdomain, tc.Method)
	assert.Equal(t, "acme", tc.RawIdentifier)

	rule, ok := tc.RateLimitRule(model.LimitAPI)
	require.True(t, ok)
	assert.Equal(t, 500, rule.MaxRequests)
}

func TestRateLimitRuleFallsBackToPlanDefaults(t *testing.T) {
	tc := NewContext(activeTenant("id-1", "acme"), MethodHeader, "id-1")

	// No per-tenant override configured; the plan table supplies the rule
	rule, ok := tc.RateLimitRule(model.LimitAPI)
	require.True(t, ok)
	assert.Equal(t, model.DefaultsForPlan(model.PlanStarter).RateLimits[model.LimitAPI], rule)

	_, ok = tc.RateLimitRule("bulk-import")
	assert.False(t, ok)
}

func TestHasFeature(t *testing.T) {
	tn := activeTenant("id-1", "acme")
	tn.Subscription.Plan = model.PlanProfessional
	tc := NewContext(tn, MethodHeader, "id-1")

	assert.True(t, tc.HasFeature("custom_domains"))
	assert.False(t, tc.HasFeature("sso"))
}
