package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotasForResource(t *testing.T) {
	q := Quotas{
		MaxUsers:          10,
		MaxProjects:       5,
		MaxStorageMB:      1024,
		MaxAPICallsPerDay: 1000,
		MaxAITokensPerDay: QuotaUnlimited,
	}

	tests := []struct {
		resource string
		want     int64
		ok       bool
	}{
		{ResourceUsers, 10, true},
		{ResourceProjects, 5, true},
		{ResourceStorageMB, 1024, true},
		{ResourceAPICalls, 1000, true},
		{ResourceAITokens, QuotaUnlimited, true},
		{"widgets", 0, false},
	}

	for _, tt := range tests {
		got, ok := q.ForResource(tt.resource)
		assert.Equal(t, tt.ok, ok, tt.resource)
		assert.Equal(t, tt.want, got, tt.resource)
	}
}

func TestIsolationStrategyValidation(t *testing.T) {
	assert.True(t, IsolationDedicated.IsValid())
	assert.True(t, IsolationSchema.IsValid())
	assert.True(t, IsolationRowFilter.IsValid())
	assert.False(t, IsolationStrategy("shared-nothing").IsValid())
	assert.False(t, IsolationStrategy("").IsValid())
}

func TestTenantStatusValidation(t *testing.T) {
	assert.True(t, StatusActive.IsValid())
	assert.True(t, StatusArchived.IsValid())
	assert.False(t, TenantStatus("deleted").IsValid())
}

func TestRateLimitRulesDecoding(t *testing.T) {
	tn := &Tenant{RateLimits: []byte(`{"api":{"window_seconds":60,"max_requests":100}}`)}

	rules := tn.RateLimitRules()
	require.Contains(t, rules, LimitAPI)
	assert.Equal(t, 60, rules[LimitAPI].WindowSeconds)
	assert.Equal(t, 100, rules[LimitAPI].MaxRequests)
}

func TestRateLimitRulesEmptyAndInvalid(t *testing.T) {
	assert.Nil(t, (&Tenant{}).RateLimitRules())
	assert.Nil(t, (&Tenant{RateLimits: []byte(`not json`)}).RateLimitRules())
}

func TestTrialExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := &Tenant{Subscription: Subscription{Plan: PlanTrial, TrialEndsAt: &past}}
	active := &Tenant{Subscription: Subscription{Plan: PlanTrial, TrialEndsAt: &future}}
	paid := &Tenant{Subscription: Subscription{Plan: PlanStarter, TrialEndsAt: &past}}
	noExpiry := &Tenant{Subscription: Subscription{Plan: PlanTrial}}

	assert.True(t, expired.TrialExpired(now))
	assert.False(t, active.TrialExpired(now))
	// Expiry only applies to the trial plan
	assert.False(t, paid.TrialExpired(now))
	assert.False(t, noExpiry.TrialExpired(now))
}

func TestSecurityListDecoding(t *testing.T) {
	s := Security{
		IPAllowList:         EncodeStringList([]string{"10.0.0.1", "192.168.1.0/24"}),
		AllowedEmailDomains: EncodeStringList([]string{"acme.com"}),
	}

	assert.Equal(t, []string{"10.0.0.1", "192.168.1.0/24"}, s.IPList())
	assert.Equal(t, []string{"acme.com"}, s.EmailDomains())

	empty := Security{}
	assert.Nil(t, empty.IPList())
	assert.Nil(t, empty.EmailDomains())
}

func TestEncodeStringListEmpty(t *testing.T) {
	assert.Nil(t, EncodeStringList(nil))
	assert.Nil(t, EncodeStringList([]string{}))
}

func TestDefaultsForPlan(t *testing.T) {
	free := DefaultsForPlan(PlanFree)
	assert.Equal(t, int64(1), free.Quotas.MaxProjects)

	enterprise := DefaultsForPlan(PlanEnterprise)
	assert.Equal(t, QuotaUnlimited, enterprise.Quotas.MaxUsers)
	assert.Equal(t, QuotaUnlimited, enterprise.Quotas.MaxAPICallsPerDay)

	// Unknown tiers fall back to free
	unknown := DefaultsForPlan("platinum")
	assert.Equal(t, free.Quotas, unknown.Quotas)
}

func TestEveryPlanHasAPIRateLimit(t *testing.T) {
	for _, plan := range []string{PlanFree, PlanTrial, PlanStarter, PlanProfessional, PlanEnterprise} {
		d := DefaultsForPlan(plan)
		rule, ok := d.RateLimits[LimitAPI]
		require.True(t, ok, plan)
		assert.Positive(t, rule.MaxRequests, plan)
		assert.Positive(t, rule.WindowSeconds, plan)
	}
}

func TestPlanHasFeature(t *testing.T) {
	assert.True(t, PlanHasFeature(PlanEnterprise, "sso"))
	assert.True(t, PlanHasFeature(PlanProfessional, "custom_domains"))
	assert.False(t, PlanHasFeature(PlanFree, "ai_assist"))
	assert.False(t, PlanHasFeature("platinum", "sso"))
}

func TestDecodeAuditFlags(t *testing.T) {
	tn := &Tenant{AuditFlags: []byte(`[{"flag":"quota_violation:projects","severity":"warning","at":"2025-06-15T12:00:00Z"}]`)}

	flags := tn.DecodeAuditFlags()
	require.Len(t, flags, 1)
	assert.Equal(t, "quota_violation:projects", flags[0].Flag)
	assert.Equal(t, "warning", flags[0].Severity)

	assert.Nil(t, (&Tenant{}).DecodeAuditFlags())
}
