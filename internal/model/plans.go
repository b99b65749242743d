package model

// Plan tiers.
const (
	PlanFree         = "free"
	PlanTrial        = "trial"
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// PlanDefaults is the authoritative per-plan configuration applied at tenant
// creation and on plan change. Both code paths read this one table so the
// two can never drift.
type PlanDefaults struct {
	Quotas     Quotas
	RateLimits map[string]RateLimitRule
	Features   []string
}

var planDefaults = map[string]PlanDefaults{
	PlanFree: {
		Quotas: Quotas{
			MaxUsers:          3,
			MaxProjects:       1,
			MaxStorageMB:      512,
			MaxAPICallsPerDay: 1000,
			MaxAITokensPerDay: 0,
		},
		RateLimits: map[string]RateLimitRule{
			LimitAPI:  {WindowSeconds: 60, MaxRequests: 30},
			LimitAuth: {WindowSeconds: 300, MaxRequests: 10},
		},
		Features: []string{"projects"},
	},
	PlanTrial: {
		Quotas: Quotas{
			MaxUsers:          5,
			MaxProjects:       3,
			MaxStorageMB:      1024,
			MaxAPICallsPerDay: 5000,
			MaxAITokensPerDay: 10000,
		},
		RateLimits: map[string]RateLimitRule{
			LimitAPI:  {WindowSeconds: 60, MaxRequests: 60},
			LimitAuth: {WindowSeconds: 300, MaxRequests: 10},
			LimitAI:   {WindowSeconds: 60, MaxRequests: 10},
		},
		Features: []string{"projects", "ai_assist"},
	},
	PlanStarter: {
		Quotas: Quotas{
			MaxUsers:          10,
			MaxProjects:       10,
			MaxStorageMB:      5120,
			MaxAPICallsPerDay: 50000,
			MaxAITokensPerDay: 100000,
		},
		RateLimits: map[string]RateLimitRule{
			LimitAPI:    {WindowSeconds: 60, MaxRequests: 120},
			LimitAuth:   {WindowSeconds: 300, MaxRequests: 20},
			LimitExport: {WindowSeconds: 3600, MaxRequests: 10},
			LimitAI:     {WindowSeconds: 60, MaxRequests: 30},
		},
		Features: []string{"projects", "ai_assist", "exports"},
	},
	PlanProfessional: {
		Quotas: Quotas{
			MaxUsers:          50,
			MaxProjects:       100,
			MaxStorageMB:      51200,
			MaxAPICallsPerDay: 500000,
			MaxAITokensPerDay: 1000000,
		},
		RateLimits: map[string]RateLimitRule{
			LimitAPI:    {WindowSeconds: 60, MaxRequests: 600},
			LimitAuth:   {WindowSeconds: 300, MaxRequests: 50},
			LimitExport: {WindowSeconds: 3600, MaxRequests: 60},
			LimitAI:     {WindowSeconds: 60, MaxRequests: 120},
		},
		Features: []string{"projects", "ai_assist", "exports", "custom_domains", "audit_log"},
	},
	PlanEnterprise: {
		Quotas: Quotas{
			MaxUsers:          QuotaUnlimited,
			MaxProjects:       QuotaUnlimited,
			MaxStorageMB:      QuotaUnlimited,
			MaxAPICallsPerDay: QuotaUnlimited,
			MaxAITokensPerDay: QuotaUnlimited,
		},
		RateLimits: map[string]RateLimitRule{
			LimitAPI:    {WindowSeconds: 60, MaxRequests: 3000},
			LimitAuth:   {WindowSeconds: 300, MaxRequests: 100},
			LimitExport: {WindowSeconds: 3600, MaxRequests: 600},
			LimitAI:     {WindowSeconds: 60, MaxRequests: 600},
		},
		Features: []string{"projects", "ai_assist", "exports", "custom_domains", "audit_log", "sso", "dedicated_storage"},
	},
}

// DefaultsForPlan returns the plan's defaults, falling back to the free plan
// for unknown tiers.
func DefaultsForPlan(plan string) PlanDefaults {
	if d, ok := planDefaults[plan]; ok {
		return d
	}
	return planDefaults[PlanFree]
}

// PlanHasFeature reports whether the plan includes a named feature.
func PlanHasFeature(plan, feature string) bool {
	for _, f := range DefaultsForPlan(plan).Features {
		if f == feature {
			return true
		}
	}
	return false
}
