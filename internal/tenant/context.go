package tenant

import (
	"tenant-service/internal/model"
)

// ResolutionMethod names the strategy that identified the tenant, recorded
// for audit alongside the raw identifier it matched.
type ResolutionMethod string

const (
	MethodCustomDomain ResolutionMethod = "custom_domain"
	MethodSubdomain    ResolutionMethod = "subdomain"
	MethodHeader       ResolutionMethod = "header"
	MethodPath         ResolutionMethod = "path"
	MethodClaims       ResolutionMethod = "claims"
)

// Context is the per-request, read-only projection of a tenant. It is
// attached to the request on resolution and discarded at request end; it
// never holds the storage locator.
type Context struct {
	ID         string
	Slug       string
	Name       string
	Plan       string
	Strategy   model.IsolationStrategy
	SchemaName string
	Quotas     model.Quotas
	Usage      model.Usage
	Security   model.Security
	RateLimits map[string]model.RateLimitRule
	Features   []string

	// Method and RawIdentifier record how the tenant was resolved.
	Method        ResolutionMethod
	RawIdentifier string
}

// NewContext projects a tenant record into a request-scoped context.
func NewContext(t *model.Tenant, method ResolutionMethod, raw string) *Context {
	return &Context{
		ID:            t.ID,
		Slug:          t.Slug,
		Name:          t.Name,
		Plan:          t.Subscription.Plan,
		Strategy:      t.IsolationStrategy,
		SchemaName:    t.SchemaName,
		Quotas:        t.Quotas,
		Usage:         t.Usage,
		Security:      t.Security,
		RateLimits:    t.RateLimitRules(),
		Features:      model.DefaultsForPlan(t.Subscription.Plan).Features,
		Method:        method,
		RawIdentifier: raw,
	}
}

// HasFeature reports whether the tenant's plan includes a named feature.
func (c *Context) HasFeature(name string) bool {
	for _, f := range c.Features {
		if f == name {
			return true
		}
	}
	return false
}

// RateLimitRule returns the tenant's bucket configuration for a limit type,
// falling back to the plan defaults.
func (c *Context) RateLimitRule(limitType string) (model.RateLimitRule, bool) {
	if rule, ok := c.RateLimits[limitType]; ok {
		return rule, true
	}
	rule, ok := model.DefaultsForPlan(c.Plan).RateLimits[limitType]
	return rule, ok
}
