package quota

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
)

// Guard enforces per-tenant resource quotas. Creation checks block
// proactively; usage recording never blocks, so over-quota usage is flagged
// and billed rather than silently dropped.
type Guard struct {
	usage tenant.UsageStore
	log   *zap.Logger
}

// NewGuard creates the quota guard.
func NewGuard(usage tenant.UsageStore, log *zap.Logger) *Guard {
	return &Guard{usage: usage, log: log}
}

// CanCreate reports whether the tenant may create one more resource of the
// given type. Exceeded quotas return QUOTA_EXCEEDED; an unknown resource
// type is a QUOTA_VALIDATION_ERROR, distinct from a legitimate refusal.
func (g *Guard) CanCreate(tc *tenant.Context, resourceType string) error {
	limit, ok := tc.Quotas.ForResource(resourceType)
	if !ok {
		return apperr.QuotaValidation(fmt.Errorf("unknown resource type %q", resourceType))
	}
	if limit == model.QuotaUnlimited {
		return nil
	}

	current, _ := tc.Usage.ForResource(resourceType)
	if current >= limit {
		g.log.Info("Resource creation blocked by quota",
			zap.String("tenant_id", tc.ID),
			zap.String("resource", resourceType),
			zap.Int64("current", current),
			zap.Int64("quota", limit))
		return apperr.QuotaExceeded(resourceType, current, limit, tc.Plan)
	}
	return nil
}

// RecordUsage persists a usage delta and returns any violations the new
// counters produce. The write always goes through, even when it pushes a
// counter over quota.
func (g *Guard) RecordUsage(ctx context.Context, tenantID string, delta model.UsageDelta) ([]tenant.UsageViolation, error) {
	violations, err := g.usage.RecordUsage(ctx, tenantID, delta)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("recording usage for tenant %s: %w", tenantID, err)
	}

	for _, v := range violations {
		g.log.Warn("Usage recorded over quota",
			zap.String("tenant_id", tenantID),
			zap.String("metric", v.Metric),
			zap.Int64("observed", v.Observed),
			zap.Int64("limit", v.Limit))
	}
	return violations, nil
}
