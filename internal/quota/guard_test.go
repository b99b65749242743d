package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
)

type fakeUsageStore struct {
	violations []tenant.UsageViolation
	err        error

	gotTenantID string
	gotDelta    model.UsageDelta
}

func (s *fakeUsageStore) RecordUsage(_ context.Context, tenantID string, delta model.UsageDelta) ([]tenant.UsageViolation, error) {
	s.gotTenantID = tenantID
	s.gotDelta = delta
	return s.violations, s.err
}

func testContext(quotas model.Quotas, usage model.Usage) *tenant.Context {
	return &tenant.Context{
		ID:     "t-1",
		Plan:   model.PlanTrial,
		Quotas: quotas,
		Usage:  usage,
	}
}

func TestCanCreateUnderQuota(t *testing.T) {
	g := NewGuard(&fakeUsageStore{}, zap.NewNop())
	tc := testContext(model.Quotas{MaxProjects: 5}, model.Usage{Projects: 4})

	assert.NoError(t, g.CanCreate(tc, model.ResourceProjects))
}

func TestCanCreateAtQuotaBlocks(t *testing.T) {
	g := NewGuard(&fakeUsageStore{}, zap.NewNop())
	tc := testContext(model.Quotas{MaxProjects: 5}, model.Usage{Projects: 5})

	err := g.CanCreate(tc, model.ResourceProjects)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeQuotaExceeded, appErr.Code)
	assert.Equal(t, "projects", appErr.Fields["resource"])
	assert.Equal(t, int64(5), appErr.Fields["current"])
	assert.Equal(t, int64(5), appErr.Fields["quota"])
	assert.Equal(t, model.PlanTrial, appErr.Fields["plan"])
}

func TestCanCreateUnlimitedNeverBlocks(t *testing.T) {
	g := NewGuard(&fakeUsageStore{}, zap.NewNop())
	tc := testContext(model.Quotas{MaxAPICallsPerDay: model.QuotaUnlimited}, model.Usage{APICalls: 10000})

	assert.NoError(t, g.CanCreate(tc, model.ResourceAPICalls))
}

func TestCanCreateUnknownResourceIsValidationError(t *testing.T) {
	g := NewGuard(&fakeUsageStore{}, zap.NewNop())
	tc := testContext(model.Quotas{}, model.Usage{})

	err := g.CanCreate(tc, "widgets")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	// Distinct from a legitimate quota refusal
	assert.Equal(t, apperr.CodeQuotaValidationError, appErr.Code)
}

func TestRecordUsageDelegatesAndReportsViolations(t *testing.T) {
	store := &fakeUsageStore{
		violations: []tenant.UsageViolation{{Metric: "storage_mb", Observed: 1100, Limit: 1024}},
	}
	g := NewGuard(store, zap.NewNop())

	violations, err := g.RecordUsage(context.Background(), "t-1", model.UsageDelta{StorageMB: 100})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "storage_mb", violations[0].Metric)
	assert.Equal(t, "t-1", store.gotTenantID)
	assert.Equal(t, int64(100), store.gotDelta.StorageMB)
}

func TestRecordUsagePreservesNotFound(t *testing.T) {
	g := NewGuard(&fakeUsageStore{err: tenant.ErrNotFound}, zap.NewNop())

	_, err := g.RecordUsage(context.Background(), "ghost", model.UsageDelta{Users: 1})
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestRecordUsageWrapsStoreErrors(t *testing.T) {
	boom := errors.New("write failed")
	g := NewGuard(&fakeUsageStore{err: boom}, zap.NewNop())

	_, err := g.RecordUsage(context.Background(), "t-1", model.UsageDelta{Users: 1})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "t-1")
}
