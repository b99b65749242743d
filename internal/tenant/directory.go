package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-service/internal/apperr"
	"tenant-service/internal/model"
)

// ErrNotFound is returned by directory lookups that match no tenant.
var ErrNotFound = errors.New("tenant not found")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Directory is the lookup surface the resolver and enforcement components
// consume. The full Store implements it; tests use in-memory fakes.
type Directory interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*model.Tenant, error)
	GetByDomain(ctx context.Context, domain string) (*model.Tenant, error)
}

// UsageStore is the usage-persistence surface the quota guard consumes.
type UsageStore interface {
	RecordUsage(ctx context.Context, tenantID string, delta model.UsageDelta) ([]UsageViolation, error)
}

// Provisioner prepares a new tenant's physical storage. Implemented by the
// connection manager.
type Provisioner interface {
	ProvisionSchema(ctx context.Context, t *model.Tenant) error
}

// UsageViolation reports one usage counter that exceeds its quota after an
// update. Violations are surfaced as audit flags, not hard failures.
type UsageViolation struct {
	Metric   string `json:"metric"`
	Observed int64  `json:"observed"`
	Limit    int64  `json:"limit"`
}

// CreateParams are the inputs to tenant provisioning.
type CreateParams struct {
	Name              string
	Slug              string
	Plan              string
	IsolationStrategy model.IsolationStrategy
	StorageDSN        string
	TrialDays         int
	CreatedBy         string
}

// Store is the authoritative tenant registry, backed by the shared directory
// database. It exclusively owns tenant records; all other components receive
// read-only projections.
type Store struct {
	db          *gorm.DB
	provisioner Provisioner
	log         *zap.Logger
}

// NewStore creates the directory store. The provisioner may be nil, in which
// case Create skips storage provisioning (used by tests).
func NewStore(db *gorm.DB, provisioner Provisioner, log *zap.Logger) *Store {
	return &Store{db: db, provisioner: provisioner, log: log}
}

// Create provisions a new tenant: validates the slug, applies plan defaults,
// persists the record and provisions its physical storage.
func (s *Store) Create(ctx context.Context, params CreateParams) (*model.Tenant, error) {
	if !slugPattern.MatchString(params.Slug) {
		return nil, fmt.Errorf("invalid slug %q", params.Slug)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Tenant{}).Where("slug = ?", params.Slug).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("slug lookup failed: %w", err)
	}
	if count > 0 {
		return nil, apperr.SlugTaken(params.Slug)
	}

	strategy := params.IsolationStrategy
	if !strategy.IsValid() {
		strategy = model.IsolationRowFilter
	}

	plan := params.Plan
	if plan == "" {
		plan = model.PlanFree
	}
	defaults := model.DefaultsForPlan(plan)

	rateLimits, err := json.Marshal(defaults.RateLimits)
	if err != nil {
		return nil, fmt.Errorf("encoding rate limits: %w", err)
	}

	t := &model.Tenant{
		ID:                uuid.New().String(),
		Name:              params.Name,
		Slug:              params.Slug,
		IsolationStrategy: strategy,
		Status:            model.StatusActive,
		Quotas:            defaults.Quotas,
		RateLimits:        rateLimits,
		CreatedBy:         params.CreatedBy,
		UpdatedBy:         params.CreatedBy,
		Subscription: model.Subscription{
			Plan:         plan,
			Status:       model.SubscriptionActive,
			BillingCycle: "monthly",
		},
	}

	switch strategy {
	case model.IsolationDedicated:
		t.StorageDSN = params.StorageDSN
	case model.IsolationSchema:
		t.SchemaName = "tenant_" + params.Slug
	}

	if plan == model.PlanTrial {
		days := params.TrialDays
		if days <= 0 {
			days = 14
		}
		ends := time.Now().AddDate(0, 0, days)
		t.Subscription.TrialEndsAt = &ends
	}

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("tenant creation failed: %w", err)
	}

	if s.provisioner != nil {
		if err := s.provisioner.ProvisionSchema(ctx, t); err != nil {
			return nil, fmt.Errorf("storage provisioning failed for tenant %s: %w", t.ID, err)
		}
	}

	s.log.Info("Tenant created",
		zap.String("tenant_id", t.ID),
		zap.String("slug", t.Slug),
		zap.String("plan", plan),
		zap.String("isolation_strategy", string(strategy)))

	return t, nil
}

// GetByID returns a non-deleted tenant by its identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &t, nil
}

// GetBySlug returns a non-deleted tenant by slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	var t model.Tenant
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&t).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &t, nil
}

// GetByDomain returns the tenant owning a verified custom domain.
func (s *Store) GetByDomain(ctx context.Context, domain string) (*model.Tenant, error) {
	var d model.TenantDomain
	if err := s.db.WithContext(ctx).Where("domain = ? AND verified = ?", domain, true).First(&d).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return s.GetByID(ctx, d.TenantID)
}

// ConfigUpdate is a partial configuration change.
type ConfigUpdate struct {
	Name                *string
	IPAllowList         []string
	AllowedEmailDomains []string
	SessionTimeout      *int
	RequireMFA          *bool
	UpdatedBy           string
}

// UpdateConfig applies a partial configuration update.
func (s *Store) UpdateConfig(ctx context.Context, id string, update ConfigUpdate) (*model.Tenant, error) {
	updates := map[string]interface{}{"updated_by": update.UpdatedBy}
	if update.Name != nil {
		updates["name"] = *update.Name
	}
	if update.IPAllowList != nil {
		updates["sec_ip_allow_list"] = model.EncodeStringList(update.IPAllowList)
	}
	if update.AllowedEmailDomains != nil {
		updates["sec_allowed_email_domains"] = model.EncodeStringList(update.AllowedEmailDomains)
	}
	if update.SessionTimeout != nil {
		updates["sec_session_timeout_minutes"] = *update.SessionTimeout
	}
	if update.RequireMFA != nil {
		updates["sec_require_mfa"] = *update.RequireMFA
	}

	result := s.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// ChangePlan moves the tenant to a new plan and recomputes its quotas and
// rate limits from the authoritative plan-defaults table.
func (s *Store) ChangePlan(ctx context.Context, id, plan, updatedBy string) (*model.Tenant, error) {
	defaults := model.DefaultsForPlan(plan)
	rateLimits, err := json.Marshal(defaults.RateLimits)
	if err != nil {
		return nil, fmt.Errorf("encoding rate limits: %w", err)
	}

	updates := map[string]interface{}{
		"sub_plan":                    plan,
		"sub_status":                  model.SubscriptionActive,
		"sub_trial_ends_at":           nil,
		"quota_max_users":             defaults.Quotas.MaxUsers,
		"quota_max_projects":          defaults.Quotas.MaxProjects,
		"quota_max_storage_mb":        defaults.Quotas.MaxStorageMB,
		"quota_max_api_calls_per_day": defaults.Quotas.MaxAPICallsPerDay,
		"quota_max_ai_tokens_per_day": defaults.Quotas.MaxAITokensPerDay,
		"rate_limits":                 rateLimits,
		"updated_by":                  updatedBy,
	}

	result := s.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	s.log.Info("Tenant plan changed", zap.String("tenant_id", id), zap.String("plan", plan))
	return s.GetByID(ctx, id)
}

// RecordUsage merges a usage delta per field and returns any quota
// violations the new counters produce. The update is never clamped or
// rejected; over-quota usage is flagged, not dropped.
func (s *Store) RecordUsage(ctx context.Context, tenantID string, delta model.UsageDelta) ([]UsageViolation, error) {
	updates := map[string]interface{}{}
	if delta.Users != 0 {
		updates["usage_users"] = gorm.Expr("usage_users + ?", delta.Users)
	}
	if delta.Projects != 0 {
		updates["usage_projects"] = gorm.Expr("usage_projects + ?", delta.Projects)
	}
	if delta.StorageMB != 0 {
		updates["usage_storage_mb"] = gorm.Expr("usage_storage_mb + ?", delta.StorageMB)
	}
	if delta.APICalls != 0 {
		updates["usage_api_calls"] = gorm.Expr("usage_api_calls + ?", delta.APICalls)
	}
	if delta.AITokens != 0 {
		updates["usage_ai_tokens"] = gorm.Expr("usage_ai_tokens + ?", delta.AITokens)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	result := s.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", tenantID).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	t, err := s.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	violations := ComputeViolations(t.Usage, t.Quotas)
	for _, v := range violations {
		if err := s.AddAuditFlag(ctx, tenantID, "quota_violation:"+v.Metric, "warning"); err != nil {
			s.log.Warn("Failed to record quota violation flag",
				zap.String("tenant_id", tenantID),
				zap.String("metric", v.Metric),
				zap.Error(err))
		}
	}

	return violations, nil
}

// ComputeViolations compares usage counters against quotas.
func ComputeViolations(usage model.Usage, quotas model.Quotas) []UsageViolation {
	var violations []UsageViolation
	for _, resource := range []string{
		model.ResourceUsers,
		model.ResourceProjects,
		model.ResourceStorageMB,
		model.ResourceAPICalls,
		model.ResourceAITokens,
	} {
		limit, _ := quotas.ForResource(resource)
		observed, _ := usage.ForResource(resource)
		if limit != model.QuotaUnlimited && observed > limit {
			violations = append(violations, UsageViolation{
				Metric:   resource,
				Observed: observed,
				Limit:    limit,
			})
		}
	}
	return violations
}

// AddDomain registers a custom domain for the tenant. The domain starts
// unverified; a verification token is returned in the record.
func (s *Store) AddDomain(ctx context.Context, tenantID, domain string, primary bool) (*model.TenantDomain, error) {
	var existing model.TenantDomain
	err := s.db.WithContext(ctx).Where("domain = ?", domain).First(&existing).Error
	if err == nil {
		if existing.TenantID == tenantID {
			return nil, apperr.DomainExists(domain)
		}
		return nil, apperr.DomainTaken(domain)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	d := &model.TenantDomain{
		TenantID:          tenantID,
		Domain:            domain,
		Verified:          false,
		VerificationToken: uuid.New().String(),
		Primary:           primary,
	}

	return d, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if primary {
			// At most one primary domain per tenant
			if err := tx.Model(&model.TenantDomain{}).Where("tenant_id = ?", tenantID).Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(d).Error
	})
}

// VerifyDomain marks a domain verified when the presented token matches.
func (s *Store) VerifyDomain(ctx context.Context, tenantID, domain, token string) error {
	var d model.TenantDomain
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND domain = ?", tenantID, domain).First(&d).Error; err != nil {
		return notFoundOr(err)
	}
	if d.VerificationToken != token {
		return fmt.Errorf("verification token mismatch for domain %s", domain)
	}
	return s.db.WithContext(ctx).Model(&d).Update("verified", true).Error
}

// Suspend marks the tenant suspended. Reversible via Activate.
func (s *Store) Suspend(ctx context.Context, id, updatedBy string) error {
	return s.setStatus(ctx, id, model.StatusSuspended, updatedBy)
}

// Activate returns a suspended or inactive tenant to service.
func (s *Store) Activate(ctx context.Context, id, updatedBy string) error {
	return s.setStatus(ctx, id, model.StatusActive, updatedBy)
}

// Archive retires the tenant. The record is kept; archival is reversible.
func (s *Store) Archive(ctx context.Context, id, updatedBy string) error {
	return s.setStatus(ctx, id, model.StatusArchived, updatedBy)
}

func (s *Store) setStatus(ctx context.Context, id string, status model.TenantStatus, updatedBy string) error {
	result := s.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_by": updatedBy,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.log.Info("Tenant status changed", zap.String("tenant_id", id), zap.String("status", string(status)))
	return nil
}

// TouchActivity stamps the tenant's last-activity timestamp.
func (s *Store) TouchActivity(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", id).Update("last_activity_at", now).Error
}

// AddAuditFlag appends a severity-tagged flag to the tenant's audit trail.
func (s *Store) AddAuditFlag(ctx context.Context, id, flag, severity string) error {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	flags := t.DecodeAuditFlags()
	flags = append(flags, model.AuditFlag{Flag: flag, Severity: severity, At: time.Now()})
	raw, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", id).Update("audit_flags", raw).Error
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	// A value that cannot be cast to the uuid primary key matches no tenant.
	if strings.Contains(err.Error(), "SQLSTATE 22P02") {
		return ErrNotFound
	}
	return err
}
