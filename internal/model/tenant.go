package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IsolationStrategy selects how a tenant's data is kept separate from other
// tenants'. It is a per-tenant configuration choice, not a global one.
type IsolationStrategy string

const (
	// IsolationDedicated gives the tenant its own storage connection.
	IsolationDedicated IsolationStrategy = "dedicated-connection"
	// IsolationSchema shares the connection but namespaces every table.
	IsolationSchema IsolationStrategy = "logical-schema"
	// IsolationRowFilter shares tables and scopes every query by tenant id.
	IsolationRowFilter IsolationStrategy = "row-filter"
)

func (s IsolationStrategy) IsValid() bool {
	switch s {
	case IsolationDedicated, IsolationSchema, IsolationRowFilter:
		return true
	}
	return false
}

// TenantStatus is the lifecycle state of a tenant. Tenants are never hard
// deleted; suspension and archival are reversible transitions.
type TenantStatus string

const (
	StatusActive    TenantStatus = "active"
	StatusSuspended TenantStatus = "suspended"
	StatusInactive  TenantStatus = "inactive"
	StatusArchived  TenantStatus = "archived"
)

func (s TenantStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// Subscription holds the tenant's billing state.
type Subscription struct {
	Plan         string     `json:"plan" gorm:"type:varchar(32);default:'free'"`
	Status       string     `json:"status" gorm:"type:varchar(32);default:'active'"`
	TrialEndsAt  *time.Time `json:"trial_ends_at,omitempty"`
	BillingCycle string     `json:"billing_cycle" gorm:"type:varchar(16);default:'monthly'"`
}

// Subscription status values.
const (
	SubscriptionActive    = "active"
	SubscriptionSuspended = "suspended"
	SubscriptionCancelled = "cancelled"
	SubscriptionPastDue   = "past_due"
)

// QuotaUnlimited is the sentinel for a quota with no ceiling.
const QuotaUnlimited int64 = -1

// Quotas holds the tenant's resource ceilings. A value of QuotaUnlimited
// means the resource is uncapped.
type Quotas struct {
	MaxUsers          int64 `json:"max_users" gorm:"default:5"`
	MaxProjects       int64 `json:"max_projects" gorm:"default:3"`
	MaxStorageMB      int64 `json:"max_storage_mb" gorm:"default:1024"`
	MaxAPICallsPerDay int64 `json:"max_api_calls_per_day" gorm:"default:10000"`
	MaxAITokensPerDay int64 `json:"max_ai_tokens_per_day" gorm:"default:50000"`
}

// ForResource returns the quota for a named resource type, with ok=false for
// an unknown resource.
func (q Quotas) ForResource(resource string) (int64, bool) {
	switch resource {
	case ResourceUsers:
		return q.MaxUsers, true
	case ResourceProjects:
		return q.MaxProjects, true
	case ResourceStorageMB:
		return q.MaxStorageMB, true
	case ResourceAPICalls:
		return q.MaxAPICallsPerDay, true
	case ResourceAITokens:
		return q.MaxAITokensPerDay, true
	}
	return 0, false
}

// Resource type names used by quotas and usage counters.
const (
	ResourceUsers     = "users"
	ResourceProjects  = "projects"
	ResourceStorageMB = "storage_mb"
	ResourceAPICalls  = "api_calls"
	ResourceAITokens  = "ai_tokens"
)

// Usage holds the tenant's recorded usage counters. Updates are merged per
// field, never written as a whole block.
type Usage struct {
	Users     int64 `json:"users" gorm:"default:0"`
	Projects  int64 `json:"projects" gorm:"default:0"`
	StorageMB int64 `json:"storage_mb" gorm:"default:0"`
	APICalls  int64 `json:"api_calls" gorm:"default:0"`
	AITokens  int64 `json:"ai_tokens" gorm:"default:0"`
}

// ForResource returns the usage counter for a named resource type.
func (u Usage) ForResource(resource string) (int64, bool) {
	switch resource {
	case ResourceUsers:
		return u.Users, true
	case ResourceProjects:
		return u.Projects, true
	case ResourceStorageMB:
		return u.StorageMB, true
	case ResourceAPICalls:
		return u.APICalls, true
	case ResourceAITokens:
		return u.AITokens, true
	}
	return 0, false
}

// UsageDelta is a partial usage update; zero fields leave the counter alone.
type UsageDelta struct {
	Users     int64 `json:"users,omitempty"`
	Projects  int64 `json:"projects,omitempty"`
	StorageMB int64 `json:"storage_mb,omitempty"`
	APICalls  int64 `json:"api_calls,omitempty"`
	AITokens  int64 `json:"ai_tokens,omitempty"`
}

// Security holds the tenant's network and identity restrictions. Empty lists
// mean unrestricted.
type Security struct {
	IPAllowList           datatypes.JSON `json:"ip_allow_list,omitempty" gorm:"type:jsonb"`
	AllowedEmailDomains   datatypes.JSON `json:"allowed_email_domains,omitempty" gorm:"type:jsonb"`
	SessionTimeoutMinutes int            `json:"session_timeout_minutes" gorm:"default:60"`
	RequireMFA            bool           `json:"require_mfa" gorm:"default:false"`
}

// IPList decodes the IP allow-list column.
func (s Security) IPList() []string {
	return decodeStringList(s.IPAllowList)
}

// EmailDomains decodes the allowed email domains column.
func (s Security) EmailDomains() []string {
	return decodeStringList(s.AllowedEmailDomains)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// EncodeStringList builds a JSONB column value from a string slice.
func EncodeStringList(list []string) datatypes.JSON {
	if len(list) == 0 {
		return nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return raw
}

// RateLimitRule configures one limit type's token bucket.
type RateLimitRule struct {
	WindowSeconds int `json:"window_seconds"`
	MaxRequests   int `json:"max_requests"`
}

// Rate limit types enforced per tenant.
const (
	LimitAPI    = "api"
	LimitAuth   = "auth"
	LimitExport = "export"
	LimitAI     = "ai"
)

// AuditFlag is a severity-tagged marker appended to the tenant's audit trail.
type AuditFlag struct {
	Flag     string    `json:"flag"`
	Severity string    `json:"severity"`
	At       time.Time `json:"at"`
}

// Tenant is the authoritative tenant record and the unit of isolation.
// The Tenant Directory exclusively owns rows of this model; every other
// component sees only a read-only, request-scoped projection.
type Tenant struct {
	ID                string            `json:"id" gorm:"type:uuid;primaryKey"`
	Name              string            `json:"name" gorm:"type:varchar(100);not null"`
	Slug              string            `json:"slug" gorm:"type:varchar(64);uniqueIndex;not null"`
	IsolationStrategy IsolationStrategy `json:"isolation_strategy" gorm:"type:varchar(32);default:'row-filter'"`
	// StorageDSN is only populated for dedicated-connection tenants. It is
	// excluded from JSON and must never be logged.
	StorageDSN string       `json:"-" gorm:"type:text"`
	SchemaName string       `json:"schema_name,omitempty" gorm:"type:varchar(64)"`
	Status     TenantStatus `json:"status" gorm:"type:varchar(16);default:'active';index"`

	Subscription Subscription `json:"subscription" gorm:"embedded;embeddedPrefix:sub_"`
	Quotas       Quotas       `json:"quotas" gorm:"embedded;embeddedPrefix:quota_"`
	Usage        Usage        `json:"usage" gorm:"embedded;embeddedPrefix:usage_"`
	Security     Security     `json:"security" gorm:"embedded;embeddedPrefix:sec_"`

	// RateLimits maps limit type to its bucket configuration.
	RateLimits datatypes.JSON `json:"rate_limits,omitempty" gorm:"type:jsonb"`

	Domains []TenantDomain `json:"domains,omitempty" gorm:"foreignKey:TenantID"`

	CreatedBy      string         `json:"created_by" gorm:"type:varchar(64)"`
	UpdatedBy      string         `json:"updated_by" gorm:"type:varchar(64)"`
	LastActivityAt *time.Time     `json:"last_activity_at,omitempty"`
	AuditFlags     datatypes.JSON `json:"audit_flags,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// RateLimitRules decodes the per-limit-type bucket configuration.
func (t *Tenant) RateLimitRules() map[string]RateLimitRule {
	if len(t.RateLimits) == 0 {
		return nil
	}
	var rules map[string]RateLimitRule
	if err := json.Unmarshal(t.RateLimits, &rules); err != nil {
		return nil
	}
	return rules
}

// TrialExpired reports whether a trial tenant is past its expiry timestamp.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.Subscription.Plan == PlanTrial &&
		t.Subscription.TrialEndsAt != nil &&
		now.After(*t.Subscription.TrialEndsAt)
}

// DecodeAuditFlags decodes the audit-flag trail.
func (t *Tenant) DecodeAuditFlags() []AuditFlag {
	if len(t.AuditFlags) == 0 {
		return nil
	}
	var flags []AuditFlag
	if err := json.Unmarshal(t.AuditFlags, &flags); err != nil {
		return nil
	}
	return flags
}

// TenantDomain is a custom domain attached to a tenant. Only verified
// domains participate in request resolution. At most one domain per tenant
// is primary; the directory enforces that invariant.
type TenantDomain struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	TenantID          string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Domain            string    `json:"domain" gorm:"type:varchar(255);uniqueIndex;not null"`
	Verified          bool      `json:"verified" gorm:"default:false"`
	VerificationToken string    `json:"-" gorm:"type:varchar(64)"`
	Primary           bool      `json:"primary" gorm:"column:is_primary;default:false"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (TenantDomain) TableName() string {
	return "tenant_domains"
}
