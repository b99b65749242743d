package model

import "time"

// TenantMigration is one row of the append-only migration log. A row exists
// only for migrations that completed successfully, which is what makes
// ApplyMigration idempotent and retryable after failure.
type TenantMigration struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_version"`
	Version   int       `json:"version" gorm:"not null;uniqueIndex:idx_tenant_version"`
	Name      string    `json:"name" gorm:"type:varchar(128)"`
	AppliedAt time.Time `json:"applied_at"`
}

func (TenantMigration) TableName() string {
	return "tenant_migrations"
}
