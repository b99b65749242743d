package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-service/internal/model"
	"tenant-service/prometheus"
)

// ErrMigrationInProgress is observed by a concurrent caller while another
// goroutine is applying the same (tenant, version) migration. The caller
// returns without re-running; the winner records the result.
var ErrMigrationInProgress = errors.New("migration already in progress")

// MigrationFunc applies one schema change against the tenant's storage.
type MigrationFunc func(ctx context.Context, db *gorm.DB, t *model.Tenant) error

// Migration is a named, versioned schema change.
type Migration struct {
	Version int
	Name    string
	Run     MigrationFunc
}

// MigrationLog persists which migrations have been applied to which tenant.
// Records are written only on success, which makes failed migrations
// retryable on next access.
type MigrationLog interface {
	Applied(ctx context.Context, tenantID string, version int) (bool, error)
	Record(ctx context.Context, rec *model.TenantMigration) error
}

type gormMigrationLog struct {
	db *gorm.DB
}

func (l *gormMigrationLog) Applied(ctx context.Context, tenantID string, version int) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&model.TenantMigration{}).
		Where("tenant_id = ? AND version = ?", tenantID, version).
		Count(&count).Error
	return count > 0, err
}

func (l *gormMigrationLog) Record(ctx context.Context, rec *model.TenantMigration) error {
	return l.db.WithContext(ctx).Create(rec).Error
}

type lockKey struct {
	tenantID string
	version  int
}

// Migrator runs registered migrations exactly once per (tenant, version).
// Concurrent attempts for the same pair are serialized by an in-process lock
// map; this assumes a single service instance.
type Migrator struct {
	manager  *Manager
	store    MigrationLog
	log      *zap.Logger
	mu       sync.Mutex
	registry map[int]Migration
	inFlight map[lockKey]struct{}
}

// NewMigrator creates a migrator whose log lives in the shared database.
func NewMigrator(m *Manager, log *zap.Logger) *Migrator {
	return &Migrator{
		manager:  m,
		store:    &gormMigrationLog{db: m.shared},
		log:      log,
		registry: map[int]Migration{},
		inFlight: map[lockKey]struct{}{},
	}
}

// Register adds a migration to the registry. Panics on a duplicate version;
// registration happens once at startup.
func (g *Migrator) Register(m Migration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.registry[m.Version]; exists {
		panic(fmt.Sprintf("duplicate migration version %d", m.Version))
	}
	g.registry[m.Version] = m
}

// Versions returns registered versions in ascending order.
func (g *Migrator) Versions() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	versions := make([]int, 0, len(g.registry))
	for v := range g.registry {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Apply runs the named migration exactly once for the tenant. A second
// concurrent caller for the same (tenant, version) observes
// ErrMigrationInProgress and returns without re-running.
func (g *Migrator) Apply(ctx context.Context, t *model.Tenant, version int) error {
	g.mu.Lock()
	m, ok := g.registry[version]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("unknown migration version %d", version)
	}

	key := lockKey{tenantID: t.ID, version: version}
	if _, busy := g.inFlight[key]; busy {
		g.mu.Unlock()
		return ErrMigrationInProgress
	}
	g.inFlight[key] = struct{}{}
	g.mu.Unlock()

	// The lock must be released on every path so a failed migration does
	// not leave the pair permanently locked.
	defer func() {
		g.mu.Lock()
		delete(g.inFlight, key)
		g.mu.Unlock()
	}()

	applied, err := g.store.Applied(ctx, t.ID, version)
	if err != nil {
		return fmt.Errorf("migration log lookup failed: %w", err)
	}
	if applied {
		prometheus.RecordMigration("skipped")
		return nil
	}

	db, err := g.manager.Get(ctx, t)
	if err != nil {
		return err
	}

	if err := m.Run(ctx, db, t); err != nil {
		prometheus.RecordMigration("failed")
		g.log.Error("Tenant migration failed",
			zap.String("tenant_id", t.ID),
			zap.Int("version", version),
			zap.String("name", m.Name),
			zap.Error(err))
		return fmt.Errorf("migration %d (%s) failed for tenant %s: %w", version, m.Name, t.ID, err)
	}

	rec := &model.TenantMigration{
		TenantID:  t.ID,
		Version:   version,
		Name:      m.Name,
		AppliedAt: time.Now(),
	}
	if err := g.store.Record(ctx, rec); err != nil {
		return fmt.Errorf("recording migration %d for tenant %s: %w", version, t.ID, err)
	}

	prometheus.RecordMigration("applied")
	g.log.Info("Tenant migration applied",
		zap.String("tenant_id", t.ID),
		zap.Int("version", version),
		zap.String("name", m.Name))
	return nil
}

// ApplyAll runs every registered migration for the tenant in version order.
// In-progress pairs are skipped; real failures abort.
func (g *Migrator) ApplyAll(ctx context.Context, t *model.Tenant) error {
	for _, version := range g.Versions() {
		if err := g.Apply(ctx, t, version); err != nil {
			if errors.Is(err, ErrMigrationInProgress) {
				continue
			}
			return err
		}
	}
	return nil
}
