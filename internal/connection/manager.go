package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-service/internal/model"
	"tenant-service/prometheus"
)

// PoolConfig holds the pool settings applied to each per-tenant connection.
type PoolConfig struct {
	MinPoolSize int
	MaxPoolSize int
	IdleTimeout time.Duration
}

// Opener dials a tenant storage DSN with the given pool settings. The
// production opener wraps gorm/postgres; tests substitute a counter.
type Opener func(dsn string, pool PoolConfig) (*gorm.DB, error)

type entry struct {
	once sync.Once
	db   *gorm.DB
	err  error
}

// Manager creates, caches and tears down per-tenant storage connections,
// provisions per-tenant schema objects and applies versioned migrations.
// One Manager instance is constructed at startup and injected into the
// request pipeline.
type Manager struct {
	shared *gorm.DB
	opener Opener
	pool   PoolConfig
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]*entry

	migrations *Migrator
}

// NewManager creates a connection manager. shared is the platform's shared
// database handle used by non-dedicated tenants and by the migration log.
func NewManager(shared *gorm.DB, opener Opener, pool PoolConfig, log *zap.Logger) *Manager {
	m := &Manager{
		shared: shared,
		opener: opener,
		pool:   pool,
		log:    log,
		cache:  map[string]*entry{},
	}
	m.migrations = NewMigrator(m, log)
	return m
}

// Shared returns the shared database handle.
func (m *Manager) Shared() *gorm.DB {
	return m.shared
}

// Migrations exposes the migration registry for startup registration.
func (m *Manager) Migrations() *Migrator {
	return m.migrations
}

// Get returns the tenant's storage connection, dialing it lazily on first
// use. Dedicated-connection tenants get their own pooled handle, cached by
// tenant id; all other strategies share the platform handle. Concurrent
// first access for the same tenant dials exactly once.
func (m *Manager) Get(ctx context.Context, t *model.Tenant) (*gorm.DB, error) {
	if t.IsolationStrategy != model.IsolationDedicated {
		return m.shared, nil
	}
	if t.StorageDSN == "" {
		return nil, fmt.Errorf("tenant %s uses dedicated connections but has no storage locator", t.ID)
	}

	m.mu.Lock()
	e, ok := m.cache[t.ID]
	if !ok {
		e = &entry{}
		m.cache[t.ID] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.db, e.err = m.opener(t.StorageDSN, m.pool)
		if e.err != nil {
			// A failed dial must not poison the cache slot; the next
			// access retries with a fresh entry.
			m.mu.Lock()
			if m.cache[t.ID] == e {
				delete(m.cache, t.ID)
			}
			m.mu.Unlock()
			m.log.Error("Tenant connection failed",
				zap.String("tenant_id", t.ID),
				zap.Error(e.err))
			return
		}
		prometheus.ConnectionCacheGauge.Set(float64(m.CachedCount()))
		m.log.Info("Tenant connection established", zap.String("tenant_id", t.ID))
	})

	if e.err != nil {
		return nil, fmt.Errorf("connecting tenant %s storage: %w", t.ID, e.err)
	}
	return e.db, nil
}

// HandleDisconnect evicts and closes the tenant's cached connection after a
// connection-level fatal error, so the next access re-dials instead of
// failing repeatedly against a known-bad handle. Other tenants' entries are
// untouched.
func (m *Manager) HandleDisconnect(tenantID string) {
	m.mu.Lock()
	e, ok := m.cache[tenantID]
	if ok {
		delete(m.cache, tenantID)
	}
	m.mu.Unlock()

	if ok && e.db != nil {
		closeDB(e.db)
		m.log.Warn("Tenant connection evicted after disconnect", zap.String("tenant_id", tenantID))
	}
	prometheus.ConnectionCacheGauge.Set(float64(m.CachedCount()))
}

// Close releases the tenant's pooled resources and removes the cache entry.
func (m *Manager) Close(tenantID string) {
	m.HandleDisconnect(tenantID)
}

// CloseAll releases every cached tenant connection. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := m.cache
	m.cache = map[string]*entry{}
	m.mu.Unlock()

	for id, e := range entries {
		if e.db != nil {
			closeDB(e.db)
		}
		m.log.Debug("Tenant connection closed", zap.String("tenant_id", id))
	}
	prometheus.ConnectionCacheGauge.Set(0)
}

// CachedCount returns the number of cached tenant connections.
func (m *Manager) CachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
