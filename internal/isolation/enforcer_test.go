package isolation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-service/internal/apperr"
	"tenant-service/internal/connection"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
)

type staticDirectory struct {
	tenants map[string]*model.Tenant
}

func (d *staticDirectory) GetByID(_ context.Context, id string) (*model.Tenant, error) {
	if t, ok := d.tenants[id]; ok {
		return t, nil
	}
	return nil, tenant.ErrNotFound
}

func (d *staticDirectory) GetBySlug(context.Context, string) (*model.Tenant, error) {
	return nil, tenant.ErrNotFound
}

func (d *staticDirectory) GetByDomain(context.Context, string) (*model.Tenant, error) {
	return nil, tenant.ErrNotFound
}

func openerReturning(db *gorm.DB) connection.Opener {
	return func(string, connection.PoolConfig) (*gorm.DB, error) { return db, nil }
}

func TestAcquireDedicatedUsesTenantConnection(t *testing.T) {
	shared := &gorm.DB{}
	dedicated := &gorm.DB{}
	manager := connection.NewManager(shared, openerReturning(dedicated), connection.PoolConfig{}, zap.NewNop())

	dir := &staticDirectory{tenants: map[string]*model.Tenant{
		"t-1": {ID: "t-1", IsolationStrategy: model.IsolationDedicated, StorageDSN: "host=t1-db"},
	}}
	e := NewEnforcer(manager, dir, zap.NewNop())

	access, err := e.Acquire(context.Background(), &tenant.Context{ID: "t-1", Strategy: model.IsolationDedicated})
	require.NoError(t, err)
	assert.Same(t, dedicated, access.DB())
	assert.Equal(t, "projects", access.Collection("projects"))
	assert.NoError(t, access.Release())
}

func TestAcquireDedicatedMissingRecordFails(t *testing.T) {
	manager := connection.NewManager(&gorm.DB{}, openerReturning(&gorm.DB{}), connection.PoolConfig{}, zap.NewNop())
	e := NewEnforcer(manager, &staticDirectory{}, zap.NewNop())

	_, err := e.Acquire(context.Background(), &tenant.Context{ID: "ghost", Strategy: model.IsolationDedicated})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeDataIsolationError, appErr.Code)
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestAcquireSchemaNamespacesCollections(t *testing.T) {
	shared := &gorm.DB{}
	manager := connection.NewManager(shared, nil, connection.PoolConfig{}, zap.NewNop())
	e := NewEnforcer(manager, &staticDirectory{}, zap.NewNop())

	access, err := e.Acquire(context.Background(), &tenant.Context{
		ID:         "t-1",
		Strategy:   model.IsolationSchema,
		SchemaName: "tenant_acme",
	})
	require.NoError(t, err)
	assert.Same(t, shared, access.DB())
	assert.Equal(t, "tenant_acme.projects", access.Collection("projects"))
}

func TestAcquireSchemaWithoutNameFails(t *testing.T) {
	manager := connection.NewManager(&gorm.DB{}, nil, connection.PoolConfig{}, zap.NewNop())
	e := NewEnforcer(manager, &staticDirectory{}, zap.NewNop())

	_, err := e.Acquire(context.Background(), &tenant.Context{ID: "t-1", Strategy: model.IsolationSchema})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeDataIsolationError, appErr.Code)
}

func TestAcquireUnknownStrategyFails(t *testing.T) {
	manager := connection.NewManager(&gorm.DB{}, nil, connection.PoolConfig{}, zap.NewNop())
	e := NewEnforcer(manager, &staticDirectory{}, zap.NewNop())

	_, err := e.Acquire(context.Background(), &tenant.Context{ID: "t-1", Strategy: "sharded"})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeDataIsolationError, appErr.Code)
}

func TestRowFilterContextRequiresTenantID(t *testing.T) {
	_, err := newRowFilterContext(&gorm.DB{}, "")
	assert.Error(t, err)
}

func TestRowFilterContextExposesTenantID(t *testing.T) {
	// Collection mapping is the identity for shared tables
	c := &rowFilterContext{tenantID: "t-1"}
	assert.Equal(t, "projects", c.Collection("projects"))
	assert.Equal(t, "t-1", c.TenantID())
	assert.NoError(t, c.Release())
}

func TestDataIsolationErrorWrapsCause(t *testing.T) {
	cause := errors.New("pool exhausted")
	err := apperr.DataIsolation(cause)
	assert.ErrorIs(t, err, cause)
}
