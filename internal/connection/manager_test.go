package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-service/internal/model"
)

// countingOpener records how many dials were made and can be scripted to
// fail the first n attempts.
type countingOpener struct {
	calls    atomic.Int32
	failures int32
}

func (o *countingOpener) open(string, PoolConfig) (*gorm.DB, error) {
	n := o.calls.Add(1)
	if n <= o.failures {
		return nil, errors.New("dial refused")
	}
	return &gorm.DB{Config: &gorm.Config{}}, nil
}

func dedicatedTenant(id string) *model.Tenant {
	return &model.Tenant{
		ID:                id,
		Slug:              id,
		IsolationStrategy: model.IsolationDedicated,
		StorageDSN:        "host=" + id + "-db",
	}
}

func TestGetSharedForNonDedicatedStrategies(t *testing.T) {
	shared := &gorm.DB{}
	opener := &countingOpener{}
	m := NewManager(shared, opener.open, PoolConfig{}, zap.NewNop())

	for _, strategy := range []model.IsolationStrategy{model.IsolationSchema, model.IsolationRowFilter} {
		db, err := m.Get(context.Background(), &model.Tenant{ID: "t-1", IsolationStrategy: strategy})
		require.NoError(t, err)
		assert.Same(t, shared, db)
	}
	assert.Equal(t, int32(0), opener.calls.Load())
	assert.Equal(t, 0, m.CachedCount())
}

func TestGetDedicatedRequiresStorageLocator(t *testing.T) {
	m := NewManager(&gorm.DB{}, (&countingOpener{}).open, PoolConfig{}, zap.NewNop())

	tn := dedicatedTenant("t-1")
	tn.StorageDSN = ""
	_, err := m.Get(context.Background(), tn)
	assert.Error(t, err)
}

func TestGetDialsOncePerTenant(t *testing.T) {
	opener := &countingOpener{}
	m := NewManager(&gorm.DB{}, opener.open, PoolConfig{}, zap.NewNop())
	tn := dedicatedTenant("t-1")

	first, err := m.Get(context.Background(), tn)
	require.NoError(t, err)
	second, err := m.Get(context.Background(), tn)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), opener.calls.Load())
	assert.Equal(t, 1, m.CachedCount())
}

func TestGetConcurrentFirstAccessDialsOnce(t *testing.T) {
	opener := &countingOpener{}
	m := NewManager(&gorm.DB{}, opener.open, PoolConfig{}, zap.NewNop())
	tn := dedicatedTenant("t-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Get(context.Background(), tn)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opener.calls.Load())
}

func TestFailedDialIsRetriedOnNextAccess(t *testing.T) {
	opener := &countingOpener{failures: 1}
	m := NewManager(&gorm.DB{}, opener.open, PoolConfig{}, zap.NewNop())
	tn := dedicatedTenant("t-1")

	_, err := m.Get(context.Background(), tn)
	require.Error(t, err)
	assert.Equal(t, 0, m.CachedCount(), "failed dial must not occupy the cache")

	db, err := m.Get(context.Background(), tn)
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, int32(2), opener.calls.Load())
}

func TestHandleDisconnectEvictsOnlyThatTenant(t *testing.T) {
	opener := &countingOpener{}
	m := NewManager(&gorm.DB{}, opener.open, PoolConfig{}, zap.NewNop())

	first := dedicatedTenant("t-1")
	second := dedicatedTenant("t-2")
	_, err := m.Get(context.Background(), first)
	require.NoError(t, err)
	_, err = m.Get(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, 2, m.CachedCount())

	m.HandleDisconnect("t-1")
	assert.Equal(t, 1, m.CachedCount())

	// The evicted tenant re-dials; the other keeps its handle
	_, err = m.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, int32(3), opener.calls.Load())
	_, err = m.Get(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, int32(3), opener.calls.Load())
}

func TestCloseAllEmptiesCache(t *testing.T) {
	opener := &countingOpener{}
	m := NewManager(&gorm.DB{}, opener.open, PoolConfig{}, zap.NewNop())

	_, err := m.Get(context.Background(), dedicatedTenant("t-1"))
	require.NoError(t, err)
	_, err = m.Get(context.Background(), dedicatedTenant("t-2"))
	require.NoError(t, err)

	m.CloseAll()
	assert.Equal(t, 0, m.CachedCount())
}
