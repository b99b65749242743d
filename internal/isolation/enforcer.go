package isolation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/connection"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
)

// Enforcer establishes the data-access context for a resolved tenant
// according to its isolation strategy. Any failure is DATA_ISOLATION_ERROR
// and fatal to the request; no partial isolation ever proceeds.
type Enforcer struct {
	connections *connection.Manager
	directory   tenant.Directory
	log         *zap.Logger
}

// NewEnforcer creates the isolation enforcer.
func NewEnforcer(connections *connection.Manager, directory tenant.Directory, log *zap.Logger) *Enforcer {
	return &Enforcer{connections: connections, directory: directory, log: log}
}

// Acquire builds the access context the rest of the request will use.
func (e *Enforcer) Acquire(ctx context.Context, tc *tenant.Context) (AccessContext, error) {
	access, err := e.acquire(ctx, tc)
	if err != nil {
		e.log.Error("Data isolation setup failed",
			zap.String("tenant_id", tc.ID),
			zap.String("isolation_strategy", string(tc.Strategy)),
			zap.Error(err))
		return nil, apperr.DataIsolation(err)
	}
	return access, nil
}

func (e *Enforcer) acquire(ctx context.Context, tc *tenant.Context) (AccessContext, error) {
	switch tc.Strategy {
	case model.IsolationDedicated:
		// The manager needs the full record for the storage locator; the
		// request context never carries it.
		full, err := e.directory.GetByID(ctx, tc.ID)
		if err != nil {
			return nil, fmt.Errorf("loading tenant record: %w", err)
		}
		db, err := e.connections.Get(ctx, full)
		if err != nil {
			return nil, err
		}
		return &dedicatedContext{db: db}, nil

	case model.IsolationSchema:
		if tc.SchemaName == "" {
			return nil, fmt.Errorf("tenant %s has no logical schema name", tc.ID)
		}
		return &schemaContext{db: e.connections.Shared(), schemaName: tc.SchemaName}, nil

	case model.IsolationRowFilter:
		return newRowFilterContext(e.connections.Shared(), tc.ID)

	default:
		return nil, fmt.Errorf("unknown isolation strategy %q", tc.Strategy)
	}
}
