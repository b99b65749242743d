package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-service/internal/model"
)

func TestTableFor(t *testing.T) {
	schema := &model.Tenant{IsolationStrategy: model.IsolationSchema, SchemaName: "tenant_acme"}
	rowFilter := &model.Tenant{IsolationStrategy: model.IsolationRowFilter}
	dedicated := &model.Tenant{IsolationStrategy: model.IsolationDedicated}

	assert.Equal(t, "tenant_acme.projects", TableFor(schema, "projects"))
	assert.Equal(t, "projects", TableFor(rowFilter, "projects"))
	assert.Equal(t, "projects", TableFor(dedicated, "projects"))
}

func TestProvisionStatementsRowFilter(t *testing.T) {
	tn := &model.Tenant{ID: "t-1", IsolationStrategy: model.IsolationRowFilter}

	stmts := provisionStatements(tn, "projects")
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS projects")
	assert.Contains(t, stmts[0], "tenant_id UUID NOT NULL")
	assert.Contains(t, stmts[2], "idx_projects_tenant_id")
}

func TestProvisionStatementsSchema(t *testing.T) {
	tn := &model.Tenant{ID: "t-1", IsolationStrategy: model.IsolationSchema, SchemaName: "tenant_acme"}

	stmts := provisionStatements(tn, "documents")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS tenant_acme.documents")
	assert.NotContains(t, stmts[0], "tenant_id")
	// Index identifiers stay unique across schemas in the shared database
	assert.Contains(t, stmts[1], "idx_tenant_acme_documents_created_at")
}

func TestProvisionStatementsDedicated(t *testing.T) {
	tn := &model.Tenant{ID: "t-1", IsolationStrategy: model.IsolationDedicated}

	stmts := provisionStatements(tn, "members")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS members")
	assert.NotContains(t, stmts[0], "tenant_id")
}
