package isolation

import (
	"fmt"

	"gorm.io/gorm"
)

// AccessContext is the data-access capability handed to a request after
// isolation is established. Exactly one implementation exists per strategy;
// the strategy is selected once per tenant, not re-branched at call sites.
type AccessContext interface {
	// DB returns the handle every query in the request must go through.
	DB() *gorm.DB
	// Collection maps a logical model name to the physical table the
	// request may touch.
	Collection(logical string) string
	// Release returns pooled resources at request end. Safe to call on
	// every completion path.
	Release() error
}

// dedicatedContext exposes the tenant's own pooled connection.
type dedicatedContext struct {
	db *gorm.DB
}

func (c *dedicatedContext) DB() *gorm.DB { return c.db }

func (c *dedicatedContext) Collection(logical string) string { return logical }

func (c *dedicatedContext) Release() error {
	// The pool is owned by the connection manager; per-request release is a
	// no-op beyond returning the handle.
	return nil
}

// schemaContext shares the platform connection but namespaces every model
// access with the tenant's logical schema.
type schemaContext struct {
	db         *gorm.DB
	schemaName string
}

func (c *schemaContext) DB() *gorm.DB { return c.db }

func (c *schemaContext) Collection(logical string) string {
	return fmt.Sprintf("%s.%s", c.schemaName, logical)
}

func (c *schemaContext) Release() error { return nil }

// rowFilterContext shares connection and tables but scopes every query with
// the tenant's identifier. The filter is applied at construction; a query
// without it cannot be produced from this context.
type rowFilterContext struct {
	db       *gorm.DB
	tenantID string
}

// newRowFilterContext requires the tenant id up front, making filter
// omission a construction error rather than a runtime patch.
func newRowFilterContext(shared *gorm.DB, tenantID string) (*rowFilterContext, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("row-filter context requires a tenant id")
	}
	scoped := shared.Where("tenant_id = ?", tenantID).Session(&gorm.Session{})
	return &rowFilterContext{db: scoped, tenantID: tenantID}, nil
}

func (c *rowFilterContext) DB() *gorm.DB { return c.db }

func (c *rowFilterContext) Collection(logical string) string { return logical }

func (c *rowFilterContext) Release() error { return nil }

// TenantID returns the identifier every query through this context is
// scoped by.
func (c *rowFilterContext) TenantID() string { return c.tenantID }
