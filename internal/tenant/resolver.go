package tenant

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/model"
)

// HeaderTenantID is the explicit tenant-identifying request header.
const HeaderTenantID = "X-Tenant-ID"

// ResolveInput carries the request signals the resolver inspects.
type ResolveInput struct {
	Host          string
	Path          string
	TenantHeader  string
	ClaimTenantID string
}

// Resolver extracts a tenant identity from an inbound request using a fixed
// precedence of strategies: verified custom domain, platform subdomain,
// explicit header, URL path segment, identity claims. The first strategy
// that yields a matching, non-deleted tenant wins.
type Resolver struct {
	directory       Directory
	baseDomain      string
	systemEndpoints []string
	log             *zap.Logger
	now             func() time.Time
}

// NewResolver creates a resolver over the given directory. baseDomain is the
// platform's own domain, used for subdomain extraction; systemEndpoints are
// path prefixes permitted to proceed without a tenant.
func NewResolver(directory Directory, baseDomain string, systemEndpoints []string, log *zap.Logger) *Resolver {
	return &Resolver{
		directory:       directory,
		baseDomain:      baseDomain,
		systemEndpoints: systemEndpoints,
		log:             log,
		now:             time.Now,
	}
}

// IsSystemEndpoint reports whether the path is on the fixed allow-list of
// endpoints that carry no tenant (health, metrics, docs, admin).
func (r *Resolver) IsSystemEndpoint(path string) bool {
	for _, prefix := range r.systemEndpoints {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// Resolve identifies the tenant for a request. A nil context with a nil
// error is returned for system endpoints; all other unresolved requests fail
// with TENANT_NOT_FOUND.
func (r *Resolver) Resolve(ctx context.Context, input ResolveInput) (*Context, error) {
	t, method, raw, err := r.resolveRecord(ctx, input)
	if err != nil || t == nil {
		return nil, err
	}
	return r.resolved(t, method, raw), nil
}

func (r *Resolver) resolveRecord(ctx context.Context, input ResolveInput) (*model.Tenant, ResolutionMethod, string, error) {
	host := stripPort(input.Host)

	// 1. Exact custom-domain match against a verified domain
	if host != "" && net.ParseIP(host) == nil {
		if t, err := r.lookup(ctx, func() (*model.Tenant, error) {
			return r.directory.GetByDomain(ctx, host)
		}); err != nil {
			return nil, "", "", err
		} else if t != nil {
			return t, MethodCustomDomain, host, nil
		}
	}

	// 2. Subdomain of the platform's own domain, matched by slug
	if sub, ok := r.subdomain(host); ok {
		if t, err := r.lookup(ctx, func() (*model.Tenant, error) {
			return r.directory.GetBySlug(ctx, sub)
		}); err != nil {
			return nil, "", "", err
		} else if t != nil {
			return t, MethodSubdomain, sub, nil
		}
	}

	// 3. Explicit tenant header, matched by id then by slug. Tenant ids are
	// uuids; a non-uuid header value can only be a slug, and must not reach
	// the uuid-typed primary key column.
	if input.TenantHeader != "" {
		if _, uuidErr := uuid.Parse(input.TenantHeader); uuidErr == nil {
			if t, err := r.lookup(ctx, func() (*model.Tenant, error) {
				return r.directory.GetByID(ctx, input.TenantHeader)
			}); err != nil {
				return nil, "", "", err
			} else if t != nil {
				return t, MethodHeader, input.TenantHeader, nil
			}
		}
		if t, err := r.lookup(ctx, func() (*model.Tenant, error) {
			return r.directory.GetBySlug(ctx, input.TenantHeader)
		}); err != nil {
			return nil, "", "", err
		} else if t != nil {
			return t, MethodHeader, input.TenantHeader, nil
		}
	}

	// 4. Tenant slug embedded in the URL path (/tenant/{slug}/...)
	if slug, ok := pathSlug(input.Path); ok {
		if t, err := r.lookup(ctx, func() (*model.Tenant, error) {
			return r.directory.GetBySlug(ctx, slug)
		}); err != nil {
			return nil, "", "", err
		} else if t != nil {
			return t, MethodPath, slug, nil
		}
	}

	// 5. Tenant id carried in the caller's identity claims. A malformed id
	// cannot match any tenant and is skipped rather than sent to the store.
	if input.ClaimTenantID != "" {
		if _, uuidErr := uuid.Parse(input.ClaimTenantID); uuidErr == nil {
			if t, err := r.lookup(ctx, func() (*model.Tenant, error) {
				return r.directory.GetByID(ctx, input.ClaimTenantID)
			}); err != nil {
				return nil, "", "", err
			} else if t != nil {
				return t, MethodClaims, input.ClaimTenantID, nil
			}
		}
	}

	if r.IsSystemEndpoint(input.Path) {
		return nil, "", "", nil
	}

	r.log.Warn("Tenant resolution failed",
		zap.String("host", host),
		zap.String("path", input.Path))
	return nil, "", "", apperr.TenantNotFound(host)
}

// Validate checks the resolved tenant's status and subscription. Each check
// is independent and produces a distinct error code.
func (r *Resolver) Validate(full *model.Tenant) error {
	if full.Status != model.StatusActive {
		return apperr.TenantInactive(full.ID, string(full.Status))
	}
	if full.Subscription.Status == model.SubscriptionSuspended {
		return apperr.TenantSuspended(full.ID)
	}
	if full.TrialExpired(r.now()) {
		return apperr.TrialExpired(full.ID)
	}
	return nil
}

// ResolveAndValidate is the request-pipeline entry point: resolution
// followed by status validation.
func (r *Resolver) ResolveAndValidate(ctx context.Context, input ResolveInput) (*Context, error) {
	t, method, raw, err := r.resolveRecord(ctx, input)
	if err != nil || t == nil {
		return nil, err
	}

	if err := r.Validate(t); err != nil {
		return nil, err
	}
	return r.resolved(t, method, raw), nil
}

// lookup normalizes a directory miss to (nil, nil) so resolution falls
// through to the next strategy; other errors abort.
func (r *Resolver) lookup(ctx context.Context, fn func() (*model.Tenant, error)) (*model.Tenant, error) {
	t, err := fn()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *Resolver) resolved(t *model.Tenant, method ResolutionMethod, raw string) *Context {
	r.log.Debug("Tenant resolved",
		zap.String("tenant_id", t.ID),
		zap.String("slug", t.Slug),
		zap.String("method", string(method)),
		zap.String("identifier", raw))
	return NewContext(t, method, raw)
}

// subdomain extracts the tenant slug from a host under the platform domain.
func (r *Resolver) subdomain(host string) (string, bool) {
	if r.baseDomain == "" || host == r.baseDomain {
		return "", false
	}
	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	sub := strings.TrimSuffix(host, suffix)
	// Nested subdomains (a.b.platform...) carry no slug
	if sub == "" || strings.Contains(sub, ".") || sub == "www" {
		return "", false
	}
	return sub, true
}

func pathSlug(path string) (string, bool) {
	const prefix = "/tenant/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

func stripPort(host string) string {
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
