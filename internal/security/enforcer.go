package security

import (
	"net"
	"strings"

	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/tenant"
)

// Enforcer applies tenant-specific network and identity restrictions. An
// empty allow-list means unrestricted, never deny-all.
type Enforcer struct {
	log *zap.Logger
}

// NewEnforcer creates the security context enforcer.
func NewEnforcer(log *zap.Logger) *Enforcer {
	return &Enforcer{log: log}
}

// Check validates the caller's network origin and email domain against the
// tenant's security configuration.
func (e *Enforcer) Check(tc *tenant.Context, originIP, email string) error {
	if err := e.checkIP(tc, originIP); err != nil {
		return err
	}
	return e.checkEmailDomain(tc, email)
}

func (e *Enforcer) checkIP(tc *tenant.Context, originIP string) error {
	allowList := tc.Security.IPList()
	if len(allowList) == 0 {
		return nil
	}

	ip := net.ParseIP(originIP)
	if ip == nil {
		e.log.Warn("Unparseable origin IP",
			zap.String("tenant_id", tc.ID),
			zap.String("ip", originIP))
		return apperr.IPNotWhitelisted(originIP)
	}

	for _, entry := range allowList {
		// Entries may be plain addresses or CIDR ranges
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(ip) {
				return nil
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return nil
		}
	}

	e.log.Warn("Request origin rejected by IP allow-list",
		zap.String("tenant_id", tc.ID),
		zap.String("ip", originIP))
	return apperr.IPNotWhitelisted(originIP)
}

func (e *Enforcer) checkEmailDomain(tc *tenant.Context, email string) error {
	allowed := tc.Security.EmailDomains()
	if len(allowed) == 0 || email == "" {
		return nil
	}

	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return apperr.DomainNotAllowed(email)
	}
	domain := strings.ToLower(email[at+1:])

	for _, d := range allowed {
		if strings.EqualFold(d, domain) {
			return nil
		}
	}

	e.log.Warn("Caller email domain rejected",
		zap.String("tenant_id", tc.ID),
		zap.String("domain", domain))
	return apperr.DomainNotAllowed(domain)
}
