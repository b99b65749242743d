package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type contextKey string

const loggerKey contextKey = "logger"

// Echo context keys shared between the request pipeline and handlers.
const (
	EchoLoggerKey = "logger"
	EchoTenantKey = "tenant_id"
)

// FromContext retrieves the request logger from the context
func FromContext(ctx context.Context) *zap.Logger {
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok {
		return GetLogger()
	}
	return logger
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithTenant returns the logger tagged with the tenant id. An empty id
// leaves the logger untouched.
func WithTenant(logger *zap.Logger, tenantID string) *zap.Logger {
	if tenantID == "" {
		return logger
	}
	return logger.With(zap.String(EchoTenantKey, tenantID))
}

// AttachTenant tags the request logger with the resolved tenant id and stores
// the logger and id back on the Echo context so every downstream log line
// carries the tenant attribution.
func AttachTenant(c echo.Context, tenantID string) *zap.Logger {
	logger := WithTenant(FromEcho(c), tenantID)
	c.Set(EchoLoggerKey, logger)
	c.Set(EchoTenantKey, tenantID)
	return logger
}

// FromEcho retrieves the logger from the Echo context. When no request logger
// was attached yet, the fallback still carries the resolved tenant id.
func FromEcho(c echo.Context) *zap.Logger {
	if logger, ok := c.Get(EchoLoggerKey).(*zap.Logger); ok {
		return logger
	}
	tenantID, _ := c.Get(EchoTenantKey).(string)
	return WithTenant(GetLogger(), tenantID)
}
