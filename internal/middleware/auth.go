package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
)

// ClaimsMiddleware parses the optional bearer token and stores the identity
// claims for the resolver and security enforcer. The request proceeds
// without claims when no token is present; token issuance and protocol
// details live in the external auth service. A present-but-invalid token is
// still rejected.
func ClaimsMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set("claims", claims)
			c.Set("email", claims.Email)
			if claims.TenantID != "" {
				c.Set("claim_tenant_id", claims.TenantID)
			}

			log.Debug("Request authenticated",
				zap.Uint("user_id", claims.UserID),
				zap.String("email", claims.Email))

			return next(c)
		}
	}
}
