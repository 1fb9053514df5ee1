package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// UserEmailKey is the echo context key holding the authenticated subject.
	UserEmailKey = "auth_user_email"
	// UserRoleKey is the echo context key holding the authenticated role.
	UserRoleKey = "auth_user_role"
)

// Middleware authenticates requests with a bearer access token. Failures are
// uniform 401s; the concrete cause stays server side.
func Middleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			claims, err := issuer.Validate(raw)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(UserEmailKey, claims.Subject)
			c.Set(UserRoleKey, Role(claims.Role))
			return next(c)
		}
	}
}

// RequireCapability gates a route group on one capability. The permission
// matrix is the only authority; there is no role that bypasses it.
func RequireCapability(cap Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := RoleFromContext(c)
			if !ok || !Can(role, cap) {
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}
			return next(c)
		}
	}
}

// EmailFromContext returns the authenticated user's email.
func EmailFromContext(c echo.Context) (string, bool) {
	email, ok := c.Get(UserEmailKey).(string)
	return email, ok && email != ""
}

// RoleFromContext returns the authenticated user's role.
func RoleFromContext(c echo.Context) (Role, bool) {
	role, ok := c.Get(UserRoleKey).(Role)
	return role, ok
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}
