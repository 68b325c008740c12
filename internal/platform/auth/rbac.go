package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole allows the request when the caller holds any of roles. Admins
// always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u := UserFromContext(c.Request().Context())
			if u.IsSuperuser() {
				return next(c)
			}
			for _, required := range roles {
				if u.HasRole(required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireRegistry rejects callers who are not members of the registry named
// by the route parameter param.
func RequireRegistry(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			code := c.Param(param)
			if !UserFromContext(c.Request().Context()).InRegistry(code) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("no access to registry %s", code))
			}
			return next(c)
		}
	}
}
