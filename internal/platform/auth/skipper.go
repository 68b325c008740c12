package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer authentication. Review links authenticate with
// their own token query parameter.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/reviews":           true,
	"/reviews/items/:id": true,
	"/reviews/complete":  true,
}

// optionalPaths let anonymous requests through so the handler can answer
// with a login hint. A bearer token, when sent, is still validated.
var optionalPaths = map[string]bool{
	"/api/v1/registries/:code/patients/:id/edit": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// AuthOptional reports whether the matched route may be called anonymously.
func AuthOptional(c echo.Context) bool {
	return optionalPaths[c.Path()] && c.Request().Header.Get("Authorization") == ""
}
