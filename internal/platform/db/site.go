package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	SiteIDKey contextKey = "site_id"
	DBConnKey contextKey = "db_conn"
)

// SiteHeader selects the registry installation for a request.
const SiteHeader = "X-Site-ID"

var siteIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaName returns the Postgres schema that holds a site's registry data.
func SchemaName(siteID string) string {
	return "site_" + siteID
}

// ValidSiteID reports whether id can be used to build a schema name.
func ValidSiteID(id string) bool {
	return siteIDPattern.MatchString(id)
}

// SiteMiddleware pins a pooled connection to the request and points its
// search_path at the selected site schema.
func SiteMiddleware(pool *pgxpool.Pool, defaultSite string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			siteID := extractSiteID(c, defaultSite)
			if !ValidSiteID(siteID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid site identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(siteID))); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "site resolution failed")
			}

			ctx = context.WithValue(ctx, SiteIDKey, siteID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("site_id", siteID)

			return next(c)
		}
	}
}

func extractSiteID(c echo.Context, defaultSite string) string {
	if sid, ok := c.Get("jwt_site_id").(string); ok && sid != "" {
		return sid
	}
	if sid := c.Request().Header.Get(SiteHeader); sid != "" {
		return sid
	}
	if sid := c.QueryParam("site_id"); sid != "" {
		return sid
	}
	return defaultSite
}

// ConnFromContext retrieves the site-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// SiteFromContext retrieves the site ID from context.
func SiteFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(SiteIDKey).(string)
	return sid
}

// ScopeConn acquires a connection bound to the site schema for work that runs
// outside an HTTP request, such as CLI commands. The returned release func
// must be called when done.
func ScopeConn(ctx context.Context, pool *pgxpool.Pool, siteID string) (context.Context, func(), error) {
	if !ValidSiteID(siteID) {
		return ctx, nil, fmt.Errorf("invalid site identifier: %s", siteID)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(siteID))); err != nil {
		conn.Release()
		return ctx, nil, fmt.Errorf("set search_path: %w", err)
	}
	ctx = context.WithValue(ctx, SiteIDKey, siteID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return ctx, conn.Release, nil
}

// CreateSiteSchema creates the schema for a registry installation and, when
// migrationsDir is set, applies every migration to it.
func CreateSiteSchema(ctx context.Context, pool *pgxpool.Pool, siteID string, migrationsDir string) error {
	if !ValidSiteID(siteID) {
		return fmt.Errorf("invalid site identifier: %s", siteID)
	}

	schema := SchemaName(siteID)
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}
