package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot reported by /health.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

type poolStat interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
	MaxConns() int32
	AcquireCount() int64
	AcquireDuration() time.Duration
}

func statsFrom(stat poolStat) *PoolStats {
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	return statsFrom(pool.Stat())
}

// HealthHandler pings the database and reports pool statistics along with
// the registry installation name. When the request is scoped to a site the
// latest migration applied to its schema is included; a site with no
// migrations is reported unhealthy.
func HealthHandler(pool *pgxpool.Pool, installName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := GetPoolStats(pool)
		body := map[string]interface{}{
			"status":  "healthy",
			"install": installName,
			"pool":    stats,
		}
		unhealthy := func(err error) error {
			stats.Healthy = false
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		if err := pool.Ping(ctx); err != nil {
			return unhealthy(err)
		}
		if conn := ConnFromContext(ctx); conn != nil {
			body["site"] = SiteFromContext(ctx)
			var version *int
			if err := conn.QueryRow(ctx, "SELECT max(version) FROM _migrations").Scan(&version); err != nil {
				return unhealthy(fmt.Errorf("site schema: %w", err))
			}
			if version == nil {
				return unhealthy(fmt.Errorf("site schema has no migrations applied"))
			}
			body["schema_version"] = *version
		}
		return c.JSON(http.StatusOK, body)
	}
}
