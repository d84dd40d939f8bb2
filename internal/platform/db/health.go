package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check is one named dependency check.
type Check struct {
	Name  string
	Ping  func(ctx context.Context) error
	Stats func() interface{}
}

// PoolCheck pings a pgx pool and reports its statistics.
func PoolCheck(pool *pgxpool.Pool) Check {
	return Check{
		Name:  "postgres",
		Ping:  pool.Ping,
		Stats: func() interface{} { return GetPoolStats(pool) },
	}
}

// HealthHandler pings every check and answers 503 when any of them fails.
// With no checks the store is in memory and always healthy.
func HealthHandler(storage string, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]interface{}, len(checks))
		for _, chk := range checks {
			entry := map[string]interface{}{"status": "healthy"}
			if err := chk.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				entry["status"] = "unhealthy"
				entry["error"] = err.Error()
			}
			if chk.Stats != nil {
				entry["stats"] = chk.Stats()
			}
			deps[chk.Name] = entry
		}

		body := map[string]interface{}{
			"status":  "healthy",
			"storage": storage,
			"checks":  deps,
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		return c.JSON(status, body)
	}
}
