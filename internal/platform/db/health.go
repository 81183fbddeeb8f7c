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

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status            string     `json:"status"`
	Error             string     `json:"error,omitempty"`
	PendingMigrations *int       `json:"pending_migrations,omitempty"`
	Pool              *PoolStats `json:"pool,omitempty"`
}

// HealthChecker probes the database and the migration state.
type HealthChecker struct {
	ping    func(ctx context.Context) error
	stats   func() *PoolStats
	pending func(ctx context.Context) (int, error)
	timeout time.Duration
}

// NewHealthChecker checks pool connectivity and, when migrator is non-nil,
// reports pending migrations. A pending migration degrades the status but
// keeps the endpoint at 200.
func NewHealthChecker(pool *pgxpool.Pool, migrator *Migrator) *HealthChecker {
	h := &HealthChecker{
		ping:    pool.Ping,
		stats:   func() *PoolStats { return GetPoolStats(pool) },
		timeout: 5 * time.Second,
	}
	if migrator != nil {
		h.pending = migrator.Pending
	}
	return h
}

func (h *HealthChecker) Check(ctx context.Context) (int, HealthReport) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{Status: "healthy"}
	if h.stats != nil {
		report.Pool = h.stats()
	}

	if err := h.ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return http.StatusServiceUnavailable, report
	}

	if h.pending != nil {
		n, err := h.pending(ctx)
		if err != nil {
			report.Status = "degraded"
			report.Error = err.Error()
			return http.StatusOK, report
		}
		report.PendingMigrations = &n
		if n > 0 {
			report.Status = "degraded"
		}
	}
	return http.StatusOK, report
}

// HealthHandler returns a handler for the database health check endpoint.
func (h *HealthChecker) HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		status, report := h.Check(c.Request().Context())
		return c.JSON(status, report)
	}
}
