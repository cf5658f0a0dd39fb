package http

import (
	"context"
	"database/sql"
	"time"

	"campaign_sync/infra/database"
	"campaign_sync/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// BreakerReporter exposes the provider client's circuit breaker state.
type BreakerReporter interface {
	GetCircuitBreakerState() string
}

type HealthHandler struct {
	db       *pgxpool.Pool
	sqlDB    *sql.DB
	redis    *redis.Client
	provider BreakerReporter
	recorder *metrics.Recorder
}

// NewHealthHandler accepts nil for any dependency that is not configured.
func NewHealthHandler(db *pgxpool.Pool, sqlDB *sql.DB, redis *redis.Client, provider BreakerReporter, recorder *metrics.Recorder) *HealthHandler {
	return &HealthHandler{
		db:       db,
		sqlDB:    sqlDB,
		redis:    redis,
		provider: provider,
		recorder: recorder,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	if h.recorder != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.recorder.Handler()))
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]any)
	allHealthy := true

	// Check PostgreSQL
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["postgres"] = database.GetPoolStats(h.db)
		}
	} else {
		checks["postgres"] = "not configured"
	}

	// Check the repository pool
	if h.sqlDB != nil {
		if err := h.sqlDB.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			health := metrics.AssessDBPoolHealth(metrics.GetDBPoolStats(h.sqlDB))
			checks["database"] = health
			if health.Status == metrics.PoolUnhealthy {
				allHealthy = false
			}
		}
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	// Provider breaker. An open breaker degrades sync but not the read API.
	degraded := false
	if h.provider != nil {
		state := h.provider.GetCircuitBreakerState()
		checks["provider"] = fiber.Map{"circuit_breaker": state}
		degraded = state != "closed"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if degraded {
		status = "degraded"
	}
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
