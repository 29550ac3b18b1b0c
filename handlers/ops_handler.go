package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/ncnu-assistant/dormmail-backend/database"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsHandler serves health and metrics endpoints
type OpsHandler struct {
	DB      *sql.DB
	Metrics *shared.ServiceMetrics
}

// NewOpsHandler creates the handler; db may be nil when the postgres store is not in use
func NewOpsHandler(db *sql.DB, metrics *shared.ServiceMetrics) *OpsHandler {
	return &OpsHandler{DB: db, Metrics: metrics}
}

func (h *OpsHandler) Health(c *fiber.Ctx) error {
	response := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		if err := database.HealthCheck(ctx, h.DB); err != nil {
			response["status"] = "degraded"
			response["database"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(response)
		}
		stats := h.DB.Stats()
		response["database_stats"] = fiber.Map{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration_ms": stats.WaitDuration.Milliseconds(),
		}
	}

	return c.JSON(response)
}

// PrometheusHandler exposes the service registry in the text exposition format
func (h *OpsHandler) PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(h.Metrics.Registry(), promhttp.HandlerOpts{}))
}
