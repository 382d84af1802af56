package api

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-h1/pkg/client"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	client      *client.Client
	redisClient *redis.Client
}

// NewHealthHandler creates a new health check handler. redisClient may be nil
// when no Redis is configured.
func NewHealthHandler(c *client.Client, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		client:      c,
		redisClient: redisClient,
	}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	redisStatus := h.checkRedis()
	engineStatus := h.checkEngine()

	overallStatus := "healthy"
	statusCode := fiber.StatusOK

	if redisStatus == "unhealthy" || engineStatus != "healthy" {
		overallStatus = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	response := fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"redis":  redisStatus,
			"engine": engineStatus,
		},
	}

	return c.Status(statusCode).JSON(response)
}

// checkRedis verifies Redis connectivity
func (h *HealthHandler) checkRedis() string {
	if h.redisClient == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}

	return "healthy"
}

// checkEngine verifies the HTTP client engine accepts exchanges
func (h *HealthHandler) checkEngine() string {
	if h.client == nil || !h.client.IsRunning() {
		return "stopped"
	}
	return "healthy"
}
