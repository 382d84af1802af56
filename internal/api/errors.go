package api

import (
	"errors"
	"fmt"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/pkg/client"

	"github.com/gofiber/fiber/v2"
)

// exchangeAppError maps an exchange failure onto the gateway's error surface
func exchangeAppError(destination string, err error) *models.AppError {
	if errors.Is(err, client.ErrClientStopped) {
		return models.NewUnavailableError(destination, err)
	}

	kind, ok := client.KindOf(err)
	if !ok {
		return models.NewInternalError("exchange failed", err)
	}

	switch kind {
	case client.TimeoutError:
		return models.NewTimeoutError(fmt.Sprintf("fetch %s", destination), err)
	case client.DestinationUnavailable:
		return models.NewCircuitBreakerError(destination)
	default:
		return models.NewUpstreamError(destination, kind.String(), err)
	}
}

// writeError sends a sanitized AppError as JSON
func writeError(c *fiber.Ctx, err error) error {
	appErr := models.SanitizeError(err)
	return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr})
}

func requestID(c *fiber.Ctx) string {
	id := c.Get("X-Request-ID")
	if id == "" {
		id = fmt.Sprintf("fetch_%d", c.Context().Time().UnixNano())
	}
	return id
}
