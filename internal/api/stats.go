package api

import (
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-h1/internal/services/journal"
	"github.com/Egham-7/adaptive-h1/pkg/client"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultExchangeLimit = 50

// StatsHandler reports pool, breaker and journal statistics. breakers and
// journal are optional.
type StatsHandler struct {
	client   *client.Client
	breakers *circuitbreaker.Registry
	journal  *journal.Service
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(c *client.Client, breakers *circuitbreaker.Registry, journalSvc *journal.Service) *StatsHandler {
	return &StatsHandler{
		client:   c,
		breakers: breakers,
		journal:  journalSvc,
	}
}

// Stats handles GET /v1/stats[?since=<RFC3339>]
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	response := fiber.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"pools":     h.client.Stats(),
	}

	if h.breakers != nil {
		response["breakers"] = h.breakers.States()
	}

	if h.journal != nil {
		var since time.Time
		if raw := c.Query("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return writeError(c, models.NewValidationError("since must be an RFC3339 timestamp", err))
			}
			since = t
		}

		summaries, err := h.journal.Summaries(c.UserContext(), since)
		if err != nil {
			fiberlog.Errorf("Failed to summarize journal: %v", err)
			return writeError(c, models.NewInternalError("failed to read journal", err))
		}
		response["journal"] = summaries
	}

	return c.JSON(response)
}

// Exchanges handles GET /v1/stats/exchanges?destination=<dest>[&limit=&offset=]
func (h *StatsHandler) Exchanges(c *fiber.Ctx) error {
	if h.journal == nil {
		return writeError(c, models.NewNotFoundError("exchange journal"))
	}

	destination := c.Query("destination")
	if destination == "" {
		return writeError(c, models.NewValidationError("destination query parameter is required", nil))
	}

	limit := c.QueryInt("limit", defaultExchangeLimit)
	offset := c.QueryInt("offset", 0)

	records, err := h.journal.ListByDestination(c.UserContext(), destination, limit, offset)
	if err != nil {
		fiberlog.Errorf("Failed to list exchanges for %s: %v", destination, err)
		return writeError(c, models.NewInternalError("failed to read journal", err))
	}

	return c.JSON(fiber.Map{
		"destination": destination,
		"exchanges":   records,
	})
}
