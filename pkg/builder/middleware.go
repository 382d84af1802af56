package builder

import (
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"

	"github.com/gofiber/fiber/v2"
)

// WithRateLimit limits each caller to maxRequests per window. Callers are
// keyed by IP unless keyFunc is given.
func (b *Builder) WithRateLimit(maxRequests int, window time.Duration, keyFunc ...func(*fiber.Ctx) string) *Builder {
	b.rateLimitConfig = &models.RateLimitConfig{Max: maxRequests, Window: window}
	if len(keyFunc) > 0 {
		b.rateLimitConfig.KeyFunc = keyFunc[0]
	}
	return b
}

// WithTimeout bounds every request with fiber's context timeout middleware.
// The X-Request-Timeout override does not apply.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeoutConfig = &models.TimeoutConfig{Timeout: timeout}
	return b
}

// WithMiddleware appends a handler run after the built-in middleware
func (b *Builder) WithMiddleware(middleware fiber.Handler) *Builder {
	b.middlewares = append(b.middlewares, middleware)
	return b
}
