package builder

import (
	"github.com/Egham-7/adaptive-h1/internal/config"
	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/gofiber/fiber/v2"
)

// Builder assembles a gateway configuration in code, for embedders that do
// not load a YAML file.
type Builder struct {
	cfg             *config.Config
	middlewares     []fiber.Handler
	rateLimitConfig *models.RateLimitConfig
	timeoutConfig   *models.TimeoutConfig
}

func New() *Builder {
	return &Builder{
		cfg: &config.Config{
			Server: models.ServerConfig{
				Port:           "8080",
				AllowedOrigins: "*",
				Environment:    "development",
				LogLevel:       "info",
			},
			Client:         models.DefaultClientConfig(),
			CircuitBreaker: config.MergeCircuitBreakerConfig(models.CircuitBreakerConfig{}),
		},
		middlewares: []fiber.Handler{},
	}
}

// Build returns the assembled configuration with engine defaults filled in
func (b *Builder) Build() *config.Config {
	b.cfg.Client = b.cfg.Client.WithDefaults()
	b.cfg.CircuitBreaker = config.MergeCircuitBreakerConfig(b.cfg.CircuitBreaker)
	return b.cfg
}

func (b *Builder) GetMiddlewares() []fiber.Handler {
	return b.middlewares
}

func (b *Builder) GetRateLimitConfig() *models.RateLimitConfig {
	return b.rateLimitConfig
}

func (b *Builder) GetTimeoutConfig() *models.TimeoutConfig {
	return b.timeoutConfig
}
