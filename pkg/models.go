package pkg

import "github.com/Egham-7/adaptive-h1/internal/models"

type (
	ServerConfig         = models.ServerConfig
	ClientConfig         = models.ClientConfig
	RedisConfig          = models.RedisConfig
	CircuitBreakerConfig = models.CircuitBreakerConfig
	SessionConfig        = models.SessionConfig
	DatabaseConfig       = models.DatabaseConfig
	RateLimitConfig      = models.RateLimitConfig
	TimeoutConfig        = models.TimeoutConfig
	ExchangeRecord       = models.ExchangeRecord
	ExchangeSummary      = models.ExchangeSummary
)
