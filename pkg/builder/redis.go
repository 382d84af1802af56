package builder

import "github.com/Egham-7/adaptive-h1/internal/models"

// WithRedis points circuit breakers and the session cluster at a Redis URL
func (b *Builder) WithRedis(url string, poolSize int) *Builder {
	b.cfg.Redis = &models.RedisConfig{URL: url, PoolSize: poolSize}
	return b
}

func (b *Builder) WithCircuitBreaker(cfg models.CircuitBreakerConfig) *Builder {
	b.cfg.CircuitBreaker = cfg
	return b
}

// WithSession starts a session node next to the gateway. Requires WithRedis.
func (b *Builder) WithSession(cfg models.SessionConfig) *Builder {
	b.cfg.Session = &cfg
	return b
}
