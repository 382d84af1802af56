package circuitbreaker

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Registry hands out one CircuitBreaker per destination and gates the HTTP
// client through them.
type Registry struct {
	redisClient *redis.Client
	config      Config
	breakers    *clientcache.Cache[*CircuitBreaker]
}

// NewRegistry creates a registry whose breakers share config
func NewRegistry(redisClient *redis.Client, config Config) *Registry {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		fiberlog.Errorf("Redis connection failed for circuit breakers: %v", err)
	}

	return &Registry{
		redisClient: redisClient,
		config:      config,
		breakers:    clientcache.NewCache[*CircuitBreaker](),
	}
}

// Get returns the breaker for destination, creating it on first use
func (r *Registry) Get(destination string) *CircuitBreaker {
	cb, _ := r.breakers.GetOrCreate(destination, func() (*CircuitBreaker, error) {
		return NewWithConfig(r.redisClient, destination, r.config), nil
	})
	return cb
}

func (r *Registry) CanExecute(destination string) bool {
	return r.Get(destination).CanExecute()
}

func (r *Registry) RecordSuccess(destination string) {
	r.Get(destination).RecordSuccess()
}

func (r *Registry) RecordFailure(destination string) {
	r.Get(destination).RecordFailure()
}

// States returns the state of every breaker created so far
func (r *Registry) States() map[string]string {
	states := make(map[string]string)
	r.breakers.Range(func(destination string, cb *CircuitBreaker) bool {
		states[destination] = cb.State().String()
		return true
	})
	return states
}
