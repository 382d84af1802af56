package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Config tunes one breaker. Timeout is how long the circuit stays open after
// the last failure; ResetAfter is how long an untouched breaker keeps its
// state in Redis (zero keeps it forever).
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	ResetAfter       time.Duration
}

// ConfigFrom converts the YAML breaker configuration
func ConfigFrom(cfg models.CircuitBreakerConfig) Config {
	return Config{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          time.Duration(cfg.TimeoutMs) * time.Millisecond,
		ResetAfter:       time.Duration(cfg.ResetAfterMs) * time.Millisecond,
	}
}

// DefaultConfig returns the breaker defaults
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		ResetAfter:       2 * time.Minute,
	}
}

const (
	keyPrefix    = "h1:breaker:"
	redisTimeout = time.Second
)

// Each destination is one hash: state, failures, successes, failed_at and
// changed_at (unix ms). Every script takes KEYS[1] = hash, ARGV[1] = now,
// ARGV[2] = its threshold or timeout and ARGV[3] = ttl in ms, and refreshes
// the ttl on the way out.
func breakerScript(body string) *redis.Script {
	return redis.NewScript(`
local function step()
	local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
` + body + `
end
local result = step()
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return result
`)
}

// Script results
const (
	denied     = 0
	admitted   = 1
	transition = 2
)

var (
	// Open admits nothing until Timeout passed since the last failure, then
	// turns HalfOpen
	admitScript = breakerScript(`
	if state ~= 1 then
		return 1
	end
	local failedAt = tonumber(redis.call('HGET', KEYS[1], 'failed_at') or '0')
	if tonumber(ARGV[1]) - failedAt <= tonumber(ARGV[2]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'state', 2, 'successes', 0, 'changed_at', ARGV[1])
	return 2
`)

	// HalfOpen closes after ARGV[2] successes
	successScript = breakerScript(`
	redis.call('HSET', KEYS[1], 'failures', 0)
	if state ~= 2 then
		return 0
	end
	if redis.call('HINCRBY', KEYS[1], 'successes', 1) < tonumber(ARGV[2]) then
		return 1
	end
	redis.call('HSET', KEYS[1], 'state', 0, 'successes', 0, 'changed_at', ARGV[1])
	return 2
`)

	// Closed opens after ARGV[2] consecutive failures, HalfOpen after one
	failureScript = breakerScript(`
	local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
	redis.call('HSET', KEYS[1], 'failed_at', ARGV[1])
	if state == 2 or (state == 0 and failures >= tonumber(ARGV[2])) then
		redis.call('HSET', KEYS[1], 'state', 1, 'successes', 0, 'changed_at', ARGV[1])
		return 2
	end
	return 0
`)
)

// CircuitBreaker guards one destination. Its state lives in Redis so every
// gateway instance sharing the Redis sees the same circuit.
type CircuitBreaker struct {
	redisClient *redis.Client
	destination string
	config      Config
	key         string
}

// New creates a breaker for destination with default thresholds
func New(redisClient *redis.Client, destination string) *CircuitBreaker {
	return NewWithConfig(redisClient, destination, DefaultConfig())
}

// NewWithConfig creates a breaker for destination. A destination without
// state in Redis is Closed.
func NewWithConfig(redisClient *redis.Client, destination string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient: redisClient,
		destination: destination,
		config:      config,
		key:         keyPrefix + destination,
	}
}

func (cb *CircuitBreaker) run(script *redis.Script, arg int64) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	args := []any{time.Now().UnixMilli(), arg, cb.config.ResetAfter.Milliseconds()}
	return script.Run(ctx, cb.redisClient, []string{cb.key}, args...).Int()
}

// CanExecute reports whether a request may go to the destination. Redis
// errors fail open.
func (cb *CircuitBreaker) CanExecute() bool {
	result, err := cb.run(admitScript, cb.config.Timeout.Milliseconds())
	if err != nil {
		fiberlog.Errorf("[BREAKER] %s: state unavailable, allowing request: %v", cb.destination, err)
		return true
	}
	if result == transition {
		fiberlog.Infof("[BREAKER] %s: HalfOpen, probing", cb.destination)
	}
	return result != denied
}

func (cb *CircuitBreaker) RecordSuccess() {
	result, err := cb.run(successScript, int64(cb.config.SuccessThreshold))
	switch {
	case err != nil:
		fiberlog.Errorf("[BREAKER] %s: failed to record success: %v", cb.destination, err)
	case result == transition:
		fiberlog.Infof("[BREAKER] %s: Closed", cb.destination)
	case result == admitted:
		fiberlog.Debugf("[BREAKER] %s: probe succeeded", cb.destination)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	result, err := cb.run(failureScript, int64(cb.config.FailureThreshold))
	switch {
	case err != nil:
		fiberlog.Errorf("[BREAKER] %s: failed to record failure: %v", cb.destination, err)
	case result == transition:
		fiberlog.Warnf("[BREAKER] %s: Open", cb.destination)
	default:
		fiberlog.Debugf("[BREAKER] %s: failure recorded", cb.destination)
	}
}

// State reads the current state; on a Redis error it reports Closed
func (cb *CircuitBreaker) State() State {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	raw, err := cb.redisClient.HGet(ctx, cb.key, "state").Result()
	if errors.Is(err, redis.Nil) {
		return Closed
	}
	if err != nil {
		fiberlog.Errorf("[BREAKER] %s: failed to read state: %v", cb.destination, err)
		return Closed
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fiberlog.Errorf("[BREAKER] %s: invalid state %q", cb.destination, raw)
		return Closed
	}
	return State(n)
}
