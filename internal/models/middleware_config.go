package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig bounds how many requests one caller key may make per window
type RateLimitConfig struct {
	Max     int
	Window  time.Duration
	KeyFunc func(*fiber.Ctx) string // nil keys callers by IP
}

// DefaultRateLimitConfig is used when the builder sets no limit
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Max: 1000, Window: time.Minute}
}

// Key returns the limiter bucket for c
func (r RateLimitConfig) Key(c *fiber.Ctx) string {
	if r.KeyFunc != nil {
		return r.KeyFunc(c)
	}
	return c.IP()
}

// TimeoutConfig sets the deadline placed on each request's user context.
// Callers may shorten or extend it with X-Request-Timeout up to MaxTimeout.
type TimeoutConfig struct {
	Timeout    time.Duration
	MaxTimeout time.Duration // zero disables the header override
}

// Resolve returns the deadline for a request carrying the given
// X-Request-Timeout value
func (t TimeoutConfig) Resolve(header string) time.Duration {
	if header == "" || t.MaxTimeout <= 0 {
		return t.Timeout
	}
	d, err := time.ParseDuration(header)
	if err != nil || d <= 0 {
		return t.Timeout
	}
	return min(d, t.MaxTimeout)
}
