package models

// ServerConfig holds gateway-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
	// FetchTimeoutMs is the default request deadline, which bounds how long the
	// fetch endpoint waits for upstream headers
	FetchTimeoutMs int `json:"fetch_timeout_ms,omitzero" yaml:"fetch_timeout_ms,omitempty"`
}

// RedisConfig points the gateway at the shared Redis used by circuit breakers
// and the session cluster
type RedisConfig struct {
	URL      string `json:"url,omitzero" yaml:"url"`
	PoolSize int    `json:"pool_size,omitzero" yaml:"pool_size,omitempty"`
}

// CircuitBreakerConfig holds per-destination circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold,omitzero" yaml:"failure_threshold,omitempty"` // Number of failures before opening circuit
	SuccessThreshold int `json:"success_threshold,omitzero" yaml:"success_threshold,omitempty"` // Number of successes to close circuit
	TimeoutMs        int `json:"timeout_ms,omitzero" yaml:"timeout_ms,omitempty"`               // How long the circuit stays open before a probe
	ResetAfterMs     int `json:"reset_after_ms,omitzero" yaml:"reset_after_ms,omitempty"`       // Time to wait before trying to close circuit
}

// SessionConfig configures the clustered session servers
type SessionConfig struct {
	Port                int `json:"port,omitzero" yaml:"port,omitempty"`                                   // 0 picks a free port
	MaxIntervalSec      int `json:"max_interval_sec,omitzero" yaml:"max_interval_sec,omitempty"`           // Session TTL, <=0 never expires
	ScavengeIntervalSec int `json:"scavenge_interval_sec,omitzero" yaml:"scavenge_interval_sec,omitempty"` // Period of the local scavenger
	EvictionPolicy      int `json:"eviction_policy,omitzero" yaml:"eviction_policy,omitempty"`             // -1 never, 0 after each request, >0 idle seconds
}
