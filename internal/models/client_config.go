package models

import "time"

// ClientConfig configures the HTTP/1.1 client engine. Zero values select the
// defaults returned by DefaultClientConfig.
type ClientConfig struct {
	// Worker goroutines driving parsing and callbacks, and their queue capacity
	Workers   int `json:"workers,omitzero" yaml:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitzero" yaml:"queue_size,omitempty"`

	// Open connections allowed per (scheme, host, port)
	MaxConnectionsPerDestination int `json:"max_connections_per_destination,omitzero" yaml:"max_connections_per_destination,omitempty"`

	ConnectTimeoutMs int `json:"connect_timeout_ms,omitzero" yaml:"connect_timeout_ms,omitempty"`
	RequestTimeoutMs int `json:"request_timeout_ms,omitzero" yaml:"request_timeout_ms,omitempty"` // default per-exchange deadline
	IdleTimeoutMs    int `json:"idle_timeout_ms,omitzero" yaml:"idle_timeout_ms,omitempty"`

	ReadBufferSize  int   `json:"read_buffer_size,omitzero" yaml:"read_buffer_size,omitempty"`
	MaxHeaderBytes  int   `json:"max_header_bytes,omitzero" yaml:"max_header_bytes,omitempty"`
	MaxContentBytes int64 `json:"max_content_bytes,omitzero" yaml:"max_content_bytes,omitempty"` // zero means unbounded

	InsecureSkipVerify bool `json:"insecure_skip_verify,omitzero" yaml:"insecure_skip_verify,omitempty"`
}

// DefaultClientConfig returns the engine defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Workers:                      16,
		QueueSize:                    1024,
		MaxConnectionsPerDestination: 64,
		ConnectTimeoutMs:             10000,
		RequestTimeoutMs:             30000,
		IdleTimeoutMs:                60000,
		ReadBufferSize:               16 * 1024,
		MaxHeaderBytes:               32 * 1024,
	}
}

// WithDefaults fills every unset field from DefaultClientConfig
func (c ClientConfig) WithDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxConnectionsPerDestination <= 0 {
		c.MaxConnectionsPerDestination = d.MaxConnectionsPerDestination
	}
	if c.ConnectTimeoutMs <= 0 {
		c.ConnectTimeoutMs = d.ConnectTimeoutMs
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = d.RequestTimeoutMs
	}
	if c.IdleTimeoutMs <= 0 {
		c.IdleTimeoutMs = d.IdleTimeoutMs
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = d.MaxHeaderBytes
	}
	return c
}

func (c ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c ClientConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}
