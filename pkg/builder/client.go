package builder

import "github.com/Egham-7/adaptive-h1/internal/models"

// WithClient replaces the engine configuration; unset fields keep their defaults
func (b *Builder) WithClient(cfg models.ClientConfig) *Builder {
	b.cfg.Client = cfg.WithDefaults()
	return b
}

func (b *Builder) Workers(workers, queueSize int) *Builder {
	b.cfg.Client.Workers = workers
	b.cfg.Client.QueueSize = queueSize
	return b
}

func (b *Builder) MaxConnectionsPerDestination(n int) *Builder {
	b.cfg.Client.MaxConnectionsPerDestination = n
	return b
}

// RequestTimeout sets the default per-exchange deadline in milliseconds
func (b *Builder) RequestTimeout(ms int) *Builder {
	b.cfg.Client.RequestTimeoutMs = ms
	return b
}

func (b *Builder) MaxContentBytes(n int64) *Builder {
	b.cfg.Client.MaxContentBytes = n
	return b
}
