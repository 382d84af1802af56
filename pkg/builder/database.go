package builder

import "github.com/Egham-7/adaptive-h1/internal/models"

// WithDatabase enables the exchange journal
func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}
