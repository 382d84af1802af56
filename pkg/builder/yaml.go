package builder

import (
	"github.com/Egham-7/adaptive-h1/internal/config"
	"github.com/gofiber/fiber/v2"
)

// FromYAML loads env files and a YAML config into a Builder so code can
// adjust it further before the gateway runs.
func FromYAML(path string, envFiles []string) (*Builder, error) {
	if len(envFiles) > 0 {
		config.LoadEnvFiles(envFiles)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	return builderFromConfig(cfg), nil
}

func builderFromConfig(cfg *config.Config) *Builder {
	return &Builder{
		cfg:         cfg,
		middlewares: []fiber.Handler{},
	}
}
