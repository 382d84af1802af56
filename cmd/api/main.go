package main

import (
	"log"
	"os"

	"github.com/Egham-7/adaptive-h1/internal/config"
	pkgconfig "github.com/Egham-7/adaptive-h1/pkg/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	configPath := "config.yaml"
	if p := os.Getenv("H1_CONFIG"); p != "" {
		configPath = p
	}

	// Load configuration from YAML
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	gateway := pkgconfig.NewGateway(cfg)

	log.Println("Starting adaptive-h1 gateway...")
	if err := gateway.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
