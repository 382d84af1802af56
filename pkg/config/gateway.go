package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/api"
	"github.com/Egham-7/adaptive-h1/internal/config"
	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-h1/internal/services/database"
	"github.com/Egham-7/adaptive-h1/internal/services/journal"
	"github.com/Egham-7/adaptive-h1/internal/services/session"
	"github.com/Egham-7/adaptive-h1/pkg/builder"
	"github.com/Egham-7/adaptive-h1/pkg/client"
	"github.com/Egham-7/adaptive-h1/pkg/spi"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/redis/go-redis/v9"
)

const (
	defaultJournalWorkers   = 4
	defaultJournalQueueSize = 1000
	shutdownTimeout         = 30 * time.Second
)

// Gateway serves the streaming fetch gateway in front of the HTTP/1.1 engine.
type Gateway struct {
	config  *config.Config
	builder *builder.Builder
	app     *fiber.App

	redis    *redis.Client
	db       *database.DB
	engine   *client.Client
	breakers *circuitbreaker.Registry
	journal  *journal.Service
	worker   *journal.Worker
	session  *session.Server
}

type gatewayInfrastructure struct {
	redis *redis.Client
	db    *database.DB
}

// NewGateway creates a Gateway with the given configuration.
// The cfg parameter is required and must not be nil.
// For custom middleware and limits, use NewGatewayWithBuilder.
func NewGateway(cfg *config.Config) *Gateway {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the builder to create config")
	}
	return &Gateway{config: cfg}
}

// NewGatewayWithBuilder creates a Gateway from a configuration builder.
func NewGatewayWithBuilder(b *builder.Builder) *Gateway {
	return &Gateway{
		config:  b.Build(),
		builder: b,
	}
}

// App returns the fiber application once Setup has run
func (g *Gateway) App() *fiber.App {
	return g.app
}

// Engine returns the HTTP/1.1 client once Setup has run
func (g *Gateway) Engine() *client.Client {
	return g.engine
}

// Session returns the session node, nil unless sessions are configured
func (g *Gateway) Session() *session.Server {
	return g.session
}

// Setup validates the configuration, connects infrastructure, starts the
// engine and registers middleware and routes. It does not listen.
func (g *Gateway) Setup() error {
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(g.config)

	g.app = createFiberApp(g.config)

	// === Infrastructure Setup ===
	infra, err := initializeInfrastructure(g.config)
	if err != nil {
		return err
	}
	g.redis = infra.redis
	g.db = infra.db

	// === Services Initialization ===
	if err := g.initializeServices(); err != nil {
		g.Shutdown()
		return err
	}

	// === Middleware Setup ===
	setupMiddleware(g.app, g.config, g.builder)

	// === Routes Setup ===
	g.setupRoutes()

	return nil
}

// Run sets the gateway up and blocks until SIGINT/SIGTERM or a server error.
func (g *Gateway) Run() error {
	if err := g.Setup(); err != nil {
		return err
	}
	defer g.Shutdown()

	port := g.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	fmt.Printf("🚀 adaptive-h1 gateway starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", g.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := g.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- g.app.ShutdownWithTimeout(shutdownTimeout)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-time.After(shutdownTimeout + time.Second):
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

// Shutdown stops the session node, the engine and the journal writer, then
// closes infrastructure. It is safe to call more than once.
func (g *Gateway) Shutdown() {
	if g.session != nil {
		if err := g.session.Stop(); err != nil {
			fiberlog.Errorf("Failed to stop session node: %v", err)
		}
		g.session = nil
	}
	if g.engine != nil {
		if err := g.engine.Stop(); err != nil {
			fiberlog.Errorf("Failed to stop client engine: %v", err)
		}
		g.engine = nil
	}
	// After the engine so the last completions are journaled
	if g.worker != nil {
		g.worker.Stop()
		g.worker = nil
	}
	if g.redis != nil {
		if err := g.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
		g.redis = nil
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
		g.db = nil
	}
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:               "adaptive-h1 v1.0",
		EnablePrintRoutes:     !isProd,
		DisableStartupMessage: isProd,
		ReadTimeout:           2 * time.Minute,
		WriteTimeout:          2 * time.Minute,
		IdleTimeout:           5 * time.Minute,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
		CaseSensitive:         true,
		StrictRouting:         false,
		Network:               "tcp",
		ServerHeader:          "adaptive-h1",
	})
}

func (g *Gateway) initializeServices() error {
	var opts []client.Option

	if g.redis != nil {
		g.breakers = circuitbreaker.NewRegistry(g.redis, circuitbreaker.ConfigFrom(g.config.CircuitBreaker))
		opts = append(opts, client.WithBreaker(g.breakers))
		fiberlog.Info("Per-destination circuit breakers enabled")
	}

	if g.db != nil {
		g.journal = journal.NewService(g.db)
		if err := g.journal.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate exchange journal: %w", err)
		}
		workers, queueSize := defaultJournalWorkers, defaultJournalQueueSize
		if n := g.config.Database.JournalWorkers; n > 0 {
			workers = n
		}
		if n := g.config.Database.JournalQueueSize; n > 0 {
			queueSize = n
		}
		g.worker = journal.NewWorker(g.journal, workers, queueSize)
		opts = append(opts, client.WithObserver(g.worker))
		fiberlog.Infof("Exchange journal enabled (%d workers, queue %d)", workers, queueSize)
	}

	g.engine = client.New(g.config.Client, opts...)
	if err := g.engine.Start(); err != nil {
		return fmt.Errorf("failed to start client engine: %w", err)
	}

	if sc := g.config.Session; sc != nil {
		g.session = session.NewServer(sc.Port, sc.MaxIntervalSec, sc.ScavengeIntervalSec, sc.EvictionPolicy, g.redis)
		if err := g.session.Start(); err != nil {
			return fmt.Errorf("failed to start session node: %w", err)
		}
	}

	return nil
}

func setupMiddleware(app *fiber.App, cfg *config.Config, b *builder.Builder) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	// Rate limiter (builder config if available, otherwise defaults)
	rateLimit := models.DefaultRateLimitConfig()
	if b != nil && b.GetRateLimitConfig() != nil {
		rateLimit = *b.GetRateLimitConfig()
	}
	app.Use(limiter.New(limiter.Config{
		Max:               rateLimit.Max,
		Expiration:        rateLimit.Window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      rateLimit.Key,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests,
				fmt.Sprintf("%d requests per %v", rateLimit.Max, rateLimit.Window))
		},
	}))

	// Request deadline carried by the user context. The fetch handler waits
	// for upstream headers under it; streamed bodies are not bounded by it.
	if b != nil && b.GetTimeoutConfig() != nil {
		timeoutDuration := b.GetTimeoutConfig().Timeout
		app.Use(func(c *fiber.Ctx) error {
			handler := func(c *fiber.Ctx) error {
				return c.Next()
			}
			return timeout.NewWithContext(handler, timeoutDuration)(c)
		})
	} else {
		deadlines := models.TimeoutConfig{Timeout: 30 * time.Second, MaxTimeout: 2 * time.Minute}
		if cfg.Server.FetchTimeoutMs > 0 {
			deadlines.Timeout = time.Duration(cfg.Server.FetchTimeoutMs) * time.Millisecond
		}
		app.Use(func(c *fiber.Ctx) error {
			ctx, cancel := context.WithTimeout(c.UserContext(), deadlines.Resolve(c.Get("X-Request-Timeout")))
			defer cancel()
			c.SetUserContext(ctx)
			return c.Next()
		})
	}

	// Compression; fetch responses stream and must reach the caller per flush
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/v1/fetch")
		},
	}))

	// Logging
	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	// CORS
	allowedHeaders := []string{
		"Origin", "Content-Type", "Accept", "Accept-Language", "User-Agent",
		"X-Request-ID", "X-Request-Timeout",
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     strings.Join(allowedHeaders, ", "),
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: cfg.Server.AllowedOrigins != "*",
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, X-Upstream-Body-Mode",
	}))

	// Custom middlewares from builder
	if b != nil {
		for _, middleware := range b.GetMiddlewares() {
			app.Use(middleware)
		}
	}

	// Profiler (dev only)
	if !isProd {
		app.Use(pprof.New())
	}
}

func (g *Gateway) setupRoutes() {
	healthHandler := api.NewHealthHandler(g.engine, g.redis)
	g.app.Get("/health", healthHandler.HealthCheck)

	fetchHandler := api.NewFetchHandler(g.engine)
	statsHandler := api.NewStatsHandler(g.engine, g.breakers, g.journal)

	v1Group := g.app.Group("/v1")
	v1Group.Get("/fetch", fetchHandler.Fetch)
	v1Group.Post("/echo", spi.Adapt(&spi.HTTPContext{Path: "/v1/echo"}, api.EchoHandler()))
	v1Group.Get("/stats", statsHandler.Stats)
	v1Group.Get("/stats/exchanges", statsHandler.Exchanges)

	g.app.Get("/", welcomeHandler())
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "adaptive-h1 streaming gateway",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"fetch":     "/v1/fetch",
				"echo":      "/v1/echo",
				"stats":     "/v1/stats",
				"exchanges": "/v1/stats/exchanges",
				"health":    "/health",
			},
		})
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()
	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		fiberlog.Info("Redis not configured - circuit breakers and sessions disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	if cfg.Redis.PoolSize > 0 {
		opt.PoolSize = cfg.Redis.PoolSize
	}
	opt.MinIdleConns = min(10, opt.PoolSize)
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	fiberlog.Debugf("Redis client configuration: PoolSize=%d, MinIdle=%d, MaxRetries=%d",
		opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)

	return testRedisConnectionWithRetry(redis.NewClient(opt))
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			stats := client.PoolStats()
			fiberlog.Debugf("Redis pool initialized: Hits=%d, Misses=%d, Timeouts=%d, TotalConns=%d, IdleConns=%d",
				stats.Hits, stats.Misses, stats.Timeouts, stats.TotalConns, stats.IdleConns)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func initializeInfrastructure(cfg *config.Config) (*gatewayInfrastructure, error) {
	infra := &gatewayInfrastructure{}

	redisClient, err := createRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	infra.redis = redisClient
	if redisClient != nil {
		fiberlog.Info("Redis client initialized successfully")
	}

	if cfg.Database != nil && cfg.Database.Enabled() {
		db, err := database.New(*cfg.Database)
		if err != nil {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		infra.db = db
		fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())
	} else {
		fiberlog.Info("Database not configured - exchange journal disabled")
	}

	return infra, nil
}
