// Package config runs the medchat HTTP server from a configuration.
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

	"github.com/Egham-7/medchat/internal/api"
	"github.com/Egham-7/medchat/internal/config"
	"github.com/Egham-7/medchat/internal/services/anthropic/messages"
	"github.com/Egham-7/medchat/internal/services/auth"
	"github.com/Egham-7/medchat/internal/services/chat"
	"github.com/Egham-7/medchat/internal/services/circuitbreaker"
	"github.com/Egham-7/medchat/internal/services/database"
	"github.com/Egham-7/medchat/internal/services/history"
	"github.com/Egham-7/medchat/internal/services/middleware"
	"github.com/Egham-7/medchat/internal/services/stream/registry"
	"github.com/Egham-7/medchat/pkg/builder"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimitRpm = 120
	shutdownTimeout     = 30 * time.Second
)

// Server is one medchat instance
type Server struct {
	config   *config.Config
	app      *fiber.App
	redis    *redis.Client
	db       *database.DB
	builder  *builder.Builder
	registry *registry.Registry
}

// NewServer creates a Server with the given configuration.
// The cfg parameter is required and must not be nil.
func NewServer(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the builder to create config")
	}
	return &Server{config: cfg}
}

// NewServerWithBuilder creates a Server whose middlewares come from b
func NewServerWithBuilder(b *builder.Builder) *Server {
	return &Server{
		config:  b.Build(),
		builder: b,
	}
}

// Setup connects infrastructure and builds the HTTP app without listening.
// Callers that do not use Run must call Close.
func (s *Server) Setup() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	s.app = createFiberApp(s.config)

	if err := s.initializeInfrastructure(); err != nil {
		return err
	}

	setupMiddleware(s.app, s.config, s.builder)
	s.setupRoutes()
	return nil
}

// App returns the HTTP app built by Setup
func (s *Server) App() *fiber.App {
	return s.app
}

// Close releases Redis and database connections
func (s *Server) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.Setup(); err != nil {
		s.Close()
		return err
	}
	defer s.Close()

	listenAddr := ":" + s.config.Server.Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := s.registry.Run(ctx); err != nil {
			fiberlog.Errorf("Stop broadcast listener failed: %v", err)
		}
	}()

	fmt.Printf("medchat starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
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
	cancel()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "medchat v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		// No write timeout: streams are bounded by the session idle timeout
		IdleTimeout:     5 * time.Minute,
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		BodyLimit:       int(cfg.Uploads.MaxBytes) + 1<<20,
		CaseSensitive:   true,
		StrictRouting:   false,
		Network:         "tcp",
		ServerHeader:    "medchat",
		ErrorHandler:    errorHandler,
	})
}

// errorHandler renders errors that escaped a handler in the API error shape
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
	}
	if code >= fiber.StatusInternalServerError {
		fiberlog.Errorf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"type":    "internal",
			"message": err.Error(),
		},
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config, b *builder.Builder) {
	isProd := cfg.IsProduction()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	max, expiration := defaultRateLimitRpm, time.Minute
	if cfg.Server.RateLimitRpm > 0 {
		max = cfg.Server.RateLimitRpm
	}
	keyFunc := func(c *fiber.Ctx) string {
		if token := c.Get(fiber.HeaderAuthorization); token != "" {
			return token
		}
		if user := c.Get(cfg.Auth.UserHeader); user != "" {
			return user
		}
		return c.IP()
	}
	if b != nil && b.GetRateLimitConfig() != nil {
		rlCfg := b.GetRateLimitConfig()
		max, expiration = rlCfg.Max, rlCfg.Expiration
		if rlCfg.KeyFunc != nil {
			keyFunc = rlCfg.KeyFunc
		}
	}
	app.Use(limiter.New(limiter.Config{
		Max:               max,
		Expiration:        expiration,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      keyFunc,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"type":    "rate_limit",
					"message": fmt.Sprintf("%d requests per %v", max, expiration),
				},
			})
		},
	}))

	requestTimeout := 30 * time.Second
	if b != nil && b.GetTimeoutConfig() != nil {
		requestTimeout = b.GetTimeoutConfig().Timeout
	}
	app.Use(func(c *fiber.Ctx) error {
		const maxTimeout = 2 * time.Minute

		timeout := requestTimeout
		if customTimeout := c.Get("X-Request-Timeout"); customTimeout != "" {
			if d, err := time.ParseDuration(customTimeout); err == nil && d > 0 {
				timeout = min(d, maxTimeout)
			}
		}

		// Bounds title generation, attachment downloads and storage calls.
		// Streams run on their own context and outlive this handler.
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	// No compress middleware: it would buffer event streams
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

	allowedHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "User-Agent",
		"X-Request-ID", "X-Request-Timeout", cfg.Auth.UserHeader,
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     strings.Join(allowedHeaders, ", "),
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: cfg.Server.AllowedOrigins != "*",
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))

	if b != nil {
		for _, mw := range b.GetMiddlewares() {
			app.Use(mw)
		}
	}

	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
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
		fiberlog.Info("Redis not configured - stop requests stay local to this instance")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opt)

	return testRedisConnectionWithRetry(client)
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func (s *Server) initializeInfrastructure() error {
	redisClient, err := createRedisClient(s.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	s.redis = redisClient

	db, err := database.New(*s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	s.db = db
	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	channel := ""
	if s.config.Redis != nil {
		channel = s.config.Redis.Channel
	}
	s.registry = registry.New(redisClient, channel)
	return nil
}

func (s *Server) setupRoutes() {
	cfg := s.config

	historySvc := history.NewService(s.db.DB)
	messagesSvc := messages.NewMessagesService(cfg.Anthropic, s.upstreamBreaker())
	attachments := messages.NewAttachmentConverter(cfg.Uploads.MaxBytes)
	chatSvc := chat.NewService(historySvc, messagesSvc, attachments, s.registry, cfg.IdleTimeout())

	var jwtProvider *auth.JWTProvider
	if cfg.Auth.JWTSecret != "" {
		jwtProvider = auth.NewJWTProvider(cfg.Auth.JWTSecret)
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtProvider, &middleware.AuthMiddlewareConfig{
		HeaderNames: []string{fiber.HeaderAuthorization},
		UserHeader:  cfg.Auth.UserHeader,
		SkipPaths:   []string{"/v1/models"},
	})

	s.app.Get("/", welcomeHandler())
	s.app.Get("/health", api.NewHealthHandler(s.db, s.redis).HealthCheck)

	chatHandler := api.NewChatHandler(cfg, chatSvc, historySvc)
	documentsHandler := api.NewDocumentsHandler(historySvc)
	filesHandler := api.NewFilesHandler(cfg, chatSvc)
	medicalHistoryHandler := api.NewMedicalHistoryHandler(historySvc)
	modelsHandler := api.NewModelsHandler(cfg)

	v1 := s.app.Group("/v1", authMiddleware.RequireAuth())
	v1.Get("/models", modelsHandler.List)

	v1.Get("/chat", chatHandler.ListChats)
	v1.Post("/chat", chatHandler.Chat)
	v1.Delete("/chat", chatHandler.DeleteChat)
	v1.Post("/chat/:id/stop", chatHandler.StopChat)
	v1.Get("/chat/:id/messages", chatHandler.Messages)

	v1.Post("/documents", documentsHandler.Create)
	v1.Put("/documents", documentsHandler.Update)

	v1.Post("/files/upload", filesHandler.Upload)

	v1.Get("/medical-history", medicalHistoryHandler.Get)
	v1.Put("/medical-history", medicalHistoryHandler.Put)
}

// upstreamBreaker shares breaker state through Redis when it is configured
func (s *Server) upstreamBreaker() messages.Breaker {
	cbCfg := s.config.Anthropic.CircuitBreaker
	if cbCfg.Disabled {
		return nil
	}
	if s.redis != nil {
		return circuitbreaker.NewRedis(s.redis, "anthropic", circuitbreaker.ConfigFrom(cbCfg))
	}
	return circuitbreaker.NewLocal("anthropic", circuitbreaker.ConfigFrom(cbCfg))
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Welcome to medchat!",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"chat":            "/v1/chat",
				"models":          "/v1/models",
				"documents":       "/v1/documents",
				"upload":          "/v1/files/upload",
				"medical_history": "/v1/medical-history",
				"health":          "/health",
			},
		})
	}
}
