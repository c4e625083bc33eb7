package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/api/handlers"
	"github.com/hr-qa/backend/internal/app"
	"github.com/hr-qa/backend/internal/metrics"
	"github.com/hr-qa/backend/internal/middleware/ratelimit"
	"github.com/hr-qa/backend/internal/middleware/security"
	"github.com/hr-qa/backend/internal/middleware/validation"
	"github.com/hr-qa/backend/pkg/config"
	appLogger "github.com/hr-qa/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting HR query API server", zap.String("environment", cfg.Server.Environment))
	metrics.Init()

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize backends", zap.Error(err))
	}
	defer a.Close(context.Background())

	if a.Milvus != nil {
		if err := a.Milvus.EnsureCollection(ctx); err != nil {
			appLogger.Warn("Failed to prepare vector collection", zap.Error(err))
		}
	}

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(metrics.HTTPMiddleware())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	fiberApp.Use(security.HeadersMiddleware(security.HeadersConfig{
		ConnectOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Environment == "development",
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Logger:            appLogger.Named("ratelimit"),
		})
		defer limiter.Stop()
		fiberApp.Use("/api", limiter.Middleware())
	}

	fiberApp.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.Validation.MaxQueryLength,
		Logger:         appLogger.Named("validation"),
	}))

	// Optional backends are handed over as untyped nil when disabled.
	var counters handlers.Counters
	checks := []handlers.Check{
		{Name: "mongodb", Ping: a.Mongo.Ping},
		{Name: "elasticsearch", Ping: a.Elastic.Ping},
	}
	if a.Redis != nil {
		counters = a.Redis
		checks = append(checks, handlers.Check{Name: "redis", Ping: a.Redis.Ping})
	}
	var history handlers.History
	if a.SQLite != nil {
		history = a.SQLite
	}

	handlers.Register(fiberApp, handlers.Handlers{
		Query:     handlers.NewQueryHandler(a.Engine, a.Retrieval, counters, cfg.Validation.MaxQueryLength),
		Analytics: handlers.NewAnalyticsHandler(a.Engine, a.Elastic, history, counters),
		Health:    handlers.NewHealthHandler(a.Engine, 3*time.Second, checks...),
		WebSocket: handlers.NewWebSocketHandler(a.Engine, cfg.Validation.MaxQueryLength),
	})
	fiberApp.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := fiberApp.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
