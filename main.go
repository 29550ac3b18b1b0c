package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/ncnu-assistant/dormmail-backend/config"
	"github.com/ncnu-assistant/dormmail-backend/database"
	"github.com/ncnu-assistant/dormmail-backend/handlers"
	"github.com/ncnu-assistant/dormmail-backend/jobs"
	"github.com/ncnu-assistant/dormmail-backend/services"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	cfg.App.ConfigureLogging()
	if configJSON, err := cfg.App.ToJSON(); err == nil {
		logrus.Debugf("Effective configuration: %s", configJSON)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Response cache backend
	store, db, closeStore, err := buildResponseStore(ctx, cfg.App)
	if err != nil {
		logrus.Fatalf("Failed to initialize %s cache store: %v", cfg.App.Cache.Backend, err)
	}
	defer closeStore()

	// Pipeline
	clientFactory := shared.NewHTTPClientFactory(cfg.App.Upstream.HTTPRequestTimeout)
	defer clientFactory.CleanupAllClients()

	metrics := shared.NewServiceMetrics(cfg.App.Logging.ServiceName)
	pageSource := services.NewPageSource(cfg.App.Upstream, clientFactory)
	extractor := services.NewTokenMailExtractor(services.NewTokenizer(cfg.App.Upstream.Tokenizer))
	dormMailService := services.NewDormMailService(pageSource, extractor, store, cfg.GetCacheTTL(), metrics)
	defer dormMailService.Close()

	logrus.WithFields(logrus.Fields{
		"upstream":      cfg.App.Upstream.URL,
		"fetch_backend": cfg.App.Upstream.FetchBackend,
		"tokenizer":     cfg.App.Upstream.Tokenizer,
		"cache_backend": cfg.App.Cache.Backend,
		"cache_ttl":     cfg.GetCacheTTL(),
		"timeout":       cfg.App.Upstream.HTTPRequestTimeout,
	}).Info("Dorm mail services initialized")

	// Background jobs
	jobs.NewCacheCleanupJob(store, cfg.App.Cache.CleanupPeriod).Start(ctx)
	jobs.NewCacheWarmupJob(dormMailService, 2*time.Second).Start(ctx)

	// Handlers
	dormMailHandler := handlers.NewDormMailHandler(dormMailService)
	queryHandler := handlers.NewMailQueryHandler(dormMailService)
	opsHandler := handlers.NewOpsHandler(db, metrics)

	app := NewApp(dormMailHandler, queryHandler, opsHandler)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown failed: %v", err)
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Errorf("Server failed to start: %v", err)
	}

	metrics.LogSummary()
}

// NewApp registers every route. The worker endpoint claims all remaining paths.
func NewApp(dormMailHandler *handlers.DormMailHandler, queryHandler *handlers.MailQueryHandler, opsHandler *handlers.OpsHandler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(logger.New())

	app.Get("/health", opsHandler.Health)
	app.Get("/metrics", opsHandler.PrometheusHandler())

	api := app.Group("/api/dorm-mail")
	api.Use(cors.New(cors.Config{AllowOrigins: "*"}))
	api.Get("/", queryHandler.GetMail)
	api.Get("/departments", queryHandler.GetDepartments)
	api.Get("/stats", queryHandler.GetStats)

	app.All("/*", dormMailHandler.Handle)

	return app
}

// buildResponseStore opens the configured cache backend and returns its closer
func buildResponseStore(ctx context.Context, cfg *shared.UnifiedConfiguration) (services.ResponseStore, *sql.DB, func(), error) {
	switch cfg.Cache.Backend {
	case shared.CacheBackendRedis:
		client := services.NewRedisClient(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		store := services.NewRedisResponseStore(client)
		return store, nil, func() {
			if err := store.Close(); err != nil {
				logrus.Warnf("Redis close failed: %v", err)
			}
		}, nil

	case shared.CacheBackendPostgres:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			database.Close(db)
			return nil, nil, nil, err
		}
		return services.NewPostgresResponseStore(db), db, func() { database.Close(db) }, nil

	default:
		return services.NewMemoryResponseStore(cfg.Cache.MaxSize), nil, func() {}, nil
	}
}
