package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/ghuser/todos/docs/swagger"
	todomigrations "github.com/ghuser/todos/migrations/todo"
	"github.com/ghuser/todos/pkg/app"
	"github.com/ghuser/todos/pkg/cache"
	"github.com/ghuser/todos/pkg/config"
	"github.com/ghuser/todos/pkg/database"
	"github.com/ghuser/todos/pkg/errhttp"
	"github.com/ghuser/todos/pkg/events"
	"github.com/ghuser/todos/pkg/httpx"
	"github.com/ghuser/todos/pkg/logger"
	"github.com/ghuser/todos/pkg/migrator"
	"github.com/ghuser/todos/pkg/telemetry"
	todoApi "github.com/ghuser/todos/services/todo/application/api"
)

const (
	shutdownTimeout   = 30 * time.Second
	schemaInitTimeout = 15 * time.Second
)

// @title			Todos API
// @version		1.0
// @description	Minimal to-do list service.
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
// @host			localhost:3000
// @BasePath		/
// @schemes		http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	// Telemetry: OTel tracing + metrics
	ctx := context.Background()
	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	// Crash reporting: Sentry (optional; log and continue on failure)
	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL(), database.PoolOptions{MaxOpenConns: cfg.DBMaxOpenConns}, log)
	if err != nil {
		log.Error("failed to open database pool", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure, deferred flushes are best-effort
	}
	defer pool.Close() //nolint:errcheck

	// Schema initialization failure is not fatal: the server keeps serving and
	// store-backed requests fail with 500 until the database is available.
	migrateCtx, cancelMigrate := context.WithTimeout(ctx, schemaInitTimeout)
	err = migrator.Up(migrateCtx, pool.DB(), todomigrations.FS, log)
	cancelMigrate()
	if err != nil {
		log.Error("schema initialization failed, continuing", "error", err)
	} else {
		log.Info("schema initialized")
	}

	a := &app.Application{
		Db:      pool,
		Logger:  log,
		Errors:  errhttp.NewResponder(log, cfg.IsDevelopment()),
		Version: cfg.ServiceVersion,
	}
	checks := httpx.HealthChecks{Database: pool}

	if bus, err := events.NewEventBus(cfg.DatabaseURL(), events.OptionsFromConfig(cfg), log); err != nil {
		log.Warn("event bus unavailable, todo.created events disabled", "error", err)
	} else {
		defer bus.Close() //nolint:errcheck
		a.EventBus = bus
		checks.EventBus = bus
	}

	switch redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL); {
	case errors.Is(err, cache.ErrRedisDisabled):
		log.Info("redis disabled, idempotency keys ignored")
	case err != nil:
		log.Warn("redis unavailable, idempotency keys ignored", "error", err)
	default:
		defer redisClient.Close() //nolint:errcheck
		a.Redis = redisClient
		checks.Redis = redisClient
		log.Info("redis connected")
	}

	recovery := logger.Recovery(log, a.Errors.WriteError)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.IsDevelopment(),
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimit:          cfg.RateLimitPerMinute,
		},
		logger.Middleware(log, "/healthz"),
		recovery,
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)
	r.NotFound(a.Errors.NotFound)
	r.MethodNotAllowed(a.Errors.MethodNotAllowed)
	registerRoutes(r, a)

	admin := httpx.NewAdminRouter(recovery)
	admin.Get("/metrics", metricsHandler.ServeHTTP)
	admin.Get("/readyz", httpx.ReadinessHandler(checks))
	admin.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = httpx.Run(sigCtx, log, shutdownTimeout,
		httpx.NewServer(cfg.HTTPAddr(), r),
		httpx.NewServer(cfg.AdminAddr(), admin),
	)
	if err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	log.Info("server stopped")
}

// registerRoutes mounts all service routes at the root.
// Add each new service's route function here.
func registerRoutes(r chi.Router, a *app.Application) {
	todoApi.TodoRoutes(r, a)
}
