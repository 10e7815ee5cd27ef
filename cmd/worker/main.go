// Command worker consumes todo events from the Postgres-backed bus and
// serves its own /metrics and /readyz on WORKER_ADMIN_PORT.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghuser/todos/pkg/config"
	"github.com/ghuser/todos/pkg/events"
	"github.com/ghuser/todos/pkg/httpx"
	"github.com/ghuser/todos/pkg/logger"
	"github.com/ghuser/todos/pkg/telemetry"
	"github.com/ghuser/todos/services/todo/application/subscribers"
)

const adminDrainTimeout = 5 * time.Second

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

	log := logger.New(cfg).With("component", "worker")
	if err := run(cfg, log); err != nil {
		log.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

// run owns every resource so deferred cleanup happens before main exits.
func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup otel: %w", err)
	}
	defer otelShutdown(context.Background()) //nolint:errcheck,contextcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	bus, err := events.NewEventBus(cfg.DatabaseURL(), events.OptionsFromConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("setup event bus: %w", err)
	}
	// Close waits for the in-flight handler before the pool goes away.
	defer bus.Close() //nolint:errcheck

	if err := subscribers.Register(ctx, bus, log); err != nil {
		return fmt.Errorf("register subscribers: %w", err)
	}

	admin := httpx.NewAdminRouter(logger.Recovery(log, nil))
	admin.Get("/metrics", metricsHandler.ServeHTTP)
	admin.Get("/readyz", httpx.ReadinessHandler(httpx.HealthChecks{EventBus: bus}))

	log.Info("worker started", "consumer_group", cfg.ConsumerGroup())
	return httpx.Run(ctx, log, adminDrainTimeout, httpx.NewServer(cfg.WorkerAdminAddr(), admin))
}
