// Command migrate applies the todo schema migrations, or with -status
// reports which have been applied.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	todomigrations "github.com/ghuser/todos/migrations/todo"
	"github.com/ghuser/todos/pkg/config"
	"github.com/ghuser/todos/pkg/database"
	"github.com/ghuser/todos/pkg/logger"
	"github.com/ghuser/todos/pkg/migrator"
)

func main() {
	status := flag.Bool("status", false, "print migration state instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg).With("component", "migrate")

	if err := run(context.Background(), cfg, log, *status); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, status bool) error {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL(), database.PoolOptions{MaxOpenConns: 1}, log)
	if err != nil {
		return err
	}
	defer pool.Close() //nolint:errcheck

	if !status {
		if err := migrator.Up(ctx, pool.DB(), todomigrations.FS, log); err != nil {
			return err
		}
		log.Info("migrations up to date")
		return nil
	}

	states, err := migrator.Status(ctx, pool.DB(), todomigrations.FS)
	if err != nil {
		return err
	}
	for _, s := range states {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-8d %-10s %-20s %s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return nil
}
