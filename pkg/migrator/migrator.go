// Package migrator applies the embedded goose migrations. The api binary
// runs it at startup; cmd/migrate runs it on demand.
package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ghuser/todos/pkg/logger"
)

// Up applies every pending migration in files and logs each one applied.
// The todo migrations are written with IF NOT EXISTS, so Up also succeeds on
// a database whose table predates goose's version table.
func Up(ctx context.Context, db *sql.DB, files fs.FS, log logger.Logger) error {
	p, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		return fmt.Errorf("migrator: new provider: %w", err)
	}
	results, err := p.Up(ctx)
	for _, r := range results {
		if r.Error != nil {
			continue
		}
		log.InfoContext(ctx, "migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}
	if err != nil {
		return fmt.Errorf("migrator: up: %w", err)
	}
	return nil
}

// Status lists every migration in files with its applied state.
func Status(ctx context.Context, db *sql.DB, files fs.FS) ([]*goose.MigrationStatus, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		return nil, fmt.Errorf("migrator: new provider: %w", err)
	}
	st, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrator: status: %w", err)
	}
	return st, nil
}
