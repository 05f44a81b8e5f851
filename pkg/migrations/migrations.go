package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var scripts embed.FS

const scriptsDir = "sql"

var setupOnce sync.Once
var setupErr error

// goose keeps its dialect and base filesystem in package state.
func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(scripts)
		setupErr = goose.SetDialect("postgres")
	})
	return setupErr
}

// Runner applies the embedded schema migrations.
type Runner struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRunner constructs a Runner for db.
func NewRunner(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, logger: logger.With(zap.String("component", "migrations"))}
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	from, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	r.logger.Info("running migrations", zap.Int64("from_version", from))

	if err := goose.UpContext(ctx, r.db, scriptsDir); err != nil {
		r.logger.Error("migration failed", zap.Error(err))
		return fmt.Errorf("run migrations: %w", err)
	}

	to, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return fmt.Errorf("get final version: %w", err)
	}
	r.logger.Info("migrations completed", zap.Int64("from_version", from), zap.Int64("to_version", to))
	return nil
}

// Down rolls back steps migrations.
func (r *Runner) Down(ctx context.Context, steps int) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, r.db, scriptsDir); err != nil {
			r.logger.Error("down migration failed", zap.Int("step", i+1), zap.Error(err))
			return fmt.Errorf("run down migration: %w", err)
		}
	}
	r.logger.Info("down migration completed", zap.Int("steps", steps))
	return nil
}

// Version returns the current schema version.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	if err := setup(); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Status prints the applied state of every migration through goose's logger.
func (r *Runner) Status(ctx context.Context) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.StatusContext(ctx, r.db, scriptsDir); err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	return nil
}

// Files lists the embedded migration file names in apply order.
func Files() ([]string, error) {
	entries, err := scripts.ReadDir(scriptsDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
