package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/datavirt/datavirt/assets"
)

type migrateConfig struct {
	verbose       bool
	targetVersion int64
}

// MigrateOption configures Migrate.
type MigrateOption func(*migrateConfig)

// WithVerbose logs every applied migration.
func WithVerbose(v bool) MigrateOption {
	return func(c *migrateConfig) {
		c.verbose = v
	}
}

// WithTargetVersion migrates up or down to version v. Zero applies every migration.
func WithTargetVersion(v int64) MigrateOption {
	return func(c *migrateConfig) {
		c.targetVersion = v
	}
}

func newProvider(db *sql.DB, dialect goose.Dialect, dir string, verbose bool) (*goose.Provider, error) {
	migrations, err := fs.Sub(assets.EmbedMigrations, dir)
	if err != nil {
		return nil, fmt.Errorf("open migrations %s: %w", dir, err)
	}
	return goose.NewProvider(dialect, db, migrations,
		goose.WithDisableGlobalRegistry(true),
		goose.WithVerbose(verbose),
	)
}

// Migrate applies the embedded migrations of dir to db and returns the resulting
// version.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string, opts ...MigrateOption) (int64, error) {
	cfg := &migrateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	provider, err := newProvider(db, dialect, dir, cfg.verbose)
	if err != nil {
		return 0, err
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case cfg.targetVersion == 0:
		results, err = provider.Up(ctx)
	case cfg.targetVersion < current:
		results, err = provider.DownTo(ctx, cfg.targetVersion)
	case cfg.targetVersion > current:
		results, err = provider.UpTo(ctx, cfg.targetVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	if len(results) == 0 {
		return current, nil
	}
	return provider.GetDBVersion(ctx)
}

// MigrationVersion returns the version of the migrations applied to db.
func MigrationVersion(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) (int64, error) {
	provider, err := newProvider(db, dialect, dir, false)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
