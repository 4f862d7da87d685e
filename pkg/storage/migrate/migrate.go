// Package migrate runs the metadata table migrations of the relational engines.
package migrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/mysql"
	"github.com/datavirt/datavirt/pkg/storage/postgres"
	"github.com/datavirt/datavirt/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig = storage.MigrationConfig

var (
	defaultRegistry *storage.MigratorRegistry
	registryOnce    sync.Once
)

func initDefaultRegistry() {
	registryOnce.Do(func() {
		defaultRegistry = storage.NewMigratorRegistry()
		defaultRegistry.Register(postgres.NewMigrator(nil))
		defaultRegistry.Register(mysql.NewMigrator(nil))
		defaultRegistry.Register(sqlite.NewMigrator(nil))
	})
}

// DefaultRegistry returns the registry of the built-in migrators.
func DefaultRegistry() *storage.MigratorRegistry {
	initDefaultRegistry()
	return defaultRegistry
}

// RegisterMigrator adds m to the default registry.
func RegisterMigrator(m storage.Migrator) {
	initDefaultRegistry()
	defaultRegistry.Register(m)
}

// RunMigrationsWithRegistry runs the migrations of cfg.Engine found in registry and
// returns the resulting version.
func RunMigrationsWithRegistry(ctx context.Context, registry *storage.MigratorRegistry, cfg MigrationConfig, l logger.Logger) (int64, error) {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	switch cfg.Engine {
	case "memory", "bolt":
		l.Info("no migrations to run for `" + cfg.Engine + "` datasource")
		return 0, nil
	}

	m, ok := registry.Get(cfg.Engine)
	if !ok {
		return 0, fmt.Errorf("no migrator registered for engine: %s", cfg.Engine)
	}
	return m.Migrate(ctx, cfg)
}

// RunMigrations runs the migrations of cfg with the default registry.
func RunMigrations(ctx context.Context, cfg MigrationConfig, l logger.Logger) (int64, error) {
	return RunMigrationsWithRegistry(ctx, DefaultRegistry(), cfg, l)
}
