package mysql

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/datavirt/datavirt/assets"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
)

// Migrator runs the MySQL migrations of the metadata tables.
type Migrator struct {
	logger logger.Logger
}

var _ storage.Migrator = (*Migrator)(nil)

// NewMigrator creates a Migrator logging to l.
func NewMigrator(l logger.Logger) *Migrator {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Migrator{logger: l}
}

func (m *Migrator) Engine() string {
	return Engine
}

func (m *Migrator) config(config storage.MigrationConfig) *sqlcommon.Config {
	return sqlcommon.NewConfig(
		sqlcommon.WithLogger(m.logger),
		sqlcommon.WithUsername(config.Username),
		sqlcommon.WithPassword(config.Password),
	)
}

// Migrate executes the MySQL migrations.
func (m *Migrator) Migrate(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	cfg := m.config(config)
	db, err := Open(config.URI, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if _, err := sqlcommon.ConfigureDB(ctx, db, cfg, config.Timeout); err != nil {
		return 0, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	version, err := sqlcommon.Migrate(ctx, db, goose.DialectMySQL, assets.MySQLMigrationDir,
		sqlcommon.WithVerbose(config.Verbose),
		sqlcommon.WithTargetVersion(int64(config.TargetVersion)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to run mysql migrations: %w", err)
	}
	return version, nil
}

// Version returns the current migration version.
func (m *Migrator) Version(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	db, err := Open(config.URI, m.config(config))
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return sqlcommon.MigrationVersion(ctx, db, goose.DialectMySQL, assets.MySQLMigrationDir)
}
