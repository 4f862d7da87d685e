//go:generate mockgen -source migrator.go -destination ../../internal/mocks/mock_migrator.go -package mocks Migrator

package storage

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Migrator creates and upgrades the metadata tables of one database engine.
type Migrator interface {
	// Migrate runs the migrations up to the target version of config, or all of them
	// when no target is set, and returns the resulting version.
	Migrate(ctx context.Context, config MigrationConfig) (int64, error)

	// Version returns the current migration version of the database.
	Version(ctx context.Context, config MigrationConfig) (int64, error)

	// Engine returns the database engine the migrator supports.
	Engine() string
}

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig struct {
	Engine        string
	URI           string
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Username      string
	Password      string
}

// MigratorRegistry holds the migrators of the known engines.
type MigratorRegistry struct {
	mu        sync.RWMutex
	migrators map[string]Migrator
}

// NewMigratorRegistry creates an empty registry.
func NewMigratorRegistry() *MigratorRegistry {
	return &MigratorRegistry{
		migrators: make(map[string]Migrator),
	}
}

// Register adds m under its engine name, replacing any previous migrator.
func (r *MigratorRegistry) Register(m Migrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrators[m.Engine()] = m
}

// Get returns the migrator of engine.
func (r *MigratorRegistry) Get(engine string) (Migrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.migrators[engine]
	return m, ok
}

// Engines returns the registered engine names, sorted.
func (r *MigratorRegistry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engines := make([]string, 0, len(r.migrators))
	for engine := range r.migrators {
		engines = append(engines, engine)
	}
	slices.Sort(engines)
	return engines
}
