// Package bootstrap opens the configured datasources and registers them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/internal/config"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/security"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/bolt"
	"github.com/datavirt/datavirt/pkg/storage/memory"
	"github.com/datavirt/datavirt/pkg/storage/mysql"
	"github.com/datavirt/datavirt/pkg/storage/postgres"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
	"github.com/datavirt/datavirt/pkg/storage/sqlite"
	"github.com/datavirt/datavirt/pkg/storage/storagewrappers"
	"github.com/datavirt/datavirt/pkg/telemetry"
)

// Context holds what the commands share: the logger, the registry of the configured
// datasources and the authorizer guarding them.
type Context struct {
	Logger   logger.Logger
	Registry *storage.Registry

	// Authorizer is nil when no security is configured.
	Authorizer security.Authorizer

	cache           *storage.InMemoryLRUCache[any]
	datasources     []*storagewrappers.RequestDatasource
	shutdownTracing func() error
}

// New opens and registers every datasource of cfg. The returned context must be
// closed.
func New(ctx context.Context, cfg *config.Config, l logger.Logger) (*Context, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}

	c := &Context{Logger: l}

	tracing, err := c.tracing(ctx, cfg.Trace)
	if err != nil {
		return nil, err
	}
	c.shutdownTracing = tracing

	authz, err := NewAuthorizer(cfg.Security, l)
	if err != nil {
		return nil, errors.Join(err, c.shutdownTracing())
	}
	c.Authorizer = authz

	opts := []storage.RegistryOption{storage.WithRegistryLogger(l)}
	if authz != nil {
		opts = append(opts, storage.WithDecorator(security.NewDecorator(authz)))
	}
	c.Registry = storage.NewRegistry(opts...)

	if cfg.Cache.Enabled {
		c.cache, err = storage.NewInMemoryLRUCache(storage.WithMaxCacheSize[any](cfg.Cache.Limit))
		if err != nil {
			return nil, errors.Join(err, c.shutdownTracing())
		}
	}

	for _, dsCfg := range cfg.Datasources {
		if err := c.register(ctx, cfg, dsCfg); err != nil {
			return nil, errors.Join(err, c.Close(ctx))
		}
	}

	return c, nil
}

func (c *Context) register(ctx context.Context, cfg *config.Config, dsCfg config.DatasourceConfig) error {
	ds, err := OpenDatasource(dsCfg, c.Logger)
	if err != nil {
		return err
	}

	var cache storage.InMemoryCache[any]
	if c.cache != nil {
		cache = c.cache
	}
	wrapped, err := storagewrappers.NewRequestDatasource(ds, cfg.MaxConcurrentVectors, cache,
		storagewrappers.WithTTL(cfg.Cache.TTL),
		storagewrappers.WithCachedDatasourceLogger(c.Logger),
	)
	if err != nil {
		return fmt.Errorf("wrap datasource '%s': %w", dsCfg.Name, err)
	}

	if _, err := c.Registry.Register(ctx, wrapped); err != nil {
		return fmt.Errorf("register datasource '%s': %w", dsCfg.Name, err)
	}
	c.datasources = append(c.datasources, wrapped)

	c.Logger.Info("datasource registered",
		zap.String("datasource", dsCfg.Name),
		zap.String("engine", dsCfg.Engine))
	return nil
}

// Datasources returns the registry seen by the commands, hiding the datasources the
// authorizer does not let them read.
func (c *Context) Datasources() storage.DatasourceRegistry {
	if c.Authorizer == nil {
		return c.Registry
	}
	return security.NewSecuredRegistry(c.Authorizer, c.Registry)
}

// Metrics sums the reads made on the registered datasources.
func (c *Context) Metrics() storagewrappers.Metrics {
	var m storagewrappers.Metrics
	for _, ds := range c.datasources {
		got := ds.GetMetrics()
		m.ValueReadCount += got.ValueReadCount
		m.VectorReadCount += got.VectorReadCount
	}
	return m
}

// Close disposes the datasources and flushes the traces.
func (c *Context) Close(ctx context.Context) error {
	var errs []error
	if c.Registry != nil {
		errs = append(errs, c.Registry.Close(ctx))
	}
	if c.cache != nil {
		c.cache.Stop()
	}
	if c.shutdownTracing != nil {
		errs = append(errs, c.shutdownTracing())
	}
	return errors.Join(errs...)
}

func (c *Context) tracing(ctx context.Context, cfg config.TraceConfig) (func() error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func() error { return nil }, nil
	}

	c.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s'", cfg.SampleRatio, cfg.Endpoint))
	tp, err := telemetry.NewTracerProvider(ctx,
		telemetry.WithOTLPEndpoint(cfg.Endpoint),
		telemetry.WithServiceName(cfg.ServiceName),
		telemetry.WithSamplingRatio(cfg.SampleRatio),
	)
	if err != nil {
		return nil, err
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// NewAuthorizer builds the authorizer selected by cfg, nil when none is.
func NewAuthorizer(cfg config.SecurityConfig, l logger.Logger) (security.Authorizer, error) {
	switch {
	case cfg.Policy != "":
		authz, err := security.LoadPolicy(cfg.Policy)
		if err != nil {
			return nil, fmt.Errorf("load security policy: %w", err)
		}
		return authz, nil
	case cfg.Expression != "":
		authz, err := security.NewExpressionAuthorizer(cfg.Expression, security.WithLogger(l))
		if err != nil {
			return nil, fmt.Errorf("compile security expression: %w", err)
		}
		return authz, nil
	default:
		return nil, nil
	}
}

// OpenDatasource creates the datasource described by cfg. It is not initialised.
func OpenDatasource(cfg config.DatasourceConfig, l logger.Logger) (storage.Datasource, error) {
	switch cfg.Engine {
	case "memory":
		return memory.New(cfg.Name, memory.WithLogger(l)), nil
	case "bolt":
		return bolt.New(cfg.Name, cfg.URI, bolt.WithLogger(l)), nil
	}

	dsCfg := sqlcommon.NewConfig(sqlOptions(cfg, l)...)

	var (
		ds  storage.Datasource
		err error
	)
	switch cfg.Engine {
	case "sqlite":
		ds, err = sqlite.New(cfg.Name, cfg.URI, dsCfg)
	case "postgres":
		ds, err = postgres.New(cfg.Name, cfg.URI, dsCfg)
	case "mysql":
		ds, err = mysql.New(cfg.Name, cfg.URI, dsCfg)
	default:
		return nil, fmt.Errorf("storage engine '%s' is unsupported", cfg.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s datasource '%s': %w", cfg.Engine, cfg.Name, err)
	}
	return ds, nil
}

func sqlOptions(cfg config.DatasourceConfig, l logger.Logger) []sqlcommon.DatastoreOption {
	opts := []sqlcommon.DatastoreOption{
		sqlcommon.WithUsername(cfg.Username),
		sqlcommon.WithPassword(cfg.Password),
		sqlcommon.WithLogger(l),
		sqlcommon.WithMaxOpenConns(cfg.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(cfg.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(cfg.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(cfg.ConnMaxLifetime),
	}
	if cfg.Metrics {
		opts = append(opts, sqlcommon.WithMetrics())
	}
	if cfg.MetadataTables {
		opts = append(opts, sqlcommon.WithMetadataTables())
	}
	if cfg.DefaultEntityType != "" {
		opts = append(opts, sqlcommon.WithDefaultEntityType(cfg.DefaultEntityType))
	}

	for _, t := range cfg.Tables {
		opts = append(opts,
			sqlcommon.WithMappedTables(t.SQLTable),
			sqlcommon.WithTableSettings(sqlcommon.TableSettings{
				SQLTableName:            t.SQLTable,
				TableName:               t.Name,
				EntityType:              t.EntityType,
				EntityIdentifierColumns: t.IdentifierColumns,
				CreatedColumn:           t.CreatedColumn,
				UpdatedColumn:           t.UpdatedColumn,
			}),
		)
	}
	return opts
}
