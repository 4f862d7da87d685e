// Package config contains the configuration of the datavirt command line.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	DefaultMaxConcurrentVectors = 32
	DefaultCacheLimit           = 10000
	DefaultCacheTTL             = 10 * time.Minute
	DefaultMaxOpenConns         = 30
	DefaultMaxIdleConns         = 10
	DefaultCopyBatchSize        = 500
)

// Engines lists the datasource engines the command line can open.
var Engines = []string{"memory", "bolt", "sqlite", "postgres", "mysql"}

// TableConfig maps one SQL table to a value table.
type TableConfig struct {
	// SQLTable is the name of the table in the database.
	SQLTable string `mapstructure:"sqlTable"`
	// Name is the value table name, SQLTable when empty.
	Name       string
	EntityType string `mapstructure:"entityType"`
	// IdentifierColumns form the entity identifier; the primary key is used when empty.
	IdentifierColumns []string `mapstructure:"identifierColumns"`
	CreatedColumn     string   `mapstructure:"createdColumn"`
	UpdatedColumn     string   `mapstructure:"updatedColumn"`
}

// DatasourceConfig defines one datasource to register.
type DatasourceConfig struct {
	Name string

	// Engine is one of Engines.
	Engine string

	// URI is the connection string of SQL engines and the file path of bolt.
	URI      string
	Username string
	Password string

	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`

	// MetadataTables enables the variable and attribute metadata tables of SQL engines,
	// which make tables writable.
	MetadataTables bool `mapstructure:"metadataTables"`

	// DefaultEntityType is the entity type of discovered SQL tables.
	DefaultEntityType string `mapstructure:"defaultEntityType"`

	// Tables restricts and configures the mapped SQL tables. All tables are mapped when
	// empty.
	Tables []TableConfig

	// Metrics enables the database/sql connection pool metrics.
	Metrics bool
}

// LogConfig defines the log output. For production we recommend the 'json' format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

// CacheConfig defines the cache of single value reads and entity sets.
type CacheConfig struct {
	Enabled bool
	Limit   int64
	TTL     time.Duration
}

// SecurityConfig selects the authorizer guarding the registered datasources. At most
// one of Policy and Expression may be set; nothing is guarded when both are empty.
type SecurityConfig struct {
	// Policy is the path of a YAML policy document.
	Policy string

	// Expression is a boolean CEL expression over the permission being checked.
	Expression string
}

// TraceConfig defines the export of traces to an OTLP collector.
type TraceConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64 `mapstructure:"sampleRatio"`
	ServiceName string  `mapstructure:"serviceName"`
}

type Config struct {
	Datasources []DatasourceConfig

	// MaxConcurrentVectors bounds the vector cursors open at once on each datasource.
	MaxConcurrentVectors uint32 `mapstructure:"maxConcurrentVectors"`

	// CopyBatchSize is the number of entities copied at once by the export command.
	CopyBatchSize int `mapstructure:"copyBatchSize"`

	Log      LogConfig
	Cache    CacheConfig
	Security SecurityConfig
	Trace    TraceConfig
}

// Verify returns the first inconsistency of the configuration.
func (cfg *Config) Verify() error {
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if !slices.Contains([]string{"none", "debug", "info", "warn", "error", "panic", "fatal"}, cfg.Log.Level) {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.MaxConcurrentVectors == 0 {
		return errors.New("config 'maxConcurrentVectors' must be greater than zero")
	}

	if cfg.CopyBatchSize <= 0 {
		return errors.New("config 'copyBatchSize' must be greater than zero")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Limit <= 0 {
			return errors.New("config 'cache.limit' must be greater than zero")
		}
		if cfg.Cache.TTL <= 0 {
			return errors.New("config 'cache.ttl' must be greater than zero")
		}
	}

	if cfg.Security.Policy != "" && cfg.Security.Expression != "" {
		return errors.New("configs 'security.policy' and 'security.expression' are mutually exclusive")
	}

	if cfg.Trace.Enabled && (cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1) {
		return errors.New("config 'trace.sampleRatio' must be between 0 and 1")
	}

	names := map[string]bool{}
	for i, ds := range cfg.Datasources {
		if ds.Name == "" {
			return fmt.Errorf("config 'datasources[%d].name' must be set", i)
		}
		if names[ds.Name] {
			return fmt.Errorf("datasource '%s' is configured more than once", ds.Name)
		}
		names[ds.Name] = true

		if !slices.Contains(Engines, ds.Engine) {
			return fmt.Errorf("datasource '%s': engine must be one of %v, got '%s'", ds.Name, Engines, ds.Engine)
		}
		if ds.Engine != "memory" && ds.URI == "" {
			return fmt.Errorf("datasource '%s': an uri is required by the '%s' engine", ds.Name, ds.Engine)
		}
		for j, t := range ds.Tables {
			if t.SQLTable == "" {
				return fmt.Errorf("datasource '%s': config 'tables[%d].sqlTable' must be set", ds.Name, j)
			}
		}
	}

	return nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentVectors: DefaultMaxConcurrentVectors,
		CopyBatchSize:        DefaultCopyBatchSize,
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Cache: CacheConfig{
			Enabled: false,
			Limit:   DefaultCacheLimit,
			TTL:     DefaultCacheTTL,
		},
		Trace: TraceConfig{
			Enabled:     false,
			Endpoint:    "0.0.0.0:4317",
			SampleRatio: 0.2,
			ServiceName: "datavirt",
		},
	}
}

// DefaultDatasource returns a datasource definition with the default pool settings.
func DefaultDatasource(name, engine, uri string) DatasourceConfig {
	return DatasourceConfig{
		Name:         name,
		Engine:       engine,
		URI:          uri,
		MaxOpenConns: DefaultMaxOpenConns,
		MaxIdleConns: DefaultMaxIdleConns,
	}
}
