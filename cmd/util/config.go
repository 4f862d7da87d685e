package util

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/datavirt/datavirt/internal/bootstrap"
	"github.com/datavirt/datavirt/internal/config"
	"github.com/datavirt/datavirt/pkg/logger"
)

const (
	DatasourceNameFlag     = "datasource-name"
	DatasourceEngineFlag   = "datasource-engine"
	DatasourceURIFlag      = "datasource-uri"
	DatasourceUsernameFlag = "datasource-username"
	DatasourcePasswordFlag = "datasource-password"
)

// AddConfigFlags declares the flags overriding config.yaml. They are bound by
// BindConfigFlags, usually from the PreRun of the command.
func AddConfigFlags(flags *pflag.FlagSet) {
	defaultConfig := config.DefaultConfig()

	flags.String(DatasourceNameFlag, "default", "the name of the datasource given by the datasource flags")
	flags.String(DatasourceEngineFlag, "", "the engine of an additional datasource (one of memory, bolt, sqlite, postgres, mysql)")
	flags.String(DatasourceURIFlag, "", "the connection uri of the additional datasource, the file path for bolt")
	flags.String(DatasourceUsernameFlag, "", "(optional) overwrite the username in the connection string")
	flags.String(DatasourcePasswordFlag, "", "(optional) overwrite the password in the connection string")

	flags.Uint32("max-concurrent-vectors", defaultConfig.MaxConcurrentVectors, "the maximum number of vector cursors open at once on each datasource")
	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	flags.Bool("cache-enabled", defaultConfig.Cache.Enabled, "enable caching of single value reads and entity sets")
	flags.Int64("cache-limit", defaultConfig.Cache.Limit, "the maximum number of cached entries")
	flags.Duration("cache-ttl", defaultConfig.Cache.TTL, "how long a cached entry may be served")
	flags.String("security-policy", defaultConfig.Security.Policy, "the path of the YAML policy guarding the datasources")
	flags.String("security-expression", defaultConfig.Security.Expression, "a CEL expression over 'permission' guarding the datasources")
	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	flags.String("trace-otlp-endpoint", defaultConfig.Trace.Endpoint, "the endpoint of the trace collector")
	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
}

// BindConfigFlags binds the flags declared by AddConfigFlags to their config keys.
func BindConfigFlags(flags *pflag.FlagSet) {
	MustBind(flags,
		FlagBinding(DatasourceNameFlag),
		FlagBinding(DatasourceEngineFlag),
		FlagBinding(DatasourceURIFlag),
		FlagBinding(DatasourceUsernameFlag),
		FlagBinding(DatasourcePasswordFlag),
		Binding{Key: "maxConcurrentVectors", Flag: "max-concurrent-vectors", Env: []string{"DATAVIRT_MAXCONCURRENTVECTORS"}},
		Binding{Key: "log.format", Flag: "log-format"},
		Binding{Key: "log.level", Flag: "log-level"},
		Binding{Key: "cache.enabled", Flag: "cache-enabled"},
		Binding{Key: "cache.limit", Flag: "cache-limit"},
		Binding{Key: "cache.ttl", Flag: "cache-ttl"},
		Binding{Key: "security.policy", Flag: "security-policy"},
		Binding{Key: "security.expression", Flag: "security-expression"},
		Binding{Key: "trace.enabled", Flag: "trace-enabled"},
		Binding{Key: "trace.endpoint", Flag: "trace-otlp-endpoint"},
		Binding{Key: "trace.sampleRatio", Flag: "trace-sample-ratio"},
	)
}

// ReadConfig merges config.yaml, the environment and the bound flags over the
// defaults. The datasource flags add one datasource to the configured ones.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.Datasources {
		ds := &cfg.Datasources[i]
		if ds.MaxOpenConns == 0 {
			ds.MaxOpenConns = config.DefaultMaxOpenConns
		}
		if ds.MaxIdleConns == 0 {
			ds.MaxIdleConns = config.DefaultMaxIdleConns
		}
	}

	if engine := viper.GetString(DatasourceEngineFlag); engine != "" {
		ds := config.DefaultDatasource(viper.GetString(DatasourceNameFlag), engine, viper.GetString(DatasourceURIFlag))
		ds.Username = viper.GetString(DatasourceUsernameFlag)
		ds.Password = viper.GetString(DatasourcePasswordFlag)
		cfg.Datasources = append(cfg.Datasources, ds)
	}

	return cfg, nil
}

// Bootstrap reads the configuration and opens its datasources. The returned context
// must be closed.
func Bootstrap(ctx context.Context) (*bootstrap.Context, error) {
	cfg, err := ReadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	l, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, l)
}

// RunWithContext adapts fn into a cobra RunE running on a bootstrapped context.
func RunWithContext(fn func(cmd *cobra.Command, args []string, c *bootstrap.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		c, err := Bootstrap(ctx)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, c.Close(ctx))
		}()
		return fn(cmd, args, c)
	}
}
