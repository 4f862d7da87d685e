package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyConfig(t *testing.T) {
	t.Run("default_config_is_valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Verify())
	})

	t.Run("non_log_format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Format = "notaformat"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("non_log_level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Level = "notalevel"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("zero_concurrent_vectors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxConcurrentVectors = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'maxConcurrentVectors' must be greater than zero")
	})

	t.Run("zero_copy_batch_size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CopyBatchSize = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'copyBatchSize' must be greater than zero")
	})

	t.Run("enabled_cache_needs_a_ttl", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cache.Enabled = true
		cfg.Cache.TTL = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'cache.ttl' must be greater than zero")
	})

	t.Run("disabled_cache_is_not_checked", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cache.Limit = 0

		require.NoError(t, cfg.Verify())
	})

	t.Run("policy_and_expression_are_exclusive", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Security.Policy = "policy.yaml"
		cfg.Security.Expression = "true"

		err := cfg.Verify()
		require.EqualError(t, err, "configs 'security.policy' and 'security.expression' are mutually exclusive")
	})

	t.Run("trace_sample_ratio_out_of_range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Trace.Enabled = true
		cfg.Trace.SampleRatio = 1.5

		require.Error(t, cfg.Verify())
	})

	t.Run("datasources", func(t *testing.T) {
		tests := []struct {
			name        string
			datasources []DatasourceConfig
			err         string
		}{
			{
				name:        "valid",
				datasources: []DatasourceConfig{DefaultDatasource("mem", "memory", ""), DefaultDatasource("db", "sqlite", "file.db")},
			},
			{
				name:        "missing_name",
				datasources: []DatasourceConfig{DefaultDatasource("", "memory", "")},
				err:         "config 'datasources[0].name' must be set",
			},
			{
				name:        "duplicate_name",
				datasources: []DatasourceConfig{DefaultDatasource("a", "memory", ""), DefaultDatasource("a", "memory", "")},
				err:         "datasource 'a' is configured more than once",
			},
			{
				name:        "unknown_engine",
				datasources: []DatasourceConfig{DefaultDatasource("a", "oracle", "x")},
				err:         "datasource 'a': engine must be one of [memory bolt sqlite postgres mysql], got 'oracle'",
			},
			{
				name:        "missing_uri",
				datasources: []DatasourceConfig{DefaultDatasource("a", "bolt", "")},
				err:         "datasource 'a': an uri is required by the 'bolt' engine",
			},
			{
				name: "table_without_sql_table",
				datasources: []DatasourceConfig{{
					Name: "a", Engine: "postgres", URI: "postgres://localhost/db",
					Tables: []TableConfig{{Name: "t"}},
				}},
				err: "datasource 'a': config 'tables[0].sqlTable' must be set",
			},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.Datasources = test.datasources

				err := cfg.Verify()
				if test.err == "" {
					require.NoError(t, err)
					return
				}
				require.EqualError(t, err, test.err)
			})
		}
	})
}
