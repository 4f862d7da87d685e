package util

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/internal/config"
)

type row struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPrint(t *testing.T) {
	data := []row{{"a", 1}, {"longer", 22}}
	rows := func(add func(cells ...any)) {
		for _, r := range data {
			add(r.Name, r.Count)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, OutputText, data, []string{"NAME", "COUNT"}, rows))
	require.Equal(t, "NAME    COUNT\na       1\nlonger  22\n", buf.String())

	buf.Reset()
	require.NoError(t, Print(&buf, OutputJSON, data, nil, rows))
	require.JSONEq(t, `[{"name":"a","count":1},{"name":"longer","count":22}]`, buf.String())

	buf.Reset()
	require.NoError(t, Print(&buf, OutputYAML, data, nil, rows))
	require.YAMLEq(t, "- name: a\n  count: 1\n- name: longer\n  count: 22\n", buf.String())

	require.EqualError(t, Print(&buf, "xml", data, nil, rows), "unknown output format 'xml'")
}

func runWithConfigFlags(t *testing.T, args []string, check func(cfg *config.Config)) {
	t.Helper()
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.datavirt")

	cmd := &cobra.Command{
		Use: "test",
		PreRun: func(cmd *cobra.Command, _ []string) {
			BindConfigFlags(cmd.Flags())
		},
		RunE: func(*cobra.Command, []string) error {
			cfg, err := ReadConfig()
			require.NoError(t, err)
			check(cfg)
			return nil
		},
	}
	AddConfigFlags(cmd.Flags())
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
}

func TestReadConfigDefaults(t *testing.T) {
	PrepareTempConfigDir(t)

	runWithConfigFlags(t, nil, func(cfg *config.Config) {
		require.Equal(t, config.DefaultConfig(), cfg)
	})
}

func TestReadConfigFile(t *testing.T) {
	PrepareTempConfigFile(t, `datasources:
  - name: cohort
    engine: sqlite
    uri: cohort.db
    metadataTables: true
    connMaxLifetime: 1m
    tables:
      - sqlTable: participants
        identifierColumns: [site, code]
log:
  level: debug
cache:
  enabled: true
  ttl: 30s
`)

	runWithConfigFlags(t, []string{"--datasource-engine", "memory", "--datasource-name", "scratch"}, func(cfg *config.Config) {
		require.NoError(t, cfg.Verify())
		require.Equal(t, "debug", cfg.Log.Level)
		require.True(t, cfg.Cache.Enabled)
		require.Equal(t, 30*time.Second, cfg.Cache.TTL)
		require.Equal(t, int64(config.DefaultCacheLimit), cfg.Cache.Limit)

		require.Len(t, cfg.Datasources, 2)
		cohort := cfg.Datasources[0]
		require.Equal(t, "cohort", cohort.Name)
		require.True(t, cohort.MetadataTables)
		require.Equal(t, time.Minute, cohort.ConnMaxLifetime)
		require.Equal(t, config.DefaultMaxOpenConns, cohort.MaxOpenConns)
		require.Equal(t, []string{"site", "code"}, cohort.Tables[0].IdentifierColumns)

		require.Equal(t, config.DefaultDatasource("scratch", "memory", ""), cfg.Datasources[1])
	})
}

func TestReadConfigEnv(t *testing.T) {
	PrepareTempConfigDir(t)
	t.Setenv("DATAVIRT_LOG_FORMAT", "json")
	t.Setenv("DATAVIRT_MAX_CONCURRENT_VECTORS", "4")

	runWithConfigFlags(t, nil, func(cfg *config.Config) {
		require.Equal(t, "json", cfg.Log.Format)
		require.Equal(t, uint32(4), cfg.MaxConcurrentVectors)
	})
}

func TestMustBind(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 10, "")
	flags.String("datasource", "", "")

	t.Setenv("DATAVIRT_COPY_BATCH_SIZE", "25")
	t.Setenv("DATAVIRT_DATASOURCE", "cohort")
	MustBind(flags,
		Binding{Key: "copyBatchSize", Flag: "batch-size", Env: []string{"DATAVIRT_COPY_BATCH_SIZE"}},
		FlagBinding("datasource"),
	)
	require.Equal(t, 25, viper.GetInt("copyBatchSize"))
	require.Equal(t, "cohort", viper.GetString("datasource"))

	require.NoError(t, flags.Set("batch-size", "40"))
	require.Equal(t, 40, viper.GetInt("copyBatchSize"))

	require.Equal(t, "DATAVIRT_MAX_CONCURRENT_VECTORS", EnvName("max-concurrent-vectors"))
	require.PanicsWithValue(t, "flag 'missing' is not declared", func() {
		MustBind(flags, FlagBinding("missing"))
	})
}
