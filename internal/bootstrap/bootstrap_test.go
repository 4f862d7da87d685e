package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/datavirt/datavirt/internal/config"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/security"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/sqlcommon"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeTable(t *testing.T, ds storage.Datasource) {
	t.Helper()
	ctx := context.Background()

	score := variable.NewBuilder("score", value.Integer, "Participant").MustBuild()
	w, err := ds.CreateWriter(ctx, "scores", "Participant")
	require.NoError(t, err)
	require.NoError(t, w.WriteVariable(ctx, score))
	vsw, err := w.WriteValueSet(ctx, entity.New("Participant", "p1"))
	require.NoError(t, err)
	v, err := value.Integer.ValueOf(7)
	require.NoError(t, err)
	require.NoError(t, vsw.WriteValue(ctx, score, v))
	require.NoError(t, vsw.Close(ctx))
	require.NoError(t, w.Close(ctx))
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	l, logs := logger.NewObserverLogger("info")

	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Datasources = []config.DatasourceConfig{
		config.DefaultDatasource("mem", "memory", ""),
		config.DefaultDatasource("disk", "bolt", filepath.Join(t.TempDir(), "disk.db")),
	}

	c, err := New(ctx, cfg, l)
	require.NoError(t, err)
	require.Nil(t, c.Authorizer)
	require.Equal(t, 2, logs.FilterMessage("datasource registered").Len())

	var names []string
	for _, ds := range c.Datasources().Datasources() {
		names = append(names, ds.Name())
	}
	require.Equal(t, []string{"disk", "mem"}, names)

	ds, err := c.Registry.Datasource("disk")
	require.NoError(t, err)
	require.Equal(t, "bolt", storage.UnwrapDatasource(ds).Type())
	writeTable(t, ds)

	_, src, err := storage.LookupVariable(c.Datasources(), "disk.scores:score")
	require.NoError(t, err)
	vs := storage.ValueSet{Entity: entity.New("Participant", "p1")}
	for range 2 {
		got, err := src.Value(ctx, vs)
		require.NoError(t, err)
		require.Equal(t, "7", got.String())
	}
	require.Equal(t, uint32(1), c.Metrics().ValueReadCount)

	require.NoError(t, c.Close(ctx))
	require.Empty(t, c.Registry.Datasources())
}

func TestNewSecured(t *testing.T) {
	ctx := context.Background()

	policy := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policy, []byte(`default: deny
rules:
  - permission: "datavirt:/datasource/open*"
    effect: allow
`), 0o600))

	cfg := config.DefaultConfig()
	cfg.Security.Policy = policy
	cfg.Datasources = []config.DatasourceConfig{
		config.DefaultDatasource("open", "memory", ""),
		config.DefaultDatasource("closed", "memory", ""),
	}

	c, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, c.Close(ctx))
	})

	require.NotNil(t, c.Authorizer)
	reg := c.Datasources()
	require.True(t, reg.HasDatasource("open"))
	require.False(t, reg.HasDatasource("closed"))
	_, err = reg.Datasource("closed")
	require.ErrorIs(t, err, storage.ErrNoSuchDatasource)

	ds, err := reg.Datasource("open")
	require.NoError(t, err)
	require.IsType(t, &security.SecuredDatasource{}, ds)
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid_config", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Datasources = []config.DatasourceConfig{config.DefaultDatasource("a", "oracle", "x")}
		_, err := New(ctx, cfg, nil)
		require.ErrorContains(t, err, "engine must be one of")
	})

	t.Run("missing_policy", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Security.Policy = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := New(ctx, cfg, nil)
		require.ErrorContains(t, err, "load security policy")
	})

	t.Run("bad_expression", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Security.Expression = "permission +"
		_, err := New(ctx, cfg, nil)
		require.ErrorContains(t, err, "compile security expression")
	})

	t.Run("registered_datasources_are_closed", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))

		cfg := config.DefaultConfig()
		cfg.Datasources = []config.DatasourceConfig{
			config.DefaultDatasource("mem", "memory", ""),
			config.DefaultDatasource("broken", "bolt", filepath.Join(blocker, "x.db")),
		}
		_, err := New(ctx, cfg, nil)
		require.ErrorContains(t, err, "register datasource 'broken'")
	})
}

func TestSQLOptions(t *testing.T) {
	cfg := config.DefaultDatasource("db", "postgres", "postgres://localhost/db")
	cfg.MetadataTables = true
	cfg.DefaultEntityType = "Sample"
	cfg.Tables = []config.TableConfig{{SQLTable: "samples", Name: "Samples", IdentifierColumns: []string{"site", "code"}}}

	l := logger.NewNoopLogger()
	opts := sqlOptions(cfg, l)

	got := sqlcommon.NewConfig(opts...)
	require.True(t, got.UseMetadataTables)
	require.Equal(t, "Sample", got.DefaultEntityType)
	require.Equal(t, []string{"samples"}, got.MappedTables)
	require.Len(t, got.Tables, 1)
	require.Equal(t, "Samples", got.Tables[0].TableName)
	require.Equal(t, []string{"site", "code"}, got.Tables[0].EntityIdentifierColumns)
	require.Equal(t, config.DefaultMaxOpenConns, got.MaxOpenConns)
}
