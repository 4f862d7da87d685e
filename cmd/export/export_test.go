package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/cmd"
	"github.com/datavirt/datavirt/cmd/util"
	"github.com/datavirt/datavirt/pkg/codec"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/bolt"
)

// execute runs the export command with the cohort fixture registered as "cohort" and
// an empty bolt datasource registered as "archive", whose path is returned.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	cohort := util.MustWriteCohort(t)
	archive := filepath.Join(t.TempDir(), "archive.db")
	util.PrepareTempConfigFile(t, fmt.Sprintf(`datasources:
  - name: cohort
    engine: bolt
    uri: %s
  - name: archive
    engine: bolt
    uri: %s
log:
  level: none
`, cohort, archive))

	root := cmd.NewRootCommand()
	root.AddCommand(NewExportCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"export"}, args...))
	err := root.Execute()
	return out.String(), archive, err
}

func openArchive(t *testing.T, path, table string) storage.ValueTable {
	t.Helper()
	ctx := context.Background()
	ds := bolt.New("archive", path)
	require.NoError(t, ds.Initialise(ctx))
	t.Cleanup(func() {
		require.NoError(t, ds.Dispose(ctx))
	})
	vt, err := ds.ValueTable(table)
	require.NoError(t, err)
	return vt
}

func TestExportCommand(t *testing.T) {
	dictionary := filepath.Join(t.TempDir(), "dictionary.yaml")
	out, archive, err := execute(t, "cohort.participants", "archive",
		"--table", "adults",
		"--derive", "months:integer=age == null ? 0 : age * 12",
		"--exclude", "name=name",
		"--batch-size", "2",
		"--dictionary", dictionary)
	require.NoError(t, err)
	require.Equal(t, "exported 3 entities of cohort.participants to archive.adults\n", out)

	table := openArchive(t, archive, "adults")
	require.Equal(t, "Participant", table.EntityType())
	require.False(t, table.HasVariable("name"))

	var names []string
	for _, v := range table.Variables() {
		names = append(names, v.Name())
	}
	require.Equal(t, []string{"age", "height", "weight", "months"}, names)

	ctx := context.Background()
	entities, err := table.VariableEntities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, entity.Identifiers(entities))

	src, err := table.VariableValueSource("months")
	require.NoError(t, err)
	months, err := storage.ReadValues(ctx, table, src, entities)
	require.NoError(t, err)
	require.Equal(t, []string{"408", "0", "612"}, []string{months[0].String(), months[1].String(), months[2].String()})

	data, err := os.ReadFile(dictionary)
	require.NoError(t, err)
	dict, err := codec.UnmarshalTable(data)
	require.NoError(t, err)
	require.Equal(t, "adults", dict.Name)
	require.Len(t, dict.Variables, 4)
}

func TestExportCommandDefaultsToSourceName(t *testing.T) {
	out, archive, err := execute(t, "cohort.participants", "archive")
	require.NoError(t, err)
	require.Equal(t, "exported 3 entities of cohort.participants to archive.participants\n", out)
	require.Len(t, openArchive(t, archive, "participants").Variables(), 4)
}

func TestExportCommandErrors(t *testing.T) {
	_, _, err := execute(t, "cohort.participants", "nowhere")
	require.ErrorIs(t, err, storage.ErrNoSuchDatasource)

	_, _, err = execute(t, "cohort.participants")
	require.Error(t, err)

	_, _, err = execute(t, "cohort.participants", "archive", "--batch-size", "0")
	require.EqualError(t, err, "config 'copyBatchSize' must be greater than zero")
}
