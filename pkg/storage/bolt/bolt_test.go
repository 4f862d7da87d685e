package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/test"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func newDatasource(t *testing.T, opts ...Option) *Datasource {
	t.Helper()
	ds := New("bolt", filepath.Join(t.TempDir(), "datavirt.bolt"), opts...)
	require.NoError(t, ds.Initialise(context.Background()))
	t.Cleanup(func() {
		_ = ds.Dispose(context.Background())
	})
	return ds
}

func writeAges(t *testing.T, ds *Datasource, table string, ages map[string]int) *variable.Variable {
	t.Helper()
	ctx := context.Background()

	w, err := ds.CreateWriter(ctx, table, "Participant")
	require.NoError(t, err)
	age := variable.NewBuilder("age", value.Integer, "Participant").
		Unit("year").
		AddAttribute(variable.NewLocalisedAttribute(variable.LabelAttribute, language.English, "Age")).
		MustBuild()
	require.NoError(t, w.WriteVariable(ctx, age))

	for id, n := range ages {
		vsw, err := w.WriteValueSet(ctx, entity.New("Participant", id))
		require.NoError(t, err)
		v, err := value.Integer.ValueOf(n)
		require.NoError(t, err)
		require.NoError(t, vsw.WriteValue(ctx, age, v))
		require.NoError(t, vsw.Close(ctx))
	}
	require.NoError(t, w.Close(ctx))
	return age
}

func readVector(t *testing.T, table storage.ValueTable, name string, ids ...string) []string {
	t.Helper()
	src, err := table.VariableValueSource(name)
	require.NoError(t, err)
	values, err := storage.ReadValues(context.Background(), table, src, entity.Of("Participant", ids...))
	require.NoError(t, err)
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func TestBoltDatasource(t *testing.T) {
	ds := New("bolt", filepath.Join(t.TempDir(), "datavirt.bolt"))
	t.Cleanup(func() {
		_ = ds.Dispose(context.Background())
	})
	test.RunAllTests(t, ds)
}

func TestNotInitialised(t *testing.T) {
	ds := New("bolt", filepath.Join(t.TempDir(), "datavirt.bolt"))
	_, err := ds.CreateWriter(context.Background(), "participants", "Participant")
	require.ErrorIs(t, err, storage.ErrRuntime)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "datavirt.bolt")
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ds := New("bolt", path, WithClock(func() time.Time { return created }))
	require.NoError(t, ds.Initialise(ctx))
	age := writeAges(t, ds, "participants", map[string]int{"p1": 34, "p2": 56})
	require.NoError(t, ds.Dispose(ctx))

	ds = New("bolt", path)
	require.NoError(t, ds.Initialise(ctx))
	defer ds.Dispose(ctx)

	require.Equal(t, []string{"participants"}, ds.ValueTableNames())
	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	require.Equal(t, "Participant", table.EntityType())

	got, err := table.Variable("age")
	require.NoError(t, err)
	require.True(t, age.Equal(got))

	entities, err := table.VariableEntities(ctx)
	require.NoError(t, err)
	require.Equal(t, entity.Of("Participant", "p1", "p2"), entities)
	require.Equal(t, []string{"34", "56"}, readVector(t, table, "age", "p1", "p2"))

	ts, err := table.Timestamps(ctx)
	require.NoError(t, err)
	require.Equal(t, created, ts.Created)
}

func TestVectorPages(t *testing.T) {
	ds := newDatasource(t, WithPageSize(2))
	ages := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6, "g": 7}
	writeAges(t, ds, "participants", ages)

	table, err := ds.ValueTable("participants")
	require.NoError(t, err)

	require.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"},
		readVector(t, table, "age", "a", "b", "c", "d", "e", "f", "g"))
	require.Equal(t, []string{"3", "", "6", ""},
		readVector(t, table, "age", "c", "cc", "f", "z"))
	require.Empty(t, readVector(t, table, "age"))
}

func TestVectorSeesCommittedWrites(t *testing.T) {
	ctx := context.Background()
	ds := newDatasource(t, WithPageSize(1))
	age := writeAges(t, ds, "participants", map[string]int{"a": 1, "b": 2})

	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	src, err := table.VariableValueSource("age")
	require.NoError(t, err)

	it, err := src.VectorSource().Values(ctx, entity.Of("Participant", "a", "b"))
	require.NoError(t, err)
	defer it.Stop()
	first, err := it.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", first.String())

	// a writer is not blocked by the open iterator
	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)
	vsw, err := w.WriteValueSet(ctx, entity.New("Participant", "b"))
	require.NoError(t, err)
	v, err := value.Integer.ValueOf(20)
	require.NoError(t, err)
	require.NoError(t, vsw.WriteValue(ctx, age, v))
	require.NoError(t, vsw.Close(ctx))

	second, err := it.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "20", second.String())
}

func TestWriteVariableTypeChange(t *testing.T) {
	ctx := context.Background()
	ds := newDatasource(t)
	writeAges(t, ds, "participants", nil)

	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)
	err = w.WriteVariable(ctx, variable.NewBuilder("age", value.Text, "Participant").MustBuild())
	require.ErrorIs(t, err, storage.ErrInvalidArgument)

	err = w.WriteVariable(ctx, variable.NewBuilder("age", value.Integer, "Participant").Unit("month").MustBuild())
	require.NoError(t, err)
	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	got, err := table.Variable("age")
	require.NoError(t, err)
	require.Equal(t, "month", got.Unit())
	require.Len(t, table.Variables(), 1)
}

func TestDropTableAndDatasource(t *testing.T) {
	ctx := context.Background()
	ds := newDatasource(t)
	writeAges(t, ds, "a", map[string]int{"p1": 1})
	writeAges(t, ds, "b", map[string]int{"p1": 1})

	require.NoError(t, ds.DropTable(ctx, "a"))
	require.ErrorIs(t, ds.DropTable(ctx, "a"), storage.ErrNoSuchValueTable)

	require.NoError(t, ds.Dispose(ctx))
	require.NoError(t, ds.Initialise(ctx))
	require.Equal(t, []string{"b"}, ds.ValueTableNames())

	require.NoError(t, ds.Drop(ctx))
	require.NoFileExists(t, ds.Path())
	require.Empty(t, ds.ValueTableNames())
}
