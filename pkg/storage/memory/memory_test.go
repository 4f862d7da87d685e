package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/test"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func TestMemoryDatasource(t *testing.T) {
	ds := New("memory")
	test.RunAllTests(t, ds)
}

func TestEntityVisibleOnClose(t *testing.T) {
	ctx := context.Background()
	ds := New("memory")

	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)
	age := variable.NewBuilder("age", value.Integer, "Participant").MustBuild()
	require.NoError(t, w.WriteVariable(ctx, age))

	vsw, err := w.WriteValueSet(ctx, entity.New("Participant", "p1"))
	require.NoError(t, err)
	v, err := value.Integer.ValueOf(34)
	require.NoError(t, err)
	require.NoError(t, vsw.WriteValue(ctx, age, v))

	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	ok, err := table.HasValueSet(ctx, entity.New("Participant", "p1"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, vsw.Close(ctx))

	ok, err = table.HasValueSet(ctx, entity.New("Participant", "p1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTimestampsUseClock(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created
	ds := New("memory", WithClock(func() time.Time { return now }))

	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)

	now = created.Add(time.Hour)
	require.NoError(t, w.WriteVariable(ctx, variable.NewBuilder("age", value.Integer, "Participant").MustBuild()))

	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	ts, err := table.Timestamps(ctx)
	require.NoError(t, err)
	require.Equal(t, created, ts.Created)
	require.Equal(t, created.Add(time.Hour), ts.LastUpdate)
}

func TestVectorSnapshotIsolatedFromWrites(t *testing.T) {
	ctx := context.Background()
	ds := New("memory")

	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)
	age := variable.NewBuilder("age", value.Integer, "Participant").MustBuild()
	require.NoError(t, w.WriteVariable(ctx, age))

	write := func(id string, n int) {
		vsw, err := w.WriteValueSet(ctx, entity.New("Participant", id))
		require.NoError(t, err)
		v, err := value.Integer.ValueOf(n)
		require.NoError(t, err)
		require.NoError(t, vsw.WriteValue(ctx, age, v))
		require.NoError(t, vsw.Close(ctx))
	}
	write("a", 1)
	write("b", 2)

	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	src, err := table.VariableValueSource("age")
	require.NoError(t, err)

	it, err := src.VectorSource().Values(ctx, entity.Of("Participant", "a", "b"))
	require.NoError(t, err)
	first, err := it.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", first.String())

	write("b", 20)

	second, err := it.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", second.String())
	it.Stop()
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	ds := New("memory")

	_, err := ds.CreateWriter(ctx, "a", "Participant")
	require.NoError(t, err)
	_, err = ds.CreateWriter(ctx, "b", "Participant")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ds.ValueTableNames())

	require.True(t, ds.CanDrop())
	require.NoError(t, ds.Drop(ctx))
	require.Empty(t, ds.ValueTableNames())

	_, err = ds.ValueTable("a")
	require.ErrorIs(t, err, storage.ErrNoSuchValueTable)
}

func TestZeroValueClearsValue(t *testing.T) {
	ctx := context.Background()
	ds := New("memory")

	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)
	age := variable.NewBuilder("age", value.Integer, "Participant").MustBuild()
	require.NoError(t, w.WriteVariable(ctx, age))

	write := func(v value.Value) {
		vsw, err := w.WriteValueSet(ctx, entity.New("Participant", "p1"))
		require.NoError(t, err)
		require.NoError(t, vsw.WriteValue(ctx, age, v))
		require.NoError(t, vsw.Close(ctx))
	}
	v, err := value.Integer.ValueOf(34)
	require.NoError(t, err)
	write(v)
	write(value.Value{})

	table, err := ds.ValueTable("participants")
	require.NoError(t, err)
	src, err := table.VariableValueSource("age")
	require.NoError(t, err)
	vs, err := table.ValueSet(ctx, entity.New("Participant", "p1"))
	require.NoError(t, err)
	got, err := src.Value(ctx, vs)
	require.NoError(t, err)
	require.True(t, got.IsNull())
	require.Equal(t, value.Integer, got.Type())
}
