package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func WriteAndReadValuesTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("values")
	table := f.write(t, ds, map[string]map[string]any{
		"p1": {"age": 34, "name": "Ann", "tags": []any{"a", "b,c"}},
		"p2": {"name": ""},
		"p3": {"age": 51},
	})

	require.Equal(t, "34", read(t, table, "age", "p1").String())
	require.Equal(t, "Ann", read(t, table, "name", "p1").String())

	tags := read(t, table, "tags", "p1")
	require.True(t, tags.IsSequence())
	elems, err := tags.AsSequence()
	require.NoError(t, err)
	require.Len(t, elems, 2)
	require.Equal(t, "b,c", elems[1].String())

	t.Run("absent_cell_is_null", func(t *testing.T) {
		age := read(t, table, "age", "p2")
		require.True(t, age.IsNull())
		require.Equal(t, value.Integer, age.Type())

		tags := read(t, table, "tags", "p3")
		require.True(t, tags.IsNull())
		require.True(t, tags.IsSequence())
	})

	t.Run("absent_entity_is_null", func(t *testing.T) {
		ok, err := table.HasValueSet(ctx, entity.New(participant, "p9"))
		require.NoError(t, err)
		require.False(t, ok)

		require.True(t, read(t, table, "age", "p9").IsNull())
	})

	t.Run("entity_set", func(t *testing.T) {
		entities, err := table.VariableEntities(ctx)
		require.NoError(t, err)
		require.Equal(t, entity.Of(participant, "p1", "p2", "p3"), entities)

		ok, err := table.HasValueSet(ctx, entity.New(participant, "p2"))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("value_set_of_other_type", func(t *testing.T) {
		_, err := table.ValueSet(ctx, entity.New("Instrument", "p1"))
		require.ErrorIs(t, err, storage.ErrNoSuchValueSet)
	})
}

func NullValueRemovesTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("null_removes")
	table := f.write(t, ds, map[string]map[string]any{"p1": {"age": 34, "name": "Ann"}})

	w, err := ds.CreateWriter(ctx, f.table, participant)
	require.NoError(t, err)
	vsw, err := w.WriteValueSet(ctx, entity.New(participant, "p1"))
	require.NoError(t, err)
	require.NoError(t, vsw.WriteValue(ctx, f.age, value.Integer.NullValue()))
	require.NoError(t, vsw.Close(ctx))
	require.NoError(t, w.Close(ctx))

	table, err = ds.ValueTable(f.table)
	require.NoError(t, err)
	require.True(t, read(t, table, "age", "p1").IsNull())
	require.Equal(t, "Ann", read(t, table, "name", "p1").String())

	ok, err := table.HasValueSet(ctx, entity.New(participant, "p1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func RemoveValueSetTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("remove_value_set")
	f.write(t, ds, map[string]map[string]any{"p1": {"age": 34}, "p2": {"age": 40}})

	w, err := ds.CreateWriter(ctx, f.table, participant)
	require.NoError(t, err)
	vsw, err := w.WriteValueSet(ctx, entity.New(participant, "p1"))
	require.NoError(t, err)
	require.NoError(t, vsw.Remove(ctx))
	require.NoError(t, vsw.Close(ctx))
	require.NoError(t, w.Close(ctx))

	table, err := ds.ValueTable(f.table)
	require.NoError(t, err)
	entities, err := table.VariableEntities(ctx)
	require.NoError(t, err)
	require.Equal(t, entity.Of(participant, "p2"), entities)
	require.True(t, read(t, table, "age", "p1").IsNull())
}

func WriteValueChecksTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("value_checks")
	f.write(t, ds, nil)

	w, err := ds.CreateWriter(ctx, f.table, participant)
	require.NoError(t, err)
	defer w.Close(ctx)

	_, err = w.WriteValueSet(ctx, entity.New("Instrument", "i1"))
	require.ErrorIs(t, err, storage.ErrInvalidArgument)

	vsw, err := w.WriteValueSet(ctx, entity.New(participant, "p1"))
	require.NoError(t, err)
	defer vsw.Close(ctx)

	text, err := value.Text.ValueOf("x")
	require.NoError(t, err)
	require.ErrorIs(t, vsw.WriteValue(ctx, f.age, text), storage.ErrInvalidArgument)
	require.ErrorIs(t, vsw.WriteValue(ctx, f.tags, text), storage.ErrInvalidArgument)

	weight := variable.NewBuilder("weight", value.Decimal, participant).MustBuild()
	kg, err := value.Decimal.ValueOf(72.5)
	require.NoError(t, err)
	require.ErrorIs(t, vsw.WriteValue(ctx, weight, kg), storage.ErrNoSuchVariable)
}

func ValueSetsTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("value_sets")
	table := f.write(t, ds, map[string]map[string]any{"p2": {"age": 2}, "p1": {"age": 1}})

	// the iterator is restartable: each call yields the whole set
	for range 2 {
		it, err := table.ValueSets(ctx)
		require.NoError(t, err)
		sets, err := storage.ToSlice(ctx, it)
		require.NoError(t, err)
		require.Len(t, sets, 2)
		require.Equal(t, "p1", sets[0].Entity.Identifier)
		require.Equal(t, "p2", sets[1].Entity.Identifier)
		require.Equal(t, f.table, sets[0].Table.Name())
	}
}
