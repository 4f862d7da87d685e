package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
)

func vectorOf(t *testing.T, table storage.ValueTable, variableName string, ids ...string) []string {
	t.Helper()
	ctx := context.Background()

	src, err := table.VariableValueSource(variableName)
	require.NoError(t, err)
	values, err := storage.ReadValues(ctx, table, src, entity.Of(participant, ids...))
	require.NoError(t, err)
	require.Len(t, values, len(ids))
	return strs(values)
}

func VectorParticipantsAgeTest(t *testing.T, ds storage.Datasource) {
	f := newFixture("participants")
	table := f.write(t, ds, map[string]map[string]any{
		"p1": {"age": 34},
		"p2": {"name": "Bob"},
		"p3": {"age": 51},
	})

	src, err := table.VariableValueSource("age")
	require.NoError(t, err)
	require.NotNil(t, src.VectorSource())

	require.Equal(t, []string{"34", "null", "51"}, vectorOf(t, table, "age", "p1", "p2", "p3"))
}

func VectorOrderAndLengthTest(t *testing.T, ds storage.Datasource) {
	f := newFixture("vector_merge")
	table := f.write(t, ds, map[string]map[string]any{
		"A": {"age": 1},
		"C": {"age": 3},
	})

	t.Run("merge", func(t *testing.T) {
		require.Equal(t, []string{"1", "null", "3", "null"}, vectorOf(t, table, "age", "A", "B", "C", "D"))
	})

	t.Run("request_behind_cursor", func(t *testing.T) {
		require.Equal(t, []string{"3"}, vectorOf(t, table, "age", "C"))
	})

	t.Run("unknown_entities", func(t *testing.T) {
		require.Equal(t, []string{"null", "null"}, vectorOf(t, table, "age", "X", "Y"))
	})

	t.Run("empty_request", func(t *testing.T) {
		require.Empty(t, vectorOf(t, table, "age"))
	})

	t.Run("early_stop", func(t *testing.T) {
		ctx := context.Background()
		src, err := table.VariableValueSource("age")
		require.NoError(t, err)
		it, err := src.VectorSource().Values(ctx, entity.Of(participant, "A", "C"))
		require.NoError(t, err)
		for v, err := range storage.All(ctx, it) {
			require.NoError(t, err)
			require.Equal(t, "1", v.String())
			break
		}
	})
}

func VectorRepeatableTest(t *testing.T, ds storage.Datasource) {
	f := newFixture("vector_repeatable")
	table := f.write(t, ds, map[string]map[string]any{
		"p1": {"tags": []any{"x", "y"}},
		"p3": {"tags": []any{"z"}},
	})

	ctx := context.Background()
	src, err := table.VariableValueSource("tags")
	require.NoError(t, err)
	values, err := storage.ReadValues(ctx, table, src, entity.Of(participant, "p1", "p2", "p3"))
	require.NoError(t, err)
	require.Len(t, values, 3)

	require.Equal(t, 2, values[0].Len())
	require.True(t, values[1].IsNull())
	require.True(t, values[1].IsSequence())
	require.Equal(t, `"z"`, values[2].String())
}
