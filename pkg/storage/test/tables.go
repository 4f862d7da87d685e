package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/storage"
)

func ValueTableLookupTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	t.Run("missing_table", func(t *testing.T) {
		_, err := ds.ValueTable("does_not_exist")
		require.ErrorIs(t, err, storage.ErrNoSuchValueTable)
		require.False(t, ds.HasValueTable("does_not_exist"))
	})

	t.Run("written_table_is_listed", func(t *testing.T) {
		f := newFixture("lookup")
		table := f.write(t, ds, map[string]map[string]any{"p1": {"age": 1}})

		require.True(t, ds.HasValueTable(f.table))
		require.Contains(t, ds.ValueTableNames(), f.table)
		require.Equal(t, f.table, table.Name())
		require.Equal(t, participant, table.EntityType())
		require.True(t, table.IsForEntityType(participant))
		require.False(t, table.IsForEntityType("Instrument"))
		require.True(t, storage.SameDatasource(ds, table.Datasource()))

		var found bool
		for _, vt := range ds.ValueTables() {
			if vt.Name() == f.table {
				found = true
			}
		}
		require.True(t, found)
	})

	t.Run("writer_on_other_entity_type", func(t *testing.T) {
		f := newFixture("lookup_type")
		f.write(t, ds, nil)

		_, err := ds.CreateWriter(ctx, f.table, "Instrument")
		require.ErrorIs(t, err, storage.ErrInvalidArgument)
	})
}

func DropTableTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("drop")
	f.write(t, ds, map[string]map[string]any{"p1": {"age": 1}})

	require.True(t, ds.CanDropTable(f.table))
	require.NoError(t, ds.DropTable(ctx, f.table))
	require.False(t, ds.HasValueTable(f.table))

	_, err := ds.ValueTable(f.table)
	require.ErrorIs(t, err, storage.ErrNoSuchValueTable)

	err = ds.DropTable(ctx, f.table)
	require.ErrorIs(t, err, storage.ErrNoSuchValueTable)
}

func TimestampsTest(t *testing.T, ds storage.Datasource) {
	f := newFixture("timestamps")
	table := f.write(t, ds, map[string]map[string]any{"p1": {"age": 1}})

	ts, err := table.Timestamps(context.Background())
	require.NoError(t, err)
	if !ts.IsKnown() {
		return
	}
	require.False(t, ts.LastUpdate.Before(ts.Created))
}
