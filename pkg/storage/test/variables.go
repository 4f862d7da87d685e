package test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func VariableMetadataTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("metadata")
	table := f.write(t, ds, nil)

	got, err := table.Variable("age")
	require.NoError(t, err)
	if diff := cmp.Diff(f.age, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	var names []string
	for _, v := range table.Variables() {
		names = append(names, v.Name())
	}
	require.Equal(t, []string{"age", "name", "tags"}, names)

	t.Run("categories_and_attributes", func(t *testing.T) {
		yes := variable.NewCategoryBuilder("1").
			AddAttribute(variable.NewLocalisedAttribute(variable.LabelAttribute, language.English, "Yes")).
			MustBuild()
		dontKnow := variable.NewCategoryBuilder("8").Missing(true).MustBuild()
		smoker := variable.NewBuilder("smoker", value.Text, participant).
			AddAttribute(variable.NewAttribute("source", "questionnaire")).
			AddAttribute(variable.NewLocalisedAttribute(variable.LabelAttribute, language.French, "Fumeur")).
			AddCategory(yes, dontKnow).
			MustBuild()

		w, err := ds.CreateWriter(ctx, f.table, participant)
		require.NoError(t, err)
		require.NoError(t, w.WriteVariable(ctx, smoker))
		require.NoError(t, w.Close(ctx))

		table, err := ds.ValueTable(f.table)
		require.NoError(t, err)
		got, err := table.Variable("smoker")
		require.NoError(t, err)
		if diff := cmp.Diff(smoker, got); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing_variable", func(t *testing.T) {
		_, err := table.Variable("weight")
		require.ErrorIs(t, err, storage.ErrNoSuchVariable)
		_, err = table.VariableValueSource("weight")
		require.ErrorIs(t, err, storage.ErrNoSuchVariable)
		require.False(t, table.HasVariable("weight"))
	})
}

func RemoveVariableTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("remove_variable")
	f.write(t, ds, map[string]map[string]any{"p1": {"age": 1, "name": "Ann"}})

	w, err := ds.CreateWriter(ctx, f.table, participant)
	require.NoError(t, err)
	require.NoError(t, w.RemoveVariable(ctx, "name"))
	require.ErrorIs(t, w.RemoveVariable(ctx, "name"), storage.ErrNoSuchVariable)
	require.NoError(t, w.Close(ctx))

	table, err := ds.ValueTable(f.table)
	require.NoError(t, err)
	require.False(t, table.HasVariable("name"))
	require.Equal(t, "1", read(t, table, "age", "p1").String())
}

func VariableEntityTypeMismatchTest(t *testing.T, ds storage.Datasource) {
	ctx := context.Background()

	f := newFixture("variable_type")
	f.write(t, ds, nil)

	w, err := ds.CreateWriter(ctx, f.table, participant)
	require.NoError(t, err)
	defer w.Close(ctx)

	serial := variable.NewBuilder("serial", value.Text, "Instrument").MustBuild()
	require.ErrorIs(t, w.WriteVariable(ctx, serial), storage.ErrInvalidArgument)
}
