// Package test holds the behaviour every writable datasource must exhibit. Backends run
// it from their own tests through RunAllTests.
package test

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

const participant = "Participant"

func RunAllTests(t *testing.T, ds storage.Datasource) {
	t.Run("TestDatasourceInitialise", func(t *testing.T) {
		require.NoError(t, ds.Initialise(context.Background()))
	})

	// Tables.
	t.Run("TestValueTableLookup", func(t *testing.T) { ValueTableLookupTest(t, ds) })
	t.Run("TestDropTable", func(t *testing.T) { DropTableTest(t, ds) })
	t.Run("TestTimestamps", func(t *testing.T) { TimestampsTest(t, ds) })

	// Variables.
	t.Run("TestVariableMetadata", func(t *testing.T) { VariableMetadataTest(t, ds) })
	t.Run("TestRemoveVariable", func(t *testing.T) { RemoveVariableTest(t, ds) })
	t.Run("TestVariableEntityTypeMismatch", func(t *testing.T) { VariableEntityTypeMismatchTest(t, ds) })

	// Values.
	t.Run("TestWriteAndReadValues", func(t *testing.T) { WriteAndReadValuesTest(t, ds) })
	t.Run("TestNullValueRemoves", func(t *testing.T) { NullValueRemovesTest(t, ds) })
	t.Run("TestRemoveValueSet", func(t *testing.T) { RemoveValueSetTest(t, ds) })
	t.Run("TestWriteValueChecks", func(t *testing.T) { WriteValueChecksTest(t, ds) })
	t.Run("TestValueSets", func(t *testing.T) { ValueSetsTest(t, ds) })

	// Vectors.
	t.Run("TestVectorParticipantsAge", func(t *testing.T) { VectorParticipantsAgeTest(t, ds) })
	t.Run("TestVectorOrderAndLength", func(t *testing.T) { VectorOrderAndLengthTest(t, ds) })
	t.Run("TestVectorRepeatable", func(t *testing.T) { VectorRepeatableTest(t, ds) })
}

// tableName returns a table name unique within the datasource that is also a valid
// SQL identifier.
func tableName(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}

type fixture struct {
	table string
	age   *variable.Variable
	name  *variable.Variable
	tags  *variable.Variable
}

func newFixture(prefix string) fixture {
	return fixture{
		table: tableName(prefix),
		age: variable.NewBuilder("age", value.Integer, participant).
			Unit("year").
			AddAttribute(variable.NewLocalisedAttribute(variable.LabelAttribute, language.English, "Age")).
			MustBuild(),
		name: variable.NewBuilder("name", value.Text, participant).MustBuild(),
		tags: variable.NewBuilder("tags", value.Text, participant).Repeatable("tags").MustBuild(),
	}
}

// write creates the fixture table and writes one value set per row. A row maps variable
// names to native values; missing names are left unset.
func (f fixture) write(t *testing.T, ds storage.Datasource, rows map[string]map[string]any) storage.ValueTable {
	t.Helper()
	ctx := context.Background()

	w, err := ds.CreateWriter(ctx, f.table, participant)
	require.NoError(t, err)
	for _, v := range []*variable.Variable{f.age, f.name, f.tags} {
		require.NoError(t, w.WriteVariable(ctx, v))
	}

	vars := map[string]*variable.Variable{"age": f.age, "name": f.name, "tags": f.tags}
	for id, row := range rows {
		vsw, err := w.WriteValueSet(ctx, entity.New(participant, id))
		require.NoError(t, err)
		for name, native := range row {
			v := vars[name]
			var val value.Value
			if v.IsRepeatable() {
				val, err = v.ValueType().Sequence(native.([]any)...)
			} else {
				val, err = v.ValueType().ValueOf(native)
			}
			require.NoError(t, err)
			require.NoError(t, vsw.WriteValue(ctx, v, val))
		}
		require.NoError(t, vsw.Close(ctx))
	}
	require.NoError(t, w.Close(ctx))

	table, err := ds.ValueTable(f.table)
	require.NoError(t, err)
	return table
}

func read(t *testing.T, table storage.ValueTable, variableName, id string) value.Value {
	t.Helper()
	ctx := context.Background()

	src, err := table.VariableValueSource(variableName)
	require.NoError(t, err)
	vs, err := table.ValueSet(ctx, entity.New(participant, id))
	require.NoError(t, err)
	v, err := src.Value(ctx, vs)
	require.NoError(t, err)
	return v
}

func strs(values []value.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v.IsNull() {
			out[i] = "null"
			continue
		}
		out[i] = v.String()
	}
	return out
}
