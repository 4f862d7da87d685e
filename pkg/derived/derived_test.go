package derived

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/datavirt/datavirt/internal/mocks"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/memory"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

const participant = "Participant"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	height = variable.NewBuilder("height", value.Decimal, participant).MustBuild()
	weight = variable.NewBuilder("weight", value.Decimal, participant).MustBuild()
	age    = variable.NewBuilder("age", value.Integer, participant).MustBuild()
	tags   = variable.NewBuilder("tags", value.Text, participant).Repeatable("tags").MustBuild()
)

func mustValue(t *testing.T, typ *value.Type, v any) value.Value {
	t.Helper()
	out, err := typ.ValueOf(v)
	require.NoError(t, err)
	return out
}

// measures holds p1 (200cm, 100kg, 34y, tags a and b) and p2 (150cm, 90kg, no age).
func measures(t *testing.T) storage.ValueTable {
	t.Helper()
	ctx := context.Background()

	ds := memory.New("cohort")
	require.NoError(t, ds.Initialise(ctx))
	w, err := ds.CreateWriter(ctx, "measures", participant)
	require.NoError(t, err)
	for _, v := range []*variable.Variable{height, weight, age, tags} {
		require.NoError(t, w.WriteVariable(ctx, v))
	}

	write := func(id string, values map[*variable.Variable]value.Value) {
		vsw, err := w.WriteValueSet(ctx, entity.New(participant, id))
		require.NoError(t, err)
		for v, val := range values {
			require.NoError(t, vsw.WriteValue(ctx, v, val))
		}
		require.NoError(t, vsw.Close(ctx))
	}

	abTags, err := value.Text.Sequence("a", "b")
	require.NoError(t, err)
	write("p1", map[*variable.Variable]value.Value{
		height: mustValue(t, value.Decimal, 200.0),
		weight: mustValue(t, value.Decimal, 100.0),
		age:    mustValue(t, value.Integer, 34),
		tags:   abTags,
	})
	write("p2", map[*variable.Variable]value.Value{
		height: mustValue(t, value.Decimal, 150.0),
		weight: mustValue(t, value.Decimal, 90.0),
	})
	require.NoError(t, w.Close(ctx))

	table, err := ds.ValueTable("measures")
	require.NoError(t, err)
	return table
}

func readValue(t *testing.T, table storage.ValueTable, src storage.VariableValueSource, id string) value.Value {
	t.Helper()
	v, err := src.Value(context.Background(), storage.ValueSet{Table: table, Entity: entity.New(participant, id)})
	require.NoError(t, err)
	return v
}

func TestSourceValue(t *testing.T) {
	table := measures(t)
	bmi := variable.NewBuilder("bmi", value.Decimal, participant).MustBuild()

	src, err := NewSource(table, bmi, "weight / ((height / 100.0) * (height / 100.0))")
	require.NoError(t, err)
	require.Equal(t, []string{"height", "weight"}, src.References())
	require.Equal(t, value.Decimal, src.ValueType())

	require.Equal(t, "25", readValue(t, table, src, "p1").String())
	require.Equal(t, "40", readValue(t, table, src, "p2").String())
}

func TestSourceNulls(t *testing.T) {
	table := measures(t)
	months := variable.NewBuilder("months", value.Integer, participant).MustBuild()

	t.Run("handled", func(t *testing.T) {
		src, err := NewSource(table, months, "age == null ? 0 : age * 12")
		require.NoError(t, err)
		require.Equal(t, "408", readValue(t, table, src, "p1").String())
		require.Equal(t, "0", readValue(t, table, src, "p2").String())
	})

	t.Run("unhandled_missing_input", func(t *testing.T) {
		src, err := NewSource(table, months, "age * 12")
		require.NoError(t, err)
		require.Equal(t, "408", readValue(t, table, src, "p1").String())

		got := readValue(t, table, src, "p2")
		require.True(t, got.IsNull())
		require.Equal(t, value.Integer, got.Type())
	})

	t.Run("failure_on_present_inputs", func(t *testing.T) {
		src, err := NewSource(table, months, "12 / (age - 34)")
		require.NoError(t, err)

		_, err = src.Value(context.Background(), storage.ValueSet{Table: table, Entity: entity.New(participant, "p1")})
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
		require.Equal(t, "months", evalErr.Variable)
		require.Equal(t, "Participant:p1", evalErr.Entity)
	})
}

func TestSourceIdentifierAndConversion(t *testing.T) {
	table := measures(t)
	label := variable.NewBuilder("label", value.Text, participant).MustBuild()

	src, err := NewSource(table, label, `_id + "/" + string(height)`)
	require.NoError(t, err)
	require.Equal(t, []string{"height"}, src.References())
	require.Equal(t, "p1/200", readValue(t, table, src, "p1").String())

	adult := variable.NewBuilder("adult", value.Boolean, participant).MustBuild()
	src, err = NewSource(table, adult, "age >= 18")
	require.NoError(t, err)
	require.Equal(t, "true", readValue(t, table, src, "p1").String())
}

func TestSourceRepeatable(t *testing.T) {
	table := measures(t)
	shouted := variable.NewBuilder("shouted", value.Text, participant).Repeatable("shouted").MustBuild()

	src, err := NewSource(table, shouted, `tags == null ? [] : tags.map(t, t + "!")`)
	require.NoError(t, err)

	v := readValue(t, table, src, "p1")
	require.True(t, v.IsSequence())
	elems, err := v.AsSequence()
	require.NoError(t, err)
	require.Len(t, elems, 2)
	require.Equal(t, "a!", elems[0].String())
	require.Equal(t, "b!", elems[1].String())

	v = readValue(t, table, src, "p2")
	require.True(t, v.IsSequence())
	require.Equal(t, 0, v.Len())

	src, err = NewSource(table, shouted, `"scalar"`)
	require.NoError(t, err)
	_, err = src.Value(context.Background(), storage.ValueSet{Table: table, Entity: entity.New(participant, "p1")})
	require.Error(t, err)
}

func TestSourceCompilationErrors(t *testing.T) {
	table := measures(t)
	v := variable.NewBuilder("x", value.Integer, participant).MustBuild()

	for name, expr := range map[string]string{
		"unknown variable": "unknown + 1",
		"syntax":           "age +",
		"self reference":   "x + 1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewSource(table, v, expr)
			var compErr *CompilationError
			require.ErrorAs(t, err, &compErr)
			require.Equal(t, "x", compErr.Variable)
		})
	}
}

func TestSourceVector(t *testing.T) {
	ctx := context.Background()
	table := measures(t)
	months := variable.NewBuilder("months", value.Integer, participant).MustBuild()

	src, err := NewSource(table, months, "age == null ? -1 : age * 12")
	require.NoError(t, err)

	it, err := src.Values(ctx, entity.Of(participant, "p1", "p2", "p3"))
	require.NoError(t, err)
	values, err := storage.ToSlice(ctx, it)
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.Equal(t, "408", values[0].String())
	require.Equal(t, "-1", values[1].String())
	require.Equal(t, "-1", values[2].String())

	src, err = NewSource(table, months, "age * 12")
	require.NoError(t, err)
	it, err = src.Values(ctx, entity.Of(participant, "p1", "p2", "p3"))
	require.NoError(t, err)
	values, err = storage.ToSlice(ctx, it)
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.Equal(t, "408", values[0].String())
	require.True(t, values[1].IsNull())
	require.True(t, values[2].IsNull())
}

func TestSourceVectorStopsInputsOnError(t *testing.T) {
	ctx := context.Background()
	table := measures(t)
	months := variable.NewBuilder("months", value.Integer, participant).MustBuild()

	src, err := NewSource(table, months, "int(weight) / (int(height) - 150)")
	require.NoError(t, err)

	it, err := src.Values(ctx, entity.Of(participant, "p1", "p2"))
	require.NoError(t, err)
	v, err := it.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", v.String())

	_, err = it.Next(ctx)
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))

	_, err = it.Next(ctx)
	require.ErrorIs(t, err, storage.ErrIteratorDone)
	it.Stop()
}

type sourcesTable struct {
	storage.ValueTable
	sources []storage.VariableValueSource
}

func (s *sourcesTable) VariableValueSources() []storage.VariableValueSource {
	return s.sources
}

func TestSourceVectorFallsBackToValueReads(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	in := mocks.NewMockVariableValueSource(ctrl)
	in.EXPECT().Variable().Return(age).AnyTimes()
	in.EXPECT().VectorSource().Return(nil)
	in.EXPECT().Value(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, vs storage.ValueSet) (value.Value, error) {
			if vs.Entity.Identifier == "p1" {
				return value.Integer.ValueOf(20)
			}
			return value.Integer.ValueOf(40)
		}).Times(2)

	table := &sourcesTable{sources: []storage.VariableValueSource{in}}
	double := variable.NewBuilder("double", value.Integer, participant).MustBuild()
	src, err := NewSource(table, double, "age * 2")
	require.NoError(t, err)

	it, err := src.Values(ctx, entity.Of(participant, "p1", "p2"))
	require.NoError(t, err)
	values, err := storage.ToSlice(ctx, it)
	require.NoError(t, err)
	require.Equal(t, "40", values[0].String())
	require.Equal(t, "80", values[1].String())
}

func TestSourceVectorOpenFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	first := mocks.NewMockVariableValueSource(ctrl)
	firstVector := mocks.NewMockVectorSource(ctrl)
	firstValues := storage.NewStaticIterator[value.Value]()
	first.EXPECT().Variable().Return(height).AnyTimes()
	first.EXPECT().VectorSource().Return(firstVector)
	firstVector.EXPECT().Values(gomock.Any(), gomock.Any()).Return(firstValues, nil)

	second := mocks.NewMockVariableValueSource(ctrl)
	secondVector := mocks.NewMockVectorSource(ctrl)
	second.EXPECT().Variable().Return(weight).AnyTimes()
	second.EXPECT().VectorSource().Return(secondVector)
	secondVector.EXPECT().Values(gomock.Any(), gomock.Any()).Return(nil, storage.RuntimeError("boom"))

	table := &sourcesTable{sources: []storage.VariableValueSource{first, second}}
	sum := variable.NewBuilder("sum", value.Decimal, participant).MustBuild()
	src, err := NewSource(table, sum, "height + weight")
	require.NoError(t, err)

	_, err = src.Values(ctx, entity.Of(participant, "p1"))
	require.ErrorIs(t, err, storage.ErrRuntime)
}

func TestTable(t *testing.T) {
	ctx := context.Background()
	inner := measures(t)

	bmi := variable.NewBuilder("bmi", value.Decimal, participant).
		AddAttribute(variable.NewAttribute(ScriptAttribute, "weight / ((height / 100.0) * (height / 100.0))")).
		MustBuild()
	obese := variable.NewBuilder("obese", value.Boolean, participant).
		AddAttribute(variable.NewAttribute(ScriptAttribute, "bmi >= 30.0")).
		MustBuild()

	table, err := NewTable(inner, bmi, obese)
	require.NoError(t, err)
	require.Same(t, inner, storage.UnwrapValueTable(table))

	var names []string
	for _, v := range table.Variables() {
		names = append(names, v.Name())
	}
	require.Equal(t, []string{"height", "weight", "age", "tags", "bmi", "obese"}, names)
	require.Len(t, table.VariableValueSources(), 6)
	require.True(t, table.HasVariable("bmi"))
	require.True(t, table.HasVariable("age"))

	v, err := table.Variable("obese")
	require.NoError(t, err)
	require.Same(t, obese, v)
	_, err = table.Variable("missing")
	require.ErrorIs(t, err, storage.ErrNoSuchVariable)

	vs, err := table.ValueSet(ctx, entity.New(participant, "p1"))
	require.NoError(t, err)
	require.Same(t, table, vs.Table)

	src, err := table.VariableValueSource("obese")
	require.NoError(t, err)
	got, err := src.Value(ctx, vs)
	require.NoError(t, err)
	require.Equal(t, "false", got.String())

	it, err := table.ValueSets(ctx)
	require.NoError(t, err)
	sets, err := storage.ToSlice(ctx, it)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	for _, set := range sets {
		require.Same(t, table, set.Table)
	}

	values, err := storage.ReadValues(ctx, table, src, entity.Of(participant, "p1", "p2"))
	require.NoError(t, err)
	require.Equal(t, "false", values[0].String())
	require.Equal(t, "true", values[1].String())
}

func TestTableRejections(t *testing.T) {
	inner := measures(t)

	_, err := NewTable(inner, variable.NewBuilder("noscript", value.Integer, participant).MustBuild())
	require.ErrorIs(t, err, storage.ErrInvalidArgument)

	dup := variable.NewBuilder("age", value.Integer, participant).
		AddAttribute(variable.NewAttribute(ScriptAttribute, "1")).MustBuild()
	_, err = NewTable(inner, dup)
	require.ErrorIs(t, err, storage.ErrCollision)

	other := variable.NewBuilder("n", value.Integer, "Sample").
		AddAttribute(variable.NewAttribute(ScriptAttribute, "1")).MustBuild()
	_, err = NewTable(inner, other)
	require.Error(t, err)

	broken := variable.NewBuilder("broken", value.Integer, participant).
		AddAttribute(variable.NewAttribute(ScriptAttribute, "nope(")).MustBuild()
	_, err = NewTable(inner, broken)
	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
}

func TestParseVariable(t *testing.T) {
	v, err := ParseVariable("bmi:decimal = weight / ((height / 100.0) * (height / 100.0))", participant)
	require.NoError(t, err)
	require.Equal(t, "bmi", v.Name())
	require.Equal(t, value.Decimal, v.ValueType())
	require.Equal(t, participant, v.EntityType())
	scripts := v.Attributes().Named(ScriptAttribute)
	require.Len(t, scripts, 1)
	require.Equal(t, "weight / ((height / 100.0) * (height / 100.0))", scripts[0].Value.String())

	v, err = ParseVariable("label=_id", participant)
	require.NoError(t, err)
	require.Equal(t, value.Text, v.ValueType())

	for _, def := range []string{"bmi", "bmi=", "bmi:nope=1", ":integer=1"} {
		_, err := ParseVariable(def, participant)
		require.ErrorIs(t, err, storage.ErrInvalidArgument, def)
	}

	table := measures(t)
	months, err := ParseVariable("months:integer=age == null ? 0 : age * 12", participant)
	require.NoError(t, err)
	dt, err := NewTable(table, months)
	require.NoError(t, err)
	src, err := dt.VariableValueSource("months")
	require.NoError(t, err)
	got, err := src.Value(context.Background(), storage.ValueSet{Table: dt, Entity: entity.New(participant, "p1")})
	require.NoError(t, err)
	require.Equal(t, "408", got.String())
}
