package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

func fullVariable(t *testing.T) *variable.Variable {
	weight, err := value.Decimal.ValueOf(1.5)
	require.NoError(t, err)

	return variable.NewBuilder("smoker", value.Integer, "Participant").
		Repeatable("visits").
		Unit("cigarettes").
		MimeType("text/plain").
		ReferencedEntityType("Visit").
		Index(3).
		AddAttribute(
			variable.NewAttribute("source", "questionnaire"),
			variable.NewLocalisedAttribute(variable.LabelAttribute, language.English, "Smoker"),
			variable.NewLocalisedAttribute(variable.LabelAttribute, language.French, "Fumeur"),
			variable.Attribute{Name: "weight", Value: weight},
		).
		AddCategory(
			variable.NewCategoryBuilder("1").
				Code("YES").
				AddAttribute(variable.NewLocalisedAttribute(variable.LabelAttribute, language.English, "Yes")).
				MustBuild(),
			variable.NewCategoryBuilder("8").Missing(true).MustBuild(),
		).
		MustBuild()
}

func TestVariableRoundTrip(t *testing.T) {
	v := fullVariable(t)

	data, err := MarshalVariable(v)
	require.NoError(t, err)

	got, err := UnmarshalVariable(data)
	require.NoError(t, err)
	require.True(t, v.Equal(got), cmp.Diff(FromVariable(v), FromVariable(got)))
}

func TestTableYAMLRoundTrip(t *testing.T) {
	vars := []*variable.Variable{
		fullVariable(t),
		variable.NewBuilder("name", value.Text, "Participant").MustBuild(),
	}

	data, err := MarshalTableYAML(FromVariables("cohort", "Participant", vars))
	require.NoError(t, err)

	table, err := UnmarshalTable(data)
	require.NoError(t, err)
	require.Equal(t, "cohort", table.Name)

	got, err := table.BuildVariables()
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range vars {
		require.True(t, vars[i].Equal(got[i]), cmp.Diff(FromVariable(vars[i]), FromVariable(got[i])))
	}
}

func TestUnmarshalTableDefaults(t *testing.T) {
	table, err := UnmarshalTable([]byte(`
name: cohort
entityType: Participant
variables:
  - name: age
    valueType: integer
    unit: year
    attributes:
      - name: label
        locale: en
        value: Age
`))
	require.NoError(t, err)

	vars, err := table.BuildVariables()
	require.NoError(t, err)
	require.Len(t, vars, 1)
	require.Equal(t, "Participant", vars[0].EntityType())
	require.Equal(t, value.Integer, vars[0].ValueType())

	label, ok := vars[0].Attributes().Get(variable.LabelAttribute, language.English)
	require.True(t, ok)
	require.Equal(t, "Age", label.Value.String())
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := UnmarshalVariable([]byte(`{"name": "x", "valueType": "nope", "entityType": "P"}`))
	require.ErrorIs(t, err, value.ErrUnknownType)

	_, err = UnmarshalVariable([]byte(`{"name": "x", "valueType": "text", "entityType": "P",
		"attributes": [{"name": "a", "valueType": "integer", "value": "abc"}]}`))
	require.Error(t, err)

	_, err = UnmarshalVariable([]byte(`{"name": "", "valueType": "text"}`))
	require.ErrorIs(t, err, variable.ErrInvalidVariable)
}

func TestValueSet(t *testing.T) {
	age := variable.NewBuilder("age", value.Integer, "Participant").MustBuild()
	tags := variable.NewBuilder("tags", value.Text, "Participant").Repeatable("tags").MustBuild()
	vars := []*variable.Variable{age, tags}

	v34, err := value.Integer.ValueOf(34)
	require.NoError(t, err)
	seq, err := value.Text.Sequence("a", "b,c")
	require.NoError(t, err)

	vs := NewValueSet("p1", vars, []value.Value{v34, seq})
	require.Equal(t, "34", vs.Values["age"])

	got, err := vs.Decode(vars)
	require.NoError(t, err)
	require.True(t, got[0].Equal(v34))
	require.True(t, got[1].Equal(seq))

	vs = NewValueSet("p2", vars, []value.Value{age.NullValue(), tags.NullValue()})
	require.Empty(t, vs.Values)
	got, err = vs.Decode(vars)
	require.NoError(t, err)
	require.True(t, got[0].IsNull())
	require.True(t, got[1].IsNull())
	require.True(t, got[1].IsSequence())
}
