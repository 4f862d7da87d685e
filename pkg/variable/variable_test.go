package variable

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/value"
)

func TestAttributeOverride(t *testing.T) {
	v := NewBuilder("age", value.Integer, "Participant").
		AddAttribute(NewLocalisedAttribute("label", language.English, "X")).
		AddAttribute(NewLocalisedAttribute("label", language.English, "Y")).
		MustBuild()

	require.Len(t, v.Attributes(), 1)
	a, ok := v.Attributes().Get("label", language.English)
	require.True(t, ok)
	require.Equal(t, "Y", a.Value.String())

	v = From(v).AddAttribute(NewLocalisedAttribute("label", language.French, "Z")).MustBuild()
	require.Len(t, v.Attributes(), 2)

	en, _ := v.Attributes().Get("label", language.English)
	fr, _ := v.Attributes().Get("label", language.French)
	require.Equal(t, "Y", en.Value.String())
	require.Equal(t, "Z", fr.Value.String())
	require.Len(t, v.Attributes().Named("label"), 2)
}

func TestUnlocalisedAndLocalisedAttributesCoexist(t *testing.T) {
	v := NewBuilder("age", value.Integer, "Participant").
		AddAttribute(NewAttribute("label", "Age")).
		AddAttribute(NewLocalisedAttribute("label", language.English, "Age (years)")).
		AddAttribute(NewAttribute("label", "Age at visit")).
		MustBuild()

	require.Len(t, v.Attributes(), 2)
	a, ok := v.Attributes().Get("label", language.Und)
	require.True(t, ok)
	require.False(t, a.IsLocalised())
	require.Equal(t, "Age at visit", a.Value.String())
}

func TestBlankAttributesAreIgnored(t *testing.T) {
	v := NewBuilder("age", value.Integer, "Participant").
		AddAttribute(NewAttribute("label", "")).
		AddAttribute(NewAttribute("", "value")).
		AddAttribute(NewAttribute("description", "  \t\n")).
		AddAttribute(NewLocalisedAttribute("label", language.English, " ")).
		AddAttribute(Attribute{Name: "unit", Value: value.Text.NullValue()}).
		MustBuild()

	require.Empty(t, v.Attributes())
	require.False(t, v.Attributes().Has("label"))
	require.False(t, v.Attributes().Has("description"))
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
	}{
		{name: "missing_name", builder: NewBuilder(" ", value.Text, "Participant")},
		{name: "missing_value_type", builder: NewBuilder("age", nil, "Participant")},
		{name: "repeatable_without_group", builder: NewBuilder("visits", value.Date, "Participant").Repeatable("")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := test.builder.Build()
			require.ErrorIs(t, err, ErrInvalidVariable)
		})
	}

	v, err := NewBuilder("visits", value.Date, "Participant").Repeatable("visit").Build()
	require.NoError(t, err)
	require.True(t, v.IsRepeatable())
	require.Equal(t, "visit", v.OccurrenceGroup())
	require.True(t, v.NullValue().IsSequence())
}

func TestCategories(t *testing.T) {
	yes, err := NewCategoryBuilder("Y").Code("1").AddAttribute(NewLocalisedAttribute("label", language.English, "Yes")).Build()
	require.NoError(t, err)
	dontKnow, err := NewCategoryBuilder("DK").Code("8").Missing(true).Build()
	require.NoError(t, err)
	yesAgain, err := CategoryFrom(yes).Code("10").Build()
	require.NoError(t, err)

	v := NewBuilder("smoker", value.Text, "Participant").
		AddCategory(yes, dontKnow).
		AddCategoryNames("N", "").
		AddCategory(yesAgain).
		MustBuild()

	names := make([]string, 0)
	for _, c := range v.Categories() {
		names = append(names, c.Name())
	}
	require.Equal(t, []string{"Y", "DK", "N"}, names)

	c, ok := v.Category("Y")
	require.True(t, ok)
	require.Equal(t, "10", c.Code())

	dk, _ := value.Text.ValueOf("DK")
	eight, _ := value.Text.ValueOf("8")
	y, _ := value.Text.ValueOf("Y")
	require.True(t, v.IsMissingValue(dk))
	require.True(t, v.IsMissingValue(eight))
	require.True(t, v.IsMissingValue(value.Text.NullValue()))
	require.False(t, v.IsMissingValue(y))

	_, err = NewCategoryBuilder("").Build()
	require.ErrorIs(t, err, ErrInvalidVariable)
}

func TestFromCopiesEverything(t *testing.T) {
	cat, err := NewCategoryBuilder("A").Build()
	require.NoError(t, err)

	original := NewBuilder("weight", value.Decimal, "Participant").
		Unit("kg").
		MimeType("text/plain").
		ReferencedEntityType("Instrument").
		Index(3).
		AddAttribute(NewAttribute("label", "Weight")).
		AddCategory(cat).
		MustBuild()

	copied := From(original).MustBuild()
	if diff := cmp.Diff(original, copied); diff != "" {
		t.Errorf("variable mismatch (-want +got):\n%s", diff)
	}

	renamed := From(original).Name("mass").MustBuild()
	require.False(t, original.Equal(renamed))
	require.Equal(t, "weight", original.Name())
}
