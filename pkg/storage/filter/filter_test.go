package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

var (
	name = variable.NewBuilder("Admin.Participant.Name", value.Text, "Participant").
		AddAttribute(variable.NewAttribute("stage", "admin")).MustBuild()
	photo = variable.NewBuilder("Photo", value.Binary, "Participant").MustBuild()
	tube  = variable.NewBuilder("Tube.Volume", value.Decimal, "Sample").
		AddAttribute(variable.NewAttribute("stage", "lab")).MustBuild()
	all = []*variable.Variable{name, photo, tube}
)

func names(vs []*variable.Variable) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Name())
	}
	return out
}

func TestValueType(t *testing.T) {
	for _, typ := range []string{"text", "TEXT", "Text"} {
		f := ValueType(typ)
		require.True(t, f.Match(name), typ)
		require.False(t, f.Match(photo), typ)
	}
}

func TestEntityType(t *testing.T) {
	require.Equal(t, []string{"Tube.Volume"}, names(Variables(EntityType("Sample"), all)))
}

func TestAttribute(t *testing.T) {
	require.Equal(t, []string{"Admin.Participant.Name", "Tube.Volume"}, names(Variables(Attribute("stage", ""), all)))
	require.Equal(t, []string{"Tube.Volume"}, names(Variables(Attribute("stage", "lab"), all)))
	require.Empty(t, Variables(Attribute("missing", ""), all))
}

func TestName(t *testing.T) {
	f, err := Name("Admin.*")
	require.NoError(t, err)
	require.Equal(t, []string{"Admin.Participant.Name"}, names(Variables(f, all)))

	_, err = Name("[")
	require.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestChain(t *testing.T) {
	tests := []struct {
		name  string
		chain *Chain
		want  []string
	}{
		{
			name:  "empty",
			chain: NewChain(),
			want:  []string{"Admin.Participant.Name", "Photo", "Tube.Volume"},
		},
		{
			name:  "include",
			chain: NewChain().Add(Include, EntityType("Participant")),
			want:  []string{"Admin.Participant.Name", "Photo"},
		},
		{
			name:  "exclude",
			chain: NewChain().Add(Exclude, ValueType("binary")),
			want:  []string{"Admin.Participant.Name", "Tube.Volume"},
		},
		{
			name: "include then exclude",
			chain: NewChain().
				Add(Include, EntityType("Participant")).
				Add(Exclude, ValueType("binary")),
			want: []string{"Admin.Participant.Name"},
		},
		{
			name: "exclude then include",
			chain: NewChain().
				Add(Exclude, Attribute("stage", "")).
				Add(Include, ValueType("decimal")),
			want: []string{"Photo", "Tube.Volume"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, names(Variables(test.chain, all)))
		})
	}
}

func TestParseChain(t *testing.T) {
	c, err := ParseChain([]string{"entityType=Participant", "attribute=stage:lab"}, []string{"valueType=BINARY"})
	require.NoError(t, err)
	require.Equal(t, []string{"Admin.Participant.Name", "Tube.Volume"}, names(Variables(c, all)))

	c, err = ParseChain(nil, []string{"name=Tube.*"})
	require.NoError(t, err)
	require.Equal(t, []string{"Admin.Participant.Name", "Photo"}, names(Variables(c, all)))

	for _, bad := range []string{"valueType", "valueType=", "colour=red", "name=["} {
		_, err := ParseChain([]string{bad}, nil)
		require.ErrorIs(t, err, storage.ErrInvalidArgument, bad)
	}
}
