package util

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage/bolt"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// MustWriteCohort creates a bolt file holding the "participants" table and returns its
// path. Participants p1 (age 34, height 180, weight 81) and p2 (height 160, weight 64)
// are followed by p3 (age 51) and the name variable is labelled.
func MustWriteCohort(t testing.TB) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cohort.db")

	ds := bolt.New("cohort", path)
	require.NoError(t, ds.Initialise(ctx))

	vars := []*variable.Variable{
		variable.NewBuilder("name", value.Text, "Participant").
			AddAttribute(variable.NewAttribute(variable.LabelAttribute, "Full name")).
			MustBuild(),
		variable.NewBuilder("age", value.Integer, "Participant").Unit("year").MustBuild(),
		variable.NewBuilder("height", value.Integer, "Participant").Unit("cm").MustBuild(),
		variable.NewBuilder("weight", value.Decimal, "Participant").Unit("kg").MustBuild(),
	}
	rows := []struct {
		id     string
		values []any
	}{
		{"p1", []any{"ann", 34, 180, 81.0}},
		{"p2", []any{"bob", nil, 160, 64.0}},
		{"p3", []any{nil, 51, nil, nil}},
	}

	w, err := ds.CreateWriter(ctx, "participants", "Participant")
	require.NoError(t, err)
	for _, v := range vars {
		require.NoError(t, w.WriteVariable(ctx, v))
	}
	for _, row := range rows {
		vsw, err := w.WriteValueSet(ctx, entity.New("Participant", row.id))
		require.NoError(t, err)
		for i, raw := range row.values {
			if raw == nil {
				continue
			}
			val, err := vars[i].ValueType().ValueOf(raw)
			require.NoError(t, err)
			require.NoError(t, vsw.WriteValue(ctx, vars[i], val))
		}
		require.NoError(t, vsw.Close(ctx))
	}
	require.NoError(t, w.Close(ctx))
	require.NoError(t, ds.Dispose(ctx))

	return path
}
