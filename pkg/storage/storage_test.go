package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/datavirt/datavirt/internal/mocks"
	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/memory"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

const participant = "Participant"

var (
	age  = variable.NewBuilder("age", value.Integer, participant).MustBuild()
	name = variable.NewBuilder("name", value.Text, participant).MustBuild()
)

func intValue(t *testing.T, n int) value.Value {
	t.Helper()
	v, err := value.Integer.ValueOf(n)
	require.NoError(t, err)
	return v
}

// cohort holds participants p1 (34, "ann"), p2 (no age, "bob") and p3 (51, no name).
func cohort(t *testing.T, dsName string) *memory.Datasource {
	t.Helper()
	ctx := context.Background()

	ds := memory.New(dsName)
	require.NoError(t, ds.Initialise(ctx))
	w, err := ds.CreateWriter(ctx, "participants", participant)
	require.NoError(t, err)
	require.NoError(t, w.WriteVariable(ctx, age))
	require.NoError(t, w.WriteVariable(ctx, name))

	rows := []struct {
		id   string
		age  int
		name string
	}{{"p1", 34, "ann"}, {"p2", 0, "bob"}, {"p3", 51, ""}}
	for _, row := range rows {
		vsw, err := w.WriteValueSet(ctx, entity.New(participant, row.id))
		require.NoError(t, err)
		if row.age != 0 {
			require.NoError(t, vsw.WriteValue(ctx, age, intValue(t, row.age)))
		}
		if row.name != "" {
			v, err := value.Text.ValueOf(row.name)
			require.NoError(t, err)
			require.NoError(t, vsw.WriteValue(ctx, name, v))
		}
		require.NoError(t, vsw.Close(ctx))
	}
	require.NoError(t, w.Close(ctx))
	return ds
}

type countingIterator struct {
	storage.Iterator[int]
	stops int
}

func (c *countingIterator) Stop() {
	c.stops++
	c.Iterator.Stop()
}

func TestIterators(t *testing.T) {
	ctx := context.Background()

	t.Run("static", func(t *testing.T) {
		got, err := storage.ToSlice(ctx, storage.NewStaticIterator(1, 2, 3))
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := storage.NewStaticIterator(1).Next(cctx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("mapped and filtered", func(t *testing.T) {
		it := storage.NewFilteredIterator(storage.NewStaticIterator(1, 2, 3, 4), func(i int) bool { return i%2 == 0 })
		mapped := storage.NewMappedIterator(it, func(i int) (string, error) {
			return string(rune('a' + i)), nil
		})
		got, err := storage.ToSlice(ctx, mapped)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "e"}, got)
	})

	t.Run("mapping error", func(t *testing.T) {
		boom := errors.New("boom")
		it := storage.NewMappedIterator(storage.NewStaticIterator(1), func(int) (int, error) { return 0, boom })
		_, err := storage.ToSlice(ctx, it)
		require.ErrorIs(t, err, boom)
	})

	t.Run("stop once", func(t *testing.T) {
		inner := &countingIterator{Iterator: storage.NewStaticIterator(1)}
		it := storage.StopOnce[int](inner)
		require.Same(t, it, storage.StopOnce(it))
		it.Stop()
		it.Stop()
		require.Equal(t, 1, inner.stops)
	})

	t.Run("all stops on break", func(t *testing.T) {
		inner := &countingIterator{Iterator: storage.NewStaticIterator(1, 2, 3)}
		for item, err := range storage.All[int](ctx, inner) {
			require.NoError(t, err)
			require.Equal(t, 1, item)
			break
		}
		require.Equal(t, 1, inner.stops)
	})
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref  string
		want storage.Reference
		err  bool
	}{
		{ref: "ds.table", want: storage.Reference{Datasource: "ds", Table: "table"}},
		{ref: "ds.table:var", want: storage.Reference{Datasource: "ds", Table: "table", Variable: "var"}},
		{ref: "ds.a.b:var", want: storage.Reference{Datasource: "ds", Table: "a.b", Variable: "var"}},
		{ref: "ds", err: true},
		{ref: ".table", err: true},
		{ref: "ds.", err: true},
		{ref: "ds.table:", err: true},
	}
	for _, test := range tests {
		t.Run(test.ref, func(t *testing.T) {
			got, err := storage.ParseReference(test.ref)
			if test.err {
				require.ErrorIs(t, err, storage.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, test.ref, got.String())
		})
	}
}

type lifecycle struct {
	storage.Datasource
	initialised, disposed int
}

func (l *lifecycle) Initialise(ctx context.Context) error {
	l.initialised++
	return l.Datasource.Initialise(ctx)
}

func (l *lifecycle) Dispose(ctx context.Context) error {
	l.disposed++
	return l.Datasource.Dispose(ctx)
}

type tagged struct {
	storage.Datasource
}

func (t *tagged) Unwrap() storage.Datasource { return t.Datasource }

type tagDecorator struct{}

func (tagDecorator) Decorate(ds storage.Datasource) storage.Datasource { return &tagged{ds} }

func (tagDecorator) Undecorate(ds storage.Datasource) storage.Datasource {
	if t, ok := ds.(*tagged); ok {
		return t.Datasource
	}
	return ds
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := storage.NewRegistry(storage.WithDecorator(tagDecorator{}))

	b := &lifecycle{Datasource: cohort(t, "b")}
	a := &lifecycle{Datasource: cohort(t, "a")}

	decorated, err := reg.Register(ctx, b)
	require.NoError(t, err)
	require.IsType(t, &tagged{}, decorated)
	require.True(t, storage.SameDatasource(decorated, b))
	_, err = reg.Register(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 1, a.initialised)

	_, err = reg.Register(ctx, &lifecycle{Datasource: memory.New("a")})
	require.ErrorIs(t, err, storage.ErrCollision)

	var names []string
	for _, ds := range reg.Datasources() {
		names = append(names, ds.Name())
	}
	require.Equal(t, []string{"a", "b"}, names)
	require.True(t, reg.HasDatasource("a"))

	table, err := storage.LookupTable(reg, "a.participants")
	require.NoError(t, err)
	require.Equal(t, participant, table.EntityType())

	_, src, err := storage.LookupVariable(reg, "a.participants:age")
	require.NoError(t, err)
	require.Equal(t, "age", src.Variable().Name())

	_, _, err = storage.LookupVariable(reg, "a.participants")
	require.ErrorIs(t, err, storage.ErrInvalidArgument)
	_, _, err = storage.LookupVariable(reg, "a.participants:missing")
	require.ErrorIs(t, err, storage.ErrNoSuchVariable)
	_, err = storage.LookupTable(reg, "missing.participants")
	require.ErrorIs(t, err, storage.ErrNoSuchDatasource)

	require.NoError(t, reg.Unregister(ctx, "a"))
	require.Equal(t, 1, a.disposed)
	require.ErrorIs(t, reg.Unregister(ctx, "a"), storage.ErrNoSuchDatasource)

	transient := &lifecycle{Datasource: memory.New("scratch")}
	id, err := reg.AddTransient(ctx, transient)
	require.NoError(t, err)
	require.Len(t, id, 26)
	got, err := reg.Transient(id)
	require.NoError(t, err)
	require.Same(t, transient, got)
	require.False(t, reg.HasDatasource("scratch"))

	require.NoError(t, reg.Close(ctx))
	require.Equal(t, 1, b.disposed)
	require.Equal(t, 1, transient.disposed)
	require.Empty(t, reg.Datasources())
	_, err = reg.Transient(id)
	require.ErrorIs(t, err, storage.ErrNoSuchDatasource)
}

func TestCheckValue(t *testing.T) {
	ds := cohort(t, "cohort")
	table, err := ds.ValueTable("participants")
	require.NoError(t, err)

	require.NoError(t, storage.CheckValue(table, age, intValue(t, 3)))
	require.NoError(t, storage.CheckValue(table, age, value.Text.NullValue()))

	text, err := value.Text.ValueOf("3")
	require.NoError(t, err)
	require.ErrorIs(t, storage.CheckValue(table, age, text), storage.ErrInvalidArgument)

	seq, err := value.Integer.Sequence(1, 2)
	require.NoError(t, err)
	require.ErrorIs(t, storage.CheckValue(table, age, seq), storage.ErrInvalidArgument)

	other := variable.NewBuilder("other", value.Integer, participant).MustBuild()
	require.ErrorIs(t, storage.CheckValue(table, other, intValue(t, 1)), storage.ErrNoSuchVariable)
}

func TestReadValuesFallsBackToValueReads(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	src := mocks.NewMockVariableValueSource(ctrl)
	src.EXPECT().VectorSource().Return(nil)
	src.EXPECT().Value(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, vs storage.ValueSet) (value.Value, error) {
			return value.Text.ValueOf(vs.Entity.Identifier)
		}).Times(2)

	values, err := storage.ReadValues(ctx, nil, src, entity.Of(participant, "p1", "p2"))
	require.NoError(t, err)
	require.Equal(t, "p1", values[0].String())
	require.Equal(t, "p2", values[1].String())
}

func TestCopyTable(t *testing.T) {
	ctx := context.Background()
	src, err := cohort(t, "source").ValueTable("participants")
	require.NoError(t, err)

	dst := memory.New("target")
	require.NoError(t, dst.Initialise(ctx))

	n, err := storage.CopyTable(ctx, src, dst, "copy", storage.WithCopyBatchSize(2), storage.WithCopyConcurrency(2))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	copied, err := dst.ValueTable("copy")
	require.NoError(t, err)
	require.Equal(t, participant, copied.EntityType())
	require.Len(t, copied.Variables(), 2)

	entities, err := copied.VariableEntities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, entity.Identifiers(entities))

	ageSrc, err := copied.VariableValueSource("age")
	require.NoError(t, err)
	ages, err := storage.ReadValues(ctx, copied, ageSrc, entities)
	require.NoError(t, err)
	require.Equal(t, "34", ages[0].String())
	require.True(t, ages[1].IsNull())
	require.Equal(t, "51", ages[2].String())

	n, err = storage.CopyTable(ctx, src, dst, "ages", storage.WithCopyVariables(age))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	ages2, err := dst.ValueTable("ages")
	require.NoError(t, err)
	require.False(t, ages2.HasVariable("name"))

	_, err = storage.CopyTable(ctx, src, dst, "bad", storage.WithCopyVariables(
		variable.NewBuilder("missing", value.Text, participant).MustBuild()))
	require.ErrorIs(t, err, storage.ErrNoSuchVariable)
	require.False(t, dst.HasValueTable("bad"))
}
