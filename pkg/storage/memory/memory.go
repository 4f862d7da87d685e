// Package memory provides an ephemeral, writable datasource kept entirely in memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/storage/support"
	"github.com/datavirt/datavirt/pkg/storage/vector"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

var tracer = otel.Tracer("datavirt/pkg/storage/memory")

// StorageOption defines a function type used for configuring a [Datasource] instance.
type StorageOption func(ds *Datasource)

// WithLogger sets the logger of the datasource.
func WithLogger(l logger.Logger) StorageOption {
	return func(ds *Datasource) {
		ds.logger = l
	}
}

// WithClock sets the clock used for table timestamps.
func WithClock(now func() time.Time) StorageOption {
	return func(ds *Datasource) {
		ds.now = now
	}
}

// Datasource provides an ephemeral memory-backed implementation of [storage.Datasource].
// Instances may be safely shared by multiple goroutines.
type Datasource struct {
	*support.Datasource
	logger logger.Logger
	now    func() time.Time
}

var _ storage.Datasource = (*Datasource)(nil)

// New creates an empty memory datasource.
func New(name string, opts ...StorageOption) *Datasource {
	ds := &Datasource{
		logger: logger.NewNoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ds)
	}
	ds.Datasource = support.NewDatasource(name, "memory", ds.logger)
	return ds
}

func (d *Datasource) Initialise(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "memory.Initialise")
	defer span.End()
	return d.InitialiseTables(ctx)
}

// Dispose keeps the data; a memory datasource owns no external resources.
func (d *Datasource) Dispose(context.Context) error {
	return nil
}

func (d *Datasource) CanDropTable(name string) bool {
	return d.HasValueTable(name)
}

func (d *Datasource) DropTable(ctx context.Context, name string) error {
	if _, ok := d.RemoveTable(name); !ok {
		return storage.NoSuchValueTableError(d.Name(), name)
	}
	d.logger.InfoWithContext(ctx, "value table dropped", zap.String("datasource", d.Name()), zap.String("table", name))
	return nil
}

func (d *Datasource) CanDrop() bool {
	return true
}

func (d *Datasource) Drop(context.Context) error {
	d.ClearTables()
	return nil
}

// CreateWriter opens a writer on the table, creating an empty table when missing.
func (d *Datasource) CreateWriter(_ context.Context, name, entityType string) (storage.ValueTableWriter, error) {
	t, err := d.table(name, entityType)
	if err != nil {
		return nil, err
	}
	return &tableWriter{table: t}, nil
}

func (d *Datasource) table(name, entityType string) (*Table, error) {
	if existing, err := d.ValueTable(name); err == nil {
		t := existing.(*Table)
		if !t.IsForEntityType(entityType) {
			return nil, storage.EntityTypeMismatchError(name, t.EntityType(), entityType)
		}
		return t, nil
	}

	t := newTable(d, name, entityType)
	d.AddTable(t)
	return t, nil
}

// Table is a value table whose values live in ordered maps keyed by identifier.
type Table struct {
	*support.ValueTable
	entities *support.EntityProvider
	now      func() time.Time

	mu        sync.RWMutex
	values    map[string]*treemap.Map // variable name -> identifier -> value.Value
	committed *entity.RedBlackTreeSet // GUARDED_BY(mu)
	created   time.Time
	updated   time.Time
}

func newTable(ds *Datasource, name, entityType string) *Table {
	t := &Table{
		now:       ds.now,
		values:    map[string]*treemap.Map{},
		committed: entity.NewSortedSet(),
		created:   ds.now(),
	}
	t.updated = t.created
	t.entities = support.NewEntityProvider(entityType, func(context.Context) ([]string, error) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		return entity.Identifiers(t.committed.Values()), nil
	})
	t.ValueTable = support.NewValueTable(ds, name, t.entities)
	t.SetTimestamps(func(context.Context) (storage.Timestamps, error) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		return storage.Timestamps{Created: t.created, LastUpdate: t.updated}, nil
	})
	return t
}

func (t *Table) touch() {
	t.updated = t.now()
}

type valueSource struct {
	table *Table
	v     *variable.Variable
}

var (
	_ storage.VariableValueSource = (*valueSource)(nil)
	_ storage.VectorSource        = (*valueSource)(nil)
)

func (s *valueSource) Variable() *variable.Variable { return s.v }

func (s *valueSource) ValueType() *value.Type { return s.v.ValueType() }

func (s *valueSource) Value(_ context.Context, vs storage.ValueSet) (value.Value, error) {
	s.table.mu.RLock()
	defer s.table.mu.RUnlock()

	m, ok := s.table.values[s.v.Name()]
	if !ok {
		return s.v.NullValue(), nil
	}
	v, ok := m.Get(vs.Entity.Identifier)
	if !ok {
		return s.v.NullValue(), nil
	}
	return v.(value.Value), nil
}

func (s *valueSource) VectorSource() storage.VectorSource { return s }

// Values streams a snapshot of the stored values, taken when the first value is pulled.
func (s *valueSource) Values(_ context.Context, entities []entity.Entity) (storage.ValueIterator, error) {
	return vector.Stream(entities, s.v.NullValue(), func(ctx context.Context) (vector.Cursor, error) {
		_, span := tracer.Start(ctx, "memory.Values")
		defer span.End()

		s.table.mu.RLock()
		defer s.table.mu.RUnlock()

		m, ok := s.table.values[s.v.Name()]
		if !ok {
			return storage.NewStaticIterator[vector.Row](), nil
		}
		rows := make([]vector.Row, 0, m.Size())
		it := m.Iterator()
		for it.Next() {
			rows = append(rows, vector.Row{Identifier: it.Key().(string), Value: it.Value().(value.Value)})
		}
		return storage.NewStaticIterator(rows...), nil
	}), nil
}

type tableWriter struct {
	table *Table
}

var _ storage.ValueTableWriter = (*tableWriter)(nil)

func (w *tableWriter) WriteVariable(_ context.Context, v *variable.Variable) error {
	t := w.table
	if !t.IsForEntityType(v.EntityType()) {
		return storage.EntityTypeMismatchError(t.Name(), t.EntityType(), v.EntityType())
	}

	t.mu.Lock()
	if _, ok := t.values[v.Name()]; !ok {
		t.values[v.Name()] = treemap.NewWithStringComparator()
	}
	t.touch()
	t.mu.Unlock()

	t.AddSource(&valueSource{table: t, v: v})
	return nil
}

func (w *tableWriter) RemoveVariable(_ context.Context, name string) error {
	t := w.table
	if !t.HasVariable(name) {
		return storage.NoSuchVariableError(t.Name(), name)
	}
	t.RemoveSource(name)

	t.mu.Lock()
	delete(t.values, name)
	t.touch()
	t.mu.Unlock()
	return nil
}

func (w *tableWriter) WriteValueSet(_ context.Context, e entity.Entity) (storage.ValueSetWriter, error) {
	if !w.table.IsForEntityType(e.Type) {
		return nil, storage.EntityTypeMismatchError(w.table.Name(), w.table.EntityType(), e.Type)
	}
	return &valueSetWriter{table: w.table, entity: e, pending: map[string]value.Value{}}, nil
}

func (w *tableWriter) Close(context.Context) error {
	return nil
}

type valueSetWriter struct {
	table   *Table
	entity  entity.Entity
	order   []string
	pending map[string]value.Value
	removed bool
}

var _ storage.ValueSetWriter = (*valueSetWriter)(nil)

func (w *valueSetWriter) WriteValue(_ context.Context, v *variable.Variable, val value.Value) error {
	if err := storage.CheckValue(w.table, v, val); err != nil {
		return err
	}
	if _, ok := w.pending[v.Name()]; !ok {
		w.order = append(w.order, v.Name())
	}
	w.pending[v.Name()] = val
	return nil
}

func (w *valueSetWriter) Remove(context.Context) error {
	t := w.table
	t.mu.Lock()
	for _, m := range t.values {
		m.Remove(w.entity.Identifier)
	}
	t.committed.Remove(w.entity)
	t.touch()
	t.mu.Unlock()

	t.entities.Remove(w.entity)
	w.removed = true
	w.pending = map[string]value.Value{}
	w.order = nil
	return nil
}

// Close applies the pending values and makes the entity visible.
func (w *valueSetWriter) Close(context.Context) error {
	if w.removed {
		return nil
	}

	t := w.table
	t.mu.Lock()
	for _, name := range w.order {
		m, ok := t.values[name]
		if !ok {
			continue
		}
		val := w.pending[name]
		if val.Type() == nil || val.IsNull() {
			m.Remove(w.entity.Identifier)
		} else {
			m.Put(w.entity.Identifier, val)
		}
	}
	t.committed.Add(w.entity)
	t.touch()
	t.mu.Unlock()

	t.entities.Add(w.entity)
	return nil
}
