//go:generate mockgen -destination ../../internal/mocks/mock_storage.go -package mocks github.com/datavirt/datavirt/pkg/storage VariableValueSource,VectorSource

// Package storage defines the abstraction every tabular backend implements: datasources
// owning value tables, whose variables are read through value sources.
package storage

import (
	"context"
	"time"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// ValueSet is the handle of one (table, entity) pairing. It carries no data.
type ValueSet struct {
	Table  ValueTable
	Entity entity.Entity
}

// Timestamps reports when a table was created and last updated. A zero time means
// the backend does not track it.
type Timestamps struct {
	Created    time.Time
	LastUpdate time.Time
}

// UnknownTimestamps is the sentinel for backends that do not track timestamps.
func UnknownTimestamps() Timestamps {
	return Timestamps{}
}

// IsKnown reports whether at least one of the bounds is tracked.
func (t Timestamps) IsKnown() bool {
	return !t.Created.IsZero() || !t.LastUpdate.IsZero()
}

// VariableValueSource reads the values of one variable.
type VariableValueSource interface {
	Variable() *variable.Variable
	ValueType() *value.Type

	// Value reads one cell. Absent data for an existing entity yields the variable's
	// null value (the null sequence when repeatable), never an error.
	Value(ctx context.Context, vs ValueSet) (value.Value, error)

	// VectorSource returns nil when the backend cannot stream values.
	VectorSource() VectorSource
}

// VectorSource streams the values of one variable for many entities.
type VectorSource interface {
	// Values yields exactly one value per entity, in the order of entities. Entities must
	// be sorted in the natural order of the backend. The returned iterator holds backend
	// resources until it is exhausted or stopped.
	Values(ctx context.Context, entities []entity.Entity) (ValueIterator, error)
}

// VariableEntityProvider is the authority over the entity set of a table.
type VariableEntityProvider interface {
	EntityType() string
	IsForEntityType(entityType string) bool

	// VariableEntities returns the cached entity set in natural order.
	VariableEntities(ctx context.Context) ([]entity.Entity, error)

	// Refresh recomputes the cached entity set from the backend.
	Refresh(ctx context.Context) error
}

// ValueTable is a named collection of variables sharing one entity type.
type ValueTable interface {
	Name() string
	Datasource() Datasource
	EntityType() string
	IsForEntityType(entityType string) bool

	// Variables returns the variables in insertion order.
	Variables() []*variable.Variable
	HasVariable(name string) bool
	// Variable fails with ErrNoSuchVariable.
	Variable(name string) (*variable.Variable, error)
	// VariableValueSource fails with ErrNoSuchVariable.
	VariableValueSource(name string) (VariableValueSource, error)
	VariableValueSources() []VariableValueSource

	VariableEntities(ctx context.Context) ([]entity.Entity, error)

	// HasValueSet reports whether e belongs to the entity set of the table.
	HasValueSet(ctx context.Context, e entity.Entity) (bool, error)
	// ValueSet returns the handle of e. It does not check membership; it only fails with
	// ErrNoSuchValueSet when e is of another entity type.
	ValueSet(ctx context.Context, e entity.Entity) (ValueSet, error)
	// ValueSets lazily iterates the value sets of all entities. Every call starts over.
	ValueSets(ctx context.Context) (ValueSetIterator, error)

	Timestamps(ctx context.Context) (Timestamps, error)

	// Refresh recomputes cached metadata such as the entity set.
	Refresh(ctx context.Context) error
}

// Datasource is a named collection of value tables with a lifecycle.
type Datasource interface {
	Name() string
	// Type names the backend, e.g. "memory" or "sqlite".
	Type() string

	Initialise(ctx context.Context) error
	Dispose(ctx context.Context) error

	HasValueTable(name string) bool
	// ValueTable fails with ErrNoSuchValueTable.
	ValueTable(name string) (ValueTable, error)
	ValueTables() []ValueTable
	ValueTableNames() []string

	CanDropTable(name string) bool
	DropTable(ctx context.Context, name string) error
	CanDrop() bool
	// Drop irreversibly removes the datasource content after releasing its tables.
	Drop(ctx context.Context) error

	// CreateWriter opens a writer on the table, creating it when missing. Read only
	// backends fail with ErrUnsupported.
	CreateWriter(ctx context.Context, table, entityType string) (ValueTableWriter, error)
}

// ValueTableWriter mutates one table.
type ValueTableWriter interface {
	// WriteVariable adds or replaces a variable. A variable of another entity type is
	// rejected with ErrInvalidArgument.
	WriteVariable(ctx context.Context, v *variable.Variable) error
	RemoveVariable(ctx context.Context, name string) error
	WriteValueSet(ctx context.Context, e entity.Entity) (ValueSetWriter, error)
	Close(ctx context.Context) error
}

// ValueSetWriter writes the values of one entity. The entity becomes visible in the
// table when the writer is closed.
type ValueSetWriter interface {
	// WriteValue stores val; a null val removes the stored value.
	WriteValue(ctx context.Context, v *variable.Variable, val value.Value) error
	// Remove deletes the value set and all its values.
	Remove(ctx context.Context) error
	Close(ctx context.Context) error
}

// Decorator wraps objects of type T and recovers them.
type Decorator[T any] interface {
	Decorate(T) T
	Undecorate(T) T
}

// DatasourceWrapper is implemented by datasources decorating another one.
type DatasourceWrapper interface {
	Datasource
	Unwrap() Datasource
}

// ValueTableWrapper is implemented by tables decorating another one.
type ValueTableWrapper interface {
	ValueTable
	Unwrap() ValueTable
}

// UnwrapDatasource returns the innermost datasource.
func UnwrapDatasource(ds Datasource) Datasource {
	for {
		w, ok := ds.(DatasourceWrapper)
		if !ok {
			return ds
		}
		ds = w.Unwrap()
	}
}

// UnwrapValueTable returns the innermost table.
func UnwrapValueTable(t ValueTable) ValueTable {
	for {
		w, ok := t.(ValueTableWrapper)
		if !ok {
			return t
		}
		t = w.Unwrap()
	}
}

// SameDatasource compares two datasources by their innermost identity.
func SameDatasource(a, b Datasource) bool {
	return UnwrapDatasource(a) == UnwrapDatasource(b)
}

// ReadValues is a convenience that reads the vector of src for entities, falling back
// to one read per entity when src cannot stream.
func ReadValues(ctx context.Context, table ValueTable, src VariableValueSource, entities []entity.Entity) ([]value.Value, error) {
	if vs := src.VectorSource(); vs != nil {
		it, err := vs.Values(ctx, entities)
		if err != nil {
			return nil, err
		}
		return ToSlice(ctx, it)
	}

	out := make([]value.Value, 0, len(entities))
	for _, e := range entities {
		v, err := src.Value(ctx, ValueSet{Table: table, Entity: e})
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
