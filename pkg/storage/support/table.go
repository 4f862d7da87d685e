// Package support provides the building blocks shared by datasource backends: a value
// table composing an entity provider with value sources, a table registry with a
// lifecycle, and helpers around them.
package support

import (
	"context"
	"sync"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/variable"
)

// TimestampsFunc reports the timestamps of a table.
type TimestampsFunc func(ctx context.Context) (storage.Timestamps, error)

// EntitySet is the entity provider a ValueTable is composed with.
type EntitySet interface {
	storage.VariableEntityProvider
	Contains(ctx context.Context, e entity.Entity) (bool, error)
}

// ValueTable composes an entity provider with value sources keyed by variable name.
// Backends embed it and register their sources with AddSource.
type ValueTable struct {
	name       string
	datasource storage.Datasource
	entities   EntitySet
	timestamps TimestampsFunc

	mu      sync.RWMutex
	sources []storage.VariableValueSource // GUARDED_BY(mu)
	index   map[string]int                // GUARDED_BY(mu)
}

var _ storage.ValueTable = (*ValueTable)(nil)

// NewValueTable creates an empty table owned by ds.
func NewValueTable(ds storage.Datasource, name string, entities EntitySet) *ValueTable {
	return &ValueTable{
		name:       name,
		datasource: ds,
		entities:   entities,
		index:      map[string]int{},
	}
}

// SetTimestamps installs the function reporting the table timestamps.
func (t *ValueTable) SetTimestamps(fn TimestampsFunc) {
	t.timestamps = fn
}

// AddSource registers src, replacing a source of the same variable name in place.
func (t *ValueTable) AddSource(src storage.VariableValueSource) {
	name := src.Variable().Name()

	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[name]; ok {
		t.sources[i] = src
		return
	}
	t.index[name] = len(t.sources)
	t.sources = append(t.sources, src)
}

// RemoveSource unregisters the source of the named variable.
func (t *ValueTable) RemoveSource(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[name]
	if !ok {
		return
	}
	t.sources = append(t.sources[:i], t.sources[i+1:]...)
	delete(t.index, name)
	for j := i; j < len(t.sources); j++ {
		t.index[t.sources[j].Variable().Name()] = j
	}
}

// ClearSources unregisters every source.
func (t *ValueTable) ClearSources() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = nil
	t.index = map[string]int{}
}

// Entities returns the entity provider of the table.
func (t *ValueTable) Entities() EntitySet {
	return t.entities
}

func (t *ValueTable) Name() string {
	return t.name
}

func (t *ValueTable) Datasource() storage.Datasource {
	return t.datasource
}

func (t *ValueTable) EntityType() string {
	return t.entities.EntityType()
}

func (t *ValueTable) IsForEntityType(entityType string) bool {
	return t.entities.IsForEntityType(entityType)
}

func (t *ValueTable) Variables() []*variable.Variable {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*variable.Variable, len(t.sources))
	for i, src := range t.sources {
		out[i] = src.Variable()
	}
	return out
}

func (t *ValueTable) HasVariable(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[name]
	return ok
}

func (t *ValueTable) Variable(name string) (*variable.Variable, error) {
	src, err := t.VariableValueSource(name)
	if err != nil {
		return nil, err
	}
	return src.Variable(), nil
}

func (t *ValueTable) VariableValueSource(name string) (storage.VariableValueSource, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.index[name]
	if !ok {
		return nil, storage.NoSuchVariableError(t.name, name)
	}
	return t.sources[i], nil
}

func (t *ValueTable) VariableValueSources() []storage.VariableValueSource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]storage.VariableValueSource, len(t.sources))
	copy(out, t.sources)
	return out
}

func (t *ValueTable) VariableEntities(ctx context.Context) ([]entity.Entity, error) {
	return t.entities.VariableEntities(ctx)
}

func (t *ValueTable) HasValueSet(ctx context.Context, e entity.Entity) (bool, error) {
	return t.entities.Contains(ctx, e)
}

func (t *ValueTable) ValueSet(_ context.Context, e entity.Entity) (storage.ValueSet, error) {
	if !t.entities.IsForEntityType(e.Type) {
		return storage.ValueSet{}, storage.NoSuchValueSetError(t.name, e)
	}
	return storage.ValueSet{Table: t, Entity: e}, nil
}

// ValueSets snapshots the entity set and lazily maps it to value sets.
func (t *ValueTable) ValueSets(ctx context.Context) (storage.ValueSetIterator, error) {
	entities, err := t.entities.VariableEntities(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewMappedIterator(storage.NewStaticIterator(entities...), func(e entity.Entity) (storage.ValueSet, error) {
		return storage.ValueSet{Table: t, Entity: e}, nil
	}), nil
}

func (t *ValueTable) Timestamps(ctx context.Context) (storage.Timestamps, error) {
	if t.timestamps == nil {
		return storage.UnknownTimestamps(), nil
	}
	return t.timestamps(ctx)
}

// Refresh reloads the entity set.
func (t *ValueTable) Refresh(ctx context.Context) error {
	return t.entities.Refresh(ctx)
}
