// Package storagewrappers decorates datasources with cross-cutting read behaviour:
// per-request metrics, a bound on open vector cursors, and cached reads. Every wrapper
// unwraps to the object it decorates.
package storagewrappers

import (
	"context"
	"sync"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
)

type (
	tableWrapFunc  func(ds storage.Datasource, t storage.ValueTable) storage.ValueTable
	sourceWrapFunc func(t storage.ValueTable, src storage.VariableValueSource) storage.VariableValueSource
)

// datasource decorates the tables handed out by the inner datasource.
type datasource struct {
	storage.Datasource
	self      storage.Datasource
	wrapTable tableWrapFunc
}

var _ storage.DatasourceWrapper = (*datasource)(nil)

func (d *datasource) Unwrap() storage.Datasource {
	return d.Datasource
}

func (d *datasource) ValueTable(name string) (storage.ValueTable, error) {
	t, err := d.Datasource.ValueTable(name)
	if err != nil {
		return nil, err
	}
	return d.wrapTable(d.self, t), nil
}

func (d *datasource) ValueTables() []storage.ValueTable {
	tables := d.Datasource.ValueTables()
	out := make([]storage.ValueTable, len(tables))
	for i, t := range tables {
		out[i] = d.wrapTable(d.self, t)
	}
	return out
}

// table decorates the value sources of the inner table.
type table struct {
	storage.ValueTable
	ds         storage.Datasource
	wrapSource sourceWrapFunc
}

var _ storage.ValueTableWrapper = (*table)(nil)

func (t *table) Unwrap() storage.ValueTable {
	return t.ValueTable
}

func (t *table) Datasource() storage.Datasource {
	return t.ds
}

func (t *table) VariableValueSource(name string) (storage.VariableValueSource, error) {
	src, err := t.ValueTable.VariableValueSource(name)
	if err != nil {
		return nil, err
	}
	return t.wrapSource(t, src), nil
}

func (t *table) VariableValueSources() []storage.VariableValueSource {
	sources := t.ValueTable.VariableValueSources()
	out := make([]storage.VariableValueSource, len(sources))
	for i, src := range sources {
		out[i] = t.wrapSource(t, src)
	}
	return out
}

func (t *table) ValueSet(ctx context.Context, e entity.Entity) (storage.ValueSet, error) {
	vs, err := t.ValueTable.ValueSet(ctx, e)
	if err != nil {
		return vs, err
	}
	vs.Table = t
	return vs, nil
}

func (t *table) ValueSets(ctx context.Context) (storage.ValueSetIterator, error) {
	it, err := t.ValueTable.ValueSets(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewMappedIterator(it, func(vs storage.ValueSet) (storage.ValueSet, error) {
		vs.Table = t
		return vs, nil
	}), nil
}

// releasingIterator runs release once, when the iterator is stopped or fails.
type releasingIterator struct {
	storage.ValueIterator
	once    sync.Once
	release func()
}

func newReleasingIterator(it storage.ValueIterator, release func()) *releasingIterator {
	return &releasingIterator{ValueIterator: storage.StopOnce(it), release: release}
}

func (r *releasingIterator) Next(ctx context.Context) (value.Value, error) {
	v, err := r.ValueIterator.Next(ctx)
	if err != nil {
		r.Stop()
	}
	return v, err
}

func (r *releasingIterator) Stop() {
	r.ValueIterator.Stop()
	r.once.Do(r.release)
}
