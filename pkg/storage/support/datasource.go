package support

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/datavirt/datavirt/internal/concurrency"
	"github.com/datavirt/datavirt/pkg/logger"
	"github.com/datavirt/datavirt/pkg/storage"
)

// Datasource keeps the tables of a backend. Backends embed it and implement the
// lifecycle and mutation operations of storage.Datasource.
type Datasource struct {
	name   string
	typ    string
	Logger logger.Logger

	// MaxConcurrentRefresh bounds the goroutines refreshing tables in InitialiseTables.
	MaxConcurrentRefresh int

	mu     sync.RWMutex
	tables map[string]storage.ValueTable // GUARDED_BY(mu)
}

// NewDatasource returns an empty table registry for a datasource named name of
// backend type typ.
func NewDatasource(name, typ string, l logger.Logger) *Datasource {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Datasource{
		name:   name,
		typ:    typ,
		Logger: l,
		tables: map[string]storage.ValueTable{},
	}
}

func (d *Datasource) Name() string {
	return d.name
}

func (d *Datasource) Type() string {
	return d.typ
}

// AddTable registers t, replacing a table with the same name.
func (d *Datasource) AddTable(t storage.ValueTable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[t.Name()] = t
}

// RemoveTable unregisters the named table and returns it.
func (d *Datasource) RemoveTable(name string) (storage.ValueTable, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[name]
	delete(d.tables, name)
	return t, ok
}

// ClearTables unregisters every table.
func (d *Datasource) ClearTables() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = map[string]storage.ValueTable{}
}

func (d *Datasource) HasValueTable(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tables[name]
	return ok
}

func (d *Datasource) ValueTable(name string) (storage.ValueTable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	if !ok {
		return nil, storage.NoSuchValueTableError(d.name, name)
	}
	return t, nil
}

// ValueTables returns the tables sorted by name.
func (d *Datasource) ValueTables() []storage.ValueTable {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]storage.ValueTable, 0, len(d.tables))
	for _, t := range d.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (d *Datasource) ValueTableNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitialiseTables refreshes the entity sets of every table concurrently.
func (d *Datasource) InitialiseTables(ctx context.Context) error {
	p := concurrency.NewPool(ctx, d.MaxConcurrentRefresh)
	for _, t := range d.ValueTables() {
		p.Go(func(ctx context.Context) error {
			if err := t.Refresh(ctx); err != nil {
				d.Logger.ErrorWithContext(ctx, "failed to initialise value table",
					zap.String("datasource", d.name),
					zap.String("table", t.Name()),
					zap.Error(err))
				return err
			}
			return nil
		})
	}
	return p.Wait()
}
