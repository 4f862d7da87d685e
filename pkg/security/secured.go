package security

import (
	"context"
	"reflect"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/variable"
)

// SecuredDatasource filters the tables of a datasource by permission.
type SecuredDatasource struct {
	storage.Datasource
	authz Authorizer
}

var _ storage.DatasourceWrapper = (*SecuredDatasource)(nil)

// NewSecuredDatasource wraps ds. It panics when authz is nil.
func NewSecuredDatasource(authz Authorizer, ds storage.Datasource) *SecuredDatasource {
	if authz == nil {
		panic("security: nil authorizer")
	}
	return &SecuredDatasource{Datasource: ds, authz: authz}
}

func (d *SecuredDatasource) Unwrap() storage.Datasource {
	return d.Datasource
}

// Authorizer returns the authorizer the datasource checks against.
func (d *SecuredDatasource) Authorizer() Authorizer {
	return d.authz
}

func (d *SecuredDatasource) canReadTable(name string) bool {
	return isPermitted(d.authz, TablePermission(d.Name(), name, ActionRead))
}

func (d *SecuredDatasource) secure(t storage.ValueTable) storage.ValueTable {
	return &securedTable{ValueTable: t, ds: d}
}

func (d *SecuredDatasource) HasValueTable(name string) bool {
	return d.Datasource.HasValueTable(name) && d.canReadTable(name)
}

func (d *SecuredDatasource) ValueTable(name string) (storage.ValueTable, error) {
	t, err := d.Datasource.ValueTable(name)
	if err != nil {
		return nil, err
	}
	if !d.canReadTable(name) {
		return nil, storage.NoSuchValueTableError(d.Name(), name)
	}
	return d.secure(t), nil
}

func (d *SecuredDatasource) ValueTables() []storage.ValueTable {
	var out []storage.ValueTable
	for _, t := range d.Datasource.ValueTables() {
		if d.canReadTable(t.Name()) {
			out = append(out, d.secure(t))
		}
	}
	return out
}

func (d *SecuredDatasource) ValueTableNames() []string {
	var out []string
	for _, name := range d.Datasource.ValueTableNames() {
		if d.canReadTable(name) {
			out = append(out, name)
		}
	}
	return out
}

func (d *SecuredDatasource) CanDropTable(name string) bool {
	return d.Datasource.CanDropTable(name) && isPermitted(d.authz, TablePermission(d.Name(), name, ActionDelete))
}

// DropTable drops a visible table when its delete permission is granted.
func (d *SecuredDatasource) DropTable(ctx context.Context, name string) error {
	if !d.HasValueTable(name) {
		return storage.NoSuchValueTableError(d.Name(), name)
	}
	if !isPermitted(d.authz, TablePermission(d.Name(), name, ActionDelete)) {
		return storage.RuntimeError("not authorized to drop table %s.%s", d.Name(), name)
	}
	return d.Datasource.DropTable(ctx, name)
}

func (d *SecuredDatasource) CanDrop() bool {
	return d.Datasource.CanDrop() && isPermitted(d.authz, DatasourcePermission(d.Name(), ActionDelete))
}

func (d *SecuredDatasource) Drop(ctx context.Context) error {
	if !isPermitted(d.authz, DatasourcePermission(d.Name(), ActionDelete)) {
		return storage.RuntimeError("not authorized to drop datasource %s", d.Name())
	}
	return d.Datasource.Drop(ctx)
}

// CreateWriter requires the write permission of the table. Writing to an existing
// table the principal cannot read fails as if the table did not exist.
func (d *SecuredDatasource) CreateWriter(ctx context.Context, table, entityType string) (storage.ValueTableWriter, error) {
	if d.Datasource.HasValueTable(table) && !d.canReadTable(table) {
		return nil, storage.NoSuchValueTableError(d.Name(), table)
	}
	if !isPermitted(d.authz, TablePermission(d.Name(), table, ActionWrite)) {
		return nil, storage.RuntimeError("not authorized to write table %s.%s", d.Name(), table)
	}
	return d.Datasource.CreateWriter(ctx, table, entityType)
}

// securedTable filters the variables of a table by permission.
type securedTable struct {
	storage.ValueTable
	ds *SecuredDatasource
}

var _ storage.ValueTableWrapper = (*securedTable)(nil)

func (t *securedTable) Unwrap() storage.ValueTable {
	return t.ValueTable
}

func (t *securedTable) Datasource() storage.Datasource {
	return t.ds
}

func (t *securedTable) canRead(name string) bool {
	return isPermitted(t.ds.authz, VariablePermission(t.ds.Name(), t.Name(), name, ActionRead))
}

func (t *securedTable) Variables() []*variable.Variable {
	var out []*variable.Variable
	for _, v := range t.ValueTable.Variables() {
		if t.canRead(v.Name()) {
			out = append(out, v)
		}
	}
	return out
}

func (t *securedTable) HasVariable(name string) bool {
	return t.ValueTable.HasVariable(name) && t.canRead(name)
}

func (t *securedTable) Variable(name string) (*variable.Variable, error) {
	v, err := t.ValueTable.Variable(name)
	if err != nil {
		return nil, err
	}
	if !t.canRead(name) {
		return nil, storage.NoSuchVariableError(t.Name(), name)
	}
	return v, nil
}

func (t *securedTable) VariableValueSource(name string) (storage.VariableValueSource, error) {
	src, err := t.ValueTable.VariableValueSource(name)
	if err != nil {
		return nil, err
	}
	if !t.canRead(name) {
		return nil, storage.NoSuchVariableError(t.Name(), name)
	}
	return src, nil
}

func (t *securedTable) VariableValueSources() []storage.VariableValueSource {
	var out []storage.VariableValueSource
	for _, src := range t.ValueTable.VariableValueSources() {
		if t.canRead(src.Variable().Name()) {
			out = append(out, src)
		}
	}
	return out
}

func (t *securedTable) ValueSet(ctx context.Context, e entity.Entity) (storage.ValueSet, error) {
	vs, err := t.ValueTable.ValueSet(ctx, e)
	if err != nil {
		return vs, err
	}
	vs.Table = t
	return vs, nil
}

func (t *securedTable) ValueSets(ctx context.Context) (storage.ValueSetIterator, error) {
	it, err := t.ValueTable.ValueSets(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewMappedIterator(it, func(vs storage.ValueSet) (storage.ValueSet, error) {
		vs.Table = t
		return vs, nil
	}), nil
}

// Decorator secures the datasources added to a registry.
type Decorator struct {
	authz Authorizer
}

var _ storage.Decorator[storage.Datasource] = (*Decorator)(nil)

func NewDecorator(authz Authorizer) *Decorator {
	return &Decorator{authz: authz}
}

// Decorate secures ds unless it is already secured with the same authorizer.
func (d *Decorator) Decorate(ds storage.Datasource) storage.Datasource {
	if secured, ok := ds.(*SecuredDatasource); ok && sameAuthorizer(secured.authz, d.authz) {
		return ds
	}
	return NewSecuredDatasource(d.authz, ds)
}

// Undecorate removes the outermost security layer of ds.
func (d *Decorator) Undecorate(ds storage.Datasource) storage.Datasource {
	if secured, ok := ds.(*SecuredDatasource); ok {
		return secured.Unwrap()
	}
	return ds
}

func sameAuthorizer(a, b Authorizer) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// SecuredRegistry filters the datasources of a registry by permission and secures the
// ones it hands out.
type SecuredRegistry struct {
	storage.DatasourceRegistry
	decorator *Decorator
}

var _ storage.DatasourceRegistry = (*SecuredRegistry)(nil)

func NewSecuredRegistry(authz Authorizer, reg storage.DatasourceRegistry) *SecuredRegistry {
	if authz == nil {
		panic("security: nil authorizer")
	}
	return &SecuredRegistry{DatasourceRegistry: reg, decorator: NewDecorator(authz)}
}

func (r *SecuredRegistry) canRead(name string) bool {
	return isPermitted(r.decorator.authz, DatasourcePermission(name, ActionRead))
}

func (r *SecuredRegistry) HasDatasource(name string) bool {
	return r.DatasourceRegistry.HasDatasource(name) && r.canRead(name)
}

func (r *SecuredRegistry) Datasource(name string) (storage.Datasource, error) {
	ds, err := r.DatasourceRegistry.Datasource(name)
	if err != nil {
		return nil, err
	}
	if !r.canRead(name) {
		return nil, storage.NoSuchDatasourceError(name)
	}
	return r.decorator.Decorate(ds), nil
}

func (r *SecuredRegistry) Datasources() []storage.Datasource {
	var out []storage.Datasource
	for _, ds := range r.DatasourceRegistry.Datasources() {
		if r.canRead(ds.Name()) {
			out = append(out, r.decorator.Decorate(ds))
		}
	}
	return out
}
