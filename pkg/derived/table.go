package derived

import (
	"context"
	"fmt"
	"strings"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Table extends a table with derived variables. Each derived variable may reference
// the variables of the inner table and the derived variables added before it.
type Table struct {
	storage.ValueTable
	sources []*Source
}

var _ storage.ValueTableWrapper = (*Table)(nil)

// NewTable wraps t with one derived variable per element of variables. The expression
// of each variable is its script attribute.
func NewTable(t storage.ValueTable, variables ...*variable.Variable) (*Table, error) {
	dt := &Table{ValueTable: t}
	for _, v := range variables {
		scripts := v.Attributes().Named(ScriptAttribute)
		if len(scripts) == 0 {
			return nil, fmt.Errorf("%w: variable %s has no %s attribute", storage.ErrInvalidArgument, v.Name(), ScriptAttribute)
		}
		if err := dt.Add(v, scripts[0].Value.String()); err != nil {
			return nil, err
		}
	}
	return dt, nil
}

// Add compiles expression as the derived variable v.
func (t *Table) Add(v *variable.Variable, expression string) error {
	if !v.IsForEntityType(t.EntityType()) {
		return storage.EntityTypeMismatchError(t.Name(), t.EntityType(), v.EntityType())
	}
	if t.HasVariable(v.Name()) {
		return fmt.Errorf("%w: variable %s of table %s", storage.ErrCollision, v.Name(), t.Name())
	}

	src, err := NewSource(t, v, expression)
	if err != nil {
		return err
	}
	t.sources = append(t.sources, src)
	return nil
}

func (t *Table) Unwrap() storage.ValueTable {
	return t.ValueTable
}

func (t *Table) derived(name string) (*Source, bool) {
	for _, src := range t.sources {
		if src.Variable().Name() == name {
			return src, true
		}
	}
	return nil, false
}

func (t *Table) Variables() []*variable.Variable {
	out := t.ValueTable.Variables()
	for _, src := range t.sources {
		out = append(out, src.Variable())
	}
	return out
}

func (t *Table) HasVariable(name string) bool {
	if _, ok := t.derived(name); ok {
		return true
	}
	return t.ValueTable.HasVariable(name)
}

func (t *Table) Variable(name string) (*variable.Variable, error) {
	if src, ok := t.derived(name); ok {
		return src.Variable(), nil
	}
	return t.ValueTable.Variable(name)
}

func (t *Table) VariableValueSource(name string) (storage.VariableValueSource, error) {
	if src, ok := t.derived(name); ok {
		return src, nil
	}
	return t.ValueTable.VariableValueSource(name)
}

func (t *Table) VariableValueSources() []storage.VariableValueSource {
	out := t.ValueTable.VariableValueSources()
	for _, src := range t.sources {
		out = append(out, src)
	}
	return out
}

func (t *Table) ValueSet(ctx context.Context, e entity.Entity) (storage.ValueSet, error) {
	vs, err := t.ValueTable.ValueSet(ctx, e)
	if err != nil {
		return vs, err
	}
	vs.Table = t
	return vs, nil
}

func (t *Table) ValueSets(ctx context.Context) (storage.ValueSetIterator, error) {
	it, err := t.ValueTable.ValueSets(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewMappedIterator(it, func(vs storage.ValueSet) (storage.ValueSet, error) {
		vs.Table = t
		return vs, nil
	}), nil
}

// ParseVariable reads a derived variable definition of the form
// "name[:type]=expression" for entities of entityType. The type defaults to text.
func ParseVariable(def, entityType string) (*variable.Variable, error) {
	head, expression, ok := strings.Cut(def, "=")
	expression = strings.TrimSpace(expression)
	if !ok || expression == "" {
		return nil, fmt.Errorf("%w: derived variable '%s' must be written name[:type]=expression", storage.ErrInvalidArgument, def)
	}

	name, typeName, typed := strings.Cut(strings.TrimSpace(head), ":")
	valueType := value.Text
	if typed {
		t, err := value.ForName(strings.TrimSpace(typeName))
		if err != nil {
			return nil, fmt.Errorf("%w: derived variable '%s': %v", storage.ErrInvalidArgument, def, err)
		}
		valueType = t
	}

	v, err := variable.NewBuilder(strings.TrimSpace(name), valueType, entityType).
		AddAttribute(variable.NewAttribute(ScriptAttribute, expression)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}
	return v, nil
}
