// Package variable holds the immutable schema of a column: its value type, entity
// type, repeatability, attributes and categories.
package variable

import (
	"errors"
	"fmt"
	"strings"

	"github.com/datavirt/datavirt/pkg/value"
)

// ErrInvalidVariable is returned when a builder cannot produce a valid Variable or Category.
var ErrInvalidVariable = errors.New("invalid variable")

// Common attribute names.
const (
	LabelAttribute       = "label"
	DescriptionAttribute = "description"
)

// Variable describes one column of a value table. Variables are built with a Builder
// and never change afterwards.
type Variable struct {
	name                 string
	entityType           string
	valueType            *value.Type
	repeatable           bool
	occurrenceGroup      string
	unit                 string
	mimeType             string
	referencedEntityType string
	index                int
	attributes           Attributes
	categories           []Category
}

func (v *Variable) Name() string { return v.name }

func (v *Variable) EntityType() string { return v.entityType }

func (v *Variable) ValueType() *value.Type { return v.valueType }

func (v *Variable) IsRepeatable() bool { return v.repeatable }

// OccurrenceGroup groups sibling repeatable variables. It is always set for repeatable variables.
func (v *Variable) OccurrenceGroup() string { return v.occurrenceGroup }

func (v *Variable) Unit() string { return v.unit }

func (v *Variable) MimeType() string { return v.mimeType }

// ReferencedEntityType is the entity type identified by the values of this variable, if any.
func (v *Variable) ReferencedEntityType() string { return v.referencedEntityType }

// Index is the position of the variable in its table as reported by the backend.
func (v *Variable) Index() int { return v.index }

func (v *Variable) Attributes() Attributes { return v.attributes }

// Categories returns the categories in insertion order.
func (v *Variable) Categories() []Category {
	out := make([]Category, len(v.categories))
	copy(out, v.categories)
	return out
}

func (v *Variable) HasCategories() bool { return len(v.categories) > 0 }

// Category looks a category up by name.
func (v *Variable) Category(name string) (Category, bool) {
	for _, c := range v.categories {
		if c.name == name {
			return c, true
		}
	}
	return Category{}, false
}

// IsForEntityType reports whether the variable applies to entities of type entityType.
func (v *Variable) IsForEntityType(entityType string) bool {
	return v.entityType == entityType
}

// NullValue is the value reported for an absent cell: the null sequence for repeatable
// variables and the null scalar otherwise.
func (v *Variable) NullValue() value.Value {
	if v.repeatable {
		return v.valueType.NullSequence()
	}
	return v.valueType.NullValue()
}

// IsMissingValue reports whether val is null or matches a category flagged as missing.
func (v *Variable) IsMissingValue(val value.Value) bool {
	if val.IsNull() {
		return true
	}
	if val.IsSequence() {
		elems, _ := val.AsSequence()
		for _, e := range elems {
			if !v.IsMissingValue(e) {
				return false
			}
		}
		return true
	}
	s := val.String()
	for _, c := range v.categories {
		if c.missing && (c.name == s || (c.code != "" && c.code == s)) {
			return true
		}
	}
	return false
}

// Builder accumulates the parts of a Variable. A Builder is not safe for concurrent use.
type Builder struct {
	v          Variable
	attributes attributeSet
	categories []Category
}

// NewBuilder starts a variable. Name and value type are validated by Build.
func NewBuilder(name string, valueType *value.Type, entityType string) *Builder {
	return &Builder{v: Variable{name: name, valueType: valueType, entityType: entityType}}
}

// From starts a builder initialised with the content of v.
func From(v *Variable) *Builder {
	b := &Builder{v: *v}
	b.v.attributes = nil
	b.v.categories = nil
	b.attributes.add(v.attributes...)
	b.categories = append(b.categories, v.categories...)
	return b
}

// Name renames the variable being built.
func (b *Builder) Name(name string) *Builder {
	b.v.name = name
	return b
}

func (b *Builder) ValueType(t *value.Type) *Builder {
	b.v.valueType = t
	return b
}

func (b *Builder) EntityType(entityType string) *Builder {
	b.v.entityType = entityType
	return b
}

// Repeatable marks the variable repeatable within occurrenceGroup.
func (b *Builder) Repeatable(occurrenceGroup string) *Builder {
	b.v.repeatable = true
	b.v.occurrenceGroup = occurrenceGroup
	return b
}

func (b *Builder) Unit(unit string) *Builder {
	b.v.unit = unit
	return b
}

func (b *Builder) MimeType(mimeType string) *Builder {
	b.v.mimeType = mimeType
	return b
}

func (b *Builder) ReferencedEntityType(entityType string) *Builder {
	b.v.referencedEntityType = entityType
	return b
}

func (b *Builder) Index(index int) *Builder {
	b.v.index = index
	return b
}

// AddAttribute adds attributes. An attribute with the same name and locale as an
// existing one replaces it; blank attributes are ignored.
func (b *Builder) AddAttribute(attrs ...Attribute) *Builder {
	b.attributes.add(attrs...)
	return b
}

// AddCategory appends categories. A category with the name of an existing one replaces it in place.
func (b *Builder) AddCategory(categories ...Category) *Builder {
	for _, c := range categories {
		replaced := false
		for i := range b.categories {
			if b.categories[i].name == c.name {
				b.categories[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			b.categories = append(b.categories, c)
		}
	}
	return b
}

// AddCategoryNames appends plain categories with only a name.
func (b *Builder) AddCategoryNames(names ...string) *Builder {
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		b.AddCategory(Category{name: name})
	}
	return b
}

// Build validates the accumulated state and returns the immutable Variable.
func (b *Builder) Build() (*Variable, error) {
	if strings.TrimSpace(b.v.name) == "" {
		return nil, fmt.Errorf("variable name is required: %w", ErrInvalidVariable)
	}
	if b.v.valueType == nil {
		return nil, fmt.Errorf("variable %q: value type is required: %w", b.v.name, ErrInvalidVariable)
	}
	if b.v.repeatable && strings.TrimSpace(b.v.occurrenceGroup) == "" {
		return nil, fmt.Errorf("variable %q: repeatable variable requires an occurrence group: %w", b.v.name, ErrInvalidVariable)
	}

	v := b.v
	v.attributes = b.attributes.freeze()
	if len(b.categories) > 0 {
		v.categories = make([]Category, len(b.categories))
		copy(v.categories, b.categories)
	}
	return &v, nil
}

// MustBuild is like Build but panics on error. Intended for tests and static definitions.
func (b *Builder) MustBuild() *Variable {
	v, err := b.Build()
	if err != nil {
		panic(err)
	}
	return v
}

// Equal reports whether both variables carry the same content.
func (v *Variable) Equal(o *Variable) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.name != o.name || v.entityType != o.entityType || v.valueType != o.valueType ||
		v.repeatable != o.repeatable || v.occurrenceGroup != o.occurrenceGroup ||
		v.unit != o.unit || v.mimeType != o.mimeType ||
		v.referencedEntityType != o.referencedEntityType || v.index != o.index {
		return false
	}
	if !v.attributes.Equal(o.attributes) || len(v.categories) != len(o.categories) {
		return false
	}
	for i := range v.categories {
		if !v.categories[i].Equal(o.categories[i]) {
			return false
		}
	}
	return true
}
