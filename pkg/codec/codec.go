// Package codec serialises variables and value sets to JSON and YAML. Decoding a
// document produced by the encoder yields equal variables.
package codec

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/language"
	"sigs.k8s.io/yaml"

	"github.com/datavirt/datavirt/pkg/value"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Attribute is the serialised form of [variable.Attribute].
type Attribute struct {
	Name   string `json:"name"`
	Locale string `json:"locale,omitempty"`
	// ValueType is omitted for text attributes.
	ValueType string `json:"valueType,omitempty"`
	Value     string `json:"value"`
}

// Category is the serialised form of [variable.Category].
type Category struct {
	Name       string      `json:"name"`
	Code       string      `json:"code,omitempty"`
	Missing    bool        `json:"missing,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Variable is the serialised form of [variable.Variable].
type Variable struct {
	Name                 string      `json:"name"`
	ValueType            string      `json:"valueType"`
	EntityType           string      `json:"entityType"`
	Repeatable           bool        `json:"repeatable,omitempty"`
	OccurrenceGroup      string      `json:"occurrenceGroup,omitempty"`
	Unit                 string      `json:"unit,omitempty"`
	MimeType             string      `json:"mimeType,omitempty"`
	ReferencedEntityType string      `json:"referencedEntityType,omitempty"`
	Index                int         `json:"index,omitempty"`
	Attributes           []Attribute `json:"attributes,omitempty"`
	Categories           []Category  `json:"categories,omitempty"`
}

// Table is the serialised dictionary of a value table.
type Table struct {
	Name       string     `json:"name"`
	EntityType string     `json:"entityType"`
	Variables  []Variable `json:"variables"`
}

// ValueSet holds the canonical string form of the values of one entity. Null values
// are omitted.
type ValueSet struct {
	Identifier string            `json:"identifier"`
	Values     map[string]string `json:"values,omitempty"`
}

func fromAttributes(attrs variable.Attributes) []Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = Attribute{Name: a.Name, Value: a.Value.String()}
		if a.IsLocalised() {
			out[i].Locale = a.Locale.String()
		}
		if t := a.Value.Type(); t != nil && t != value.Text {
			out[i].ValueType = t.Name()
		}
	}
	return out
}

func (a Attribute) attribute() (variable.Attribute, error) {
	t := value.Text
	if a.ValueType != "" {
		var err error
		if t, err = value.ForName(a.ValueType); err != nil {
			return variable.Attribute{}, fmt.Errorf("attribute '%s': %w", a.Name, err)
		}
	}
	v, err := t.Parse(a.Value)
	if err != nil {
		return variable.Attribute{}, fmt.Errorf("attribute '%s': %w", a.Name, err)
	}

	out := variable.Attribute{Name: a.Name, Value: v}
	if a.Locale != "" {
		if out.Locale, err = language.Parse(a.Locale); err != nil {
			return variable.Attribute{}, fmt.Errorf("attribute '%s': %w", a.Name, err)
		}
	}
	return out, nil
}

func toAttributes(in []Attribute) ([]variable.Attribute, error) {
	out := make([]variable.Attribute, 0, len(in))
	for _, a := range in {
		attr, err := a.attribute()
		if err != nil {
			return nil, err
		}
		out = append(out, attr)
	}
	return out, nil
}

// FromVariable converts v into its serialised form.
func FromVariable(v *variable.Variable) Variable {
	out := Variable{
		Name:                 v.Name(),
		ValueType:            v.ValueType().Name(),
		EntityType:           v.EntityType(),
		Repeatable:           v.IsRepeatable(),
		OccurrenceGroup:      v.OccurrenceGroup(),
		Unit:                 v.Unit(),
		MimeType:             v.MimeType(),
		ReferencedEntityType: v.ReferencedEntityType(),
		Index:                v.Index(),
		Attributes:           fromAttributes(v.Attributes()),
	}
	for _, c := range v.Categories() {
		out.Categories = append(out.Categories, Category{
			Name:       c.Name(),
			Code:       c.Code(),
			Missing:    c.IsMissing(),
			Attributes: fromAttributes(c.Attributes()),
		})
	}
	return out
}

// Variable builds the variable described by d.
func (d Variable) Variable() (*variable.Variable, error) {
	t, err := value.ForName(d.ValueType)
	if err != nil {
		return nil, fmt.Errorf("variable '%s': %w", d.Name, err)
	}

	b := variable.NewBuilder(d.Name, t, d.EntityType).
		Unit(d.Unit).
		MimeType(d.MimeType).
		ReferencedEntityType(d.ReferencedEntityType).
		Index(d.Index)
	if d.Repeatable {
		b.Repeatable(d.OccurrenceGroup)
	}

	attrs, err := toAttributes(d.Attributes)
	if err != nil {
		return nil, fmt.Errorf("variable '%s': %w", d.Name, err)
	}
	b.AddAttribute(attrs...)

	for _, c := range d.Categories {
		attrs, err := toAttributes(c.Attributes)
		if err != nil {
			return nil, fmt.Errorf("variable '%s': category '%s': %w", d.Name, c.Name, err)
		}
		category, err := variable.NewCategoryBuilder(c.Name).
			Code(c.Code).
			Missing(c.Missing).
			AddAttribute(attrs...).
			Build()
		if err != nil {
			return nil, fmt.Errorf("variable '%s': %w", d.Name, err)
		}
		b.AddCategory(category)
	}
	return b.Build()
}

// MarshalVariable encodes v as JSON.
func MarshalVariable(v *variable.Variable) ([]byte, error) {
	return json.Marshal(FromVariable(v))
}

// UnmarshalVariable decodes a JSON or YAML variable.
func UnmarshalVariable(data []byte) (*variable.Variable, error) {
	var d Variable
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode variable: %w", err)
	}
	return d.Variable()
}

// FromVariables converts a table dictionary into its serialised form.
func FromVariables(table, entityType string, vars []*variable.Variable) Table {
	out := Table{Name: table, EntityType: entityType, Variables: make([]Variable, len(vars))}
	for i, v := range vars {
		out.Variables[i] = FromVariable(v)
	}
	return out
}

// BuildVariables builds the variables of the dictionary.
func (t Table) BuildVariables() ([]*variable.Variable, error) {
	out := make([]*variable.Variable, 0, len(t.Variables))
	for _, d := range t.Variables {
		if d.EntityType == "" {
			d.EntityType = t.EntityType
		}
		v, err := d.Variable()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MarshalTableYAML encodes a table dictionary as YAML.
func MarshalTableYAML(t Table) ([]byte, error) {
	return yaml.Marshal(t)
}

// MarshalTableJSON encodes a table dictionary as indented JSON.
func MarshalTableJSON(t Table) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// UnmarshalTable decodes a JSON or YAML table dictionary.
func UnmarshalTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("decode table: %w", err)
	}
	return t, nil
}

// NewValueSet serialises the values of one entity. vars and values are parallel.
func NewValueSet(identifier string, vars []*variable.Variable, values []value.Value) ValueSet {
	vs := ValueSet{Identifier: identifier, Values: map[string]string{}}
	for i, v := range vars {
		if values[i].IsNull() {
			continue
		}
		vs.Values[v.Name()] = values[i].String()
	}
	return vs
}

// Decode parses the values of vs for vars. Variables without a value get their null
// value.
func (vs ValueSet) Decode(vars []*variable.Variable) ([]value.Value, error) {
	out := make([]value.Value, len(vars))
	for i, v := range vars {
		s, ok := vs.Values[v.Name()]
		if !ok {
			out[i] = v.NullValue()
			continue
		}
		var err error
		if v.IsRepeatable() {
			out[i], err = v.ValueType().ParseSequence(s)
		} else {
			out[i], err = v.ValueType().Parse(s)
		}
		if err != nil {
			return nil, fmt.Errorf("value of '%s' for '%s': %w", v.Name(), vs.Identifier, err)
		}
	}
	return out, nil
}
