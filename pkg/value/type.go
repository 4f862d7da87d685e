package value

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Codec is the set of functions a value type is made of. Payloads handed to Format and
// Compare are always ones previously produced by Parse or Coerce.
type Codec struct {
	// Parse converts the canonical string form into a payload.
	Parse func(string) (any, error)

	// Coerce converts a native Go value into a payload. Strings are never passed to Coerce.
	Coerce func(any) (any, error)

	// Format returns the canonical string form of a payload.
	Format func(any) string

	// Compare orders two payloads.
	Compare func(a, b any) int

	// BlankIsNull makes Parse("") produce the null value instead of calling Parse.
	BlankIsNull bool

	// Numeric and Temporal are informational flags used by backends mapping column types.
	Numeric  bool
	Temporal bool
}

// Type is a value type capability. Types are compared by identity; use the built-in
// variables or ForName to obtain them.
type Type struct {
	name  string
	codec Codec
}

// NewType creates a value type. It is not visible through ForName until registered.
func NewType(name string, codec Codec) *Type {
	if codec.Parse == nil || codec.Format == nil || codec.Compare == nil {
		panic(fmt.Sprintf("value type %q requires Parse, Format and Compare", name))
	}
	return &Type{name: name, codec: codec}
}

// Name returns the registered name of the type (e.g. "integer").
func (t *Type) Name() string {
	return t.name
}

func (t *Type) String() string {
	return t.name
}

// IsNumeric reports whether values of this type are numbers.
func (t *Type) IsNumeric() bool {
	return t.codec.Numeric
}

// IsTemporal reports whether values of this type are dates or date-times.
func (t *Type) IsTemporal() bool {
	return t.codec.Temporal
}

// NullValue returns the scalar null value of this type.
func (t *Type) NullValue() Value {
	return Value{typ: t, null: true}
}

// NullSequence returns the null sequence value of this type.
func (t *Type) NullSequence() Value {
	return Value{typ: t, null: true, seq: true}
}

// EmptySequence returns a non-null sequence without elements.
func (t *Type) EmptySequence() Value {
	return Value{typ: t, seq: true, elems: []Value{}}
}

// Parse converts the canonical string form of a scalar into a Value.
func (t *Type) Parse(s string) (Value, error) {
	if s == "" && t.codec.BlankIsNull {
		return t.NullValue(), nil
	}
	payload, err := t.codec.Parse(s)
	if err != nil {
		return Value{}, conversionError(t, s, err)
	}
	return Value{typ: t, payload: payload}, nil
}

// ValueOf converts a native Go value into a Value of this type. A nil input yields
// the null value; a Value input must already be of this type.
func (t *Type) ValueOf(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return t.NullValue(), nil
	case Value:
		if v.typ != t {
			return Value{}, conversionError(t, v.String(), fmt.Errorf("value is of type %s", v.typeName()))
		}
		return v, nil
	case string:
		return t.Parse(v)
	}

	if t.codec.Coerce == nil {
		return Value{}, conversionError(t, v, nil)
	}
	payload, err := t.codec.Coerce(v)
	if err != nil {
		return Value{}, conversionError(t, v, err)
	}
	return Value{typ: t, payload: payload}, nil
}

// Sequence builds a sequence value from native elements, each converted with ValueOf.
func (t *Type) Sequence(elems ...any) (Value, error) {
	values := make([]Value, 0, len(elems))
	for _, e := range elems {
		v, err := t.ValueOf(e)
		if err != nil {
			return Value{}, err
		}
		if v.seq {
			return Value{}, invalidAccessError("nest", v)
		}
		values = append(values, v)
	}
	return Value{typ: t, seq: true, elems: values}, nil
}

// SequenceOf builds a sequence value from already typed scalar elements.
func (t *Type) SequenceOf(elems []Value) (Value, error) {
	values := make([]Value, len(elems))
	for i, e := range elems {
		if e.typ != t {
			return Value{}, conversionError(t, e.String(), fmt.Errorf("element is of type %s", e.typeName()))
		}
		if e.seq {
			return Value{}, invalidAccessError("nest", e)
		}
		values[i] = e
	}
	return Value{typ: t, seq: true, elems: values}, nil
}

// ParseSequence is the inverse of the String form of a sequence value.
func (t *Type) ParseSequence(s string) (Value, error) {
	fields, err := splitSequence(s)
	if err != nil {
		return Value{}, conversionError(t, s, err)
	}
	values := make([]Value, 0, len(fields))
	for _, f := range fields {
		if !f.quoted && f.text == "" {
			values = append(values, t.NullValue())
			continue
		}
		v, err := t.Parse(f.text)
		if err != nil {
			return Value{}, err
		}
		values = append(values, v)
	}
	return Value{typ: t, seq: true, elems: values}, nil
}

var registry = struct {
	sync.RWMutex
	types map[string]*Type
}{types: map[string]*Type{}}

// Register makes a type resolvable by ForName. Names are case-insensitive.
func Register(t *Type) error {
	key := strings.ToLower(t.name)

	registry.Lock()
	defer registry.Unlock()

	if existing, ok := registry.types[key]; ok && existing != t {
		return fmt.Errorf("value type %q already registered", t.name)
	}
	registry.types[key] = t
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(t *Type) *Type {
	if err := Register(t); err != nil {
		panic(err)
	}
	return t
}

// ForName resolves a registered value type by name, ignoring case.
func ForName(name string) (*Type, error) {
	registry.RLock()
	defer registry.RUnlock()

	t, ok := registry.types[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownType)
	}
	return t, nil
}

// Types returns the registered types sorted by name.
func Types() []*Type {
	registry.RLock()
	defer registry.RUnlock()

	types := make([]*Type, 0, len(registry.types))
	for _, t := range registry.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].name < types[j].name })
	return types
}
