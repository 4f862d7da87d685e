package value

import (
	"fmt"
	"strings"
)

// Value is an immutable typed datum: a scalar, a sequence of scalars, or the null of either.
// The type of a sequence is the type of its elements.
type Value struct {
	typ     *Type
	null    bool
	seq     bool
	payload any
	elems   []Value
}

// Type returns the value type. It is nil only for the zero Value.
func (v Value) Type() *Type {
	return v.typ
}

// IsNull reports whether v is the null value or the null sequence.
func (v Value) IsNull() bool {
	return v.null
}

// IsSequence reports whether v holds a sequence (possibly null or empty).
func (v Value) IsSequence() bool {
	return v.seq
}

// Native returns the scalar payload, or nil for a null value.
func (v Value) Native() (any, error) {
	if v.seq {
		return nil, invalidAccessError("native access", v)
	}
	if v.null {
		return nil, nil
	}
	return v.payload, nil
}

// AsSequence returns the elements of a sequence. The null sequence has no elements.
func (v Value) AsSequence() ([]Value, error) {
	if !v.seq {
		return nil, invalidAccessError("sequence access", v)
	}
	if v.null {
		return nil, nil
	}
	out := make([]Value, len(v.elems))
	copy(out, v.elems)
	return out, nil
}

// Len is the number of elements of a sequence, 1 for a non-null scalar and 0 for nulls.
func (v Value) Len() int {
	switch {
	case v.null:
		return 0
	case v.seq:
		return len(v.elems)
	default:
		return 1
	}
}

// String returns the canonical string form. Nulls format as the empty string; sequences
// format as a comma separated record where text elements are always quoted. A sequence
// ending with a null element gets a trailing comma so that [null] and [] differ.
func (v Value) String() string {
	if v.typ == nil || v.null {
		return ""
	}
	if !v.seq {
		return v.typ.codec.Format(v.payload)
	}

	var sb strings.Builder
	quote := v.typ == Text
	for i, e := range v.elems {
		if i > 0 {
			sb.WriteByte(',')
		}
		if e.null {
			continue
		}
		s := e.String()
		if quote || needsQuote(s) {
			sb.WriteString(quoteField(s))
		} else {
			sb.WriteString(s)
		}
	}
	if n := len(v.elems); n > 0 && v.elems[n-1].null {
		sb.WriteByte(',')
	}
	return sb.String()
}

// GoString helps test failure output.
func (v Value) GoString() string {
	if v.null {
		return fmt.Sprintf("value.Value{%s null seq=%t}", v.typeName(), v.seq)
	}
	return fmt.Sprintf("value.Value{%s %q seq=%t}", v.typeName(), v.String(), v.seq)
}

// Equal reports whether both values have the same type, shape and content.
func (v Value) Equal(o Value) bool {
	c, err := v.Compare(o)
	return err == nil && c == 0 && v.seq == o.seq && v.null == o.null
}

// Compare orders two values of the same type. Nulls sort first; sequences compare
// element-wise and then by length.
func (v Value) Compare(o Value) (int, error) {
	if v.typ != o.typ || v.typ == nil {
		return 0, fmt.Errorf("%s and %s: %w", v.typeName(), o.typeName(), ErrIncomparable)
	}
	if v.seq != o.seq {
		return 0, fmt.Errorf("sequence and scalar %s: %w", v.typeName(), ErrIncomparable)
	}

	switch {
	case v.null && o.null:
		return 0, nil
	case v.null:
		return -1, nil
	case o.null:
		return 1, nil
	}

	if !v.seq {
		return v.typ.codec.Compare(v.payload, o.payload), nil
	}

	for i := 0; i < len(v.elems) && i < len(o.elems); i++ {
		c, err := v.elems[i].Compare(o.elems[i])
		if err != nil || c != 0 {
			return c, err
		}
	}
	switch {
	case len(v.elems) < len(o.elems):
		return -1, nil
	case len(v.elems) > len(o.elems):
		return 1, nil
	}
	return 0, nil
}

func (v Value) typeName() string {
	if v.typ == nil {
		return "<untyped>"
	}
	return v.typ.name
}

type sequenceField struct {
	text   string
	quoted bool
}

func needsQuote(s string) bool {
	return s == "" || strings.ContainsAny(s, ",\"\r\n")
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// splitSequence tokenizes the sequence string form. Unlike encoding/csv it keeps track
// of quoting so that an empty quoted field ("") is distinguished from a null element.
// A comma ending the string terminates the record and adds no field.
func splitSequence(s string) ([]sequenceField, error) {
	if s == "" {
		return nil, nil
	}

	var fields []sequenceField
	i := 0
	for {
		var f sequenceField
		if i < len(s) && s[i] == '"' {
			f.quoted = true
			i++
			var sb strings.Builder
			for {
				if i >= len(s) {
					return nil, fmt.Errorf("unterminated quoted field")
				}
				if s[i] == '"' {
					if i+1 < len(s) && s[i+1] == '"' {
						sb.WriteByte('"')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteByte(s[i])
				i++
			}
			f.text = sb.String()
			if i < len(s) && s[i] != ',' {
				return nil, fmt.Errorf("unexpected %q after quoted field", s[i])
			}
		} else {
			j := strings.IndexByte(s[i:], ',')
			if j < 0 {
				j = len(s) - i
			}
			f.text = s[i : i+j]
			if strings.ContainsRune(f.text, '"') {
				return nil, fmt.Errorf("bare quote in field %q", f.text)
			}
			i += j
		}
		fields = append(fields, f)

		if i >= len(s) {
			return fields, nil
		}
		// skip the separator
		i++
		if i == len(s) {
			return fields, nil
		}
	}
}
