package variable

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/datavirt/datavirt/pkg/value"
)

// Attribute is a named piece of metadata, optionally scoped to a locale.
// The zero language.Tag (language.Und) means the attribute is not localised.
type Attribute struct {
	Name   string
	Locale language.Tag
	Value  value.Value
}

// NewAttribute returns an unlocalised text attribute.
func NewAttribute(name, text string) Attribute {
	v, _ := value.Text.ValueOf(text)
	return Attribute{Name: name, Value: v}
}

// NewLocalisedAttribute returns a text attribute scoped to locale.
func NewLocalisedAttribute(name string, locale language.Tag, text string) Attribute {
	a := NewAttribute(name, text)
	a.Locale = locale
	return a
}

// IsLocalised reports whether the attribute carries a locale.
func (a Attribute) IsLocalised() bool {
	return a.Locale != language.Und
}

func (a Attribute) isBlank() bool {
	return strings.TrimSpace(a.Name) == "" || a.Value.Type() == nil || a.Value.IsNull() || strings.TrimSpace(a.Value.String()) == ""
}

func (a Attribute) key() attributeKey {
	return attributeKey{name: a.Name, locale: a.Locale.String()}
}

// Attributes is an immutable, ordered list of attributes.
type Attributes []Attribute

// Get returns the attribute with the given name and locale.
func (as Attributes) Get(name string, locale language.Tag) (Attribute, bool) {
	key := attributeKey{name: name, locale: locale.String()}
	for _, a := range as {
		if a.key() == key {
			return a, true
		}
	}
	return Attribute{}, false
}

// Has reports whether at least one attribute, whatever its locale, is named name.
func (as Attributes) Has(name string) bool {
	for _, a := range as {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Named returns all localisations of the attribute named name.
func (as Attributes) Named(name string) Attributes {
	var out Attributes
	for _, a := range as {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

type attributeKey struct {
	name   string
	locale string
}

// attributeSet accumulates attributes for a builder. Adding an attribute whose
// (name, locale) is already present replaces the previous one in place; blank
// names or values are dropped.
type attributeSet struct {
	items []Attribute
	index map[attributeKey]int
}

func (s *attributeSet) add(attrs ...Attribute) {
	for _, a := range attrs {
		if a.isBlank() {
			continue
		}
		if s.index == nil {
			s.index = map[attributeKey]int{}
		}
		key := a.key()
		if i, ok := s.index[key]; ok {
			s.items[i] = a
			continue
		}
		s.index[key] = len(s.items)
		s.items = append(s.items, a)
	}
}

func (s *attributeSet) freeze() Attributes {
	if len(s.items) == 0 {
		return nil
	}
	out := make(Attributes, len(s.items))
	copy(out, s.items)
	return out
}

// Equal reports whether both attributes have the same name, locale and value.
func (a Attribute) Equal(o Attribute) bool {
	return a.Name == o.Name && a.Locale == o.Locale && a.Value.Equal(o.Value)
}

// Equal compares attribute lists in order.
func (as Attributes) Equal(o Attributes) bool {
	if len(as) != len(o) {
		return false
	}
	for i := range as {
		if !as[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
