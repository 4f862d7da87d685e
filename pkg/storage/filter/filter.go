// Package filter selects variables with include and exclude rules.
package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/datavirt/datavirt/pkg/storage"
	"github.com/datavirt/datavirt/pkg/variable"
)

// Filter reports whether a variable matches.
type Filter interface {
	Match(v *variable.Variable) bool
}

// Func adapts a function to Filter.
type Func func(v *variable.Variable) bool

func (f Func) Match(v *variable.Variable) bool { return f(v) }

// ValueType matches the variables whose value type is named name, ignoring case.
func ValueType(name string) Filter {
	return Func(func(v *variable.Variable) bool {
		return strings.EqualFold(v.ValueType().Name(), name)
	})
}

// EntityType matches the variables of entityType.
func EntityType(entityType string) Filter {
	return Func(func(v *variable.Variable) bool {
		return v.IsForEntityType(entityType)
	})
}

// Attribute matches the variables carrying an attribute named name. A non-empty text
// must equal the value of one of its localisations.
func Attribute(name, text string) Filter {
	return Func(func(v *variable.Variable) bool {
		for _, a := range v.Attributes().Named(name) {
			if text == "" || a.Value.String() == text {
				return true
			}
		}
		return false
	})
}

// Name matches the variables whose name matches a shell pattern, as in path.Match.
func Name(pattern string) (Filter, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: name pattern %q: %v", storage.ErrInvalidArgument, pattern, err)
	}
	return Func(func(v *variable.Variable) bool {
		ok, _ := path.Match(pattern, v.Name())
		return ok
	}), nil
}

// Kind of a rule.
type Kind int

const (
	Include Kind = iota
	Exclude
)

func (k Kind) String() string {
	if k == Exclude {
		return "exclude"
	}
	return "include"
}

// Rule applies a filter as an include or an exclude.
type Rule struct {
	Kind   Kind
	Filter Filter
}

// Chain evaluates rules in order. A variable starts out of the selection when the first
// rule is an include and in it otherwise; an include rule brings matching variables in
// and an exclude rule takes matching variables out.
type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// Add appends a rule and returns the chain.
func (c *Chain) Add(kind Kind, f Filter) *Chain {
	c.rules = append(c.rules, Rule{Kind: kind, Filter: f})
	return c
}

// Match runs v through the chain. An empty chain selects everything.
func (c *Chain) Match(v *variable.Variable) bool {
	in := len(c.rules) == 0 || c.rules[0].Kind == Exclude
	for _, r := range c.rules {
		switch {
		case r.Kind == Include && !in:
			in = r.Filter.Match(v)
		case r.Kind == Exclude && in:
			in = !r.Filter.Match(v)
		}
	}
	return in
}

// Variables returns the variables f selects, keeping their order.
func Variables(f Filter, vs []*variable.Variable) []*variable.Variable {
	var out []*variable.Variable
	for _, v := range vs {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	return out
}

// Sources returns the value sources whose variable f selects.
func Sources(f Filter, sources []storage.VariableValueSource) []storage.VariableValueSource {
	var out []storage.VariableValueSource
	for _, src := range sources {
		if f.Match(src.Variable()) {
			out = append(out, src)
		}
	}
	return out
}

// Parse reads the textual form of a filter:
//
//	valueType=<name>
//	entityType=<type>
//	attribute=<name>[:<text>]
//	name=<pattern>
func Parse(s string) (Filter, error) {
	key, arg, ok := strings.Cut(s, "=")
	if !ok || arg == "" {
		return nil, fmt.Errorf("%w: filter %q is not key=value", storage.ErrInvalidArgument, s)
	}
	switch strings.ToLower(key) {
	case "valuetype":
		return ValueType(arg), nil
	case "entitytype":
		return EntityType(arg), nil
	case "attribute":
		name, text, _ := strings.Cut(arg, ":")
		return Attribute(name, text), nil
	case "name":
		return Name(arg)
	}
	return nil, fmt.Errorf("%w: unknown filter %q", storage.ErrInvalidArgument, key)
}

// ParseChain builds a chain from textual include and exclude filters, includes first.
func ParseChain(includes, excludes []string) (*Chain, error) {
	c := NewChain()
	for _, group := range []struct {
		kind  Kind
		specs []string
	}{{Include, includes}, {Exclude, excludes}} {
		for _, s := range group.specs {
			f, err := Parse(s)
			if err != nil {
				return nil, err
			}
			c.Add(group.kind, f)
		}
	}
	return c, nil
}
