// Package entity defines the row identity of value tables.
package entity

import (
	"strings"
)

// Entity identifies one row: an entity type and an opaque identifier.
// Entities are comparable and can be used as map keys.
type Entity struct {
	Type       string
	Identifier string
}

// New returns the entity (typ, identifier).
func New(typ, identifier string) Entity {
	return Entity{Type: typ, Identifier: identifier}
}

// String returns "type:identifier".
func (e Entity) String() string {
	return e.Type + ":" + e.Identifier
}

// Compare orders entities by identifier first, then by type.
func Compare(a, b Entity) int {
	if c := strings.Compare(a.Identifier, b.Identifier); c != 0 {
		return c
	}
	return strings.Compare(a.Type, b.Type)
}

// Of builds entities of one type from identifiers.
func Of(typ string, identifiers ...string) []Entity {
	out := make([]Entity, len(identifiers))
	for i, id := range identifiers {
		out[i] = New(typ, id)
	}
	return out
}

// Identifiers extracts the identifiers of entities, preserving order.
func Identifiers(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Identifier
	}
	return out
}
