// Package schema describes the grammar of a configuration tree.
//
// A grammar node is one of scalar, struct, array or table. Table and array
// nodes carry storage hints that select a concrete in-memory representation
// for the matching data values; see Variant.
package schema

import (
	"errors"
	"strings"
)

type Kind uint8

const (
	Scalar Kind = iota + 1
	Struct
	Array
	Table
)

type ScalarType uint8

const (
	String ScalarType = iota + 1
	Int64
	Uint64
	Float64
	Bool
)

// Variant is the storage representation of a table node.
type Variant uint8

const (
	// VariantCompact is a specialized hash table over packed key and
	// value records.
	VariantCompact Variant = iota + 1
	// VariantString maps a string field projected from the key record.
	VariantString
	// VariantKeyed maps a scalar derived from the packed key record.
	VariantKeyed
	// VariantGeneric is an unordered mapping with structural key equality.
	VariantGeneric
)

var (
	ErrNoSuchField = errors.New("no such field in grammar")
	ErrNotTable    = errors.New("grammar node is not a table")
)

// Node is one grammar node. Which fields are meaningful depends on Kind:
//
//	Scalar: Type
//	Struct: Fields
//	Array:  Elem, CType
//	Table:  Entry, Keys, KeyCType, ValueCType, StringKey
type Node struct {
	Name string
	Kind Kind

	Type ScalarType

	Fields []*Node

	Elem  *Node
	CType bool

	Entry      *Node
	Keys       []string
	KeyCType   bool
	ValueCType bool
	StringKey  string

	index map[string]*Node
}

// Schema is a named grammar.
type Schema struct {
	Name string
	Root *Node
}

// NormalizeID maps a schema identifier to its storage form.
func NormalizeID(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

// Field looks a child field up by normalized identifier. Works on struct
// nodes and, for convenience, on table nodes, where it searches the
// entry's fields.
func (n *Node) Field(id string) *Node {
	fields := n.Fields
	if n.Kind == Table && n.Entry != nil {
		fields = n.Entry.Fields
	}
	if n.index == nil {
		n.index = make(map[string]*Node, len(fields))
		for _, f := range fields {
			n.index[NormalizeID(f.Name)] = f
		}
	}
	return n.index[NormalizeID(id)]
}

// KeyFields returns the entry fields named by the table's key tuple,
// in tuple order.
func (n *Node) KeyFields() ([]*Node, error) {
	if n.Kind != Table {
		return nil, ErrNotTable
	}
	keys := make([]*Node, 0, len(n.Keys))
	for _, k := range n.Keys {
		f := n.Field(k)
		if f == nil {
			return nil, ErrNoSuchField
		}
		keys = append(keys, f)
	}
	return keys, nil
}

// ValueFields returns the entry fields that are not part of the key tuple.
func (n *Node) ValueFields() []*Node {
	if n.Kind != Table || n.Entry == nil {
		return nil
	}
	iskey := make(map[string]bool, len(n.Keys))
	for _, k := range n.Keys {
		iskey[NormalizeID(k)] = true
	}
	vals := make([]*Node, 0, len(n.Entry.Fields))
	for _, f := range n.Entry.Fields {
		if !iskey[NormalizeID(f.Name)] {
			vals = append(vals, f)
		}
	}
	return vals
}

// IsKey reports whether the named entry field belongs to the key tuple.
func (n *Node) IsKey(id string) bool {
	norm := NormalizeID(id)
	for _, k := range n.Keys {
		if NormalizeID(k) == norm {
			return true
		}
	}
	return false
}

// Variant resolves the storage representation of a table node from its
// key/value hints.
func (n *Node) Variant() Variant {
	switch {
	case n.KeyCType && n.ValueCType:
		return VariantCompact
	case n.StringKey != "":
		return VariantString
	case n.KeyCType:
		return VariantKeyed
	default:
		return VariantGeneric
	}
}
