// Package data holds configuration values and their storage variants.
//
// A value mirrors a schema node: scalars, structs, two array
// representations (packed and generic) and four table representations
// (compact, keyed-packed, string-keyed, generic). The representation is
// chosen by the grammar's storage hints, never by the data itself.
package data

import (
	"errors"

	"github.com/drpcorg/ptree/schema"
)

var (
	ErrNotFound     = errors.New("no such entry")
	ErrExists       = errors.New("already-existing entry")
	ErrTypeMismatch = errors.New("value does not match grammar")
	ErrNotPackable  = errors.New("field has no fixed-size representation")
	ErrIndexRange   = errors.New("array index out of range")
)

type Value interface {
	Clone() Value
}

type Scalar struct {
	Type schema.ScalarType
	Str  string
	Int  int64
	Uint uint64
	Flo  float64
	Boo  bool
}

func (s *Scalar) Clone() Value {
	c := *s
	return &c
}

// Struct keeps fields by normalized identifier.
type Struct struct {
	Fields map[string]Value
}

func NewStruct() *Struct {
	return &Struct{Fields: make(map[string]Value)}
}

func (s *Struct) Get(id string) Value {
	return s.Fields[schema.NormalizeID(id)]
}

func (s *Struct) Set(id string, v Value) {
	s.Fields[schema.NormalizeID(id)] = v
}

func (s *Struct) Clone() Value {
	c := NewStruct()
	for k, v := range s.Fields {
		c.Fields[k] = v.Clone()
	}
	return c
}

// GenericArray is an ordered sequence grown in place.
type GenericArray struct {
	Elems []Value
}

func (a *GenericArray) Clone() Value {
	c := &GenericArray{Elems: make([]Value, len(a.Elems))}
	for i, e := range a.Elems {
		c.Elems[i] = e.Clone()
	}
	return c
}

// PackedArray stores fixed-size elements contiguously. It is never grown
// in place: add and remove allocate a fresh array which the caller
// reinstalls into the parent.
type PackedArray struct {
	Layout *Layout
	// scalar is set when the element grammar is a bare scalar rather
	// than a record; At then yields *Scalar.
	scalar bool
	Data   []byte
}

func (a *PackedArray) Clone() Value {
	c := &PackedArray{Layout: a.Layout, scalar: a.scalar, Data: make([]byte, len(a.Data))}
	copy(c.Data, a.Data)
	return c
}

func (a *PackedArray) Len() int {
	return len(a.Data) / a.Layout.Size
}

func (a *PackedArray) At(i int) Value {
	rec := a.Data[i*a.Layout.Size : (i+1)*a.Layout.Size]
	if a.scalar {
		return a.Layout.unpackScalar(rec)
	}
	return a.Layout.Unpack(rec)
}

func (a *PackedArray) SetAt(i int, v Value) error {
	rec, err := a.pack(v)
	if err != nil {
		return err
	}
	copy(a.Data[i*a.Layout.Size:], rec)
	return nil
}

func (a *PackedArray) pack(v Value) ([]byte, error) {
	if a.scalar {
		s, ok := v.(*Scalar)
		if !ok {
			return nil, ErrTypeMismatch
		}
		return a.Layout.packScalar(s)
	}
	s, ok := v.(*Struct)
	if !ok {
		return nil, ErrTypeMismatch
	}
	return a.Layout.Pack(s)
}

// KeyedTable maps string(packed key record) to the full entry.
type KeyedTable struct {
	Key *Layout
	M   map[string]*Struct
}

func (t *KeyedTable) Clone() Value {
	c := &KeyedTable{Key: t.Key, M: make(map[string]*Struct, len(t.M))}
	for k, v := range t.M {
		c.M[k] = v.Clone().(*Struct)
	}
	return c
}

// StringTable maps the normalized projection of a string key field to the
// full entry.
type StringTable struct {
	KeyField string
	M        map[string]*Struct
}

func (t *StringTable) Clone() Value {
	c := &StringTable{KeyField: t.KeyField, M: make(map[string]*Struct, len(t.M))}
	for k, v := range t.M {
		c.M[k] = v.Clone().(*Struct)
	}
	return c
}

// GenericTable keeps entries in insertion order; key identity is a
// structural scan over the key fields.
type GenericTable struct {
	Entries []*Struct
}

func (t *GenericTable) Clone() Value {
	c := &GenericTable{Entries: make([]*Struct, len(t.Entries))}
	for i, e := range t.Entries {
		c.Entries[i] = e.Clone().(*Struct)
	}
	return c
}

// Equal is grammar-directed structural equality.
func Equal(n *schema.Node, a, b Value) bool {
	switch n.Kind {
	case schema.Scalar:
		x, ok1 := a.(*Scalar)
		y, ok2 := b.(*Scalar)
		return ok1 && ok2 && scalarEqual(x, y)
	case schema.Struct:
		x, ok1 := a.(*Struct)
		y, ok2 := b.(*Struct)
		if !ok1 || !ok2 {
			return false
		}
		for _, f := range n.Fields {
			id := schema.NormalizeID(f.Name)
			fa, fb := x.Fields[id], y.Fields[id]
			if (fa == nil) != (fb == nil) {
				return false
			}
			if fa != nil && !Equal(f, fa, fb) {
				return false
			}
		}
		return true
	case schema.Array:
		la, lb := ArrayLen(a), ArrayLen(b)
		if la != lb {
			return false
		}
		for i := 0; i < la; i++ {
			ea, err1 := ArrayAt(a, i)
			eb, err2 := ArrayAt(b, i)
			if err1 != nil || err2 != nil || !Equal(elemNode(n), ea, eb) {
				return false
			}
		}
		return true
	case schema.Table:
		if TableLen(a) != TableLen(b) {
			return false
		}
		equal := true
		TableIterate(n, a, func(entry *Struct) bool {
			key, err := EntryKey(n, entry)
			if err != nil {
				equal = false
				return false
			}
			other, err := TableLookup(n, b, key)
			if err != nil || !Equal(n.Entry, entry, other) {
				equal = false
				return false
			}
			return true
		})
		return equal
	}
	return false
}

func scalarEqual(a, b *Scalar) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case schema.String:
		return a.Str == b.Str
	case schema.Int64:
		return a.Int == b.Int
	case schema.Uint64:
		return a.Uint == b.Uint
	case schema.Float64:
		return a.Flo == b.Flo
	case schema.Bool:
		return a.Boo == b.Boo
	}
	return false
}

// elemNode wraps the array element grammar so Equal can recurse on it.
func elemNode(n *schema.Node) *schema.Node {
	return n.Elem
}

// EntryKey projects the key fields of a table entry into a fresh struct.
func EntryKey(n *schema.Node, entry *Struct) (*Struct, error) {
	keys, err := n.KeyFields()
	if err != nil {
		return nil, err
	}
	k := NewStruct()
	for _, f := range keys {
		v := entry.Get(f.Name)
		if v == nil {
			return nil, ErrTypeMismatch
		}
		k.Set(f.Name, v)
	}
	return k, nil
}
