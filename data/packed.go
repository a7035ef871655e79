package data

import (
	"encoding/binary"
	"math"

	"github.com/drpcorg/ptree/schema"
)

// A Layout gives each fixed-size field an offset inside a packed record.
// Bools take one byte, 64-bit numerics eight, little-endian. Strings have
// no fixed size and cannot be packed.
type PackedField struct {
	ID   string
	Type schema.ScalarType
	Off  int
}

type Layout struct {
	Fields []PackedField
	Size   int
}

func scalarSize(t schema.ScalarType) int {
	switch t {
	case schema.Bool:
		return 1
	case schema.Int64, schema.Uint64, schema.Float64:
		return 8
	}
	return 0
}

// LayoutOf builds the record layout for a list of scalar grammar fields.
func LayoutOf(fields []*schema.Node) (*Layout, error) {
	l := &Layout{}
	for _, f := range fields {
		if f.Kind != schema.Scalar {
			return nil, ErrNotPackable
		}
		size := scalarSize(f.Type)
		if size == 0 {
			return nil, ErrNotPackable
		}
		l.Fields = append(l.Fields, PackedField{
			ID:   schema.NormalizeID(f.Name),
			Type: f.Type,
			Off:  l.Size,
		})
		l.Size += size
	}
	return l, nil
}

// ScalarLayout is the single-cell layout used by packed arrays of scalars.
func ScalarLayout(t schema.ScalarType) (*Layout, error) {
	size := scalarSize(t)
	if size == 0 {
		return nil, ErrNotPackable
	}
	return &Layout{Fields: []PackedField{{Type: t}}, Size: size}, nil
}

// Pack serializes the layout's fields of v into a fresh record.
func (l *Layout) Pack(v *Struct) ([]byte, error) {
	rec := make([]byte, l.Size)
	for _, f := range l.Fields {
		s, ok := v.Fields[f.ID].(*Scalar)
		if !ok || s.Type != f.Type {
			return nil, ErrTypeMismatch
		}
		putScalar(rec[f.Off:], s)
	}
	return rec, nil
}

// Unpack is the inverse of Pack.
func (l *Layout) Unpack(rec []byte) *Struct {
	v := NewStruct()
	for _, f := range l.Fields {
		v.Fields[f.ID] = takeScalar(rec[f.Off:], f.Type)
	}
	return v
}

func (l *Layout) packScalar(s *Scalar) ([]byte, error) {
	if s.Type != l.Fields[0].Type {
		return nil, ErrTypeMismatch
	}
	rec := make([]byte, l.Size)
	putScalar(rec, s)
	return rec, nil
}

func (l *Layout) unpackScalar(rec []byte) *Scalar {
	return takeScalar(rec, l.Fields[0].Type)
}

func putScalar(into []byte, s *Scalar) {
	switch s.Type {
	case schema.Bool:
		if s.Boo {
			into[0] = 1
		} else {
			into[0] = 0
		}
	case schema.Int64:
		binary.LittleEndian.PutUint64(into, uint64(s.Int))
	case schema.Uint64:
		binary.LittleEndian.PutUint64(into, s.Uint)
	case schema.Float64:
		binary.LittleEndian.PutUint64(into, math.Float64bits(s.Flo))
	}
}

func takeScalar(rec []byte, t schema.ScalarType) *Scalar {
	s := &Scalar{Type: t}
	switch t {
	case schema.Bool:
		s.Boo = rec[0] != 0
	case schema.Int64:
		s.Int = int64(binary.LittleEndian.Uint64(rec))
	case schema.Uint64:
		s.Uint = binary.LittleEndian.Uint64(rec)
	case schema.Float64:
		s.Flo = math.Float64frombits(binary.LittleEndian.Uint64(rec))
	}
	return s
}
