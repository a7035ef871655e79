package data

import (
	"github.com/drpcorg/ptree/schema"
)

// NewArray allocates empty storage for an array node.
func NewArray(n *schema.Node) (Value, error) {
	if !n.CType {
		return &GenericArray{}, nil
	}
	l, scalar, err := arrayLayout(n)
	if err != nil {
		return nil, err
	}
	return &PackedArray{Layout: l, scalar: scalar}, nil
}

func arrayLayout(n *schema.Node) (l *Layout, scalar bool, err error) {
	if n.Elem.Kind == schema.Scalar {
		l, err = ScalarLayout(n.Elem.Type)
		return l, true, err
	}
	if n.Elem.Kind != schema.Struct {
		return nil, false, ErrNotPackable
	}
	l, err = LayoutOf(n.Elem.Fields)
	return l, false, err
}

func ArrayLen(v Value) int {
	switch a := v.(type) {
	case *PackedArray:
		return a.Len()
	case *GenericArray:
		return len(a.Elems)
	}
	return 0
}

// ArrayAt returns the element at 0-based index i.
func ArrayAt(v Value, i int) (Value, error) {
	switch a := v.(type) {
	case *PackedArray:
		if i < 0 || i >= a.Len() {
			return nil, ErrIndexRange
		}
		return a.At(i), nil
	case *GenericArray:
		if i < 0 || i >= len(a.Elems) {
			return nil, ErrIndexRange
		}
		return a.Elems[i], nil
	}
	return nil, ErrTypeMismatch
}

// ArraySet overwrites the element at 0-based index i in place.
func ArraySet(v Value, i int, elem Value) error {
	switch a := v.(type) {
	case *PackedArray:
		if i < 0 || i >= a.Len() {
			return ErrIndexRange
		}
		return a.SetAt(i, elem)
	case *GenericArray:
		if i < 0 || i >= len(a.Elems) {
			return ErrIndexRange
		}
		a.Elems[i] = elem
		return nil
	}
	return ErrTypeMismatch
}

// ArrayAppend adds elems at the end. Packed arrays are not resizable, so
// the result is a freshly allocated array the caller must reinstall into
// the parent; generic arrays grow in place and return themselves.
func ArrayAppend(v Value, elems []Value) (Value, error) {
	switch a := v.(type) {
	case *PackedArray:
		fresh := &PackedArray{
			Layout: a.Layout,
			scalar: a.scalar,
			Data:   make([]byte, 0, len(a.Data)+len(elems)*a.Layout.Size),
		}
		fresh.Data = append(fresh.Data, a.Data...)
		for _, e := range elems {
			rec, err := a.pack(e)
			if err != nil {
				return nil, err
			}
			fresh.Data = append(fresh.Data, rec...)
		}
		return fresh, nil
	case *GenericArray:
		a.Elems = append(a.Elems, elems...)
		return a, nil
	}
	return nil, ErrTypeMismatch
}

// ArrayRemoveAt deletes the element at 0-based idx. Packed arrays come
// back as a fresh allocation of size len-1; generic arrays shrink in
// place and return themselves.
func ArrayRemoveAt(v Value, idx int) (Value, error) {
	switch a := v.(type) {
	case *PackedArray:
		if idx < 0 || idx >= a.Len() {
			return nil, ErrIndexRange
		}
		size := a.Layout.Size
		fresh := &PackedArray{
			Layout: a.Layout,
			scalar: a.scalar,
			Data:   make([]byte, 0, len(a.Data)-size),
		}
		fresh.Data = append(fresh.Data, a.Data[:idx*size]...)
		fresh.Data = append(fresh.Data, a.Data[(idx+1)*size:]...)
		return fresh, nil
	case *GenericArray:
		if idx < 0 || idx >= len(a.Elems) {
			return nil, ErrIndexRange
		}
		a.Elems = append(a.Elems[:idx], a.Elems[idx+1:]...)
		return a, nil
	}
	return nil, ErrTypeMismatch
}
