package path

import (
	"fmt"

	"github.com/drpcorg/ptree/data"
	"github.com/drpcorg/ptree/schema"
)

// Getter extracts the sub-value a path points at from a whole
// configuration.
type Getter func(cfg data.Value) (data.Value, error)

// Resolve compiles a getter for the path and returns the sub-grammar the
// getter's result conforms to. Queries are validated against the grammar
// here, once, not per call.
func Resolve(sch *schema.Schema, segs []Segment) (Getter, *schema.Node, error) {
	node := sch.Root
	steps := make([]Getter, 0, len(segs))
	for _, seg := range segs {
		if node.Kind != schema.Struct {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, seg.Name)
		}
		f := node.Field(seg.Name)
		if f == nil {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, seg.Name)
		}
		step, next, err := compileStep(f, seg)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, step)
		node = next
	}
	getter := func(cfg data.Value) (data.Value, error) {
		v := cfg
		var err error
		for _, step := range steps {
			if v, err = step(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
	return getter, node, nil
}

func compileStep(f *schema.Node, seg Segment) (Getter, *schema.Node, error) {
	name := f.Name
	if !seg.HasQuery {
		step := func(v data.Value) (data.Value, error) {
			s, ok := v.(*data.Struct)
			if !ok {
				return nil, data.ErrTypeMismatch
			}
			sub := s.Get(name)
			if sub == nil {
				return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			return sub, nil
		}
		return step, f, nil
	}
	switch f.Kind {
	case schema.Array:
		if seg.Index < 1 {
			return nil, nil, fmt.Errorf("%w: array %q takes an index", ErrMissingKeyField, name)
		}
		idx := seg.Index - 1
		step := func(v data.Value) (data.Value, error) {
			s, ok := v.(*data.Struct)
			if !ok {
				return nil, data.ErrTypeMismatch
			}
			arr := s.Get(name)
			if arr == nil {
				return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			elem, err := data.ArrayAt(arr, idx)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]", ErrNotFound, name, idx+1)
			}
			return elem, nil
		}
		return step, f.Elem, nil
	case schema.Table:
		key, err := QueryKey(f, seg.Query)
		if err != nil {
			return nil, nil, err
		}
		tblNode := f
		step := func(v data.Value) (data.Value, error) {
			s, ok := v.(*data.Struct)
			if !ok {
				return nil, data.ErrTypeMismatch
			}
			tbl := s.Get(name)
			if tbl == nil {
				return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			entry, err := data.TableLookup(tblNode, tbl, key)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			return entry, nil
		}
		return step, f.Entry, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrQueryOnScalar, name)
	}
}

// Commit writes a possibly-copied sub-value back through every copying
// layer above it. Packed storage (compact tables, packed arrays) hands
// out unpacked copies, so a mutation deep in the tree must be repacked
// into each enclosing container on the way up.
type Commit func(updated data.Value) error

// RefGetter is a Getter that also yields the writeback for the returned
// value.
type RefGetter func(cfg data.Value) (data.Value, Commit, error)

type refStep func(v data.Value, commit Commit) (data.Value, Commit, error)

// ResolveRef compiles a mutation-grade getter: the value comes back with
// a Commit that reinstalls it. Used by the mutators to reach a parent
// node; plain reads use Resolve.
func ResolveRef(sch *schema.Schema, segs []Segment) (RefGetter, *schema.Node, error) {
	node := sch.Root
	steps := make([]refStep, 0, len(segs))
	for _, seg := range segs {
		if node.Kind != schema.Struct {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, seg.Name)
		}
		f := node.Field(seg.Name)
		if f == nil {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, seg.Name)
		}
		step, next, err := compileRefStep(f, seg)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, step)
		node = next
	}
	getter := func(cfg data.Value) (data.Value, Commit, error) {
		v := cfg
		var commit Commit
		var err error
		for _, step := range steps {
			if v, commit, err = step(v, commit); err != nil {
				return nil, nil, err
			}
		}
		return v, commit, nil
	}
	return getter, node, nil
}

func compileRefStep(f *schema.Node, seg Segment) (refStep, *schema.Node, error) {
	name := f.Name
	if !seg.HasQuery {
		step := func(v data.Value, commit Commit) (data.Value, Commit, error) {
			s, ok := v.(*data.Struct)
			if !ok {
				return nil, nil, data.ErrTypeMismatch
			}
			sub := s.Get(name)
			if sub == nil {
				return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			child := func(nv data.Value) error {
				s.Set(name, nv)
				if commit != nil {
					return commit(s)
				}
				return nil
			}
			return sub, child, nil
		}
		return step, f, nil
	}
	switch f.Kind {
	case schema.Array:
		if seg.Index < 1 {
			return nil, nil, fmt.Errorf("%w: array %q takes an index", ErrMissingKeyField, name)
		}
		idx := seg.Index - 1
		step := func(v data.Value, commit Commit) (data.Value, Commit, error) {
			s, ok := v.(*data.Struct)
			if !ok {
				return nil, nil, data.ErrTypeMismatch
			}
			arr := s.Get(name)
			if arr == nil {
				return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			elem, err := data.ArrayAt(arr, idx)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s[%d]", ErrNotFound, name, idx+1)
			}
			child := func(nv data.Value) error {
				if err := data.ArraySet(arr, idx, nv); err != nil {
					return err
				}
				if commit != nil {
					return commit(s)
				}
				return nil
			}
			return elem, child, nil
		}
		return step, f.Elem, nil
	case schema.Table:
		key, err := QueryKey(f, seg.Query)
		if err != nil {
			return nil, nil, err
		}
		tblNode := f
		step := func(v data.Value, commit Commit) (data.Value, Commit, error) {
			s, ok := v.(*data.Struct)
			if !ok {
				return nil, nil, data.ErrTypeMismatch
			}
			tbl := s.Get(name)
			if tbl == nil {
				return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			entry, err := data.TableLookup(tblNode, tbl, key)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, name)
			}
			child := func(nv data.Value) error {
				fresh, ok := nv.(*data.Struct)
				if !ok {
					return data.ErrTypeMismatch
				}
				if err := data.TableUpdate(tblNode, tbl, fresh); err != nil {
					return err
				}
				if commit != nil {
					return commit(s)
				}
				return nil
			}
			return entry, child, nil
		}
		return step, f.Entry, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrQueryOnScalar, name)
	}
}

// QueryKey builds the key struct a table query denotes. Every field of
// the key tuple must be present and parse under its scalar type.
func QueryKey(tbl *schema.Node, query map[string]string) (*data.Struct, error) {
	keys, err := tbl.KeyFields()
	if err != nil {
		return nil, err
	}
	for q := range query {
		if !tbl.IsKey(q) {
			return nil, fmt.Errorf("%w: %q is not a key field", ErrMissingKeyField, q)
		}
	}
	key := data.NewStruct()
	for _, f := range keys {
		lit, ok := query[f.Name]
		if !ok {
			lit, ok = query[schema.NormalizeID(f.Name)]
		}
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMissingKeyField, f.Name)
		}
		s, err := data.ParseScalar(f.Type, lit)
		if err != nil {
			return nil, err
		}
		key.Set(f.Name, s)
	}
	return key, nil
}
