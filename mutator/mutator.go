// Package mutator compiles the get/set/add/remove operations for a
// (schema, path) pair. A compiled operation is a closure over the resolved
// grammar; applying it touches only the sub-structure the path reaches.
package mutator

import (
	"errors"
	"fmt"

	"github.com/drpcorg/ptree/data"
	"github.com/drpcorg/ptree/path"
	"github.com/drpcorg/ptree/schema"
)

var (
	// ErrBadPath covers shape violations: a query on a scalar or struct,
	// a remove without a trailing query, an add that does not name a
	// collection.
	ErrBadPath = errors.New("path does not fit the operation")
)

type GetFn func(cfg data.Value) (string, error)

// SetFn, AddFn and RemoveFn mutate the reached sub-structure of cfg and
// return the (possibly identical) new configuration root.
type SetFn func(cfg data.Value, sub data.Value) (data.Value, error)
type AddFn func(cfg data.Value, sub data.Value) (data.Value, error)
type RemoveFn func(cfg data.Value) (data.Value, error)

// Get compiles a read of the printed representation at pathText.
func Get(sch *schema.Schema, pathText string) (GetFn, *schema.Node, error) {
	if c, ok := cached(sch, "get", pathText); ok {
		return c.get, c.node, nil
	}
	segs, err := path.Parse(pathText)
	if err != nil {
		return nil, nil, err
	}
	getter, node, err := path.Resolve(sch, segs)
	if err != nil {
		return nil, nil, err
	}
	fn := func(cfg data.Value) (string, error) {
		v, err := getter(cfg)
		if err != nil {
			return "", err
		}
		return data.Print(node, v)
	}
	remember(sch, "get", pathText, &compiled{get: fn, node: node})
	return fn, node, nil
}

// Set compiles an overwrite of the sub-value at pathText. The returned
// node is the grammar the payload must parse under.
func Set(sch *schema.Schema, pathText string) (SetFn, *schema.Node, error) {
	if c, ok := cached(sch, "set", pathText); ok {
		return c.set, c.node, nil
	}
	segs, err := path.Parse(pathText)
	if err != nil {
		return nil, nil, err
	}
	if len(segs) == 0 {
		fn := func(cfg data.Value, sub data.Value) (data.Value, error) {
			return sub, nil
		}
		remember(sch, "set", pathText, &compiled{set: fn, node: sch.Root})
		return fn, sch.Root, nil
	}
	head, tail := segs[:len(segs)-1], segs[len(segs)-1]
	parent, headNode, err := path.ResolveRef(sch, head)
	if err != nil {
		return nil, nil, err
	}
	f, err := childField(headNode, tail.Name)
	if err != nil {
		return nil, nil, err
	}
	var fn SetFn
	var node *schema.Node
	switch {
	case !tail.HasQuery:
		// overwrite head[tail] through the normalized field identifier
		name := f.Name
		node = f
		fn = func(cfg data.Value, sub data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			p.Set(name, sub)
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	case f.Kind == schema.Array:
		if tail.Index < 1 {
			return nil, nil, fmt.Errorf("%w: array %q takes an index", ErrBadPath, f.Name)
		}
		idx := tail.Index - 1
		name := f.Name
		node = f.Elem
		fn = func(cfg data.Value, sub data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			arr := p.Get(name)
			if arr == nil {
				return nil, data.ErrNotFound
			}
			if err := data.ArraySet(arr, idx, sub); err != nil {
				return nil, err
			}
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	case f.Kind == schema.Table:
		key, err := path.QueryKey(f, tail.Query)
		if err != nil {
			return nil, nil, err
		}
		name, tblNode := f.Name, f
		node = f.Entry
		fn = func(cfg data.Value, sub data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			tbl := p.Get(name)
			if tbl == nil {
				return nil, data.ErrNotFound
			}
			entry, ok := sub.(*data.Struct)
			if !ok {
				return nil, data.ErrTypeMismatch
			}
			// the query names the entry; its key fields win
			for id, v := range key.Fields {
				entry.Fields[id] = v
			}
			if err := data.TableUpdate(tblNode, tbl, entry); err != nil {
				return nil, err
			}
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	default:
		return nil, nil, fmt.Errorf("%w: query on %q", ErrBadPath, f.Name)
	}
	remember(sch, "set", pathText, &compiled{set: fn, node: node})
	return fn, node, nil
}

// Add compiles an all-or-nothing bulk insert into the collection at
// pathText. The payload parses under the returned collection node.
func Add(sch *schema.Schema, pathText string) (AddFn, *schema.Node, error) {
	if c, ok := cached(sch, "add", pathText); ok {
		return c.add, c.node, nil
	}
	segs, err := path.Parse(pathText)
	if err != nil {
		return nil, nil, err
	}
	if len(segs) == 0 {
		return nil, nil, fmt.Errorf("%w: add needs a collection path", ErrBadPath)
	}
	head, tail := segs[:len(segs)-1], segs[len(segs)-1]
	if tail.HasQuery {
		return nil, nil, fmt.Errorf("%w: add targets the collection itself", ErrBadPath)
	}
	parent, headNode, err := path.ResolveRef(sch, head)
	if err != nil {
		return nil, nil, err
	}
	f, err := childField(headNode, tail.Name)
	if err != nil {
		return nil, nil, err
	}
	var fn AddFn
	switch f.Kind {
	case schema.Array:
		name := f.Name
		fn = func(cfg data.Value, sub data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			cur := p.Get(name)
			if cur == nil {
				return nil, data.ErrNotFound
			}
			elems, err := collectElems(sub)
			if err != nil {
				return nil, err
			}
			// packed arrays come back as a fresh allocation, so the
			// result is always reinstalled into the parent
			fresh, err := data.ArrayAppend(cur, elems)
			if err != nil {
				return nil, err
			}
			p.Set(name, fresh)
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	case schema.Table:
		name, tblNode := f.Name, f
		fn = func(cfg data.Value, sub data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			tbl := p.Get(name)
			if tbl == nil {
				return nil, data.ErrNotFound
			}
			entries, err := collectEntries(tblNode, sub)
			if err != nil {
				return nil, err
			}
			// first pass: no incoming key may exist already
			for _, e := range entries {
				key, err := data.EntryKey(tblNode, e)
				if err != nil {
					return nil, err
				}
				exists, err := data.TableHasKey(tblNode, tbl, key)
				if err != nil {
					return nil, err
				}
				if exists {
					return nil, data.ErrExists
				}
			}
			// second pass: insert
			for _, e := range entries {
				if err := data.TableInsert(tblNode, tbl, e); err != nil {
					return nil, err
				}
			}
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q is not a collection", ErrBadPath, f.Name)
	}
	remember(sch, "add", pathText, &compiled{add: fn, node: f})
	return fn, f, nil
}

// Remove compiles the deletion of the element the trailing query selects.
func Remove(sch *schema.Schema, pathText string) (RemoveFn, error) {
	if c, ok := cached(sch, "remove", pathText); ok {
		return c.remove, nil
	}
	segs, err := path.Parse(pathText)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 || !segs[len(segs)-1].HasQuery {
		return nil, fmt.Errorf("%w: remove needs a trailing query", ErrBadPath)
	}
	head, tail := segs[:len(segs)-1], segs[len(segs)-1]
	parent, headNode, err := path.ResolveRef(sch, head)
	if err != nil {
		return nil, err
	}
	f, err := childField(headNode, tail.Name)
	if err != nil {
		return nil, err
	}
	var fn RemoveFn
	switch f.Kind {
	case schema.Array:
		if tail.Index < 1 {
			return nil, fmt.Errorf("%w: array %q takes an index", ErrBadPath, f.Name)
		}
		idx := tail.Index - 1
		name := f.Name
		fn = func(cfg data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			arr := p.Get(name)
			if arr == nil {
				return nil, data.ErrNotFound
			}
			fresh, err := data.ArrayRemoveAt(arr, idx)
			if err != nil {
				return nil, data.ErrNotFound
			}
			p.Set(name, fresh)
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	case schema.Table:
		key, err := path.QueryKey(f, tail.Query)
		if err != nil {
			return nil, err
		}
		name, tblNode := f.Name, f
		fn = func(cfg data.Value) (data.Value, error) {
			p, commit, err := parentStruct(parent, cfg)
			if err != nil {
				return nil, err
			}
			tbl := p.Get(name)
			if tbl == nil {
				return nil, data.ErrNotFound
			}
			if err := data.TableRemove(tblNode, tbl, key); err != nil {
				return nil, err
			}
			if err := writeBack(commit, p); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	default:
		return nil, fmt.Errorf("%w: query on %q", ErrBadPath, f.Name)
	}
	remember(sch, "remove", pathText, &compiled{remove: fn})
	return fn, nil
}

func childField(n *schema.Node, name string) (*schema.Node, error) {
	if n.Kind != schema.Struct {
		return nil, fmt.Errorf("%w: %q", path.ErrNotFound, name)
	}
	f := n.Field(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", path.ErrNotFound, name)
	}
	return f, nil
}

func parentStruct(getter path.RefGetter, cfg data.Value) (*data.Struct, path.Commit, error) {
	v, commit, err := getter(cfg)
	if err != nil {
		return nil, nil, err
	}
	s, ok := v.(*data.Struct)
	if !ok {
		return nil, nil, data.ErrTypeMismatch
	}
	return s, commit, nil
}

// writeBack repacks a mutated parent into any copying container above it.
func writeBack(commit path.Commit, p *data.Struct) error {
	if commit == nil {
		return nil
	}
	return commit(p)
}

func collectElems(sub data.Value) ([]data.Value, error) {
	n := data.ArrayLen(sub)
	elems := make([]data.Value, 0, n)
	for i := 0; i < n; i++ {
		e, err := data.ArrayAt(sub, i)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return elems, nil
}

func collectEntries(n *schema.Node, sub data.Value) ([]*data.Struct, error) {
	var entries []*data.Struct
	data.TableIterate(n, sub, func(entry *data.Struct) bool {
		entries = append(entries, entry)
		return true
	})
	if data.TableLen(sub) != len(entries) {
		return nil, data.ErrTypeMismatch
	}
	return entries, nil
}
