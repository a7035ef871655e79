package data

import (
	"sort"

	"github.com/drpcorg/ptree/schema"
)

// Variant-directed table operations. Callers never touch the concrete
// representation; the grammar node picks it.

// NewTable allocates empty storage for a table node.
func NewTable(n *schema.Node) (Value, error) {
	switch n.Variant() {
	case schema.VariantCompact:
		key, val, err := compactLayouts(n)
		if err != nil {
			return nil, err
		}
		return NewCompactTable(key, val), nil
	case schema.VariantString:
		return &StringTable{KeyField: n.StringKey, M: make(map[string]*Struct)}, nil
	case schema.VariantKeyed:
		key, err := keyLayout(n)
		if err != nil {
			return nil, err
		}
		return &KeyedTable{Key: key, M: make(map[string]*Struct)}, nil
	default:
		return &GenericTable{}, nil
	}
}

func compactLayouts(n *schema.Node) (key, val *Layout, err error) {
	keys, err := n.KeyFields()
	if err != nil {
		return nil, nil, err
	}
	if key, err = LayoutOf(keys); err != nil {
		return nil, nil, err
	}
	if val, err = LayoutOf(n.ValueFields()); err != nil {
		return nil, nil, err
	}
	return key, val, nil
}

func keyLayout(n *schema.Node) (*Layout, error) {
	keys, err := n.KeyFields()
	if err != nil {
		return nil, err
	}
	return LayoutOf(keys)
}

// PackedKeyOf packs the key fields of a (possibly partial) entry.
func PackedKeyOf(n *schema.Node, key *Struct) ([]byte, error) {
	l, err := keyLayout(n)
	if err != nil {
		return nil, err
	}
	return l.Pack(key)
}

// StringKeyOf projects the string key field and normalizes it.
func StringKeyOf(n *schema.Node, key *Struct) (string, error) {
	s, ok := key.Get(n.StringKey).(*Scalar)
	if !ok || s.Type != schema.String {
		return "", ErrTypeMismatch
	}
	return schema.NormalizeID(s.Str), nil
}

func TableLen(v Value) int {
	switch t := v.(type) {
	case *CompactTable:
		return t.Len()
	case *KeyedTable:
		return len(t.M)
	case *StringTable:
		return len(t.M)
	case *GenericTable:
		return len(t.Entries)
	}
	return 0
}

// TableHasKey reports whether an entry with the given key fields exists.
func TableHasKey(n *schema.Node, v Value, key *Struct) (bool, error) {
	_, err := TableLookup(n, v, key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TableLookup returns the full entry stored under key.
func TableLookup(n *schema.Node, v Value, key *Struct) (*Struct, error) {
	switch t := v.(type) {
	case *CompactTable:
		kb, err := t.KeyLayout.Pack(key)
		if err != nil {
			return nil, ErrTypeMismatch
		}
		vb := t.LookupPtr(kb)
		if vb == nil {
			return nil, ErrNotFound
		}
		return mergeEntry(t, kb, vb), nil
	case *KeyedTable:
		kb, err := t.Key.Pack(key)
		if err != nil {
			return nil, ErrTypeMismatch
		}
		entry, ok := t.M[string(kb)]
		if !ok {
			return nil, ErrNotFound
		}
		return entry, nil
	case *StringTable:
		sk, err := StringKeyOf(n, key)
		if err != nil {
			return nil, err
		}
		entry, ok := t.M[sk]
		if !ok {
			return nil, ErrNotFound
		}
		return entry, nil
	case *GenericTable:
		i, err := genericFind(n, t, key)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, ErrNotFound
		}
		return t.Entries[i], nil
	}
	return nil, ErrTypeMismatch
}

// TableInsert adds a new entry; fails with ErrExists when the key is taken.
func TableInsert(n *schema.Node, v Value, entry *Struct) error {
	switch t := v.(type) {
	case *CompactTable:
		kb, vb, err := splitEntry(t, entry)
		if err != nil {
			return err
		}
		return t.Add(kb, vb)
	case *KeyedTable:
		kb, err := t.Key.Pack(entry)
		if err != nil {
			return ErrTypeMismatch
		}
		if _, ok := t.M[string(kb)]; ok {
			return ErrExists
		}
		t.M[string(kb)] = entry
		return nil
	case *StringTable:
		sk, err := StringKeyOf(n, entry)
		if err != nil {
			return err
		}
		if _, ok := t.M[sk]; ok {
			return ErrExists
		}
		t.M[sk] = entry
		return nil
	case *GenericTable:
		key, err := EntryKey(n, entry)
		if err != nil {
			return err
		}
		i, err := genericFind(n, t, key)
		if err != nil {
			return err
		}
		if i >= 0 {
			return ErrExists
		}
		t.Entries = append(t.Entries, entry)
		return nil
	}
	return ErrTypeMismatch
}

// TableUpdate overwrites the entry stored under the entry's own key.
func TableUpdate(n *schema.Node, v Value, entry *Struct) error {
	switch t := v.(type) {
	case *CompactTable:
		kb, vb, err := splitEntry(t, entry)
		if err != nil {
			return err
		}
		return t.Update(kb, vb)
	case *KeyedTable:
		kb, err := t.Key.Pack(entry)
		if err != nil {
			return ErrTypeMismatch
		}
		if _, ok := t.M[string(kb)]; !ok {
			return ErrNotFound
		}
		t.M[string(kb)] = entry
		return nil
	case *StringTable:
		sk, err := StringKeyOf(n, entry)
		if err != nil {
			return err
		}
		if _, ok := t.M[sk]; !ok {
			return ErrNotFound
		}
		t.M[sk] = entry
		return nil
	case *GenericTable:
		key, err := EntryKey(n, entry)
		if err != nil {
			return err
		}
		i, err := genericFind(n, t, key)
		if err != nil {
			return err
		}
		if i < 0 {
			return ErrNotFound
		}
		t.Entries[i] = entry
		return nil
	}
	return ErrTypeMismatch
}

// TableRemove deletes the entry stored under key.
func TableRemove(n *schema.Node, v Value, key *Struct) error {
	switch t := v.(type) {
	case *CompactTable:
		kb, err := t.KeyLayout.Pack(key)
		if err != nil {
			return ErrTypeMismatch
		}
		return t.Remove(kb)
	case *KeyedTable:
		kb, err := t.Key.Pack(key)
		if err != nil {
			return ErrTypeMismatch
		}
		if _, ok := t.M[string(kb)]; !ok {
			return ErrNotFound
		}
		delete(t.M, string(kb))
		return nil
	case *StringTable:
		sk, err := StringKeyOf(n, key)
		if err != nil {
			return err
		}
		if _, ok := t.M[sk]; !ok {
			return ErrNotFound
		}
		delete(t.M, sk)
		return nil
	case *GenericTable:
		i, err := genericFind(n, t, key)
		if err != nil {
			return err
		}
		if i < 0 {
			return ErrNotFound
		}
		t.Entries = append(t.Entries[:i], t.Entries[i+1:]...)
		return nil
	}
	return ErrTypeMismatch
}

// TableIterate visits full entries in a deterministic order: packed and
// keyed variants sort by key bytes, string-keyed by key, generic keeps
// insertion order.
func TableIterate(n *schema.Node, v Value, fn func(entry *Struct) bool) {
	switch t := v.(type) {
	case *CompactTable:
		type kv struct{ k, v []byte }
		all := make([]kv, 0, t.Len())
		t.Iterate(func(key, val []byte) bool {
			k := append([]byte(nil), key...)
			vv := append([]byte(nil), val...)
			all = append(all, kv{k, vv})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return string(all[i].k) < string(all[j].k) })
		for _, e := range all {
			if !fn(mergeEntry(t, e.k, e.v)) {
				return
			}
		}
	case *KeyedTable:
		for _, k := range sortedKeys(t.M) {
			if !fn(t.M[k]) {
				return
			}
		}
	case *StringTable:
		for _, k := range sortedKeys(t.M) {
			if !fn(t.M[k]) {
				return
			}
		}
	case *GenericTable:
		for _, e := range t.Entries {
			if !fn(e) {
				return
			}
		}
	}
}

func sortedKeys(m map[string]*Struct) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitEntry(t *CompactTable, entry *Struct) (key, val []byte, err error) {
	if key, err = t.KeyLayout.Pack(entry); err != nil {
		return nil, nil, ErrTypeMismatch
	}
	if val, err = t.ValLayout.Pack(entry); err != nil {
		return nil, nil, ErrTypeMismatch
	}
	return key, val, nil
}

func mergeEntry(t *CompactTable, key, val []byte) *Struct {
	entry := t.KeyLayout.Unpack(key)
	for id, v := range t.ValLayout.Unpack(val).Fields {
		entry.Fields[id] = v
	}
	return entry
}

// genericFind scans for an entry whose key fields structurally equal key.
func genericFind(n *schema.Node, t *GenericTable, key *Struct) (int, error) {
	keys, err := n.KeyFields()
	if err != nil {
		return -1, err
	}
	for i, e := range t.Entries {
		match := true
		for _, f := range keys {
			kv := key.Get(f.Name)
			ev := e.Get(f.Name)
			if kv == nil || ev == nil || !Equal(f, kv, ev) {
				match = false
				break
			}
		}
		if match {
			return i, nil
		}
	}
	return -1, nil
}
