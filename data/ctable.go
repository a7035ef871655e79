package data

import (
	"bytes"

	"github.com/cespare/xxhash"
)

// CompactTable is an open-addressing hash table over packed key and value
// records. Both records live inline in the slot array, so a full table is
// one contiguous allocation.
//
// Slot format: one state byte (empty/occupied/tombstone), then the key
// record, then the value record.
type CompactTable struct {
	KeyLayout *Layout
	ValLayout *Layout

	slots []byte
	used  int
	dead  int
}

const (
	slotEmpty byte = iota
	slotUsed
	slotDead
)

const ctableMinSlots = 8

func NewCompactTable(key, val *Layout) *CompactTable {
	t := &CompactTable{KeyLayout: key, ValLayout: val}
	t.slots = make([]byte, ctableMinSlots*t.slotSize())
	return t
}

func (t *CompactTable) slotSize() int {
	return 1 + t.KeyLayout.Size + t.ValLayout.Size
}

func (t *CompactTable) cap() int {
	return len(t.slots) / t.slotSize()
}

func (t *CompactTable) Len() int {
	return t.used
}

func (t *CompactTable) Clone() Value {
	c := *t
	c.slots = make([]byte, len(t.slots))
	copy(c.slots, t.slots)
	return &c
}

func (t *CompactTable) slot(i int) []byte {
	ss := t.slotSize()
	return t.slots[i*ss : (i+1)*ss]
}

func (t *CompactTable) keyAt(i int) []byte {
	s := t.slot(i)
	return s[1 : 1+t.KeyLayout.Size]
}

func (t *CompactTable) valAt(i int) []byte {
	s := t.slot(i)
	return s[1+t.KeyLayout.Size:]
}

// probe walks the chain for key. Returns the occupied slot index holding
// key, or -1 plus the first free slot usable for insertion.
func (t *CompactTable) probe(key []byte) (found, free int) {
	mask := uint64(t.cap() - 1)
	i := int(xxhash.Sum64(key) & mask)
	free = -1
	for n := 0; n < t.cap(); n++ {
		switch t.slot(i)[0] {
		case slotEmpty:
			if free < 0 {
				free = i
			}
			return -1, free
		case slotDead:
			if free < 0 {
				free = i
			}
		case slotUsed:
			if bytes.Equal(t.keyAt(i), key) {
				return i, free
			}
		}
		i = int((uint64(i) + 1) & mask)
	}
	return -1, free
}

// LookupPtr returns the value record stored under key, or nil. The slice
// aliases table storage and is invalidated by the next Add or Remove.
func (t *CompactTable) LookupPtr(key []byte) []byte {
	found, _ := t.probe(key)
	if found < 0 {
		return nil
	}
	return t.valAt(found)
}

// Add inserts a new entry; the key must not exist.
func (t *CompactTable) Add(key, val []byte) error {
	if t.LookupPtr(key) != nil {
		return ErrExists
	}
	t.grow()
	_, free := t.probe(key)
	s := t.slot(free)
	if s[0] == slotDead {
		t.dead--
	}
	s[0] = slotUsed
	copy(s[1:], key)
	copy(s[1+t.KeyLayout.Size:], val)
	t.used++
	return nil
}

// Update overwrites the value of an existing entry.
func (t *CompactTable) Update(key, val []byte) error {
	found, _ := t.probe(key)
	if found < 0 {
		return ErrNotFound
	}
	copy(t.valAt(found), val)
	return nil
}

// Remove deletes an existing entry.
func (t *CompactTable) Remove(key []byte) error {
	found, _ := t.probe(key)
	if found < 0 {
		return ErrNotFound
	}
	t.slot(found)[0] = slotDead
	t.used--
	t.dead++
	return nil
}

// Iterate visits every entry; stops early when fn returns false. Slices
// alias table storage.
func (t *CompactTable) Iterate(fn func(key, val []byte) bool) {
	for i := 0; i < t.cap(); i++ {
		if t.slot(i)[0] == slotUsed {
			if !fn(t.keyAt(i), t.valAt(i)) {
				return
			}
		}
	}
}

// grow rehashes once the table passes 3/4 load, counting tombstones.
func (t *CompactTable) grow() {
	if (t.used+t.dead+1)*4 <= t.cap()*3 {
		return
	}
	old := t.slots
	oldCap := t.cap()
	newCap := t.cap() * 2
	if t.dead > t.used {
		newCap = t.cap() // just squeeze tombstones out
	}
	t.slots = make([]byte, newCap*t.slotSize())
	t.used = 0
	t.dead = 0
	ss := t.slotSize()
	for i := 0; i < oldCap; i++ {
		s := old[i*ss : (i+1)*ss]
		if s[0] != slotUsed {
			continue
		}
		key := s[1 : 1+t.KeyLayout.Size]
		_, free := t.probe(key)
		dst := t.slot(free)
		copy(dst, s)
		t.used++
	}
}
