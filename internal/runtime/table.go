package runtime

import "strings"

// tableEntry is one slot in the open-addressed table. Empty=true with
// Value non-nil marks a probe-continuation tombstone; Empty=true with
// Value==Nil terminates the probe sequence (an entry that was never
// occupied).
type tableEntry struct {
	Key   Value
	Value Value
	Empty bool
}

const tableMaxLoad = 0.75

// Table is the single open-addressing, linear-probing hash table backing
// the VM's globals, the string intern pool, and every Map object. The
// teacher repo used a plain Go map for globals (runtime/enviroment.go);
// this is a from-scratch reimplementation of the probe/tombstone scheme
// rather than a Go map wrapper.
type Table struct {
	count   int
	entries []tableEntry
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Count() int { return t.count }

func hashValue(v Value) uint32 {
	switch v.kind {
	case KindNil:
		return 0x1b873593
	case KindBool:
		if v.boolean {
			return 1
		}
		return 0
	case KindNumber:
		return uint32(uint64(v.number))
	case KindObj:
		switch o := v.obj.(type) {
		case *StringObj:
			return o.Hash
		default:
			// Stable identity-derived hash: low bits of the pointer. The
			// contract is only that Equal(a,b) implies
			// hash(a)==hash(b); these objects are never equal unless
			// identical, so identity hashing is sufficient.
			return uint32(uintptr(pointerOf(o)))
		}
	}
	return 0
}

func (t *Table) findEntry(entries []tableEntry, key Value) int {
	capacity := len(entries)
	index := int(hashValue(key)) % capacity
	if index < 0 {
		index += capacity
	}
	var tombstone = -1
	for {
		entry := &entries[index]
		if entry.Empty {
			if entry.Value.IsNil() {
				// truly empty slot
				if tombstone != -1 {
					return tombstone
				}
				return index
			}
			if tombstone == -1 {
				tombstone = index
			}
		} else if entry.Key.Equal(key) {
			return index
		}
		index = (index + 1) % capacity
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]tableEntry, capacity)
	for i := range entries {
		entries[i].Empty = true
	}
	t.count = 0
	for _, old := range t.entries {
		if old.Empty {
			continue
		}
		idx := t.findEntry(entries, old.Key)
		entries[idx].Key = old.Key
		entries[idx].Value = old.Value
		entries[idx].Empty = false
		t.count++
	}
	t.entries = entries
}

// Set inserts or overwrites key->value, returning true if this created a
// brand-new entry. Growth rule: max(8, 2*old) once count+1 exceeds 75% load.
func (t *Table) Set(key Value, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := 8
		if len(t.entries)*2 > capacity {
			capacity = len(t.entries) * 2
		}
		t.adjustCapacity(capacity)
	}
	idx := t.findEntry(t.entries, key)
	entry := &t.entries[idx]
	isNew := entry.Empty
	if isNew && entry.Value.IsNil() {
		t.count++
	}
	entry.Key = key
	entry.Value = value
	entry.Empty = false
	return isNew
}

// Get returns the value for key, reporting ok=false if absent.
func (t *Table) Get(key Value) (Value, bool) {
	if len(t.entries) == 0 {
		return Nil, false
	}
	idx := t.findEntry(t.entries, key)
	entry := &t.entries[idx]
	if entry.Empty {
		return Nil, false
	}
	return entry.Value, true
}

// Delete tombstones key's entry, leaving the probe chain intact for
// subsequent lookups.
func (t *Table) Delete(key Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findEntry(t.entries, key)
	entry := &t.entries[idx]
	if entry.Empty {
		return false
	}
	entry.Empty = true
	entry.Value = Bool(true) // tombstone marker: Empty && Value != Nil
	entry.Key = Nil
	return true
}

// FindString is the specialized intern lookup: it compares candidates by
// length+hash+content directly, without wrapping chars in a throwaway
// Value/StringObj first.
func (t *Table) FindString(chars string, hash uint32) *StringObj {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity
	if index < 0 {
		index += capacity
	}
	for {
		entry := &t.entries[index]
		if entry.Empty {
			if entry.Value.IsNil() {
				return nil
			}
		} else if s, ok := entry.Key.obj.(*StringObj); ok {
			if s.Hash == hash && len(s.Chars) == len(chars) && s.Chars == chars {
				return s
			}
		}
		index = (index + 1) % capacity
	}
}

// RemoveWhite deletes every entry whose key is an unmarked heap object —
// the weak-reference half of string interning: without this,
// the intern table would itself be a GC root keeping every string alive
// forever.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Empty || !e.Key.IsObj() {
			continue
		}
		if !e.Key.obj.header().marked {
			t.Delete(e.Key)
		}
	}
}

// Each calls fn for every live (non-tombstone) entry.
func (t *Table) Each(fn func(key, value Value)) {
	for _, e := range t.entries {
		if e.Empty {
			continue
		}
		fn(e.Key, e.Value)
	}
}

func (t *Table) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	t.Each(func(k, v Value) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		if k.IsString() {
			b.WriteByte('\'')
			b.WriteString(k.String())
			b.WriteByte('\'')
		} else {
			b.WriteString(k.String())
		}
		b.WriteByte(':')
		if v.IsString() {
			b.WriteByte('\'')
			b.WriteString(v.String())
			b.WriteByte('\'')
		} else {
			b.WriteString(v.String())
		}
	})
	b.WriteByte('}')
	return b.String()
}
