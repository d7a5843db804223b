package asm

import "encoding/binary"

// PoolEntryKind discriminates object pool entries.
type PoolEntryKind uint8

// Pool entry kinds.
const (
	PoolObject PoolEntryKind = iota
	PoolExternalLabel
	PoolImmediate
)

// PoolEntry is one slot of an object pool.
type PoolEntry struct {
	Kind      PoolEntryKind
	Object    Object
	Label     *ExternalLabel
	Immediate uint64
}

// Raw returns the machine word stored in the slot. External label
// addresses are 4-byte aligned, so they read as small integers and are
// never traced as heap pointers.
func (e PoolEntry) Raw() uint64 {
	switch e.Kind {
	case PoolObject:
		return e.Object.Raw()
	case PoolExternalLabel:
		return e.Label.Address
	default:
		return e.Immediate
	}
}

// ObjectPool is the per-compilation-unit table of objects and patchable
// addresses that generated code reaches through the pool pointer register.
type ObjectPool struct {
	entries    []PoolEntry
	objects    map[uint64]int
	immediates map[uint64]int
}

// NewObjectPool returns an empty pool.
func NewObjectPool() *ObjectPool {
	return &ObjectPool{
		objects:    make(map[uint64]int),
		immediates: make(map[uint64]int),
	}
}

// AddObject returns the index of obj, appending it if no entry with the
// same raw identity exists yet.
func (p *ObjectPool) AddObject(obj Object) int {
	if idx, ok := p.objects[obj.Raw()]; ok {
		return idx
	}
	idx := len(p.entries)
	p.entries = append(p.entries, PoolEntry{Kind: PoolObject, Object: obj})
	p.objects[obj.Raw()] = idx
	return idx
}

// AddExternalLabel appends a new slot for label. External labels are never
// shared: every call site gets its own patchable slot.
func (p *ObjectPool) AddExternalLabel(label *ExternalLabel) int {
	Assert(label != nil, "nil external label")
	idx := len(p.entries)
	p.entries = append(p.entries, PoolEntry{Kind: PoolExternalLabel, Label: label})
	return idx
}

// AddImmediate returns the index of a raw immediate slot.
func (p *ObjectPool) AddImmediate(v uint64) int {
	if idx, ok := p.immediates[v]; ok {
		return idx
	}
	idx := len(p.entries)
	p.entries = append(p.entries, PoolEntry{Kind: PoolImmediate, Immediate: v})
	p.immediates[v] = idx
	return idx
}

// Len returns the number of entries.
func (p *ObjectPool) Len() int { return len(p.entries) }

// Entry returns entry i.
func (p *ObjectPool) Entry(i int) PoolEntry {
	Assert(i >= 0 && i < len(p.entries), "pool index %d out of range", i)
	return p.entries[i]
}

// Entries returns a copy of all entries.
func (p *ObjectPool) Entries() []PoolEntry {
	out := make([]PoolEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Encode serializes the pool as an object: layout.ObjectPoolDataOffset
// bytes of header followed by one word per entry.
func (p *ObjectPool) Encode(layout HeapLayout) []byte {
	ws := layout.WordSize
	out := make([]byte, layout.ObjectPoolDataOffset+len(p.entries)*ws)
	for i, e := range p.entries {
		off := layout.ObjectPoolDataOffset + i*ws
		if ws == 8 {
			binary.LittleEndian.PutUint64(out[off:], e.Raw())
		} else {
			binary.LittleEndian.PutUint32(out[off:], uint32(e.Raw()))
		}
	}
	return out
}
