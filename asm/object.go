package asm

// Tagging of object references.
const (
	SmiTag        = 0
	SmiTagMask    = 1
	SmiTagShift   = 1
	HeapObjectTag = 1
)

// Object is an opaque reference to a heap object or a small integer, as
// generated code sees it: a tagged machine word.
type Object struct {
	raw    uint64
	vmHeap bool
}

// NewSmi returns the tagged small integer v.
func NewSmi(v int64) Object {
	return Object{raw: uint64(v) << SmiTagShift}
}

// NewHeapObject returns a reference to the object at untagged address addr.
// Objects in the read-only VM heap are never moved and may be embedded in
// code directly.
func NewHeapObject(addr uint64, vmHeap bool) Object {
	Assert(addr&SmiTagMask == 0, "object address 0x%x is not aligned", addr)
	return Object{raw: addr | HeapObjectTag, vmHeap: vmHeap}
}

// ObjectFromRaw wraps an already tagged word.
func ObjectFromRaw(raw uint64, vmHeap bool) Object {
	return Object{raw: raw, vmHeap: vmHeap && raw&SmiTagMask == HeapObjectTag}
}

// Raw returns the tagged word.
func (o Object) Raw() uint64 { return o.raw }

// IsSmi reports whether the reference is a small integer.
func (o Object) IsSmi() bool { return o.raw&SmiTagMask == SmiTag }

// SmiValue returns the untagged small integer.
func (o Object) SmiValue() int64 {
	Assert(o.IsSmi(), "0x%x is not a smi", o.raw)
	return int64(o.raw) >> SmiTagShift
}

// Address returns the untagged address of a heap object.
func (o Object) Address() uint64 {
	Assert(!o.IsSmi(), "smi has no address")
	return o.raw - HeapObjectTag
}

// InVMHeap reports whether the object lives in the immovable VM heap.
func (o Object) InVMHeap() bool { return o.vmHeap }

// CanBeEmbedded reports whether generated code may encode the reference
// as an immediate instead of loading it from the object pool.
func (o Object) CanBeEmbedded() bool {
	return o.IsSmi() || o.vmHeap
}

// ExternalLabel names a raw code address outside the current compilation
// unit, such as a stub or a runtime entry point.
type ExternalLabel struct {
	Name    string
	Address uint64
}

// NewExternalLabel returns a label for addr, which must be 4-byte aligned.
func NewExternalLabel(name string, addr uint64) *ExternalLabel {
	Assert(addr%4 == 0, "external label %s at unaligned address 0x%x", name, addr)
	return &ExternalLabel{Name: name, Address: addr}
}
