package asm

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/jitsim/bits"
)

// HeapLayout collects the object and code layout constants that generated
// code bakes in. The heap and collector own these values; the assemblers
// only consume them.
type HeapLayout struct {
	WordSize int

	// ObjectAlignment is the allocation granule. New-space objects are
	// allocated at NewObjectAlignmentOffset within a granule, old-space
	// objects at OldObjectAlignmentOffset, so one address bit tells the
	// generations apart.
	ObjectAlignment          int
	NewObjectAlignmentOffset int
	OldObjectAlignmentOffset int

	TagsOffset     int
	ClassIDTagPos  int
	ClassIDTagSize int

	ThreadIsolateOffset     int
	IsolateClassTableOffset int
	ClassTableTableOffset   int

	// InstructionsHeaderSize is the size of the header preceding the first
	// instruction of a code object; the object pool pointer is stored at
	// InstructionsObjectPoolOffset inside that header.
	InstructionsHeaderSize       int
	InstructionsObjectPoolOffset int
	ObjectPoolDataOffset         int

	// ActivationFrameAlignment is the native ABI stack alignment enforced
	// before calls into host code.
	ActivationFrameAlignment int
}

// DefaultHeapLayout returns the conventional layout for wordSize-byte words.
func DefaultHeapLayout(wordSize int) HeapLayout {
	frameAlign := 8
	if wordSize == 8 {
		frameAlign = 16
	}
	return HeapLayout{
		WordSize:                     wordSize,
		ObjectAlignment:              2 * wordSize,
		NewObjectAlignmentOffset:     wordSize,
		OldObjectAlignmentOffset:     0,
		TagsOffset:                   0,
		ClassIDTagPos:                16,
		ClassIDTagSize:               16,
		ThreadIsolateOffset:          2 * wordSize,
		IsolateClassTableOffset:      4 * wordSize,
		ClassTableTableOffset:        wordSize,
		InstructionsHeaderSize:       4 * wordSize,
		InstructionsObjectPoolOffset: 2 * wordSize,
		ObjectPoolDataOffset:         2 * wordSize,
		ActivationFrameAlignment:     frameAlign,
	}
}

// Validate rejects layouts the inline write-barrier filter cannot express.
func (l HeapLayout) Validate() error {
	if l.WordSize != 4 && l.WordSize != 8 {
		return fmt.Errorf("unsupported word size %d", l.WordSize)
	}
	if !bits.IsPowerOfTwo(int64(l.ObjectAlignment)) {
		return fmt.Errorf("object alignment %d is not a power of two", l.ObjectAlignment)
	}
	if !bits.IsPowerOfTwo(int64(l.NewObjectAlignmentOffset)) || l.NewObjectAlignmentOffset <= HeapObjectTag ||
		l.NewObjectAlignmentOffset >= l.ObjectAlignment {
		return fmt.Errorf("new object offset %d must be a single bit between the tag bit and the alignment",
			l.NewObjectAlignmentOffset)
	}
	if l.OldObjectAlignmentOffset != 0 {
		return fmt.Errorf("old object offset must be 0, got %d", l.OldObjectAlignmentOffset)
	}
	if l.ClassIDTagPos%8 != 0 || l.ClassIDTagSize != 16 {
		return fmt.Errorf("class id must be a byte-aligned 16-bit field")
	}
	if l.InstructionsObjectPoolOffset+l.WordSize > l.InstructionsHeaderSize {
		return fmt.Errorf("object pool slot outside instructions header")
	}
	if !bits.IsPowerOfTwo(int64(l.ActivationFrameAlignment)) {
		return fmt.Errorf("frame alignment %d is not a power of two", l.ActivationFrameAlignment)
	}
	return nil
}

// MustValidate panics with an AssertionError if the layout is invalid.
func (l HeapLayout) MustValidate() HeapLayout {
	if err := l.Validate(); err != nil {
		Fatalf("heap layout: %v", err)
	}
	return l
}

// NewObjectBitShift returns the position of the generation bit in a tagged
// pointer, as seen relative to the heap-object tag bit.
func (l HeapLayout) NewObjectBitShift() uint {
	return bits.Log2(uint64(l.NewObjectAlignmentOffset))
}

// IsNewObject reports whether a tagged heap pointer refers to new space.
func (l HeapLayout) IsNewObject(tagged uint64) bool {
	return tagged&uint64(l.NewObjectAlignmentOffset) != 0
}

// FieldOffset converts an object field offset into a displacement from a
// tagged pointer.
func (l HeapLayout) FieldOffset(offset int) int {
	return offset - HeapObjectTag
}

// ClassIDOffset returns the byte offset of the class id inside an object.
func (l HeapLayout) ClassIDOffset() int {
	return l.TagsOffset + l.ClassIDTagPos/8
}

// PoolElementOffset returns the displacement of pool entry i from the
// tagged pool pointer.
func (l HeapLayout) PoolElementOffset(i int) int {
	return l.ObjectPoolDataOffset + i*l.WordSize - HeapObjectTag
}

// InstructionsImage lays code out behind an instructions header that
// records poolPointer, the tagged address of the object pool. The first
// instruction sits at InstructionsHeaderSize in the returned image.
func (l HeapLayout) InstructionsImage(code []byte, poolPointer uint64) []byte {
	out := make([]byte, l.InstructionsHeaderSize+len(code))
	if l.WordSize == 8 {
		binary.LittleEndian.PutUint64(out[l.InstructionsObjectPoolOffset:], poolPointer)
	} else {
		binary.LittleEndian.PutUint32(out[l.InstructionsObjectPoolOffset:], uint32(poolPointer))
	}
	copy(out[l.InstructionsHeaderSize:], code)
	return out
}
