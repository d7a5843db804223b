package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrRegionTooSmall is returned by Finalize when the destination region
// cannot hold the emitted code.
var ErrRegionTooSmall = errors.New("asm: region too small for emitted code")

// Buffer is the growable little-endian instruction buffer assemblers emit
// into. It also records the byte offsets of embedded heap-object pointers
// so a collector can find them.
type Buffer struct {
	data           []byte
	pointerOffsets []int
	labels         []*Label
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, 256)}
}

// Size returns the number of bytes emitted so far.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Emit32 appends a 32-bit word.
func (b *Buffer) Emit32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

// Emit64 appends a 64-bit word.
func (b *Buffer) Emit64(v uint64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

// Load32 reads the word at pos.
func (b *Buffer) Load32(pos int) uint32 {
	Assert(pos >= 0 && pos+4 <= len(b.data), "load at %d outside buffer of %d bytes", pos, len(b.data))
	return binary.LittleEndian.Uint32(b.data[pos:])
}

// Store32 overwrites the word at pos.
func (b *Buffer) Store32(pos int, v uint32) {
	Assert(pos >= 0 && pos+4 <= len(b.data), "store at %d outside buffer of %d bytes", pos, len(b.data))
	binary.LittleEndian.PutUint32(b.data[pos:], v)
}

// Remit drops the last emitted word and returns it.
func (b *Buffer) Remit() uint32 {
	Assert(len(b.data) >= 4, "remit from an empty buffer")
	v := b.Load32(len(b.data) - 4)
	b.data = b.data[:len(b.data)-4]
	return v
}

// Align pads the buffer with fill words until its size is a multiple of
// alignment.
func (b *Buffer) Align(alignment int, fill uint32) {
	Assert(alignment%InstrSize == 0, "alignment %d is not a multiple of %d", alignment, InstrSize)
	for len(b.data)%alignment != 0 {
		b.Emit32(fill)
	}
}

// AddPointerOffset records that the word at pos holds a heap pointer.
func (b *Buffer) AddPointerOffset(pos int) {
	b.pointerOffsets = append(b.pointerOffsets, pos)
}

// PointerOffsets returns the recorded heap-pointer offsets.
func (b *Buffer) PointerOffsets() []int {
	out := make([]int, len(b.pointerOffsets))
	copy(out, b.pointerOffsets)
	return out
}

// TrackLabel registers a label whose references live in this buffer so that
// Finalize can reject code with unresolved branches.
func (b *Buffer) TrackLabel(l *Label) {
	for _, existing := range b.labels {
		if existing == l {
			return
		}
	}
	b.labels = append(b.labels, l)
}

// Bytes returns a copy of the emitted bytes.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Words returns the emitted code as 32-bit words.
func (b *Buffer) Words() []uint32 {
	words := make([]uint32, len(b.data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b.data[i*4:])
	}
	return words
}

// Finalize copies the emitted code into region. Every tracked label must be
// resolved; an unresolved forward branch is a code generator bug and aborts.
func (b *Buffer) Finalize(region []byte) error {
	for _, l := range b.labels {
		l.Verify()
	}
	if len(region) < len(b.data) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrRegionTooSmall, len(b.data), len(region))
	}
	copy(region, b.data)
	return nil
}
