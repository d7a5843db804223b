// Package bits provides named bit-field helpers shared by the instruction
// encoders and decoders of every architecture.
//
// A Field names a contiguous run of bits inside an instruction word:
//
//	rd := bits.Field{Shift: 12, Width: 4}
//	word = rd.Set(word, 3)   // insert R3 into bits [15:12]
//	reg := rd.Get(word)      // extract it again
package bits

import "fmt"

// Field is a contiguous bit range [Shift+Width-1:Shift].
type Field struct {
	Shift uint
	Width uint
}

// F is shorthand for Field{Shift: shift, Width: width}.
func F(shift, width uint) Field {
	return Field{Shift: shift, Width: width}
}

// Mask returns the field mask shifted into position.
func (f Field) Mask() uint32 {
	return uint32((uint64(1)<<f.Width)-1) << f.Shift
}

// Max returns the largest unsigned value the field can hold.
func (f Field) Max() uint32 {
	return uint32((uint64(1) << f.Width) - 1)
}

// Get extracts the field from word.
func (f Field) Get(word uint32) uint32 {
	return (word >> f.Shift) & f.Max()
}

// Encode returns v placed at the field position. It panics if v does not fit.
func (f Field) Encode(v uint32) uint32 {
	if v > f.Max() {
		panic(fmt.Sprintf("bits: value 0x%x does not fit in %d-bit field at %d", v, f.Width, f.Shift))
	}
	return v << f.Shift
}

// Set replaces the field in word with v.
func (f Field) Set(word, v uint32) uint32 {
	return (word &^ f.Mask()) | f.Encode(v)
}

// SignExtend extracts the field and sign-extends it to 32 bits.
func (f Field) SignExtend(word uint32) int32 {
	v := f.Get(word)
	shift := 32 - f.Width
	return int32(v<<shift) >> shift
}

// EncodeSigned places the low Width bits of v at the field position.
// It panics if v is not representable as a Width-bit two's complement value.
func (f Field) EncodeSigned(v int64) uint32 {
	if !IsInt(f.Width, v) {
		panic(fmt.Sprintf("bits: value %d does not fit in signed %d-bit field at %d", v, f.Width, f.Shift))
	}
	return (uint32(v) & f.Max()) << f.Shift
}

// Bit returns a one-bit mask at position n.
func Bit(n uint) uint32 {
	return 1 << n
}

// Test reports whether bit n of word is set.
func Test(word uint32, n uint) bool {
	return word&(1<<n) != 0
}

// Extract64 returns bits [shift+width-1:shift] of v.
func Extract64(v uint64, shift, width uint) uint64 {
	if width >= 64 {
		return v >> shift
	}
	return (v >> shift) & ((uint64(1) << width) - 1)
}

// SignExtend64 sign-extends the low width bits of v.
func SignExtend64(v uint64, width uint) int64 {
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// IsInt reports whether v is representable as an n-bit signed integer.
func IsInt(n uint, v int64) bool {
	if n >= 64 {
		return true
	}
	limit := int64(1) << (n - 1)
	return v >= -limit && v < limit
}

// IsUint reports whether v is representable as an n-bit unsigned integer.
func IsUint(n uint, v int64) bool {
	if v < 0 {
		return false
	}
	if n >= 63 {
		return true
	}
	return v < int64(1)<<n
}

// IsAbsoluteUint reports whether |v| is representable in n unsigned bits.
func IsAbsoluteUint(n uint, v int64) bool {
	if v < 0 {
		v = -v
	}
	return IsUint(n, v)
}

// IsAligned reports whether v is a multiple of alignment, a power of two.
func IsAligned(v int64, alignment int64) bool {
	return v&(alignment-1) == 0
}

// IsPowerOfTwo reports whether v is a positive power of two.
func IsPowerOfTwo(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

// Log2 returns the base-2 logarithm of a power of two.
func Log2(v uint64) uint {
	var n uint
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// Low16 returns the low 16 bits of v.
func Low16(v uint32) uint32 { return v & 0xffff }

// High16 returns the high 16 bits of v.
func High16(v uint32) uint32 { return v >> 16 }

// Low32 returns the low 32 bits of v.
func Low32(v uint64) uint32 { return uint32(v) }

// High32 returns the high 32 bits of v.
func High32(v uint64) uint32 { return uint32(v >> 32) }

// RotateRight32 rotates v right by n bits.
func RotateRight32(v uint32, n uint) uint32 {
	n &= 31
	return (v >> n) | (v << ((32 - n) & 31))
}
