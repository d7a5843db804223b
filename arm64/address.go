package arm64

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
)

// AddressMode selects a load/store addressing form.
type AddressMode uint8

// Addressing modes.
const (
	// Offset is base plus an unsigned offset scaled by the access size.
	Offset AddressMode = iota
	// Unscaled is base plus a signed 9-bit byte offset.
	Unscaled
	PreIndex
	PostIndex
	PairOffset
	PairPreIndex
	PairPostIndex
	// RegOffset is base plus an extended, optionally scaled index.
	RegOffset
	// PCOffset is a literal load relative to the instruction.
	PCOffset
)

// Address is a memory operand.
type Address struct {
	mode   AddressMode
	base   Register
	offset int32
	index  Register
	ext    Extend
	scaled bool
}

// Mem returns base+offset, picking the scaled or unscaled form when the
// access size is known later. Use MemMode for explicit index modes.
func Mem(base Register, offset int32) Address {
	return Address{mode: Offset, base: base, offset: offset, index: NoRegister}
}

// MemMode returns an address with an explicit mode.
func MemMode(base Register, offset int32, mode AddressMode) Address {
	asm.Assert(mode != RegOffset && mode != PCOffset, "use MemIndex or PCRelative")
	return Address{mode: mode, base: base, offset: offset, index: NoRegister}
}

// MemIndex returns base plus index extended by ext, scaled by the access
// size when scaled is set.
func MemIndex(base, index Register, ext Extend, scaled bool) Address {
	asm.Assert(ext == UXTW || ext == UXTX || ext == SXTW || ext == SXTX, "bad index extend")
	return Address{mode: RegOffset, base: base, index: index, ext: ext, scaled: scaled}
}

// PCRelative returns a literal address offset bytes from the instruction.
func PCRelative(offset int32) Address {
	return Address{mode: PCOffset, offset: offset, base: NoRegister, index: NoRegister}
}

// FieldAddress addresses a field of a tagged heap object.
func FieldAddress(base Register, offset int32) Address {
	return Mem(base, offset-asm.HeapObjectTag)
}

// Mode returns the addressing mode.
func (a Address) Mode() AddressMode { return a.mode }

// Base returns the base register.
func (a Address) Base() Register { return a.base }

// Offset returns the byte offset.
func (a Address) Offset() int32 { return a.offset }

// CanHoldOffset reports whether offset is encodable in mode for an access
// of size.
func CanHoldOffset(offset int32, mode AddressMode, size OperandSize) bool {
	scale := size.Log2()
	off := int64(offset)
	switch mode {
	case Offset:
		return (bits.IsUint(12+scale, off) && bits.IsAligned(off, 1<<scale)) || bits.IsInt(9, off)
	case Unscaled, PreIndex, PostIndex:
		return bits.IsInt(9, off)
	case PairOffset, PairPreIndex, PairPostIndex:
		return bits.IsInt(7+scale, off) && bits.IsAligned(off, 1<<scale)
	case PCOffset:
		return bits.IsInt(21, off) && bits.IsAligned(off, 4)
	default:
		return false
	}
}

// encoding returns the addressing bits for a single-register access of
// size, including the class base. Offsets that do not scale fall back to
// the unscaled form.
func (a Address) encoding(size OperandSize) uint32 {
	scale := size.Log2()
	checkBase(a.base)
	base := a.base.Encoding() << RnField.Shift
	off := int64(a.offset)
	switch a.mode {
	case Offset:
		if bits.IsUint(12+scale, off) && bits.IsAligned(off, 1<<scale) {
			return LoadStoreUImmBase | base | uint32(off>>scale)<<Imm12Field.Shift
		}
		asm.Assert(bits.IsInt(9, off), "offset %d out of range", off)
		return LoadStoreRegBase | base | Imm9Field.EncodeSigned(off)
	case Unscaled:
		asm.Assert(bits.IsInt(9, off), "offset %d out of range", off)
		return LoadStoreRegBase | base | Imm9Field.EncodeSigned(off)
	case PreIndex:
		asm.Assert(bits.IsInt(9, off), "offset %d out of range", off)
		return LoadStoreRegBase | base | Imm9Field.EncodeSigned(off) | 3<<10
	case PostIndex:
		asm.Assert(bits.IsInt(9, off), "offset %d out of range", off)
		return LoadStoreRegBase | base | Imm9Field.EncodeSigned(off) | 1<<10
	case RegOffset:
		checkReg(a.index)
		var s uint32
		if a.scaled {
			s = 1 << 12
		}
		return LoadStoreRegOffset | base | a.index.Encoding()<<RmField.Shift |
			uint32(a.ext)<<ExtendField.Shift | s
	default:
		asm.Fatalf("address mode %d is not a single-register access", a.mode)
		return 0
	}
}

// pairEncoding returns the addressing bits of ldp/stp with element size.
func (a Address) pairEncoding(size OperandSize) uint32 {
	scale := size.Log2()
	checkBase(a.base)
	off := int64(a.offset)
	asm.Assert(bits.IsInt(7+scale, off) && bits.IsAligned(off, 1<<scale), "pair offset %d out of range", off)
	var mode uint32
	switch a.mode {
	case PairOffset:
		mode = pairOffset
	case PairPreIndex:
		mode = pairPreIndex
	case PairPostIndex:
		mode = pairPostIndex
	default:
		asm.Fatalf("address mode %d is not a pair access", a.mode)
	}
	return mode<<23 | a.base.Encoding()<<RnField.Shift | Imm7Field.EncodeSigned(off>>scale)
}

func checkBase(r Register) {
	asm.Assert(r != ZR && r >= 0 && r <= CSP, "invalid base register %s", r)
}
