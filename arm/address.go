package arm

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
)

// AddressMode is the P U W encoding of a load/store address, already in
// position at bit 21.
type AddressMode uint32

// Address modes.
const (
	Offset       AddressMode = (8 | 4 | 0) << 21 // [rn +/- off]
	PreIndex     AddressMode = (8 | 4 | 1) << 21 // [rn +/- off]!
	PostIndex    AddressMode = (0 | 4 | 0) << 21 // [rn], +/- off
	NegOffset    AddressMode = (8 | 0 | 0) << 21
	NegPreIndex  AddressMode = (8 | 0 | 1) << 21
	NegPostIndex AddressMode = (0 | 0 | 0) << 21
)

// Address is a memory operand: a base register with an immediate or
// scaled index register offset.
type Address struct {
	kind     addressKind
	encoding uint32
}

type addressKind uint8

const (
	addressImmediate addressKind = iota
	addressIndexed
)

// MemAt returns [rn, #offset] in mode am. A negative offset flips the
// up bit.
func MemAt(rn Register, offset int32, am AddressMode) Address {
	asm.Assert(bits.IsAbsoluteUint(12, int64(offset)), "offset %d does not fit 12 bits", offset)
	if offset < 0 {
		offset = -offset
		am ^= 1 << UShift
	}
	return Address{
		kind:     addressImmediate,
		encoding: uint32(am) | uint32(rn)<<16 | uint32(offset),
	}
}

// Mem returns [rn, #offset].
func Mem(rn Register, offset int32) Address { return MemAt(rn, offset, Offset) }

// MemIndex returns [rn, +/-rm, shift #amount] in mode am.
func MemIndex(rn, rm Register, shift Shift, amount uint32, am AddressMode) Address {
	o := RegShiftImm(rm, shift, amount)
	return Address{
		kind:     addressIndexed,
		encoding: uint32(am) | uint32(rn)<<16 | o.Encoding(),
	}
}

// FieldAddress returns the address of the field at offset inside the
// tagged object held in rn.
func FieldAddress(rn Register, offset int32) Address {
	return Mem(rn, offset-asm.HeapObjectTag)
}

// Encoding returns the mode 2 address bits.
func (a Address) Encoding() uint32 { return a.encoding }

// IsIndexed reports whether the offset is a register.
func (a Address) IsIndexed() bool { return a.kind == addressIndexed }

// Mode returns the address mode.
func (a Address) Mode() AddressMode {
	return AddressMode(a.encoding) & (PreIndex | NegPreIndex | Offset)
}

// Base returns the base register.
func (a Address) Base() Register { return Register(RnField.Get(a.encoding)) }

// Offset returns the signed immediate offset.
func (a Address) Offset() int32 {
	asm.Assert(a.kind == addressImmediate, "indexed address has no immediate")
	off := int32(a.encoding & 0xfff)
	if a.encoding&(1<<UShift) == 0 {
		off = -off
	}
	return off
}

// encoding3 returns the mode 3 form: the offset split into two nibbles
// with the immediate bit set.
func (a Address) encoding3() uint32 {
	if a.kind == addressIndexed {
		asm.Assert(a.encoding&0xff0 == 0, "mode 3 index cannot be shifted")
		return a.encoding
	}
	off := a.encoding & 0xfff
	asm.Assert(off < 256, "mode 3 offset %d does not fit 8 bits", off)
	return a.encoding&^0xfff | B22 | (off&0xf0)<<4 | off&0xf
}

// vencoding returns the VFP form: a word-scaled 8-bit offset in Offset or
// NegOffset mode.
func (a Address) vencoding() uint32 {
	asm.Assert(a.kind == addressImmediate, "vfp address cannot be indexed")
	off := a.encoding & 0xfff
	asm.Assert(off&3 == 0 && off < 1024, "vfp offset %d out of range", off)
	mode := a.Mode()
	asm.Assert(mode == Offset || mode == NegOffset, "vfp address must be an offset")
	v := uint32(a.Base())<<16 | off>>2
	if mode == Offset {
		v |= 1 << UShift
	}
	return v
}

// CanHoldLoadOffset reports whether a load of size can encode offset
// directly, and returns the offset mask of its addressing mode.
func CanHoldLoadOffset(size OperandSize, offset int32) (mask int32, ok bool) {
	switch size {
	case Byte, Halfword, UnsignedHalfword, WordPair:
		return 0xff, bits.IsAbsoluteUint(8, int64(offset)) // mode 3
	case UnsignedByte, Word, UnsignedWord:
		return 0xfff, bits.IsAbsoluteUint(12, int64(offset)) // mode 2
	case SWord, DWord:
		return 0x3fc, bits.IsAbsoluteUint(10, int64(offset)) && offset&3 == 0 // vfp
	case RegisterList:
		return 0, offset == 0
	default:
		asm.Unreachable()
		return 0, false
	}
}

// CanHoldStoreOffset is CanHoldLoadOffset for stores. Stores have no
// signed byte form, so Byte uses mode 2.
func CanHoldStoreOffset(size OperandSize, offset int32) (mask int32, ok bool) {
	switch size {
	case Halfword, UnsignedHalfword, WordPair:
		return 0xff, bits.IsAbsoluteUint(8, int64(offset))
	case Byte, UnsignedByte, Word, UnsignedWord:
		return 0xfff, bits.IsAbsoluteUint(12, int64(offset))
	case SWord, DWord:
		return 0x3fc, bits.IsAbsoluteUint(10, int64(offset)) && offset&3 == 0
	case RegisterList:
		return 0, offset == 0
	default:
		asm.Unreachable()
		return 0, false
	}
}
