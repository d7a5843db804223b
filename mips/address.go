package mips

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
)

// Address is a base register plus a signed 16-bit displacement, the only
// memory operand MIPS has.
type Address struct {
	base   Register
	offset int32
}

// Mem returns offset(base).
func Mem(base Register, offset int32) Address {
	checkReg(base)
	asm.Assert(CanHoldOffset(offset), "offset %d does not fit 16 bits", offset)
	return Address{base: base, offset: offset}
}

// FieldAddress addresses the field at offset of the tagged object in base.
func FieldAddress(base Register, offset int32) Address {
	return Mem(base, offset-asm.HeapObjectTag)
}

// Base returns the base register.
func (a Address) Base() Register { return a.base }

// Offset returns the displacement.
func (a Address) Offset() int32 { return a.offset }

func (a Address) encoding() uint32 {
	return RsField.Encode(uint32(a.base)) | Imm16Field.EncodeSigned(int64(a.offset))
}

// CanHoldOffset reports whether offset fits a load/store displacement.
func CanHoldOffset(offset int32) bool { return bits.IsInt(16, int64(offset)) }
