package arm64

import (
	"math/bits"

	"github.com/sarchlab/jitsim/asm"
	jbits "github.com/sarchlab/jitsim/bits"
)

// OperandType discriminates second operands.
type OperandType uint8

// Operand types. Unknown is what CanHold reports for a value no single
// instruction can take.
const (
	OperandUnknown OperandType = iota
	OperandShifted
	OperandExtended
	OperandImmediate
	OperandBitfieldImm
)

// Operand is the flexible second operand of data-processing
// instructions: a shifted or extended register, a 12-bit arithmetic
// immediate, or an N:immr:imms logical immediate.
type Operand struct {
	typ      OperandType
	encoding uint32
	rm       Register
}

// Reg returns rm as an unshifted operand.
func Reg(rm Register) Operand { return Shifted(rm, LSL, 0) }

// Shifted returns rm shifted by a constant.
func Shifted(rm Register, shift Shift, amount uint32) Operand {
	asm.Assert(amount < 64, "shift amount %d out of range", amount)
	asm.Assert(rm != CSP, "csp cannot be a shifted operand")
	return Operand{
		typ:      OperandShifted,
		encoding: uint32(shift)<<ShiftField.Shift | rm.Encoding()<<RmField.Shift | amount<<Imm6Field.Shift,
		rm:       rm,
	}
}

// Extended returns rm extended and then shifted left by amount.
func Extended(rm Register, ext Extend, amount uint32) Operand {
	asm.Assert(amount <= 4, "extend shift %d out of range", amount)
	asm.Assert(rm != CSP, "csp cannot be an extended operand")
	return Operand{
		typ:      OperandExtended,
		encoding: rm.Encoding()<<RmField.Shift | uint32(ext)<<ExtendField.Shift | amount<<Imm3Field.Shift,
		rm:       rm,
	}
}

// Imm returns the arithmetic immediate imm, which must fit 12 bits
// optionally shifted left by 12.
func Imm(imm uint64) Operand {
	var o Operand
	asm.Assert(CanHold(int64(imm), 64, &o) == OperandImmediate, "0x%x is not an arithmetic immediate", imm)
	return o
}

// Type returns the operand type.
func (o Operand) Type() OperandType { return o.typ }

// Encoding returns the operand bits to or into an instruction.
func (o Operand) Encoding() uint32 { return o.encoding }

// Register returns the register of a shifted or extended operand.
func (o Operand) Register() Register {
	asm.Assert(o.typ == OperandShifted || o.typ == OperandExtended, "operand has no register")
	return o.rm
}

// ShiftAmount returns the shift of a shifted operand.
func (o Operand) ShiftAmount() uint32 { return Imm6Field.Get(o.encoding) }

// ShiftType returns the shift of a shifted operand.
func (o Operand) ShiftType() Shift { return Shift(ShiftField.Get(o.encoding)) }

// ImmValue returns the value of an arithmetic immediate.
func (o Operand) ImmValue() uint64 {
	v := uint64(Imm12Field.Get(o.encoding))
	if o.encoding&(1<<22) != 0 {
		v <<= 12
	}
	return v
}

// toExtended rewrites a plain register operand as UXTX/UXTW so it can sit
// next to CSP.
func (o Operand) toExtended(width int) Operand {
	asm.Assert(o.typ == OperandShifted && o.ShiftType() == LSL && o.ShiftAmount() <= 4,
		"shifted operand cannot be combined with csp")
	ext := UXTX
	if width == 32 {
		ext = UXTW
	}
	return Extended(o.rm, ext, o.ShiftAmount())
}

// CanHold classifies imm as an operand of a width-bit instruction and
// fills o when it is encodable. On OperandUnknown o is left untouched.
func CanHold(imm int64, width int, o *Operand) OperandType {
	asm.Assert(width == 32 || width == 64, "width %d", width)
	switch {
	case jbits.IsUint(12, imm):
		*o = Operand{typ: OperandImmediate, encoding: uint32(imm) << Imm12Field.Shift}
		return OperandImmediate
	case imm&0xfff == 0 && jbits.IsUint(12, imm>>12):
		*o = Operand{typ: OperandImmediate, encoding: 1<<22 | uint32(imm>>12)<<Imm12Field.Shift}
		return OperandImmediate
	}
	if n, immr, imms, ok := EncodeLogicalImm(uint64(imm), width); ok {
		*o = Operand{
			typ:      OperandBitfieldImm,
			encoding: n<<NField.Shift | immr<<ImmrField.Shift | imms<<ImmsField.Shift,
		}
		return OperandBitfieldImm
	}
	return OperandUnknown
}

// IsImmLogical reports whether value is a logical immediate at width.
func IsImmLogical(value uint64, width int) bool {
	_, _, _, ok := EncodeLogicalImm(value, width)
	return ok
}

// EncodeLogicalImm finds the N:immr:imms encoding of value: a repeating
// element of 2 to 64 bits holding one rotated run of ones. All-zeros and
// all-ones have no encoding.
func EncodeLogicalImm(value uint64, width int) (n, immr, imms uint32, ok bool) {
	if width == 32 {
		value = value&0xffffffff | value<<32
	}
	if value == 0 || value == ^uint64(0) {
		return 0, 0, 0, false
	}

	size := uint(64)
	for size > 2 {
		half := size / 2
		mask := uint64(1)<<half - 1
		if value&mask != (value>>half)&mask {
			break
		}
		size = half
	}
	mask := ^uint64(0) >> (64 - size)
	elem := value & mask
	ones := uint(bits.OnesCount64(elem))
	run := uint64(1)<<ones - 1

	for r := uint(0); r < size; r++ {
		if rotr(elem, r, size) == run {
			if size == 64 {
				n = 1
			}
			immr = uint32((size - r) % size)
			imms = uint32(^(size<<1-1)&0x3f) | uint32(ones-1)
			return n, immr, imms, true
		}
	}
	return 0, 0, 0, false
}

// DecodeLogicalImm expands N:immr:imms to a width-bit value.
func DecodeLogicalImm(n, immr, imms uint32, width int) (uint64, bool) {
	combined := n<<6 | (^imms & 0x3f)
	if combined == 0 {
		return 0, false
	}
	length := uint(bits.Len32(combined)) - 1
	if length < 1 || (width == 32 && n == 1) {
		return 0, false
	}
	size := uint(1) << length
	levels := uint32(size - 1)
	s, r := imms&levels, immr&levels
	if s == levels {
		return 0, false
	}
	elem := rotr(uint64(1)<<(s+1)-1, uint(r), size)
	value := elem
	for k := size; k < 64; k *= 2 {
		value |= value << k
	}
	if width == 32 {
		value &= 0xffffffff
	}
	return value, true
}

func rotr(v uint64, r, size uint) uint64 {
	mask := ^uint64(0) >> (64 - size)
	v &= mask
	if r == 0 {
		return v
	}
	return (v>>r | v<<(size-r)) & mask
}
