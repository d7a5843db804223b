package arm

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
)

// OperandKind discriminates shifter operands.
type OperandKind uint8

// Operand kinds.
const (
	OperandImmediate OperandKind = iota
	OperandRegister
	OperandShiftedImmediate
	OperandShiftedRegister
)

// Operand is a data-processing shifter operand: a rotated 8-bit immediate
// or a register optionally shifted by an immediate or by a register.
type Operand struct {
	kind     OperandKind
	encoding uint32
}

// Imm returns the immediate operand imm8 rotated right by 2*rotate.
func Imm(rotate, imm8 uint32) Operand {
	asm.Assert(rotate < 16, "rotate %d out of range", rotate)
	asm.Assert(imm8 < 256, "immediate %d out of range", imm8)
	return Operand{kind: OperandImmediate, encoding: rotate<<8 | imm8}
}

// Reg returns the plain register operand rm.
func Reg(rm Register) Operand {
	return Operand{kind: OperandRegister, encoding: uint32(rm)}
}

// RegShiftImm returns rm shifted by a constant. RRX is encoded as ROR #0.
func RegShiftImm(rm Register, shift Shift, amount uint32) Operand {
	asm.Assert(amount < 32, "shift amount %d out of range", amount)
	if shift == RRX {
		asm.Assert(amount == 0, "rrx takes no shift amount")
		shift = ROR
	}
	return Operand{
		kind:     OperandShiftedImmediate,
		encoding: amount<<7 | uint32(shift)<<5 | uint32(rm),
	}
}

// RegShiftReg returns rm shifted by the low byte of rs.
func RegShiftReg(rm Register, shift Shift, rs Register) Operand {
	asm.Assert(shift != RRX, "rrx cannot shift by register")
	return Operand{
		kind:     OperandShiftedRegister,
		encoding: uint32(rs)<<8 | uint32(shift)<<5 | B4 | uint32(rm),
	}
}

// Kind returns the operand kind.
func (o Operand) Kind() OperandKind { return o.kind }

// Type returns the instruction type bit 25 value: 1 for immediates.
func (o Operand) Type() uint32 {
	if o.kind == OperandImmediate {
		return 1
	}
	return 0
}

// Encoding returns the low 12 bits of the instruction.
func (o Operand) Encoding() uint32 { return o.encoding }

// IsRegister reports whether the operand is an unshifted register.
func (o Operand) IsRegister() bool { return o.kind == OperandRegister }

// Register returns rm for register operands.
func (o Operand) Register() Register {
	asm.Assert(o.kind != OperandImmediate, "immediate operand has no register")
	return Register(o.encoding & 0xf)
}

// Value returns the immediate value for immediate operands.
func (o Operand) Value() uint32 {
	asm.Assert(o.kind == OperandImmediate, "not an immediate operand")
	return bits.RotateRight32(o.encoding&0xff, 2*uint(o.encoding>>8))
}

// CanHold reports whether immediate fits a rotated 8-bit immediate and, if
// so, stores the operand in o. On failure o is left untouched.
func CanHold(immediate uint32, o *Operand) bool {
	for rot := uint32(0); rot < 16; rot++ {
		// Rotating left by 2*rot undoes a right rotation by the same amount.
		v := bits.RotateRight32(immediate, 32-2*uint(rot))
		if v < 256 {
			*o = Imm(rot, v)
			return true
		}
	}
	return false
}
