package arm

import "github.com/sarchlab/jitsim/bits"

// Instr is a decoder view over one instruction word.
type Instr uint32

// Bits returns width bits starting at shift.
func (i Instr) Bits(shift, width uint) uint32 {
	return bits.F(shift, width).Get(uint32(i))
}

// Bit returns bit n.
func (i Instr) Bit(n uint) uint32 { return uint32(i) >> n & 1 }

// Condition returns the condition field.
func (i Instr) Condition() Condition { return Condition(CondField.Get(uint32(i))) }

// Type returns bits 27:25.
func (i Instr) Type() uint32 { return TypeField.Get(uint32(i)) }

// Opcode returns the data-processing opcode.
func (i Instr) Opcode() Opcode { return Opcode(OpcodeField.Get(uint32(i))) }

// SetsFlags reports the S bit.
func (i Instr) SetsFlags() bool { return SField.Get(uint32(i)) == 1 }

// Rn returns bits 19:16.
func (i Instr) Rn() Register { return Register(RnField.Get(uint32(i))) }

// Rd returns bits 15:12.
func (i Instr) Rd() Register { return Register(RdField.Get(uint32(i))) }

// Rs returns bits 11:8.
func (i Instr) Rs() Register { return Register(RsField.Get(uint32(i))) }

// Rm returns bits 3:0.
func (i Instr) Rm() Register { return Register(RmField.Get(uint32(i))) }

// ShiftType returns the shifter operand shift type.
func (i Instr) ShiftType() Shift { return Shift(ShiftField.Get(uint32(i))) }

// ShiftAmount returns the 5-bit shift immediate.
func (i Instr) ShiftAmount() uint32 { return ShiftImmField.Get(uint32(i)) }

// RegShift reports whether the shift amount comes from Rs.
func (i Instr) RegShift() bool { return i.Bit(4) == 1 }

// Rotate returns the immediate rotate field.
func (i Instr) Rotate() uint32 { return RotateField.Get(uint32(i)) }

// Immed8 returns the immediate byte.
func (i Instr) Immed8() uint32 { return Immed8Field.Get(uint32(i)) }

// Immediate returns the rotated immediate operand.
func (i Instr) Immediate() uint32 {
	return bits.RotateRight32(i.Immed8(), 2*uint(i.Rotate()))
}

// Offset12 returns the mode 2 immediate offset.
func (i Instr) Offset12() uint32 { return Offset12Field.Get(uint32(i)) }

// Offset8 returns the split mode 3 immediate offset.
func (i Instr) Offset8() uint32 { return i.Bits(8, 4)<<4 | i.Bits(0, 4) }

// Imm16 returns the movw/movt immediate.
func (i Instr) Imm16() uint32 { return Imm4HField.Get(uint32(i))<<12 | Offset12Field.Get(uint32(i)) }

// BkptImm returns the bkpt immediate.
func (i Instr) BkptImm() uint32 { return Imm12HField.Get(uint32(i))<<4 | i.Bits(0, 4) }

// SVCImm returns the svc immediate.
func (i Instr) SVCImm() uint32 { return SVCField.Get(uint32(i)) }

// HasP, HasU, HasB, HasW and HasL read the load/store control bits.
func (i Instr) HasP() bool { return i.Bit(24) == 1 }

// HasU reports the up bit.
func (i Instr) HasU() bool { return i.Bit(23) == 1 }

// HasB reports the byte bit.
func (i Instr) HasB() bool { return i.Bit(22) == 1 }

// HasW reports the writeback bit.
func (i Instr) HasW() bool { return i.Bit(21) == 1 }

// HasL reports the load bit.
func (i Instr) HasL() bool { return i.Bit(20) == 1 }

// HasLink reports the branch link bit.
func (i Instr) HasLink() bool { return i.Bit(24) == 1 }

// RegisterList returns the ldm/stm register list.
func (i Instr) RegisterList() RegList { return RegList(i.Bits(0, 16)) }

// BranchOffset returns the byte offset of a b/bl target from the branch
// instruction itself.
func (i Instr) BranchOffset() int32 {
	return DecodeBranchOffset(uint32(i))
}

// IsDataProcessing tests for type 0/1 data-processing instructions.
func (i Instr) IsDataProcessing() bool {
	return i.Bits(20, 5)&0x19 != 0x10 &&
		(i.Bit(25) == 1 || i.Bit(4) == 0 || i.Bit(7) == 0)
}

// IsMiscellaneous tests for bx, blx, clz and bkpt.
func (i Instr) IsMiscellaneous() bool {
	return i.Bit(25) == 0 && i.Bits(20, 5)&0x19 == 0x10 && i.Bit(7) == 0
}

// IsMultiplyOrSyncPrimitive tests for multiplies and ldrex/strex.
func (i Instr) IsMultiplyOrSyncPrimitive() bool {
	return i.Bit(25) == 0 && i.Bits(4, 4) == 9
}

// IsDivision tests for sdiv/udiv.
func (i Instr) IsDivision() bool {
	return i.Type() == 3 && i.Bits(20, 5)&0x1d == 0x11 && i.Bits(4, 4) == 1 && i.Bits(12, 4) == 0xf
}

// IsSVC tests for a supervisor call.
func (i Instr) IsSVC() bool { return i.Type() == 7 && i.Bit(24) == 1 }

// IsBranch tests for b/bl.
func (i Instr) IsBranch() bool { return i.Type() == 5 && i.Condition() != SpecialCondition }

// IsVFPDataProcessingOrSingleTransfer tests bits 27:24 = 1110 with
// coprocessor 10/11.
func (i Instr) IsVFPDataProcessingOrSingleTransfer() bool {
	return i.Type() == 7 && i.Bit(24) == 0 && i.Bits(9, 3) == 5
}

// IsVFPLoadStore tests for coprocessor 10/11 loads, stores and two
// register transfers.
func (i Instr) IsVFPLoadStore() bool {
	return i.Type() == 6 && i.Bits(9, 3) == 5
}

// IsSIMDDataProcessing tests for the NEON data-processing space.
func (i Instr) IsSIMDDataProcessing() bool {
	return i.Condition() == SpecialCondition && i.Bits(25, 3) == 1
}

// IsSpecialClrex tests for clrex.
func (i Instr) IsSpecialClrex() bool { return uint32(i) == 0xf57ff01f }

// IsNop tests for the architectural hint nop.
func (i Instr) IsNop() bool { return uint32(i)&0x0fffffff == 0x0320f000 }

// VFP register fields. Single-precision registers split their number
// across a 4-bit field and one extra low bit; double-precision registers
// use the extra bit as the high bit.

// Sd returns the destination single register.
func (i Instr) Sd() SRegister { return SRegister(i.Bits(12, 4)<<1 | i.Bit(22)) }

// Sn returns the first operand single register.
func (i Instr) Sn() SRegister { return SRegister(i.Bits(16, 4)<<1 | i.Bit(7)) }

// Sm returns the second operand single register.
func (i Instr) Sm() SRegister { return SRegister(i.Bits(0, 4)<<1 | i.Bit(5)) }

// Dd returns the destination double register.
func (i Instr) Dd() DRegister { return DRegister(i.Bit(22)<<4 | i.Bits(12, 4)) }

// Dn returns the first operand double register.
func (i Instr) Dn() DRegister { return DRegister(i.Bit(7)<<4 | i.Bits(16, 4)) }

// Dm returns the second operand double register.
func (i Instr) Dm() DRegister { return DRegister(i.Bit(5)<<4 | i.Bits(0, 4)) }

// Qd returns the destination quad register.
func (i Instr) Qd() QRegister { return QRegister(i.Dd() >> 1) }

// Qn returns the first operand quad register.
func (i Instr) Qn() QRegister { return QRegister(i.Dn() >> 1) }

// Qm returns the second operand quad register.
func (i Instr) Qm() QRegister { return QRegister(i.Dm() >> 1) }

// IsDoublePrecision reports the VFP sz bit.
func (i Instr) IsDoublePrecision() bool { return i.Bit(8) == 1 }

// VFPImm8 returns the split VFP modified immediate.
func (i Instr) VFPImm8() uint32 { return i.Bits(16, 4)<<4 | i.Bits(0, 4) }

// EncodeBranchOffset packs offset, measured from the branch instruction,
// into inst.
func EncodeBranchOffset(offset int32, inst uint32) uint32 {
	offset -= PCReadOffset
	if offset%4 != 0 || !bits.IsInt(26, int64(offset)) {
		panicBranchRange(offset)
	}
	return inst&^BranchField.Mask() | uint32(offset>>2)&BranchField.Mask()
}

// DecodeBranchOffset extracts the offset, measured from the branch
// instruction, from inst.
func DecodeBranchOffset(inst uint32) int32 {
	return BranchField.SignExtend(inst)<<2 + PCReadOffset
}
