package arm64

import "github.com/sarchlab/jitsim/bits"

// Instr is a decoder view over one A64 instruction word.
type Instr uint32

// Bits returns width bits starting at shift.
func (i Instr) Bits(shift, width uint) uint32 {
	return bits.F(shift, width).Get(uint32(i))
}

// Bit returns bit n.
func (i Instr) Bit(n uint) uint32 { return uint32(i) >> n & 1 }

// SF reports a 64-bit operation.
func (i Instr) SF() bool { return SFField.Get(uint32(i)) == 1 }

// Rd returns bits 4:0.
func (i Instr) Rd() uint32 { return RdField.Get(uint32(i)) }

// Rt is Rd for loads, stores and compare-and-branch.
func (i Instr) Rt() uint32 { return RdField.Get(uint32(i)) }

// Rn returns bits 9:5.
func (i Instr) Rn() uint32 { return RnField.Get(uint32(i)) }

// Ra returns bits 14:10.
func (i Instr) Ra() uint32 { return RaField.Get(uint32(i)) }

// Rt2 returns the second register of a pair.
func (i Instr) Rt2() uint32 { return Rt2Field.Get(uint32(i)) }

// Rm returns bits 20:16.
func (i Instr) Rm() uint32 { return RmField.Get(uint32(i)) }

// Rs returns the status register of a store-exclusive.
func (i Instr) Rs() uint32 { return RsField.Get(uint32(i)) }

// Imm12 returns the add/sub or load/store unsigned immediate.
func (i Instr) Imm12() uint32 { return Imm12Field.Get(uint32(i)) }

// Imm16 returns the move-wide or exception immediate.
func (i Instr) Imm16() uint32 { return Imm16Field.Get(uint32(i)) }

// Imm6 returns the shift amount of shifted-register forms.
func (i Instr) Imm6() uint32 { return Imm6Field.Get(uint32(i)) }

// Imm3 returns the left shift of extended-register forms.
func (i Instr) Imm3() uint32 { return Imm3Field.Get(uint32(i)) }

// Imm9 returns the signed unscaled or index offset.
func (i Instr) Imm9() int64 { return int64(Imm9Field.SignExtend(uint32(i))) }

// Imm7 returns the signed unscaled pair offset.
func (i Instr) Imm7() int64 { return int64(Imm7Field.SignExtend(uint32(i))) }

// Hw returns the move-wide half-word selector.
func (i Instr) Hw() uint32 { return HwField.Get(uint32(i)) }

// ShiftType returns the shift of shifted-register forms.
func (i Instr) ShiftType() Shift { return Shift(ShiftField.Get(uint32(i))) }

// ExtendType returns the extend of extended-register forms.
func (i Instr) ExtendType() Extend { return Extend(ExtendField.Get(uint32(i))) }

// N, Immr and Imms are the bitfield and logical-immediate fields.
func (i Instr) N() uint32 { return NField.Get(uint32(i)) }

// Immr returns bits 21:16.
func (i Instr) Immr() uint32 { return ImmrField.Get(uint32(i)) }

// Imms returns bits 15:10.
func (i Instr) Imms() uint32 { return ImmsField.Get(uint32(i)) }

// SelectCondition returns the condition of csel and ccmp.
func (i Instr) SelectCondition() Condition { return Condition(CondField.Get(uint32(i))) }

// BranchCondition returns the condition of b.cond.
func (i Instr) BranchCondition() Condition { return Condition(BCondField.Get(uint32(i))) }

// NZCV returns the flags immediate of ccmp.
func (i Instr) NZCV() uint32 { return NZCVField.Get(uint32(i)) }

// Size returns bits 31:30 of a load/store.
func (i Instr) Size() uint32 { return SizeField.Get(uint32(i)) }

// Opc returns bits 23:22 of a load/store.
func (i Instr) Opc() uint32 { return OpcField.Get(uint32(i)) }

// IsVector reports the V bit of a load/store.
func (i Instr) IsVector() bool { return i.Bit(26) == 1 }

// FPType returns the FP type field: 0 single, 1 double.
func (i Instr) FPType() uint32 { return FPTypeField.Get(uint32(i)) }

// FPImm8 returns the fmov immediate.
func (i Instr) FPImm8() uint32 { return FPImm8Field.Get(uint32(i)) }

// Imm26Offset returns the byte offset of b and bl.
func (i Instr) Imm26Offset() int64 { return int64(Imm26Field.SignExtend(uint32(i))) << 2 }

// Imm19Offset returns the byte offset of b.cond, cbz, cbnz and literal
// loads.
func (i Instr) Imm19Offset() int64 { return int64(Imm19Field.SignExtend(uint32(i))) << 2 }

// Imm14Offset returns the byte offset of tbz and tbnz.
func (i Instr) Imm14Offset() int64 { return int64(Imm14Field.SignExtend(uint32(i))) << 2 }

// ADROffset returns the byte offset of adr.
func (i Instr) ADROffset() int64 {
	v := ImmHiField.Get(uint32(i))<<2 | ImmLoField.Get(uint32(i))
	return bits.SignExtend64(uint64(v), 21)
}

// TestBit returns the bit number tested by tbz and tbnz.
func (i Instr) TestBit() uint32 { return B5Field.Get(uint32(i))<<5 | B40Field.Get(uint32(i)) }

// IsUncondBranch matches b and bl.
func (i Instr) IsUncondBranch() bool { return uint32(i)&0x7c000000 == UncondBranchBase }

// IsCondBranch matches b.cond.
func (i Instr) IsCondBranch() bool { return uint32(i)&0xff000010 == CondBranchBase }

// IsCompareBranch matches cbz and cbnz.
func (i Instr) IsCompareBranch() bool { return uint32(i)&0x7e000000 == CompareBranchBase }

// IsTestBranch matches tbz and tbnz.
func (i Instr) IsTestBranch() bool { return uint32(i)&0x7e000000 == TestBranchBase }

// IsADR matches adr.
func (i Instr) IsADR() bool { return uint32(i)&0x9f000000 == PCRelBase }

// IsLoadLiteral matches ldr (literal), integer and FP.
func (i Instr) IsLoadLiteral() bool { return uint32(i)&0x3b000000 == LoadLiteralBase }

// IsException matches svc, hvc, smc, brk and hlt.
func (i Instr) IsException() bool { return uint32(i)&0xff000000 == ExceptionBase }

// ExceptionOpc returns bits 23:21 of an exception instruction: 0 svc,
// 1 brk, 2 hlt.
func (i Instr) ExceptionOpc() uint32 { return i.Bits(21, 3) }

// IsSVC matches svc.
func (i Instr) IsSVC() bool { return i.IsException() && i.ExceptionOpc() == 0 && i.Bits(0, 5) == 1 }

// IsHLT matches hlt.
func (i Instr) IsHLT() bool { return i.IsException() && i.ExceptionOpc() == 2 && i.Bits(0, 5) == 0 }

// IsBRK matches brk.
func (i Instr) IsBRK() bool { return i.IsException() && i.ExceptionOpc() == 1 && i.Bits(0, 5) == 0 }

// PCRelativeOffset returns the target offset of a PC-relative
// instruction.
func (i Instr) PCRelativeOffset() (int64, bool) {
	switch {
	case i.IsUncondBranch():
		return i.Imm26Offset(), true
	case i.IsCondBranch(), i.IsCompareBranch(), i.IsLoadLiteral():
		return i.Imm19Offset(), true
	case i.IsTestBranch():
		return i.Imm14Offset(), true
	case i.IsADR():
		return i.ADROffset(), true
	}
	return 0, false
}

// EncodeImm26 replaces the b/bl offset.
func EncodeImm26(word uint32, offset int64) uint32 {
	return Imm26Field.Set(word, Imm26Field.EncodeSigned(offset>>2)>>Imm26Field.Shift)
}

// EncodeImm19 replaces the b.cond/cbz/literal offset.
func EncodeImm19(word uint32, offset int64) uint32 {
	return Imm19Field.Set(word, Imm19Field.EncodeSigned(offset>>2)>>Imm19Field.Shift)
}

// EncodeImm14 replaces the tbz/tbnz offset.
func EncodeImm14(word uint32, offset int64) uint32 {
	return Imm14Field.Set(word, Imm14Field.EncodeSigned(offset>>2)>>Imm14Field.Shift)
}
