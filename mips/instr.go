package mips

import "github.com/sarchlab/jitsim/bits"

// Instr is a decoder view over one instruction word.
type Instr uint32

// Bits returns width bits starting at shift.
func (i Instr) Bits(shift, width uint) uint32 {
	return bits.F(shift, width).Get(uint32(i))
}

// Opcode returns bits 31:26.
func (i Instr) Opcode() Opcode { return Opcode(OpcodeField.Get(uint32(i))) }

// Rs returns bits 25:21.
func (i Instr) Rs() Register { return Register(RsField.Get(uint32(i))) }

// Rt returns bits 20:16.
func (i Instr) Rt() Register { return Register(RtField.Get(uint32(i))) }

// Rd returns bits 15:11.
func (i Instr) Rd() Register { return Register(RdField.Get(uint32(i))) }

// Sa returns the shift amount.
func (i Instr) Sa() uint32 { return SaField.Get(uint32(i)) }

// Function returns bits 5:0.
func (i Instr) Function() uint32 { return FunctionField.Get(uint32(i)) }

// SpecialFunction returns the function field of a SPECIAL-class word.
func (i Instr) SpecialFunction() SpecialFunction { return SpecialFunction(i.Function()) }

// RegImmRt returns the rt field of a REGIMM word.
func (i Instr) RegImmRt() RegImmRt { return RegImmRt(RtField.Get(uint32(i))) }

// Imm16 returns the zero-extended immediate.
func (i Instr) Imm16() uint32 { return Imm16Field.Get(uint32(i)) }

// SImm16 returns the sign-extended immediate.
func (i Instr) SImm16() int32 { return Imm16Field.SignExtend(uint32(i)) }

// Imm26 returns the jump target field.
func (i Instr) Imm26() uint32 { return Imm26Field.Get(uint32(i)) }

// BranchOffset returns the byte offset of a branch from its delay slot.
func (i Instr) BranchOffset() int32 { return i.SImm16() << 2 }

// JumpTarget returns the target of j/jal executed at pc.
func (i Instr) JumpTarget(pc uint32) uint32 {
	return (pc+InstrSize)&0xf0000000 | i.Imm26()<<2
}

// BreakCode returns the code field of break.
func (i Instr) BreakCode() uint32 { return BreakField.Get(uint32(i)) }

// Fmt returns the COP1 format.
func (i Instr) Fmt() Cop1Format { return Cop1Format(FmtField.Get(uint32(i))) }

// Ft returns bits 20:16 as an FPU register.
func (i Instr) Ft() FRegister { return FRegister(FtField.Get(uint32(i))) }

// Fs returns bits 15:11 as an FPU register.
func (i Instr) Fs() FRegister { return FRegister(FsField.Get(uint32(i))) }

// Fd returns bits 10:6 as an FPU register.
func (i Instr) Fd() FRegister { return FRegister(FdField.Get(uint32(i))) }

// Cop1Function returns the function field of COP1 arithmetic.
func (i Instr) Cop1Function() Cop1Function { return Cop1Function(i.Function()) }

// FCompare returns the condition of a c.cond.fmt word.
func (i Instr) FCompare() FCompare { return FCompare(i.Function() & 0xf) }

// IsFCompare reports whether the word is c.cond.fmt.
func (i Instr) IsFCompare() bool {
	return i.Opcode() == COP1 && (i.Fmt() == FmtS || i.Fmt() == FmtD) &&
		i.Function()&0x30 == uint32(CompareBase)
}

// BranchOnTrue reports the tf bit of bc1t/bc1f.
func (i Instr) BranchOnTrue() bool { return i.Bits(16, 1) == 1 }

// IsBreak reports whether the word is break.
func (i Instr) IsBreak() bool {
	return i.Opcode() == SPECIAL && i.SpecialFunction() == BREAK
}

// IsBranch reports whether the word has a delay slot.
func (i Instr) IsBranch() bool {
	switch i.Opcode() {
	case J, JAL, BEQ, BNE, BLEZ, BGTZ, REGIMM:
		return true
	case SPECIAL:
		f := i.SpecialFunction()
		return f == JR || f == JALR
	case COP1:
		return i.Fmt() == FmtBC
	}
	return false
}

// IsNop reports whether the word is the canonical nop.
func (i Instr) IsNop() bool { return i == Nop }
