// Package mips implements the MIPS32 little-endian assembler: typed
// emitters with branch delay slots, immediate materialization and the VM
// macro sequences the code generator uses.
package mips

import (
	"fmt"

	"github.com/sarchlab/jitsim/bits"
)

// Register is a general-purpose register.
type Register int8

// General-purpose registers.
const (
	ZR Register = iota
	AT
	V0
	V1
	A0
	A1
	A2
	A3
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	T8
	T9
	K0
	K1
	GP
	SP
	FP
	RA
	NumRegisters = 32

	NoRegister Register = -1
)

// Register aliases used by generated code.
const (
	TMP = AT
	THR = S3 // current thread
	CTX = S6 // current context
	PP  = S7 // object pool pointer
)

// Registers carrying the runtime entry and argument count into the
// CallToRuntime stub.
const (
	RuntimeEntryReg    = S5
	RuntimeArgCountReg = S4
)

// Exception registers set by an unwind.
const (
	ExceptionObjectReg = V0
	StackTraceReg      = V1
)

var registerNames = [NumRegisters]string{
	"zr", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "thr", "s4", "s5", "ctx", "pp",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

func (r Register) String() string {
	if r >= 0 && r < NumRegisters {
		return registerNames[r]
	}
	if r == NoRegister {
		return "noreg"
	}
	return fmt.Sprintf("Register(%d)", int8(r))
}

// RegList is a bit set of general-purpose registers.
type RegList uint32

// Regs builds a RegList.
func Regs(rs ...Register) RegList {
	var l RegList
	for _, r := range rs {
		l |= 1 << uint(r)
	}
	return l
}

// Has reports whether r is in the list.
func (l RegList) Has(r Register) bool { return l&(1<<uint(r)) != 0 }

// Count returns the number of registers in the list.
func (l RegList) Count() int {
	n := 0
	for v := l; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Calling convention register sets (o32).
var (
	VolatileCPURegs = Regs(AT, V0, V1, A0, A1, A2, A3,
		T0, T1, T2, T3, T4, T5, T6, T7, T8, T9)
	CalleeSavedCPURegs = Regs(S0, S1, S2, S3, S4, S5, S6, S7, GP, FP)
)

// FRegister is a single-precision FPU register.
type FRegister int8

// FPU registers.
const (
	F0 FRegister = iota
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	F13
	F14
	F15
	F16
	F17
	F18
	F19
	F20
	F21
	F22
	F23
	F24
	F25
	F26
	F27
	F28
	F29
	F30
	F31
	NumFRegisters = 32

	NoFRegister FRegister = -1
)

func (f FRegister) String() string { return fmt.Sprintf("f%d", int8(f)) }

// DRegister is a double-precision register: the even/odd pair
// F(2n), F(2n+1), low word in the even register.
type DRegister int8

// Double-precision registers.
const (
	D0 DRegister = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	D8
	D9
	D10
	D11
	D12
	D13
	D14
	D15
	NumDRegisters = 16

	NoDRegister DRegister = -1
)

func (d DRegister) String() string { return fmt.Sprintf("d%d", int8(d)) }

// Low returns the F register holding the low word of d.
func (d DRegister) Low() FRegister { return FRegister(2 * d) }

// High returns the F register holding the high word of d.
func (d DRegister) High() FRegister { return FRegister(2*d + 1) }

// Caller-saved FPU registers: D0-D9. D10-D15 (F20-F31) survive calls.
const (
	FirstVolatileDReg = D0
	LastVolatileDReg  = D9
	VolatileDRegCount = int(LastVolatileDReg-FirstVolatileDReg) + 1
)

// Float argument and result registers.
const (
	FloatArg0   = D6 // f12
	FloatArg1   = D7 // f14
	FloatResult = D0
)

// Opcode is the primary opcode in bits 31:26.
type Opcode uint32

// Primary opcodes.
const (
	SPECIAL  Opcode = 0
	REGIMM   Opcode = 1
	J        Opcode = 2
	JAL      Opcode = 3
	BEQ      Opcode = 4
	BNE      Opcode = 5
	BLEZ     Opcode = 6
	BGTZ     Opcode = 7
	ADDIU    Opcode = 9
	SLTI     Opcode = 10
	SLTIU    Opcode = 11
	ANDI     Opcode = 12
	ORI      Opcode = 13
	XORI     Opcode = 14
	LUI      Opcode = 15
	COP1     Opcode = 17
	SPECIAL2 Opcode = 28
	SPECIAL3 Opcode = 31
	LB       Opcode = 32
	LH       Opcode = 33
	LW       Opcode = 35
	LBU      Opcode = 36
	LHU      Opcode = 37
	SB       Opcode = 40
	SH       Opcode = 41
	SW       Opcode = 43
	LL       Opcode = 48
	LWC1     Opcode = 49
	LDC1     Opcode = 53
	SC       Opcode = 56
	SWC1     Opcode = 57
	SDC1     Opcode = 61
)

// SpecialFunction is the function field of SPECIAL instructions.
type SpecialFunction uint32

// SPECIAL functions.
const (
	SLL   SpecialFunction = 0
	SRL   SpecialFunction = 2
	SRA   SpecialFunction = 3
	SLLV  SpecialFunction = 4
	SRLV  SpecialFunction = 6
	SRAV  SpecialFunction = 7
	JR    SpecialFunction = 8
	JALR  SpecialFunction = 9
	MOVZ  SpecialFunction = 10
	MOVN  SpecialFunction = 11
	BREAK SpecialFunction = 13
	MFHI  SpecialFunction = 16
	MTHI  SpecialFunction = 17
	MFLO  SpecialFunction = 18
	MTLO  SpecialFunction = 19
	MULT  SpecialFunction = 24
	MULTU SpecialFunction = 25
	DIV   SpecialFunction = 26
	DIVU  SpecialFunction = 27
	ADDU  SpecialFunction = 33
	SUBU  SpecialFunction = 35
	AND   SpecialFunction = 36
	OR    SpecialFunction = 37
	XOR   SpecialFunction = 38
	NOR   SpecialFunction = 39
	SLT   SpecialFunction = 42
	SLTU  SpecialFunction = 43
)

// SPECIAL2 and SPECIAL3 functions.
const (
	MUL   SpecialFunction = 2
	CLZ   SpecialFunction = 32
	CLO   SpecialFunction = 33
	EXT   SpecialFunction = 0
	INS   SpecialFunction = 4
	BSHFL SpecialFunction = 32
)

// BSHFL sub-operations in the sa field.
const (
	SEB = 16
	SEH = 24
)

// RegImmRt is the rt field of REGIMM branches.
type RegImmRt uint32

// REGIMM branch kinds.
const (
	BLTZ   RegImmRt = 0
	BGEZ   RegImmRt = 1
	BLTZAL RegImmRt = 16
	BGEZAL RegImmRt = 17
)

// Cop1Format is the fmt field of COP1 instructions.
type Cop1Format uint32

// COP1 formats and move operations.
const (
	FmtMF Cop1Format = 0
	FmtMT Cop1Format = 4
	FmtBC Cop1Format = 8
	FmtS  Cop1Format = 16
	FmtD  Cop1Format = 17
	FmtW  Cop1Format = 20
)

// Cop1Function is the function field of COP1 arithmetic.
type Cop1Function uint32

// COP1 functions.
const (
	FADD    Cop1Function = 0
	FSUB    Cop1Function = 1
	FMUL    Cop1Function = 2
	FDIV    Cop1Function = 3
	FSQRT   Cop1Function = 4
	FABS    Cop1Function = 5
	FMOV    Cop1Function = 6
	FNEG    Cop1Function = 7
	TRUNCW  Cop1Function = 13
	CVTS    Cop1Function = 32
	CVTD    Cop1Function = 33
	CVTW    Cop1Function = 36
)

// CompareBase is the function field of c.f.fmt; the other compares add
// their FCompare.
const CompareBase Cop1Function = 48

// FCompare is the condition of a c.cond.fmt compare, the low four bits
// of the function field.
type FCompare uint32

// Compare conditions.
const (
	CondF   FCompare = 0
	CondUN  FCompare = 1
	CondEQ  FCompare = 2
	CondUEQ FCompare = 3
	CondOLT FCompare = 4
	CondULT FCompare = 5
	CondOLE FCompare = 6
	CondULE FCompare = 7
)

var compareNames = [...]string{"f", "un", "eq", "ueq", "olt", "ult", "ole", "ule"}

func (c FCompare) String() string {
	if int(c) < len(compareNames) {
		return compareNames[c]
	}
	return fmt.Sprintf("FCompare(%d)", uint32(c))
}

// FCSRCondition is the FCSR bit the compares write and bc1t/bc1f read.
const FCSRCondition = 1 << 23

// OperandSize selects the width and signedness of a memory access.
type OperandSize int8

// Operand sizes.
const (
	Byte OperandSize = iota
	UnsignedByte
	Halfword
	UnsignedHalfword
	Word
	UnsignedWord
	SWord
	DWord
)

// Break codes carried by break. They are an internal protocol between the
// assembler and the simulator.
const (
	RedirectionBreak = 0xca11
	BreakpointBreak  = 0xdeb0
	StopMessageBreak = 0xdeb1
)

// Nop is sll zr, zr, 0.
const Nop = 0

// PCReadOffset is zero: branch targets are relative to the delay slot,
// which the encoders account for.
const PCReadOffset = 0

// InstrSize is the width of one instruction.
const InstrSize = 4

// WordSize is the machine word size in bytes.
const WordSize = 4

// Instruction fields.
var (
	OpcodeField   = bits.F(26, 6)
	RsField       = bits.F(21, 5)
	RtField       = bits.F(16, 5)
	RdField       = bits.F(11, 5)
	SaField       = bits.F(6, 5)
	FunctionField = bits.F(0, 6)
	Imm16Field    = bits.F(0, 16)
	Imm26Field    = bits.F(0, 26)
	BreakField    = bits.F(6, 20)
	FmtField      = bits.F(21, 5)
	FtField       = bits.F(16, 5)
	FsField       = bits.F(11, 5)
	FdField       = bits.F(6, 5)
)
