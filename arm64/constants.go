// Package arm64 implements the A64 assembler used by the code generator:
// typed instruction emitters, shifted/extended/logical-immediate operands,
// addressing modes, immediate materialization and the VM macro sequences.
package arm64

import (
	"fmt"

	"github.com/sarchlab/jitsim/bits"
)

// Register is a general-purpose register. CSP and ZR both encode as 31;
// which one an instruction sees depends on the operand slot.
type Register int8

// General-purpose registers.
const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	R29
	R30
	CSP
	ZR

	NumRegisters = 32

	NoRegister Register = -1
)

// Register aliases used by generated code.
const (
	IP0  = R16
	IP1  = R17
	TMP  = IP0
	TMP2 = IP1
	SP   = R15 // stack pointer of generated code; CSP is the native one
	THR  = R26 // current thread
	PP   = R27 // object pool pointer
	CTX  = R28 // current context
	FP   = R29
	LR   = R30
)

// Registers carrying the runtime entry and argument count into the
// CallToRuntime stub.
const (
	RuntimeEntryReg    = R5
	RuntimeArgCountReg = R4
)

// Exception registers set by an unwind.
const (
	ExceptionObjectReg = R0
	StackTraceReg      = R1
)

var registerNames = [...]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "sp",
	"ip0", "ip1", "r18", "r19", "r20", "r21", "r22", "r23",
	"r24", "r25", "thr", "pp", "ctx", "fp", "lr", "csp", "zr",
}

func (r Register) String() string {
	if r >= 0 && int(r) < len(registerNames) {
		return registerNames[r]
	}
	if r == NoRegister {
		return "noreg"
	}
	return fmt.Sprintf("Register(%d)", int8(r))
}

// Encoding returns the 5-bit register number.
func (r Register) Encoding() uint32 {
	if r == CSP || r == ZR {
		return 31
	}
	return uint32(r)
}

// RegList is a bit set of general-purpose registers R0-R30.
type RegList uint32

// Regs builds a RegList.
func Regs(rs ...Register) RegList {
	var l RegList
	for _, r := range rs {
		l |= 1 << uint(r)
	}
	return l
}

// RegRange returns the registers first..last inclusive.
func RegRange(first, last Register) RegList {
	var l RegList
	for r := first; r <= last; r++ {
		l |= 1 << uint(r)
	}
	return l
}

// Has reports whether r is in the list.
func (l RegList) Has(r Register) bool { return r >= 0 && r < CSP && l&(1<<uint(r)) != 0 }

// Count returns the number of registers in the list.
func (l RegList) Count() int {
	n := 0
	for v := l; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Calling convention register sets.
var (
	ArgumentRegisters  = RegRange(R0, R7)
	CalleeSavedCPURegs = RegRange(R19, R28)
	// VolatileCPURegs excludes SP, which generated code owns.
	VolatileCPURegs = RegRange(R0, R14) | Regs(IP0, IP1)
)

// VRegister is a SIMD and floating-point register.
type VRegister int8

// SIMD and floating-point registers.
const (
	V0 VRegister = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31
	NumVRegisters = 32

	NoVRegister VRegister = -1
)

// VTMP is the FP scratch register used by macros.
const VTMP = V31

// Volatile FP register ranges. V8-V15 are callee-saved.
const (
	FirstVolatileVReg = V0
	LastVolatileVReg  = V7
	FirstHighVolatile = V16
	LastHighVolatile  = V31
)

func (v VRegister) String() string {
	if v >= 0 && v < NumVRegisters {
		return fmt.Sprintf("v%d", int8(v))
	}
	return fmt.Sprintf("VRegister(%d)", int8(v))
}

// Condition is a condition code.
type Condition int8

// Conditions.
const (
	NoCondition Condition = -1
	EQ          Condition = 0
	NE          Condition = 1
	CS          Condition = 2
	CC          Condition = 3
	MI          Condition = 4
	PL          Condition = 5
	VS          Condition = 6
	VC          Condition = 7
	HI          Condition = 8
	LS          Condition = 9
	GE          Condition = 10
	LT          Condition = 11
	GT          Condition = 12
	LE          Condition = 13
	AL          Condition = 14
	NV          Condition = 15

	HS = CS
	LO = CC
)

// Invert returns the opposite condition. AL and NV have none.
func (c Condition) Invert() Condition {
	return c ^ 1
}

// Shift is a register shift type.
type Shift uint8

// Shift types.
const (
	LSL Shift = iota
	LSR
	ASR
	ROR
)

// Extend is a register extend type.
type Extend uint8

// Extend types.
const (
	UXTB Extend = iota
	UXTH
	UXTW
	UXTX
	SXTB
	SXTH
	SXTW
	SXTX
)

// OperandSize is the width of a memory or register operand.
type OperandSize uint8

// Operand sizes. Signed integer loads sign-extend to 64 bits.
const (
	Byte OperandSize = iota
	UnsignedByte
	Halfword
	UnsignedHalfword
	Word
	UnsignedWord
	DoubleWord
	SWord
	DWord
	QWord
)

// Log2 returns log2 of the access size in bytes.
func (s OperandSize) Log2() uint {
	switch s {
	case Byte, UnsignedByte:
		return 0
	case Halfword, UnsignedHalfword:
		return 1
	case Word, UnsignedWord, SWord:
		return 2
	case DoubleWord, DWord:
		return 3
	default:
		return 4
	}
}

// IsFP reports whether s names an FP/SIMD register access.
func (s OperandSize) IsFP() bool { return s == SWord || s == DWord || s == QWord }

// Trap immediates recognized by the simulator. Redirected calls use svc;
// the debugger traps use hlt.
const (
	RedirectionSVC = 0xca11
	BreakpointImm  = 0xdeb0
	StopMessageImm = 0xdeb1
)

// InstrSize is the width of one instruction.
const InstrSize = 4

// WordSize is the machine word size in bytes.
const WordSize = 8

// PCReadOffset is zero: A64 PC-relative forms are relative to the
// instruction itself.
const PCReadOffset = 0

// Instruction fields.
var (
	RdField     = bits.F(0, 5)
	RnField     = bits.F(5, 5)
	RaField     = bits.F(10, 5)
	Rt2Field    = bits.F(10, 5)
	RmField     = bits.F(16, 5)
	RsField     = bits.F(16, 5)
	SFField     = bits.F(31, 1)
	Imm12Field  = bits.F(10, 12)
	Imm16Field  = bits.F(5, 16)
	Imm6Field   = bits.F(10, 6)
	Imm3Field   = bits.F(10, 3)
	ImmsField   = bits.F(10, 6)
	ImmrField   = bits.F(16, 6)
	NField      = bits.F(22, 1)
	HwField     = bits.F(21, 2)
	ShiftField  = bits.F(22, 2)
	ExtendField = bits.F(13, 3)
	CondField   = bits.F(12, 4)
	BCondField  = bits.F(0, 4)
	NZCVField   = bits.F(0, 4)
	Imm26Field  = bits.F(0, 26)
	Imm19Field  = bits.F(5, 19)
	Imm14Field  = bits.F(5, 14)
	Imm9Field   = bits.F(12, 9)
	Imm7Field   = bits.F(15, 7)
	SizeField   = bits.F(30, 2)
	OpcField    = bits.F(22, 2)
	FPTypeField = bits.F(22, 2)
	FPImm8Field = bits.F(13, 8)
	ImmLoField  = bits.F(29, 2)
	ImmHiField  = bits.F(5, 19)
	B40Field    = bits.F(19, 5)
	B5Field     = bits.F(31, 1)
	Imm5Field   = bits.F(16, 5)
	Imm4Field   = bits.F(11, 4)
)

// Instruction class bases.
const (
	AddSubImmBase      = 0x11000000
	AddSubShiftedBase  = 0x0b000000
	AddSubExtendedBase = 0x0b200000
	AddSubCarryBase    = 0x1a000000
	LogicalShiftedBase = 0x0a000000
	LogicalImmBase     = 0x12000000
	MoveWideBase       = 0x12800000
	BitfieldBase       = 0x13000000
	ExtractBase        = 0x13800000
	DP1SourceBase      = 0x5ac00000
	DP2SourceBase      = 0x1ac00000
	DP3SourceBase      = 0x1b000000
	CondSelectBase     = 0x1a800000
	CondCompareBase    = 0x3a400000
	PCRelBase          = 0x10000000
	UncondBranchBase   = 0x14000000
	CondBranchBase     = 0x54000000
	CompareBranchBase  = 0x34000000
	TestBranchBase     = 0x36000000
	BranchRegBase      = 0xd61f0000
	ExceptionBase      = 0xd4000000
	SystemBase         = 0xd5000000
	LoadStoreRegBase   = 0x38000000
	LoadStoreUImmBase  = 0x39000000
	LoadStoreRegOffset = 0x38200800
	LoadLiteralBase    = 0x18000000
	LoadStorePairBase  = 0x28000000
	ExclusiveBase      = 0x08000000
	FPDataProc1Base    = 0x1e204000
	FPDataProc2Base    = 0x1e200800
	FPCompareBase      = 0x1e202000
	FPImmBase          = 0x1e201000
	FPIntConvertBase   = 0x1e200000
	SIMDThreeSameBase  = 0x0e200400
	SIMDTwoRegMiscBase = 0x0e200800
	SIMDCopyBase       = 0x0e000400
)

// Specific encodings.
const (
	NopInstr   = 0xd503201f
	ClrexInstr = 0xd5033f5f
	RetInstr   = BranchRegBase | 2<<21 | 30<<5
)

// Pair addressing modes, bits 24:23.
const (
	pairPostIndex = 1
	pairOffset    = 2
	pairPreIndex  = 3
)
