// Package arm implements the ARM32 (A32) assembler used by the code
// generator: typed instruction emitters, shifter operands and addresses,
// immediate materialization, and the VM macro sequences built on them.
package arm

import (
	"fmt"

	"github.com/sarchlab/jitsim/bits"
)

// Register is a core register.
type Register int8

// Core registers.
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
	NumRegisters = 16

	NoRegister Register = -1
)

// Register aliases used by generated code.
const (
	THR = R8  // current thread
	CTX = R9  // current context
	PP  = R10 // object pool pointer
	FP  = R11 // frame pointer
	IP  = R12 // scratch
	TMP = IP
	SP  = R13
	LR  = R14
	PC  = R15
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

var registerNames = [NumRegisters]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"thr", "ctx", "pp", "fp", "ip", "sp", "lr", "pc",
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

// RegList is a bit set of core registers.
type RegList uint16

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

// Calling convention register sets.
var (
	// VolatileCPURegs are the caller-saved core registers generated code
	// must preserve around calls into the runtime.
	VolatileCPURegs = Regs(R0, R1, R2, R3, IP)
	// CalleeSavedCPURegs survive any call.
	CalleeSavedCPURegs = Regs(R4, R5, R6, R7, R8, R9, R10, R11)
)

// SRegister is a single-precision VFP register.
type SRegister int8

// Single-precision registers.
const (
	S0 SRegister = iota
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	S12
	S13
	S14
	S15
	S16
	S17
	S18
	S19
	S20
	S21
	S22
	S23
	S24
	S25
	S26
	S27
	S28
	S29
	S30
	S31
	NumSRegisters = 32

	NoSRegister SRegister = -1
)

func (s SRegister) String() string { return fmt.Sprintf("s%d", int8(s)) }

// DRegister is a double-precision VFP register.
type DRegister int8

// Double-precision registers. D16-D31 exist only with VFPv3-D32 (NEON).
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
	D16
	D17
	D18
	D19
	D20
	D21
	D22
	D23
	D24
	D25
	D26
	D27
	D28
	D29
	D30
	D31
	NumDRegisters = 32

	NoDRegister DRegister = -1
)

func (d DRegister) String() string { return fmt.Sprintf("d%d", int8(d)) }

// QRegister is a 128-bit NEON register.
type QRegister int8

// Quad registers.
const (
	Q0 QRegister = iota
	Q1
	Q2
	Q3
	Q4
	Q5
	Q6
	Q7
	Q8
	Q9
	Q10
	Q11
	Q12
	Q13
	Q14
	Q15
	NumQRegisters = 16

	NoQRegister QRegister = -1
)

func (q QRegister) String() string { return fmt.Sprintf("q%d", int8(q)) }

// Low returns the D register holding the low half of q.
func (q QRegister) Low() DRegister { return DRegister(2 * q) }

// High returns the D register holding the high half of q.
func (q QRegister) High() DRegister { return DRegister(2*q + 1) }

// Caller-saved FPU registers: Q0-Q3, i.e. D0-D7.
const (
	FirstVolatileDReg = D0
	LastVolatileDReg  = D7
	VolatileDRegCount = int(LastVolatileDReg-FirstVolatileDReg) + 1
)

// Condition is an instruction condition code.
type Condition int8

// Condition codes.
const (
	EQ Condition = iota // equal
	NE                  // not equal
	CS                  // carry set / unsigned higher or same
	CC                  // carry clear / unsigned lower
	MI                  // minus / negative
	PL                  // plus / positive or zero
	VS                  // overflow
	VC                  // no overflow
	HI                  // unsigned higher
	LS                  // unsigned lower or same
	GE                  // signed greater than or equal
	LT                  // signed less than
	GT                  // signed greater than
	LE                  // signed less than or equal
	AL                  // always
	SpecialCondition    // unconditional instruction space

	NoCondition Condition = -1
)

// Aliases.
const (
	HS = CS
	LO = CC
)

var conditionNames = [...]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "", "nv",
}

func (c Condition) String() string {
	if c >= 0 && int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return "nocond"
}

// Invert returns the opposite condition.
func (c Condition) Invert() Condition {
	return c ^ 1
}

// Opcode is a data-processing opcode.
type Opcode int8

// Data-processing opcodes.
const (
	AND Opcode = iota
	EOR
	SUB
	RSB
	ADD
	ADC
	SBC
	RSC
	TST
	TEQ
	CMP
	CMN
	ORR
	MOV
	BIC
	MVN
)

var opcodeNames = [...]string{
	"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc",
	"tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn",
}

func (o Opcode) String() string {
	if o >= 0 && int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", int8(o))
}

// IsTest reports whether the opcode only sets flags.
func (o Opcode) IsTest() bool { return o >= TST && o <= CMN }

// Shift is a shifter operand shift type.
type Shift int8

// Shift types. RRX is ROR by 0.
const (
	LSL Shift = iota
	LSR
	ASR
	ROR
	RRX Shift = 4

	NoShift Shift = -1
)

func (s Shift) String() string {
	switch s {
	case LSL:
		return "lsl"
	case LSR:
		return "lsr"
	case ASR:
		return "asr"
	case ROR:
		return "ror"
	case RRX:
		return "rrx"
	default:
		return "noshift"
	}
}

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
	WordPair
	SWord
	DWord
	RegisterList
)

// BlockAddressMode is the addressing mode of ldm/stm and vldm/vstm.
type BlockAddressMode uint32

// Block transfer modes: P U W bits at 24, 23 and 21.
const (
	DA   BlockAddressMode = (0 | 0 | 0) << 21 // decrement after
	IA   BlockAddressMode = (0 | 4 | 0) << 21 // increment after
	DB   BlockAddressMode = (8 | 0 | 0) << 21 // decrement before
	IB   BlockAddressMode = (8 | 4 | 0) << 21 // increment before
	DA_W BlockAddressMode = (0 | 0 | 1) << 21
	IA_W BlockAddressMode = (0 | 4 | 1) << 21
	DB_W BlockAddressMode = (8 | 0 | 1) << 21
	IB_W BlockAddressMode = (8 | 4 | 1) << 21
)

// Trap codes carried by svc. They are an internal protocol between the
// assembler and the simulator.
const (
	RedirectionSVC = 0xca11
	BreakpointSVC  = 0xdeb0
	StopMessageSVC = 0xdeb1
)

// PCReadOffset is how far ahead of the executing instruction a read of PC
// lands.
const PCReadOffset = 8

// InstrSize is the width of one instruction.
const InstrSize = 4

// WordSize is the machine word size in bytes.
const WordSize = 4

// Bit positions.
const (
	B0  = 1 << 0
	B1  = 1 << 1
	B2  = 1 << 2
	B3  = 1 << 3
	B4  = 1 << 4
	B5  = 1 << 5
	B6  = 1 << 6
	B7  = 1 << 7
	B8  = 1 << 8
	B9  = 1 << 9
	B10 = 1 << 10
	B11 = 1 << 11
	B12 = 1 << 12
	B13 = 1 << 13
	B14 = 1 << 14
	B15 = 1 << 15
	B16 = 1 << 16
	B17 = 1 << 17
	B18 = 1 << 18
	B19 = 1 << 19
	B20 = 1 << 20
	B21 = 1 << 21
	B22 = 1 << 22
	B23 = 1 << 23
	B24 = 1 << 24
	B25 = 1 << 25
	B26 = 1 << 26
	B27 = 1 << 27
)

// Instruction fields.
var (
	CondField     = bits.F(28, 4)
	TypeField     = bits.F(25, 3)
	OpcodeField   = bits.F(21, 4)
	SField        = bits.F(20, 1)
	RnField       = bits.F(16, 4)
	RdField       = bits.F(12, 4)
	RsField       = bits.F(8, 4)
	RmField       = bits.F(0, 4)
	ShiftImmField = bits.F(7, 5)
	ShiftField    = bits.F(5, 2)
	RotateField   = bits.F(8, 4)
	Immed8Field   = bits.F(0, 8)
	Offset12Field = bits.F(0, 12)
	BranchField   = bits.F(0, 24)
	SVCField      = bits.F(0, 24)
	PField        = bits.F(24, 1)
	UField        = bits.F(23, 1)
	BField        = bits.F(22, 1)
	WField        = bits.F(21, 1)
	LField        = bits.F(20, 1)
	Imm4HField    = bits.F(16, 4)
	Imm4LField    = bits.F(0, 4)
	Imm12HField   = bits.F(8, 12)
)

// UShift is the position of the up/down bit in an address encoding.
const UShift = 23
