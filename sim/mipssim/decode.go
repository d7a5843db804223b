package mipssim

import (
	"fmt"

	"github.com/sarchlab/jitsim/mips"
)

// Class identifies the instruction class a word decodes to.
type Class uint8

// Instruction classes.
const (
	ClassUnknown Class = iota
	ClassUnsupported
	ClassNop
	ClassShift
	ClassALU
	ClassMultiply
	ClassHiLo
	ClassJumpRegister
	ClassBreak
	ClassSpecial2
	ClassSpecial3
	ClassImmediate
	ClassBranch
	ClassJump
	ClassLoadStore
	ClassLoadLinked
	ClassStoreConditional
	ClassFPULoadStore
	ClassFPUMove
	ClassFPUBranch
	ClassFPUCompare
	ClassFPUArith
)

var classNames = [...]string{
	ClassUnknown:          "unknown",
	ClassUnsupported:      "unsupported",
	ClassNop:              "nop",
	ClassShift:            "shift",
	ClassALU:              "alu",
	ClassMultiply:         "multiply",
	ClassHiLo:             "hi-lo",
	ClassJumpRegister:     "jump-register",
	ClassBreak:            "break",
	ClassSpecial2:         "special2",
	ClassSpecial3:         "special3",
	ClassImmediate:        "immediate",
	ClassBranch:           "branch",
	ClassJump:             "jump",
	ClassLoadStore:        "load-store",
	ClassLoadLinked:       "load-linked",
	ClassStoreConditional: "store-conditional",
	ClassFPULoadStore:     "fpu-load-store",
	ClassFPUMove:          "fpu-move",
	ClassFPUBranch:        "fpu-branch",
	ClassFPUCompare:       "fpu-compare",
	ClassFPUArith:         "fpu-arith",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Decoded is a decoded instruction: its class plus the raw word, whose
// fields the executor reads through mips.Instr.
type Decoded struct {
	Class Class
	Instr mips.Instr
	// Reason names the construct for unsupported encodings.
	Reason string
}

func unsupported(i mips.Instr, reason string) Decoded {
	return Decoded{Class: ClassUnsupported, Instr: i, Reason: reason}
}

// Decode classifies word.
func Decode(word uint32) Decoded {
	i := mips.Instr(word)
	if i.IsNop() {
		return Decoded{Class: ClassNop, Instr: i}
	}
	switch op := i.Opcode(); op {
	case mips.SPECIAL:
		return decodeSpecial(i)
	case mips.SPECIAL2:
		return Decoded{Class: ClassSpecial2, Instr: i}
	case mips.SPECIAL3:
		return Decoded{Class: ClassSpecial3, Instr: i}
	case mips.REGIMM, mips.BEQ, mips.BNE, mips.BLEZ, mips.BGTZ:
		return Decoded{Class: ClassBranch, Instr: i}
	case mips.J, mips.JAL:
		return Decoded{Class: ClassJump, Instr: i}
	case mips.ADDIU, mips.SLTI, mips.SLTIU, mips.ANDI, mips.ORI, mips.XORI, mips.LUI:
		return Decoded{Class: ClassImmediate, Instr: i}
	case mips.LB, mips.LBU, mips.LH, mips.LHU, mips.LW, mips.SB, mips.SH, mips.SW:
		return Decoded{Class: ClassLoadStore, Instr: i}
	case mips.LL:
		return Decoded{Class: ClassLoadLinked, Instr: i}
	case mips.SC:
		return Decoded{Class: ClassStoreConditional, Instr: i}
	case mips.LWC1, mips.SWC1, mips.LDC1, mips.SDC1:
		return Decoded{Class: ClassFPULoadStore, Instr: i}
	case mips.COP1:
		return decodeCop1(i)
	case 8:
		return unsupported(i, "addi traps on overflow")
	default:
		return Decoded{Class: ClassUnknown, Instr: i}
	}
}

func decodeSpecial(i mips.Instr) Decoded {
	switch i.SpecialFunction() {
	case mips.SLL, mips.SRL, mips.SRA, mips.SLLV, mips.SRLV, mips.SRAV:
		return Decoded{Class: ClassShift, Instr: i}
	case mips.JR, mips.JALR:
		return Decoded{Class: ClassJumpRegister, Instr: i}
	case mips.BREAK:
		return Decoded{Class: ClassBreak, Instr: i}
	case mips.MFHI, mips.MTHI, mips.MFLO, mips.MTLO:
		return Decoded{Class: ClassHiLo, Instr: i}
	case mips.MULT, mips.MULTU, mips.DIV, mips.DIVU:
		return Decoded{Class: ClassMultiply, Instr: i}
	case mips.MOVZ, mips.MOVN, mips.ADDU, mips.SUBU, mips.AND, mips.OR,
		mips.XOR, mips.NOR, mips.SLT, mips.SLTU:
		return Decoded{Class: ClassALU, Instr: i}
	case 12:
		return unsupported(i, "syscall")
	case 32, 34:
		return unsupported(i, "add/sub trap on overflow")
	default:
		return Decoded{Class: ClassUnknown, Instr: i}
	}
}

func decodeCop1(i mips.Instr) Decoded {
	switch f := i.Fmt(); f {
	case mips.FmtMF, mips.FmtMT:
		return Decoded{Class: ClassFPUMove, Instr: i}
	case mips.FmtBC:
		return Decoded{Class: ClassFPUBranch, Instr: i}
	case mips.FmtS, mips.FmtD, mips.FmtW:
		if i.IsFCompare() {
			return Decoded{Class: ClassFPUCompare, Instr: i}
		}
		return Decoded{Class: ClassFPUArith, Instr: i}
	default:
		return unsupported(i, fmt.Sprintf("cop1 format %d", uint32(f)))
	}
}
