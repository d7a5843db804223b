package arm64sim

import (
	"fmt"

	"github.com/sarchlab/jitsim/arm64"
)

// Class identifies the instruction class a word decodes to.
type Class uint8

// Instruction classes, grouped by the top-level encoding they fall in.
const (
	ClassUnknown Class = iota
	ClassUnsupported
	ClassPCRel
	ClassAddSubImm
	ClassLogicalImm
	ClassMoveWide
	ClassBitfield
	ClassUncondBranch
	ClassCompareBranch
	ClassTestBranch
	ClassCondBranch
	ClassException
	ClassSystem
	ClassBranchReg
	ClassExclusive
	ClassLoadLiteral
	ClassLoadStorePair
	ClassLoadStore
	ClassLogicalShifted
	ClassAddSubShifted
	ClassAddSubExtended
	ClassAddSubCarry
	ClassCondCompare
	ClassCondSelect
	ClassDP1Source
	ClassDP2Source
	ClassDP3Source
	ClassFP
	ClassFP3Source
	ClassSIMD
)

var classNames = [...]string{
	ClassUnknown:        "unknown",
	ClassUnsupported:    "unsupported",
	ClassPCRel:          "pc-relative",
	ClassAddSubImm:      "add-sub-imm",
	ClassLogicalImm:     "logical-imm",
	ClassMoveWide:       "move-wide",
	ClassBitfield:       "bitfield",
	ClassUncondBranch:   "branch",
	ClassCompareBranch:  "compare-branch",
	ClassTestBranch:     "test-branch",
	ClassCondBranch:     "cond-branch",
	ClassException:      "exception",
	ClassSystem:         "system",
	ClassBranchReg:      "branch-reg",
	ClassExclusive:      "exclusive",
	ClassLoadLiteral:    "load-literal",
	ClassLoadStorePair:  "load-store-pair",
	ClassLoadStore:      "load-store",
	ClassLogicalShifted: "logical-shifted",
	ClassAddSubShifted:  "add-sub-shifted",
	ClassAddSubExtended: "add-sub-extended",
	ClassAddSubCarry:    "add-sub-carry",
	ClassCondCompare:    "cond-compare",
	ClassCondSelect:     "cond-select",
	ClassDP1Source:      "dp-1-source",
	ClassDP2Source:      "dp-2-source",
	ClassDP3Source:      "dp-3-source",
	ClassFP:             "fp",
	ClassFP3Source:      "fp-3-source",
	ClassSIMD:           "simd",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Decoded is a decoded instruction: its class plus the raw word, whose
// fields the executor reads through arm64.Instr.
type Decoded struct {
	Class Class
	Instr arm64.Instr
	// Reason names the construct for unsupported encodings.
	Reason string
}

func unsupported(i arm64.Instr, reason string) Decoded {
	return Decoded{Class: ClassUnsupported, Instr: i, Reason: reason}
}

// Decode classifies word by its top-level op0 field, bits 28:25.
func Decode(word uint32) Decoded {
	i := arm64.Instr(word)
	op0 := i.Bits(25, 4)
	switch {
	case op0&0xe == 0x8:
		return decodeDPImm(i)
	case op0&0xe == 0xa:
		return decodeBranchSystem(i)
	case op0&0x5 == 0x4:
		return decodeLoadStore(i)
	case op0&0x7 == 0x5:
		return decodeDPReg(i)
	case op0&0x7 == 0x7:
		return decodeFPSIMD(i)
	default:
		return Decoded{Class: ClassUnknown, Instr: i}
	}
}

func decodeDPImm(i arm64.Instr) Decoded {
	switch i.Bits(23, 3) {
	case 0, 1:
		return Decoded{Class: ClassPCRel, Instr: i}
	case 2, 3:
		return Decoded{Class: ClassAddSubImm, Instr: i}
	case 4:
		return Decoded{Class: ClassLogicalImm, Instr: i}
	case 5:
		if i.Bits(29, 2) == 1 {
			return Decoded{Class: ClassUnknown, Instr: i}
		}
		return Decoded{Class: ClassMoveWide, Instr: i}
	case 6:
		return Decoded{Class: ClassBitfield, Instr: i}
	default:
		return unsupported(i, "extract")
	}
}

func decodeBranchSystem(i arm64.Instr) Decoded {
	w := uint32(i)
	switch {
	case i.IsUncondBranch():
		return Decoded{Class: ClassUncondBranch, Instr: i}
	case i.IsCompareBranch():
		return Decoded{Class: ClassCompareBranch, Instr: i}
	case i.IsTestBranch():
		return Decoded{Class: ClassTestBranch, Instr: i}
	case i.IsCondBranch():
		return Decoded{Class: ClassCondBranch, Instr: i}
	case i.IsException():
		return Decoded{Class: ClassException, Instr: i}
	case w&0xffc00000 == arm64.SystemBase:
		return Decoded{Class: ClassSystem, Instr: i}
	case w&0xfe000000 == 0xd6000000:
		return Decoded{Class: ClassBranchReg, Instr: i}
	default:
		return Decoded{Class: ClassUnknown, Instr: i}
	}
}

func decodeLoadStore(i arm64.Instr) Decoded {
	w := uint32(i)
	switch {
	case w&0x3f000000 == arm64.ExclusiveBase:
		if i.Bit(23) == 1 || i.Bit(21) == 1 {
			return unsupported(i, "acquire/release or pair exclusive")
		}
		return Decoded{Class: ClassExclusive, Instr: i}
	case i.IsLoadLiteral():
		return Decoded{Class: ClassLoadLiteral, Instr: i}
	case w&0x3a000000 == arm64.LoadStorePairBase:
		if i.Bits(23, 2) == 0 {
			return unsupported(i, "non-temporal pair")
		}
		return Decoded{Class: ClassLoadStorePair, Instr: i}
	case w&0x3b000000 == 0x39000000:
		return Decoded{Class: ClassLoadStore, Instr: i}
	case w&0x3b200000 == 0x38000000:
		if i.Bits(10, 2) == 2 {
			return unsupported(i, "unprivileged load/store")
		}
		return Decoded{Class: ClassLoadStore, Instr: i}
	case w&0x3b200c00 == arm64.LoadStoreRegOffset:
		return Decoded{Class: ClassLoadStore, Instr: i}
	default:
		return unsupported(i, "atomic or vector structure access")
	}
}

func decodeDPReg(i arm64.Instr) Decoded {
	if i.Bit(28) == 0 {
		switch {
		case i.Bit(24) == 0:
			return Decoded{Class: ClassLogicalShifted, Instr: i}
		case i.Bit(21) == 0:
			return Decoded{Class: ClassAddSubShifted, Instr: i}
		default:
			return Decoded{Class: ClassAddSubExtended, Instr: i}
		}
	}
	switch op := i.Bits(21, 4); {
	case op == 0:
		return Decoded{Class: ClassAddSubCarry, Instr: i}
	case op == 2:
		return Decoded{Class: ClassCondCompare, Instr: i}
	case op == 4:
		return Decoded{Class: ClassCondSelect, Instr: i}
	case op == 6 && i.Bit(30) == 1:
		return Decoded{Class: ClassDP1Source, Instr: i}
	case op == 6:
		return Decoded{Class: ClassDP2Source, Instr: i}
	case op&0x8 != 0:
		return Decoded{Class: ClassDP3Source, Instr: i}
	default:
		return Decoded{Class: ClassUnknown, Instr: i}
	}
}

func decodeFPSIMD(i arm64.Instr) Decoded {
	w := uint32(i)
	switch {
	case w&0x5f000000 == 0x1e000000:
		return Decoded{Class: ClassFP, Instr: i}
	case w&0x5f000000 == 0x1f000000:
		return Decoded{Class: ClassFP3Source, Instr: i}
	case w&0x9f000000 == 0x0e000000:
		return Decoded{Class: ClassSIMD, Instr: i}
	default:
		return unsupported(i, "scalar or crypto SIMD")
	}
}
