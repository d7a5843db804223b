package armsim

import (
	"fmt"

	"github.com/sarchlab/jitsim/arm"
)

// Class identifies the instruction class a word decodes to.
type Class uint8

// Instruction classes, in the order Decode tests for them.
const (
	ClassUnknown Class = iota
	ClassUnsupported
	ClassClrex
	ClassSIMD
	ClassMultiply
	ClassSyncPrimitive
	ClassExtraLoadStore
	ClassMisc
	ClassDataProcessing
	ClassMoveWide
	ClassNop
	ClassLoadStore
	ClassDivision
	ClassBlockTransfer
	ClassBranch
	ClassVFPTwoRegTransfer
	ClassVFPLoadStore
	ClassVFPBlockTransfer
	ClassSVC
	ClassVFPRegTransfer
	ClassVFPDataProcessing
)

var classNames = [...]string{
	ClassUnknown:           "unknown",
	ClassUnsupported:       "unsupported",
	ClassClrex:             "clrex",
	ClassSIMD:              "simd",
	ClassMultiply:          "multiply",
	ClassSyncPrimitive:     "sync",
	ClassExtraLoadStore:    "extra-load-store",
	ClassMisc:              "misc",
	ClassDataProcessing:    "data-processing",
	ClassMoveWide:          "move-wide",
	ClassNop:               "nop",
	ClassLoadStore:         "load-store",
	ClassDivision:          "division",
	ClassBlockTransfer:     "block-transfer",
	ClassBranch:            "branch",
	ClassVFPTwoRegTransfer: "vfp-two-reg-transfer",
	ClassVFPLoadStore:      "vfp-load-store",
	ClassVFPBlockTransfer:  "vfp-block-transfer",
	ClassSVC:               "svc",
	ClassVFPRegTransfer:    "vfp-reg-transfer",
	ClassVFPDataProcessing: "vfp-data-processing",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Decoded is a decoded instruction: its class plus the raw word, whose
// fields the executor reads through arm.Instr.
type Decoded struct {
	Class Class
	Instr arm.Instr
	// Reason names the construct for unsupported encodings.
	Reason string
}

func unsupported(i arm.Instr, reason string) Decoded {
	return Decoded{Class: ClassUnsupported, Instr: i, Reason: reason}
}

// Decode classifies word. The bit tests run in a fixed priority order;
// several encodings are only distinguishable that way.
func Decode(word uint32) Decoded {
	i := arm.Instr(word)
	if i.Condition() == arm.SpecialCondition {
		return decodeSpecial(i)
	}
	switch i.Type() {
	case 0:
		return decodeType0(i)
	case 1:
		return decodeType1(i)
	case 2:
		return Decoded{Class: ClassLoadStore, Instr: i}
	case 3:
		if i.Bit(4) == 0 {
			return Decoded{Class: ClassLoadStore, Instr: i}
		}
		if i.IsDivision() {
			return Decoded{Class: ClassDivision, Instr: i}
		}
		return unsupported(i, "media instruction")
	case 4:
		if i.Bit(22) == 1 {
			return unsupported(i, "ldm/stm with user registers")
		}
		return Decoded{Class: ClassBlockTransfer, Instr: i}
	case 5:
		return Decoded{Class: ClassBranch, Instr: i}
	case 6:
		return decodeType6(i)
	default:
		return decodeType7(i)
	}
}

func decodeSpecial(i arm.Instr) Decoded {
	switch {
	case i.IsSpecialClrex():
		return Decoded{Class: ClassClrex, Instr: i}
	case i.IsSIMDDataProcessing():
		return Decoded{Class: ClassSIMD, Instr: i}
	case i.Type() == 5:
		return unsupported(i, "blx to thumb")
	default:
		return Decoded{Class: ClassUnknown, Instr: i}
	}
}

func decodeType0(i arm.Instr) Decoded {
	if i.Bits(4, 4) == 9 {
		if i.Bit(24) == 0 {
			return Decoded{Class: ClassMultiply, Instr: i}
		}
		return Decoded{Class: ClassSyncPrimitive, Instr: i}
	}
	if i.Bit(7) == 1 && i.Bit(4) == 1 {
		return Decoded{Class: ClassExtraLoadStore, Instr: i}
	}
	if i.Bits(20, 5)&0x19 == 0x10 {
		if i.Bit(7) == 1 {
			return unsupported(i, "halfword multiply")
		}
		return Decoded{Class: ClassMisc, Instr: i}
	}
	return Decoded{Class: ClassDataProcessing, Instr: i}
}

func decodeType1(i arm.Instr) Decoded {
	switch i.Bits(20, 5) {
	case 0x10, 0x14:
		return Decoded{Class: ClassMoveWide, Instr: i}
	case 0x12:
		if i.IsNop() {
			return Decoded{Class: ClassNop, Instr: i}
		}
		return unsupported(i, "msr or hint")
	case 0x16:
		return unsupported(i, "msr")
	}
	return Decoded{Class: ClassDataProcessing, Instr: i}
}

func decodeType6(i arm.Instr) Decoded {
	if i.Bits(9, 3) != 5 {
		return unsupported(i, "coprocessor transfer")
	}
	switch {
	case i.Bits(21, 4) == 0x2:
		return Decoded{Class: ClassVFPTwoRegTransfer, Instr: i}
	case i.Bit(24) == 1 && i.Bit(21) == 0:
		return Decoded{Class: ClassVFPLoadStore, Instr: i}
	default:
		return Decoded{Class: ClassVFPBlockTransfer, Instr: i}
	}
}

func decodeType7(i arm.Instr) Decoded {
	if i.Bit(24) == 1 {
		return Decoded{Class: ClassSVC, Instr: i}
	}
	if i.Bits(9, 3) != 5 {
		return unsupported(i, "coprocessor operation")
	}
	if i.Bit(4) == 1 {
		return Decoded{Class: ClassVFPRegTransfer, Instr: i}
	}
	return Decoded{Class: ClassVFPDataProcessing, Instr: i}
}
