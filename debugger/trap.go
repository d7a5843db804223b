package debugger

import (
	"math"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

const arm64Hlt = 2

func isStopTrap(arch sim.Arch, word uint32) bool {
	switch arch {
	case sim.ArchARM:
		i := arm.Instr(word)
		return i.IsSVC() && i.SVCImm() == arm.StopMessageSVC
	case sim.ArchARM64:
		i := arm64.Instr(word)
		return i.IsException() && i.ExceptionOpc() == arm64Hlt && i.Imm16() == arm64.StopMessageImm
	case sim.ArchMIPS:
		i := mips.Instr(word)
		return i.IsBreak() && i.BreakCode() == mips.StopMessageBreak
	}
	return false
}

func nopWord(arch sim.Arch) uint32 {
	switch arch {
	case sim.ArchARM:
		a := arm.New()
		a.Nop()
		return a.Words()[0]
	case sim.ArchARM64:
		return arm64.NopInstr
	default:
		return mips.Nop
	}
}

func floatValue(bits uint64, width int) float64 {
	if width == 32 {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}
