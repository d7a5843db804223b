package arm64sim

import (
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeBranch(c Class, i arm64.Instr) {
	var taken bool
	var off int64
	switch c {
	case ClassUncondBranch:
		taken, off = true, i.Imm26Offset()
		if i.Bit(31) == 1 {
			s.regs.R[arm64.LR] = s.pc + arm64.InstrSize
		}
	case ClassCondBranch:
		taken = sim.EvaluateCondition(sim.Cond(i.BranchCondition()), s.regs.NZCV)
		off = i.Imm19Offset()
	case ClassCompareBranch:
		v := s.operand(i, i.Rt(), false)
		taken = (v == 0) == (i.Bit(24) == 0)
		off = i.Imm19Offset()
	default:
		bit := s.regs.X(i.Rt(), false) >> i.TestBit() & 1
		taken = (bit == 0) == (i.Bit(24) == 0)
		off = i.Imm14Offset()
	}
	if taken {
		s.nextPC = uint64(int64(s.pc) + off)
	}
}

func (s *Simulator) executeBranchReg(i arm64.Instr) error {
	if i.Bits(10, 11) != 0x7c0 || i.Bits(0, 5) != 0 {
		return sim.Unsupported(s.pc, uint32(i), "pointer-authenticated branch")
	}
	target := s.regs.X(i.Rn(), false)
	switch i.Bits(21, 4) {
	case 0:
	case 1:
		s.regs.R[arm64.LR] = s.pc + arm64.InstrSize
	case 2:
	default:
		return sim.Unsupported(s.pc, uint32(i), "eret or drps")
	}
	s.nextPC = target
	return nil
}

func (s *Simulator) executeSystem(i arm64.Instr) error {
	switch {
	case uint32(i) == arm64.NopInstr:
		return nil
	case uint32(i)&0xfffff0ff == arm64.ClrexInstr&0xfffff0ff:
		s.exclusive.Clear()
		return nil
	case uint32(i)&0xfffff01f == 0xd503301f:
		// dmb, dsb and isb order nothing in a single-threaded simulation.
		return nil
	case uint32(i)&0xfffff01f == 0xd503201f:
		// Other hints.
		return nil
	default:
		return sim.Unsupported(s.pc, uint32(i), "system register access")
	}
}
