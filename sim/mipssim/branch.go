package mipssim

import (
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

// transfer completes a control transfer from pc: the condition and link
// have already been evaluated, the delay slot runs, then the PC moves.
func (s *Simulator) transfer(pc uint32, taken bool, target uint32) error {
	if err := s.executeDelaySlot(pc); err != nil {
		return err
	}
	if taken {
		s.nextPC = target
	} else {
		s.nextPC = pc + 2*mips.InstrSize
	}
	return nil
}

func (s *Simulator) executeBranch(i mips.Instr) error {
	pc := s.regs.PC
	rs := int32(s.regs.Reg(i.Rs()))
	var taken bool
	switch i.Opcode() {
	case mips.BEQ:
		taken = s.regs.Reg(i.Rs()) == s.regs.Reg(i.Rt())
	case mips.BNE:
		taken = s.regs.Reg(i.Rs()) != s.regs.Reg(i.Rt())
	case mips.BLEZ:
		taken = rs <= 0
	case mips.BGTZ:
		taken = rs > 0
	case mips.REGIMM:
		switch i.RegImmRt() {
		case mips.BLTZ:
			taken = rs < 0
		case mips.BGEZ:
			taken = rs >= 0
		case mips.BLTZAL:
			taken = rs < 0
			s.regs.SetReg(mips.RA, pc+2*mips.InstrSize)
		case mips.BGEZAL:
			taken = rs >= 0
			s.regs.SetReg(mips.RA, pc+2*mips.InstrSize)
		default:
			return sim.Unknown(uint64(pc), uint32(i), "regimm rt %d", uint32(i.RegImmRt()))
		}
	}
	return s.transfer(pc, taken, uint32(int32(pc)+mips.InstrSize+i.BranchOffset()))
}

func (s *Simulator) executeJump(i mips.Instr) error {
	pc := s.regs.PC
	if i.Opcode() == mips.JAL {
		s.regs.SetReg(mips.RA, pc+2*mips.InstrSize)
	}
	return s.transfer(pc, true, i.JumpTarget(pc))
}

func (s *Simulator) executeJumpRegister(i mips.Instr) error {
	pc := s.regs.PC
	target := s.regs.Reg(i.Rs())
	if i.SpecialFunction() == mips.JALR {
		s.regs.SetReg(i.Rd(), pc+2*mips.InstrSize)
	}
	return s.transfer(pc, true, target)
}

func (s *Simulator) executeFPUBranch(i mips.Instr) error {
	pc := s.regs.PC
	taken := s.regs.Condition() == i.BranchOnTrue()
	return s.transfer(pc, taken, uint32(int32(pc)+mips.InstrSize+i.BranchOffset()))
}
