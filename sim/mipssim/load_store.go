package mipssim

import (
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

// effectiveAddress returns base + simm16, faulting unless it is aligned
// to size. MIPS never performs unaligned accesses.
func (s *Simulator) effectiveAddress(i mips.Instr, size int) (uint64, error) {
	addr := s.regs.Reg(i.Rs()) + uint32(i.SImm16())
	if addr%uint32(size) != 0 {
		return 0, sim.Unaligned(s.pc(), uint64(addr), size)
	}
	return uint64(addr), nil
}

func accessSize(op mips.Opcode) int {
	switch op {
	case mips.LB, mips.LBU, mips.SB:
		return 1
	case mips.LH, mips.LHU, mips.SH:
		return 2
	case mips.LDC1, mips.SDC1:
		return 8
	default:
		return 4
	}
}

func (s *Simulator) executeLoadStore(i mips.Instr) error {
	op := i.Opcode()
	addr, err := s.effectiveAddress(i, accessSize(op))
	if err != nil {
		return err
	}
	rt := i.Rt()
	switch op {
	case mips.LB:
		v, err := s.mem.Read8(addr)
		if err != nil {
			return err
		}
		s.regs.SetReg(rt, uint32(int32(int8(v))))
	case mips.LBU:
		v, err := s.mem.Read8(addr)
		if err != nil {
			return err
		}
		s.regs.SetReg(rt, uint32(v))
	case mips.LH:
		v, err := s.mem.Read16(addr)
		if err != nil {
			return err
		}
		s.regs.SetReg(rt, uint32(int32(int16(v))))
	case mips.LHU:
		v, err := s.mem.Read16(addr)
		if err != nil {
			return err
		}
		s.regs.SetReg(rt, uint32(v))
	case mips.LW:
		v, err := s.mem.Read32(addr)
		if err != nil {
			return err
		}
		s.regs.SetReg(rt, v)
	case mips.SB:
		if err := s.mem.Write8(addr, uint8(s.regs.Reg(rt))); err != nil {
			return err
		}
		s.monitor.Invalidate(addr &^ 3)
	case mips.SH:
		if err := s.mem.Write16(addr, uint16(s.regs.Reg(rt))); err != nil {
			return err
		}
		s.monitor.Invalidate(addr &^ 3)
	case mips.SW:
		if err := s.mem.Write32(addr, s.regs.Reg(rt)); err != nil {
			return err
		}
		s.monitor.Invalidate(addr)
	}
	return nil
}

// executeLoadLinked reserves the word for this simulator in the shared
// monitor.
func (s *Simulator) executeLoadLinked(i mips.Instr) error {
	addr, err := s.effectiveAddress(i, 4)
	if err != nil {
		return err
	}
	v, err := s.mem.Read32(addr)
	if err != nil {
		return err
	}
	s.monitor.LoadExclusive(s.owner, addr)
	s.regs.SetReg(i.Rt(), v)
	return nil
}

// executeStoreConditional stores rt and sets it to 1 if the reservation
// still holds, otherwise sets it to 0 and leaves memory alone.
func (s *Simulator) executeStoreConditional(i mips.Instr) error {
	addr, err := s.effectiveAddress(i, 4)
	if err != nil {
		return err
	}
	if !s.monitor.StoreExclusive(s.owner, addr) {
		s.regs.SetReg(i.Rt(), 0)
		return nil
	}
	if err := s.mem.Write32(addr, s.regs.Reg(i.Rt())); err != nil {
		return err
	}
	s.regs.SetReg(i.Rt(), 1)
	return nil
}

func (s *Simulator) executeFPULoadStore(i mips.Instr) error {
	op := i.Opcode()
	addr, err := s.effectiveAddress(i, accessSize(op))
	if err != nil {
		return err
	}
	ft := i.Ft()
	switch op {
	case mips.LWC1:
		v, err := s.mem.Read32(addr)
		if err != nil {
			return err
		}
		s.regs.SetF(ft, v)
	case mips.SWC1:
		if err := s.mem.Write32(addr, s.regs.F(ft)); err != nil {
			return err
		}
		s.monitor.Invalidate(addr)
	case mips.LDC1, mips.SDC1:
		if ft%2 != 0 {
			return sim.Unsupported(s.pc(), uint32(i), "odd double register")
		}
		d := mips.DRegister(ft / 2)
		if op == mips.LDC1 {
			lo, err := s.mem.Read32(addr)
			if err != nil {
				return err
			}
			hi, err := s.mem.Read32(addr + 4)
			if err != nil {
				return err
			}
			s.regs.SetD(d, uint64(hi)<<32|uint64(lo))
			return nil
		}
		v := s.regs.D(d)
		if err := s.mem.Write32(addr, uint32(v)); err != nil {
			return err
		}
		if err := s.mem.Write32(addr+4, uint32(v>>32)); err != nil {
			return err
		}
		s.monitor.Invalidate(addr)
		s.monitor.Invalidate(addr + 4)
	}
	return nil
}
