package armsim

import (
	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/sim"
)

// address applies the P U W bits to base and offset. It returns the
// access address and the value to write back to the base register, if
// any.
func address(i arm.Instr, base, offset uint32) (addr uint32, wb uint32, writeBack bool) {
	updated := base + offset
	if !i.HasU() {
		updated = base - offset
	}
	switch {
	case !i.HasP():
		return base, updated, true
	case i.HasW():
		return updated, updated, true
	default:
		return updated, 0, false
	}
}

func (s *Simulator) checkWriteBack(i arm.Instr) error {
	if i.Rn() == arm.PC {
		return sim.Unsupported(s.pc(), uint32(i), "write-back to pc")
	}
	return nil
}

func (s *Simulator) executeLoadStore(i arm.Instr) error {
	var offset uint32
	if i.Bit(25) == 1 {
		offset, _ = shiftByImmediate(s.regs.ReadReg(i.Rm()), i.ShiftType(), i.ShiftAmount(), s.regs.APSR.C)
	} else {
		offset = i.Offset12()
	}

	base := s.regs.ReadReg(i.Rn())
	addr, wb, writeBack := address(i, base, offset)
	if writeBack {
		if err := s.checkWriteBack(i); err != nil {
			return err
		}
	}

	rd := i.Rd()
	if i.HasB() {
		if i.HasL() {
			v, err := s.mem.Read8(uint64(addr))
			if err != nil {
				return err
			}
			s.finishLoad(i, writeBack, wb, rd, uint32(v))
			return nil
		}
		if err := s.mem.Write8(uint64(addr), uint8(s.regs.ReadReg(rd))); err != nil {
			return err
		}
		s.finishStore(i, writeBack, wb)
		return nil
	}

	if addr%4 != 0 && !s.config.AllowUnalignedWord {
		return sim.Unaligned(s.pc(), uint64(addr), 4)
	}
	if i.HasL() {
		v, err := s.mem.Read32(uint64(addr))
		if err != nil {
			return err
		}
		s.finishLoad(i, writeBack, wb, rd, v)
		return nil
	}
	// A stored pc reads as the instruction address plus eight.
	if err := s.mem.Write32(uint64(addr), s.regs.ReadReg(rd)); err != nil {
		return err
	}
	s.finishStore(i, writeBack, wb)
	return nil
}

// finishLoad writes back the base before the loaded value so a load into
// the base register keeps the loaded value.
func (s *Simulator) finishLoad(i arm.Instr, writeBack bool, wb uint32, rd arm.Register, v uint32) {
	if writeBack {
		s.regs.R[i.Rn()] = wb
	}
	s.setReg(rd, v)
}

func (s *Simulator) finishStore(i arm.Instr, writeBack bool, wb uint32) {
	if writeBack {
		s.regs.R[i.Rn()] = wb
	}
}

func (s *Simulator) executeExtraLoadStore(i arm.Instr) error {
	var offset uint32
	if i.HasB() {
		offset = i.Offset8()
	} else {
		offset = s.regs.ReadReg(i.Rm())
	}

	base := s.regs.ReadReg(i.Rn())
	addr, wb, writeBack := address(i, base, offset)
	if writeBack {
		if err := s.checkWriteBack(i); err != nil {
			return err
		}
	}

	rd := i.Rd()
	switch sh := i.Bits(5, 2); {
	case sh == 1 && i.HasL():
		if addr%2 != 0 {
			return sim.Unaligned(s.pc(), uint64(addr), 2)
		}
		v, err := s.mem.Read16(uint64(addr))
		if err != nil {
			return err
		}
		s.finishLoad(i, writeBack, wb, rd, uint32(v))
	case sh == 1:
		if addr%2 != 0 {
			return sim.Unaligned(s.pc(), uint64(addr), 2)
		}
		if err := s.mem.Write16(uint64(addr), uint16(s.regs.ReadReg(rd))); err != nil {
			return err
		}
		s.finishStore(i, writeBack, wb)
	case sh == 2 && i.HasL():
		v, err := s.mem.Read8(uint64(addr))
		if err != nil {
			return err
		}
		s.finishLoad(i, writeBack, wb, rd, uint32(int32(int8(v))))
	case sh == 3 && i.HasL():
		if addr%2 != 0 {
			return sim.Unaligned(s.pc(), uint64(addr), 2)
		}
		v, err := s.mem.Read16(uint64(addr))
		if err != nil {
			return err
		}
		s.finishLoad(i, writeBack, wb, rd, uint32(int32(int16(v))))
	default:
		return s.executeDoubleword(i, sh == 3, addr, writeBack, wb)
	}
	return nil
}

// executeDoubleword handles ldrd and strd. Pairs need an even first
// register below lr and a word-aligned address.
func (s *Simulator) executeDoubleword(i arm.Instr, store bool, addr uint32, writeBack bool, wb uint32) error {
	rd := i.Rd()
	if rd%2 != 0 || rd == arm.LR {
		return sim.Unsupported(s.pc(), uint32(i), "doubleword transfer with odd register")
	}
	if addr%4 != 0 {
		return sim.Unaligned(s.pc(), uint64(addr), 8)
	}

	if store {
		if err := s.mem.Write32(uint64(addr), s.regs.ReadReg(rd)); err != nil {
			return err
		}
		if err := s.mem.Write32(uint64(addr)+4, s.regs.ReadReg(rd+1)); err != nil {
			return err
		}
		s.finishStore(i, writeBack, wb)
		return nil
	}

	lo, err := s.mem.Read32(uint64(addr))
	if err != nil {
		return err
	}
	hi, err := s.mem.Read32(uint64(addr) + 4)
	if err != nil {
		return err
	}
	if writeBack {
		s.regs.R[i.Rn()] = wb
	}
	s.setReg(rd, lo)
	s.setReg(rd+1, hi)
	return nil
}

func (s *Simulator) executeBlockTransfer(i arm.Instr) error {
	regs := i.RegisterList()
	if regs == 0 {
		return sim.Unsupported(s.pc(), uint32(i), "empty register list")
	}
	n := uint32(regs.Count())
	base := s.regs.ReadReg(i.Rn())

	var start, end uint32
	switch {
	case !i.HasP() && i.HasU(): // IA
		start, end = base, base+4*n
	case i.HasP() && i.HasU(): // IB
		start, end = base+4, base+4*n
	case !i.HasP(): // DA
		start, end = base-4*n+4, base-4*n
	default: // DB
		start, end = base-4*n, base-4*n
	}
	if start%4 != 0 {
		return sim.Unaligned(s.pc(), uint64(start), 4)
	}

	if !i.HasL() {
		addr := start
		for r := arm.R0; r < arm.NumRegisters; r++ {
			if !regs.Has(r) {
				continue
			}
			if err := s.mem.Write32(uint64(addr), s.regs.ReadReg(r)); err != nil {
				return err
			}
			addr += 4
		}
		if i.HasW() {
			s.regs.R[i.Rn()] = end
		}
		return nil
	}

	var loaded [arm.NumRegisters]uint32
	addr := start
	for r := arm.R0; r < arm.NumRegisters; r++ {
		if !regs.Has(r) {
			continue
		}
		v, err := s.mem.Read32(uint64(addr))
		if err != nil {
			return err
		}
		loaded[r] = v
		addr += 4
	}
	if i.HasW() {
		s.regs.R[i.Rn()] = end
	}
	for r := arm.R0; r < arm.NumRegisters; r++ {
		if regs.Has(r) {
			s.setReg(r, loaded[r])
		}
	}
	return nil
}
