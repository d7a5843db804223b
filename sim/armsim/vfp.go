package armsim

import (
	"math"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) checkVFP(i arm.Instr) error {
	if !s.features.VFPSupported() {
		return sim.Unsupported(s.pc(), uint32(i), "vfp disabled")
	}
	return nil
}

func (s *Simulator) executeVFPTwoRegTransfer(i arm.Instr) error {
	if err := s.checkVFP(i); err != nil {
		return err
	}
	rt := i.Rd()
	rt2 := i.Rn()
	toCore := i.HasL()

	if i.IsDoublePrecision() {
		dm := i.Dm()
		if toCore {
			v := s.regs.D(dm)
			s.setReg(rt, uint32(v))
			s.setReg(rt2, uint32(v>>32))
			return nil
		}
		s.regs.SetD(dm, uint64(s.regs.ReadReg(rt2))<<32|uint64(s.regs.ReadReg(rt)))
		return nil
	}

	sm := i.Sm()
	if sm == arm.S31 {
		return sim.Unsupported(s.pc(), uint32(i), "vmov of s31 pair")
	}
	if toCore {
		s.setReg(rt, s.regs.S(sm))
		s.setReg(rt2, s.regs.S(sm+1))
		return nil
	}
	s.regs.SetS(sm, s.regs.ReadReg(rt))
	s.regs.SetS(sm+1, s.regs.ReadReg(rt2))
	return nil
}

func (s *Simulator) executeVFPLoadStore(i arm.Instr) error {
	if err := s.checkVFP(i); err != nil {
		return err
	}
	base := s.regs.ReadReg(i.Rn())
	if i.Rn() == arm.PC {
		base &^= 3
	}
	offset := i.Immed8() << 2
	addr := base + offset
	if !i.HasU() {
		addr = base - offset
	}
	if addr%4 != 0 {
		return sim.Unaligned(s.pc(), uint64(addr), 4)
	}

	if i.IsDoublePrecision() {
		dd := i.Dd()
		if i.HasL() {
			lo, err := s.mem.Read32(uint64(addr))
			if err != nil {
				return err
			}
			hi, err := s.mem.Read32(uint64(addr) + 4)
			if err != nil {
				return err
			}
			s.regs.SetD(dd, uint64(hi)<<32|uint64(lo))
			return nil
		}
		v := s.regs.D(dd)
		if err := s.mem.Write32(uint64(addr), uint32(v)); err != nil {
			return err
		}
		return s.mem.Write32(uint64(addr)+4, uint32(v>>32))
	}

	sd := i.Sd()
	if i.HasL() {
		v, err := s.mem.Read32(uint64(addr))
		if err != nil {
			return err
		}
		s.regs.SetS(sd, v)
		return nil
	}
	return s.mem.Write32(uint64(addr), s.regs.S(sd))
}

func (s *Simulator) executeVFPBlockTransfer(i arm.Instr) error {
	if err := s.checkVFP(i); err != nil {
		return err
	}
	imm := i.Immed8()
	words := imm
	base := s.regs.ReadReg(i.Rn())

	var start, end uint32
	switch {
	case !i.HasP() && i.HasU():
		start, end = base, base+4*words
	case i.HasP() && !i.HasU() && i.HasW():
		start, end = base-4*words, base-4*words
	default:
		return sim.Unsupported(s.pc(), uint32(i), "vfp block addressing mode")
	}
	if start%4 != 0 {
		return sim.Unaligned(s.pc(), uint64(start), 4)
	}

	// Word k of the transfer maps to bank word first+k; D registers span
	// two bank words.
	var first uint32
	if i.IsDoublePrecision() {
		first = 2 * uint32(i.Dd())
	} else {
		first = uint32(i.Sd())
	}
	if first+words > uint32(len(s.regs.vfp)) {
		return sim.Unsupported(s.pc(), uint32(i), "vfp register list out of range")
	}

	if i.HasL() {
		var loaded [64]uint32
		for k := uint32(0); k < words; k++ {
			v, err := s.mem.Read32(uint64(start + 4*k))
			if err != nil {
				return err
			}
			loaded[k] = v
		}
		copy(s.regs.vfp[first:first+words], loaded[:words])
	} else {
		for k := uint32(0); k < words; k++ {
			if err := s.mem.Write32(uint64(start+4*k), s.regs.vfp[first+k]); err != nil {
				return err
			}
		}
	}
	if i.HasW() {
		s.regs.R[i.Rn()] = end
	}
	return nil
}

func (s *Simulator) executeVFPRegTransfer(i arm.Instr) error {
	if err := s.checkVFP(i); err != nil {
		return err
	}
	switch {
	case i.Bits(21, 3) == 0 && !i.IsDoublePrecision():
		sn := i.Sn()
		if i.HasL() {
			s.setReg(i.Rd(), s.regs.S(sn))
		} else {
			s.regs.SetS(sn, s.regs.ReadReg(i.Rd()))
		}
		return nil
	case i.Bits(21, 3) == 7 && i.HasL() && i.Bits(16, 4) == 1:
		if i.Rd() == arm.PC {
			s.regs.APSR = s.regs.FPSCR
		} else {
			s.setReg(i.Rd(), s.regs.FPSCR.NZCV()<<28)
		}
		return nil
	default:
		return sim.Unsupported(s.pc(), uint32(i), "vfp register transfer")
	}
}

// vfpExpandImm expands the 8-bit VFP modified immediate.
func vfpExpandImm(imm8 uint32, double bool) uint64 {
	sign := uint64(imm8>>7) & 1
	b := imm8>>6&1 == 1
	low := uint64(imm8 & 0x3f)
	if double {
		exp := uint64(0x400)
		if b {
			exp = 0x3fc
		}
		return sign<<63 | exp<<52 | low<<48
	}
	exp := uint64(0x40000000)
	if b {
		exp = 0x3e000000
	}
	return sign<<31 | exp | low<<19
}

// vfpOp reads VFP operands as float64 at the precision the sz bit
// selects. Single results round through float32.
type vfpOp struct {
	s      *Simulator
	i      arm.Instr
	double bool
}

func (o vfpOp) n() float64 {
	if o.double {
		return o.s.regs.DFloat(o.i.Dn())
	}
	return float64(o.s.regs.SFloat(o.i.Sn()))
}

func (o vfpOp) m() float64 {
	if o.double {
		return o.s.regs.DFloat(o.i.Dm())
	}
	return float64(o.s.regs.SFloat(o.i.Sm()))
}

func (o vfpOp) d() float64 {
	if o.double {
		return o.s.regs.DFloat(o.i.Dd())
	}
	return float64(o.s.regs.SFloat(o.i.Sd()))
}

func (o vfpOp) set(v float64) {
	if o.double {
		o.s.regs.SetDFloat(o.i.Dd(), v)
		return
	}
	o.s.regs.SetSFloat(o.i.Sd(), float32(v))
}

func (s *Simulator) executeVFPDataProcessing(i arm.Instr) error {
	if err := s.checkVFP(i); err != nil {
		return err
	}
	op := vfpOp{s: s, i: i, double: i.IsDoublePrecision()}
	opc1 := i.Bit(23)<<2 | i.Bits(20, 2)
	neg := i.Bit(6) == 1

	switch opc1 {
	case 0:
		if neg {
			op.set(op.d() - op.n()*op.m())
		} else {
			op.set(op.d() + op.n()*op.m())
		}
	case 2:
		if neg {
			op.set(-(op.n() * op.m()))
		} else {
			op.set(op.n() * op.m())
		}
	case 3:
		if neg {
			op.set(op.n() - op.m())
		} else {
			op.set(op.n() + op.m())
		}
	case 4:
		if neg {
			return sim.Unsupported(s.pc(), uint32(i), "vfp opcode")
		}
		op.set(op.n() / op.m())
	case 7:
		if !neg {
			v := vfpExpandImm(i.VFPImm8(), op.double)
			if op.double {
				s.regs.SetD(i.Dd(), v)
			} else {
				s.regs.SetS(i.Sd(), uint32(v))
			}
			return nil
		}
		return s.executeVFPOther(i, op)
	default:
		return sim.Unsupported(s.pc(), uint32(i), "vfp opcode")
	}
	return nil
}

// executeVFPOther handles the single-operand group selected by opc2 in
// bits 19:16.
func (s *Simulator) executeVFPOther(i arm.Instr, op vfpOp) error {
	top := i.Bit(7) == 1
	switch i.Bits(16, 4) {
	case 0x0:
		if top {
			if op.double {
				s.regs.SetD(i.Dd(), s.regs.D(i.Dm())&^(1<<63))
			} else {
				s.regs.SetS(i.Sd(), s.regs.S(i.Sm())&^(1<<31))
			}
		} else if op.double {
			s.regs.SetD(i.Dd(), s.regs.D(i.Dm()))
		} else {
			s.regs.SetS(i.Sd(), s.regs.S(i.Sm()))
		}
	case 0x1:
		if top {
			op.set(math.Sqrt(op.m()))
		} else if op.double {
			s.regs.SetD(i.Dd(), s.regs.D(i.Dm())^(1<<63))
		} else {
			s.regs.SetS(i.Sd(), s.regs.S(i.Sm())^(1<<31))
		}
	case 0x4:
		s.regs.FPSCR = sim.CompareFloat(op.d(), op.m())
	case 0x5:
		s.regs.FPSCR = sim.CompareFloat(op.d(), 0)
	case 0x7:
		if op.double {
			s.regs.SetSFloat(i.Sd(), float32(s.regs.DFloat(i.Dm())))
		} else {
			s.regs.SetDFloat(i.Dd(), float64(s.regs.SFloat(i.Sm())))
		}
	case 0x8:
		raw := s.regs.S(i.Sm())
		var v float64
		if top {
			v = float64(int32(raw))
		} else {
			v = float64(raw)
		}
		op.set(v)
	case 0xc, 0xd:
		var src float64
		if op.double {
			src = s.regs.DFloat(i.Dm())
		} else {
			src = float64(s.regs.SFloat(i.Sm()))
		}
		if i.Bits(16, 4) == 0xd {
			s.regs.SetS(i.Sd(), uint32(sim.FloatToInt32(src)))
		} else {
			s.regs.SetS(i.Sd(), sim.FloatToUint32(src))
		}
	default:
		return sim.Unsupported(s.pc(), uint32(i), "vfp conversion")
	}
	return nil
}
