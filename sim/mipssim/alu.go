package mipssim

import (
	"math"
	"math/bits"

	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeShift(i mips.Instr) {
	rt := s.regs.Reg(i.Rt())
	var v uint32
	switch i.SpecialFunction() {
	case mips.SLL:
		v = rt << i.Sa()
	case mips.SRL:
		v = rt >> i.Sa()
	case mips.SRA:
		v = uint32(int32(rt) >> i.Sa())
	case mips.SLLV:
		v = rt << (s.regs.Reg(i.Rs()) & 31)
	case mips.SRLV:
		v = rt >> (s.regs.Reg(i.Rs()) & 31)
	case mips.SRAV:
		v = uint32(int32(rt) >> (s.regs.Reg(i.Rs()) & 31))
	}
	s.regs.SetReg(i.Rd(), v)
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (s *Simulator) executeALU(i mips.Instr) {
	rs, rt := s.regs.Reg(i.Rs()), s.regs.Reg(i.Rt())
	rd := i.Rd()
	switch i.SpecialFunction() {
	case mips.ADDU:
		s.regs.SetReg(rd, rs+rt)
	case mips.SUBU:
		s.regs.SetReg(rd, rs-rt)
	case mips.AND:
		s.regs.SetReg(rd, rs&rt)
	case mips.OR:
		s.regs.SetReg(rd, rs|rt)
	case mips.XOR:
		s.regs.SetReg(rd, rs^rt)
	case mips.NOR:
		s.regs.SetReg(rd, ^(rs | rt))
	case mips.SLT:
		s.regs.SetReg(rd, boolWord(int32(rs) < int32(rt)))
	case mips.SLTU:
		s.regs.SetReg(rd, boolWord(rs < rt))
	case mips.MOVZ:
		if rt == 0 {
			s.regs.SetReg(rd, rs)
		}
	case mips.MOVN:
		if rt != 0 {
			s.regs.SetReg(rd, rs)
		}
	}
}

// executeMultiply writes HI and LO. Division by zero, which the
// architecture leaves unpredictable, clears both.
func (s *Simulator) executeMultiply(i mips.Instr) {
	rs, rt := s.regs.Reg(i.Rs()), s.regs.Reg(i.Rt())
	switch i.SpecialFunction() {
	case mips.MULT:
		p := uint64(int64(int32(rs)) * int64(int32(rt)))
		s.regs.HI, s.regs.LO = uint32(p>>32), uint32(p)
	case mips.MULTU:
		p := uint64(rs) * uint64(rt)
		s.regs.HI, s.regs.LO = uint32(p>>32), uint32(p)
	case mips.DIV:
		n, d := int32(rs), int32(rt)
		switch {
		case d == 0:
			s.regs.HI, s.regs.LO = 0, 0
		case n == math.MinInt32 && d == -1:
			s.regs.HI, s.regs.LO = 0, uint32(n)
		default:
			s.regs.HI, s.regs.LO = uint32(n%d), uint32(n/d)
		}
	case mips.DIVU:
		if rt == 0 {
			s.regs.HI, s.regs.LO = 0, 0
			return
		}
		s.regs.HI, s.regs.LO = rs%rt, rs/rt
	}
}

func (s *Simulator) executeHiLo(i mips.Instr) {
	switch i.SpecialFunction() {
	case mips.MFHI:
		s.regs.SetReg(i.Rd(), s.regs.HI)
	case mips.MFLO:
		s.regs.SetReg(i.Rd(), s.regs.LO)
	case mips.MTHI:
		s.regs.HI = s.regs.Reg(i.Rs())
	case mips.MTLO:
		s.regs.LO = s.regs.Reg(i.Rs())
	}
}

func (s *Simulator) executeSpecial2(i mips.Instr) error {
	rs := s.regs.Reg(i.Rs())
	switch i.SpecialFunction() {
	case mips.MUL:
		s.regs.SetReg(i.Rd(), uint32(int32(rs)*int32(s.regs.Reg(i.Rt()))))
	case mips.CLZ:
		s.regs.SetReg(i.Rd(), uint32(bits.LeadingZeros32(rs)))
	case mips.CLO:
		s.regs.SetReg(i.Rd(), uint32(bits.LeadingZeros32(^rs)))
	default:
		return sim.Unknown(s.pc(), uint32(i), "special2 function %d", i.Function())
	}
	return nil
}

func (s *Simulator) executeSpecial3(i mips.Instr) error {
	if !s.features.IsMIPS32r2() {
		return sim.Unsupported(s.pc(), uint32(i), "MIPS32r2 instruction on a MIPS32 core")
	}
	rs, rt := s.regs.Reg(i.Rs()), s.regs.Reg(i.Rt())
	lsb := i.Sa()
	switch {
	case i.SpecialFunction() == mips.EXT:
		size := uint32(i.Rd()) + 1
		if lsb+size > 32 {
			return sim.Unsupported(s.pc(), uint32(i), "ext past bit 31")
		}
		s.regs.SetReg(i.Rt(), rs>>lsb&mask(size))
	case i.SpecialFunction() == mips.INS:
		msb := uint32(i.Rd())
		if msb < lsb {
			return sim.Unsupported(s.pc(), uint32(i), "ins with msb below lsb")
		}
		m := mask(msb-lsb+1) << lsb
		s.regs.SetReg(i.Rt(), rt&^m|rs<<lsb&m)
	case i.SpecialFunction() == mips.BSHFL && lsb == mips.SEB:
		s.regs.SetReg(i.Rd(), uint32(int32(int8(rt))))
	case i.SpecialFunction() == mips.BSHFL && lsb == mips.SEH:
		s.regs.SetReg(i.Rd(), uint32(int32(int16(rt))))
	default:
		return sim.Unknown(s.pc(), uint32(i), "special3 function %d", i.Function())
	}
	return nil
}

func mask(width uint32) uint32 {
	if width >= 32 {
		return math.MaxUint32
	}
	return 1<<width - 1
}

func (s *Simulator) executeImmediate(i mips.Instr) {
	rs := s.regs.Reg(i.Rs())
	simm := uint32(i.SImm16())
	var v uint32
	switch i.Opcode() {
	case mips.ADDIU:
		v = rs + simm
	case mips.SLTI:
		v = boolWord(int32(rs) < int32(simm))
	case mips.SLTIU:
		// The immediate is sign-extended, then compared unsigned.
		v = boolWord(rs < simm)
	case mips.ANDI:
		v = rs & i.Imm16()
	case mips.ORI:
		v = rs | i.Imm16()
	case mips.XORI:
		v = rs ^ i.Imm16()
	case mips.LUI:
		v = i.Imm16() << 16
	}
	s.regs.SetReg(i.Rt(), v)
}
