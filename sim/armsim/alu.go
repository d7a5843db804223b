package armsim

import (
	"math"
	"math/bits"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/sim"
)

// shifterOperand computes the second operand of a data-processing
// instruction and the shifter carry out.
func (s *Simulator) shifterOperand(i arm.Instr) (uint32, bool) {
	carry := s.regs.APSR.C
	if i.Type() == 1 {
		v := i.Immediate()
		if i.Rotate() != 0 {
			carry = v>>31 == 1
		}
		return v, carry
	}

	rm := s.regs.ReadReg(i.Rm())
	if i.RegShift() {
		// PC as Rm reads one word further when the shift is by register.
		if i.Rm() == arm.PC {
			rm += 4
		}
		amount := s.regs.ReadReg(i.Rs()) & 0xff
		return shiftByRegister(rm, i.ShiftType(), amount, carry)
	}
	return shiftByImmediate(rm, i.ShiftType(), i.ShiftAmount(), carry)
}

func shiftByImmediate(v uint32, shift arm.Shift, amount uint32, carry bool) (uint32, bool) {
	switch shift {
	case arm.LSL:
		if amount == 0 {
			return v, carry
		}
		return v << amount, v>>(32-amount)&1 == 1
	case arm.LSR:
		if amount == 0 {
			return 0, v>>31 == 1
		}
		return v >> amount, v>>(amount-1)&1 == 1
	case arm.ASR:
		if amount == 0 {
			if int32(v) < 0 {
				return 0xffffffff, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amount), v>>(amount-1)&1 == 1
	default:
		if amount == 0 {
			// RRX
			out := v >> 1
			if carry {
				out |= 1 << 31
			}
			return out, v&1 == 1
		}
		return bits.RotateLeft32(v, -int(amount)), v>>(amount-1)&1 == 1
	}
}

func shiftByRegister(v uint32, shift arm.Shift, amount uint32, carry bool) (uint32, bool) {
	if amount == 0 {
		return v, carry
	}
	switch shift {
	case arm.LSL:
		switch {
		case amount < 32:
			return v << amount, v>>(32-amount)&1 == 1
		case amount == 32:
			return 0, v&1 == 1
		default:
			return 0, false
		}
	case arm.LSR:
		switch {
		case amount < 32:
			return v >> amount, v>>(amount-1)&1 == 1
		case amount == 32:
			return 0, v>>31 == 1
		default:
			return 0, false
		}
	case arm.ASR:
		if amount >= 32 {
			if int32(v) < 0 {
				return 0xffffffff, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amount), v>>(amount-1)&1 == 1
	default:
		rot := amount & 31
		if rot == 0 {
			return v, v>>31 == 1
		}
		return bits.RotateLeft32(v, -int(rot)), v>>(rot-1)&1 == 1
	}
}

func (s *Simulator) executeDataProcessing(i arm.Instr) error {
	op := i.Opcode()
	rd := i.Rd()
	rn := s.regs.ReadReg(i.Rn())
	if i.RegShift() && i.Type() == 0 && i.Rn() == arm.PC {
		rn += 4
	}
	operand, shiftCarry := s.shifterOperand(i)

	if i.SetsFlags() && rd == arm.PC && !op.IsTest() {
		return sim.Unsupported(s.pc(), uint32(i), "flag-setting write to pc")
	}

	var (
		result uint32
		flags  sim.Flags
		arith  bool
	)
	carryIn := s.regs.APSR.C

	switch op {
	case arm.AND, arm.TST:
		result = rn & operand
	case arm.EOR, arm.TEQ:
		result = rn ^ operand
	case arm.SUB, arm.CMP:
		result, flags = sim.SubFlags32(rn, operand)
		arith = true
	case arm.RSB:
		result, flags = sim.SubFlags32(operand, rn)
		arith = true
	case arm.ADD, arm.CMN:
		result, flags = sim.AddFlags32(rn, operand, false)
		arith = true
	case arm.ADC:
		result, flags = sim.AddFlags32(rn, operand, carryIn)
		arith = true
	case arm.SBC:
		result, flags = sim.AddFlags32(rn, ^operand, carryIn)
		arith = true
	case arm.RSC:
		result, flags = sim.AddFlags32(operand, ^rn, carryIn)
		arith = true
	case arm.ORR:
		result = rn | operand
	case arm.MOV:
		result = operand
	case arm.BIC:
		result = rn &^ operand
	case arm.MVN:
		result = ^operand
	}

	if op.IsTest() || i.SetsFlags() {
		if arith {
			s.regs.APSR = flags
		} else {
			f := sim.LogicFlags32(result, s.regs.APSR)
			f.C = shiftCarry
			s.regs.APSR = f
		}
	}
	if !op.IsTest() {
		s.setReg(rd, result)
	}
	return nil
}

// Multiply opcodes in bits 23:21.
const (
	mulMUL   = 0
	mulMLA   = 1
	mulMLS   = 3
	mulUMULL = 4
	mulUMLAL = 5
	mulSMULL = 6
	mulSMLAL = 7
)

func (s *Simulator) executeMultiply(i arm.Instr) error {
	// Field roles: bits 19:16 hold the destination (RdHi), bits 15:12 the
	// accumulator (RdLo), bits 3:0 and 11:8 the operands.
	rd := i.Rn()
	ra := i.Rd()
	rm := s.regs.ReadReg(i.Rm())
	rs := s.regs.ReadReg(i.Rs())

	var n, z bool
	switch i.Bits(21, 3) {
	case mulMUL:
		v := rm * rs
		s.setReg(rd, v)
		n, z = int32(v) < 0, v == 0
	case mulMLA:
		v := rm*rs + s.regs.ReadReg(ra)
		s.setReg(rd, v)
		n, z = int32(v) < 0, v == 0
	case mulMLS:
		v := s.regs.ReadReg(ra) - rm*rs
		s.setReg(rd, v)
		return nil
	case mulUMULL, mulUMLAL, mulSMULL, mulSMLAL:
		var v uint64
		if i.Bit(22) == 1 {
			v = uint64(int64(int32(rm)) * int64(int32(rs)))
		} else {
			v = uint64(rm) * uint64(rs)
		}
		if i.Bit(21) == 1 {
			v += uint64(s.regs.ReadReg(rd))<<32 | uint64(s.regs.ReadReg(ra))
		}
		s.setReg(ra, uint32(v))
		s.setReg(rd, uint32(v>>32))
		n, z = int64(v) < 0, v == 0
	default:
		return sim.Unsupported(s.pc(), uint32(i), "multiply variant")
	}

	if i.SetsFlags() {
		s.regs.APSR.N = n
		s.regs.APSR.Z = z
	}
	return nil
}

func (s *Simulator) executeSyncPrimitive(i arm.Instr) error {
	addr := s.regs.ReadReg(i.Rn())
	if addr%4 != 0 {
		return sim.Unaligned(s.pc(), uint64(addr), 4)
	}

	switch i.Bits(20, 4) {
	case 0x9:
		v, err := s.mem.Read32(uint64(addr))
		if err != nil {
			return err
		}
		s.monitor.LoadExclusive(s.owner, uint64(addr))
		s.setReg(i.Rd(), v)
	case 0x8:
		rd := i.Rd()
		rt := i.Rm()
		if !s.monitor.StoreExclusive(s.owner, uint64(addr)) {
			s.setReg(rd, 1)
			return nil
		}
		if err := s.mem.Write32(uint64(addr), s.regs.ReadReg(rt)); err != nil {
			return err
		}
		s.setReg(rd, 0)
	default:
		return sim.Unsupported(s.pc(), uint32(i), "exclusive access width")
	}
	return nil
}

func (s *Simulator) executeMisc(i arm.Instr) error {
	switch i.Bits(4, 3) {
	case 1:
		if i.Bits(21, 2) == 3 {
			rm := s.regs.ReadReg(i.Rm())
			s.setReg(i.Rd(), uint32(bits.LeadingZeros32(rm)))
			return nil
		}
		return s.branchExchange(i, false)
	case 3:
		return s.branchExchange(i, true)
	case 7:
		return s.compiledBreakpoint(i)
	default:
		return sim.Unsupported(s.pc(), uint32(i), "miscellaneous")
	}
}

func (s *Simulator) branchExchange(i arm.Instr, link bool) error {
	target := s.regs.ReadReg(i.Rm())
	if target&1 != 0 {
		return sim.Unsupported(s.pc(), uint32(i), "interworking branch to thumb")
	}
	if link {
		s.regs.R[arm.LR] = s.regs.R[arm.PC] + arm.InstrSize
	}
	s.nextPC = target &^ 3
	return nil
}

func (s *Simulator) executeMoveWide(i arm.Instr) {
	imm := i.Imm16()
	if i.Bit(22) == 1 {
		old := s.regs.ReadReg(i.Rd())
		s.setReg(i.Rd(), old&0xffff|imm<<16)
		return
	}
	s.setReg(i.Rd(), imm)
}

func (s *Simulator) executeDivision(i arm.Instr) {
	rd := i.Rn()
	n := s.regs.ReadReg(i.Rm())
	m := s.regs.ReadReg(i.Rs())

	var v uint32
	switch {
	case m == 0:
		v = 0
	case i.Bit(21) == 1:
		v = n / m
	case int32(n) == math.MinInt32 && int32(m) == -1:
		v = n
	default:
		v = uint32(int32(n) / int32(m))
	}
	s.setReg(rd, v)
}

func (s *Simulator) executeBranch(i arm.Instr) {
	pc := s.regs.R[arm.PC]
	if i.HasLink() {
		s.regs.R[arm.LR] = pc + arm.InstrSize
	}
	s.nextPC = pc + uint32(i.BranchOffset())
}
