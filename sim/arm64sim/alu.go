package arm64sim

import (
	"math"
	"math/bits"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

func mask(width uint) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}
	return 1<<width - 1
}

func datasize(i arm64.Instr) uint {
	if i.SF() {
		return 64
	}
	return 32
}

// operand reads register n as a datasize-wide value.
func (s *Simulator) operand(i arm64.Instr, n uint32, sp bool) uint64 {
	v := s.regs.X(n, sp)
	if !i.SF() {
		v = uint64(uint32(v))
	}
	return v
}

// writeResult writes a datasize-wide result, zero-extending W results.
func (s *Simulator) writeResult(i arm64.Instr, d uint32, v uint64, sp bool) {
	if !i.SF() {
		v = uint64(uint32(v))
	}
	s.regs.SetX(d, v, sp)
}

func addSub(w64 bool, x, y uint64, sub, carry bool) (uint64, sim.Flags) {
	if w64 {
		if sub {
			return sim.AddFlags64(x, ^y, carry)
		}
		return sim.AddFlags64(x, y, carry)
	}
	if sub {
		r, f := sim.AddFlags32(uint32(x), ^uint32(y), carry)
		return uint64(r), f
	}
	r, f := sim.AddFlags32(uint32(x), uint32(y), carry)
	return uint64(r), f
}

func logicFlags(w64 bool, v uint64) sim.Flags {
	if w64 {
		return sim.LogicFlags64(v)
	}
	return sim.Flags{N: v>>31&1 == 1, Z: uint32(v) == 0}
}

func shiftValue(v uint64, t arm64.Shift, amount uint, size uint) uint64 {
	v &= mask(size)
	amount %= size
	switch t {
	case arm64.LSL:
		return v << amount & mask(size)
	case arm64.LSR:
		return v >> amount
	case arm64.ASR:
		if size == 32 {
			return uint64(uint32(int32(uint32(v)) >> amount))
		}
		return uint64(int64(v) >> amount)
	default:
		if size == 32 {
			return uint64(bits.RotateLeft32(uint32(v), -int(amount)))
		}
		return bits.RotateLeft64(v, -int(amount))
	}
}

func extendValue(v uint64, ext arm64.Extend, shift uint) uint64 {
	switch ext {
	case arm64.UXTB:
		v = uint64(uint8(v))
	case arm64.UXTH:
		v = uint64(uint16(v))
	case arm64.UXTW:
		v = uint64(uint32(v))
	case arm64.SXTB:
		v = uint64(int64(int8(v)))
	case arm64.SXTH:
		v = uint64(int64(int16(v)))
	case arm64.SXTW:
		v = uint64(int64(int32(v)))
	}
	return v << shift
}

func (s *Simulator) executePCRel(i arm64.Instr) {
	off := i.ADROffset()
	if i.Bit(31) == 0 {
		s.regs.SetX(i.Rd(), uint64(int64(s.pc)+off), false)
		return
	}
	s.regs.SetX(i.Rd(), uint64(int64(s.pc&^0xfff)+off<<12), false)
}

func (s *Simulator) executeAddSubImm(i arm64.Instr) {
	imm := uint64(i.Imm12())
	if i.Bit(22) == 1 {
		imm <<= 12
	}
	sub := i.Bit(30) == 1
	setFlags := i.Bit(29) == 1
	x := s.operand(i, i.Rn(), true)
	r, f := addSub(i.SF(), x, imm, sub, sub)
	if setFlags {
		s.regs.NZCV = f
	}
	s.writeResult(i, i.Rd(), r, !setFlags)
}

func (s *Simulator) executeAddSubShifted(i arm64.Instr) error {
	t := i.ShiftType()
	if t == arm64.ROR {
		return sim.Unknown(s.pc, uint32(i), "ror in add/sub")
	}
	size := datasize(i)
	if uint(i.Imm6()) >= size {
		return sim.Unknown(s.pc, uint32(i), "shift amount %d", i.Imm6())
	}
	sub := i.Bit(30) == 1
	x := s.operand(i, i.Rn(), false)
	y := shiftValue(s.operand(i, i.Rm(), false), t, uint(i.Imm6()), size)
	r, f := addSub(i.SF(), x, y, sub, sub)
	if i.Bit(29) == 1 {
		s.regs.NZCV = f
	}
	s.writeResult(i, i.Rd(), r, false)
	return nil
}

func (s *Simulator) executeAddSubExtended(i arm64.Instr) {
	sub := i.Bit(30) == 1
	setFlags := i.Bit(29) == 1
	x := s.operand(i, i.Rn(), true)
	y := extendValue(s.regs.X(i.Rm(), false), i.ExtendType(), uint(i.Imm3()))
	r, f := addSub(i.SF(), x, y, sub, sub)
	if setFlags {
		s.regs.NZCV = f
	}
	s.writeResult(i, i.Rd(), r, !setFlags)
}

func (s *Simulator) executeAddSubCarry(i arm64.Instr) {
	sub := i.Bit(30) == 1
	x := s.operand(i, i.Rn(), false)
	y := s.operand(i, i.Rm(), false)
	r, f := addSub(i.SF(), x, y, sub, s.regs.NZCV.C)
	if i.Bit(29) == 1 {
		s.regs.NZCV = f
	}
	s.writeResult(i, i.Rd(), r, false)
}

func logicalOp(opc uint32, x, y uint64) uint64 {
	switch opc {
	case 0, 3:
		return x & y
	case 1:
		return x | y
	default:
		return x ^ y
	}
}

func (s *Simulator) executeLogicalImm(i arm64.Instr) error {
	size := datasize(i)
	if size == 32 && i.N() == 1 {
		return sim.Unknown(s.pc, uint32(i), "N set in 32-bit logical immediate")
	}
	imm, ok := arm64.DecodeLogicalImm(i.N(), i.Immr(), i.Imms(), int(size))
	if !ok {
		return sim.Unknown(s.pc, uint32(i), "reserved logical immediate")
	}
	opc := i.Bits(29, 2)
	r := logicalOp(opc, s.operand(i, i.Rn(), false), imm) & mask(size)
	if opc == 3 {
		s.regs.NZCV = logicFlags(i.SF(), r)
		s.writeResult(i, i.Rd(), r, false)
		return nil
	}
	s.writeResult(i, i.Rd(), r, true)
	return nil
}

func (s *Simulator) executeLogicalShifted(i arm64.Instr) {
	size := datasize(i)
	y := shiftValue(s.operand(i, i.Rm(), false), i.ShiftType(), uint(i.Imm6()), size)
	if i.Bit(21) == 1 {
		y = ^y & mask(size)
	}
	opc := i.Bits(29, 2)
	r := logicalOp(opc, s.operand(i, i.Rn(), false), y) & mask(size)
	if opc == 3 {
		s.regs.NZCV = logicFlags(i.SF(), r)
	}
	s.writeResult(i, i.Rd(), r, false)
}

func (s *Simulator) executeMoveWide(i arm64.Instr) {
	shift := 16 * uint(i.Hw())
	imm := uint64(i.Imm16()) << shift
	var r uint64
	switch i.Bits(29, 2) {
	case 0:
		r = ^imm
	case 2:
		r = imm
	default:
		r = s.regs.X(i.Rd(), false)&^(0xffff<<shift) | imm
	}
	s.writeResult(i, i.Rd(), r, false)
}

// executeBitfield implements SBFM, BFM and UBFM. A field of bits r..s
// moves to bit 0; when s < r, bits 0..s move up to bit size-r.
func (s *Simulator) executeBitfield(i arm64.Instr) error {
	size := datasize(i)
	if i.N() != i.Bits(31, 1) {
		return sim.Unknown(s.pc, uint32(i), "bitfield N does not match sf")
	}
	immr, imms := uint(i.Immr()), uint(i.Imms())
	if immr >= size || imms >= size {
		return sim.Unknown(s.pc, uint32(i), "bitfield position out of range")
	}
	src := s.operand(i, i.Rn(), false)
	var width, pos uint
	var field uint64
	if imms >= immr {
		width = imms - immr + 1
		field = src >> immr & mask(width)
	} else {
		width = imms + 1
		field = src & mask(width)
		pos = size - immr
	}

	var r uint64
	switch i.Bits(29, 2) {
	case 0:
		r = field << pos
		if field>>(width-1)&1 == 1 {
			r |= ^mask(pos + width)
		}
	case 1:
		dst := s.operand(i, i.Rd(), false)
		r = dst&^(mask(width)<<pos) | field<<pos
	case 2:
		r = field << pos
	default:
		return sim.Unknown(s.pc, uint32(i), "bitfield opc 3")
	}
	s.writeResult(i, i.Rd(), r&mask(size), false)
	return nil
}

func (s *Simulator) executeCondSelect(i arm64.Instr) {
	size := datasize(i)
	if sim.EvaluateCondition(sim.Cond(i.SelectCondition()), s.regs.NZCV) {
		s.writeResult(i, i.Rd(), s.operand(i, i.Rn(), false), false)
		return
	}
	r := s.operand(i, i.Rm(), false)
	switch i.Bit(30)<<1 | i.Bits(10, 2) {
	case 1:
		r++
	case 2:
		r = ^r
	case 3:
		r = -r
	}
	s.writeResult(i, i.Rd(), r&mask(size), false)
}

func (s *Simulator) executeCondCompare(i arm64.Instr) {
	if !sim.EvaluateCondition(sim.Cond(i.SelectCondition()), s.regs.NZCV) {
		s.regs.NZCV = sim.FlagsFromNZCV(i.NZCV())
		return
	}
	var y uint64
	if i.Bit(11) == 1 {
		y = uint64(i.Rm())
	} else {
		y = s.operand(i, i.Rm(), false)
	}
	sub := i.Bit(30) == 1
	_, f := addSub(i.SF(), s.operand(i, i.Rn(), false), y, sub, sub)
	s.regs.NZCV = f
}

func (s *Simulator) executeDP1Source(i arm64.Instr) error {
	size := datasize(i)
	x := s.operand(i, i.Rn(), false)
	var r uint64
	switch op := i.Bits(10, 6); {
	case op == 0 && size == 64:
		r = bits.Reverse64(x)
	case op == 0:
		r = uint64(bits.Reverse32(uint32(x)))
	case op == 1:
		r = (x&0x00ff00ff00ff00ff)<<8 | (x>>8)&0x00ff00ff00ff00ff
	case op == 2 && size == 32:
		r = uint64(bits.ReverseBytes32(uint32(x)))
	case op == 2:
		r = uint64(bits.ReverseBytes32(uint32(x))) | uint64(bits.ReverseBytes32(uint32(x>>32)))<<32
	case op == 3 && size == 64:
		r = bits.ReverseBytes64(x)
	case op == 4 && size == 64:
		r = uint64(bits.LeadingZeros64(x))
	case op == 4:
		r = uint64(bits.LeadingZeros32(uint32(x)))
	case op == 5:
		if x>>(size-1)&1 == 1 {
			x = ^x & mask(size)
		}
		r = uint64(bits.LeadingZeros64(x<<(64-size)|mask(64-size))) - 1
	default:
		return sim.Unknown(s.pc, uint32(i), "dp 1-source opcode %d", op)
	}
	s.writeResult(i, i.Rd(), r&mask(size), false)
	return nil
}

func (s *Simulator) executeDP2Source(i arm64.Instr) error {
	size := datasize(i)
	x := s.operand(i, i.Rn(), false)
	y := s.operand(i, i.Rm(), false)
	var r uint64
	switch op := i.Bits(10, 6); op {
	case 2:
		if y != 0 {
			r = x / y
		}
	case 3:
		r = sdiv(x, y, size)
	case 8, 9, 10, 11:
		r = shiftValue(x, arm64.Shift(op-8), uint(y), size)
	default:
		return sim.Unknown(s.pc, uint32(i), "dp 2-source opcode %d", op)
	}
	s.writeResult(i, i.Rd(), r&mask(size), false)
	return nil
}

// sdiv divides with A64 semantics: zero divisors give zero and the
// overflowing case gives the dividend.
func sdiv(x, y uint64, size uint) uint64 {
	if y == 0 {
		return 0
	}
	if size == 32 {
		a, b := int32(uint32(x)), int32(uint32(y))
		if a == math.MinInt32 && b == -1 {
			return uint64(uint32(a))
		}
		return uint64(uint32(a / b))
	}
	a, b := int64(x), int64(y)
	if a == math.MinInt64 && b == -1 {
		return x
	}
	return uint64(a / b)
}

func (s *Simulator) executeDP3Source(i arm64.Instr) error {
	if i.Bits(29, 2) != 0 {
		return sim.Unknown(s.pc, uint32(i), "dp 3-source op54")
	}
	size := datasize(i)
	n := s.regs.X(i.Rn(), false)
	m := s.regs.X(i.Rm(), false)
	a := s.regs.X(i.Ra(), false)
	sub := i.Bit(15) == 1
	var r uint64
	switch op := i.Bits(21, 3); {
	case op == 0:
		p := n * m
		if sub {
			r = a - p
		} else {
			r = a + p
		}
	case op == 1 && size == 64:
		p := uint64(int64(int32(n)) * int64(int32(m)))
		if sub {
			r = a - p
		} else {
			r = a + p
		}
	case op == 5 && size == 64:
		p := uint64(uint32(n)) * uint64(uint32(m))
		if sub {
			r = a - p
		} else {
			r = a + p
		}
	case op == 2 && size == 64 && !sub:
		hi, _ := mulSigned(int64(n), int64(m))
		r = uint64(hi)
	case op == 6 && size == 64 && !sub:
		r, _ = bits.Mul64(n, m)
	default:
		return sim.Unknown(s.pc, uint32(i), "dp 3-source op31 %d", op)
	}
	s.writeResult(i, i.Rd(), r&mask(size), false)
	return nil
}

// mulSigned returns the 128-bit signed product of x and y.
func mulSigned(x, y int64) (hi int64, lo uint64) {
	h, l := bits.Mul64(uint64(x), uint64(y))
	if x < 0 {
		h -= uint64(y)
	}
	if y < 0 {
		h -= uint64(x)
	}
	return int64(h), l
}
