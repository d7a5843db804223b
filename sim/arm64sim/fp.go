package arm64sim

import (
	"math"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeFP(i arm64.Instr) error {
	w := uint32(i)
	if i.FPType() > 1 {
		return sim.Unsupported(s.pc, w, "half-precision or 128-bit FP")
	}
	switch {
	case w&0x5f20fc00 == arm64.FPIntConvertBase:
		return s.executeFPIntConvert(i)
	case w&0x5f20fc00 == 0x1e202000:
		s.executeFPCompare(i)
		return nil
	case w&0x5f207c00 == arm64.FPDataProc1Base:
		return s.executeFP1Source(i)
	case w&0x5f201fe0 == arm64.FPImmBase:
		s.executeFPImm(i)
		return nil
	case w&0x5f200c00 == arm64.FPDataProc2Base:
		return s.executeFP2Source(i)
	default:
		return sim.Unsupported(s.pc, w, "fp conditional compare or select")
	}
}

func double(i arm64.Instr) bool { return i.FPType() == 1 }

// fpRead returns the scalar FP operand n widened to float64.
func (s *Simulator) fpRead(i arm64.Instr, n uint32) float64 {
	if double(i) {
		return s.regs.DFloat(arm64.VRegister(n))
	}
	return float64(s.regs.SFloat(arm64.VRegister(n)))
}

// fpWrite writes a scalar FP result, rounding to single when needed.
func (s *Simulator) fpWrite(i arm64.Instr, d uint32, v float64) {
	if double(i) {
		s.regs.SetDFloat(arm64.VRegister(d), v)
		return
	}
	s.regs.SetSFloat(arm64.VRegister(d), float32(v))
}

func (s *Simulator) executeFP1Source(i arm64.Instr) error {
	d, n := i.Rd(), i.Rn()
	if op := i.Bits(15, 6); op == 0 {
		// fmov copies bits, NaN payloads included.
		if double(i) {
			s.regs.SetD(arm64.VRegister(d), s.regs.D(arm64.VRegister(n)))
		} else {
			s.regs.SetS(arm64.VRegister(d), s.regs.S(arm64.VRegister(n)))
		}
		return nil
	}
	x := s.fpRead(i, n)
	switch op := i.Bits(15, 6); op {
	case 1:
		s.fpWrite(i, d, math.Abs(x))
	case 2:
		s.fpWrite(i, d, -x)
	case 3:
		if x < 0 {
			s.regs.FPSR |= FPSRInvalid
		}
		s.fpWrite(i, d, math.Sqrt(x))
	case 4:
		s.regs.SetSFloat(arm64.VRegister(d), float32(x))
	case 5:
		s.regs.SetDFloat(arm64.VRegister(d), x)
	case 8:
		s.fpWrite(i, d, math.RoundToEven(x))
	case 9:
		s.fpWrite(i, d, math.Ceil(x))
	case 10:
		s.fpWrite(i, d, math.Floor(x))
	case 11:
		s.fpWrite(i, d, math.Trunc(x))
	case 12:
		s.fpWrite(i, d, math.Round(x))
	case 14, 15:
		s.fpWrite(i, d, math.RoundToEven(x))
	default:
		return sim.Unknown(s.pc, uint32(i), "fp 1-source opcode %d", op)
	}
	return nil
}

func fmaxnm(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	}
	return math.Max(a, b)
}

func fminnm(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	}
	return math.Min(a, b)
}

// fpArith applies a two-operand FP opcode shared by the scalar and vector
// forms. Single operands are computed in float32.
func fpArith(op uint32, a, b float64, single bool) (float64, bool) {
	if single {
		x, y := float32(a), float32(b)
		switch op {
		case 0:
			return float64(x * y), true
		case 1:
			return float64(x / y), true
		case 2:
			return float64(x + y), true
		case 3:
			return float64(x - y), true
		case 8:
			return float64(-(x * y)), true
		}
	} else {
		switch op {
		case 0:
			return a * b, true
		case 1:
			return a / b, true
		case 2:
			return a + b, true
		case 3:
			return a - b, true
		case 8:
			return -(a * b), true
		}
	}
	switch op {
	case 4:
		return math.Max(a, b), true
	case 5:
		return math.Min(a, b), true
	case 6:
		return fmaxnm(a, b), true
	case 7:
		return fminnm(a, b), true
	}
	return 0, false
}

func (s *Simulator) executeFP2Source(i arm64.Instr) error {
	a := s.fpRead(i, i.Rn())
	b := s.fpRead(i, i.Rm())
	op := i.Bits(12, 4)
	r, ok := fpArith(op, a, b, !double(i))
	if !ok {
		return sim.Unknown(s.pc, uint32(i), "fp 2-source opcode %d", op)
	}
	if op == 1 && b == 0 && !math.IsNaN(a) && a != 0 {
		s.regs.FPSR |= FPSRDivideByZero
	}
	s.fpWrite(i, i.Rd(), r)
	return nil
}

func (s *Simulator) executeFP3Source(i arm64.Instr) error {
	if i.FPType() > 1 {
		return sim.Unsupported(s.pc, uint32(i), "half-precision fma")
	}
	n := s.fpRead(i, i.Rn())
	m := s.fpRead(i, i.Rm())
	a := s.fpRead(i, i.Ra())
	switch i.Bit(21)<<1 | i.Bit(15) {
	case 1:
		n = -n
	case 2:
		n, a = -n, -a
	case 3:
		a = -a
	}
	s.fpWrite(i, i.Rd(), math.FMA(n, m, a))
	return nil
}

func (s *Simulator) executeFPCompare(i arm64.Instr) {
	a := s.fpRead(i, i.Rn())
	b := 0.0
	if i.Bit(3) == 0 {
		b = s.fpRead(i, i.Rm())
	}
	s.regs.NZCV = sim.CompareFloat(a, b)
	if i.Bit(4) == 1 && (math.IsNaN(a) || math.IsNaN(b)) {
		s.regs.FPSR |= FPSRInvalid
	}
}

func (s *Simulator) executeFPImm(i arm64.Instr) {
	imm8 := i.FPImm8()
	if double(i) {
		s.regs.SetDFloat(arm64.VRegister(i.Rd()), arm64.ExpandFPImmDouble(imm8))
		return
	}
	s.regs.SetSFloat(arm64.VRegister(i.Rd()), arm64.ExpandFPImmSingle(imm8))
}

// roundMode applies the rmode field of an FP to integer conversion.
func roundMode(rmode uint32, x float64) float64 {
	switch rmode {
	case 0:
		return math.RoundToEven(x)
	case 1:
		return math.Ceil(x)
	case 2:
		return math.Floor(x)
	default:
		return math.Trunc(x)
	}
}

// toInt converts x to a signed or unsigned integer of size bits with
// saturation, flagging invalid conversions in FPSR.
func (s *Simulator) toInt(x float64, signed bool, size uint) uint64 {
	var r uint64
	var lo, hi float64
	switch {
	case signed && size == 64:
		r = uint64(sim.FloatToInt64(x))
		lo, hi = math.MinInt64, math.MaxInt64
	case signed:
		r = uint64(uint32(sim.FloatToInt32(x)))
		lo, hi = math.MinInt32, math.MaxInt32
	case size == 64:
		r = sim.FloatToUint64(x)
		hi = math.MaxUint64
	default:
		r = uint64(sim.FloatToUint32(x))
		hi = math.MaxUint32
	}
	if math.IsNaN(x) || x < lo || x > hi {
		s.regs.FPSR |= FPSRInvalid
	}
	return r
}

func (s *Simulator) executeFPIntConvert(i arm64.Instr) error {
	rmode, op := i.Bits(19, 2), i.Bits(16, 3)
	size := datasize(i)
	d, n := i.Rd(), i.Rn()
	switch {
	case op <= 1:
		x := roundMode(rmode, s.fpRead(i, n))
		s.writeResult(i, d, s.toInt(x, op == 0, size), false)
	case (op == 4 || op == 5) && rmode == 0:
		x := math.Round(s.fpRead(i, n))
		s.writeResult(i, d, s.toInt(x, op == 4, size), false)
	case (op == 2 || op == 3) && rmode == 0:
		v := s.operand(i, n, false)
		var f float64
		switch {
		case op == 3:
			f = float64(v)
		case size == 32:
			f = float64(int32(uint32(v)))
		default:
			f = float64(int64(v))
		}
		s.fpWrite(i, d, f)
	case op == 6 && rmode == 0:
		if double(i) {
			s.regs.SetX(d, s.regs.D(arm64.VRegister(n)), false)
		} else {
			s.regs.SetX(d, uint64(s.regs.S(arm64.VRegister(n))), false)
		}
	case op == 7 && rmode == 0:
		v := s.regs.X(n, false)
		if double(i) {
			s.regs.SetD(arm64.VRegister(d), v)
		} else {
			s.regs.SetS(arm64.VRegister(d), uint32(v))
		}
	default:
		return sim.Unsupported(s.pc, uint32(i), "fp/int conversion form")
	}
	return nil
}
