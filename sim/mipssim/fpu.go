package mipssim

import (
	"math"

	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeFPUMove(i mips.Instr) {
	if i.Fmt() == mips.FmtMF {
		s.regs.SetReg(i.Rt(), s.regs.F(i.Fs()))
		return
	}
	s.regs.SetF(i.Fs(), s.regs.Reg(i.Rt()))
}

// double returns the D register an even F register names.
func (s *Simulator) double(i mips.Instr, f mips.FRegister) (mips.DRegister, error) {
	if f%2 != 0 {
		return 0, sim.Unsupported(s.pc(), uint32(i), "odd double register")
	}
	return mips.DRegister(f / 2), nil
}

// operands reads fs and ft in the instruction's format, widened to
// float64.
func (s *Simulator) operands(i mips.Instr) (fs, ft float64, err error) {
	if i.Fmt() == mips.FmtS {
		return float64(s.regs.FFloat(i.Fs())), float64(s.regs.FFloat(i.Ft())), nil
	}
	ds, err := s.double(i, i.Fs())
	if err != nil {
		return 0, 0, err
	}
	dt, err := s.double(i, i.Ft())
	if err != nil {
		return 0, 0, err
	}
	return s.regs.DFloat(ds), s.regs.DFloat(dt), nil
}

// compare evaluates a c.cond condition. Bit 0 of the condition accepts
// unordered operands, bit 1 equal ones and bit 2 less-than.
func compare(cond mips.FCompare, a, b float64) bool {
	unordered := math.IsNaN(a) || math.IsNaN(b)
	return cond&1 != 0 && unordered ||
		cond&2 != 0 && !unordered && a == b ||
		cond&4 != 0 && !unordered && a < b
}

func (s *Simulator) executeFPUCompare(i mips.Instr) error {
	if i.Fmt() == mips.FmtW {
		return sim.Unknown(s.pc(), uint32(i), "compare of a word")
	}
	a, b, err := s.operands(i)
	if err != nil {
		return err
	}
	s.regs.SetCondition(compare(i.FCompare(), a, b))
	return nil
}

// truncWord converts toward zero. NaN and out-of-range values produce
// the invalid-operation default 0x7fffffff.
func truncWord(f float64) uint32 {
	if math.IsNaN(f) || f >= math.MaxInt32+1.0 || f < math.MinInt32 {
		return math.MaxInt32
	}
	return uint32(int32(f))
}

func (s *Simulator) executeFPUArith(i mips.Instr) error {
	fn := i.Cop1Function()
	switch i.Fmt() {
	case mips.FmtW:
		v := float64(int32(s.regs.F(i.Fs())))
		return s.writeConverted(i, fn, v)
	case mips.FmtS:
		switch fn {
		case mips.CVTD, mips.CVTW, mips.TRUNCW:
			return s.writeConverted(i, fn, float64(s.regs.FFloat(i.Fs())))
		}
		a, b, _ := s.operands(i)
		r, ok := arith(fn, a, b)
		if !ok {
			return sim.Unknown(s.pc(), uint32(i), "cop1 function %d", uint32(fn))
		}
		s.regs.SetFFloat(i.Fd(), float32(r))
		return nil
	default:
		ds, err := s.double(i, i.Fs())
		if err != nil {
			return err
		}
		switch fn {
		case mips.CVTS, mips.CVTW, mips.TRUNCW:
			return s.writeConverted(i, fn, s.regs.DFloat(ds))
		}
		a, b, err := s.operands(i)
		if err != nil {
			return err
		}
		r, ok := arith(fn, a, b)
		if !ok {
			return sim.Unknown(s.pc(), uint32(i), "cop1 function %d", uint32(fn))
		}
		dd, err := s.double(i, i.Fd())
		if err != nil {
			return err
		}
		s.regs.SetDFloat(dd, r)
		return nil
	}
}

func arith(fn mips.Cop1Function, a, b float64) (float64, bool) {
	switch fn {
	case mips.FADD:
		return a + b, true
	case mips.FSUB:
		return a - b, true
	case mips.FMUL:
		return a * b, true
	case mips.FDIV:
		return a / b, true
	case mips.FSQRT:
		return math.Sqrt(a), true
	case mips.FABS:
		return math.Abs(a), true
	case mips.FMOV:
		return a, true
	case mips.FNEG:
		return -a, true
	default:
		return 0, false
	}
}

// writeConverted stores v, already widened from the source format, into
// fd in the format fn converts to.
func (s *Simulator) writeConverted(i mips.Instr, fn mips.Cop1Function, v float64) error {
	switch fn {
	case mips.CVTD:
		dd, err := s.double(i, i.Fd())
		if err != nil {
			return err
		}
		s.regs.SetDFloat(dd, v)
	case mips.CVTS:
		s.regs.SetFFloat(i.Fd(), float32(v))
	case mips.CVTW:
		s.regs.SetF(i.Fd(), truncWord(math.RoundToEven(v)))
	case mips.TRUNCW:
		s.regs.SetF(i.Fd(), truncWord(v))
	default:
		return sim.Unknown(s.pc(), uint32(i), "cop1 conversion %d", uint32(fn))
	}
	return nil
}
