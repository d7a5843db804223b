package arm64sim

import (
	"math"
	"math/bits"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

// vec is a 128-bit vector value as two 64-bit halves, low first.
type vec [2]uint64

func (v vec) lane(esize uint, k int) uint64 {
	per := 64 / esize
	return v[k/int(per)] >> (esize * uint(k%int(per))) & mask(esize)
}

func (v *vec) setLane(esize uint, k int, x uint64) {
	per := 64 / esize
	shift := esize * uint(k%int(per))
	half := &v[k/int(per)]
	*half = *half&^(mask(esize)<<shift) | (x&mask(esize))<<shift
}

func laneFloat(x uint64, esize uint) float64 {
	if esize == 64 {
		return math.Float64frombits(x)
	}
	return float64(math.Float32frombits(uint32(x)))
}

func floatLane(f float64, esize uint) uint64 {
	if esize == 64 {
		return math.Float64bits(f)
	}
	return uint64(math.Float32bits(float32(f)))
}

func (s *Simulator) executeSIMD(i arm64.Instr) error {
	if !s.features.NEONSupported() {
		return sim.Unsupported(s.pc, uint32(i), "SIMD disabled")
	}
	switch {
	case i.Bit(21) == 1 && i.Bit(10) == 1:
		return s.executeThreeSame(i)
	case i.Bit(21) == 1 && i.Bits(10, 2) == 2 && i.Bits(17, 4) == 0:
		return s.executeTwoRegMisc(i)
	case i.Bit(21) == 0 && i.Bit(10) == 1 && i.Bit(15) == 0:
		return s.executeCopy(i)
	default:
		return sim.Unsupported(s.pc, uint32(i), "vector form")
	}
}

// finishVector writes r to vd, clearing the upper half for 64-bit forms.
func (s *Simulator) finishVector(i arm64.Instr, r vec) {
	if i.Bit(30) == 0 {
		r[1] = 0
	}
	s.regs.SetQ(arm64.VRegister(i.Rd()), r)
}

func lanes(i arm64.Instr, esize uint) int {
	width := uint(64)
	if i.Bit(30) == 1 {
		width = 128
	}
	return int(width / esize)
}

func (s *Simulator) executeThreeSame(i arm64.Instr) error {
	n := vec(s.regs.Q(arm64.VRegister(i.Rn())))
	m := vec(s.regs.Q(arm64.VRegister(i.Rm())))
	u := i.Bit(29)
	op := i.Bits(11, 5)
	size := i.Bits(22, 2)

	var r vec
	switch {
	case op == 0x03:
		// Bitwise ops pick the operation by size.
		switch u<<2 | size {
		case 0:
			r = vec{n[0] & m[0], n[1] & m[1]}
		case 1:
			r = vec{n[0] &^ m[0], n[1] &^ m[1]}
		case 2:
			r = vec{n[0] | m[0], n[1] | m[1]}
		case 3:
			r = vec{n[0] | ^m[0], n[1] | ^m[1]}
		case 4:
			r = vec{n[0] ^ m[0], n[1] ^ m[1]}
		default:
			return sim.Unsupported(s.pc, uint32(i), "bsl/bit/bif")
		}
	case op == 0x10 || op == 0x13:
		esize := uint(8) << size
		if op == 0x13 && (u == 1 || size == 3) {
			return sim.Unsupported(s.pc, uint32(i), "pmul or 64-bit mul")
		}
		for k := 0; k < lanes(i, esize); k++ {
			a, b := n.lane(esize, k), m.lane(esize, k)
			switch {
			case op == 0x13:
				r.setLane(esize, k, a*b)
			case u == 0:
				r.setLane(esize, k, a+b)
			default:
				r.setLane(esize, k, a-b)
			}
		}
	case op >= 0x18:
		esize := uint(32) << (size & 1)
		fop, ok := vectorFPOp(u, size>>1, op)
		if !ok {
			return sim.Unsupported(s.pc, uint32(i), "vector FP form")
		}
		for k := 0; k < lanes(i, esize); k++ {
			a, b := laneFloat(n.lane(esize, k), esize), laneFloat(m.lane(esize, k), esize)
			r.setLane(esize, k, floatLane(fop(a, b, esize == 32), esize))
		}
	default:
		return sim.Unsupported(s.pc, uint32(i), "vector integer form")
	}
	s.finishVector(i, r)
	return nil
}

type laneOp func(a, b float64, single bool) float64

func arith(op uint32) laneOp {
	return func(a, b float64, single bool) float64 {
		r, _ := fpArith(op, a, b, single)
		return r
	}
}

// vectorFPOp maps U, size<1> and opcode of a three-same FP form to the
// lane operation.
func vectorFPOp(u, hi, op uint32) (laneOp, bool) {
	switch u<<6 | hi<<5 | op {
	case 0x1a:
		return arith(2), true
	case 0x3a:
		return arith(3), true
	case 0x5b:
		return arith(0), true
	case 0x5f:
		return arith(1), true
	case 0x1e:
		return arith(4), true
	case 0x3e:
		return arith(5), true
	case 0x18:
		return arith(6), true
	case 0x38:
		return arith(7), true
	case 0x1f:
		return func(a, b float64, single bool) float64 {
			if single {
				return float64(sim.RecipStep(float32(a), float32(b)))
			}
			return 2.0 - a*b
		}, true
	case 0x3f:
		return func(a, b float64, single bool) float64 {
			if single {
				return float64(sim.RecipSqrtStep(float32(a), float32(b)))
			}
			return (3.0 - a*b) / 2.0
		}, true
	}
	return nil, false
}

func (s *Simulator) executeTwoRegMisc(i arm64.Instr) error {
	n := vec(s.regs.Q(arm64.VRegister(i.Rn())))
	u := i.Bit(29)
	op := i.Bits(12, 5)
	size := i.Bits(22, 2)

	if op == 5 && u == 1 && size == 0 {
		s.finishVector(i, vec{^n[0], ^n[1]})
		return nil
	}
	esize := uint(32) << (size & 1)
	var f func(float64, uint) float64
	switch u<<6 | (size>>1)<<5 | op {
	case 0x2f:
		f = func(x float64, _ uint) float64 { return math.Abs(x) }
	case 0x6f:
		f = func(x float64, _ uint) float64 { return -x }
	case 0x7f:
		f = func(x float64, _ uint) float64 { return math.Sqrt(x) }
	case 0x3d:
		f = func(x float64, esize uint) float64 {
			if esize == 32 {
				return float64(sim.RecipEstimate(float32(x)))
			}
			return sim.RecipEstimate64(x)
		}
	case 0x7d:
		f = func(x float64, esize uint) float64 {
			if esize == 32 {
				return float64(sim.RecipSqrtEstimate(float32(x)))
			}
			return sim.RecipSqrtEstimate64(x)
		}
	default:
		return sim.Unsupported(s.pc, uint32(i), "vector two-register form")
	}
	var r vec
	for k := 0; k < lanes(i, esize); k++ {
		r.setLane(esize, k, floatLane(f(laneFloat(n.lane(esize, k), esize), esize), esize))
	}
	s.finishVector(i, r)
	return nil
}

// copyLane decodes imm5 into the element size in bits and the lane index.
func copyLane(imm5 uint32) (uint, int, bool) {
	if imm5&0xf == 0 {
		return 0, 0, false
	}
	sz := uint(bits.TrailingZeros32(imm5))
	return 8 << sz, int(imm5 >> (sz + 1)), true
}

func (s *Simulator) executeCopy(i arm64.Instr) error {
	esize, idx, ok := copyLane(i.Bits(16, 5))
	if !ok {
		return sim.Unknown(s.pc, uint32(i), "copy imm5")
	}
	d := arm64.VRegister(i.Rd())
	n := vec(s.regs.Q(arm64.VRegister(i.Rn())))

	if i.Bit(29) == 1 {
		// ins element
		src := int(i.Bits(11, 4) >> trailingLog2(int(esize/8)))
		r := vec(s.regs.Q(d))
		r.setLane(esize, idx, n.lane(esize, src))
		s.regs.SetQ(d, r)
		return nil
	}

	switch i.Bits(11, 4) {
	case 0:
		var r vec
		x := n.lane(esize, idx)
		for k := 0; k < lanes(i, esize); k++ {
			r.setLane(esize, k, x)
		}
		s.finishVector(i, r)
	case 1:
		var r vec
		x := s.regs.X(i.Rn(), false)
		for k := 0; k < lanes(i, esize); k++ {
			r.setLane(esize, k, x)
		}
		s.finishVector(i, r)
	case 3:
		r := vec(s.regs.Q(d))
		r.setLane(esize, idx, s.regs.X(i.Rn(), false))
		s.regs.SetQ(d, r)
	case 5, 7:
		x := n.lane(esize, idx)
		if i.Bits(11, 4) == 5 {
			x = signExtend(x, int(esize/8))
			if i.Bit(30) == 0 {
				x = uint64(uint32(x))
			}
		}
		s.regs.SetX(i.Rd(), x, false)
	default:
		return sim.Unsupported(s.pc, uint32(i), "copy form")
	}
	return nil
}
