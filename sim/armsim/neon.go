package armsim

import (
	"encoding/binary"
	"math"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/sim"
)

// NEON encodings the assembler emits.
const (
	vdupMask     = 0xffb00f90
	vdupBits     = 0xf3b00c00
	estimateMask = 0xffbf0f10
	estimateBits = 0xf3bb0500
)

// lanes is a Q register viewed as little-endian bytes.
type lanes [16]byte

func (s *Simulator) qBytes(q arm.QRegister) lanes {
	var out lanes
	for k, w := range s.regs.Q(q) {
		binary.LittleEndian.PutUint32(out[4*k:], w)
	}
	return out
}

func (s *Simulator) setQBytes(q arm.QRegister, b lanes) {
	var w [4]uint32
	for k := range w {
		w[k] = binary.LittleEndian.Uint32(b[4*k:])
	}
	s.regs.SetQ(q, w)
}

func (s *Simulator) executeSIMD(i arm.Instr) error {
	if !s.features.NEONSupported() {
		return sim.Unsupported(s.pc(), uint32(i), "neon disabled")
	}
	w := uint32(i)
	switch {
	case w&vdupMask == vdupBits:
		return s.executeVdup(i)
	case w&estimateMask == estimateBits:
		s.executeEstimate(i)
		return nil
	case i.Bit(23) == 0:
		return s.executeThreeRegSame(i)
	default:
		return sim.Unsupported(s.pc(), uint32(i), "neon instruction")
	}
}

func (s *Simulator) executeVdup(i arm.Instr) error {
	code := i.Bits(16, 4)
	src := s.regs.D(i.Dm())
	var size, idx uint32
	switch {
	case code&1 == 1:
		size, idx = 1, code>>1
	case code&2 == 2:
		size, idx = 2, code>>2
	case code&4 == 4:
		size, idx = 4, code>>3
	default:
		return sim.Unsupported(s.pc(), uint32(i), "vdup lane size")
	}

	var srcBytes [8]byte
	binary.LittleEndian.PutUint64(srcBytes[:], src)
	lane := srcBytes[size*idx : size*idx+size]
	var out lanes
	for k := uint32(0); k < 16; k += size {
		copy(out[k:k+size], lane)
	}
	s.setQBytes(i.Qd(), out)
	return nil
}

func (s *Simulator) executeEstimate(i arm.Instr) {
	src := s.regs.Q(i.Qm())
	var out [4]uint32
	for k, w := range src {
		f := math.Float32frombits(w)
		if i.Bit(7) == 1 {
			out[k] = math.Float32bits(sim.RecipSqrtEstimate(f))
		} else {
			out[k] = math.Float32bits(sim.RecipEstimate(f))
		}
	}
	s.regs.SetQ(i.Qd(), out)
}

func (s *Simulator) executeThreeRegSame(i arm.Instr) error {
	if i.Bit(6) == 0 {
		return sim.Unsupported(s.pc(), uint32(i), "neon d-register form")
	}
	a := i.Bits(8, 4)
	b := i.Bit(4)
	u := i.Bit(24)
	sz := i.Bits(20, 2)

	switch {
	case a == 0x8 && b == 0:
		s.integerLanes(i, sz, func(x, y uint64) uint64 {
			if u == 1 {
				return x - y
			}
			return x + y
		})
	case a == 0x9 && b == 1 && u == 0:
		if sz == 3 {
			return sim.Unsupported(s.pc(), uint32(i), "vmul of 64-bit lanes")
		}
		s.integerLanes(i, sz, func(x, y uint64) uint64 { return x * y })
	case a == 0x1 && b == 1 && (sz == 0 || (u == 0 && sz == 2)):
		s.bitwise(i, u, sz)
	case a == 0xd && b == 0 && u == 0:
		s.floatLanes(i, func(x, y float32) float32 {
			if i.Bit(21) == 1 {
				return x - y
			}
			return x + y
		})
	case a == 0xd && b == 1 && u == 1 && i.Bit(21) == 0:
		s.floatLanes(i, func(x, y float32) float32 { return x * y })
	case a == 0xf && b == 0 && u == 0:
		s.floatLanes(i, func(x, y float32) float32 {
			if i.Bit(21) == 1 {
				return float32(math.Min(float64(x), float64(y)))
			}
			return float32(math.Max(float64(x), float64(y)))
		})
	case a == 0xf && b == 1 && u == 0:
		s.floatLanes(i, func(x, y float32) float32 {
			if i.Bit(21) == 1 {
				return sim.RecipSqrtStep(x, y)
			}
			return sim.RecipStep(x, y)
		})
	default:
		return sim.Unsupported(s.pc(), uint32(i), "neon instruction")
	}
	return nil
}

func (s *Simulator) integerLanes(i arm.Instr, sz uint32, f func(x, y uint64) uint64) {
	n := s.qBytes(i.Qn())
	m := s.qBytes(i.Qm())
	var out lanes
	width := 1 << sz
	for k := 0; k < 16; k += width {
		x, y := readLane(n[k:], width), readLane(m[k:], width)
		writeLane(out[k:], width, f(x, y))
	}
	s.setQBytes(i.Qd(), out)
}

func readLane(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeLane(b []byte, width int, v uint64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func (s *Simulator) bitwise(i arm.Instr, u, sz uint32) {
	n := s.regs.Q(i.Qn())
	m := s.regs.Q(i.Qm())
	var out [4]uint32
	for k := range out {
		switch {
		case u == 0 && sz == 0:
			out[k] = n[k] & m[k]
		case u == 0:
			out[k] = n[k] | m[k]
		default:
			out[k] = n[k] ^ m[k]
		}
	}
	s.regs.SetQ(i.Qd(), out)
}

func (s *Simulator) floatLanes(i arm.Instr, f func(x, y float32) float32) {
	n := s.regs.Q(i.Qn())
	m := s.regs.Q(i.Qm())
	var out [4]uint32
	for k := range out {
		out[k] = math.Float32bits(f(math.Float32frombits(n[k]), math.Float32frombits(m[k])))
	}
	s.regs.SetQ(i.Qd(), out)
}
