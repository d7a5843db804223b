package armsim

import (
	"math"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/sim"
)

// RegFile is the ARM32 register state: sixteen core registers, the APSR
// flags and the VFP/NEON bank with its FPSCR flags.
//
// The VFP bank is stored as 64 32-bit words so the S, D and Q views
// overlap exactly as on hardware: S(2n) and S(2n+1) are the low and high
// halves of D(n), and D(2n), D(2n+1) form Q(n).
type RegFile struct {
	// R holds R0-R15. R[15] is the address of the executing instruction;
	// reads of PC as an operand see it plus 8.
	R [16]uint32

	// APSR holds the integer condition flags.
	APSR sim.Flags

	// FPSCR holds the VFP comparison flags.
	FPSCR sim.Flags

	vfp [64]uint32
}

// ReadReg reads a core register as an operand.
func (r *RegFile) ReadReg(reg arm.Register) uint32 {
	if reg == arm.PC {
		return r.R[15] + arm.PCReadOffset
	}
	return r.R[reg]
}

// WriteReg writes a core register.
func (r *RegFile) WriteReg(reg arm.Register, value uint32) {
	r.R[reg] = value
}

// S returns single register s as raw bits.
func (r *RegFile) S(s arm.SRegister) uint32 { return r.vfp[s] }

// SetS writes single register s.
func (r *RegFile) SetS(s arm.SRegister, v uint32) { r.vfp[s] = v }

// SFloat returns single register s as a float.
func (r *RegFile) SFloat(s arm.SRegister) float32 { return math.Float32frombits(r.vfp[s]) }

// SetSFloat writes a float to single register s.
func (r *RegFile) SetSFloat(s arm.SRegister, v float32) { r.vfp[s] = math.Float32bits(v) }

// D returns double register d as raw bits.
func (r *RegFile) D(d arm.DRegister) uint64 {
	return uint64(r.vfp[2*d+1])<<32 | uint64(r.vfp[2*d])
}

// SetD writes double register d.
func (r *RegFile) SetD(d arm.DRegister, v uint64) {
	r.vfp[2*d] = uint32(v)
	r.vfp[2*d+1] = uint32(v >> 32)
}

// DFloat returns double register d as a float.
func (r *RegFile) DFloat(d arm.DRegister) float64 { return math.Float64frombits(r.D(d)) }

// SetDFloat writes a float to double register d.
func (r *RegFile) SetDFloat(d arm.DRegister, v float64) { r.SetD(d, math.Float64bits(v)) }

// Q returns the four 32-bit lanes of quad register q, lowest first.
func (r *RegFile) Q(q arm.QRegister) [4]uint32 {
	var out [4]uint32
	copy(out[:], r.vfp[4*q:4*q+4])
	return out
}

// SetQ writes the lanes of quad register q.
func (r *RegFile) SetQ(q arm.QRegister, lanes [4]uint32) {
	copy(r.vfp[4*q:4*q+4], lanes[:])
}
