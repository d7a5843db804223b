package arm64sim

import (
	"math"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

// FPSR cumulative exception bits.
const (
	FPSRInvalid      uint32 = 1 << 0
	FPSRDivideByZero uint32 = 1 << 1
	FPSROverflow     uint32 = 1 << 2
	FPSRUnderflow    uint32 = 1 << 3
	FPSRInexact      uint32 = 1 << 4
)

// RegFile is the A64 register state.
//
// Each V register is 128 bits held as two 64-bit halves. The scalar views
// alias its low bits: S(n) is the low word of D(n), D(n) the low double
// word of Q(n). Scalar writes zero the rest of the register, as on
// hardware.
type RegFile struct {
	// R holds X0-X30 and, at index 31, the native stack pointer CSP.
	R [32]uint64

	// NZCV holds the condition flags. FP compares write them too.
	NZCV sim.Flags

	// FPSR accumulates FP exception bits.
	FPSR uint32

	v [32][2]uint64
}

// X reads r as a 64-bit operand. Index 31 reads as zero unless sp is set.
func (r *RegFile) X(n uint32, sp bool) uint64 {
	if n == 31 && !sp {
		return 0
	}
	return r.R[n]
}

// W reads the low word of r.
func (r *RegFile) W(n uint32, sp bool) uint32 { return uint32(r.X(n, sp)) }

// SetX writes r. Index 31 is discarded unless sp is set.
func (r *RegFile) SetX(n uint32, v uint64, sp bool) {
	if n == 31 && !sp {
		return
	}
	r.R[n] = v
}

// SetW writes the word v zero-extended to 64 bits.
func (r *RegFile) SetW(n uint32, v uint32, sp bool) { r.SetX(n, uint64(v), sp) }

// Reg returns register reg by assembler name; ZR reads as zero.
func (r *RegFile) Reg(reg arm64.Register) uint64 {
	if reg == arm64.ZR {
		return 0
	}
	return r.R[reg.Encoding()]
}

// SetReg writes register reg; ZR discards.
func (r *RegFile) SetReg(reg arm64.Register, v uint64) {
	if reg == arm64.ZR {
		return
	}
	r.R[reg.Encoding()] = v
}

// S returns the single view of v as raw bits.
func (r *RegFile) S(n arm64.VRegister) uint32 { return uint32(r.v[n][0]) }

// SetS writes the single view, zeroing the upper bits.
func (r *RegFile) SetS(n arm64.VRegister, bits uint32) { r.v[n] = [2]uint64{uint64(bits), 0} }

// SFloat returns the single view as a float.
func (r *RegFile) SFloat(n arm64.VRegister) float32 { return math.Float32frombits(r.S(n)) }

// SetSFloat writes a float to the single view.
func (r *RegFile) SetSFloat(n arm64.VRegister, f float32) { r.SetS(n, math.Float32bits(f)) }

// D returns the double view of v as raw bits.
func (r *RegFile) D(n arm64.VRegister) uint64 { return r.v[n][0] }

// SetD writes the double view, zeroing the upper half.
func (r *RegFile) SetD(n arm64.VRegister, bits uint64) { r.v[n] = [2]uint64{bits, 0} }

// DFloat returns the double view as a float.
func (r *RegFile) DFloat(n arm64.VRegister) float64 { return math.Float64frombits(r.v[n][0]) }

// SetDFloat writes a float to the double view.
func (r *RegFile) SetDFloat(n arm64.VRegister, f float64) { r.SetD(n, math.Float64bits(f)) }

// Q returns the full register, low half first.
func (r *RegFile) Q(n arm64.VRegister) [2]uint64 { return r.v[n] }

// SetQ writes the full register.
func (r *RegFile) SetQ(n arm64.VRegister, q [2]uint64) { r.v[n] = q }

// Lane32 returns word lane k of v.
func (r *RegFile) Lane32(n arm64.VRegister, k int) uint32 {
	return uint32(r.v[n][k/2] >> (32 * uint(k%2)))
}

// SetLane32 writes word lane k of v, leaving the other lanes.
func (r *RegFile) SetLane32(n arm64.VRegister, k int, bits uint32) {
	shift := 32 * uint(k%2)
	half := &r.v[n][k/2]
	*half = *half&^(0xffffffff<<shift) | uint64(bits)<<shift
}

// Lane64 returns double-word lane k of v.
func (r *RegFile) Lane64(n arm64.VRegister, k int) uint64 { return r.v[n][k] }

// SetLane64 writes double-word lane k of v.
func (r *RegFile) SetLane64(n arm64.VRegister, k int, bits uint64) { r.v[n][k] = bits }
