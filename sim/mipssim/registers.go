package mipssim

import (
	"math"

	"github.com/sarchlab/jitsim/mips"
)

// RegFile is the MIPS32 register state: 32 general-purpose registers, HI
// and LO, the PC, and the FPU bank with FCSR.
//
// The FPU bank is 32 single registers; D(n) is the pair F(2n), F(2n+1)
// with the low word in the even register.
type RegFile struct {
	// R holds the general-purpose registers. R[0] always reads zero.
	R [32]uint32

	HI, LO uint32

	// PC is the address of the executing instruction.
	PC uint32

	// FCSR holds the FPU condition bit at mips.FCSRCondition.
	FCSR uint32

	fpu [32]uint32
}

// Reg reads a general-purpose register.
func (r *RegFile) Reg(reg mips.Register) uint32 {
	if reg == mips.ZR {
		return 0
	}
	return r.R[reg]
}

// SetReg writes a general-purpose register. Writes to zr are dropped.
func (r *RegFile) SetReg(reg mips.Register, v uint32) {
	if reg != mips.ZR {
		r.R[reg] = v
	}
}

// F returns single register f as raw bits.
func (r *RegFile) F(f mips.FRegister) uint32 { return r.fpu[f] }

// SetF writes single register f.
func (r *RegFile) SetF(f mips.FRegister, v uint32) { r.fpu[f] = v }

// FFloat returns single register f as a float.
func (r *RegFile) FFloat(f mips.FRegister) float32 { return math.Float32frombits(r.fpu[f]) }

// SetFFloat writes a float to single register f.
func (r *RegFile) SetFFloat(f mips.FRegister, v float32) { r.fpu[f] = math.Float32bits(v) }

// D returns double register d as raw bits.
func (r *RegFile) D(d mips.DRegister) uint64 {
	return uint64(r.fpu[d.High()])<<32 | uint64(r.fpu[d.Low()])
}

// SetD writes double register d.
func (r *RegFile) SetD(d mips.DRegister, v uint64) {
	r.fpu[d.Low()] = uint32(v)
	r.fpu[d.High()] = uint32(v >> 32)
}

// DFloat returns double register d as a float.
func (r *RegFile) DFloat(d mips.DRegister) float64 { return math.Float64frombits(r.D(d)) }

// SetDFloat writes a float to double register d.
func (r *RegFile) SetDFloat(d mips.DRegister, v float64) { r.SetD(d, math.Float64bits(v)) }

// Condition returns the FPU condition bit.
func (r *RegFile) Condition() bool { return r.FCSR&mips.FCSRCondition != 0 }

// SetCondition sets or clears the FPU condition bit.
func (r *RegFile) SetCondition(c bool) {
	if c {
		r.FCSR |= mips.FCSRCondition
		return
	}
	r.FCSR &^= mips.FCSRCondition
}
