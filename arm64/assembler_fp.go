package arm64

import (
	"math"

	"github.com/sarchlab/jitsim/asm"
)

// Arrangement is the lane layout of a 128-bit vector operation.
type Arrangement uint8

// Vector arrangements.
const (
	Vec4S Arrangement = iota // four singles or words
	Vec2D                    // two doubles or double words
)

// laneLog2 returns log2 of the lane size in bytes.
func (r Arrangement) laneLog2() uint32 {
	if r == Vec2D {
		return 3
	}
	return 2
}

// Lanes returns the number of lanes.
func (r Arrangement) Lanes() int {
	if r == Vec2D {
		return 2
	}
	return 4
}

func fpType(double bool) uint32 {
	if double {
		return 1 << 22
	}
	return 0
}

func vd(v VRegister) uint32 { return uint32(v) }
func vn(v VRegister) uint32 { return uint32(v) << RnField.Shift }
func vm(v VRegister) uint32 { return uint32(v) << RmField.Shift }

// Scalar FP.

func (a *Assembler) emitFP1(double bool, opcode uint32, d, n VRegister) {
	checkVReg(d)
	checkVReg(n)
	a.Emit(FPDataProc1Base | fpType(double) | opcode<<15 | vn(n) | vd(d))
}

func (a *Assembler) emitFP2(double bool, opcode uint32, d, n, m VRegister) {
	checkVReg(d)
	checkVReg(n)
	checkVReg(m)
	a.Emit(FPDataProc2Base | fpType(double) | vm(m) | opcode<<12 | vn(n) | vd(d))
}

// Fmovdd copies the double in vn to vd.
func (a *Assembler) Fmovdd(d, n VRegister) { a.emitFP1(true, 0, d, n) }

// Fmovss copies the single in vn to vd.
func (a *Assembler) Fmovss(d, n VRegister) { a.emitFP1(false, 0, d, n) }

// Fabsd computes |vn|.
func (a *Assembler) Fabsd(d, n VRegister) { a.emitFP1(true, 1, d, n) }

// Fnegd computes -vn.
func (a *Assembler) Fnegd(d, n VRegister) { a.emitFP1(true, 2, d, n) }

// Fsqrtd computes the square root of vn.
func (a *Assembler) Fsqrtd(d, n VRegister) { a.emitFP1(true, 3, d, n) }

// Fabss, Fnegs and Fsqrts are the single-precision forms.
func (a *Assembler) Fabss(d, n VRegister) { a.emitFP1(false, 1, d, n) }

// Fnegs negates a single.
func (a *Assembler) Fnegs(d, n VRegister) { a.emitFP1(false, 2, d, n) }

// Fsqrts computes a single square root.
func (a *Assembler) Fsqrts(d, n VRegister) { a.emitFP1(false, 3, d, n) }

// Fcvtsd converts the double in vn to a single.
func (a *Assembler) Fcvtsd(d, n VRegister) { a.emitFP1(true, 4, d, n) }

// Fcvtds converts the single in vn to a double.
func (a *Assembler) Fcvtds(d, n VRegister) { a.emitFP1(false, 5, d, n) }

// Frintpd rounds toward plus infinity.
func (a *Assembler) Frintpd(d, n VRegister) { a.emitFP1(true, 9, d, n) }

// Frintmd rounds toward minus infinity.
func (a *Assembler) Frintmd(d, n VRegister) { a.emitFP1(true, 10, d, n) }

// Frintzd rounds toward zero.
func (a *Assembler) Frintzd(d, n VRegister) { a.emitFP1(true, 11, d, n) }

// Fmuld computes vn*vm.
func (a *Assembler) Fmuld(d, n, m VRegister) { a.emitFP2(true, 0, d, n, m) }

// Fdivd computes vn/vm.
func (a *Assembler) Fdivd(d, n, m VRegister) { a.emitFP2(true, 1, d, n, m) }

// Faddd computes vn+vm.
func (a *Assembler) Faddd(d, n, m VRegister) { a.emitFP2(true, 2, d, n, m) }

// Fsubd computes vn-vm.
func (a *Assembler) Fsubd(d, n, m VRegister) { a.emitFP2(true, 3, d, n, m) }

// Fmaxd returns the larger of vn and vm, NaN if either is NaN.
func (a *Assembler) Fmaxd(d, n, m VRegister) { a.emitFP2(true, 4, d, n, m) }

// Fmind returns the smaller of vn and vm, NaN if either is NaN.
func (a *Assembler) Fmind(d, n, m VRegister) { a.emitFP2(true, 5, d, n, m) }

// Fmuls, Fdivs, Fadds and Fsubs are the single-precision forms.
func (a *Assembler) Fmuls(d, n, m VRegister) { a.emitFP2(false, 0, d, n, m) }

// Fdivs divides singles.
func (a *Assembler) Fdivs(d, n, m VRegister) { a.emitFP2(false, 1, d, n, m) }

// Fadds adds singles.
func (a *Assembler) Fadds(d, n, m VRegister) { a.emitFP2(false, 2, d, n, m) }

// Fsubs subtracts singles.
func (a *Assembler) Fsubs(d, n, m VRegister) { a.emitFP2(false, 3, d, n, m) }

// Fmaddd computes va + vn*vm with a single rounding.
func (a *Assembler) Fmaddd(d, n, m, acc VRegister) {
	checkVReg(acc)
	checkVReg(d)
	checkVReg(n)
	checkVReg(m)
	a.Emit(0x1f000000 | fpType(true) | vm(m) | uint32(acc)<<RaField.Shift | vn(n) | vd(d))
}

// Fmsubd computes va - vn*vm with a single rounding.
func (a *Assembler) Fmsubd(d, n, m, acc VRegister) {
	checkVReg(acc)
	checkVReg(d)
	checkVReg(n)
	checkVReg(m)
	a.Emit(0x1f000000 | fpType(true) | vm(m) | 1<<15 | uint32(acc)<<RaField.Shift | vn(n) | vd(d))
}

// Fcmpd compares two doubles, setting NZCV. Unordered sets C and V.
func (a *Assembler) Fcmpd(n, m VRegister) {
	checkVReg(n)
	checkVReg(m)
	a.Emit(FPCompareBase | fpType(true) | vm(m) | vn(n))
}

// Fcmpdz compares a double with zero.
func (a *Assembler) Fcmpdz(n VRegister) {
	checkVReg(n)
	a.Emit(FPCompareBase | fpType(true) | vn(n) | 1<<3)
}

// Fcmps compares two singles.
func (a *Assembler) Fcmps(n, m VRegister) {
	checkVReg(n)
	checkVReg(m)
	a.Emit(FPCompareBase | vm(m) | vn(n))
}

// FPImm8Double returns the 8-bit modified immediate of v: values of the
// form ±n/16 * 2^e with 16 <= n <= 31 and -3 <= e <= 4.
func FPImm8Double(v float64) (uint32, bool) {
	raw := math.Float64bits(v)
	if raw&(1<<48-1) != 0 {
		return 0, false
	}
	b := raw >> 61 & 1
	if (raw>>54)&0xff != b*0xff || raw>>62&1 == b {
		return 0, false
	}
	return uint32(raw>>63<<7 | b<<6 | raw>>48&0x3f), true
}

// FPImm8Single is FPImm8Double for singles.
func FPImm8Single(v float32) (uint32, bool) {
	raw := math.Float32bits(v)
	if raw&(1<<19-1) != 0 {
		return 0, false
	}
	b := raw >> 29 & 1
	if (raw>>25)&0x1f != b*0x1f || raw>>30&1 == b {
		return 0, false
	}
	return raw>>31<<7 | b<<6 | raw>>19&0x3f, true
}

// ExpandFPImmDouble expands an 8-bit modified immediate.
func ExpandFPImmDouble(imm8 uint32) float64 {
	sign := uint64(imm8 >> 7 & 1)
	b := uint64(imm8 >> 6 & 1)
	exp := (b^1)<<10 | b*0xff<<2 | uint64(imm8>>4&3)
	frac := uint64(imm8&0xf) << 48
	return math.Float64frombits(sign<<63 | exp<<52 | frac)
}

// ExpandFPImmSingle expands an 8-bit modified immediate to a single.
func ExpandFPImmSingle(imm8 uint32) float32 {
	sign := imm8 >> 7 & 1
	b := imm8 >> 6 & 1
	exp := (b^1)<<7 | b*0x1f<<2 | imm8>>4&3
	frac := (imm8 & 0xf) << 19
	return math.Float32frombits(sign<<31 | exp<<23 | frac)
}

// FmovdImm loads v into vd when it has an 8-bit encoding and reports
// whether it emitted anything.
func (a *Assembler) FmovdImm(d VRegister, v float64) bool {
	imm8, ok := FPImm8Double(v)
	if !ok {
		return false
	}
	checkVReg(d)
	a.Emit(FPImmBase | fpType(true) | imm8<<FPImm8Field.Shift | vd(d))
	return true
}

// FmovsImm is FmovdImm for singles.
func (a *Assembler) FmovsImm(d VRegister, v float32) bool {
	imm8, ok := FPImm8Single(v)
	if !ok {
		return false
	}
	checkVReg(d)
	a.Emit(FPImmBase | imm8<<FPImm8Field.Shift | vd(d))
	return true
}

// FP and integer transfers.

func (a *Assembler) emitFPInt(w64, double bool, rmode, opcode uint32, dst, src uint32) {
	a.Emit(FPIntConvertBase | sf(w64) | fpType(double) | rmode<<19 | opcode<<16 | src<<RnField.Shift | dst)
}

// Fmovrd moves the bits of the double in vn to rd.
func (a *Assembler) Fmovrd(d Register, n VRegister) {
	checkRegOrZR(d)
	checkVReg(n)
	a.emitFPInt(true, true, 0, 6, d.Encoding(), uint32(n))
}

// Fmovdr moves the bits of rn into the double vd.
func (a *Assembler) Fmovdr(d VRegister, n Register) {
	checkVReg(d)
	checkRegOrZR(n)
	a.emitFPInt(true, true, 0, 7, uint32(d), n.Encoding())
}

// Fmovrs moves the bits of the single vn to wd.
func (a *Assembler) Fmovrs(d Register, n VRegister) {
	checkRegOrZR(d)
	checkVReg(n)
	a.emitFPInt(false, false, 0, 6, d.Encoding(), uint32(n))
}

// Fmovsr moves wn into the single vd.
func (a *Assembler) Fmovsr(d VRegister, n Register) {
	checkVReg(d)
	checkRegOrZR(n)
	a.emitFPInt(false, false, 0, 7, uint32(d), n.Encoding())
}

// Scvtfd converts the signed rn to a double.
func (a *Assembler) Scvtfd(d VRegister, n Register) {
	checkVReg(d)
	checkRegOrZR(n)
	a.emitFPInt(true, true, 0, 2, uint32(d), n.Encoding())
}

// Scvtfdw converts the signed wn to a double.
func (a *Assembler) Scvtfdw(d VRegister, n Register) {
	checkVReg(d)
	checkRegOrZR(n)
	a.emitFPInt(false, true, 0, 2, uint32(d), n.Encoding())
}

// Ucvtfd converts the unsigned rn to a double.
func (a *Assembler) Ucvtfd(d VRegister, n Register) {
	checkVReg(d)
	checkRegOrZR(n)
	a.emitFPInt(true, true, 0, 3, uint32(d), n.Encoding())
}

// Fcvtzsd converts a double to a signed integer, truncating and
// saturating. NaN converts to zero.
func (a *Assembler) Fcvtzsd(d Register, n VRegister) {
	checkRegOrZR(d)
	checkVReg(n)
	a.emitFPInt(true, true, 3, 0, d.Encoding(), uint32(n))
}

// Fcvtzud converts a double to an unsigned integer.
func (a *Assembler) Fcvtzud(d Register, n VRegister) {
	checkRegOrZR(d)
	checkVReg(n)
	a.emitFPInt(true, true, 3, 1, d.Encoding(), uint32(n))
}

// Fcvtmsd converts a double to a signed integer rounding toward minus
// infinity.
func (a *Assembler) Fcvtmsd(d Register, n VRegister) {
	checkRegOrZR(d)
	checkVReg(n)
	a.emitFPInt(true, true, 2, 0, d.Encoding(), uint32(n))
}

// Fcvtpsd converts a double to a signed integer rounding toward plus
// infinity.
func (a *Assembler) Fcvtpsd(d Register, n VRegister) {
	checkRegOrZR(d)
	checkVReg(n)
	a.emitFPInt(true, true, 1, 0, d.Encoding(), uint32(n))
}

// FP loads and stores.

func checkFPSize(size OperandSize) {
	asm.Assert(size.IsFP(), "size %d is not an FP access", size)
}

// Fldr loads vt from ad. size is SWord, DWord or QWord.
func (a *Assembler) Fldr(t VRegister, ad Address, size OperandSize) {
	checkVReg(t)
	checkFPSize(size)
	a.emitLoadStore(true, size, uint32(t), ad)
}

// Fstr stores vt to ad.
func (a *Assembler) Fstr(t VRegister, ad Address, size OperandSize) {
	checkVReg(t)
	checkFPSize(size)
	asm.Assert(ad.mode != PCOffset, "store to a literal address")
	a.emitLoadStore(false, size, uint32(t), ad)
}

func (a *Assembler) emitFPPair(load bool, t, t2 VRegister, ad Address) {
	checkVReg(t)
	checkVReg(t2)
	if load {
		asm.Assert(t != t2, "ldp into one register twice")
	}
	word := LoadStorePairBase | 1<<26 | 1<<30 | ad.pairEncoding(DWord) | uint32(t2)<<Rt2Field.Shift | uint32(t)
	if load {
		word |= 1 << 22
	}
	a.Emit(word)
}

// Fldpd loads two doubles from consecutive slots.
func (a *Assembler) Fldpd(t, t2 VRegister, ad Address) { a.emitFPPair(true, t, t2, ad) }

// Fstpd stores two doubles to consecutive slots.
func (a *Assembler) Fstpd(t, t2 VRegister, ad Address) { a.emitFPPair(false, t, t2, ad) }

// SIMD.

func (a *Assembler) checkSIMD() {
	asm.Assert(a.features.NEONSupported(), "SIMD not supported")
}

func (a *Assembler) emitVec3(word uint32, d, n, m VRegister) {
	a.checkSIMD()
	checkVReg(d)
	checkVReg(n)
	checkVReg(m)
	a.Emit(word | vm(m) | vn(n) | vd(d))
}

func (a *Assembler) emitVec2(word uint32, d, n VRegister) {
	a.checkSIMD()
	checkVReg(d)
	checkVReg(n)
	a.Emit(word | vn(n) | vd(d))
}

func intSize(r Arrangement) uint32 { return r.laneLog2() << 22 }

func fpSize(r Arrangement) uint32 {
	if r == Vec2D {
		return 1 << 22
	}
	return 0
}

// Vadd adds integer lanes.
func (a *Assembler) Vadd(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4e208400|intSize(r), d, n, m)
}

// Vsub subtracts integer lanes.
func (a *Assembler) Vsub(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x6e208400|intSize(r), d, n, m)
}

// Vmul multiplies word lanes.
func (a *Assembler) Vmul(d, n, m VRegister) {
	a.emitVec3(0x4e209c00|intSize(Vec4S), d, n, m)
}

// Vfadd adds FP lanes.
func (a *Assembler) Vfadd(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4e20d400|fpSize(r), d, n, m)
}

// Vfsub subtracts FP lanes.
func (a *Assembler) Vfsub(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4ea0d400|fpSize(r), d, n, m)
}

// Vfmul multiplies FP lanes.
func (a *Assembler) Vfmul(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x6e20dc00|fpSize(r), d, n, m)
}

// Vfdiv divides FP lanes.
func (a *Assembler) Vfdiv(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x6e20fc00|fpSize(r), d, n, m)
}

// Vfmax takes the lane-wise maximum.
func (a *Assembler) Vfmax(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4e20f400|fpSize(r), d, n, m)
}

// Vfmin takes the lane-wise minimum.
func (a *Assembler) Vfmin(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4ea0f400|fpSize(r), d, n, m)
}

// Vrecps computes the Newton-Raphson reciprocal step 2 - vn*vm.
func (a *Assembler) Vrecps(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4e20fc00|fpSize(r), d, n, m)
}

// Vrsqrts computes the reciprocal square root step (3 - vn*vm) / 2.
func (a *Assembler) Vrsqrts(r Arrangement, d, n, m VRegister) {
	a.emitVec3(0x4ea0fc00|fpSize(r), d, n, m)
}

// Vand ands 128-bit vectors.
func (a *Assembler) Vand(d, n, m VRegister) { a.emitVec3(0x4e201c00, d, n, m) }

// Vorr ors 128-bit vectors.
func (a *Assembler) Vorr(d, n, m VRegister) { a.emitVec3(0x4ea01c00, d, n, m) }

// Veor xors 128-bit vectors.
func (a *Assembler) Veor(d, n, m VRegister) { a.emitVec3(0x6e201c00, d, n, m) }

// Vmov copies a 128-bit vector.
func (a *Assembler) Vmov(d, n VRegister) { a.Vorr(d, n, n) }

// Vnot inverts a 128-bit vector.
func (a *Assembler) Vnot(d, n VRegister) { a.emitVec2(0x6e205800, d, n) }

// Vfneg negates FP lanes.
func (a *Assembler) Vfneg(r Arrangement, d, n VRegister) { a.emitVec2(0x6ea0f800|fpSize(r), d, n) }

// Vfabs takes the absolute value of FP lanes.
func (a *Assembler) Vfabs(r Arrangement, d, n VRegister) { a.emitVec2(0x4ea0f800|fpSize(r), d, n) }

// Vfsqrt takes the square root of FP lanes.
func (a *Assembler) Vfsqrt(r Arrangement, d, n VRegister) { a.emitVec2(0x6ea1f800|fpSize(r), d, n) }

// Vrecpe estimates lane reciprocals.
func (a *Assembler) Vrecpe(r Arrangement, d, n VRegister) { a.emitVec2(0x4ea1d800|fpSize(r), d, n) }

// Vrsqrte estimates lane reciprocal square roots.
func (a *Assembler) Vrsqrte(r Arrangement, d, n VRegister) { a.emitVec2(0x6ea1d800|fpSize(r), d, n) }

func laneImm5(r Arrangement, idx int) uint32 {
	asm.Assert(idx >= 0 && idx < r.Lanes(), "lane %d out of range", idx)
	if r == Vec2D {
		return uint32(idx)<<4 | 8
	}
	return uint32(idx)<<3 | 4
}

// Vdup broadcasts lane idx of vn to every lane of vd.
func (a *Assembler) Vdup(r Arrangement, d, n VRegister, idx int) {
	a.emitVec2(0x4e000400|laneImm5(r, idx)<<Imm5Field.Shift, d, n)
}

// Vdupr broadcasts rn to every lane of vd.
func (a *Assembler) Vdupr(r Arrangement, d VRegister, n Register) {
	a.checkSIMD()
	checkVReg(d)
	checkRegOrZR(n)
	a.Emit(0x4e000c00 | laneImm5(r, 0)<<Imm5Field.Shift | rn(n) | vd(d))
}

// Vinsr inserts rn into lane idx of vd.
func (a *Assembler) Vinsr(r Arrangement, d VRegister, idx int, n Register) {
	a.checkSIMD()
	checkVReg(d)
	checkRegOrZR(n)
	a.Emit(0x4e001c00 | laneImm5(r, idx)<<Imm5Field.Shift | rn(n) | vd(d))
}

// Vinsv copies lane srcIdx of vn into lane dstIdx of vd.
func (a *Assembler) Vinsv(r Arrangement, d VRegister, dstIdx int, n VRegister, srcIdx int) {
	asm.Assert(srcIdx >= 0 && srcIdx < r.Lanes(), "lane %d out of range", srcIdx)
	imm4 := uint32(srcIdx) << r.laneLog2()
	a.emitVec2(0x6e000400|laneImm5(r, dstIdx)<<Imm5Field.Shift|imm4<<Imm4Field.Shift, d, n)
}

// Vmovrs moves word lane idx of vn to wd, zero-extended.
func (a *Assembler) Vmovrs(d Register, n VRegister, idx int) {
	a.checkSIMD()
	checkRegOrZR(d)
	checkVReg(n)
	a.Emit(0x0e003c00 | laneImm5(Vec4S, idx)<<Imm5Field.Shift | vn(n) | rd(d))
}

// Vmovrd moves double-word lane idx of vn to rd.
func (a *Assembler) Vmovrd(d Register, n VRegister, idx int) {
	a.checkSIMD()
	checkRegOrZR(d)
	checkVReg(n)
	a.Emit(0x4e003c00 | laneImm5(Vec2D, idx)<<Imm5Field.Shift | vn(n) | rd(d))
}
