package arm

import (
	"math"

	"github.com/sarchlab/jitsim/asm"
)

func (a *Assembler) checkVFP() {
	asm.Assert(a.features.VFPSupported(), "vfp not supported")
}

func (a *Assembler) checkSReg(s SRegister) {
	asm.Assert(s >= S0 && s < NumSRegisters, "invalid s register %d", s)
}

func (a *Assembler) checkDReg(d DRegister) {
	asm.Assert(d >= D0 && d < NumDRegisters, "invalid d register %d", d)
	asm.Assert(d < D16 || a.features.NEONSupported(), "%s requires 32 double registers", d)
}

func (a *Assembler) checkNEON() {
	asm.Assert(a.features.NEONSupported(), "neon not supported")
}

func sdBits(s SRegister) uint32 { return uint32(s&1)<<22 | uint32(s>>1)<<12 }
func snBits(s SRegister) uint32 { return uint32(s&1)<<7 | uint32(s>>1)<<16 }
func smBits(s SRegister) uint32 { return uint32(s&1)<<5 | uint32(s>>1) }
func ddBits(d DRegister) uint32 { return uint32(d>>4)<<22 | uint32(d&0xf)<<12 }
func dnBits(d DRegister) uint32 { return uint32(d>>4)<<7 | uint32(d&0xf)<<16 }
func dmBits(d DRegister) uint32 { return uint32(d>>4)<<5 | uint32(d&0xf) }

const vfpBase = B27 | B26 | B25 | B11 | B9

func (a *Assembler) emitVFPsss(cond Condition, opcode uint32, sd, sn, sm SRegister) {
	a.checkVFP()
	a.checkSReg(sd)
	a.checkSReg(sn)
	a.checkSReg(sm)
	a.Emit(uint32(cond)<<28 | vfpBase | opcode | sdBits(sd) | snBits(sn) | smBits(sm))
}

func (a *Assembler) emitVFPddd(cond Condition, opcode uint32, dd, dn, dm DRegister) {
	a.checkVFP()
	a.checkDReg(dd)
	a.checkDReg(dn)
	a.checkDReg(dm)
	a.Emit(uint32(cond)<<28 | vfpBase | B8 | opcode | ddBits(dd) | dnBits(dn) | dmBits(dm))
}

func (a *Assembler) emitVFPsd(cond Condition, opcode uint32, sd SRegister, dm DRegister) {
	a.checkVFP()
	a.checkSReg(sd)
	a.checkDReg(dm)
	a.Emit(uint32(cond)<<28 | vfpBase | opcode | sdBits(sd) | dmBits(dm))
}

func (a *Assembler) emitVFPds(cond Condition, opcode uint32, dd DRegister, sm SRegister) {
	a.checkVFP()
	a.checkDReg(dd)
	a.checkSReg(sm)
	a.Emit(uint32(cond)<<28 | vfpBase | opcode | ddBits(dd) | smBits(sm))
}

// Vmovsr moves rt into sn.
func (a *Assembler) Vmovsr(sn SRegister, rt Register, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkSReg(sn)
	asm.Assert(rt != SP && rt != PC, "vmov from %s", rt)
	a.Emit(uint32(c)<<28 | 0x0e000a10 | uint32(sn>>1)<<16 | uint32(rt)<<12 | uint32(sn&1)<<7)
}

// Vmovrs moves sn into rt.
func (a *Assembler) Vmovrs(rt Register, sn SRegister, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkSReg(sn)
	asm.Assert(rt != SP && rt != PC, "vmov to %s", rt)
	a.Emit(uint32(c)<<28 | 0x0e000a10 | B20 | uint32(sn>>1)<<16 | uint32(rt)<<12 | uint32(sn&1)<<7)
}

// Vmovsrr moves rt and rt2 into sm and sm+1.
func (a *Assembler) Vmovsrr(sm SRegister, rt, rt2 Register, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	asm.Assert(sm >= S0 && sm < S31, "invalid s register pair at %d", sm)
	asm.Assert(rt != SP && rt != PC && rt2 != SP && rt2 != PC, "vmov from sp or pc")
	a.Emit(uint32(c)<<28 | 0x0c400a10 | uint32(rt2)<<16 | uint32(rt)<<12 | uint32(sm&1)<<5 | uint32(sm>>1))
}

// Vmovrrs moves sm and sm+1 into rt and rt2.
func (a *Assembler) Vmovrrs(rt, rt2 Register, sm SRegister, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	asm.Assert(sm >= S0 && sm < S31, "invalid s register pair at %d", sm)
	asm.Assert(rt != rt2, "vmov to the same register twice")
	asm.Assert(rt != SP && rt != PC && rt2 != SP && rt2 != PC, "vmov to sp or pc")
	a.Emit(uint32(c)<<28 | 0x0c400a10 | B20 | uint32(rt2)<<16 | uint32(rt)<<12 | uint32(sm&1)<<5 | uint32(sm>>1))
}

// Vmovdrr moves rt (low) and rt2 (high) into dm.
func (a *Assembler) Vmovdrr(dm DRegister, rt, rt2 Register, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkDReg(dm)
	asm.Assert(rt != SP && rt != PC && rt2 != SP && rt2 != PC, "vmov from sp or pc")
	a.Emit(uint32(c)<<28 | 0x0c400b10 | uint32(rt2)<<16 | uint32(rt)<<12 | dmBits(dm))
}

// Vmovrrd moves dm into rt (low) and rt2 (high).
func (a *Assembler) Vmovrrd(rt, rt2 Register, dm DRegister, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkDReg(dm)
	asm.Assert(rt != rt2, "vmov to the same register twice")
	asm.Assert(rt != SP && rt != PC && rt2 != SP && rt2 != PC, "vmov to sp or pc")
	a.Emit(uint32(c)<<28 | 0x0c400b10 | B20 | uint32(rt2)<<16 | uint32(rt)<<12 | dmBits(dm))
}

// Vmovs copies sm into sd.
func (a *Assembler) Vmovs(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B6, sd, S0, sm)
}

// Vmovd copies dm into dd.
func (a *Assembler) Vmovd(dd, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23|B21|B20|B6, dd, D0, dm)
}

// VFPImm8Single returns the 8-bit VFP modified immediate of v.
func VFPImm8Single(v float32) (uint32, bool) {
	imm := math.Float32bits(v)
	if imm&(1<<19-1) != 0 {
		return 0, false
	}
	exp := (imm >> 25) & 0x3f
	if exp != 0x20 && exp != 0x1f {
		return 0, false
	}
	return (imm>>31)<<7 | ((imm>>29)&1)<<6 | (imm>>19)&0x3f, true
}

// VFPImm8Double returns the 8-bit VFP modified immediate of v.
func VFPImm8Double(v float64) (uint32, bool) {
	imm := math.Float64bits(v)
	if imm&(1<<48-1) != 0 {
		return 0, false
	}
	exp := (imm >> 54) & 0x1ff
	if exp != 0x100 && exp != 0xff {
		return 0, false
	}
	return uint32((imm>>63)<<7 | ((imm>>61)&1)<<6 | (imm>>48)&0x3f), true
}

// VmovsImm loads v into sd when it is encodable and reports whether it
// emitted anything.
func (a *Assembler) VmovsImm(sd SRegister, v float32, cond ...Condition) bool {
	c := condition(cond)
	if !a.features.IsARMv7() {
		return false
	}
	imm8, ok := VFPImm8Single(v)
	if !ok {
		return false
	}
	a.emitVFPsss(c, B23|B21|B20|(imm8>>4)<<16|imm8&0xf, sd, S0, S0)
	return true
}

// VmovdImm loads v into dd when it is encodable and reports whether it
// emitted anything.
func (a *Assembler) VmovdImm(dd DRegister, v float64, cond ...Condition) bool {
	c := condition(cond)
	if !a.features.IsARMv7() {
		return false
	}
	imm8, ok := VFPImm8Double(v)
	if !ok {
		return false
	}
	a.emitVFPddd(c, B23|B21|B20|(imm8>>4)<<16|imm8&0xf, dd, D0, D0)
	return true
}

// Vldrs loads sd from a word-aligned offset address.
func (a *Assembler) Vldrs(sd SRegister, ad Address, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkSReg(sd)
	a.Emit(uint32(c)<<28 | 0x0d100a00 | sdBits(sd) | ad.vencoding())
}

// Vstrs stores sd.
func (a *Assembler) Vstrs(sd SRegister, ad Address, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkSReg(sd)
	asm.Assert(ad.Base() != PC, "vstr relative to pc")
	a.Emit(uint32(c)<<28 | 0x0d000a00 | sdBits(sd) | ad.vencoding())
}

// Vldrd loads dd.
func (a *Assembler) Vldrd(dd DRegister, ad Address, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkDReg(dd)
	a.Emit(uint32(c)<<28 | 0x0d100b00 | ddBits(dd) | ad.vencoding())
}

// Vstrd stores dd.
func (a *Assembler) Vstrd(dd DRegister, ad Address, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	a.checkDReg(dd)
	asm.Assert(ad.Base() != PC, "vstr relative to pc")
	a.Emit(uint32(c)<<28 | 0x0d000b00 | ddBits(dd) | ad.vencoding())
}

func (a *Assembler) emitMultiVMemOp(cond Condition, am BlockAddressMode, load, double bool, base Register, start, count uint32) {
	a.checkVFP()
	asm.Assert(am == IA || am == IA_W || am == DB_W, "unsupported vfp block mode")
	asm.Assert(base != PC, "vfp block transfer based on pc")
	asm.Assert(count > 0, "empty vfp register list")
	word := uint32(cond)<<28 | B27 | B26 | B11 | B9 | uint32(am) | uint32(base)<<16
	if load {
		word |= B20
	}
	if double {
		asm.Assert(start+count <= NumDRegisters && count <= 16, "vfp register list out of range")
		word |= B8 | (start>>4)<<22 | (start&0xf)<<12 | count<<1
	} else {
		asm.Assert(start+count <= NumSRegisters, "vfp register list out of range")
		word |= (start&1)<<22 | (start>>1)<<12 | count
	}
	a.Emit(word)
}

// Vldms loads first..last.
func (a *Assembler) Vldms(am BlockAddressMode, base Register, first, last SRegister, cond ...Condition) {
	asm.Assert(last >= first, "empty range")
	a.emitMultiVMemOp(condition(cond), am, true, false, base, uint32(first), uint32(last-first+1))
}

// Vstms stores first..last.
func (a *Assembler) Vstms(am BlockAddressMode, base Register, first, last SRegister, cond ...Condition) {
	asm.Assert(last >= first, "empty range")
	a.emitMultiVMemOp(condition(cond), am, false, false, base, uint32(first), uint32(last-first+1))
}

// Vldmd loads count registers starting at first.
func (a *Assembler) Vldmd(am BlockAddressMode, base Register, first DRegister, count int, cond ...Condition) {
	a.checkDReg(first + DRegister(count) - 1)
	a.emitMultiVMemOp(condition(cond), am, true, true, base, uint32(first), uint32(count))
}

// Vstmd stores count registers starting at first.
func (a *Assembler) Vstmd(am BlockAddressMode, base Register, first DRegister, count int, cond ...Condition) {
	a.checkDReg(first + DRegister(count) - 1)
	a.emitMultiVMemOp(condition(cond), am, false, true, base, uint32(first), uint32(count))
}

// Vadds emits sd = sn + sm.
func (a *Assembler) Vadds(sd, sn, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B21|B20, sd, sn, sm)
}

// Vaddd emits dd = dn + dm.
func (a *Assembler) Vaddd(dd, dn, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B21|B20, dd, dn, dm)
}

// Vsubs emits sd = sn - sm.
func (a *Assembler) Vsubs(sd, sn, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B21|B20|B6, sd, sn, sm)
}

// Vsubd emits dd = dn - dm.
func (a *Assembler) Vsubd(dd, dn, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B21|B20|B6, dd, dn, dm)
}

// Vmuls emits sd = sn * sm.
func (a *Assembler) Vmuls(sd, sn, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B21, sd, sn, sm)
}

// Vmuld emits dd = dn * dm.
func (a *Assembler) Vmuld(dd, dn, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B21, dd, dn, dm)
}

// Vmlas emits sd += sn * sm.
func (a *Assembler) Vmlas(sd, sn, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), 0, sd, sn, sm)
}

// Vmlad emits dd += dn * dm.
func (a *Assembler) Vmlad(dd, dn, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), 0, dd, dn, dm)
}

// Vmlss emits sd -= sn * sm.
func (a *Assembler) Vmlss(sd, sn, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B6, sd, sn, sm)
}

// Vmlsd emits dd -= dn * dm.
func (a *Assembler) Vmlsd(dd, dn, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B6, dd, dn, dm)
}

// Vdivs emits sd = sn / sm.
func (a *Assembler) Vdivs(sd, sn, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23, sd, sn, sm)
}

// Vdivd emits dd = dn / dm.
func (a *Assembler) Vdivd(dd, dn, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23, dd, dn, dm)
}

// Vabss emits sd = |sm|.
func (a *Assembler) Vabss(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B7|B6, sd, S0, sm)
}

// Vabsd emits dd = |dm|.
func (a *Assembler) Vabsd(dd, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23|B21|B20|B7|B6, dd, D0, dm)
}

// Vnegs emits sd = -sm.
func (a *Assembler) Vnegs(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B16|B6, sd, S0, sm)
}

// Vnegd emits dd = -dm.
func (a *Assembler) Vnegd(dd, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23|B21|B20|B16|B6, dd, D0, dm)
}

// Vsqrts emits sd = sqrt(sm).
func (a *Assembler) Vsqrts(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B16|B7|B6, sd, S0, sm)
}

// Vsqrtd emits dd = sqrt(dm).
func (a *Assembler) Vsqrtd(dd, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23|B21|B20|B16|B7|B6, dd, D0, dm)
}

// Vcmps compares sd with sm, setting the FPSCR flags.
func (a *Assembler) Vcmps(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B18|B6, sd, S0, sm)
}

// Vcmpd compares dd with dm.
func (a *Assembler) Vcmpd(dd, dm DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23|B21|B20|B18|B6, dd, D0, dm)
}

// Vcmpsz compares sd with zero.
func (a *Assembler) Vcmpsz(sd SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B18|B16|B6, sd, S0, S0)
}

// Vcmpdz compares dd with zero.
func (a *Assembler) Vcmpdz(dd DRegister, cond ...Condition) {
	a.emitVFPddd(condition(cond), B23|B21|B20|B18|B16|B6, dd, D0, D0)
}

// Vmrs moves FPSCR into rd. With rd == PC it copies the FPSCR flags into
// the APSR.
func (a *Assembler) Vmrs(rd Register, cond ...Condition) {
	c := condition(cond)
	a.checkVFP()
	checkReg(rd)
	a.Emit(uint32(c)<<28 | 0x0ef10a10 | uint32(rd)<<12)
}

// Vmstat copies the FPSCR flags into the APSR.
func (a *Assembler) Vmstat(cond ...Condition) {
	a.Vmrs(PC, cond...)
}

// Vcvtsd converts dm to single precision.
func (a *Assembler) Vcvtsd(sd SRegister, dm DRegister, cond ...Condition) {
	a.emitVFPsd(condition(cond), B23|B21|B20|B18|B17|B16|B8|B7|B6, sd, dm)
}

// Vcvtds converts sm to double precision.
func (a *Assembler) Vcvtds(dd DRegister, sm SRegister, cond ...Condition) {
	a.emitVFPds(condition(cond), B23|B21|B20|B18|B17|B16|B7|B6, dd, sm)
}

// Vcvtis converts sm to a signed integer, rounding toward zero.
func (a *Assembler) Vcvtis(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B19|B18|B16|B7|B6, sd, S0, sm)
}

// Vcvtid converts dm to a signed integer, rounding toward zero.
func (a *Assembler) Vcvtid(sd SRegister, dm DRegister, cond ...Condition) {
	a.emitVFPsd(condition(cond), B23|B21|B20|B19|B18|B16|B8|B7|B6, sd, dm)
}

// Vcvtsi converts the signed integer in sm to single precision.
func (a *Assembler) Vcvtsi(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B19|B7|B6, sd, S0, sm)
}

// Vcvtdi converts the signed integer in sm to double precision.
func (a *Assembler) Vcvtdi(dd DRegister, sm SRegister, cond ...Condition) {
	a.emitVFPds(condition(cond), B23|B21|B20|B19|B8|B7|B6, dd, sm)
}

// Vcvtus converts sm to an unsigned integer, rounding toward zero.
func (a *Assembler) Vcvtus(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B19|B18|B7|B6, sd, S0, sm)
}

// Vcvtud converts dm to an unsigned integer, rounding toward zero.
func (a *Assembler) Vcvtud(sd SRegister, dm DRegister, cond ...Condition) {
	a.emitVFPsd(condition(cond), B23|B21|B20|B19|B18|B8|B7|B6, sd, dm)
}

// Vcvtsu converts the unsigned integer in sm to single precision.
func (a *Assembler) Vcvtsu(sd, sm SRegister, cond ...Condition) {
	a.emitVFPsss(condition(cond), B23|B21|B20|B19|B6, sd, S0, sm)
}

// Vcvtdu converts the unsigned integer in sm to double precision.
func (a *Assembler) Vcvtdu(dd DRegister, sm SRegister, cond ...Condition) {
	a.emitVFPds(condition(cond), B23|B21|B20|B19|B8|B6, dd, sm)
}

// NEON.

func simdSize(sz OperandSize) uint32 {
	switch sz {
	case Byte, UnsignedByte:
		return 0
	case Halfword, UnsignedHalfword:
		return 1
	case Word, UnsignedWord:
		return 2
	case WordPair:
		return 3
	case SWord, DWord:
		return 0
	default:
		asm.Unreachable()
		return 0
	}
}

func (a *Assembler) emitSIMDqqq(opcode uint32, sz OperandSize, qd, qn, qm QRegister) {
	a.checkNEON()
	asm.Assert(qd >= Q0 && qd < NumQRegisters && qn >= Q0 && qn < NumQRegisters &&
		qm >= Q0 && qm < NumQRegisters, "invalid q register")
	a.Emit(0xf<<28 | B25 | B6 | opcode | simdSize(sz)<<20 |
		ddBits(qd.Low()) | dnBits(qn.Low()) | dmBits(qm.Low()))
}

func (a *Assembler) emitSIMDddd(opcode uint32, sz OperandSize, dd, dn, dm DRegister) {
	a.checkNEON()
	a.Emit(0xf<<28 | B25 | opcode | simdSize(sz)<<20 | ddBits(dd) | dnBits(dn) | dmBits(dm))
}

// Vaddqi adds integer lanes of size sz.
func (a *Assembler) Vaddqi(sz OperandSize, qd, qn, qm QRegister) {
	a.emitSIMDqqq(B11, sz, qd, qn, qm)
}

// Vsubqi subtracts integer lanes.
func (a *Assembler) Vsubqi(sz OperandSize, qd, qn, qm QRegister) {
	a.emitSIMDqqq(B24|B11, sz, qd, qn, qm)
}

// Vmulqi multiplies integer lanes.
func (a *Assembler) Vmulqi(sz OperandSize, qd, qn, qm QRegister) {
	a.emitSIMDqqq(B11|B8|B4, sz, qd, qn, qm)
}

// Vaddqs adds float lanes.
func (a *Assembler) Vaddqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B11|B10|B8, SWord, qd, qn, qm)
}

// Vsubqs subtracts float lanes.
func (a *Assembler) Vsubqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B21|B11|B10|B8, SWord, qd, qn, qm)
}

// Vmulqs multiplies float lanes.
func (a *Assembler) Vmulqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B24|B11|B10|B8|B4, SWord, qd, qn, qm)
}

// Vminqs takes the lane-wise float minimum.
func (a *Assembler) Vminqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B21|B11|B10|B9|B8, SWord, qd, qn, qm)
}

// Vmaxqs takes the lane-wise float maximum.
func (a *Assembler) Vmaxqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B11|B10|B9|B8, SWord, qd, qn, qm)
}

// Vandq emits qd = qn & qm.
func (a *Assembler) Vandq(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B8|B4, Byte, qd, qn, qm)
}

// Vorrq emits qd = qn | qm.
func (a *Assembler) Vorrq(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B21|B8|B4, Byte, qd, qn, qm)
}

// Veorq emits qd = qn ^ qm.
func (a *Assembler) Veorq(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B24|B8|B4, Byte, qd, qn, qm)
}

// Vmovq copies qm into qd.
func (a *Assembler) Vmovq(qd, qm QRegister) {
	a.Vorrq(qd, qm, qm)
}

// Vrecpeqs estimates the reciprocal of each lane.
func (a *Assembler) Vrecpeqs(qd, qm QRegister) {
	a.emitSIMDqqq(B24|B23|B21|B20|B19|B17|B16|B10|B8, SWord, qd, Q0, qm)
}

// Vrecpsqs computes the Newton-Raphson reciprocal step 2 - qn*qm.
func (a *Assembler) Vrecpsqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B11|B10|B9|B8|B4, SWord, qd, qn, qm)
}

// Vrsqrteqs estimates the reciprocal square root of each lane.
func (a *Assembler) Vrsqrteqs(qd, qm QRegister) {
	a.emitSIMDqqq(B24|B23|B21|B20|B19|B17|B16|B10|B8|B7, SWord, qd, Q0, qm)
}

// Vrsqrtsqs computes the reciprocal square root step (3 - qn*qm) / 2.
func (a *Assembler) Vrsqrtsqs(qd, qn, qm QRegister) {
	a.emitSIMDqqq(B21|B11|B10|B9|B8|B4, SWord, qd, qn, qm)
}

// Vdup broadcasts lane idx of dm to every lane of qd.
func (a *Assembler) Vdup(sz OperandSize, qd QRegister, dm DRegister, idx int) {
	var code uint32
	switch sz {
	case Byte, UnsignedByte:
		asm.Assert(idx >= 0 && idx < 8, "lane %d out of range", idx)
		code = 1 | uint32(idx)<<1
	case Halfword, UnsignedHalfword:
		asm.Assert(idx >= 0 && idx < 4, "lane %d out of range", idx)
		code = 2 | uint32(idx)<<2
	case Word, UnsignedWord:
		asm.Assert(idx >= 0 && idx < 2, "lane %d out of range", idx)
		code = 4 | uint32(idx)<<3
	default:
		asm.Unimplemented("vdup of " + sizeName(sz))
	}
	a.emitSIMDddd(B24|B23|B11|B10|B6, WordPair, qd.Low(), DRegister(code&0xf), dm)
}

func sizeName(sz OperandSize) string {
	switch sz {
	case WordPair:
		return "word pairs"
	case SWord:
		return "single words"
	case DWord:
		return "double words"
	default:
		return "register lists"
	}
}
