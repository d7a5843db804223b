package arm64sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/sim/arm64sim"
)

func assembled(emit func(a *arm64.Assembler)) uint32 {
	a := arm64.New()
	emit(a)
	words := a.Words()
	return words[len(words)-1]
}

func bound(a *arm64.Assembler) *asm.Label {
	l := asm.NewLabel()
	a.Bind(l)
	return l
}

var _ = Describe("Decode", func() {
	DescribeTable("should classify assembler output",
		func(emit func(a *arm64.Assembler), class arm64sim.Class) {
			Expect(arm64sim.Decode(assembled(emit)).Class).To(Equal(class))
		},
		Entry("adr", func(a *arm64.Assembler) { a.Adr(arm64.R0, 8) }, arm64sim.ClassPCRel),
		Entry("add immediate", func(a *arm64.Assembler) { a.Add(arm64.R0, arm64.R1, arm64.Imm(1)) }, arm64sim.ClassAddSubImm),
		Entry("orr immediate", func(a *arm64.Assembler) {
			a.Orr(arm64.R0, arm64.ZR, arm64.LogicalImm(0xff, 64))
		}, arm64sim.ClassLogicalImm),
		Entry("movz", func(a *arm64.Assembler) { a.Movz(arm64.R0, 0x1234, 1) }, arm64sim.ClassMoveWide),
		Entry("movk", func(a *arm64.Assembler) { a.Movk(arm64.R0, 0x1234, 2) }, arm64sim.ClassMoveWide),
		Entry("ubfx", func(a *arm64.Assembler) { a.Ubfx(arm64.R0, arm64.R1, 4, 8) }, arm64sim.ClassBitfield),
		Entry("b", func(a *arm64.Assembler) { a.B(bound(a)) }, arm64sim.ClassUncondBranch),
		Entry("bl", func(a *arm64.Assembler) { a.Bl(bound(a)) }, arm64sim.ClassUncondBranch),
		Entry("b.eq", func(a *arm64.Assembler) { a.B(bound(a), arm64.EQ) }, arm64sim.ClassCondBranch),
		Entry("cbz", func(a *arm64.Assembler) { a.Cbz(bound(a), arm64.R3) }, arm64sim.ClassCompareBranch),
		Entry("tbnz", func(a *arm64.Assembler) { a.Tbnz(bound(a), arm64.R3, 40) }, arm64sim.ClassTestBranch),
		Entry("svc", func(a *arm64.Assembler) { a.Svc(arm64.RedirectionSVC) }, arm64sim.ClassException),
		Entry("hlt", func(a *arm64.Assembler) { a.Breakpoint() }, arm64sim.ClassException),
		Entry("brk", func(a *arm64.Assembler) { a.Brk(1) }, arm64sim.ClassException),
		Entry("nop", func(a *arm64.Assembler) { a.Nop() }, arm64sim.ClassSystem),
		Entry("clrex", func(a *arm64.Assembler) { a.Clrex() }, arm64sim.ClassSystem),
		Entry("br", func(a *arm64.Assembler) { a.Br(arm64.TMP) }, arm64sim.ClassBranchReg),
		Entry("blr", func(a *arm64.Assembler) { a.Blr(arm64.TMP) }, arm64sim.ClassBranchReg),
		Entry("ret", func(a *arm64.Assembler) { a.Ret() }, arm64sim.ClassBranchReg),
		Entry("ldxr", func(a *arm64.Assembler) { a.Ldxr(arm64.R0, arm64.R1) }, arm64sim.ClassExclusive),
		Entry("stxr", func(a *arm64.Assembler) { a.Stxr(arm64.R2, arm64.R0, arm64.R1) }, arm64sim.ClassExclusive),
		Entry("ldr literal", func(a *arm64.Assembler) { a.Ldr(arm64.R0, arm64.PCRelative(8)) }, arm64sim.ClassLoadLiteral),
		Entry("ldp", func(a *arm64.Assembler) {
			a.Ldp(arm64.R0, arm64.R1, arm64.MemMode(arm64.SP, 16, arm64.PairOffset))
		}, arm64sim.ClassLoadStorePair),
		Entry("fldp", func(a *arm64.Assembler) {
			a.Fldpd(arm64.V0, arm64.V1, arm64.MemMode(arm64.SP, 16, arm64.PairOffset))
		}, arm64sim.ClassLoadStorePair),
		Entry("ldr", func(a *arm64.Assembler) { a.Ldr(arm64.R0, arm64.Mem(arm64.R1, 8)) }, arm64sim.ClassLoadStore),
		Entry("str pre-index", func(a *arm64.Assembler) {
			a.Str(arm64.R0, arm64.MemMode(arm64.SP, -8, arm64.PreIndex))
		}, arm64sim.ClassLoadStore),
		Entry("ldr indexed", func(a *arm64.Assembler) {
			a.Ldr(arm64.R0, arm64.MemIndex(arm64.R1, arm64.R2, arm64.UXTX, true))
		}, arm64sim.ClassLoadStore),
		Entry("fldr", func(a *arm64.Assembler) { a.Fldr(arm64.V0, arm64.Mem(arm64.R1, 8), arm64.DWord) }, arm64sim.ClassLoadStore),
		Entry("orr register", func(a *arm64.Assembler) { a.Orr(arm64.R0, arm64.R1, arm64.Reg(arm64.R2)) }, arm64sim.ClassLogicalShifted),
		Entry("add register", func(a *arm64.Assembler) { a.Add(arm64.R0, arm64.R1, arm64.Reg(arm64.R2)) }, arm64sim.ClassAddSubShifted),
		Entry("add csp", func(a *arm64.Assembler) { a.Add(arm64.CSP, arm64.CSP, arm64.Reg(arm64.R2)) }, arm64sim.ClassAddSubExtended),
		Entry("adc", func(a *arm64.Assembler) { a.Adc(arm64.R0, arm64.R1, arm64.R2) }, arm64sim.ClassAddSubCarry),
		Entry("ccmp", func(a *arm64.Assembler) {
			a.Ccmp(arm64.R0, arm64.Reg(arm64.R1), 4, arm64.EQ)
		}, arm64sim.ClassCondCompare),
		Entry("csel", func(a *arm64.Assembler) { a.Csel(arm64.R0, arm64.R1, arm64.R2, arm64.LT) }, arm64sim.ClassCondSelect),
		Entry("clz", func(a *arm64.Assembler) { a.Clz(arm64.R0, arm64.R1) }, arm64sim.ClassDP1Source),
		Entry("sdiv", func(a *arm64.Assembler) { a.Sdiv(arm64.R0, arm64.R1, arm64.R2) }, arm64sim.ClassDP2Source),
		Entry("lslv", func(a *arm64.Assembler) { a.Lslv(arm64.R0, arm64.R1, arm64.R2) }, arm64sim.ClassDP2Source),
		Entry("madd", func(a *arm64.Assembler) {
			a.Madd(arm64.R0, arm64.R1, arm64.R2, arm64.R3)
		}, arm64sim.ClassDP3Source),
		Entry("smulh", func(a *arm64.Assembler) { a.Smulh(arm64.R0, arm64.R1, arm64.R2) }, arm64sim.ClassDP3Source),
		Entry("fadd", func(a *arm64.Assembler) { a.Faddd(arm64.V0, arm64.V1, arm64.V2) }, arm64sim.ClassFP),
		Entry("fsqrt", func(a *arm64.Assembler) { a.Fsqrtd(arm64.V0, arm64.V1) }, arm64sim.ClassFP),
		Entry("fcmp", func(a *arm64.Assembler) { a.Fcmpd(arm64.V0, arm64.V1) }, arm64sim.ClassFP),
		Entry("fmov immediate", func(a *arm64.Assembler) { a.FmovdImm(arm64.V0, 1.5) }, arm64sim.ClassFP),
		Entry("scvtf", func(a *arm64.Assembler) { a.Scvtfd(arm64.V0, arm64.R1) }, arm64sim.ClassFP),
		Entry("fmadd", func(a *arm64.Assembler) {
			a.Fmaddd(arm64.V0, arm64.V1, arm64.V2, arm64.V3)
		}, arm64sim.ClassFP3Source),
		Entry("fadd 4s", func(a *arm64.Assembler) {
			a.Vfadd(arm64.Vec4S, arm64.V0, arm64.V1, arm64.V2)
		}, arm64sim.ClassSIMD),
		Entry("dup", func(a *arm64.Assembler) { a.Vdupr(arm64.Vec2D, arm64.V0, arm64.R1) }, arm64sim.ClassSIMD),
	)

	It("should reject encodings outside the emitted subset", func() {
		extr := arm64sim.Decode(0x93c20820)
		Expect(extr.Class).To(Equal(arm64sim.ClassUnsupported))
		Expect(extr.Reason).To(Equal("extract"))
		Expect(arm64sim.Decode(0x00000000).Class).To(Equal(arm64sim.ClassUnknown))
	})

	It("should name every class", func() {
		Expect(arm64sim.ClassLoadStorePair.String()).To(Equal("load-store-pair"))
		Expect(arm64sim.Class(200).String()).To(Equal("Class(200)"))
	})
})
