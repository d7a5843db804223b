package disasm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

var _ = Describe("ARM", func() {
	var a *arm.Assembler

	BeforeEach(func() {
		a = arm.New()
	})

	It("should render data processing in GNU syntax", func() {
		a.Mov(arm.R0, arm.Imm(0, 1))
		Expect(disasm.ARM(a.Words()[0], 0)).To(Equal("mov r0, #1"))
	})

	It("should annotate branch targets", func() {
		l := asm.NewLabel()
		a.B(l)
		a.Nop()
		a.Bind(l)
		Expect(disasm.ARM(a.Words()[0], 0x1000)).To(HaveSuffix("; -> 0x00001008"))
	})

	It("should name simulator traps", func() {
		a.Svc(arm.RedirectionSVC)
		a.Breakpoint()
		words := a.Words()
		Expect(disasm.ARM(words[0], 0)).To(Equal("svc 0xca11 ; redirected call"))
		Expect(disasm.ARM(words[1], 0)).To(HaveSuffix("; breakpoint"))
	})
})

var _ = Describe("ARM64", func() {
	var a *arm64.Assembler

	BeforeEach(func() {
		a = arm64.New()
	})

	It("should render instructions in GNU syntax", func() {
		a.Add(arm64.R1, arm64.R2, arm64.Imm(0x3f0))
		a.Ret()
		words := a.Words()
		Expect(disasm.ARM64(words[0], 0)).To(Equal("add x1, x2, #0x3f0"))
		Expect(disasm.ARM64(words[1], 0)).To(Equal("ret"))
	})

	It("should annotate PC-relative targets", func() {
		l := asm.NewLabel()
		a.B(l)
		a.Nop()
		a.Bind(l)
		Expect(disasm.ARM64(a.Words()[0], 0x2000)).To(HaveSuffix("; -> 0x2008"))
	})

	It("should name simulator traps", func() {
		a.Breakpoint()
		Expect(disasm.ARM64(a.Words()[0], 0)).To(HaveSuffix("; breakpoint"))
	})
})

var _ = Describe("MIPS", func() {
	var a *mips.Assembler

	BeforeEach(func() {
		a = mips.New()
	})

	DescribeTable("should render assembler output",
		func(emit func(a *mips.Assembler), want string) {
			emit(a)
			Expect(disasm.MIPS(a.Words()[0], 0)).To(Equal(want))
		},
		Entry("nop", func(a *mips.Assembler) { a.Nop() }, "nop"),
		Entry("addiu", func(a *mips.Assembler) { a.Addiu(mips.V0, mips.SP, -8) }, "addiu v0, sp, -8"),
		Entry("ori", func(a *mips.Assembler) { a.Ori(mips.V0, mips.ZR, 0xff) }, "ori v0, zr, 0xff"),
		Entry("lui", func(a *mips.Assembler) { a.Lui(mips.AT, 0x1234) }, "lui at, 0x1234"),
		Entry("addu", func(a *mips.Assembler) { a.Addu(mips.V0, mips.A0, mips.A1) }, "addu v0, a0, a1"),
		Entry("move", func(a *mips.Assembler) { a.Move(mips.V0, mips.THR) }, "move v0, thr"),
		Entry("sll", func(a *mips.Assembler) { a.Sll(mips.T0, mips.T1, 2) }, "sll t0, t1, 2"),
		Entry("srav", func(a *mips.Assembler) { a.Srav(mips.T0, mips.T1, mips.T2) }, "srav t0, t1, t2"),
		Entry("mult", func(a *mips.Assembler) { a.Mult(mips.A0, mips.A1) }, "mult a0, a1"),
		Entry("mflo", func(a *mips.Assembler) { a.Mflo(mips.V0) }, "mflo v0"),
		Entry("mul", func(a *mips.Assembler) { a.Mul(mips.V0, mips.A0, mips.A1) }, "mul v0, a0, a1"),
		Entry("ext", func(a *mips.Assembler) { a.Ext(mips.V0, mips.A0, 4, 8) }, "ext v0, a0, 4, 8"),
		Entry("ins", func(a *mips.Assembler) { a.Ins(mips.V0, mips.A0, 4, 8) }, "ins v0, a0, 4, 8"),
		Entry("seb", func(a *mips.Assembler) { a.Seb(mips.V0, mips.A0) }, "seb v0, a0"),
		Entry("lw", func(a *mips.Assembler) { a.Lw(mips.RA, mips.Mem(mips.SP, 4)) }, "lw ra, 4(sp)"),
		Entry("sc", func(a *mips.Assembler) { a.Sc(mips.T0, mips.Mem(mips.A0, 0)) }, "sc t0, 0(a0)"),
		Entry("ldc1", func(a *mips.Assembler) { a.Ldc1(mips.D1, mips.Mem(mips.SP, 8)) }, "ldc1 f2, 8(sp)"),
		Entry("jr", func(a *mips.Assembler) { a.Jr(mips.RA) }, "jr ra"),
		Entry("jalr", func(a *mips.Assembler) { a.Jalr(mips.T9) }, "jalr ra, t9"),
		Entry("mtc1", func(a *mips.Assembler) { a.Mtc1(mips.T0, mips.F4) }, "mtc1 t0, f4"),
		Entry("add.d", func(a *mips.Assembler) { a.AddD(mips.D0, mips.D6, mips.D7) }, "add.d f0, f12, f14"),
		Entry("trunc.w.d", func(a *mips.Assembler) { a.TruncWD(mips.F0, mips.D6) }, "trunc.w.d f0, f12"),
		Entry("break", func(a *mips.Assembler) { a.Breakpoint() }, "break 0xdeb0 ; breakpoint"),
		Entry("unknown break", func(a *mips.Assembler) { a.Break(7) }, "break 0x7"),
	)

	It("should annotate branch targets past the delay slot", func() {
		l := asm.NewLabel()
		a.Beq(mips.A0, mips.A1, l)
		a.Bind(l)
		Expect(disasm.MIPS(a.Words()[0], 0x100)).To(Equal("beq a0, a1, 4 ; -> 0x00000108"))
	})

	It("should print an unconditional branch and bal", func() {
		l := asm.NewLabel()
		a.B(l)
		a.Bal(l)
		a.Bind(l)
		words := a.Words()
		Expect(disasm.MIPS(words[0], 0)).To(HavePrefix("b 12"))
		Expect(disasm.MIPS(words[2], 8)).To(Equal("bal 4 ; -> 0x00000010"))
	})

	It("should name compare conditions", func() {
		a.CuleD(mips.D1, mips.D2)
		Expect(disasm.MIPS(a.Words()[0], 0)).To(Equal("c.ule.d f2, f4"))
	})

	It("should fall back to a data word", func() {
		Expect(disasm.MIPS(0x0000000c, 0)).To(Equal(".word 0x0000000c"))
	})
})

var _ = Describe("Range", func() {
	It("should disassemble words out of simulated memory", func() {
		a := mips.New()
		a.Addiu(mips.V0, mips.ZR, 1)
		a.Ret()
		code := make([]byte, a.CodeSize())
		Expect(a.Buffer().Finalize(code)).To(Succeed())
		mem := sim.NewMemory()
		_, err := mem.MapBytes("code", 0x10000, code)
		Expect(err).NotTo(HaveOccurred())

		lines, err := disasm.Range(sim.ArchMIPS, mem, 0x10000, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(HaveLen(3))
		Expect(lines[0].String()).To(Equal("0x00010000  24020001  addiu v0, zr, 1"))
		Expect(lines[1].Text).To(Equal("jr ra"))
		Expect(lines[2].Text).To(Equal("nop"))
	})

	It("should stop at unmapped memory", func() {
		mem := sim.NewMemory()
		_, err := mem.Map("code", 0x10000, 8)
		Expect(err).NotTo(HaveOccurred())
		lines, err := disasm.Range(sim.ArchARM, mem, 0x10000, 4)
		Expect(err).To(HaveOccurred())
		Expect(lines).To(HaveLen(2))
	})

	It("should dispatch on the architecture", func() {
		Expect(disasm.Word(sim.ArchMIPS, 0, 0)).To(Equal("nop"))
		Expect(disasm.Word(sim.Arch(99), 0, 0)).To(Equal(".word 0x00000000"))
	})
})
