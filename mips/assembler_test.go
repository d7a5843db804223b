package mips_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/mips"
)

func mnemonic(word uint32) string {
	text := disasm.MIPS(word, 0)
	Expect(text).NotTo(HavePrefix(".word"), "word 0x%08x", word)
	return strings.Fields(text)[0]
}

var _ = Describe("Assembler", func() {
	var a *mips.Assembler

	BeforeEach(func() {
		a = mips.New()
	})

	last := func() mips.Instr {
		words := a.Words()
		return mips.Instr(words[len(words)-1])
	}

	DescribeTable("should encode known words",
		func(emit func(a *mips.Assembler), want uint32) {
			emit(a)
			Expect(a.Words()[0]).To(Equal(want), "got 0x%08x", a.Words()[0])
		},
		Entry("addu", func(a *mips.Assembler) { a.Addu(mips.V0, mips.A0, mips.A1) }, uint32(0x00851021)),
		Entry("addiu", func(a *mips.Assembler) { a.Addiu(mips.V0, mips.ZR, 1) }, uint32(0x24020001)),
		Entry("negative addiu", func(a *mips.Assembler) { a.Addiu(mips.SP, mips.SP, -8) }, uint32(0x27bdfff8)),
		Entry("lui", func(a *mips.Assembler) { a.Lui(mips.AT, 0x1234) }, uint32(0x3c011234)),
		Entry("lw", func(a *mips.Assembler) { a.Lw(mips.A0, mips.Mem(mips.SP, 4)) }, uint32(0x8fa40004)),
		Entry("jr", func(a *mips.Assembler) { a.Jr(mips.RA) }, uint32(0x03e00008)),
		Entry("break", func(a *mips.Assembler) { a.Break(mips.BreakpointBreak) }, uint32(0x0037ac0d)),
		Entry("sll", func(a *mips.Assembler) { a.Sll(mips.T0, mips.T1, 4) }, uint32(0x00094100)),
		Entry("add.d", func(a *mips.Assembler) { a.AddD(mips.D0, mips.D1, mips.D2) }, uint32(0x46241000)),
		Entry("c.eq.d", func(a *mips.Assembler) { a.CeqD(mips.D1, mips.D2) }, uint32(0x46241032)),
		Entry("mtc1", func(a *mips.Assembler) { a.Mtc1(mips.T0, mips.F4) }, uint32(0x44882000)),
		Entry("mul", func(a *mips.Assembler) { a.Mul(mips.V0, mips.A0, mips.A1) }, uint32(0x70851002)),
	)

	It("should round-trip register fields through the decoder view", func() {
		a.Subu(mips.T2, mips.S1, mips.A3)
		i := last()
		Expect(i.Opcode()).To(Equal(mips.SPECIAL))
		Expect(i.SpecialFunction()).To(Equal(mips.SUBU))
		Expect(i.Rd()).To(Equal(mips.T2))
		Expect(i.Rs()).To(Equal(mips.S1))
		Expect(i.Rt()).To(Equal(mips.A3))
		Expect(mnemonic(uint32(i))).To(Equal("subu"))
	})

	It("should sign-extend immediates and leave logical ones unsigned", func() {
		a.Slti(mips.V0, mips.A0, -2)
		Expect(last().SImm16()).To(Equal(int32(-2)))
		a.Ori(mips.V0, mips.A0, 0xfffe)
		Expect(last().Imm16()).To(Equal(uint32(0xfffe)))
		Expect(func() { a.Ori(mips.V0, mips.A0, 0x10000) }).
			To(PanicWith(BeAssignableToTypeOf(&asm.AssertionError{})))
		Expect(func() { a.Addiu(mips.V0, mips.A0, 0x8000) }).To(Panic())
		Expect(func() { a.Addu(mips.NoRegister, mips.A0, mips.A1) }).To(Panic())
	})

	It("should place FPU operands for doubles on even registers", func() {
		a.Ldc1(mips.D3, mips.Mem(mips.A0, 8))
		i := last()
		Expect(i.Opcode()).To(Equal(mips.LDC1))
		Expect(i.Ft()).To(Equal(mips.F6))
		Expect(i.SImm16()).To(Equal(int32(8)))

		a.CvtDW(mips.D2, mips.F1)
		i = last()
		Expect(i.Fmt()).To(Equal(mips.FmtW))
		Expect(i.Fd()).To(Equal(mips.F4))
		Expect(i.Fs()).To(Equal(mips.F1))
		Expect(i.Cop1Function()).To(Equal(mips.CVTD))

		a.CultD(mips.D0, mips.D1)
		Expect(last().IsFCompare()).To(BeTrue())
		Expect(last().FCompare()).To(Equal(mips.CondULT))
	})

	It("should refuse r2 instructions on a plain MIPS32 core", func() {
		f := cpu.Simulated()
		f.MIPSVersion = cpu.MIPS32
		old := mips.New(mips.WithFeatures(f))
		Expect(func() { old.Seb(mips.V0, mips.A0) }).To(Panic())
		Expect(func() { old.Ext(mips.V0, mips.A0, 4, 8) }).To(Panic())

		a.Ext(mips.V0, mips.A0, 4, 8)
		i := last()
		Expect(i.Sa()).To(Equal(uint32(4)))
		Expect(uint32(i.Rd())).To(Equal(uint32(7)))
	})

	Context("delay slots", func() {
		It("should fill every control transfer's slot with a nop", func() {
			l := asm.NewLabel()
			a.Bind(l)
			a.Bne(mips.A0, mips.ZR, l)
			a.Jr(mips.RA)
			a.Jal(0x40000)
			words := a.Words()
			Expect(words).To(HaveLen(6))
			for k := 1; k < 6; k += 2 {
				Expect(mips.Instr(words[k]).IsNop()).To(BeTrue())
				Expect(mips.Instr(words[k-1]).IsBranch()).To(BeTrue())
			}
			Expect(mips.Instr(words[4]).JumpTarget(0)).To(Equal(uint32(0x40000)))
		})

		It("should let the next instruction take the slot", func() {
			l := asm.NewLabel()
			a.Beq(mips.A0, mips.ZR, l)
			a.Delay().Addiu(mips.V0, mips.ZR, 1)
			a.Bind(l)
			words := a.Words()
			Expect(words).To(HaveLen(2))
			Expect(mnemonic(words[1])).To(Equal("addiu"))
			Expect(mips.DecodeBranchOffset(words[0])).To(Equal(int32(8)))
		})

		It("should reject a delay without an open slot", func() {
			Expect(func() { a.Delay() }).To(Panic())
			a.Jr(mips.RA)
			a.Nop()
			Expect(func() { a.Delay() }).To(Panic())
		})

		It("should reject control transfers inside a slot", func() {
			a.Jr(mips.RA)
			Expect(func() { a.Delay().Jr(mips.T9) }).To(Panic())
		})
	})

	Context("labels", func() {
		It("should encode backward branches from the delay slot", func() {
			l := asm.NewLabel()
			a.Bind(l)
			a.Nop()
			a.Nop()
			a.Beq(mips.A0, mips.A1, l)
			i := mips.Instr(a.Words()[2])
			Expect(i.SImm16()).To(Equal(int32(-3)))
			Expect(mips.DecodeBranchOffset(uint32(i))).To(Equal(int32(-8)))
		})

		It("should resolve interleaved forward branches", func() {
			l := asm.NewLabel()
			var sites []int
			for k := 0; k < 5; k++ {
				sites = append(sites, a.CodeSize())
				if k%2 == 0 {
					a.Bnez(mips.A0, l)
				} else {
					a.Bc1t(l)
				}
				a.Addiu(mips.V0, mips.V0, int32(k))
			}
			a.Bind(l)
			Expect(l.IsBound()).To(BeTrue())
			Expect(a.Buffer().Finalize(make([]byte, a.CodeSize()))).To(Succeed())
			for _, pos := range sites {
				i := mips.Instr(a.Buffer().Load32(pos))
				Expect(int(mips.DecodeBranchOffset(uint32(i))) + pos).To(Equal(l.Position()))
			}
		})

		It("should reject out-of-range branches", func() {
			l := asm.NewLabel()
			a.B(l)
			for k := 0; k < 1<<15; k++ {
				a.Nop()
			}
			Expect(func() { a.Bind(l) }).To(Panic())
		})
	})

	It("should tag and untag small integers", func() {
		a.SmiTag(mips.V0)
		a.SmiUntag(mips.V0)
		Expect(mnemonic(a.Words()[0])).To(Equal("sll"))
		Expect(mnemonic(a.Words()[1])).To(Equal("sra"))
	})

	It("should record heap pointers embedded in code", func() {
		a.EmitObject(asm.NewSmi(3))
		a.EmitObject(asm.NewHeapObject(0x1000, false))
		Expect(a.Buffer().PointerOffsets()).To(Equal([]int{4}))
		Expect(a.Words()[1]).To(Equal(uint32(0x1001)))
	})
})
