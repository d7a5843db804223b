package mipssim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim/mipssim"
)

// assembled returns the first word emit produces; branches append their
// delay slot after it.
func assembled(emit func(a *mips.Assembler)) uint32 {
	a := mips.New()
	emit(a)
	return a.Words()[0]
}

var _ = Describe("Decode", func() {
	DescribeTable("should classify assembler output",
		func(emit func(a *mips.Assembler), class mipssim.Class) {
			Expect(mipssim.Decode(assembled(emit)).Class).To(Equal(class))
		},
		Entry("nop", func(a *mips.Assembler) { a.Nop() }, mipssim.ClassNop),
		Entry("sll", func(a *mips.Assembler) { a.Sll(mips.V0, mips.A0, 3) }, mipssim.ClassShift),
		Entry("srav", func(a *mips.Assembler) { a.Srav(mips.V0, mips.A0, mips.A1) }, mipssim.ClassShift),
		Entry("addu", func(a *mips.Assembler) { a.Addu(mips.V0, mips.A0, mips.A1) }, mipssim.ClassALU),
		Entry("movn", func(a *mips.Assembler) { a.Movn(mips.V0, mips.A0, mips.A1) }, mipssim.ClassALU),
		Entry("mult", func(a *mips.Assembler) { a.Mult(mips.A0, mips.A1) }, mipssim.ClassMultiply),
		Entry("mflo", func(a *mips.Assembler) { a.Mflo(mips.V0) }, mipssim.ClassHiLo),
		Entry("mul", func(a *mips.Assembler) { a.Mul(mips.V0, mips.A0, mips.A1) }, mipssim.ClassSpecial2),
		Entry("ext", func(a *mips.Assembler) { a.Ext(mips.V0, mips.A0, 2, 3) }, mipssim.ClassSpecial3),
		Entry("lui", func(a *mips.Assembler) { a.Lui(mips.V0, 1) }, mipssim.ClassImmediate),
		Entry("sltiu", func(a *mips.Assembler) { a.Sltiu(mips.V0, mips.A0, 4) }, mipssim.ClassImmediate),
		Entry("jr", func(a *mips.Assembler) { a.Jr(mips.RA) }, mipssim.ClassJumpRegister),
		Entry("jalr", func(a *mips.Assembler) { a.Jalr(mips.T9) }, mipssim.ClassJumpRegister),
		Entry("jal", func(a *mips.Assembler) { a.Jal(0x1000) }, mipssim.ClassJump),
		Entry("break", func(a *mips.Assembler) { a.Breakpoint() }, mipssim.ClassBreak),
		Entry("lhu", func(a *mips.Assembler) { a.Lhu(mips.V0, mips.Mem(mips.A0, 2)) }, mipssim.ClassLoadStore),
		Entry("sb", func(a *mips.Assembler) { a.Sb(mips.V0, mips.Mem(mips.A0, 1)) }, mipssim.ClassLoadStore),
		Entry("ll", func(a *mips.Assembler) { a.Ll(mips.V0, mips.Mem(mips.A0, 0)) }, mipssim.ClassLoadLinked),
		Entry("sc", func(a *mips.Assembler) { a.Sc(mips.V0, mips.Mem(mips.A0, 0)) }, mipssim.ClassStoreConditional),
		Entry("ldc1", func(a *mips.Assembler) { a.Ldc1(mips.D1, mips.Mem(mips.A0, 8)) }, mipssim.ClassFPULoadStore),
		Entry("mfc1", func(a *mips.Assembler) { a.Mfc1(mips.V0, mips.F3) }, mipssim.ClassFPUMove),
		Entry("c.ule.d", func(a *mips.Assembler) { a.CuleD(mips.D1, mips.D2) }, mipssim.ClassFPUCompare),
		Entry("div.d", func(a *mips.Assembler) { a.DivD(mips.D0, mips.D1, mips.D2) }, mipssim.ClassFPUArith),
		Entry("cvt.d.w", func(a *mips.Assembler) { a.CvtDW(mips.D0, mips.F4) }, mipssim.ClassFPUArith),
	)

	DescribeTable("should classify branches",
		func(emit func(a *mips.Assembler, l *asm.Label)) {
			l := asm.NewLabel()
			a := mips.New()
			emit(a, l)
			a.Bind(l)
			Expect(mipssim.Decode(a.Words()[0]).Class).To(Equal(mipssim.ClassBranch))
		},
		Entry("beq", func(a *mips.Assembler, l *asm.Label) { a.Beq(mips.A0, mips.A1, l) }),
		Entry("bgtz", func(a *mips.Assembler, l *asm.Label) { a.Bgtz(mips.A0, l) }),
		Entry("bltzal", func(a *mips.Assembler, l *asm.Label) { a.Bltzal(mips.A0, l) }),
	)

	It("should classify the FPU condition branch separately", func() {
		l := asm.NewLabel()
		a := mips.New()
		a.Bc1f(l)
		a.Bind(l)
		Expect(mipssim.Decode(a.Words()[0]).Class).To(Equal(mipssim.ClassFPUBranch))
	})

	DescribeTable("should refuse encodings outside the emitted subset",
		func(word uint32, class mipssim.Class) {
			d := mipssim.Decode(word)
			Expect(d.Class).To(Equal(class))
			if class == mipssim.ClassUnsupported {
				Expect(d.Reason).NotTo(BeEmpty())
			}
		},
		Entry("syscall", uint32(0x0000000c), mipssim.ClassUnsupported),
		Entry("add", uint32(0x00851020), mipssim.ClassUnsupported),
		Entry("addi", uint32(0x20020001), mipssim.ClassUnsupported),
		Entry("cop1 long format", uint32(0x46a00020), mipssim.ClassUnsupported),
		Entry("cop2", uint32(0x48000000), mipssim.ClassUnknown),
	)

	It("should name classes", func() {
		Expect(mipssim.ClassFPUCompare.String()).To(Equal("fpu-compare"))
		Expect(mipssim.Class(200).String()).To(Equal("Class(200)"))
	})
})
