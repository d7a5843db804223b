package mipssim_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

var _ = Describe("FPU", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	callFloat := func(args ...float64) float64 {
		m.load()
		r, err := m.s.CallFloat(codeBase, args...)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	It("should take doubles in f12 and f14 and return f0", func() {
		m.a.AddD(mips.D0, mips.FloatArg0, mips.FloatArg1)
		m.a.Ret()
		Expect(callFloat(1.25, 2.5)).To(Equal(3.75))
	})

	It("should refuse more than two double arguments", func() {
		m.a.Ret()
		m.load()
		_, err := m.s.CallFloat(codeBase, 1, 2, 3)
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("should compute double arithmetic",
		func(emit func(a *mips.Assembler), x, y, want float64) {
			emit(m.a)
			m.a.Ret()
			Expect(callFloat(x, y)).To(Equal(want))
		},
		Entry("sub", func(a *mips.Assembler) { a.SubD(mips.D0, mips.D6, mips.D7) }, 1.0, 2.5, -1.5),
		Entry("mul", func(a *mips.Assembler) { a.MulD(mips.D0, mips.D6, mips.D7) }, 1.5, -4.0, -6.0),
		Entry("div", func(a *mips.Assembler) { a.DivD(mips.D0, mips.D6, mips.D7) }, 1.0, 4.0, 0.25),
		Entry("div by zero", func(a *mips.Assembler) { a.DivD(mips.D0, mips.D6, mips.D7) }, 1.0, 0.0, math.Inf(1)),
		Entry("sqrt", func(a *mips.Assembler) { a.SqrtD(mips.D0, mips.D6) }, 16.0, 0.0, 4.0),
		Entry("abs", func(a *mips.Assembler) { a.AbsD(mips.D0, mips.D6) }, -2.0, 0.0, 2.0),
		Entry("neg", func(a *mips.Assembler) { a.NegD(mips.D0, mips.D6) }, 2.0, 0.0, -2.0),
		Entry("mov", func(a *mips.Assembler) { a.MovD(mips.D0, mips.D7) }, 2.0, 9.0, 9.0),
	)

	It("should compute in single precision", func() {
		m.a.LoadSImmediate(mips.F2, 1.5)
		m.a.LoadSImmediate(mips.F4, 2)
		m.a.MulS(mips.F6, mips.F2, mips.F4)
		m.a.CvtDS(mips.D0, mips.F6)
		m.a.Ret()
		Expect(callFloat()).To(Equal(3.0))
	})

	It("should narrow doubles to singles", func() {
		m.a.CvtSD(mips.F2, mips.D6)
		m.a.CvtDS(mips.D0, mips.F2)
		m.a.Ret()
		Expect(callFloat(0.1)).To(Equal(float64(float32(0.1))))
	})

	It("should load double immediates", func() {
		m.a.LoadDImmediate(mips.D0, -2.25)
		m.a.Ret()
		Expect(callFloat()).To(Equal(-2.25))
	})

	It("should convert words to doubles", func() {
		m.a.Mtc1(mips.A0, mips.F4)
		m.a.CvtDW(mips.D0, mips.F4)
		m.a.Ret()
		m.load()
		_, err := m.s.Call(codeBase, uint64(uint32(0xfffffff9)))
		Expect(err).NotTo(HaveOccurred())
		Expect(m.s.Registers().DFloat(mips.D0)).To(Equal(-7.0))
	})

	DescribeTable("should truncate doubles to words",
		func(x float64, want uint32) {
			m.a.TruncWD(mips.F0, mips.D6)
			m.a.Mfc1(mips.V0, mips.F0)
			m.a.Ret()
			callFloat(x)
			Expect(m.s.Register(mips.V0)).To(Equal(want))
		},
		Entry("positive", 3.9, uint32(3)),
		Entry("negative", -3.9, uint32(0xfffffffd)),
		Entry("NaN", math.NaN(), uint32(0x7fffffff)),
		Entry("too large", 1e10, uint32(0x7fffffff)),
		Entry("too small", -1e10, uint32(0x7fffffff)),
	)

	DescribeTable("should branch on the compare condition",
		func(cond mips.FCompare, x, y float64, want bool) {
			done := asm.NewLabel()
			m.a.Move(mips.V0, mips.ZR)
			m.a.CompareD(cond, mips.D6, mips.D7)
			m.a.Bc1f(done)
			m.a.Addiu(mips.V0, mips.ZR, 1)
			m.a.Bind(done)
			m.a.Ret()
			callFloat(x, y)
			Expect(m.s.Register(mips.V0) == 1).To(Equal(want))
			Expect(m.s.Registers().Condition()).To(Equal(want))
		},
		Entry("eq equal", mips.CondEQ, 1.0, 1.0, true),
		Entry("eq NaN", mips.CondEQ, math.NaN(), math.NaN(), false),
		Entry("ueq NaN", mips.CondUEQ, math.NaN(), 1.0, true),
		Entry("olt less", mips.CondOLT, 1.0, 2.0, true),
		Entry("olt NaN", mips.CondOLT, math.NaN(), 2.0, false),
		Entry("ult NaN", mips.CondULT, math.NaN(), 2.0, true),
		Entry("ole equal", mips.CondOLE, 2.0, 2.0, true),
		Entry("ule greater", mips.CondULE, 3.0, 2.0, false),
		Entry("un ordered", mips.CondUN, 1.0, 2.0, false),
		Entry("f", mips.CondF, 1.0, 1.0, false),
	)

	It("should take bc1t when the condition holds", func() {
		done := asm.NewLabel()
		m.a.Addiu(mips.V0, mips.ZR, 1)
		m.a.CeqD(mips.D6, mips.D7)
		m.a.Bc1t(done)
		m.a.Delay().Addiu(mips.V0, mips.V0, 1)
		m.a.Move(mips.V0, mips.ZR)
		m.a.Bind(done)
		m.a.Ret()
		callFloat(4, 4)
		Expect(m.s.Register(mips.V0)).To(Equal(uint32(2)))
		callFloat(4, 5)
		Expect(m.s.Register(mips.V0)).To(BeZero())
	})

	It("should move words between the register files", func() {
		m.a.LoadImmediate(mips.T0, 0x3fc00000)
		m.a.Mtc1(mips.T0, mips.F8)
		m.a.Mfc1(mips.V0, mips.F8)
		m.a.Ret()
		callFloat()
		Expect(m.s.Register(mips.V0)).To(Equal(uint32(0x3fc00000)))
		Expect(m.s.Registers().FFloat(mips.F8)).To(Equal(float32(1.5)))
	})

	It("should store and load doubles a word pair at a time", func() {
		m.a.Sdc1(mips.D6, mips.Mem(mips.A0, 8))
		m.a.Ldc1(mips.D0, mips.Mem(mips.A0, 8))
		m.a.AddD(mips.D0, mips.D0, mips.D0)
		m.a.Ret()
		m.s.SetRegister(mips.A0, dataBase)
		Expect(callFloat(5.5)).To(Equal(11.0))
		v, err := m.s.Memory().Read64(dataBase + 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(math.Float64bits(5.5)))
	})

	It("should store and load singles", func() {
		m.a.LoadSImmediate(mips.F2, -0.5)
		m.a.Swc1(mips.F2, mips.Mem(mips.A0, 4))
		m.a.Lwc1(mips.F4, mips.Mem(mips.A0, 4))
		m.a.CvtDS(mips.D0, mips.F4)
		m.a.Ret()
		m.s.SetRegister(mips.A0, dataBase)
		Expect(callFloat()).To(Equal(-0.5))
	})

	It("should refuse an odd register as a double", func() {
		m.a.Emit(0xd4810000) // ldc1 $f1, 0(a0)
		m.a.Ret()
		m.s.SetRegister(mips.A0, dataBase)
		fe := faultOf(m.runErr())
		Expect(fe.Kind).To(Equal(sim.FaultUnsupportedInstruction))
		Expect(fe.Word).To(Equal(uint32(0xd4810000)))
	})

	It("should view the double registers through the debugger names", func() {
		m.a.LoadDImmediate(mips.D3, 6.5)
		m.a.Ret()
		callFloat()
		v, ok := m.s.RegisterByName("d3")
		Expect(ok).To(BeTrue())
		Expect(v.Float).To(BeTrue())
		Expect(v.Width).To(Equal(64))
		Expect(math.Float64frombits(v.Bits)).To(Equal(6.5))
		lo, ok := m.s.RegisterByName("f6")
		Expect(ok).To(BeTrue())
		Expect(lo.Bits).To(Equal(math.Float64bits(6.5) & 0xffffffff))
	})
})
