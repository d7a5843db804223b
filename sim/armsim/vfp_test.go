package armsim_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/sim"
	"github.com/sarchlab/jitsim/sim/armsim"
)

var _ = Describe("Register file", func() {
	It("should alias S, D and Q views", func() {
		var r armsim.RegFile
		r.SetD(arm.D1, 0x1111111122222222)
		Expect(r.S(arm.S2)).To(Equal(uint32(0x22222222)))
		Expect(r.S(arm.S3)).To(Equal(uint32(0x11111111)))

		r.SetS(arm.S2, 0xaaaaaaaa)
		Expect(r.D(arm.D1)).To(Equal(uint64(0x11111111aaaaaaaa)))

		Expect(r.Q(arm.Q0)).To(Equal([4]uint32{0, 0, 0xaaaaaaaa, 0x11111111}))
		r.SetQ(arm.Q1, [4]uint32{1, 2, 3, 4})
		Expect(r.D(arm.D2)).To(Equal(uint64(2)<<32 | 1))
		Expect(r.D(arm.D3)).To(Equal(uint64(4)<<32 | 3))
	})

	It("should read PC as the instruction address plus eight", func() {
		var r armsim.RegFile
		r.R[arm.PC] = 0x1000
		Expect(r.ReadReg(arm.PC)).To(Equal(uint32(0x1008)))
	})
})

var _ = Describe("VFP", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	callD := func(args ...float64) float64 {
		m.load()
		r, err := m.s.CallFloat(codeBase, args...)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	softFloatBody := func(body func()) {
		m.a.Vmovdrr(arm.D0, arm.R0, arm.R1)
		m.a.Vmovdrr(arm.D1, arm.R2, arm.R3)
		body()
		m.a.Vmovrrd(arm.R0, arm.R1, arm.D0)
		m.a.Ret()
	}

	It("should accumulate with vmla and vmls", func() {
		softFloatBody(func() {
			m.a.Vmlad(arm.D0, arm.D1, arm.D1)
			m.a.Vmlsd(arm.D0, arm.D0, arm.D1)
		})
		// d0 = 1 + 3*3 = 10; d0 = 10 - 10*3 = -20
		Expect(callD(1, 3)).To(Equal(-20.0))
	})

	It("should divide and take square roots", func() {
		softFloatBody(func() {
			m.a.Vdivd(arm.D0, arm.D0, arm.D1)
			m.a.Vsqrtd(arm.D0, arm.D0)
		})
		Expect(callD(18, 2)).To(Equal(3.0))
	})

	It("should negate and take absolute values", func() {
		softFloatBody(func() {
			m.a.Vnegd(arm.D0, arm.D0)
			m.a.Vabsd(arm.D1, arm.D1)
			m.a.Vaddd(arm.D0, arm.D0, arm.D1)
		})
		Expect(callD(1.5, -4)).To(Equal(2.5))
	})

	It("should load VFP immediates", func() {
		m.a.VmovdImm(arm.D0, 0.5)
		m.a.Vmovrrd(arm.R0, arm.R1, arm.D0)
		m.a.Ret()
		Expect(callD()).To(Equal(0.5))
	})

	It("should round single precision results", func() {
		softFloatBody(func() {
			m.a.Vcvtsd(arm.S4, arm.D0)
			m.a.Vcvtsd(arm.S5, arm.D1)
			m.a.Vadds(arm.S4, arm.S4, arm.S5)
			m.a.Vcvtds(arm.D0, arm.S4)
		})
		Expect(callD(1, 1e-9)).To(Equal(1.0))
	})

	DescribeTable("should compare into FPSCR and transfer the flags",
		func(a, b float64, cond arm.Condition, want uint32) {
			m.a.Vmovdrr(arm.D0, arm.R0, arm.R1)
			m.a.Vmovdrr(arm.D1, arm.R2, arm.R3)
			m.a.Vcmpd(arm.D0, arm.D1)
			m.a.Vmstat()
			m.a.Mov(arm.R0, arm.Imm(0, 0))
			m.a.Mov(arm.R0, arm.Imm(0, 1), cond)
			m.a.Ret()
			ab, bb := math.Float64bits(a), math.Float64bits(b)
			Expect(m.run(ab&0xffffffff, ab>>32, bb&0xffffffff, bb>>32)).To(Equal(want))
		},
		Entry("less", 1.0, 2.0, arm.LT, uint32(1)),
		Entry("greater", 3.0, 2.0, arm.GT, uint32(1)),
		Entry("equal", 2.0, 2.0, arm.EQ, uint32(1)),
		Entry("unordered is not less", math.NaN(), 2.0, arm.CC, uint32(0)),
		Entry("unordered sets V", math.NaN(), 2.0, arm.VS, uint32(1)),
	)

	It("should copy FPSCR into a core register", func() {
		m.a.Vcmpdz(arm.D0)
		m.a.Vmrs(arm.R0)
		m.a.Ret()
		Expect(m.run()).To(Equal(uint32(0x60000000)))
	})

	DescribeTable("should convert to integers with saturation",
		func(v float64, want int32) {
			softFloatBody(func() {
				m.a.Vcvtid(arm.S0, arm.D0)
			})
			m.load()
			bits := math.Float64bits(v)
			_, err := m.s.Call(codeBase, bits&0xffffffff, bits>>32)
			Expect(err).NotTo(HaveOccurred())
			Expect(int32(m.s.Registers().S(arm.S0))).To(Equal(want))
		},
		Entry("truncates", 3.7, int32(3)),
		Entry("negative", -3.7, int32(-3)),
		Entry("saturates high", 1e20, int32(math.MaxInt32)),
		Entry("saturates low", -1e20, int32(math.MinInt32)),
		Entry("nan", math.NaN(), int32(0)),
	)

	It("should convert unsigned integers", func() {
		m.a.Vmovsr(arm.S0, arm.R0)
		m.a.Vcvtdu(arm.D1, arm.S0)
		m.a.Vmovrrd(arm.R0, arm.R1, arm.D1)
		m.a.Ret()
		m.load()
		_, err := m.s.Call(codeBase, 0xffffffff)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.s.Registers().DFloat(arm.D1)).To(Equal(4294967295.0))
	})

	It("should transfer register blocks", func() {
		m.a.Vstmd(arm.DB_W, arm.SP, arm.D0, 2)
		m.a.Vldmd(arm.IA_W, arm.SP, arm.D2, 2)
		m.a.Vldrd(arm.D4, arm.Mem(arm.R0, 8))
		m.a.Vstrd(arm.D3, arm.Mem(arm.R0, 16))
		m.a.Ret()
		m.s.Registers().SetDFloat(arm.D0, 1.25)
		m.s.Registers().SetDFloat(arm.D1, -7)
		Expect(m.s.Memory().Write64(dataBase+8, math.Float64bits(9.5))).To(Succeed())
		m.run(dataBase)
		Expect(m.s.Registers().DFloat(arm.D2)).To(Equal(1.25))
		Expect(m.s.Registers().DFloat(arm.D3)).To(Equal(-7.0))
		Expect(m.s.Registers().DFloat(arm.D4)).To(Equal(9.5))
		v, err := m.s.Memory().Read64(dataBase + 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(math.Float64frombits(v)).To(Equal(-7.0))
	})

	It("should refuse VFP instructions when the unit is disabled", func() {
		c := config.Default()
		off := false
		c.VFP = &off
		m = newMachine(armsim.WithConfig(c))
		m.a = arm.New()
		m.a.Vaddd(arm.D0, arm.D0, arm.D0)
		m.a.Ret()
		Expect(sim.IsFault(m.runErr(), sim.FaultUnsupportedInstruction)).To(BeTrue())
	})
})

var _ = Describe("NEON", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	exec := func(emit func()) *armsim.RegFile {
		emit()
		m.a.Ret()
		m.run()
		return m.s.Registers()
	}

	floats := func(v ...float32) [4]uint32 {
		var out [4]uint32
		for k, f := range v {
			out[k] = math.Float32bits(f)
		}
		return out
	}

	It("should add and multiply float lanes", func() {
		m.s.Registers().SetQ(arm.Q1, floats(1, 2, 3, 4))
		m.s.Registers().SetQ(arm.Q2, floats(0.5, 0.5, 2, -1))
		r := exec(func() {
			m.a.Vaddqs(arm.Q0, arm.Q1, arm.Q2)
			m.a.Vmulqs(arm.Q3, arm.Q1, arm.Q2)
			m.a.Vminqs(arm.Q4, arm.Q1, arm.Q2)
		})
		Expect(r.Q(arm.Q0)).To(Equal(floats(1.5, 2.5, 5, 3)))
		Expect(r.Q(arm.Q3)).To(Equal(floats(0.5, 1, 6, -4)))
		Expect(r.Q(arm.Q4)).To(Equal(floats(0.5, 0.5, 2, -1)))
	})

	It("should wrap integer lanes at their width", func() {
		m.s.Registers().SetQ(arm.Q1, [4]uint32{0x000000ff, 0xffff, 1, 2})
		m.s.Registers().SetQ(arm.Q2, [4]uint32{0x00000001, 0x0001, 1, 3})
		r := exec(func() {
			m.a.Vaddqi(arm.Byte, arm.Q0, arm.Q1, arm.Q2)
			m.a.Vaddqi(arm.Halfword, arm.Q3, arm.Q1, arm.Q2)
			m.a.Vmulqi(arm.Word, arm.Q4, arm.Q1, arm.Q2)
		})
		Expect(r.Q(arm.Q0)).To(Equal([4]uint32{0x00000000, 0x0000ff00, 2, 5}))
		Expect(r.Q(arm.Q3)).To(Equal([4]uint32{0x00000100, 0x00000000, 2, 5}))
		Expect(r.Q(arm.Q4)).To(Equal([4]uint32{0xff, 0xffff, 1, 6}))
	})

	It("should apply bitwise operations", func() {
		m.s.Registers().SetQ(arm.Q1, [4]uint32{0xf0f0, 0, 0xff, 1})
		m.s.Registers().SetQ(arm.Q2, [4]uint32{0xff00, 1, 0x0f, 1})
		r := exec(func() {
			m.a.Vandq(arm.Q3, arm.Q1, arm.Q2)
			m.a.Veorq(arm.Q4, arm.Q1, arm.Q2)
			m.a.Vmovq(arm.Q5, arm.Q1)
		})
		Expect(r.Q(arm.Q3)).To(Equal([4]uint32{0xf000, 0, 0x0f, 1}))
		Expect(r.Q(arm.Q4)).To(Equal([4]uint32{0x0ff0, 1, 0xf0, 0}))
		Expect(r.Q(arm.Q5)).To(Equal(r.Q(arm.Q1)))
	})

	It("should broadcast a lane", func() {
		m.s.Registers().SetD(arm.D2, 0x1122334455667788)
		r := exec(func() {
			m.a.Vdup(arm.Word, arm.Q0, arm.D2, 1)
			m.a.Vdup(arm.Halfword, arm.Q1, arm.D2, 0)
		})
		Expect(r.Q(arm.Q0)).To(Equal([4]uint32{0x11223344, 0x11223344, 0x11223344, 0x11223344}))
		Expect(r.Q(arm.Q1)).To(Equal([4]uint32{0x77887788, 0x77887788, 0x77887788, 0x77887788}))
	})

	It("should refine reciprocal estimates with Newton steps", func() {
		m.s.Registers().SetQ(arm.Q1, floats(3, 0.25, 100, -7))
		r := exec(func() {
			m.a.Vrecpeqs(arm.Q0, arm.Q1)
			for k := 0; k < 2; k++ {
				m.a.Vrecpsqs(arm.Q2, arm.Q1, arm.Q0)
				m.a.Vmulqs(arm.Q0, arm.Q0, arm.Q2)
			}
		})
		for k, want := range []float32{1.0 / 3, 4, 0.01, -1.0 / 7} {
			got := math.Float32frombits(r.Q(arm.Q0)[k])
			Expect(got).To(BeNumerically("~", want, math.Abs(float64(want))*1e-5))
		}
	})

	It("should refine reciprocal square root estimates", func() {
		m.s.Registers().SetQ(arm.Q1, floats(4, 2, 0.5, 100))
		r := exec(func() {
			m.a.Vrsqrteqs(arm.Q0, arm.Q1)
			for k := 0; k < 2; k++ {
				m.a.Vmulqs(arm.Q2, arm.Q0, arm.Q1)
				m.a.Vrsqrtsqs(arm.Q2, arm.Q2, arm.Q0)
				m.a.Vmulqs(arm.Q0, arm.Q0, arm.Q2)
			}
		})
		for k, v := range []float64{4, 2, 0.5, 100} {
			want := 1 / math.Sqrt(v)
			got := float64(math.Float32frombits(r.Q(arm.Q0)[k]))
			Expect(got).To(BeNumerically("~", want, want*1e-5))
		}
	})
})
