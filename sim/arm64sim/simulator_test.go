package arm64sim_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/sim"
	"github.com/sarchlab/jitsim/sim/arm64sim"
)

func holds(c arm64.Condition, f sim.Flags) bool {
	switch c {
	case arm64.EQ:
		return f.Z
	case arm64.NE:
		return !f.Z
	case arm64.CS:
		return f.C
	case arm64.CC:
		return !f.C
	case arm64.MI:
		return f.N
	case arm64.PL:
		return !f.N
	case arm64.VS:
		return f.V
	case arm64.VC:
		return !f.V
	case arm64.HI:
		return f.C && !f.Z
	case arm64.LS:
		return !f.C || f.Z
	case arm64.GE:
		return f.N == f.V
	case arm64.LT:
		return f.N != f.V
	case arm64.GT:
		return !f.Z && f.N == f.V
	case arm64.LE:
		return f.Z || f.N != f.V
	default:
		return true
	}
}

var _ = Describe("Simulator", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	Context("setup", func() {
		It("should place both stack pointers at the top of the stack", func() {
			st := m.s.Stack()
			Expect(m.s.Register(arm64.CSP)).To(Equal(st.Top()))
			Expect(m.s.Register(arm64.SP)).To(Equal(st.Top()))
			Expect(m.s.Register(arm64.LR)).To(Equal(sim.BadLR64))
			Expect(st.Top() - st.Limit()).To(Equal(uint64(sim.DefaultStackSize)))
		})

		It("should map a separate stack per simulator sharing memory", func() {
			other, err := arm64sim.New(arm64sim.WithMemory(m.s.Memory()))
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Stack().Region.End()).To(BeNumerically("<=", m.s.Stack().Region.Base))
		})

		It("should reject an invalid configuration", func() {
			c := config.Default()
			c.StackSize = 0
			_, err := arm64sim.New(arm64sim.WithConfig(c))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("register 31", func() {
		It("should read csp where the encoding allows it", func() {
			m.a.Add(arm64.R0, arm64.CSP, arm64.Imm(0))
			m.a.Ret()
			Expect(m.run()).To(Equal(m.s.Stack().Top()))
		})

		It("should discard writes to zr", func() {
			m.a.Adds(arm64.ZR, arm64.R0, arm64.Reg(arm64.R1))
			m.a.Cset(arm64.R0, arm64.EQ)
			m.a.Ret()
			Expect(m.run(5, uint64(math.MaxUint64-4))).To(Equal(uint64(1)))
			Expect(m.s.Register(arm64.ZR)).To(BeZero())
		})

		It("should pass arguments past the eighth on the native stack", func() {
			m.a.Ldr(arm64.R0, arm64.Mem(arm64.CSP, 8))
			m.a.Ret()
			Expect(m.run(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)).To(Equal(uint64(9)))
		})
	})

	Context("calling convention", func() {
		It("should fault when a callee-saved register changes", func() {
			m.a.Movz(arm64.R19, 1, 0)
			m.a.Ret()
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultClobberedRegister))
			Expect(fe.Message).To(HavePrefix("r19"))
		})

		It("should fault when csp is not restored", func() {
			m.a.Sub(arm64.CSP, arm64.CSP, arm64.Imm(16))
			m.a.Ret()
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultClobberedRegister))
			Expect(fe.Message).To(HavePrefix("csp"))
		})

		It("should leave the simulator reusable after a fault", func() {
			m.a.Emit(0)
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultUnknownInstruction))
			Expect(fe.PC).To(Equal(uint64(codeBase)))
			Expect(m.s.Register(arm64.CSP)).To(Equal(m.s.Stack().Top()))
		})
	})

	Context("conditions", func() {
		It("should agree with the condition truth table", func() {
			entries := map[arm64.Condition]int{}
			for c := arm64.EQ; c <= arm64.LE; c++ {
				entries[c] = m.a.CodeSize()
				m.a.Cset(arm64.R0, c)
				m.a.Ret()
			}
			m.load()

			for nzcv := uint32(0); nzcv < 16; nzcv++ {
				f := sim.FlagsFromNZCV(nzcv)
				for c := arm64.EQ; c <= arm64.LE; c++ {
					m.s.SetFlags(f)
					r, err := m.s.Call(codeBase + uint64(entries[c]))
					Expect(err).NotTo(HaveOccurred())
					want := uint64(0)
					if holds(c, f) {
						want = 1
					}
					Expect(r).To(Equal(want), "cond %d flags %04b", c, nzcv)
				}
			}
		})

		It("should chain comparisons with ccmp", func() {
			m.a.Cmp(arm64.R0, arm64.Reg(arm64.R1))
			m.a.Ccmp(arm64.R2, arm64.Reg(arm64.R3), 0, arm64.EQ)
			m.a.Cset(arm64.R0, arm64.EQ)
			m.a.Ret()
			m.load()
			for _, c := range []struct {
				args []uint64
				want uint64
			}{
				{[]uint64{1, 1, 5, 5}, 1},
				{[]uint64{1, 1, 5, 6}, 0},
				{[]uint64{1, 2, 5, 5}, 0},
			} {
				r, err := m.s.Call(codeBase, c.args...)
				Expect(err).NotTo(HaveOccurred())
				Expect(r).To(Equal(c.want), "%v", c.args)
			}
		})

		It("should select with csinc and csneg", func() {
			m.a.Cmp(arm64.R0, arm64.Imm(0))
			m.a.Csneg(arm64.R0, arm64.R0, arm64.R0, arm64.GE)
			m.a.Cinc(arm64.R0, arm64.R0, arm64.GT)
			m.a.Ret()
			m.load()
			for arg, want := range map[uint64]uint64{math.MaxUint64 - 6: 7, 0: 0, 5: 6} {
				r, err := m.s.Call(codeBase, arg)
				Expect(err).NotTo(HaveOccurred())
				Expect(r).To(Equal(want), "%d", int64(arg))
			}
		})
	})

	Context("integer arithmetic", func() {
		It("should set flags on 64-bit adds", func() {
			m.a.Adds(arm64.R0, arm64.R0, arm64.Reg(arm64.R1))
			m.a.Ret()
			Expect(m.run(math.MaxInt64, 1)).To(Equal(uint64(1) << 63))
			Expect(m.s.Flags()).To(Equal(sim.Flags{N: true, V: true}))
		})

		It("should set flags on 32-bit adds and zero the upper word", func() {
			m.a.Addsw(arm64.R0, arm64.R0, arm64.Reg(arm64.R1))
			m.a.Ret()
			Expect(m.run(0xdeadbeefffffffff, 1)).To(BeZero())
			Expect(m.s.Flags()).To(Equal(sim.Flags{Z: true, C: true}))
		})

		It("should propagate carry through adc", func() {
			m.a.Adds(arm64.R0, arm64.R0, arm64.Reg(arm64.R2))
			m.a.Adc(arm64.R1, arm64.R1, arm64.R3)
			m.a.Mov(arm64.R0, arm64.R1)
			m.a.Ret()
			Expect(m.run(math.MaxUint64, 1, 1, 0)).To(Equal(uint64(2)))
		})

		DescribeTable("should divide like the hardware",
			func(signed bool, n, d, want uint64) {
				if signed {
					m.a.Sdiv(arm64.R0, arm64.R0, arm64.R1)
				} else {
					m.a.Udiv(arm64.R0, arm64.R0, arm64.R1)
				}
				m.a.Ret()
				Expect(m.run(n, d)).To(Equal(want))
			},
			Entry("unsigned", false, uint64(100), uint64(7), uint64(14)),
			Entry("unsigned by zero", false, uint64(100), uint64(0), uint64(0)),
			Entry("signed", true, uint64(math.MaxUint64-99), uint64(7), uint64(math.MaxUint64-13)),
			Entry("signed by zero", true, uint64(5), uint64(0), uint64(0)),
			Entry("signed overflow", true, uint64(1)<<63, uint64(math.MaxUint64), uint64(1)<<63),
		)

		It("should compute high products", func() {
			m.a.Smulh(arm64.R2, arm64.R0, arm64.R1)
			m.a.Umulh(arm64.R3, arm64.R0, arm64.R1)
			m.a.Madd(arm64.R0, arm64.R2, arm64.R1, arm64.R3)
			m.a.Ret()
			// smulh(-2, 4) = -1, umulh(2^64-2, 4) = 3, -1*4+3 = -1
			Expect(m.run(math.MaxUint64-1, 4)).To(Equal(uint64(math.MaxUint64)))
		})

		It("should extract and extend bitfields", func() {
			m.a.Ubfx(arm64.R2, arm64.R0, 4, 8)
			m.a.Sbfx(arm64.R3, arm64.R1, 4, 8)
			m.a.Add(arm64.R0, arm64.R2, arm64.Reg(arm64.R3))
			m.a.Ret()
			Expect(m.run(0xabcd, 0x0f80)).To(Equal(uint64(0xbc - 8)))
		})

		It("should sign-extend words and shift", func() {
			m.a.Sxtw(arm64.R0, arm64.R0)
			m.a.Asr(arm64.R0, arm64.R0, 4)
			m.a.Ret()
			Expect(m.run(0x80000000)).To(Equal(uint64(0xfffffffff8000000)))
		})

		It("should count leading zeros and reverse bits", func() {
			m.a.Clz(arm64.R1, arm64.R0)
			m.a.Rbit(arm64.R0, arm64.R0)
			m.a.Add(arm64.R0, arm64.R0, arm64.Reg(arm64.R1))
			m.a.Ret()
			Expect(m.run(1)).To(Equal(uint64(1)<<63 + 63))
		})

		It("should shift by a register modulo the width", func() {
			m.a.Lslv(arm64.R0, arm64.R0, arm64.R1)
			m.a.Ret()
			Expect(m.run(1, 65)).To(Equal(uint64(2)))
		})

		It("should apply logical immediates and bit clears", func() {
			m.a.And(arm64.R0, arm64.R0, arm64.LogicalImm(0xff00ff00ff00ff00, 64))
			m.a.Bic(arm64.R0, arm64.R0, arm64.Reg(arm64.R1))
			m.a.Ret()
			Expect(m.run(math.MaxUint64, 0xff00)).To(Equal(uint64(0xff00ff00ff000000)))
		})
	})

	Context("memory", func() {
		It("should sign- and zero-extend narrow loads", func() {
			Expect(m.s.Memory().Write32(dataBase, 0x80808080)).To(Succeed())
			m.a.Ldr(arm64.R1, arm64.Mem(arm64.R0, 0), arm64.Byte)
			m.a.Ldr(arm64.R2, arm64.Mem(arm64.R0, 0), arm64.UnsignedHalfword)
			m.a.Ldr(arm64.R3, arm64.Mem(arm64.R0, 0), arm64.Word)
			m.a.Str(arm64.R1, arm64.Mem(arm64.R0, 8))
			m.a.Str(arm64.R2, arm64.Mem(arm64.R0, 16))
			m.a.Str(arm64.R3, arm64.Mem(arm64.R0, 24))
			m.a.Ret()
			m.run(dataBase)
			for off, want := range map[uint64]uint64{
				8:  0xffffffffffffff80,
				16: 0x8080,
				24: 0xffffffff80808080,
			} {
				v, err := m.s.Memory().Read64(dataBase + off)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal(want), "offset %d", off)
			}
		})

		It("should write back post-indexed stores", func() {
			m.a.Str(arm64.R1, arm64.MemMode(arm64.R0, 8, arm64.PostIndex))
			m.a.Str(arm64.R2, arm64.MemMode(arm64.R0, 8, arm64.PostIndex))
			m.a.Ldr(arm64.R1, arm64.MemMode(arm64.R0, -8, arm64.PreIndex))
			m.a.Ret()
			Expect(m.run(dataBase, 11, 22)).To(Equal(uint64(dataBase + 8)))
			Expect(m.s.Register(arm64.R1)).To(Equal(uint64(22)))
			v, err := m.s.Memory().Read64(dataBase)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(11)))
		})

		It("should scale register offsets", func() {
			Expect(m.s.Memory().Write64(dataBase+24, 0x1234)).To(Succeed())
			m.a.Ldr(arm64.R0, arm64.MemIndex(arm64.R0, arm64.R1, arm64.UXTX, true))
			m.a.Ret()
			Expect(m.run(dataBase, 3)).To(Equal(uint64(0x1234)))
		})

		It("should transfer pairs", func() {
			m.a.Stp(arm64.R1, arm64.R2, arm64.MemMode(arm64.R0, 16, arm64.PairOffset))
			m.a.Ldp(arm64.R3, arm64.R4, arm64.MemMode(arm64.R0, 16, arm64.PairOffset))
			m.a.Sub(arm64.R0, arm64.R4, arm64.Reg(arm64.R3))
			m.a.Ret()
			Expect(m.run(dataBase, 5, 12)).To(Equal(uint64(7)))
		})

		It("should load a literal placed after the code", func() {
			m.a.Ldr(arm64.R0, arm64.PCRelative(8))
			m.a.Ret()
			m.a.Emit(0x89abcdef)
			m.a.Emit(0x01234567)
			Expect(m.run()).To(Equal(uint64(0x0123456789abcdef)))
		})

		It("should fault on an unmapped address", func() {
			m.a.Ldr(arm64.R0, arm64.Mem(arm64.R0, 0))
			m.a.Ret()
			fe := faultOf(m.runErr(0x900000))
			Expect(fe.Kind).To(Equal(sim.FaultIllegalAccess))
			Expect(fe.Addr).To(Equal(uint64(0x900000)))
		})

		Context("alignment", func() {
			emitPair := func(m *machine) {
				m.a.Ldp(arm64.R1, arm64.R2, arm64.MemMode(arm64.R0, 0, arm64.PairOffset))
				m.a.Ret()
			}

			It("should allow unaligned pairs by default", func() {
				emitPair(m)
				Expect(m.runErr(dataBase + 4)).To(Succeed())
			})

			It("should fault on unaligned pairs when strict", func() {
				c := config.Default()
				c.StrictAlignment = true
				m = newMachine(arm64sim.WithConfig(c))
				emitPair(m)
				fe := faultOf(m.runErr(dataBase + 4))
				Expect(fe.Kind).To(Equal(sim.FaultUnalignedAccess))
				Expect(fe.Addr).To(Equal(uint64(dataBase + 4)))
			})
		})
	})

	Context("exclusive access", func() {
		var monitor *sim.Monitor

		BeforeEach(func() {
			monitor = sim.NewMonitor()
			m = newMachine(arm64sim.WithMonitor(monitor))
		})

		emitPair := func() {
			m.a.Ldxr(arm64.R2, arm64.R0)
			m.a.Stxr(arm64.R3, arm64.R1, arm64.R0)
			m.a.Mov(arm64.R0, arm64.R3)
			m.a.Ret()
		}

		It("should succeed on an uncontended reservation", func() {
			emitPair()
			Expect(m.run(dataBase, 42)).To(BeZero())
			v, err := m.s.Memory().Read64(dataBase)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(42)))
		})

		It("should fail without a reservation", func() {
			m.a.Stxr(arm64.R3, arm64.R1, arm64.R0)
			m.a.Mov(arm64.R0, arm64.R3)
			m.a.Ret()
			Expect(m.run(dataBase, 42)).To(Equal(uint64(1)))
			v, err := m.s.Memory().Read64(dataBase)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeZero())
		})

		It("should fail after another context stores to the address", func() {
			emitPair()
			other := sim.NewExclusiveState(monitor)
			m.s.StopAfter(1)
			m.s.Attach(sim.DebuggerFunc(func(string) error {
				other.Load(dataBase, 8, 0)
				Expect(other.Store(dataBase, 8, 0)).To(BeTrue())
				return nil
			}))
			Expect(m.run(dataBase, 42)).To(Equal(uint64(1)))
		})

		It("should fail after clrex", func() {
			m.a.Ldxr(arm64.R2, arm64.R0)
			m.a.Clrex()
			m.a.Stxr(arm64.R3, arm64.R1, arm64.R0)
			m.a.Mov(arm64.R0, arm64.R3)
			m.a.Ret()
			Expect(m.run(dataBase, 42)).To(Equal(uint64(1)))
		})

		It("should fault on an unaligned exclusive even when lenient", func() {
			emitPair()
			fe := faultOf(m.runErr(dataBase+4, 42))
			Expect(fe.Kind).To(Equal(sim.FaultUnalignedAccess))
			Expect(fe.PC).To(Equal(uint64(codeBase)))
		})
	})

	Context("instruction limits", func() {
		BeforeEach(func() {
			m.a.Movz(arm64.R0, 1, 0)
			m.a.Movz(arm64.R0, 2, 0)
			m.a.Movz(arm64.R0, 3, 0)
			m.a.Ret()
		})

		It("should stop without a debugger", func() {
			m.s.StopAfter(2)
			err := m.runErr()
			Expect(errors.Is(err, sim.ErrMaxInstructions)).To(BeTrue())
			Expect(m.s.InstructionCount()).To(Equal(uint64(2)))
		})

		It("should hand control to the debugger once", func() {
			var reasons []string
			m.s.StopAfter(2)
			m.s.Attach(sim.DebuggerFunc(func(reason string) error {
				reasons = append(reasons, reason)
				Expect(m.s.PC()).To(Equal(uint64(codeBase + 8)))
				return nil
			}))
			Expect(m.run()).To(Equal(uint64(3)))
			Expect(reasons).To(Equal([]string{"stopped after 2 instructions"}))
		})
	})

	Context("register file", func() {
		It("should zero the upper bits on scalar FP writes", func() {
			r := m.s.Registers()
			r.SetQ(arm64.V1, [2]uint64{math.MaxUint64, math.MaxUint64})
			r.SetSFloat(arm64.V1, 2)
			Expect(r.D(arm64.V1)).To(Equal(uint64(math.Float32bits(2))))
			Expect(r.Q(arm64.V1)[1]).To(BeZero())
			r.SetDFloat(arm64.V1, 0.5)
			Expect(r.S(arm64.V1)).To(BeZero())
			Expect(r.Lane32(arm64.V1, 1)).To(Equal(uint32(math.Float64bits(0.5) >> 32)))
		})

		It("should treat 31 as zr or csp depending on the operand", func() {
			r := m.s.Registers()
			r.SetX(31, 7, false)
			Expect(r.X(31, false)).To(BeZero())
			Expect(r.X(31, true)).To(Equal(m.s.Stack().Top()))
			r.SetW(0, 0xffffffff, false)
			Expect(r.X(0, false)).To(Equal(uint64(0xffffffff)))
		})
	})
})
