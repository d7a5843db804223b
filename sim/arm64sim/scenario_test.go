package arm64sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/sim"
	"github.com/sarchlab/jitsim/sim/arm64sim"
)

var _ = Describe("Scenarios", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	It("should materialize a wide constant", func() {
		m.a.LoadImmediate(arm64.R0, 0x12345678)
		m.a.Ret()
		Expect(m.a.CodeSize()).To(Equal(3 * arm64.InstrSize))
		Expect(m.run()).To(Equal(uint64(0x12345678)))
	})

	DescribeTable("should load immediates of every shape",
		func(v int64) {
			m.a.LoadImmediate(arm64.R0, v)
			m.a.Ret()
			Expect(m.run()).To(Equal(uint64(v)))
		},
		Entry("zero", int64(0)),
		Entry("logical pattern", int64(0x00ff00ff00ff00ff)),
		Entry("mostly ones", int64(-0x123456789)),
		Entry("all halfwords", int64(0x1234567887654321)),
		Entry("minus one", int64(-1)),
	)

	It("should take a forward branch", func() {
		skip := asm.NewLabel()
		m.a.Movz(arm64.R0, 1, 0)
		m.a.B(skip)
		m.a.Movz(arm64.R0, 2, 0)
		m.a.Bind(skip)
		m.a.Add(arm64.R0, arm64.R0, arm64.Imm(10))
		m.a.Ret()
		Expect(m.run()).To(Equal(uint64(11)))
	})

	It("should count down a loop", func() {
		loop := asm.NewLabel()
		m.a.Movz(arm64.R1, 0, 0)
		m.a.Bind(loop)
		m.a.Add(arm64.R1, arm64.R1, arm64.Reg(arm64.R0))
		m.a.Subs(arm64.R0, arm64.R0, arm64.Imm(1))
		m.a.B(loop, arm64.NE)
		m.a.Mov(arm64.R0, arm64.R1)
		m.a.Ret()
		Expect(m.run(10)).To(Equal(uint64(55)))
	})

	Context("write barrier", func() {
		const (
			oldObject = dataBase + 0x000 + asm.HeapObjectTag
			newObject = dataBase + 0x108 + asm.HeapObjectTag
			oldValue  = dataBase + 0x200 + asm.HeapObjectTag
		)
		var (
			recorded []uint64
			stubs    asm.Stubs
		)

		BeforeEach(func() {
			recorded = nil
			stub := sim.Redirect(&sim.HostFunction{
				Name:     "UpdateStoreBuffer",
				Kind:     sim.LeafRuntimeCall,
				ArgCount: 1,
				Fn: func(c *sim.HostCall) sim.CallResult {
					recorded = append(recorded, c.Args[0])
					return sim.CallResult{}
				},
			})
			stubs = asm.Stubs{
				UpdateStoreBuffer: asm.NewExternalLabel("UpdateStoreBuffer", stub.Address()),
			}
			m.a = arm64.New(arm64.WithStubs(stubs))
			m.a.StoreIntoObjectOffset(arm64.R0, 8, arm64.R1, true)
			m.a.Ret()
			m.load()
		})

		store := func(value uint64) {
			_, err := m.s.Call(codeBase, oldObject, value)
			Expect(err).NotTo(HaveOccurred())
			v, err := m.s.Memory().Read64(dataBase + 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(value))
		}

		It("should record old-to-new stores", func() {
			store(newObject)
			Expect(recorded).To(Equal([]uint64{oldObject}))
		})

		It("should filter old values and small integers", func() {
			store(oldValue)
			store(asm.NewSmi(21).Raw())
			Expect(recorded).To(BeEmpty())
		})

		It("should keep the object and value registers across the store buffer call", func() {
			m.a = arm64.New(arm64.WithStubs(stubs))
			m.a.StoreIntoObjectOffset(arm64.R0, 8, arm64.R1, true)
			m.a.Sub(arm64.R0, arm64.R1, arm64.Reg(arm64.R0))
			m.a.Ret()
			Expect(m.run(oldObject, newObject)).To(Equal(uint64(newObject - oldObject)))
			Expect(recorded).To(Equal([]uint64{oldObject}))
		})

		It("should keep the other volatile registers across the store buffer call", func() {
			m.a = arm64.New(arm64.WithStubs(stubs))
			m.a.LoadImmediate(arm64.R9, 17)
			m.a.LoadImmediate(arm64.R14, 25)
			m.a.StoreIntoObjectOffset(arm64.R0, 8, arm64.R1, true)
			m.a.Add(arm64.R0, arm64.R9, arm64.Reg(arm64.R14))
			m.a.Ret()
			Expect(m.run(oldObject, newObject)).To(Equal(uint64(42)))
			Expect(recorded).To(HaveLen(1))
		})
	})

	Context("redirected host calls", func() {
		var hook *logtest.Hook

		BeforeEach(func() {
			var l *logrus.Logger
			l, hook = logtest.NewNullLogger()
			l.SetLevel(logrus.DebugLevel)
			m = newMachine(arm64sim.WithLogger(l))
		})

		It("should marshal two arguments and zap caller-saved registers", func() {
			add := sim.Redirect(&sim.HostFunction{
				Name:     "Add",
				Kind:     sim.LeafRuntimeCall,
				ArgCount: 2,
				Fn: func(c *sim.HostCall) sim.CallResult {
					return sim.CallResult{Value: c.Args[0] + c.Args[1]}
				},
			})
			entry := &asm.RuntimeEntry{Name: "Add", Address: add.Address(), IsLeaf: true, ArgumentCount: 2}
			m.a.PushPair(arm64.R19, arm64.LR)
			m.a.Movz(arm64.R19, 5, 0)
			m.a.CallRuntime(entry, 2)
			m.a.Add(arm64.R0, arm64.R0, arm64.Reg(arm64.R19))
			m.a.PopPair(arm64.R19, arm64.LR)
			m.a.Ret()

			Expect(m.run(20, 22)).To(Equal(uint64(47)))
			for _, r := range []arm64.Register{arm64.R1, arm64.R9, arm64.R14, arm64.IP1} {
				Expect(m.s.Register(r)).To(Equal(sim.ZapValue64), "%s", r)
			}
			Expect(m.s.Registers().D(arm64.V7)).To(Equal(sim.ZapValue64))
			Expect(m.s.Registers().D(arm64.V20)).To(Equal(sim.ZapValue64))

			var entries []*logrus.Entry
			for _, e := range hook.AllEntries() {
				if e.Data["redirect"] == "Add" {
					entries = append(entries, e)
				}
			}
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Data["kind"]).To(Equal("leaf"))
			Expect(entries[0].Data["arch"]).To(Equal("arm64"))
		})

		It("should leave callee-saved FP registers alone", func() {
			noop := sim.Redirect(&sim.HostFunction{
				Name: "Noop",
				Kind: sim.LeafRuntimeCall,
				Fn:   func(*sim.HostCall) sim.CallResult { return sim.CallResult{} },
			})
			m.s.Registers().SetDFloat(arm64.V8, 1.25)
			m.a.PushPair(arm64.FP, arm64.LR)
			m.a.BranchLink(asm.NewExternalLabel("Noop", noop.Address()))
			m.a.PopPair(arm64.FP, arm64.LR)
			m.a.Ret()
			m.run()
			Expect(m.s.Registers().DFloat(arm64.V8)).To(Equal(1.25))
		})

		It("should read leaf arguments past the eighth from the native stack", func() {
			sum := sim.Redirect(&sim.HostFunction{
				Name:     "Sum10",
				Kind:     sim.LeafRuntimeCall,
				ArgCount: 10,
				Fn: func(c *sim.HostCall) sim.CallResult {
					var t uint64
					for _, a := range c.Args {
						t += a
					}
					return sim.CallResult{Value: t}
				},
			})
			m.a.Branch(asm.NewExternalLabel("Sum10", sum.Address()))
			Expect(m.run(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)).To(Equal(uint64(55)))
		})

		DescribeTable("should return the second word of runtime calls",
			func(high uint64) {
				pair := sim.Redirect(&sim.HostFunction{
					Name: "Pair",
					Kind: sim.RuntimeCall,
					Fn: func(c *sim.HostCall) sim.CallResult {
						return sim.CallResult{Value: c.ArgumentsPtr + 1, Value2: high}
					},
				})
				m.a.PushPair(arm64.FP, arm64.LR)
				m.a.BranchLink(asm.NewExternalLabel("Pair", pair.Address()))
				m.a.PopPair(arm64.FP, arm64.LR)
				m.a.Ret()
				Expect(m.run(41)).To(Equal(uint64(42)))
				Expect(m.s.Register(arm64.R1)).To(Equal(uint64(high)))
			},
			Entry("with a high word", uint64(99)),
			Entry("with a zero high word", uint64(0)),
		)

		It("should pass doubles in D registers to float leaf calls", func() {
			scale := sim.Redirect(&sim.HostFunction{
				Name:     "Scale",
				Kind:     sim.LeafFloatRuntimeCall,
				ArgCount: 2,
				Fn: func(c *sim.HostCall) sim.CallResult {
					return sim.CallResult{Float: c.FloatArgs[0] * c.FloatArgs[1]}
				},
			})
			m.a.PushPair(arm64.FP, arm64.LR)
			m.a.BranchLink(asm.NewExternalLabel("Scale", scale.Address()))
			m.a.PopPair(arm64.FP, arm64.LR)
			m.a.Ret()
			m.load()
			r, err := m.s.CallFloat(codeBase, 2.5, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(10.0))
		})

		It("should unwind to the frame the host names", func() {
			handler := asm.NewLabel()
			var s *arm64sim.Simulator
			throw := sim.Redirect(&sim.HostFunction{
				Name: "Throw",
				Kind: sim.RuntimeCall,
				Fn: func(c *sim.HostCall) sim.CallResult {
					return sim.CallResult{Unwind: &sim.UnwindRequest{
						PC:         codeBase + uint64(handler.Position()),
						SP:         s.Register(arm64.SP) + 16,
						FP:         s.Register(arm64.FP),
						Exception:  0x50,
						StackTrace: 0x05,
					}}
				},
			})
			s = m.s
			m.a.PushPair(arm64.FP, arm64.LR)
			m.a.BranchLink(asm.NewExternalLabel("Throw", throw.Address()))
			m.a.Movz(arm64.R0, 0, 0)
			m.a.PopPair(arm64.FP, arm64.LR)
			m.a.Ret()
			m.a.Bind(handler)
			m.a.Add(arm64.R0, arm64.R0, arm64.Reg(arm64.R1))
			end := sim.EndSimulatingPC64
			m.a.LoadImmediate(arm64.LR, int64(end))
			m.a.Ret()
			Expect(m.run()).To(Equal(uint64(0x55)))
			Expect(m.s.StackPointer()).To(Equal(m.s.Stack().Top()))
		})

		It("should fault on a trap address nothing is bound to", func() {
			unbound := sim.RedirectionLimit - sim.RedirectionStride
			m.a.LoadImmediate(arm64.TMP, int64(unbound))
			m.a.Br(arm64.TMP)
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultIllegalAccess))
			Expect(fe.PC).To(Equal(unbound))
		})

		It("should trace instructions at debug level", func() {
			l, h := logtest.NewNullLogger()
			l.SetLevel(logrus.DebugLevel)
			c := config.Default()
			c.Trace = true
			m = newMachine(arm64sim.WithLogger(l), arm64sim.WithConfig(c))
			m.a.Movz(arm64.R0, 3, 0)
			m.a.Ret()
			Expect(m.run()).To(Equal(uint64(3)))
			Expect(h.AllEntries()).To(HaveLen(2))
			Expect(h.AllEntries()[0].Data["pc"]).To(Equal("0x0000000000010000"))
			Expect(h.AllEntries()[0].Message).To(HavePrefix("mov"))
		})
	})
})
