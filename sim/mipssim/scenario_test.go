package mipssim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
	"github.com/sarchlab/jitsim/sim/mipssim"
)

var _ = Describe("Scenarios", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	It("should materialize a wide constant in two instructions", func() {
		m.a.LoadImmediate(mips.V0, 0x12345678)
		m.a.Ret()
		Expect(m.a.CodeSize()).To(Equal(4 * mips.InstrSize))
		Expect(m.run()).To(Equal(uint32(0x12345678)))
	})

	Context("write barrier", func() {
		const (
			oldObject = dataBase + 0x000 + asm.HeapObjectTag
			newObject = dataBase + 0x104 + asm.HeapObjectTag
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
			m.a = mips.New(mips.WithStubs(stubs))
			m.a.StoreIntoObjectOffset(mips.A0, 8, mips.A1, true)
			m.a.Ret()
			m.load()
		})

		store := func(value uint64) {
			_, err := m.s.Call(codeBase, oldObject, value)
			Expect(err).NotTo(HaveOccurred())
			v, err := m.s.Memory().Read32(dataBase + 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(value)))
		}

		It("should record old-to-new stores", func() {
			store(newObject)
			Expect(recorded).To(Equal([]uint64{oldObject}))
		})

		It("should filter old values and small integers", func() {
			store(oldValue)
			store(uint64(asm.NewSmi(21).Raw()))
			Expect(recorded).To(BeEmpty())
		})

		It("should keep the object and value registers across the store buffer call", func() {
			m.a = mips.New(mips.WithStubs(stubs))
			m.a.StoreIntoObjectOffset(mips.A0, 8, mips.A1, true)
			m.a.Subu(mips.V0, mips.A1, mips.A0)
			m.a.Ret()
			Expect(m.run(oldObject, newObject)).To(Equal(uint32(newObject - oldObject)))
			Expect(recorded).To(Equal([]uint64{oldObject}))
		})

		It("should keep a value held in the first argument register", func() {
			m.a = mips.New(mips.WithStubs(stubs))
			m.a.StoreIntoObjectOffset(mips.A1, 8, mips.A0, true)
			m.a.Move(mips.V0, mips.A0)
			m.a.Ret()
			Expect(m.run(newObject, oldObject)).To(Equal(uint32(newObject)))
			v, err := m.s.Memory().Read32(dataBase + 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(newObject)))
			Expect(recorded).To(Equal([]uint64{oldObject}))
		})
	})

	Context("redirected host calls", func() {
		var hook *logtest.Hook

		BeforeEach(func() {
			var l *logrus.Logger
			l, hook = logtest.NewNullLogger()
			l.SetLevel(logrus.DebugLevel)
			m = newMachine(mipssim.WithLogger(l))
		})

		It("should marshal register arguments and zap caller-saved registers", func() {
			add := sim.Redirect(&sim.HostFunction{
				Name:     "Add",
				Kind:     sim.LeafRuntimeCall,
				ArgCount: 2,
				Fn: func(c *sim.HostCall) sim.CallResult {
					return sim.CallResult{Value: c.Args[0] + c.Args[1]}
				},
			})
			entry := &asm.RuntimeEntry{Name: "Add", Address: add.Address(), IsLeaf: true, ArgumentCount: 2}
			regs := mips.Regs(mips.S0, mips.RA)
			m.a.PushList(regs)
			m.a.Addiu(mips.S0, mips.ZR, 5)
			m.a.CallRuntime(entry, 2)
			m.a.Addu(mips.V0, mips.V0, mips.S0)
			m.a.PopList(regs)
			m.a.Ret()

			Expect(m.run(20, 22)).To(Equal(uint32(47)))
			for _, r := range []mips.Register{mips.A1, mips.A2, mips.A3, mips.T0} {
				Expect(uint64(m.s.Register(r))).To(Equal(sim.ZapValue32), "%s", r)
			}
			Expect(uint64(m.s.Registers().HI)).To(Equal(sim.ZapValue32))
			Expect(m.s.Registers().D(mips.D7)).To(Equal(uint64(sim.ZapValue32)<<32 | sim.ZapValue32))

			var entries []*logrus.Entry
			for _, e := range hook.AllEntries() {
				if e.Data["redirect"] == "Add" {
					entries = append(entries, e)
				}
			}
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Data["kind"]).To(Equal("leaf"))
			Expect(entries[0].Data["arch"]).To(Equal("mips"))
		})

		It("should read leaf arguments past the fourth from their stack slots", func() {
			sum := sim.Redirect(&sim.HostFunction{
				Name:     "Sum6",
				Kind:     sim.LeafRuntimeCall,
				ArgCount: 6,
				Fn: func(c *sim.HostCall) sim.CallResult {
					var total uint64
					for _, a := range c.Args {
						total += a
					}
					return sim.CallResult{Value: total}
				},
			})
			entry := &asm.RuntimeEntry{Name: "Sum6", Address: sum.Address(), IsLeaf: true, ArgumentCount: 6}
			m.a.Push(mips.RA)
			m.a.Addiu(mips.SP, mips.SP, -24)
			m.a.Addiu(mips.T0, mips.ZR, 5)
			m.a.Sw(mips.T0, mips.Mem(mips.SP, 16))
			m.a.Addiu(mips.T0, mips.ZR, 6)
			m.a.Sw(mips.T0, mips.Mem(mips.SP, 20))
			m.a.CallRuntime(entry, 6)
			m.a.Addiu(mips.SP, mips.SP, 24)
			m.a.Pop(mips.RA)
			m.a.Ret()
			Expect(m.run(1, 2, 3, 4)).To(Equal(uint32(21)))
		})

		It("should route non-leaf runtime calls through the call stub", func() {
			double := sim.Redirect(&sim.HostFunction{
				Name: "Double",
				Kind: sim.RuntimeCall,
				Fn: func(c *sim.HostCall) sim.CallResult {
					v, err := c.Memory.Read32(c.ArgumentsPtr)
					Expect(err).NotTo(HaveOccurred())
					return sim.CallResult{Value: 2 * uint64(v)}
				},
			})
			var counts []uint32
			stub := sim.Redirect(&sim.HostFunction{
				Name: "CallToRuntime",
				Kind: sim.RuntimeCall,
				Fn: func(c *sim.HostCall) sim.CallResult {
					counts = append(counts, m.s.Register(mips.RuntimeArgCountReg))
					target, ok := sim.RedirectionAt(uint64(m.s.Register(mips.RuntimeEntryReg)))
					Expect(ok).To(BeTrue())
					return target.Function().Fn(c)
				},
			})
			m.a = mips.New(mips.WithStubs(asm.Stubs{
				CallToRuntime: asm.NewExternalLabel("CallToRuntime", stub.Address()),
			}))
			entry := &asm.RuntimeEntry{Name: "Double", Address: double.Address()}
			regs := mips.Regs(mips.S4, mips.S5, mips.RA)
			m.a.PushList(regs)
			m.a.CallRuntime(entry, 1)
			m.a.PopList(regs)
			m.a.Ret()

			Expect(m.s.Memory().Write32(dataBase, 21)).To(Succeed())
			Expect(m.run(dataBase)).To(Equal(uint32(42)))
			Expect(counts).To(Equal([]uint32{1}))
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
				m.a.Push(mips.RA)
				m.a.BranchLink(asm.NewExternalLabel("Pair", pair.Address()))
				m.a.Pop(mips.RA)
				m.a.Ret()
				Expect(m.run(41)).To(Equal(uint32(42)))
				Expect(m.s.Register(mips.V1)).To(Equal(uint32(high)))
			},
			Entry("with a high word", uint64(99)),
			Entry("with a zero high word", uint64(0)),
		)

		It("should pass doubles to float leaf calls in f12", func() {
			half := sim.Redirect(&sim.HostFunction{
				Name:     "Half",
				Kind:     sim.LeafFloatRuntimeCall,
				ArgCount: 1,
				Fn: func(c *sim.HostCall) sim.CallResult {
					return sim.CallResult{Float: c.FloatArgs[0] / 2}
				},
			})
			m.a.Push(mips.RA)
			m.a.BranchLink(asm.NewExternalLabel("Half", half.Address()))
			m.a.Pop(mips.RA)
			m.a.Ret()
			m.load()
			r, err := m.s.CallFloat(codeBase, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(2.5))
		})

		It("should pass the native arguments block and target", func() {
			var got []uint64
			native := sim.Redirect(&sim.HostFunction{
				Name: "Native",
				Kind: sim.NativeCall,
				Fn: func(c *sim.HostCall) sim.CallResult {
					got = append(got, c.ArgumentsPtr, c.Target)
					return sim.CallResult{}
				},
			})
			m.a.Push(mips.RA)
			m.a.BranchLink(asm.NewExternalLabel("Native", native.Address()))
			m.a.Pop(mips.RA)
			m.a.Ret()
			m.run(dataBase, 0x4000)
			Expect(got).To(Equal([]uint64{dataBase, 0x4000}))
		})

		It("should unwind to the frame the host names", func() {
			handler := asm.NewLabel()
			var s *mipssim.Simulator
			throw := sim.Redirect(&sim.HostFunction{
				Name: "Throw",
				Kind: sim.RuntimeCall,
				Fn: func(c *sim.HostCall) sim.CallResult {
					return sim.CallResult{Unwind: &sim.UnwindRequest{
						PC:         codeBase + uint64(handler.Position()),
						SP:         uint64(s.Register(mips.SP)) + 8,
						FP:         uint64(s.Register(mips.FP)),
						Exception:  0x50,
						StackTrace: 0x05,
					}}
				},
			})
			s = m.s
			regs := mips.Regs(mips.S0, mips.RA)
			m.a.PushList(regs)
			m.a.BranchLink(asm.NewExternalLabel("Throw", throw.Address()))
			m.a.Move(mips.V0, mips.ZR)
			m.a.PopList(regs)
			m.a.Ret()
			m.a.Bind(handler)
			m.a.Addu(mips.V0, mips.V0, mips.V1)
			end := uint32(sim.EndSimulatingPC32)
			m.a.LoadImmediate(mips.RA, int32(end))
			m.a.Ret()
			Expect(m.run()).To(Equal(uint32(0x55)))
		})

		It("should fault on a trap address nothing is bound to", func() {
			unbound := uint32(sim.RedirectionLimit - sim.RedirectionStride)
			m.a.LoadImmediate(mips.T9, int32(unbound))
			m.a.Jr(mips.T9)
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultIllegalAccess))
			Expect(fe.PC).To(Equal(uint64(unbound)))
		})

		It("should trace instructions and their delay slots at debug level", func() {
			l, h := logtest.NewNullLogger()
			l.SetLevel(logrus.DebugLevel)
			c := config.Default()
			c.Trace = true
			m = newMachine(mipssim.WithLogger(l), mipssim.WithConfig(c))
			m.a.Addiu(mips.V0, mips.ZR, 3)
			m.a.Ret()
			Expect(m.run()).To(Equal(uint32(3)))
			Expect(h.AllEntries()).To(HaveLen(3))
			Expect(h.AllEntries()[0].Data["pc"]).To(Equal("0x00010000"))
			Expect(h.AllEntries()[0].Message).To(HavePrefix("addiu"))
			Expect(h.AllEntries()[2].Data["pc"]).To(Equal("0x00010008"))
		})
	})
})
