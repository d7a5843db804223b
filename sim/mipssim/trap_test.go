package mipssim_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

var _ = Describe("Traps", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	Context("stop messages", func() {
		BeforeEach(func() {
			m.a.Addiu(mips.V0, mips.ZR, 1)
			m.a.Stop("bad mips state")
			m.a.Addiu(mips.V0, mips.ZR, 7)
			m.a.Ret()
		})

		It("should lay the message id out before the trap", func() {
			words := m.a.Words()
			Expect(mips.Instr(words[4]).BreakCode()).To(Equal(uint32(mips.StopMessageBreak)))
			msg, ok := asm.StopMessage(words[3])
			Expect(ok).To(BeTrue())
			Expect(msg).To(Equal("bad mips state"))
		})

		It("should print the message and fail without a debugger", func() {
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultStop))
			Expect(fe.Message).To(Equal("bad mips state"))
			Expect(fe.PC).To(Equal(uint64(codeBase + 4*mips.InstrSize)))
			Expect(m.stdout.String()).To(Equal("Simulator hit stop: bad mips state\n"))
		})

		It("should resume after the trap when the debugger continues", func() {
			var pcs []uint64
			m.s.Attach(sim.DebuggerFunc(func(reason string) error {
				Expect(reason).To(Equal("bad mips state"))
				pcs = append(pcs, m.s.PC())
				return nil
			}))
			Expect(m.run()).To(Equal(uint32(7)))
			Expect(pcs).To(Equal([]uint64{codeBase + 5*mips.InstrSize}))
		})
	})

	Context("breakpoints", func() {
		BeforeEach(func() {
			m.a.Addiu(mips.V0, mips.ZR, 1)
			m.a.Addiu(mips.V0, mips.V0, 1)
			m.a.Addiu(mips.V0, mips.V0, 2)
			m.a.Ret()
			m.load()
		})

		It("should execute the patched instruction after the debugger returns", func() {
			Expect(m.s.SetBreakpoint(codeBase + 4)).To(Succeed())
			hits := 0
			m.s.Attach(sim.DebuggerFunc(func(reason string) error {
				hits++
				Expect(reason).To(ContainSubstring("0x00010004"))
				Expect(m.s.PC()).To(Equal(uint64(codeBase + 4)))
				word, err := m.s.Memory().Read32(codeBase + 4)
				Expect(err).NotTo(HaveOccurred())
				Expect(mips.Instr(word).Opcode()).To(Equal(mips.ADDIU))
				return nil
			}))

			for run := 1; run <= 2; run++ {
				r, err := m.s.Call(codeBase)
				Expect(err).NotTo(HaveOccurred())
				Expect(r).To(Equal(uint64(4)))
				Expect(hits).To(Equal(run))
			}
			addr, ok := m.s.Breakpoint()
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal(uint64(codeBase + 4)))
		})

		It("should not re-execute an instruction the debugger stepped over", func() {
			Expect(m.s.SetBreakpoint(codeBase + 4)).To(Succeed())
			m.s.Attach(sim.DebuggerFunc(func(string) error {
				return m.s.Step()
			}))
			r, err := m.s.Call(codeBase)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(uint64(4)))
		})

		It("should allow only one breakpoint and restore the word when cleared", func() {
			Expect(m.s.SetBreakpoint(codeBase + 4)).To(Succeed())
			Expect(m.s.SetBreakpoint(codeBase + 8)).To(MatchError(sim.ErrBreakpointInUse))
			Expect(m.s.ClearBreakpoint()).To(Succeed())
			_, ok := m.s.Breakpoint()
			Expect(ok).To(BeFalse())
			r, err := m.s.Call(codeBase)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(uint64(4)))
		})

		It("should refuse a misaligned address", func() {
			Expect(m.s.SetBreakpoint(codeBase + 2)).NotTo(Succeed())
		})

		It("should be fatal without a debugger", func() {
			Expect(m.s.SetBreakpoint(codeBase + 8)).To(Succeed())
			_, err := m.s.Call(codeBase)
			fe := faultOf(err)
			Expect(fe.Kind).To(Equal(sim.FaultBreakpoint))
			Expect(fe.PC).To(Equal(uint64(codeBase + 8)))
		})

		It("should propagate a debugger quit", func() {
			Expect(m.s.SetBreakpoint(codeBase + 8)).To(Succeed())
			m.s.Attach(sim.DebuggerFunc(func(string) error { return sim.ErrDebuggerQuit }))
			_, err := m.s.Call(codeBase)
			Expect(errors.Is(err, sim.ErrDebuggerQuit)).To(BeTrue())
		})
	})

	It("should step over a breakpoint planted in a delay slot", func() {
		done := asm.NewLabel()
		m.a.Addiu(mips.V0, mips.ZR, 1)
		m.a.B(done)
		m.a.Delay().Addiu(mips.V0, mips.V0, 10)
		m.a.Addiu(mips.V0, mips.V0, 100)
		m.a.Bind(done)
		m.a.Ret()
		m.load()
		Expect(m.s.SetBreakpoint(codeBase + 8)).To(Succeed())
		r, err := m.s.Call(codeBase)
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(uint64(11)))
	})

	It("should stop at compiled-in breaks and resume after them", func() {
		m.a.Addiu(mips.V0, mips.ZR, 5)
		m.a.Breakpoint()
		m.a.Break(0x42)
		m.a.Ret()
		var reasons []string
		m.s.Attach(sim.DebuggerFunc(func(reason string) error {
			reasons = append(reasons, reason)
			return nil
		}))
		Expect(m.run()).To(Equal(uint32(5)))
		Expect(reasons).To(HaveLen(2))
		Expect(reasons[0]).To(ContainSubstring("breakpoint at 0x00010004"))
		Expect(reasons[1]).To(ContainSubstring("break 0x42"))
	})

	Context("debugger view", func() {
		It("should look registers up by name, number and alias", func() {
			m.s.SetRegister(mips.THR, 0x1234)
			m.s.SetRegister(mips.SP, 0x8000)

			v, ok := m.s.RegisterByName("s3")
			Expect(ok).To(BeTrue())
			Expect(v.Name).To(Equal("thr"))
			Expect(v.Bits).To(Equal(uint64(0x1234)))

			v, ok = m.s.RegisterByName("$29")
			Expect(ok).To(BeTrue())
			Expect(v.Name).To(Equal("sp"))
			Expect(v.Bits).To(Equal(uint64(0x8000)))

			v, ok = m.s.RegisterByName("r19")
			Expect(ok).To(BeTrue())
			Expect(v.Name).To(Equal("thr"))

			_, ok = m.s.RegisterByName("x5")
			Expect(ok).To(BeFalse())
			_, ok = m.s.RegisterByName("d16")
			Expect(ok).To(BeFalse())
		})

		It("should list the general registers with hi, lo and pc", func() {
			values := m.s.RegisterValues()
			Expect(values).To(HaveLen(35))
			Expect(values[0].Name).To(Equal("zr"))
			Expect(values[34].Name).To(Equal("pc"))
			Expect(m.s.Arch()).To(Equal(sim.ArchMIPS))
		})

		It("should render the FPU condition", func() {
			Expect(m.s.FlagsString()).To(HaveSuffix("  c"))
			m.s.Registers().SetCondition(true)
			Expect(m.s.FlagsString()).To(Equal("FCSR 0x00800000  C"))
		})

		It("should expose the frame and stack pointers", func() {
			m.s.SetRegister(mips.FP, 0x40)
			Expect(m.s.FramePointer()).To(Equal(uint64(0x40)))
			Expect(m.s.StackPointer()).To(Equal(m.s.Stack().Top()))
		})
	})
})
