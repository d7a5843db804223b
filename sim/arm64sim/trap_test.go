package arm64sim_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

var _ = Describe("Traps", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine()
	})

	Context("stop messages", func() {
		var trap uint64

		BeforeEach(func() {
			m.a.Movz(arm64.R0, 1, 0)
			m.a.Stop("unreachable state")
			trap = codeBase + uint64(m.a.CodeSize()) - arm64.InstrSize
			m.a.Movz(arm64.R0, 7, 0)
			m.a.Ret()
		})

		It("should print the message and fail without a debugger", func() {
			fe := faultOf(m.runErr())
			Expect(fe.Kind).To(Equal(sim.FaultStop))
			Expect(fe.Message).To(Equal("unreachable state"))
			Expect(fe.PC).To(Equal(trap))
			Expect(m.stdout.String()).To(Equal("Simulator hit stop: unreachable state\n"))
		})

		It("should resume after the trap when the debugger continues", func() {
			var pcs []uint64
			m.s.Attach(sim.DebuggerFunc(func(reason string) error {
				Expect(reason).To(Equal("unreachable state"))
				pcs = append(pcs, m.s.PC())
				return nil
			}))
			Expect(m.run()).To(Equal(uint64(7)))
			Expect(pcs).To(Equal([]uint64{trap + arm64.InstrSize}))
		})
	})

	Context("breakpoints", func() {
		BeforeEach(func() {
			m.a.Movz(arm64.R0, 1, 0)
			m.a.Add(arm64.R0, arm64.R0, arm64.Imm(1))
			m.a.Add(arm64.R0, arm64.R0, arm64.Imm(2))
			m.a.Ret()
			m.load()
		})

		It("should execute the patched instruction after the debugger returns", func() {
			Expect(m.s.SetBreakpoint(codeBase + 4)).To(Succeed())
			hits := 0
			m.s.Attach(sim.DebuggerFunc(func(reason string) error {
				hits++
				Expect(reason).To(ContainSubstring("0x0000000000010004"))
				Expect(m.s.PC()).To(Equal(uint64(codeBase + 4)))
				word, err := m.s.Memory().Read32(codeBase + 4)
				Expect(err).NotTo(HaveOccurred())
				Expect(arm64.Instr(word).IsException()).To(BeFalse())
				return nil
			}))

			for k := 1; k <= 2; k++ {
				r, err := m.s.Call(codeBase)
				Expect(err).NotTo(HaveOccurred())
				Expect(r).To(Equal(uint64(4)))
				Expect(hits).To(Equal(k))
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
			Expect(m.s.Call(codeBase)).To(Equal(uint64(4)))
		})

		It("should restore the original word when cleared", func() {
			Expect(m.s.SetBreakpoint(codeBase + 4)).To(Succeed())
			Expect(m.s.SetBreakpoint(codeBase + 8)).To(MatchError(sim.ErrBreakpointInUse))
			Expect(m.s.ClearBreakpoint()).To(Succeed())
			Expect(m.s.Call(codeBase)).To(Equal(uint64(4)))
		})

		It("should reject a misaligned address", func() {
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

	It("should stop at compiled-in breakpoints and resume after them", func() {
		m.a.Movz(arm64.R0, 5, 0)
		m.a.Breakpoint()
		m.a.Brk(0x42)
		m.a.Ret()
		var reasons []string
		m.s.Attach(sim.DebuggerFunc(func(reason string) error {
			reasons = append(reasons, reason)
			return nil
		}))
		Expect(m.run()).To(Equal(uint64(5)))
		Expect(reasons).To(HaveLen(2))
		Expect(reasons[1]).To(HavePrefix("brk 0x0042"))
	})

	It("should reject other exception immediates", func() {
		m.a.Svc(0x1234)
		m.a.Ret()
		fe := faultOf(m.runErr())
		Expect(fe.Kind).To(Equal(sim.FaultUnsupportedInstruction))
	})

	Context("debugger view", func() {
		It("should look registers up by name and alias", func() {
			m.s.SetRegister(arm64.FP, 0x1234)
			m.s.Registers().SetDFloat(arm64.V3, 2.5)
			m.s.SetRegister(arm64.R7, 0xffffffff00000009)

			v, ok := m.s.RegisterByName("r29")
			Expect(ok).To(BeTrue())
			Expect(v.Bits).To(Equal(uint64(0x1234)))
			v, ok = m.s.RegisterByName("FP")
			Expect(ok).To(BeTrue())
			Expect(v.Name).To(Equal("fp"))
			v, ok = m.s.RegisterByName("w7")
			Expect(ok).To(BeTrue())
			Expect(v.Bits).To(Equal(uint64(9)))
			Expect(v.Width).To(Equal(32))
			v, ok = m.s.RegisterByName("d3")
			Expect(ok).To(BeTrue())
			Expect(v.Float).To(BeTrue())
			v, ok = m.s.RegisterByName("zr")
			Expect(ok).To(BeTrue())
			Expect(v.Bits).To(BeZero())
			_, ok = m.s.RegisterByName("x31")
			Expect(ok).To(BeFalse())
			_, ok = m.s.RegisterByName("q0")
			Expect(ok).To(BeFalse())

			Expect(m.s.RegisterValues()).To(HaveLen(arm64.NumRegisters + 1))
			Expect(m.s.FramePointer()).To(Equal(uint64(0x1234)))
			Expect(m.s.StackPointer()).To(Equal(m.s.Stack().Top()))
			Expect(m.s.Arch()).To(Equal(sim.ArchARM64))
		})

		It("should render flags", func() {
			m.s.SetFlags(sim.Flags{N: true, C: true})
			Expect(m.s.FlagsString()).To(Equal("NZCV NzCv  FPSR 0x00"))
		})
	})
})
