package cpu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/cpu"
)

const armv7Info = `processor	: 0
model name	: ARMv7 Processor rev 10 (v7l)
Features	: half thumb fastmult vfp edsp neon vfpv3 tls vfpv4 idiva idivt
CPU architecture: 7
Hardware	: Generic Board
`

const tegraInfo = `Processor	: ARMv7 Processor rev 0 (v7l)
Features	: swp half thumb fastmult vfp edsp neon vfpv3
CPU architecture: 7
Hardware	: NVIDIA Tegra 2 Harmony
`

const mipsInfo = `system type		: Ralink RT3883
cpu model		: MIPS 74Kc V4.12
isa			: mips1 mips2 mips32r1 mips32r2
`

var _ = Describe("ParseCPUInfo", func() {
	It("should read ARMv7 feature flags", func() {
		f := cpu.ParseCPUInfo(armv7Info)
		Expect(f.ARMVersion).To(Equal(cpu.ARMv7))
		Expect(f.IntegerDivisionSupported()).To(BeTrue())
		Expect(f.VFPSupported()).To(BeTrue())
		Expect(f.NEONSupported()).To(BeTrue())
		Expect(f.HardFPSupported()).To(BeTrue())
		Expect(f.Hardware).To(Equal("Generic Board"))
	})

	It("should default conservatively", func() {
		f := cpu.ParseCPUInfo("")
		Expect(f.ARMVersion).To(Equal(cpu.ARMv5TE))
		Expect(f.IntegerDivisionSupported()).To(BeFalse())
		Expect(f.MIPSVersion).To(Equal(cpu.MIPS32))
	})

	It("should detect MIPS32r2", func() {
		Expect(cpu.ParseCPUInfo(mipsInfo).IsMIPS32r2()).To(BeTrue())
	})
})

var _ = Describe("Quirks", func() {
	It("should override known-wrong hardware reports", func() {
		f := cpu.ApplyQuirks(cpu.ParseCPUInfo(tegraInfo))
		Expect(f.NEONSupported()).To(BeFalse())
		Expect(f.VFPSupported()).To(BeTrue())
	})
})

var _ = Describe("Lifecycle", func() {
	AfterEach(func() {
		cpu.Cleanup()
	})

	It("should panic when queried before Init", func() {
		Expect(func() { cpu.Host() }).To(Panic())
	})

	It("should initialize exactly once", func() {
		Expect(cpu.Init(cpu.Text(armv7Info))).To(Succeed())
		Expect(cpu.Initialized()).To(BeTrue())
		Expect(cpu.Host().IsARMv7()).To(BeTrue())
		Expect(cpu.Init(cpu.Text(armv7Info))).To(MatchError(cpu.ErrAlreadyInitialized))

		cpu.Cleanup()
		Expect(cpu.Initialized()).To(BeFalse())
		Expect(cpu.Init(cpu.Text(mipsInfo))).To(Succeed())
	})

	It("should surface probe failures", func() {
		probeErr := errors.New("no such file")
		err := cpu.Init(cpu.SourceFunc(func() (string, error) { return "", probeErr }))
		Expect(errors.Is(err, probeErr)).To(BeTrue())
		Expect(cpu.Initialized()).To(BeFalse())
	})
})

var _ = Describe("Target", func() {
	It("should mirror the host when running natively", func() {
		host := cpu.ParseCPUInfo("")
		Expect(cpu.Target(host, false)).To(Equal(host))
	})

	It("should force software-implemented features when simulating", func() {
		host := cpu.ParseCPUInfo("")
		t := cpu.Target(host, true)
		Expect(t.IntegerDivisionSupported()).To(BeTrue())
		Expect(t.VFPSupported()).To(BeTrue())
		Expect(t.NEONSupported()).To(BeTrue())
		Expect(t.IsARMv7()).To(BeTrue())
		Expect(t.HardFPSupported()).To(BeFalse())
	})

	It("should serve snapshots through a provider", func() {
		var p cpu.Provider = cpu.Static(cpu.Simulated())
		Expect(p.Features().NEON).To(BeTrue())
	})
})
