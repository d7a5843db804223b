package machine_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/machine"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

var _ = Describe("New", func() {
	DescribeTable("should build the simulator for each architecture",
		func(arch sim.Arch) {
			s, err := machine.New(arch)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Arch()).To(Equal(arch))
			Expect(s.InstructionCount()).To(BeZero())
		},
		Entry("ARM", sim.ArchARM),
		Entry("ARM64", sim.ArchARM64),
		Entry("MIPS", sim.ArchMIPS),
	)

	It("should refuse an unknown architecture", func() {
		s, err := machine.New(sim.Arch(99))
		Expect(err).To(MatchError(ContainSubstring("no simulator for")))
		Expect(s).To(BeNil())
	})

	It("should return a nil interface when the simulator fails to build", func() {
		c := config.Default()
		c.StackSize = 0
		s, err := machine.New(sim.ArchMIPS, machine.WithConfig(c))
		Expect(err).To(HaveOccurred())
		Expect(s == nil).To(BeTrue())
	})

	It("should pass the options through", func() {
		l, hook := logtest.NewNullLogger()
		l.SetLevel(logrus.DebugLevel)
		c := config.Default()
		c.Trace = true
		mem := sim.NewMemory()

		a := mips.New()
		a.Addiu(mips.V0, mips.A0, 1)
		a.Ret()
		code := make([]byte, a.CodeSize())
		Expect(a.Buffer().Finalize(code)).To(Succeed())
		_, err := mem.MapBytes("code", 0x10000, code)
		Expect(err).NotTo(HaveOccurred())

		s, err := machine.New(sim.ArchMIPS, machine.WithConfig(c), machine.WithLogger(l), machine.WithMemory(mem))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Memory()).To(BeIdenticalTo(mem))

		r, err := s.Call(0x10000, 41)
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(uint64(42)))
		Expect(hook.AllEntries()).To(HaveLen(3))
		Expect(s.ICacheStats().Fetches).To(BeNumerically(">=", 3))
	})
})

var _ = Describe("words", func() {
	It("should format at the machine word width", func() {
		Expect(machine.FormatWord(sim.ArchMIPS, 0xffffffff)).To(Equal("0xffffffff (-1)"))
		Expect(machine.FormatWord(sim.ArchARM, 42)).To(Equal("0x0000002a (42)"))
		Expect(machine.FormatWord(sim.ArchARM64, 1<<40)).To(Equal("0x0000010000000000 (1099511627776)"))
	})

	It("should read a word of the machine width", func() {
		mem := sim.NewMemory()
		_, err := mem.Map("data", 0x20000, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(mem.Write64(0x20000, 0x1122334455667788)).To(Succeed())

		v, err := machine.ReadWord(mem, sim.ArchARM, 0x20000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x55667788)))
		v, err = machine.ReadWord(mem, sim.ArchARM64, 0x20000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x1122334455667788)))
		_, err = machine.ReadWord(mem, sim.ArchMIPS, 0x30000)
		Expect(err).To(HaveOccurred())
	})
})
