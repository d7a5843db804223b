package sim_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/jitsim/sim"
)

var _ = Describe("Memory", func() {
	var mem *sim.Memory

	BeforeEach(func() {
		mem = sim.NewMemory()
		_, err := mem.Map("data", 0x10000, 0x1000)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should read back little-endian values of every width", func() {
		Expect(mem.Write64(0x10000, 0x0102030405060708)).To(Succeed())
		v8, _ := mem.Read8(0x10000)
		v16, _ := mem.Read16(0x10000)
		v32, _ := mem.Read32(0x10004)
		v64, _ := mem.Read64(0x10000)
		Expect(v8).To(Equal(uint8(0x08)))
		Expect(v16).To(Equal(uint16(0x0708)))
		Expect(v32).To(Equal(uint32(0x01020304)))
		Expect(v64).To(Equal(uint64(0x0102030405060708)))
	})

	It("should reject unmapped accesses", func() {
		_, err := mem.Read32(0x20000)
		Expect(sim.IsFault(err, sim.FaultIllegalAccess)).To(BeTrue())
	})

	It("should reject accesses straddling the region end", func() {
		_, err := mem.Read32(0x10ffe)
		Expect(sim.IsFault(err, sim.FaultIllegalAccess)).To(BeTrue())
	})

	It("should treat the low guard as illegal even when mapped", func() {
		_, err := mem.Map("zero", 0, 0x2000)
		Expect(err).NotTo(HaveOccurred())
		err = mem.Write32(0x10, 1)
		Expect(sim.IsFault(err, sim.FaultIllegalAccess)).To(BeTrue())
		Expect(mem.Write32(0x1000, 1)).To(Succeed())
	})

	It("should refuse overlapping mappings", func() {
		_, err := mem.Map("overlap", 0x10800, 0x1000)
		Expect(err).To(HaveOccurred())
	})

	It("should stamp the faulting pc", func() {
		_, err := mem.Read8(0x4)
		err = sim.AtPC(err, 0x8000, 0xe5900000)
		Expect(err.Error()).To(ContainSubstring("pc=0x00008000"))
		Expect(err.Error()).To(ContainSubstring("0x00000004"))
	})

	It("should bump-allocate aligned blocks", func() {
		r, _ := mem.Region("data")
		a, err := r.Alloc(3, 1)
		Expect(err).NotTo(HaveOccurred())
		b, err := r.Alloc(8, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(uint64(0x10000)))
		Expect(b).To(Equal(uint64(0x10008)))
		_, err = r.Alloc(0x2000, 4)
		Expect(err).To(HaveOccurred())
	})

	It("should place stacks below one another", func() {
		s1, err := mem.MapStack("stack-1", 0x4000, 0x100)
		Expect(err).NotTo(HaveOccurred())
		s2, err := mem.MapStack("stack-2", 0x4000, 0x100)
		Expect(err).NotTo(HaveOccurred())
		Expect(s2.Region.End()).To(BeNumerically("<=", s1.Region.Base))
		Expect(s1.Top()).To(Equal(s1.Region.End() - 0x100))
		Expect(s1.InGuard(s1.Region.Base)).To(BeTrue())
		Expect(s1.InGuard(s1.Top() - 4)).To(BeFalse())
	})

	It("should read C strings", func() {
		Expect(mem.WriteBytes(0x10100, []byte("hello\x00world"))).To(Succeed())
		s, err := mem.ReadCString(0x10100, 64)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("hello"))
	})

	It("should take concurrent writes to neighboring bytes", func() {
		g, _ := errgroup.WithContext(context.Background())
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				for n := 0; n < 1000; n++ {
					if err := mem.Write8(0x10200+uint64(i), uint8(i+1)); err != nil {
						return err
					}
					if _, err := mem.Read64(0x10200); err != nil {
						return err
					}
				}
				return nil
			})
		}
		Expect(g.Wait()).To(Succeed())
		Expect(mem.Read64(0x10200)).To(Equal(uint64(0x0807060504030201)))
	})
})
