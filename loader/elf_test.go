package loader_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/jitsim/loader"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
	"github.com/sarchlab/jitsim/sim/mipssim"
)

const (
	emARM     = 40
	emMIPS    = 8
	emAMD64   = 62
	emAArch64 = 183

	ptLoad = 1
	ptNote = 4

	pfX = 1
	pfW = 2
	pfR = 4
)

type segSpec struct {
	typ     uint32
	addr    uint64
	data    []byte
	memSize uint64
	flags   uint32
}

func load(addr uint64, data []byte, flags uint32) segSpec {
	return segSpec{typ: ptLoad, addr: addr, data: data, memSize: uint64(len(data)), flags: flags}
}

// buildELF lays out an executable with the program headers right after
// the ELF header and the segment contents after them.
func buildELF(class64 bool, machine uint16, entry uint64, segs ...segSpec) []byte {
	ehsize, phentsize := 52, 32
	if class64 {
		ehsize, phentsize = 64, 56
	}
	le := binary.LittleEndian
	hdr := make([]byte, ehsize)
	copy(hdr, []byte{0x7f, 'E', 'L', 'F'})
	hdr[4] = 1
	if class64 {
		hdr[4] = 2
	}
	hdr[5] = 1 // little endian
	hdr[6] = 1
	le.PutUint16(hdr[16:], 2) // executable
	le.PutUint16(hdr[18:], machine)
	le.PutUint32(hdr[20:], 1)
	if class64 {
		le.PutUint64(hdr[24:], entry)
		le.PutUint64(hdr[32:], uint64(ehsize))
		le.PutUint16(hdr[52:], uint16(ehsize))
		le.PutUint16(hdr[54:], uint16(phentsize))
		le.PutUint16(hdr[56:], uint16(len(segs)))
		le.PutUint16(hdr[58:], 64)
	} else {
		le.PutUint32(hdr[24:], uint32(entry))
		le.PutUint32(hdr[28:], uint32(ehsize))
		le.PutUint16(hdr[40:], uint16(ehsize))
		le.PutUint16(hdr[42:], uint16(phentsize))
		le.PutUint16(hdr[44:], uint16(len(segs)))
		le.PutUint16(hdr[46:], 40)
	}

	out := bytes.NewBuffer(hdr)
	offset := uint64(ehsize + phentsize*len(segs))
	for _, s := range segs {
		ph := make([]byte, phentsize)
		if class64 {
			le.PutUint32(ph[0:], s.typ)
			le.PutUint32(ph[4:], s.flags)
			le.PutUint64(ph[8:], offset)
			le.PutUint64(ph[16:], s.addr)
			le.PutUint64(ph[24:], s.addr)
			le.PutUint64(ph[32:], uint64(len(s.data)))
			le.PutUint64(ph[40:], s.memSize)
			le.PutUint64(ph[48:], 0x1000)
		} else {
			le.PutUint32(ph[0:], s.typ)
			le.PutUint32(ph[4:], uint32(offset))
			le.PutUint32(ph[8:], uint32(s.addr))
			le.PutUint32(ph[12:], uint32(s.addr))
			le.PutUint32(ph[16:], uint32(len(s.data)))
			le.PutUint32(ph[20:], uint32(s.memSize))
			le.PutUint32(ph[24:], s.flags)
			le.PutUint32(ph[28:], 0x1000)
		}
		out.Write(ph)
		offset += uint64(len(s.data))
	}
	for _, s := range segs {
		out.Write(s.data)
	}
	return out.Bytes()
}

func read(image []byte) (*loader.Program, error) {
	return loader.Read(bytes.NewReader(image))
}

var _ = Describe("ELF Loader", func() {
	code := []byte{0x01, 0x00, 0x02, 0x24, 0x08, 0x00, 0xe0, 0x03}

	Describe("Load", func() {
		var tempDir string

		BeforeEach(func() {
			tempDir = GinkgoT().TempDir()
		})

		It("should load a file from disk", func() {
			path := filepath.Join(tempDir, "prog.elf")
			image := buildELF(false, emMIPS, 0x400010, load(0x400000, code, pfR|pfX))
			Expect(os.WriteFile(path, image, 0o644)).To(Succeed())

			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Arch).To(Equal(sim.ArchMIPS))
			Expect(prog.EntryPoint).To(Equal(uint64(0x400010)))
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Data).To(Equal(code))
		})

		It("should report a missing file", func() {
			_, err := loader.Load(filepath.Join(tempDir, "missing.elf"))
			Expect(err).To(HaveOccurred())
		})

		It("should reject a file that is not ELF", func() {
			path := filepath.Join(tempDir, "text")
			Expect(os.WriteFile(path, []byte("not an executable"), 0o644)).To(Succeed())
			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
		})
	})

	DescribeTable("should identify the architecture",
		func(class64 bool, machine uint16, arch sim.Arch) {
			prog, err := read(buildELF(class64, machine, 0x1000, load(0x1000, code, pfR|pfX)))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Arch).To(Equal(arch))
		},
		Entry("ARM", false, uint16(emARM), sim.ArchARM),
		Entry("AArch64", true, uint16(emAArch64), sim.ArchARM64),
		Entry("MIPS", false, uint16(emMIPS), sim.ArchMIPS),
	)

	DescribeTable("should reject images the simulators cannot run",
		func(image []byte) {
			_, err := read(image)
			Expect(err).To(HaveOccurred())
		},
		Entry("x86-64", buildELF(true, emAMD64, 0)),
		Entry("32-bit AArch64", buildELF(false, emAArch64, 0)),
		Entry("64-bit ARM", buildELF(true, emARM, 0)),
		Entry("empty", []byte{}),
		Entry("big-endian MIPS", func() []byte {
			image := buildELF(false, emMIPS, 0)
			image[5] = 2
			return image
		}()),
	)

	Describe("segments", func() {
		It("should load every PT_LOAD segment with its permissions", func() {
			data := []byte{1, 2, 3, 4}
			prog, err := read(buildELF(false, emMIPS, 0x400000,
				load(0x400000, code, pfR|pfX),
				segSpec{typ: ptNote, addr: 0x500000, data: []byte{9}, memSize: 1, flags: pfR},
				load(0x410000, data, pfR|pfW),
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))

			text, rw := prog.Segments[0], prog.Segments[1]
			Expect(text.VirtAddr).To(Equal(uint64(0x400000)))
			Expect(text.Flags).To(Equal(loader.SegmentFlagRead | loader.SegmentFlagExecute))
			Expect(rw.VirtAddr).To(Equal(uint64(0x410000)))
			Expect(rw.Data).To(Equal(data))
			Expect(rw.Flags).To(Equal(loader.SegmentFlagRead | loader.SegmentFlagWrite))
		})

		It("should keep the memory size of BSS segments", func() {
			prog, err := read(buildELF(true, emAArch64, 0,
				segSpec{typ: ptLoad, addr: 0x600000, data: []byte{7, 7}, memSize: 0x100, flags: pfR | pfW},
				segSpec{typ: ptLoad, addr: 0x700000, memSize: 0x40, flags: pfR | pfW},
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].Data).To(HaveLen(2))
			Expect(prog.Segments[0].MemSize).To(Equal(uint64(0x100)))
			Expect(prog.Segments[1].Data).To(BeEmpty())
			Expect(prog.Segments[1].MemSize).To(Equal(uint64(0x40)))
		})

		It("should reject a segment smaller in memory than on file", func() {
			_, err := read(buildELF(false, emARM, 0,
				segSpec{typ: ptLoad, addr: 0x1000, data: code, memSize: 4, flags: pfR},
			))
			Expect(err).To(MatchError(ContainSubstring("below file size")))
		})

		It("should return no segments when nothing is loadable", func() {
			prog, err := read(buildELF(false, emMIPS, 0x400000))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.EntryPoint).To(Equal(uint64(0x400000)))
		})

		It("should tell executable addresses apart", func() {
			prog, err := read(buildELF(false, emMIPS, 0,
				load(0x400000, code, pfR|pfX),
				load(0x410000, []byte{0, 0, 0, 0}, pfR|pfW),
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Executable(0x400004)).To(BeTrue())
			Expect(prog.Executable(0x400008)).To(BeFalse())
			Expect(prog.Executable(0x410000)).To(BeFalse())
		})
	})

	Describe("MapInto", func() {
		It("should copy file data and zero the tail", func() {
			prog, err := read(buildELF(false, emMIPS, 0,
				segSpec{typ: ptLoad, addr: 0x20000, data: []byte{0xaa, 0xbb}, memSize: 0x10, flags: pfR | pfW},
				segSpec{typ: ptLoad, addr: 0x30000, flags: pfR},
			))
			Expect(err).NotTo(HaveOccurred())

			mem := sim.NewMemory()
			Expect(prog.MapInto(mem)).To(Succeed())
			v, err := mem.Read32(0x20000)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xbbaa)))
			v, err = mem.Read32(0x2000c)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeZero())

			_, ok := mem.Region("elf-0")
			Expect(ok).To(BeTrue())
			_, ok = mem.Region("elf-1")
			Expect(ok).To(BeFalse())
		})

		It("should fail on overlapping mappings", func() {
			prog, err := read(buildELF(false, emMIPS, 0, load(0x20000, code, pfR|pfX)))
			Expect(err).NotTo(HaveOccurred())
			mem := sim.NewMemory()
			_, err = mem.Map("data", 0x20000, 0x1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.MapInto(mem)).NotTo(Succeed())
		})

		It("should run an assembled program from a loaded image", func() {
			a := mips.New()
			a.Addu(mips.V0, mips.A0, mips.A1)
			a.Ret()
			text := make([]byte, a.CodeSize())
			Expect(a.Buffer().Finalize(text)).To(Succeed())

			prog, err := read(buildELF(false, emMIPS, 0x400000, load(0x400000, text, pfR|pfX)))
			Expect(err).NotTo(HaveOccurred())

			s, err := mipssim.New()
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.MapInto(s.Memory())).To(Succeed())
			r, err := s.Call(prog.EntryPoint, 20, 22)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(uint64(42)))
		})
	})
})
