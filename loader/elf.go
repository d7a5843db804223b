// Package loader reads little-endian ELF executables for the simulated
// targets and maps their loadable segments into simulator memory.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/sarchlab/jitsim/sim"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment is one PT_LOAD segment.
type Segment struct {
	// VirtAddr is the address the segment is mapped at.
	VirtAddr uint64
	// Data is the file-backed part of the segment.
	Data []byte
	// MemSize is the size in memory, larger than len(Data) for BSS.
	MemSize uint64
	Flags   SegmentFlags
}

// Program is a parsed executable.
type Program struct {
	Arch       sim.Arch
	EntryPoint uint64
	Segments   []Segment
}

// Load parses the ELF file at path.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parse(f)
}

// Read parses an ELF image from r.
func Read(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF image: %w", err)
	}
	return parse(f)
}

// archOf maps the ELF machine to a simulated architecture. ARM and MIPS
// images are 32-bit, AArch64 images 64-bit.
func archOf(f *elf.File) (sim.Arch, error) {
	if f.Data != elf.ELFDATA2LSB {
		return 0, fmt.Errorf("not a little-endian ELF file")
	}
	var (
		arch  sim.Arch
		class elf.Class
	)
	switch f.Machine {
	case elf.EM_ARM:
		arch, class = sim.ArchARM, elf.ELFCLASS32
	case elf.EM_AARCH64:
		arch, class = sim.ArchARM64, elf.ELFCLASS64
	case elf.EM_MIPS:
		arch, class = sim.ArchMIPS, elf.ELFCLASS32
	default:
		return 0, fmt.Errorf("unsupported machine type %v", f.Machine)
	}
	if f.Class != class {
		return 0, fmt.Errorf("%v image must be %v, got %v", f.Machine, class, f.Class)
	}
	return arch, nil
}

func parse(f *elf.File) (*Program, error) {
	arch, err := archOf(f)
	if err != nil {
		return nil, err
	}
	prog := &Program{Arch: arch, EntryPoint: f.Entry}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}
		if phdr.Memsz < phdr.Filesz {
			return nil, fmt.Errorf("segment at 0x%x: memory size 0x%x below file size 0x%x",
				phdr.Vaddr, phdr.Memsz, phdr.Filesz)
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// MapInto maps every non-empty segment into mem as a region named
// "elf-<n>". The tail past the file data reads as zero.
func (p *Program) MapInto(mem *sim.Memory) error {
	for n, seg := range p.Segments {
		if seg.MemSize == 0 {
			continue
		}
		name := fmt.Sprintf("elf-%d", n)
		if _, err := mem.Map(name, seg.VirtAddr, int(seg.MemSize)); err != nil {
			return fmt.Errorf("mapping segment %d: %w", n, err)
		}
		if len(seg.Data) == 0 {
			continue
		}
		if err := mem.WriteBytes(seg.VirtAddr, seg.Data); err != nil {
			return fmt.Errorf("writing segment %d: %w", n, err)
		}
	}
	return nil
}

// Executable reports whether addr falls in an executable segment.
func (p *Program) Executable(addr uint64) bool {
	for _, seg := range p.Segments {
		if seg.Flags&SegmentFlagExecute != 0 && addr >= seg.VirtAddr && addr-seg.VirtAddr < seg.MemSize {
			return true
		}
	}
	return false
}
