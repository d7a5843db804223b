package arm64sim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

// Arch returns sim.ArchARM64.
func (s *Simulator) Arch() sim.Arch { return sim.ArchARM64 }

// RegisterValues lists the general-purpose registers, CSP and PC.
func (s *Simulator) RegisterValues() []sim.RegisterValue {
	out := make([]sim.RegisterValue, 0, arm64.NumRegisters+1)
	for r := arm64.R0; r <= arm64.CSP; r++ {
		out = append(out, sim.RegisterValue{Name: r.String(), Bits: s.regs.R[r], Width: 64})
	}
	return append(out, sim.RegisterValue{Name: "pc", Bits: s.pc, Width: 64})
}

// RegisterByName looks up a register by alias or as x<n>, w<n>, s<n>,
// d<n> or v<n>. v<n> shows the low double word.
func (s *Simulator) RegisterByName(name string) (sim.RegisterValue, bool) {
	name = strings.ToLower(name)
	if name == "pc" {
		return sim.RegisterValue{Name: name, Bits: s.pc, Width: 64}, true
	}
	for r := arm64.R0; r <= arm64.ZR; r++ {
		if name == r.String() {
			return sim.RegisterValue{Name: name, Bits: s.regs.Reg(r), Width: 64}, true
		}
	}
	if len(name) < 2 {
		return sim.RegisterValue{}, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 || n >= 32 {
		return sim.RegisterValue{}, false
	}
	v := arm64.VRegister(n)
	switch name[0] {
	case 'x', 'r':
		if n == 31 {
			return sim.RegisterValue{}, false
		}
		return sim.RegisterValue{Name: name, Bits: s.regs.R[n], Width: 64}, true
	case 'w':
		if n == 31 {
			return sim.RegisterValue{}, false
		}
		return sim.RegisterValue{Name: name, Bits: uint64(uint32(s.regs.R[n])), Width: 32}, true
	case 's':
		return sim.RegisterValue{Name: name, Bits: uint64(s.regs.S(v)), Float: true, Width: 32}, true
	case 'd', 'v':
		return sim.RegisterValue{Name: name, Bits: s.regs.D(v), Float: true, Width: 64}, true
	}
	return sim.RegisterValue{}, false
}

// FlagsString renders NZCV and the FPSR exception bits.
func (s *Simulator) FlagsString() string {
	b := []byte("nzcv")
	f := s.regs.NZCV
	for k, set := range []bool{f.N, f.Z, f.C, f.V} {
		if set {
			b[k] -= 'a' - 'A'
		}
	}
	return fmt.Sprintf("NZCV %s  FPSR 0x%02x", b, s.regs.FPSR)
}

// FramePointer returns FP.
func (s *Simulator) FramePointer() uint64 { return s.regs.R[arm64.FP] }

// StackPointer returns the generated-code SP.
func (s *Simulator) StackPointer() uint64 { return s.regs.R[arm64.SP] }

// SetBreakpoint patches the breakpoint trap over the instruction at addr.
func (s *Simulator) SetBreakpoint(addr uint64) error {
	if addr%arm64.InstrSize != 0 {
		return fmt.Errorf("breakpoint address 0x%x is not word aligned", addr)
	}
	return s.bp.Set(s.mem, s.icache, addr, breakpointWord)
}

// ClearBreakpoint removes the breakpoint.
func (s *Simulator) ClearBreakpoint() error { return s.bp.Clear(s.mem, s.icache) }

// Breakpoint returns the breakpoint address, if one is set.
func (s *Simulator) Breakpoint() (uint64, bool) { return s.bp.Address(), s.bp.Active() }

// UnpatchBreakpoint restores the original instruction for inspection.
func (s *Simulator) UnpatchBreakpoint() error { return s.bp.Unpatch(s.mem, s.icache) }

// RepatchBreakpoint re-installs the trap.
func (s *Simulator) RepatchBreakpoint() error { return s.bp.Repatch(s.mem, s.icache) }
