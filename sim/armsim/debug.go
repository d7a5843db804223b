package armsim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/sim"
)

// Arch returns sim.ArchARM.
func (s *Simulator) Arch() sim.Arch { return sim.ArchARM }

// RegisterValues lists the core registers.
func (s *Simulator) RegisterValues() []sim.RegisterValue {
	out := make([]sim.RegisterValue, 0, arm.NumRegisters)
	for r := arm.R0; r < arm.NumRegisters; r++ {
		out = append(out, sim.RegisterValue{Name: r.String(), Bits: uint64(s.regs.R[r]), Width: 32})
	}
	return out
}

// RegisterByName looks up a core register by number or alias, or a VFP
// register as s<n> or d<n>.
func (s *Simulator) RegisterByName(name string) (sim.RegisterValue, bool) {
	name = strings.ToLower(name)
	for r := arm.R0; r < arm.NumRegisters; r++ {
		if name == r.String() || name == fmt.Sprintf("r%d", int(r)) {
			return sim.RegisterValue{Name: r.String(), Bits: uint64(s.regs.R[r]), Width: 32}, true
		}
	}
	if len(name) < 2 {
		return sim.RegisterValue{}, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 || n >= 32 {
		return sim.RegisterValue{}, false
	}
	switch name[0] {
	case 's':
		return sim.RegisterValue{Name: name, Bits: uint64(s.regs.S(arm.SRegister(n))), Float: true, Width: 32}, true
	case 'd':
		return sim.RegisterValue{Name: name, Bits: s.regs.D(arm.DRegister(n)), Float: true, Width: 64}, true
	}
	return sim.RegisterValue{}, false
}

// FlagsString renders the APSR and FPSCR flags.
func (s *Simulator) FlagsString() string {
	return fmt.Sprintf("APSR %s  FPSCR %s", flagString(s.regs.APSR), flagString(s.regs.FPSCR))
}

func flagString(f sim.Flags) string {
	b := []byte("nzcv")
	for k, set := range []bool{f.N, f.Z, f.C, f.V} {
		if set {
			b[k] -= 'a' - 'A'
		}
	}
	return string(b)
}

// FramePointer returns FP.
func (s *Simulator) FramePointer() uint64 { return uint64(s.regs.R[arm.FP]) }

// StackPointer returns SP.
func (s *Simulator) StackPointer() uint64 { return uint64(s.regs.R[arm.SP]) }

// SetBreakpoint patches the breakpoint trap over the instruction at addr.
func (s *Simulator) SetBreakpoint(addr uint64) error {
	if addr%arm.InstrSize != 0 {
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
