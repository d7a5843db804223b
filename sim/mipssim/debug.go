package mipssim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

// Arch returns sim.ArchMIPS.
func (s *Simulator) Arch() sim.Arch { return sim.ArchMIPS }

// RegisterValues lists the general-purpose registers followed by HI, LO
// and PC.
func (s *Simulator) RegisterValues() []sim.RegisterValue {
	out := make([]sim.RegisterValue, 0, mips.NumRegisters+3)
	for r := mips.ZR; r < mips.NumRegisters; r++ {
		out = append(out, sim.RegisterValue{Name: r.String(), Bits: uint64(s.regs.Reg(r)), Width: 32})
	}
	return append(out,
		sim.RegisterValue{Name: "hi", Bits: uint64(s.regs.HI), Width: 32},
		sim.RegisterValue{Name: "lo", Bits: uint64(s.regs.LO), Width: 32},
		sim.RegisterValue{Name: "pc", Bits: uint64(s.regs.PC), Width: 32},
	)
}

// RegisterByName looks up a register by ABI name, by $<n> or r<n>, or an
// FPU register as f<n> or d<n>.
func (s *Simulator) RegisterByName(name string) (sim.RegisterValue, bool) {
	name = strings.TrimPrefix(strings.ToLower(name), "$")
	for _, v := range s.RegisterValues() {
		if v.Name == name {
			return v, true
		}
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 && n < int(mips.NumRegisters) {
		r := mips.Register(n)
		return sim.RegisterValue{Name: r.String(), Bits: uint64(s.regs.Reg(r)), Width: 32}, true
	}
	if len(name) < 2 {
		return sim.RegisterValue{}, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 {
		return sim.RegisterValue{}, false
	}
	switch {
	case name[0] == 'r' && n < int(mips.NumRegisters):
		r := mips.Register(n)
		return sim.RegisterValue{Name: r.String(), Bits: uint64(s.regs.Reg(r)), Width: 32}, true
	case name[0] == 's' && n < 8:
		// s3, s6 and s7 print as thr, ctx and pp.
		r := mips.S0 + mips.Register(n)
		return sim.RegisterValue{Name: r.String(), Bits: uint64(s.regs.Reg(r)), Width: 32}, true
	case name[0] == 'f' && n < mips.NumFRegisters:
		return sim.RegisterValue{Name: name, Bits: uint64(s.regs.F(mips.FRegister(n))), Float: true, Width: 32}, true
	case name[0] == 'd' && n < mips.NumDRegisters:
		return sim.RegisterValue{Name: name, Bits: s.regs.D(mips.DRegister(n)), Float: true, Width: 64}, true
	}
	return sim.RegisterValue{}, false
}

// FlagsString renders the FPU condition bit. MIPS has no integer flags.
func (s *Simulator) FlagsString() string {
	if s.regs.Condition() {
		return fmt.Sprintf("FCSR 0x%08x  C", s.regs.FCSR)
	}
	return fmt.Sprintf("FCSR 0x%08x  c", s.regs.FCSR)
}

// FramePointer returns FP.
func (s *Simulator) FramePointer() uint64 { return uint64(s.regs.R[mips.FP]) }

// StackPointer returns SP.
func (s *Simulator) StackPointer() uint64 { return uint64(s.regs.R[mips.SP]) }

// SetBreakpoint patches the breakpoint trap over the instruction at addr.
func (s *Simulator) SetBreakpoint(addr uint64) error {
	if addr%mips.InstrSize != 0 {
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
