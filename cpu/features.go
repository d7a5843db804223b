// Package cpu describes the processor capabilities code generation may rely
// on. Host probing populates an immutable Features snapshot once per
// process; assemblers and simulators receive the snapshot explicitly.
package cpu

import "fmt"

// ARMVersion is the ARM architecture revision.
type ARMVersion uint8

// ARM architecture revisions.
const (
	ARMv5TE ARMVersion = iota + 5
	ARMv6
	ARMv7
)

func (v ARMVersion) String() string {
	switch v {
	case ARMv5TE:
		return "ARMv5TE"
	case ARMv6:
		return "ARMv6"
	case ARMv7:
		return "ARMv7"
	default:
		return fmt.Sprintf("ARMVersion(%d)", uint8(v))
	}
}

// MIPSVersion is the MIPS32 architecture revision.
type MIPSVersion uint8

// MIPS32 revisions.
const (
	MIPS32 MIPSVersion = iota + 1
	MIPS32r2
)

func (v MIPSVersion) String() string {
	switch v {
	case MIPS32:
		return "MIPS32"
	case MIPS32r2:
		return "MIPS32r2"
	default:
		return fmt.Sprintf("MIPSVersion(%d)", uint8(v))
	}
}

// Features is an immutable snapshot of processor capabilities.
type Features struct {
	Hardware        string
	ARMVersion      ARMVersion
	IntegerDivision bool
	VFP             bool
	NEON            bool
	HardFP          bool
	MIPSVersion     MIPSVersion
	SSE2            bool
	SSE41           bool
}

// IntegerDivisionSupported reports whether sdiv/udiv may be emitted.
func (f Features) IntegerDivisionSupported() bool { return f.IntegerDivision }

// VFPSupported reports whether VFP instructions may be emitted.
func (f Features) VFPSupported() bool { return f.VFP }

// NEONSupported reports whether NEON instructions and the upper sixteen
// D registers may be used.
func (f Features) NEONSupported() bool { return f.NEON }

// HardFPSupported reports whether floating-point arguments travel in VFP
// registers rather than core registers.
func (f Features) HardFPSupported() bool { return f.HardFP }

// SSE2Supported reports SSE2 availability.
func (f Features) SSE2Supported() bool { return f.SSE2 }

// SSE41Supported reports SSE4.1 availability.
func (f Features) SSE41Supported() bool { return f.SSE41 }

// IsARMv7 reports whether movw/movt and ldrex/strex on all widths exist.
func (f Features) IsARMv7() bool { return f.ARMVersion >= ARMv7 }

// IsMIPS32r2 reports whether r2 instructions such as ext/ins/seb are usable.
func (f Features) IsMIPS32r2() bool { return f.MIPSVersion >= MIPS32r2 }

func (f Features) String() string {
	return fmt.Sprintf("hardware=%q arm=%s idiv=%t vfp=%t neon=%t hardfp=%t mips=%s sse2=%t sse4.1=%t",
		f.Hardware, f.ARMVersion, f.IntegerDivision, f.VFP, f.NEON, f.HardFP,
		f.MIPSVersion, f.SSE2, f.SSE41)
}

// Provider supplies the features an assembler or simulator targets.
type Provider interface {
	Features() Features
}

// Static is a Provider returning a fixed snapshot.
type Static Features

// Features implements Provider.
func (s Static) Features() Features { return Features(s) }

// Simulated is the feature set every simulator implements in software.
func Simulated() Features {
	return Features{
		Hardware:        "simulator",
		ARMVersion:      ARMv7,
		IntegerDivision: true,
		VFP:             true,
		NEON:            true,
		HardFP:          false,
		MIPSVersion:     MIPS32r2,
	}
}

// Target returns the features code generation may assume. When simulating,
// the software CPU implements division, VFP and NEON regardless of the
// host, so those are forced on; the floating-point calling convention
// follows the host.
func Target(host Features, simulating bool) Features {
	if !simulating {
		return host
	}
	t := Simulated()
	t.Hardware = host.Hardware
	t.HardFP = host.HardFP
	t.SSE2 = host.SSE2
	t.SSE41 = host.SSE41
	return t
}
