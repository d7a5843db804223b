package sim

import "fmt"

// Arch identifies a simulated instruction set.
type Arch uint8

// Supported architectures.
const (
	ArchARM Arch = iota + 1
	ArchARM64
	ArchMIPS
)

func (a Arch) String() string {
	switch a {
	case ArchARM:
		return "arm"
	case ArchARM64:
		return "arm64"
	case ArchMIPS:
		return "mips"
	default:
		return fmt.Sprintf("Arch(%d)", uint8(a))
	}
}

// ParseArch parses an architecture name as printed by String.
func ParseArch(name string) (Arch, error) {
	switch name {
	case "arm", "arm32":
		return ArchARM, nil
	case "arm64", "aarch64":
		return ArchARM64, nil
	case "mips", "mipsel", "mips32":
		return ArchMIPS, nil
	default:
		return 0, fmt.Errorf("unknown architecture %q", name)
	}
}

// WordSize returns the machine word size in bytes.
func (a Arch) WordSize() int {
	if a == ArchARM64 {
		return 8
	}
	return 4
}

// EndSimulatingPC returns the sentinel return address for a.
func (a Arch) EndSimulatingPC() uint64 {
	if a == ArchARM64 {
		return EndSimulatingPC64
	}
	return EndSimulatingPC32
}
