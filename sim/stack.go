package sim

import (
	"errors"
	"fmt"
	"strings"
)

// Stack placement.
const (
	DefaultStackSize  = 1 << 20
	DefaultStackGuard = 4096
	StackCeiling      = 0xF0000000
	stackAlign        = 0x10000
)

// ErrDebuggerQuit is returned by a Debugger that ends the simulation.
var ErrDebuggerQuit = errors.New("sim: simulation stopped by debugger")

// Stack is a simulator's private execution stack: size bytes framed by
// guard bytes on both ends.
type Stack struct {
	Region *Region
	Guard  uint64
}

// Top returns the initial stack pointer: the high end minus the guard.
func (s *Stack) Top() uint64 { return s.Region.End() - s.Guard }

// Limit returns the lowest usable stack address.
func (s *Stack) Limit() uint64 { return s.Region.Base + s.Guard }

// InGuard reports whether addr falls in either guard band.
func (s *Stack) InGuard(addr uint64) bool {
	return (addr >= s.Region.Base && addr < s.Limit()) ||
		(addr >= s.Top() && addr < s.Region.End())
}

// MapStack maps a new stack below every stack already present in mem.
func (m *Memory) MapStack(name string, size int, guard uint64) (*Stack, error) {
	total := uint64(size) + 2*guard
	ceiling := uint64(StackCeiling)
	for _, r := range m.Regions() {
		if strings.HasPrefix(r.Name, "stack") && r.Base < ceiling {
			ceiling = r.Base
		}
	}
	if total > ceiling {
		return nil, fmt.Errorf("no room for a %d-byte stack", total)
	}
	base := (ceiling - total) &^ (stackAlign - 1)
	r, err := m.Map(name, base, int(total))
	if err != nil {
		return nil, fmt.Errorf("mapping stack: %w", err)
	}
	return &Stack{Region: r, Guard: guard}, nil
}
