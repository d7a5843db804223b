// Package machine builds the simulator for an architecture behind one
// interface, for callers that pick the target at run time.
package machine

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/debugger"
	"github.com/sarchlab/jitsim/sim"
	"github.com/sarchlab/jitsim/sim/arm64sim"
	"github.com/sarchlab/jitsim/sim/armsim"
	"github.com/sarchlab/jitsim/sim/mipssim"
)

// Simulator is the surface shared by the ARM, ARM64 and MIPS simulators.
type Simulator interface {
	debugger.Target
	Attach(d sim.Debugger)
	StopAfter(n uint64)
	Call(entry uint64, args ...uint64) (uint64, error)
	CallFloat(entry uint64, args ...float64) (float64, error)
	Features() cpu.Features
	Stack() *sim.Stack
	ICacheStats() sim.ICacheStats
}

var (
	_ Simulator = (*armsim.Simulator)(nil)
	_ Simulator = (*arm64sim.Simulator)(nil)
	_ Simulator = (*mipssim.Simulator)(nil)
)

type options struct {
	config *config.Config
	log    logrus.FieldLogger
	stdout io.Writer
	mem    *sim.Memory
}

// Option configures New.
type Option func(*options)

// WithConfig sets the simulator configuration.
func WithConfig(c *config.Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithLogger sets the simulator logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithStdout sets where stop messages are printed.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithMemory shares an address space between simulators.
func WithMemory(mem *sim.Memory) Option {
	return func(o *options) {
		o.mem = mem
	}
}

// New creates the simulator for arch.
func New(arch sim.Arch, opts ...Option) (Simulator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch arch {
	case sim.ArchARM:
		var so []armsim.Option
		if o.config != nil {
			so = append(so, armsim.WithConfig(o.config))
		}
		if o.log != nil {
			so = append(so, armsim.WithLogger(o.log))
		}
		if o.stdout != nil {
			so = append(so, armsim.WithStdout(o.stdout))
		}
		if o.mem != nil {
			so = append(so, armsim.WithMemory(o.mem))
		}
		return checked(armsim.New(so...))
	case sim.ArchARM64:
		var so []arm64sim.Option
		if o.config != nil {
			so = append(so, arm64sim.WithConfig(o.config))
		}
		if o.log != nil {
			so = append(so, arm64sim.WithLogger(o.log))
		}
		if o.stdout != nil {
			so = append(so, arm64sim.WithStdout(o.stdout))
		}
		if o.mem != nil {
			so = append(so, arm64sim.WithMemory(o.mem))
		}
		return checked(arm64sim.New(so...))
	case sim.ArchMIPS:
		var so []mipssim.Option
		if o.config != nil {
			so = append(so, mipssim.WithConfig(o.config))
		}
		if o.log != nil {
			so = append(so, mipssim.WithLogger(o.log))
		}
		if o.stdout != nil {
			so = append(so, mipssim.WithStdout(o.stdout))
		}
		if o.mem != nil {
			so = append(so, mipssim.WithMemory(o.mem))
		}
		return checked(mipssim.New(so...))
	}
	return nil, fmt.Errorf("no simulator for %v", arch)
}

// checked keeps a typed nil pointer out of the returned interface.
func checked[S Simulator](s S, err error) (Simulator, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FormatWord prints v at the width of the machine word.
func FormatWord(arch sim.Arch, v uint64) string {
	if arch.WordSize() == 4 {
		return fmt.Sprintf("0x%08x (%d)", uint32(v), int32(v))
	}
	return fmt.Sprintf("0x%016x (%d)", v, int64(v))
}

// ReadWord reads one machine word of arch from mem.
func ReadWord(mem *sim.Memory, arch sim.Arch, addr uint64) (uint64, error) {
	if arch.WordSize() == 8 {
		return mem.Read64(addr)
	}
	v, err := mem.Read32(addr)
	return uint64(v), err
}
