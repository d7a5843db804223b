package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/machine"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

const (
	demoCodeBase = 0x10000
	demoCodeSize = 0x1000
	demoDataBase = 0x80000
)

var storeBufferEntries atomic.Int64

var (
	updateStoreBuffer = &sim.HostFunction{
		Name:               "UpdateStoreBuffer",
		Kind:               sim.LeafRuntimeCall,
		ArgCount:           1,
		PreservesRegisters: true,
		Fn: func(*sim.HostCall) sim.CallResult {
			storeBufferEntries.Add(1)
			return sim.CallResult{}
		},
	}
	hostAdd = &sim.HostFunction{
		Name:     "Add",
		Kind:     sim.LeafRuntimeCall,
		ArgCount: 2,
		Fn: func(c *sim.HostCall) sim.CallResult {
			return sim.CallResult{Value: c.Args[0] + c.Args[1]}
		},
	}
)

// demoProgram is one scenario, assembled and ready to map.
type demoProgram struct {
	name string
	code []byte
	args []uint64
	want uint64
	// stored, when set, is the word the program must leave at
	// demoDataBase+8.
	stored *uint64
}

type demoFlags struct {
	arch     string
	contexts int
}

func newDemoCmd(g *globalFlags) *cobra.Command {
	f := &demoFlags{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Assemble the scenario programs and run them in the simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.arch, "arch", "arm", "architecture (arm, arm64, mips)")
	cmd.Flags().IntVar(&f.contexts, "contexts", 1, "number of simulators to run concurrently")
	return cmd
}

func runDemo(cmd *cobra.Command, g *globalFlags, f *demoFlags) error {
	arch, err := sim.ParseArch(f.arch)
	if err != nil {
		return err
	}
	if f.contexts < 1 {
		return fmt.Errorf("--contexts must be at least 1")
	}
	c, err := g.loadConfig()
	if err != nil {
		return err
	}
	log, err := g.logger(cmd, c)
	if err != nil {
		return err
	}

	before := storeBufferEntries.Load()
	reports := make([][]string, f.contexts)
	eg, ctx := errgroup.WithContext(cmd.Context())
	for n := range f.contexts {
		eg.Go(func() error {
			r, err := runDemoContext(ctx, arch, c, log.WithField("context", n))
			reports[n] = r
			if err != nil {
				return fmt.Errorf("context %d: %w", n, err)
			}
			return nil
		})
	}
	err = eg.Wait()

	out := cmd.OutOrStdout()
	for n, r := range reports {
		for _, line := range r {
			fmt.Fprintf(out, "[%d] %s\n", n, line)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "store buffer entries: %d\n", storeBufferEntries.Load()-before)
	return nil
}

// runDemoContext runs every scenario in a fresh simulator. Only the
// redirection table and the exclusive monitor are shared between
// contexts.
func runDemoContext(ctx context.Context, arch sim.Arch, c *config.Config, log logrus.FieldLogger) ([]string, error) {
	s, err := machine.New(arch, machine.WithConfig(c.Clone()), machine.WithLogger(log), machine.WithStdout(logWriter{log}))
	if err != nil {
		return nil, err
	}
	if _, err := s.Memory().Map("data", demoDataBase, 0x1000); err != nil {
		return nil, err
	}
	programs, err := demoPrograms(arch, s.Features())
	if err != nil {
		return nil, err
	}

	var report []string
	for k, p := range programs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := uint64(demoCodeBase + k*demoCodeSize)
		if _, err := s.Memory().MapBytes("demo-"+p.name, entry, p.code); err != nil {
			return report, err
		}
		got, err := s.Call(entry, p.args...)
		if err != nil {
			return report, fmt.Errorf("%s: %w", p.name, err)
		}
		if arch.WordSize() == 4 {
			got = uint64(uint32(got))
		}
		if p.stored != nil {
			got, err = machine.ReadWord(s.Memory(), arch, demoDataBase+8)
			if err != nil {
				return report, err
			}
			if got != *p.stored {
				return report, fmt.Errorf("%s: stored 0x%x, want 0x%x", p.name, got, *p.stored)
			}
		} else if got != p.want {
			return report, fmt.Errorf("%s: got %s, want %s", p.name, machine.FormatWord(arch, got), machine.FormatWord(arch, p.want))
		}
		report = append(report, fmt.Sprintf("%-14s %s ok", p.name, machine.FormatWord(arch, got)))
	}
	report = append(report, fmt.Sprintf("%-14s %d", "instructions", s.InstructionCount()))
	return report, nil
}

// logWriter sends the simulators' stdout to the log.
type logWriter struct {
	log logrus.FieldLogger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Info(string(p))
	return len(p), nil
}

type finalizer interface {
	CodeSize() int
	Buffer() *asm.Buffer
}

func finalize(a finalizer) ([]byte, error) {
	code := make([]byte, a.CodeSize())
	if err := a.Buffer().Finalize(code); err != nil {
		return nil, err
	}
	return code, nil
}

// demoPrograms assembles the wide-constant, forward-branch, write-barrier
// and redirected-call scenarios for arch.
func demoPrograms(arch sim.Arch, features cpu.Features) (progs []demoProgram, err error) {
	defer func() {
		if r := recover(); r != nil {
			ae, ok := r.(*asm.AssertionError)
			if !ok {
				panic(r)
			}
			err = ae
		}
	}()

	stubs := asm.Stubs{
		UpdateStoreBuffer: asm.NewExternalLabel(updateStoreBuffer.Name, sim.Redirect(updateStoreBuffer).Address()),
	}
	add := &asm.RuntimeEntry{Name: hostAdd.Name, Address: sim.Redirect(hostAdd).Address(), IsLeaf: true, ArgumentCount: 2}

	w := uint64(arch.WordSize())
	oldObject := uint64(demoDataBase + asm.HeapObjectTag)
	newObject := demoDataBase + 0x100 + w + asm.HeapObjectTag

	var builders []func() (demoProgram, error)
	switch arch {
	case sim.ArchARM:
		builders = armDemos(features, stubs, add)
	case sim.ArchARM64:
		builders = arm64Demos(features, stubs, add)
	case sim.ArchMIPS:
		builders = mipsDemos(features, stubs, add)
	default:
		return nil, fmt.Errorf("no assembler for %v", arch)
	}
	for _, b := range builders {
		p, err := b()
		if err != nil {
			return nil, err
		}
		if p.name == "write-barrier" {
			p.args = []uint64{oldObject, newObject}
			p.stored = &newObject
		}
		progs = append(progs, p)
	}
	return progs, nil
}

func armDemos(features cpu.Features, stubs asm.Stubs, add *asm.RuntimeEntry) []func() (demoProgram, error) {
	newAsm := func() *arm.Assembler { return arm.New(arm.WithFeatures(features), arm.WithStubs(stubs)) }
	return []func() (demoProgram, error){
		func() (demoProgram, error) {
			a := newAsm()
			a.LoadImmediate(arm.R0, 0x12345678)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "wide-constant", code: code, want: 0x12345678}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			skip := asm.NewLabel()
			a.Mov(arm.R0, arm.Imm(0, 1))
			a.B(skip)
			a.Mov(arm.R0, arm.Imm(0, 2))
			a.Bind(skip)
			a.Add(arm.R0, arm.R0, arm.Imm(0, 10))
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "forward-branch", code: code, want: 11}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			a.StoreIntoObjectOffset(arm.R0, 8, arm.R1, true)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "write-barrier", code: code}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			regs := arm.Regs(arm.R4, arm.LR)
			a.PushList(regs)
			a.Mov(arm.R4, arm.Imm(0, 5))
			a.CallRuntime(add, 2)
			a.Add(arm.R0, arm.R0, arm.Reg(arm.R4))
			a.PopList(regs)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "redirected", code: code, args: []uint64{20, 22}, want: 47}, err
		},
	}
}

func arm64Demos(features cpu.Features, stubs asm.Stubs, add *asm.RuntimeEntry) []func() (demoProgram, error) {
	newAsm := func() *arm64.Assembler { return arm64.New(arm64.WithFeatures(features), arm64.WithStubs(stubs)) }
	return []func() (demoProgram, error){
		func() (demoProgram, error) {
			a := newAsm()
			a.LoadImmediate(arm64.R0, 0x12345678)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "wide-constant", code: code, want: 0x12345678}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			skip := asm.NewLabel()
			a.Movz(arm64.R0, 1, 0)
			a.B(skip)
			a.Movz(arm64.R0, 2, 0)
			a.Bind(skip)
			a.Add(arm64.R0, arm64.R0, arm64.Imm(10))
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "forward-branch", code: code, want: 11}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			a.StoreIntoObjectOffset(arm64.R0, 8, arm64.R1, true)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "write-barrier", code: code}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			a.PushPair(arm64.R19, arm64.LR)
			a.Movz(arm64.R19, 5, 0)
			a.CallRuntime(add, 2)
			a.Add(arm64.R0, arm64.R0, arm64.Reg(arm64.R19))
			a.PopPair(arm64.R19, arm64.LR)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "redirected", code: code, args: []uint64{20, 22}, want: 47}, err
		},
	}
}

func mipsDemos(features cpu.Features, stubs asm.Stubs, add *asm.RuntimeEntry) []func() (demoProgram, error) {
	newAsm := func() *mips.Assembler { return mips.New(mips.WithFeatures(features), mips.WithStubs(stubs)) }
	return []func() (demoProgram, error){
		func() (demoProgram, error) {
			a := newAsm()
			a.LoadImmediate(mips.V0, 0x12345678)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "wide-constant", code: code, want: 0x12345678}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			skip := asm.NewLabel()
			a.Addiu(mips.V0, mips.ZR, 1)
			a.B(skip)
			a.Addiu(mips.V0, mips.ZR, 2)
			a.Bind(skip)
			a.Addiu(mips.V0, mips.V0, 10)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "forward-branch", code: code, want: 11}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			a.StoreIntoObjectOffset(mips.A0, 8, mips.A1, true)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "write-barrier", code: code}, err
		},
		func() (demoProgram, error) {
			a := newAsm()
			regs := mips.Regs(mips.S0, mips.RA)
			a.PushList(regs)
			a.Addiu(mips.S0, mips.ZR, 5)
			a.CallRuntime(add, 2)
			a.Addu(mips.V0, mips.V0, mips.S0)
			a.PopList(regs)
			a.Ret()
			code, err := finalize(a)
			return demoProgram{name: "redirected", code: code, args: []uint64{20, 22}, want: 47}, err
		},
	}
}
