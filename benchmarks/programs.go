package benchmarks

import (
	"fmt"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

// Benchmark defines a single benchmark program. Programs are called with
// the iteration count and the address of a scratch data region.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Build assembles the program for arch.
	Build func(arch sim.Arch, features cpu.Features) ([]byte, error)

	// Expected computes the return value for n iterations.
	Expected func(n uint64) uint64
}

var hostIncrement = &sim.HostFunction{
	Name:     "Increment",
	Kind:     sim.LeafRuntimeCall,
	ArgCount: 2,
	Fn: func(c *sim.HostCall) sim.CallResult {
		return sim.CallResult{Value: c.Args[0] + c.Args[1]}
	},
}

func incrementEntry() *asm.RuntimeEntry {
	return &asm.RuntimeEntry{
		Name:          hostIncrement.Name,
		Address:       sim.Redirect(hostIncrement).Address(),
		IsLeaf:        true,
		ArgumentCount: 2,
	}
}

func triangle(n uint64) uint64 { return n * (n + 1) / 2 }

func identity(n uint64) uint64 { return n }

type emitters struct {
	arm   func(a *arm.Assembler)
	arm64 func(a *arm64.Assembler)
	mips  func(a *mips.Assembler)
}

// build assembles the variant of a program for arch. Assembler
// assertions surface as errors.
func (e emitters) build(arch sim.Arch, features cpu.Features) (code []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			ae, ok := r.(*asm.AssertionError)
			if !ok {
				panic(r)
			}
			err = ae
		}
	}()

	var b interface {
		CodeSize() int
		Buffer() *asm.Buffer
	}
	switch arch {
	case sim.ArchARM:
		a := arm.New(arm.WithFeatures(features))
		e.arm(a)
		b = a
	case sim.ArchARM64:
		a := arm64.New(arm64.WithFeatures(features))
		e.arm64(a)
		b = a
	case sim.ArchMIPS:
		a := mips.New(mips.WithFeatures(features))
		e.mips(a)
		b = a
	default:
		return nil, fmt.Errorf("no assembler for %v", arch)
	}
	code = make([]byte, b.CodeSize())
	if err := b.Buffer().Finalize(code); err != nil {
		return nil, err
	}
	return code, nil
}

// Loop sums 1..n in registers.
func Loop() Benchmark {
	e := emitters{
		arm: func(a *arm.Assembler) {
			top := asm.NewLabel()
			a.Mov(arm.R1, arm.Reg(arm.R0))
			a.Mov(arm.R0, arm.Imm(0, 0))
			a.Bind(top)
			a.Add(arm.R0, arm.R0, arm.Reg(arm.R1))
			a.Subs(arm.R1, arm.R1, arm.Imm(0, 1))
			a.B(top, arm.NE)
			a.Ret()
		},
		arm64: func(a *arm64.Assembler) {
			top := asm.NewLabel()
			a.Mov(arm64.R1, arm64.R0)
			a.Movz(arm64.R0, 0, 0)
			a.Bind(top)
			a.Add(arm64.R0, arm64.R0, arm64.Reg(arm64.R1))
			a.Subs(arm64.R1, arm64.R1, arm64.Imm(1))
			a.B(top, arm64.NE)
			a.Ret()
		},
		mips: func(a *mips.Assembler) {
			top := asm.NewLabel()
			a.Move(mips.T0, mips.A0)
			a.Move(mips.V0, mips.ZR)
			a.Bind(top)
			a.Addu(mips.V0, mips.V0, mips.T0)
			a.Addiu(mips.T0, mips.T0, -1)
			a.Bnez(mips.T0, top)
			a.Ret()
		},
	}
	return Benchmark{
		Name:        "loop",
		Description: "Counted loop summing 1..n in registers",
		Build:       e.build,
		Expected:    triangle,
	}
}

// Memory stores the counter to memory and loads it back every iteration.
func Memory() Benchmark {
	e := emitters{
		arm: func(a *arm.Assembler) {
			top := asm.NewLabel()
			a.Mov(arm.R2, arm.Reg(arm.R0))
			a.Mov(arm.R0, arm.Imm(0, 0))
			a.Bind(top)
			a.Str(arm.R2, arm.Mem(arm.R1, 0))
			a.Ldr(arm.R3, arm.Mem(arm.R1, 0))
			a.Add(arm.R0, arm.R0, arm.Reg(arm.R3))
			a.Subs(arm.R2, arm.R2, arm.Imm(0, 1))
			a.B(top, arm.NE)
			a.Ret()
		},
		arm64: func(a *arm64.Assembler) {
			top := asm.NewLabel()
			a.Mov(arm64.R2, arm64.R0)
			a.Movz(arm64.R0, 0, 0)
			a.Bind(top)
			a.Str(arm64.R2, arm64.Mem(arm64.R1, 0))
			a.Ldr(arm64.R3, arm64.Mem(arm64.R1, 0))
			a.Add(arm64.R0, arm64.R0, arm64.Reg(arm64.R3))
			a.Subs(arm64.R2, arm64.R2, arm64.Imm(1))
			a.B(top, arm64.NE)
			a.Ret()
		},
		mips: func(a *mips.Assembler) {
			top := asm.NewLabel()
			a.Move(mips.T0, mips.A0)
			a.Move(mips.V0, mips.ZR)
			a.Bind(top)
			a.Sw(mips.T0, mips.Mem(mips.A1, 0))
			a.Lw(mips.T1, mips.Mem(mips.A1, 0))
			a.Addu(mips.V0, mips.V0, mips.T1)
			a.Addiu(mips.T0, mips.T0, -1)
			a.Bnez(mips.T0, top)
			a.Ret()
		},
	}
	return Benchmark{
		Name:        "memory",
		Description: "Store and reload of the loop counter through simulated memory",
		Build:       e.build,
		Expected:    triangle,
	}
}

// Calls branches and links to a leaf function n times.
func Calls() Benchmark {
	e := emitters{
		arm: func(a *arm.Assembler) {
			top, leaf := asm.NewLabel(), asm.NewLabel()
			regs := arm.Regs(arm.R4, arm.LR)
			a.PushList(regs)
			a.Mov(arm.R4, arm.Reg(arm.R0))
			a.Mov(arm.R0, arm.Imm(0, 0))
			a.Bind(top)
			a.Bl(leaf)
			a.Subs(arm.R4, arm.R4, arm.Imm(0, 1))
			a.B(top, arm.NE)
			a.PopList(regs)
			a.Ret()
			a.Bind(leaf)
			a.Add(arm.R0, arm.R0, arm.Imm(0, 1))
			a.Ret()
		},
		arm64: func(a *arm64.Assembler) {
			top, leaf := asm.NewLabel(), asm.NewLabel()
			a.PushPair(arm64.R19, arm64.LR)
			a.Mov(arm64.R19, arm64.R0)
			a.Movz(arm64.R0, 0, 0)
			a.Bind(top)
			a.Bl(leaf)
			a.Subs(arm64.R19, arm64.R19, arm64.Imm(1))
			a.B(top, arm64.NE)
			a.PopPair(arm64.R19, arm64.LR)
			a.Ret()
			a.Bind(leaf)
			a.Add(arm64.R0, arm64.R0, arm64.Imm(1))
			a.Ret()
		},
		mips: func(a *mips.Assembler) {
			top, leaf := asm.NewLabel(), asm.NewLabel()
			regs := mips.Regs(mips.S0, mips.RA)
			a.PushList(regs)
			a.Move(mips.S0, mips.A0)
			a.Move(mips.V0, mips.ZR)
			a.Bind(top)
			a.Bal(leaf)
			a.Addiu(mips.S0, mips.S0, -1)
			a.Bnez(mips.S0, top)
			a.PopList(regs)
			a.Ret()
			a.Bind(leaf)
			a.Addiu(mips.V0, mips.V0, 1)
			a.Ret()
		},
	}
	return Benchmark{
		Name:        "calls",
		Description: "Branch-and-link to a leaf that increments the result",
		Build:       e.build,
		Expected:    identity,
	}
}

// HostCalls calls a redirected host function n times.
func HostCalls() Benchmark {
	e := emitters{
		arm: func(a *arm.Assembler) {
			top := asm.NewLabel()
			entry := incrementEntry()
			regs := arm.Regs(arm.R4, arm.R5, arm.R6, arm.LR)
			a.PushList(regs)
			a.Mov(arm.R4, arm.Reg(arm.R0))
			a.Mov(arm.R5, arm.Imm(0, 0))
			a.Bind(top)
			a.Mov(arm.R0, arm.Reg(arm.R5))
			a.Mov(arm.R1, arm.Imm(0, 1))
			a.CallRuntime(entry, 2)
			a.Mov(arm.R5, arm.Reg(arm.R0))
			a.Subs(arm.R4, arm.R4, arm.Imm(0, 1))
			a.B(top, arm.NE)
			a.Mov(arm.R0, arm.Reg(arm.R5))
			a.PopList(regs)
			a.Ret()
		},
		arm64: func(a *arm64.Assembler) {
			top := asm.NewLabel()
			entry := incrementEntry()
			a.PushPair(arm64.R19, arm64.LR)
			a.PushPair(arm64.R20, arm64.R21)
			a.Mov(arm64.R19, arm64.R0)
			a.Movz(arm64.R20, 0, 0)
			a.Bind(top)
			a.Mov(arm64.R0, arm64.R20)
			a.Movz(arm64.R1, 1, 0)
			a.CallRuntime(entry, 2)
			a.Mov(arm64.R20, arm64.R0)
			a.Subs(arm64.R19, arm64.R19, arm64.Imm(1))
			a.B(top, arm64.NE)
			a.Mov(arm64.R0, arm64.R20)
			a.PopPair(arm64.R20, arm64.R21)
			a.PopPair(arm64.R19, arm64.LR)
			a.Ret()
		},
		mips: func(a *mips.Assembler) {
			top := asm.NewLabel()
			entry := incrementEntry()
			regs := mips.Regs(mips.S0, mips.S1, mips.S2, mips.RA)
			a.PushList(regs)
			a.Move(mips.S0, mips.A0)
			a.Move(mips.S1, mips.ZR)
			a.Bind(top)
			a.Move(mips.A0, mips.S1)
			a.Addiu(mips.A1, mips.ZR, 1)
			a.CallRuntime(entry, 2)
			a.Move(mips.S1, mips.V0)
			a.Addiu(mips.S0, mips.S0, -1)
			a.Bnez(mips.S0, top)
			a.Move(mips.V0, mips.S1)
			a.PopList(regs)
			a.Ret()
		},
	}
	return Benchmark{
		Name:        "host_calls",
		Description: "Leaf runtime call to a redirected host function",
		Build:       e.build,
		Expected:    identity,
	}
}

// GetMicroBenchmarks returns every benchmark program.
func GetMicroBenchmarks() []Benchmark {
	return []Benchmark{
		Loop(),
		Memory(),
		Calls(),
		HostCalls(),
	}
}
