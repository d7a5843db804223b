// Package arm64sim simulates the A64 instructions the arm64 assembler
// emits: integer, scalar FP and the vector subset, with redirected host
// calls, breakpoints and per-instance exclusive state.
package arm64sim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/sim"
)

// Trap words the simulator plants or synthesizes.
const (
	redirectWord   = arm64.ExceptionBase | arm64.RedirectionSVC<<5 | 1
	breakpointWord = arm64.ExceptionBase | 2<<21 | arm64.BreakpointImm<<5
)

const csp = 31

// Simulator is an A64 software CPU.
type Simulator struct {
	regs RegFile
	pc   uint64

	mem       *sim.Memory
	stack     *sim.Stack
	icache    *sim.ICache
	monitor   *sim.Monitor
	exclusive *sim.ExclusiveState

	features cpu.Features
	config   *config.Config
	log      logrus.FieldLogger
	stdout   io.Writer

	debugger sim.Debugger
	bp       sim.Breakpoint

	nextPC uint64
	icount uint64
	stopAt uint64
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithMemory shares an existing address space.
func WithMemory(mem *sim.Memory) Option {
	return func(s *Simulator) {
		s.mem = mem
	}
}

// WithConfig sets the configuration.
func WithConfig(c *config.Config) Option {
	return func(s *Simulator) {
		s.config = c.Clone()
	}
}

// WithFeatures sets the simulated CPU features before config overrides.
func WithFeatures(f cpu.Features) Option {
	return func(s *Simulator) {
		s.features = f
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Simulator) {
		s.log = l
	}
}

// WithMonitor sets the monitor exclusive stores broadcast through.
func WithMonitor(m *sim.Monitor) Option {
	return func(s *Simulator) {
		s.monitor = m
	}
}

// WithStdout sets where stop messages are printed.
func WithStdout(w io.Writer) Option {
	return func(s *Simulator) {
		s.stdout = w
	}
}

// New creates a simulator with its own stack mapped into memory.
func New(opts ...Option) (*Simulator, error) {
	s := &Simulator{
		config:   config.Default(),
		features: cpu.Simulated(),
		monitor:  sim.DefaultMonitor,
		stdout:   os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s.features = s.config.Features(s.features)
	if s.mem == nil {
		s.mem = sim.NewMemory(sim.WithLowGuard(s.config.LowGuardSize))
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		if s.config.Trace {
			l.SetLevel(logrus.DebugLevel)
		}
		s.log = l
	}
	s.log = s.log.WithField("arch", sim.ArchARM64.String())
	s.icache = sim.NewICache(s.config.ICache())
	s.exclusive = sim.NewExclusiveState(s.monitor)

	stack, err := s.mem.MapStack(fmt.Sprintf("stack-arm64-%d", sim.NewOwnerID()), s.config.StackSize, uint64(s.config.StackGuard))
	if err != nil {
		return nil, err
	}
	s.stack = stack
	s.regs.R[csp] = stack.Top()
	s.regs.R[arm64.SP] = stack.Top()
	s.regs.R[arm64.LR] = sim.BadLR64
	s.stopAt = s.config.StopAfter

	return s, nil
}

// Registers returns the register file.
func (s *Simulator) Registers() *RegFile { return &s.regs }

// Register returns register r. ZR reads as zero.
func (s *Simulator) Register(r arm64.Register) uint64 { return s.regs.Reg(r) }

// SetRegister writes register r. Writes to ZR are discarded.
func (s *Simulator) SetRegister(r arm64.Register, v uint64) { s.regs.SetReg(r, v) }

// PC returns the address of the next instruction to execute.
func (s *Simulator) PC() uint64 { return s.pc }

// SetPC sets the address of the next instruction.
func (s *Simulator) SetPC(pc uint64) {
	s.pc = pc
	s.nextPC = pc
}

// Flags returns the NZCV condition flags.
func (s *Simulator) Flags() sim.Flags { return s.regs.NZCV }

// SetFlags sets the NZCV condition flags.
func (s *Simulator) SetFlags(f sim.Flags) { s.regs.NZCV = f }

// Memory returns the simulated address space.
func (s *Simulator) Memory() *sim.Memory { return s.mem }

// Stack returns the simulator's stack.
func (s *Simulator) Stack() *sim.Stack { return s.stack }

// ICache returns the instruction cache.
func (s *Simulator) ICache() *sim.ICache { return s.icache }

// Features returns the simulated CPU features.
func (s *Simulator) Features() cpu.Features { return s.features }

// InstructionCount returns the number of instructions executed.
func (s *Simulator) InstructionCount() uint64 { return s.icount }

// Attach hands breakpoints, stops and the instruction limit to d. A nil d
// detaches, making those conditions fatal.
func (s *Simulator) Attach(d sim.Debugger) { s.debugger = d }

// FlushICache invalidates cached instructions in [addr, addr+size).
func (s *Simulator) FlushICache(addr uint64, size int) { s.icache.Flush(addr, size) }

// ICacheStats returns the instruction cache counters.
func (s *Simulator) ICacheStats() sim.ICacheStats { return s.icache.Stats() }

// StopAfter hands control to the debugger once n instructions have run.
func (s *Simulator) StopAfter(n uint64) { s.stopAt = n }

// Execute runs until the PC reaches the end-of-simulation sentinel.
func (s *Simulator) Execute() error {
	for s.pc != sim.EndSimulatingPC64 {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction.
func (s *Simulator) Step() error {
	if err := s.step(); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Simulator) step() error {
	if s.stopAt > 0 && s.icount >= s.stopAt {
		s.stopAt = 0
		if s.debugger == nil {
			return sim.ErrMaxInstructions
		}
		if err := s.debugger.Stop(fmt.Sprintf("stopped after %d instructions", s.icount)); err != nil {
			return err
		}
	}

	pc := s.pc
	word, err := s.fetch(pc)
	if err != nil {
		return sim.AtPC(err, pc, 0)
	}
	if s.config.Trace {
		s.trace(pc, word)
	}
	s.icount++
	s.nextPC = pc + arm64.InstrSize
	if err := s.execute(Decode(word)); err != nil {
		return sim.AtPC(err, pc, word)
	}
	s.pc = s.nextPC
	return nil
}

func (s *Simulator) fetch(pc uint64) (uint32, error) {
	if sim.IsRedirectionAddress(pc) {
		return redirectWord, nil
	}
	if pc%arm64.InstrSize != 0 {
		return 0, sim.Unaligned(pc, pc, arm64.InstrSize)
	}
	return s.icache.Fetch(pc, s.mem)
}

func (s *Simulator) trace(pc uint64, word uint32) {
	s.log.WithFields(logrus.Fields{
		"pc":     fmt.Sprintf("0x%016x", pc),
		"instr":  fmt.Sprintf("%08x", word),
		"icount": s.icount,
	}).Debug(disasm.ARM64(word, pc))
}

func (s *Simulator) fail(err error) error {
	var fe *sim.FatalError
	if errors.As(err, &fe) {
		s.log.WithFields(logrus.Fields{
			"pc":     fmt.Sprintf("0x%016x", fe.PC),
			"icount": s.icount,
		}).Error(fe.Error())
	}
	return err
}

func (s *Simulator) execute(d Decoded) error {
	i := d.Instr
	switch d.Class {
	case ClassUnknown:
		return sim.Unknown(s.pc, uint32(i), "")
	case ClassUnsupported:
		return sim.Unsupported(s.pc, uint32(i), d.Reason)
	case ClassPCRel:
		s.executePCRel(i)
	case ClassAddSubImm:
		s.executeAddSubImm(i)
	case ClassLogicalImm:
		return s.executeLogicalImm(i)
	case ClassMoveWide:
		s.executeMoveWide(i)
	case ClassBitfield:
		return s.executeBitfield(i)
	case ClassUncondBranch, ClassCompareBranch, ClassTestBranch, ClassCondBranch:
		s.executeBranch(d.Class, i)
	case ClassBranchReg:
		return s.executeBranchReg(i)
	case ClassException:
		return s.executeException(i)
	case ClassSystem:
		return s.executeSystem(i)
	case ClassExclusive:
		return s.executeExclusive(i)
	case ClassLoadLiteral:
		return s.executeLoadLiteral(i)
	case ClassLoadStorePair:
		return s.executeLoadStorePair(i)
	case ClassLoadStore:
		return s.executeLoadStore(i)
	case ClassLogicalShifted:
		s.executeLogicalShifted(i)
	case ClassAddSubShifted:
		return s.executeAddSubShifted(i)
	case ClassAddSubExtended:
		s.executeAddSubExtended(i)
	case ClassAddSubCarry:
		s.executeAddSubCarry(i)
	case ClassCondCompare:
		s.executeCondCompare(i)
	case ClassCondSelect:
		s.executeCondSelect(i)
	case ClassDP1Source:
		return s.executeDP1Source(i)
	case ClassDP2Source:
		return s.executeDP2Source(i)
	case ClassDP3Source:
		return s.executeDP3Source(i)
	case ClassFP:
		return s.executeFP(i)
	case ClassFP3Source:
		return s.executeFP3Source(i)
	case ClassSIMD:
		return s.executeSIMD(i)
	default:
		return sim.Unknown(s.pc, uint32(i), "class %s", d.Class)
	}
	return nil
}

// Call runs the code at entry with up to eight arguments in X0-X7 and the
// rest on the stack, returning X0. Both CSP and the generated-code SP
// start at the call stack pointer. Callee-saved registers, FP and both
// stack pointers must survive the call.
func (s *Simulator) Call(entry uint64, args ...uint64) (uint64, error) {
	saved := s.regs.R
	savedPC := s.pc
	sp := s.regs.R[csp]

	callSP := sp
	if len(args) > 8 {
		extra := args[8:]
		callSP = (sp - uint64(8*len(extra))) &^ 15
		for k, a := range extra {
			if err := s.mem.Write64(callSP+uint64(8*k), a); err != nil {
				return 0, fmt.Errorf("pushing argument %d: %w", k+8, err)
			}
		}
	}
	for k, a := range args {
		if k == 8 {
			break
		}
		s.regs.R[k] = a
	}
	s.regs.R[csp] = callSP
	s.regs.R[arm64.SP] = callSP
	s.regs.R[arm64.LR] = sim.EndSimulatingPC64
	s.SetPC(entry)

	expect := saved
	expect[csp] = callSP
	err := s.Execute()
	if err == nil {
		err = s.checkCalleeSaved(expect)
	}

	s.regs.R[csp] = sp
	s.regs.R[arm64.SP] = saved[arm64.SP]
	s.regs.R[arm64.LR] = sim.BadLR64
	s.SetPC(savedPC)
	if err != nil {
		return 0, err
	}
	return s.regs.R[arm64.R0], nil
}

func (s *Simulator) checkCalleeSaved(expect [32]uint64) error {
	check := arm64.CalleeSavedCPURegs | arm64.Regs(arm64.FP)
	for r := arm64.R0; r < arm64.CSP; r++ {
		if check.Has(r) && s.regs.R[r] != expect[r] {
			return &sim.FatalError{
				Kind:    sim.FaultClobberedRegister,
				PC:      sim.EndSimulatingPC64,
				Message: fmt.Sprintf("%s changed from 0x%016x to 0x%016x", r, expect[r], s.regs.R[r]),
			}
		}
	}
	if s.regs.R[csp] != expect[csp] {
		return &sim.FatalError{
			Kind:    sim.FaultClobberedRegister,
			PC:      sim.EndSimulatingPC64,
			Message: fmt.Sprintf("csp is 0x%016x, expected 0x%016x", s.regs.R[csp], expect[csp]),
		}
	}
	return nil
}

// CallFloat runs the code at entry with double arguments in D0-D7 and
// returns D0.
func (s *Simulator) CallFloat(entry uint64, args ...float64) (float64, error) {
	if len(args) > 8 {
		return 0, fmt.Errorf("%d double arguments, at most 8 supported", len(args))
	}
	for k, a := range args {
		s.regs.SetDFloat(arm64.VRegister(k), a)
	}
	if _, err := s.Call(entry); err != nil {
		return 0, err
	}
	return s.regs.DFloat(arm64.V0), nil
}
