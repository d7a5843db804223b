// Package armsim simulates the ARM32 instructions the arm assembler
// emits: integer, VFP and the NEON subset, with redirected host calls,
// breakpoints and the exclusive monitor.
package armsim

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/sim"
)

// Trap words the simulator plants or synthesizes.
const (
	redirectWord   = 0xef000000 | arm.RedirectionSVC
	breakpointWord = 0xef000000 | arm.BreakpointSVC
)

var calleeSaved = arm.CalleeSavedCPURegs

// Simulator is an ARM32 software CPU.
type Simulator struct {
	regs RegFile

	mem     *sim.Memory
	stack   *sim.Stack
	icache  *sim.ICache
	monitor *sim.Monitor
	owner   sim.OwnerID

	features cpu.Features
	config   *config.Config
	log      logrus.FieldLogger
	stdout   io.Writer

	debugger sim.Debugger
	bp       sim.Breakpoint

	nextPC uint32
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

// WithMonitor sets the exclusive monitor shared with other simulators.
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
		owner:    sim.NewOwnerID(),
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
	s.log = s.log.WithField("arch", sim.ArchARM.String())
	s.icache = sim.NewICache(s.config.ICache())

	stack, err := s.mem.MapStack(fmt.Sprintf("stack-arm-%d", s.owner), s.config.StackSize, uint64(s.config.StackGuard))
	if err != nil {
		return nil, err
	}
	s.stack = stack
	s.regs.R[arm.SP] = uint32(stack.Top())
	s.regs.R[arm.LR] = uint32(sim.BadLR32)
	s.stopAt = s.config.StopAfter

	return s, nil
}

// Registers returns the register file.
func (s *Simulator) Registers() *RegFile { return &s.regs }

// Register returns core register r. PC reads as the current instruction
// address.
func (s *Simulator) Register(r arm.Register) uint32 { return s.regs.R[r] }

// SetRegister writes core register r.
func (s *Simulator) SetRegister(r arm.Register, v uint32) {
	if r == arm.PC {
		s.setPC(uint64(v))
		return
	}
	s.regs.R[r] = v
}

// PC returns the address of the next instruction to execute.
func (s *Simulator) PC() uint64 { return uint64(s.regs.R[arm.PC]) }

// SetPC sets the address of the next instruction.
func (s *Simulator) SetPC(pc uint64) { s.setPC(pc) }

func (s *Simulator) setPC(pc uint64) {
	s.regs.R[arm.PC] = uint32(pc)
	s.nextPC = uint32(pc)
}

// Flags returns the APSR condition flags.
func (s *Simulator) Flags() sim.Flags { return s.regs.APSR }

// SetFlags sets the APSR condition flags.
func (s *Simulator) SetFlags(f sim.Flags) { s.regs.APSR = f }

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

// FlushICache invalidates cached instructions in [addr, addr+size). Code
// patched after it may have run must be flushed.
func (s *Simulator) FlushICache(addr uint64, size int) { s.icache.Flush(addr, size) }

// ICacheStats returns the instruction cache counters.
func (s *Simulator) ICacheStats() sim.ICacheStats { return s.icache.Stats() }

// StopAfter hands control to the debugger once n instructions have run.
func (s *Simulator) StopAfter(n uint64) { s.stopAt = n }

// Execute runs until the PC reaches the end-of-simulation sentinel.
func (s *Simulator) Execute() error {
	end := uint32(sim.EndSimulatingPC32)
	for s.regs.R[arm.PC] != end {
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

	pc := s.regs.R[arm.PC]
	word, err := s.fetch(pc)
	if err != nil {
		return sim.AtPC(err, uint64(pc), 0)
	}
	if s.config.Trace {
		s.trace(pc, word)
	}
	s.icount++
	s.nextPC = pc + arm.InstrSize
	if err := s.execute(Decode(word)); err != nil {
		return sim.AtPC(err, uint64(pc), word)
	}
	s.regs.R[arm.PC] = s.nextPC
	return nil
}

func (s *Simulator) fetch(pc uint32) (uint32, error) {
	if sim.IsRedirectionAddress(uint64(pc)) {
		return redirectWord, nil
	}
	if pc%arm.InstrSize != 0 {
		return 0, sim.Unaligned(uint64(pc), uint64(pc), arm.InstrSize)
	}
	return s.icache.Fetch(uint64(pc), s.mem)
}

func (s *Simulator) trace(pc, word uint32) {
	s.log.WithFields(logrus.Fields{
		"pc":     fmt.Sprintf("0x%08x", pc),
		"instr":  fmt.Sprintf("%08x", word),
		"icount": s.icount,
	}).Debug(disasm.ARM(word, uint64(pc)))
}

func (s *Simulator) fail(err error) error {
	var fe *sim.FatalError
	if errors.As(err, &fe) {
		s.log.WithFields(logrus.Fields{
			"pc":     fmt.Sprintf("0x%08x", fe.PC),
			"icount": s.icount,
		}).Error(fe.Error())
	}
	return err
}

func (s *Simulator) pc() uint64 { return uint64(s.regs.R[arm.PC]) }

func (s *Simulator) execute(d Decoded) error {
	i := d.Instr
	switch d.Class {
	case ClassUnknown:
		return sim.Unknown(s.pc(), uint32(i), "")
	case ClassUnsupported:
		return sim.Unsupported(s.pc(), uint32(i), d.Reason)
	case ClassClrex:
		s.monitor.ClearExclusive(s.owner)
		return nil
	case ClassSIMD:
		return s.executeSIMD(i)
	}

	if !sim.EvaluateCondition(sim.Cond(i.Condition()), s.regs.APSR) {
		return nil
	}

	switch d.Class {
	case ClassDataProcessing:
		return s.executeDataProcessing(i)
	case ClassMultiply:
		return s.executeMultiply(i)
	case ClassSyncPrimitive:
		return s.executeSyncPrimitive(i)
	case ClassExtraLoadStore:
		return s.executeExtraLoadStore(i)
	case ClassMisc:
		return s.executeMisc(i)
	case ClassMoveWide:
		s.executeMoveWide(i)
		return nil
	case ClassNop:
		return nil
	case ClassLoadStore:
		return s.executeLoadStore(i)
	case ClassDivision:
		s.executeDivision(i)
		return nil
	case ClassBlockTransfer:
		return s.executeBlockTransfer(i)
	case ClassBranch:
		s.executeBranch(i)
		return nil
	case ClassVFPTwoRegTransfer:
		return s.executeVFPTwoRegTransfer(i)
	case ClassVFPLoadStore:
		return s.executeVFPLoadStore(i)
	case ClassVFPBlockTransfer:
		return s.executeVFPBlockTransfer(i)
	case ClassSVC:
		return s.executeSVC(i)
	case ClassVFPRegTransfer:
		return s.executeVFPRegTransfer(i)
	case ClassVFPDataProcessing:
		return s.executeVFPDataProcessing(i)
	default:
		return sim.Unknown(s.pc(), uint32(i), "class %s", d.Class)
	}
}

// setReg writes a register during execution. Writes to PC become the
// branch target.
func (s *Simulator) setReg(r arm.Register, v uint32) {
	if r == arm.PC {
		s.nextPC = v &^ 3
		return
	}
	s.regs.R[r] = v
}

// Call runs the code at entry with up to four arguments in R0-R3 and the
// rest on the stack, returning R0. Callee-saved registers and SP must
// survive the call.
func (s *Simulator) Call(entry uint64, args ...uint64) (uint64, error) {
	savedRegs := s.regs.R
	savedNext := s.nextPC
	sp := s.regs.R[arm.SP]

	callSP := sp
	if len(args) > 4 {
		extra := args[4:]
		callSP = (sp - uint32(4*len(extra))) &^ 7
		for k, a := range extra {
			if err := s.mem.Write32(uint64(callSP)+uint64(4*k), uint32(a)); err != nil {
				return 0, fmt.Errorf("pushing argument %d: %w", k+4, err)
			}
		}
	}
	for k, a := range args {
		if k == 4 {
			break
		}
		s.regs.R[k] = uint32(a)
	}
	s.regs.R[arm.SP] = callSP
	s.regs.R[arm.LR] = uint32(sim.EndSimulatingPC32)
	s.setPC(entry)

	err := s.Execute()
	if err == nil {
		err = s.checkCalleeSaved(savedRegs, callSP)
	}

	s.regs.R[arm.SP] = sp
	s.regs.R[arm.LR] = uint32(sim.BadLR32)
	s.regs.R[arm.PC] = savedRegs[arm.PC]
	s.nextPC = savedNext
	if err != nil {
		return 0, err
	}
	return uint64(s.regs.R[arm.R0]), nil
}

func (s *Simulator) checkCalleeSaved(saved [16]uint32, sp uint32) error {
	for r := arm.R0; r < arm.NumRegisters; r++ {
		if calleeSaved.Has(r) && s.regs.R[r] != saved[r] {
			return &sim.FatalError{
				Kind:    sim.FaultClobberedRegister,
				PC:      sim.EndSimulatingPC32,
				Message: fmt.Sprintf("%s changed from 0x%08x to 0x%08x", r, saved[r], s.regs.R[r]),
			}
		}
	}
	if s.regs.R[arm.SP] != sp {
		return &sim.FatalError{
			Kind:    sim.FaultClobberedRegister,
			PC:      sim.EndSimulatingPC32,
			Message: fmt.Sprintf("sp is 0x%08x, expected 0x%08x", s.regs.R[arm.SP], sp),
		}
	}
	return nil
}

// CallFloat runs the code at entry with double arguments and returns a
// double, following the hard- or soft-float convention of the features.
func (s *Simulator) CallFloat(entry uint64, args ...float64) (float64, error) {
	if s.features.HardFPSupported() {
		if len(args) > 8 {
			return 0, fmt.Errorf("%d double arguments, at most 8 supported", len(args))
		}
		for k, a := range args {
			s.regs.SetDFloat(arm.DRegister(k), a)
		}
		if _, err := s.Call(entry); err != nil {
			return 0, err
		}
		return s.regs.DFloat(arm.D0), nil
	}

	words := make([]uint64, 0, 2*len(args))
	for _, a := range args {
		b := math.Float64bits(a)
		words = append(words, b&0xffffffff, b>>32)
	}
	if _, err := s.Call(entry, words...); err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(s.regs.R[arm.R1])<<32 | uint64(s.regs.R[arm.R0])), nil
}
