// Package mipssim simulates the MIPS32 instructions the mips assembler
// emits, including branch delay slots, the FPU subset, redirected host
// calls, breakpoints and ll/sc through the shared exclusive monitor.
package mipssim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

// breakWord encodes break code.
func breakWord(code uint32) uint32 {
	return mips.BreakField.Encode(code) | uint32(mips.BREAK)
}

// Trap words the simulator plants or synthesizes.
var (
	redirectWord   = breakWord(mips.RedirectionBreak)
	breakpointWord = breakWord(mips.BreakpointBreak)
)

var calleeSaved = mips.CalleeSavedCPURegs

// Simulator is a MIPS32 software CPU.
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
	inSlot bool
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
	s.log = s.log.WithField("arch", sim.ArchMIPS.String())
	s.icache = sim.NewICache(s.config.ICache())

	stack, err := s.mem.MapStack(fmt.Sprintf("stack-mips-%d", s.owner), s.config.StackSize, uint64(s.config.StackGuard))
	if err != nil {
		return nil, err
	}
	s.stack = stack
	s.regs.R[mips.SP] = uint32(stack.Top())
	s.regs.R[mips.RA] = uint32(sim.BadLR32)
	s.stopAt = s.config.StopAfter

	return s, nil
}

// Registers returns the register file.
func (s *Simulator) Registers() *RegFile { return &s.regs }

// Register returns general-purpose register r.
func (s *Simulator) Register(r mips.Register) uint32 { return s.regs.Reg(r) }

// SetRegister writes general-purpose register r.
func (s *Simulator) SetRegister(r mips.Register, v uint32) { s.regs.SetReg(r, v) }

// PC returns the address of the next instruction to execute.
func (s *Simulator) PC() uint64 { return uint64(s.regs.PC) }

// SetPC sets the address of the next instruction.
func (s *Simulator) SetPC(pc uint64) { s.setPC(pc) }

func (s *Simulator) setPC(pc uint64) {
	s.regs.PC = uint32(pc)
	s.nextPC = uint32(pc)
}

// Memory returns the simulated address space.
func (s *Simulator) Memory() *sim.Memory { return s.mem }

// Stack returns the simulator's stack.
func (s *Simulator) Stack() *sim.Stack { return s.stack }

// ICache returns the instruction cache.
func (s *Simulator) ICache() *sim.ICache { return s.icache }

// Features returns the simulated CPU features.
func (s *Simulator) Features() cpu.Features { return s.features }

// InstructionCount returns the number of instructions executed, delay
// slots included.
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
	end := uint32(sim.EndSimulatingPC32)
	for s.regs.PC != end {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction. A branch executes together with its
// delay slot.
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

	pc := s.regs.PC
	word, err := s.fetch(pc)
	if err != nil {
		return sim.AtPC(err, uint64(pc), 0)
	}
	if s.config.Trace {
		s.trace(pc, word)
	}
	s.icount++
	s.nextPC = pc + mips.InstrSize
	if err := s.execute(Decode(word)); err != nil {
		return sim.AtPC(err, uint64(pc), word)
	}
	s.regs.PC = s.nextPC
	return nil
}

func (s *Simulator) fetch(pc uint32) (uint32, error) {
	if sim.IsRedirectionAddress(uint64(pc)) {
		return redirectWord, nil
	}
	if pc%mips.InstrSize != 0 {
		return 0, sim.Unaligned(uint64(pc), uint64(pc), mips.InstrSize)
	}
	return s.icache.Fetch(uint64(pc), s.mem)
}

// executeDelaySlot runs the instruction after the branch at pc. A
// breakpoint planted on the slot is stepped over with its original word.
func (s *Simulator) executeDelaySlot(pc uint32) error {
	slot := pc + mips.InstrSize
	word, err := s.fetch(slot)
	if err != nil {
		return err
	}
	if word == breakpointWord && s.bp.Active() && s.bp.Address() == uint64(slot) {
		word = s.bp.Original()
	}
	i := mips.Instr(word)
	if i.IsBranch() || i.IsBreak() {
		return sim.Unsupported(uint64(slot), word, "control transfer in a delay slot")
	}
	if s.config.Trace {
		s.trace(slot, word)
	}
	s.icount++
	s.inSlot = true
	defer func() { s.inSlot = false }()
	return s.execute(Decode(word))
}

func (s *Simulator) trace(pc, word uint32) {
	s.log.WithFields(logrus.Fields{
		"pc":     fmt.Sprintf("0x%08x", pc),
		"instr":  fmt.Sprintf("%08x", word),
		"icount": s.icount,
	}).Debug(disasm.MIPS(word, uint64(pc)))
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

// pc returns the address of the instruction being executed, which is the
// slot address while a delay slot runs.
func (s *Simulator) pc() uint64 {
	if s.inSlot {
		return uint64(s.regs.PC) + mips.InstrSize
	}
	return uint64(s.regs.PC)
}

func (s *Simulator) execute(d Decoded) error {
	i := d.Instr
	switch d.Class {
	case ClassNop:
		return nil
	case ClassUnknown:
		return sim.Unknown(s.pc(), uint32(i), "")
	case ClassUnsupported:
		return sim.Unsupported(s.pc(), uint32(i), d.Reason)
	case ClassShift:
		s.executeShift(i)
		return nil
	case ClassALU:
		s.executeALU(i)
		return nil
	case ClassMultiply:
		s.executeMultiply(i)
		return nil
	case ClassHiLo:
		s.executeHiLo(i)
		return nil
	case ClassSpecial2:
		return s.executeSpecial2(i)
	case ClassSpecial3:
		return s.executeSpecial3(i)
	case ClassImmediate:
		s.executeImmediate(i)
		return nil
	case ClassJumpRegister:
		return s.executeJumpRegister(i)
	case ClassBranch:
		return s.executeBranch(i)
	case ClassJump:
		return s.executeJump(i)
	case ClassBreak:
		return s.executeBreak(i)
	case ClassLoadStore:
		return s.executeLoadStore(i)
	case ClassLoadLinked:
		return s.executeLoadLinked(i)
	case ClassStoreConditional:
		return s.executeStoreConditional(i)
	case ClassFPULoadStore:
		return s.executeFPULoadStore(i)
	case ClassFPUMove:
		s.executeFPUMove(i)
		return nil
	case ClassFPUBranch:
		return s.executeFPUBranch(i)
	case ClassFPUCompare:
		return s.executeFPUCompare(i)
	case ClassFPUArith:
		return s.executeFPUArith(i)
	default:
		return sim.Unknown(s.pc(), uint32(i), "class %s", d.Class)
	}
}

// Call runs the code at entry with up to four arguments in A0-A3 and the
// rest in their o32 stack slots, returning V0. T9 holds entry on entry.
// Callee-saved registers and SP must survive the call.
func (s *Simulator) Call(entry uint64, args ...uint64) (uint64, error) {
	savedRegs := s.regs.R
	savedPC := s.regs.PC
	savedNext := s.nextPC
	sp := s.regs.R[mips.SP]

	callSP := sp
	if len(args) > 4 {
		callSP = (sp - uint32(4*len(args))) &^ 7
		for k := 4; k < len(args); k++ {
			if err := s.mem.Write32(uint64(callSP)+uint64(4*k), uint32(args[k])); err != nil {
				return 0, fmt.Errorf("pushing argument %d: %w", k, err)
			}
		}
	}
	for k, a := range args {
		if k == 4 {
			break
		}
		s.regs.R[mips.A0+mips.Register(k)] = uint32(a)
	}
	s.regs.R[mips.SP] = callSP
	s.regs.R[mips.T9] = uint32(entry)
	s.regs.R[mips.RA] = uint32(sim.EndSimulatingPC32)
	s.setPC(entry)

	err := s.Execute()
	if err == nil {
		err = s.checkCalleeSaved(savedRegs, callSP)
	}

	s.regs.R[mips.SP] = sp
	s.regs.R[mips.RA] = uint32(sim.BadLR32)
	s.regs.PC = savedPC
	s.nextPC = savedNext
	if err != nil {
		return 0, err
	}
	return uint64(s.regs.R[mips.V0]), nil
}

func (s *Simulator) checkCalleeSaved(saved [32]uint32, sp uint32) error {
	for r := mips.ZR; r < mips.NumRegisters; r++ {
		if calleeSaved.Has(r) && s.regs.R[r] != saved[r] {
			return &sim.FatalError{
				Kind:    sim.FaultClobberedRegister,
				PC:      sim.EndSimulatingPC32,
				Message: fmt.Sprintf("%s changed from 0x%08x to 0x%08x", r, saved[r], s.regs.R[r]),
			}
		}
	}
	if s.regs.R[mips.SP] != sp {
		return &sim.FatalError{
			Kind:    sim.FaultClobberedRegister,
			PC:      sim.EndSimulatingPC32,
			Message: fmt.Sprintf("sp is 0x%08x, expected 0x%08x", s.regs.R[mips.SP], sp),
		}
	}
	return nil
}

// CallFloat runs the code at entry with up to two double arguments in
// f12 and f14 and returns the double in f0.
func (s *Simulator) CallFloat(entry uint64, args ...float64) (float64, error) {
	if len(args) > 2 {
		return 0, fmt.Errorf("%d double arguments, at most 2 supported", len(args))
	}
	for k, a := range args {
		s.regs.SetDFloat(mips.FloatArg0+mips.DRegister(k), a)
	}
	if _, err := s.Call(entry); err != nil {
		return 0, err
	}
	return s.regs.DFloat(mips.FloatResult), nil
}
