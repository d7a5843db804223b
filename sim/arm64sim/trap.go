package arm64sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeException(i arm64.Instr) error {
	imm := i.Imm16()
	switch {
	case i.IsSVC() && imm == arm64.RedirectionSVC:
		return s.redirect(s.pc)
	case i.IsHLT() && imm == arm64.BreakpointImm:
		if s.bp.Active() && s.bp.Address() == s.pc {
			return s.breakpointTrap(s.pc)
		}
		return s.enterDebugger(sim.FaultBreakpoint, s.pc+arm64.InstrSize,
			fmt.Sprintf("breakpoint at 0x%016x", s.pc))
	case i.IsHLT() && imm == arm64.StopMessageImm:
		return s.stopTrap(s.pc)
	case i.IsBRK():
		return s.enterDebugger(sim.FaultBreakpoint, s.pc+arm64.InstrSize,
			fmt.Sprintf("brk 0x%04x at 0x%016x", imm, s.pc))
	default:
		return sim.Unsupported(s.pc, uint32(i), fmt.Sprintf("exception 0x%x", imm))
	}
}

// enterDebugger resumes at resume after handing control to the debugger.
// Without a debugger the condition is fatal.
func (s *Simulator) enterDebugger(kind sim.FaultKind, resume uint64, reason string) error {
	if s.debugger == nil {
		return &sim.FatalError{Kind: kind, PC: s.pc, Message: reason}
	}
	s.SetPC(resume)
	return s.debugger.Stop(reason)
}

// breakpointTrap handles the patched breakpoint. The original word is
// restored while the debugger runs and executed once before re-patching.
func (s *Simulator) breakpointTrap(pc uint64) error {
	if err := s.bp.Unpatch(s.mem, s.icache); err != nil {
		return err
	}
	reason := fmt.Sprintf("breakpoint at 0x%016x", pc)
	if s.debugger == nil {
		return &sim.FatalError{Kind: sim.FaultBreakpoint, PC: pc, Message: reason}
	}

	s.nextPC = pc
	if err := s.debugger.Stop(reason); err != nil {
		return err
	}
	if err := s.bp.Unpatch(s.mem, s.icache); err != nil {
		return err
	}
	if s.pc == pc {
		if err := s.step(); err != nil {
			return err
		}
	}
	s.nextPC = s.pc
	return s.bp.Repatch(s.mem, s.icache)
}

// stopTrap reports the message whose id sits in the word before the trap.
func (s *Simulator) stopTrap(pc uint64) error {
	id, err := s.mem.Read32(pc - arm64.InstrSize)
	if err != nil {
		return err
	}
	msg, ok := asm.StopMessage(id)
	if !ok {
		msg = fmt.Sprintf("unknown stop message %d", id)
	}
	fmt.Fprintf(s.stdout, "Simulator hit stop: %s\n", msg)
	return s.enterDebugger(sim.FaultStop, pc+arm64.InstrSize, msg)
}

func (s *Simulator) redirect(pc uint64) error {
	r, ok := sim.RedirectionAt(pc)
	if !ok {
		return &sim.FatalError{
			Kind:    sim.FaultIllegalAccess,
			PC:      pc,
			Addr:    pc,
			Message: "no redirection at this address",
		}
	}
	fn := r.Function()

	call, err := s.marshal(fn)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"redirect": fn.Name,
		"kind":     fn.Kind.String(),
	}).Debug("redirected call")

	lr := s.regs.R[arm64.LR]
	result := fn.Fn(call)

	if s.config.ZapRegisters && !fn.PreservesRegisters {
		s.zapCallerSaved()
	}

	if u := result.Unwind; u != nil {
		s.regs.R[arm64.SP] = u.SP
		s.regs.R[arm64.FP] = u.FP
		s.regs.R[arm64.ExceptionObjectReg] = u.Exception
		s.regs.R[arm64.StackTraceReg] = u.StackTrace
		s.nextPC = u.PC
		return nil
	}

	if fn.Kind == sim.LeafFloatRuntimeCall {
		s.regs.SetDFloat(arm64.V0, result.Float)
	} else {
		s.regs.R[arm64.R0] = result.Value
		if fn.Kind.ReturnsPair() {
			s.regs.R[arm64.R1] = result.Value2
		}
	}
	s.nextPC = lr
	return nil
}

func (s *Simulator) marshal(fn *sim.HostFunction) (*sim.HostCall, error) {
	call := &sim.HostCall{Kind: fn.Kind, Memory: s.mem}
	switch fn.Kind {
	case sim.LeafRuntimeCall:
		call.Args = make([]uint64, fn.ArgCount)
		sp := s.regs.R[csp]
		for k := range call.Args {
			if k < 8 {
				call.Args[k] = s.regs.R[k]
				continue
			}
			v, err := s.mem.Read64(sp + uint64(8*(k-8)))
			if err != nil {
				return nil, err
			}
			call.Args[k] = v
		}
	case sim.LeafFloatRuntimeCall:
		if fn.ArgCount > 8 {
			return nil, fmt.Errorf("%s: %d float arguments, at most 8 supported", fn.Name, fn.ArgCount)
		}
		call.FloatArgs = make([]float64, fn.ArgCount)
		for k := range call.FloatArgs {
			call.FloatArgs[k] = s.regs.DFloat(arm64.VRegister(k))
		}
	case sim.NativeCall:
		call.ArgumentsPtr = s.regs.R[arm64.R0]
		call.Target = s.regs.R[arm64.R1]
	default:
		call.ArgumentsPtr = s.regs.R[arm64.R0]
	}
	return call, nil
}

func (s *Simulator) zapCallerSaved() {
	for r := arm64.R0; r < arm64.CSP; r++ {
		if arm64.VolatileCPURegs.Has(r) {
			s.regs.R[r] = sim.ZapValue64
		}
	}
	for v := arm64.FirstVolatileVReg; v <= arm64.LastVolatileVReg; v++ {
		s.regs.SetD(v, sim.ZapValue64)
	}
	for v := arm64.FirstHighVolatile; v <= arm64.LastHighVolatile; v++ {
		s.regs.SetD(v, sim.ZapValue64)
	}
}
