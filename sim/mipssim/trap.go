package mipssim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/mips"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeBreak(i mips.Instr) error {
	pc := s.regs.PC
	switch i.BreakCode() {
	case mips.RedirectionBreak:
		return s.redirect(pc)
	case mips.BreakpointBreak:
		if s.bp.Active() && s.bp.Address() == uint64(pc) {
			return s.breakpointTrap(pc)
		}
		return s.enterDebugger(sim.FaultBreakpoint, pc+mips.InstrSize,
			fmt.Sprintf("breakpoint at 0x%08x", pc))
	case mips.StopMessageBreak:
		return s.stopTrap(pc)
	default:
		return s.enterDebugger(sim.FaultBreakpoint, pc+mips.InstrSize,
			fmt.Sprintf("break 0x%x at 0x%08x", i.BreakCode(), pc))
	}
}

// enterDebugger resumes at resume after handing control to the debugger.
// Without a debugger the condition is fatal.
func (s *Simulator) enterDebugger(kind sim.FaultKind, resume uint32, reason string) error {
	if s.debugger == nil {
		return &sim.FatalError{Kind: kind, PC: s.pc(), Message: reason}
	}
	s.setPC(uint64(resume))
	return s.debugger.Stop(reason)
}

// breakpointTrap handles the patched breakpoint. The original word is
// restored while the debugger runs and executed once before re-patching.
func (s *Simulator) breakpointTrap(pc uint32) error {
	if err := s.bp.Unpatch(s.mem, s.icache); err != nil {
		return err
	}
	reason := fmt.Sprintf("breakpoint at 0x%08x", pc)
	if s.debugger == nil {
		return &sim.FatalError{Kind: sim.FaultBreakpoint, PC: uint64(pc), Message: reason}
	}

	s.nextPC = pc
	if err := s.debugger.Stop(reason); err != nil {
		return err
	}
	if err := s.bp.Unpatch(s.mem, s.icache); err != nil {
		return err
	}
	if s.regs.PC == pc {
		if err := s.step(); err != nil {
			return err
		}
	}
	s.nextPC = s.regs.PC
	return s.bp.Repatch(s.mem, s.icache)
}

// stopTrap reports the message whose id sits in the word before the trap.
func (s *Simulator) stopTrap(pc uint32) error {
	id, err := s.mem.Read32(uint64(pc) - mips.InstrSize)
	if err != nil {
		return err
	}
	msg, ok := asm.StopMessage(id)
	if !ok {
		msg = fmt.Sprintf("unknown stop message %d", id)
	}
	fmt.Fprintf(s.stdout, "Simulator hit stop: %s\n", msg)
	return s.enterDebugger(sim.FaultStop, pc+mips.InstrSize, msg)
}

func (s *Simulator) redirect(pc uint32) error {
	r, ok := sim.RedirectionAt(uint64(pc))
	if !ok {
		return &sim.FatalError{
			Kind:    sim.FaultIllegalAccess,
			PC:      uint64(pc),
			Addr:    uint64(pc),
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

	ra := s.regs.R[mips.RA]
	result := fn.Fn(call)

	if s.config.ZapRegisters && !fn.PreservesRegisters {
		s.zapCallerSaved()
	}

	if u := result.Unwind; u != nil {
		s.regs.R[mips.SP] = uint32(u.SP)
		s.regs.R[mips.FP] = uint32(u.FP)
		s.regs.R[mips.ExceptionObjectReg] = uint32(u.Exception)
		s.regs.R[mips.StackTraceReg] = uint32(u.StackTrace)
		s.nextPC = uint32(u.PC)
		return nil
	}

	if fn.Kind == sim.LeafFloatRuntimeCall {
		s.regs.SetDFloat(mips.FloatResult, result.Float)
	} else {
		s.regs.R[mips.V0] = uint32(result.Value)
		if fn.Kind.ReturnsPair() {
			s.regs.R[mips.V1] = uint32(result.Value2)
		}
	}
	s.nextPC = ra
	return nil
}

// marshal collects the arguments of a redirected call. Leaf arguments
// past the fourth live in their o32 slots at SP+4*k.
func (s *Simulator) marshal(fn *sim.HostFunction) (*sim.HostCall, error) {
	call := &sim.HostCall{Kind: fn.Kind, Memory: s.mem}
	switch fn.Kind {
	case sim.LeafRuntimeCall:
		call.Args = make([]uint64, fn.ArgCount)
		sp := uint64(s.regs.R[mips.SP])
		for k := range call.Args {
			if k < 4 {
				call.Args[k] = uint64(s.regs.R[mips.A0+mips.Register(k)])
				continue
			}
			v, err := s.mem.Read32(sp + uint64(4*k))
			if err != nil {
				return nil, err
			}
			call.Args[k] = uint64(v)
		}
	case sim.LeafFloatRuntimeCall:
		if fn.ArgCount > 2 {
			return nil, fmt.Errorf("%s: %d float arguments, at most 2 supported", fn.Name, fn.ArgCount)
		}
		call.FloatArgs = make([]float64, fn.ArgCount)
		for k := range call.FloatArgs {
			call.FloatArgs[k] = s.regs.DFloat(mips.FloatArg0 + mips.DRegister(k))
		}
	case sim.NativeCall:
		call.ArgumentsPtr = uint64(s.regs.R[mips.A0])
		call.Target = uint64(s.regs.R[mips.A1])
	default:
		call.ArgumentsPtr = uint64(s.regs.R[mips.A0])
	}
	return call, nil
}

func (s *Simulator) zapCallerSaved() {
	zap := uint32(sim.ZapValue32)
	for r := mips.ZR; r < mips.NumRegisters; r++ {
		if mips.VolatileCPURegs.Has(r) {
			s.regs.R[r] = zap
		}
	}
	s.regs.HI, s.regs.LO = zap, zap
	for d := mips.FirstVolatileDReg; d <= mips.LastVolatileDReg; d++ {
		s.regs.SetD(d, uint64(sim.ZapValue32)<<32|uint64(sim.ZapValue32))
	}
}
