package armsim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) executeSVC(i arm.Instr) error {
	pc := s.regs.R[arm.PC]
	switch i.SVCImm() {
	case arm.RedirectionSVC:
		return s.redirect(pc)
	case arm.BreakpointSVC:
		if s.bp.Active() && s.bp.Address() == uint64(pc) {
			return s.breakpointTrap(pc)
		}
		return s.enterDebugger(sim.FaultBreakpoint, pc+arm.InstrSize,
			fmt.Sprintf("breakpoint at 0x%08x", pc))
	case arm.StopMessageSVC:
		return s.stopTrap(pc)
	default:
		return sim.Unsupported(uint64(pc), uint32(i), fmt.Sprintf("svc 0x%x", i.SVCImm()))
	}
}

func (s *Simulator) compiledBreakpoint(i arm.Instr) error {
	pc := s.regs.R[arm.PC]
	return s.enterDebugger(sim.FaultBreakpoint, pc+arm.InstrSize,
		fmt.Sprintf("bkpt 0x%04x at 0x%08x", i.BkptImm(), pc))
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
	if s.regs.R[arm.PC] == pc {
		if err := s.step(); err != nil {
			return err
		}
	}
	s.nextPC = s.regs.R[arm.PC]
	return s.bp.Repatch(s.mem, s.icache)
}

// stopTrap reports the message whose id sits in the word before the trap.
func (s *Simulator) stopTrap(pc uint32) error {
	id, err := s.mem.Read32(uint64(pc) - arm.InstrSize)
	if err != nil {
		return err
	}
	msg, ok := asm.StopMessage(id)
	if !ok {
		msg = fmt.Sprintf("unknown stop message %d", id)
	}
	fmt.Fprintf(s.stdout, "Simulator hit stop: %s\n", msg)
	return s.enterDebugger(sim.FaultStop, pc+arm.InstrSize, msg)
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

	lr := s.regs.R[arm.LR]
	result := fn.Fn(call)

	if s.config.ZapRegisters && !fn.PreservesRegisters {
		s.zapCallerSaved()
	}

	if u := result.Unwind; u != nil {
		s.regs.R[arm.SP] = uint32(u.SP)
		s.regs.R[arm.FP] = uint32(u.FP)
		s.regs.R[arm.ExceptionObjectReg] = uint32(u.Exception)
		s.regs.R[arm.StackTraceReg] = uint32(u.StackTrace)
		s.nextPC = uint32(u.PC)
		return nil
	}

	if fn.Kind == sim.LeafFloatRuntimeCall {
		if s.features.HardFPSupported() {
			s.regs.SetDFloat(arm.D0, result.Float)
		} else {
			b := math.Float64bits(result.Float)
			s.regs.R[arm.R0] = uint32(b)
			s.regs.R[arm.R1] = uint32(b >> 32)
		}
	} else {
		s.regs.R[arm.R0] = uint32(result.Value)
		if fn.Kind.ReturnsPair() {
			s.regs.R[arm.R1] = uint32(result.Value2)
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
		sp := uint64(s.regs.R[arm.SP])
		for k := range call.Args {
			if k < 4 {
				call.Args[k] = uint64(s.regs.R[k])
				continue
			}
			v, err := s.mem.Read32(sp + uint64(4*(k-4)))
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
			if s.features.HardFPSupported() {
				call.FloatArgs[k] = s.regs.DFloat(arm.DRegister(k))
				continue
			}
			lo, hi := s.regs.R[2*k], s.regs.R[2*k+1]
			call.FloatArgs[k] = math.Float64frombits(uint64(hi)<<32 | uint64(lo))
		}
	case sim.NativeCall:
		call.ArgumentsPtr = uint64(s.regs.R[arm.R0])
		call.Target = uint64(s.regs.R[arm.R1])
	default:
		call.ArgumentsPtr = uint64(s.regs.R[arm.R0])
	}
	return call, nil
}

func (s *Simulator) zapCallerSaved() {
	zap := uint32(sim.ZapValue32)
	for r := arm.R0; r < arm.NumRegisters; r++ {
		if arm.VolatileCPURegs.Has(r) {
			s.regs.R[r] = zap
		}
	}
	for d := arm.FirstVolatileDReg; d <= arm.LastVolatileDReg; d++ {
		s.regs.SetD(d, uint64(sim.ZapValue32)<<32|uint64(sim.ZapValue32))
	}
}
