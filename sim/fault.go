// Package sim holds the infrastructure shared by the ARM, ARM64 and MIPS
// simulators: the simulated address space, the global redirection table,
// the exclusive-access monitor, the decoded-instruction cache, and the
// typed fatal conditions a simulation can end with.
package sim

import (
	"errors"
	"fmt"
)

// FaultKind classifies a fatal simulator condition.
type FaultKind uint8

// Fault kinds.
const (
	FaultIllegalAccess FaultKind = iota
	FaultUnalignedAccess
	FaultUnknownInstruction
	FaultUnsupportedInstruction
	FaultBreakpoint
	FaultStop
	FaultClobberedRegister
	FaultICacheMismatch
	FaultStackOverflow
)

func (k FaultKind) String() string {
	switch k {
	case FaultIllegalAccess:
		return "illegal memory access"
	case FaultUnalignedAccess:
		return "unaligned access"
	case FaultUnknownInstruction:
		return "unknown instruction"
	case FaultUnsupportedInstruction:
		return "unsupported instruction"
	case FaultBreakpoint:
		return "breakpoint"
	case FaultStop:
		return "stop"
	case FaultClobberedRegister:
		return "callee-saved register clobbered"
	case FaultICacheMismatch:
		return "instruction cache mismatch"
	case FaultStackOverflow:
		return "stack overflow"
	default:
		return fmt.Sprintf("FaultKind(%d)", uint8(k))
	}
}

// FatalError is a condition the simulated program cannot recover from.
// The embedding VM is expected to print it and abort.
type FatalError struct {
	Kind    FaultKind
	PC      uint64
	Addr    uint64
	Word    uint32
	Message string
}

func (e *FatalError) Error() string {
	switch e.Kind {
	case FaultIllegalAccess, FaultUnalignedAccess, FaultStackOverflow:
		msg := fmt.Sprintf("%s at 0x%08x, pc=0x%08x", e.Kind, e.Addr, e.PC)
		if e.Message != "" {
			msg += ": " + e.Message
		}
		return msg
	case FaultUnknownInstruction, FaultUnsupportedInstruction:
		msg := fmt.Sprintf("%s 0x%08x at pc=0x%08x", e.Kind, e.Word, e.PC)
		if e.Message != "" {
			msg += " (" + e.Message + ")"
		}
		return msg
	default:
		if e.Message != "" {
			return fmt.Sprintf("%s at pc=0x%08x: %s", e.Kind, e.PC, e.Message)
		}
		return fmt.Sprintf("%s at pc=0x%08x", e.Kind, e.PC)
	}
}

// ErrMaxInstructions is returned when the configured instruction limit
// elapses and no debugger is attached to take over.
var ErrMaxInstructions = errors.New("sim: instruction limit reached")

// ErrBreakpointInUse is returned when a second breakpoint is requested.
var ErrBreakpointInUse = errors.New("sim: a breakpoint is already set")

// AtPC stamps pc and word onto a FatalError propagated from a component
// that does not know the faulting instruction, such as Memory.
func AtPC(err error, pc uint64, word uint32) error {
	var fe *FatalError
	if errors.As(err, &fe) && fe.PC == 0 {
		fe.PC = pc
		if fe.Word == 0 {
			fe.Word = word
		}
	}
	return err
}

// IsFault reports whether err is a FatalError of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var fe *FatalError
	return errors.As(err, &fe) && fe.Kind == kind
}

// Unknown returns the fatal error for an undecodable word.
func Unknown(pc uint64, word uint32, format string, args ...any) *FatalError {
	return &FatalError{
		Kind:    FaultUnknownInstruction,
		PC:      pc,
		Word:    word,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unsupported returns the fatal error for a decodable word this simulator
// deliberately does not implement.
func Unsupported(pc uint64, word uint32, what string) *FatalError {
	return &FatalError{
		Kind:    FaultUnsupportedInstruction,
		PC:      pc,
		Word:    word,
		Message: what,
	}
}

// Unaligned returns the fatal error for a misaligned access.
func Unaligned(pc, addr uint64, size int) *FatalError {
	return &FatalError{
		Kind:    FaultUnalignedAccess,
		PC:      pc,
		Addr:    addr,
		Message: fmt.Sprintf("%d-byte access", size),
	}
}
