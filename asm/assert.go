// Package asm provides the architecture-neutral scaffolding shared by the
// ARM, ARM64 and MIPS assemblers: labels, the instruction buffer, object
// pools, the heap layout contract baked into generated code, and the fatal
// assertion helpers used for code-generation-time programmer errors.
package asm

import (
	"fmt"
	"runtime"
)

// AssertionError is the panic value raised when an assembler precondition
// is violated. It indicates a bug in the code generator, never bad input.
type AssertionError struct {
	Message  string
	Location string
}

func (e *AssertionError) Error() string {
	if e.Location == "" {
		return "assembler assertion failed: " + e.Message
	}
	return fmt.Sprintf("assembler assertion failed at %s: %s", e.Location, e.Message)
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Fatalf aborts code generation with a formatted diagnostic.
func Fatalf(format string, args ...any) {
	panic(&AssertionError{
		Message:  fmt.Sprintf(format, args...),
		Location: caller(1),
	})
}

// Assert calls Fatalf when cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&AssertionError{
			Message:  fmt.Sprintf(format, args...),
			Location: caller(1),
		})
	}
}

// Unimplemented aborts for instruction forms this code generator never
// emits.
func Unimplemented(what string) {
	panic(&AssertionError{
		Message:  "unimplemented: " + what,
		Location: caller(1),
	})
}

// Unreachable aborts when control reaches a path that must not exist.
func Unreachable() {
	panic(&AssertionError{
		Message:  "unreachable code",
		Location: caller(1),
	})
}
