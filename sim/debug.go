package sim

// Debugger takes control of a paused simulator at a breakpoint, a stop
// trap, or when the instruction limit elapses. Returning nil resumes
// execution; returning an error ends it with that error.
type Debugger interface {
	Stop(reason string) error
}

// DebuggerFunc adapts a function to Debugger.
type DebuggerFunc func(reason string) error

// Stop implements Debugger.
func (f DebuggerFunc) Stop(reason string) error { return f(reason) }

// RegisterValue is one register as shown by a debugger.
type RegisterValue struct {
	Name string
	Bits uint64
	// Float marks an FP register whose Bits hold an IEEE encoding of
	// Width bits.
	Float bool
	Width int
}
