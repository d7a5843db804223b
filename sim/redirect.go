package sim

import (
	"fmt"
	"sync/atomic"
)

// Reserved addresses. Redirection trap sites live in a window the
// simulators intercept at fetch time; nothing is ever mapped there.
const (
	RedirectionBase   uint64 = 0xFF000000
	RedirectionStride uint64 = 16
	RedirectionLimit  uint64 = 0xFFF00000

	// EndSimulatingPC32 is the return address Call plants in LR/RA. When
	// the PC reaches it, Execute returns.
	EndSimulatingPC32 uint64 = 0xFFFFFFFC
	EndSimulatingPC64 uint64 = 0xFFFFFFFFFFFFFFFC

	// BadLR is planted in LR after Call returns to catch stale returns.
	BadLR32 uint64 = 0xFFFFFFF8
	BadLR64 uint64 = 0xFFFFFFFFFFFFFFF8

	// ZapValue poisons caller-saved registers after redirected calls.
	ZapValue32 uint64 = 0xf1f1f1f1
	ZapValue64 uint64 = 0xf1f1f1f1f1f1f1f1
)

// CallKind selects how arguments are marshalled for a redirected call.
type CallKind uint8

// Call kinds.
const (
	// RuntimeCall receives a NativeArguments block pointer in the first
	// argument register.
	RuntimeCall CallKind = iota
	// LeafRuntimeCall takes up to four integer arguments in registers.
	LeafRuntimeCall
	// LeafFloatRuntimeCall takes up to two double arguments and returns a
	// double.
	LeafFloatRuntimeCall
	// BootstrapNativeCall receives a NativeArguments pointer.
	BootstrapNativeCall
	// NativeCall receives a NativeArguments pointer plus the raw target
	// function address.
	NativeCall
)

// ReturnsPair reports whether the call returns a word pair, the second
// word in R1, X1 or V1. Leaf calls leave that register zapped.
func (k CallKind) ReturnsPair() bool {
	return k == RuntimeCall || k == BootstrapNativeCall || k == NativeCall
}

func (k CallKind) String() string {
	switch k {
	case RuntimeCall:
		return "runtime"
	case LeafRuntimeCall:
		return "leaf"
	case LeafFloatRuntimeCall:
		return "leaf-float"
	case BootstrapNativeCall:
		return "bootstrap-native"
	case NativeCall:
		return "native"
	default:
		return fmt.Sprintf("CallKind(%d)", uint8(k))
	}
}

// HostCall carries the marshalled arguments of one redirected call.
type HostCall struct {
	Kind      CallKind
	Args      []uint64
	FloatArgs []float64
	// ArgumentsPtr is the simulated address of the NativeArguments block
	// for RuntimeCall, BootstrapNativeCall and NativeCall.
	ArgumentsPtr uint64
	// Target is the raw native function address for NativeCall.
	Target uint64
	Memory *Memory
}

// UnwindRequest replaces a normal return when the host function throws:
// the simulator resumes at PC with SP and FP restored and the exception
// and stack trace in the architecture's exception registers.
type UnwindRequest struct {
	PC, SP, FP            uint64
	Exception, StackTrace uint64
}

// CallResult is what a host function hands back to simulated code.
type CallResult struct {
	Value  uint64
	Value2 uint64
	Float  float64
	Unwind *UnwindRequest
}

// HostFunction is a host-native function simulated code may call.
type HostFunction struct {
	Name     string
	Kind     CallKind
	ArgCount int
	Fn       func(*HostCall) CallResult
	// PreservesRegisters exempts the call from caller-saved register
	// zapping, for stubs whose contract is to clobber nothing.
	PreservesRegisters bool
}

// Redirection binds a HostFunction to a trap address.
type Redirection struct {
	fn    *HostFunction
	index uint64
	next  *Redirection
}

var redirections atomic.Pointer[Redirection]

// Redirect returns the redirection for fn, creating it on first use.
// Insertion is a lock-free push; a goroutine that loses the race re-scans
// the list, so each function is inserted at most once.
func Redirect(fn *HostFunction) *Redirection {
	for {
		head := redirections.Load()
		for r := head; r != nil; r = r.next {
			if r.fn == fn {
				return r
			}
		}
		var index uint64
		if head != nil {
			index = head.index + 1
		}
		if RedirectionBase+index*RedirectionStride >= RedirectionLimit {
			panic("sim: redirection window exhausted")
		}
		r := &Redirection{fn: fn, index: index, next: head}
		if redirections.CompareAndSwap(head, r) {
			return r
		}
	}
}

// Address returns the trap address simulated code branches to.
func (r *Redirection) Address() uint64 {
	return RedirectionBase + r.index*RedirectionStride
}

// Function returns the bound host function.
func (r *Redirection) Function() *HostFunction { return r.fn }

// IsRedirectionAddress reports whether addr falls inside the trap window.
func IsRedirectionAddress(addr uint64) bool {
	return addr >= RedirectionBase && addr < RedirectionLimit
}

// RedirectionAt returns the redirection whose trap address is addr.
func RedirectionAt(addr uint64) (*Redirection, bool) {
	if !IsRedirectionAddress(addr) || (addr-RedirectionBase)%RedirectionStride != 0 {
		return nil, false
	}
	index := (addr - RedirectionBase) / RedirectionStride
	for r := redirections.Load(); r != nil; r = r.next {
		if r.index == index {
			return r, true
		}
		if r.index < index {
			break
		}
	}
	return nil, false
}

// RedirectionCount returns the number of redirections created so far.
func RedirectionCount() int {
	head := redirections.Load()
	if head == nil {
		return 0
	}
	return int(head.index) + 1
}

// NativeArguments mirrors the argument block passed to runtime and native
// entries: thread, argc_tag, argv and the return value slot, one word each.
type NativeArguments struct {
	Thread  uint64
	ArgcTag uint64
	Argv    uint64
	Retval  uint64
}

// ReadNativeArguments decodes the block at ptr.
func ReadNativeArguments(mem *Memory, ptr uint64, wordSize int) (NativeArguments, error) {
	words := make([]uint64, 4)
	for i := range words {
		addr := ptr + uint64(i*wordSize)
		if wordSize == 8 {
			v, err := mem.Read64(addr)
			if err != nil {
				return NativeArguments{}, err
			}
			words[i] = v
		} else {
			v, err := mem.Read32(addr)
			if err != nil {
				return NativeArguments{}, err
			}
			words[i] = uint64(v)
		}
	}
	return NativeArguments{Thread: words[0], ArgcTag: words[1], Argv: words[2], Retval: words[3]}, nil
}

// Argument reads argument i of the block. Arguments are laid out downward
// from Argv, as pushed by generated code.
func (a NativeArguments) Argument(mem *Memory, i int, wordSize int) (uint64, error) {
	addr := a.Argv - uint64(i*wordSize)
	if wordSize == 8 {
		return mem.Read64(addr)
	}
	v, err := mem.Read32(addr)
	return uint64(v), err
}

// ArgCount returns the argument count encoded in ArgcTag's low bits.
func (a NativeArguments) ArgCount() int {
	return int(a.ArgcTag & 0xff)
}
