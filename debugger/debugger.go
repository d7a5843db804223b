// Package debugger is the interactive console a simulator hands control
// to at breakpoints, stop traps and instruction limits.
package debugger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/sim"
)

// Target is the view of a paused simulator the console works against.
// The ARM, ARM64 and MIPS simulators all implement it.
type Target interface {
	Arch() sim.Arch
	PC() uint64
	Step() error
	Memory() *sim.Memory
	InstructionCount() uint64
	FlushICache(addr uint64, size int)

	RegisterValues() []sim.RegisterValue
	RegisterByName(name string) (sim.RegisterValue, bool)
	FlagsString() string
	FramePointer() uint64
	StackPointer() uint64

	SetBreakpoint(addr uint64) error
	ClearBreakpoint() error
	Breakpoint() (uint64, bool)
	UnpatchBreakpoint() error
	RepatchBreakpoint() error
}

// LineReader supplies command lines. *readline.Instance implements it.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// ObjectPrinter renders a tagged object reference for printobject.
type ObjectPrinter func(mem *sim.Memory, tagged uint64) string

const (
	defaultDisasmLines = 10
	maxFrames          = 64
)

// Debugger is a sim.Debugger that runs a command loop each time the
// simulator stops.
type Debugger struct {
	target      Target
	lines       LineReader
	out         io.Writer
	log         logrus.FieldLogger
	prompt      string
	printObject ObjectPrinter
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithLineReader reads commands from r instead of a readline terminal.
func WithLineReader(r LineReader) Option {
	return func(d *Debugger) {
		d.lines = r
	}
}

// WithOutput sets where command output goes.
func WithOutput(w io.Writer) Option {
	return func(d *Debugger) {
		d.out = w
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Debugger) {
		d.log = l
	}
}

// WithPrompt sets the readline prompt.
func WithPrompt(p string) Option {
	return func(d *Debugger) {
		d.prompt = p
	}
}

// WithObjectPrinter overrides how printobject renders references.
func WithObjectPrinter(p ObjectPrinter) Option {
	return func(d *Debugger) {
		d.printObject = p
	}
}

// New creates a console for t. Attach it with t.Attach(d).
func New(t Target, opts ...Option) *Debugger {
	d := &Debugger{
		target: t,
		out:    os.Stdout,
		log:    logrus.StandardLogger(),
		prompt: "sim> ",
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.printObject == nil {
		d.printObject = heapObjectPrinter(t.Arch().WordSize())
	}
	d.log = d.log.WithField("arch", t.Arch().String())
	return d
}

// Close releases the line reader.
func (d *Debugger) Close() error {
	if d.lines == nil {
		return nil
	}
	return d.lines.Close()
}

func (d *Debugger) reader() (LineReader, error) {
	if d.lines != nil {
		return d.lines, nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.prompt,
		Stdout:          d.out,
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("starting readline: %w", err)
	}
	d.lines = rl
	return rl, nil
}

// Stop implements sim.Debugger. The breakpoint is un-patched while the
// console runs and re-patched when execution continues.
func (d *Debugger) Stop(reason string) error {
	d.log.WithField("pc", fmt.Sprintf("0x%x", d.target.PC())).Info(reason)
	fmt.Fprintf(d.out, "Stopped: %s\n", reason)
	if err := d.target.UnpatchBreakpoint(); err != nil {
		return err
	}
	d.printCurrent()

	r, err := d.reader()
	if err != nil {
		return err
	}
	for {
		line, err := r.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return sim.ErrDebuggerQuit
		}
		if err != nil {
			return err
		}
		resume, err := d.Execute(line)
		if err != nil {
			return err
		}
		if resume {
			return d.target.RepatchBreakpoint()
		}
	}
}

// Execute runs one command line. It reports whether execution should
// resume; a returned error ends the simulation.
func (d *Debugger) Execute(line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := args[0], args[1:]
	d.log.WithField("command", cmd).Debug("debugger command")

	switch cmd {
	case "stepi", "si":
		return false, d.stepi(args)
	case "cont", "c":
		return true, nil
	case "print", "p":
		d.print(args)
	case "printobject", "po":
		d.printObjectCmd(args)
	case "break", "b":
		d.setBreak(args)
	case "del":
		if err := d.target.ClearBreakpoint(); err != nil {
			return false, err
		}
	case "disasm", "di":
		d.disasm(args)
	case "bt":
		d.backtrace()
	case "flags":
		fmt.Fprintln(d.out, d.target.FlagsString())
	case "stop":
		return false, d.disableStop()
	case "help", "h":
		fmt.Fprint(d.out, help)
	case "quit", "q":
		return false, sim.ErrDebuggerQuit
	default:
		fmt.Fprintf(d.out, "unknown command %q, try help\n", cmd)
	}
	return false, nil
}

const help = `stepi|si [n]          step n instructions
cont|c                continue execution
print|p [reg|all]     print a register, or all of them
printobject|po <reg>  print the object a register references
break|b <addr>        set the breakpoint
del                   delete the breakpoint
disasm|di [addr] [n]  disassemble n instructions at addr
bt                    walk the frame pointer chain
flags                 print the condition flags
stop                  disable the stop trap just hit
quit|q                end the simulation
`

func (d *Debugger) atEnd() bool {
	return d.target.PC() == d.target.Arch().EndSimulatingPC()
}

func (d *Debugger) printCurrent() {
	if d.atEnd() {
		fmt.Fprintln(d.out, "at the end of the simulated call")
		return
	}
	lines, err := disasm.Range(d.target.Arch(), d.target.Memory(), d.target.PC(), 1)
	if err != nil {
		fmt.Fprintf(d.out, "0x%08x  <unreadable: %v>\n", d.target.PC(), err)
		return
	}
	fmt.Fprintln(d.out, lines[0])
}

func (d *Debugger) stepi(args []string) error {
	n := uint64(1)
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil || v == 0 {
			fmt.Fprintf(d.out, "bad step count %q\n", args[0])
			return nil
		}
		n = v
	}
	for k := uint64(0); k < n; k++ {
		if d.atEnd() {
			break
		}
		if err := d.target.Step(); err != nil {
			return err
		}
	}
	d.printCurrent()
	return nil
}

// value resolves a register name or a numeric literal.
func (d *Debugger) value(arg string) (uint64, bool) {
	if v, err := strconv.ParseUint(arg, 0, 64); err == nil {
		return v, true
	}
	if strings.EqualFold(arg, "pc") {
		return d.target.PC(), true
	}
	if r, ok := d.target.RegisterByName(arg); ok {
		return r.Bits, true
	}
	return 0, false
}

func (d *Debugger) print(args []string) {
	if len(args) == 0 || args[0] == "all" {
		for _, r := range d.target.RegisterValues() {
			fmt.Fprintln(d.out, formatRegister(r))
		}
		return
	}
	for _, name := range args {
		r, ok := d.target.RegisterByName(name)
		if !ok {
			fmt.Fprintf(d.out, "unknown register %q\n", name)
			continue
		}
		fmt.Fprintln(d.out, formatRegister(r))
	}
}

func formatRegister(r sim.RegisterValue) string {
	hex := fmt.Sprintf("0x%08x", r.Bits)
	if r.Width == 64 {
		hex = fmt.Sprintf("0x%016x", r.Bits)
	}
	if r.Float {
		return fmt.Sprintf("%-5s %s  %g", r.Name, hex, floatValue(r.Bits, r.Width))
	}
	signed := int64(r.Bits)
	if r.Width == 32 {
		signed = int64(int32(r.Bits))
	}
	return fmt.Sprintf("%-5s %s  %d", r.Name, hex, signed)
}

func (d *Debugger) printObjectCmd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "usage: printobject <reg>")
		return
	}
	v, ok := d.value(args[0])
	if !ok {
		fmt.Fprintf(d.out, "unknown register %q\n", args[0])
		return
	}
	fmt.Fprintf(d.out, "%s: %s\n", args[0], d.printObject(d.target.Memory(), v))
}

// heapObjectPrinter decodes small integers and reports the class id and
// generation of heap objects.
func heapObjectPrinter(wordSize int) ObjectPrinter {
	layout := asm.DefaultHeapLayout(wordSize)
	return func(mem *sim.Memory, tagged uint64) string {
		if wordSize == 4 {
			tagged = uint64(int64(int32(tagged)))
		}
		obj := asm.ObjectFromRaw(tagged, false)
		if obj.IsSmi() {
			return fmt.Sprintf("smi %d", obj.SmiValue())
		}
		addr := obj.Address()
		if wordSize == 4 {
			addr = uint64(uint32(addr))
		}
		cid, err := mem.Read16(addr + uint64(layout.ClassIDOffset()))
		if err != nil {
			return fmt.Sprintf("object 0x%x <unreadable>", addr)
		}
		gen := "old"
		if layout.IsNewObject(obj.Raw()) {
			gen = "new"
		}
		return fmt.Sprintf("object 0x%x cid %d %s", addr, cid, gen)
	}
}

func (d *Debugger) setBreak(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "usage: break <addr>")
		return
	}
	addr, ok := d.value(args[0])
	if !ok {
		fmt.Fprintf(d.out, "bad address %q\n", args[0])
		return
	}
	if err := d.target.SetBreakpoint(addr); err != nil {
		fmt.Fprintf(d.out, "cannot set breakpoint: %v\n", err)
		return
	}
	// Stays un-patched until execution continues.
	if err := d.target.UnpatchBreakpoint(); err != nil {
		fmt.Fprintf(d.out, "cannot set breakpoint: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "breakpoint at 0x%08x\n", addr)
}

func (d *Debugger) disasm(args []string) {
	addr, n := d.target.PC(), defaultDisasmLines
	if len(args) > 0 {
		v, ok := d.value(args[0])
		if !ok {
			fmt.Fprintf(d.out, "bad address %q\n", args[0])
			return
		}
		addr = v
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 {
			fmt.Fprintf(d.out, "bad count %q\n", args[1])
			return
		}
		n = v
	}
	lines, err := disasm.Range(d.target.Arch(), d.target.Memory(), addr, n)
	for _, l := range lines {
		marker := "   "
		if l.Addr == d.target.PC() {
			marker = "=> "
		}
		fmt.Fprintln(d.out, marker+l.String())
	}
	if err != nil {
		fmt.Fprintln(d.out, err)
	}
}

// backtrace follows the frame pointer chain. Every frame keeps the
// caller's FP at [fp] and the return address one word above it.
func (d *Debugger) backtrace() {
	arch := d.target.Arch()
	w := uint64(arch.WordSize())
	mem := d.target.Memory()
	read := func(addr uint64) (uint64, error) {
		if w == 8 {
			return mem.Read64(addr)
		}
		v, err := mem.Read32(addr)
		return uint64(v), err
	}

	fmt.Fprintf(d.out, "#0  0x%08x\n", d.target.PC())
	fp := d.target.FramePointer()
	for depth := 1; depth < maxFrames && fp != 0; depth++ {
		ret, err := read(fp + w)
		if err != nil {
			break
		}
		if ret == arch.EndSimulatingPC() {
			fmt.Fprintf(d.out, "#%d  <host>\n", depth)
			return
		}
		fmt.Fprintf(d.out, "#%d  0x%08x  fp 0x%08x\n", depth, ret, fp)
		next, err := read(fp)
		if err != nil || next <= fp {
			return
		}
		fp = next
	}
}

// disableStop replaces the stop trap that precedes the PC with a nop so
// the same stop does not fire again.
func (d *Debugger) disableStop() error {
	pc := d.target.PC()
	mem := d.target.Memory()
	word, err := mem.Read32(pc - 4)
	if err != nil || !isStopTrap(d.target.Arch(), word) {
		fmt.Fprintln(d.out, "not stopped at a stop trap")
		return nil
	}
	if err := mem.Write32(pc-4, nopWord(d.target.Arch())); err != nil {
		return err
	}
	d.target.FlushICache(pc-4, 4)
	fmt.Fprintf(d.out, "stop at 0x%08x disabled\n", pc-4)
	return nil
}
