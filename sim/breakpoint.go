package sim

// Breakpoint is the single breakpoint slot of a simulator: one patched
// address and the original word it replaced.
type Breakpoint struct {
	active  bool
	patched bool
	addr    uint64
	saved   uint32
	trap    uint32
}

// Active reports whether a breakpoint is set.
func (b *Breakpoint) Active() bool { return b.active }

// Address returns the breakpoint address.
func (b *Breakpoint) Address() uint64 { return b.addr }

// Original returns the word the trap replaced.
func (b *Breakpoint) Original() uint32 { return b.saved }

// Set patches trap over the instruction at addr. Only one breakpoint may
// be active; a second Set returns ErrBreakpointInUse.
func (b *Breakpoint) Set(mem *Memory, icache *ICache, addr uint64, trap uint32) error {
	if b.active {
		return ErrBreakpointInUse
	}
	saved, err := mem.Read32(addr)
	if err != nil {
		return err
	}
	b.active = true
	b.addr = addr
	b.saved = saved
	b.trap = trap
	return b.Repatch(mem, icache)
}

// Clear restores the original word and frees the slot.
func (b *Breakpoint) Clear(mem *Memory, icache *ICache) error {
	if !b.active {
		return nil
	}
	if err := b.Unpatch(mem, icache); err != nil {
		return err
	}
	b.active = false
	return nil
}

// Unpatch temporarily restores the original word so disassembly and
// single-stepping see the real instruction.
func (b *Breakpoint) Unpatch(mem *Memory, icache *ICache) error {
	if !b.active || !b.patched {
		return nil
	}
	if err := mem.Write32(b.addr, b.saved); err != nil {
		return err
	}
	b.patched = false
	if icache != nil {
		icache.Flush(b.addr, 4)
	}
	return nil
}

// Repatch re-installs the trap before free execution resumes.
func (b *Breakpoint) Repatch(mem *Memory, icache *ICache) error {
	if !b.active || b.patched {
		return nil
	}
	if err := mem.Write32(b.addr, b.trap); err != nil {
		return err
	}
	b.patched = true
	if icache != nil {
		icache.Flush(b.addr, 4)
	}
	return nil
}
