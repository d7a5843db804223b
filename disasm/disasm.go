// Package disasm renders instruction words as assembly text for trace
// logging, the debugger and the CLI.
package disasm

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/sarchlab/jitsim/arm"
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

func le(word uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, word)
	return b
}

func unknown(word uint32) string {
	return fmt.Sprintf(".word 0x%08x", word)
}

// ARM disassembles an A32 word.
func ARM(word uint32, pc uint64) string {
	if i := arm.Instr(word); i.IsSVC() {
		if note := trapNote(uint64(i.SVCImm()), arm.RedirectionSVC, arm.BreakpointSVC, arm.StopMessageSVC); note != "" {
			return fmt.Sprintf("svc 0x%x ; %s", i.SVCImm(), note)
		}
	}
	inst, err := armasm.Decode(le(word), armasm.ModeARM)
	if err != nil {
		return unknown(word)
	}
	text := armasm.GNUSyntax(inst)
	if i := arm.Instr(word); i.IsBranch() {
		text += fmt.Sprintf(" ; -> 0x%08x", uint32(int64(pc)+int64(i.BranchOffset())))
	}
	return text
}

// ARM64 disassembles an A64 word.
func ARM64(word uint32, pc uint64) string {
	inst, err := arm64asm.Decode(le(word))
	if err != nil {
		return unknown(word)
	}
	text := arm64asm.GNUSyntax(inst)
	i := arm64.Instr(word)
	if i.IsException() {
		if note := trapNote(uint64(i.Imm16()), arm64.RedirectionSVC, arm64.BreakpointImm, arm64.StopMessageImm); note != "" {
			text += " ; " + note
		}
	}
	if off, ok := i.PCRelativeOffset(); ok {
		text += fmt.Sprintf(" ; -> 0x%x", uint64(int64(pc)+off))
	}
	return text
}

func trapNote(imm uint64, redirect, breakpoint, stop uint64) string {
	switch imm {
	case redirect:
		return "redirected call"
	case breakpoint:
		return "breakpoint"
	case stop:
		return "stop"
	}
	return ""
}

// Word disassembles word for arch.
func Word(arch sim.Arch, word uint32, pc uint64) string {
	switch arch {
	case sim.ArchARM:
		return ARM(word, pc)
	case sim.ArchARM64:
		return ARM64(word, pc)
	case sim.ArchMIPS:
		return MIPS(word, pc)
	default:
		return unknown(word)
	}
}

// Line is one disassembled instruction.
type Line struct {
	Addr uint64
	Word uint32
	Text string
}

func (l Line) String() string {
	return fmt.Sprintf("0x%08x  %08x  %s", l.Addr, l.Word, l.Text)
}

// Range disassembles n words of simulated memory starting at addr.
func Range(arch sim.Arch, mem *sim.Memory, addr uint64, n int) ([]Line, error) {
	lines := make([]Line, 0, n)
	for k := 0; k < n; k++ {
		pc := addr + uint64(4*k)
		word, err := mem.Read32(pc)
		if err != nil {
			return lines, fmt.Errorf("reading 0x%x: %w", pc, err)
		}
		lines = append(lines, Line{Addr: pc, Word: word, Text: Word(arch, word, pc)})
	}
	return lines, nil
}
