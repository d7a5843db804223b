package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/jitsim/disasm"
	"github.com/sarchlab/jitsim/loader"
	"github.com/sarchlab/jitsim/sim"
)

type disasmFlags struct {
	arch string
	pc   uint64
	elf  string
}

func newDisasmCmd() *cobra.Command {
	f := &disasmFlags{}
	cmd := &cobra.Command{
		Use:   "disasm [flags] <hexword>...",
		Short: "Disassemble instruction words or the code of an ELF executable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.elf != "" {
				return disasmELF(cmd, f.elf)
			}
			return disasmWords(cmd, f, args)
		},
	}
	cmd.Flags().StringVar(&f.arch, "arch", "arm", "architecture of the words (arm, arm64, mips)")
	cmd.Flags().Uint64Var(&f.pc, "pc", 0, "address of the first word, for branch targets")
	cmd.Flags().StringVar(&f.elf, "elf", "", "disassemble the executable segments of this file instead")
	return cmd
}

func disasmWords(cmd *cobra.Command, f *disasmFlags, args []string) error {
	arch, err := sim.ParseArch(f.arch)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("no instruction words given")
	}
	for k, a := range args {
		w, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(a), "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("bad instruction word %q", a)
		}
		pc := f.pc + uint64(4*k)
		line := disasm.Line{Addr: pc, Word: uint32(w), Text: disasm.Word(arch, uint32(w), pc)}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func disasmELF(cmd *cobra.Command, path string) error {
	prog, err := loader.Load(path)
	if err != nil {
		return err
	}
	mem := sim.NewMemory(sim.WithLowGuard(0))
	if err := prog.MapInto(mem); err != nil {
		return err
	}
	for _, seg := range prog.Segments {
		if seg.Flags&loader.SegmentFlagExecute == 0 {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "segment 0x%08x:\n", seg.VirtAddr)
		lines, err := disasm.Range(prog.Arch, mem, seg.VirtAddr, len(seg.Data)/4)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
	}
	return nil
}
