package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/jitsim/debugger"
	"github.com/sarchlab/jitsim/loader"
	"github.com/sarchlab/jitsim/machine"
	"github.com/sarchlab/jitsim/sim"
)

type runFlags struct {
	arch      string
	debug     bool
	stopAfter uint64
	args      []string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] <program.elf>",
		Short: "Load an ELF executable and call its entry point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.arch, "arch", "", "expected architecture (arm, arm64, mips)")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "attach the interactive debugger")
	cmd.Flags().Uint64Var(&f.stopAfter, "stop-after", 0, "enter the debugger after this many instructions")
	cmd.Flags().StringSliceVar(&f.args, "args", nil, "integer arguments passed in the argument registers")
	return cmd
}

func runProgram(cmd *cobra.Command, g *globalFlags, f *runFlags, path string) error {
	prog, err := loader.Load(path)
	if err != nil {
		return err
	}
	if f.arch != "" {
		want, err := sim.ParseArch(f.arch)
		if err != nil {
			return err
		}
		if want != prog.Arch {
			return fmt.Errorf("%s targets %v, not %v", path, prog.Arch, want)
		}
	}

	callArgs := make([]uint64, 0, len(f.args))
	for _, a := range f.args {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return fmt.Errorf("bad argument %q: %w", a, err)
		}
		callArgs = append(callArgs, uint64(v))
	}

	c, err := g.loadConfig()
	if err != nil {
		return err
	}
	if f.stopAfter > 0 {
		c.StopAfter = f.stopAfter
	}
	log, err := g.logger(cmd, c)
	if err != nil {
		return err
	}

	s, err := machine.New(prog.Arch, machine.WithConfig(c), machine.WithLogger(log), machine.WithStdout(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	if err := prog.MapInto(s.Memory()); err != nil {
		return err
	}
	if f.debug {
		d := debugger.New(s, debugger.WithOutput(cmd.OutOrStdout()), debugger.WithLogger(log))
		defer func() { _ = d.Close() }()
		s.Attach(d)
	}

	log.WithField("entry", fmt.Sprintf("0x%x", prog.EntryPoint)).
		WithField("segments", len(prog.Segments)).
		Debug("calling entry point")

	result, err := s.Call(prog.EntryPoint, callArgs...)
	if errors.Is(err, sim.ErrDebuggerQuit) {
		fmt.Fprintln(cmd.OutOrStdout(), "debugger quit")
		return nil
	}
	if err != nil {
		var fe *sim.FatalError
		if errors.As(err, &fe) {
			fmt.Fprintf(cmd.ErrOrStderr(), "simulation failed after %d instructions\n", s.InstructionCount())
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", machine.FormatWord(prog.Arch, result))
	fmt.Fprintf(cmd.OutOrStdout(), "instructions: %d\n", s.InstructionCount())
	return nil
}
