package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/jitsim/benchmarks"
	"github.com/sarchlab/jitsim/sim"
)

type benchFlags struct {
	arch       string
	iterations int
	format     string
}

func newBenchCmd(g *globalFlags) *cobra.Command {
	f := &benchFlags{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the micro benchmarks and report simulation speed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.arch, "arch", "arm", "architecture (arm, arm64, mips)")
	cmd.Flags().IntVarP(&f.iterations, "iterations", "n", 1000, "loop iterations per benchmark")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format (text, csv, json)")
	return cmd
}

func runBench(cmd *cobra.Command, g *globalFlags, f *benchFlags) error {
	arch, err := sim.ParseArch(f.arch)
	if err != nil {
		return err
	}
	if f.iterations < 1 {
		return fmt.Errorf("--iterations must be at least 1")
	}
	c, err := g.loadConfig()
	if err != nil {
		return err
	}
	log, err := g.logger(cmd, c)
	if err != nil {
		return err
	}

	harness := benchmarks.NewHarness(benchmarks.HarnessConfig{
		Arch:       arch,
		Iterations: f.iterations,
		Simulator:  c,
		Logger:     log,
		Output:     cmd.OutOrStdout(),
	})
	harness.AddBenchmarks(benchmarks.GetMicroBenchmarks())
	results := harness.RunAll()

	switch f.format {
	case "text":
		harness.PrintResults(results)
	case "csv":
		harness.PrintCSV(results)
	case "json":
		if err := harness.PrintJSON(results); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", f.format)
	}

	if failed := benchmarks.Summarize(results).Failed; failed > 0 {
		return fmt.Errorf("%d benchmarks failed", failed)
	}
	return nil
}
