// Package benchmarks measures simulator throughput on small assembled
// programs.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/jitsim/config"
	"github.com/sarchlab/jitsim/machine"
	"github.com/sarchlab/jitsim/sim"
)

const (
	codeBase = 0x10000
	dataBase = 0x20000
	dataSize = 0x1000
)

// BenchmarkResult holds the results of one benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	Arch string `json:"arch"`

	// Instructions is the number of simulated instructions
	Instructions uint64 `json:"instructions"`

	ICacheHits   uint64 `json:"icache_hits"`
	ICacheMisses uint64 `json:"icache_misses"`

	// Result is the value the program returned
	Result   uint64 `json:"result"`
	Expected uint64 `json:"expected"`

	// Err is set when the simulation failed
	Err string `json:"error,omitempty"`

	// WallTime is the host time spent in the call
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the program ran and returned the expected value.
func (r BenchmarkResult) Passed() bool {
	return r.Err == "" && r.Result == r.Expected
}

// MIPS is the simulation rate in millions of instructions per second.
func (r BenchmarkResult) MIPS() float64 {
	if r.WallTime <= 0 {
		return 0
	}
	return float64(r.Instructions) / r.WallTime.Seconds() / 1e6
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	Arch sim.Arch

	// Iterations is the loop count passed to every program
	Iterations int

	// Simulator configures the simulators; nil uses the defaults
	Simulator *config.Config

	Logger logrus.FieldLogger

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Arch:       sim.ArchARM,
		Iterations: 1000,
		Output:     os.Stdout,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Iterations < 1 {
		config.Iterations = 1
	}
	if config.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		config.Logger = l
	}
	return &Harness{config: config}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))
	for _, bench := range h.benchmarks {
		results = append(results, h.runBenchmark(bench))
	}
	return results
}

// runBenchmark uses a fresh simulator so the counters cover one program.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	n := h.config.Iterations
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		Arch:        h.config.Arch.String(),
		Expected:    bench.Expected(uint64(n)),
	}
	log := h.config.Logger.WithField("benchmark", bench.Name)
	fail := func(err error) BenchmarkResult {
		result.Err = err.Error()
		log.WithError(err).Warn("benchmark failed")
		return result
	}

	opts := []machine.Option{machine.WithLogger(log), machine.WithStdout(io.Discard)}
	if h.config.Simulator != nil {
		opts = append(opts, machine.WithConfig(h.config.Simulator.Clone()))
	}
	s, err := machine.New(h.config.Arch, opts...)
	if err != nil {
		return fail(err)
	}
	code, err := bench.Build(h.config.Arch, s.Features())
	if err != nil {
		return fail(err)
	}
	if _, err := s.Memory().MapBytes("code", codeBase, code); err != nil {
		return fail(err)
	}
	if _, err := s.Memory().Map("data", dataBase, dataSize); err != nil {
		return fail(err)
	}

	start := time.Now()
	value, err := s.Call(codeBase, uint64(n), dataBase)
	result.WallTime = time.Since(start)
	if err != nil {
		return fail(err)
	}
	if h.config.Arch.WordSize() == 4 {
		value = uint64(uint32(value))
	}

	stats := s.ICacheStats()
	result.Result = value
	result.Instructions = s.InstructionCount()
	result.ICacheHits = stats.Hits
	result.ICacheMisses = stats.Misses
	log.WithFields(logrus.Fields{
		"instructions": result.Instructions,
		"wall_time":    result.WallTime,
	}).Debug("benchmark done")
	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintf(out, "=== jitsim %s benchmark results (%d iterations) ===\n\n",
		h.config.Arch, h.config.Iterations)

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description:  %s\n", r.Description)
		if r.Err != "" {
			_, _ = fmt.Fprintf(out, "  Error:        %s\n\n", r.Err)
			continue
		}
		status := "ok"
		if !r.Passed() {
			status = fmt.Sprintf("MISMATCH, want %d", r.Expected)
		}
		_, _ = fmt.Fprintf(out, "  Result:       %d (%s)\n", r.Result, status)
		_, _ = fmt.Fprintf(out, "  Instructions: %d\n", r.Instructions)
		_, _ = fmt.Fprintf(out, "  I-Cache:      %d hits, %d misses\n", r.ICacheHits, r.ICacheMisses)
		_, _ = fmt.Fprintf(out, "  Wall Time:    %v (%.2f MIPS)\n\n", r.WallTime, r.MIPS())
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,arch,instructions,icache_hits,icache_misses,result,expected,wall_time_ns,error")
	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%d,%d,%d,%d,%q\n",
			r.Name,
			r.Arch,
			r.Instructions,
			r.ICacheHits,
			r.ICacheMisses,
			r.Result,
			r.Expected,
			r.WallTime.Nanoseconds(),
			r.Err,
		)
	}
}

// BenchmarkReport is the complete JSON output.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata describes the run.
type ReportMetadata struct {
	Timestamp  string `json:"timestamp"`
	Arch       string `json:"arch"`
	Iterations int    `json:"iterations"`
}

// ReportSummary aggregates all results.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	Failed            int           `json:"failed"`
	TotalInstructions uint64        `json:"total_instructions"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		if !r.Passed() {
			summary.Failed++
		}
		summary.TotalInstructions += r.Instructions
		summary.TotalWallTime += r.WallTime
	}
	return summary
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Arch:       h.config.Arch.String(),
			Iterations: h.config.Iterations,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
