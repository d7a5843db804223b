// Package config holds the simulator configuration: a JSON file with
// JITSIM_* environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mstoykov/envconfig"

	"github.com/sarchlab/jitsim/cpu"
	"github.com/sarchlab/jitsim/sim"
)

// Config configures a simulator.
type Config struct {
	// StackSize is the usable size of the simulated stack in bytes.
	StackSize int `json:"stack_size" envconfig:"JITSIM_STACK_SIZE"`

	// StackGuard is the unmapped-in-spirit margin kept free at both ends of
	// the stack; accesses inside it are reported as stack overflows.
	StackGuard int `json:"stack_guard" envconfig:"JITSIM_STACK_GUARD"`

	// LowGuardSize is the size of the always illegal low address range.
	LowGuardSize uint64 `json:"low_guard_size" envconfig:"JITSIM_LOW_GUARD_SIZE"`

	// StopAfter hands control to the debugger after this many
	// instructions. 0 disables the limit.
	StopAfter uint64 `json:"stop_after" envconfig:"JITSIM_STOP_AFTER"`

	// Trace logs every executed instruction at debug level.
	Trace bool `json:"trace" envconfig:"JITSIM_TRACE"`

	// ZapRegisters poisons caller-saved registers after redirected calls.
	ZapRegisters bool `json:"zap_registers" envconfig:"JITSIM_ZAP_REGISTERS"`

	ICacheSets  int  `json:"icache_sets" envconfig:"JITSIM_ICACHE_SETS"`
	ICacheWays  int  `json:"icache_ways" envconfig:"JITSIM_ICACHE_WAYS"`
	ICacheLine  int  `json:"icache_line" envconfig:"JITSIM_ICACHE_LINE"`
	CheckICache bool `json:"check_icache" envconfig:"JITSIM_CHECK_ICACHE"`

	// PrintStopMessage makes generated Stop sequences call the print stub.
	PrintStopMessage bool `json:"print_stop_message" envconfig:"JITSIM_PRINT_STOP_MESSAGE"`

	// AllowUnalignedWord lets ARM32 ldr/str access unaligned words.
	AllowUnalignedWord bool `json:"allow_unaligned_word" envconfig:"JITSIM_ALLOW_UNALIGNED_WORD"`

	// StrictAlignment makes ARM64 pair and FP accesses fault when not
	// naturally aligned. Exclusive accesses always must be.
	StrictAlignment bool `json:"strict_alignment" envconfig:"JITSIM_STRICT_ALIGNMENT"`

	// Feature overrides. Nil leaves the base feature untouched.
	IntegerDivision *bool            `json:"integer_division,omitempty" envconfig:"JITSIM_INTEGER_DIVISION"`
	VFP             *bool            `json:"vfp,omitempty" envconfig:"JITSIM_VFP"`
	NEON            *bool            `json:"neon,omitempty" envconfig:"JITSIM_NEON"`
	HardFP          *bool            `json:"hardfp,omitempty" envconfig:"JITSIM_HARDFP"`
	ARMVersion      *cpu.ARMVersion  `json:"arm_version,omitempty" envconfig:"JITSIM_ARM_VERSION"`
	MIPSVersion     *cpu.MIPSVersion `json:"mips_version,omitempty" envconfig:"JITSIM_MIPS_VERSION"`
}

// Default returns the default configuration.
func Default() *Config {
	icache := sim.DefaultICacheConfig()
	return &Config{
		StackSize:    sim.DefaultStackSize,
		StackGuard:   sim.DefaultStackGuard,
		LowGuardSize: sim.DefaultLowGuard,
		ZapRegisters: true,
		ICacheSets:   icache.Sets,
		ICacheWays:   icache.Ways,
		ICacheLine:   icache.LineSize,
	}
}

// Load reads a configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// Save writes the configuration as JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FromEnv applies JITSIM_* environment variables. lookup defaults to the
// process environment.
func (c *Config) FromEnv(lookup ...func(string) (string, bool)) error {
	if err := envconfig.Process("", c, lookup...); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// Validate checks the configuration for values a simulator cannot use.
func (c *Config) Validate() error {
	if c.StackSize <= 0 {
		return fmt.Errorf("stack_size must be > 0")
	}
	if c.StackGuard < 0 {
		return fmt.Errorf("stack_guard must be >= 0")
	}
	if c.ICacheSets <= 0 || c.ICacheWays <= 0 {
		return fmt.Errorf("icache_sets and icache_ways must be > 0")
	}
	if c.ICacheLine < 4 || c.ICacheLine%4 != 0 {
		return fmt.Errorf("icache_line must be a positive multiple of 4")
	}
	if c.ARMVersion != nil && (*c.ARMVersion < cpu.ARMv5TE || *c.ARMVersion > cpu.ARMv7) {
		return fmt.Errorf("arm_version %d is not 5, 6 or 7", *c.ARMVersion)
	}
	if c.MIPSVersion != nil && (*c.MIPSVersion < cpu.MIPS32 || *c.MIPSVersion > cpu.MIPS32r2) {
		return fmt.Errorf("mips_version %d is not 1 or 2", *c.MIPSVersion)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.IntegerDivision = cloneBool(c.IntegerDivision)
	out.VFP = cloneBool(c.VFP)
	out.NEON = cloneBool(c.NEON)
	out.HardFP = cloneBool(c.HardFP)
	if c.ARMVersion != nil {
		v := *c.ARMVersion
		out.ARMVersion = &v
	}
	if c.MIPSVersion != nil {
		v := *c.MIPSVersion
		out.MIPSVersion = &v
	}
	return &out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// ICache returns the instruction cache configuration.
func (c *Config) ICache() sim.ICacheConfig {
	return sim.ICacheConfig{
		Sets:     c.ICacheSets,
		Ways:     c.ICacheWays,
		LineSize: c.ICacheLine,
		Check:    c.CheckICache,
	}
}

// Features applies the feature overrides to base.
func (c *Config) Features(base cpu.Features) cpu.Features {
	f := base
	if c.IntegerDivision != nil {
		f.IntegerDivision = *c.IntegerDivision
	}
	if c.VFP != nil {
		f.VFP = *c.VFP
	}
	if c.NEON != nil {
		f.NEON = *c.NEON
	}
	if c.HardFP != nil {
		f.HardFP = *c.HardFP
	}
	if c.ARMVersion != nil {
		f.ARMVersion = *c.ARMVersion
	}
	if c.MIPSVersion != nil {
		f.MIPSVersion = *c.MIPSVersion
	}
	return f
}
