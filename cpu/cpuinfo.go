package cpu

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// ProcCPUInfo reads the running kernel's /proc/cpuinfo.
var ProcCPUInfo Source = SourceFunc(func() (string, error) {
	b, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "", err
	}
	return string(b), nil
})

// ParseCPUInfo extracts features from /proc/cpuinfo formatted text. Absent
// fields leave the conservative defaults: ARMv5TE, no division, no VFP,
// MIPS32.
func ParseCPUInfo(text string) Features {
	f := Features{ARMVersion: ARMv5TE, MIPSVersion: MIPS32}
	flags := map[string]bool{}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "features", "flags":
			for _, flag := range strings.Fields(value) {
				flags[strings.ToLower(flag)] = true
			}
		case "cpu architecture":
			if n, err := strconv.Atoi(strings.TrimRight(value, "ABCDEFGHIJKLMNOPQRSTUVWXYZ()")); err == nil {
				switch {
				case n >= 7:
					f.ARMVersion = ARMv7
				case n == 6:
					f.ARMVersion = ARMv6
				}
			}
		case "hardware":
			f.Hardware = value
		case "model name", "cpu model":
			if f.Hardware == "" {
				f.Hardware = value
			}
			if strings.Contains(strings.ToLower(value), "armv7") {
				f.ARMVersion = ARMv7
			}
		case "isa":
			if strings.Contains(strings.ToLower(value), "mips32r2") {
				f.MIPSVersion = MIPS32r2
			}
		}
	}

	f.IntegerDivision = flags["idiva"]
	f.VFP = flags["vfp"] || flags["vfpv3"] || flags["vfpv4"]
	f.NEON = flags["neon"] || flags["asimd"]
	f.HardFP = flags["vfpv3"] || flags["vfpv4"]
	f.SSE2 = flags["sse2"]
	f.SSE41 = flags["sse4_1"]
	if flags["asimd"] {
		// AArch64 kernels report asimd/fp instead of the 32-bit names.
		f.VFP = f.VFP || flags["fp"]
		f.IntegerDivision = true
		f.ARMVersion = ARMv7
	}
	return f
}
