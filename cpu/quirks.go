package cpu

import "strings"

// Quirk corrects the self-reported capabilities of hardware known to
// misreport them.
type Quirk struct {
	// Match is a substring of the reported hardware id.
	Match string
	Apply func(*Features)
}

// Quirks lists the known-wrong hardware reports.
var Quirks = []Quirk{
	{
		// Reports idiva but faults on sdiv.
		Match: "QCT APQ8064",
		Apply: func(f *Features) { f.IntegerDivision = false },
	},
	{
		// Tegra 2 has VFPv3-D16 without NEON but advertises neon.
		Match: "NVIDIA Tegra 2",
		Apply: func(f *Features) { f.NEON = false },
	},
	{
		// Exynos 5250 divides correctly but older kernels omit idiva.
		Match: "SAMSUNG EXYNOS5",
		Apply: func(f *Features) { f.IntegerDivision = true },
	},
}

// ApplyQuirks returns f adjusted by every matching quirk.
func ApplyQuirks(f Features) Features {
	for _, q := range Quirks {
		if f.Hardware != "" && strings.Contains(f.Hardware, q.Match) {
			q.Apply(&f)
		}
	}
	return f
}
