package sim

import "math"

// CompareFloat returns the NZCV flags of a floating-point compare: 0011
// unordered, 0110 equal, 1000 less than, 0010 greater than. ARM32 VFP and
// ARM64 use the same encoding.
func CompareFloat(a, b float64) Flags {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return Flags{C: true, V: true}
	case a == b:
		return Flags{Z: true, C: true}
	case a < b:
		return Flags{N: true}
	default:
		return Flags{C: true}
	}
}

// FloatToInt32 converts toward zero, saturating out-of-range values. NaN
// converts to 0.
func FloatToInt32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(f)
	}
}

// FloatToUint32 converts toward zero, saturating at 0 and MaxUint32.
func FloatToUint32(f float64) uint32 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(f)
	}
}

// FloatToInt64 converts toward zero, saturating out-of-range values.
func FloatToInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

// FloatToUint64 converts toward zero, saturating at 0 and MaxUint64.
func FloatToUint64(f float64) uint64 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= math.MaxUint64:
		return math.MaxUint64
	default:
		return uint64(f)
	}
}

// RecipEstimate is the single-precision reciprocal estimate of vrecpe and
// frecpe: an 8-bit accurate table lookup, not a division.
func RecipEstimate(a float32) float32 {
	switch {
	case math.IsNaN(float64(a)):
		return a
	case math.IsInf(float64(a), 0):
		return float32(math.Copysign(0, float64(a)))
	case a == 0:
		return float32(math.Copysign(math.Inf(1), float64(a)))
	}
	bits := math.Float32bits(a)
	exp := int32(bits>>23) & 0xff
	if exp == 0 {
		// Denormals flush to zero, whose reciprocal is infinite.
		return float32(math.Copysign(math.Inf(1), float64(a)))
	}
	resultExp := 253 - exp
	if resultExp < 1 {
		return float32(math.Copysign(0, float64(a)))
	}

	// scaled = 0 01111111110 : a<22:0> : zeros, in [0.5, 1.0).
	scaled := math.Float64frombits(uint64(0x3fe)<<52 | uint64(bits&0x7fffff)<<29)
	q := int32(scaled * 512.0)
	r := 1.0 / ((float64(q) + 0.5) / 512.0)
	s := int32(256.0*r + 0.5)
	estimate := float64(s) / 256.0

	result := bits&0x80000000 | uint32(resultExp&0xff)<<23 |
		uint32(math.Float64bits(estimate)>>29)&0x7fffff
	return math.Float32frombits(result)
}

// RecipSqrtEstimate is the single-precision reciprocal square root
// estimate of vrsqrte and frsqrte.
func RecipSqrtEstimate(a float32) float32 {
	switch {
	case math.IsNaN(float64(a)):
		return a
	case a == 0:
		return float32(math.Copysign(math.Inf(1), float64(a)))
	case a < 0:
		return float32(math.NaN())
	case math.IsInf(float64(a), 1):
		return 0
	}
	bits := math.Float32bits(a)
	exp := (bits >> 23) & 0xff
	if exp == 0 {
		return float32(math.Inf(1))
	}

	// The exponent parity picks the [0.25, 0.5) or [0.5, 1.0) scaling.
	var scaled float64
	if exp&1 != 0 {
		scaled = math.Float64frombits(uint64(0x3fd)<<52 | uint64(bits&0x7fffff)<<29)
	} else {
		scaled = math.Float64frombits(uint64(0x3fe)<<52 | uint64(bits&0x7fffff)<<29)
	}
	resultExp := (380 - int32(exp)) / 2

	var r float64
	if scaled < 0.5 {
		q0 := int32(scaled * 512.0)
		r = 1.0 / math.Sqrt((float64(q0)+0.5)/512.0)
	} else {
		q1 := int32(scaled * 256.0)
		r = 1.0 / math.Sqrt((float64(q1)+0.5)/256.0)
	}
	s := int32(256.0*r + 0.5)
	estimate := float64(s) / 256.0

	result := uint32(resultExp&0xff)<<23 | uint32(math.Float64bits(estimate)>>29)&0x7fffff
	return math.Float32frombits(result)
}

// RecipStep is the Newton-Raphson reciprocal step 2 - a*b.
func RecipStep(a, b float32) float32 { return 2.0 - a*b }

// RecipSqrtStep is the reciprocal square root step (3 - a*b) / 2.
func RecipSqrtStep(a, b float32) float32 { return (3.0 - a*b) / 2.0 }

// RecipEstimate64 is the double-precision form of RecipEstimate used by
// frecpe on 2D lanes. It has the same 8-bit accuracy.
func RecipEstimate64(a float64) float64 {
	switch {
	case math.IsNaN(a):
		return a
	case math.IsInf(a, 0):
		return math.Copysign(0, a)
	case a == 0:
		return math.Copysign(math.Inf(1), a)
	}
	bits := math.Float64bits(a)
	exp := int64(bits>>52) & 0x7ff
	if exp == 0 {
		return math.Copysign(math.Inf(1), a)
	}
	resultExp := 2045 - exp
	if resultExp < 1 {
		return math.Copysign(0, a)
	}

	scaled := math.Float64frombits(uint64(0x3fe)<<52 | bits&(1<<52-1))
	q := int64(scaled * 512.0)
	r := 1.0 / ((float64(q) + 0.5) / 512.0)
	s := int64(256.0*r + 0.5)
	estimate := float64(s) / 256.0

	result := bits&(1<<63) | uint64(resultExp&0x7ff)<<52 | math.Float64bits(estimate)&(1<<52-1)
	return math.Float64frombits(result)
}

// RecipSqrtEstimate64 is the double-precision form of RecipSqrtEstimate.
func RecipSqrtEstimate64(a float64) float64 {
	switch {
	case math.IsNaN(a):
		return a
	case a == 0:
		return math.Copysign(math.Inf(1), a)
	case a < 0:
		return math.NaN()
	case math.IsInf(a, 1):
		return 0
	}
	bits := math.Float64bits(a)
	exp := (bits >> 52) & 0x7ff
	if exp == 0 {
		return math.Inf(1)
	}

	var scaled float64
	if exp&1 != 0 {
		scaled = math.Float64frombits(uint64(0x3fd)<<52 | bits&(1<<52-1))
	} else {
		scaled = math.Float64frombits(uint64(0x3fe)<<52 | bits&(1<<52-1))
	}
	resultExp := (3068 - int64(exp)) / 2

	var r float64
	if scaled < 0.5 {
		q0 := int64(scaled * 512.0)
		r = 1.0 / math.Sqrt((float64(q0)+0.5)/512.0)
	} else {
		q1 := int64(scaled * 256.0)
		r = 1.0 / math.Sqrt((float64(q1)+0.5)/256.0)
	}
	s := int64(256.0*r + 0.5)
	estimate := float64(s) / 256.0

	result := uint64(resultExp&0x7ff)<<52 | math.Float64bits(estimate)&(1<<52-1)
	return math.Float64frombits(result)
}
