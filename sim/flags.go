package sim

// Cond is an ARM condition code. ARM32 and ARM64 share the encoding.
type Cond uint8

// Condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Always on ARM64; special encodings on ARM32
)

// Flags are the NZCV condition flags.
type Flags struct {
	N bool
	Z bool
	C bool
	V bool
}

// FlagsFromNZCV unpacks the NZCV nibble (N in bit 3).
func FlagsFromNZCV(nzcv uint32) Flags {
	return Flags{
		N: nzcv&8 != 0,
		Z: nzcv&4 != 0,
		C: nzcv&2 != 0,
		V: nzcv&1 != 0,
	}
}

// NZCV packs the flags into a nibble.
func (f Flags) NZCV() uint32 {
	var v uint32
	if f.N {
		v |= 8
	}
	if f.Z {
		v |= 4
	}
	if f.C {
		v |= 2
	}
	if f.V {
		v |= 1
	}
	return v
}

// EvaluateCondition checks cond against the flags.
func EvaluateCondition(cond Cond, f Flags) bool {
	switch cond {
	case CondEQ:
		return f.Z
	case CondNE:
		return !f.Z
	case CondCS:
		return f.C
	case CondCC:
		return !f.C
	case CondMI:
		return f.N
	case CondPL:
		return !f.N
	case CondVS:
		return f.V
	case CondVC:
		return !f.V
	case CondHI:
		return f.C && !f.Z
	case CondLS:
		return !f.C || f.Z
	case CondGE:
		return f.N == f.V
	case CondLT:
		return f.N != f.V
	case CondGT:
		return !f.Z && (f.N == f.V)
	case CondLE:
		return f.Z || (f.N != f.V)
	case CondAL, CondNV:
		return true
	default:
		return false
	}
}

// AddFlags32 returns x+y+carry and the NZCV flags of the addition.
func AddFlags32(x, y uint32, carry bool) (uint32, Flags) {
	var c uint64
	if carry {
		c = 1
	}
	wide := uint64(x) + uint64(y) + c
	result := uint32(wide)
	xSign := x >> 31
	ySign := y >> 31
	rSign := result >> 31
	return result, Flags{
		N: rSign == 1,
		Z: result == 0,
		C: wide>>32 != 0,
		V: xSign == ySign && xSign != rSign,
	}
}

// SubFlags32 returns x-y as x + ^y + 1 with ARM borrow semantics: C is set
// when no borrow occurred.
func SubFlags32(x, y uint32) (uint32, Flags) {
	return AddFlags32(x, ^y, true)
}

// AddFlags64 is the 64-bit form of AddFlags32.
func AddFlags64(x, y uint64, carry bool) (uint64, Flags) {
	var c uint64
	if carry {
		c = 1
	}
	result := x + y + c
	carryOut := result < x || (carry && result == x)
	xSign := x >> 63
	ySign := y >> 63
	rSign := result >> 63
	return result, Flags{
		N: rSign == 1,
		Z: result == 0,
		C: carryOut,
		V: xSign == ySign && xSign != rSign,
	}
}

// SubFlags64 is the 64-bit form of SubFlags32.
func SubFlags64(x, y uint64) (uint64, Flags) {
	return AddFlags64(x, ^y, true)
}

// LogicFlags32 sets N and Z from result, keeping C and V from prev.
func LogicFlags32(result uint32, prev Flags) Flags {
	return Flags{N: result>>31 == 1, Z: result == 0, C: prev.C, V: prev.V}
}

// LogicFlags64 sets N and Z from result and clears C and V.
func LogicFlags64(result uint64) Flags {
	return Flags{N: result>>63 == 1, Z: result == 0}
}
