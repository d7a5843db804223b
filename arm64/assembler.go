package arm64

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
	"github.com/sarchlab/jitsim/cpu"
)

// Assembler emits A64 instructions into a buffer.
//
// Integer emitters operate on 64-bit registers; the W-suffixed variants
// operate on the low 32 bits. Every emitter checks its operands and
// panics with an *asm.AssertionError on misuse.
type Assembler struct {
	buffer         *asm.Buffer
	features       cpu.Features
	layout         asm.HeapLayout
	stubs          asm.Stubs
	pool           *asm.ObjectPool
	poolAllowed    bool
	printStops     bool
	prologueOffset int
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithFeatures sets the target CPU features.
func WithFeatures(f cpu.Features) Option {
	return func(a *Assembler) {
		a.features = f
	}
}

// WithLayout sets the heap layout the macros bake in.
func WithLayout(l asm.HeapLayout) Option {
	return func(a *Assembler) {
		asm.Assert(l.WordSize == WordSize, "arm64 needs an 8-byte heap layout")
		a.layout = l.MustValidate()
	}
}

// WithStubs sets the out-of-line stubs the macros call.
func WithStubs(s asm.Stubs) Option {
	return func(a *Assembler) {
		a.stubs = s
	}
}

// WithObjectPool shares an object pool between assemblers.
func WithObjectPool(p *asm.ObjectPool) Option {
	return func(a *Assembler) {
		a.pool = p
	}
}

// WithStopMessages makes Stop print its message through the
// PrintStopMessage stub before trapping.
func WithStopMessages(enabled bool) Option {
	return func(a *Assembler) {
		a.printStops = enabled
	}
}

// New creates an assembler with the default 64-bit heap layout.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		buffer:         asm.NewBuffer(),
		features:       cpu.Simulated(),
		layout:         asm.DefaultHeapLayout(WordSize),
		pool:           asm.NewObjectPool(),
		prologueOffset: -1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Buffer returns the instruction buffer.
func (a *Assembler) Buffer() *asm.Buffer { return a.buffer }

// CodeSize returns the number of bytes emitted.
func (a *Assembler) CodeSize() int { return a.buffer.Size() }

// Features returns the target features.
func (a *Assembler) Features() cpu.Features { return a.features }

// Layout returns the heap layout.
func (a *Assembler) Layout() asm.HeapLayout { return a.layout }

// ObjectPool returns the object pool.
func (a *Assembler) ObjectPool() *asm.ObjectPool { return a.pool }

// PoolAllowed reports whether PP holds a valid pool pointer.
func (a *Assembler) PoolAllowed() bool { return a.poolAllowed }

// SetPoolAllowed records whether PP holds a valid pool pointer.
func (a *Assembler) SetPoolAllowed(allowed bool) { a.poolAllowed = allowed }

// PrologueOffset returns the offset of the first frame setup, or -1.
func (a *Assembler) PrologueOffset() int { return a.prologueOffset }

// Emit appends a raw instruction word.
func (a *Assembler) Emit(word uint32) { a.buffer.Emit32(word) }

// Words returns the emitted code.
func (a *Assembler) Words() []uint32 { return a.buffer.Words() }

func checkReg(r Register) {
	asm.Assert(r >= R0 && r <= ZR, "invalid register %d", r)
}

// checkRegOrSP accepts CSP but not ZR: the slot reads 31 as the stack
// pointer.
func checkRegOrSP(r Register) {
	asm.Assert(r >= R0 && r <= CSP, "register %s not allowed here", r)
}

// checkRegOrZR accepts ZR but not CSP.
func checkRegOrZR(r Register) {
	asm.Assert(r >= R0 && r <= ZR && r != CSP, "register %s not allowed here", r)
}

func checkVReg(v VRegister) {
	asm.Assert(v >= V0 && v < NumVRegisters, "invalid v register %d", v)
}

func sf(w64 bool) uint32 {
	if w64 {
		return 1 << 31
	}
	return 0
}

func regWidth(w64 bool) int {
	if w64 {
		return 64
	}
	return 32
}

func rd(r Register) uint32 { return r.Encoding() }
func rn(r Register) uint32 { return r.Encoding() << RnField.Shift }
func rm(r Register) uint32 { return r.Encoding() << RmField.Shift }
func ra(r Register) uint32 { return r.Encoding() << RaField.Shift }

// Add/subtract.

func (a *Assembler) emitAddSub(w64 bool, sub, setFlags bool, d, n Register, o Operand) {
	var word uint32
	if sub {
		word |= 1 << 30
	}
	if setFlags {
		word |= 1 << 29
		checkRegOrZR(d)
	} else {
		checkRegOrSP(d)
	}
	word |= sf(w64)
	switch o.typ {
	case OperandImmediate:
		checkRegOrSP(n)
		a.Emit(AddSubImmBase | word | o.encoding | rn(n) | rd(d))
	case OperandShifted:
		if d == CSP || n == CSP {
			a.emitAddSub(w64, sub, setFlags, d, n, o.toExtended(regWidth(w64)))
			return
		}
		checkRegOrZR(n)
		asm.Assert(o.ShiftType() != ROR, "ror is not an add/sub shift")
		asm.Assert(o.ShiftAmount() < uint32(regWidth(w64)), "shift out of range")
		a.Emit(AddSubShiftedBase | word | o.encoding | rn(n) | rd(d))
	case OperandExtended:
		checkRegOrSP(n)
		a.Emit(AddSubExtendedBase | word | o.encoding | rn(n) | rd(d))
	default:
		asm.Fatalf("operand type %d is not an add/sub operand", o.typ)
	}
}

// Add computes rd = rn + o.
func (a *Assembler) Add(d, n Register, o Operand) { a.emitAddSub(true, false, false, d, n, o) }

// Addw is Add on W registers.
func (a *Assembler) Addw(d, n Register, o Operand) { a.emitAddSub(false, false, false, d, n, o) }

// Adds is Add setting flags.
func (a *Assembler) Adds(d, n Register, o Operand) { a.emitAddSub(true, false, true, d, n, o) }

// Addsw is Adds on W registers.
func (a *Assembler) Addsw(d, n Register, o Operand) { a.emitAddSub(false, false, true, d, n, o) }

// Sub computes rd = rn - o.
func (a *Assembler) Sub(d, n Register, o Operand) { a.emitAddSub(true, true, false, d, n, o) }

// Subw is Sub on W registers.
func (a *Assembler) Subw(d, n Register, o Operand) { a.emitAddSub(false, true, false, d, n, o) }

// Subs is Sub setting flags.
func (a *Assembler) Subs(d, n Register, o Operand) { a.emitAddSub(true, true, true, d, n, o) }

// Subsw is Subs on W registers.
func (a *Assembler) Subsw(d, n Register, o Operand) { a.emitAddSub(false, true, true, d, n, o) }

// Cmp compares rn with o.
func (a *Assembler) Cmp(n Register, o Operand) { a.Subs(ZR, n, o) }

// Cmpw compares W registers.
func (a *Assembler) Cmpw(n Register, o Operand) { a.Subsw(ZR, n, o) }

// Cmn compares rn with -o.
func (a *Assembler) Cmn(n Register, o Operand) { a.Adds(ZR, n, o) }

// Neg computes rd = -rm.
func (a *Assembler) Neg(d, m Register) { a.Sub(d, ZR, Reg(m)) }

func (a *Assembler) emitAddSubCarry(sub, setFlags bool, d, n, m Register) {
	checkRegOrZR(d)
	checkRegOrZR(n)
	checkRegOrZR(m)
	word := AddSubCarryBase | sf(true) | rm(m) | rn(n) | rd(d)
	if sub {
		word |= 1 << 30
	}
	if setFlags {
		word |= 1 << 29
	}
	a.Emit(word)
}

// Adc computes rd = rn + rm + C.
func (a *Assembler) Adc(d, n, m Register) { a.emitAddSubCarry(false, false, d, n, m) }

// Adcs is Adc setting flags.
func (a *Assembler) Adcs(d, n, m Register) { a.emitAddSubCarry(false, true, d, n, m) }

// Sbc computes rd = rn - rm - !C.
func (a *Assembler) Sbc(d, n, m Register) { a.emitAddSubCarry(true, false, d, n, m) }

// Sbcs is Sbc setting flags.
func (a *Assembler) Sbcs(d, n, m Register) { a.emitAddSubCarry(true, true, d, n, m) }

// Logical.

const (
	opcAnd  = 0
	opcOrr  = 1
	opcEor  = 2
	opcAnds = 3
)

func (a *Assembler) emitLogical(w64 bool, opc uint32, invert bool, d, n Register, o Operand) {
	word := sf(w64) | opc<<29
	switch o.typ {
	case OperandBitfieldImm:
		asm.Assert(!invert, "inverted logical immediate")
		asm.Assert(w64 || o.encoding&NField.Mask() == 0, "64-bit logical immediate on a W register")
		if opc == opcAnds {
			checkRegOrZR(d)
		} else {
			checkRegOrSP(d)
		}
		checkRegOrZR(n)
		a.Emit(LogicalImmBase | word | o.encoding | rn(n) | rd(d))
	case OperandShifted:
		checkRegOrZR(d)
		checkRegOrZR(n)
		asm.Assert(o.ShiftAmount() < uint32(regWidth(w64)), "shift out of range")
		if invert {
			word |= 1 << 21
		}
		a.Emit(LogicalShiftedBase | word | o.encoding | rn(n) | rd(d))
	default:
		asm.Fatalf("operand type %d is not a logical operand", o.typ)
	}
}

// LogicalImm returns the logical immediate v for a width-bit operation.
func LogicalImm(v uint64, width int) Operand {
	var o Operand
	n, immr, imms, ok := EncodeLogicalImm(v, width)
	asm.Assert(ok, "0x%x is not a logical immediate", v)
	o = Operand{typ: OperandBitfieldImm, encoding: n<<NField.Shift | immr<<ImmrField.Shift | imms<<ImmsField.Shift}
	return o
}

// And computes rd = rn & o.
func (a *Assembler) And(d, n Register, o Operand) { a.emitLogical(true, opcAnd, false, d, n, o) }

// Andw is And on W registers.
func (a *Assembler) Andw(d, n Register, o Operand) { a.emitLogical(false, opcAnd, false, d, n, o) }

// Ands is And setting flags.
func (a *Assembler) Ands(d, n Register, o Operand) { a.emitLogical(true, opcAnds, false, d, n, o) }

// Orr computes rd = rn | o.
func (a *Assembler) Orr(d, n Register, o Operand) { a.emitLogical(true, opcOrr, false, d, n, o) }

// Orrw is Orr on W registers.
func (a *Assembler) Orrw(d, n Register, o Operand) { a.emitLogical(false, opcOrr, false, d, n, o) }

// Eor computes rd = rn ^ o.
func (a *Assembler) Eor(d, n Register, o Operand) { a.emitLogical(true, opcEor, false, d, n, o) }

// Eorw is Eor on W registers.
func (a *Assembler) Eorw(d, n Register, o Operand) { a.emitLogical(false, opcEor, false, d, n, o) }

// Bic computes rd = rn &^ o.
func (a *Assembler) Bic(d, n Register, o Operand) { a.emitLogical(true, opcAnd, true, d, n, o) }

// Bics is Bic setting flags.
func (a *Assembler) Bics(d, n Register, o Operand) { a.emitLogical(true, opcAnds, true, d, n, o) }

// Orn computes rd = rn | ^o.
func (a *Assembler) Orn(d, n Register, o Operand) { a.emitLogical(true, opcOrr, true, d, n, o) }

// Eon computes rd = rn ^ ^o.
func (a *Assembler) Eon(d, n Register, o Operand) { a.emitLogical(true, opcEor, true, d, n, o) }

// Tst tests rn & o.
func (a *Assembler) Tst(n Register, o Operand) { a.Ands(ZR, n, o) }

// Mvn computes rd = ^rm.
func (a *Assembler) Mvn(d, m Register) { a.Orn(d, ZR, Reg(m)) }

// Mov copies rm into rd. Moves involving CSP use add #0.
func (a *Assembler) Mov(d, m Register) {
	if d == CSP || m == CSP {
		a.Add(d, m, Imm(0))
		return
	}
	a.Orr(d, ZR, Reg(m))
}

// Movw copies a W register, zeroing the upper half.
func (a *Assembler) Movw(d, m Register) { a.Orrw(d, ZR, Reg(m)) }

// Move wide.

func (a *Assembler) emitMoveWide(opc uint32, d Register, imm uint16, hw uint32) {
	checkRegOrZR(d)
	asm.Assert(hw < 4, "hw %d out of range", hw)
	a.Emit(MoveWideBase | sf(true) | opc<<29 | hw<<HwField.Shift | uint32(imm)<<Imm16Field.Shift | rd(d))
}

// Movz sets rd to imm << 16*hw.
func (a *Assembler) Movz(d Register, imm uint16, hw uint32) { a.emitMoveWide(2, d, imm, hw) }

// Movn sets rd to ^(imm << 16*hw).
func (a *Assembler) Movn(d Register, imm uint16, hw uint32) { a.emitMoveWide(0, d, imm, hw) }

// Movk replaces half-word hw of rd with imm.
func (a *Assembler) Movk(d Register, imm uint16, hw uint32) { a.emitMoveWide(3, d, imm, hw) }

// Shifts and bitfields.

func (a *Assembler) emitDP2(w64 bool, opcode uint32, d, n, m Register) {
	checkRegOrZR(d)
	checkRegOrZR(n)
	checkRegOrZR(m)
	a.Emit(DP2SourceBase | sf(w64) | rm(m) | opcode<<10 | rn(n) | rd(d))
}

// Lslv shifts rn left by rm.
func (a *Assembler) Lslv(d, n, m Register) { a.emitDP2(true, 0x8, d, n, m) }

// Lsrv shifts rn right logically by rm.
func (a *Assembler) Lsrv(d, n, m Register) { a.emitDP2(true, 0x9, d, n, m) }

// Asrv shifts rn right arithmetically by rm.
func (a *Assembler) Asrv(d, n, m Register) { a.emitDP2(true, 0xa, d, n, m) }

// Rorv rotates rn right by rm.
func (a *Assembler) Rorv(d, n, m Register) { a.emitDP2(true, 0xb, d, n, m) }

// Udiv computes the unsigned quotient; division by zero yields zero.
func (a *Assembler) Udiv(d, n, m Register) { a.emitDP2(true, 0x2, d, n, m) }

// Sdiv computes the signed quotient.
func (a *Assembler) Sdiv(d, n, m Register) { a.emitDP2(true, 0x3, d, n, m) }

// Udivw and Sdivw divide W registers.
func (a *Assembler) Udivw(d, n, m Register) { a.emitDP2(false, 0x2, d, n, m) }

// Sdivw is Sdiv on W registers.
func (a *Assembler) Sdivw(d, n, m Register) { a.emitDP2(false, 0x3, d, n, m) }

func (a *Assembler) emitBitfield(w64 bool, opc uint32, d, n Register, immr, imms uint32) {
	checkRegOrZR(d)
	checkRegOrZR(n)
	width := uint32(regWidth(w64))
	asm.Assert(immr < width && imms < width, "bitfield %d:%d out of range", immr, imms)
	var nbit uint32
	if w64 {
		nbit = 1 << NField.Shift
	}
	a.Emit(BitfieldBase | sf(w64) | opc<<29 | nbit | immr<<ImmrField.Shift | imms<<ImmsField.Shift | rn(n) | rd(d))
}

// Sbfm is the signed bitfield move.
func (a *Assembler) Sbfm(d, n Register, immr, imms uint32) { a.emitBitfield(true, 0, d, n, immr, imms) }

// Bfm is the bitfield move keeping other bits of rd.
func (a *Assembler) Bfm(d, n Register, immr, imms uint32) { a.emitBitfield(true, 1, d, n, immr, imms) }

// Ubfm is the unsigned bitfield move.
func (a *Assembler) Ubfm(d, n Register, immr, imms uint32) { a.emitBitfield(true, 2, d, n, immr, imms) }

// Lsl shifts rn left by a constant.
func (a *Assembler) Lsl(d, n Register, shift uint32) {
	asm.Assert(shift < 64, "shift %d out of range", shift)
	a.Ubfm(d, n, (64-shift)&63, 63-shift)
}

// Lsr shifts rn right logically by a constant.
func (a *Assembler) Lsr(d, n Register, shift uint32) { a.Ubfm(d, n, shift, 63) }

// Asr shifts rn right arithmetically by a constant.
func (a *Assembler) Asr(d, n Register, shift uint32) { a.Sbfm(d, n, shift, 63) }

// Ubfx extracts width bits at lsb, zero-extended.
func (a *Assembler) Ubfx(d, n Register, lsb, width uint32) { a.Ubfm(d, n, lsb, lsb+width-1) }

// Sbfx extracts width bits at lsb, sign-extended.
func (a *Assembler) Sbfx(d, n Register, lsb, width uint32) { a.Sbfm(d, n, lsb, lsb+width-1) }

// Sxtw sign-extends the low word of rn.
func (a *Assembler) Sxtw(d, n Register) { a.Sbfm(d, n, 0, 31) }

// Uxtw zero-extends the low word of rn.
func (a *Assembler) Uxtw(d, n Register) { a.Ubfm(d, n, 0, 31) }

func (a *Assembler) emitDP1(opcode uint32, d, n Register) {
	checkRegOrZR(d)
	checkRegOrZR(n)
	a.Emit(DP1SourceBase | sf(true) | opcode<<10 | rn(n) | rd(d))
}

// Clz counts leading zeros.
func (a *Assembler) Clz(d, n Register) { a.emitDP1(0x4, d, n) }

// Rbit reverses the bits of rn.
func (a *Assembler) Rbit(d, n Register) { a.emitDP1(0x0, d, n) }

// Multiply.

func (a *Assembler) emitDP3(w64 bool, op31, o0 uint32, d, n, m, acc Register) {
	checkRegOrZR(d)
	checkRegOrZR(n)
	checkRegOrZR(m)
	checkRegOrZR(acc)
	a.Emit(DP3SourceBase | sf(w64) | op31<<21 | rm(m) | o0<<15 | ra(acc) | rn(n) | rd(d))
}

// Madd computes rd = ra + rn*rm.
func (a *Assembler) Madd(d, n, m, acc Register) { a.emitDP3(true, 0, 0, d, n, m, acc) }

// Msub computes rd = ra - rn*rm.
func (a *Assembler) Msub(d, n, m, acc Register) { a.emitDP3(true, 0, 1, d, n, m, acc) }

// Mul computes rd = rn*rm.
func (a *Assembler) Mul(d, n, m Register) { a.Madd(d, n, m, ZR) }

// Mulw multiplies W registers.
func (a *Assembler) Mulw(d, n, m Register) { a.emitDP3(false, 0, 0, d, n, m, ZR) }

// Smaddl computes rd = ra + sext(wn)*sext(wm).
func (a *Assembler) Smaddl(d, n, m, acc Register) { a.emitDP3(true, 1, 0, d, n, m, acc) }

// Umaddl computes rd = ra + zext(wn)*zext(wm).
func (a *Assembler) Umaddl(d, n, m, acc Register) { a.emitDP3(true, 5, 0, d, n, m, acc) }

// Smull computes the 64-bit product of two signed words.
func (a *Assembler) Smull(d, n, m Register) { a.Smaddl(d, n, m, ZR) }

// Smulh computes the high 64 bits of the signed 128-bit product.
func (a *Assembler) Smulh(d, n, m Register) { a.emitDP3(true, 2, 0, d, n, m, ZR) }

// Umulh computes the high 64 bits of the unsigned 128-bit product.
func (a *Assembler) Umulh(d, n, m Register) { a.emitDP3(true, 6, 0, d, n, m, ZR) }

// Conditional select and compare.

func checkCond(c Condition) {
	asm.Assert(c >= EQ && c <= NV, "invalid condition %d", c)
}

func (a *Assembler) emitCondSelect(op, op2 uint32, d, n, m Register, c Condition) {
	checkRegOrZR(d)
	checkRegOrZR(n)
	checkRegOrZR(m)
	checkCond(c)
	a.Emit(CondSelectBase | sf(true) | op<<30 | rm(m) | uint32(c)<<CondField.Shift | op2<<10 | rn(n) | rd(d))
}

// Csel selects rn when c holds, else rm.
func (a *Assembler) Csel(d, n, m Register, c Condition) { a.emitCondSelect(0, 0, d, n, m, c) }

// Csinc selects rn when c holds, else rm+1.
func (a *Assembler) Csinc(d, n, m Register, c Condition) { a.emitCondSelect(0, 1, d, n, m, c) }

// Csinv selects rn when c holds, else ^rm.
func (a *Assembler) Csinv(d, n, m Register, c Condition) { a.emitCondSelect(1, 0, d, n, m, c) }

// Csneg selects rn when c holds, else -rm.
func (a *Assembler) Csneg(d, n, m Register, c Condition) { a.emitCondSelect(1, 1, d, n, m, c) }

// Cset sets rd to 1 when c holds, else 0.
func (a *Assembler) Cset(d Register, c Condition) { a.Csinc(d, ZR, ZR, c.Invert()) }

// Csetm sets rd to all ones when c holds, else 0.
func (a *Assembler) Csetm(d Register, c Condition) { a.Csinv(d, ZR, ZR, c.Invert()) }

// Cinc sets rd to rn+1 when c holds, else rn.
func (a *Assembler) Cinc(d, n Register, c Condition) { a.Csinc(d, n, n, c.Invert()) }

// Ccmp compares rn with o when c holds; otherwise it sets the flags to
// nzcv. o is a register or an immediate below 32.
func (a *Assembler) Ccmp(n Register, o Operand, nzcv uint32, c Condition) {
	checkRegOrZR(n)
	checkCond(c)
	asm.Assert(nzcv < 16, "nzcv %d out of range", nzcv)
	word := CondCompareBase | sf(true) | 1<<30 | uint32(c)<<CondField.Shift | rn(n) | nzcv
	switch o.typ {
	case OperandShifted:
		asm.Assert(o.ShiftAmount() == 0, "ccmp takes an unshifted register")
		word |= rm(o.rm)
	case OperandImmediate:
		v := o.ImmValue()
		asm.Assert(v < 32, "ccmp immediate %d out of range", v)
		word |= 1<<11 | uint32(v)<<RmField.Shift
	default:
		asm.Fatalf("operand type %d is not a ccmp operand", o.typ)
	}
	a.Emit(word)
}

// Adr loads the address offset bytes from this instruction.
func (a *Assembler) Adr(d Register, offset int32) {
	checkRegOrZR(d)
	off := int64(offset)
	asm.Assert(bits.IsInt(21, off), "adr offset %d out of range", off)
	u := uint32(off) & 0x1fffff
	a.Emit(PCRelBase | (u&3)<<ImmLoField.Shift | (u>>2)<<ImmHiField.Shift | rd(d))
}

// Loads and stores.

func loadStoreBits(load bool, size OperandSize) (uint32, bool) {
	var sizeField, opc uint32
	vector := size.IsFP()
	switch size {
	case Byte, UnsignedByte:
		sizeField = 0
	case Halfword, UnsignedHalfword:
		sizeField = 1
	case Word, UnsignedWord, SWord:
		sizeField = 2
	case DoubleWord, DWord:
		sizeField = 3
	case QWord:
		sizeField = 0
	}
	switch {
	case size == QWord && load:
		opc = 3
	case size == QWord:
		opc = 2
	case !load:
		opc = 0
	case size == Byte || size == Halfword || size == Word:
		opc = 2
	default:
		opc = 1
	}
	word := sizeField<<SizeField.Shift | opc<<OpcField.Shift
	if vector {
		word |= 1 << 26
	}
	return word, vector
}

func (a *Assembler) emitLoadStore(load bool, size OperandSize, t uint32, ad Address) {
	if ad.mode == PCOffset {
		asm.Assert(load, "store to a literal address")
		var opc uint32
		switch size {
		case UnsignedWord, SWord:
			opc = 0
		case DoubleWord, DWord:
			opc = 1
		case Word, QWord:
			opc = 2
		default:
			asm.Fatalf("literal load of size %d", size)
		}
		word := LoadLiteralBase | opc<<30 | t
		if size.IsFP() {
			word |= 1 << 26
		}
		off := int64(ad.offset)
		asm.Assert(bits.IsInt(21, off) && off%4 == 0, "literal offset %d out of range", off)
		a.Emit(EncodeImm19(word, off))
		return
	}
	word, _ := loadStoreBits(load, size)
	a.Emit(word | ad.encoding(size) | t)
}

func sizeArg(sz []OperandSize) OperandSize {
	if len(sz) == 0 {
		return DoubleWord
	}
	asm.Assert(len(sz) == 1, "at most one size")
	return sz[0]
}

func checkWriteback(t Register, ad Address) {
	if ad.mode == PreIndex || ad.mode == PostIndex {
		asm.Assert(t != ad.base, "writeback into the transfer register")
	}
}

// Ldr loads rt from ad. The size defaults to DoubleWord; signed sizes
// sign-extend to 64 bits.
func (a *Assembler) Ldr(t Register, ad Address, sz ...OperandSize) {
	size := sizeArg(sz)
	asm.Assert(!size.IsFP(), "use Fldr for FP registers")
	checkRegOrZR(t)
	checkWriteback(t, ad)
	a.emitLoadStore(true, size, t.Encoding(), ad)
}

// Str stores rt to ad.
func (a *Assembler) Str(t Register, ad Address, sz ...OperandSize) {
	size := sizeArg(sz)
	asm.Assert(!size.IsFP(), "use Fstr for FP registers")
	checkRegOrZR(t)
	checkWriteback(t, ad)
	a.emitLoadStore(false, size, t.Encoding(), ad)
}

func (a *Assembler) emitPair(load bool, size OperandSize, t, t2 Register, ad Address) {
	checkRegOrZR(t)
	checkRegOrZR(t2)
	if load {
		asm.Assert(t != t2, "ldp into one register twice")
	}
	if ad.mode != PairOffset {
		asm.Assert(t != ad.base && t2 != ad.base, "pair writeback into a transfer register")
	}
	var opc uint32
	switch size {
	case DoubleWord:
		opc = 2
	case UnsignedWord:
		opc = 0
	case Word:
		asm.Assert(load, "stp of a signed word")
		opc = 1
	default:
		asm.Fatalf("pair of size %d", size)
	}
	word := LoadStorePairBase | opc<<30 | ad.pairEncoding(size) | t2.Encoding()<<Rt2Field.Shift | t.Encoding()
	if load {
		word |= 1 << 22
	}
	a.Emit(word)
}

// Ldp loads rt and rt2 from consecutive slots at ad.
func (a *Assembler) Ldp(t, t2 Register, ad Address, sz ...OperandSize) {
	a.emitPair(true, sizeArg(sz), t, t2, ad)
}

// Stp stores rt and rt2 to consecutive slots at ad.
func (a *Assembler) Stp(t, t2 Register, ad Address, sz ...OperandSize) {
	a.emitPair(false, sizeArg(sz), t, t2, ad)
}

func exclusiveSize(sz []OperandSize) uint32 {
	switch size := sizeArg(sz); size {
	case DoubleWord:
		return 3
	case UnsignedWord, Word:
		return 2
	default:
		asm.Fatalf("exclusive access of size %d", size)
		return 0
	}
}

// Ldxr load-exclusives rt from [rn].
func (a *Assembler) Ldxr(t, n Register, sz ...OperandSize) {
	checkRegOrZR(t)
	checkRegOrSP(n)
	a.Emit(ExclusiveBase | exclusiveSize(sz)<<30 | 0x005f7c00 | rn(n) | rd(t))
}

// Stxr store-exclusives rt to [rn], writing 0 to rs on success and 1 on
// failure.
func (a *Assembler) Stxr(s, t, n Register, sz ...OperandSize) {
	checkRegOrZR(s)
	checkRegOrZR(t)
	checkRegOrSP(n)
	asm.Assert(s != t && s != n, "stxr status overlaps an operand")
	a.Emit(ExclusiveBase | exclusiveSize(sz)<<30 | 0x00007c00 | s.Encoding()<<RsField.Shift | rn(n) | rd(t))
}

// Clrex clears the exclusive reservation.
func (a *Assembler) Clrex() { a.Emit(ClrexInstr) }

// Branches.

func (a *Assembler) emitBranchRef(word uint32, l *asm.Label, field bits.Field) {
	if l.IsBound() {
		off := int64(l.Position() - a.buffer.Size())
		asm.Assert(bits.IsInt(field.Width+2, off), "branch offset %d out of range", off)
		a.Emit(field.Set(word, field.EncodeSigned(off>>2)>>field.Shift))
		return
	}
	a.buffer.TrackLabel(l)
	chain := l.LinkReference(a.buffer.Size())
	asm.Assert(chain <= field.Max()>>1, "label chain too long")
	a.Emit(field.Set(word, chain))
}

// B branches to l, conditionally when a condition other than AL is given.
func (a *Assembler) B(l *asm.Label, cond ...Condition) {
	if len(cond) == 0 || cond[0] == AL {
		a.emitBranchRef(UncondBranchBase, l, Imm26Field)
		return
	}
	asm.Assert(len(cond) == 1, "at most one condition")
	checkCond(cond[0])
	a.emitBranchRef(CondBranchBase|uint32(cond[0]), l, Imm19Field)
}

// Bl calls l.
func (a *Assembler) Bl(l *asm.Label) {
	a.emitBranchRef(UncondBranchBase|1<<31, l, Imm26Field)
}

// Cbz branches to l when rt is zero.
func (a *Assembler) Cbz(l *asm.Label, t Register) {
	checkRegOrZR(t)
	a.emitBranchRef(CompareBranchBase|sf(true)|t.Encoding(), l, Imm19Field)
}

// Cbnz branches to l when rt is not zero.
func (a *Assembler) Cbnz(l *asm.Label, t Register) {
	checkRegOrZR(t)
	a.emitBranchRef(CompareBranchBase|sf(true)|1<<24|t.Encoding(), l, Imm19Field)
}

func testBranchWord(t Register, bit uint32) uint32 {
	checkRegOrZR(t)
	asm.Assert(bit < 64, "bit %d out of range", bit)
	return TestBranchBase | (bit>>5)<<31 | (bit&31)<<B40Field.Shift | t.Encoding()
}

// Tbz branches to l when bit of rt is clear.
func (a *Assembler) Tbz(l *asm.Label, t Register, bit uint32) {
	a.emitBranchRef(testBranchWord(t, bit), l, Imm14Field)
}

// Tbnz branches to l when bit of rt is set.
func (a *Assembler) Tbnz(l *asm.Label, t Register, bit uint32) {
	a.emitBranchRef(testBranchWord(t, bit)|1<<24, l, Imm14Field)
}

// branchField returns the displacement field of a branch word.
func branchField(word uint32) bits.Field {
	i := Instr(word)
	switch {
	case i.IsUncondBranch():
		return Imm26Field
	case i.IsTestBranch():
		return Imm14Field
	case i.IsCondBranch(), i.IsCompareBranch():
		return Imm19Field
	default:
		asm.Fatalf("0x%08x is not a label reference", word)
		return bits.Field{}
	}
}

// Bind binds l to the current position, patching every pending branch to
// it. Offsets are relative to the branch itself.
func (a *Assembler) Bind(l *asm.Label) {
	bound := a.buffer.Size()
	l.Resolve(bound, func(pos int) uint32 {
		inst := a.buffer.Load32(pos)
		field := branchField(inst)
		link := field.Get(inst)
		off := int64(bound - pos)
		asm.Assert(bits.IsInt(field.Width+2, off), "branch offset %d out of range", off)
		a.buffer.Store32(pos, field.Set(inst, field.EncodeSigned(off>>2)>>field.Shift))
		return link
	})
}

// Br jumps to rn.
func (a *Assembler) Br(n Register) {
	checkRegOrZR(n)
	a.Emit(BranchRegBase | rn(n))
}

// Blr calls rn.
func (a *Assembler) Blr(n Register) {
	checkRegOrZR(n)
	a.Emit(BranchRegBase | 1<<21 | rn(n))
}

// Ret returns to LR, or to rn when given.
func (a *Assembler) Ret(r ...Register) {
	target := LR
	if len(r) > 0 {
		target = r[0]
	}
	checkRegOrZR(target)
	a.Emit(BranchRegBase | 2<<21 | rn(target))
}

// Exceptions and hints.

// Svc emits a supervisor call.
func (a *Assembler) Svc(imm uint16) {
	a.Emit(ExceptionBase | uint32(imm)<<Imm16Field.Shift | 1)
}

// Brk emits a breakpoint instruction.
func (a *Assembler) Brk(imm uint16) {
	a.Emit(ExceptionBase | 1<<21 | uint32(imm)<<Imm16Field.Shift)
}

// Hlt emits a halt instruction.
func (a *Assembler) Hlt(imm uint16) {
	a.Emit(ExceptionBase | 2<<21 | uint32(imm)<<Imm16Field.Shift)
}

// Nop emits a no-op.
func (a *Assembler) Nop() { a.Emit(NopInstr) }

// SmiTag tags reg as a small integer.
func (a *Assembler) SmiTag(reg Register) { a.Lsl(reg, reg, asm.SmiTagShift) }

// SmiUntag untags the small integer in reg.
func (a *Assembler) SmiUntag(reg Register) { a.Asr(reg, reg, asm.SmiTagShift) }

// EmitObject embeds the tagged word of obj, recording its position when it
// refers to a heap object.
func (a *Assembler) EmitObject(obj asm.Object) {
	if !obj.IsSmi() {
		a.buffer.AddPointerOffset(a.buffer.Size())
	}
	a.buffer.Emit64(obj.Raw())
}
