package arm

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/cpu"
)

// Assembler emits ARM32 instructions into a buffer.
//
// Emitters take an optional trailing condition; AL is used when it is
// omitted. Every emitter checks its operands and panics with an
// *asm.AssertionError on misuse.
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

// New creates an assembler. Without options it targets the simulated
// ARMv7 feature set with the default 32-bit heap layout.
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

func condition(cs []Condition) Condition {
	if len(cs) == 0 {
		return AL
	}
	asm.Assert(len(cs) == 1, "at most one condition")
	c := cs[0]
	asm.Assert(c != NoCondition && c != SpecialCondition, "invalid condition %d", c)
	return c
}

func checkReg(r Register) {
	asm.Assert(r >= R0 && r < NumRegisters, "invalid register %d", r)
}

func (a *Assembler) emitType01(cond Condition, op Opcode, setCC bool, rn, rd Register, o Operand) {
	checkReg(rd)
	var s uint32
	if setCC {
		s = 1
	}
	a.Emit(uint32(cond)<<28 |
		o.Type()<<25 |
		uint32(op)<<21 |
		s<<20 |
		uint32(rn)<<16 |
		uint32(rd)<<12 |
		o.Encoding())
}

// DataProcessing emits a data-processing instruction.
func (a *Assembler) DataProcessing(op Opcode, setCC bool, rd, rn Register, o Operand, cond ...Condition) {
	c := condition(cond)
	switch {
	case op.IsTest():
		asm.Assert(rd == R0, "test instruction with destination")
		setCC = true
	case op == MOV || op == MVN:
		asm.Assert(rn == R0, "move instruction with first operand")
	}
	checkReg(rn)
	a.emitType01(c, op, setCC, rn, rd, o)
}

// And emits rd = rn & o.
func (a *Assembler) And(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(AND, false, rd, rn, o, cond...)
}

// Ands emits And setting flags.
func (a *Assembler) Ands(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(AND, true, rd, rn, o, cond...)
}

// Eor emits rd = rn ^ o.
func (a *Assembler) Eor(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(EOR, false, rd, rn, o, cond...)
}

// Eors emits Eor setting flags.
func (a *Assembler) Eors(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(EOR, true, rd, rn, o, cond...)
}

// Sub emits rd = rn - o.
func (a *Assembler) Sub(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(SUB, false, rd, rn, o, cond...)
}

// Subs emits Sub setting flags.
func (a *Assembler) Subs(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(SUB, true, rd, rn, o, cond...)
}

// Rsb emits rd = o - rn.
func (a *Assembler) Rsb(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(RSB, false, rd, rn, o, cond...)
}

// Rsbs emits Rsb setting flags.
func (a *Assembler) Rsbs(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(RSB, true, rd, rn, o, cond...)
}

// Add emits rd = rn + o.
func (a *Assembler) Add(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(ADD, false, rd, rn, o, cond...)
}

// Adds emits Add setting flags.
func (a *Assembler) Adds(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(ADD, true, rd, rn, o, cond...)
}

// Adc emits rd = rn + o + C.
func (a *Assembler) Adc(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(ADC, false, rd, rn, o, cond...)
}

// Adcs emits Adc setting flags.
func (a *Assembler) Adcs(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(ADC, true, rd, rn, o, cond...)
}

// Sbc emits rd = rn - o - !C.
func (a *Assembler) Sbc(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(SBC, false, rd, rn, o, cond...)
}

// Sbcs emits Sbc setting flags.
func (a *Assembler) Sbcs(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(SBC, true, rd, rn, o, cond...)
}

// Rsc emits rd = o - rn - !C.
func (a *Assembler) Rsc(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(RSC, false, rd, rn, o, cond...)
}

// Tst sets flags from rn & o.
func (a *Assembler) Tst(rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(TST, true, R0, rn, o, cond...)
}

// Teq sets flags from rn ^ o.
func (a *Assembler) Teq(rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(TEQ, true, R0, rn, o, cond...)
}

// Cmp sets flags from rn - o.
func (a *Assembler) Cmp(rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(CMP, true, R0, rn, o, cond...)
}

// Cmn sets flags from rn + o.
func (a *Assembler) Cmn(rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(CMN, true, R0, rn, o, cond...)
}

// Orr emits rd = rn | o.
func (a *Assembler) Orr(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(ORR, false, rd, rn, o, cond...)
}

// Orrs emits Orr setting flags.
func (a *Assembler) Orrs(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(ORR, true, rd, rn, o, cond...)
}

// Mov emits rd = o.
func (a *Assembler) Mov(rd Register, o Operand, cond ...Condition) {
	a.DataProcessing(MOV, false, rd, R0, o, cond...)
}

// Movs emits Mov setting flags.
func (a *Assembler) Movs(rd Register, o Operand, cond ...Condition) {
	a.DataProcessing(MOV, true, rd, R0, o, cond...)
}

// Bic emits rd = rn &^ o.
func (a *Assembler) Bic(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(BIC, false, rd, rn, o, cond...)
}

// Bics emits Bic setting flags.
func (a *Assembler) Bics(rd, rn Register, o Operand, cond ...Condition) {
	a.DataProcessing(BIC, true, rd, rn, o, cond...)
}

// Mvn emits rd = ^o.
func (a *Assembler) Mvn(rd Register, o Operand, cond ...Condition) {
	a.DataProcessing(MVN, false, rd, R0, o, cond...)
}

// Mvns emits Mvn setting flags.
func (a *Assembler) Mvns(rd Register, o Operand, cond ...Condition) {
	a.DataProcessing(MVN, true, rd, R0, o, cond...)
}

// Clz counts leading zeros of rm.
func (a *Assembler) Clz(rd, rm Register, cond ...Condition) {
	c := condition(cond)
	asm.Assert(rd != PC && rm != PC, "clz with pc")
	checkReg(rd)
	checkReg(rm)
	a.Emit(uint32(c)<<28 | B24 | B22 | B21 | 0xf<<16 | uint32(rd)<<12 | 0xf<<8 | B4 | uint32(rm))
}

// Movw loads a 16-bit immediate, clearing the upper half.
func (a *Assembler) Movw(rd Register, imm16 uint16, cond ...Condition) {
	c := condition(cond)
	asm.Assert(a.features.IsARMv7(), "movw requires ARMv7")
	checkReg(rd)
	v := uint32(imm16)
	a.Emit(uint32(c)<<28 | B25 | B24 | (v>>12)<<16 | uint32(rd)<<12 | v&0xfff)
}

// Movt loads a 16-bit immediate into the upper half.
func (a *Assembler) Movt(rd Register, imm16 uint16, cond ...Condition) {
	c := condition(cond)
	asm.Assert(a.features.IsARMv7(), "movt requires ARMv7")
	checkReg(rd)
	v := uint32(imm16)
	a.Emit(uint32(c)<<28 | B25 | B24 | B22 | (v>>12)<<16 | uint32(rd)<<12 | v&0xfff)
}

func (a *Assembler) emitMulOp(cond Condition, opcode uint32, rd, rn, rm, rs Register) {
	checkReg(rd)
	checkReg(rn)
	checkReg(rm)
	checkReg(rs)
	a.Emit(opcode |
		uint32(cond)<<28 |
		uint32(rn)<<16 |
		uint32(rd)<<12 |
		uint32(rs)<<8 |
		B7 | B4 |
		uint32(rm))
}

// Mul emits rd = rn * rm.
func (a *Assembler) Mul(rd, rn, rm Register, cond ...Condition) {
	// The multiply destination lives in the Rn field.
	a.emitMulOp(condition(cond), 0, R0, rd, rn, rm)
}

// Mla emits rd = ra + rn * rm.
func (a *Assembler) Mla(rd, rn, rm, ra Register, cond ...Condition) {
	a.emitMulOp(condition(cond), B21, ra, rd, rn, rm)
}

// Mls emits rd = ra - rn * rm.
func (a *Assembler) Mls(rd, rn, rm, ra Register, cond ...Condition) {
	asm.Assert(a.features.IsARMv7(), "mls requires ARMv7")
	a.emitMulOp(condition(cond), B22|B21, ra, rd, rn, rm)
}

// Umull emits hi:lo = rn * rm unsigned.
func (a *Assembler) Umull(lo, hi, rn, rm Register, cond ...Condition) {
	a.emitMulOp(condition(cond), B23, lo, hi, rn, rm)
}

// Smull emits hi:lo = rn * rm signed.
func (a *Assembler) Smull(lo, hi, rn, rm Register, cond ...Condition) {
	a.emitMulOp(condition(cond), B23|B22, lo, hi, rn, rm)
}

// Umlal emits hi:lo += rn * rm unsigned.
func (a *Assembler) Umlal(lo, hi, rn, rm Register, cond ...Condition) {
	a.emitMulOp(condition(cond), B23|B21, lo, hi, rn, rm)
}

func (a *Assembler) emitDivOp(cond Condition, opcode uint32, rd, rn, rm Register) {
	asm.Assert(a.features.IntegerDivisionSupported(), "integer division not supported")
	checkReg(rd)
	checkReg(rn)
	checkReg(rm)
	a.Emit(uint32(cond)<<28 | opcode | 0x0710f010 | uint32(rd)<<16 | uint32(rm)<<8 | uint32(rn))
}

// Sdiv emits rd = rn / rm signed.
func (a *Assembler) Sdiv(rd, rn, rm Register, cond ...Condition) {
	a.emitDivOp(condition(cond), 0, rd, rn, rm)
}

// Udiv emits rd = rn / rm unsigned.
func (a *Assembler) Udiv(rd, rn, rm Register, cond ...Condition) {
	a.emitDivOp(condition(cond), B21, rd, rn, rm)
}

func (a *Assembler) emitMemOp(cond Condition, load, byteSize bool, rd Register, ad Address) {
	checkReg(rd)
	word := uint32(cond)<<28 | B26 | uint32(rd)<<12 | ad.Encoding()
	if ad.IsIndexed() {
		word |= B25
	}
	if load {
		word |= B20
	}
	if byteSize {
		word |= B22
	}
	a.Emit(word)
}

func (a *Assembler) emitMemOpMode3(cond Condition, mode uint32, rd Register, ad Address) {
	checkReg(rd)
	a.Emit(uint32(cond)<<28 | mode | uint32(rd)<<12 | ad.encoding3())
}

// Ldr loads a word.
func (a *Assembler) Ldr(rd Register, ad Address, cond ...Condition) {
	a.emitMemOp(condition(cond), true, false, rd, ad)
}

// Str stores a word.
func (a *Assembler) Str(rd Register, ad Address, cond ...Condition) {
	a.emitMemOp(condition(cond), false, false, rd, ad)
}

// Ldrb loads a zero-extended byte.
func (a *Assembler) Ldrb(rd Register, ad Address, cond ...Condition) {
	a.emitMemOp(condition(cond), true, true, rd, ad)
}

// Strb stores a byte.
func (a *Assembler) Strb(rd Register, ad Address, cond ...Condition) {
	a.emitMemOp(condition(cond), false, true, rd, ad)
}

// Ldrh loads a zero-extended halfword.
func (a *Assembler) Ldrh(rd Register, ad Address, cond ...Condition) {
	a.emitMemOpMode3(condition(cond), B20|B7|B5|B4, rd, ad)
}

// Strh stores a halfword.
func (a *Assembler) Strh(rd Register, ad Address, cond ...Condition) {
	a.emitMemOpMode3(condition(cond), B7|B5|B4, rd, ad)
}

// Ldrsb loads a sign-extended byte.
func (a *Assembler) Ldrsb(rd Register, ad Address, cond ...Condition) {
	a.emitMemOpMode3(condition(cond), B20|B7|B6|B4, rd, ad)
}

// Ldrsh loads a sign-extended halfword.
func (a *Assembler) Ldrsh(rd Register, ad Address, cond ...Condition) {
	a.emitMemOpMode3(condition(cond), B20|B7|B6|B5|B4, rd, ad)
}

// Ldrd loads rd and rd+1. rd must be even and not LR.
func (a *Assembler) Ldrd(rd Register, ad Address, cond ...Condition) {
	asm.Assert(rd%2 == 0 && rd != LR, "ldrd needs an even register below lr, got %s", rd)
	a.emitMemOpMode3(condition(cond), B7|B6|B4, rd, ad)
}

// Strd stores rd and rd+1. rd must be even and not LR.
func (a *Assembler) Strd(rd Register, ad Address, cond ...Condition) {
	asm.Assert(rd%2 == 0 && rd != LR, "strd needs an even register below lr, got %s", rd)
	a.emitMemOpMode3(condition(cond), B7|B6|B5|B4, rd, ad)
}

func (a *Assembler) emitMultiMemOp(cond Condition, am BlockAddressMode, load bool, base Register, regs RegList) {
	asm.Assert(base != PC, "block transfer based on pc")
	asm.Assert(regs != 0, "empty register list")
	checkReg(base)
	word := uint32(cond)<<28 | B27 | uint32(am) | uint32(base)<<16 | uint32(regs)
	if load {
		word |= B20
	}
	a.Emit(word)
}

// Ldm loads regs from memory at base.
func (a *Assembler) Ldm(am BlockAddressMode, base Register, regs RegList, cond ...Condition) {
	a.emitMultiMemOp(condition(cond), am, true, base, regs)
}

// Stm stores regs to memory at base.
func (a *Assembler) Stm(am BlockAddressMode, base Register, regs RegList, cond ...Condition) {
	a.emitMultiMemOp(condition(cond), am, false, base, regs)
}

// Ldrex loads rt exclusively from [rn].
func (a *Assembler) Ldrex(rt, rn Register, cond ...Condition) {
	c := condition(cond)
	asm.Assert(a.features.ARMVersion >= cpu.ARMv6, "ldrex requires ARMv6")
	checkReg(rt)
	checkReg(rn)
	a.Emit(uint32(c)<<28 | 0x01900f9f | uint32(rn)<<16 | uint32(rt)<<12)
}

// Strex stores rt exclusively to [rn], writing 0 to rd on success and 1
// on failure.
func (a *Assembler) Strex(rd, rt, rn Register, cond ...Condition) {
	c := condition(cond)
	asm.Assert(a.features.ARMVersion >= cpu.ARMv6, "strex requires ARMv6")
	asm.Assert(rd != rn && rd != rt, "strex status register overlaps operands")
	checkReg(rd)
	checkReg(rt)
	checkReg(rn)
	a.Emit(uint32(c)<<28 | 0x01800f90 | uint32(rn)<<16 | uint32(rd)<<12 | uint32(rt))
}

// Clrex clears the local exclusive reservation.
func (a *Assembler) Clrex() {
	asm.Assert(a.features.ARMVersion >= cpu.ARMv6, "clrex requires ARMv6")
	a.Emit(0xf57ff01f)
}

// Nop emits the architectural nop hint.
func (a *Assembler) Nop(cond ...Condition) {
	a.Emit(uint32(condition(cond))<<28 | B25 | B24 | B21 | 0xf<<12)
}

// Bkpt emits a breakpoint with a 16-bit comment.
func (a *Assembler) Bkpt(imm16 uint16) {
	v := uint32(imm16)
	a.Emit(0xe1200070 | (v>>4)<<8 | v&0xf)
}

// Svc emits a supervisor call.
func (a *Assembler) Svc(imm24 uint32, cond ...Condition) {
	asm.Assert(imm24 < 1<<24, "svc immediate 0x%x out of range", imm24)
	a.Emit(uint32(condition(cond))<<28 | 0xf<<24 | imm24)
}

// Bx branches to rm.
func (a *Assembler) Bx(rm Register, cond ...Condition) {
	checkReg(rm)
	a.Emit(uint32(condition(cond))<<28 | 0x012fff10 | uint32(rm))
}

// Blx calls rm.
func (a *Assembler) Blx(rm Register, cond ...Condition) {
	checkReg(rm)
	a.Emit(uint32(condition(cond))<<28 | 0x012fff30 | uint32(rm))
}

func (a *Assembler) emitType5(cond Condition, offset int32, link bool) {
	word := uint32(cond)<<28 | 5<<25
	if link {
		word |= B24
	}
	a.Emit(EncodeBranchOffset(offset, word))
}

func (a *Assembler) emitBranch(cond Condition, l *asm.Label, link bool) {
	if l.IsBound() {
		a.emitType5(cond, int32(l.Position()-a.buffer.Size()), link)
		return
	}
	a.buffer.TrackLabel(l)
	word := uint32(cond)<<28 | 5<<25
	if link {
		word |= B24
	}
	chain := l.LinkReference(a.buffer.Size())
	asm.Assert(chain <= BranchField.Max(), "label chain too long")
	a.Emit(word | chain)
}

// B branches to l.
func (a *Assembler) B(l *asm.Label, cond ...Condition) {
	a.emitBranch(condition(cond), l, false)
}

// Bl calls l.
func (a *Assembler) Bl(l *asm.Label, cond ...Condition) {
	a.emitBranch(condition(cond), l, true)
}

// Bind binds l to the current position, patching every pending branch to
// it. Branch targets are encoded relative to the PC read value, eight
// bytes past the branch.
func (a *Assembler) Bind(l *asm.Label) {
	bound := a.buffer.Size()
	l.Resolve(bound, func(pos int) uint32 {
		inst := a.buffer.Load32(pos)
		link := inst & BranchField.Mask()
		a.buffer.Store32(pos, EncodeBranchOffset(int32(bound-pos), inst))
		return link
	})
}

// SmiTag tags reg as a small integer.
func (a *Assembler) SmiTag(reg Register, cond ...Condition) {
	a.Lsl(reg, reg, asm.SmiTagShift, cond...)
}

// SmiUntag untags the small integer in reg.
func (a *Assembler) SmiUntag(reg Register, cond ...Condition) {
	a.Asr(reg, reg, asm.SmiTagShift, cond...)
}

// Ret returns to LR.
func (a *Assembler) Ret(cond ...Condition) {
	a.Bx(LR, cond...)
}

// EmitObject embeds the tagged word of obj, recording its position when it
// refers to a heap object.
func (a *Assembler) EmitObject(obj asm.Object) {
	if !obj.IsSmi() {
		a.buffer.AddPointerOffset(a.buffer.Size())
	}
	a.Emit(uint32(obj.Raw()))
}

func panicBranchRange(offset int32) {
	asm.Fatalf("branch offset %d out of range", offset)
}
