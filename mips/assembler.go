package mips

import (
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
	"github.com/sarchlab/jitsim/cpu"
)

// Assembler emits MIPS32 instructions into a buffer.
//
// Every branch and jump is followed by its delay slot, filled with a nop.
// Delay reopens the slot so the next instruction fills it instead:
//
//	a.Beq(A0, ZR, done)
//	a.Delay().Addiu(V0, ZR, 1)
type Assembler struct {
	buffer         *asm.Buffer
	features       cpu.Features
	layout         asm.HeapLayout
	stubs          asm.Stubs
	pool           *asm.ObjectPool
	poolAllowed    bool
	printStops     bool
	prologueOffset int

	delaySlot   int
	inDelaySlot bool
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

// New creates an assembler targeting the simulated MIPS32r2 core with the
// default 32-bit heap layout.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		buffer:         asm.NewBuffer(),
		features:       cpu.Simulated(),
		layout:         asm.DefaultHeapLayout(WordSize),
		pool:           asm.NewObjectPool(),
		prologueOffset: -1,
		delaySlot:      -1,
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
func (a *Assembler) Emit(word uint32) {
	a.buffer.Emit32(word)
	a.inDelaySlot = false
}

// Words returns the emitted code.
func (a *Assembler) Words() []uint32 { return a.buffer.Words() }

// Delay drops the nop filling the delay slot of the branch just emitted
// so that the next instruction takes its place.
func (a *Assembler) Delay() *Assembler {
	asm.Assert(a.delaySlot >= 0 && a.delaySlot == a.CodeSize()-InstrSize,
		"no open delay slot at %d", a.CodeSize())
	a.buffer.Remit()
	a.delaySlot = -1
	a.inDelaySlot = true
	return a
}

func (a *Assembler) emitDelaySlot() {
	a.delaySlot = a.CodeSize()
	a.Emit(Nop)
}

func checkReg(r Register) {
	asm.Assert(r >= ZR && r < NumRegisters, "invalid register %d", r)
}

func checkFReg(f FRegister) {
	asm.Assert(f >= F0 && f < NumFRegisters, "invalid fpu register %d", f)
}

func checkDReg(d DRegister) {
	asm.Assert(d >= D0 && d < NumDRegisters, "invalid double register %d", d)
}

func (a *Assembler) emitR(op Opcode, rs, rt, rd Register, sa uint32, fn SpecialFunction) {
	checkReg(rs)
	checkReg(rt)
	checkReg(rd)
	a.Emit(OpcodeField.Encode(uint32(op)) |
		RsField.Encode(uint32(rs)) |
		RtField.Encode(uint32(rt)) |
		RdField.Encode(uint32(rd)) |
		SaField.Encode(sa) |
		FunctionField.Encode(uint32(fn)))
}

func (a *Assembler) emitSpecial(rs, rt, rd Register, sa uint32, fn SpecialFunction) {
	a.emitR(SPECIAL, rs, rt, rd, sa, fn)
}

func (a *Assembler) emitI(op Opcode, rs, rt Register, imm uint32) {
	checkReg(rs)
	checkReg(rt)
	a.Emit(OpcodeField.Encode(uint32(op)) |
		RsField.Encode(uint32(rs)) |
		RtField.Encode(uint32(rt)) |
		Imm16Field.Encode(imm))
}

func (a *Assembler) emitSImm(op Opcode, rs, rt Register, imm int32) {
	asm.Assert(bits.IsInt(16, int64(imm)), "immediate %d does not fit 16 signed bits", imm)
	a.emitI(op, rs, rt, uint32(imm)&0xffff)
}

func (a *Assembler) emitUImm(op Opcode, rs, rt Register, imm uint32) {
	asm.Assert(imm <= 0xffff, "immediate 0x%x does not fit 16 bits", imm)
	a.emitI(op, rs, rt, imm)
}

func (a *Assembler) emitLoadStore(op Opcode, rt Register, ad Address) {
	checkReg(rt)
	a.Emit(OpcodeField.Encode(uint32(op)) | RtField.Encode(uint32(rt)) | ad.encoding())
}

func (a *Assembler) emitFpu(f Cop1Format, ft, fs, fd FRegister, fn Cop1Function) {
	checkFReg(ft)
	checkFReg(fs)
	checkFReg(fd)
	a.Emit(OpcodeField.Encode(uint32(COP1)) |
		FmtField.Encode(uint32(f)) |
		FtField.Encode(uint32(ft)) |
		FsField.Encode(uint32(fs)) |
		FdField.Encode(uint32(fd)) |
		FunctionField.Encode(uint32(fn)))
}

// Addu emits rd = rs + rt.
func (a *Assembler) Addu(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, ADDU) }

// Addiu emits rt = rs + imm.
func (a *Assembler) Addiu(rt, rs Register, imm int32) { a.emitSImm(ADDIU, rs, rt, imm) }

// Subu emits rd = rs - rt.
func (a *Assembler) Subu(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, SUBU) }

// And emits rd = rs & rt.
func (a *Assembler) And(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, AND) }

// Andi emits rt = rs & imm.
func (a *Assembler) Andi(rt, rs Register, imm uint32) { a.emitUImm(ANDI, rs, rt, imm) }

// Or emits rd = rs | rt.
func (a *Assembler) Or(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, OR) }

// Ori emits rt = rs | imm.
func (a *Assembler) Ori(rt, rs Register, imm uint32) { a.emitUImm(ORI, rs, rt, imm) }

// Xor emits rd = rs ^ rt.
func (a *Assembler) Xor(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, XOR) }

// Xori emits rt = rs ^ imm.
func (a *Assembler) Xori(rt, rs Register, imm uint32) { a.emitUImm(XORI, rs, rt, imm) }

// Nor emits rd = ^(rs | rt).
func (a *Assembler) Nor(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, NOR) }

// Lui emits rt = imm << 16.
func (a *Assembler) Lui(rt Register, imm uint32) { a.emitUImm(LUI, ZR, rt, imm) }

func checkShift(sa uint32) {
	asm.Assert(sa < 32, "shift by %d", sa)
}

// Sll emits rd = rt << sa.
func (a *Assembler) Sll(rd, rt Register, sa uint32) {
	checkShift(sa)
	a.emitSpecial(ZR, rt, rd, sa, SLL)
}

// Srl emits rd = rt >> sa, logical.
func (a *Assembler) Srl(rd, rt Register, sa uint32) {
	checkShift(sa)
	a.emitSpecial(ZR, rt, rd, sa, SRL)
}

// Sra emits rd = rt >> sa, arithmetic.
func (a *Assembler) Sra(rd, rt Register, sa uint32) {
	checkShift(sa)
	a.emitSpecial(ZR, rt, rd, sa, SRA)
}

// Sllv emits rd = rt << (rs & 31).
func (a *Assembler) Sllv(rd, rt, rs Register) { a.emitSpecial(rs, rt, rd, 0, SLLV) }

// Srlv emits rd = rt >> (rs & 31), logical.
func (a *Assembler) Srlv(rd, rt, rs Register) { a.emitSpecial(rs, rt, rd, 0, SRLV) }

// Srav emits rd = rt >> (rs & 31), arithmetic.
func (a *Assembler) Srav(rd, rt, rs Register) { a.emitSpecial(rs, rt, rd, 0, SRAV) }

// Slt sets rd to 1 when rs < rt, signed.
func (a *Assembler) Slt(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, SLT) }

// Sltu sets rd to 1 when rs < rt, unsigned.
func (a *Assembler) Sltu(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, SLTU) }

// Slti sets rt to 1 when rs < imm, signed.
func (a *Assembler) Slti(rt, rs Register, imm int32) { a.emitSImm(SLTI, rs, rt, imm) }

// Sltiu sets rt to 1 when rs < imm sign-extended, unsigned.
func (a *Assembler) Sltiu(rt, rs Register, imm int32) { a.emitSImm(SLTIU, rs, rt, imm) }

// Mult emits hi:lo = rs * rt, signed.
func (a *Assembler) Mult(rs, rt Register) { a.emitSpecial(rs, rt, ZR, 0, MULT) }

// Multu emits hi:lo = rs * rt, unsigned.
func (a *Assembler) Multu(rs, rt Register) { a.emitSpecial(rs, rt, ZR, 0, MULTU) }

// Div emits lo = rs / rt and hi = rs % rt, signed.
func (a *Assembler) Div(rs, rt Register) { a.emitSpecial(rs, rt, ZR, 0, DIV) }

// Divu emits lo = rs / rt and hi = rs % rt, unsigned.
func (a *Assembler) Divu(rs, rt Register) { a.emitSpecial(rs, rt, ZR, 0, DIVU) }

// Mfhi copies hi to rd.
func (a *Assembler) Mfhi(rd Register) { a.emitSpecial(ZR, ZR, rd, 0, MFHI) }

// Mflo copies lo to rd.
func (a *Assembler) Mflo(rd Register) { a.emitSpecial(ZR, ZR, rd, 0, MFLO) }

// Mthi copies rs to hi.
func (a *Assembler) Mthi(rs Register) { a.emitSpecial(rs, ZR, ZR, 0, MTHI) }

// Mtlo copies rs to lo.
func (a *Assembler) Mtlo(rs Register) { a.emitSpecial(rs, ZR, ZR, 0, MTLO) }

// Mul emits rd = rs * rt, low word.
func (a *Assembler) Mul(rd, rs, rt Register) { a.emitR(SPECIAL2, rs, rt, rd, 0, MUL) }

// Movz copies rs to rd when rt is zero.
func (a *Assembler) Movz(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, MOVZ) }

// Movn copies rs to rd when rt is not zero.
func (a *Assembler) Movn(rd, rs, rt Register) { a.emitSpecial(rs, rt, rd, 0, MOVN) }

// Clz counts leading zeros. The encoding repeats rd in the rt field.
func (a *Assembler) Clz(rd, rs Register) { a.emitR(SPECIAL2, rs, rd, rd, 0, CLZ) }

// Clo counts leading ones.
func (a *Assembler) Clo(rd, rs Register) { a.emitR(SPECIAL2, rs, rd, rd, 0, CLO) }

func (a *Assembler) requireR2(what string) {
	asm.Assert(a.features.IsMIPS32r2(), "%s requires MIPS32r2", what)
}

// Ext extracts size bits of rs starting at pos into rt.
func (a *Assembler) Ext(rt, rs Register, pos, size uint32) {
	a.requireR2("ext")
	asm.Assert(size > 0 && pos+size <= 32, "ext of %d bits at %d", size, pos)
	a.emitR(SPECIAL3, rs, rt, Register(size-1), pos, EXT)
}

// Ins inserts the low size bits of rs into rt at pos.
func (a *Assembler) Ins(rt, rs Register, pos, size uint32) {
	a.requireR2("ins")
	asm.Assert(size > 0 && pos+size <= 32, "ins of %d bits at %d", size, pos)
	a.emitR(SPECIAL3, rs, rt, Register(pos+size-1), pos, INS)
}

// Seb sign-extends the low byte of rt into rd.
func (a *Assembler) Seb(rd, rt Register) {
	a.requireR2("seb")
	a.emitR(SPECIAL3, ZR, rt, rd, SEB, BSHFL)
}

// Seh sign-extends the low halfword of rt into rd.
func (a *Assembler) Seh(rd, rt Register) {
	a.requireR2("seh")
	a.emitR(SPECIAL3, ZR, rt, rd, SEH, BSHFL)
}

// Lb loads a sign-extended byte.
func (a *Assembler) Lb(rt Register, ad Address) { a.emitLoadStore(LB, rt, ad) }

// Lbu loads a zero-extended byte.
func (a *Assembler) Lbu(rt Register, ad Address) { a.emitLoadStore(LBU, rt, ad) }

// Lh loads a sign-extended halfword.
func (a *Assembler) Lh(rt Register, ad Address) { a.emitLoadStore(LH, rt, ad) }

// Lhu loads a zero-extended halfword.
func (a *Assembler) Lhu(rt Register, ad Address) { a.emitLoadStore(LHU, rt, ad) }

// Lw loads a word.
func (a *Assembler) Lw(rt Register, ad Address) { a.emitLoadStore(LW, rt, ad) }

// Sb stores a byte.
func (a *Assembler) Sb(rt Register, ad Address) { a.emitLoadStore(SB, rt, ad) }

// Sh stores a halfword.
func (a *Assembler) Sh(rt Register, ad Address) { a.emitLoadStore(SH, rt, ad) }

// Sw stores a word.
func (a *Assembler) Sw(rt Register, ad Address) { a.emitLoadStore(SW, rt, ad) }

// Ll loads a word and opens a reservation on it.
func (a *Assembler) Ll(rt Register, ad Address) { a.emitLoadStore(LL, rt, ad) }

// Sc stores rt if the reservation still holds and sets rt to 1 on
// success, 0 on failure.
func (a *Assembler) Sc(rt Register, ad Address) { a.emitLoadStore(SC, rt, ad) }

// Break emits a break trap with a 20-bit code.
func (a *Assembler) Break(code uint32) {
	a.Emit(BreakField.Encode(code) | FunctionField.Encode(uint32(BREAK)))
}

// Nop emits sll zr, zr, 0.
func (a *Assembler) Nop() { a.Emit(Nop) }

func (a *Assembler) checkNotInDelaySlot() {
	asm.Assert(!a.inDelaySlot, "control transfer in a delay slot")
}

func (a *Assembler) emitJump(op Opcode, target uint32) {
	a.checkNotInDelaySlot()
	asm.Assert(target%InstrSize == 0, "jump target 0x%x is not aligned", target)
	a.Emit(OpcodeField.Encode(uint32(op)) | Imm26Field.Encode(target>>2&Imm26Field.Max()))
	a.emitDelaySlot()
}

// J jumps to target, which must lie in the 256MB region of the delay slot.
func (a *Assembler) J(target uint32) { a.emitJump(J, target) }

// Jal calls target, which must lie in the 256MB region of the delay slot.
func (a *Assembler) Jal(target uint32) { a.emitJump(JAL, target) }

// Jr jumps to rs.
func (a *Assembler) Jr(rs Register) {
	a.checkNotInDelaySlot()
	a.emitSpecial(rs, ZR, ZR, 0, JR)
	a.emitDelaySlot()
}

// Jalr calls rs, linking in RA.
func (a *Assembler) Jalr(rs Register) {
	a.checkNotInDelaySlot()
	asm.Assert(rs != RA, "jalr through ra")
	a.emitSpecial(rs, ZR, RA, 0, JALR)
	a.emitDelaySlot()
}

// encodeBranchOffset returns the imm16 field of a branch at pos to target.
// Offsets count from the delay slot.
func encodeBranchOffset(pos, target int) uint32 {
	off := int64(target-pos-InstrSize) >> 2
	if !bits.IsInt(16, off) {
		asm.Fatalf("branch offset %d out of range", off)
	}
	return Imm16Field.EncodeSigned(off)
}

// DecodeBranchOffset returns the byte distance from a branch to its
// target.
func DecodeBranchOffset(word uint32) int32 {
	return Instr(word).BranchOffset() + InstrSize
}

func (a *Assembler) emitBranch(word uint32, l *asm.Label) {
	a.checkNotInDelaySlot()
	if l.IsBound() {
		a.Emit(word | encodeBranchOffset(a.CodeSize(), l.Position()))
	} else {
		a.buffer.TrackLabel(l)
		chain := l.LinkReference(a.CodeSize())
		asm.Assert(chain <= Imm16Field.Max(), "label chain too long")
		a.Emit(word | chain)
	}
	a.emitDelaySlot()
}

func branchWord(op Opcode, rs, rt Register) uint32 {
	checkReg(rs)
	checkReg(rt)
	return OpcodeField.Encode(uint32(op)) | RsField.Encode(uint32(rs)) | RtField.Encode(uint32(rt))
}

func regImmWord(rs Register, kind RegImmRt) uint32 {
	checkReg(rs)
	return OpcodeField.Encode(uint32(REGIMM)) | RsField.Encode(uint32(rs)) | RtField.Encode(uint32(kind))
}

// Beq branches to l when rs == rt.
func (a *Assembler) Beq(rs, rt Register, l *asm.Label) { a.emitBranch(branchWord(BEQ, rs, rt), l) }

// Bne branches to l when rs != rt.
func (a *Assembler) Bne(rs, rt Register, l *asm.Label) { a.emitBranch(branchWord(BNE, rs, rt), l) }

// Beqz branches to l when rs is zero.
func (a *Assembler) Beqz(rs Register, l *asm.Label) { a.Beq(rs, ZR, l) }

// Bnez branches to l when rs is not zero.
func (a *Assembler) Bnez(rs Register, l *asm.Label) { a.Bne(rs, ZR, l) }

// Blez branches to l when rs <= 0.
func (a *Assembler) Blez(rs Register, l *asm.Label) { a.emitBranch(branchWord(BLEZ, rs, ZR), l) }

// Bgtz branches to l when rs > 0.
func (a *Assembler) Bgtz(rs Register, l *asm.Label) { a.emitBranch(branchWord(BGTZ, rs, ZR), l) }

// Bltz branches to l when rs < 0.
func (a *Assembler) Bltz(rs Register, l *asm.Label) { a.emitBranch(regImmWord(rs, BLTZ), l) }

// Bgez branches to l when rs >= 0.
func (a *Assembler) Bgez(rs Register, l *asm.Label) { a.emitBranch(regImmWord(rs, BGEZ), l) }

// Bltzal calls l when rs < 0.
func (a *Assembler) Bltzal(rs Register, l *asm.Label) { a.emitBranch(regImmWord(rs, BLTZAL), l) }

// Bgezal calls l when rs >= 0.
func (a *Assembler) Bgezal(rs Register, l *asm.Label) { a.emitBranch(regImmWord(rs, BGEZAL), l) }

// B branches to l unconditionally.
func (a *Assembler) B(l *asm.Label) { a.Beq(ZR, ZR, l) }

// Bal calls l unconditionally.
func (a *Assembler) Bal(l *asm.Label) { a.Bgezal(ZR, l) }

func bc1Word(onTrue bool) uint32 {
	var tf uint32
	if onTrue {
		tf = 1
	}
	return OpcodeField.Encode(uint32(COP1)) | FmtField.Encode(uint32(FmtBC)) | RtField.Encode(tf)
}

// Bc1t branches to l when the FPU condition bit is set.
func (a *Assembler) Bc1t(l *asm.Label) { a.emitBranch(bc1Word(true), l) }

// Bc1f branches to l when the FPU condition bit is clear.
func (a *Assembler) Bc1f(l *asm.Label) { a.emitBranch(bc1Word(false), l) }

// Bind binds l to the current position, patching every pending branch
// to it.
func (a *Assembler) Bind(l *asm.Label) {
	bound := a.CodeSize()
	a.delaySlot = -1
	l.Resolve(bound, func(pos int) uint32 {
		inst := a.buffer.Load32(pos)
		link := Imm16Field.Get(inst)
		a.buffer.Store32(pos, inst&^Imm16Field.Mask()|encodeBranchOffset(pos, bound))
		return link
	})
}

// SmiTag tags reg as a small integer.
func (a *Assembler) SmiTag(reg Register) { a.Sll(reg, reg, asm.SmiTagShift) }

// SmiUntag untags the small integer in reg.
func (a *Assembler) SmiUntag(reg Register) { a.Sra(reg, reg, asm.SmiTagShift) }

// Ret returns to RA.
func (a *Assembler) Ret() { a.Jr(RA) }

// EmitObject embeds the tagged word of obj, recording its position when it
// refers to a heap object.
func (a *Assembler) EmitObject(obj asm.Object) {
	if !obj.IsSmi() {
		a.buffer.AddPointerOffset(a.buffer.Size())
	}
	a.Emit(uint32(obj.Raw()))
}
