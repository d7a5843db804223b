package arm

import (
	"math"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
	"github.com/sarchlab/jitsim/cpu"
)

// MoveRegister copies rm to rd unless they are the same register.
func (a *Assembler) MoveRegister(rd, rm Register, cond ...Condition) {
	if rd != rm {
		a.Mov(rd, Reg(rm), cond...)
	}
}

// Lsl shifts rm left by a constant.
func (a *Assembler) Lsl(rd, rm Register, amount uint32, cond ...Condition) {
	asm.Assert(amount != 0 && amount < 32, "lsl by %d", amount)
	a.Mov(rd, RegShiftImm(rm, LSL, amount), cond...)
}

// Lsr shifts rm right logically by 1-32.
func (a *Assembler) Lsr(rd, rm Register, amount uint32, cond ...Condition) {
	asm.Assert(amount != 0 && amount <= 32, "lsr by %d", amount)
	if amount == 32 {
		amount = 0 // lsr #32 is encoded as lsr #0
	}
	a.Mov(rd, RegShiftImm(rm, LSR, amount), cond...)
}

// Asr shifts rm right arithmetically by 1-32.
func (a *Assembler) Asr(rd, rm Register, amount uint32, cond ...Condition) {
	asm.Assert(amount != 0 && amount <= 32, "asr by %d", amount)
	if amount == 32 {
		amount = 0
	}
	a.Mov(rd, RegShiftImm(rm, ASR, amount), cond...)
}

// Asrs is Asr setting flags.
func (a *Assembler) Asrs(rd, rm Register, amount uint32, cond ...Condition) {
	asm.Assert(amount != 0 && amount <= 32, "asr by %d", amount)
	if amount == 32 {
		amount = 0
	}
	a.Movs(rd, RegShiftImm(rm, ASR, amount), cond...)
}

// Ror rotates rm right by 1-31.
func (a *Assembler) Ror(rd, rm Register, amount uint32, cond ...Condition) {
	asm.Assert(amount != 0 && amount < 32, "ror by %d", amount)
	a.Mov(rd, RegShiftImm(rm, ROR, amount), cond...)
}

// Rrx rotates rm right by one bit through the carry.
func (a *Assembler) Rrx(rd, rm Register, cond ...Condition) {
	a.Mov(rd, RegShiftImm(rm, ROR, 0), cond...)
}

// LslReg shifts rm left by rs.
func (a *Assembler) LslReg(rd, rm, rs Register, cond ...Condition) {
	a.Mov(rd, RegShiftReg(rm, LSL, rs), cond...)
}

// LsrReg shifts rm right logically by rs.
func (a *Assembler) LsrReg(rd, rm, rs Register, cond ...Condition) {
	a.Mov(rd, RegShiftReg(rm, LSR, rs), cond...)
}

// AsrReg shifts rm right arithmetically by rs.
func (a *Assembler) AsrReg(rd, rm, rs Register, cond ...Condition) {
	a.Mov(rd, RegShiftReg(rm, ASR, rs), cond...)
}

// Push pushes rd.
func (a *Assembler) Push(rd Register, cond ...Condition) {
	a.Str(rd, MemAt(SP, -WordSize, PreIndex), cond...)
}

// Pop pops into rd.
func (a *Assembler) Pop(rd Register, cond ...Condition) {
	a.Ldr(rd, MemAt(SP, WordSize, PostIndex), cond...)
}

// PushList pushes regs, lowest register at the lowest address.
func (a *Assembler) PushList(regs RegList, cond ...Condition) {
	a.Stm(DB_W, SP, regs, cond...)
}

// PopList pops regs.
func (a *Assembler) PopList(regs RegList, cond ...Condition) {
	a.Ldm(IA_W, SP, regs, cond...)
}

// LoadImmediate materializes value in rd using the shortest sequence: a
// single mov or mvn when the value or its complement is a rotated
// immediate, otherwise LoadDecodableImmediate.
func (a *Assembler) LoadImmediate(rd Register, value int32, cond ...Condition) {
	var o Operand
	switch {
	case CanHold(uint32(value), &o):
		a.Mov(rd, o, cond...)
	case CanHold(^uint32(value), &o):
		a.Mvn(rd, o, cond...)
	default:
		a.LoadDecodableImmediate(rd, value, cond...)
	}
}

// LoadDecodableImmediate materializes value with a sequence the simulator
// and patching code can decode: movw/movt on ARMv7, otherwise a pool load
// when the pool is available or the fixed four instruction sequence.
func (a *Assembler) LoadDecodableImmediate(rd Register, value int32, cond ...Condition) {
	if a.features.ARMVersion < cpu.ARMv7 {
		if a.poolAllowed {
			offset := a.layout.PoolElementOffset(a.pool.AddImmediate(uint64(uint32(value))))
			a.LoadWordFromPoolOffset(rd, int32(offset), PP, cond...)
			return
		}
		a.LoadPatchableImmediate(rd, value, cond...)
		return
	}
	v := uint32(value)
	a.Movw(rd, uint16(bits.Low16(v)), cond...)
	if high := bits.High16(v); high != 0 {
		a.Movt(rd, uint16(high), cond...)
	}
}

// LoadPatchableImmediate emits a fixed-length sequence that can later be
// rewritten in place: movw+movt on ARMv7, mov+3*orr otherwise.
func (a *Assembler) LoadPatchableImmediate(rd Register, value int32, cond ...Condition) {
	v := uint32(value)
	if a.features.ARMVersion < cpu.ARMv7 {
		a.Mov(rd, Imm(4, v>>24), cond...)
		a.Orr(rd, rd, Imm(8, (v>>16)&0xff), cond...)
		a.Orr(rd, rd, Imm(12, (v>>8)&0xff), cond...)
		a.Orr(rd, rd, Imm(0, v&0xff), cond...)
		return
	}
	a.Movw(rd, uint16(bits.Low16(v)), cond...)
	a.Movt(rd, uint16(bits.High16(v)), cond...)
}

// LoadSImmediate loads a float into sd, through IP when it is not a VFP
// immediate.
func (a *Assembler) LoadSImmediate(sd SRegister, value float32, cond ...Condition) {
	if !a.VmovsImm(sd, value, cond...) {
		a.LoadImmediate(IP, int32(math.Float32bits(value)), cond...)
		a.Vmovsr(sd, IP, cond...)
	}
}

// LoadDImmediate loads a double into dd, through IP and scratch when it
// is not a VFP immediate.
func (a *Assembler) LoadDImmediate(dd DRegister, value float64, scratch Register, cond ...Condition) {
	if a.VmovdImm(dd, value, cond...) {
		return
	}
	asm.Assert(scratch != NoRegister && scratch != IP, "LoadDImmediate needs a scratch register")
	imm := math.Float64bits(value)
	a.LoadImmediate(IP, int32(bits.Low32(imm)), cond...)
	a.LoadImmediate(scratch, int32(bits.High32(imm)), cond...)
	a.Vmovdrr(dd, IP, scratch, cond...)
}

// AddImmediate emits rd = rn + value, going through IP when neither the
// value, its negation nor their complements are encodable.
func (a *Assembler) AddImmediate(rd, rn Register, value int32, cond ...Condition) {
	if value == 0 {
		a.MoveRegister(rd, rn, cond...)
		return
	}
	var o Operand
	switch {
	case CanHold(uint32(value), &o):
		a.Add(rd, rn, o, cond...)
	case CanHold(uint32(-value), &o):
		a.Sub(rd, rn, o, cond...)
	default:
		asm.Assert(rn != IP, "AddImmediate from ip")
		switch {
		case CanHold(^uint32(value), &o):
			a.Mvn(IP, o, cond...)
			a.Add(rd, rn, Reg(IP), cond...)
		case CanHold(^uint32(-value), &o):
			a.Mvn(IP, o, cond...)
			a.Sub(rd, rn, Reg(IP), cond...)
		default:
			a.LoadDecodableImmediate(IP, value, cond...)
			a.Add(rd, rn, Reg(IP), cond...)
		}
	}
}

// AddImmediateSetFlags emits rd = rn + value setting flags.
func (a *Assembler) AddImmediateSetFlags(rd, rn Register, value int32, cond ...Condition) {
	var o Operand
	switch {
	case CanHold(uint32(value), &o):
		a.Adds(rd, rn, o, cond...)
	case value != math.MinInt32 && CanHold(uint32(-value), &o):
		a.Subs(rd, rn, o, cond...)
	default:
		asm.Assert(rn != IP, "AddImmediateSetFlags from ip")
		switch {
		case CanHold(^uint32(value), &o):
			a.Mvn(IP, o, cond...)
			a.Adds(rd, rn, Reg(IP), cond...)
		case value != math.MinInt32 && CanHold(^uint32(-value), &o):
			a.Mvn(IP, o, cond...)
			a.Subs(rd, rn, Reg(IP), cond...)
		default:
			a.LoadDecodableImmediate(IP, value, cond...)
			a.Adds(rd, rn, Reg(IP), cond...)
		}
	}
}

// SubImmediateSetFlags emits rd = rn - value setting flags.
func (a *Assembler) SubImmediateSetFlags(rd, rn Register, value int32, cond ...Condition) {
	var o Operand
	switch {
	case CanHold(uint32(value), &o):
		a.Subs(rd, rn, o, cond...)
	case value != math.MinInt32 && CanHold(uint32(-value), &o):
		a.Adds(rd, rn, o, cond...)
	default:
		asm.Assert(rn != IP, "SubImmediateSetFlags from ip")
		switch {
		case CanHold(^uint32(value), &o):
			a.Mvn(IP, o, cond...)
			a.Subs(rd, rn, Reg(IP), cond...)
		case value != math.MinInt32 && CanHold(^uint32(-value), &o):
			a.Mvn(IP, o, cond...)
			a.Adds(rd, rn, Reg(IP), cond...)
		default:
			a.LoadDecodableImmediate(IP, value, cond...)
			a.Subs(rd, rn, Reg(IP), cond...)
		}
	}
}

// AndImmediate emits rd = rs & value.
func (a *Assembler) AndImmediate(rd, rs Register, value int32, cond ...Condition) {
	var o Operand
	if CanHold(uint32(value), &o) {
		a.And(rd, rs, o, cond...)
		return
	}
	asm.Assert(rs != IP, "AndImmediate from ip")
	a.LoadImmediate(IP, value, cond...)
	a.And(rd, rs, Reg(IP), cond...)
}

// CompareImmediate compares rn with value.
func (a *Assembler) CompareImmediate(rn Register, value int32, cond ...Condition) {
	var o Operand
	switch {
	case CanHold(uint32(value), &o):
		a.Cmp(rn, o, cond...)
	case value != math.MinInt32 && CanHold(uint32(-value), &o):
		a.Cmn(rn, o, cond...)
	default:
		asm.Assert(rn != IP, "CompareImmediate with ip")
		a.LoadImmediate(IP, value, cond...)
		a.Cmp(rn, Reg(IP), cond...)
	}
}

// TestImmediate sets flags from rn & value.
func (a *Assembler) TestImmediate(rn Register, value int32, cond ...Condition) {
	var o Operand
	if CanHold(uint32(value), &o) {
		a.Tst(rn, o, cond...)
		return
	}
	asm.Assert(rn != IP, "TestImmediate with ip")
	a.LoadImmediate(IP, value, cond...)
	a.Tst(rn, Reg(IP), cond...)
}

// IntegerDivide emits result = left / right, through the VFP unit when the
// core has no divider.
func (a *Assembler) IntegerDivide(result, left, right Register, tmpl, tmpr DRegister) {
	asm.Assert(tmpl != tmpr, "IntegerDivide needs two scratch registers")
	if a.features.IntegerDivisionSupported() {
		a.Sdiv(result, left, right)
		return
	}
	asm.Assert(tmpl < D16 && tmpr < D16, "IntegerDivide scratch must alias s registers")
	stmpl := SRegister(2 * tmpl)
	stmpr := SRegister(2 * tmpr)
	a.Vmovsr(stmpl, left)
	a.Vcvtdi(tmpl, stmpl)
	a.Vmovsr(stmpr, right)
	a.Vcvtdi(tmpr, stmpr)
	a.Vdivd(tmpr, tmpl, tmpr)
	a.Vcvtid(stmpr, tmpr)
	a.Vmovrs(result, stmpr)
}

// splitOffset folds the part of offset the addressing mode cannot encode
// into IP and returns the new base and offset.
func (a *Assembler) splitOffset(base Register, offset, mask int32, cond []Condition) (Register, int32) {
	asm.Assert(base != IP, "offset split with ip base")
	a.AddImmediate(IP, base, offset&^mask, cond...)
	return IP, offset & mask
}

// LoadFromOffset loads a value of size from base+offset.
func (a *Assembler) LoadFromOffset(size OperandSize, reg, base Register, offset int32, cond ...Condition) {
	if mask, ok := CanHoldLoadOffset(size, offset); !ok {
		base, offset = a.splitOffset(base, offset, mask, cond)
	}
	ad := Mem(base, offset)
	switch size {
	case Byte:
		a.Ldrsb(reg, ad, cond...)
	case UnsignedByte:
		a.Ldrb(reg, ad, cond...)
	case Halfword:
		a.Ldrsh(reg, ad, cond...)
	case UnsignedHalfword:
		a.Ldrh(reg, ad, cond...)
	case Word, UnsignedWord:
		a.Ldr(reg, ad, cond...)
	case WordPair:
		a.Ldrd(reg, ad, cond...)
	default:
		asm.Unreachable()
	}
}

// StoreToOffset stores a value of size to base+offset.
func (a *Assembler) StoreToOffset(size OperandSize, reg, base Register, offset int32, cond ...Condition) {
	if mask, ok := CanHoldStoreOffset(size, offset); !ok {
		asm.Assert(reg != IP, "StoreToOffset of ip")
		base, offset = a.splitOffset(base, offset, mask, cond)
	}
	ad := Mem(base, offset)
	switch size {
	case Byte, UnsignedByte:
		a.Strb(reg, ad, cond...)
	case Halfword, UnsignedHalfword:
		a.Strh(reg, ad, cond...)
	case Word, UnsignedWord:
		a.Str(reg, ad, cond...)
	case WordPair:
		a.Strd(reg, ad, cond...)
	default:
		asm.Unreachable()
	}
}

// LoadSFromOffset loads sd from base+offset.
func (a *Assembler) LoadSFromOffset(sd SRegister, base Register, offset int32, cond ...Condition) {
	if mask, ok := CanHoldLoadOffset(SWord, offset); !ok {
		base, offset = a.splitOffset(base, offset, mask, cond)
	}
	a.Vldrs(sd, Mem(base, offset), cond...)
}

// StoreSToOffset stores sd to base+offset.
func (a *Assembler) StoreSToOffset(sd SRegister, base Register, offset int32, cond ...Condition) {
	if mask, ok := CanHoldStoreOffset(SWord, offset); !ok {
		base, offset = a.splitOffset(base, offset, mask, cond)
	}
	a.Vstrs(sd, Mem(base, offset), cond...)
}

// LoadDFromOffset loads dd from base+offset.
func (a *Assembler) LoadDFromOffset(dd DRegister, base Register, offset int32, cond ...Condition) {
	if mask, ok := CanHoldLoadOffset(DWord, offset); !ok {
		base, offset = a.splitOffset(base, offset, mask, cond)
	}
	a.Vldrd(dd, Mem(base, offset), cond...)
}

// StoreDToOffset stores dd to base+offset.
func (a *Assembler) StoreDToOffset(dd DRegister, base Register, offset int32, cond ...Condition) {
	if mask, ok := CanHoldStoreOffset(DWord, offset); !ok {
		base, offset = a.splitOffset(base, offset, mask, cond)
	}
	a.Vstrd(dd, Mem(base, offset), cond...)
}

// LoadWordFromPoolOffset loads the pool word at offset from the tagged
// pool pointer pp.
func (a *Assembler) LoadWordFromPoolOffset(rd Register, offset int32, pp Register, cond ...Condition) {
	asm.Assert(pp != PP || a.poolAllowed, "object pool used while PP is invalid")
	asm.Assert(rd != pp, "pool load into the pool register")
	if _, ok := CanHoldLoadOffset(Word, offset); ok {
		a.Ldr(rd, Mem(pp, offset), cond...)
		return
	}
	hi := offset &^ 0xfff
	lo := offset & 0xfff
	var o Operand
	if CanHold(uint32(hi), &o) {
		a.Add(rd, pp, o, cond...)
	} else {
		a.LoadImmediate(rd, hi, cond...)
		a.Add(rd, pp, Reg(rd), cond...)
	}
	a.Ldr(rd, Mem(rd, lo), cond...)
}

// LoadPoolPointer loads PP from the instructions header preceding the
// code and enables pool access.
func (a *Assembler) LoadPoolPointer(cond ...Condition) {
	dist := a.layout.InstructionsHeaderSize - a.layout.InstructionsObjectPoolOffset +
		a.CodeSize() + PCReadOffset
	asm.Assert(dist < 1<<12, "pool pointer slot %d bytes away", dist)
	a.LoadFromOffset(Word, PP, PC, int32(-dist), cond...)
	a.poolAllowed = true
}

// LoadObject loads obj into rd: as an immediate when it never moves,
// otherwise from the object pool.
func (a *Assembler) LoadObject(rd Register, obj asm.Object, cond ...Condition) {
	if obj.CanBeEmbedded() {
		a.LoadImmediate(rd, int32(uint32(obj.Raw())), cond...)
		return
	}
	offset := a.layout.PoolElementOffset(a.pool.AddObject(obj))
	a.LoadWordFromPoolOffset(rd, int32(offset), PP, cond...)
}

// LoadExternalLabel loads the address of label from a fresh pool slot.
func (a *Assembler) LoadExternalLabel(rd Register, label *asm.ExternalLabel, cond ...Condition) {
	offset := a.layout.PoolElementOffset(a.pool.AddExternalLabel(label))
	a.LoadWordFromPoolOffset(rd, int32(offset), PP, cond...)
}

// Branch jumps to an external address through IP.
func (a *Assembler) Branch(label *asm.ExternalLabel, cond ...Condition) {
	a.LoadImmediate(IP, int32(uint32(label.Address)), cond...)
	a.Bx(IP, cond...)
}

// BranchLink calls an external address through IP.
func (a *Assembler) BranchLink(label *asm.ExternalLabel) {
	a.LoadImmediate(IP, int32(uint32(label.Address)))
	a.Blx(IP)
}

// BranchLinkPatchable calls an external address held in a pool slot so
// the target can be changed without touching the code.
func (a *Assembler) BranchLinkPatchable(label *asm.ExternalLabel) {
	a.LoadExternalLabel(LR, label)
	a.Blx(LR)
}

// StoreIntoObjectFilterNoSmi branches to noUpdate unless value is a new
// object and object is old. value must not be a small integer.
func (a *Assembler) StoreIntoObjectFilterNoSmi(object, value Register, noUpdate *asm.Label) {
	a.Bic(IP, value, Reg(object))
	a.Tst(IP, a.newObjectBit())
	a.B(noUpdate, EQ)
}

// StoreIntoObjectFilter is StoreIntoObjectFilterNoSmi for values that may
// be small integers: and-ing the value with itself shifted moves its tag
// bit onto the generation bit, so a small integer always filters out.
func (a *Assembler) StoreIntoObjectFilter(object, value Register, noUpdate *asm.Label) {
	a.And(IP, value, RegShiftImm(value, LSL, uint32(a.layout.NewObjectBitShift())))
	a.Bic(IP, IP, Reg(object))
	a.Tst(IP, a.newObjectBit())
	a.B(noUpdate, EQ)
}

func (a *Assembler) newObjectBit() Operand {
	var o Operand
	ok := CanHold(uint32(a.layout.NewObjectAlignmentOffset), &o)
	asm.Assert(ok, "new object bit not encodable")
	return o
}

// StoreIntoObject stores value into the field at dest of object and, when
// the store creates an old-to-new pointer, calls the store buffer stub
// with object in R0. The volatile registers and LR survive the call.
func (a *Assembler) StoreIntoObject(object Register, dest Address, value Register, canBeSmi bool) {
	asm.Assert(object != value, "storing an object into itself")
	asm.Assert(a.stubs.UpdateStoreBuffer != nil, "no store buffer stub")
	a.Str(value, dest)
	done := asm.NewLabel()
	if canBeSmi {
		a.StoreIntoObjectFilter(object, value, done)
	} else {
		a.StoreIntoObjectFilterNoSmi(object, value, done)
	}
	regs := VolatileCPURegs | Regs(LR)
	a.PushList(regs)
	a.MoveRegister(R0, object)
	a.BranchLink(a.stubs.UpdateStoreBuffer)
	a.PopList(regs)
	a.Bind(done)
}

// StoreIntoObjectOffset is StoreIntoObject for a field offset.
func (a *Assembler) StoreIntoObjectOffset(object Register, offset int32, value Register, canBeSmi bool) {
	if _, ok := CanHoldStoreOffset(Word, offset-asm.HeapObjectTag); ok {
		a.StoreIntoObject(object, FieldAddress(object, offset), value, canBeSmi)
		return
	}
	a.AddImmediate(IP, object, offset-asm.HeapObjectTag)
	a.StoreIntoObject(object, Mem(IP, 0), value, canBeSmi)
}

// StoreIntoObjectNoBarrier stores value without a barrier.
func (a *Assembler) StoreIntoObjectNoBarrier(object Register, dest Address, value Register) {
	a.Str(value, dest)
}

// StoreObjectIntoObjectNoBarrier stores a constant without a barrier. The
// constant is loaded through IP.
func (a *Assembler) StoreObjectIntoObjectNoBarrier(object Register, dest Address, value asm.Object) {
	asm.Assert(object != IP && dest.Base() != IP, "constant store through ip base")
	a.LoadObject(IP, value)
	a.Str(IP, dest)
}

// InitializeFieldNoBarrier stores into a freshly allocated object.
func (a *Assembler) InitializeFieldNoBarrier(object Register, dest Address, value Register) {
	a.Str(value, dest)
}

func numRegsBelowFP(regs RegList) int {
	n := 0
	for r := R0; r < FP; r++ {
		if regs.Has(r) {
			n++
		}
	}
	return n
}

// EnterFrame pushes regs, points FP at the saved FP when it is included
// and reserves frameSize bytes.
func (a *Assembler) EnterFrame(regs RegList, frameSize int32) {
	if a.prologueOffset == -1 {
		a.prologueOffset = a.CodeSize()
	}
	a.PushList(regs)
	if regs.Has(FP) {
		a.Add(FP, SP, Imm(0, uint32(4*numRegsBelowFP(regs))))
	}
	a.AddImmediate(SP, SP, -frameSize)
}

// LeaveFrame pops a frame set up by EnterFrame with the same regs.
func (a *Assembler) LeaveFrame(regs RegList) {
	asm.Assert(!regs.Has(PC), "LeaveFrame must not pop pc")
	if regs.Has(FP) {
		a.Sub(SP, FP, Imm(0, uint32(4*numRegsBelowFP(regs))))
	}
	a.PopList(regs)
}

// EnterDartFrame sets up a frame holding PP, FP, LR and the code's own PC,
// loads the pool pointer and reserves frameSize bytes.
func (a *Assembler) EnterDartFrame(frameSize int32) {
	asm.Assert(!a.poolAllowed, "EnterDartFrame with a live pool pointer")
	offset := int32(a.CodeSize())
	a.EnterFrame(Regs(PP, FP, LR, PC), 0)
	if offset != 0 {
		// The pushed PC must identify the start of the code.
		a.Ldr(PP, Mem(FP, 2*WordSize))
		a.AddImmediate(PP, PP, -offset)
		a.Str(PP, Mem(FP, 2*WordSize))
	}
	a.LoadPoolPointer()
	a.AddImmediate(SP, SP, -frameSize)
}

// LeaveDartFrame tears down an EnterDartFrame frame.
func (a *Assembler) LeaveDartFrame() {
	a.poolAllowed = false
	a.LeaveFrame(Regs(PP, FP, LR))
	a.AddImmediate(SP, SP, WordSize)
}

// EnterStubFrame sets up a frame whose saved PC slot is zero.
func (a *Assembler) EnterStubFrame() {
	a.Mov(IP, Reg(LR))
	a.Mov(LR, Imm(0, 0))
	a.EnterFrame(Regs(PP, FP, IP, LR), 0)
	a.LoadPoolPointer()
}

// LeaveStubFrame tears down an EnterStubFrame frame.
func (a *Assembler) LeaveStubFrame() {
	a.poolAllowed = false
	a.LeaveFrame(Regs(PP, FP, LR))
	a.AddImmediate(SP, SP, WordSize)
}

var callRuntimeFrameRegs = VolatileCPURegs | Regs(PP, FP, LR)

// EnterCallRuntimeFrame saves every caller-saved core and FPU register and
// reserves an aligned frameSpace for outgoing arguments.
func (a *Assembler) EnterCallRuntimeFrame(frameSpace int32) {
	a.EnterFrame(callRuntimeFrameRegs, 0)
	if a.features.VFPSupported() {
		a.Vstmd(DB_W, SP, FirstVolatileDReg, VolatileDRegCount)
	}
	a.ReserveAlignedFrameSpace(frameSpace)
}

// LeaveCallRuntimeFrame restores what EnterCallRuntimeFrame saved.
func (a *Assembler) LeaveCallRuntimeFrame() {
	pushed := int32(numRegsBelowFP(callRuntimeFrameRegs) * WordSize)
	if a.features.VFPSupported() {
		pushed += int32(VolatileDRegCount * 8)
	}
	a.AddImmediate(SP, FP, -pushed)
	if a.features.VFPSupported() {
		a.Vldmd(IA_W, SP, FirstVolatileDReg, VolatileDRegCount)
	}
	a.LeaveFrame(callRuntimeFrameRegs)
}

// ReserveAlignedFrameSpace reserves frameSpace bytes and aligns SP for a
// native call.
func (a *Assembler) ReserveAlignedFrameSpace(frameSpace int32) {
	a.AddImmediate(SP, SP, -frameSpace)
	if align := a.layout.ActivationFrameAlignment; align > 1 {
		a.Bic(SP, SP, Imm(0, uint32(align-1)))
	}
}

// CallRuntime calls entry. Leaf entries are called directly; others go
// through the CallToRuntime stub with the entry in R5 and the argument
// count in R4.
func (a *Assembler) CallRuntime(entry *asm.RuntimeEntry, argumentCount int) {
	if entry.IsLeaf {
		asm.Assert(argumentCount == entry.ArgumentCount, "%s takes %d arguments, got %d",
			entry.Name, entry.ArgumentCount, argumentCount)
		a.BranchLink(entry.Label())
		return
	}
	asm.Assert(a.stubs.CallToRuntime != nil, "no CallToRuntime stub")
	a.LoadImmediate(RuntimeEntryReg, int32(uint32(entry.Address)))
	a.LoadImmediate(RuntimeArgCountReg, int32(argumentCount))
	a.BranchLink(a.stubs.CallToRuntime)
}

// LoadIsolate loads the current isolate from the thread register.
func (a *Assembler) LoadIsolate(rd Register) {
	a.Ldr(rd, Mem(THR, int32(a.layout.ThreadIsolateOffset)))
}

// LoadClassId loads the 16-bit class id from the header of object.
func (a *Assembler) LoadClassId(result, object Register, cond ...Condition) {
	a.Ldrh(result, FieldAddress(object, int32(a.layout.ClassIDOffset())), cond...)
}

// LoadClassById loads the class with id classID from the isolate's class
// table.
func (a *Assembler) LoadClassById(result, classID Register) {
	asm.Assert(result != classID, "LoadClassById clobbers the class id")
	a.LoadIsolate(result)
	offset := a.layout.IsolateClassTableOffset + a.layout.ClassTableTableOffset
	a.LoadFromOffset(Word, result, result, int32(offset))
	a.Ldr(result, MemIndex(result, classID, LSL, 2, Offset))
}

// LoadClass loads the class of object.
func (a *Assembler) LoadClass(result, object, scratch Register) {
	asm.Assert(scratch != result, "LoadClass scratch overlaps result")
	a.LoadClassId(scratch, object)
	a.LoadClassById(result, scratch)
}

// CompareClassId compares the class id of object with classID.
func (a *Assembler) CompareClassId(object Register, classID int32, scratch Register) {
	a.LoadClassId(scratch, object)
	a.CompareImmediate(scratch, classID)
}

// Stop emits a trap carrying message. The message id sits in the word
// before the trap so a debugger can report it and resume after the trap.
func (a *Assembler) Stop(message string) {
	id := asm.RegisterStopMessage(message)
	if a.printStops {
		asm.Assert(a.stubs.PrintStopMessage != nil, "no PrintStopMessage stub")
		regs := Regs(R0, IP, LR)
		a.PushList(regs)
		a.LoadImmediate(R0, int32(id))
		a.BranchLink(a.stubs.PrintStopMessage)
		a.PopList(regs)
	}
	skip := asm.NewLabel()
	a.B(skip)
	a.Emit(id)
	a.Bind(skip)
	a.Svc(StopMessageSVC)
}

// Breakpoint emits the simulator breakpoint trap.
func (a *Assembler) Breakpoint() {
	a.Svc(BreakpointSVC)
}
