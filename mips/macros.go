package mips

import (
	"math"

	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/bits"
)

// Move copies rs to rd unless they are the same register.
func (a *Assembler) Move(rd, rs Register) {
	if rd != rs {
		a.Or(rd, rs, ZR)
	}
}

// LoadImmediate materializes value in rd with one addiu or ori when the
// value fits 16 bits, otherwise lui followed by ori when the low half is
// not zero.
func (a *Assembler) LoadImmediate(rd Register, value int32) {
	v := uint32(value)
	switch {
	case bits.IsInt(16, int64(value)):
		a.Addiu(rd, ZR, value)
	case bits.IsUint(16, int64(value)):
		a.Ori(rd, ZR, v)
	default:
		a.Lui(rd, bits.High16(v))
		if lo := bits.Low16(v); lo != 0 {
			a.Ori(rd, rd, lo)
		}
	}
}

// LoadPatchableImmediate emits the fixed lui+ori pair so the value can be
// rewritten in place.
func (a *Assembler) LoadPatchableImmediate(rd Register, value int32) {
	v := uint32(value)
	a.Lui(rd, bits.High16(v))
	a.Ori(rd, rd, bits.Low16(v))
}

// LoadSImmediate loads a float into fd through TMP.
func (a *Assembler) LoadSImmediate(fd FRegister, value float32) {
	a.LoadImmediate(TMP, int32(math.Float32bits(value)))
	a.Mtc1(TMP, fd)
}

// LoadDImmediate loads a double into dd through TMP, a word at a time.
func (a *Assembler) LoadDImmediate(dd DRegister, value float64) {
	v := math.Float64bits(value)
	a.LoadImmediate(TMP, int32(bits.Low32(v)))
	a.Mtc1(TMP, dd.Low())
	a.LoadImmediate(TMP, int32(bits.High32(v)))
	a.Mtc1(TMP, dd.High())
}

// AddImmediate emits rd = rs + value, through TMP when value does not fit
// an addiu.
func (a *Assembler) AddImmediate(rd, rs Register, value int32) {
	switch {
	case value == 0:
		a.Move(rd, rs)
	case bits.IsInt(16, int64(value)):
		a.Addiu(rd, rs, value)
	default:
		asm.Assert(rs != TMP, "AddImmediate from tmp")
		a.LoadImmediate(TMP, value)
		a.Addu(rd, rs, TMP)
	}
}

// AndImmediate emits rd = rs & value.
func (a *Assembler) AndImmediate(rd, rs Register, value int32) {
	if bits.IsUint(16, int64(value)) {
		a.Andi(rd, rs, uint32(value))
		return
	}
	asm.Assert(rs != TMP, "AndImmediate from tmp")
	a.LoadImmediate(TMP, value)
	a.And(rd, rs, TMP)
}

// OrImmediate emits rd = rs | value.
func (a *Assembler) OrImmediate(rd, rs Register, value int32) {
	if bits.IsUint(16, int64(value)) {
		a.Ori(rd, rs, uint32(value))
		return
	}
	asm.Assert(rs != TMP, "OrImmediate from tmp")
	a.LoadImmediate(TMP, value)
	a.Or(rd, rs, TMP)
}

// compareOperand returns a register holding value, TMP unless value is
// zero.
func (a *Assembler) compareOperand(rs Register, value int32) Register {
	if value == 0 {
		return ZR
	}
	asm.Assert(rs != TMP, "immediate compare with tmp")
	a.LoadImmediate(TMP, value)
	return TMP
}

// BranchEqual branches to l when rs == value.
func (a *Assembler) BranchEqual(rs Register, value int32, l *asm.Label) {
	a.Beq(rs, a.compareOperand(rs, value), l)
}

// BranchNotEqual branches to l when rs != value.
func (a *Assembler) BranchNotEqual(rs Register, value int32, l *asm.Label) {
	a.Bne(rs, a.compareOperand(rs, value), l)
}

// BranchSignedLess branches to l when rs < rt, signed.
func (a *Assembler) BranchSignedLess(rs, rt Register, l *asm.Label) {
	a.Slt(TMP, rs, rt)
	a.Bne(TMP, ZR, l)
}

// BranchSignedGreaterEqual branches to l when rs >= rt, signed.
func (a *Assembler) BranchSignedGreaterEqual(rs, rt Register, l *asm.Label) {
	a.Slt(TMP, rs, rt)
	a.Beq(TMP, ZR, l)
}

// BranchUnsignedLess branches to l when rs < rt, unsigned.
func (a *Assembler) BranchUnsignedLess(rs, rt Register, l *asm.Label) {
	a.Sltu(TMP, rs, rt)
	a.Bne(TMP, ZR, l)
}

// BranchUnsignedGreaterEqual branches to l when rs >= rt, unsigned.
func (a *Assembler) BranchUnsignedGreaterEqual(rs, rt Register, l *asm.Label) {
	a.Sltu(TMP, rs, rt)
	a.Beq(TMP, ZR, l)
}

// splitOffset moves base+offset into TMP when offset does not fit a
// displacement.
func (a *Assembler) splitOffset(base Register, offset int32) Address {
	if CanHoldOffset(offset) {
		return Mem(base, offset)
	}
	asm.Assert(base != TMP, "offset split with tmp base")
	a.LoadImmediate(TMP, offset)
	a.Addu(TMP, TMP, base)
	return Mem(TMP, 0)
}

// LoadFromOffset loads a value of size from base+offset.
func (a *Assembler) LoadFromOffset(size OperandSize, reg, base Register, offset int32) {
	ad := a.splitOffset(base, offset)
	switch size {
	case Byte:
		a.Lb(reg, ad)
	case UnsignedByte:
		a.Lbu(reg, ad)
	case Halfword:
		a.Lh(reg, ad)
	case UnsignedHalfword:
		a.Lhu(reg, ad)
	case Word, UnsignedWord:
		a.Lw(reg, ad)
	default:
		asm.Unreachable()
	}
}

// StoreToOffset stores a value of size to base+offset.
func (a *Assembler) StoreToOffset(size OperandSize, reg, base Register, offset int32) {
	if !CanHoldOffset(offset) {
		asm.Assert(reg != TMP, "StoreToOffset of tmp")
	}
	ad := a.splitOffset(base, offset)
	switch size {
	case Byte, UnsignedByte:
		a.Sb(reg, ad)
	case Halfword, UnsignedHalfword:
		a.Sh(reg, ad)
	case Word, UnsignedWord:
		a.Sw(reg, ad)
	default:
		asm.Unreachable()
	}
}

// LoadSFromOffset loads fd from base+offset.
func (a *Assembler) LoadSFromOffset(fd FRegister, base Register, offset int32) {
	a.Lwc1(fd, a.splitOffset(base, offset))
}

// StoreSToOffset stores fd to base+offset.
func (a *Assembler) StoreSToOffset(fd FRegister, base Register, offset int32) {
	a.Swc1(fd, a.splitOffset(base, offset))
}

// LoadDFromOffset loads dd from base+offset.
func (a *Assembler) LoadDFromOffset(dd DRegister, base Register, offset int32) {
	a.Ldc1(dd, a.splitOffset(base, offset))
}

// StoreDToOffset stores dd to base+offset.
func (a *Assembler) StoreDToOffset(dd DRegister, base Register, offset int32) {
	a.Sdc1(dd, a.splitOffset(base, offset))
}

// Push pushes rt.
func (a *Assembler) Push(rt Register) {
	a.Addiu(SP, SP, -WordSize)
	a.Sw(rt, Mem(SP, 0))
}

// Pop pops into rt.
func (a *Assembler) Pop(rt Register) {
	a.Lw(rt, Mem(SP, 0))
	a.Addiu(SP, SP, WordSize)
}

// PushList pushes regs, lowest register at the lowest address.
func (a *Assembler) PushList(regs RegList) {
	a.Addiu(SP, SP, int32(-WordSize*regs.Count()))
	slot := int32(0)
	for r := ZR; r < NumRegisters; r++ {
		if regs.Has(r) {
			a.Sw(r, Mem(SP, slot))
			slot += WordSize
		}
	}
}

// PopList pops regs pushed by PushList.
func (a *Assembler) PopList(regs RegList) {
	slot := int32(0)
	for r := ZR; r < NumRegisters; r++ {
		if regs.Has(r) {
			a.Lw(r, Mem(SP, slot))
			slot += WordSize
		}
	}
	a.Addiu(SP, SP, slot)
}

// LoadWordFromPoolOffset loads the pool word at offset from the tagged
// pool pointer pp.
func (a *Assembler) LoadWordFromPoolOffset(rd Register, offset int32, pp Register) {
	asm.Assert(pp != PP || a.poolAllowed, "object pool used while PP is invalid")
	asm.Assert(rd != pp, "pool load into the pool register")
	if CanHoldOffset(offset) {
		a.Lw(rd, Mem(pp, offset))
		return
	}
	a.LoadImmediate(rd, offset)
	a.Addu(rd, rd, pp)
	a.Lw(rd, Mem(rd, 0))
}

// GetNextPC loads the address of the instruction after the sequence into
// dest, preserving RA through temp.
func (a *Assembler) GetNextPC(dest, temp Register) {
	asm.Assert(dest != RA && temp != RA, "GetNextPC through ra")
	next := asm.NewLabel()
	a.Move(temp, RA)
	a.Bal(next)
	a.Bind(next)
	a.Move(dest, RA)
	a.Move(RA, temp)
}

// LoadPoolPointer loads PP from the instructions header preceding the
// code and enables pool access. TMP and T9 are clobbered.
func (a *Assembler) LoadPoolPointer() {
	a.GetNextPC(T9, TMP)
	// T9 holds the code address of the instruction after the bal slot,
	// which is where the move into T9 sits.
	dist := a.layout.InstructionsHeaderSize - a.layout.InstructionsObjectPoolOffset +
		a.CodeSize() - 2*InstrSize
	a.LoadFromOffset(Word, PP, T9, int32(-dist))
	a.poolAllowed = true
}

// LoadObject loads obj into rd: as an immediate when it never moves,
// otherwise from the object pool.
func (a *Assembler) LoadObject(rd Register, obj asm.Object) {
	if obj.CanBeEmbedded() {
		a.LoadImmediate(rd, int32(uint32(obj.Raw())))
		return
	}
	offset := a.layout.PoolElementOffset(a.pool.AddObject(obj))
	a.LoadWordFromPoolOffset(rd, int32(offset), PP)
}

// LoadExternalLabel loads the address of label from a fresh pool slot.
func (a *Assembler) LoadExternalLabel(rd Register, label *asm.ExternalLabel) {
	offset := a.layout.PoolElementOffset(a.pool.AddExternalLabel(label))
	a.LoadWordFromPoolOffset(rd, int32(offset), PP)
}

// Branch jumps to an external address through T9.
func (a *Assembler) Branch(label *asm.ExternalLabel) {
	a.LoadImmediate(T9, int32(uint32(label.Address)))
	a.Jr(T9)
}

// BranchLink calls an external address through T9.
func (a *Assembler) BranchLink(label *asm.ExternalLabel) {
	a.LoadImmediate(T9, int32(uint32(label.Address)))
	a.Jalr(T9)
}

// BranchLinkPatchable calls an external address held in a pool slot.
func (a *Assembler) BranchLinkPatchable(label *asm.ExternalLabel) {
	a.LoadExternalLabel(T9, label)
	a.Jalr(T9)
}

// StoreIntoObjectFilterNoSmi branches to noUpdate unless value is a new
// object and object is old. value must not be a small integer.
func (a *Assembler) StoreIntoObjectFilterNoSmi(object, value Register, noUpdate *asm.Label) {
	// (value | object) ^ object is value with object's bits cleared.
	a.Or(TMP, value, object)
	a.Xor(TMP, TMP, object)
	a.Andi(TMP, TMP, a.newObjectBit())
	a.Beq(TMP, ZR, noUpdate)
}

// StoreIntoObjectFilter is StoreIntoObjectFilterNoSmi for values that may
// be small integers: and-ing the value with itself shifted moves its tag
// bit onto the generation bit, so a small integer always filters out.
func (a *Assembler) StoreIntoObjectFilter(object, value Register, noUpdate *asm.Label) {
	a.Sll(TMP, value, uint32(a.layout.NewObjectBitShift()))
	a.And(TMP, TMP, value)
	a.Or(TMP, TMP, object)
	a.Xor(TMP, TMP, object)
	a.Andi(TMP, TMP, a.newObjectBit())
	a.Beq(TMP, ZR, noUpdate)
}

func (a *Assembler) newObjectBit() uint32 {
	bit := a.layout.NewObjectAlignmentOffset
	asm.Assert(bit > 0 && bit <= 0xffff, "new object bit not encodable")
	return uint32(bit)
}

// StoreIntoObject stores value into the field at dest of object and, when
// the store creates an old-to-new pointer, calls the store buffer stub
// with object in A0. The volatile registers and RA survive the call.
func (a *Assembler) StoreIntoObject(object Register, dest Address, value Register, canBeSmi bool) {
	asm.Assert(object != value, "storing an object into itself")
	asm.Assert(object != TMP && value != TMP, "write barrier operand in tmp")
	asm.Assert(a.stubs.UpdateStoreBuffer != nil, "no store buffer stub")
	a.Sw(value, dest)
	done := asm.NewLabel()
	if canBeSmi {
		a.StoreIntoObjectFilter(object, value, done)
	} else {
		a.StoreIntoObjectFilterNoSmi(object, value, done)
	}
	regs := VolatileCPURegs | Regs(RA)
	a.PushList(regs)
	a.Move(A0, object)
	a.BranchLink(a.stubs.UpdateStoreBuffer)
	a.PopList(regs)
	a.Bind(done)
}

// StoreIntoObjectOffset is StoreIntoObject for a field offset.
func (a *Assembler) StoreIntoObjectOffset(object Register, offset int32, value Register, canBeSmi bool) {
	if CanHoldOffset(offset - asm.HeapObjectTag) {
		a.StoreIntoObject(object, FieldAddress(object, offset), value, canBeSmi)
		return
	}
	asm.Assert(object != T9 && value != T9, "write barrier operand in t9")
	a.LoadImmediate(T9, offset-asm.HeapObjectTag)
	a.Addu(T9, T9, object)
	a.StoreIntoObject(object, Mem(T9, 0), value, canBeSmi)
}

// StoreIntoObjectNoBarrier stores value without a barrier.
func (a *Assembler) StoreIntoObjectNoBarrier(object Register, dest Address, value Register) {
	a.Sw(value, dest)
}

// StoreObjectIntoObjectNoBarrier stores a constant through TMP without a
// barrier.
func (a *Assembler) StoreObjectIntoObjectNoBarrier(object Register, dest Address, value asm.Object) {
	asm.Assert(object != TMP && dest.Base() != TMP, "constant store through tmp base")
	a.LoadObject(TMP, value)
	a.Sw(TMP, dest)
}

// EnterFrame pushes RA and FP, points FP at the saved FP and reserves
// frameSize bytes.
func (a *Assembler) EnterFrame(frameSize int32) {
	if a.prologueOffset == -1 {
		a.prologueOffset = a.CodeSize()
	}
	a.Addiu(SP, SP, -2*WordSize)
	a.Sw(RA, Mem(SP, WordSize))
	a.Sw(FP, Mem(SP, 0))
	a.Move(FP, SP)
	a.AddImmediate(SP, SP, -frameSize)
}

// LeaveFrame tears down an EnterFrame frame.
func (a *Assembler) LeaveFrame() {
	a.Move(SP, FP)
	a.Lw(RA, Mem(SP, WordSize))
	a.Lw(FP, Mem(SP, 0))
	a.Addiu(SP, SP, 2*WordSize)
}

// EnterDartFrame sets up a frame holding RA, FP, PP and a zero PC marker,
// loads the pool pointer and reserves frameSize bytes.
func (a *Assembler) EnterDartFrame(frameSize int32) {
	asm.Assert(!a.poolAllowed, "EnterDartFrame with a live pool pointer")
	if a.prologueOffset == -1 {
		a.prologueOffset = a.CodeSize()
	}
	a.Addiu(SP, SP, -4*WordSize)
	a.Sw(RA, Mem(SP, 3*WordSize))
	a.Sw(FP, Mem(SP, 2*WordSize))
	a.Sw(PP, Mem(SP, WordSize))
	a.Sw(ZR, Mem(SP, 0))
	a.Addiu(FP, SP, 2*WordSize)
	a.LoadPoolPointer()
	a.AddImmediate(SP, SP, -frameSize)
}

// LeaveDartFrame tears down an EnterDartFrame frame.
func (a *Assembler) LeaveDartFrame() {
	a.poolAllowed = false
	a.Addiu(SP, FP, -2*WordSize)
	a.Lw(RA, Mem(SP, 3*WordSize))
	a.Lw(FP, Mem(SP, 2*WordSize))
	a.Lw(PP, Mem(SP, WordSize))
	a.Addiu(SP, SP, 4*WordSize)
}

// EnterStubFrame is EnterDartFrame with no locals.
func (a *Assembler) EnterStubFrame() { a.EnterDartFrame(0) }

// LeaveStubFrame tears down an EnterStubFrame frame.
func (a *Assembler) LeaveStubFrame() { a.LeaveDartFrame() }

var callRuntimeFrameRegs = VolatileCPURegs &^ Regs(AT)

// EnterCallRuntimeFrame saves the caller-saved core and FPU registers and
// reserves an aligned frameSpace for outgoing arguments.
func (a *Assembler) EnterCallRuntimeFrame(frameSpace int32) {
	a.EnterFrame(0)
	a.PushList(callRuntimeFrameRegs)
	a.Addiu(SP, SP, int32(-8*VolatileDRegCount))
	for d := FirstVolatileDReg; d <= LastVolatileDReg; d++ {
		a.Sdc1(d, Mem(SP, int32(8*(d-FirstVolatileDReg))))
	}
	a.ReserveAlignedFrameSpace(frameSpace)
}

// LeaveCallRuntimeFrame restores what EnterCallRuntimeFrame saved.
func (a *Assembler) LeaveCallRuntimeFrame() {
	saved := int32(WordSize*callRuntimeFrameRegs.Count() + 8*VolatileDRegCount)
	a.AddImmediate(SP, FP, -saved)
	for d := FirstVolatileDReg; d <= LastVolatileDReg; d++ {
		a.Ldc1(d, Mem(SP, int32(8*(d-FirstVolatileDReg))))
	}
	a.Addiu(SP, SP, int32(8*VolatileDRegCount))
	a.PopList(callRuntimeFrameRegs)
	a.LeaveFrame()
}

// ReserveAlignedFrameSpace reserves frameSpace bytes and aligns SP for a
// native call.
func (a *Assembler) ReserveAlignedFrameSpace(frameSpace int32) {
	a.AddImmediate(SP, SP, -frameSpace)
	if align := a.layout.ActivationFrameAlignment; align > 1 {
		a.AndImmediate(SP, SP, int32(-align))
	}
}

// CallRuntime calls entry. Leaf entries are called directly; others go
// through the CallToRuntime stub with the entry in S5 and the argument
// count in S4.
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
	a.Lw(rd, Mem(THR, int32(a.layout.ThreadIsolateOffset)))
}

// LoadClassId loads the 16-bit class id from the header of object.
func (a *Assembler) LoadClassId(result, object Register) {
	a.Lhu(result, FieldAddress(object, int32(a.layout.ClassIDOffset())))
}

// LoadClassById loads the class with id classID from the isolate's class
// table.
func (a *Assembler) LoadClassById(result, classID Register) {
	asm.Assert(result != classID, "LoadClassById clobbers the class id")
	asm.Assert(result != TMP && classID != TMP, "LoadClassById through tmp")
	a.LoadIsolate(result)
	offset := a.layout.IsolateClassTableOffset + a.layout.ClassTableTableOffset
	a.LoadFromOffset(Word, result, result, int32(offset))
	a.Sll(TMP, classID, 2)
	a.Addu(result, result, TMP)
	a.Lw(result, Mem(result, 0))
}

// LoadClass loads the class of object.
func (a *Assembler) LoadClass(result, object, scratch Register) {
	asm.Assert(scratch != result, "LoadClass scratch overlaps result")
	a.LoadClassId(scratch, object)
	a.LoadClassById(result, scratch)
}

// BranchIfClassId branches to l when the class id of object is classID.
func (a *Assembler) BranchIfClassId(object Register, classID int32, scratch Register, l *asm.Label) {
	a.LoadClassId(scratch, object)
	a.BranchEqual(scratch, classID, l)
}

// Stop emits a trap carrying message. The message id sits in the word
// before the trap so a debugger can report it and resume after the trap.
func (a *Assembler) Stop(message string) {
	id := asm.RegisterStopMessage(message)
	if a.printStops {
		asm.Assert(a.stubs.PrintStopMessage != nil, "no PrintStopMessage stub")
		regs := Regs(A0, T9, RA)
		a.PushList(regs)
		a.LoadImmediate(A0, int32(id))
		a.BranchLink(a.stubs.PrintStopMessage)
		a.PopList(regs)
	}
	skip := asm.NewLabel()
	a.B(skip)
	a.Emit(id)
	a.Bind(skip)
	a.Break(StopMessageBreak)
}

// Breakpoint emits the simulator breakpoint trap.
func (a *Assembler) Breakpoint() { a.Break(BreakpointBreak) }
