package arm64

import (
	"math"

	"github.com/sarchlab/jitsim/asm"
)

// MoveRegister copies rm to rd unless they are the same register.
func (a *Assembler) MoveRegister(d, m Register) {
	if d != m {
		a.Mov(d, m)
	}
}

// Push pushes r onto the generated-code stack.
func (a *Assembler) Push(r Register) {
	a.Str(r, MemMode(SP, -WordSize, PreIndex))
}

// Pop pops into r.
func (a *Assembler) Pop(r Register) {
	a.Ldr(r, MemMode(SP, WordSize, PostIndex))
}

// PushPair pushes low and high; low ends up at the lower address.
func (a *Assembler) PushPair(low, high Register) {
	a.Stp(low, high, MemMode(SP, -2*WordSize, PairPreIndex))
}

// PopPair pops what PushPair pushed.
func (a *Assembler) PopPair(low, high Register) {
	a.Ldp(low, high, MemMode(SP, 2*WordSize, PairPostIndex))
}

func (l RegList) regs() []Register {
	var out []Register
	for r := R0; r < CSP; r++ {
		if l.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// PushList pushes an even number of registers in pairs, lowest register
// at the lowest address.
func (a *Assembler) PushList(l RegList) {
	rs := l.regs()
	asm.Assert(len(rs)%2 == 0, "PushList of %d registers", len(rs))
	for i := len(rs) - 2; i >= 0; i -= 2 {
		a.PushPair(rs[i], rs[i+1])
	}
}

// PopList pops what PushList pushed.
func (a *Assembler) PopList(l RegList) {
	rs := l.regs()
	asm.Assert(len(rs)%2 == 0, "PopList of %d registers", len(rs))
	for i := 0; i < len(rs); i += 2 {
		a.PopPair(rs[i], rs[i+1])
	}
}

func halfwords(v uint64) [4]uint16 {
	return [4]uint16{uint16(v), uint16(v >> 16), uint16(v >> 32), uint16(v >> 48)}
}

// LoadImmediate materializes value in rd: a single movz, orr or movn when
// possible, a pool load when more than two instructions would be needed
// and the pool is available, otherwise a movz/movn and movk sequence.
func (a *Assembler) LoadImmediate(d Register, value int64) {
	checkRegOrZR(d)
	v := uint64(value)
	if v == 0 {
		a.Movz(d, 0, 0)
		return
	}
	if IsImmLogical(v, 64) {
		a.Orr(d, ZR, LogicalImm(v, 64))
		return
	}
	h := halfwords(v)
	zeros, ones := 0, 0
	for _, x := range h {
		switch x {
		case 0:
			zeros++
		case 0xffff:
			ones++
		}
	}
	inverted := ones > zeros
	fill := uint16(0)
	if inverted {
		fill = 0xffff
	}
	if n := 4 - max(zeros, ones); n > 2 && a.poolAllowed {
		a.LoadWordFromPoolOffset(d, int32(a.layout.PoolElementOffset(a.pool.AddImmediate(v))), PP)
		return
	}
	first := true
	for i, x := range h {
		if x == fill {
			continue
		}
		switch {
		case !first:
			a.Movk(d, x, uint32(i))
		case inverted:
			a.Movn(d, ^x, uint32(i))
		default:
			a.Movz(d, x, uint32(i))
		}
		first = false
	}
	if first {
		// Every half-word is 0xffff.
		a.Movn(d, 0, 0)
	}
}

// LoadPatchableImmediate emits the fixed movz+3*movk sequence so the value
// can be rewritten in place.
func (a *Assembler) LoadPatchableImmediate(d Register, value int64) {
	h := halfwords(uint64(value))
	a.Movz(d, h[0], 0)
	for i := 1; i < 4; i++ {
		a.Movk(d, h[i], uint32(i))
	}
}

// LoadDImmediate loads value into vd, through TMP when it is not an FP
// immediate.
func (a *Assembler) LoadDImmediate(d VRegister, value float64) {
	if a.FmovdImm(d, value) {
		return
	}
	a.LoadImmediate(TMP, int64(math.Float64bits(value)))
	a.Fmovdr(d, TMP)
}

// LoadSImmediate loads a single into vd.
func (a *Assembler) LoadSImmediate(d VRegister, value float32) {
	if a.FmovsImm(d, value) {
		return
	}
	a.LoadImmediate(TMP, int64(math.Float32bits(value)))
	a.Fmovsr(d, TMP)
}

func arithImm(value int64) (Operand, bool) {
	var o Operand
	if CanHold(value, 64, &o) == OperandImmediate {
		return o, true
	}
	return Operand{}, false
}

// AddImmediate emits rd = rn + value, through TMP2 when neither value nor
// its negation is an arithmetic immediate.
func (a *Assembler) AddImmediate(d, n Register, value int64) {
	if value == 0 {
		a.MoveRegister(d, n)
		return
	}
	if o, ok := arithImm(value); ok {
		a.Add(d, n, o)
		return
	}
	if o, ok := arithImm(-value); ok && value != math.MinInt64 {
		a.Sub(d, n, o)
		return
	}
	asm.Assert(n != TMP2, "AddImmediate from tmp2")
	a.LoadImmediate(TMP2, value)
	a.Add(d, n, Reg(TMP2))
}

// AddImmediateSetFlags emits rd = rn + value setting flags.
func (a *Assembler) AddImmediateSetFlags(d, n Register, value int64) {
	if o, ok := arithImm(value); ok {
		a.Adds(d, n, o)
		return
	}
	if o, ok := arithImm(-value); ok && value != math.MinInt64 {
		a.Subs(d, n, o)
		return
	}
	asm.Assert(n != TMP2, "AddImmediateSetFlags from tmp2")
	a.LoadImmediate(TMP2, value)
	a.Adds(d, n, Reg(TMP2))
}

// SubImmediateSetFlags emits rd = rn - value setting flags.
func (a *Assembler) SubImmediateSetFlags(d, n Register, value int64) {
	if o, ok := arithImm(value); ok {
		a.Subs(d, n, o)
		return
	}
	if o, ok := arithImm(-value); ok && value != math.MinInt64 {
		a.Adds(d, n, o)
		return
	}
	asm.Assert(n != TMP2, "SubImmediateSetFlags from tmp2")
	a.LoadImmediate(TMP2, value)
	a.Subs(d, n, Reg(TMP2))
}

// AndImmediate emits rd = rn & value.
func (a *Assembler) AndImmediate(d, n Register, value int64) {
	if IsImmLogical(uint64(value), 64) {
		a.And(d, n, LogicalImm(uint64(value), 64))
		return
	}
	asm.Assert(n != TMP2, "AndImmediate from tmp2")
	a.LoadImmediate(TMP2, value)
	a.And(d, n, Reg(TMP2))
}

// OrImmediate emits rd = rn | value.
func (a *Assembler) OrImmediate(d, n Register, value int64) {
	if IsImmLogical(uint64(value), 64) {
		a.Orr(d, n, LogicalImm(uint64(value), 64))
		return
	}
	asm.Assert(n != TMP2, "OrImmediate from tmp2")
	a.LoadImmediate(TMP2, value)
	a.Orr(d, n, Reg(TMP2))
}

// TestImmediate sets flags from rn & value.
func (a *Assembler) TestImmediate(n Register, value int64) {
	if IsImmLogical(uint64(value), 64) {
		a.Tst(n, LogicalImm(uint64(value), 64))
		return
	}
	asm.Assert(n != TMP2, "TestImmediate with tmp2")
	a.LoadImmediate(TMP2, value)
	a.Tst(n, Reg(TMP2))
}

// CompareImmediate compares rn with value.
func (a *Assembler) CompareImmediate(n Register, value int64) {
	if o, ok := arithImm(value); ok {
		a.Cmp(n, o)
		return
	}
	if o, ok := arithImm(-value); ok && value != math.MinInt64 {
		a.Cmn(n, o)
		return
	}
	asm.Assert(n != TMP2, "CompareImmediate with tmp2")
	a.LoadImmediate(TMP2, value)
	a.Cmp(n, Reg(TMP2))
}

// offsetAddress returns an address for base+offset, folding an offset the
// access cannot encode into TMP2.
func (a *Assembler) offsetAddress(base Register, offset int32, size OperandSize) Address {
	if CanHoldOffset(offset, Offset, size) {
		return Mem(base, offset)
	}
	asm.Assert(base != TMP2, "offset split with tmp2 base")
	a.AddImmediate(TMP2, base, int64(offset))
	return Mem(TMP2, 0)
}

// LoadFromOffset loads a value of size from base+offset.
func (a *Assembler) LoadFromOffset(size OperandSize, d, base Register, offset int32) {
	a.Ldr(d, a.offsetAddress(base, offset, size), size)
}

// StoreToOffset stores a value of size to base+offset.
func (a *Assembler) StoreToOffset(size OperandSize, t, base Register, offset int32) {
	asm.Assert(t != TMP2 || CanHoldOffset(offset, Offset, size), "StoreToOffset of tmp2")
	a.Str(t, a.offsetAddress(base, offset, size), size)
}

// LoadDFromOffset loads vd from base+offset.
func (a *Assembler) LoadDFromOffset(d VRegister, base Register, offset int32) {
	a.Fldr(d, a.offsetAddress(base, offset, DWord), DWord)
}

// StoreDToOffset stores vd to base+offset.
func (a *Assembler) StoreDToOffset(d VRegister, base Register, offset int32) {
	a.Fstr(d, a.offsetAddress(base, offset, DWord), DWord)
}

// LoadQFromOffset loads the 128-bit vd from base+offset.
func (a *Assembler) LoadQFromOffset(d VRegister, base Register, offset int32) {
	a.Fldr(d, a.offsetAddress(base, offset, QWord), QWord)
}

// StoreQToOffset stores the 128-bit vd to base+offset.
func (a *Assembler) StoreQToOffset(d VRegister, base Register, offset int32) {
	a.Fstr(d, a.offsetAddress(base, offset, QWord), QWord)
}

// LoadWordFromPoolOffset loads the pool word at offset from the tagged
// pool pointer pp.
func (a *Assembler) LoadWordFromPoolOffset(d Register, offset int32, pp Register) {
	asm.Assert(pp != PP || a.poolAllowed, "object pool used while PP is invalid")
	asm.Assert(d != pp, "pool load into the pool register")
	if CanHoldOffset(offset, Offset, DoubleWord) {
		a.Ldr(d, Mem(pp, offset))
		return
	}
	a.AddImmediate(d, pp, int64(offset))
	a.Ldr(d, Mem(d, 0))
}

// LoadPoolPointer loads PP from the instructions header preceding the code
// and enables pool access.
func (a *Assembler) LoadPoolPointer() {
	dist := a.layout.InstructionsHeaderSize - a.layout.InstructionsObjectPoolOffset + a.CodeSize()
	a.Ldr(PP, PCRelative(int32(-dist)), DoubleWord)
	a.poolAllowed = true
}

// LoadObject loads obj into rd: as an immediate when it never moves,
// otherwise from the object pool.
func (a *Assembler) LoadObject(d Register, obj asm.Object) {
	if obj.CanBeEmbedded() {
		a.LoadImmediate(d, int64(obj.Raw()))
		return
	}
	offset := a.layout.PoolElementOffset(a.pool.AddObject(obj))
	a.LoadWordFromPoolOffset(d, int32(offset), PP)
}

// LoadExternalLabel loads the address of label from a fresh pool slot.
func (a *Assembler) LoadExternalLabel(d Register, label *asm.ExternalLabel) {
	offset := a.layout.PoolElementOffset(a.pool.AddExternalLabel(label))
	a.LoadWordFromPoolOffset(d, int32(offset), PP)
}

// Branch jumps to an external address through TMP.
func (a *Assembler) Branch(label *asm.ExternalLabel) {
	a.LoadImmediate(TMP, int64(label.Address))
	a.Br(TMP)
}

// BranchLink calls an external address through TMP.
func (a *Assembler) BranchLink(label *asm.ExternalLabel) {
	a.LoadImmediate(TMP, int64(label.Address))
	a.Blr(TMP)
}

// BranchLinkPatchable calls an external address held in a pool slot so the
// target can change without touching the code.
func (a *Assembler) BranchLinkPatchable(label *asm.ExternalLabel) {
	a.LoadExternalLabel(TMP, label)
	a.Blr(TMP)
}

// StoreIntoObjectFilterNoSmi branches to noUpdate unless value is a new
// object and object is old. value must not be a small integer.
func (a *Assembler) StoreIntoObjectFilterNoSmi(object, value Register, noUpdate *asm.Label) {
	a.Bic(TMP, value, Reg(object))
	a.Tst(TMP, a.newObjectBit())
	a.B(noUpdate, EQ)
}

// StoreIntoObjectFilter is StoreIntoObjectFilterNoSmi for values that may
// be small integers: and-ing the value with itself shifted moves its tag
// bit onto the generation bit, so a small integer always filters out.
func (a *Assembler) StoreIntoObjectFilter(object, value Register, noUpdate *asm.Label) {
	a.And(TMP, value, Shifted(value, LSL, uint32(a.layout.NewObjectBitShift())))
	a.Bic(TMP, TMP, Reg(object))
	a.Tst(TMP, a.newObjectBit())
	a.B(noUpdate, EQ)
}

func (a *Assembler) newObjectBit() Operand {
	return LogicalImm(uint64(a.layout.NewObjectAlignmentOffset), 64)
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
	if CanHoldOffset(offset-asm.HeapObjectTag, Offset, DoubleWord) {
		a.StoreIntoObject(object, FieldAddress(object, offset), value, canBeSmi)
		return
	}
	a.AddImmediate(TMP2, object, int64(offset-asm.HeapObjectTag))
	a.StoreIntoObject(object, Mem(TMP2, 0), value, canBeSmi)
}

// StoreIntoObjectNoBarrier stores value without a barrier.
func (a *Assembler) StoreIntoObjectNoBarrier(object Register, dest Address, value Register) {
	a.Str(value, dest)
}

// StoreObjectIntoObjectNoBarrier stores a constant without a barrier,
// loading it through TMP2.
func (a *Assembler) StoreObjectIntoObjectNoBarrier(object Register, dest Address, value asm.Object) {
	asm.Assert(object != TMP2 && dest.Base() != TMP2, "constant store through a tmp2 base")
	a.LoadObject(TMP2, value)
	a.Str(TMP2, dest)
}

// InitializeFieldNoBarrier stores into a freshly allocated object.
func (a *Assembler) InitializeFieldNoBarrier(object Register, dest Address, value Register) {
	a.Str(value, dest)
}

// EnterFrame pushes FP and LR, points FP at the saved FP and reserves
// frameSize bytes. The caller's FP ends up at [fp] and the return address
// at [fp+8].
func (a *Assembler) EnterFrame(frameSize int32) {
	if a.prologueOffset == -1 {
		a.prologueOffset = a.CodeSize()
	}
	a.PushPair(FP, LR)
	a.Mov(FP, SP)
	if frameSize > 0 {
		a.AddImmediate(SP, SP, -int64(frameSize))
	}
}

// LeaveFrame pops a frame set up by EnterFrame.
func (a *Assembler) LeaveFrame() {
	a.Mov(SP, FP)
	a.PopPair(FP, LR)
}

// EnterDartFrame sets up a frame holding the code's entry address at
// [fp-16] and the caller's PP at [fp-8], loads the pool pointer and
// reserves frameSize bytes.
func (a *Assembler) EnterDartFrame(frameSize int32) {
	asm.Assert(!a.poolAllowed, "EnterDartFrame with a live pool pointer")
	a.EnterFrame(0)
	a.Adr(TMP, int32(-a.CodeSize()))
	a.PushPair(TMP, PP)
	a.LoadPoolPointer()
	if frameSize > 0 {
		a.AddImmediate(SP, SP, -int64(frameSize))
	}
}

// LeaveDartFrame tears down an EnterDartFrame frame and restores the
// caller's PP.
func (a *Assembler) LeaveDartFrame() {
	a.poolAllowed = false
	a.Ldr(PP, Mem(FP, -WordSize))
	a.LeaveFrame()
}

// EnterStubFrame sets up a frame whose code slot is zero.
func (a *Assembler) EnterStubFrame() {
	a.EnterFrame(0)
	a.PushPair(ZR, PP)
	a.LoadPoolPointer()
}

// LeaveStubFrame tears down an EnterStubFrame frame.
func (a *Assembler) LeaveStubFrame() {
	a.poolAllowed = false
	a.Ldr(PP, Mem(FP, -WordSize))
	a.LeaveFrame()
}

var callRuntimeFrameRegs = VolatileCPURegs | Regs(PP)

func volatileVRegs() []VRegister {
	var out []VRegister
	for v := FirstVolatileVReg; v <= LastVolatileVReg; v++ {
		out = append(out, v)
	}
	for v := FirstHighVolatile; v <= LastHighVolatile; v++ {
		out = append(out, v)
	}
	return out
}

// callRuntimeFrameSize is the number of bytes EnterCallRuntimeFrame saves
// below FP.
func callRuntimeFrameSize() int64 {
	return int64(callRuntimeFrameRegs.Count()*WordSize + len(volatileVRegs())*8)
}

// EnterCallRuntimeFrame saves the caller-saved core registers, PP and the
// low double of each caller-saved V register, then reserves an aligned
// frameSpace for outgoing arguments.
func (a *Assembler) EnterCallRuntimeFrame(frameSpace int32) {
	a.EnterFrame(0)
	a.PushList(callRuntimeFrameRegs)
	vs := volatileVRegs()
	for i := len(vs) - 2; i >= 0; i -= 2 {
		a.Fstpd(vs[i], vs[i+1], MemMode(SP, -16, PairPreIndex))
	}
	a.ReserveAlignedFrameSpace(frameSpace)
}

// LeaveCallRuntimeFrame restores what EnterCallRuntimeFrame saved.
func (a *Assembler) LeaveCallRuntimeFrame() {
	a.AddImmediate(SP, FP, -callRuntimeFrameSize())
	vs := volatileVRegs()
	for i := 0; i < len(vs); i += 2 {
		a.Fldpd(vs[i], vs[i+1], MemMode(SP, 16, PairPostIndex))
	}
	a.PopList(callRuntimeFrameRegs)
	a.LeaveFrame()
}

// ReserveAlignedFrameSpace reserves frameSpace bytes and aligns SP for a
// native call.
func (a *Assembler) ReserveAlignedFrameSpace(frameSpace int32) {
	if frameSpace > 0 {
		a.AddImmediate(SP, SP, -int64(frameSpace))
	}
	if align := a.layout.ActivationFrameAlignment; align > 1 {
		a.And(SP, SP, LogicalImm(^uint64(align-1), 64))
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
	a.LoadImmediate(RuntimeEntryReg, int64(entry.Address))
	a.LoadImmediate(RuntimeArgCountReg, int64(argumentCount))
	a.BranchLink(a.stubs.CallToRuntime)
}

// LoadIsolate loads the current isolate from the thread register.
func (a *Assembler) LoadIsolate(d Register) {
	a.LoadFromOffset(DoubleWord, d, THR, int32(a.layout.ThreadIsolateOffset))
}

// LoadClassId loads the 16-bit class id from the header of object.
func (a *Assembler) LoadClassId(result, object Register) {
	a.Ldr(result, FieldAddress(object, int32(a.layout.ClassIDOffset())), UnsignedHalfword)
}

// LoadClassById loads the class with id classID from the isolate's class
// table.
func (a *Assembler) LoadClassById(result, classID Register) {
	asm.Assert(result != classID, "LoadClassById clobbers the class id")
	a.LoadIsolate(result)
	offset := a.layout.IsolateClassTableOffset + a.layout.ClassTableTableOffset
	a.LoadFromOffset(DoubleWord, result, result, int32(offset))
	a.Ldr(result, MemIndex(result, classID, UXTX, true))
}

// LoadClass loads the class of object.
func (a *Assembler) LoadClass(result, object, scratch Register) {
	asm.Assert(scratch != result, "LoadClass scratch overlaps result")
	a.LoadClassId(scratch, object)
	a.LoadClassById(result, scratch)
}

// CompareClassId compares the class id of object with classID.
func (a *Assembler) CompareClassId(object Register, classID int64, scratch Register) {
	a.LoadClassId(scratch, object)
	a.CompareImmediate(scratch, classID)
}

// Stop emits a trap carrying message. The message id sits in the word
// before the trap so a debugger can report it and resume after the trap.
func (a *Assembler) Stop(message string) {
	id := asm.RegisterStopMessage(message)
	if a.printStops {
		asm.Assert(a.stubs.PrintStopMessage != nil, "no PrintStopMessage stub")
		a.PushPair(R0, LR)
		a.LoadImmediate(R0, int64(id))
		a.BranchLink(a.stubs.PrintStopMessage)
		a.PopPair(R0, LR)
	}
	skip := asm.NewLabel()
	a.B(skip)
	a.Emit(id)
	a.Bind(skip)
	a.Hlt(StopMessageImm)
}

// Breakpoint emits the simulator breakpoint trap.
func (a *Assembler) Breakpoint() {
	a.Hlt(BreakpointImm)
}
