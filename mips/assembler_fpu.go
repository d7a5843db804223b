package mips

// Double-precision arithmetic. D registers are encoded by their even F
// register.

func (a *Assembler) emitD(ft, fs, fd DRegister, fn Cop1Function) {
	checkDReg(ft)
	checkDReg(fs)
	checkDReg(fd)
	a.emitFpu(FmtD, ft.Low(), fs.Low(), fd.Low(), fn)
}

// AddD emits dd = ds + dt.
func (a *Assembler) AddD(dd, ds, dt DRegister) { a.emitD(dt, ds, dd, FADD) }

// SubD emits dd = ds - dt.
func (a *Assembler) SubD(dd, ds, dt DRegister) { a.emitD(dt, ds, dd, FSUB) }

// MulD emits dd = ds * dt.
func (a *Assembler) MulD(dd, ds, dt DRegister) { a.emitD(dt, ds, dd, FMUL) }

// DivD emits dd = ds / dt.
func (a *Assembler) DivD(dd, ds, dt DRegister) { a.emitD(dt, ds, dd, FDIV) }

// SqrtD emits dd = sqrt(ds).
func (a *Assembler) SqrtD(dd, ds DRegister) { a.emitD(D0, ds, dd, FSQRT) }

// AbsD emits dd = |ds|.
func (a *Assembler) AbsD(dd, ds DRegister) { a.emitD(D0, ds, dd, FABS) }

// NegD emits dd = -ds.
func (a *Assembler) NegD(dd, ds DRegister) { a.emitD(D0, ds, dd, FNEG) }

// MovD copies ds to dd.
func (a *Assembler) MovD(dd, ds DRegister) { a.emitD(D0, ds, dd, FMOV) }

// Single-precision arithmetic.

// AddS emits fd = fs + ft.
func (a *Assembler) AddS(fd, fs, ft FRegister) { a.emitFpu(FmtS, ft, fs, fd, FADD) }

// SubS emits fd = fs - ft.
func (a *Assembler) SubS(fd, fs, ft FRegister) { a.emitFpu(FmtS, ft, fs, fd, FSUB) }

// MulS emits fd = fs * ft.
func (a *Assembler) MulS(fd, fs, ft FRegister) { a.emitFpu(FmtS, ft, fs, fd, FMUL) }

// DivS emits fd = fs / ft.
func (a *Assembler) DivS(fd, fs, ft FRegister) { a.emitFpu(FmtS, ft, fs, fd, FDIV) }

// SqrtS emits fd = sqrt(fs).
func (a *Assembler) SqrtS(fd, fs FRegister) { a.emitFpu(FmtS, F0, fs, fd, FSQRT) }

// AbsS emits fd = |fs|.
func (a *Assembler) AbsS(fd, fs FRegister) { a.emitFpu(FmtS, F0, fs, fd, FABS) }

// NegS emits fd = -fs.
func (a *Assembler) NegS(fd, fs FRegister) { a.emitFpu(FmtS, F0, fs, fd, FNEG) }

// MovS copies fs to fd.
func (a *Assembler) MovS(fd, fs FRegister) { a.emitFpu(FmtS, F0, fs, fd, FMOV) }

// CompareD sets the FPU condition bit to the result of cond on ds, dt.
func (a *Assembler) CompareD(cond FCompare, ds, dt DRegister) {
	a.emitD(dt, ds, D0, CompareBase+Cop1Function(cond))
}

// CeqD sets the condition bit when ds == dt.
func (a *Assembler) CeqD(ds, dt DRegister) { a.CompareD(CondEQ, ds, dt) }

// CultD sets the condition bit when ds < dt or either is NaN.
func (a *Assembler) CultD(ds, dt DRegister) { a.CompareD(CondULT, ds, dt) }

// ColtD sets the condition bit when ds < dt.
func (a *Assembler) ColtD(ds, dt DRegister) { a.CompareD(CondOLT, ds, dt) }

// ColeD sets the condition bit when ds <= dt.
func (a *Assembler) ColeD(ds, dt DRegister) { a.CompareD(CondOLE, ds, dt) }

// CuleD sets the condition bit when ds <= dt or either is NaN.
func (a *Assembler) CuleD(ds, dt DRegister) { a.CompareD(CondULE, ds, dt) }

// CunD sets the condition bit when either operand is NaN.
func (a *Assembler) CunD(ds, dt DRegister) { a.CompareD(CondUN, ds, dt) }

func (a *Assembler) emitFpuLoadStore(op Opcode, ft FRegister, ad Address) {
	checkFReg(ft)
	a.Emit(OpcodeField.Encode(uint32(op)) | FtField.Encode(uint32(ft)) | ad.encoding())
}

// Lwc1 loads a word into ft.
func (a *Assembler) Lwc1(ft FRegister, ad Address) { a.emitFpuLoadStore(LWC1, ft, ad) }

// Swc1 stores ft.
func (a *Assembler) Swc1(ft FRegister, ad Address) { a.emitFpuLoadStore(SWC1, ft, ad) }

// Ldc1 loads a double into dt.
func (a *Assembler) Ldc1(dt DRegister, ad Address) {
	checkDReg(dt)
	a.emitFpuLoadStore(LDC1, dt.Low(), ad)
}

// Sdc1 stores dt.
func (a *Assembler) Sdc1(dt DRegister, ad Address) {
	checkDReg(dt)
	a.emitFpuLoadStore(SDC1, dt.Low(), ad)
}

func (a *Assembler) emitMove(f Cop1Format, rt Register, fs FRegister) {
	checkReg(rt)
	checkFReg(fs)
	a.Emit(OpcodeField.Encode(uint32(COP1)) |
		FmtField.Encode(uint32(f)) |
		RtField.Encode(uint32(rt)) |
		FsField.Encode(uint32(fs)))
}

// Mtc1 copies rt into fs.
func (a *Assembler) Mtc1(rt Register, fs FRegister) { a.emitMove(FmtMT, rt, fs) }

// Mfc1 copies fs into rt.
func (a *Assembler) Mfc1(rt Register, fs FRegister) { a.emitMove(FmtMF, rt, fs) }

// CvtDW converts the integer word in fs to a double.
func (a *Assembler) CvtDW(dd DRegister, fs FRegister) {
	checkDReg(dd)
	a.emitFpu(FmtW, F0, fs, dd.Low(), CVTD)
}

// CvtDS widens the single in fs.
func (a *Assembler) CvtDS(dd DRegister, fs FRegister) {
	checkDReg(dd)
	a.emitFpu(FmtS, F0, fs, dd.Low(), CVTD)
}

// CvtSD rounds ds to single.
func (a *Assembler) CvtSD(fd FRegister, ds DRegister) {
	checkDReg(ds)
	a.emitFpu(FmtD, F0, ds.Low(), fd, CVTS)
}

// TruncWD converts ds to an integer word rounding toward zero.
func (a *Assembler) TruncWD(fd FRegister, ds DRegister) {
	checkDReg(ds)
	a.emitFpu(FmtD, F0, ds.Low(), fd, TRUNCW)
}
