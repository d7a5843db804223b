package arm64_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/asm"
	"github.com/sarchlab/jitsim/cpu"
)

func gnu(word uint32) string {
	b := []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
	inst, err := arm64asm.Decode(b)
	Expect(err).NotTo(HaveOccurred(), "word 0x%08x", word)
	return arm64asm.GNUSyntax(inst)
}

func mnemonic(word uint32) string {
	return strings.Fields(gnu(word))[0]
}

var _ = Describe("Assembler", func() {
	var a *arm64.Assembler

	BeforeEach(func() {
		a = arm64.New()
	})

	last := func() arm64.Instr {
		words := a.Words()
		return arm64.Instr(words[len(words)-1])
	}

	Context("data processing", func() {
		It("should encode arithmetic immediates", func() {
			a.Add(arm64.R1, arm64.R2, arm64.Imm(0x3f0))
			Expect(uint32(last())).To(Equal(uint32(0x910fc041)))
			Expect(mnemonic(uint32(last()))).To(Equal("add"))

			a.Sub(arm64.R3, arm64.R4, arm64.Imm(0x5000))
			i := last()
			Expect(i.Bit(22)).To(Equal(uint32(1)))
			Expect(i.Imm12()).To(Equal(uint32(5)))
			Expect(mnemonic(uint32(i))).To(Equal("sub"))
		})

		It("should switch to the extended form next to csp", func() {
			a.Add(arm64.CSP, arm64.CSP, arm64.Reg(arm64.R3))
			i := last()
			Expect(uint32(i) & 0x7f200000).To(Equal(uint32(arm64.AddSubExtendedBase)))
			Expect(i.ExtendType()).To(Equal(arm64.UXTX))
			Expect(gnu(uint32(i))).To(HavePrefix("add sp, sp, x3"))
		})

		It("should reject a shifted csp", func() {
			Expect(func() { arm64.Reg(arm64.CSP) }).To(PanicWith(BeAssignableToTypeOf(&asm.AssertionError{})))
			Expect(func() { a.Adds(arm64.CSP, arm64.R0, arm64.Reg(arm64.R1)) }).To(Panic())
		})

		DescribeTable("should decode with the expected mnemonic",
			func(emit func(a *arm64.Assembler), want string) {
				emit(a)
				Expect(mnemonic(uint32(last()))).To(Equal(want))
			},
			Entry("cmp", func(a *arm64.Assembler) { a.Cmp(arm64.R0, arm64.Reg(arm64.R1)) }, "cmp"),
			Entry("cmn", func(a *arm64.Assembler) { a.Cmn(arm64.R0, arm64.Imm(4)) }, "cmn"),
			Entry("neg", func(a *arm64.Assembler) { a.Neg(arm64.R0, arm64.R1) }, "neg"),
			Entry("adc", func(a *arm64.Assembler) { a.Adc(arm64.R0, arm64.R1, arm64.R2) }, "adc"),
			Entry("sbcs", func(a *arm64.Assembler) { a.Sbcs(arm64.R0, arm64.R1, arm64.R2) }, "sbcs"),
			Entry("and", func(a *arm64.Assembler) {
				a.And(arm64.R0, arm64.R1, arm64.LogicalImm(0xff, 64))
			}, "and"),
			Entry("orr shifted", func(a *arm64.Assembler) {
				a.Orr(arm64.R0, arm64.R1, arm64.Shifted(arm64.R2, arm64.LSL, 3))
			}, "orr"),
			Entry("bic", func(a *arm64.Assembler) { a.Bic(arm64.R0, arm64.R1, arm64.Reg(arm64.R2)) }, "bic"),
			Entry("eor", func(a *arm64.Assembler) { a.Eor(arm64.R0, arm64.R1, arm64.Reg(arm64.R2)) }, "eor"),
			Entry("tst", func(a *arm64.Assembler) { a.Tst(arm64.R0, arm64.LogicalImm(8, 64)) }, "tst"),
			Entry("mvn", func(a *arm64.Assembler) { a.Mvn(arm64.R0, arm64.R1) }, "mvn"),
			Entry("mov", func(a *arm64.Assembler) { a.Mov(arm64.R0, arm64.R1) }, "mov"),
			Entry("movk", func(a *arm64.Assembler) { a.Movk(arm64.R0, 0x1234, 2) }, "movk"),
			Entry("lslv", func(a *arm64.Assembler) { a.Lslv(arm64.R0, arm64.R1, arm64.R2) }, "lsl"),
			Entry("asrv", func(a *arm64.Assembler) { a.Asrv(arm64.R0, arm64.R1, arm64.R2) }, "asr"),
			Entry("lsl", func(a *arm64.Assembler) { a.Lsl(arm64.R0, arm64.R1, 4) }, "lsl"),
			Entry("lsr", func(a *arm64.Assembler) { a.Lsr(arm64.R0, arm64.R1, 4) }, "lsr"),
			Entry("asr", func(a *arm64.Assembler) { a.Asr(arm64.R0, arm64.R1, 1) }, "asr"),
			Entry("ubfx", func(a *arm64.Assembler) { a.Ubfx(arm64.R0, arm64.R1, 8, 4) }, "ubfx"),
			Entry("sxtw", func(a *arm64.Assembler) { a.Sxtw(arm64.R0, arm64.R1) }, "sxtw"),
			Entry("sdiv", func(a *arm64.Assembler) { a.Sdiv(arm64.R0, arm64.R1, arm64.R2) }, "sdiv"),
			Entry("udiv", func(a *arm64.Assembler) { a.Udiv(arm64.R0, arm64.R1, arm64.R2) }, "udiv"),
			Entry("mul", func(a *arm64.Assembler) { a.Mul(arm64.R0, arm64.R1, arm64.R2) }, "mul"),
			Entry("msub", func(a *arm64.Assembler) { a.Msub(arm64.R0, arm64.R1, arm64.R2, arm64.R3) }, "msub"),
			Entry("smulh", func(a *arm64.Assembler) { a.Smulh(arm64.R0, arm64.R1, arm64.R2) }, "smulh"),
			Entry("umulh", func(a *arm64.Assembler) { a.Umulh(arm64.R0, arm64.R1, arm64.R2) }, "umulh"),
			Entry("smull", func(a *arm64.Assembler) { a.Smull(arm64.R0, arm64.R1, arm64.R2) }, "smull"),
			Entry("clz", func(a *arm64.Assembler) { a.Clz(arm64.R0, arm64.R1) }, "clz"),
			Entry("csel", func(a *arm64.Assembler) { a.Csel(arm64.R0, arm64.R1, arm64.R2, arm64.LT) }, "csel"),
			Entry("cset", func(a *arm64.Assembler) { a.Cset(arm64.R0, arm64.EQ) }, "cset"),
			Entry("csetm", func(a *arm64.Assembler) { a.Csetm(arm64.R0, arm64.NE) }, "csetm"),
			Entry("csneg", func(a *arm64.Assembler) { a.Csneg(arm64.R0, arm64.R1, arm64.R2, arm64.GE) }, "csneg"),
			Entry("ccmp", func(a *arm64.Assembler) { a.Ccmp(arm64.R0, arm64.Imm(3), 4, arm64.EQ) }, "ccmp"),
			Entry("adr", func(a *arm64.Assembler) { a.Adr(arm64.R0, -64) }, "adr"),
		)

		It("should round-trip fields through the decoder view", func() {
			a.Madd(arm64.R1, arm64.R2, arm64.R3, arm64.R4)
			i := last()
			Expect(i.Rd()).To(Equal(uint32(1)))
			Expect(i.Rn()).To(Equal(uint32(2)))
			Expect(i.Rm()).To(Equal(uint32(3)))
			Expect(i.Ra()).To(Equal(uint32(4)))
			Expect(i.SF()).To(BeTrue())

			a.Csinc(arm64.R5, arm64.R6, arm64.R7, arm64.HI)
			Expect(last().SelectCondition()).To(Equal(arm64.HI))

			a.Adr(arm64.R0, -12)
			off, ok := last().PCRelativeOffset()
			Expect(ok).To(BeTrue())
			Expect(off).To(Equal(int64(-12)))
		})

		It("should encode move wide exactly", func() {
			a.Movz(arm64.R0, 0x1234, 1)
			Expect(uint32(last())).To(Equal(uint32(0xd2a24680)))
			Expect(last().Hw()).To(Equal(uint32(1)))
			Expect(last().Imm16()).To(Equal(uint32(0x1234)))
		})
	})

	Context("loads and stores", func() {
		It("should scale unsigned offsets", func() {
			a.Ldr(arm64.R3, arm64.Mem(arm64.R4, 16))
			Expect(uint32(last())).To(Equal(uint32(0xf9400883)))
			Expect(gnu(uint32(last()))).To(Equal("ldr x3, [x4,#16]"))
		})

		It("should fall back to unscaled offsets", func() {
			a.Ldr(arm64.R0, arm64.Mem(arm64.R1, -8))
			i := last()
			Expect(i.Imm9()).To(Equal(int64(-8)))
			Expect(mnemonic(uint32(i))).To(Equal("ldur"))

			a.Str(arm64.R0, arm64.Mem(arm64.R1, 7), arm64.Word)
			Expect(mnemonic(uint32(last()))).To(Equal("stur"))
		})

		DescribeTable("should pick the load variant for each size",
			func(size arm64.OperandSize, want string) {
				a.Ldr(arm64.R0, arm64.Mem(arm64.R1, 0), size)
				Expect(mnemonic(uint32(last()))).To(Equal(want))
			},
			Entry("signed byte", arm64.Byte, "ldrsb"),
			Entry("unsigned byte", arm64.UnsignedByte, "ldrb"),
			Entry("signed halfword", arm64.Halfword, "ldrsh"),
			Entry("unsigned halfword", arm64.UnsignedHalfword, "ldrh"),
			Entry("signed word", arm64.Word, "ldrsw"),
			Entry("unsigned word", arm64.UnsignedWord, "ldr"),
			Entry("double word", arm64.DoubleWord, "ldr"),
		)

		It("should encode index modes", func() {
			a.Str(arm64.R0, arm64.MemMode(arm64.SP, -8, arm64.PreIndex))
			Expect(last().Bits(10, 2)).To(Equal(uint32(3)))
			Expect(gnu(uint32(last()))).To(HaveSuffix("]!"))
			a.Ldr(arm64.R0, arm64.MemMode(arm64.SP, 8, arm64.PostIndex))
			Expect(last().Bits(10, 2)).To(Equal(uint32(1)))
			Expect(func() { a.Ldr(arm64.SP, arm64.MemMode(arm64.SP, 8, arm64.PostIndex)) }).To(Panic())
		})

		It("should encode register offsets", func() {
			a.Ldr(arm64.R0, arm64.MemIndex(arm64.R1, arm64.R2, arm64.UXTX, true))
			i := last()
			Expect(i.Rm()).To(Equal(uint32(2)))
			Expect(i.Bit(12)).To(Equal(uint32(1)))
			Expect(mnemonic(uint32(i))).To(Equal("ldr"))
		})

		It("should encode pairs", func() {
			a.Stp(arm64.FP, arm64.LR, arm64.MemMode(arm64.SP, -16, arm64.PairPreIndex))
			Expect(uint32(last())).To(Equal(uint32(0xa9bf79fd)))
			Expect(last().Imm7()).To(Equal(int64(-2)))
			a.Ldp(arm64.FP, arm64.LR, arm64.MemMode(arm64.SP, 16, arm64.PairPostIndex))
			Expect(mnemonic(uint32(last()))).To(Equal("ldp"))
			Expect(func() { a.Ldp(arm64.R0, arm64.R0, arm64.MemMode(arm64.R1, 0, arm64.PairOffset)) }).To(Panic())
			Expect(func() { a.Stp(arm64.R0, arm64.R1, arm64.MemMode(arm64.R1, 3, arm64.PairOffset)) }).To(Panic())
		})

		It("should encode literal loads", func() {
			a.Ldr(arm64.R2, arm64.PCRelative(-32), arm64.DoubleWord)
			i := last()
			Expect(i.IsLoadLiteral()).To(BeTrue())
			Expect(i.Imm19Offset()).To(Equal(int64(-32)))
			Expect(mnemonic(uint32(i))).To(Equal("ldr"))
		})

		It("should encode exclusive access", func() {
			a.Ldxr(arm64.R0, arm64.R1)
			Expect(mnemonic(uint32(last()))).To(Equal("ldxr"))
			a.Stxr(arm64.R2, arm64.R0, arm64.R1)
			i := last()
			Expect(i.Rs()).To(Equal(uint32(2)))
			Expect(mnemonic(uint32(i))).To(Equal("stxr"))
			Expect(func() { a.Stxr(arm64.R0, arm64.R0, arm64.R1) }).To(Panic())
			a.Clrex()
			Expect(mnemonic(uint32(last()))).To(Equal("clrex"))
		})
	})

	Context("labels", func() {
		It("should patch every forward reference when bound", func() {
			l := asm.NewLabel()
			var sites []int
			emitters := []func(){
				func() { a.B(l) },
				func() { a.B(l, arm64.NE) },
				func() { a.Cbz(l, arm64.R3) },
				func() { a.Cbnz(l, arm64.R4) },
				func() { a.Tbz(l, arm64.R5, 40) },
				func() { a.Tbnz(l, arm64.R6, 3) },
				func() { a.Bl(l) },
			}
			for n, emit := range emitters {
				sites = append(sites, a.CodeSize())
				emit()
				for k := 0; k < n; k++ {
					a.Nop()
				}
			}
			target := a.CodeSize()
			a.Bind(l)
			Expect(l.IsBound()).To(BeTrue())

			words := a.Words()
			for _, pos := range sites {
				off, ok := arm64.Instr(words[pos/4]).PCRelativeOffset()
				Expect(ok).To(BeTrue())
				Expect(int(off)).To(Equal(target - pos))
			}
			Expect(arm64.Instr(words[sites[4]/4]).TestBit()).To(Equal(uint32(40)))
			Expect(arm64.Instr(words[sites[1]/4]).BranchCondition()).To(Equal(arm64.NE))
		})

		It("should encode backward branches immediately", func() {
			l := asm.NewLabel()
			a.Nop()
			a.Bind(l)
			a.Nop()
			a.B(l, arm64.EQ)
			off, _ := last().PCRelativeOffset()
			Expect(off).To(Equal(int64(-4)))
			Expect(gnu(uint32(last()))).To(HavePrefix("b.eq"))
		})

		It("should refuse to finalize with unresolved branches", func() {
			l := asm.NewLabel()
			a.Cbz(l, arm64.R0)
			Expect(func() { _ = a.Buffer().Finalize(make([]byte, 16)) }).To(Panic())
		})

		It("should encode register branches", func() {
			a.Ret()
			Expect(uint32(last())).To(Equal(uint32(arm64.RetInstr)))
			a.Blr(arm64.TMP)
			Expect(mnemonic(uint32(last()))).To(Equal("blr"))
			a.Br(arm64.R1)
			Expect(mnemonic(uint32(last()))).To(Equal("br"))
		})
	})

	Context("traps", func() {
		It("should encode the simulator traps", func() {
			a.Svc(arm64.RedirectionSVC)
			Expect(uint32(last())).To(Equal(uint32(0xd4194221)))
			Expect(last().IsSVC()).To(BeTrue())
			a.Breakpoint()
			Expect(uint32(last())).To(Equal(uint32(0xd45bd600)))
			Expect(last().IsHLT()).To(BeTrue())
			a.Brk(0)
			Expect(last().IsBRK()).To(BeTrue())
			a.Nop()
			Expect(mnemonic(uint32(last()))).To(Equal("nop"))
		})

		It("should place the stop message id before the trap", func() {
			a.Stop("unreachable")
			words := a.Words()
			Expect(words).To(HaveLen(3))
			off, _ := arm64.Instr(words[0]).PCRelativeOffset()
			Expect(off).To(Equal(int64(8)))
			msg, ok := asm.StopMessage(words[1])
			Expect(ok).To(BeTrue())
			Expect(msg).To(Equal("unreachable"))
			Expect(arm64.Instr(words[2]).IsHLT()).To(BeTrue())
			Expect(arm64.Instr(words[2]).Imm16()).To(Equal(uint32(arm64.StopMessageImm)))
		})
	})

	Context("floating point and SIMD", func() {
		DescribeTable("should decode with the expected mnemonic",
			func(emit func(a *arm64.Assembler), want string) {
				emit(a)
				Expect(mnemonic(uint32(last()))).To(Equal(want))
			},
			Entry("fadd", func(a *arm64.Assembler) { a.Faddd(arm64.V0, arm64.V1, arm64.V2) }, "fadd"),
			Entry("fsub", func(a *arm64.Assembler) { a.Fsubs(arm64.V0, arm64.V1, arm64.V2) }, "fsub"),
			Entry("fmul", func(a *arm64.Assembler) { a.Fmuld(arm64.V0, arm64.V1, arm64.V2) }, "fmul"),
			Entry("fdiv", func(a *arm64.Assembler) { a.Fdivd(arm64.V0, arm64.V1, arm64.V2) }, "fdiv"),
			Entry("fmax", func(a *arm64.Assembler) { a.Fmaxd(arm64.V0, arm64.V1, arm64.V2) }, "fmax"),
			Entry("fmadd", func(a *arm64.Assembler) { a.Fmaddd(arm64.V0, arm64.V1, arm64.V2, arm64.V3) }, "fmadd"),
			Entry("fsqrt", func(a *arm64.Assembler) { a.Fsqrtd(arm64.V0, arm64.V1) }, "fsqrt"),
			Entry("fneg", func(a *arm64.Assembler) { a.Fnegd(arm64.V0, arm64.V1) }, "fneg"),
			Entry("fcvt", func(a *arm64.Assembler) { a.Fcvtsd(arm64.V0, arm64.V1) }, "fcvt"),
			Entry("frintz", func(a *arm64.Assembler) { a.Frintzd(arm64.V0, arm64.V1) }, "frintz"),
			Entry("fcmp", func(a *arm64.Assembler) { a.Fcmpd(arm64.V0, arm64.V1) }, "fcmp"),
			Entry("fcmp zero", func(a *arm64.Assembler) { a.Fcmpdz(arm64.V0) }, "fcmp"),
			Entry("fmov to core", func(a *arm64.Assembler) { a.Fmovrd(arm64.R0, arm64.V1) }, "fmov"),
			Entry("fmov from core", func(a *arm64.Assembler) { a.Fmovdr(arm64.V0, arm64.R1) }, "fmov"),
			Entry("scvtf", func(a *arm64.Assembler) { a.Scvtfd(arm64.V0, arm64.R1) }, "scvtf"),
			Entry("ucvtf", func(a *arm64.Assembler) { a.Ucvtfd(arm64.V0, arm64.R1) }, "ucvtf"),
			Entry("fcvtzs", func(a *arm64.Assembler) { a.Fcvtzsd(arm64.R0, arm64.V1) }, "fcvtzs"),
			Entry("fcvtms", func(a *arm64.Assembler) { a.Fcvtmsd(arm64.R0, arm64.V1) }, "fcvtms"),
			Entry("fldr", func(a *arm64.Assembler) { a.Fldr(arm64.V0, arm64.Mem(arm64.R1, 8), arm64.DWord) }, "ldr"),
			Entry("fstr q", func(a *arm64.Assembler) { a.Fstr(arm64.V0, arm64.Mem(arm64.R1, 32), arm64.QWord) }, "str"),
			Entry("fstp", func(a *arm64.Assembler) {
				a.Fstpd(arm64.V0, arm64.V1, arm64.MemMode(arm64.SP, -16, arm64.PairPreIndex))
			}, "stp"),
			Entry("vadd", func(a *arm64.Assembler) { a.Vadd(arm64.Vec4S, arm64.V0, arm64.V1, arm64.V2) }, "add"),
			Entry("vsub", func(a *arm64.Assembler) { a.Vsub(arm64.Vec2D, arm64.V0, arm64.V1, arm64.V2) }, "sub"),
			Entry("vfmul", func(a *arm64.Assembler) { a.Vfmul(arm64.Vec4S, arm64.V0, arm64.V1, arm64.V2) }, "fmul"),
			Entry("vfdiv", func(a *arm64.Assembler) { a.Vfdiv(arm64.Vec2D, arm64.V0, arm64.V1, arm64.V2) }, "fdiv"),
			Entry("veor", func(a *arm64.Assembler) { a.Veor(arm64.V0, arm64.V1, arm64.V2) }, "eor"),
			Entry("vrecpe", func(a *arm64.Assembler) { a.Vrecpe(arm64.Vec4S, arm64.V0, arm64.V1) }, "frecpe"),
			Entry("vrsqrts", func(a *arm64.Assembler) { a.Vrsqrts(arm64.Vec4S, arm64.V0, arm64.V1, arm64.V2) }, "frsqrts"),
			Entry("vdup", func(a *arm64.Assembler) { a.Vdup(arm64.Vec4S, arm64.V0, arm64.V1, 2) }, "dup"),
			Entry("vdupr", func(a *arm64.Assembler) { a.Vdupr(arm64.Vec2D, arm64.V0, arm64.R1) }, "dup"),
		)

		It("should accept either spelling of lane moves", func() {
			a.Vnot(arm64.V0, arm64.V1)
			Expect(mnemonic(uint32(last()))).To(BeElementOf("mvn", "not"))
			a.Vmovrd(arm64.R0, arm64.V1, 1)
			Expect(mnemonic(uint32(last()))).To(BeElementOf("mov", "umov"))
			a.Vmovrs(arm64.R0, arm64.V1, 3)
			Expect(mnemonic(uint32(last()))).To(BeElementOf("mov", "umov"))
		})

		It("should round-trip every 8-bit FP immediate", func() {
			for imm8 := uint32(0); imm8 < 256; imm8++ {
				d := arm64.ExpandFPImmDouble(imm8)
				got, ok := arm64.FPImm8Double(d)
				Expect(ok).To(BeTrue(), "imm8 0x%02x", imm8)
				Expect(got).To(Equal(imm8))

				s := arm64.ExpandFPImmSingle(imm8)
				Expect(float64(s)).To(Equal(d))
				got, ok = arm64.FPImm8Single(s)
				Expect(ok).To(BeTrue())
				Expect(got).To(Equal(imm8))
			}
		})

		It("should only emit fmov for encodable immediates", func() {
			Expect(a.FmovdImm(arm64.V0, 1.0)).To(BeTrue())
			Expect(last().FPImm8()).To(Equal(uint32(0x70)))
			Expect(a.FmovdImm(arm64.V0, 0.1)).To(BeFalse())
			Expect(a.FmovdImm(arm64.V0, 0)).To(BeFalse())
			Expect(a.CodeSize()).To(Equal(arm64.InstrSize))
		})

		It("should gate SIMD on the cpu feature", func() {
			f := cpu.Simulated()
			f.NEON = false
			plain := arm64.New(arm64.WithFeatures(f))
			Expect(func() { plain.Vand(arm64.V0, arm64.V1, arm64.V2) }).To(Panic())
			plain.Faddd(arm64.V0, arm64.V1, arm64.V2)
		})
	})
})
