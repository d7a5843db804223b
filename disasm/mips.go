package disasm

import (
	"fmt"

	"github.com/sarchlab/jitsim/mips"
)

var specialNames = map[mips.SpecialFunction]string{
	mips.ADDU: "addu", mips.SUBU: "subu", mips.AND: "and", mips.OR: "or",
	mips.XOR: "xor", mips.NOR: "nor", mips.SLT: "slt", mips.SLTU: "sltu",
	mips.MOVZ: "movz", mips.MOVN: "movn",
	mips.SLLV: "sllv", mips.SRLV: "srlv", mips.SRAV: "srav",
	mips.MULT: "mult", mips.MULTU: "multu", mips.DIV: "div", mips.DIVU: "divu",
}

var immNames = map[mips.Opcode]string{
	mips.ADDIU: "addiu", mips.SLTI: "slti", mips.SLTIU: "sltiu",
	mips.ANDI: "andi", mips.ORI: "ori", mips.XORI: "xori",
}

var memNames = map[mips.Opcode]string{
	mips.LB: "lb", mips.LBU: "lbu", mips.LH: "lh", mips.LHU: "lhu", mips.LW: "lw",
	mips.SB: "sb", mips.SH: "sh", mips.SW: "sw", mips.LL: "ll", mips.SC: "sc",
}

var fpuMemNames = map[mips.Opcode]string{
	mips.LWC1: "lwc1", mips.SWC1: "swc1", mips.LDC1: "ldc1", mips.SDC1: "sdc1",
}

var fpuNames = map[mips.Cop1Function]string{
	mips.FADD: "add", mips.FSUB: "sub", mips.FMUL: "mul", mips.FDIV: "div",
	mips.FSQRT: "sqrt", mips.FABS: "abs", mips.FMOV: "mov", mips.FNEG: "neg",
	mips.TRUNCW: "trunc.w", mips.CVTS: "cvt.s", mips.CVTD: "cvt.d", mips.CVTW: "cvt.w",
}

var fmtNames = map[mips.Cop1Format]string{mips.FmtS: "s", mips.FmtD: "d", mips.FmtW: "w"}

// MIPS disassembles a MIPS32 little-endian word.
func MIPS(word uint32, pc uint64) string {
	i := mips.Instr(word)
	if i.IsNop() {
		return "nop"
	}
	text, ok := mipsText(i)
	if !ok {
		return unknown(word)
	}
	switch i.Opcode() {
	case mips.BEQ, mips.BNE, mips.BLEZ, mips.BGTZ, mips.REGIMM:
		return text + branchNote(pc, i)
	case mips.COP1:
		if i.Fmt() == mips.FmtBC {
			return text + branchNote(pc, i)
		}
	case mips.J, mips.JAL:
		return fmt.Sprintf("%s ; -> 0x%08x", text, i.JumpTarget(uint32(pc)))
	}
	return text
}

func branchNote(pc uint64, i mips.Instr) string {
	return fmt.Sprintf(" ; -> 0x%08x", uint32(int64(pc)+mips.InstrSize+int64(i.BranchOffset())))
}

func mipsText(i mips.Instr) (string, bool) {
	rs, rt, rd := i.Rs(), i.Rt(), i.Rd()
	switch op := i.Opcode(); op {
	case mips.SPECIAL:
		return mipsSpecial(i)
	case mips.SPECIAL2:
		switch i.SpecialFunction() {
		case mips.MUL:
			return fmt.Sprintf("mul %s, %s, %s", rd, rs, rt), true
		case mips.CLZ:
			return fmt.Sprintf("clz %s, %s", rd, rs), true
		case mips.CLO:
			return fmt.Sprintf("clo %s, %s", rd, rs), true
		}
	case mips.SPECIAL3:
		switch {
		case i.SpecialFunction() == mips.EXT:
			return fmt.Sprintf("ext %s, %s, %d, %d", rt, rs, i.Sa(), uint32(rd)+1), true
		case i.SpecialFunction() == mips.INS:
			return fmt.Sprintf("ins %s, %s, %d, %d", rt, rs, i.Sa(), uint32(rd)+1-i.Sa()), true
		case i.SpecialFunction() == mips.BSHFL && i.Sa() == mips.SEB:
			return fmt.Sprintf("seb %s, %s", rd, rt), true
		case i.SpecialFunction() == mips.BSHFL && i.Sa() == mips.SEH:
			return fmt.Sprintf("seh %s, %s", rd, rt), true
		}
	case mips.REGIMM:
		names := map[mips.RegImmRt]string{
			mips.BLTZ: "bltz", mips.BGEZ: "bgez", mips.BLTZAL: "bltzal", mips.BGEZAL: "bgezal",
		}
		name, ok := names[i.RegImmRt()]
		if !ok {
			return "", false
		}
		if name == "bgezal" && rs == mips.ZR {
			return fmt.Sprintf("bal %d", i.BranchOffset()), true
		}
		return fmt.Sprintf("%s %s, %d", name, rs, i.BranchOffset()), true
	case mips.J:
		return "j", true
	case mips.JAL:
		return "jal", true
	case mips.BEQ:
		if rs == mips.ZR && rt == mips.ZR {
			return fmt.Sprintf("b %d", i.BranchOffset()), true
		}
		return fmt.Sprintf("beq %s, %s, %d", rs, rt, i.BranchOffset()), true
	case mips.BNE:
		return fmt.Sprintf("bne %s, %s, %d", rs, rt, i.BranchOffset()), true
	case mips.BLEZ:
		return fmt.Sprintf("blez %s, %d", rs, i.BranchOffset()), true
	case mips.BGTZ:
		return fmt.Sprintf("bgtz %s, %d", rs, i.BranchOffset()), true
	case mips.LUI:
		return fmt.Sprintf("lui %s, 0x%x", rt, i.Imm16()), true
	case mips.COP1:
		return mipsCop1(i)
	default:
		if name, ok := immNames[op]; ok {
			if op == mips.ANDI || op == mips.ORI || op == mips.XORI {
				return fmt.Sprintf("%s %s, %s, 0x%x", name, rt, rs, i.Imm16()), true
			}
			return fmt.Sprintf("%s %s, %s, %d", name, rt, rs, i.SImm16()), true
		}
		if name, ok := memNames[op]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", name, rt, i.SImm16(), rs), true
		}
		if name, ok := fpuMemNames[op]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", name, i.Ft(), i.SImm16(), rs), true
		}
	}
	return "", false
}

func mipsSpecial(i mips.Instr) (string, bool) {
	rs, rt, rd := i.Rs(), i.Rt(), i.Rd()
	switch f := i.SpecialFunction(); f {
	case mips.SLL, mips.SRL, mips.SRA:
		name := map[mips.SpecialFunction]string{mips.SLL: "sll", mips.SRL: "srl", mips.SRA: "sra"}[f]
		return fmt.Sprintf("%s %s, %s, %d", name, rd, rt, i.Sa()), true
	case mips.JR:
		return fmt.Sprintf("jr %s", rs), true
	case mips.JALR:
		return fmt.Sprintf("jalr %s, %s", rd, rs), true
	case mips.BREAK:
		text := fmt.Sprintf("break 0x%x", i.BreakCode())
		if note := trapNote(uint64(i.BreakCode()), mips.RedirectionBreak, mips.BreakpointBreak, mips.StopMessageBreak); note != "" {
			text += " ; " + note
		}
		return text, true
	case mips.MFHI:
		return fmt.Sprintf("mfhi %s", rd), true
	case mips.MFLO:
		return fmt.Sprintf("mflo %s", rd), true
	case mips.MTHI:
		return fmt.Sprintf("mthi %s", rs), true
	case mips.MTLO:
		return fmt.Sprintf("mtlo %s", rs), true
	case mips.MULT, mips.MULTU, mips.DIV, mips.DIVU:
		return fmt.Sprintf("%s %s, %s", specialNames[f], rs, rt), true
	case mips.SLLV, mips.SRLV, mips.SRAV:
		return fmt.Sprintf("%s %s, %s, %s", specialNames[f], rd, rt, rs), true
	case mips.OR:
		if rt == mips.ZR {
			return fmt.Sprintf("move %s, %s", rd, rs), true
		}
	}
	name, ok := specialNames[i.SpecialFunction()]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s %s, %s, %s", name, rd, rs, rt), true
}

func mipsCop1(i mips.Instr) (string, bool) {
	switch i.Fmt() {
	case mips.FmtMF:
		return fmt.Sprintf("mfc1 %s, %s", i.Rt(), i.Fs()), true
	case mips.FmtMT:
		return fmt.Sprintf("mtc1 %s, %s", i.Rt(), i.Fs()), true
	case mips.FmtBC:
		name := "bc1f"
		if i.BranchOnTrue() {
			name = "bc1t"
		}
		return fmt.Sprintf("%s %d", name, i.BranchOffset()), true
	}
	suffix, ok := fmtNames[i.Fmt()]
	if !ok {
		return "", false
	}
	if i.IsFCompare() {
		return fmt.Sprintf("c.%s.%s %s, %s", i.FCompare(), suffix, i.Fs(), i.Ft()), true
	}
	name, ok := fpuNames[i.Cop1Function()]
	if !ok {
		return "", false
	}
	switch i.Cop1Function() {
	case mips.FADD, mips.FSUB, mips.FMUL, mips.FDIV:
		return fmt.Sprintf("%s.%s %s, %s, %s", name, suffix, i.Fd(), i.Fs(), i.Ft()), true
	default:
		return fmt.Sprintf("%s.%s %s, %s", name, suffix, i.Fd(), i.Fs()), true
	}
}
