package arm64sim

import (
	"github.com/sarchlab/jitsim/arm64"
	"github.com/sarchlab/jitsim/sim"
)

func (s *Simulator) read(addr uint64, n int) (uint64, error) {
	switch n {
	case 1:
		v, err := s.mem.Read8(addr)
		return uint64(v), err
	case 2:
		v, err := s.mem.Read16(addr)
		return uint64(v), err
	case 4:
		v, err := s.mem.Read32(addr)
		return uint64(v), err
	default:
		return s.mem.Read64(addr)
	}
}

func (s *Simulator) write(addr uint64, n int, v uint64) error {
	switch n {
	case 1:
		return s.mem.Write8(addr, uint8(v))
	case 2:
		return s.mem.Write16(addr, uint16(v))
	case 4:
		return s.mem.Write32(addr, uint32(v))
	default:
		return s.mem.Write64(addr, v)
	}
}

func signExtend(v uint64, n int) uint64 {
	shift := 64 - 8*uint(n)
	return uint64(int64(v<<shift) >> shift)
}

func (s *Simulator) checkAligned(addr uint64, n int, always bool) error {
	if (always || s.config.StrictAlignment) && addr%uint64(n) != 0 {
		return sim.Unaligned(s.pc, addr, n)
	}
	return nil
}

// loadVector reads an n-byte FP/SIMD value into vt, zeroing the rest.
func (s *Simulator) loadVector(t arm64.VRegister, addr uint64, n int) error {
	if n == 16 {
		lo, err := s.mem.Read64(addr)
		if err != nil {
			return err
		}
		hi, err := s.mem.Read64(addr + 8)
		if err != nil {
			return err
		}
		s.regs.SetQ(t, [2]uint64{lo, hi})
		return nil
	}
	v, err := s.read(addr, n)
	if err != nil {
		return err
	}
	s.regs.SetQ(t, [2]uint64{v, 0})
	return nil
}

func (s *Simulator) storeVector(t arm64.VRegister, addr uint64, n int) error {
	q := s.regs.Q(t)
	if n == 16 {
		if err := s.mem.Write64(addr, q[0]); err != nil {
			return err
		}
		return s.mem.Write64(addr+8, q[1])
	}
	return s.write(addr, n, q[0])
}

// transfer is one register's worth of a load or store.
type transfer struct {
	load   bool
	vector bool
	n      int
	signed bool
	w32    bool
}

// decodeTransfer reads size, V and opc of a single-register access.
func decodeTransfer(i arm64.Instr) (transfer, bool) {
	size, opc := i.Size(), i.Opc()
	if i.IsVector() {
		switch {
		case opc < 2:
			return transfer{load: opc == 1, vector: true, n: 1 << size}, true
		case size == 0:
			return transfer{load: opc == 3, vector: true, n: 16}, true
		default:
			return transfer{}, false
		}
	}
	t := transfer{n: 1 << size, load: opc != 0}
	switch {
	case opc == 2 && size == 3, opc == 3 && size >= 2:
		return transfer{}, false
	case opc == 2:
		t.signed = true
	case opc == 3:
		t.signed, t.w32 = true, true
	}
	return t, true
}

func (s *Simulator) executeLoadStore(i arm64.Instr) error {
	t, ok := decodeTransfer(i)
	if !ok {
		if i.Size() == 3 && i.Opc() == 2 && !i.IsVector() {
			// prfm
			return nil
		}
		return sim.Unknown(s.pc, uint32(i), "load/store size %d opc %d", i.Size(), i.Opc())
	}

	base := s.regs.X(i.Rn(), true)
	addr := base
	writeBack := false
	switch {
	case i.Bit(24) == 1:
		addr = base + uint64(i.Imm12())*uint64(t.n)
	case i.Bit(21) == 1:
		scale := uint(0)
		if i.Bit(12) == 1 {
			scale = uint(trailingLog2(t.n))
		}
		addr = base + extendValue(s.regs.X(i.Rm(), false), i.ExtendType(), scale)
	default:
		switch i.Bits(10, 2) {
		case 0:
			addr = base + uint64(i.Imm9())
		case 1:
			writeBack = true
		case 3:
			addr = base + uint64(i.Imm9())
			writeBack = true
		}
	}

	if t.vector {
		if err := s.checkAligned(addr, t.n, false); err != nil {
			return err
		}
		var err error
		if t.load {
			err = s.loadVector(arm64.VRegister(i.Rt()), addr, t.n)
		} else {
			err = s.storeVector(arm64.VRegister(i.Rt()), addr, t.n)
		}
		if err != nil {
			return err
		}
	} else if err := s.transferGPR(t, i.Rt(), addr); err != nil {
		return err
	}

	if writeBack {
		s.regs.SetX(i.Rn(), base+uint64(i.Imm9()), true)
	}
	return nil
}

func (s *Simulator) transferGPR(t transfer, r uint32, addr uint64) error {
	if !t.load {
		return s.write(addr, t.n, s.regs.X(r, false))
	}
	v, err := s.read(addr, t.n)
	if err != nil {
		return err
	}
	if t.signed {
		v = signExtend(v, t.n)
		if t.w32 {
			v = uint64(uint32(v))
		}
	}
	s.regs.SetX(r, v, false)
	return nil
}

func trailingLog2(n int) int {
	k := 0
	for n > 1 {
		n >>= 1
		k++
	}
	return k
}

func (s *Simulator) executeLoadLiteral(i arm64.Instr) error {
	addr := uint64(int64(s.pc) + i.Imm19Offset())
	opc := i.Bits(30, 2)
	if i.IsVector() {
		if opc == 3 {
			return sim.Unknown(s.pc, uint32(i), "literal vector opc 3")
		}
		return s.loadVector(arm64.VRegister(i.Rt()), addr, 4<<opc)
	}
	switch opc {
	case 0:
		return s.transferGPR(transfer{load: true, n: 4}, i.Rt(), addr)
	case 1:
		return s.transferGPR(transfer{load: true, n: 8}, i.Rt(), addr)
	case 2:
		return s.transferGPR(transfer{load: true, n: 4, signed: true}, i.Rt(), addr)
	default:
		return nil
	}
}

func (s *Simulator) executeLoadStorePair(i arm64.Instr) error {
	opc := i.Bits(30, 2)
	load := i.Bit(22) == 1
	var t transfer
	switch {
	case i.IsVector() && opc < 3:
		t = transfer{load: load, vector: true, n: 4 << opc}
	case !i.IsVector() && opc == 0:
		t = transfer{load: load, n: 4}
	case !i.IsVector() && opc == 1 && load:
		t = transfer{load: true, n: 4, signed: true}
	case !i.IsVector() && opc == 2:
		t = transfer{load: load, n: 8}
	default:
		return sim.Unknown(s.pc, uint32(i), "pair opc %d", opc)
	}

	base := s.regs.X(i.Rn(), true)
	off := uint64(i.Imm7() * int64(t.n))
	addr := base
	mode := i.Bits(23, 2)
	if mode != 1 {
		addr = base + off
	}
	if err := s.checkAligned(addr, t.n, false); err != nil {
		return err
	}
	if load && !t.vector && i.Rt() == i.Rt2() {
		return sim.Unknown(s.pc, uint32(i), "ldp with rt == rt2")
	}

	for k, r := range []uint32{i.Rt(), i.Rt2()} {
		a := addr + uint64(k*t.n)
		var err error
		switch {
		case t.vector && load:
			err = s.loadVector(arm64.VRegister(r), a, t.n)
		case t.vector:
			err = s.storeVector(arm64.VRegister(r), a, t.n)
		default:
			err = s.transferGPR(t, r, a)
		}
		if err != nil {
			return err
		}
	}

	if mode != 2 {
		s.regs.SetX(i.Rn(), base+off, true)
	}
	return nil
}

// executeExclusive runs ldxr and stxr. The reservation snapshots the
// loaded value; a store succeeds only while memory still holds it and no
// other context stored exclusively to the address in between.
func (s *Simulator) executeExclusive(i arm64.Instr) error {
	n := 1 << i.Size()
	addr := s.regs.X(i.Rn(), true)
	if err := s.checkAligned(addr, n, true); err != nil {
		return err
	}
	if i.Bit(22) == 1 {
		v, err := s.read(addr, n)
		if err != nil {
			return err
		}
		s.exclusive.Load(addr, n, v)
		s.regs.SetX(i.Rt(), v, false)
		return nil
	}

	current, err := s.read(addr, n)
	if err != nil {
		return err
	}
	if !s.exclusive.Store(addr, n, current) {
		s.regs.SetX(i.Rs(), 1, false)
		return nil
	}
	if err := s.write(addr, n, s.regs.X(i.Rt(), false)); err != nil {
		return err
	}
	s.regs.SetX(i.Rs(), 0, false)
	return nil
}
