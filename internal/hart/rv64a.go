// Copyright © 2026 the rv64emu authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// RV64A atomics: LR/SC and the AMO family, grounded on
// original_source/src/instructions/extensions/a.rs, dispatched to the MMU's
// reservation set and host-atomic AtomicRMW primitives. The ordering handed
// to those primitives is derived from the rl bit alone (see orderingFor).
package hart

import (
	"rv64emu/internal/bus"
	"rv64emu/internal/decode"
	"rv64emu/internal/trap"
)

func execAMO(c decode.Core, w uint32, _ uint64) trap.Trap {
	f5 := (w >> 27) & 0x1F
	width := funct3(w)
	addr := c.X(rs1(w))
	_, rl := aqrl(w)

	if width == 0b010 {
		if addr&0x3 != 0 {
			return trap.NewException(trap.StoreAMOAddressMisaligned, addr)
		}
		return execAMO32(c, w, f5, addr, rl)
	}
	if addr&0x7 != 0 {
		return trap.NewException(trap.StoreAMOAddressMisaligned, addr)
	}
	return execAMO64(c, w, f5, addr, rl)
}

// isAMOOpcode reports whether f5 is one of the defined read-modify-write AMO
// encodings (LR/SC are dispatched separately and never reach amoOp32/64).
func isAMOOpcode(f5 uint32) bool {
	switch f5 {
	case 0b00001, 0b00000, 0b00100, 0b01100, 0b01000, 0b10000, 0b10100, 0b11000, 0b11100:
		return true
	default:
		return false
	}
}

func execAMO32(c decode.Core, w uint32, f5 uint32, addr uint64, rl bool) trap.Trap {
	m := c.MMU()
	switch f5 {
	case 0b00010: // LR.W
		pa, t := m.TranslateForReservation(addr, c.Mode(), c.CSR(), false)
		if !t.IsNone() {
			return t
		}
		v, t := m.Read32(addr, c.Mode(), c.CSR())
		if !t.IsNone() {
			return t
		}
		m.Lock(pa)
		c.SetX(rd(w), uint64(int64(int32(v))))
		return trap.None
	case 0b00011: // SC.W
		pa, t := m.TranslateForReservation(addr, c.Mode(), c.CSR(), true)
		if !t.IsNone() {
			return t
		}
		ok := m.Unlock(pa)
		if !ok {
			c.SetX(rd(w), 1)
			return trap.None
		}
		t = m.Write32(addr, c.Mode(), c.CSR(), uint32(c.X(rs2(w))))
		if !t.IsNone() {
			return t
		}
		c.SetX(rd(w), 0)
		return trap.None
	}

	if !isAMOOpcode(f5) {
		return trap.NewException(trap.IllegalInstruction, uint64(w))
	}
	ord := orderingFor(f5, rl)
	old, t := m.AtomicRMW32(addr, c.Mode(), c.CSR(), amoOp32(f5, uint32(c.X(rs2(w)))), ord)
	if !t.IsNone() {
		return t
	}
	c.SetX(rd(w), uint64(int64(int32(old))))
	return trap.None
}

func execAMO64(c decode.Core, w uint32, f5 uint32, addr uint64, rl bool) trap.Trap {
	m := c.MMU()
	switch f5 {
	case 0b00010: // LR.D
		pa, t := m.TranslateForReservation(addr, c.Mode(), c.CSR(), false)
		if !t.IsNone() {
			return t
		}
		v, t := m.Read64(addr, c.Mode(), c.CSR())
		if !t.IsNone() {
			return t
		}
		m.Lock(pa)
		c.SetX(rd(w), v)
		return trap.None
	case 0b00011: // SC.D
		pa, t := m.TranslateForReservation(addr, c.Mode(), c.CSR(), true)
		if !t.IsNone() {
			return t
		}
		ok := m.Unlock(pa)
		if !ok {
			c.SetX(rd(w), 1)
			return trap.None
		}
		t = m.Write64(addr, c.Mode(), c.CSR(), c.X(rs2(w)))
		if !t.IsNone() {
			return t
		}
		c.SetX(rd(w), 0)
		return trap.None
	}

	if !isAMOOpcode(f5) {
		return trap.NewException(trap.IllegalInstruction, uint64(w))
	}
	ord := orderingFor(f5, rl)
	old, t := m.AtomicRMW64(addr, c.Mode(), c.CSR(), amoOp64(f5, c.X(rs2(w))), ord)
	if !t.IsNone() {
		return t
	}
	c.SetX(rd(w), old)
	return trap.None
}

func orderingFor(_ uint32, rl bool) bus.Ordering {
	// Only rl is consulted: the result is Release when rl is set and Relaxed
	// otherwise. aq is not passed in, so Acquire and AcqRel are never
	// produced here.
	return bus.OrderingFromAQRL(false, rl)
}

func amoOp32(f5 uint32, operand uint32) func(uint32) uint32 {
	switch f5 {
	case 0b00001: // AMOSWAP.W
		return func(uint32) uint32 { return operand }
	case 0b00000: // AMOADD.W
		return func(old uint32) uint32 { return old + operand }
	case 0b00100: // AMOXOR.W
		return func(old uint32) uint32 { return old ^ operand }
	case 0b01100: // AMOAND.W
		return func(old uint32) uint32 { return old & operand }
	case 0b01000: // AMOOR.W
		return func(old uint32) uint32 { return old | operand }
	case 0b10000: // AMOMIN.W
		return func(old uint32) uint32 {
			if int32(old) < int32(operand) {
				return old
			}
			return operand
		}
	case 0b10100: // AMOMAX.W
		return func(old uint32) uint32 {
			if int32(old) > int32(operand) {
				return old
			}
			return operand
		}
	case 0b11000: // AMOMINU.W
		return func(old uint32) uint32 {
			if old < operand {
				return old
			}
			return operand
		}
	case 0b11100: // AMOMAXU.W
		return func(old uint32) uint32 {
			if old > operand {
				return old
			}
			return operand
		}
	default:
		// Unreachable: execAMO32 rejects any f5 not in isAMOOpcode before
		// this is ever called.
		debugAssert(false, "amoOp32 called with unvalidated f5")
		return func(old uint32) uint32 { return old }
	}
}

func amoOp64(f5 uint32, operand uint64) func(uint64) uint64 {
	switch f5 {
	case 0b00001:
		return func(uint64) uint64 { return operand }
	case 0b00000:
		return func(old uint64) uint64 { return old + operand }
	case 0b00100:
		return func(old uint64) uint64 { return old ^ operand }
	case 0b01100:
		return func(old uint64) uint64 { return old & operand }
	case 0b01000:
		return func(old uint64) uint64 { return old | operand }
	case 0b10000:
		return func(old uint64) uint64 {
			if int64(old) < int64(operand) {
				return old
			}
			return operand
		}
	case 0b10100:
		return func(old uint64) uint64 {
			if int64(old) > int64(operand) {
				return old
			}
			return operand
		}
	case 0b11000:
		return func(old uint64) uint64 {
			if old < operand {
				return old
			}
			return operand
		}
	case 0b11100:
		return func(old uint64) uint64 {
			if old > operand {
				return old
			}
			return operand
		}
	default:
		// Unreachable: execAMO64 rejects any f5 not in isAMOOpcode before
		// this is ever called.
		debugAssert(false, "amoOp64 called with unvalidated f5")
		return func(old uint64) uint64 { return old }
	}
}
