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

// Zicsr instructions, grounded on original_source/src/instructions/zicsr.rs
// and spec.md §4.6: the six CSRRW/S/C (register and immediate) forms, with
// the read-suppression rule for CSRRW(I) rd=x0 and the write-suppression
// rule for CSRRS/C(I) rs1=x0/uimm=0.
package hart

import (
	"rv64emu/internal/decode"
	"rv64emu/internal/trap"
)

func execSystem(c decode.Core, w uint32, length uint64) trap.Trap {
	f3 := funct3(w)
	if f3 == 0 {
		return execPrivileged(c, w, length)
	}
	return execCSR(c, w)
}

func execCSR(c decode.Core, w uint32) trap.Trap {
	addr := uint16(w >> 20)
	f3 := funct3(w)
	rdReg := rd(w)

	switch f3 {
	case 0b001: // CSRRW
		var old uint64
		var t trap.Trap
		if rdReg != 0 {
			old, t = c.CSR().Read(addr, c.Mode())
			if !t.IsNone() {
				return t
			}
		}
		t = c.CSR().Write(addr, c.Mode(), c.X(rs1(w)))
		if !t.IsNone() {
			return t
		}
		c.SetX(rdReg, old)
	case 0b010: // CSRRS
		old, t := c.CSR().Read(addr, c.Mode())
		if !t.IsNone() {
			return t
		}
		if rs1(w) != 0 {
			t = c.CSR().Write(addr, c.Mode(), old|c.X(rs1(w)))
			if !t.IsNone() {
				return t
			}
		}
		c.SetX(rdReg, old)
	case 0b011: // CSRRC
		old, t := c.CSR().Read(addr, c.Mode())
		if !t.IsNone() {
			return t
		}
		if rs1(w) != 0 {
			t = c.CSR().Write(addr, c.Mode(), old&^c.X(rs1(w)))
			if !t.IsNone() {
				return t
			}
		}
		c.SetX(rdReg, old)
	case 0b101: // CSRRWI
		uimm := uint64(rs1(w))
		var old uint64
		var t trap.Trap
		if rdReg != 0 {
			old, t = c.CSR().Read(addr, c.Mode())
			if !t.IsNone() {
				return t
			}
		}
		t = c.CSR().Write(addr, c.Mode(), uimm)
		if !t.IsNone() {
			return t
		}
		c.SetX(rdReg, old)
	case 0b110: // CSRRSI
		uimm := uint64(rs1(w))
		old, t := c.CSR().Read(addr, c.Mode())
		if !t.IsNone() {
			return t
		}
		if uimm != 0 {
			t = c.CSR().Write(addr, c.Mode(), old|uimm)
			if !t.IsNone() {
				return t
			}
		}
		c.SetX(rdReg, old)
	case 0b111: // CSRRCI
		uimm := uint64(rs1(w))
		old, t := c.CSR().Read(addr, c.Mode())
		if !t.IsNone() {
			return t
		}
		if uimm != 0 {
			t = c.CSR().Write(addr, c.Mode(), old&^uimm)
			if !t.IsNone() {
				return t
			}
		}
		c.SetX(rdReg, old)
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	return trap.None
}
