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

// RV64M multiply/divide handlers, grounded on
// original_source/src/instructions/extensions/m.rs and spec.md §4.6: M
// instructions share the OP/OP-32 opcodes with the base ALU, selected by
// funct7==0000001, so they are dispatched from execOp/execOp32 rather than
// their own decode bucket.
package hart

import (
	"math/bits"

	"rv64emu/internal/decode"
	"rv64emu/internal/trap"
)

func execMulDiv(c decode.Core, w uint32) trap.Trap {
	a, b := c.X(rs1(w)), c.X(rs2(w))
	sa, sb := int64(a), int64(b)
	switch funct3(w) {
	case 0b000: // MUL
		c.SetX(rd(w), a*b)
	case 0b001: // MULH: high 64 bits of the signed*signed 128-bit product.
		hi, _ := bits.Mul64(uint64(sa), uint64(sb))
		if sa < 0 {
			hi -= uint64(sb)
		}
		if sb < 0 {
			hi -= uint64(sa)
		}
		c.SetX(rd(w), hi)
	case 0b010: // MULHSU: high 64 bits of signed(rs1)*unsigned(rs2).
		hi, _ := bits.Mul64(uint64(sa), b)
		if sa < 0 {
			hi -= b
		}
		c.SetX(rd(w), hi)
	case 0b011: // MULHU
		hi, _ := bits.Mul64(a, b)
		c.SetX(rd(w), hi)
	case 0b100: // DIV
		if sb == 0 {
			c.SetX(rd(w), ^uint64(0))
		} else if sa == -(1<<63) && sb == -1 {
			c.SetX(rd(w), uint64(sa))
		} else {
			c.SetX(rd(w), uint64(sa/sb))
		}
	case 0b101: // DIVU
		if b == 0 {
			c.SetX(rd(w), ^uint64(0))
		} else {
			c.SetX(rd(w), a/b)
		}
	case 0b110: // REM
		if sb == 0 {
			c.SetX(rd(w), uint64(sa))
		} else if sa == -(1<<63) && sb == -1 {
			c.SetX(rd(w), 0)
		} else {
			c.SetX(rd(w), uint64(sa%sb))
		}
	case 0b111: // REMU
		if b == 0 {
			c.SetX(rd(w), a)
		} else {
			c.SetX(rd(w), a%b)
		}
	}
	return trap.None
}

func execMulDiv32(c decode.Core, w uint32) trap.Trap {
	a, b := int32(c.X(rs1(w))), int32(c.X(rs2(w)))
	switch funct3(w) {
	case 0b000: // MULW
		c.SetX(rd(w), uint64(int64(a*b)))
	case 0b100: // DIVW
		if b == 0 {
			c.SetX(rd(w), ^uint64(0))
		} else if a == -(1<<31) && b == -1 {
			c.SetX(rd(w), uint64(int64(a)))
		} else {
			c.SetX(rd(w), uint64(int64(a/b)))
		}
	case 0b101: // DIVUW
		ua, ub := uint32(a), uint32(b)
		if ub == 0 {
			c.SetX(rd(w), ^uint64(0))
		} else {
			c.SetX(rd(w), uint64(int64(int32(ua/ub))))
		}
	case 0b110: // REMW
		if b == 0 {
			c.SetX(rd(w), uint64(int64(a)))
		} else if a == -(1<<31) && b == -1 {
			c.SetX(rd(w), 0)
		} else {
			c.SetX(rd(w), uint64(int64(a%b)))
		}
	case 0b111: // REMUW
		ua, ub := uint32(a), uint32(b)
		if ub == 0 {
			c.SetX(rd(w), uint64(int64(int32(ua))))
		} else {
			c.SetX(rd(w), uint64(int64(int32(ua%ub))))
		}
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	return trap.None
}
