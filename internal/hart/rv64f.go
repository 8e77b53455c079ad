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

// RV64F single-precision handlers, grounded on
// original_source/src/instructions/extensions/f.rs and spec.md §4.7/§4.8.
// Shares the OP-FP/MADD-family opcodes with D, distinguished by the fmt
// field (funct7 bits [1:0]): 00 selects single precision.
package hart

import (
	"math"

	"rv64emu/internal/decode"
	"rv64emu/internal/trap"
)

func execLoadFP(c decode.Core, w uint32, _ uint64) trap.Trap {
	if t := checkFPEnabled(c); !t.IsNone() {
		return t
	}
	addr := c.X(rs1(w)) + uint64(immI(w))
	switch funct3(w) {
	case 0b010: // FLW
		v, t := c.MMU().Read32(addr, c.Mode(), c.CSR())
		if !t.IsNone() {
			return t
		}
		c.SetF(rd(w), nanBoxF32(v))
	case 0b011: // FLD
		v, t := c.MMU().Read64(addr, c.Mode(), c.CSR())
		if !t.IsNone() {
			return t
		}
		c.SetF(rd(w), v)
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func execStoreFP(c decode.Core, w uint32, _ uint64) trap.Trap {
	if t := checkFPEnabled(c); !t.IsNone() {
		return t
	}
	addr := c.X(rs1(w)) + uint64(immS(w))
	switch funct3(w) {
	case 0b010: // FSW
		return c.MMU().Write32(addr, c.Mode(), c.CSR(), unboxF32(c.F(rs2(w))))
	case 0b011: // FSD
		return c.MMU().Write64(addr, c.Mode(), c.CSR(), c.F(rs2(w)))
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
}

// execFMADD covers the four fused-multiply-add opcodes (MADD/MSUB/NMSUB/
// NMADD), each parameterized by which sign flips are applied, per
// spec.md §4.8's single table for the family.
func execFMADD(op func(a, b, c float64) float64) decode.Handler {
	return func(c decode.Core, w uint32, _ uint64) trap.Trap {
		if t := checkFPEnabled(c); !t.IsNone() {
			return t
		}
		if _, t := resolveRM(c, w); !t.IsNone() {
			return t
		}
		if funct2(w) == 0 {
			a, b, cc := float64(f32(c.F(rs1(w)))), float64(f32(c.F(rs2(w)))), float64(f32(c.F(rs3(w))))
			r := op(a, b, cc)
			c.AccumulateFPFlags(fmaFlags(a, b, cc, r))
			c.SetF(rd(w), boxF32(float32(r)))
		} else {
			a, b, cc := f64(c.F(rs1(w))), f64(c.F(rs2(w))), f64(c.F(rs3(w)))
			r := op(a, b, cc)
			c.AccumulateFPFlags(fmaFlags(a, b, cc, r))
			c.SetF(rd(w), boxF64(r))
		}
		c.CSR().SetFSDirty()
		return trap.None
	}
}

func fmaddOp(a, b, cc float64) float64  { return a*b + cc }
func fmsubOp(a, b, cc float64) float64  { return a*b - cc }
func fnmsubOp(a, b, cc float64) float64 { return -(a*b - cc) }
func fnmaddOp(a, b, cc float64) float64 { return -(a*b + cc) }

// execOPFP dispatches the large OP-FP opcode by operation group (funct7
// bits [6:2]) and format (funct7 bits [1:0]).
func execOPFP(c decode.Core, w uint32, _ uint64) trap.Trap {
	if t := checkFPEnabled(c); !t.IsNone() {
		return t
	}
	group := funct7(w) >> 2
	double := funct7(w)&0x3 == 1

	switch group {
	case 0b00000, 0b00001, 0b00010, 0b00011: // FADD/FSUB/FMUL/FDIV
		if _, t := resolveRM(c, w); !t.IsNone() {
			return t
		}
		return execFPArith(c, w, group, double)
	case 0b01011: // FSQRT
		if _, t := resolveRM(c, w); !t.IsNone() {
			return t
		}
		if double {
			a := f64(c.F(rs1(w)))
			c.AccumulateFPFlags(sqrtFlags(a))
			c.SetF(rd(w), boxF64(math.Sqrt(a)))
		} else {
			a := float64(f32(c.F(rs1(w))))
			c.AccumulateFPFlags(sqrtFlags(a))
			c.SetF(rd(w), boxF32(float32(math.Sqrt(a))))
		}
		c.CSR().SetFSDirty()
		return trap.None
	case 0b00100: // FSGNJ/FSGNJN/FSGNJX
		return execSignInject(c, w, double)
	case 0b00101: // FMIN/FMAX
		return execMinMax(c, w, double)
	case 0b01000: // FCVT.S.D / FCVT.D.S
		return execFCVTFmt(c, w, double)
	case 0b11000: // FCVT.W/WU/L/LU.S or .D (float -> int)
		return execFCVTToInt(c, w, double)
	case 0b11010: // FCVT.S/D.W/WU/L/LU (int -> float)
		return execFCVTFromInt(c, w, double)
	case 0b11100: // FMV.X.W/FMV.X.D, FCLASS.S/D
		return execFMVToIntOrClass(c, w, double)
	case 0b11110: // FMV.W.X/FMV.D.X
		return execFMVFromInt(c, w, double)
	case 0b10100: // FEQ/FLT/FLE
		return execFCompare(c, w, double)
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
}

func execFPArith(c decode.Core, w uint32, group uint32, double bool) trap.Trap {
	if double {
		a, b := f64(c.F(rs1(w))), f64(c.F(rs2(w)))
		var r float64
		switch group {
		case 0:
			r = a + b
		case 1:
			r = a - b
		case 2:
			r = a * b
		case 3:
			r = a / b
		}
		c.AccumulateFPFlags(arithFlags(group, a, b, r))
		c.SetF(rd(w), boxF64(r))
	} else {
		a, b := f32(c.F(rs1(w))), f32(c.F(rs2(w)))
		var r float32
		switch group {
		case 0:
			r = a + b
		case 1:
			r = a - b
		case 2:
			r = a * b
		case 3:
			r = a / b
		}
		c.AccumulateFPFlags(arithFlags(group, float64(a), float64(b), float64(r)))
		c.SetF(rd(w), boxF32(r))
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func execSignInject(c decode.Core, w uint32, double bool) trap.Trap {
	if double {
		a, b := f64(c.F(rs1(w))), f64(c.F(rs2(w)))
		abs := math.Abs(a)
		var r float64
		switch funct3(w) {
		case 0:
			if math.Signbit(b) {
				r = -abs
			} else {
				r = abs
			}
		case 1:
			if math.Signbit(b) {
				r = abs
			} else {
				r = -abs
			}
		case 2:
			if math.Signbit(a) != math.Signbit(b) {
				r = -abs
			} else {
				r = abs
			}
		}
		c.SetF(rd(w), boxF64(r))
	} else {
		a, b := f32(c.F(rs1(w))), f32(c.F(rs2(w)))
		abs := float32(math.Abs(float64(a)))
		var r float32
		switch funct3(w) {
		case 0:
			if math.Signbit(float64(b)) {
				r = -abs
			} else {
				r = abs
			}
		case 1:
			if math.Signbit(float64(b)) {
				r = abs
			} else {
				r = -abs
			}
		case 2:
			if math.Signbit(float64(a)) != math.Signbit(float64(b)) {
				r = -abs
			} else {
				r = abs
			}
		}
		c.SetF(rd(w), boxF32(r))
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func execMinMax(c decode.Core, w uint32, double bool) trap.Trap {
	max := funct3(w) == 1
	if double {
		a, b := f64(c.F(rs1(w))), f64(c.F(rs2(w)))
		var r float64
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			r = math.NaN()
		case math.IsNaN(a):
			r = b
		case math.IsNaN(b):
			r = a
		case max:
			r = math.Max(a, b)
		default:
			r = math.Min(a, b)
		}
		c.SetF(rd(w), boxF64(r))
	} else {
		a, b := f32(c.F(rs1(w))), f32(c.F(rs2(w)))
		var r float32
		switch {
		case math.IsNaN(float64(a)) && math.IsNaN(float64(b)):
			r = float32(math.NaN())
		case math.IsNaN(float64(a)):
			r = b
		case math.IsNaN(float64(b)):
			r = a
		case max:
			r = float32(math.Max(float64(a), float64(b)))
		default:
			r = float32(math.Min(float64(a), float64(b)))
		}
		c.SetF(rd(w), boxF32(r))
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func execFCompare(c decode.Core, w uint32, double bool) trap.Trap {
	var a, b float64
	if double {
		a, b = f64(c.F(rs1(w))), f64(c.F(rs2(w)))
	} else {
		a, b = float64(f32(c.F(rs1(w)))), float64(f32(c.F(rs2(w))))
	}
	var result bool
	var isEQ bool
	switch funct3(w) {
	case 0b010: // FEQ
		result, isEQ = a == b, true
	case 0b001: // FLT
		result = a < b
	case 0b000: // FLE
		result = a <= b
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		result = false
	}
	c.AccumulateFPFlags(compareFlags(isEQ, a, b))
	c.SetX(rd(w), boolToU64(result))
	return trap.None
}

func execFCVTFmt(c decode.Core, w uint32, toDouble bool) trap.Trap {
	if _, t := resolveRM(c, w); !t.IsNone() {
		return t
	}
	if toDouble { // FCVT.D.S: exact, widening never loses precision.
		src := f32(c.F(rs1(w)))
		if isSignalingNaN32(src) {
			c.AccumulateFPFlags(fflagNV)
		}
		c.SetF(rd(w), boxF64(float64(src)))
	} else { // FCVT.S.D: narrowing can overflow or round.
		src := f64(c.F(rs1(w)))
		narrow := float32(src)
		c.AccumulateFPFlags(narrowFlags(src, narrow))
		c.SetF(rd(w), boxF32(narrow))
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func execFCVTToInt(c decode.Core, w uint32, double bool) trap.Trap {
	if _, t := resolveRM(c, w); !t.IsNone() {
		return t
	}
	var src float64
	if double {
		src = f64(c.F(rs1(w)))
	} else {
		src = float64(f32(c.F(rs1(w))))
	}
	switch rs2(w) {
	case 0: // FCVT.W.*
		c.AccumulateFPFlags(convertToIntFlags(src, src > math.MinInt32-1 && src < math.MaxInt32+1))
		c.SetX(rd(w), uint64(int64(int32(clampToI32(src)))))
	case 1: // FCVT.WU.*
		c.AccumulateFPFlags(convertToIntFlags(src, src >= 0 && src < math.MaxUint32+1))
		c.SetX(rd(w), uint64(int64(int32(uint32(clampToU32(src))))))
	case 2: // FCVT.L.*
		c.AccumulateFPFlags(convertToIntFlags(src, src >= math.MinInt64 && src < math.MaxInt64))
		c.SetX(rd(w), uint64(clampToI64(src)))
	case 3: // FCVT.LU.*
		c.AccumulateFPFlags(convertToIntFlags(src, src >= 0 && src < math.MaxUint64))
		c.SetX(rd(w), clampToU64(src))
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	return trap.None
}

func execFCVTFromInt(c decode.Core, w uint32, double bool) trap.Trap {
	if _, t := resolveRM(c, w); !t.IsNone() {
		return t
	}
	v := c.X(rs1(w))
	var f float64
	exact64 := true // int32/uint32 always fit a float64 mantissa exactly
	switch rs2(w) {
	case 0: // FCVT.*.W
		f = float64(int32(v))
	case 1: // FCVT.*.WU
		f = float64(uint32(v))
	case 2: // FCVT.*.L
		n := int64(v)
		f = float64(n)
		exact64 = int64(f) == n
	case 3: // FCVT.*.LU
		f = float64(v)
		exact64 = uint64(f) == v
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	if double {
		if !exact64 {
			c.AccumulateFPFlags(fflagNX)
		}
		c.SetF(rd(w), boxF64(f))
	} else {
		narrow := float32(f)
		c.AccumulateFPFlags(convertFromIntFlags(f, float64(narrow)))
		c.SetF(rd(w), boxF32(narrow))
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func execFMVToIntOrClass(c decode.Core, w uint32, double bool) trap.Trap {
	if funct3(w) == 1 { // FCLASS
		if double {
			c.SetX(rd(w), classify64(f64(c.F(rs1(w)))))
		} else {
			c.SetX(rd(w), classify32(f32(c.F(rs1(w)))))
		}
		return trap.None
	}
	if double { // FMV.X.D
		c.SetX(rd(w), c.F(rs1(w)))
	} else { // FMV.X.W
		c.SetX(rd(w), uint64(int64(int32(unboxF32(c.F(rs1(w)))))))
	}
	return trap.None
}

func execFMVFromInt(c decode.Core, w uint32, double bool) trap.Trap {
	if double {
		c.SetF(rd(w), c.X(rs1(w)))
	} else {
		c.SetF(rd(w), nanBoxF32(uint32(c.X(rs1(w)))))
	}
	c.CSR().SetFSDirty()
	return trap.None
}

func clampToI32(f float64) int32 {
	if math.IsNaN(f) {
		return math.MaxInt32
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

func clampToU32(f float64) uint32 {
	if math.IsNaN(f) || f < 0 {
		if math.IsNaN(f) {
			return math.MaxUint32
		}
		return 0
	}
	if f >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(f)
}

func clampToI64(f float64) int64 {
	if math.IsNaN(f) {
		return math.MaxInt64
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

func clampToU64(f float64) uint64 {
	if math.IsNaN(f) || f < 0 {
		if math.IsNaN(f) {
			return math.MaxUint64
		}
		return 0
	}
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(f)
}
