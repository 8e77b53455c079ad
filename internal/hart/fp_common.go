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

// Shared floating-point helpers for the F/D handlers: NaN-boxing (§4.7),
// rounding-mode resolution, and the IEEE-754 classify bits, grounded on
// original_source/src/instructions/extensions/f.rs and d.rs.
package hart

import (
	"math"

	"rv64emu/internal/decode"
	"rv64emu/internal/trap"
)

// FFLAGS bits, in the fixed RISC-V order (§4.8): NV is invalid operation, DZ
// is divide-by-zero, OF/UF are overflow/underflow, NX is inexact.
const (
	fflagNX uint8 = 1 << 0
	fflagUF uint8 = 1 << 1
	fflagOF uint8 = 1 << 2
	fflagDZ uint8 = 1 << 3
	fflagNV uint8 = 1 << 4
)

const nanBoxUpper = 0xFFFFFFFF00000000

func nanBoxF32(bits uint32) uint64 { return nanBoxUpper | uint64(bits) }

// unboxF32 returns the 32-bit payload, replacing an improperly-boxed value
// with the canonical quiet NaN per §4.7: "a value not properly NaN-boxed
// is treated as the canonical qNaN of the narrower type".
func unboxF32(v uint64) uint32 {
	if v>>32 != 0xFFFFFFFF {
		return 0x7FC00000
	}
	return uint32(v)
}

func f32(v uint64) float32    { return math.Float32frombits(unboxF32(v)) }
func boxF32(f float32) uint64 { return nanBoxF32(math.Float32bits(f)) }

func f64(v uint64) float64    { return math.Float64frombits(v) }
func boxF64(f float64) uint64 { return math.Float64bits(f) }

// resolveRM validates the rounding-mode field, accepting a dynamic mode
// (0b111) only when FRM itself holds a valid static mode. Actual rounding
// always uses the host's round-to-nearest-even float64/float32 arithmetic
// (§4.8's documented simplification: Go exposes no other IEEE rounding
// mode without software emulation, so RNE is used for every requested
// mode besides outright rejecting reserved codes).
func resolveRM(c decode.Core, w uint32) (uint32, trap.Trap) {
	m := rm(w)
	if m == 0b111 {
		m = uint32(c.CSR().ReadFrm())
	}
	if m > 4 {
		return 0, trap.NewException(trap.IllegalInstruction, 0)
	}
	return m, trap.None
}

func checkFPEnabled(c decode.Core) trap.Trap {
	if c.CSR().FS() == 0 {
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	return trap.None
}

func classify32(f float32) uint64 {
	bits := math.Float32bits(f)
	sign := bits>>31 == 1
	switch {
	case math.IsInf(float64(f), -1):
		return 1 << 0
	case math.IsInf(float64(f), 1):
		return 1 << 7
	case f == 0:
		if sign {
			return 1 << 3
		}
		return 1 << 4
	case math.IsNaN(float64(f)):
		if bits&(1<<22) != 0 {
			return 1 << 9
		}
		return 1 << 8
	case sign && isSubnormal32(bits):
		return 1 << 2
	case sign:
		return 1 << 1
	case isSubnormal32(bits):
		return 1 << 5
	default:
		return 1 << 6
	}
}

func isSubnormal32(bits uint32) bool {
	exp := (bits >> 23) & 0xFF
	mant := bits & 0x7FFFFF
	return exp == 0 && mant != 0
}

func classify64(f float64) uint64 {
	bits := math.Float64bits(f)
	sign := bits>>63 == 1
	switch {
	case math.IsInf(f, -1):
		return 1 << 0
	case math.IsInf(f, 1):
		return 1 << 7
	case f == 0:
		if sign {
			return 1 << 3
		}
		return 1 << 4
	case math.IsNaN(f):
		if bits&(1<<51) != 0 {
			return 1 << 9
		}
		return 1 << 8
	case sign && isSubnormal64(bits):
		return 1 << 2
	case sign:
		return 1 << 1
	case isSubnormal64(bits):
		return 1 << 5
	default:
		return 1 << 6
	}
}

func isSubnormal64(bits uint64) bool {
	exp := (bits >> 52) & 0x7FF
	mant := bits & 0xFFFFFFFFFFFFF
	return exp == 0 && mant != 0
}

// isSignalingNaN reports whether f's bit pattern has the quiet bit (the MSB
// of the mantissa) clear, per IEEE 754's qNaN/sNaN distinction. Go's NaN
// arithmetic always quiets its result, so this only ever fires for an sNaN
// loaded straight out of memory or a register.
func isSignalingNaN32(f float32) bool {
	bits := math.Float32bits(f)
	return math.IsNaN(float64(f)) && bits&(1<<22) == 0
}

func isSignalingNaN64(f float64) bool {
	bits := math.Float64bits(f)
	return math.IsNaN(f) && bits&(1<<51) == 0
}

// arithFlags derives the FFLAGS bits for one add/sub/mul/div, given the two
// operands and the already-computed IEEE result. Go's float ops round to
// nearest-even and quiet any NaN they produce, so NV/DZ/OF are recovered by
// inspecting operands and result, and UF only for a division whose result
// underflows to zero. NX is never set here: Go exposes no inexact flag.
func arithFlags(group uint32, a, b, r float64) uint8 {
	var flags uint8
	sNaN := isSignalingNaN64(a) || isSignalingNaN64(b)
	switch group {
	case 0, 1: // add, sub
		invalid := math.IsInf(a, 0) && math.IsInf(b, 0) && math.IsNaN(r)
		if sNaN || invalid {
			flags |= fflagNV
		}
	case 2: // mul
		invalid := (a == 0 && math.IsInf(b, 0)) || (b == 0 && math.IsInf(a, 0))
		if sNaN || invalid {
			flags |= fflagNV
		}
	case 3: // div
		switch {
		case sNaN, (a == 0 && b == 0), (math.IsInf(a, 0) && math.IsInf(b, 0)):
			flags |= fflagNV
		case b == 0 && a != 0 && !math.IsNaN(a):
			flags |= fflagDZ
		}
	}
	if math.IsInf(r, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) && !math.IsNaN(a) && !math.IsNaN(b) {
		flags |= fflagOF
	} else if r == 0 && a != 0 && b != 0 && group == 3 && !math.IsInf(b, 0) {
		flags |= fflagUF
	}
	return flags
}

// fmaFlags derives NV for a fused multiply-add the same way arithFlags does
// for mul (0*inf is invalid regardless of the addend), plus the add-style
// inf-inf check against the product and the addend.
func fmaFlags(a, b, cc, r float64) uint8 {
	var flags uint8
	if isSignalingNaN64(a) || isSignalingNaN64(b) || isSignalingNaN64(cc) {
		flags |= fflagNV
	}
	if (a == 0 && math.IsInf(b, 0)) || (b == 0 && math.IsInf(a, 0)) {
		flags |= fflagNV
	}
	product := a * b
	if math.IsInf(product, 0) && math.IsInf(cc, 0) && math.Signbit(product) != math.Signbit(cc) {
		flags |= fflagNV
	}
	if math.IsInf(r, 0) && !math.IsInf(product, 0) && !math.IsInf(cc, 0) {
		flags |= fflagOF
	}
	return flags
}

// sqrtFlags: NV for sqrt of a negative non-zero operand or an sNaN.
func sqrtFlags(a float64) uint8 {
	if isSignalingNaN64(a) {
		return fflagNV
	}
	if a < 0 {
		return fflagNV
	}
	return 0
}

// compareFlags implements §4.8's FEQ/FLT/FLE invalid-operand rule: any NaN
// operand is invalid for an ordered comparison (FLT/FLE); FEQ is invalid
// only when an operand is a signaling NaN, since unordered equal-or-greater
// comparisons are well defined for quiet NaNs (always false, never invalid).
func compareFlags(isEQ bool, a, b float64) uint8 {
	if isEQ {
		if isSignalingNaN64(a) || isSignalingNaN64(b) {
			return fflagNV
		}
		return 0
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return fflagNV
	}
	return 0
}

// convertToIntFlags covers §4.8's "saturate-and-flag" rule for float->int:
// NV when the source is NaN or the true value lies outside the destination
// range (the saturated clamp already applied by the caller), NX when the
// source has a nonzero fractional part that was truncated toward zero.
func convertToIntFlags(src float64, inRange bool) uint8 {
	if math.IsNaN(src) || !inRange {
		return fflagNV
	}
	if src != math.Trunc(src) {
		return fflagNX
	}
	return 0
}

// convertFromIntFlags sets NX when the integer source cannot be represented
// exactly in the destination float format (narrower mantissa than the
// integer's magnitude).
func convertFromIntFlags(v float64, f float64) uint8 {
	if v != f {
		return fflagNX
	}
	return 0
}

// narrowFlags covers FCVT.S.D: OF when the finite double magnitude exceeds
// the float32 range, NX when the narrower mantissa drops precision.
func narrowFlags(wide float64, narrow float32) uint8 {
	var flags uint8
	if isSignalingNaN64(wide) {
		flags |= fflagNV
	}
	if !math.IsInf(wide, 0) && !math.IsNaN(wide) && math.IsInf(float64(narrow), 0) {
		flags |= fflagOF
	} else if wide != float64(narrow) {
		flags |= fflagNX
	}
	return flags
}
