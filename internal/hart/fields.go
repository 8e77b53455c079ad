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

package hart

import "fmt"

// debugAssert panics on a violated internal invariant — one this package's
// own construction should make impossible, as opposed to an architecturally
// visible guest fault (which must become a trap.Trap, never a panic).
// Mirrors the teacher's assert(cond, msg) helper in emul/exec.go.
func debugAssert(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("hart: internal invariant violated: %s", msg))
	}
}

// Field extraction for the standard R/I/S/B/U/J encodings, used by every
// handler file in this package.

func rd(w uint32) uint32     { return (w >> 7) & 0x1F }
func rs1(w uint32) uint32    { return (w >> 15) & 0x1F }
func rs2(w uint32) uint32    { return (w >> 20) & 0x1F }
func rs3(w uint32) uint32    { return (w >> 27) & 0x1F }
func funct3(w uint32) uint32 { return (w >> 12) & 0x7 }
func funct7(w uint32) uint32 { return (w >> 25) & 0x7F }
func funct2(w uint32) uint32 { return (w >> 25) & 0x3 }
func rm(w uint32) uint32     { return (w >> 12) & 0x7 }

func signExt32(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func immI(w uint32) int64 { return int64(signExt32(w>>20, 12)) }

func immS(w uint32) int64 {
	v := ((w >> 25) << 5) | ((w >> 7) & 0x1F)
	return int64(signExt32(v, 12))
}

func immB(w uint32) int64 {
	v := (((w >> 31) & 1) << 12) | (((w >> 7) & 1) << 11) | (((w >> 25) & 0x3F) << 5) | (((w >> 8) & 0xF) << 1)
	return int64(signExt32(v, 13))
}

func immU(w uint32) int64 { return int64(int32(w &^ 0xFFF)) }

func immJ(w uint32) int64 {
	v := (((w >> 31) & 1) << 20) | (((w >> 12) & 0xFF) << 12) | (((w >> 20) & 1) << 11) | (((w >> 21) & 0x3FF) << 1)
	return int64(signExt32(v, 21))
}

func aqrl(w uint32) (aq, rl bool) {
	return (w>>26)&1 == 1, (w>>25)&1 == 1
}
