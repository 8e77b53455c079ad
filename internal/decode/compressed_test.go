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

package decode

import "testing"

// C.ADDI x1, 5: quadrant 1, funct3=000, rd=1, imm=5 (imm[5]=0, imm[4:0]=5).
func TestDecompressAddi(t *testing.T) {
	c := uint16(0b000_0_00001_00101_01)
	word, ok := Decompress(c)
	if !ok {
		t.Fatalf("expected a valid expansion")
	}
	if word&0x7F != OpImm {
		t.Fatalf("opcode = 0x%x, want OP-IMM", word&0x7F)
	}
	rd := (word >> 7) & 0x1F
	if rd != 1 {
		t.Fatalf("rd = %d, want 1", rd)
	}
	imm := int32(word) >> 20
	if imm != 5 {
		t.Fatalf("imm = %d, want 5", imm)
	}
}

// C.NOP (0x0001) is C.ADDI with rd=0, imm=0.
func TestDecompressNop(t *testing.T) {
	word, ok := Decompress(1)
	if !ok {
		t.Fatalf("expected C.NOP to decode (ADDI x0, x0, 0)")
	}
	if word&0x7F != OpImm {
		t.Fatalf("opcode = 0x%x, want OP-IMM", word&0x7F)
	}
}

// C.JR form (rs2=0, funct4=1000) with rd/rs1=0: reserved.
func TestDecompressJRRequiresNonzeroRs1(t *testing.T) {
	c := uint16(0b1000_00000_00000_10)
	if _, ok := Decompress(c); ok {
		t.Fatalf("C.JR with rd=0 should be reserved")
	}
}

// C.LUI x1, 5: quadrant 1, funct3=011, rd=1 != 2, nonzero immediate.
func TestDecompressLui(t *testing.T) {
	c := uint16(0b011_0_00001_00101_01)
	word, ok := Decompress(c)
	if !ok {
		t.Fatalf("expected a valid expansion")
	}
	if word&0x7F != OpLUI {
		t.Fatalf("opcode = 0x%x, want LUI", word&0x7F)
	}
}

// Reserved compressed encodings (quadrant 0, funct3=100) must not decode.
func TestDecompressReservedQuadrant0(t *testing.T) {
	c := uint16(0b100_000_000_00_000_00)
	if _, ok := Decompress(c); ok {
		t.Fatalf("funct3=100 in quadrant 0 is reserved")
	}
}
