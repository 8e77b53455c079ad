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

// Primary 7-bit opcodes used by both the decode table construction (in
// package hart) and the compressed-instruction expander below.
const (
	OpLoad    = 0x03
	OpLoadFP  = 0x07
	OpMiscMem = 0x0F
	OpImm     = 0x13
	OpAUIPC   = 0x17
	OpImm32   = 0x1B
	OpStore   = 0x23
	OpStoreFP = 0x27
	OpAMO     = 0x2F
	OpOP      = 0x33
	OpLUI     = 0x37
	OpOP32    = 0x3B
	OpMADD    = 0x43
	OpMSUB    = 0x47
	OpNMSUB   = 0x4B
	OpNMADD   = 0x4F
	OpOPFP    = 0x53
	OpBranch  = 0x63
	OpJALR    = 0x67
	OpJAL     = 0x6F
	OpSystem  = 0x73
)

// The following encXXX helpers assemble a standard 32-bit RISC-V word from
// its fields; they exist solely so the C-extension expander below can
// produce the "32-bit equivalent" form spec.md §4.2 requires rather than
// hand-rolling bit math per compressed instruction.

func encR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encI(imm uint32, rs1, funct3, rd, opcode uint32) uint32 {
	return ((imm & 0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encS(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	hi := (imm >> 5) & 0x7F
	lo := imm & 0x1F
	return (hi << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (lo << 7) | opcode
}

func encB(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	b12 := (imm >> 12) & 1
	b10_5 := (imm >> 5) & 0x3F
	b4_1 := (imm >> 1) & 0xF
	b11 := (imm >> 11) & 1
	return (b12 << 31) | (b10_5 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (b4_1 << 8) | (b11 << 7) | opcode
}

func encU(imm uint32, rd, opcode uint32) uint32 {
	return (imm << 12) | (rd << 7) | opcode
}

func encJ(imm uint32, rd, opcode uint32) uint32 {
	b20 := (imm >> 20) & 1
	b10_1 := (imm >> 1) & 0x3FF
	b11 := (imm >> 11) & 1
	b19_12 := (imm >> 12) & 0xFF
	return (b20 << 31) | (b10_1 << 21) | (b11 << 20) | (b19_12 << 12) | (rd << 7) | opcode
}
