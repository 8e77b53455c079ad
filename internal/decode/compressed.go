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

// Compressed-instruction expansion, grounded on
// original_source/src/instructions/extensions/c.rs: a switch over the 5-bit
// composite key (op[1:0] << 3) | funct3, so quadrant 0 occupies keys 0-7,
// quadrant 1 keys 8-15 and quadrant 2 keys 16-23. Each case returns either
// the 32-bit equivalent word or reports a reserved encoding.
//
// Hint encodings (e.g. C.MV, C.LI, C.LUI or C.SLLI with rd=x0) are deliberately expanded to their
// full 32-bit form rather than special-cased: the resulting ADD/ADDI/etc.
// handler already treats x0 as a sink, so the hint behavior "falls out of
// the normal handler" exactly as spec.md §4.2 requires.
package decode

// Decompress expands a 16-bit compressed instruction into its 32-bit
// equivalent. ok is false for a reserved encoding, which the caller must
// turn into an illegal-instruction trap.
func Decompress(c uint16) (word uint32, ok bool) {
	op := uint32(c & 0x3)
	funct3 := uint32(c>>13) & 0x7
	key := (op << 3) | funct3

	full := uint32(c)
	rdRs1Full := (full >> 7) & 0x1F
	rs2Full := (full >> 2) & 0x1F
	rs1p := 8 + (full>>7)&0x7
	rs2p := 8 + (full>>2)&0x7

	signExt := func(v uint32, bits uint) uint32 {
		shift := 32 - bits
		return uint32(int32(v<<shift) >> shift)
	}

	switch key {
	case 0: // quadrant 0, funct3=000: C.ADDI4SPN
		nzuimm := ((full>>7)&0xF)<<6 | ((full>>11)&0x3)<<4 | ((full>>5)&0x1)<<3 | ((full>>6)&0x1)<<2
		if nzuimm == 0 {
			return 0, false
		}
		return encI(nzuimm, 2, 0, rs2p, OpImm), true

	case 1: // quadrant 0, funct3=001: C.FLD
		imm := ((full>>10)&0x7)<<3 | ((full>>5)&0x3)<<6
		return encI(imm, rs1p, 3, rs2p, OpLoadFP), true

	case 2: // quadrant 0, funct3=010: C.LW
		imm := ((full>>10)&0x7)<<3 | ((full>>6)&0x1)<<2 | ((full>>5)&0x1)<<6
		return encI(imm, rs1p, 2, rs2p, OpLoad), true

	case 3: // quadrant 0, funct3=011: C.LD
		imm := ((full>>10)&0x7)<<3 | ((full>>5)&0x3)<<6
		return encI(imm, rs1p, 3, rs2p, OpLoad), true

	case 5: // quadrant 0, funct3=101: C.FSD
		imm := ((full>>10)&0x7)<<3 | ((full>>5)&0x3)<<6
		return encS(imm, rs2p, rs1p, 3, OpStoreFP), true

	case 6: // quadrant 0, funct3=110: C.SW
		imm := ((full>>10)&0x7)<<3 | ((full>>6)&0x1)<<2 | ((full>>5)&0x1)<<6
		return encS(imm, rs2p, rs1p, 2, OpStore), true

	case 7: // quadrant 0, funct3=111: C.SD
		imm := ((full>>10)&0x7)<<3 | ((full>>5)&0x3)<<6
		return encS(imm, rs2p, rs1p, 3, OpStore), true

	case 4: // quadrant 0, funct3=100: reserved in RVC
		return 0, false

	case 8: // quadrant 1, funct3=000: C.ADDI / C.NOP
		imm := signExt(((full>>12)&1)<<5|((full>>2)&0x1F), 6)
		return encI(imm, rdRs1Full, 0, rdRs1Full, OpImm), true

	case 9: // quadrant 1, funct3=001: C.ADDIW
		if rdRs1Full == 0 {
			return 0, false
		}
		imm := signExt(((full>>12)&1)<<5|((full>>2)&0x1F), 6)
		return encI(imm, rdRs1Full, 0, rdRs1Full, OpImm32), true

	case 10: // quadrant 1, funct3=010: C.LI
		imm := signExt(((full>>12)&1)<<5|((full>>2)&0x1F), 6)
		return encI(imm, 0, 0, rdRs1Full, OpImm), true

	case 11: // quadrant 1, funct3=011: C.ADDI16SP / C.LUI
		if rdRs1Full == 2 {
			imm := signExt(((full>>12)&1)<<9|((full>>6)&1)<<4|((full>>5)&1)<<6|((full>>3)&0x3)<<7|((full>>2)&1)<<5, 10)
			if imm == 0 {
				return 0, false
			}
			return encI(imm, 2, 0, 2, OpImm), true
		}
		imm := signExt(((full>>12)&1)<<17|((full>>2)&0x1F)<<12, 18)
		if imm == 0 {
			return 0, false
		}
		return encU(imm>>12, rdRs1Full, OpLUI), true

	case 12: // quadrant 1, funct3=100: arithmetic/shift group
		switch (full >> 10) & 0x3 {
		case 0: // C.SRLI
			shamt := ((full>>12)&1)<<5 | (full>>2)&0x1F
			return encI(shamt, rs1p, 5, rs1p, OpImm), true
		case 1: // C.SRAI
			shamt := ((full>>12)&1)<<5 | (full>>2)&0x1F
			return encI((1<<10)|shamt, rs1p, 5, rs1p, OpImm), true
		case 2: // C.ANDI
			imm := signExt(((full>>12)&1)<<5|((full>>2)&0x1F), 6)
			return encI(imm, rs1p, 7, rs1p, OpImm), true
		case 3:
			funct2 := (full >> 5) & 0x3
			if (full>>12)&1 == 0 {
				switch funct2 {
				case 0:
					return encR(0x20, rs2p, rs1p, 0, rs1p, OpOP), true // C.SUB
				case 1:
					return encR(0, rs2p, rs1p, 4, rs1p, OpOP), true // C.XOR
				case 2:
					return encR(0, rs2p, rs1p, 6, rs1p, OpOP), true // C.OR
				default:
					return encR(0, rs2p, rs1p, 7, rs1p, OpOP), true // C.AND
				}
			}
			switch funct2 {
			case 0:
				return encR(0x20, rs2p, rs1p, 0, rs1p, OpOP32), true // C.SUBW
			case 1:
				return encR(0, rs2p, rs1p, 0, rs1p, OpOP32), true // C.ADDW
			default:
				return 0, false
			}
		}

	case 13: // quadrant 1, funct3=101: C.J
		imm := signExt(
			((full>>12)&1)<<11|((full>>11)&1)<<4|((full>>9)&0x3)<<8|((full>>8)&1)<<10|
				((full>>7)&1)<<6|((full>>6)&1)<<7|((full>>3)&0x7)<<1|((full>>2)&1)<<5,
			12)
		return encJ(imm, 0, OpJAL), true

	case 14: // quadrant 1, funct3=110: C.BEQZ
		imm := signExt(
			((full>>12)&1)<<8|((full>>10)&0x3)<<3|((full>>5)&0x3)<<6|((full>>3)&0x3)<<1|((full>>2)&1)<<5,
			9)
		return encB(imm, 0, rs1p, 0, OpBranch), true

	case 15: // quadrant 1, funct3=111: C.BNEZ
		imm := signExt(
			((full>>12)&1)<<8|((full>>10)&0x3)<<3|((full>>5)&0x3)<<6|((full>>3)&0x3)<<1|((full>>2)&1)<<5,
			9)
		return encB(imm, 0, rs1p, 1, OpBranch), true

	case 16: // quadrant 2, funct3=000: C.SLLI
		shamt := ((full>>12)&1)<<5 | (full>>2)&0x1F
		return encI(shamt, rdRs1Full, 1, rdRs1Full, OpImm), true

	case 17: // quadrant 2, funct3=001: C.FLDSP
		imm := ((full>>12)&1)<<5 | ((full>>5)&0x3)<<3 | ((full>>2)&0x7)<<6
		return encI(imm, 2, 3, rdRs1Full, OpLoadFP), true

	case 18: // quadrant 2, funct3=010: C.LWSP
		if rdRs1Full == 0 {
			return 0, false
		}
		imm := ((full>>12)&1)<<5 | ((full>>4)&0x7)<<2 | ((full>>2)&0x3)<<6
		return encI(imm, 2, 2, rdRs1Full, OpLoad), true

	case 19: // quadrant 2, funct3=011: C.LDSP
		if rdRs1Full == 0 {
			return 0, false
		}
		imm := ((full>>12)&1)<<5 | ((full>>5)&0x3)<<3 | ((full>>2)&0x7)<<6
		return encI(imm, 2, 3, rdRs1Full, OpLoad), true

	case 20: // quadrant 2, funct3=100: C.JR/C.MV/C.EBREAK/C.JALR/C.ADD
		if (full>>12)&1 == 0 {
			if rs2Full == 0 {
				if rdRs1Full == 0 {
					return 0, false
				}
				return encI(0, rdRs1Full, 0, 0, OpJALR), true // C.JR
			}
			return encR(0, rs2Full, 0, 0, rdRs1Full, OpOP), true // C.MV
		}
		if rdRs1Full == 0 && rs2Full == 0 {
			return encI(1, 0, 0, 0, OpSystem), true // C.EBREAK
		}
		if rs2Full == 0 {
			return encI(0, rdRs1Full, 0, 1, OpJALR), true // C.JALR
		}
		return encR(0, rs2Full, rdRs1Full, 0, rdRs1Full, OpOP), true // C.ADD

	case 21: // quadrant 2, funct3=101: C.FSDSP
		imm := ((full>>10)&0x7)<<3 | ((full>>7)&0x7)<<6
		return encS(imm, rs2Full, 2, 3, OpStoreFP), true

	case 22: // quadrant 2, funct3=110: C.SWSP
		imm := ((full>>9)&0xF)<<2 | ((full>>7)&0x3)<<6
		return encS(imm, rs2Full, 2, 2, OpStore), true

	case 23: // quadrant 2, funct3=111: C.SDSP
		imm := ((full>>10)&0x7)<<3 | ((full>>7)&0x7)<<6
		return encS(imm, rs2Full, 2, 3, OpStore), true
	}

	return 0, false
}
