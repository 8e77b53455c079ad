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

import (
	"testing"

	"rv64emu/internal/bus"
	"rv64emu/internal/csr"
	"rv64emu/internal/decode"
	"rv64emu/internal/device/ram"
	"rv64emu/internal/mmu"
)

func newTestHart(t *testing.T) (*Hart, *bus.Bus, *ram.RAM, *csr.File) {
	t.Helper()
	mem := ram.New(1 << 20)
	b := bus.New()
	b.Attach(mem)
	csrFile := csr.New()
	m := mmu.New(b)
	h := New(ram.Base, csrFile, m)
	return h, b, mem, csrFile
}

// Minimal standalone encoders for building test instruction streams; kept
// separate from decode's unexported encXXX helpers since this package has
// no access to them.

func testEncR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func testEncI(imm uint32, rs1, funct3, rd, opcode uint32) uint32 {
	return ((imm & 0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func testEncB(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	b12 := (imm >> 12) & 1
	b10_5 := (imm >> 5) & 0x3F
	b4_1 := (imm >> 1) & 0xF
	b11 := (imm >> 11) & 1
	return (b12 << 31) | (b10_5 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (b4_1 << 8) | (b11 << 7) | opcode
}

func writeWord(mem *ram.RAM, addr uint64, w uint32) {
	mem.Write32(addr, w)
}

// ADDI x1,x0,5; ADDI x2,x1,7
func TestScenarioA_AddImmediateSequencing(t *testing.T) {
	h, _, mem, _ := newTestHart(t)
	writeWord(mem, ram.Base+0, testEncI(5, 0, 0, 1, decode.OpImm))
	writeWord(mem, ram.Base+4, testEncI(7, 1, 0, 2, decode.OpImm))

	h.Step()
	h.Step()

	if h.X(1) != 5 {
		t.Fatalf("x1 = %d, want 5", h.X(1))
	}
	if h.X(2) != 12 {
		t.Fatalf("x2 = %d, want 12", h.X(2))
	}
	if h.PC() != ram.Base+8 {
		t.Fatalf("pc = 0x%x, want 0x%x", h.PC(), ram.Base+8)
	}
}

// ADDI x1,x0,1; BNE x1,x0,+8; ADDI x2,x0,99; ADDI x3,x0,7
func TestScenarioB_BranchTaken(t *testing.T) {
	h, _, mem, _ := newTestHart(t)
	writeWord(mem, ram.Base+0, testEncI(1, 0, 0, 1, decode.OpImm))
	writeWord(mem, ram.Base+4, testEncB(8, 0, 1, 1, decode.OpBranch))
	writeWord(mem, ram.Base+8, testEncI(99, 0, 0, 2, decode.OpImm))
	writeWord(mem, ram.Base+12, testEncI(7, 0, 0, 3, decode.OpImm))

	for i := 0; i < 3; i++ {
		h.Step()
	}

	if h.X(1) != 1 {
		t.Fatalf("x1 = %d, want 1", h.X(1))
	}
	if h.X(2) != 0 {
		t.Fatalf("x2 = %d, want 0 (skipped by taken branch)", h.X(2))
	}
	if h.X(3) != 7 {
		t.Fatalf("x3 = %d, want 7", h.X(3))
	}
}

// LR.W x1,(x5); SC.W x3,x2,(x5), x5=0x8000_1000, x2=0x42, mem[0x8000_1000]=0.
func TestScenarioC_LRSCSuccess(t *testing.T) {
	h, _, mem, _ := newTestHart(t)
	const target = ram.Base + 0x1000
	mem.Write32(target, 0)

	h.SetX(5, target)
	h.SetX(2, 0x42)

	writeWord(mem, ram.Base+0, testEncR(0b0001000, 0, 5, 0b010, 1, decode.OpAMO))
	writeWord(mem, ram.Base+4, testEncR(0b0001100, 2, 5, 0b010, 3, decode.OpAMO))

	h.Step()
	h.Step()

	if h.X(1) != 0 {
		t.Fatalf("x1 = %d, want 0", h.X(1))
	}
	if h.X(3) != 0 {
		t.Fatalf("x3 = %d, want 0 (SC succeeded)", h.X(3))
	}
	v, _ := mem.Read32(target)
	if v != 0x42 {
		t.Fatalf("mem[target] = 0x%x, want 0x42", v)
	}
}

// In user mode, CSRRW x0, mstatus, x0 raises illegal-instruction; mcause=2,
// mepc is the faulting PC, and mode becomes Machine.
func TestScenarioE_IllegalCSRFromUserMode(t *testing.T) {
	h, _, mem, csrFile := newTestHart(t)
	h.SetMode(csr.User)
	writeWord(mem, ram.Base+0, testEncI(csr.Mstatus, 0, 0b001, 0, decode.OpSystem))

	h.Step()

	if h.Mode() != csr.Machine {
		t.Fatalf("mode = %v, want Machine after trap delivery", h.Mode())
	}
	mcause, _ := csrFile.Read(csr.Mcause, csr.Machine)
	if mcause != 2 {
		t.Fatalf("mcause = %d, want 2 (illegal-instruction)", mcause)
	}
	mepc, _ := csrFile.Read(csr.Mepc, csr.Machine)
	if mepc != ram.Base {
		t.Fatalf("mepc = 0x%x, want 0x%x", mepc, uint64(ram.Base))
	}
}

// Enable MTIE/mstatus.MIE and set MIP.MTIP directly (the bit a CLINT tick
// sets once mtime reaches mtimecmp): the next step takes a machine-timer
// interrupt whose target is mtvec.
func TestScenarioF_TimerInterrupt(t *testing.T) {
	h, _, _, csrFile := newTestHart(t)
	csrFile.Write(csr.Mie, csr.Machine, 1<<7)
	csrFile.Write(csr.Mstatus, csr.Machine, 1<<3)
	csrFile.Write(csr.Mtvec, csr.Machine, 0x8000_2000)
	csrFile.SetMTIP(true)

	h.Step()

	if h.PC() != 0x8000_2000 {
		t.Fatalf("pc = 0x%x, want mtvec 0x8000_2000", h.PC())
	}
	if h.Mode() != csr.Machine {
		t.Fatalf("mode = %v, want Machine", h.Mode())
	}
	mcause, _ := csrFile.Read(csr.Mcause, csr.Machine)
	want := uint64(1)<<63 | 7
	if mcause != want {
		t.Fatalf("mcause = 0x%x, want 0x%x", mcause, want)
	}
}
