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

// Privileged system instructions: ECALL, EBREAK, MRET, SRET, WFI, and
// SFENCE.VMA, grounded on original_source/src/instructions/privileged.rs
// and spec.md §4.4/§4.6.
package hart

import (
	"rv64emu/internal/csr"
	"rv64emu/internal/decode"
	"rv64emu/internal/trap"
)

func execPrivileged(c decode.Core, w uint32, length uint64) trap.Trap {
	f7 := funct7(w)
	r2 := rs2(w)

	switch {
	case w>>7 == 0 && f7 == 0: // ECALL (rd=0, funct3=0, rs1=0, imm=0)
		switch c.Mode() {
		case csr.User:
			return trap.NewException(trap.EnvironmentCallFromUMode, 0)
		case csr.Supervisor:
			return trap.NewException(trap.EnvironmentCallFromSMode, 0)
		default:
			return trap.NewException(trap.EnvironmentCallFromMMode, 0)
		}
	case r2 == 1 && f7 == 0: // EBREAK
		return trap.NewException(trap.Breakpoint, c.PC())
	case f7 == 0b0001000 && r2 == 0b00010: // SRET
		if c.Mode() == csr.User {
			return trap.NewException(trap.IllegalInstruction, 0)
		}
		if c.Mode() == csr.Supervisor && c.CSR().MstatusTSR() {
			return trap.NewException(trap.IllegalInstruction, 0)
		}
		pc, mode := c.CSR().ReturnFromS()
		c.SetPC(pc - length)
		c.SetMode(mode)
		return trap.None
	case f7 == 0b0011000 && r2 == 0b00010: // MRET
		if c.Mode() != csr.Machine {
			return trap.NewException(trap.IllegalInstruction, 0)
		}
		pc, mode := c.CSR().ReturnFromM()
		c.SetPC(pc - length)
		c.SetMode(mode)
		return trap.None
	case f7 == 0b0001000 && r2 == 0b00101: // WFI
		if c.Mode() == csr.Supervisor && c.CSR().MstatusTSR() {
			return trap.NewException(trap.IllegalInstruction, 0)
		}
		c.SetWaitForInterrupt(true)
		return trap.None
	case f7 == 0b0001001: // SFENCE.VMA
		// No-op: this emulator does not cache translations, so there is
		// nothing for SFENCE.VMA to invalidate (spec.md §4.6 Non-goals).
		return trap.None
	default:
		return trap.NewException(trap.IllegalInstruction, 0)
	}
}
