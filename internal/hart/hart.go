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

// Package hart implements the single-hart execution core: register file,
// fetch/decode/execute loop, and trap delivery, grounded on
// original_source/src/cpu.rs and spec.md §4.1/§4.3/§4.4.
//
// The decode table itself lives in package decode; this package only
// supplies the handlers that close over the decode.Core interface and the
// code that registers them (table.go).
package hart

import (
	"rv64emu/internal/csr"
	"rv64emu/internal/decode"
	"rv64emu/internal/mmu"
	"rv64emu/internal/trap"
)

// Hart is one RV64GC execution context: integer and floating-point
// register files, PC, privilege mode, and the CSR/MMU it drives.
type Hart struct {
	x [32]uint64
	f [32]uint64 // NaN-boxed per §4.7; single-precision values carry box 0xFFFFFFFF00000000|bits.

	pc   uint64
	mode csr.Mode

	csrFile *csr.File
	mmuRef  *mmu.MMU
	table   *decode.Table

	wfi bool

	tracer func(pc uint64, word uint32, mode uint8)
}

// SetTracer installs a per-step trace hook (internal/trace.Tracer.Step
// matches this signature); pass nil to disable tracing.
func (h *Hart) SetTracer(fn func(pc uint64, word uint32, mode uint8)) { h.tracer = fn }

// New returns a Hart at the given entry point in Machine mode, matching
// the teacher's reset state (PC = entry, all GPRs zero).
func New(entry uint64, csrFile *csr.File, m *mmu.MMU) *Hart {
	h := &Hart{
		pc:      entry,
		mode:    csr.Machine,
		csrFile: csrFile,
		mmuRef:  m,
	}
	h.table = BuildTable()
	return h
}

func (h *Hart) X(reg uint32) uint64 {
	if reg == 0 {
		return 0
	}
	return h.x[reg&0x1F]
}

func (h *Hart) SetX(reg uint32, v uint64) {
	if reg == 0 {
		return
	}
	h.x[reg&0x1F] = v
}

func (h *Hart) F(reg uint32) uint64     { return h.f[reg&0x1F] }
func (h *Hart) SetF(reg uint32, v uint64) { h.f[reg&0x1F] = v }

func (h *Hart) PC() uint64      { return h.pc }
func (h *Hart) SetPC(v uint64)  { h.pc = v }
func (h *Hart) Mode() csr.Mode  { return h.mode }
func (h *Hart) SetMode(m csr.Mode) { h.mode = m }

func (h *Hart) CSR() *csr.File { return h.csrFile }
func (h *Hart) MMU() *mmu.MMU  { return h.mmuRef }

func (h *Hart) SetWaitForInterrupt(w bool) { h.wfi = w }

// AccumulateFPFlags ORs the given IEEE exception flags into FFLAGS, the way
// every FP arithmetic handler must after computing its result (§4.8).
func (h *Hart) AccumulateFPFlags(flags uint8) { h.csrFile.SetExceptionFlags(flags) }

// pendingForWFI reports whether an interrupt is pending in MIP&MIE
// regardless of the global enable bit, which is what wakes a WFI-stalled
// hart even when interrupts are not currently deliverable (§4.1: "WFI may
// legally resume execution on any pending-and-masked interrupt").
func (h *Hart) pendingForWFI() bool {
	_, ok := h.csrFile.PendingInterrupt(csr.Machine)
	if ok {
		return true
	}
	_, ok = h.csrFile.PendingInterrupt(csr.User)
	return ok
}

// Step executes exactly one architectural instruction (or services one
// trap/interrupt in its place), per spec.md §4.1's ordering:
//  1. check for a pending, enabled interrupt and deliver it if present;
//  2. if waiting-for-interrupt, resume only once one is pending;
//  3. fetch (decompressing if needed), decode, execute;
//  4. unconditionally advance PC by the instruction's encoded length.
//     Branch/jump/system-return handlers set PC to target-length rather
//     than target, so this add-length always produces the right absolute
//     address (spec.md §4.1) — a handler cannot "leave PC alone" to signal
//     anything, since a self-targeting jump has to set PC too.
func (h *Hart) Step() {
	if intr, ok := h.csrFile.PendingInterrupt(h.mode); ok {
		h.wfi = false
		h.deliverTrap(trap.NewInterrupt(intr))
		return
	}

	if h.wfi {
		if h.pendingForWFI() {
			h.wfi = false
		}
		return
	}

	word, length, wasCompressed, t := h.fetch()
	if !t.IsNone() {
		h.deliverTrap(t)
		return
	}
	if h.tracer != nil {
		h.tracer(h.pc, word, uint8(h.mode))
	}

	handler, ok := h.table.Lookup(word)
	if !ok {
		// A word produced by decompression is always built from opcodes
		// BuildTable registers handlers for; a lookup miss there means the
		// expander and the table disagree, not that the guest did anything
		// illegal.
		debugAssert(!wasCompressed, "decompressed word has no decode-table entry")
		h.deliverTrap(trap.NewException(trap.IllegalInstruction, uint64(word)))
		return
	}

	t = handler(h, word, length)
	if !t.IsNone() {
		h.deliverTrap(t)
		return
	}
	// §4.1: branch/jump/system-return handlers set PC to target-length, not
	// target, so this unconditional advance always lands on the intended
	// absolute address — including a self-targeting jump like JAL x0,0.
	h.pc += length
}

// fetch reads one instruction at PC, decompressing a 16-bit compressed form
// into its 32-bit equivalent (§4.2). The two halves of a non-compressed
// instruction are each independently translated, matching the MMU's
// straddling-fetch contract.
func (h *Hart) fetch() (word uint32, length uint64, wasCompressed bool, t trap.Trap) {
	lo, t := h.mmuRef.FetchHalf(h.pc, h.mode, h.csrFile)
	if !t.IsNone() {
		return 0, 0, false, t
	}
	if lo&0x3 != 0x3 {
		expanded, ok := decode.Decompress(lo)
		if !ok {
			return 0, 2, false, trap.NewException(trap.IllegalInstruction, uint64(lo))
		}
		return expanded, 2, true, trap.None
	}
	hi, t := h.mmuRef.FetchHalf(h.pc+2, h.mode, h.csrFile)
	if !t.IsNone() {
		return 0, 0, false, t
	}
	return uint32(lo) | uint32(hi)<<16, 4, false, trap.None
}

// deliverTrap implements §4.3/§4.4: pick the target mode via MEDELEG/
// MIDELEG, stack EPC/CAUSE/TVAL, flip privilege, and compute the vectored
// or direct target from TVEC.
func (h *Hart) deliverTrap(t trap.Trap) {
	code := t.Code()
	var delegated bool
	if t.IsInterrupt {
		delegated = h.mode != csr.Machine && (h.csrFile.ReadMideleg()>>code)&1 == 1
	} else {
		delegated = h.mode != csr.Machine && (h.csrFile.ReadMedeleg()>>code)&1 == 1
	}

	fromMode := h.mode
	if delegated {
		h.csrFile.WriteSepc(h.pc)
		h.csrFile.WriteScause(t.Cause())
		h.csrFile.WriteStval(t.Value)
		h.csrFile.EnterTrapS(fromMode)
		h.mode = csr.Supervisor
		h.pc = tvecTarget(h.csrFile.ReadStvec(), t)
		return
	}

	h.csrFile.WriteMepc(h.pc)
	h.csrFile.WriteMcause(t.Cause())
	h.csrFile.WriteMtval(t.Value)
	h.csrFile.EnterTrapM(fromMode)
	h.mode = csr.Machine
	h.pc = tvecTarget(h.csrFile.ReadMtvec(), t)
}

func tvecTarget(tvec uint64, t trap.Trap) uint64 {
	base := tvec &^ 0b11
	mode := tvec & 0b11
	if mode == 1 && t.IsInterrupt {
		return base + 4*t.Code()
	}
	return base
}
