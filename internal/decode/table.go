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

// Package decode implements the static, dependency-ordered decode table
// described in spec.md §4.2 and §9: a structure indexed by the 7-bit
// primary opcode, each bucket holding (mask, match, handler) triples tried
// in insertion order. It knows nothing about instruction semantics — those
// live in internal/hart, registered into a Table built once at hart
// construction time (matching the teacher's one-shot `decode()` table
// construction style rather than per-instruction reflection).
package decode

import (
	"rv64emu/internal/csr"
	"rv64emu/internal/mmu"
	"rv64emu/internal/trap"
)

// Core is the surface a Handler needs from the hart. It is defined here
// (not in package hart) so this package has no import on hart, letting
// hart build tables of Handlers that close over nothing but this
// interface — the hart package implements it on *hart.Hart.
type Core interface {
	X(reg uint32) uint64
	SetX(reg uint32, v uint64)
	F(reg uint32) uint64
	SetF(reg uint32, v uint64)
	PC() uint64
	SetPC(v uint64)
	Mode() csr.Mode
	SetMode(m csr.Mode)
	CSR() *csr.File
	MMU() *mmu.MMU
	SetWaitForInterrupt(bool)
	AccumulateFPFlags(flags uint8)
}

// Handler executes one decoded instruction. word is the 32-bit (possibly
// decompressed) instruction; length is 2 or 4, the original encoded width,
// which branch/jump handlers need to compute "target - length" per §4.1.
// Handlers return trap.None on success; they must not advance the PC
// except for control-flow and system-return instructions (§4.6).
type Handler func(c Core, word uint32, length uint64) trap.Trap

// Entry is one (mask, match, handler) triple within an opcode's bucket.
type Entry struct {
	Mask, Match uint32
	Handler     Handler
	Name        string
}

// Table is the first-stage dispatch structure, bucketed by the 7-bit
// opcode (bits [6:0]).
type Table struct {
	buckets [128][]Entry
}

// NewTable returns an empty table; callers add entries with Add.
func NewTable() *Table {
	return &Table{}
}

// Add registers an entry under the given 7-bit opcode bucket. Entries are
// tried in the order added, matching §4.2's "first (mask, match) pair...
// wins".
func (t *Table) Add(opcode uint32, e Entry) {
	t.buckets[opcode&0x7F] = append(t.buckets[opcode&0x7F], e)
}

// Lookup finds the handler for a 32-bit instruction word, or ok=false if no
// bucket entry matches (the caller raises illegal-instruction).
func (t *Table) Lookup(word uint32) (Handler, bool) {
	bucket := t.buckets[word&0x7F]
	for _, e := range bucket {
		if word&e.Mask == e.Match {
			return e.Handler, true
		}
	}
	return nil, false
}
