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

package mmu

import (
	"testing"

	"rv64emu/internal/bus"
	"rv64emu/internal/csr"
	"rv64emu/internal/device/ram"
)

// SATP points to a root table whose VPN[2]=0 entry is a leaf PPN=0x80000
// with R=W=X=A=D=V=1 and U=1; a user-mode load from virtual 0x0 returns the
// byte at physical 0x8000_0000 (the PPN field encodes a 1GiB superpage, so
// VPN[2]=0 resolves directly without a second- or third-level walk).
func TestScenarioD_Sv39Superpage(t *testing.T) {
	mem := ram.New(ram.DefaultSize)
	b := bus.New()
	b.Attach(mem)
	m := New(b)
	c := csr.New()

	const rootTable = ram.Base + 0x3000
	const wantByte = 0x7A
	mem.Write8(ram.Base, wantByte)

	// PTE: V|R|W|X|U|A|D set, PPN = 0x80000 (ppns[2]=2, ppns[1]=ppns[0]=0).
	const pte = uint64(0x200000DF)
	mem.Write64(rootTable, pte)

	satpPPN := uint64(rootTable) / pageSize
	c.Write(csr.Satp, csr.Machine, (uint64(8)<<60)|satpPPN)

	got, trp := m.Read8(0, csr.User, c)
	if !trp.IsNone() {
		t.Fatalf("unexpected trap: %+v", trp)
	}
	if got != wantByte {
		t.Fatalf("translated byte = 0x%x, want 0x%x", got, wantByte)
	}
}

// A superpage entry whose lower-level PPN fields are nonzero (misaligned)
// must fault rather than silently splice in garbage address bits.
func TestSv39SuperpageMisalignedFaults(t *testing.T) {
	mem := ram.New(ram.DefaultSize)
	b := bus.New()
	b.Attach(mem)
	m := New(b)
	c := csr.New()

	const rootTable = ram.Base + 0x3000
	// Same flags as above but ppns[0] (bits [18:10]) nonzero: misaligned superpage.
	const pte = uint64(0x200000DF) | (1 << 10)
	mem.Write64(rootTable, pte)

	satpPPN := uint64(rootTable) / pageSize
	c.Write(csr.Satp, csr.Machine, (uint64(8)<<60)|satpPPN)

	_, trp := m.Read8(0, csr.User, c)
	if trp.IsNone() {
		t.Fatalf("expected a page fault for a misaligned superpage")
	}
}

// A PTE with V=0 is not present at all; the walk must fault rather than
// treating zeroed memory as a valid mapping.
func TestSv39InvalidPTEFaults(t *testing.T) {
	mem := ram.New(ram.DefaultSize)
	b := bus.New()
	b.Attach(mem)
	m := New(b)
	c := csr.New()

	const rootTable = ram.Base + 0x3000
	satpPPN := uint64(rootTable) / pageSize
	c.Write(csr.Satp, csr.Machine, (uint64(8)<<60)|satpPPN)
	// rootTable entry left at zero (V=0).

	_, trp := m.Read8(0, csr.User, c)
	if trp.IsNone() {
		t.Fatalf("expected a page fault for an invalid (V=0) PTE")
	}
}

// LR reserves an address; SC to a different address must not consume the
// reservation, and SC to the reserved address must succeed exactly once.
func TestReservationSetLockUnlock(t *testing.T) {
	m := New(bus.New())
	const addr = ram.Base + 0x100
	m.Lock(addr)

	if m.Unlock(addr + 8) {
		t.Fatalf("unlock of an unreserved address should report false")
	}
	m.Lock(addr)
	if !m.Unlock(addr) {
		t.Fatalf("unlock of the reserved address should report true")
	}
	if m.Unlock(addr) {
		t.Fatalf("reservation set must be cleared after the first unlock attempt")
	}
}
