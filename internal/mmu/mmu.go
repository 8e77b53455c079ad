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

// Package mmu implements Sv39 virtual-to-physical translation, permission
// checks, the reservation set for LR/SC, and the atomic-memory-operation
// dispatch, grounded on original_source/src/mmu.rs and spec.md §4.5.
package mmu

import (
	"sync"

	"rv64emu/internal/bus"
	"rv64emu/internal/csr"
	"rv64emu/internal/trap"
)

const (
	pageSize = 4096
	levels   = 3
	pteSize  = 8
)

type accessType int

const (
	accExecute accessType = iota
	accRead
	accWrite
	accReadWrite // used by AMOs
)

// MMU translates addresses for one hart and dispatches to the bus. It holds
// the hart-local reservation set (§3: "Reservation set... small ordered
// list of physical addresses").
type MMU struct {
	bus *bus.Bus

	resMu sync.Mutex
	res   []uint64
}

// New returns an MMU over the given bus.
func New(b *bus.Bus) *MMU {
	return &MMU{bus: b}
}

// Lock records addr in the reservation set (LR).
func (m *MMU) Lock(addr uint64) {
	m.resMu.Lock()
	defer m.resMu.Unlock()
	m.res = append(m.res, addr)
}

// Unlock reports whether addr was reserved and clears the whole set
// regardless of the outcome (§3: "Any non-LR/SC write may invalidate
// reservations; the simplest policy is to clear on every store-conditional
// attempt regardless of outcome").
func (m *MMU) Unlock(addr uint64) bool {
	m.resMu.Lock()
	defer m.resMu.Unlock()
	found := false
	for _, a := range m.res {
		if a == addr {
			found = true
			break
		}
	}
	m.res = m.res[:0]
	return found
}

type satp struct {
	mode uint64
	ppn  uint64
}

func satpFrom(v uint64) satp {
	return satp{mode: v >> 60, ppn: v & ((1 << 44) - 1)}
}

type vaddr struct {
	invalid    bool
	vpn        [3]uint64
	pageOffset uint64
}

func vaddrFrom(v uint64) vaddr {
	top := v >> 38
	return vaddr{
		invalid: top != 0 && top != (1<<26)-1,
		vpn: [3]uint64{
			(v >> 12) & 0x1FF,
			(v >> 21) & 0x1FF,
			(v >> 30) & 0x1FF,
		},
		pageOffset: v & 0xFFF,
	}
}

type pte struct {
	invalid bool
	ppns    [3]uint64
	d, a, u, x, w, r, v bool
}

func pteFrom(v uint64) pte {
	return pte{
		invalid: v>>54 != 0,
		ppns: [3]uint64{
			(v >> 10) & 0x1FF,
			(v >> 19) & 0x1FF,
			(v >> 28) & 0x3FFFFFF,
		},
		d: (v>>7)&1 == 1,
		a: (v>>6)&1 == 1,
		u: (v>>4)&1 == 1,
		x: (v>>3)&1 == 1,
		w: (v>>2)&1 == 1,
		r: (v>>1)&1 == 1,
		v: v&1 == 1,
	}
}

func faultFor(access accessType, addr uint64) trap.Trap {
	switch access {
	case accExecute:
		return trap.NewException(trap.InstructionPageFault, addr)
	case accRead:
		return trap.NewException(trap.LoadPageFault, addr)
	default:
		return trap.NewException(trap.StoreAMOPageFault, addr)
	}
}

// CSRView is the minimal CSR surface the MMU needs, satisfied by *csr.File.
type CSRView interface {
	ReadSatp() uint64
	MstatusMPRVMPPSUMMXR() (mprv bool, mpp csr.Mode, sum bool, mxr bool)
}

func (m *MMU) translate(addr uint64, mode csr.Mode, c CSRView, access accessType) (uint64, trap.Trap) {
	s := satpFrom(c.ReadSatp())
	if s.mode != 8 {
		return addr, trap.Trap{}
	}
	mprv, mpp, sum, mxr := c.MstatusMPRVMPPSUMMXR()
	effective := mode
	if access != accExecute && mprv {
		effective = mpp
	}
	if effective == csr.Machine {
		return addr, trap.Trap{}
	}

	va := vaddrFrom(addr)
	if va.invalid {
		return 0, faultFor(access, addr)
	}

	a := s.ppn * pageSize
	i := levels - 1
	var leaf pte
	for {
		word, t := m.bus.Read64(a + va.vpn[i]*pteSize)
		if !t.IsNone() {
			return 0, faultFor(access, addr)
		}
		candidate := pteFrom(word)
		if candidate.invalid || !candidate.v || (!candidate.r && candidate.w) {
			return 0, faultFor(access, addr)
		}
		if candidate.r || candidate.x {
			leaf = candidate
			break
		}
		if i == 0 {
			return 0, faultFor(access, addr)
		}
		i--
		a = ((candidate.ppns[0]) | (candidate.ppns[1] << 9) | (candidate.ppns[2] << 18)) * pageSize
	}

	var valid bool
	switch access {
	case accExecute:
		valid = leaf.x
	case accRead:
		valid = leaf.r || (leaf.x && mxr)
	case accWrite:
		valid = leaf.w
	case accReadWrite:
		valid = leaf.r && leaf.w
	}
	if !valid {
		return 0, faultFor(access, addr)
	}

	if (effective == csr.User && !leaf.u) || (leaf.u && effective == csr.Supervisor && !sum) {
		return 0, faultFor(access, addr)
	}

	// Superpage: every lower-level PPN field must be zero.
	for j := 0; j < i; j++ {
		if leaf.ppns[j] != 0 {
			return 0, faultFor(access, addr)
		}
	}

	writeLike := access == accWrite || access == accReadWrite
	if !leaf.a || (writeLike && !leaf.d) {
		return 0, faultFor(access, addr)
	}

	var pa uint64
	for j := 0; j < i; j++ {
		pa |= va.vpn[j] << (12 + uint(j)*9)
	}
	for j := i; j < levels; j++ {
		pa |= leaf.ppns[j] << (12 + uint(j)*9)
	}
	pa |= va.pageOffset
	return pa, trap.Trap{}
}

// Fetch translates addr in Execute mode and reads a 32-bit instruction word
// through a single translation. The hart's fetch stage does not use it: it
// reads instructions with FetchHalf, translating each 16-bit half apart.
func (m *MMU) Fetch(addr uint64, mode csr.Mode, c CSRView) (uint32, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accExecute)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.Read32(pa)
}

// FetchHalf translates and reads a 16-bit instruction half (compressed
// instructions, or the low/high half of an unaligned 32-bit instruction
// per §4.5: "a 32-bit instruction that straddles a page boundary performs
// two 16-bit fetches, each independently translated").
func (m *MMU) FetchHalf(addr uint64, mode csr.Mode, c CSRView) (uint16, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accExecute)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.Read16(pa)
}

func (m *MMU) Read8(addr uint64, mode csr.Mode, c CSRView) (uint8, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accRead)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.Read8(pa)
}

func (m *MMU) Read16(addr uint64, mode csr.Mode, c CSRView) (uint16, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accRead)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.Read16(pa)
}

func (m *MMU) Read32(addr uint64, mode csr.Mode, c CSRView) (uint32, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accRead)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.Read32(pa)
}

func (m *MMU) Read64(addr uint64, mode csr.Mode, c CSRView) (uint64, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accRead)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.Read64(pa)
}

func (m *MMU) Write8(addr uint64, mode csr.Mode, c CSRView, v uint8) trap.Trap {
	pa, t := m.translate(addr, mode, c, accWrite)
	if !t.IsNone() {
		return t
	}
	return m.bus.Write8(pa, v)
}

func (m *MMU) Write16(addr uint64, mode csr.Mode, c CSRView, v uint16) trap.Trap {
	pa, t := m.translate(addr, mode, c, accWrite)
	if !t.IsNone() {
		return t
	}
	return m.bus.Write16(pa, v)
}

func (m *MMU) Write32(addr uint64, mode csr.Mode, c CSRView, v uint32) trap.Trap {
	pa, t := m.translate(addr, mode, c, accWrite)
	if !t.IsNone() {
		return t
	}
	return m.bus.Write32(pa, v)
}

func (m *MMU) Write64(addr uint64, mode csr.Mode, c CSRView, v uint64) trap.Trap {
	pa, t := m.translate(addr, mode, c, accWrite)
	if !t.IsNone() {
		return t
	}
	return m.bus.Write64(pa, v)
}

// AtomicRMW32/64 translate addr under ReadWrite permission semantics and
// dispatch the host-atomic read-modify-write to the bus.
func (m *MMU) AtomicRMW32(addr uint64, mode csr.Mode, c CSRView, op func(uint32) uint32, ord bus.Ordering) (uint32, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accReadWrite)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.AtomicRMW32(pa, op, ord)
}

func (m *MMU) AtomicRMW64(addr uint64, mode csr.Mode, c CSRView, op func(uint64) uint64, ord bus.Ordering) (uint64, trap.Trap) {
	pa, t := m.translate(addr, mode, c, accReadWrite)
	if !t.IsNone() {
		return 0, t
	}
	return m.bus.AtomicRMW64(pa, op, ord)
}

// TranslateForReservation exposes the physical address a virtual address
// resolves to, without performing an access, so LR/SC handlers can record
// and check reservations on the physical address (matching mmu.rs's
// lock_addr/unlock_addr, which operate on the address already translated
// by the caller).
func (m *MMU) TranslateForReservation(addr uint64, mode csr.Mode, c CSRView, write bool) (uint64, trap.Trap) {
	access := accRead
	if write {
		access = accReadWrite
	}
	return m.translate(addr, mode, c, access)
}
