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

// Package htif implements the host-interface test-harness sink described
// in spec.md §6, grounded on original_source/src/devices/ysyx.rs: a pair of
// 64-bit words ("tohost" written by the guest, "fromhost" written by the
// host) that the core does not interpret itself but exposes for an outer
// poller (internal/hostio) to decode.
package htif

import (
	"sync"
	"sync/atomic"

	"rv64emu/internal/bus"
	"rv64emu/internal/trap"
)

// Default addresses; overridden at boot if the ELF carries tohost/fromhost
// symbols (internal/elfloader resolves them and cmd/riscemu calls
// SetAddresses).
const (
	DefaultToHost   = 0x4000_1000
	DefaultFromHost = 0x4000_1008
	regSize         = 8
)

// Htif is the host-interface device.
type Htif struct {
	mu sync.Mutex

	toHostAddr   uint64
	fromHostAddr uint64

	toHost   uint64
	fromHost uint64

	// written signals to the poller that ToHost() changed; Poll drains it.
	written atomic.Bool
}

// New returns an Htif at the default addresses.
func New() *Htif {
	return &Htif{toHostAddr: DefaultToHost, fromHostAddr: DefaultFromHost}
}

// SetAddresses overrides the tohost/fromhost physical addresses; the boot
// code calls it with the symbols the ELF loader found in the image.
func (h *Htif) SetAddresses(toHost, fromHost uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toHostAddr = toHost
	h.fromHostAddr = fromHost
}

func (h *Htif) Contains(addr uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return (addr >= h.toHostAddr && addr < h.toHostAddr+regSize) ||
		(addr >= h.fromHostAddr && addr < h.fromHostAddr+regSize)
}

// Poll is called by internal/hostio's HTIF poller. It returns the current
// tohost value and whether it has changed since the last successful Poll.
func (h *Htif) Poll() (value uint64, changed bool) {
	if !h.written.CompareAndSwap(true, false) {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.toHost, true
}

// Reply lets the host write a value into fromhost (e.g. to provide console
// input via the SBI-style read path).
func (h *Htif) Reply(value uint64) {
	h.mu.Lock()
	h.fromHost = value
	h.mu.Unlock()
}

func (h *Htif) Read64(addr uint64) (uint64, trap.Trap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case addr == h.toHostAddr:
		return h.toHost, trap.Trap{}
	case addr == h.fromHostAddr:
		return h.fromHost, trap.Trap{}
	default:
		return 0, trap.NewException(trap.LoadAccessFault, addr)
	}
}

func (h *Htif) Write64(addr uint64, v uint64) trap.Trap {
	h.mu.Lock()
	switch {
	case addr == h.toHostAddr:
		h.toHost = v
		h.mu.Unlock()
		h.written.Store(true)
		return trap.Trap{}
	case addr == h.fromHostAddr:
		h.fromHost = v
		h.mu.Unlock()
		return trap.Trap{}
	default:
		h.mu.Unlock()
		return trap.NewException(trap.StoreAMOAccessFault, addr)
	}
}

func (h *Htif) Read8(addr uint64) (uint8, trap.Trap) {
	v, t := h.Read64(addr &^ 7)
	return byte(v >> ((addr & 7) * 8)), t
}
func (h *Htif) Read16(addr uint64) (uint16, trap.Trap) {
	v, t := h.Read64(addr &^ 7)
	return uint16(v >> ((addr & 6) * 8)), t
}
func (h *Htif) Read32(addr uint64) (uint32, trap.Trap) {
	v, t := h.Read64(addr &^ 7)
	return uint32(v >> ((addr & 4) * 8)), t
}

func (h *Htif) Write8(addr uint64, data uint8) trap.Trap {
	base := addr &^ 7
	cur, _ := h.Read64(base)
	shift := (addr & 7) * 8
	cur = (cur &^ (0xFF << shift)) | (uint64(data) << shift)
	return h.Write64(base, cur)
}
func (h *Htif) Write16(addr uint64, data uint16) trap.Trap {
	base := addr &^ 7
	cur, _ := h.Read64(base)
	shift := (addr & 6) * 8
	cur = (cur &^ (0xFFFF << shift)) | (uint64(data) << shift)
	return h.Write64(base, cur)
}
func (h *Htif) Write32(addr uint64, data uint32) trap.Trap {
	base := addr &^ 7
	cur, _ := h.Read64(base)
	shift := (addr & 4) * 8
	cur = (cur &^ (0xFFFFFFFF << shift)) | (uint64(data) << shift)
	return h.Write64(base, cur)
}

func (h *Htif) AtomicRMW32(addr uint64, op func(uint32) uint32, _ bus.Ordering) (uint32, trap.Trap) {
	old, t := h.Read32(addr)
	if !t.IsNone() {
		return 0, t
	}
	return old, h.Write32(addr, op(old))
}

func (h *Htif) AtomicRMW64(addr uint64, op func(uint64) uint64, _ bus.Ordering) (uint64, trap.Trap) {
	old, t := h.Read64(addr)
	if !t.IsNone() {
		return 0, t
	}
	return old, h.Write64(addr, op(old))
}
