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

// Package bus implements the physical-memory bus: the external collaborator
// consumed by internal/mmu (§7 of SPEC_FULL.md). It dispatches byte/half/
// word/double reads and writes, and the AMO family, to whichever device
// claims the target physical address.
//
// Grounded on original_source/src/devices/bus.rs and devices/mod.rs: a Bus
// owns a fixed set of devices and routes by address range, the way the
// teacher routes MMU slots in memory.go.
package bus

import (
	"rv64emu/internal/trap"
)

// Ordering mirrors the standard (aq, rl) -> memory-ordering mapping from
// spec.md §9: (F,F)=Relaxed, (T,F)=Acquire, (F,T)=Release, (T,T)=AcqRel.
type Ordering int

const (
	Relaxed Ordering = iota
	Acquire
	Release
	AcqRel
)

// OrderingFromAQRL implements the mapping spec.md §9 settles on.
func OrderingFromAQRL(aq, rl bool) Ordering {
	switch {
	case aq && rl:
		return AcqRel
	case aq:
		return Acquire
	case rl:
		return Release
	default:
		return Relaxed
	}
}

// Device is one memory-mapped peripheral. Addresses passed to a Device are
// already relative to nothing in particular; each device is responsible for
// knowing its own claimed range via the Bus's dispatch table, matching
// devices/device.rs's Device trait.
type Device interface {
	// Contains reports whether addr falls in this device's claimed range.
	Contains(addr uint64) bool

	Read8(addr uint64) (uint8, trap.Trap)
	Read16(addr uint64) (uint16, trap.Trap)
	Read32(addr uint64) (uint32, trap.Trap)
	Read64(addr uint64) (uint64, trap.Trap)
	Write8(addr uint64, v uint8) trap.Trap
	Write16(addr uint64, v uint16) trap.Trap
	Write32(addr uint64, v uint32) trap.Trap
	Write64(addr uint64, v uint64) trap.Trap

	AtomicRMW32(addr uint64, op func(uint32) uint32, ord Ordering) (uint32, trap.Trap)
	AtomicRMW64(addr uint64, op func(uint64) uint64, ord Ordering) (uint64, trap.Trap)
}

// Bus routes physical accesses to the device that claims the address.
type Bus struct {
	devices []Device
}

// New returns a Bus with no devices attached; use Attach to register them
// in priority order (first match wins, matching the teacher's bucket-tried-
// in-order convention in decode.go).
func New() *Bus {
	return &Bus{}
}

// Attach registers a device. Devices are tried in attachment order.
func (b *Bus) Attach(d Device) {
	b.devices = append(b.devices, d)
}

func (b *Bus) find(addr uint64) Device {
	for _, d := range b.devices {
		if d.Contains(addr) {
			return d
		}
	}
	return nil
}

func accessFault(write bool, addr uint64) trap.Trap {
	if write {
		return trap.NewException(trap.StoreAMOAccessFault, addr)
	}
	return trap.NewException(trap.LoadAccessFault, addr)
}

func (b *Bus) Read8(addr uint64) (uint8, trap.Trap) {
	d := b.find(addr)
	if d == nil {
		return 0, accessFault(false, addr)
	}
	return d.Read8(addr)
}

func (b *Bus) Read16(addr uint64) (uint16, trap.Trap) {
	d := b.find(addr)
	if d == nil {
		return 0, accessFault(false, addr)
	}
	return d.Read16(addr)
}

func (b *Bus) Read32(addr uint64) (uint32, trap.Trap) {
	d := b.find(addr)
	if d == nil {
		return 0, accessFault(false, addr)
	}
	return d.Read32(addr)
}

func (b *Bus) Read64(addr uint64) (uint64, trap.Trap) {
	d := b.find(addr)
	if d == nil {
		return 0, accessFault(false, addr)
	}
	return d.Read64(addr)
}

func (b *Bus) Write8(addr uint64, v uint8) trap.Trap {
	d := b.find(addr)
	if d == nil {
		return accessFault(true, addr)
	}
	return d.Write8(addr, v)
}

func (b *Bus) Write16(addr uint64, v uint16) trap.Trap {
	d := b.find(addr)
	if d == nil {
		return accessFault(true, addr)
	}
	return d.Write16(addr, v)
}

func (b *Bus) Write32(addr uint64, v uint32) trap.Trap {
	d := b.find(addr)
	if d == nil {
		return accessFault(true, addr)
	}
	return d.Write32(addr, v)
}

func (b *Bus) Write64(addr uint64, v uint64) trap.Trap {
	d := b.find(addr)
	if d == nil {
		return accessFault(true, addr)
	}
	return d.Write64(addr, v)
}

func (b *Bus) AtomicRMW32(addr uint64, op func(uint32) uint32, ord Ordering) (uint32, trap.Trap) {
	d := b.find(addr)
	if d == nil {
		return 0, accessFault(true, addr)
	}
	return d.AtomicRMW32(addr, op, ord)
}

func (b *Bus) AtomicRMW64(addr uint64, op func(uint64) uint64, ord Ordering) (uint64, trap.Trap) {
	d := b.find(addr)
	if d == nil {
		return 0, accessFault(true, addr)
	}
	return d.AtomicRMW64(addr, op, ord)
}

// Devices exposes the attached devices so the outer driver can tick them
// (device_tick, §6 of spec.md) without the bus needing to know about the
// hart.
func (b *Bus) Devices() []Device {
	return b.devices
}

// Ticker is implemented by devices that need periodic work (timers,
// interrupt recomputation). Devices that don't need it simply don't
// implement it; Bus.Tick type-asserts.
type Ticker interface {
	Tick()
}

// Tick advances every attached device that wants periodic work.
func (b *Bus) Tick() {
	for _, d := range b.devices {
		if t, ok := d.(Ticker); ok {
			t.Tick()
		}
	}
}
