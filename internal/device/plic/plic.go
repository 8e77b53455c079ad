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

// Package plic implements a platform-level interrupt controller, grounded
// on original_source/src/devices/plic.rs: per-source priority, a pending
// bitmap, per-context (machine/supervisor) enable bitmaps, thresholds, and
// claim/complete registers for a single hart.
package plic

import (
	"sync"

	"rv64emu/internal/bus"
	"rv64emu/internal/csr"
	"rv64emu/internal/trap"
)

const (
	Base = 0x0C00_0000
	size = 0x0400_0000

	priorityStart = 0x000004
	priorityEnd   = 0x000FFF
	pendingStart  = 0x001000
	pendingEnd    = 0x00107F
	enableStart   = 0x002000
	enableEnd     = 0x1F1FFF
	contextStart  = 0x200000
	contextEnd    = 0x3FFFFFF

	numSources = 1024
	numWords   = numSources / 32

	// Context indices, matching the teacher's Pair{machine, supervisor}.
	ctxMachine    = 0
	ctxSupervisor = 1
	numContexts   = 2

	enableStride  = 0x80
	contextStride = 0x1000
)

// Plic is the controller for one hart with two interrupt contexts.
type Plic struct {
	mu sync.Mutex

	priority [numSources]uint32
	pending  [numWords]uint32
	enable   [numContexts][numWords]uint32
	threshold [numContexts]uint32
	claimed  [numContexts][numSources]bool

	csrFile *csr.File
}

// New returns a Plic wired to the hart's CSR file so Tick can assert
// MEIP/SEIP.
func New(csrFile *csr.File) *Plic {
	return &Plic{csrFile: csrFile}
}

func (p *Plic) Contains(addr uint64) bool {
	return addr >= Base && addr < Base+size
}

// Irq sets or clears the pending bit for a source, called by devices (e.g.
// the UART) when their interrupt condition changes, matching uart.rs's
// `bus.plic.lock().unwrap().irq(INTERRUPT_ID, pending)` call.
func (p *Plic) Irq(source uint32, pending bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	word, bit := source/32, source%32
	if pending {
		p.pending[word] |= 1 << bit
	} else {
		p.pending[word] &^= 1 << bit
	}
}

// Tick recomputes, for each context, whether any enabled pending source
// above threshold exists and asserts MEIP/SEIP accordingly (spec.md §6:
// "recomputes which external source, if any, should assert
// MIP.MEIP/SEIP").
func (p *Plic) Tick() {
	p.mu.Lock()
	mFire := p.anyReady(ctxMachine)
	sFire := p.anyReady(ctxSupervisor)
	p.mu.Unlock()

	p.csrFile.SetMEIP(mFire)
	p.csrFile.SetSEIP(sFire)
}

func (p *Plic) anyReady(ctx int) bool {
	for src := 1; src < numSources; src++ {
		word, bit := src/32, uint32(src%32)
		if p.pending[word]&(1<<bit) == 0 {
			continue
		}
		if p.enable[ctx][word]&(1<<bit) == 0 {
			continue
		}
		if p.priority[src] <= p.threshold[ctx] {
			continue
		}
		return true
	}
	return false
}

func (p *Plic) claimHighest(ctx int) uint32 {
	best := uint32(0)
	bestPrio := p.threshold[ctx]
	for src := 1; src < numSources; src++ {
		word, bit := src/32, uint32(src%32)
		if p.pending[word]&(1<<bit) == 0 {
			continue
		}
		if p.enable[ctx][word]&(1<<bit) == 0 {
			continue
		}
		if p.priority[src] > bestPrio {
			bestPrio = p.priority[src]
			best = uint32(src)
		}
	}
	if best != 0 {
		word, bit := best/32, best%32
		p.pending[word] &^= 1 << bit
		p.claimed[ctx][best] = true
	}
	return best
}

func (p *Plic) Read32(addr uint64) (uint32, trap.Trap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	off := addr - Base
	switch {
	case off >= priorityStart && off <= priorityEnd:
		return p.priority[(off-priorityStart)/4], trap.Trap{}
	case off >= pendingStart && off <= pendingEnd:
		return p.pending[(off-pendingStart)/4], trap.Trap{}
	case off >= enableStart && off <= enableEnd:
		ctx, word := enableIndex(off)
		if ctx >= numContexts || word >= numWords {
			return 0, trap.Trap{}
		}
		return p.enable[ctx][word], trap.Trap{}
	case off >= contextStart && off <= contextEnd:
		ctx, reg := contextIndex(off)
		if ctx >= numContexts {
			return 0, trap.Trap{}
		}
		if reg == 0 {
			return p.threshold[ctx], trap.Trap{}
		}
		return p.claimHighest(ctx), trap.Trap{}
	default:
		return 0, trap.Trap{}
	}
}

func (p *Plic) Write32(addr uint64, v uint32) trap.Trap {
	p.mu.Lock()
	defer p.mu.Unlock()
	off := addr - Base
	switch {
	case off >= priorityStart && off <= priorityEnd:
		p.priority[(off-priorityStart)/4] = v
	case off >= pendingStart && off <= pendingEnd:
		// Pending is read-only from software's perspective.
	case off >= enableStart && off <= enableEnd:
		ctx, word := enableIndex(off)
		if ctx < numContexts && word < numWords {
			p.enable[ctx][word] = v
		}
	case off >= contextStart && off <= contextEnd:
		ctx, reg := contextIndex(off)
		if ctx >= numContexts {
			return trap.Trap{}
		}
		if reg == 0 {
			p.threshold[ctx] = v
		} else {
			// Complete: v is the source ID being completed.
			if v < numSources {
				p.claimed[ctx][v] = false
			}
		}
	default:
		return trap.NewException(trap.StoreAMOAccessFault, addr)
	}
	return trap.Trap{}
}

func enableIndex(off uint64) (ctx int, word int) {
	rel := off - enableStart
	ctx = int(rel / enableStride)
	word = int((rel % enableStride) / 4)
	return
}

func contextIndex(off uint64) (ctx int, reg int) {
	rel := off - contextStart
	ctx = int(rel / contextStride)
	reg = int((rel % contextStride) / 4) // 0 = threshold, 1 = claim/complete
	return
}

// --- byte/half/64-bit and atomic accessors, composed from Read32/Write32
// the way a real 32-bit-register-only device would be accessed (the PLIC
// spec only defines word-sized registers). ---

func (p *Plic) Read8(addr uint64) (uint8, trap.Trap) {
	v, t := p.Read32(addr &^ 3)
	return byte(v >> ((addr & 3) * 8)), t
}

func (p *Plic) Read16(addr uint64) (uint16, trap.Trap) {
	v, t := p.Read32(addr &^ 3)
	return uint16(v >> ((addr & 2) * 8)), t
}

func (p *Plic) Read64(addr uint64) (uint64, trap.Trap) {
	lo, t := p.Read32(addr)
	if !t.IsNone() {
		return 0, t
	}
	hi, t := p.Read32(addr + 4)
	return uint64(lo) | uint64(hi)<<32, t
}

func (p *Plic) Write8(addr uint64, v uint8) trap.Trap {
	cur, _ := p.Read32(addr &^ 3)
	shift := (addr & 3) * 8
	cur = (cur &^ (0xFF << shift)) | (uint32(v) << shift)
	return p.Write32(addr&^3, cur)
}

func (p *Plic) Write16(addr uint64, v uint16) trap.Trap {
	cur, _ := p.Read32(addr &^ 3)
	shift := (addr & 2) * 8
	cur = (cur &^ (0xFFFF << shift)) | (uint32(v) << shift)
	return p.Write32(addr&^3, cur)
}

func (p *Plic) Write64(addr uint64, v uint64) trap.Trap {
	if t := p.Write32(addr, uint32(v)); !t.IsNone() {
		return t
	}
	return p.Write32(addr+4, uint32(v>>32))
}

func (p *Plic) AtomicRMW32(addr uint64, op func(uint32) uint32, _ bus.Ordering) (uint32, trap.Trap) {
	old, t := p.Read32(addr)
	if !t.IsNone() {
		return 0, t
	}
	return old, p.Write32(addr, op(old))
}

func (p *Plic) AtomicRMW64(addr uint64, op func(uint64) uint64, _ bus.Ordering) (uint64, trap.Trap) {
	old, t := p.Read64(addr)
	if !t.IsNone() {
		return 0, t
	}
	newV := op(old)
	if t := p.Write32(addr, uint32(newV)); !t.IsNone() {
		return 0, t
	}
	return old, p.Write32(addr+4, uint32(newV>>32))
}
