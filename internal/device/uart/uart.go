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

// Package uart implements an NS16550A-compatible console UART, grounded on
// original_source/src/devices/uart.rs. It is driven by bounded byte
// channels connected to internal/hostio's console pump goroutines rather
// than stdin/stdout directly, matching the teacher's own UART struct in
// gmofishsauce-wut4/emul/cpu.go (txChan/rxChan with a fixed-size buffer).
package uart

import (
	"sync"

	"rv64emu/internal/bus"
	"rv64emu/internal/device/plic"
	"rv64emu/internal/trap"
)

const (
	Base = 0x1000_0000
	size = 8

	InterruptID = 1

	regRBRTHR = Base + 0
	regIERDLM = Base + 1
	regIIRFCR = Base + 2
	regLCR    = Base + 3
	regMCR    = Base + 4
	regLSR    = Base + 5
	regMSR    = Base + 6
	regSCR    = Base + 7
)

const (
	ierRDI  = 0b0001
	ierTHRI = 0b0010

	iirNoInt = 0b0001
	iirTHRI  = 0b0010
	iirRDI   = 0b0100

	fcrClearRCVR = 0b0010
	fcrClearXMIT = 0b0100

	lcrDLAB = 0b1000_0000

	mcrLoop = 0b0001_0000
	mcrOUT2 = 0b0000_1000

	lsrDR   = 0b0000_0001
	lsrOE   = 0b0000_0010
	lsrBI   = 0b0001_0000
	lsrTHRE = 0b0010_0000
	lsrTEMT = 0b0100_0000
)

// Uart is the emulated console UART. RX/TX are 64-entry bounded channels so
// the hart never blocks on I/O (spec.md §5: "the hart never blocks on I/O,
// it only polls").
type Uart struct {
	mu sync.Mutex

	rx chan byte // bytes from the console reader, consumed by the hart
	tx chan byte // bytes written by the hart, consumed by the console writer

	lcr, dll, dlm, ier, iir, mcr, lsr, scr, fcr byte

	plic *plic.Plic
}

// New returns a Uart with fresh 64-byte RX/TX channels and wires it to the
// PLIC for interrupt assertion on InterruptID.
func New(p *plic.Plic) *Uart {
	return &Uart{
		rx:   make(chan byte, 64),
		tx:   make(chan byte, 64),
		dll:  0x0c,
		iir:  iirNoInt,
		mcr:  mcrOUT2,
		lsr:  lsrTEMT | lsrTHRE,
		plic: p,
	}
}

// RXChannel and TXChannel let internal/hostio's pump goroutines feed and
// drain the UART without reaching into its internals.
func (u *Uart) RXChannel() chan<- byte { return u.rx }
func (u *Uart) TXChannel() <-chan byte { return u.tx }

func (u *Uart) Contains(addr uint64) bool {
	return addr >= Base && addr < Base+size
}

// Tick recomputes LSR.DR from pending RX bytes and refreshes PLIC pending
// state, matching uart.rs's per-step Device::step.
func (u *Uart) Tick() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.rx) > 0 {
		u.lsr |= lsrDR
	}

	if u.fcr&fcrClearRCVR != 0 {
		drain(u.rx)
		u.lsr &^= lsrDR
		u.fcr &^= fcrClearRCVR
	}
	if u.fcr&fcrClearXMIT != 0 {
		u.fcr &^= fcrClearXMIT
		u.lsr |= lsrTEMT | lsrTHRE
	}

	interrupts := byte(0)
	if u.ier&ierRDI != 0 && u.lsr&lsrDR != 0 {
		interrupts |= iirRDI
	}
	if u.ier&ierTHRI != 0 && u.lsr&lsrTEMT != 0 {
		interrupts |= iirTHRI
	}
	if interrupts != 0 {
		u.iir = interrupts
		u.plic.Irq(InterruptID, true)
	} else {
		u.iir = iirNoInt
		u.plic.Irq(InterruptID, false)
	}
	if u.ier&ierTHRI == 0 {
		u.lsr |= lsrTEMT | lsrTHRE
	}
}

func drain(ch chan byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (u *Uart) Read8(addr uint64) (uint8, trap.Trap) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch addr {
	case regRBRTHR:
		if u.lcr&lcrDLAB != 0 {
			return u.dll, trap.Trap{}
		}
		if u.lsr&lsrBI != 0 {
			return 0, trap.Trap{}
		}
		select {
		case b := <-u.rx:
			u.lsr &^= lsrOE
			if len(u.rx) == 0 {
				u.lsr &^= lsrDR
			}
			return b, trap.Trap{}
		default:
			return 0, trap.Trap{}
		}
	case regIERDLM:
		if u.lcr&lcrDLAB != 0 {
			return u.dlm, trap.Trap{}
		}
		return u.ier, trap.Trap{}
	case regIIRFCR:
		return u.iir, trap.Trap{}
	case regLCR:
		return u.lcr, trap.Trap{}
	case regMCR:
		return u.mcr, trap.Trap{}
	case regLSR:
		return u.lsr, trap.Trap{}
	case regMSR:
		return 0, trap.Trap{}
	case regSCR:
		return u.scr, trap.Trap{}
	default:
		return 0, trap.NewException(trap.LoadAccessFault, addr)
	}
}

func (u *Uart) Write8(addr uint64, data uint8) trap.Trap {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch addr {
	case regRBRTHR:
		if u.lcr&lcrDLAB != 0 {
			u.dll = data
			return trap.Trap{}
		}
		u.lsr |= lsrTEMT | lsrTHRE
		if u.mcr&mcrLoop != 0 {
			select {
			case u.rx <- data:
			default:
				u.lsr |= lsrOE
			}
		} else {
			select {
			case u.tx <- data:
			default:
				u.lsr |= lsrOE
			}
		}
	case regIERDLM:
		if u.lcr&lcrDLAB != 0 {
			u.dlm = data
		} else {
			u.ier = data & 0b1111
		}
	case regIIRFCR:
		u.fcr = data
	case regLCR:
		u.lcr = data
	case regMCR:
		u.mcr = data & 0b11111
	case regSCR:
		u.scr = data
	default:
		return trap.NewException(trap.StoreAMOAccessFault, addr)
	}
	return trap.Trap{}
}

// Read16/32/64 and Write16/32/64 narrow/widen through the byte accessors;
// the 16550A is a byte-register device and nothing in the ISA requires
// wider natural accesses to it.
func (u *Uart) Read16(addr uint64) (uint16, trap.Trap) {
	v, t := u.Read8(addr)
	return uint16(v), t
}
func (u *Uart) Read32(addr uint64) (uint32, trap.Trap) {
	v, t := u.Read8(addr)
	return uint32(v), t
}
func (u *Uart) Read64(addr uint64) (uint64, trap.Trap) {
	v, t := u.Read8(addr)
	return uint64(v), t
}
func (u *Uart) Write16(addr uint64, v uint16) trap.Trap { return u.Write8(addr, uint8(v)) }
func (u *Uart) Write32(addr uint64, v uint32) trap.Trap { return u.Write8(addr, uint8(v)) }
func (u *Uart) Write64(addr uint64, v uint64) trap.Trap { return u.Write8(addr, uint8(v)) }

func (u *Uart) AtomicRMW32(addr uint64, op func(uint32) uint32, _ bus.Ordering) (uint32, trap.Trap) {
	old, t := u.Read32(addr)
	if !t.IsNone() {
		return 0, t
	}
	return old, u.Write32(addr, op(old))
}

func (u *Uart) AtomicRMW64(addr uint64, op func(uint64) uint64, _ bus.Ordering) (uint64, trap.Trap) {
	old, t := u.Read64(addr)
	if !t.IsNone() {
		return 0, t
	}
	return old, u.Write64(addr, op(old))
}
