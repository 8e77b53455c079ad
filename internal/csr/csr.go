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

// Package csr implements the control/status register file: a flat
// 4096-slot array with per-register access rules, WPRI/WARL write masks,
// aliased registers (SSTATUS/SIE/SIP as masked views of the M-mode
// registers, FFLAGS/FRM as projections of FCSR), and the trap-entry/return
// helpers the hart uses to stack and restore mode on a trap.
//
// Grounded on original_source/src/csrs.rs; addresses and masks below are
// taken from that file's constants, which match spec.md §3's table.
package csr

import (
	"sync"

	"rv64emu/internal/trap"
)

// Addresses of the CSRs this emulator gives architectural meaning to.
const (
	Fflags = 0x001
	Frm    = 0x002
	Fcsr   = 0x003

	Sstatus = 0x100
	Sie     = 0x104
	Stvec   = 0x105
	Sepc    = 0x141
	Scause  = 0x142
	Stval   = 0x143
	Sip     = 0x144
	Satp    = 0x180

	Mstatus = 0x300
	Misa    = 0x301
	Medeleg = 0x302
	Mideleg = 0x303
	Mie     = 0x304
	Mtvec   = 0x305
	Mepc    = 0x341
	Mcause  = 0x342
	Mtval   = 0x343
	Mip     = 0x344

	Mvendorid = 0xF11
	Marchid   = 0xF12
	Mimpid    = 0xF13
	Mhartid   = 0xF14
)

// WPRI/WARL write masks, per spec.md §3 and csrs.rs.
const (
	mstatusMask  uint64 = 0x8000_0000_003F_FFEA
	sstatusMask  uint64 = 0x8000_0000_000C_DE62
	mieMipMask   uint64 = 0x0AAA
	sieSipMask   uint64 = 0x0222
	trapIntoMMsk uint64 = 0b0001100010001000
	trapIntoSMsk uint64 = 0b0000000100100010
	mretMask     uint64 = 0b100001100010001000
	sretMask     uint64 = 0b100000000100100010
)

// mstatus bit positions used outside the raw read/write path.
const (
	sieBit  = 1
	mieBit  = 3
	spieBit = 5
	mpieBit = 7
	sppBit  = 8
	mppLo   = 11
	mprvBit = 17
	sumBit  = 18
	mxrBit  = 19
	tsrBit  = 22
)

// Mode is the hart privilege level, numerically matching the architectural
// encoding (00 = User, 01 = Supervisor, 11 = Machine) so it can be compared
// directly against the privilege field of a CSR address.
type Mode uint8

const (
	User       Mode = 0
	Supervisor Mode = 1
	Machine    Mode = 3
)

func (m Mode) String() string {
	switch m {
	case User:
		return "U"
	case Supervisor:
		return "S"
	case Machine:
		return "M"
	default:
		return "?"
	}
}

// File is the 4096-slot CSR register bank for one hart. mipMu guards MIP
// specifically, since device threads (timer, PLIC) set pending-interrupt
// bits concurrently with the hart reading them; every other register is
// touched only from the hart's own goroutine.
type File struct {
	regs  [4096]uint64
	mipMu sync.Mutex
}

// New returns a CSR file with MISA reporting RV64IMAFDCSU and everything
// else zeroed.
func New() *File {
	return &File{}
}

// Read performs a privilege-checked CSR read. addr is the 12-bit CSR
// address; mode is the hart's current privilege.
func (f *File) Read(addr uint16, mode Mode) (uint64, trap.Trap) {
	if !f.accessible(addr, mode) {
		return 0, trap.NewException(trap.IllegalInstruction, 0)
	}
	return f.readRaw(addr), trap.Trap{}
}

// Write performs a privilege- and read-only-checked CSR write.
func (f *File) Write(addr uint16, mode Mode, value uint64) trap.Trap {
	if addr>>10&0b11 == 0b11 {
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	if !f.accessible(addr, mode) {
		return trap.NewException(trap.IllegalInstruction, 0)
	}
	f.writeRaw(addr, value)
	return trap.Trap{}
}

func (f *File) accessible(addr uint16, mode Mode) bool {
	return addr>>8&0b11 <= uint16(mode)
}

func (f *File) readRaw(addr uint16) uint64 {
	switch addr {
	case Fflags:
		return f.regs[Fcsr] & 0b11111
	case Frm:
		return (f.regs[Fcsr] >> 5) & 0b111
	case Sstatus:
		return f.regs[Mstatus] & sstatusMask
	case Sie:
		return f.regs[Mie] & sieSipMask
	case Sip:
		return f.regs[Mip] & sieSipMask
	case Misa:
		const mxl = uint64(2) << 62
		const i, m, a, f_, d, c, s, u = 1 << 8, 1 << 12, 1, 1 << 5, 1 << 3, 1 << 2, 1 << 18, 1 << 20
		return mxl | i | m | a | f_ | d | c | s | u
	default:
		return f.regs[addr]
	}
}

func (f *File) writeRaw(addr uint16, data uint64) {
	switch addr {
	case Fflags:
		f.regs[Fcsr] = (f.regs[Fcsr] &^ 0b11111) | (data & 0b11111)
	case Frm:
		f.regs[Fcsr] = (f.regs[Fcsr] &^ 0b11100000) | ((data & 0b111) << 5)
	case Fcsr:
		f.regs[Fcsr] = data & 0xFF
	case Misa, Mvendorid, Marchid, Mimpid, Mhartid:
		// WARL: writes ignored.
	case Mstatus:
		f.regs[Mstatus] = data & mstatusMask
	case Mie:
		f.regs[Mie] = data & mieMipMask
	case Mip:
		f.regs[Mip] = data & mieMipMask
	case Sie:
		f.regs[Mie] = (f.regs[Mie] &^ sieSipMask) | (data & sieSipMask)
	case Sip:
		f.regs[Mip] = (f.regs[Mip] &^ sieSipMask) | (data & sieSipMask)
	case Sstatus:
		f.regs[Mstatus] = (f.regs[Mstatus] &^ sstatusMask) | (data & sstatusMask)
	case Mtvec, Stvec:
		mode := data & 0b11
		if mode != 0 && mode != 1 {
			mode = 0
		}
		f.regs[addr] = (data &^ 0b11) | mode
	default:
		f.regs[addr] = data
	}
}

// --- Trap entry/return, used only by the trap machinery (§4.3). ---

// EnterTrapM saves MIE into MPIE, records fromMode into MPP, and clears MIE.
func (f *File) EnterTrapM(fromMode Mode) {
	status := f.regs[Mstatus]
	mie := (status >> mieBit) & 1
	f.regs[Mstatus] = (status &^ trapIntoMMsk) | (mie << mpieBit) | (uint64(fromMode) << mppLo)
}

// EnterTrapS saves SIE into SPIE and records fromMode into SPP. fromMode
// must be User or Supervisor.
func (f *File) EnterTrapS(fromMode Mode) {
	status := f.regs[Mstatus]
	sie := (status >> sieBit) & 1
	spp := uint64(0)
	if fromMode == Supervisor {
		spp = 1
	}
	f.regs[Mstatus] = (status &^ trapIntoSMsk) | (sie << spieBit) | (spp << sppBit)
}

// ReturnFromM implements MRET: restores MPIE into MIE, sets MPIE, resets
// MPRV when the previous mode was not Machine, and resets MPP to User.
func (f *File) ReturnFromM() (targetPC uint64, newMode Mode) {
	status := f.regs[Mstatus]
	mpie := (status >> mpieBit) & 1
	mpp := Mode((status >> mppLo) & 0b11)
	mprv := uint64(0)
	if mpp == Machine {
		mprv = (status >> mprvBit) & 1
	}
	f.regs[Mstatus] = (status &^ mretMask) | (mpie << mieBit) | (1 << mpieBit) | (mprv << mprvBit)
	return f.regs[Mepc], mpp
}

// ReturnFromS implements SRET, analogous to ReturnFromM for SEPC/SPP/SIE/SPIE.
func (f *File) ReturnFromS() (targetPC uint64, newMode Mode) {
	status := f.regs[Mstatus]
	spie := (status >> spieBit) & 1
	spp := User
	if (status>>sppBit)&1 == 1 {
		spp = Supervisor
	}
	mprv := uint64(0)
	if spp == Machine {
		mprv = (status >> mprvBit) & 1
	}
	f.regs[Mstatus] = (status &^ sretMask) | (spie << sieBit) | (1 << spieBit) | (mprv << mprvBit)
	return f.regs[Sepc], spp
}

// --- Trap write helpers used directly by the trap delivery algorithm. ---

func (f *File) WriteMepc(pc uint64)      { f.regs[Mepc] = pc }
func (f *File) WriteMcause(cause uint64) { f.regs[Mcause] = cause }
func (f *File) WriteMtval(v uint64)      { f.regs[Mtval] = v }
func (f *File) ReadMtvec() uint64        { return f.regs[Mtvec] }

func (f *File) WriteSepc(pc uint64)      { f.regs[Sepc] = pc }
func (f *File) WriteScause(cause uint64) { f.regs[Scause] = cause }
func (f *File) WriteStval(v uint64)      { f.regs[Stval] = v }
func (f *File) ReadStvec() uint64        { return f.regs[Stvec] }

func (f *File) ReadMedeleg() uint64 { return f.regs[Medeleg] }
func (f *File) ReadMideleg() uint64 { return f.regs[Mideleg] }
func (f *File) ReadSatp() uint64    { return f.regs[Satp] }

func (f *File) ReadFrm() uint8 { return uint8(f.readRaw(Frm)) }

// SetExceptionFlags ORs the given IEEE flags (bits [4:0]) into FFLAGS,
// the way every FP instruction that signals an exception must.
func (f *File) SetExceptionFlags(flags uint8) {
	f.regs[Fcsr] |= uint64(flags) & 0b11111
}

// --- mstatus field projections used by the hart/MMU. ---

func (f *File) MstatusSIE() bool { return (f.regs[Mstatus]>>sieBit)&1 == 1 }
func (f *File) MstatusMIE() bool { return (f.regs[Mstatus]>>mieBit)&1 == 1 }
func (f *File) MstatusTSR() bool { return (f.regs[Mstatus]>>tsrBit)&1 == 1 }

// MstatusMPRVMPPSUMMXR returns (MPRV, MPP, SUM, MXR) for the MMU's
// effective-privilege and permission-check logic.
func (f *File) MstatusMPRVMPPSUMMXR() (mprv bool, mpp Mode, sum bool, mxr bool) {
	status := f.regs[Mstatus]
	mprv = (status>>mprvBit)&1 == 1
	mpp = Mode((status >> mppLo) & 0b11)
	sum = (status>>sumBit)&1 == 1
	mxr = (status>>mxrBit)&1 == 1
	return
}

// FS returns the FS field of mstatus (bits [14:13]): 0=Off, else dirty/on.
func (f *File) FS() uint8 {
	return uint8((f.regs[Mstatus] >> 13) & 0b11)
}

// SetFSDirty sets FS to 3 (Dirty), as every FP-state-mutating instruction
// must (loads, int<->float moves, arithmetic).
func (f *File) SetFSDirty() {
	f.regs[Mstatus] = (f.regs[Mstatus] &^ (0b11 << 13)) | (0b11 << 13)
}

// EnableFS is used at boot so FP instructions are not illegal from the
// first instruction (a real bootloader does this via mstatus CSR writes;
// the loader wires it once so conformance images that assume FS=Initial
// still run). Exposed for cmd/riscemu's boot sequence.
func (f *File) EnableFS() {
	f.regs[Mstatus] = (f.regs[Mstatus] &^ (0b11 << 13)) | (0b01 << 13)
}

// --- Pending-interrupt selection, §4.3. ---

// pendingBit describes one of the six interrupt sources; PendingInterrupt
// lists them in priority order, highest first.
type pendingBit struct {
	mie, mip uint64
	intr     trap.Interrupt
	mode     Mode
}

// PendingInterrupt returns the highest-priority interrupt that is both
// pending and enabled for delivery given the hart's current mode, or ok=false
// if none is ready.
func (f *File) PendingInterrupt(curMode Mode) (intr trap.Interrupt, ok bool) {
	ready := f.regs[Mie] & f.regs[Mip]
	candidates := []pendingBit{
		{1 << 11, 1 << 11, trap.MachineExternal, Machine},
		{1 << 3, 1 << 3, trap.MachineSoftware, Machine},
		{1 << 7, 1 << 7, trap.MachineTimer, Machine},
		{1 << 9, 1 << 9, trap.SupervisorExternal, Supervisor},
		{1 << 1, 1 << 1, trap.SupervisorSoftware, Supervisor},
		{1 << 5, 1 << 5, trap.SupervisorTimer, Supervisor},
	}
	for _, c := range candidates {
		if ready&c.mie == 0 {
			continue
		}
		if f.interruptEnabled(c.mode, curMode) {
			return c.intr, true
		}
	}
	return 0, false
}

func (f *File) interruptEnabled(targetMode, curMode Mode) bool {
	if targetMode > curMode {
		// Higher privilege than current mode always takes.
		return true
	}
	if targetMode < curMode {
		return false
	}
	if targetMode == Machine {
		return f.MstatusMIE()
	}
	return f.MstatusSIE()
}

// --- CLINT/PLIC write-through helpers (device threads call these). ---

func (f *File) SetMTIP(set bool) { f.setBit(Mip, 7, set) }
func (f *File) SetMSIP(set bool) { f.setBit(Mip, 3, set) }
func (f *File) SetMEIP(set bool) { f.setBit(Mip, 11, set) }
func (f *File) SetSEIP(set bool) { f.setBit(Mip, 9, set) }
func (f *File) SetSSIP(set bool) { f.setBit(Mip, 1, set) }
func (f *File) SetSTIP(set bool) { f.setBit(Mip, 5, set) }

func (f *File) setBit(addr uint16, bit uint, set bool) {
	f.mipMu.Lock()
	defer f.mipMu.Unlock()
	if set {
		f.regs[addr] |= 1 << bit
	} else {
		f.regs[addr] &^= 1 << bit
	}
}
