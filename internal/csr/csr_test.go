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

package csr

import "testing"

func TestSstatusIsAMaskedViewOfMstatus(t *testing.T) {
	f := New()
	f.Write(Mstatus, Machine, 0xFFFF_FFFF_FFFF_FFFF)

	mstatus, _ := f.Read(Mstatus, Machine)
	if mstatus != mstatusMask {
		t.Fatalf("mstatus = 0x%x, want 0x%x (masked)", mstatus, mstatusMask)
	}

	sstatus, trp := f.Read(Sstatus, Supervisor)
	if !trp.IsNone() {
		t.Fatalf("unexpected trap reading sstatus: %+v", trp)
	}
	if sstatus != mstatusMask&sstatusMask {
		t.Fatalf("sstatus = 0x%x, want 0x%x", sstatus, mstatusMask&sstatusMask)
	}
}

func TestSieSipAliasMieMip(t *testing.T) {
	f := New()
	f.Write(Sie, Supervisor, 0xFFFF)

	sie, _ := f.Read(Sie, Supervisor)
	if sie != sieSipMask {
		t.Fatalf("sie = 0x%x, want 0x%x", sie, sieSipMask)
	}
	mie, _ := f.Read(Mie, Machine)
	if mie != sieSipMask {
		t.Fatalf("writing sie must be visible through mie: got 0x%x, want 0x%x", mie, sieSipMask)
	}

	f.SetMTIP(true)
	mip, _ := f.Read(Mip, Machine)
	if mip&(1<<7) == 0 {
		t.Fatalf("SetMTIP should set MIP bit 7")
	}
	// MTIP (bit 7) is not part of the S-mode alias mask.
	sip, _ := f.Read(Sip, Supervisor)
	if sip&(1<<7) != 0 {
		t.Fatalf("sip must not expose MTIP: got 0x%x", sip)
	}
}

// A CSR whose privilege field exceeds the current mode is inaccessible and
// both reads and writes must raise illegal-instruction.
func TestPrivilegeCheckBlocksLowerModeAccess(t *testing.T) {
	f := New()
	if _, trp := f.Read(Mstatus, User); trp.IsNone() {
		t.Fatalf("user mode must not read mstatus")
	}
	if trp := f.Write(Mstatus, Supervisor, 0); trp.IsNone() {
		t.Fatalf("supervisor mode must not write mstatus")
	}
}

// The top two bits of a CSR address mark it read-only; any write must trap
// even from Machine mode.
func TestReadOnlyCSRRejectsWrites(t *testing.T) {
	f := New()
	if trp := f.Write(Mhartid, Machine, 5); trp.IsNone() {
		t.Fatalf("mhartid is read-only and must reject writes")
	}
}

func TestFflagsFrmAreFcsrProjections(t *testing.T) {
	f := New()
	f.Write(Fflags, Machine, 0b10101)
	f.Write(Frm, Machine, 0b011)

	fcsr, _ := f.Read(Fcsr, Machine)
	if fcsr != (0b011<<5)|0b10101 {
		t.Fatalf("fcsr = 0b%b, want fflags|frm<<5", fcsr)
	}

	fflags, _ := f.Read(Fflags, Machine)
	if fflags != 0b10101 {
		t.Fatalf("fflags = 0b%b, want 0b10101", fflags)
	}
}

// PendingInterrupt must prefer machine-level sources over supervisor-level
// ones, and honor the global enable bit for the current mode.
func TestPendingInterruptPriorityAndGlobalEnable(t *testing.T) {
	f := New()
	f.Write(Mie, Machine, (1<<7)|(1<<5)) // MTIE and STIE
	f.SetMTIP(true)
	f.SetSTIP(true)

	// MIE clear: no machine-mode interrupt is deliverable while in Machine mode.
	if _, ok := f.PendingInterrupt(Machine); ok {
		t.Fatalf("expected no pending interrupt with mstatus.MIE clear")
	}

	f.Write(Mstatus, Machine, 1<<mieBit)
	intr, ok := f.PendingInterrupt(Machine)
	if !ok {
		t.Fatalf("expected a pending interrupt once MIE is set")
	}
	if intr != 7 { // trap.MachineTimer, takes priority over SupervisorTimer
		t.Fatalf("interrupt = %v, want machine timer (7)", intr)
	}

	// A trap target in a strictly higher privilege than current mode is
	// always taken regardless of that mode's own enable bit.
	if _, ok := f.PendingInterrupt(User); !ok {
		t.Fatalf("a machine-mode interrupt must preempt user mode unconditionally")
	}
}

func TestTrapEntryAndMretRoundTrip(t *testing.T) {
	f := New()
	f.Write(Mstatus, Machine, 1<<mieBit)

	f.EnterTrapM(Supervisor)
	status, _ := f.Read(Mstatus, Machine)
	if (status>>mieBit)&1 != 0 {
		t.Fatalf("MIE must be cleared on trap entry")
	}
	if (status>>mpieBit)&1 != 1 {
		t.Fatalf("MPIE must capture the prior MIE value")
	}
	if Mode((status>>mppLo)&0b11) != Supervisor {
		t.Fatalf("MPP must record the mode the trap came from")
	}

	f.WriteMepc(0x8000_0000)
	pc, mode := f.ReturnFromM()
	if pc != 0x8000_0000 {
		t.Fatalf("MRET target = 0x%x, want mepc", pc)
	}
	if mode != Supervisor {
		t.Fatalf("MRET must restore MPP as the new mode")
	}
	status, _ = f.Read(Mstatus, Machine)
	if (status>>mieBit)&1 != 1 {
		t.Fatalf("MRET must restore MIE from MPIE")
	}
}
