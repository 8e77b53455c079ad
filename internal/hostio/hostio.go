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

// Package hostio connects the emulated UART and HTIF devices to the real
// terminal: a console-reader goroutine that feeds UART RX without ever
// blocking the hart, and an HTIF poller that decodes the guest's
// tohost writes into console output or program termination.
//
// Grounded on gmofishsauce-wut4/emul/main.go's setupTerminal/
// restoreTerminal pattern (golang.org/x/term raw mode) and io.go's
// non-blocking readConsole, generalized from synchronous stdin reads to
// the channel-fed design spec.md §6 requires so the hart is never stalled
// waiting on a keypress.
package hostio

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"rv64emu/internal/device/htif"
	"rv64emu/internal/device/uart"
)

// Terminal owns the raw-mode lifecycle of stdin, matching the teacher's
// save/restore pair.
type Terminal struct {
	fd    int
	saved *term.State
}

// EnterRaw puts stdin into raw mode if it is a terminal; otherwise it is a
// no-op (piped input/output, as under a test harness).
func EnterRaw() (*Terminal, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return &Terminal{fd: fd}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}
	return &Terminal{fd: fd, saved: state}, nil
}

// Restore undoes EnterRaw; safe to call multiple times or on a non-terminal.
func (t *Terminal) Restore() {
	if t == nil || t.saved == nil {
		return
	}
	term.Restore(t.fd, t.saved)
	t.saved = nil
}

// PumpConsoleInput reads stdin byte-by-byte and forwards each byte to the
// UART's RX channel, stopping when stop is closed. It uses a non-blocking
// read via golang.org/x/sys/unix so the goroutine can observe stop without
// an indefinite blocking Read call outliving the emulator's lifetime.
func PumpConsoleInput(u *uart.Uart, stop <-chan struct{}) {
	fd := int(os.Stdin.Fd())
	// Required for the EAGAIN/EWOULDBLOCK check below to ever fire: stdin
	// starts in blocking mode, and unix.Read would otherwise stall this
	// goroutine on the next keypress instead of returning control to the
	// stop-channel select below.
	_ = unix.SetNonblock(fd, true)
	buf := make([]byte, 1)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
		select {
		case u.RXChannel() <- buf[0]:
		case <-stop:
			return
		}
	}
}

// PumpConsoleOutput drains the UART's TX channel to stdout until stop is
// closed, giving guest console writes somewhere to land without the hart
// blocking on an os.Stdout.Write.
func PumpConsoleOutput(u *uart.Uart, stop <-chan struct{}) {
	for {
		select {
		case b := <-u.TXChannel():
			os.Stdout.Write([]byte{b})
		case <-stop:
			return
		}
	}
}

// HTIF exit/print encoding, matching the RISC-V International conformance
// suite's htif_util convention (spec.md §6): an odd tohost value is an
// exit code (value>>1), a magic "device=1,cmd=1" payload prints a byte.
const (
	htifDeviceShift = 56
	htifCmdShift    = 48
)

// PollHTIF drains Htif.Poll() and either writes a character to stdout (for
// a device=1,cmd=1 putchar request) or reports termination through exit
// (for any other odd value), looping until stop is closed.
func PollHTIF(h *htif.Htif, stop <-chan struct{}, exit func(code int)) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		value, changed := h.Poll()
		if !changed {
			time.Sleep(time.Millisecond)
			continue
		}
		device := value >> htifDeviceShift
		cmd := (value >> htifCmdShift) & 0xFF
		if device == 1 && cmd == 1 {
			os.Stdout.Write([]byte{byte(value)})
			continue
		}
		if value&1 == 1 {
			exit(int(value >> 1))
			return
		}
	}
}
