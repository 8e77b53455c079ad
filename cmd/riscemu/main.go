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

// Command riscemu boots an RV64GC ELF image under the emulator: it wires
// together the bus and devices, loads the program, and runs the hart to
// completion or to a host-requested exit.
//
// Grounded on gmofishsauce-wut4/emul/main.go: the same flag surface
// (-trace, -max-cycles, -version), the same setupTerminal/restoreTerminal/
// signal-handler shape, and the same post-run statistics block, adapted
// from the WUT-4 CPU's single-struct boot to this emulator's bus/device
// wiring.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rv64emu/internal/bus"
	"rv64emu/internal/csr"
	"rv64emu/internal/device/clint"
	"rv64emu/internal/device/htif"
	"rv64emu/internal/device/plic"
	"rv64emu/internal/device/ram"
	"rv64emu/internal/device/uart"
	"rv64emu/internal/elfloader"
	"rv64emu/internal/hart"
	"rv64emu/internal/hostio"
	"rv64emu/internal/mmu"
	"rv64emu/internal/trace"
)

var (
	traceFile   = flag.String("trace", "", "Write execution trace to file")
	maxCycles   = flag.Uint64("max-cycles", 0, "Stop after N cycles (0 = unlimited)")
	memSize     = flag.Uint64("mem-size", ram.DefaultSize, "RAM size in bytes")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

const version = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <elf-image>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("riscemu v%s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	mem := ram.New(int(*memSize))
	csrFile := csr.New()
	csrFile.EnableFS()

	b := bus.New()
	b.Attach(mem)
	clintDev := clint.New(csrFile)
	b.Attach(clintDev)
	plicDev := plic.New(csrFile)
	b.Attach(plicDev)
	uartDev := uart.New(plicDev)
	b.Attach(uartDev)
	htifDev := htif.New()
	b.Attach(htifDev)

	img, err := elfloader.Load(args[0], mem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ELF: %v\n", err)
		os.Exit(1)
	}
	if img.HasToHost {
		htifDev.SetAddresses(img.ToHost, orDefault(img.HasFromHost, img.FromHost, htif.DefaultFromHost))
	}

	m := mmu.New(b)
	cpu := hart.New(img.Entry, csrFile, m)

	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		tracer := trace.New(f)
		cpu.SetTracer(tracer.Step)
	}

	term, err := hostio.EnterRaw()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up terminal: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		term.Restore()
		os.Exit(130)
	}()

	stop := make(chan struct{})
	exitCode := 0
	exitRequested := make(chan struct{})
	exit := func(code int) {
		exitCode = code
		close(exitRequested)
	}

	go hostio.PumpConsoleInput(uartDev, stop)
	go hostio.PumpConsoleOutput(uartDev, stop)
	go hostio.PollHTIF(htifDev, stop, exit)

	start := time.Now()
	var cycles uint64

run:
	for {
		select {
		case <-exitRequested:
			break run
		default:
		}
		if *maxCycles > 0 && cycles >= *maxCycles {
			fmt.Fprintf(os.Stderr, "\nMax cycles reached (%d)\n", *maxCycles)
			break
		}
		cpu.Step()
		cycles++
		if cycles%4096 == 0 {
			b.Tick()
		}
	}
	close(stop)

	elapsed := time.Since(start)
	term.Restore()

	fmt.Fprintf(os.Stderr, "\n========================================\n")
	fmt.Fprintf(os.Stderr, "Execution completed\n")
	fmt.Fprintf(os.Stderr, "Cycles: %d\n", cycles)
	fmt.Fprintf(os.Stderr, "Time: %v\n", elapsed.Round(time.Millisecond))
	if elapsed.Seconds() > 0 {
		mhz := (float64(cycles) / 1_000_000.0) / elapsed.Seconds()
		fmt.Fprintf(os.Stderr, "Speed: %.3f MHz\n", mhz)
	}
	fmt.Fprintf(os.Stderr, "Exit code: %d\n", exitCode)
	os.Exit(exitCode)
}

func orDefault(has bool, v, def uint64) uint64 {
	if has {
		return v
	}
	return def
}
