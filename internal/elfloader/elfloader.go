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

// Package elfloader reads a static RV64 ELF image into a RAM device,
// grounded on spec.md §6 and original_source/src/main.rs's boot sequence
// (which reads a raw binary at a fixed address; this emulator upgrades
// that to proper ELF64 segment loading, described in SPEC_FULL.md §5.8).
//
// debug/elf is stdlib, not a pack dependency: none of the retrieved repos
// parse ELF themselves, and no third-party ELF-parsing library appears
// anywhere in the corpus, so there is nothing to ground a replacement on
// (DESIGN.md records this justification).
package elfloader

import (
	"debug/elf"

	"github.com/pkg/errors"

	"rv64emu/internal/device/ram"
)

// Image is the result of loading an ELF64 RISC-V executable: its entry
// point and, if present, the tohost/fromhost HTIF symbols.
type Image struct {
	Entry       uint64
	ToHost      uint64
	HasToHost   bool
	FromHost    uint64
	HasFromHost bool
}

// Load parses the ELF at path, copies every PT_LOAD segment into mem
// (zero-filling the Memsz-Filesz bss tail), and resolves the tohost/
// fromhost symbols used by the HTIF device.
func Load(path string, mem *ram.RAM) (Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return Image{}, errors.Wrap(err, "open elf")
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return Image{}, errors.New("elf: not a 64-bit image")
	}
	if f.Machine != elf.EM_RISCV {
		return Image{}, errors.Errorf("elf: unexpected machine %s, want EM_RISCV", f.Machine)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Memsz)
		n, err := prog.ReadAt(data[:prog.Filesz], 0)
		if err != nil && uint64(n) != prog.Filesz {
			return Image{}, errors.Wrapf(err, "read PT_LOAD segment at vaddr 0x%x", prog.Vaddr)
		}
		mem.Load(prog.Paddr-ram.Base, data)
	}

	img := Image{Entry: f.Entry}

	syms, err := f.Symbols()
	if err != nil {
		// Stripped binaries have no symbol table; HTIF then keeps its
		// compiled-in default addresses.
		return img, nil
	}
	for _, s := range syms {
		switch s.Name {
		case "tohost":
			img.ToHost = s.Value
			img.HasToHost = true
		case "fromhost":
			img.FromHost = s.Value
			img.HasFromHost = true
		}
	}
	return img, nil
}
