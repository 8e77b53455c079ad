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

package ram

import "unsafe"

// ptrAt returns a pointer to byte offset i of data, used to hand the host's
// atomic primitives a naturally-aligned word within the backing slice.
// Callers (AtomicRMW32/64) are reached from the hart's AMO handler
// (execAMO), which rejects addresses that are not naturally aligned before
// the MMU is called, so this never aliases across a word boundary.
func ptrAt(data []byte, i int) unsafe.Pointer {
	return unsafe.Pointer(&data[i])
}
