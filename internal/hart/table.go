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

// BuildTable wires every handler in this package into the shared
// decode.Table, one Add per opcode bucket, matching the teacher's one-shot
// "decode table built once at startup" construction style.
package hart

import "rv64emu/internal/decode"

func BuildTable() *decode.Table {
	t := decode.NewTable()

	add := func(opcode uint32, name string, h decode.Handler) {
		t.Add(opcode, decode.Entry{Mask: 0x7F, Match: opcode, Handler: h, Name: name})
	}

	add(decode.OpLUI, "LUI", execLUI)
	add(decode.OpAUIPC, "AUIPC", execAUIPC)
	add(decode.OpJAL, "JAL", execJAL)
	add(decode.OpJALR, "JALR", execJALR)
	add(decode.OpBranch, "BRANCH", execBranch)
	add(decode.OpLoad, "LOAD", execLoad)
	add(decode.OpStore, "STORE", execStore)
	add(decode.OpImm, "OP-IMM", execOpImm)
	add(decode.OpImm32, "OP-IMM-32", execOpImm32)
	add(decode.OpOP, "OP", execOp)
	add(decode.OpOP32, "OP-32", execOp32)
	add(decode.OpMiscMem, "MISC-MEM", execFence)
	add(decode.OpAMO, "AMO", execAMO)
	add(decode.OpLoadFP, "LOAD-FP", execLoadFP)
	add(decode.OpStoreFP, "STORE-FP", execStoreFP)
	add(decode.OpOPFP, "OP-FP", execOPFP)
	add(decode.OpSystem, "SYSTEM", execSystem)

	add(decode.OpMADD, "FMADD", execFMADD(fmaddOp))
	add(decode.OpMSUB, "FMSUB", execFMADD(fmsubOp))
	add(decode.OpNMSUB, "FNMSUB", execFMADD(fnmsubOp))
	add(decode.OpNMADD, "FNMADD", execFMADD(fnmaddOp))

	return t
}
