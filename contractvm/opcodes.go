// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package contractvm implements the deterministic stack machine
// spec.md §4.3 requires: 256-bit words, bounded memory, a per-contract
// journaled key-value store, and a gas meter that halts execution on
// exhaustion. No pack example ships an opcode-level interpreter, so this
// package is written fresh in the surrounding idiom (explicit opcode
// sentinels, pkg/errors wrapping, a journal mirroring blockchain's
// UTXO-diff commit discipline) rather than adapted from any single file.
package contractvm

// Opcode is a single stack-machine instruction.
type Opcode byte

// The opcode set. This is intentionally small: enough to express
// arithmetic, storage, control flow, and the calldata/value/return
// surface a deployed contract needs, not a full EVM instruction set.
const (
	OpStop Opcode = 0x00

	OpAdd Opcode = 0x01
	OpSub Opcode = 0x02
	OpMul Opcode = 0x03
	OpDiv Opcode = 0x04
	OpMod Opcode = 0x05

	OpLt  Opcode = 0x10
	OpGt  Opcode = 0x11
	OpEq  Opcode = 0x12
	OpNot Opcode = 0x13
	OpAnd Opcode = 0x14
	OpOr  Opcode = 0x15

	OpPop    Opcode = 0x20
	OpDup1   Opcode = 0x21
	OpSwap1  Opcode = 0x22
	OpPush0  Opcode = 0x23 // pushes the literal zero word
	OpPush1  Opcode = 0x24 // pushes the following 1 byte, zero-extended
	OpPush32 Opcode = 0x25 // pushes the following 32 bytes, big-endian

	OpSLoad Opcode = 0x30
	OpSStore Opcode = 0x31

	OpCallValue    Opcode = 0x40
	OpCallDataLoad Opcode = 0x41 // pops an offset, pushes 32 bytes of calldata from it
	OpCallDataSize Opcode = 0x42
	OpCaller       Opcode = 0x43

	OpJump     Opcode = 0x50
	OpJumpI    Opcode = 0x51
	OpJumpDest Opcode = 0x52
	OpPC       Opcode = 0x53

	OpMStore Opcode = 0x60
	OpMLoad  Opcode = 0x61

	OpLog    Opcode = 0x70 // pops (offset, length), emits memory[offset:offset+length] as an event
	OpReturn Opcode = 0x71
	OpRevert Opcode = 0x72
)

// GasSchedule is the per-opcode gas cost. Unlisted opcodes cost
// gasDefault.
var GasSchedule = map[Opcode]uint64{
	OpStop:   0,
	OpAdd:    3,
	OpSub:    3,
	OpMul:    5,
	OpDiv:    5,
	OpMod:    5,
	OpLt:     3,
	OpGt:     3,
	OpEq:     3,
	OpNot:    3,
	OpAnd:    3,
	OpOr:     3,
	OpPop:    2,
	OpDup1:   3,
	OpSwap1:  3,
	OpPush0:  3,
	OpPush1:  3,
	OpPush32: 3,
	OpSLoad:  200,
	OpSStore: 5000,
	OpCallValue:    2,
	OpCallDataLoad: 3,
	OpCallDataSize: 2,
	OpCaller:       2,
	OpJump:     8,
	OpJumpI:    10,
	OpJumpDest: 1,
	OpPC:       2,
	OpMStore: 3,
	OpMLoad:  3,
	OpLog:    375,
	OpReturn: 0,
	OpRevert: 0,
}

const gasDefault = 1
