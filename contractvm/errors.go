// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package contractvm

import "fmt"

// ErrorCode classifies why a deploy/call halted without completing,
// mirroring blockchain.ErrorCode's shape for the two error families
// spec.md §7 names here: ContractExecutionFailed and ContractNotFound.
type ErrorCode int

const (
	// ErrOutOfGas indicates the gas meter was exhausted mid-execution.
	ErrOutOfGas ErrorCode = iota
	// ErrStackUnderflow indicates an opcode popped more values than the
	// stack held.
	ErrStackUnderflow
	// ErrStackOverflow indicates a push exceeded the maximum stack depth.
	ErrStackOverflow
	// ErrInvalidOpcode indicates the program counter landed on a byte
	// that is not a recognized opcode.
	ErrInvalidOpcode
	// ErrInvalidJump indicates a JUMP/JUMPI target is not a JUMPDEST.
	ErrInvalidJump
	// ErrMemoryOutOfBounds indicates a memory access exceeded the bound
	// this machine enforces.
	ErrMemoryOutOfBounds
	// ErrExplicitRevert indicates the contract executed REVERT.
	ErrExplicitRevert
	// ErrContractNotFound indicates a call targeted an address with no
	// deployed bytecode.
	ErrContractNotFound
)

var errorCodeStrings = map[ErrorCode]string{
	ErrOutOfGas:           "OutOfGas",
	ErrStackUnderflow:     "StackUnderflow",
	ErrStackOverflow:      "StackOverflow",
	ErrInvalidOpcode:      "InvalidOpcode",
	ErrInvalidJump:        "InvalidJump",
	ErrMemoryOutOfBounds:  "MemoryOutOfBounds",
	ErrExplicitRevert:     "ExplicitRevert",
	ErrContractNotFound:   "ContractNotFound",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(e))
}

// ExecutionError is a non-fatal halt: the caller sees it reflected in an
// ExecResult with Success=false, never as a returned error from Deploy or
// Call (spec.md §4.3's "a result carries: success flag...").
type ExecutionError struct {
	Code   ErrorCode
	Reason string
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func execErrorf(code ErrorCode, format string, args ...interface{}) ExecutionError {
	return ExecutionError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
