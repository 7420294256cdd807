// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package contractvm

import "math/big"

const (
	// maxStackDepth bounds the operand stack, the call-stack-depth limit
	// spec.md §4.3 requires for a single invocation (this machine makes
	// no CALL opcode, so there is no cross-contract recursion to bound
	// separately).
	maxStackDepth = 1024

	// maxMemoryBytes bounds addressable scratch memory per invocation.
	maxMemoryBytes = 64 * 1024

	// wordBytes is the width of a stack-machine word in bytes (256 bits).
	wordBytes = 32
)

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 256)

func wrap256(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, wordModulus)
}

// stack is a bounded LIFO of 256-bit words.
type stack struct {
	values []*big.Int
}

func (s *stack) push(v *big.Int) error {
	if len(s.values) >= maxStackDepth {
		return execErrorf(ErrStackOverflow, "stack depth exceeds %d", maxStackDepth)
	}
	s.values = append(s.values, v)
	return nil
}

func (s *stack) pop() (*big.Int, error) {
	if len(s.values) == 0 {
		return nil, execErrorf(ErrStackUnderflow, "pop on empty stack")
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

func (s *stack) peek() (*big.Int, error) {
	if len(s.values) == 0 {
		return nil, execErrorf(ErrStackUnderflow, "peek on empty stack")
	}
	return s.values[len(s.values)-1], nil
}

// memory is linear scratch space addressed by byte offset, grown lazily
// up to maxMemoryBytes.
type memory struct {
	data []byte
}

func (m *memory) ensure(offset, length int) error {
	end := offset + length
	if end > maxMemoryBytes {
		return execErrorf(ErrMemoryOutOfBounds, "access to %d exceeds memory bound %d", end, maxMemoryBytes)
	}
	if end > len(m.data) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return nil
}

func (m *memory) store(offset int, word *big.Int) error {
	if err := m.ensure(offset, wordBytes); err != nil {
		return err
	}
	wordBE := make([]byte, wordBytes)
	word.FillBytes(wordBE)
	copy(m.data[offset:offset+wordBytes], wordBE)
	return nil
}

func (m *memory) load(offset int) (*big.Int, error) {
	if err := m.ensure(offset, wordBytes); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(m.data[offset : offset+wordBytes]), nil
}

func (m *memory) slice(offset, length int) ([]byte, error) {
	if err := m.ensure(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

// gasMeter decrements as opcodes execute and reports exhaustion.
type gasMeter struct {
	remaining uint64
	used      uint64
}

func (g *gasMeter) charge(op Opcode) error {
	cost, ok := GasSchedule[op]
	if !ok {
		cost = gasDefault
	}
	if cost > g.remaining {
		g.used += g.remaining
		g.remaining = 0
		return execErrorf(ErrOutOfGas, "gas exhausted executing opcode 0x%02x", byte(op))
	}
	g.remaining -= cost
	g.used += cost
	return nil
}

// padCalldata reads a 32-byte big-endian word from calldata at offset,
// zero-padding past the end the way EVM CALLDATALOAD does.
func padCalldata(calldata []byte, offset int) *big.Int {
	buf := make([]byte, wordBytes)
	if offset < len(calldata) {
		n := copy(buf, calldata[offset:])
		_ = n
	}
	return new(big.Int).SetBytes(buf)
}

// execContext is the per-invocation state a deploy or call runs with.
type execContext struct {
	code     []byte
	calldata []byte
	value    *big.Int
	caller   Address
	self     Address
	journal  *journal
	stack    stack
	memory   memory
	gas      gasMeter
	events   [][]byte
}

func isJumpDest(code []byte, pc int) bool {
	return pc >= 0 && pc < len(code) && Opcode(code[pc]) == OpJumpDest
}

// run interprets code to completion, returning the result of the
// invocation. It never returns a Go error: every failure mode is
// reflected in the returned ExecResult per spec.md §4.3's result shape.
func (ctx *execContext) run() ExecResult {
	pc := 0
	for pc < len(ctx.code) {
		op := Opcode(ctx.code[pc])

		if err := ctx.gas.charge(op); err != nil {
			return ctx.halted(err)
		}

		switch op {
		case OpStop:
			return ctx.succeeded(nil)

		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			b, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			a, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			result, err := applyArith(op, a, b)
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.stack.push(wrap256(result)); err != nil {
				return ctx.halted(err)
			}

		case OpLt, OpGt, OpEq, OpAnd, OpOr:
			b, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			a, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.stack.push(applyCompare(op, a, b)); err != nil {
				return ctx.halted(err)
			}

		case OpNot:
			a, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			zero := big.NewInt(0)
			if a.Sign() == 0 {
				zero = big.NewInt(1)
			}
			if err := ctx.stack.push(zero); err != nil {
				return ctx.halted(err)
			}

		case OpPop:
			if _, err := ctx.stack.pop(); err != nil {
				return ctx.halted(err)
			}

		case OpDup1:
			v, err := ctx.stack.peek()
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.stack.push(new(big.Int).Set(v)); err != nil {
				return ctx.halted(err)
			}

		case OpSwap1:
			if len(ctx.stack.values) < 2 {
				return ctx.halted(execErrorf(ErrStackUnderflow, "swap1 needs 2 items"))
			}
			n := len(ctx.stack.values)
			ctx.stack.values[n-1], ctx.stack.values[n-2] = ctx.stack.values[n-2], ctx.stack.values[n-1]

		case OpPush0:
			if err := ctx.stack.push(big.NewInt(0)); err != nil {
				return ctx.halted(err)
			}

		case OpPush1:
			if pc+1 >= len(ctx.code) {
				return ctx.halted(execErrorf(ErrInvalidOpcode, "PUSH1 missing operand at pc %d", pc))
			}
			if err := ctx.stack.push(big.NewInt(int64(ctx.code[pc+1]))); err != nil {
				return ctx.halted(err)
			}
			pc++

		case OpPush32:
			if pc+wordBytes >= len(ctx.code) {
				return ctx.halted(execErrorf(ErrInvalidOpcode, "PUSH32 missing operand at pc %d", pc))
			}
			v := new(big.Int).SetBytes(ctx.code[pc+1 : pc+1+wordBytes])
			if err := ctx.stack.push(v); err != nil {
				return ctx.halted(err)
			}
			pc += wordBytes

		case OpSLoad:
			slotWord, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.stack.push(ctx.journal.Load(ctx.self, toSlot(slotWord))); err != nil {
				return ctx.halted(err)
			}

		case OpSStore:
			slotWord, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			value, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			ctx.journal.Store(ctx.self, toSlot(slotWord), wrap256(value))

		case OpCallValue:
			if err := ctx.stack.push(new(big.Int).Set(ctx.value)); err != nil {
				return ctx.halted(err)
			}

		case OpCallDataSize:
			if err := ctx.stack.push(big.NewInt(int64(len(ctx.calldata)))); err != nil {
				return ctx.halted(err)
			}

		case OpCallDataLoad:
			offset, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.stack.push(padCalldata(ctx.calldata, int(offset.Int64()))); err != nil {
				return ctx.halted(err)
			}

		case OpCaller:
			if err := ctx.stack.push(addressToWord(ctx.caller)); err != nil {
				return ctx.halted(err)
			}

		case OpPC:
			if err := ctx.stack.push(big.NewInt(int64(pc))); err != nil {
				return ctx.halted(err)
			}

		case OpJumpDest:
			// no-op marker

		case OpJump:
			target, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			dest := int(target.Int64())
			if !isJumpDest(ctx.code, dest) {
				return ctx.halted(execErrorf(ErrInvalidJump, "jump target %d is not a JUMPDEST", dest))
			}
			pc = dest
			continue

		case OpJumpI:
			target, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			cond, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			if cond.Sign() != 0 {
				dest := int(target.Int64())
				if !isJumpDest(ctx.code, dest) {
					return ctx.halted(execErrorf(ErrInvalidJump, "jump target %d is not a JUMPDEST", dest))
				}
				pc = dest
				continue
			}

		case OpMStore:
			offset, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			value, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.memory.store(int(offset.Int64()), value); err != nil {
				return ctx.halted(err)
			}

		case OpMLoad:
			offset, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			v, err := ctx.memory.load(int(offset.Int64()))
			if err != nil {
				return ctx.halted(err)
			}
			if err := ctx.stack.push(v); err != nil {
				return ctx.halted(err)
			}

		case OpLog:
			offset, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			length, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			data, err := ctx.memory.slice(int(offset.Int64()), int(length.Int64()))
			if err != nil {
				return ctx.halted(err)
			}
			ctx.events = append(ctx.events, data)

		case OpReturn:
			offset, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			length, err := ctx.stack.pop()
			if err != nil {
				return ctx.halted(err)
			}
			data, err := ctx.memory.slice(int(offset.Int64()), int(length.Int64()))
			if err != nil {
				return ctx.halted(err)
			}
			return ctx.succeeded(data)

		case OpRevert:
			return ctx.reverted()

		default:
			return ctx.halted(execErrorf(ErrInvalidOpcode, "unrecognized opcode 0x%02x at pc %d", byte(op), pc))
		}

		pc++
	}
	return ctx.succeeded(nil)
}

func applyArith(op Opcode, a, b *big.Int) (*big.Int, error) {
	switch op {
	case OpAdd:
		return new(big.Int).Add(a, b), nil
	case OpSub:
		return new(big.Int).Sub(a, b), nil
	case OpMul:
		return new(big.Int).Mul(a, b), nil
	case OpDiv:
		if b.Sign() == 0 {
			return big.NewInt(0), nil
		}
		return new(big.Int).Div(a, b), nil
	case OpMod:
		if b.Sign() == 0 {
			return big.NewInt(0), nil
		}
		return new(big.Int).Mod(a, b), nil
	}
	return nil, execErrorf(ErrInvalidOpcode, "not an arithmetic opcode: 0x%02x", byte(op))
}

func applyCompare(op Opcode, a, b *big.Int) *big.Int {
	result := false
	switch op {
	case OpLt:
		result = a.Cmp(b) < 0
	case OpGt:
		result = a.Cmp(b) > 0
	case OpEq:
		result = a.Cmp(b) == 0
	case OpAnd:
		result = a.Sign() != 0 && b.Sign() != 0
	case OpOr:
		result = a.Sign() != 0 || b.Sign() != 0
	}
	if result {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

func toSlot(word *big.Int) [32]byte {
	var slot [32]byte
	word.FillBytes(slot[:])
	return slot
}

func addressToWord(addr Address) *big.Int {
	return new(big.Int).SetBytes(addr[:])
}

// ExecResult carries the outcome of a deploy or call invocation
// (spec.md §4.3: "success flag, gas consumed, return data, emitted
// events, and (on deploy) new contract address").
type ExecResult struct {
	Success        bool
	GasUsed        uint64
	ReturnData     []byte
	Events         [][]byte
	NewAddress     Address
	HasNewAddress  bool
	Err            error
}

func (ctx *execContext) succeeded(returnData []byte) ExecResult {
	ctx.journal.Commit()
	return ExecResult{
		Success:    true,
		GasUsed:    ctx.gas.used,
		ReturnData: returnData,
		Events:     ctx.events,
	}
}

func (ctx *execContext) reverted() ExecResult {
	ctx.journal.Discard()
	return ExecResult{
		Success: false,
		GasUsed: ctx.gas.used,
		Err:     execErrorf(ErrExplicitRevert, "contract executed REVERT"),
	}
}

func (ctx *execContext) halted(err error) ExecResult {
	ctx.journal.Discard()
	return ExecResult{
		Success: false,
		GasUsed: ctx.gas.used,
		Err:     err,
	}
}
