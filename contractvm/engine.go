// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package contractvm

import (
	"encoding/binary"
	"math/big"

	"github.com/ledgerforge/ledgerd/chainhash"
)

// Account is a contract's durable metadata: its bytecode, balance,
// nonce, and deploy height (spec.md §3's "contract account" glossary
// entry). Persistent storage slots live separately in a KVStore.
type Account struct {
	Bytecode     []byte
	Balance      uint64
	Nonce        uint64
	DeployHeight uint64
}

// AccountStore persists contract accounts, keyed by address.
type AccountStore interface {
	GetAccount(addr Address) (*Account, bool)
	SetAccount(addr Address, acct *Account)
}

// MemoryAccountStore is an in-process AccountStore.
type MemoryAccountStore struct {
	accounts map[Address]*Account
}

// NewMemoryAccountStore returns an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[Address]*Account)}
}

// GetAccount returns the account at addr, or (nil, false) if none exists.
func (m *MemoryAccountStore) GetAccount(addr Address) (*Account, bool) {
	acct, ok := m.accounts[addr]
	return acct, ok
}

// SetAccount stores acct at addr.
func (m *MemoryAccountStore) SetAccount(addr Address, acct *Account) {
	m.accounts[addr] = acct
}

// Engine executes deploy/call requests against a pair of durable stores:
// an AccountStore for contract metadata and a KVStore for per-contract
// persistent storage slots. It is the component spec.md §4.3 names
// "expose deploy(...)  and call(...)".
type Engine struct {
	accounts    AccountStore
	storage     KVStore
	deployNonce map[Address]uint64
}

// NewEngine builds an Engine over the given durable stores.
func NewEngine(accounts AccountStore, storage KVStore) *Engine {
	return &Engine{
		accounts:    accounts,
		storage:     storage,
		deployNonce: make(map[Address]uint64),
	}
}

// deriveAddress computes the deterministic contract address for a
// (deployer, nonce) pair: the low 20 bytes of DoubleHashH(deployer ||
// nonce), mirroring how a P2PKH address is itself a truncated hash
// (spec.md §3).
func deriveAddress(deployer Address, nonce uint64) Address {
	buf := make([]byte, 20+8)
	copy(buf, deployer[:])
	binary.BigEndian.PutUint64(buf[20:], nonce)
	digest := chainhash.DoubleHashB(buf)
	var addr Address
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

// Deploy installs bytecode as a new contract owned by deployer, runs its
// constructor path (the bytecode itself, with empty calldata) with
// gasLimit, and returns the new contract's address alongside the
// execution result (spec.md §4.3).
func (e *Engine) Deploy(deployer Address, bytecode []byte, value uint64, gasLimit uint64) (Address, ExecResult) {
	nonce := e.deployNonce[deployer]
	contractAddr := deriveAddress(deployer, nonce)
	e.deployNonce[deployer] = nonce + 1

	j := newJournal(e.storage)
	ctx := &execContext{
		code:     bytecode,
		calldata: nil,
		value:    new(big.Int).SetUint64(value),
		caller:   deployer,
		self:     contractAddr,
		journal:  j,
		gas:      gasMeter{remaining: gasLimit},
	}
	result := ctx.run()
	if !result.Success {
		log.Debugf("deploy from %x reverted: %s", deployer, result.Err)
		return Address{}, result
	}

	e.accounts.SetAccount(contractAddr, &Account{
		Bytecode:     bytecode,
		Balance:      value,
		Nonce:        0,
		DeployHeight: 0,
	})
	result.NewAddress = contractAddr
	result.HasNewAddress = true
	return contractAddr, result
}

// SetDeployHeight records the block height a contract was deployed at,
// called by the chain once the deploying transaction's block commits.
func (e *Engine) SetDeployHeight(addr Address, height uint64) {
	acct, ok := e.accounts.GetAccount(addr)
	if !ok {
		return
	}
	acct.DeployHeight = height
	e.accounts.SetAccount(addr, acct)
}

// Call invokes contractAddr's bytecode against calldata, returning
// ErrContractNotFound in the result if no bytecode is deployed there.
func (e *Engine) Call(caller Address, contractAddr Address, calldata []byte, value uint64, gasLimit uint64) ExecResult {
	acct, ok := e.accounts.GetAccount(contractAddr)
	if !ok {
		return ExecResult{Success: false, Err: execErrorf(ErrContractNotFound, "no contract deployed at this address")}
	}

	j := newJournal(e.storage)
	ctx := &execContext{
		code:     acct.Bytecode,
		calldata: calldata,
		value:    new(big.Int).SetUint64(value),
		caller:   caller,
		self:     contractAddr,
		journal:  j,
		gas:      gasMeter{remaining: gasLimit},
	}
	result := ctx.run()
	if result.Success && value > 0 {
		acct.Balance += value
		acct.Nonce++
		e.accounts.SetAccount(contractAddr, acct)
	} else if !result.Success {
		log.Debugf("call to %x reverted: %s", contractAddr, result.Err)
	}
	return result
}

// GetCode returns the bytecode deployed at addr, or (nil, false) if no
// contract exists there (backs the contract_getCode RPC method).
func (e *Engine) GetCode(addr Address) ([]byte, bool) {
	acct, ok := e.accounts.GetAccount(addr)
	if !ok {
		return nil, false
	}
	return acct.Bytecode, true
}

// GetStorage returns the current value of a contract's storage slot,
// bypassing any in-flight (uncommitted) invocation.
func (e *Engine) GetStorage(addr Address, slot [32]byte) *big.Int {
	if v, ok := e.storage.Get(addr, slot); ok {
		return v
	}
	return new(big.Int)
}
