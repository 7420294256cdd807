// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"math/big"
	"testing"

	"github.com/ledgerforge/ledgerd/contractvm"
)

func TestContractAccountStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	accounts := NewContractAccountStore(store)

	var addr contractvm.Address
	addr[0] = 0x42
	acct := &contractvm.Account{
		Bytecode:     []byte{0x00, 0x01, 0x02},
		Balance:      500,
		Nonce:        3,
		DeployHeight: 10,
	}
	accounts.SetAccount(addr, acct)

	got, ok := accounts.GetAccount(addr)
	if !ok {
		t.Fatalf("GetAccount did not find the account just set")
	}
	if got.Balance != 500 || got.Nonce != 3 || got.DeployHeight != 10 {
		t.Fatalf("decoded account mismatch: %+v", got)
	}
	if string(got.Bytecode) != string(acct.Bytecode) {
		t.Fatalf("bytecode mismatch: %x != %x", got.Bytecode, acct.Bytecode)
	}
}

func TestContractAccountStoreMissing(t *testing.T) {
	store := openTestStore(t)
	accounts := NewContractAccountStore(store)
	var addr contractvm.Address
	if _, ok := accounts.GetAccount(addr); ok {
		t.Fatalf("expected no account for an address never set")
	}
}

func TestContractAccountStoreSatisfiesEngineUsage(t *testing.T) {
	store := openTestStore(t)
	accounts := NewContractAccountStore(store)
	kv := NewContractKVStore(store)
	engine := contractvm.NewEngine(accounts, kv)

	var deployer contractvm.Address
	code := []byte{0x00} // OpStop
	addr, result := engine.Deploy(deployer, code, 10, 100000)
	if !result.Success {
		t.Fatalf("deploy failed: %s", result.Err)
	}
	gotCode, ok := engine.GetCode(addr)
	if !ok || string(gotCode) != string(code) {
		t.Fatalf("engine backed by durable stores did not round-trip deployed bytecode")
	}
}

func TestContractKVStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	kv := NewContractKVStore(store)

	var addr contractvm.Address
	addr[1] = 0x09
	var slot [32]byte
	slot[31] = 5
	value := big.NewInt(123456)

	kv.Set(addr, slot, value)
	got, ok := kv.Get(addr, slot)
	if !ok {
		t.Fatalf("Get did not find the slot just Set")
	}
	if got.Cmp(value) != 0 {
		t.Fatalf("got %s, want %s", got, value)
	}
}

func TestContractKVStoreMissingSlot(t *testing.T) {
	store := openTestStore(t)
	kv := NewContractKVStore(store)
	var addr contractvm.Address
	var slot [32]byte
	if _, ok := kv.Get(addr, slot); ok {
		t.Fatalf("expected no value for an unset slot")
	}
}

func TestContractKVStoreDistinguishesAddressesAndSlots(t *testing.T) {
	store := openTestStore(t)
	kv := NewContractKVStore(store)

	var addrA, addrB contractvm.Address
	addrA[0] = 1
	addrB[0] = 2
	var slot [32]byte

	kv.Set(addrA, slot, big.NewInt(1))
	kv.Set(addrB, slot, big.NewInt(2))

	gotA, _ := kv.Get(addrA, slot)
	gotB, _ := kv.Get(addrB, slot)
	if gotA.Cmp(big.NewInt(1)) != 0 || gotB.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("values leaked across contract addresses: a=%s b=%s", gotA, gotB)
	}
}
