// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package contractvm

import (
	"math/big"
	"testing"
)

// stopCode deploys with a no-op constructor (STOP) and is used
// whenever the test only cares about account bookkeeping, not execution.
var stopCode = []byte{byte(OpStop)}

func TestDeployDerivesDistinctSequentialAddresses(t *testing.T) {
	e := NewEngine(NewMemoryAccountStore(), NewMemoryKVStore())
	var deployer Address
	deployer[0] = 0xaa

	addr1, result1 := e.Deploy(deployer, stopCode, 0, 100000)
	if !result1.Success {
		t.Fatalf("deploy 1 failed: %s", result1.Err)
	}
	addr2, result2 := e.Deploy(deployer, stopCode, 0, 100000)
	if !result2.Success {
		t.Fatalf("deploy 2 failed: %s", result2.Err)
	}
	if addr1 == addr2 {
		t.Fatalf("two deploys from the same deployer produced the same address")
	}
	if !result1.HasNewAddress || result1.NewAddress != addr1 {
		t.Fatalf("result1 did not report its own new address")
	}
}

func TestDeployAddressIsDeterministic(t *testing.T) {
	e1 := NewEngine(NewMemoryAccountStore(), NewMemoryKVStore())
	e2 := NewEngine(NewMemoryAccountStore(), NewMemoryKVStore())
	var deployer Address
	deployer[5] = 7

	addr1, _ := e1.Deploy(deployer, stopCode, 0, 100000)
	addr2, _ := e2.Deploy(deployer, stopCode, 0, 100000)
	if addr1 != addr2 {
		t.Fatalf("deriveAddress is not deterministic across engines: %x != %x", addr1, addr2)
	}
}

func TestDeployRecordsAccountBalanceAndBytecode(t *testing.T) {
	accounts := NewMemoryAccountStore()
	e := NewEngine(accounts, NewMemoryKVStore())
	var deployer Address

	addr, result := e.Deploy(deployer, stopCode, 500, 100000)
	if !result.Success {
		t.Fatalf("deploy failed: %s", result.Err)
	}
	acct, ok := accounts.GetAccount(addr)
	if !ok {
		t.Fatalf("account not recorded at %x", addr)
	}
	if acct.Balance != 500 {
		t.Fatalf("balance = %d, want 500", acct.Balance)
	}
	if code, ok := e.GetCode(addr); !ok || string(code) != string(stopCode) {
		t.Fatalf("GetCode did not return the deployed bytecode")
	}
}

func TestDeployFailureLeavesNoAccount(t *testing.T) {
	accounts := NewMemoryAccountStore()
	e := NewEngine(accounts, NewMemoryKVStore())
	var deployer Address

	// A constructor that reverts immediately must not install an account.
	addr, result := e.Deploy(deployer, []byte{byte(OpRevert)}, 0, 100000)
	if result.Success {
		t.Fatalf("expected the reverting constructor to fail")
	}
	if addr != (Address{}) {
		t.Fatalf("expected a zero address on deploy failure, got %x", addr)
	}
	if _, ok := e.GetCode(deriveAddress(deployer, 0)); ok {
		t.Fatalf("no account should exist at the derived contract address")
	}
}

func TestCallUnknownAddressFails(t *testing.T) {
	e := NewEngine(NewMemoryAccountStore(), NewMemoryKVStore())
	var caller, target Address
	result := e.Call(caller, target, nil, 0, 100000)
	if result.Success {
		t.Fatalf("expected a call to an undeployed address to fail")
	}
	if execErrorCode(result.Err) != ErrContractNotFound {
		t.Fatalf("err = %v, want ErrContractNotFound", result.Err)
	}
}

// TestCallPersistsStorageAcrossInvocations deploys a contract that writes a
// fixed value to slot 0, swaps in a second piece of bytecode that reads it
// back, and checks the value survives across two separate Call
// invocations — proving the journal commits through the Engine's own
// storage instance (not just within a single execContext as vm_test.go
// checks).
func TestCallPersistsStorageAcrossInvocations(t *testing.T) {
	accounts := NewMemoryAccountStore()
	storage := NewMemoryKVStore()
	e := NewEngine(accounts, storage)
	var deployer, caller Address

	writeCode := []byte{
		byte(OpPush1), 42, // value
		byte(OpPush1), 0, // slot 0
		byte(OpSStore),
		byte(OpStop),
	}
	addr, deployResult := e.Deploy(deployer, writeCode, 0, 100000)
	if !deployResult.Success {
		t.Fatalf("deploy failed: %s", deployResult.Err)
	}
	if result := e.Call(caller, addr, nil, 0, 100000); !result.Success {
		t.Fatalf("write call failed: %s", result.Err)
	}

	readCode := []byte{
		byte(OpPush1), 0, // slot 0
		byte(OpSLoad),
		byte(OpPush1), 0,
		byte(OpMStore),
		byte(OpPush1), 32,
		byte(OpPush1), 0,
		byte(OpReturn),
	}
	accounts.SetAccount(addr, &Account{Bytecode: readCode})
	result := e.Call(caller, addr, nil, 0, 100000)
	if !result.Success {
		t.Fatalf("read call failed: %s", result.Err)
	}
	if got := new(big.Int).SetBytes(result.ReturnData); got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("slot 0 = %s, want 42 (storage did not persist across calls)", got)
	}
}

func TestCallWithValueUpdatesBalanceAndNonce(t *testing.T) {
	accounts := NewMemoryAccountStore()
	e := NewEngine(accounts, NewMemoryKVStore())
	var deployer, caller Address

	addr, deployResult := e.Deploy(deployer, stopCode, 100, 100000)
	if !deployResult.Success {
		t.Fatalf("deploy failed: %s", deployResult.Err)
	}
	if result := e.Call(caller, addr, nil, 50, 100000); !result.Success {
		t.Fatalf("call failed: %s", result.Err)
	}
	acct, ok := accounts.GetAccount(addr)
	if !ok {
		t.Fatalf("account missing after call")
	}
	if acct.Balance != 150 {
		t.Fatalf("balance = %d, want 150 (100 deployed + 50 sent)", acct.Balance)
	}
	if acct.Nonce != 1 {
		t.Fatalf("nonce = %d, want 1", acct.Nonce)
	}
}

func TestSetDeployHeightOnUnknownAddressIsNoop(t *testing.T) {
	e := NewEngine(NewMemoryAccountStore(), NewMemoryKVStore())
	// Must not panic for an address with no account.
	e.SetDeployHeight(Address{}, 5)
}

func TestSetDeployHeightRecordsHeight(t *testing.T) {
	accounts := NewMemoryAccountStore()
	e := NewEngine(accounts, NewMemoryKVStore())
	var deployer Address
	addr, result := e.Deploy(deployer, stopCode, 0, 100000)
	if !result.Success {
		t.Fatalf("deploy failed: %s", result.Err)
	}
	e.SetDeployHeight(addr, 42)
	acct, _ := accounts.GetAccount(addr)
	if acct.DeployHeight != 42 {
		t.Fatalf("DeployHeight = %d, want 42", acct.DeployHeight)
	}
}

func TestGetStorageDefaultsToZero(t *testing.T) {
	e := NewEngine(NewMemoryAccountStore(), NewMemoryKVStore())
	var addr Address
	var slot [32]byte
	if got := e.GetStorage(addr, slot); got.Sign() != 0 {
		t.Fatalf("GetStorage on an unset slot = %s, want 0", got)
	}
}
