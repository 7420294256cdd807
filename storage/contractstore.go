// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/contractvm"
)

// contractAccountPrefix and contractSlotPrefix share the Store's
// keyspace with prefixContract but tag a different value shape, so a
// single goleveldb handle backs both contractvm.AccountStore and
// contractvm.KVStore (spec.md §6's "contract store: address ->
// bytecode/balance/nonce plus (address, slot) -> value").
const (
	contractAccountPrefix = 'A'
	contractSlotPrefix    = 'S'
)

func contractAccountKey(addr contractvm.Address) []byte {
	key := make([]byte, 2+20)
	key[0] = prefixContract
	key[1] = contractAccountPrefix
	copy(key[2:], addr[:])
	return key
}

func contractSlotKey(addr contractvm.Address, slot [32]byte) []byte {
	key := make([]byte, 2+20+32)
	key[0] = prefixContract
	key[1] = contractSlotPrefix
	copy(key[2:22], addr[:])
	copy(key[22:], slot[:])
	return key
}

// ContractAccountStore adapts a Store into contractvm.AccountStore.
type ContractAccountStore struct {
	store *Store
}

// NewContractAccountStore wraps store for use as an Engine's AccountStore.
func NewContractAccountStore(store *Store) *ContractAccountStore {
	return &ContractAccountStore{store: store}
}

// GetAccount implements contractvm.AccountStore.
func (c *ContractAccountStore) GetAccount(addr contractvm.Address) (*contractvm.Account, bool) {
	raw, err := c.store.db.Get(contractAccountKey(addr), nil)
	if err != nil {
		return nil, false
	}
	acct, err := decodeAccount(raw)
	if err != nil {
		return nil, false
	}
	return acct, true
}

// SetAccount implements contractvm.AccountStore.
func (c *ContractAccountStore) SetAccount(addr contractvm.Address, acct *contractvm.Account) {
	_ = c.store.db.Put(contractAccountKey(addr), encodeAccount(acct), nil)
}

func encodeAccount(acct *contractvm.Account) []byte {
	header := make([]byte, 24)
	binary.BigEndian.PutUint64(header[0:8], acct.Balance)
	binary.BigEndian.PutUint64(header[8:16], acct.Nonce)
	binary.BigEndian.PutUint64(header[16:24], acct.DeployHeight)
	return append(header, acct.Bytecode...)
}

func decodeAccount(raw []byte) (*contractvm.Account, error) {
	if len(raw) < 24 {
		return nil, errors.Errorf("truncated contract account: %d bytes", len(raw))
	}
	return &contractvm.Account{
		Balance:      binary.BigEndian.Uint64(raw[0:8]),
		Nonce:        binary.BigEndian.Uint64(raw[8:16]),
		DeployHeight: binary.BigEndian.Uint64(raw[16:24]),
		Bytecode:     append([]byte(nil), raw[24:]...),
	}, nil
}

// ContractKVStore adapts a Store into contractvm.KVStore, persisting
// each contract's storage slots durably (spec.md §4.3's persistence
// requirement, C7a).
type ContractKVStore struct {
	store *Store
}

// NewContractKVStore wraps store for use as an Engine's KVStore.
func NewContractKVStore(store *Store) *ContractKVStore {
	return &ContractKVStore{store: store}
}

// Get implements contractvm.KVStore.
func (c *ContractKVStore) Get(addr contractvm.Address, slot [32]byte) (*big.Int, bool) {
	raw, err := c.store.db.Get(contractSlotKey(addr, slot), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false
		}
		return nil, false
	}
	return new(big.Int).SetBytes(raw), true
}

// Set implements contractvm.KVStore.
func (c *ContractKVStore) Set(addr contractvm.Address, slot [32]byte, value *big.Int) {
	_ = c.store.db.Put(contractSlotKey(addr, slot), value.Bytes(), nil)
}
