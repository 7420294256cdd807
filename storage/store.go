// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage persists the block store, the height index, the UTXO
// set, and contract storage to disk with goleveldb as the backing
// database (spec.md §4.8 / SPEC_FULL.md C3a "durability"). PutBlock and
// ApplyUTXODiff write a synchronously-flushed write-ahead log entry before
// their batch and delete it once the batch lands. Single-key writes
// (PutUTXOEntry, DeleteUTXOEntry, PutContractValue) go straight to the
// database without a log entry, and Open does not replay log entries
// left over from an earlier run.
package storage

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
)

// Key prefixes partition the single LevelDB keyspace the way the
// ffldb packs multiple logical buckets into one backend.
const (
	prefixBlock       = 'b' // b<hash>                -> serialized MsgBlock
	prefixHeightIndex = 'h' // h<height 8BE>           -> hash
	prefixUTXO        = 'u' // u<txid 32><index 4BE>   -> serialized UTXOEntry
	prefixContract    = 'c' // c<addr 20><key...>      -> value
	prefixWAL         = 'w' // w<seq 8BE>              -> pending batch payload
)

// Store is the durable backing store for a Chain and the contract engine.
type Store struct {
	db *leveldb.DB

	walSeq uint64
}

// Open opens (or creates) a LevelDB store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "opening storage directory")
	}
	log.Infof("opened storage at %s", dir)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(hash chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = prefixBlock
	copy(key[1:], hash[:])
	return key
}

func heightKey(height uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefixHeightIndex
	binary.BigEndian.PutUint64(key[1:], height)
	return key
}

func utxoKey(outpoint wire.Outpoint) []byte {
	key := make([]byte, 1+chainhash.HashSize+4)
	key[0] = prefixUTXO
	copy(key[1:], outpoint.TxID[:])
	binary.BigEndian.PutUint32(key[1+chainhash.HashSize:], outpoint.Index)
	return key
}

func contractKey(addr [20]byte, storageKey []byte) []byte {
	key := make([]byte, 1+20+len(storageKey))
	key[0] = prefixContract
	copy(key[1:21], addr[:])
	copy(key[21:], storageKey)
	return key
}

// writeWAL durably records payload before the caller applies the
// corresponding batch, then returns a commit func that removes the
// journal entry once the batch has landed (spec.md's "flush WAL before
// each tip advance").
func (s *Store) writeWAL(payload []byte) (commit func() error, err error) {
	s.walSeq++
	seq := s.walSeq
	key := make([]byte, 9)
	key[0] = prefixWAL
	binary.BigEndian.PutUint64(key[1:], seq)

	wo := &opt.WriteOptions{Sync: true}
	if err := s.db.Put(key, payload, wo); err != nil {
		return nil, errors.Wrap(err, "writing WAL entry")
	}
	return func() error {
		return s.db.Delete(key, nil)
	}, nil
}

// PutBlock persists block, indexing it by hash and by height.
func (s *Store) PutBlock(block *wire.MsgBlock) error {
	var buf bytes.Buffer
	if err := block.Serialize(&buf); err != nil {
		return errors.Wrap(err, "serializing block")
	}
	payload := buf.Bytes()

	commit, err := s.writeWAL(payload)
	if err != nil {
		return err
	}

	hash := block.BlockHash()
	batch := new(leveldb.Batch)
	batch.Put(blockKey(hash), payload)
	batch.Put(heightKey(block.Header.Height), hash[:])
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "committing block batch")
	}
	return commit()
}

// GetBlock returns the block stored under hash.
func (s *Store) GetBlock(hash chainhash.Hash) (*wire.MsgBlock, error) {
	raw, err := s.db.Get(blockKey(hash), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.Errorf("no stored block for hash %s", hash)
		}
		return nil, err
	}
	block := new(wire.MsgBlock)
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrap(err, "deserializing block")
	}
	return block, nil
}

// GetBlockByHeight returns the block indexed at height.
func (s *Store) GetBlockByHeight(height uint64) (*wire.MsgBlock, error) {
	hashBytes, err := s.db.Get(heightKey(height), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.Errorf("no stored block at height %d", height)
		}
		return nil, err
	}
	var hash chainhash.Hash
	copy(hash[:], hashBytes)
	return s.GetBlock(hash)
}

// encodeUTXOEntry serializes the fields of a UTXOEntry: amount (8BE),
// blockHeight (8BE), isCoinbase (1 byte), scriptPubKey length (4BE) and
// raw bytes.
func encodeUTXOEntry(w io.Writer, entry *blockchain.UTXOEntry) error {
	var header [21]byte
	binary.BigEndian.PutUint64(header[0:8], entry.Amount())
	binary.BigEndian.PutUint64(header[8:16], entry.BlockHeight())
	if entry.IsCoinbase() {
		header[16] = 1
	}
	script := entry.ScriptPubKey()
	binary.BigEndian.PutUint32(header[17:21], uint32(len(script)))
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "writing utxo entry header")
	}
	if _, err := w.Write(script); err != nil {
		return errors.Wrap(err, "writing utxo entry script")
	}
	return nil
}

// decodeUTXOEntry is encodeUTXOEntry's inverse.
func decodeUTXOEntry(raw []byte) (*blockchain.UTXOEntry, error) {
	if len(raw) < 21 {
		return nil, errors.Errorf("truncated utxo entry: %d bytes", len(raw))
	}
	amount := binary.BigEndian.Uint64(raw[0:8])
	blockHeight := binary.BigEndian.Uint64(raw[8:16])
	isCoinbase := raw[16] != 0
	scriptLen := binary.BigEndian.Uint32(raw[17:21])
	if uint32(len(raw)-21) != scriptLen {
		return nil, errors.Errorf("utxo entry script length mismatch: header says %d, have %d", scriptLen, len(raw)-21)
	}
	script := make([]byte, scriptLen)
	copy(script, raw[21:])
	return blockchain.NewUTXOEntry(amount, script, blockHeight, isCoinbase), nil
}

// PutUTXOEntry persists a single UTXO entry.
func (s *Store) PutUTXOEntry(outpoint wire.Outpoint, entry *blockchain.UTXOEntry) error {
	var buf bytes.Buffer
	if err := encodeUTXOEntry(&buf, entry); err != nil {
		return err
	}
	return s.db.Put(utxoKey(outpoint), buf.Bytes(), nil)
}

// GetUTXOEntry returns the entry stored for outpoint, or nil if unspent
// output does not exist in the store.
func (s *Store) GetUTXOEntry(outpoint wire.Outpoint) (*blockchain.UTXOEntry, error) {
	raw, err := s.db.Get(utxoKey(outpoint), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeUTXOEntry(raw)
}

// DeleteUTXOEntry removes a spent entry.
func (s *Store) DeleteUTXOEntry(outpoint wire.Outpoint) error {
	return s.db.Delete(utxoKey(outpoint), nil)
}

// ApplyUTXODiff persists diff's removals and additions as a single
// WAL-guarded batch, mirroring blockchain.UTXOSet.Apply's atomicity on
// disk (spec.md §4.2).
func (s *Store) ApplyUTXODiff(diff *blockchain.UTXODiff) error {
	batch := new(leveldb.Batch)
	for _, op := range diff.Removed {
		batch.Delete(utxoKey(op))
	}
	for op, entry := range diff.Added {
		var buf bytes.Buffer
		if err := encodeUTXOEntry(&buf, entry); err != nil {
			return err
		}
		batch.Put(utxoKey(op), buf.Bytes())
	}

	commit, err := s.writeWAL([]byte("utxo-diff"))
	if err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "committing utxo diff batch")
	}
	return commit()
}

// PutContractValue writes one key/value pair of a contract's persistent
// storage (spec.md §4.3/C7a).
func (s *Store) PutContractValue(addr [20]byte, key, value []byte) error {
	return s.db.Put(contractKey(addr, key), value, nil)
}

// GetContractValue reads one key/value pair of a contract's persistent
// storage, returning (nil, nil) if unset.
func (s *Store) GetContractValue(addr [20]byte, key []byte) ([]byte, error) {
	value, err := s.db.Get(contractKey(addr, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}
