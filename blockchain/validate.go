package blockchain

import (
	"math/big"
	"time"

	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/wire"
)

// dustThreshold is the lowest output amount the engine will accept
// (spec.md §8 boundary behaviour: "An output of exactly the dust
// threshold is accepted; one below is rejected").
const dustThreshold = 546

// maxTimeOffset bounds how far a header's timestamp may sit ahead of the
// local clock (spec.md §4.1).
const maxTimeOffset = 2 * time.Hour

// CalcBlockSubsidy returns the coinbase reward at height, halving every
// SubsidyHalvingInterval blocks and flooring at zero past 63 halvings
// (spec.md §4.6).
func CalcBlockSubsidy(height uint64, initialSubsidy, halvingInterval uint64) uint64 {
	halvings := height / halvingInterval
	if halvings >= 64 {
		return 0
	}
	return initialSubsidy >> halvings
}

// checkTransactionSanity validates a transaction in isolation, without
// reference to the UTXO set: non-empty inputs/outputs, no duplicate
// inputs, no overflow of the total output value (spec.md §4.1
// "Transaction validation").
func checkTransactionSanity(tx *wire.MsgTx, isCoinbase bool) error {
	if len(tx.TxIn) == 0 {
		return ruleError(ErrInvalidTransaction, "transaction has no inputs")
	}
	if len(tx.TxOut) == 0 {
		return ruleError(ErrInvalidTransaction, "transaction has no outputs")
	}

	var total uint64
	for _, out := range tx.TxOut {
		total += out.Value
		if total < out.Value {
			return ruleError(ErrInvalidTransaction, "total output value overflows")
		}
	}

	if isCoinbase {
		if len(tx.TxIn) != 1 || !tx.TxIn[0].PreviousOutpoint.IsNull() {
			return ruleError(ErrInvalidTransaction, "coinbase transaction malformed")
		}
		scriptLen := len(tx.TxIn[0].SignatureScript)
		if scriptLen < 2 || scriptLen > 100 {
			return ruleError(ErrInvalidTransaction, "coinbase script length out of range")
		}
		return nil
	}

	seen := make(map[wire.Outpoint]struct{}, len(tx.TxIn))
	for _, in := range tx.TxIn {
		if in.PreviousOutpoint.IsNull() {
			return ruleError(ErrInvalidTransaction, "non-coinbase transaction has a null outpoint")
		}
		if _, dup := seen[in.PreviousOutpoint]; dup {
			return ruleError(ErrInvalidTransaction, "duplicate input outpoint")
		}
		seen[in.PreviousOutpoint] = struct{}{}
	}

	return nil
}

// checkBlockSanity performs the structural checks that do not need chain
// context: non-empty transaction list, coinbase-first, size bound, and a
// Merkle root that matches the recomputed root (spec.md §4.1 step 1).
func checkBlockSanity(block *wire.MsgBlock) error {
	if len(block.Transactions) == 0 {
		return ruleError(ErrInvalidBlock, "block has no transactions")
	}
	if block.SerializeSize() > wire.MaxBlockSize {
		return ruleErrorf(ErrInvalidBlock, "block size %d exceeds MaxBlockSize", block.SerializeSize())
	}

	if err := checkTransactionSanity(block.Transactions[0], true); err != nil {
		return err
	}
	for _, tx := range block.Transactions[1:] {
		if err := checkTransactionSanity(tx, false); err != nil {
			return err
		}
	}

	txIDs := make([]chainhash.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		txIDs[i] = tx.TxID()
	}
	root := crypto.MerkleRoot(txIDs)
	if root != block.Header.MerkleRoot {
		return ruleError(ErrInvalidBlock, "merkle root mismatch")
	}

	return nil
}

// checkProofOfWork verifies hash(header) <= target, the canonical PoW
// condition (spec.md §4.1 step 3, §8 "A header whose hash equals exactly
// the target is valid").
func checkProofOfWork(hash chainhash.Hash, bits uint32, powLimit *big.Int) error {
	target := chaincfg.CompactToBig(bits)
	if target.Sign() <= 0 || target.Cmp(powLimit) > 0 {
		return ruleError(ErrProofOfWorkInvalid, "difficulty target out of allowed range")
	}

	hashNum := hashToBig(hash)
	if hashNum.Cmp(target) > 0 {
		return ruleError(ErrProofOfWorkInvalid, "block hash exceeds target")
	}
	return nil
}

// hashToBig interprets a hash as a big-endian big.Int by reversing its
// (little-endian-displayed) byte order, matching the convention the
// compact difficulty encoding assumes.
func hashToBig(hash chainhash.Hash) *big.Int {
	reversed := make([]byte, chainhash.HashSize)
	for i := 0; i < chainhash.HashSize; i++ {
		reversed[i] = hash[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(reversed)
}

// checkTimestamp validates a header's timestamp against median-time-past
// and the local-clock tolerance (spec.md §4.1 step 5).
func checkTimestamp(timestamp int64, medianTimePast int64, now time.Time) error {
	if timestamp <= medianTimePast {
		return ruleError(ErrInvalidBlock, "timestamp is not after median time past")
	}
	if time.Unix(timestamp, 0).After(now.Add(maxTimeOffset)) {
		return ruleError(ErrInvalidBlock, "timestamp too far in the future")
	}
	return nil
}

// verifyInputScript verifies an input's unlocking script against the
// locking script of the output it spends (spec.md §4.1 "Script
// verification").
func verifyInputScript(tx *wire.MsgTx, idx int, utxoScript []byte, sigCache *txscript.SigCache) error {
	if err := txscript.VerifyInput(tx, idx, utxoScript, sigCache); err != nil {
		return ruleErrorf(ErrScriptFailure, "%s", err)
	}
	return nil
}
