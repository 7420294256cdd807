// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mining assembles block templates from the mempool and solves
// them by proof-of-work search (spec.md §4.2). Template assembly is
// grounded in mining/mining.go (NewBlockTemplate's
// fee-ordered transaction selection and coinbase construction, rebuilt
// against this module's mempool.Pool instead of its txPrioItem heap);
// the nonce search loop is grounded in cmd/kaspaminer/mineloop.go's
// mineNextBlock (increment-and-check against the compact target) and
// domain/consensus/utils/mining/solve.go's SolveBlock, generalized here
// to a pool of concurrent workers over disjoint nonce ranges with
// cooperative cancellation instead of a single-threaded external miner
// process.
package mining

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"encoding/binary"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/mempool"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/wire"
)

// CoinbaseFlags is tagged into every coinbase's signature script, the
// way some miners tag a flag string into their own generated blocks.
const CoinbaseFlags = "/ledgerd/"

// nonceCheckInterval bounds how often a worker checks for cancellation
// between hash attempts, so a stop request is never stalled behind an
// unbounded search.
const nonceCheckInterval = 1 << 16

// Template is an unsolved candidate block together with the height it
// would occupy if accepted.
type Template struct {
	Block  *wire.MsgBlock
	Height uint64
	Fees   uint64
}

// NewBlockTemplate assembles a candidate block extending chain's
// current tip: a coinbase paying payToHash160 the subsidy plus
// collected fees, followed by the mempool's highest fee-rate
// transactions that fit within wire.MaxBlockSize.
func NewBlockTemplate(chain *blockchain.Chain, pool *mempool.Pool, payToHash160 []byte) (*Template, error) {
	tipHash, tipHeight, _ := chain.Tip()
	height := tipHeight + 1
	params := chain.Params()

	entries := pool.SelectForBlock(wire.MaxBlockSize - blockOverhead)

	var transactions []*wire.MsgTx
	var totalFees uint64
	for _, e := range entries {
		transactions = append(transactions, e.Tx)
		totalFees += e.Fee
	}

	payScript, err := txscript.PayToAddrScript(payToHash160)
	if err != nil {
		return nil, err
	}

	subsidy := blockchain.CalcBlockSubsidy(height, params.InitialSubsidy, params.SubsidyHalvingInterval)
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutpoint: wire.Outpoint{Index: 0xffffffff},
		SignatureScript:  coinbaseSigScript(height),
		Sequence:         wire.SequenceLockTimeDisabled,
	})
	coinbase.AddTxOut(&wire.TxOut{Value: subsidy + totalFees, ScriptPubKey: payScript})

	transactions = append([]*wire.MsgTx{coinbase}, transactions...)

	txIDs := make([]chainhash.Hash, len(transactions))
	for i, tx := range transactions {
		txIDs[i] = tx.TxID()
	}

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  tipHash,
			MerkleRoot: crypto.MerkleRoot(txIDs),
			Timestamp:  time.Now().Unix(),
			Bits:       chain.NextDifficulty(),
			Height:     height,
		},
		Transactions: transactions,
	}

	return &Template{Block: block, Height: height, Fees: totalFees}, nil
}

// blockHeaderSize is the fixed serialized size of a BlockHeader: 4-byte
// version, two 32-byte hashes, 8-byte timestamp, 4-byte bits, 8-byte
// nonce, 8-byte height (wire/block.go's MsgBlock.SerializeSize header
// term).
const blockHeaderSize = 4 + chainhash.HashSize*2 + 8 + 4 + 8 + 8

// blockOverhead is subtracted from wire.MaxBlockSize to leave room for
// the block header and the coinbase transaction itself when budgeting
// mempool selection.
const blockOverhead = blockHeaderSize + 512

// coinbaseSigScript tags the coinbase with the block height (so two
// coinbases at different heights never collide) followed by
// CoinbaseFlags, the way generated blocks self-identify.
func coinbaseSigScript(height uint64) []byte {
	buf := make([]byte, 8+len(CoinbaseFlags))
	binary.BigEndian.PutUint64(buf, height)
	copy(buf[8:], CoinbaseFlags)
	return buf
}

// Solve runs workerCount concurrent goroutines, each scanning a
// disjoint slice of the nonce space for a hash meeting the template's
// compact-encoded target, and returns the first block any of them
// solves. It returns nil, ctx.Err() if ctx is cancelled before any
// worker succeeds.
func Solve(ctx context.Context, template *wire.MsgBlock, workerCount int) (*wire.MsgBlock, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	target := chaincfg.CompactToBig(template.Header.Bits)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		block *wire.MsgBlock
		err   error
	}
	resultCh := make(chan result, workerCount)

	span := ^uint64(0) / uint64(workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		low := uint64(i) * span
		wg.Add(1)
		go func(workerID int, start uint64) {
			defer wg.Done()
			block, err := mineRange(ctx, template, start, target)
			if block != nil || err != nil {
				select {
				case resultCh <- result{block, err}:
				default:
				}
				cancel()
			}
		}(i, low)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		if r.block != nil {
			return r.block, nil
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return nil, ctx.Err()
}

// hashesTried is exposed for hash-rate logging, mirroring
// miner-side atomic counter.
var hashesTried uint64

// HashesTried returns and resets the number of nonce attempts made
// across all workers since the last call.
func HashesTried() uint64 {
	return atomic.SwapUint64(&hashesTried, 0)
}

func mineRange(ctx context.Context, template *wire.MsgBlock, start uint64, target *big.Int) (*wire.MsgBlock, error) {
	header := template.Header
	nonce := start
	checked := 0
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		default:
		}

		header.Nonce = nonce
		hash := header.BlockHash()
		atomic.AddUint64(&hashesTried, 1)
		if hashToBig(hash).Cmp(target) <= 0 {
			solved := *template
			solved.Header = header
			return &solved, nil
		}

		nonce++
		checked++
		if checked >= nonceCheckInterval {
			checked = 0
			select {
			case <-ctx.Done():
				return nil, nil
			default:
			}
		}
	}
}

// hashToBig interprets a hash as a big-endian big.Int by reversing its
// byte order, the same convention blockchain.checkProofOfWork uses to
// compare against a compact-encoded target.
func hashToBig(hash chainhash.Hash) *big.Int {
	reversed := make([]byte, chainhash.HashSize)
	for i := 0; i < chainhash.HashSize; i++ {
		reversed[i] = hash[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(reversed)
}
