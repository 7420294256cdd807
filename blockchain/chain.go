// Package blockchain implements the consensus engine: block and
// transaction validation, chain-state maintenance, difficulty
// retargeting, and reorganisation over a single-parent,
// most-cumulative-work chain (spec.md §4.1): the classic longest-chain
// rule in place of a GHOSTDAG multi-parent block DAG.
package blockchain

import (
	"math/big"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
	"github.com/pkg/errors"
)

// blockNode is the consensus engine's in-memory header index entry. It
// tracks enough of a block's header plus derived fields (cumulative work,
// height) to decide tip selection without re-reading the block body.
type blockNode struct {
	hash           chainhash.Hash
	parent         *blockNode
	header         wire.BlockHeader
	height         uint64
	cumulativeWork *big.Int

	// status records how far through the state machine this node has
	// progressed (spec.md §4.1 "State machine").
	status blockStatus
}

type blockStatus uint8

const (
	statusHeadersValidated blockStatus = iota
	statusBodyValidated
	statusInBestChain
	statusInSideBranch
	statusInvalid
)

// Chain is the consensus engine: the single owner of chain state and the
// UTXO set (spec.md §9 "single owner + snapshots"). All mutation of tip
// state flows through Chain.ProcessBlock; every other component reads via
// snapshots or the narrow query methods below.
type Chain struct {
	params *chaincfg.Params

	mtx sync.RWMutex

	index    map[chainhash.Hash]*blockNode
	blocks   map[chainhash.Hash]*wire.MsgBlock
	heightIndex map[uint64]chainhash.Hash

	tip *blockNode
	utxo *UTXOSet

	// spentEntries records, per connected block hash, the UTXO entries
	// its transactions consumed — the information a later disconnect
	// (reorganisation) needs to restore them.
	spentEntries map[chainhash.Hash]map[wire.Outpoint]*UTXOEntry

	orphans *orphanCache
	invalid map[chainhash.Hash]struct{}

	// subscribers receive tip-advanced notifications (spec.md §9, the
	// mempool ↔ consensus decoupling). Never called back into Chain.
	subscribers []TipAdvancedHandler
}

// TipAdvancedHandler is invoked after every tip-advancing commit. addedTxIDs
// are transaction identities newly confirmed; restoredTxs are non-coinbase
// transactions of disconnected blocks that should be re-offered to the
// mempool.
type TipAdvancedHandler func(addedTxIDs []chainhash.Hash, restoredTxs []*wire.MsgTx)

// New constructs a Chain seeded with params' genesis block.
func New(params *chaincfg.Params) (*Chain, error) {
	c := &Chain{
		params:      params,
		index:       make(map[chainhash.Hash]*blockNode),
		blocks:      make(map[chainhash.Hash]*wire.MsgBlock),
		heightIndex: make(map[uint64]chainhash.Hash),
		utxo:         NewUTXOSet(),
		spentEntries: make(map[chainhash.Hash]map[wire.Outpoint]*UTXOEntry),
		orphans:      newOrphanCache(),
		invalid:      make(map[chainhash.Hash]struct{}),
	}

	genesis := params.GenesisBlock
	hash := genesis.Header.BlockHash()
	node := &blockNode{
		hash:           hash,
		header:         genesis.Header,
		height:         genesis.Header.Height,
		cumulativeWork: chaincfg.CalcWork(genesis.Header.Bits),
		status:         statusInBestChain,
	}
	c.index[hash] = node
	c.blocks[hash] = genesis
	c.heightIndex[node.height] = hash
	c.tip = node

	diff := NewUTXODiff()
	for txIdx, tx := range genesis.Transactions {
		txID := tx.TxID()
		for outIdx, out := range tx.TxOut {
			diff.Added[wire.Outpoint{TxID: txID, Index: uint32(outIdx)}] =
				NewUTXOEntry(uint64(out.Value), out.ScriptPubKey, node.height, txIdx == 0)
		}
	}
	if _, err := c.utxo.Apply(diff); err != nil {
		return nil, errors.Wrap(err, "applying genesis utxo diff")
	}
	c.spentEntries[hash] = make(map[wire.Outpoint]*UTXOEntry)

	return c, nil
}

// Tip returns the current best-chain tip header, height, and cumulative
// work (spec.md §3 "Chain state").
func (c *Chain) Tip() (hash chainhash.Hash, height uint64, work *big.Int) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.tip.hash, c.tip.height, new(big.Int).Set(c.tip.cumulativeWork)
}

// UTXOSet returns the chain's live UTXO set. Callers other than the
// consensus worker must treat it as read-only.
func (c *Chain) UTXOSet() *UTXOSet {
	return c.utxo
}

// Params returns the network parameters this chain validates against.
func (c *Chain) Params() *chaincfg.Params {
	return c.params
}

// BlockByHash returns a previously accepted block body.
func (c *Chain) BlockByHash(hash chainhash.Hash) (*wire.MsgBlock, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	b, ok := c.blocks[hash]
	return b, ok
}

// BlockByHeight returns the best-chain block at height, if any.
func (c *Chain) BlockByHeight(height uint64) (*wire.MsgBlock, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	hash, ok := c.heightIndex[height]
	if !ok {
		return nil, false
	}
	b, ok := c.blocks[hash]
	return b, ok
}

// HaveBlock reports whether hash is already indexed, whether as
// best-chain, side-branch, or known-invalid.
func (c *Chain) HaveBlock(hash chainhash.Hash) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if _, ok := c.index[hash]; ok {
		return true
	}
	_, ok := c.invalid[hash]
	return ok
}

// Subscribe registers a handler invoked after every tip-advancing commit.
func (c *Chain) Subscribe(h TipAdvancedHandler) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.subscribers = append(c.subscribers, h)
}

// NextDifficulty returns the difficulty bits a block extending the
// current tip must carry (spec.md §4.1 "Difficulty retargeting").
func (c *Chain) NextDifficulty() uint32 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.calcNextDifficultyLocked(c.tip)
}

func (c *Chain) calcNextDifficultyLocked(prevNode *blockNode) uint32 {
	nextHeight := prevNode.height + 1
	if nextHeight%c.params.RetargetInterval != 0 {
		return prevNode.header.Bits
	}

	windowStart := prevNode
	for i := uint64(1); i < c.params.RetargetInterval && windowStart.parent != nil; i++ {
		windowStart = windowStart.parent
	}

	actualTimespan := prevNode.header.Timestamp - windowStart.header.Timestamp
	targetTimespan := int64(c.params.RetargetInterval) * int64(c.params.TargetTimePerBlock/time.Second)

	minTimespan := targetTimespan / c.params.RetargetAdjustmentFactor
	maxTimespan := targetTimespan * c.params.RetargetAdjustmentFactor
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	}
	if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	oldTarget := chaincfg.CompactToBig(prevNode.header.Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))

	if newTarget.Cmp(c.params.PowLimit) > 0 {
		newTarget = c.params.PowLimit
	}
	return chaincfg.BigToCompact(newTarget)
}

// medianTimePast returns the median timestamp of the MedianTimeBlocks
// headers ending at node (spec.md §4.1 "Timestamp").
func medianTimePast(node *blockNode, count int) int64 {
	timestamps := make([]int64, 0, count)
	for n := node; n != nil && len(timestamps) < count; n = n.parent {
		timestamps = append(timestamps, n.header.Timestamp)
	}
	// insertion sort; count is always small (11)
	for i := 1; i < len(timestamps); i++ {
		for j := i; j > 0 && timestamps[j-1] > timestamps[j]; j-- {
			timestamps[j-1], timestamps[j] = timestamps[j], timestamps[j-1]
		}
	}
	return timestamps[len(timestamps)/2]
}
