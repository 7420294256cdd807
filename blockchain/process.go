package blockchain

import (
	"math/big"
	"time"

	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/wire"
)

// sigCache memoizes signature verification across the lifetime of the
// chain (spec.md §9 "C1a").
var sigCache = txscript.NewSigCache(100000)

// ProcessBlock runs the full validation pipeline of spec.md §4.1 against
// block and, on success, commits it as the new tip or files it as a
// side-branch. It returns isOrphan=true when the parent is unknown — not
// a rejection, a request to retry once the parent arrives.
func (c *Chain) ProcessBlock(block *wire.MsgBlock) (isOrphan bool, err error) {
	hash := block.BlockHash()

	c.mtx.Lock()
	if _, known := c.invalid[hash]; known {
		c.mtx.Unlock()
		return false, ruleError(ErrInvalidBlock, "block previously rejected")
	}
	if _, known := c.index[hash]; known {
		c.mtx.Unlock()
		return false, nil
	}
	c.mtx.Unlock()

	if err := checkBlockSanity(block); err != nil {
		c.markInvalid(hash)
		return false, err
	}

	c.mtx.Lock()
	parent, haveParent := c.index[block.Header.PrevBlock]
	c.mtx.Unlock()
	if !haveParent {
		c.mtx.Lock()
		c.orphans.add(block)
		c.mtx.Unlock()
		return true, ruleError(ErrOrphanBlock, "parent block not known")
	}

	if err := c.acceptBlock(block, hash, parent); err != nil {
		c.markInvalid(hash)
		return false, err
	}

	c.mtx.Lock()
	pending := c.orphans.take(hash)
	c.mtx.Unlock()
	for _, orphanBlock := range pending {
		// Errors on deferred orphans surface the next time the orphan is
		// retried, not to this call's caller.
		_, _ = c.ProcessBlock(orphanBlock)
	}

	return false, nil
}

// acceptBlock validates block in the context of parent and, if its branch
// now carries the most cumulative work, connects it — performing a
// reorganisation when it forks off a different branch than the tip.
func (c *Chain) acceptBlock(block *wire.MsgBlock, hash chainhash.Hash, parent *blockNode) error {
	c.mtx.Lock()
	params := c.params
	expectedBits := c.calcNextDifficultyLocked(parent)
	mtp := medianTimePast(parent, params.MedianTimeBlocks)
	tip := c.tip
	c.mtx.Unlock()

	if err := checkProofOfWork(hash, block.Header.Bits, params.PowLimit); err != nil {
		return err
	}
	if block.Header.Bits != expectedBits {
		return ruleErrorf(ErrDifficultyMismatch, "block bits %08x, expected %08x", block.Header.Bits, expectedBits)
	}
	if err := checkTimestamp(block.Header.Timestamp, mtp, time.Now()); err != nil {
		return err
	}

	node := &blockNode{
		hash:           hash,
		parent:         parent,
		header:         block.Header,
		height:         parent.height + 1,
		cumulativeWork: new(big.Int).Add(parent.cumulativeWork, chaincfg.CalcWork(block.Header.Bits)),
		status:         statusBodyValidated,
	}

	c.mtx.Lock()
	c.index[hash] = node
	c.blocks[hash] = block
	c.mtx.Unlock()

	if node.cumulativeWork.Cmp(tip.cumulativeWork) <= 0 {
		c.mtx.Lock()
		node.status = statusInSideBranch
		c.mtx.Unlock()
		return nil
	}

	if node.parent == tip {
		return c.extendTip(block, node)
	}
	return c.reorganize(node)
}

// extendTip handles the common case: node's parent is the current tip, so
// no disconnection is needed.
func (c *Chain) extendTip(block *wire.MsgBlock, node *blockNode) error {
	snapshot := c.utxo.Snapshot()
	diff, spentEntries, err := c.checkConnectBlock(block, node, snapshot)
	if err != nil {
		return err
	}

	if _, err := c.utxo.Apply(diff); err != nil {
		return err
	}

	c.mtx.Lock()
	node.status = statusInBestChain
	c.tip.status = statusInBestChain
	c.tip = node
	c.heightIndex[node.height] = node.hash
	c.spentEntries[node.hash] = spentEntries
	subs := append([]TipAdvancedHandler(nil), c.subscribers...)
	c.mtx.Unlock()

	addedTxIDs := make([]chainhash.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		addedTxIDs[i] = tx.TxID()
	}
	for _, sub := range subs {
		sub(addedTxIDs, nil)
	}
	return nil
}

// reorganize handles node extending a branch other than the current tip:
// compute the fork point, disconnect back to it, then connect the new
// branch forward. All-or-nothing: any validation failure aborts before any
// live mutation occurs (spec.md §4.1 "Reorganisation").
func (c *Chain) reorganize(node *blockNode) error {
	c.mtx.RLock()
	oldTip := c.tip
	c.mtx.RUnlock()

	forkPoint := findForkPoint(oldTip, node)

	var disconnectChain []*blockNode
	for n := oldTip; n != forkPoint; n = n.parent {
		disconnectChain = append(disconnectChain, n)
	}
	var connectChain []*blockNode
	for n := node; n != forkPoint; n = n.parent {
		connectChain = append([]*blockNode{n}, connectChain...)
	}

	// Trial pass: mutate a disposable snapshot, never the live set, so a
	// failure anywhere aborts with the original tip untouched.
	trial := c.utxo.Snapshot()
	var restoredTxs []*wire.MsgTx
	for _, n := range disconnectChain {
		block, ok := c.BlockByHash(n.hash)
		if !ok {
			return ruleErrorf(ErrInvalidBlock, "missing block body for %s during reorg", n.hash)
		}
		spent := c.spentEntriesFor(n.hash)
		if _, err := trial.Apply(disconnectDiff(block, spent)); err != nil {
			return err
		}
		restoredTxs = append(restoredTxs, block.Transactions[1:]...)
	}

	connectDiffs := make([]*UTXODiff, len(connectChain))
	connectSpent := make([]map[wire.Outpoint]*UTXOEntry, len(connectChain))
	for i, n := range connectChain {
		block, ok := c.BlockByHash(n.hash)
		if !ok {
			return ruleErrorf(ErrInvalidBlock, "missing block body for %s during reorg", n.hash)
		}
		diff, spent, err := c.checkConnectBlock(block, n, trial)
		if err != nil {
			return err
		}
		if _, err := trial.Apply(diff); err != nil {
			return err
		}
		connectDiffs[i] = diff
		connectSpent[i] = spent
	}

	// Trial succeeded end-to-end: replay the same diffs against the live
	// set.
	for _, n := range disconnectChain {
		block, _ := c.BlockByHash(n.hash)
		spent := c.spentEntriesFor(n.hash)
		if _, err := c.utxo.Apply(disconnectDiff(block, spent)); err != nil {
			return err
		}
	}
	for i := range connectChain {
		if _, err := c.utxo.Apply(connectDiffs[i]); err != nil {
			return err
		}
	}

	c.mtx.Lock()
	for _, n := range disconnectChain {
		n.status = statusInSideBranch
		delete(c.spentEntries, n.hash)
	}
	for i, n := range connectChain {
		n.status = statusInBestChain
		c.heightIndex[n.height] = n.hash
		c.spentEntries[n.hash] = connectSpent[i]
	}
	c.tip = node
	subs := append([]TipAdvancedHandler(nil), c.subscribers...)
	c.mtx.Unlock()

	var addedTxIDs []chainhash.Hash
	for _, n := range connectChain {
		block, _ := c.BlockByHash(n.hash)
		for _, tx := range block.Transactions {
			addedTxIDs = append(addedTxIDs, tx.TxID())
		}
	}
	for _, sub := range subs {
		sub(addedTxIDs, restoredTxs)
	}
	return nil
}

// findForkPoint walks both chains back to their deepest common ancestor.
func findForkPoint(a, b *blockNode) *blockNode {
	for a.height > b.height {
		a = a.parent
	}
	for b.height > a.height {
		b = b.parent
	}
	for a != b {
		a = a.parent
		b = b.parent
	}
	return a
}

func (c *Chain) markInvalid(hash chainhash.Hash) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.invalid[hash] = struct{}{}
}

func (c *Chain) spentEntriesFor(hash chainhash.Hash) map[wire.Outpoint]*UTXOEntry {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.spentEntries[hash]
}

// disconnectDiff builds the diff that reverses block's connection: its own
// created outputs are removed, and the outputs it had spent (supplied by
// the caller from the record made when the block was originally connected)
// are restored.
func disconnectDiff(block *wire.MsgBlock, spentEntries map[wire.Outpoint]*UTXOEntry) *UTXODiff {
	diff := NewUTXODiff()
	for _, tx := range block.Transactions {
		txID := tx.TxID()
		for outIdx := range tx.TxOut {
			diff.Removed = append(diff.Removed, wire.Outpoint{TxID: txID, Index: uint32(outIdx)})
		}
	}
	for op, entry := range spentEntries {
		diff.Added[op] = entry
	}
	return diff
}
