package blockchain

import (
	"github.com/ledgerforge/ledgerd/wire"
)

// ValidateTransaction runs the mempool-facing half of spec.md §4.1's
// transaction validation — sanity plus input/output checks against the
// live UTXO set — without touching chain state. It is the narrow surface
// the mempool package validates admissions through; it never mutates the
// live UTXO set (spec.md §9 "single owner + snapshots").
func (c *Chain) ValidateTransaction(tx *wire.MsgTx) (fee uint64, err error) {
	if err := checkTransactionSanity(tx, false); err != nil {
		return 0, err
	}

	c.mtx.RLock()
	height := c.tip.height
	c.mtx.RUnlock()

	snapshot := c.utxo.Snapshot()
	diff := NewUTXODiff()
	spent := make(map[wire.Outpoint]*UTXOEntry)
	return c.checkTransactionInputs(tx, height+1, snapshot, diff, spent)
}

// CoinbaseMaturity returns the number of confirmations a coinbase output
// must clear before it is spendable (spec.md §4.2).
func (c *Chain) CoinbaseMaturity() uint64 { return c.params.CoinbaseMaturity }
