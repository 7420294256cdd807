package blockchain

import (
	"github.com/ledgerforge/ledgerd/wire"
)

// checkConnectBlock validates block's transactions against workingSet —
// mutating it in place so later transactions in the same block see the
// effects of earlier ones (spec.md §4.1 "intra-block chaining") — and
// returns the UTXO diff the block produces plus the entries its inputs
// consumed (needed later to disconnect the block during a reorg).
func (c *Chain) checkConnectBlock(block *wire.MsgBlock, node *blockNode, workingSet *UTXOSet) (*UTXODiff, map[wire.Outpoint]*UTXOEntry, error) {
	diff := NewUTXODiff()
	spentEntries := make(map[wire.Outpoint]*UTXOEntry)

	var totalFees uint64
	for txIdx, tx := range block.Transactions {
		isCoinbase := txIdx == 0

		if !isCoinbase {
			fee, err := c.checkTransactionInputs(tx, node.height, workingSet, diff, spentEntries)
			if err != nil {
				return nil, nil, err
			}
			totalFees += fee
		}

		txID := tx.TxID()
		for outIdx, out := range tx.TxOut {
			outpoint := wire.Outpoint{TxID: txID, Index: uint32(outIdx)}
			entry := NewUTXOEntry(out.Value, out.ScriptPubKey, node.height, isCoinbase)
			if err := workingSet.Add(outpoint, entry); err != nil {
				return nil, nil, ruleErrorf(ErrInvalidTransaction, "%s", err)
			}
			diff.Added[outpoint] = entry
		}
	}

	subsidy := CalcBlockSubsidy(node.height, c.params.InitialSubsidy, c.params.SubsidyHalvingInterval)
	var coinbaseOut uint64
	for _, out := range block.Transactions[0].TxOut {
		coinbaseOut += out.Value
	}
	if coinbaseOut > subsidy+totalFees {
		return nil, nil, ruleErrorf(ErrBadCoinbaseValue,
			"coinbase pays %d, subsidy+fees allow %d", coinbaseOut, subsidy+totalFees)
	}

	return diff, spentEntries, nil
}

// checkTransactionInputs validates tx's inputs against workingSet —
// existence, maturity, no double-spend, and script satisfaction — removes
// the spent entries from workingSet and records the diff's removal side,
// and returns the transaction's fee (spec.md §4.1 "Transaction
// validation").
func (c *Chain) checkTransactionInputs(tx *wire.MsgTx, height uint64, workingSet *UTXOSet, diff *UTXODiff, spentEntries map[wire.Outpoint]*UTXOEntry) (fee uint64, err error) {
	var totalIn uint64
	for idx, in := range tx.TxIn {
		entry, err := workingSet.Get(in.PreviousOutpoint)
		if err != nil {
			return 0, ruleErrorf(ErrDoubleSpend, "input %d references unknown or already-spent outpoint %s", idx, in.PreviousOutpoint)
		}
		if !entry.IsMature(height, c.params.CoinbaseMaturity) {
			return 0, ruleErrorf(ErrImmatureSpend, "input %d spends immature coinbase output %s", idx, in.PreviousOutpoint)
		}

		if err := verifyInputScript(tx, idx, entry.ScriptPubKey(), sigCache); err != nil {
			return 0, err
		}

		totalIn += entry.Amount()

		if _, err := workingSet.Remove(in.PreviousOutpoint); err != nil {
			return 0, ruleErrorf(ErrDoubleSpend, "%s", err)
		}
		diff.Removed = append(diff.Removed, in.PreviousOutpoint)
		spentEntries[in.PreviousOutpoint] = entry
	}

	var totalOut uint64
	for _, out := range tx.TxOut {
		if out.Value < dustThreshold {
			return 0, ruleErrorf(ErrInvalidTransaction, "output value %d below dust threshold", out.Value)
		}
		totalOut += out.Value
	}

	if totalIn < totalOut {
		return 0, ruleErrorf(ErrInvalidTransaction, "transaction %s spends more than its inputs provide", tx.TxID())
	}

	return totalIn - totalOut, nil
}
