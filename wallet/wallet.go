// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/util"
	"github.com/ledgerforge/ledgerd/wire"
)

// Per-input/output byte costs a fee estimator uses for a standard
// P2PKH spend: a bare transaction plus 10 bytes of overhead, 148 bytes
// per signed input, and 34 bytes per output.
const (
	txOverheadBytes = 10
	txInputBytes    = 148
	txOutputBytes   = 34
)

// EstimateSize returns the expected serialized size of a P2PKH
// transaction with numInputs inputs and numOutputs outputs, including the
// change output the caller should add if a remainder is left over
// (spec.md §4.4's "size = 10 + 148*inputs + 34*outputs + 34").
func EstimateSize(numInputs, numOutputs int) int {
	return txOverheadBytes + txInputBytes*numInputs + txOutputBytes*(numOutputs+1)
}

// Wallet signs and constructs transactions spending a single P2PKH key
// pair's outputs out of a blockchain.Chain's UTXO set.
type Wallet struct {
	key     *crypto.PrivateKey
	pubKey  []byte
	hash160 []byte
	address *util.Address
}

// New builds a Wallet around key, whose public key hash identifies the
// outputs it may spend and the change address it pays back to.
func New(key *crypto.PrivateKey) (*Wallet, error) {
	pub := key.PubKey()
	pubKeyBytes := pub.SerializeCompressed()
	hash160 := txscript.Hash160(pubKeyBytes)
	addr, err := util.NewAddressPubKeyHash(hash160)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		key:     key,
		pubKey:  pubKeyBytes,
		hash160: hash160,
		address: addr,
	}, nil
}

// Address returns the wallet's P2PKH address.
func (w *Wallet) Address() *util.Address { return w.address }

// Balance returns the wallet's confirmed balance as tracked by chain's
// UTXO set.
func (w *Wallet) Balance(chain *blockchain.Chain) util.Amount {
	return chain.UTXOSet().BalanceOf(w.hash160)
}

// spendableCandidates collects the wallet's unspent outputs, excluding
// coinbase outputs that have not yet cleared maturity.
func (w *Wallet) spendableCandidates(chain *blockchain.Chain) ([]candidate, error) {
	_, tipHeight, _ := chain.Tip()
	utxoSet := chain.UTXOSet()
	outpoints := utxoSet.OutpointsByAddress(w.hash160)

	candidates := make([]candidate, 0, len(outpoints))
	for _, op := range outpoints {
		entry, err := utxoSet.Get(op)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		if entry.IsCoinbase() && tipHeight-entry.BlockHeight() < chain.CoinbaseMaturity() {
			continue
		}
		candidates = append(candidates, candidate{outpoint: op, entry: entry})
	}
	return candidates, nil
}

// Send builds, signs, and returns a transaction paying amount to
// toHash160, spending the wallet's outputs chosen by strategy and paying
// feePerByte per serialized byte. Any remainder beyond amount+fee is
// returned to the wallet's own address as a change output. The sequence
// on every input is set to wire.MaxRBFSequence when rbf is true (opt-in
// replace-by-fee, spec.md §4.5) or wire.SequenceLockTimeDisabled
// otherwise.
func (w *Wallet) Send(chain *blockchain.Chain, toHash160 []byte, amount util.Amount, feePerByte uint64, strategy Strategy, rbf bool) (*wire.MsgTx, error) {
	candidates, err := w.spendableCandidates(chain)
	if err != nil {
		return nil, err
	}

	// Two-output estimate (destination + change) drives the fee; if
	// selection ends up exact (no change), the tx ends up slightly
	// overpaying, which is conservative rather than under-funded.
	estimatedInputs := 1
	fee := util.Amount(uint64(EstimateSize(estimatedInputs, 1)) * feePerByte)
	target := amount + fee

	chosen, sum, err := selectUTXOs(candidates, target, strategy)
	if err != nil {
		// Retry once with a fee recomputed for the actual input count
		// a full-balance attempt would need, in case the first pass's
		// single-input estimate undershot a multi-input requirement.
		chosen, sum, err = selectUTXOs(candidates, amount, strategy)
		if err != nil {
			return nil, err
		}
		fee = util.Amount(uint64(EstimateSize(len(chosen), 1)) * feePerByte)
		if sum < amount+fee {
			chosen, sum, err = selectUTXOs(candidates, amount+fee, strategy)
			if err != nil {
				return nil, err
			}
		}
	}
	fee = util.Amount(uint64(EstimateSize(len(chosen), 2)) * feePerByte)
	if sum < amount+fee {
		log.Debugf("insufficient funds: need %d (amount %d + fee %d), have %d", amount+fee, amount, fee, sum)
		return nil, ErrInsufficientFunds
	}
	changeAmount := sum - amount - fee

	tx := wire.NewMsgTx(1)
	sequence := uint64(wire.SequenceLockTimeDisabled)
	if rbf {
		sequence = wire.MaxRBFSequence
	}
	for _, c := range chosen {
		tx.TxIn = append(tx.TxIn, &wire.TxIn{
			PreviousOutpoint: c.outpoint,
			Sequence:         sequence,
		})
	}

	destScript, err := txscript.PayToAddrScript(toHash160)
	if err != nil {
		return nil, err
	}
	tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: uint64(amount), ScriptPubKey: destScript})

	if changeAmount > 0 {
		changeScript, err := txscript.PayToAddrScript(w.hash160)
		if err != nil {
			return nil, err
		}
		tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: uint64(changeAmount), ScriptPubKey: changeScript})
	}

	for i, c := range chosen {
		if err := w.signInput(tx, i, c.entry.ScriptPubKey()); err != nil {
			return nil, errors.Wrapf(err, "signing input %d", i)
		}
	}
	return tx, nil
}

// signInput computes the P2PKH signature hash for input idx and installs
// the resulting unlocking script.
func (w *Wallet) signInput(tx *wire.MsgTx, idx int, prevScriptPubKey []byte) error {
	sigHash, err := txscript.CalcSignatureHash(tx, idx, prevScriptPubKey, txscript.SigHashAll)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(w.key, sigHash[:])
	if err != nil {
		return err
	}
	tx.TxIn[idx].SignatureScript = txscript.SignatureScript(sig.Serialize(), byte(txscript.SigHashAll), w.pubKey)
	return nil
}
