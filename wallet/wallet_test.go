// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math/big"
	"testing"
	"time"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/util"
	"github.com/ledgerforge/ledgerd/wire"
)

const fixtureSubsidy = 50 * 100000000

// newFixtureChain builds a standalone chain whose genesis pays w's own
// key, the same mockNetParams-style fixture blockchain/chain_test.go uses,
// so Wallet.Balance/Send can be exercised against real spendable outputs.
func newFixtureChain(t *testing.T, w *Wallet, coinbaseMaturity uint64) *blockchain.Chain {
	t.Helper()

	payScript, err := txscript.PayToAddrScript(w.hash160)
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}
	powLimit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	bits := chaincfg.BigToCompact(powLimit)

	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutpoint: wire.Outpoint{Index: 0xffffffff},
		SignatureScript:  []byte("wallet fixture genesis"),
		Sequence:         wire.SequenceLockTimeDisabled,
	})
	coinbase.AddTxOut(&wire.TxOut{Value: fixtureSubsidy, ScriptPubKey: payScript})
	genesis := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  chainhash.ZeroHash,
			MerkleRoot: coinbase.TxID(),
			Timestamp:  1700000000,
			Bits:       bits,
		},
		Transactions: []*wire.MsgTx{coinbase},
	}

	params := &chaincfg.Params{
		Name:                        "wallet-fixture",
		GenesisBlock:                genesis,
		PowLimit:                    powLimit,
		PowLimitBits:                bits,
		TargetTimePerBlock:          time.Second,
		RetargetInterval:            2016,
		RetargetAdjustmentFactor:    4,
		SubsidyHalvingInterval:      210000,
		InitialSubsidy:              fixtureSubsidy,
		CoinbaseMaturity:            coinbaseMaturity,
		TimestampDeviationTolerance: 2 * time.Hour,
		MedianTimeBlocks:            1,
		Net:                         0xbeefcafe,
	}

	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("blockchain.New: %s", err)
	}
	return chain
}

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}
	w, err := New(key)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	return w
}

func TestBalanceReflectsGenesisAllocation(t *testing.T) {
	w := newTestWallet(t)
	chain := newFixtureChain(t, w, 0)
	if got := w.Balance(chain); got != util.Amount(fixtureSubsidy) {
		t.Fatalf("Balance = %d, want %d", got, fixtureSubsidy)
	}
}

func TestSendProducesSpendableSignedTransaction(t *testing.T) {
	w := newTestWallet(t)
	chain := newFixtureChain(t, w, 0)
	recipient := newTestWallet(t)

	const amount = util.Amount(10 * 100000000)
	tx, err := w.Send(chain, recipient.hash160, amount, 1, LargestFirst, false)
	if err != nil {
		t.Fatalf("Send: %s", err)
	}
	if len(tx.TxIn) != 1 {
		t.Fatalf("expected a single input spending the genesis coinbase, got %d", len(tx.TxIn))
	}
	if tx.TxIn[0].Sequence != wire.SequenceLockTimeDisabled {
		t.Fatalf("sequence = %#x, want SequenceLockTimeDisabled (rbf not requested)", tx.TxIn[0].Sequence)
	}
	if len(tx.TxOut) != 2 {
		t.Fatalf("expected a destination output plus a change output, got %d", len(tx.TxOut))
	}
	if tx.TxOut[0].Value != uint64(amount) {
		t.Fatalf("destination output = %d, want %d", tx.TxOut[0].Value, amount)
	}

	// The transaction must validate against the chain's own rules: a
	// correctly-signed P2PKH spend of a mature coinbase output.
	if _, err := chain.ValidateTransaction(tx); err != nil {
		t.Fatalf("ValidateTransaction: %s", err)
	}
}

func TestSendSetsRBFSequenceWhenRequested(t *testing.T) {
	w := newTestWallet(t)
	chain := newFixtureChain(t, w, 0)
	recipient := newTestWallet(t)

	tx, err := w.Send(chain, recipient.hash160, util.Amount(1*100000000), 1, LargestFirst, true)
	if err != nil {
		t.Fatalf("Send: %s", err)
	}
	for i, in := range tx.TxIn {
		if in.Sequence != wire.MaxRBFSequence {
			t.Fatalf("input %d sequence = %#x, want MaxRBFSequence", i, in.Sequence)
		}
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	w := newTestWallet(t)
	chain := newFixtureChain(t, w, 0)
	recipient := newTestWallet(t)

	_, err := w.Send(chain, recipient.hash160, util.Amount(fixtureSubsidy*10), 1, LargestFirst, false)
	if err != ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestSendExcludesImmatureCoinbase(t *testing.T) {
	w := newTestWallet(t)
	chain := newFixtureChain(t, w, 1) // genesis output needs 1 confirmation beyond its own block
	recipient := newTestWallet(t)

	_, err := w.Send(chain, recipient.hash160, util.Amount(1*100000000), 1, LargestFirst, false)
	if err != ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds (genesis coinbase not yet mature)", err)
	}
}

func TestEstimateSize(t *testing.T) {
	got := EstimateSize(2, 1)
	want := txOverheadBytes + txInputBytes*2 + txOutputBytes*2
	if got != want {
		t.Fatalf("EstimateSize(2, 1) = %d, want %d", got, want)
	}
}
