// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"context"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/mempool"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/wire"
)

const fixtureSubsidy = 50 * 100000000

func newFixtureChain(t *testing.T) (*blockchain.Chain, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(txscript.Hash160(key.PubKey().SerializeCompressed()))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	powLimit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	bits := chaincfg.BigToCompact(powLimit)

	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutpoint: wire.Outpoint{Index: 0xffffffff},
		SignatureScript:  []byte("mining fixture genesis"),
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
		Name:                        "mining-fixture",
		GenesisBlock:                genesis,
		PowLimit:                    powLimit,
		PowLimitBits:                bits,
		TargetTimePerBlock:          time.Second,
		RetargetInterval:            2016,
		RetargetAdjustmentFactor:    4,
		SubsidyHalvingInterval:      210000,
		InitialSubsidy:              fixtureSubsidy,
		CoinbaseMaturity:            0,
		TimestampDeviationTolerance: 2 * time.Hour,
		MedianTimeBlocks:            1,
		Net:                         0xabad1dea,
	}
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("blockchain.New: %s", err)
	}
	return chain, key
}

func TestNewBlockTemplateBuildsCoinbasePayingSubsidy(t *testing.T) {
	chain, key := newFixtureChain(t)
	pool := mempool.New(mempool.DefaultConfig(), chain)

	minerHash160 := txscript.Hash160(key.PubKey().SerializeCompressed())
	template, err := NewBlockTemplate(chain, pool, minerHash160)
	if err != nil {
		t.Fatalf("NewBlockTemplate: %s", err)
	}
	if template.Height != 1 {
		t.Fatalf("Height = %d, want 1", template.Height)
	}
	if len(template.Block.Transactions) != 1 {
		t.Fatalf("expected only the coinbase with an empty mempool, got %d txs", len(template.Block.Transactions))
	}
	coinbaseOut := template.Block.Transactions[0].TxOut[0]
	if coinbaseOut.Value != fixtureSubsidy {
		t.Fatalf("coinbase value = %d, want %d (no mempool fees)", coinbaseOut.Value, fixtureSubsidy)
	}
	if template.Block.Header.PrevBlock != chain.Params().GenesisBlock.Header.BlockHash() {
		t.Fatalf("template does not extend the chain's tip")
	}
}

func TestNewBlockTemplateIncludesMempoolFees(t *testing.T) {
	chain, key := newFixtureChain(t)
	pool := mempool.New(mempool.DefaultConfig(), chain)

	genesisTx := chain.Params().GenesisBlock.Transactions[0]
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutpoint: wire.Outpoint{TxID: genesisTx.TxID(), Index: 0}, Sequence: wire.SequenceLockTimeDisabled})
	outScript, err := txscript.PayToAddrScript(txscript.Hash160(key.PubKey().SerializeCompressed()))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}
	const fee = 1500
	tx.AddTxOut(&wire.TxOut{Value: fixtureSubsidy - fee, ScriptPubKey: outScript})
	sigHash, err := txscript.CalcSignatureHash(tx, 0, genesisTx.TxOut[0].ScriptPubKey, txscript.SigHashAll)
	if err != nil {
		t.Fatalf("CalcSignatureHash: %s", err)
	}
	sig, err := crypto.Sign(key, sigHash[:])
	if err != nil {
		t.Fatalf("Sign: %s", err)
	}
	tx.TxIn[0].SignatureScript = txscript.SignatureScript(sig.Serialize(), byte(txscript.SigHashAll), key.PubKey().SerializeCompressed())

	if _, err := pool.ProcessTransaction(tx, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction: %s", err)
	}

	template, err := NewBlockTemplate(chain, pool, txscript.Hash160(key.PubKey().SerializeCompressed()))
	if err != nil {
		t.Fatalf("NewBlockTemplate: %s", err)
	}
	if template.Fees != fee {
		t.Fatalf("Fees = %d, want %d", template.Fees, fee)
	}
	if len(template.Block.Transactions) != 2 {
		t.Fatalf("expected coinbase plus the pooled transaction, got %d", len(template.Block.Transactions))
	}
	if got := template.Block.Transactions[0].TxOut[0].Value; got != fixtureSubsidy+fee {
		t.Fatalf("coinbase value = %d, want subsidy+fee = %d", got, fixtureSubsidy+fee)
	}
}

func TestSolveFindsBlockUnderMaximalTarget(t *testing.T) {
	chain, key := newFixtureChain(t)
	pool := mempool.New(mempool.DefaultConfig(), chain)
	template, err := NewBlockTemplate(chain, pool, txscript.Hash160(key.PubKey().SerializeCompressed()))
	if err != nil {
		t.Fatalf("NewBlockTemplate: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	solved, err := Solve(ctx, template.Block, 2)
	if err != nil {
		t.Fatalf("Solve: %s", err)
	}
	if solved == nil {
		t.Fatalf("Solve returned no block under a maximal (always-satisfied) target")
	}

	if isOrphan, err := chain.ProcessBlock(solved); err != nil || isOrphan {
		t.Fatalf("solved block rejected by the chain: isOrphan=%v err=%s", isOrphan, err)
	}
}

func TestSolveCancelledBeforeSolvingReturnsNil(t *testing.T) {
	chain, key := newFixtureChain(t)
	pool := mempool.New(mempool.DefaultConfig(), chain)
	template, err := NewBlockTemplate(chain, pool, txscript.Hash160(key.PubKey().SerializeCompressed()))
	if err != nil {
		t.Fatalf("NewBlockTemplate: %s", err)
	}

	// An impossible target (the zero hash can never be produced) paired
	// with an already-cancelled context must return promptly with no
	// solved block and the context's cancellation error.
	template.Block.Header.Bits = chaincfg.BigToCompact(big.NewInt(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	solved, err := Solve(ctx, template.Block, 1)
	if solved != nil {
		t.Fatalf("expected no solved block once the context is already cancelled")
	}
	if err != context.Canceled {
		t.Fatalf("Solve err = %v, want context.Canceled", err)
	}
}

func TestHashesTriedResetsOnRead(t *testing.T) {
	HashesTried() // drain whatever prior tests in this process accumulated

	chain, key := newFixtureChain(t)
	pool := mempool.New(mempool.DefaultConfig(), chain)
	template, err := NewBlockTemplate(chain, pool, txscript.Hash160(key.PubKey().SerializeCompressed()))
	if err != nil {
		t.Fatalf("NewBlockTemplate: %s", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Solve(ctx, template.Block, 1); err != nil {
		t.Fatalf("Solve: %s", err)
	}

	first := HashesTried()
	if first == 0 {
		t.Fatalf("expected at least one hash attempt to have been recorded")
	}
	second := HashesTried()
	if second != 0 {
		t.Fatalf("HashesTried did not reset its counter: got %d on the second read", second)
	}
}

func TestCoinbaseSigScriptEncodesHeightAndFlags(t *testing.T) {
	script := coinbaseSigScript(42)
	if len(script) != 8+len(CoinbaseFlags) {
		t.Fatalf("script length = %d, want %d", len(script), 8+len(CoinbaseFlags))
	}
	if got := binary.BigEndian.Uint64(script[:8]); got != 42 {
		t.Fatalf("encoded height = %d, want 42", got)
	}
	if string(script[8:]) != CoinbaseFlags {
		t.Fatalf("script tail = %q, want %q", script[8:], CoinbaseFlags)
	}
}
