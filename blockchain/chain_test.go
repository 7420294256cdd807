package blockchain_test

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/wire"
)

const fixtureSubsidy = 50 * 100000000

// buildTestParams returns a standalone *chaincfg.Params with its own
// genesis block paying a freshly generated key's hash160, the same
// mockNetParams-literal approach dagconfig/register_test.go
// uses for network-registration tests. The packaged SimNetParams genesis
// allocation pays an all-zero hash160 that no real key can sign for, so
// tests that need a spendable genesis build their own fixture instead.
//
// CoinbaseMaturity and MedianTimeBlocks are both set small so a test can
// walk a handful of blocks rather than the production depth, and PowLimit
// is the maximum 256-bit value so every block template mines on its first
// nonce attempt.
func buildTestParams(t *testing.T) (*chaincfg.Params, *crypto.PrivateKey) {
	t.Helper()

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	powLimit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	bits := chaincfg.BigToCompact(powLimit)

	genesis := buildBlock(t, chainhash.ZeroHash, 0, 1700000000, bits,
		[]*wire.MsgTx{coinbaseTx(0, payScript, fixtureSubsidy)})

	params := &chaincfg.Params{
		Name:                        "fixturenet",
		DefaultPort:                 "0",
		GenesisBlock:                genesis,
		PowLimit:                    powLimit,
		PowLimitBits:                bits,
		TargetTimePerBlock:          time.Second,
		RetargetInterval:            2016,
		RetargetAdjustmentFactor:    4,
		SubsidyHalvingInterval:      210000,
		InitialSubsidy:              fixtureSubsidy,
		CoinbaseMaturity:            2,
		TimestampDeviationTolerance: 2 * time.Hour,
		MedianTimeBlocks:            1,
		Net:                         0xfeedface,
	}
	return params, key
}

func hash160(key *crypto.PrivateKey) []byte {
	return txscript.Hash160(key.PubKey().SerializeCompressed())
}

// coinbaseTx builds a single-output coinbase paying value to payScript,
// tagging the signature script with height so two coinbases at different
// heights never collide (the same convention mining.coinbaseSigScript
// uses, simplified to stay within checkTransactionSanity's 2-100 byte
// bound).
func coinbaseTx(height uint64, payScript []byte, value uint64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutpoint: wire.Outpoint{Index: 0xffffffff},
		SignatureScript:  []byte(fmt.Sprintf("fixture-%d", height)),
		Sequence:         wire.SequenceLockTimeDisabled,
	})
	tx.AddTxOut(&wire.TxOut{Value: value, ScriptPubKey: payScript})
	return tx
}

func buildBlock(t *testing.T, prev chainhash.Hash, height uint64, timestamp int64, bits uint32, txs []*wire.MsgTx) *wire.MsgBlock {
	t.Helper()
	txIDs := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		txIDs[i] = tx.TxID()
	}
	return &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  prev,
			MerkleRoot: crypto.MerkleRoot(txIDs),
			Timestamp:  timestamp,
			Bits:       bits,
			Height:     height,
		},
		Transactions: txs,
	}
}

// nextBlock extends chain's current tip with a block paying the coinbase
// subsidy plus fees to payScript and carrying txs, stamping the
// difficulty and height the chain itself expects.
func nextBlock(t *testing.T, chain *blockchain.Chain, timestamp int64, payScript []byte, fees uint64, txs []*wire.MsgTx) *wire.MsgBlock {
	t.Helper()
	tipHash, tipHeight, _ := chain.Tip()
	height := tipHeight + 1
	params := chain.Params()
	subsidy := blockchain.CalcBlockSubsidy(height, params.InitialSubsidy, params.SubsidyHalvingInterval)
	cb := coinbaseTx(height, payScript, subsidy+fees)
	all := append([]*wire.MsgTx{cb}, txs...)
	return buildBlock(t, tipHash, height, timestamp, chain.NextDifficulty(), all)
}

// signP2PKH installs tx's idx'th unlocking script for a standard P2PKH
// previous output, the same CalcSignatureHash/Sign/SignatureScript
// sequence wallet.Wallet.signInput runs.
func signP2PKH(t *testing.T, tx *wire.MsgTx, idx int, prevScript []byte, key *crypto.PrivateKey) {
	t.Helper()
	sigHash, err := txscript.CalcSignatureHash(tx, idx, prevScript, txscript.SigHashAll)
	if err != nil {
		t.Fatalf("CalcSignatureHash: %s", err)
	}
	sig, err := crypto.Sign(key, sigHash[:])
	if err != nil {
		t.Fatalf("Sign: %s", err)
	}
	tx.TxIn[idx].SignatureScript = txscript.SignatureScript(sig.Serialize(), byte(txscript.SigHashAll), key.PubKey().SerializeCompressed())
}

func mustRuleCode(t *testing.T, err error) blockchain.ErrorCode {
	t.Helper()
	ruleErr, ok := err.(blockchain.RuleError)
	if !ok {
		t.Fatalf("expected a blockchain.RuleError, got %T: %v", err, err)
	}
	return ruleErr.Code
}

// TestGenesisAllocationBalance covers spec.md §8 scenario 1: genesis
// allocates its coinbase straight into the UTXO set with no block to
// mine first.
func TestGenesisAllocationBalance(t *testing.T) {
	params, key := buildTestParams(t)
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	got := chain.UTXOSet().BalanceOf(hash160(key))
	if uint64(got) != fixtureSubsidy {
		t.Fatalf("genesis balance = %d, want %d", got, fixtureSubsidy)
	}
}

// TestSimpleTransferUpdatesBalances spends the genesis coinbase to a
// second address in the block at height 1 and checks both balances update
// atomically with the new tip. The fixture's maturity of 2 would reject
// that spend (one block deep), so this test sets CoinbaseMaturity to 0.
func TestSimpleTransferUpdatesBalances(t *testing.T) {
	params, key := buildTestParams(t)
	params.CoinbaseMaturity = 0
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	recipient, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}

	genesisTxID := params.GenesisBlock.Transactions[0].TxID()
	prevScript := params.GenesisBlock.Transactions[0].TxOut[0].ScriptPubKey
	const sendAmount = 10 * 100000000
	const fee = 1000

	spend := wire.NewMsgTx(1)
	spend.AddTxIn(&wire.TxIn{
		PreviousOutpoint: wire.Outpoint{TxID: genesisTxID, Index: 0},
		Sequence:         wire.SequenceLockTimeDisabled,
	})
	recipientScript, err := txscript.PayToAddrScript(hash160(recipient))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}
	spend.AddTxOut(&wire.TxOut{Value: sendAmount, ScriptPubKey: recipientScript})
	changeScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}
	spend.AddTxOut(&wire.TxOut{Value: fixtureSubsidy - sendAmount - fee, ScriptPubKey: changeScript})
	signP2PKH(t, spend, 0, prevScript, key)

	block := nextBlock(t, chain, 1700000100, params.GenesisBlock.Transactions[0].TxOut[0].ScriptPubKey, fee, []*wire.MsgTx{spend})
	if isOrphan, err := chain.ProcessBlock(block); err != nil || isOrphan {
		t.Fatalf("ProcessBlock: isOrphan=%v err=%s", isOrphan, err)
	}

	if got := chain.UTXOSet().BalanceOf(hash160(recipient)); uint64(got) != sendAmount {
		t.Fatalf("recipient balance = %d, want %d", got, sendAmount)
	}
	senderWant := uint64(fixtureSubsidy) - sendAmount - fee + fixtureSubsidy + fee
	if got := chain.UTXOSet().BalanceOf(hash160(key)); uint64(got) != senderWant {
		t.Fatalf("sender balance = %d, want %d", got, senderWant)
	}
}

// TestDoubleSpendWithinBlockRejected covers spec.md §8's double-spend
// scenario: two transactions racing for the same outpoint inside a
// single block must reject the block rather than silently picking one.
// Both spend the genesis coinbase at height 1, so CoinbaseMaturity is set
// to 0 to keep the maturity check from rejecting the block first.
func TestDoubleSpendWithinBlockRejected(t *testing.T) {
	params, key := buildTestParams(t)
	params.CoinbaseMaturity = 0
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	genesisTxID := params.GenesisBlock.Transactions[0].TxID()
	prevScript := params.GenesisBlock.Transactions[0].TxOut[0].ScriptPubKey
	other, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}
	otherScript, err := txscript.PayToAddrScript(hash160(other))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	makeSpend := func(value uint64) *wire.MsgTx {
		tx := wire.NewMsgTx(1)
		tx.AddTxIn(&wire.TxIn{PreviousOutpoint: wire.Outpoint{TxID: genesisTxID, Index: 0}, Sequence: wire.SequenceLockTimeDisabled})
		tx.AddTxOut(&wire.TxOut{Value: value, ScriptPubKey: otherScript})
		signP2PKH(t, tx, 0, prevScript, key)
		return tx
	}
	firstSpend := makeSpend(fixtureSubsidy - 1000)
	secondSpend := makeSpend(fixtureSubsidy - 2000)

	block := nextBlock(t, chain, 1700000100, prevScript, 0, []*wire.MsgTx{firstSpend, secondSpend})
	// Recompute the coinbase: fees differ per spend, so drop in a flat
	// coinbase that does not try to reconcile both fees exactly — the
	// test only cares that the second input is rejected as a double
	// spend, not about the coinbase value check.
	block.Transactions[0].TxOut[0].Value = blockchain.CalcBlockSubsidy(1, params.InitialSubsidy, params.SubsidyHalvingInterval)
	block.Header.MerkleRoot = recomputeMerkleRoot(block.Transactions)

	isOrphan, err := chain.ProcessBlock(block)
	if err == nil || isOrphan {
		t.Fatalf("expected a double-spend rejection, got isOrphan=%v err=%v", isOrphan, err)
	}
	if code := mustRuleCode(t, err); code != blockchain.ErrDoubleSpend {
		t.Fatalf("error code = %s, want %s", code, blockchain.ErrDoubleSpend)
	}
}

func recomputeMerkleRoot(txs []*wire.MsgTx) chainhash.Hash {
	ids := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxID()
	}
	return crypto.MerkleRoot(ids)
}

// TestCoinbaseMaturityEnforced covers spec.md §8's coinbase maturity
// boundary: a coinbase output must clear CoinbaseMaturity confirmations
// before it is spendable, rejected one block early and accepted exactly
// at the boundary.
func TestCoinbaseMaturityEnforced(t *testing.T) {
	params, key := buildTestParams(t)
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	// height 1: an empty block, mining a second coinbase whose maturity
	// we will test spending early.
	block1 := nextBlock(t, chain, 1700000100, payScript, 0, nil)
	if _, err := chain.ProcessBlock(block1); err != nil {
		t.Fatalf("ProcessBlock(height 1): %s", err)
	}
	height1CoinbaseID := block1.Transactions[0].TxID()
	height1CoinbaseScript := block1.Transactions[0].TxOut[0].ScriptPubKey
	height1CoinbaseValue := block1.Transactions[0].TxOut[0].Value

	spendHeight1Coinbase := func() *wire.MsgTx {
		tx := wire.NewMsgTx(1)
		tx.AddTxIn(&wire.TxIn{PreviousOutpoint: wire.Outpoint{TxID: height1CoinbaseID, Index: 0}, Sequence: wire.SequenceLockTimeDisabled})
		tx.AddTxOut(&wire.TxOut{Value: height1CoinbaseValue - 1000, ScriptPubKey: payScript})
		signP2PKH(t, tx, 0, height1CoinbaseScript, key)
		return tx
	}

	// height 2: CoinbaseMaturity is 2, so a spend of the height-1
	// coinbase here (one confirmation deep) must be rejected.
	early := spendHeight1Coinbase()
	earlyBlock := nextBlock(t, chain, 1700000200, payScript, 1000, []*wire.MsgTx{early})
	if isOrphan, err := chain.ProcessBlock(earlyBlock); err == nil || isOrphan {
		t.Fatalf("expected immature-spend rejection, got isOrphan=%v err=%v", isOrphan, err)
	} else if code := mustRuleCode(t, err); code != blockchain.ErrImmatureSpend {
		t.Fatalf("error code = %s, want %s", code, blockchain.ErrImmatureSpend)
	}

	// height 2 again, this time with an empty block so the height-1
	// coinbase reaches maturity at height 3.
	block2 := nextBlock(t, chain, 1700000200, payScript, 0, nil)
	if _, err := chain.ProcessBlock(block2); err != nil {
		t.Fatalf("ProcessBlock(height 2): %s", err)
	}

	mature := spendHeight1Coinbase()
	matureBlock := nextBlock(t, chain, 1700000300, payScript, 1000, []*wire.MsgTx{mature})
	if isOrphan, err := chain.ProcessBlock(matureBlock); err != nil || isOrphan {
		t.Fatalf("ProcessBlock(height 3, mature spend): isOrphan=%v err=%s", isOrphan, err)
	}
}

// TestReorgSwitchesToMostWork builds two competing one-block-longer
// branches off the same tip and checks the chain adopts whichever side
// carries more cumulative work, restoring the losing branch's
// non-coinbase transactions for mempool re-offering (spec.md §8
// "Reorganisation").
func TestReorgSwitchesToMostWork(t *testing.T) {
	params, key := buildTestParams(t)
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	var restored []*wire.MsgTx
	chain.Subscribe(func(_ []chainhash.Hash, restoredTxs []*wire.MsgTx) {
		restored = append(restored, restoredTxs...)
	})

	// Common ancestor at height 1.
	block1 := nextBlock(t, chain, 1700000100, payScript, 0, nil)
	if _, err := chain.ProcessBlock(block1); err != nil {
		t.Fatalf("ProcessBlock(height 1): %s", err)
	}
	tipHash, tipHeight, tipWork := chain.Tip()

	// Branch A: one block extending the tip, carrying a transaction that
	// should be restored to the mempool once branch B displaces it.
	genesisTxID := params.GenesisBlock.Transactions[0].TxID()
	genesisScript := params.GenesisBlock.Transactions[0].TxOut[0].ScriptPubKey
	branchATx := wire.NewMsgTx(1)
	branchATx.AddTxIn(&wire.TxIn{PreviousOutpoint: wire.Outpoint{TxID: genesisTxID, Index: 0}, Sequence: wire.SequenceLockTimeDisabled})
	branchATx.AddTxOut(&wire.TxOut{Value: fixtureSubsidy - 1000, ScriptPubKey: payScript})
	signP2PKH(t, branchATx, 0, genesisScript, key)
	branchABlock := nextBlock(t, chain, 1700000200, payScript, 1000, []*wire.MsgTx{branchATx})
	if _, err := chain.ProcessBlock(branchABlock); err != nil {
		t.Fatalf("ProcessBlock(branch A): %s", err)
	}
	aTip, aHeight, aWork := chain.Tip()
	if aTip != branchABlock.BlockHash() || aHeight != tipHeight+1 {
		t.Fatalf("branch A did not become the tip")
	}
	_ = tipWork

	// Branch B: a sibling of branch A's block, same parent, same
	// difficulty, arriving after A already extended the tip. Equal
	// cumulative work to branch A means it must NOT dislodge the
	// existing tip (first-seen wins ties) — so give it a second block to
	// carry strictly more work instead.
	branchB1 := nextBlockFrom(t, chain, tipHash, tipHeight+1, 1700000201, payScript, 0, nil)
	if isOrphan, err := chain.ProcessBlock(branchB1); err != nil || isOrphan {
		t.Fatalf("ProcessBlock(branch B block 1): isOrphan=%v err=%s", isOrphan, err)
	}
	if hash, _, _ := chain.Tip(); hash != aTip {
		t.Fatalf("equal-work sibling displaced the existing tip")
	}

	branchB2 := nextBlockFrom(t, chain, branchB1.BlockHash(), tipHeight+2, 1700000300, payScript, 0, nil)
	if isOrphan, err := chain.ProcessBlock(branchB2); err != nil || isOrphan {
		t.Fatalf("ProcessBlock(branch B block 2): isOrphan=%v err=%s", isOrphan, err)
	}

	finalHash, finalHeight, finalWork := chain.Tip()
	if finalHash != branchB2.BlockHash() {
		t.Fatalf("chain did not reorganize onto branch B")
	}
	if finalHeight != tipHeight+2 {
		t.Fatalf("final height = %d, want %d", finalHeight, tipHeight+2)
	}
	if finalWork.Cmp(aWork) <= 0 {
		t.Fatalf("final cumulative work did not exceed the displaced branch's")
	}

	found := false
	for _, tx := range restored {
		if tx.TxID() == branchATx.TxID() {
			found = true
		}
	}
	if !found {
		t.Fatalf("branch A's spend was not restored for mempool re-offering after the reorg")
	}

	// Branch A's spend of the genesis coinbase must no longer be
	// reflected in the live UTXO set.
	if got := chain.UTXOSet().BalanceOf(hash160(key)); uint64(got) == fixtureSubsidy-1000 {
		t.Fatalf("branch A's spend is still applied after losing the reorg")
	}
}

// nextBlockFrom is nextBlock generalized to an explicit parent/height
// pair, needed to build a second branch that does not extend the live
// tip.
func nextBlockFrom(t *testing.T, chain *blockchain.Chain, parent chainhash.Hash, height uint64, timestamp int64, payScript []byte, fees uint64, txs []*wire.MsgTx) *wire.MsgBlock {
	t.Helper()
	params := chain.Params()
	subsidy := blockchain.CalcBlockSubsidy(height, params.InitialSubsidy, params.SubsidyHalvingInterval)
	cb := coinbaseTx(height, payScript, subsidy+fees)
	all := append([]*wire.MsgTx{cb}, txs...)
	return buildBlock(t, parent, height, timestamp, params.PowLimitBits, all)
}

// TestProofOfWorkBoundary covers spec.md §8's proof-of-work boundary: a
// block whose hash exceeds its own declared target is rejected, and one
// whose hash falls at or under the target is accepted, using a much
// tighter target than the rest of this file's fixture so the distinction
// is exercised rather than trivially always true.
func TestProofOfWorkBoundary(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	// A target whose top byte must be zero: roughly one in 256 nonces
	// satisfies it, tight enough to reject an unmined block deterministically
	// while still cheap to brute-force in a test.
	tightTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 248), big.NewInt(1))
	bits := chaincfg.BigToCompact(tightTarget)

	genesis := buildBlock(t, chainhash.ZeroHash, 0, 1700000000, bits, []*wire.MsgTx{coinbaseTx(0, payScript, fixtureSubsidy)})
	params := &chaincfg.Params{
		Name:                        "pow-fixture",
		GenesisBlock:                genesis,
		PowLimit:                    tightTarget,
		PowLimitBits:                bits,
		TargetTimePerBlock:          time.Second,
		RetargetInterval:            2016,
		RetargetAdjustmentFactor:    4,
		SubsidyHalvingInterval:      210000,
		InitialSubsidy:              fixtureSubsidy,
		CoinbaseMaturity:            2,
		TimestampDeviationTolerance: 2 * time.Hour,
		MedianTimeBlocks:            1,
		Net:                         0xfeedfeed,
	}
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	unsolved := nextBlock(t, chain, 1700000100, payScript, 0, nil)
	unsolved.Header.Nonce = 0
	// Nonce 0 clears this roughly-1-in-256 target only by rare chance;
	// that chance is accepted rather than hunted down, since the branch
	// below still fails loudly if it ever happens.
	isOrphan, err := chain.ProcessBlock(unsolved)
	if err == nil {
		t.Fatalf("expected a proof-of-work rejection for an unmined nonce")
	}
	if isOrphan {
		t.Fatalf("unsolved block was treated as an orphan, not a pow failure")
	}
	if code := mustRuleCode(t, err); code != blockchain.ErrProofOfWorkInvalid {
		t.Fatalf("error code = %s, want %s", code, blockchain.ErrProofOfWorkInvalid)
	}

	solved := nextBlock(t, chain, 1700000100, payScript, 0, nil)
	target := chaincfg.CompactToBig(solved.Header.Bits)
	found := false
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		solved.Header.Nonce = nonce
		if hashMeetsTarget(solved.Header.BlockHash(), target) {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("could not find a solving nonce within the search bound")
	}
	if isOrphan, err := chain.ProcessBlock(solved); err != nil || isOrphan {
		t.Fatalf("ProcessBlock(solved): isOrphan=%v err=%s", isOrphan, err)
	}
}

func hashMeetsTarget(hash chainhash.Hash, target *big.Int) bool {
	reversed := make([]byte, chainhash.HashSize)
	for i := 0; i < chainhash.HashSize; i++ {
		reversed[i] = hash[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(reversed).Cmp(target) <= 0
}

// TestOversizedBlockRejected covers spec.md §8's block-size boundary: a
// block one byte over wire.MaxBlockSize is rejected before any
// transaction-level validation runs.
func TestOversizedBlockRejected(t *testing.T) {
	params, key := buildTestParams(t)
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	bloat := wire.NewMsgTx(1)
	bloat.AddTxIn(&wire.TxIn{PreviousOutpoint: wire.Outpoint{TxID: chainhash.Hash{1}, Index: 0}, Sequence: wire.SequenceLockTimeDisabled})
	oversizedScript := make([]byte, wire.MaxBlockSize+1)
	bloat.AddTxOut(&wire.TxOut{Value: 1, ScriptPubKey: oversizedScript})

	block := nextBlock(t, chain, 1700000100, payScript, 0, []*wire.MsgTx{bloat})
	isOrphan, err := chain.ProcessBlock(block)
	if err == nil || isOrphan {
		t.Fatalf("expected an oversized-block rejection, got isOrphan=%v err=%v", isOrphan, err)
	}
	if code := mustRuleCode(t, err); code != blockchain.ErrInvalidBlock {
		t.Fatalf("error code = %s, want %s", code, blockchain.ErrInvalidBlock)
	}
}

// TestMerkleRootMismatchRejected covers spec.md §8's Merkle-root
// round-trip: a block whose declared root does not match its
// transactions is rejected at block-sanity time.
func TestMerkleRootMismatchRejected(t *testing.T) {
	params, key := buildTestParams(t)
	chain, err := blockchain.New(params)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	payScript, err := txscript.PayToAddrScript(hash160(key))
	if err != nil {
		t.Fatalf("PayToAddrScript: %s", err)
	}

	block := nextBlock(t, chain, 1700000100, payScript, 0, nil)
	block.Header.MerkleRoot[0] ^= 0xff

	isOrphan, err := chain.ProcessBlock(block)
	if err == nil || isOrphan {
		t.Fatalf("expected a merkle-root mismatch rejection, got isOrphan=%v err=%v", isOrphan, err)
	}
	if code := mustRuleCode(t, err); code != blockchain.ErrInvalidBlock {
		t.Fatalf("error code = %s, want %s", code, blockchain.ErrInvalidBlock)
	}
}
