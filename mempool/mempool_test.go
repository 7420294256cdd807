package mempool

import (
	"testing"
	"time"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/wire"
)

// fakeValidator stands in for blockchain.Chain so these tests exercise
// pool bookkeeping in isolation from consensus validation, the same
// separation a fakeDAG test double drew.
type fakeValidator struct {
	// fees maps a txid to the fee ValidateTransaction should report;
	// absence means "reject".
	fees map[chainhash.Hash]uint64
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{fees: make(map[chainhash.Hash]uint64)}
}

func (v *fakeValidator) allow(tx *wire.MsgTx, fee uint64) {
	v.fees[tx.TxID()] = fee
}

func (v *fakeValidator) ValidateTransaction(tx *wire.MsgTx) (uint64, error) {
	fee, ok := v.fees[tx.TxID()]
	if !ok {
		return 0, errNotAllowed
	}
	return fee, nil
}

var errNotAllowed = &testError{"transaction not admitted by fake validator"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }

// poolHarness bundles a pool, its backing validator, and a signing key so
// tests can build chains of spendable transactions, the same way the
// original mempool_test.go's poolHarness built chains over a fake DAG.
type poolHarness struct {
	t          *testing.T
	pool       *Pool
	validator  *fakeValidator
	key        *crypto.PrivateKey
	pubKeyHash []byte
}

func newPoolHarness(t *testing.T) *poolHarness {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %s", err)
	}
	pubKeyHash := hash160(key)

	v := newFakeValidator()
	p := New(DefaultConfig(), v)
	return &poolHarness{t: t, pool: p, validator: v, key: key, pubKeyHash: pubKeyHash}
}

func hash160(key *crypto.PrivateKey) []byte {
	pub := key.PubKey().SerializeCompressed()
	return txscript.Hash160(pub)
}

// spendableOutpoint is a single input the harness can spend in a newly
// built transaction.
type spendableOutpoint struct {
	outpoint wire.Outpoint
	amount   uint64
}

// createTx builds and signs a transaction spending in, paying out minus
// fee, and registers it with the fake validator so ProcessTransaction
// accepts it.
func (h *poolHarness) createTx(in spendableOutpoint, fee uint64, sequence uint64) *wire.MsgTx {
	h.t.Helper()
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutpoint: in.outpoint, Sequence: sequence})

	outScript, err := txscript.PayToAddrScript(h.pubKeyHash)
	if err != nil {
		h.t.Fatalf("PayToAddrScript: %s", err)
	}
	tx.AddTxOut(&wire.TxOut{Value: in.amount - fee, ScriptPubKey: outScript})

	lockScript, err := txscript.PayToAddrScript(h.pubKeyHash)
	if err != nil {
		h.t.Fatalf("PayToAddrScript: %s", err)
	}
	sigHash, err := txscript.CalcSignatureHash(tx, 0, lockScript, txscript.SigHashAll)
	if err != nil {
		h.t.Fatalf("CalcSignatureHash: %s", err)
	}
	sig, err := crypto.Sign(h.key, sigHash[:])
	if err != nil {
		h.t.Fatalf("Sign: %s", err)
	}
	tx.TxIn[0].SignatureScript = txscript.SignatureScript(
		sig.Serialize(), byte(txscript.SigHashAll), h.key.PubKey().SerializeCompressed())

	h.validator.allow(tx, fee)
	return tx
}

func spendOf(tx *wire.MsgTx, index uint32) spendableOutpoint {
	return spendableOutpoint{
		outpoint: wire.Outpoint{TxID: tx.TxID(), Index: index},
		amount:   tx.TxOut[index].Value,
	}
}

var nextFundingID byte = 1

// fundingOutpoint manufactures a distinct, never-reused outpoint so
// unrelated transactions within a test don't collide as accidental
// double-spends of each other.
func fundingOutpoint(amount uint64) spendableOutpoint {
	id := nextFundingID
	nextFundingID++
	return spendableOutpoint{
		outpoint: wire.Outpoint{TxID: chainhash.Hash{id}, Index: 0},
		amount:   amount,
	}
}

func TestProcessTransactionAccepts(t *testing.T) {
	h := newPoolHarness(t)
	tx := h.createTx(fundingOutpoint(100000), 1000, wire.SequenceLockTimeDisabled)

	entry, err := h.pool.ProcessTransaction(tx, time.Now())
	if err != nil {
		t.Fatalf("ProcessTransaction: %s", err)
	}
	if entry.Fee != 1000 {
		t.Errorf("fee = %d, want 1000", entry.Fee)
	}
	if !h.pool.Have(tx.TxID()) {
		t.Errorf("pool does not contain accepted transaction")
	}
	if h.pool.Size() != 1 {
		t.Errorf("pool size = %d, want 1", h.pool.Size())
	}
}

func TestProcessTransactionRejectsUnvalidated(t *testing.T) {
	h := newPoolHarness(t)
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutpoint: fundingOutpoint(1000).outpoint})
	tx.AddTxOut(&wire.TxOut{Value: 900, ScriptPubKey: nil})
	// Deliberately not registered with h.validator.allow.

	if _, err := h.pool.ProcessTransaction(tx, time.Now()); err == nil {
		t.Fatalf("expected rejection for unvalidated transaction")
	}
}

func TestDoubleSpendRejectedWithoutRBF(t *testing.T) {
	h := newPoolHarness(t)
	funding := fundingOutpoint(100000)

	tx1 := h.createTx(funding, 1000, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(tx1, time.Now()); err != nil {
		t.Fatalf("first spend rejected: %s", err)
	}

	tx2 := h.createTx(funding, 2000, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(tx2, time.Now()); err == nil {
		t.Fatalf("expected double-spend rejection, since tx1 did not signal RBF")
	}
}

func TestRBFReplacesHigherFeeRate(t *testing.T) {
	h := newPoolHarness(t)
	funding := fundingOutpoint(100000)

	tx1 := h.createTx(funding, 1000, wire.MaxRBFSequence)
	if _, err := h.pool.ProcessTransaction(tx1, time.Now()); err != nil {
		t.Fatalf("first spend rejected: %s", err)
	}

	tx2 := h.createTx(funding, 20000, wire.MaxRBFSequence)
	if _, err := h.pool.ProcessTransaction(tx2, time.Now()); err != nil {
		t.Fatalf("replacement rejected: %s", err)
	}

	if h.pool.Have(tx1.TxID()) {
		t.Errorf("original transaction still present after replacement")
	}
	if !h.pool.Have(tx2.TxID()) {
		t.Errorf("replacement transaction missing after admission")
	}
}

func TestRBFRejectsLowerFeeRate(t *testing.T) {
	h := newPoolHarness(t)
	funding := fundingOutpoint(100000)

	tx1 := h.createTx(funding, 20000, wire.MaxRBFSequence)
	if _, err := h.pool.ProcessTransaction(tx1, time.Now()); err != nil {
		t.Fatalf("first spend rejected: %s", err)
	}

	tx2 := h.createTx(funding, 1000, wire.MaxRBFSequence)
	if _, err := h.pool.ProcessTransaction(tx2, time.Now()); err == nil {
		t.Fatalf("expected rejection: replacement fee rate is lower")
	}
	if !h.pool.Have(tx1.TxID()) {
		t.Errorf("original transaction should survive a failed replacement attempt")
	}
}

func TestRemoveTransaction(t *testing.T) {
	h := newPoolHarness(t)
	tx := h.createTx(fundingOutpoint(100000), 1000, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(tx, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction: %s", err)
	}

	h.pool.RemoveTransaction(tx.TxID(), ReasonManual)
	if h.pool.Have(tx.TxID()) {
		t.Errorf("transaction still present after removal")
	}
}

func TestOnTipAdvancedConfirmsAndRestores(t *testing.T) {
	h := newPoolHarness(t)
	tx1 := h.createTx(fundingOutpoint(100000), 1000, wire.SequenceLockTimeDisabled)
	tx2 := h.createTx(fundingOutpoint(50000), 500, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(tx1, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction tx1: %s", err)
	}

	h.pool.OnTipAdvanced([]chainhash.Hash{tx1.TxID()}, []*wire.MsgTx{tx2})

	if h.pool.Have(tx1.TxID()) {
		t.Errorf("confirmed transaction should be removed from the pool")
	}
	if !h.pool.Have(tx2.TxID()) {
		t.Errorf("restored transaction should be re-admitted to the pool")
	}
}

func TestSelectForBlockOrdersParentBeforeChild(t *testing.T) {
	h := newPoolHarness(t)
	parent := h.createTx(fundingOutpoint(100000), 1000, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(parent, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction parent: %s", err)
	}
	child := h.createTx(spendOf(parent, 0), 1000, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(child, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction child: %s", err)
	}

	selected := h.pool.SelectForBlock(1 << 20)
	if len(selected) != 2 {
		t.Fatalf("selected %d entries, want 2", len(selected))
	}
	if selected[0].TxID != parent.TxID() {
		t.Errorf("parent must be selected before its child")
	}
}

func TestSelectForBlockRespectsSizeLimit(t *testing.T) {
	h := newPoolHarness(t)
	tx1 := h.createTx(fundingOutpoint(100000), 1000, wire.SequenceLockTimeDisabled)
	tx2 := h.createTx(fundingOutpoint(50000), 600, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(tx1, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction tx1: %s", err)
	}
	if _, err := h.pool.ProcessTransaction(tx2, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction tx2: %s", err)
	}

	selected := h.pool.SelectForBlock(uint64(tx1.SerializeSize()))
	if len(selected) != 1 {
		t.Fatalf("selected %d entries, want 1 under a tight size cap", len(selected))
	}
}

func TestPurgeExpiresStaleEntries(t *testing.T) {
	h := newPoolHarness(t)
	h.pool.cfg.ExpiryAge = time.Hour

	tx := h.createTx(fundingOutpoint(100000), 1000, wire.SequenceLockTimeDisabled)
	old := time.Now().Add(-2 * time.Hour)
	if _, err := h.pool.ProcessTransaction(tx, old); err != nil {
		t.Fatalf("ProcessTransaction: %s", err)
	}

	h.pool.Purge(time.Now())
	if h.pool.Have(tx.TxID()) {
		t.Errorf("stale entry should have been purged")
	}
}

func TestEvictionOnCapacity(t *testing.T) {
	h := newPoolHarness(t)
	h.pool.cfg.MaxSize = 1

	low := h.createTx(fundingOutpoint(100000), 600, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(low, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction low: %s", err)
	}
	high := h.createTx(fundingOutpoint(90000), 20000, wire.SequenceLockTimeDisabled)
	if _, err := h.pool.ProcessTransaction(high, time.Now()); err != nil {
		t.Fatalf("ProcessTransaction high: %s", err)
	}

	if h.pool.Have(low.TxID()) {
		t.Errorf("lowest fee-rate entry should have been evicted at capacity")
	}
	if !h.pool.Have(high.TxID()) {
		t.Errorf("higher fee-rate entry should survive eviction")
	}
}
