package txscript

import (
	"sync"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/wire"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160"
)

// Hash160 computes RIPEMD160(SHA256(b)), the address-hash function used by
// P2PKH locking scripts.
func Hash160(b []byte) []byte {
	sha := chainhash.HashB(b)
	r := ripemd160.New()
	r.Write(sha)
	return r.Sum(nil)
}

// sigCacheKey is a SigCache key of (signature hash, pubkey, signature) so a
// signature validated once — while admitting a transaction into the
// mempool, say — need not be re-verified when the same transaction is
// later validated inside a block.
type sigCacheKey struct {
	sigHash chainhash.Hash
	sig     string
	pubKey  string
}

// SigCache memoizes ECDSA signature verification results (spec.md §9,
// the SigCache concern carried into SPEC_FULL.md C1a).
type SigCache struct {
	mtx     sync.RWMutex
	entries map[sigCacheKey]bool
	maxSize int
}

// NewSigCache constructs a SigCache holding at most maxEntries results.
func NewSigCache(maxEntries int) *SigCache {
	return &SigCache{
		entries: make(map[sigCacheKey]bool, maxEntries),
		maxSize: maxEntries,
	}
}

func (c *SigCache) key(sigHash chainhash.Hash, sigWithType, pubKey []byte) sigCacheKey {
	return sigCacheKey{sigHash: sigHash, sig: string(sigWithType), pubKey: string(pubKey)}
}

// Exists reports a cached verification result.
func (c *SigCache) Exists(sigHash chainhash.Hash, sigWithType, pubKey []byte) (valid bool, ok bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	valid, ok = c.entries[c.key(sigHash, sigWithType, pubKey)]
	return valid, ok
}

// Add records a verification result, evicting an arbitrary entry if the
// cache is full.
func (c *SigCache) Add(sigHash chainhash.Hash, sigWithType, pubKey []byte, valid bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.entries) >= c.maxSize {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[c.key(sigHash, sigWithType, pubKey)] = valid
}

// VerifyInput verifies that input idx of tx satisfies utxoScript, the
// locking script of the output it spends (spec.md §4.1 "Script
// verification"). It implements the single P2PKH branch of the closed
// ScriptClass set; any other script shape is rejected.
func VerifyInput(tx *wire.MsgTx, idx int, utxoScript []byte, sigCache *SigCache) error {
	if idx < 0 || idx >= len(tx.TxIn) {
		return errors.Errorf("input index %d out of range", idx)
	}

	pubKeyHash, class := ExtractPubKeyHash(utxoScript)
	if class != PubKeyHashTy {
		return errors.New("script failure: unsupported locking script")
	}

	sigWithType, pubKey, err := ExtractSignatureAndPubKey(tx.TxIn[idx].SignatureScript)
	if err != nil {
		return errors.Wrap(err, "script failure")
	}
	if len(sigWithType) == 0 {
		return errors.New("script failure: empty signature")
	}

	if !bytesEqual(Hash160(pubKey), pubKeyHash) {
		return errors.New("script failure: public key does not match locking script hash")
	}

	hashType := SigHashType(sigWithType[len(sigWithType)-1])
	signature := sigWithType[:len(sigWithType)-1]

	sigHash, err := CalcSignatureHash(tx, idx, utxoScript, hashType)
	if err != nil {
		return errors.Wrap(err, "failed computing signature hash")
	}

	if sigCache != nil {
		if valid, ok := sigCache.Exists(sigHash, sigWithType, pubKey); ok {
			if !valid {
				return errors.New("script failure: signature does not verify")
			}
			return nil
		}
	}

	pk, err := crypto.ParsePublicKey(pubKey)
	if err != nil {
		return errors.Wrap(err, "script failure: invalid public key")
	}
	sig, err := crypto.ParseSignature(signature)
	if err != nil {
		return errors.Wrap(err, "script failure: invalid signature encoding")
	}

	valid := crypto.Verify(sig, sigHash[:], pk)
	if sigCache != nil {
		sigCache.Add(sigHash, sigWithType, pubKey, valid)
	}
	if !valid {
		return errors.New("script failure: signature does not verify")
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
