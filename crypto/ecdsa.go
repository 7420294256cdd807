// Package crypto wraps the ECDSA primitives, HMAC, and Merkle-tree
// construction shared by txscript, the mempool, the miner, and the wallet.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"
)

// PrivateKey is a secp256k1 private key.
type PrivateKey = btcec.PrivateKey

// PublicKey is a secp256k1 public key.
type PublicKey = btcec.PublicKey

// Signature is a DER-encoded ECDSA signature.
type Signature = ecdsa.Signature

// GeneratePrivateKey generates a new random private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// ParsePrivateKey parses a 32-byte big-endian scalar into a private key.
func ParsePrivateKey(serialized []byte) (*PrivateKey, error) {
	if len(serialized) != 32 {
		return nil, errors.Errorf("invalid private key length %d", len(serialized))
	}
	key, _ := btcec.PrivKeyFromBytes(serialized)
	return key, nil
}

// ParsePublicKey parses a compressed or uncompressed public key.
func ParsePublicKey(serialized []byte) (*PublicKey, error) {
	return btcec.ParsePubKey(serialized)
}

// Sign produces a deterministic ECDSA signature (RFC6979) over hash using
// key. hash is expected to already be the 32-byte signature hash of the
// payload being signed (see txscript.CalcSignatureHash).
func Sign(key *PrivateKey, hash []byte) (*Signature, error) {
	if len(hash) != 32 {
		return nil, errors.Errorf("invalid sighash length %d, want 32", len(hash))
	}
	return ecdsa.Sign(key, hash), nil
}

// Verify checks that sig is a valid signature over hash by pub.
func Verify(sig *Signature, hash []byte, pub *PublicKey) bool {
	if len(hash) != 32 {
		return false
	}
	return sig.Verify(hash, pub)
}

// ParseSignature parses a DER-encoded ECDSA signature.
func ParseSignature(serialized []byte) (*Signature, error) {
	return ecdsa.ParseDERSignature(serialized)
}

// HMACSHA256 computes HMAC-SHA256(key, data). Nothing in this module
// calls it.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
