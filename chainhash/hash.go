// Package chainhash provides the fixed-width identity hash used throughout
// the daemon for transactions, block headers, and outpoints.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// HashSize is the number of bytes in a hash.
const HashSize = 32

// Hash is a 32-byte double-SHA-256 digest.
type Hash [HashSize]byte

// ZeroHash is the hash with all zero bytes, used as the sentinel previous
// outpoint hash of a coinbase input.
var ZeroHash Hash

// String returns the hash as a hex string in big-endian (human-readable)
// byte order, the same convention bitcoin-derived codebases use for
// display.
func (h Hash) String() string {
	for i := 0; i < HashSize/2; i++ {
		h[i], h[HashSize-1-i] = h[HashSize-1-i], h[i]
	}
	return hex.EncodeToString(h[:])
}

// IsEqual reports whether the hash equals the target. A nil target is
// never equal.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil || target == nil {
		return h == target
	}
	return *h == *target
}

// SetBytes sets the hash to the value of the passed slice, which must be
// exactly HashSize bytes.
func (h *Hash) SetBytes(newHash []byte) error {
	if len(newHash) != HashSize {
		return errors.Errorf("invalid hash length of %d, want %d", len(newHash), HashSize)
	}
	copy(h[:], newHash)
	return nil
}

// NewHash constructs a Hash from a byte slice.
func NewHash(newHash []byte) (*Hash, error) {
	var h Hash
	err := h.SetBytes(newHash)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// NewHashFromStr parses a big-endian hex string into a Hash.
func NewHashFromStr(hash string) (*Hash, error) {
	ret := new(Hash)
	err := Decode(ret, hash)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Decode decodes the big-endian hex string encoding of a hash into dst.
func Decode(dst *Hash, src string) error {
	reversedHash, err := hex.DecodeString(src)
	if err != nil {
		return err
	}
	if len(reversedHash) != HashSize {
		return errors.Errorf("invalid hash string length of %d, want %d", len(reversedHash), HashSize)
	}
	for i, b := range reversedHash {
		dst[HashSize-1-i] = b
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return Decode(h, s)
}

// HashB computes a single SHA-256 digest of b.
func HashB(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// HashH computes a single SHA-256 digest of b and returns it as a Hash.
func HashH(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// DoubleHashB computes a double SHA-256 digest of b, the canonical
// transaction and block-header identity hash used throughout this daemon.
func DoubleHashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleHashH computes a double SHA-256 digest of b and returns it as a
// Hash.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	return Hash(sha256.Sum256(first[:]))
}
