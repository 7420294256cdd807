package crypto

import "github.com/ledgerforge/ledgerd/chainhash"

// MerkleRoot computes the Merkle root over an ordered list of transaction
// identity hashes, duplicating the final element of an odd-length level as
// bitcoin-derived chains do.
func MerkleRoot(txIDs []chainhash.Hash) chainhash.Hash {
	if len(txIDs) == 0 {
		return chainhash.Hash{}
	}

	level := make([]chainhash.Hash, len(txIDs))
	copy(level, txIDs)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], level[2*i][:])
			copy(buf[chainhash.HashSize:], level[2*i+1][:])
			next[i] = chainhash.DoubleHashH(buf[:])
		}
		level = next
	}
	return level[0]
}
