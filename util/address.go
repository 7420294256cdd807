package util

import (
	"github.com/ledgerforge/ledgerd/util/base58"
	"github.com/pkg/errors"
)

// P2PKHAddrID is the version byte prepended to a P2PKH address's hash160
// before Base58Check encoding.
const P2PKHAddrID = 0x00

// Address is a Base58Check-encoded P2PKH address: a 20-byte hash160 of a
// public key plus a version byte and checksum.
type Address struct {
	hash [20]byte
}

// NewAddressPubKeyHash builds an Address from a 20-byte public-key hash.
func NewAddressPubKeyHash(pkHash []byte) (*Address, error) {
	if len(pkHash) != 20 {
		return nil, errors.Errorf("invalid pubkey hash length %d, want 20", len(pkHash))
	}
	a := &Address{}
	copy(a.hash[:], pkHash)
	return a, nil
}

// Hash160 returns the 20-byte public-key hash this address encodes.
func (a *Address) Hash160() []byte {
	out := make([]byte, 20)
	copy(out, a.hash[:])
	return out
}

// EncodeAddress returns the Base58Check string form of the address.
func (a *Address) EncodeAddress() string {
	return base58.CheckEncode(a.hash[:], P2PKHAddrID)
}

func (a *Address) String() string { return a.EncodeAddress() }

// DecodeAddress parses a Base58Check-encoded address string.
func DecodeAddress(addr string) (*Address, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, errors.Wrap(err, "malformed address")
	}
	if version != P2PKHAddrID {
		return nil, errors.Errorf("unsupported address version %d", version)
	}
	return NewAddressPubKeyHash(payload)
}
