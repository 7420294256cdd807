package base58

import (
	"crypto/sha256"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160"
)

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// ErrChecksum is returned from CheckDecode when the checksum does not
// validate.
var ErrChecksum = errors.New("checksum error")

// ErrInvalidFormat is returned from CheckDecode when the input is too
// short to contain a version byte and checksum.
var ErrInvalidFormat = errors.New("invalid format: version and/or checksum bytes missing")

func checksum(input []byte) (cksum [4]byte) {
	h := doubleSHA256(input)
	copy(cksum[:], h[:4])
	return
}

func doubleSHA256(b []byte) []byte {
	first := sha256Sum(b)
	second := sha256Sum(first)
	return second
}

// CheckEncode prepends a version byte to input, appends a 4-byte
// double-SHA-256 checksum, and base58-encodes the result — the standard
// Base58Check scheme this daemon's addresses use (util/base58/doc.go).
func CheckEncode(input []byte, version byte) string {
	b := make([]byte, 0, 1+len(input)+4)
	b = append(b, version)
	b = append(b, input...)
	cksum := checksum(b)
	b = append(b, cksum[:]...)
	return Encode(b)
}

// CheckDecode decodes a Base58Check string, validating its checksum, and
// returns the payload and version byte.
func CheckDecode(input string) (payload []byte, version byte, err error) {
	decoded := Decode(input)
	if len(decoded) < 5 {
		return nil, 0, ErrInvalidFormat
	}
	version = decoded[0]
	body := decoded[:len(decoded)-4]
	cksum := checksum(body)
	if !equal4(cksum, decoded[len(decoded)-4:]) {
		return nil, 0, ErrChecksum
	}
	payload = body[1:]
	return payload, version, nil
}

func equal4(a [4]byte, b []byte) bool {
	if len(b) != 4 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ripemd160Sum computes RIPEMD160(b). Nothing in this module calls it;
// hash160 addresses are built with txscript.Hash160.
func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}
