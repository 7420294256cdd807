// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txscript implements the closed set of spending predicates a
// locking script may express (spec.md §9 design note: "dynamic dispatch
// for script-like predicates... model as a closed set of tagged variants
// with a common verify contract"). Today that set has one member, P2PKH;
// adding multisig or P2SH means adding a new ScriptClass case, not an
// open-ended plugin mechanism.
package txscript

import (
	"github.com/pkg/errors"
)

// Standard P2PKH opcodes. Only the handful needed to recognize and build
// the one supported predicate are defined; this is not a general script
// VM.
const (
	OpDup         = 0x76
	OpHash160     = 0xa9
	OpData20      = 0x14
	OpEqualVerify = 0x88
	OpCheckSig    = 0xac
)

// HashSize is the length of a RIPEMD160(SHA256(pubkey)) address hash.
const HashSize = 20

// ScriptClass tags which predicate a locking script expresses.
type ScriptClass int

// Supported script classes.
const (
	NonStandardTy ScriptClass = iota
	PubKeyHashTy
)

// PayToAddrScript builds the standard P2PKH locking script for a 20-byte
// public-key hash: OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY
// OP_CHECKSIG.
func PayToAddrScript(pubKeyHash []byte) ([]byte, error) {
	if len(pubKeyHash) != HashSize {
		return nil, errors.Errorf("invalid pubkey hash length %d, want %d", len(pubKeyHash), HashSize)
	}
	script := make([]byte, 0, 25)
	script = append(script, OpDup, OpHash160, OpData20)
	script = append(script, pubKeyHash...)
	script = append(script, OpEqualVerify, OpCheckSig)
	return script, nil
}

// ExtractPubKeyHash recognizes a standard P2PKH locking script and
// returns the embedded address hash. It is the sole ScriptClass this
// daemon recognizes; any other shape is NonStandardTy.
func ExtractPubKeyHash(script []byte) ([]byte, ScriptClass) {
	if len(script) == 25 &&
		script[0] == OpDup &&
		script[1] == OpHash160 &&
		script[2] == OpData20 &&
		script[23] == OpEqualVerify &&
		script[24] == OpCheckSig {
		return script[3:23], PubKeyHashTy
	}
	return nil, NonStandardTy
}

// SignatureScript builds the standard P2PKH unlocking script:
// <signature+hashtype> <pubkey>.
func SignatureScript(signature []byte, hashType byte, pubKey []byte) []byte {
	sigWithType := append(append([]byte{}, signature...), hashType)
	script := make([]byte, 0, 1+len(sigWithType)+1+len(pubKey))
	script = append(script, byte(len(sigWithType)))
	script = append(script, sigWithType...)
	script = append(script, byte(len(pubKey)))
	script = append(script, pubKey...)
	return script
}

// ExtractSignatureAndPubKey parses the standard P2PKH unlocking script
// produced by SignatureScript.
func ExtractSignatureAndPubKey(script []byte) (sigWithType, pubKey []byte, err error) {
	if len(script) < 2 {
		return nil, nil, errors.New("unlocking script too short")
	}
	sigLen := int(script[0])
	if len(script) < 1+sigLen+1 {
		return nil, nil, errors.New("unlocking script truncated (signature)")
	}
	sigWithType = script[1 : 1+sigLen]

	rest := script[1+sigLen:]
	if len(rest) < 1 {
		return nil, nil, errors.New("unlocking script truncated (pubkey length)")
	}
	pkLen := int(rest[0])
	if len(rest) < 1+pkLen {
		return nil, nil, errors.New("unlocking script truncated (pubkey)")
	}
	pubKey = rest[1 : 1+pkLen]
	return sigWithType, pubKey, nil
}
