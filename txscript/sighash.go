package txscript

import (
	"bytes"
	"encoding/binary"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
)

// SigHashType classifies which parts of the transaction a signature
// commits to. SigHashAll, committing to every input and output, is the
// only type this daemon's wallet produces.
type SigHashType byte

// SigHashAll commits to the whole transaction.
const SigHashAll SigHashType = 0x01

// CalcSignatureHash computes the signature hash for input idx of tx: the
// transaction is re-serialized with scriptCode installed as the signature
// script of input idx and every other input's signature script blanked,
// then the hash type byte is appended before hashing (spec.md §4.1).
func CalcSignatureHash(tx *wire.MsgTx, idx int, scriptCode []byte, hashType SigHashType) (chainhash.Hash, error) {
	txCopy := tx.Copy()
	for i, in := range txCopy.TxIn {
		if i == idx {
			in.SignatureScript = scriptCode
		} else {
			in.SignatureScript = nil
		}
	}

	var buf bytes.Buffer
	if err := txCopy.Serialize(&buf); err != nil {
		return chainhash.Hash{}, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(hashType)); err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(buf.Bytes()), nil
}
