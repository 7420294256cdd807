// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

// TestTxSerializeDeserialize mirrors the wire package's encode/decode test
// shape (msgverack_test.go, msgversion_test.go): serialize a message, read
// it back, and diff the round-tripped value against the original with
// spew.Sdump so a mismatch prints a readable struct dump instead of just
// "not equal".
func TestTxSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name string
		in   *MsgTx
	}{
		{
			name: "coinbase, no outputs consumed",
			in: func() *MsgTx {
				tx := NewMsgTx(1)
				tx.AddTxIn(&TxIn{
					PreviousOutpoint: Outpoint{Index: 0xffffffff},
					SignatureScript:  []byte{0x01, 0x02, 0x03},
					Sequence:         SequenceLockTimeDisabled,
				})
				tx.AddTxOut(&TxOut{Value: 5000000000, ScriptPubKey: []byte{0x76, 0xa9, 0x14}})
				return tx
			}(),
		},
		{
			name: "multi-input multi-output, RBF sequence",
			in: func() *MsgTx {
				tx := NewMsgTx(1)
				tx.AddTxIn(&TxIn{
					PreviousOutpoint: Outpoint{Index: 0},
					SignatureScript:  []byte{0xde, 0xad, 0xbe, 0xef},
					Sequence:         MaxRBFSequence - 1,
				})
				tx.AddTxIn(&TxIn{
					PreviousOutpoint: Outpoint{Index: 1},
					SignatureScript:  []byte{},
					Sequence:         SequenceLockTimeDisabled,
				})
				tx.AddTxOut(&TxOut{Value: 1000, ScriptPubKey: []byte{0x51}})
				tx.AddTxOut(&TxOut{Value: 2000, ScriptPubKey: []byte{}})
				tx.LockTime = 600000
				return tx
			}(),
		},
	}

	for _, test := range tests {
		var buf bytes.Buffer
		if err := test.in.Serialize(&buf); err != nil {
			t.Errorf("%s: Serialize: %s", test.name, err)
			continue
		}

		var out MsgTx
		if err := out.Deserialize(bytes.NewReader(buf.Bytes())); err != nil {
			t.Errorf("%s: Deserialize: %s", test.name, err)
			continue
		}

		if !reflect.DeepEqual(test.in, &out) {
			t.Errorf("%s: round-tripped tx mismatch\ngot: %swant: %s",
				test.name, spew.Sdump(&out), spew.Sdump(test.in))
		}
		if got := buf.Len(); got != test.in.SerializeSize() {
			t.Errorf("%s: SerializeSize = %d, want %d", test.name, test.in.SerializeSize(), got)
		}
	}
}

func TestTxIDStableAcrossSerialize(t *testing.T) {
	tx := NewMsgTx(1)
	tx.AddTxIn(&TxIn{PreviousOutpoint: Outpoint{Index: 7}, Sequence: SequenceLockTimeDisabled})
	tx.AddTxOut(&TxOut{Value: 42, ScriptPubKey: []byte{0x51}})

	id1 := tx.TxID()
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %s", err)
	}
	var out MsgTx
	if err := out.Deserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Deserialize: %s", err)
	}
	if id2 := out.TxID(); id1 != id2 {
		t.Fatalf("TxID changed across a serialize/deserialize round trip: %s != %s", id1, id2)
	}
}
