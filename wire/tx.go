package wire

import (
	"bytes"
	"io"
	"math"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/pkg/errors"
)

const (
	// MaxTxInPerMessage is a sanity bound on the number of inputs a
	// single transaction may declare.
	MaxTxInPerMessage = (math.MaxUint32 - 11) / 41

	// MaxTxOutPerMessage is a sanity bound on the number of outputs a
	// single transaction may declare.
	MaxTxOutPerMessage = (math.MaxUint32 - 11) / 9

	// SequenceLockTimeDisabled marks a coinbase/non-RBF input: the
	// sentinel sequence used by spec.md §3's coinbase input.
	SequenceLockTimeDisabled = 0xffffffff

	// MaxRBFSequence is the highest sequence number that still signals
	// replace-by-fee opt-in (spec.md §4.5): any input with a sequence at
	// or below this value (that is, below 0xfffffffe) marks the owning
	// transaction replaceable.
	MaxRBFSequence = 0xfffffffd
)

// Outpoint identifies a single output of a single transaction.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// NewOutpoint builds an Outpoint.
func NewOutpoint(txID *chainhash.Hash, index uint32) *Outpoint {
	return &Outpoint{TxID: *txID, Index: index}
}

// IsNull reports whether the outpoint is the coinbase sentinel.
func (o Outpoint) IsNull() bool {
	return o.Index == math.MaxUint32 && o.TxID == chainhash.ZeroHash
}

func (o Outpoint) String() string {
	return o.TxID.String() + ":" + itoa(o.Index)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// TxIn is a single transaction input.
type TxIn struct {
	PreviousOutpoint Outpoint
	SignatureScript  []byte
	Sequence         uint64
}

// TxOut is a single transaction output.
type TxOut struct {
	Value        uint64
	ScriptPubKey []byte
}

// MsgTx is the canonical transaction structure: version, ordered inputs,
// ordered outputs, locktime (spec.md §3).
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint64
}

// NewMsgTx creates an empty transaction of the given version.
func NewMsgTx(version int32) *MsgTx {
	return &MsgTx{Version: version}
}

// AddTxIn appends an input.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut appends an output.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// IsCoinbase reports whether the transaction is the sentinel coinbase
// shape: exactly one input referencing the null outpoint.
func (msg *MsgTx) IsCoinbase() bool {
	return len(msg.TxIn) == 1 && msg.TxIn[0].PreviousOutpoint.IsNull()
}

// TxID returns the double-SHA-256 identity hash of the canonical
// serialization.
func (msg *MsgTx) TxID() chainhash.Hash {
	var buf bytes.Buffer
	// Errors from a bytes.Buffer writer are always nil.
	_ = msg.Serialize(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Serialize writes the canonical little-endian encoding of the
// transaction.
func (msg *MsgTx) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(msg.Version)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(msg.TxIn))); err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		if err := writeTxIn(w, ti); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(msg.TxOut))); err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		if err := writeTxOut(w, to); err != nil {
			return err
		}
	}
	return writeUint64(w, msg.LockTime)
}

func writeTxIn(w io.Writer, ti *TxIn) error {
	if _, err := w.Write(ti.PreviousOutpoint.TxID[:]); err != nil {
		return err
	}
	if err := writeUint32(w, ti.PreviousOutpoint.Index); err != nil {
		return err
	}
	if err := WriteVarBytes(w, ti.SignatureScript); err != nil {
		return err
	}
	return writeUint64(w, ti.Sequence)
}

func writeTxOut(w io.Writer, to *TxOut) error {
	if err := writeUint64(w, to.Value); err != nil {
		return err
	}
	return WriteVarBytes(w, to.ScriptPubKey)
}

// Deserialize reads the canonical encoding written by Serialize.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.Version = int32(version)

	inCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if inCount > MaxTxInPerMessage {
		return errors.Errorf("too many transaction inputs: %d", inCount)
	}
	msg.TxIn = make([]*TxIn, inCount)
	for i := range msg.TxIn {
		ti, err := readTxIn(r)
		if err != nil {
			return err
		}
		msg.TxIn[i] = ti
	}

	outCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if outCount > MaxTxOutPerMessage {
		return errors.Errorf("too many transaction outputs: %d", outCount)
	}
	msg.TxOut = make([]*TxOut, outCount)
	for i := range msg.TxOut {
		to, err := readTxOut(r)
		if err != nil {
			return err
		}
		msg.TxOut[i] = to
	}

	lockTime, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.LockTime = lockTime
	return nil
}

func readTxIn(r io.Reader) (*TxIn, error) {
	ti := &TxIn{}
	if _, err := io.ReadFull(r, ti.PreviousOutpoint.TxID[:]); err != nil {
		return nil, err
	}
	index, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	ti.PreviousOutpoint.Index = index

	script, err := ReadVarBytes(r, MaxVarBytesLen, "signature script")
	if err != nil {
		return nil, err
	}
	ti.SignatureScript = script

	seq, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	ti.Sequence = seq
	return ti, nil
}

func readTxOut(r io.Reader) (*TxOut, error) {
	to := &TxOut{}
	value, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	to.Value = value

	script, err := ReadVarBytes(r, MaxVarBytesLen, "public key script")
	if err != nil {
		return nil, err
	}
	to.ScriptPubKey = script
	return to, nil
}

// SerializeSize returns the number of bytes Serialize would write.
func (msg *MsgTx) SerializeSize() int {
	n := 4 + 8 // version + locktime
	n += VarIntSerializeSize(uint64(len(msg.TxIn)))
	for _, ti := range msg.TxIn {
		n += chainhash.HashSize + 4 + 8
		n += VarIntSerializeSize(uint64(len(ti.SignatureScript))) + len(ti.SignatureScript)
	}
	n += VarIntSerializeSize(uint64(len(msg.TxOut)))
	for _, to := range msg.TxOut {
		n += 8
		n += VarIntSerializeSize(uint64(len(to.ScriptPubKey))) + len(to.ScriptPubKey)
	}
	return n
}

// Command implements Message.
func (msg *MsgTx) Command() MessageCommand { return CmdTx }

// BtcEncode implements Message.
func (msg *MsgTx) BtcEncode(w io.Writer) error { return msg.Serialize(w) }

// BtcDecode implements Message.
func (msg *MsgTx) BtcDecode(r io.Reader) error { return msg.Deserialize(r) }

// Copy returns a deep copy of the transaction, used by txscript when
// blanking scripts to compute a signature hash (spec.md §4.1).
func (msg *MsgTx) Copy() *MsgTx {
	clone := &MsgTx{
		Version:  msg.Version,
		LockTime: msg.LockTime,
		TxIn:     make([]*TxIn, len(msg.TxIn)),
		TxOut:    make([]*TxOut, len(msg.TxOut)),
	}
	for i, ti := range msg.TxIn {
		script := make([]byte, len(ti.SignatureScript))
		copy(script, ti.SignatureScript)
		clone.TxIn[i] = &TxIn{
			PreviousOutpoint: ti.PreviousOutpoint,
			SignatureScript:  script,
			Sequence:         ti.Sequence,
		}
	}
	for i, to := range msg.TxOut {
		script := make([]byte, len(to.ScriptPubKey))
		copy(script, to.ScriptPubKey)
		clone.TxOut[i] = &TxOut{Value: to.Value, ScriptPubKey: script}
	}
	return clone
}
