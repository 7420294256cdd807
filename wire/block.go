package wire

import (
	"bytes"
	"io"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/pkg/errors"
)

// MaxBlockSize is the largest serialized size a block is allowed to have
// (spec.md §4.1 "Structural" validation).
const MaxBlockSize = 4 * 1000 * 1000

// BlockHeader is the fixed-size, hashed part of a block (spec.md §3).
type BlockHeader struct {
	Version       int32
	PrevBlock     chainhash.Hash
	MerkleRoot    chainhash.Hash
	Timestamp     int64 // unix seconds
	Bits          uint32
	Nonce         uint64
	Height        uint64
}

// BlockHash returns the double-SHA-256 identity hash of the serialized
// header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	var buf bytes.Buffer
	_ = h.Serialize(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Serialize writes the canonical little-endian encoding of the header.
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(h.Version)); err != nil {
		return err
	}
	if _, err := w.Write(h.PrevBlock[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.MerkleRoot[:]); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(h.Timestamp)); err != nil {
		return err
	}
	if err := writeUint32(w, h.Bits); err != nil {
		return err
	}
	if err := writeUint64(w, h.Nonce); err != nil {
		return err
	}
	return writeUint64(w, h.Height)
}

// Deserialize reads the canonical encoding written by Serialize.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	h.Version = int32(version)

	if _, err := io.ReadFull(r, h.PrevBlock[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, h.MerkleRoot[:]); err != nil {
		return err
	}

	ts, err := readUint64(r)
	if err != nil {
		return err
	}
	h.Timestamp = int64(ts)

	bits, err := readUint32(r)
	if err != nil {
		return err
	}
	h.Bits = bits

	nonce, err := readUint64(r)
	if err != nil {
		return err
	}
	h.Nonce = nonce

	height, err := readUint64(r)
	if err != nil {
		return err
	}
	h.Height = height
	return nil
}

// MsgBlock is a header plus the ordered transaction list it commits to via
// MerkleRoot (spec.md §3); element zero is always the coinbase.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

// Command implements Message.
func (msg *MsgBlock) Command() MessageCommand { return CmdBlock }

// BtcEncode implements Message.
func (msg *MsgBlock) BtcEncode(w io.Writer) error { return msg.Serialize(w) }

// BtcDecode implements Message.
func (msg *MsgBlock) BtcDecode(r io.Reader) error { return msg.Deserialize(r) }

// BlockHash returns the header's identity hash.
func (msg *MsgBlock) BlockHash() chainhash.Hash {
	return msg.Header.BlockHash()
}

// Serialize writes the header followed by the varint-prefixed transaction
// list.
func (msg *MsgBlock) Serialize(w io.Writer) error {
	if err := msg.Header.Serialize(w); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(msg.Transactions))); err != nil {
		return err
	}
	for _, tx := range msg.Transactions {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// MaxTxPerBlock bounds the transaction count accepted while decoding a
// block off the wire.
const MaxTxPerBlock = 1_000_000

// Deserialize reads the encoding written by Serialize.
func (msg *MsgBlock) Deserialize(r io.Reader) error {
	if err := msg.Header.Deserialize(r); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxPerBlock {
		return errors.Errorf("too many transactions in block: %d", count)
	}
	msg.Transactions = make([]*MsgTx, count)
	for i := range msg.Transactions {
		tx := new(MsgTx)
		if err := tx.Deserialize(r); err != nil {
			return err
		}
		msg.Transactions[i] = tx
	}
	return nil
}

// SerializeSize returns the number of bytes Serialize would write.
func (msg *MsgBlock) SerializeSize() int {
	n := 4 + chainhash.HashSize*2 + 8 + 4 + 8 + 8
	n += VarIntSerializeSize(uint64(len(msg.Transactions)))
	for _, tx := range msg.Transactions {
		n += tx.SerializeSize()
	}
	return n
}
