package wire

import (
	"io"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/pkg/errors"
)

// MaxBlockLocatorsPerMsg bounds the number of locator hashes accepted in a
// getblocks/getheaders request.
const MaxBlockLocatorsPerMsg = 500

func writeHashList(w io.Writer, hashes []*chainhash.Hash) error {
	if err := WriteVarInt(w, uint64(len(hashes))); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	return nil
}

func readHashList(r io.Reader, max uint64) ([]*chainhash.Hash, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > max {
		return nil, errors.Errorf("too many hashes for message [count %d, max %d]", count, max)
	}
	list := make([]*chainhash.Hash, count)
	for i := range list {
		h := new(chainhash.Hash)
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, err
		}
		list[i] = h
	}
	return list, nil
}

// MsgGetBlocks requests block inventory starting after the newest locator
// hash the peer recognizes, used during Initial Block Download
// (spec.md §4.7).
type MsgGetBlocks struct {
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

// Command implements Message.
func (msg *MsgGetBlocks) Command() MessageCommand { return CmdGetBlocks }

// BtcEncode implements Message.
func (msg *MsgGetBlocks) BtcEncode(w io.Writer) error {
	if err := writeHashList(w, msg.BlockLocatorHashes); err != nil {
		return err
	}
	_, err := w.Write(msg.HashStop[:])
	return err
}

// BtcDecode implements Message.
func (msg *MsgGetBlocks) BtcDecode(r io.Reader) error {
	list, err := readHashList(r, MaxBlockLocatorsPerMsg)
	if err != nil {
		return err
	}
	msg.BlockLocatorHashes = list
	_, err = io.ReadFull(r, msg.HashStop[:])
	return err
}

// MsgGetHeaders is identical in shape to MsgGetBlocks but requests headers
// only, the first phase of IBD (spec.md §4.7).
type MsgGetHeaders struct {
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

// Command implements Message.
func (msg *MsgGetHeaders) Command() MessageCommand { return CmdGetHeaders }

// BtcEncode implements Message.
func (msg *MsgGetHeaders) BtcEncode(w io.Writer) error {
	if err := writeHashList(w, msg.BlockLocatorHashes); err != nil {
		return err
	}
	_, err := w.Write(msg.HashStop[:])
	return err
}

// BtcDecode implements Message.
func (msg *MsgGetHeaders) BtcDecode(r io.Reader) error {
	list, err := readHashList(r, MaxBlockLocatorsPerMsg)
	if err != nil {
		return err
	}
	msg.BlockLocatorHashes = list
	_, err = io.ReadFull(r, msg.HashStop[:])
	return err
}

// MaxHeadersPerMsg bounds a single headers response batch
// (spec.md §4.7 BATCH_SIZE).
const MaxHeadersPerMsg = 2000

// MsgHeaders answers a getheaders request with a batch of block headers.
type MsgHeaders struct {
	Headers []*BlockHeader
}

// Command implements Message.
func (msg *MsgHeaders) Command() MessageCommand { return CmdHeaders }

// BtcEncode implements Message.
func (msg *MsgHeaders) BtcEncode(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(msg.Headers))); err != nil {
		return err
	}
	for _, h := range msg.Headers {
		if err := h.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// BtcDecode implements Message.
func (msg *MsgHeaders) BtcDecode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxHeadersPerMsg {
		return errors.Errorf("too many headers for message [count %d, max %d]", count, MaxHeadersPerMsg)
	}
	msg.Headers = make([]*BlockHeader, count)
	for i := range msg.Headers {
		h := new(BlockHeader)
		if err := h.Deserialize(r); err != nil {
			return err
		}
		msg.Headers[i] = h
	}
	return nil
}
