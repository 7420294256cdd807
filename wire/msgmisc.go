package wire

import "io"

// MsgMempool requests the peer's mempool transaction inventory.
type MsgMempool struct{}

// Command implements Message.
func (msg *MsgMempool) Command() MessageCommand { return CmdMempool }

// BtcEncode implements Message.
func (msg *MsgMempool) BtcEncode(w io.Writer) error { return nil }

// BtcDecode implements Message.
func (msg *MsgMempool) BtcDecode(r io.Reader) error { return nil }

// RejectCode classifies why a message was rejected.
type RejectCode uint8

// Reject codes.
const (
	RejectMalformed RejectCode = iota
	RejectInvalid
	RejectObsolete
	RejectDuplicate
	RejectNonstandard
	RejectInsufficientFee
)

// MsgReject notifies a peer that one of its messages was rejected, naming
// the offending command, a code, and a human-readable reason.
type MsgReject struct {
	Command RejectCommand
	Code    RejectCode
	Reason  string
	Hash    [32]byte
}

// RejectCommand is stored as free text since a reject may reference a
// command this node does not itself implement.
type RejectCommand string

// Command implements Message.
func (msg *MsgReject) Command() MessageCommand { return CmdReject }

// BtcEncode implements Message.
func (msg *MsgReject) BtcEncode(w io.Writer) error {
	if err := WriteVarString(w, string(msg.Command)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(msg.Code)}); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.Reason); err != nil {
		return err
	}
	_, err := w.Write(msg.Hash[:])
	return err
}

// BtcDecode implements Message.
func (msg *MsgReject) BtcDecode(r io.Reader) error {
	cmd, err := ReadVarString(r, 32)
	if err != nil {
		return err
	}
	msg.Command = RejectCommand(cmd)

	var codeBuf [1]byte
	if _, err := io.ReadFull(r, codeBuf[:]); err != nil {
		return err
	}
	msg.Code = RejectCode(codeBuf[0])

	reason, err := ReadVarString(r, 256)
	if err != nil {
		return err
	}
	msg.Reason = reason

	_, err = io.ReadFull(r, msg.Hash[:])
	return err
}

// MsgGetBlockchainHeight requests the peer's current best height, used to
// decide whether IBD should trigger (spec.md §4.7).
type MsgGetBlockchainHeight struct{}

// Command implements Message.
func (msg *MsgGetBlockchainHeight) Command() MessageCommand { return CmdGetBlockchainHeight }

// BtcEncode implements Message.
func (msg *MsgGetBlockchainHeight) BtcEncode(w io.Writer) error { return nil }

// BtcDecode implements Message.
func (msg *MsgGetBlockchainHeight) BtcDecode(r io.Reader) error { return nil }

// MsgBlockchainHeight answers MsgGetBlockchainHeight.
type MsgBlockchainHeight struct {
	Height uint64
}

// Command implements Message.
func (msg *MsgBlockchainHeight) Command() MessageCommand { return CmdBlockchainHeight }

// BtcEncode implements Message.
func (msg *MsgBlockchainHeight) BtcEncode(w io.Writer) error { return writeUint64(w, msg.Height) }

// BtcDecode implements Message.
func (msg *MsgBlockchainHeight) BtcDecode(r io.Reader) error {
	h, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Height = h
	return nil
}

// MsgGetBlockByHeight requests a single block body by height, used by RPC
// clients and catch-up sync.
type MsgGetBlockByHeight struct {
	Height uint64
}

// Command implements Message.
func (msg *MsgGetBlockByHeight) Command() MessageCommand { return CmdGetBlockByHeight }

// BtcEncode implements Message.
func (msg *MsgGetBlockByHeight) BtcEncode(w io.Writer) error { return writeUint64(w, msg.Height) }

// BtcDecode implements Message.
func (msg *MsgGetBlockByHeight) BtcDecode(r io.Reader) error {
	h, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Height = h
	return nil
}

// MsgBlockData answers MsgGetBlockByHeight, or carries MsgGetData's block
// reply (spec.md §6 message set "blockdata").
type MsgBlockData struct {
	Block *MsgBlock
	Found bool
}

// Command implements Message.
func (msg *MsgBlockData) Command() MessageCommand { return CmdBlockData }

// BtcEncode implements Message.
func (msg *MsgBlockData) BtcEncode(w io.Writer) error {
	found := byte(0)
	if msg.Found {
		found = 1
	}
	if _, err := w.Write([]byte{found}); err != nil {
		return err
	}
	if !msg.Found {
		return nil
	}
	return msg.Block.Serialize(w)
}

// BtcDecode implements Message.
func (msg *MsgBlockData) BtcDecode(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	msg.Found = buf[0] != 0
	if !msg.Found {
		return nil
	}
	msg.Block = new(MsgBlock)
	return msg.Block.Deserialize(r)
}
