package wire

import "io"

// MsgPing is sent every 30s to a connected peer (spec.md §4.7 keep-alive);
// the peer is expected to echo the nonce back in a pong.
type MsgPing struct {
	Nonce uint64
}

// Command implements Message.
func (msg *MsgPing) Command() MessageCommand { return CmdPing }

// BtcEncode implements Message.
func (msg *MsgPing) BtcEncode(w io.Writer) error { return writeUint64(w, msg.Nonce) }

// BtcDecode implements Message.
func (msg *MsgPing) BtcDecode(r io.Reader) error {
	n, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Nonce = n
	return nil
}

// MsgPong echoes the nonce of a received MsgPing.
type MsgPong struct {
	Nonce uint64
}

// Command implements Message.
func (msg *MsgPong) Command() MessageCommand { return CmdPong }

// BtcEncode implements Message.
func (msg *MsgPong) BtcEncode(w io.Writer) error { return writeUint64(w, msg.Nonce) }

// BtcDecode implements Message.
func (msg *MsgPong) BtcDecode(r io.Reader) error {
	n, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Nonce = n
	return nil
}
