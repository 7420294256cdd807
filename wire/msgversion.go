package wire

import "io"

// ProtocolVersion is the version of the wire protocol this daemon speaks.
const ProtocolVersion uint32 = 1

// MsgVersion announces a peer's identity and capabilities on connect
// (spec.md §4.7 handshake). A received version is always followed by a
// verack.
type MsgVersion struct {
	ProtocolVersion uint32
	Services        ServiceFlag
	Timestamp       int64
	AddrMe          NetAddress
	AddrYou         NetAddress
	Nonce           uint64
	UserAgent       string
	SelectedHeight  uint64
}

// NewMsgVersion constructs a version message.
func NewMsgVersion(me, you NetAddress, nonce uint64, selectedHeight uint64) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        SFNodeNetwork,
		Timestamp:       0,
		AddrMe:          me,
		AddrYou:         you,
		Nonce:           nonce,
		UserAgent:       "/ledgerd:0.1.0/",
		SelectedHeight:  selectedHeight,
	}
}

// Command implements Message.
func (msg *MsgVersion) Command() MessageCommand { return CmdVersion }

// BtcEncode implements Message.
func (msg *MsgVersion) BtcEncode(w io.Writer) error {
	if err := writeUint32(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(msg.Services)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(msg.Timestamp)); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrMe); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrYou); err != nil {
		return err
	}
	if err := writeUint64(w, msg.Nonce); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.UserAgent); err != nil {
		return err
	}
	return writeUint64(w, msg.SelectedHeight)
}

// BtcDecode implements Message.
func (msg *MsgVersion) BtcDecode(r io.Reader) error {
	pv, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.ProtocolVersion = pv

	services, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Services = ServiceFlag(services)

	ts, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Timestamp = int64(ts)

	me, err := readNetAddress(r)
	if err != nil {
		return err
	}
	msg.AddrMe = *me

	you, err := readNetAddress(r)
	if err != nil {
		return err
	}
	msg.AddrYou = *you

	nonce, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Nonce = nonce

	ua, err := ReadVarString(r, 256)
	if err != nil {
		return err
	}
	msg.UserAgent = ua

	height, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.SelectedHeight = height
	return nil
}

// MsgVerAck completes the handshake half-started by MsgVersion.
type MsgVerAck struct{}

// Command implements Message.
func (msg *MsgVerAck) Command() MessageCommand { return CmdVerAck }

// BtcEncode implements Message.
func (msg *MsgVerAck) BtcEncode(w io.Writer) error { return nil }

// BtcDecode implements Message.
func (msg *MsgVerAck) BtcDecode(r io.Reader) error { return nil }
