package wire

import (
	"io"

	"github.com/pkg/errors"
)

// MaxAddrPerMsg bounds the number of addresses exchanged in a single addr
// message.
const MaxAddrPerMsg = 1000

// MsgGetAddr requests known peer addresses (spec.md §4.7 peer exchange).
type MsgGetAddr struct{}

// Command implements Message.
func (msg *MsgGetAddr) Command() MessageCommand { return CmdGetAddr }

// BtcEncode implements Message.
func (msg *MsgGetAddr) BtcEncode(w io.Writer) error { return nil }

// BtcDecode implements Message.
func (msg *MsgGetAddr) BtcDecode(r io.Reader) error { return nil }

// MsgAddr carries a batch of known peer addresses.
type MsgAddr struct {
	AddrList []*NetAddress
}

// AddAddress appends an address, enforcing MaxAddrPerMsg.
func (msg *MsgAddr) AddAddress(na *NetAddress) error {
	if len(msg.AddrList)+1 > MaxAddrPerMsg {
		return errors.Errorf("too many addresses in message [max %d]", MaxAddrPerMsg)
	}
	msg.AddrList = append(msg.AddrList, na)
	return nil
}

// Command implements Message.
func (msg *MsgAddr) Command() MessageCommand { return CmdAddr }

// BtcEncode implements Message.
func (msg *MsgAddr) BtcEncode(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(msg.AddrList))); err != nil {
		return err
	}
	for _, na := range msg.AddrList {
		if err := writeNetAddress(w, na); err != nil {
			return err
		}
	}
	return nil
}

// BtcDecode implements Message.
func (msg *MsgAddr) BtcDecode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxAddrPerMsg {
		return errors.Errorf("too many addresses for message [count %d, max %d]", count, MaxAddrPerMsg)
	}
	msg.AddrList = make([]*NetAddress, count)
	for i := range msg.AddrList {
		na, err := readNetAddress(r)
		if err != nil {
			return err
		}
		msg.AddrList[i] = na
	}
	return nil
}
