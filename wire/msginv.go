package wire

import (
	"io"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/pkg/errors"
)

// InvType identifies what an inventory vector refers to.
type InvType uint32

// Inventory kinds (spec.md §4.7).
const (
	InvTypeBlock InvType = iota
	InvTypeTx
)

// MaxInvPerMsg bounds the number of inventory vectors a single inv/getdata
// message may carry.
const MaxInvPerMsg = 50000

// InvVect names one block or transaction by its identity hash.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

func writeInvVect(w io.Writer, iv *InvVect) error {
	if err := writeUint32(w, uint32(iv.Type)); err != nil {
		return err
	}
	_, err := w.Write(iv.Hash[:])
	return err
}

func readInvVect(r io.Reader) (*InvVect, error) {
	t, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	iv := &InvVect{Type: InvType(t)}
	if _, err := io.ReadFull(r, iv.Hash[:]); err != nil {
		return nil, err
	}
	return iv, nil
}

func writeInvList(w io.Writer, list []*InvVect) error {
	if err := WriteVarInt(w, uint64(len(list))); err != nil {
		return err
	}
	for _, iv := range list {
		if err := writeInvVect(w, iv); err != nil {
			return err
		}
	}
	return nil
}

func readInvList(r io.Reader) ([]*InvVect, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxInvPerMsg {
		return nil, errors.Errorf("too many inventory vectors [count %d, max %d]", count, MaxInvPerMsg)
	}
	list := make([]*InvVect, count)
	for i := range list {
		iv, err := readInvVect(r)
		if err != nil {
			return nil, err
		}
		list[i] = iv
	}
	return list, nil
}

// MsgInv announces newly-available blocks or transactions to peers that
// have not already announced them (spec.md §4.7).
type MsgInv struct {
	InvList []*InvVect
}

// AddInvVect appends an inventory vector.
func (msg *MsgInv) AddInvVect(iv *InvVect) {
	msg.InvList = append(msg.InvList, iv)
}

// Command implements Message.
func (msg *MsgInv) Command() MessageCommand { return CmdInv }

// BtcEncode implements Message.
func (msg *MsgInv) BtcEncode(w io.Writer) error { return writeInvList(w, msg.InvList) }

// BtcDecode implements Message.
func (msg *MsgInv) BtcDecode(r io.Reader) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

// MsgGetData requests the full block/tx bodies named by InvList, sent in
// reply to an MsgInv for hashes the requester does not hold.
type MsgGetData struct {
	InvList []*InvVect
}

// AddInvVect appends an inventory vector.
func (msg *MsgGetData) AddInvVect(iv *InvVect) {
	msg.InvList = append(msg.InvList, iv)
}

// Command implements Message.
func (msg *MsgGetData) Command() MessageCommand { return CmdGetData }

// BtcEncode implements Message.
func (msg *MsgGetData) BtcEncode(w io.Writer) error { return writeInvList(w, msg.InvList) }

// BtcDecode implements Message.
func (msg *MsgGetData) BtcDecode(r io.Reader) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

// MsgNotFound answers a getdata request for inventory the peer no longer
// (or never did) hold.
type MsgNotFound struct {
	InvList []*InvVect
}

// Command implements Message.
func (msg *MsgNotFound) Command() MessageCommand { return CmdNotFound }

// BtcEncode implements Message.
func (msg *MsgNotFound) BtcEncode(w io.Writer) error { return writeInvList(w, msg.InvList) }

// BtcDecode implements Message.
func (msg *MsgNotFound) BtcDecode(r io.Reader) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}
