package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/pkg/errors"
)

// MaxMessagePayload is the maximum bytes a message's payload may occupy
// regardless of other message-specific limits (spec.md §6).
const MaxMessagePayload = 32 * 1024 * 1024

// BitcoinNet represents the magic number identifying the network the node
// is speaking on.
type BitcoinNet uint32

// Known networks.
const (
	MainNet BitcoinNet = 0xd9b4bef9
	TestNet BitcoinNet = 0x0709110b
	SimNet  BitcoinNet = 0x12141c16
)

// MessageCommand is a number in the header of a message that represents
// its type.
type MessageCommand uint32

// Commands used in message headers describing the type of message
// (spec.md §6).
const (
	CmdVersion             MessageCommand = iota
	CmdVerAck
	CmdPing
	CmdPong
	CmdGetAddr
	CmdAddr
	CmdInv
	CmdGetData
	CmdNotFound
	CmdGetBlocks
	CmdGetHeaders
	CmdHeaders
	CmdBlock
	CmdTx
	CmdMempool
	CmdReject
	CmdGetBlockchainHeight
	CmdBlockchainHeight
	CmdGetBlockByHeight
	CmdBlockData
)

var commandNames = map[MessageCommand]string{
	CmdVersion:             "version",
	CmdVerAck:              "verack",
	CmdPing:                "ping",
	CmdPong:                "pong",
	CmdGetAddr:             "getaddr",
	CmdAddr:                "addr",
	CmdInv:                 "inv",
	CmdGetData:             "getdata",
	CmdNotFound:            "notfound",
	CmdGetBlocks:           "getblocks",
	CmdGetHeaders:          "getheaders",
	CmdHeaders:             "headers",
	CmdBlock:               "block",
	CmdTx:                  "tx",
	CmdMempool:             "mempool",
	CmdReject:              "reject",
	CmdGetBlockchainHeight: "getblockchainheight",
	CmdBlockchainHeight:    "blockchainheight",
	CmdGetBlockByHeight:    "getblockbyheight",
	CmdBlockData:           "blockdata",
}

func (cmd MessageCommand) String() string {
	if s, ok := commandNames[cmd]; ok {
		return s
	}
	return fmt.Sprintf("unknown command [code %d]", uint32(cmd))
}

// Message is implemented by every type that can travel across the P2P
// wire.
type Message interface {
	Command() MessageCommand
	BtcEncode(w io.Writer) error
	BtcDecode(r io.Reader) error
}

// messageHeaderLength is 4 (magic) + 12 (command) + 4 (length) + 4
// (checksum), matching spec.md §6's wire framing.
const messageHeaderLength = 4 + 12 + 4 + 4

func commandToBytes(cmd MessageCommand) [12]byte {
	var buf [12]byte
	copy(buf[:], cmd.String())
	return buf
}

func bytesToCommand(b [12]byte) string {
	i := bytes.IndexByte(b[:], 0)
	if i < 0 {
		i = len(b)
	}
	return string(b[:i])
}

var nameToCommand = func() map[string]MessageCommand {
	m := make(map[string]MessageCommand, len(commandNames))
	for cmd, name := range commandNames {
		m[name] = cmd
	}
	return m
}()

// WriteMessage serializes msg and frames it with the 4-byte network magic,
// 12-byte zero-padded command, 4-byte payload length, and 4-byte checksum
// (first 4 bytes of double-SHA-256(payload)) mandated by spec.md §6.
func WriteMessage(w io.Writer, msg Message, net BitcoinNet) error {
	var payload bytes.Buffer
	if err := msg.BtcEncode(&payload); err != nil {
		return err
	}
	if payload.Len() > MaxMessagePayload {
		return errors.Errorf("message payload is too large - encoded %d bytes, but maximum message payload is %d bytes",
			payload.Len(), MaxMessagePayload)
	}

	var header bytes.Buffer
	if err := binary.Write(&header, binary.LittleEndian, uint32(net)); err != nil {
		return err
	}
	cmdBytes := commandToBytes(msg.Command())
	if _, err := header.Write(cmdBytes[:]); err != nil {
		return err
	}
	if err := binary.Write(&header, binary.LittleEndian, uint32(payload.Len())); err != nil {
		return err
	}
	checksum := chainhash.DoubleHashB(payload.Bytes())
	if _, err := header.Write(checksum[:4]); err != nil {
		return err
	}

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

// messageHeader is the decoded framing prefix of a message.
type messageHeader struct {
	magic    BitcoinNet
	command  string
	length   uint32
	checksum [4]byte
}

func readMessageHeader(r io.Reader) (*messageHeader, error) {
	var buf [messageHeaderLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	hdr := &messageHeader{}
	hdr.magic = BitcoinNet(binary.LittleEndian.Uint32(buf[0:4]))
	var cmdBytes [12]byte
	copy(cmdBytes[:], buf[4:16])
	hdr.command = bytesToCommand(cmdBytes)
	hdr.length = binary.LittleEndian.Uint32(buf[16:20])
	copy(hdr.checksum[:], buf[20:24])
	return hdr, nil
}

// ReadMessage reads a single framed message from r, validating the network
// magic and payload checksum before decoding the command-specific payload.
func ReadMessage(r io.Reader, net BitcoinNet) (Message, error) {
	hdr, err := readMessageHeader(r)
	if err != nil {
		return nil, err
	}
	if hdr.magic != net {
		return nil, errors.Errorf("message from another network [%v]", hdr.magic)
	}
	if hdr.length > MaxMessagePayload {
		return nil, errors.Errorf("message payload is too large - header indicates %d bytes, but max message payload is %d bytes",
			hdr.length, MaxMessagePayload)
	}

	cmd, ok := nameToCommand[hdr.command]
	if !ok {
		return nil, errors.Errorf("unhandled command [%s]", hdr.command)
	}

	payload := make([]byte, hdr.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	checksum := chainhash.DoubleHashB(payload)
	if !bytes.Equal(checksum[:4], hdr.checksum[:]) {
		return nil, errors.Errorf("payload checksum failed - header indicates %x, but actual checksum is %x",
			hdr.checksum, checksum[:4])
	}

	msg, err := makeEmptyMessage(cmd)
	if err != nil {
		return nil, err
	}
	if err := msg.BtcDecode(bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	return msg, nil
}
