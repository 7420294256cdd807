package wire

import "github.com/pkg/errors"

// makeEmptyMessage returns a newly allocated, zero-valued message for the
// given command so ReadMessage can decode into it.
func makeEmptyMessage(cmd MessageCommand) (Message, error) {
	switch cmd {
	case CmdVersion:
		return &MsgVersion{}, nil
	case CmdVerAck:
		return &MsgVerAck{}, nil
	case CmdPing:
		return &MsgPing{}, nil
	case CmdPong:
		return &MsgPong{}, nil
	case CmdGetAddr:
		return &MsgGetAddr{}, nil
	case CmdAddr:
		return &MsgAddr{}, nil
	case CmdInv:
		return &MsgInv{}, nil
	case CmdGetData:
		return &MsgGetData{}, nil
	case CmdNotFound:
		return &MsgNotFound{}, nil
	case CmdGetBlocks:
		return &MsgGetBlocks{}, nil
	case CmdGetHeaders:
		return &MsgGetHeaders{}, nil
	case CmdHeaders:
		return &MsgHeaders{}, nil
	case CmdBlock:
		return &MsgBlock{}, nil
	case CmdTx:
		return &MsgTx{}, nil
	case CmdMempool:
		return &MsgMempool{}, nil
	case CmdReject:
		return &MsgReject{}, nil
	case CmdGetBlockchainHeight:
		return &MsgGetBlockchainHeight{}, nil
	case CmdBlockchainHeight:
		return &MsgBlockchainHeight{}, nil
	case CmdGetBlockByHeight:
		return &MsgGetBlockByHeight{}, nil
	case CmdBlockData:
		return &MsgBlockData{}, nil
	default:
		return nil, errors.Errorf("unhandled command [%s]", cmd)
	}
}
