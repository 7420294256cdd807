// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/contractvm"
	"github.com/ledgerforge/ledgerd/mining"
	"github.com/ledgerforge/ledgerd/util"
	"github.com/ledgerforge/ledgerd/wallet"
	"github.com/ledgerforge/ledgerd/wire"
)

type handlerFunc func(s *Server, params json.RawMessage) (interface{}, *Error)

// handlers maps JSON-RPC method names to their implementation. The
// method-name prefixes (blockchain_, mempool_, wallet_, contract_,
// admin_) mirror spec.md §6's module grouping.
var handlers = map[string]handlerFunc{
	"blockchain_getBlockHeight": handleGetBlockHeight,
	"blockchain_getBlock":       handleGetBlock,
	"blockchain_getStatus":      handleGetStatus,
	"mempool_submit":            handleMempoolSubmit,
	"wallet_getBalance":         handleWalletGetBalance,
	"wallet_send":               handleWalletSend,
	"contract_deploy":           handleContractDeploy,
	"contract_call":             handleContractCall,
	"contract_getCode":          handleContractGetCode,
	"mining_getTemplate":        handleMiningGetTemplate,
	"mining_submitBlock":        handleMiningSubmitBlock,
	"admin_stop":                handleAdminStop,
}

func decodeParams(raw json.RawMessage, v interface{}) *Error {
	if len(raw) == 0 {
		return newError(errCodeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newError(errCodeInvalidParams, "malformed params: "+err.Error())
	}
	return nil
}

// blockResult is the JSON shape returned for a block; script and hash
// fields are hex, matching a getBlock verbose-result
// convention.
type blockResult struct {
	Hash         string   `json:"hash"`
	Height       uint64   `json:"height"`
	PreviousHash string   `json:"previousHash"`
	MerkleRoot   string   `json:"merkleRoot"`
	Timestamp    int64    `json:"timestamp"`
	Bits         uint32   `json:"bits"`
	Nonce        uint64   `json:"nonce"`
	TxIDs        []string `json:"txIds"`
}

func toBlockResult(block *wire.MsgBlock, height uint64) *blockResult {
	r := &blockResult{
		Hash:         block.BlockHash().String(),
		Height:       height,
		PreviousHash: block.Header.PrevBlock.String(),
		MerkleRoot:   block.Header.MerkleRoot.String(),
		Timestamp:    block.Header.Timestamp,
		Bits:         block.Header.Bits,
		Nonce:        block.Header.Nonce,
	}
	for _, tx := range block.Transactions {
		r.TxIDs = append(r.TxIDs, tx.TxID().String())
	}
	return r
}

func handleGetBlockHeight(s *Server, _ json.RawMessage) (interface{}, *Error) {
	_, height, _ := s.cfg.Chain.Tip()
	return height, nil
}

func handleGetBlock(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Hash   string `json:"hash"`
		Height *uint64 `json:"height"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var (
		block  *wire.MsgBlock
		ok     bool
		height uint64
	)
	switch {
	case p.Height != nil:
		height = *p.Height
		block, ok = s.cfg.Chain.BlockByHeight(height)
	case p.Hash != "":
		hash, err := chainhash.NewHashFromStr(p.Hash)
		if err != nil {
			return nil, newError(errCodeInvalidParams, "malformed hash: "+err.Error())
		}
		block, ok = s.cfg.Chain.BlockByHash(*hash)
	default:
		return nil, newError(errCodeInvalidParams, "one of hash or height is required")
	}
	if !ok {
		return nil, newError(errCodeNotFound, "block not found")
	}
	return toBlockResult(block, height), nil
}

func handleGetStatus(s *Server, _ json.RawMessage) (interface{}, *Error) {
	hash, height, work := s.cfg.Chain.Tip()
	result := struct {
		TipHash    string `json:"tipHash"`
		Height     uint64 `json:"height"`
		Work       string `json:"work"`
		MempoolLen int    `json:"mempoolSize"`
		Outbound   int    `json:"outboundPeers"`
		Inbound    int    `json:"inboundPeers"`
	}{
		TipHash:    hash.String(),
		Height:     height,
		Work:       work.String(),
		MempoolLen: s.cfg.Mempool.Size(),
	}
	if s.cfg.Swarm != nil {
		result.Outbound, result.Inbound = s.cfg.Swarm.PeerCount()
	}
	return result, nil
}

func handleMempoolSubmit(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		RawTx string `json:"rawTx"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	raw, decErr := hex.DecodeString(p.RawTx)
	if decErr != nil {
		return nil, newError(errCodeInvalidParams, "rawTx is not valid hex")
	}

	tx := wire.NewMsgTx(1)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, newError(errCodeInvalidParams, "malformed transaction: "+err.Error())
	}

	if s.cfg.Swarm != nil {
		txID, err := s.cfg.Swarm.SubmitTransaction(tx)
		if err != nil {
			return nil, ruleError(err)
		}
		return txID.String(), nil
	}

	entry, err := s.cfg.Mempool.ProcessTransaction(tx, time.Now())
	if err != nil {
		return nil, ruleError(err)
	}
	return entry.TxID.String(), nil
}

func handleWalletGetBalance(s *Server, _ json.RawMessage) (interface{}, *Error) {
	if s.cfg.Wallet == nil {
		return nil, newError(errCodeNotFound, "no wallet configured on this node")
	}
	balance := s.cfg.Wallet.Balance(s.cfg.Chain)
	return struct {
		Address string `json:"address"`
		Balance int64  `json:"balance"`
	}{
		Address: s.cfg.Wallet.Address().String(),
		Balance: int64(balance),
	}, nil
}

// handleWalletSend builds, signs, and relays a transaction spending the
// node's configured wallet. RBF opts into wire.MaxRBFSequence on every
// input (spec.md §4.5); strategy selects one of wallet.Strategy's five
// coin-selection algorithms by name.
func handleWalletSend(s *Server, params json.RawMessage) (interface{}, *Error) {
	if s.cfg.Wallet == nil {
		return nil, newError(errCodeNotFound, "no wallet configured on this node")
	}
	var p struct {
		To         string `json:"to"`
		Amount     uint64 `json:"amount"`
		FeePerByte uint64 `json:"feePerByte"`
		Strategy   string `json:"strategy"`
		RBF        bool   `json:"rbf"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	toAddr, err := util.DecodeAddress(p.To)
	if err != nil {
		return nil, newError(errCodeInvalidParams, "malformed address: "+err.Error())
	}

	strategy, ok := walletStrategies[p.Strategy]
	if p.Strategy != "" && !ok {
		return nil, newError(errCodeInvalidParams, "unknown strategy: "+p.Strategy)
	}

	tx, err := s.cfg.Wallet.Send(s.cfg.Chain, toAddr.Hash160(), util.Amount(p.Amount), p.FeePerByte, strategy, p.RBF)
	if err != nil {
		return nil, ruleError(err)
	}

	if s.cfg.Swarm != nil {
		if _, err := s.cfg.Swarm.SubmitTransaction(tx); err != nil {
			return nil, ruleError(err)
		}
	} else if _, err := s.cfg.Mempool.ProcessTransaction(tx, time.Now()); err != nil {
		return nil, ruleError(err)
	}
	return tx.TxID().String(), nil
}

var walletStrategies = map[string]wallet.Strategy{
	"largest-first":       wallet.LargestFirst,
	"smallest-sufficient": wallet.SmallestSufficient,
	"branch-and-bound":    wallet.BranchAndBound,
	"random":              wallet.Random,
	"oldest-first":        wallet.OldestFirst,
}

func handleContractDeploy(s *Server, params json.RawMessage) (interface{}, *Error) {
	if s.cfg.Engine == nil {
		return nil, newError(errCodeNotFound, "contract engine not enabled on this node")
	}
	var p struct {
		Deployer string `json:"deployer"`
		Bytecode string `json:"bytecode"`
		Value    uint64 `json:"value"`
		GasLimit uint64 `json:"gasLimit"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	deployer, aerr := decodeAddress(p.Deployer)
	if aerr != nil {
		return nil, aerr
	}
	code, hexErr := hex.DecodeString(p.Bytecode)
	if hexErr != nil {
		return nil, newError(errCodeInvalidParams, "bytecode is not valid hex")
	}

	addr, result := s.cfg.Engine.Deploy(deployer, code, p.Value, p.GasLimit)
	if !result.Success {
		return nil, execError(result)
	}
	return struct {
		Address string `json:"address"`
		GasUsed uint64 `json:"gasUsed"`
	}{
		Address: hex.EncodeToString(addr[:]),
		GasUsed: result.GasUsed,
	}, nil
}

func handleContractCall(s *Server, params json.RawMessage) (interface{}, *Error) {
	if s.cfg.Engine == nil {
		return nil, newError(errCodeNotFound, "contract engine not enabled on this node")
	}
	var p struct {
		Caller   string `json:"caller"`
		Contract string `json:"contract"`
		Calldata string `json:"calldata"`
		Value    uint64 `json:"value"`
		GasLimit uint64 `json:"gasLimit"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, aerr := decodeAddress(p.Caller)
	if aerr != nil {
		return nil, aerr
	}
	contract, aerr := decodeAddress(p.Contract)
	if aerr != nil {
		return nil, aerr
	}
	calldata, hexErr := hex.DecodeString(p.Calldata)
	if hexErr != nil {
		return nil, newError(errCodeInvalidParams, "calldata is not valid hex")
	}

	result := s.cfg.Engine.Call(caller, contract, calldata, p.Value, p.GasLimit)
	if !result.Success {
		return nil, execError(result)
	}
	return struct {
		ReturnData string `json:"returnData"`
		GasUsed    uint64 `json:"gasUsed"`
	}{
		ReturnData: hex.EncodeToString(result.ReturnData),
		GasUsed:    result.GasUsed,
	}, nil
}

func handleContractGetCode(s *Server, params json.RawMessage) (interface{}, *Error) {
	if s.cfg.Engine == nil {
		return nil, newError(errCodeNotFound, "contract engine not enabled on this node")
	}
	var p struct {
		Address string `json:"address"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	addr, aerr := decodeAddress(p.Address)
	if aerr != nil {
		return nil, aerr
	}
	code, ok := s.cfg.Engine.GetCode(addr)
	if !ok {
		return nil, newError(errCodeNotFound, "no contract at that address")
	}
	return hex.EncodeToString(code), nil
}

// handleMiningGetTemplate assembles a fresh block template extending
// the node's current tip, for an out-of-process miner such as
// cmd/ledgerminer to solve (spec.md §4.2's template/solve/submit loop
// run externally instead of via the embedded Controller).
func handleMiningGetTemplate(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		PayTo string `json:"payTo"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	payToAddr, derr := util.DecodeAddress(p.PayTo)
	if derr != nil {
		return nil, newError(errCodeInvalidParams, "malformed payTo address: "+derr.Error())
	}

	template, err := mining.NewBlockTemplate(s.cfg.Chain, s.cfg.Mempool, payToAddr.Hash160())
	if err != nil {
		return nil, newError(errCodeInternal, err.Error())
	}

	var buf bytes.Buffer
	if err := template.Block.Serialize(&buf); err != nil {
		return nil, newError(errCodeInternal, err.Error())
	}
	return struct {
		Block  string `json:"block"`
		Height uint64 `json:"height"`
		Fees   uint64 `json:"fees"`
	}{
		Block:  hex.EncodeToString(buf.Bytes()),
		Height: template.Height,
		Fees:   template.Fees,
	}, nil
}

// handleMiningSubmitBlock accepts a solved block from an external
// miner and runs it through the same ProcessBlock path a gossiped block
// would take.
func handleMiningSubmitBlock(s *Server, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Block string `json:"block"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	raw, hexErr := hex.DecodeString(p.Block)
	if hexErr != nil {
		return nil, newError(errCodeInvalidParams, "block is not valid hex")
	}
	block := new(wire.MsgBlock)
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, newError(errCodeInvalidParams, "malformed block: "+err.Error())
	}

	isOrphan, err := s.cfg.Chain.ProcessBlock(block)
	if err != nil {
		return nil, ruleError(err)
	}
	return struct {
		Hash    string `json:"hash"`
		IsOrphan bool  `json:"isOrphan"`
	}{
		Hash:     block.BlockHash().String(),
		IsOrphan: isOrphan,
	}, nil
}

func handleAdminStop(s *Server, _ json.RawMessage) (interface{}, *Error) {
	if s.cfg.StopFunc != nil {
		go s.cfg.StopFunc()
	}
	return "stopping", nil
}

func decodeAddress(s string) (contractvm.Address, *Error) {
	var addr contractvm.Address
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(addr) {
		return addr, newError(errCodeInvalidParams, "address must be 20 bytes of hex")
	}
	copy(addr[:], raw)
	return addr, nil
}

// ruleError classifies a blockchain/mempool rejection as a rule
// violation versus an opaque internal error, matching the distinction
// between a well-formed RPCError and a generic wrapped one.
func ruleError(err error) *Error {
	var ruleErr blockchain.RuleError
	if errors.As(err, &ruleErr) {
		return newError(errCodeRuleViolation, ruleErr.Error())
	}
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		return newError(errCodeInsufficientFunds, err.Error())
	}
	return newError(errCodeInternal, err.Error())
}

func execError(result contractvm.ExecResult) *Error {
	if result.Err != nil {
		return newError(errCodeContractReverted, result.Err.Error())
	}
	return newError(errCodeContractReverted, "contract execution failed")
}
