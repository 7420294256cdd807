// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command ledgerwallet is a thin key-management and spend client,
// grounded in cmd/kaspawallet's subcommand layout
// (parser.AddCommand per verb). Balance and send delegate to the
// ledgerd node's own configured wallet over JSON-RPC (spec.md §4.4);
// create and show-address operate purely on a local private key and
// never touch the network.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/wallet"
)

const (
	createSubCmd      = "create"
	showAddressSubCmd = "show-address"
	balanceSubCmd     = "balance"
	sendSubCmd        = "send"
)

type rpcFlags struct {
	RPCServer string `long:"rpcserver" short:"s" description:"host:port of the ledgerd JSON-RPC endpoint" default:"127.0.0.1:8545"`
	RPCUser   string `long:"rpcuser" description:"Username for RPC basic auth"`
	RPCPass   string `long:"rpcpass" description:"Password for RPC basic auth"`
}

type showAddressConfig struct {
	PrivateKey string `long:"private-key" short:"k" description:"Hex-encoded private key" required:"true"`
}

type balanceConfig struct {
	rpcFlags
}

type sendConfig struct {
	rpcFlags
	ToAddress  string  `long:"to-address" short:"t" description:"The P2PKH address to send to" required:"true"`
	Amount     uint64  `long:"amount" short:"v" description:"Amount to send, in the smallest unit" required:"true"`
	FeePerByte uint64  `long:"fee-per-byte" description:"Fee rate in the smallest unit per serialized byte" default:"1"`
	Strategy   string  `long:"strategy" description:"Coin-selection strategy: largest-first, smallest-sufficient, branch-and-bound, random, oldest-first" default:"branch-and-bound"`
	RBF        bool    `long:"rbf" description:"Opt the transaction into replace-by-fee"`
}

func main() {
	parser := flags.NewParser(&struct{}{}, flags.HelpFlag|flags.PassDoubleDash)

	createConf := &struct{}{}
	parser.AddCommand(createSubCmd, "Generate a new private key", "Generates a secp256k1 key pair and prints its private key and P2PKH address", createConf)

	showAddressConf := &showAddressConfig{}
	parser.AddCommand(showAddressSubCmd, "Show a key's address", "Derives and prints the P2PKH address for a private key", showAddressConf)

	balanceConf := &balanceConfig{}
	parser.AddCommand(balanceSubCmd, "Show the node wallet's balance", "Calls wallet_getBalance on a running ledgerd", balanceConf)

	sendConf := &sendConfig{}
	parser.AddCommand(sendSubCmd, "Send from the node wallet", "Calls wallet_send on a running ledgerd", sendConf)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	var err error
	switch parser.Command.Active.Name {
	case createSubCmd:
		err = runCreate()
	case showAddressSubCmd:
		err = runShowAddress(showAddressConf)
	case balanceSubCmd:
		err = runBalance(balanceConf)
	case sendSubCmd:
		err = runSend(sendConf)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCreate() error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return errors.Wrap(err, "generating private key")
	}
	w, err := wallet.New(key)
	if err != nil {
		return errors.Wrap(err, "deriving address")
	}
	fmt.Printf("Private key: %s\n", hex.EncodeToString(key.Serialize()))
	fmt.Printf("Address:     %s\n", w.Address())
	return nil
}

func runShowAddress(conf *showAddressConfig) error {
	w, err := loadWallet(conf.PrivateKey)
	if err != nil {
		return err
	}
	fmt.Println(w.Address())
	return nil
}

func loadWallet(privateKeyHex string) (*wallet.Wallet, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key hex")
	}
	key, err := crypto.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	return wallet.New(key)
}

func runBalance(conf *balanceConfig) error {
	var result struct {
		Address string `json:"address"`
		Balance int64  `json:"balance"`
	}
	if err := callRPC(conf.rpcFlags, "wallet_getBalance", nil, &result); err != nil {
		return err
	}
	fmt.Printf("%s: %d\n", result.Address, result.Balance)
	return nil
}

func runSend(conf *sendConfig) error {
	params := map[string]interface{}{
		"to":         conf.ToAddress,
		"amount":     conf.Amount,
		"feePerByte": conf.FeePerByte,
		"strategy":   conf.Strategy,
		"rbf":        conf.RBF,
	}
	var txID string
	if err := callRPC(conf.rpcFlags, "wallet_send", params, &txID); err != nil {
		return err
	}
	fmt.Printf("sent, txid %s\n", txID)
	return nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func callRPC(rf rpcFlags, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, "http://"+rf.RPCServer, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if rf.RPCUser != "" {
		req.SetBasicAuth(rf.RPCUser, rf.RPCPass)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling rpc server")
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, "decoding rpc response")
	}
	if rpcResp.Error != nil {
		return errors.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}
