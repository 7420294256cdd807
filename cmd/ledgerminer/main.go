// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command ledgerminer is a standalone proof-of-work miner that talks to
// a running ledgerd over JSON-RPC, grounded in
// cmd/kaspaminer: a templatesLoop/mineLoop pair that repeatedly fetches
// a block template, solves it, and submits the result back, logging a
// periodic hash rate along the way (spec.md §4.2's "mining may also run
// as a separate process against a node's RPC endpoint").
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/mining"
	"github.com/ledgerforge/ledgerd/wire"
)

type options struct {
	RPCServer  string `long:"rpcserver" short:"s" description:"host:port of the ledgerd JSON-RPC endpoint" default:"127.0.0.1:8545"`
	RPCUser    string `long:"rpcuser" description:"Username for RPC basic auth"`
	RPCPass    string `long:"rpcpass" description:"Password for RPC basic auth"`
	PayAddress string `long:"pay-address" short:"a" description:"P2PKH address to pay mined subsidy and fees to" required:"true"`
	Workers    int    `long:"workers" short:"w" description:"Number of concurrent proof-of-work search goroutines" default:"2"`
}

const (
	retemplateInterval  = 2 * time.Second
	hashRateLogInterval = 10 * time.Second
)

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	go logHashRate(ctx)

	if err := mineLoop(ctx, opts); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mineLoop repeatedly fetches a template, solves it for up to
// retemplateInterval, and submits whatever it finds, the same
// template/solve/submit/retemplate cycle mining.Controller runs
// in-process.
func mineLoop(ctx context.Context, opts options) error {
	for ctx.Err() == nil {
		template, height, err := getTemplate(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetching template: %s\n", err)
			time.Sleep(retemplateInterval)
			continue
		}

		solveCtx, cancel := context.WithTimeout(ctx, retemplateInterval)
		block, err := mining.Solve(solveCtx, template, opts.Workers)
		cancel()
		if err != nil || block == nil {
			continue
		}

		result, err := submitBlock(opts, block)
		if err != nil {
			fmt.Fprintf(os.Stderr, "submitting solved block: %s\n", err)
			continue
		}
		fmt.Printf("mined block %s at height %d (orphan: %v)\n", result.Hash, height, result.IsOrphan)
	}
	return ctx.Err()
}

func getTemplate(opts options) (*wire.MsgBlock, uint64, error) {
	var result struct {
		Block  string `json:"block"`
		Height uint64 `json:"height"`
		Fees   uint64 `json:"fees"`
	}
	if err := callRPC(opts, "mining_getTemplate", map[string]interface{}{"payTo": opts.PayAddress}, &result); err != nil {
		return nil, 0, err
	}
	raw, err := hex.DecodeString(result.Block)
	if err != nil {
		return nil, 0, errors.Wrap(err, "decoding template block hex")
	}
	block := new(wire.MsgBlock)
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, 0, errors.Wrap(err, "deserializing template block")
	}
	return block, result.Height, nil
}

func submitBlock(opts options, block *wire.MsgBlock) (*submitResult, error) {
	var buf bytes.Buffer
	if err := block.Serialize(&buf); err != nil {
		return nil, err
	}
	var result submitResult
	err := callRPC(opts, "mining_submitBlock", map[string]interface{}{"block": hex.EncodeToString(buf.Bytes())}, &result)
	return &result, err
}

type submitResult struct {
	Hash     string `json:"hash"`
	IsOrphan bool   `json:"isOrphan"`
}

func logHashRate(ctx context.Context) {
	ticker := time.NewTicker(hashRateLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hashes := mining.HashesTried()
			rate := float64(hashes) / hashRateLogInterval.Seconds() / 1000
			fmt.Printf("hash rate: %.2f khash/s\n", rate)
		}
	}
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

func callRPC(opts options, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, "http://"+opts.RPCServer, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.RPCUser != "" {
		req.SetBasicAuth(opts.RPCUser, opts.RPCPass)
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
	return json.Unmarshal(rpcResp.Result, result)
}
