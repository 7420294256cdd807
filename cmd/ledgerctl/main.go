// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command ledgerctl is a thin JSON-RPC client, grounded in
// cmd/kaspactl: parse a method name and its parameters off the command
// line, post them to a running ledgerd's RPC endpoint, and pretty-print
// whatever comes back.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
)

type options struct {
	RPCServer string        `long:"rpcserver" description:"host:port of the ledgerd JSON-RPC endpoint" default:"127.0.0.1:8545"`
	RPCUser   string        `long:"rpcuser" description:"Username for RPC basic auth"`
	RPCPass   string        `long:"rpcpass" description:"Password for RPC basic auth"`
	Timeout   time.Duration `long:"timeout" description:"How long to wait for a response" default:"10s"`

	Positional struct {
		Method string   `positional-arg-name:"method" required:"true"`
		Params []string `positional-arg-name:"field=value" description:"repeated field=value pairs forming the method's single params object"`
	} `positional-args:"yes"`
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	var params map[string]interface{}
	if len(opts.Positional.Params) > 0 {
		params = make(map[string]interface{}, len(opts.Positional.Params))
		for _, kv := range opts.Positional.Params {
			field, value, err := splitFieldValue(kv)
			if err != nil {
				exitErrorf("%s", err)
			}
			params[field] = decodeParam(value)
		}
	}

	req := request{JSONRPC: "2.0", ID: 1, Method: opts.Positional.Method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		exitErrorf("encoding request: %s", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, "http://"+opts.RPCServer, bytes.NewReader(body))
	if err != nil {
		exitErrorf("building request: %s", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if opts.RPCUser != "" {
		httpReq.SetBasicAuth(opts.RPCUser, opts.RPCPass)
	}

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		exitErrorf("posting request to %s: %s", opts.RPCServer, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		exitErrorf("decoding response: %s", err)
	}
	fmt.Println(prettify(raw))
}

// splitFieldValue parses a "field=value" positional argument.
func splitFieldValue(kv string) (field, value string, err error) {
	i := strings.IndexByte(kv, '=')
	if i < 0 {
		return "", "", fmt.Errorf("expected field=value, got %q", kv)
	}
	return kv[:i], kv[i+1:], nil
}

// decodeParam lets the value half of a field=value argument that looks
// like JSON (a number, bool, quoted string, object, or array) pass
// through as such, so callers can do `ledgerctl wallet_send to=<addr>
// amount=100` and have amount sent as a number; anything else is sent as
// a plain JSON string.
func decodeParam(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func prettify(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func exitErrorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
