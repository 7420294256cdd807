// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config parses the daemon's command-line flags (spec.md §5).
// It follows a go-flags convention: a single struct tagged
// for jessevdk/go-flags, a default instance, and a Load that returns a
// process exit code alongside any error so main can stay a thin shell.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/ledgerforge/ledgerd/chaincfg"
)

// Exit codes (spec.md §5 "Exit codes"): 0 clean shutdown, 1 invalid
// configuration, 2 fatal runtime error.
const (
	ExitSuccess = 0
	ExitBadArgs = 1
	ExitFatal   = 2
)

const (
	defaultRPCHost   = "127.0.0.1"
	defaultRPCPort   = "8545"
	defaultP2PPort   = "8433"
	defaultDataDir   = "ledgerd"
)

// Config is the full set of flags a node accepts.
type Config struct {
	RPCHost          string   `long:"rpc-host" description:"Interface the JSON-RPC server listens on" default:"127.0.0.1"`
	RPCPort          string   `long:"rpc-port" description:"Port the JSON-RPC server listens on" default:"8545"`
	RPCUser          string   `long:"rpc-user" description:"Username for JSON-RPC basic auth; disables auth if empty"`
	RPCPass          string   `long:"rpc-pass" description:"Password for JSON-RPC basic auth"`
	P2PPort          string   `long:"p2p-port" description:"Port the P2P listener binds" default:"8433"`
	DataDir          string   `long:"data-dir" description:"Directory holding the block, UTXO, and contract stores"`
	BootstrapPeers   []string `long:"bootstrap-peers" description:"host:port of a peer to dial at startup; may be repeated"`
	Mining           bool     `long:"mining" description:"Run the internal miner against the local mempool"`
	ValidatorAddress string   `long:"validator-address" description:"P2PKH address coinbase rewards are paid to when mining"`
	SimNet           bool     `long:"simnet" description:"Use the low-difficulty simulation network instead of mainnet"`
	MaxOutbound      int      `long:"max-outbound" description:"Maximum outbound peer connections" default:"8"`
	MaxInbound       int      `long:"max-inbound" description:"Maximum inbound peer connections" default:"117"`
	DebugLevel       string   `long:"debug-level" description:"Logging level: trace, debug, info, warn, error, critical" default:"info"`
	WalletKey        string   `long:"wallet-key" description:"Hex-encoded private key of a wallet to expose over wallet_getBalance/wallet_send"`
}

// DefaultConfig returns a Config populated with the documented defaults,
// before flag parsing overrides them.
func DefaultConfig() *Config {
	return &Config{
		RPCHost:     defaultRPCHost,
		RPCPort:     defaultRPCPort,
		P2PPort:     defaultP2PPort,
		DataDir:     defaultDataDir,
		MaxOutbound: 8,
		MaxInbound:  117,
		DebugLevel:  "info",
	}
}

// Load parses argv into a Config, applying defaults first. It returns a
// process exit code the caller should use if err is non-nil: ExitSuccess
// covers "-h/--help" (the caller should print usage and exit 0), and
// ExitBadArgs covers every other parse failure.
func Load(argv []string) (*Config, int, error) {
	cfg := DefaultConfig()
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(argv); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return cfg, ExitSuccess, err
		}
		return cfg, ExitBadArgs, err
	}

	if cfg.DataDir == "" {
		return cfg, ExitBadArgs, fmt.Errorf("data-dir must not be empty")
	}
	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return cfg, ExitBadArgs, fmt.Errorf("resolving data-dir: %w", err)
	}
	cfg.DataDir = absDir
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return cfg, ExitBadArgs, fmt.Errorf("creating data-dir: %w", err)
	}
	log.Infof("using data directory %s", cfg.DataDir)

	return cfg, ExitSuccess, nil
}

// NetParams resolves the chaincfg.Params the configuration selects.
func (c *Config) NetParams() *chaincfg.Params {
	if c.SimNet {
		return &chaincfg.SimNetParams
	}
	return &chaincfg.MainNetParams
}
