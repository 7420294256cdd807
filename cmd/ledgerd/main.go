// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command ledgerd is the full node daemon: it wires the consensus
// engine, mempool, contract engine, durable storage, P2P swarm, JSON-RPC
// control surface, and (optionally) the in-process miner into a single
// running process, mirroring kaspad.go's wrapper shape (spec.md §5).
package main

import (
	"encoding/hex"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/addrmgr"
	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/config"
	"github.com/ledgerforge/ledgerd/contractvm"
	"github.com/ledgerforge/ledgerd/crypto"
	"github.com/ledgerforge/ledgerd/logger"
	"github.com/ledgerforge/ledgerd/mempool"
	"github.com/ledgerforge/ledgerd/mining"
	"github.com/ledgerforge/ledgerd/server/p2p"
	"github.com/ledgerforge/ledgerd/server/rpc"
	"github.com/ledgerforge/ledgerd/storage"
	"github.com/ledgerforge/ledgerd/util"
	"github.com/ledgerforge/ledgerd/wallet"
	"github.com/ledgerforge/ledgerd/wire"
)

// ledgerd bundles every long-lived component a running node owns,
// mirroring the kaspad struct.
type ledgerd struct {
	cfg *config.Config

	chain   *blockchain.Chain
	store   *storage.Store
	pool    *mempool.Pool
	engine  *contractvm.Engine
	addrMgr *addrmgr.Manager

	p2pServer *p2p.Server
	rpcServer *rpc.Server
	miner     *mining.Controller

	started  int32
	shutdown int32
}

// newLedgerd builds every component without starting any background
// goroutines, replaying previously stored blocks back through the chain
// so in-memory state (tip, UTXO set) matches what was last persisted.
func newLedgerd(cfg *config.Config) (*ledgerd, error) {
	chain, err := blockchain.New(cfg.NetParams())
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	accountStore := storage.NewContractAccountStore(store)
	kvStore := storage.NewContractKVStore(store)
	engine := contractvm.NewEngine(accountStore, kvStore)

	if err := replayStoredBlocks(chain, store); err != nil {
		return nil, err
	}

	var nodeWallet *wallet.Wallet
	if cfg.WalletKey != "" {
		keyBytes, err := hex.DecodeString(cfg.WalletKey)
		if err != nil {
			return nil, errors.Wrap(err, "parsing wallet-key")
		}
		key, err := crypto.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing wallet-key")
		}
		nodeWallet, err = wallet.New(key)
		if err != nil {
			return nil, errors.Wrap(err, "building wallet")
		}
		log.Infof("wallet loaded, address %s", nodeWallet.Address())
	}

	pool := mempool.New(mempool.DefaultConfig(), chain)

	// Persist the new tip as the chain advances, the write side of the
	// replay loop above. TipAdvancedHandler doesn't hand over the block
	// itself, so the handler re-reads it back out of Chain's own index.
	chain.Subscribe(func(addedTxIDs []chainhash.Hash, restoredTxs []*wire.MsgTx) {
		hash, _, _ := chain.Tip()
		block, ok := chain.BlockByHash(hash)
		if !ok {
			return
		}
		if err := store.PutBlock(block); err != nil {
			log.Errorf("persisting block %s: %s", hash, err)
		}
	})

	addrMgr := addrmgr.New()
	for _, hostport := range cfg.BootstrapPeers {
		addr, err := resolvePeerAddr(hostport)
		if err != nil {
			log.Warnf("ignoring bootstrap peer %s: %s", hostport, err)
			continue
		}
		addrMgr.AddAddress(addr)
	}

	p2pServer := p2p.New(p2p.Config{
		Chain:       chain,
		Mempool:     pool,
		AddrManager: addrMgr,
		ListenAddr:  net.JoinHostPort("", cfg.P2PPort),
		MaxOutbound: cfg.MaxOutbound,
		MaxInbound:  cfg.MaxInbound,
		UserAgent:   "/ledgerd:0.1.0/",
	})

	l := &ledgerd{
		cfg:       cfg,
		chain:     chain,
		store:     store,
		pool:      pool,
		engine:    engine,
		addrMgr:   addrMgr,
		p2pServer: p2pServer,
	}

	l.rpcServer = rpc.New(rpc.Config{
		ListenAddr: net.JoinHostPort(cfg.RPCHost, cfg.RPCPort),
		User:       cfg.RPCUser,
		Pass:       cfg.RPCPass,
		Chain:      chain,
		Mempool:    pool,
		Wallet:     nodeWallet,
		Engine:     engine,
		Swarm:      p2pServer,
		StopFunc:   l.requestShutdown,
	})

	if cfg.Mining {
		addr, err := util.DecodeAddress(cfg.ValidatorAddress)
		if err != nil {
			return nil, errors.Wrap(err, "parsing validator-address")
		}
		l.miner = mining.NewController(chain, pool, addr.Hash160(), defaultMineWorkers)
	}

	return l, nil
}

// defaultMineWorkers matches cmd/kaspaminer's default of one
// solving goroutine per available core-ish share; kept small and fixed
// here since mining runs embedded alongside the rest of the daemon.
const defaultMineWorkers = 2

// resolvePeerAddr turns a host:port bootstrap entry into a wire.NetAddress
// the address manager can track.
func resolvePeerAddr(hostport string) (*wire.NetAddress, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, errors.Errorf("could not resolve host %s", host)
		}
		ip = ips[0]
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing port %q", portStr)
	}
	return wire.NewNetAddressIPPort(ip, uint16(port), 0), nil
}

// replayStoredBlocks re-applies every block persisted under store, in
// height order, rebuilding the chain's in-memory tip and UTXO set after a
// restart. The consensus engine keeps no durable index of its own
// (spec.md §9 "single owner"); storage is the durable record, and the
// chain is rebuilt from it on every startup.
func replayStoredBlocks(chain *blockchain.Chain, store *storage.Store) error {
	_, tipHeight, _ := chain.Tip()
	for height := tipHeight + 1; ; height++ {
		block, err := store.GetBlockByHeight(height)
		if err != nil {
			break
		}
		if _, err := chain.ProcessBlock(block); err != nil {
			return errors.Wrapf(err, "replaying stored block at height %d", height)
		}
	}
	return nil
}

// requestShutdown signals the main goroutine to begin graceful
// shutdown, the callback the RPC "stop" method invokes.
func (l *ledgerd) requestShutdown() {
	select {
	case shutdownRequested <- struct{}{}:
	default:
	}
}

var shutdownRequested = make(chan struct{}, 1)

// start brings up every background component. Calling start twice
// without an intervening stop is a no-op, via the same atomic-guarded
// pattern kaspad.start uses.
func (l *ledgerd) start() error {
	if !atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		return nil
	}

	if err := l.p2pServer.Run(); err != nil {
		return errors.Wrap(err, "starting p2p server")
	}
	srvrLog.Infof("p2p server listening on %s", l.cfg.P2PPort)

	if err := l.rpcServer.Start(); err != nil {
		return errors.Wrap(err, "starting rpc server")
	}

	if l.miner != nil {
		l.miner.Start()
		log.Infof("internal miner started with %d workers", defaultMineWorkers)
	}

	return nil
}

// stop tears every component down in reverse order, logging (rather
// than aborting on) any individual failure, matching the kaspad.stop
// idiom.
func (l *ledgerd) stop() error {
	if !atomic.CompareAndSwapInt32(&l.shutdown, 0, 1) {
		return nil
	}

	if l.miner != nil {
		l.miner.Stop()
	}
	if err := l.rpcServer.Stop(); err != nil {
		log.Errorf("stopping rpc server: %s", err)
	}
	l.p2pServer.Stop()
	if err := l.store.Close(); err != nil {
		log.Errorf("closing storage: %s", err)
	}
	return nil
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, exitCode, err := config.Load(os.Args[1:])
	if err != nil {
		if exitCode == config.ExitSuccess {
			return config.ExitSuccess
		}
		os.Stderr.WriteString(err.Error() + "\n")
		return exitCode
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	logger.InitLogRotators(filepath.Join(logDir, "ledgerd.log"), filepath.Join(logDir, "ledgerd_err.log"))

	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return config.ExitBadArgs
	}

	node, err := newLedgerd(cfg)
	if err != nil {
		log.Errorf("initializing node: %s", err)
		return config.ExitFatal
	}

	if err := node.start(); err != nil {
		log.Errorf("starting node: %s", err)
		return config.ExitFatal
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-interrupt:
		log.Infof("received %s, shutting down", sig)
	case <-shutdownRequested:
		log.Infof("shutdown requested over rpc")
	}

	if err := node.stop(); err != nil {
		log.Errorf("stopping node: %s", err)
		return config.ExitFatal
	}
	return config.ExitSuccess
}
