// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package p2p orchestrates the peer swarm: bounded outbound/inbound
// connection counts, inventory-then-fetch propagation, and
// headers-first initial block download (spec.md §4.7). Grounded in the
// server/p2p package layout (this generation's own
// server/p2p/on_version.go, read before the byte-identical copy of this
// whole package was deleted for importing kaspanet/kaspad's dead
// appmessage/netadapter stack) but rebuilt against this module's own
// peer.Peer, blockchain.Chain, and mempool.Pool instead of that
// generation's gRPC-era netadapter.
package p2p

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/addrmgr"
	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/connmgr"
	"github.com/ledgerforge/ledgerd/mempool"
	"github.com/ledgerforge/ledgerd/peer"
	"github.com/ledgerforge/ledgerd/wire"
)

// outboundPollInterval is how often the outbound loop checks the address
// manager for new dial candidates.
const outboundPollInterval = 10 * time.Second

// Config parametrizes a Server.
type Config struct {
	Chain       *blockchain.Chain
	Mempool     *mempool.Pool
	AddrManager *addrmgr.Manager
	ListenAddr  string
	MaxOutbound int
	MaxInbound  int
	UserAgent   string
	DisableSeed bool
}

// Server owns the peer set and drives connection lifecycle, inventory
// relay, and block/header sync.
type Server struct {
	cfg   Config
	nonce uint64

	mtx      sync.Mutex
	peers    map[*peer.Peer]struct{}
	outbound int
	inbound  int

	knownInv map[chainhash.Hash]struct{}

	listener net.Listener
	quit     chan struct{}
}

// New builds a Server ready to Run.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		nonce:    rand.Uint64(),
		peers:    make(map[*peer.Peer]struct{}),
		knownInv: make(map[chainhash.Hash]struct{}),
		quit:     make(chan struct{}),
	}
}

// Run starts the listener, DNS seeding, and the outbound connection
// loop in their own goroutines and returns once they are started; Stop
// shuts them down.
func (s *Server) Run() error {
	if s.cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return err
		}
		s.listener = ln
		go s.acceptLoop()
	}

	if !s.cfg.DisableSeed {
		connmgr.SeedFromDNS(s.cfg.Chain.Params(), connmgr.DefaultLookup, s.cfg.AddrManager.AddAddresses)
	}

	s.cfg.Chain.Subscribe(s.onTipAdvanced)
	go s.outboundLoop()
	return nil
}

// Stop closes the listener and disconnects every peer.
func (s *Server) Stop() {
	select {
	case <-s.quit:
		return
	default:
		close(s.quit)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for p := range s.peers {
		p.Disconnect()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				log.Warnf("accept failed: %s", err)
				continue
			}
		}

		s.mtx.Lock()
		full := s.inbound >= s.cfg.MaxInbound
		s.mtx.Unlock()
		if full {
			conn.Close()
			continue
		}

		p := peer.NewInbound(conn, s.peerConfig())
		s.addPeer(p, true)
		go s.runPeer(p)
	}
}

func (s *Server) outboundLoop() {
	ticker := time.NewTicker(outboundPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.connectCandidates()
		case <-s.quit:
			return
		}
	}
}

func (s *Server) connectCandidates() {
	s.mtx.Lock()
	need := s.cfg.MaxOutbound - s.outbound
	s.mtx.Unlock()
	if need <= 0 {
		return
	}

	candidates := connmgr.SelectOutboundCandidates(s.cfg.AddrManager, need, time.Now())
	for _, addr := range candidates {
		addr := addr
		go s.dial(addr)
	}
}

func (s *Server) dial(addr *wire.NetAddress) {
	s.cfg.AddrManager.MarkAttempt(addr, time.Now())

	dialAddr := net.JoinHostPort(addr.IP.String(), portString(addr.Port))
	conn, err := net.DialTimeout("tcp", dialAddr, 10*time.Second)
	if err != nil {
		s.cfg.AddrManager.MarkFailed(addr)
		log.Debugf("dial %s failed: %s", dialAddr, err)
		return
	}

	p := peer.NewOutbound(conn, s.peerConfig())
	s.addPeer(p, false)
	s.cfg.AddrManager.MarkGood(addr, time.Now())
	s.runPeer(p)
}

func (s *Server) runPeer(p *peer.Peer) {
	if err := p.Run(); err != nil {
		log.Debugf("peer session ended: %s", err)
	}
	s.removePeer(p)
}

func (s *Server) peerConfig() peer.Config {
	return peer.Config{
		Net:       wire.BitcoinNet(s.cfg.Chain.Params().Net),
		UserAgent: s.cfg.UserAgent,
		Nonce:     s.nonce,
		Handler:   s,
		SelectedHeight: func() uint64 {
			_, height, _ := s.cfg.Chain.Tip()
			return height
		},
	}
}

func (s *Server) addPeer(p *peer.Peer, inbound bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.peers[p] = struct{}{}
	if inbound {
		s.inbound++
	} else {
		s.outbound++
	}
}

func (s *Server) removePeer(p *peer.Peer) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.peers[p]; !ok {
		return
	}
	delete(s.peers, p)
	if p.Inbound() {
		s.inbound--
	} else {
		s.outbound--
	}
}

// PeerCount returns the current outbound and inbound connection counts.
func (s *Server) PeerCount() (outbound, inbound int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.outbound, s.inbound
}

func portString(port uint16) string {
	return net.JoinHostPort("", itoaUint16(port))[1:]
}

func itoaUint16(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// onTipAdvanced hands the tip change to the mempool through
// mempool.Pool.OnTipAdvanced and then announces the new tip block to
// connected peers (spec.md §4.7's inventory relay).
func (s *Server) onTipAdvanced(addedTxIDs []chainhash.Hash, restoredTxs []*wire.MsgTx) {
	s.cfg.Mempool.OnTipAdvanced(addedTxIDs, restoredTxs)

	hash, _, _ := s.cfg.Chain.Tip()
	s.broadcastInv(&wire.InvVect{Type: wire.InvTypeBlock, Hash: hash})
}

// broadcastInv announces iv to every currently connected peer, once per
// hash: a hash that was broadcast before is not sent again, so peers that
// connect later never receive it.
func (s *Server) broadcastInv(iv *wire.InvVect) {
	s.mtx.Lock()
	if _, seen := s.knownInv[iv.Hash]; seen {
		s.mtx.Unlock()
		return
	}
	s.knownInv[iv.Hash] = struct{}{}
	peers := make([]*peer.Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mtx.Unlock()

	msg := &wire.MsgInv{}
	msg.AddInvVect(iv)
	for _, p := range peers {
		p.QueueMessage(msg)
	}
}

// AnnounceTransaction broadcasts a mempool-admitted transaction to the
// swarm, called by the RPC layer after mempool_submit succeeds.
func (s *Server) AnnounceTransaction(txID chainhash.Hash) {
	s.broadcastInv(&wire.InvVect{Type: wire.InvTypeTx, Hash: txID})
}
