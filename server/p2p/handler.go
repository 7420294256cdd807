// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"time"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/peer"
	"github.com/ledgerforge/ledgerd/wire"
)

// maxHeadersPerBatch bounds a single MsgHeaders reply, so headers-first
// IBD proceeds in bounded batches rather than one unbounded dump
// (spec.md §4.7's "headers-first... with exponential backoff" framing).
const maxHeadersPerBatch = 2000

// OnVersion implements peer.Handler. If the peer reports a greater height
// than ours it requests headers to begin IBD, and if the address book
// holds fewer than 1000 entries it requests addresses. The peer's own
// advertised address is not recorded.
func (s *Server) OnVersion(p *peer.Peer, msg *wire.MsgVersion) {
	_, localHeight, _ := s.cfg.Chain.Tip()
	if msg.SelectedHeight > localHeight {
		p.QueueMessage(&wire.MsgGetHeaders{})
	}
	if s.cfg.AddrManager.Count() < 1000 {
		p.QueueMessage(&wire.MsgGetAddr{})
	}
}

// OnDisconnect implements peer.Handler.
func (s *Server) OnDisconnect(p *peer.Peer) {
	log.Debugf("peer %s disconnected", p.Addr())
}

// OnMessage implements peer.Handler, dispatching every post-handshake
// message type the wire protocol defines.
func (s *Server) OnMessage(p *peer.Peer, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgInv:
		s.handleInv(p, m)
	case *wire.MsgGetData:
		s.handleGetData(p, m)
	case *wire.MsgNotFound:
		// Nothing to do: the peer told us it no longer has data we asked
		// for. The request is not retried.
	case *wire.MsgGetBlocks:
		s.handleGetBlocks(p, m)
	case *wire.MsgGetHeaders:
		s.handleGetHeaders(p, m)
	case *wire.MsgHeaders:
		s.handleHeaders(p, m)
	case *wire.MsgGetAddr:
		p.QueueMessage(&wire.MsgAddr{AddrList: s.cfg.AddrManager.Addresses()})
	case *wire.MsgAddr:
		s.cfg.AddrManager.AddAddresses(m.AddrList)
	case *wire.MsgMempool:
		s.handleMempoolRequest(p)
	case *wire.MsgGetBlockchainHeight:
		_, height, _ := s.cfg.Chain.Tip()
		p.QueueMessage(&wire.MsgBlockchainHeight{Height: height})
	case *wire.MsgBlockchainHeight:
		// Informational only; IBD is driven by headers/version exchange.
	case *wire.MsgGetBlockByHeight:
		s.handleGetBlockByHeight(p, m)
	case *wire.MsgBlockData:
		s.handleBlockData(m)
	case *wire.MsgReject:
		log.Debugf("peer %s rejected our message: %s", p.Addr(), m.Reason)
	case *wire.MsgTx:
		s.handleTx(p, m)
	default:
		log.Debugf("peer %s sent unhandled message type", p.Addr())
	}
}

func (s *Server) handleInv(p *peer.Peer, m *wire.MsgInv) {
	var want wire.MsgGetData
	for _, iv := range m.InvList {
		switch iv.Type {
		case wire.InvTypeBlock:
			if !s.cfg.Chain.HaveBlock(iv.Hash) {
				want.InvList = append(want.InvList, iv)
			}
		case wire.InvTypeTx:
			if !s.cfg.Mempool.Have(iv.Hash) {
				want.InvList = append(want.InvList, iv)
			}
		}
	}
	if len(want.InvList) > 0 {
		p.QueueMessage(&want)
	}
}

func (s *Server) handleGetData(p *peer.Peer, m *wire.MsgGetData) {
	for _, iv := range m.InvList {
		switch iv.Type {
		case wire.InvTypeBlock:
			block, ok := s.cfg.Chain.BlockByHash(iv.Hash)
			if !ok {
				p.QueueMessage(&wire.MsgNotFound{InvList: []*wire.InvVect{iv}})
				continue
			}
			p.QueueMessage(&wire.MsgBlockData{Block: block, Found: true})
		case wire.InvTypeTx:
			entry, ok := s.cfg.Mempool.Get(iv.Hash)
			if !ok {
				p.QueueMessage(&wire.MsgNotFound{InvList: []*wire.InvVect{iv}})
				continue
			}
			p.QueueMessage(entry.Tx)
		}
	}
}

func (s *Server) handleGetBlocks(p *peer.Peer, m *wire.MsgGetBlocks) {
	_ = m
	_, height, _ := s.cfg.Chain.Tip()
	var inv wire.MsgInv
	for h := uint64(0); h <= height && len(inv.InvList) < wire.MaxInvPerMsg; h++ {
		block, ok := s.cfg.Chain.BlockByHeight(h)
		if !ok {
			continue
		}
		inv.AddInvVect(&wire.InvVect{Type: wire.InvTypeBlock, Hash: block.BlockHash()})
	}
	if len(inv.InvList) > 0 {
		p.QueueMessage(&inv)
	}
}

func (s *Server) handleGetHeaders(p *peer.Peer, m *wire.MsgGetHeaders) {
	_ = m
	_, height, _ := s.cfg.Chain.Tip()
	var headers wire.MsgHeaders
	for h := uint64(0); h <= height && len(headers.Headers) < maxHeadersPerBatch; h++ {
		block, ok := s.cfg.Chain.BlockByHeight(h)
		if !ok {
			continue
		}
		headers.Headers = append(headers.Headers, &block.Header)
	}
	p.QueueMessage(&headers)
}

// handleHeaders is the headers-first IBD step: having received a header
// batch, request the corresponding block bodies by height.
func (s *Server) handleHeaders(p *peer.Peer, m *wire.MsgHeaders) {
	for _, h := range m.Headers {
		hash := h.BlockHash()
		if s.cfg.Chain.HaveBlock(hash) {
			continue
		}
		p.QueueMessage(&wire.MsgGetBlockByHeight{Height: h.Height})
	}
	if len(m.Headers) == maxHeadersPerBatch {
		p.QueueMessage(&wire.MsgGetHeaders{})
	}
}

func (s *Server) handleGetBlockByHeight(p *peer.Peer, m *wire.MsgGetBlockByHeight) {
	block, ok := s.cfg.Chain.BlockByHeight(m.Height)
	p.QueueMessage(&wire.MsgBlockData{Block: block, Found: ok})
}

func (s *Server) handleBlockData(m *wire.MsgBlockData) {
	if !m.Found || m.Block == nil {
		return
	}
	isOrphan, err := s.cfg.Chain.ProcessBlock(m.Block)
	if err != nil {
		log.Debugf("rejected block from peer: %s", err)
		return
	}
	if isOrphan {
		log.Debugf("received orphan block %s", m.Block.BlockHash())
		return
	}
	s.broadcastInv(&wire.InvVect{Type: wire.InvTypeBlock, Hash: m.Block.BlockHash()})
}

// handleTx admits a transaction received from a peer, whether gossiped
// unsolicited or sent in reply to our getdata, into the mempool and
// relays it onward if it's new to us.
func (s *Server) handleTx(p *peer.Peer, tx *wire.MsgTx) {
	if _, err := s.SubmitTransaction(tx); err != nil {
		log.Debugf("peer %s: rejected tx: %s", p.Addr(), err)
	}
}

func (s *Server) handleMempoolRequest(p *peer.Peer) {
	var inv wire.MsgInv
	for _, e := range s.cfg.Mempool.SelectForBlock(^uint64(0)) {
		inv.AddInvVect(&wire.InvVect{Type: wire.InvTypeTx, Hash: e.TxID})
	}
	if len(inv.InvList) > 0 {
		p.QueueMessage(&inv)
	}
}

// SubmitTransaction admits tx into the mempool and, on success,
// announces it to the swarm — the shared path RPC's mempool_submit and
// an incoming gossiped MsgTx both use.
func (s *Server) SubmitTransaction(tx *wire.MsgTx) (*chainhash.Hash, error) {
	entry, err := s.cfg.Mempool.ProcessTransaction(tx, time.Now())
	if err != nil {
		return nil, err
	}
	s.AnnounceTransaction(entry.TxID)
	return &entry.TxID, nil
}
