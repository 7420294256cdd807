// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer drives a single P2P connection: the version/verack
// handshake, periodic ping/pong keep-alive, and the read/write loops
// that hand decoded messages to a Handler (spec.md §4.7). Adapted from
// server/p2p/on_version.go's handshake shape (read before
// the newer netadapter generation that wrapped it was deleted wholesale)
// against this module's wire.Message framing instead of kaspad's
// appmessage layer.
package peer

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/wire"
)

// Keep-alive timings spec.md §4.7 names: a ping every 30s, a connection
// considered dead if no pong (or any traffic) arrives within 90s.
const (
	pingInterval = 30 * time.Second
	pongTimeout  = 90 * time.Second

	// handshakeTimeout bounds how long the version/verack exchange may
	// take before the connection is abandoned.
	handshakeTimeout = 10 * time.Second

	outputBufferSize = 50
)

// Handler reacts to decoded messages and connection lifecycle events. A
// server/p2p swarm implements this to wire peers into inventory
// propagation, IBD, and the mempool.
type Handler interface {
	OnVersion(p *Peer, msg *wire.MsgVersion)
	OnMessage(p *Peer, msg wire.Message)
	OnDisconnect(p *Peer)
}

// Config parametrizes a Peer's handshake identity and protocol
// constraints.
type Config struct {
	Net            wire.BitcoinNet
	UserAgent      string
	SelectedHeight func() uint64
	Nonce          uint64
	Handler        Handler
}

// Peer wraps one TCP connection to a remote node, speaking the framed
// wire protocol and enforcing the handshake and keep-alive schedule.
type Peer struct {
	cfg     Config
	conn    net.Conn
	inbound bool
	addr    *wire.NetAddress

	outQueue chan wire.Message
	quit     chan struct{}
	wg       sync.WaitGroup

	mtx            sync.Mutex
	versionKnown   bool
	lastRecv       time.Time
	userAgent      string
	selectedHeight uint64
}

// NewOutbound wraps an already-dialed outbound connection.
func NewOutbound(conn net.Conn, cfg Config) *Peer {
	return newPeer(conn, cfg, false)
}

// NewInbound wraps an accepted inbound connection.
func NewInbound(conn net.Conn, cfg Config) *Peer {
	return newPeer(conn, cfg, true)
}

func newPeer(conn net.Conn, cfg Config, inbound bool) *Peer {
	return &Peer{
		cfg:      cfg,
		conn:     conn,
		inbound:  inbound,
		outQueue: make(chan wire.Message, outputBufferSize),
		quit:     make(chan struct{}),
		lastRecv: time.Now(),
	}
}

// Addr returns the remote address of the underlying connection.
func (p *Peer) Addr() net.Addr { return p.conn.RemoteAddr() }

// Inbound reports whether the connection was accepted rather than dialed.
func (p *Peer) Inbound() bool { return p.inbound }

// UserAgent returns the remote's advertised user agent, valid only after
// the handshake completes.
func (p *Peer) UserAgent() string {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.userAgent
}

// SelectedHeight returns the remote's best height as of the handshake.
func (p *Peer) SelectedHeight() uint64 {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.selectedHeight
}

// QueueMessage enqueues msg for asynchronous delivery to the remote peer.
// It silently drops the message if the peer has already disconnected.
func (p *Peer) QueueMessage(msg wire.Message) {
	select {
	case p.outQueue <- msg:
	case <-p.quit:
	}
}

// Disconnect tears down the connection and stops the peer's goroutines.
func (p *Peer) Disconnect() {
	select {
	case <-p.quit:
		return
	default:
		close(p.quit)
	}
	p.conn.Close()
}

// Run performs the handshake and, on success, starts the read/write/ping
// loops, blocking until the peer disconnects.
func (p *Peer) Run() error {
	if err := p.handshake(); err != nil {
		p.conn.Close()
		return err
	}

	p.wg.Add(3)
	go p.readLoop()
	go p.writeLoop()
	go p.pingLoop()
	p.wg.Wait()

	if p.cfg.Handler != nil {
		p.cfg.Handler.OnDisconnect(p)
	}
	return nil
}

// handshake exchanges version/verack messages in the order spec.md §4.7
// requires: outbound peers send version first; both sides must receive a
// version and a verack before any other traffic is processed.
func (p *Peer) handshake() error {
	p.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer p.conn.SetDeadline(time.Time{})

	localNA := wire.NetAddress{}
	remoteNA := wire.NetAddress{}
	selectedHeight := uint64(0)
	if p.cfg.SelectedHeight != nil {
		selectedHeight = p.cfg.SelectedHeight()
	}

	localVersion := wire.NewMsgVersion(localNA, remoteNA, p.cfg.Nonce, selectedHeight)
	localVersion.UserAgent = p.cfg.UserAgent

	if !p.inbound {
		if err := wire.WriteMessage(p.conn, localVersion, p.cfg.Net); err != nil {
			return errors.Wrap(err, "sending version")
		}
	}

	remoteVersionMsg, err := wire.ReadMessage(p.conn, p.cfg.Net)
	if err != nil {
		return errors.Wrap(err, "reading version")
	}
	remoteVersion, ok := remoteVersionMsg.(*wire.MsgVersion)
	if !ok {
		return errors.New("first message from peer was not version")
	}
	if remoteVersion.Nonce == p.cfg.Nonce {
		return errors.New("refusing self-connection (matching nonce)")
	}

	p.mtx.Lock()
	p.userAgent = remoteVersion.UserAgent
	p.selectedHeight = remoteVersion.SelectedHeight
	p.versionKnown = true
	p.mtx.Unlock()

	if p.inbound {
		if err := wire.WriteMessage(p.conn, localVersion, p.cfg.Net); err != nil {
			return errors.Wrap(err, "sending version")
		}
	}

	if err := wire.WriteMessage(p.conn, &wire.MsgVerAck{}, p.cfg.Net); err != nil {
		return errors.Wrap(err, "sending verack")
	}
	ackMsg, err := wire.ReadMessage(p.conn, p.cfg.Net)
	if err != nil {
		return errors.Wrap(err, "reading verack")
	}
	if _, ok := ackMsg.(*wire.MsgVerAck); !ok {
		return errors.New("expected verack after version")
	}

	if p.cfg.Handler != nil {
		p.cfg.Handler.OnVersion(p, remoteVersion)
	}
	return nil
}

func (p *Peer) readLoop() {
	defer p.wg.Done()
	defer p.Disconnect()

	for {
		p.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		msg, err := wire.ReadMessage(p.conn, p.cfg.Net)
		if err != nil {
			log.Debugf("peer %s: read loop ending: %s", p.conn.RemoteAddr(), err)
			return
		}
		p.mtx.Lock()
		p.lastRecv = time.Now()
		p.mtx.Unlock()

		switch m := msg.(type) {
		case *wire.MsgPing:
			p.QueueMessage(&wire.MsgPong{Nonce: m.Nonce})
		case *wire.MsgPong:
			// liveness only; lastRecv already updated above.
		default:
			if p.cfg.Handler != nil {
				p.cfg.Handler.OnMessage(p, msg)
			}
		}

		select {
		case <-p.quit:
			return
		default:
		}
	}
}

func (p *Peer) writeLoop() {
	defer p.wg.Done()
	defer p.Disconnect()

	for {
		select {
		case msg := <-p.outQueue:
			if err := wire.WriteMessage(p.conn, msg, p.cfg.Net); err != nil {
				return
			}
		case <-p.quit:
			return
		}
	}
}

func (p *Peer) pingLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.QueueMessage(&wire.MsgPing{Nonce: rand.Uint64()})
		case <-p.quit:
			return
		}
	}
}
