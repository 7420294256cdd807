// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpc implements the node's JSON-RPC 2.0 control surface
// (spec.md §6): block/chain queries, mempool submission, wallet
// balance/send, and contract deploy/call/getCode. Grounded in the
// infrastructure/network/rpc/rpcserver.go: a bare net/http
// server with HTTP basic auth compared in constant time, a single POST
// endpoint dispatching by method name, and admin-vs-limited method
// classes — rebuilt around this module's own Chain/Pool/Wallet/Engine
// instead of kaspad's blockdag/mining/model stack.
package rpc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/contractvm"
	"github.com/ledgerforge/ledgerd/mempool"
	"github.com/ledgerforge/ledgerd/wallet"
	"github.com/ledgerforge/ledgerd/wire"
)

// rpcAuthTimeout bounds how long a connection may sit idle before
// completing HTTP basic auth.
const rpcAuthTimeout = 10 * time.Second

// Swarm is the subset of server/p2p.Server the RPC layer needs:
// admitting a submitted transaction into the mempool and relaying it.
type Swarm interface {
	SubmitTransaction(tx *wire.MsgTx) (*chainhash.Hash, error)
	PeerCount() (outbound, inbound int)
}

// Config parametrizes a Server.
type Config struct {
	ListenAddr string
	User       string
	Pass       string

	Chain   *blockchain.Chain
	Mempool *mempool.Pool
	Wallet  *wallet.Wallet
	Engine  *contractvm.Engine
	Swarm   Swarm

	StopFunc func()
}

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	cfg     Config
	authSHA [32]byte
	noAuth  bool

	started  int32
	listener net.Listener
	httpSrv  *http.Server
}

// New builds a Server ready to Start.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, noAuth: cfg.User == ""}
	if !s.noAuth {
		s.authSHA = sha256.Sum256([]byte(cfg.User + ":" + cfg.Pass))
	}
	return s
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleHTTP).Methods(http.MethodPost)
	router.HandleFunc("/block/height/{height}", s.handleGetBlockByHeightREST).Methods(http.MethodGet)
	s.httpSrv = &http.Server{
		Handler:     router,
		ReadTimeout: rpcAuthTimeout,
	}

	go func() {
		log.Infof("RPC server listening on %s", ln.Addr())
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warnf("RPC server stopped serving: %s", err)
		}
	}()
	return nil
}

// Stop closes the listener and any in-flight connections.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.checkAuth(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="ledgerd RPC"`)
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, nil, nil, newError(errCodeParse, "invalid JSON"))
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		writeResponse(w, req.ID, nil, newError(errCodeInvalidRequest, "unsupported jsonrpc version"))
		return
	}

	handler, ok := handlers[req.Method]
	if !ok {
		writeResponse(w, req.ID, nil, newError(errCodeMethodNotFound, "unknown method "+req.Method))
		return
	}

	result, rpcErr := handler(s, req.Params)
	writeResponse(w, req.ID, result, rpcErr)
}

// handleGetBlockByHeightREST is a plain-GET convenience route alongside
// the JSON-RPC endpoint, grounded in the apiserver route
// style (github.com/daglabs/btcd/apiserver/server/routes.go): a
// mux.Vars route parameter feeding the same lookup the JSON-RPC
// blockchain_getBlock method uses.
func (s *Server) handleGetBlockByHeightREST(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.checkAuth(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="ledgerd RPC"`)
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return
	}

	heightStr := mux.Vars(r)["height"]
	height, err := strconv.ParseUint(heightStr, 10, 64)
	if err != nil {
		writeResponse(w, nil, nil, newError(errCodeInvalidParams, "malformed height: "+err.Error()))
		return
	}
	block, ok := s.cfg.Chain.BlockByHeight(height)
	if !ok {
		writeResponse(w, nil, nil, newError(errCodeNotFound, "block not found"))
		return
	}
	writeResponse(w, nil, toBlockResult(block, height), nil)
}

// checkAuth compares the request's basic-auth header against the
// configured credentials in constant time. It returns true when auth is
// disabled (no user configured) or the credentials match.
func (s *Server) checkAuth(r *http.Request) bool {
	if s.noAuth {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	got := sha256.Sum256([]byte(user + ":" + pass))
	return subtle.ConstantTimeCompare(got[:], s.authSHA[:]) == 1
}

// request is a JSON-RPC 2.0 request object.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// response is a JSON-RPC 2.0 response object; exactly one of Result or
// Error is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func writeResponse(w http.ResponseWriter, id json.RawMessage, result interface{}, rpcErr *Error) {
	resp := response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("failed to write RPC response: %s", err)
	}
}
