// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func TestHandleHTTPRejectsWrongCredentials(t *testing.T) {
	s := New(Config{User: "alice", Pass: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`)))
	req.SetBasicAuth("alice", "wrong")
	rec := httptest.NewRecorder()

	s.handleHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleHTTPAllowsNoAuthWhenUnconfigured(t *testing.T) {
	fixture, _ := newFixtureServer(t)
	body, _ := json.Marshal(request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "blockchain_getBlockHeight"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	fixture.handleHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
}

func TestHandleHTTPUnknownMethod(t *testing.T) {
	fixture, _ := newFixtureServer(t)
	body, _ := json.Marshal(request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "nonexistent_method"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	fixture.handleHTTP(rec, req)
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if resp.Error == nil || resp.Error.Code != errCodeMethodNotFound {
		t.Fatalf("resp.Error = %v, want errCodeMethodNotFound", resp.Error)
	}
}

func TestHandleHTTPRejectsNonPost(t *testing.T) {
	s := New(Config{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.handleHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

// routerFor builds the same mux.Router Start wires up, without binding
// a listener, so route-matching (including mux.Vars extraction) can be
// exercised directly.
func routerFor(s *Server) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleHTTP).Methods(http.MethodPost)
	router.HandleFunc("/block/height/{height}", s.handleGetBlockByHeightREST).Methods(http.MethodGet)
	return router
}

func TestBlockByHeightRESTRouteReturnsGenesis(t *testing.T) {
	fixture, _ := newFixtureServer(t)
	router := routerFor(fixture)

	req := httptest.NewRequest(http.MethodGet, "/block/height/0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
}

func TestBlockByHeightRESTRouteNotFound(t *testing.T) {
	fixture, _ := newFixtureServer(t)
	router := routerFor(fixture)

	req := httptest.NewRequest(http.MethodGet, "/block/height/99999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if resp.Error == nil || resp.Error.Code != errCodeNotFound {
		t.Fatalf("resp.Error = %v, want errCodeNotFound", resp.Error)
	}
}

func TestBlockByHeightRESTRouteMalformedHeight(t *testing.T) {
	fixture, _ := newFixtureServer(t)
	router := routerFor(fixture)

	req := httptest.NewRequest(http.MethodGet, "/block/height/notanumber", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if resp.Error == nil || resp.Error.Code != errCodeInvalidParams {
		t.Fatalf("resp.Error = %v, want errCodeInvalidParams", resp.Error)
	}
}
