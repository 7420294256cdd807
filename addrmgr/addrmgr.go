// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr is a concurrency-safe address book caching known peers
// and scheduling reconnection attempts with exponential backoff
// (spec.md §4.7's addrmgr/connmgr responsibilities), adapted from the
// infrastructure/network/addressmanager (read before that
// generation was deleted wholesale; reproduced here against
// wire.NetAddress instead of appmessage.NetAddress).
package addrmgr

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/wire"
)

// backoffSchedule is the reconnection delay after the Nth consecutive
// failure, per spec.md §4.7: 0s, 60s, 300s, 900s, 3600s, holding at the
// last entry thereafter.
var backoffSchedule = []time.Duration{
	0,
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	3600 * time.Second,
}

// Key identifies an address by its routable identity (IP + port).
type Key string

func keyFor(addr *wire.NetAddress) Key {
	port := make([]byte, 2)
	binary.LittleEndian.PutUint16(port, addr.Port)
	buf := make([]byte, 0, len(addr.IP)+2)
	buf = append(buf, addr.IP...)
	buf = append(buf, port...)
	return Key(buf)
}

// entry tracks one known address's connection history.
type entry struct {
	addr        *wire.NetAddress
	failures    int
	lastAttempt time.Time
	lastSuccess time.Time
	banned      bool
}

func (e *entry) nextRetryAt() time.Time {
	idx := e.failures
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return e.lastAttempt.Add(backoffSchedule[idx])
}

// Manager is the address book: known peers and their banned/backoff
// state. It does no random sampling of candidates.
type Manager struct {
	mtx     sync.Mutex
	entries map[Key]*entry
}

// New returns an empty address manager.
func New() *Manager {
	return &Manager{entries: make(map[Key]*entry)}
}

// AddAddress records addr as known, if not already present.
func (m *Manager) AddAddress(addr *wire.NetAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	key := keyFor(addr)
	if _, ok := m.entries[key]; ok {
		return
	}
	m.entries[key] = &entry{addr: addr}
}

// AddAddresses records each of addrs as known.
func (m *Manager) AddAddresses(addrs []*wire.NetAddress) {
	for _, a := range addrs {
		m.AddAddress(a)
	}
}

// MarkAttempt records a connection attempt at now, starting or continuing
// the backoff clock.
func (m *Manager) MarkAttempt(addr *wire.NetAddress, now time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	e := m.entries[keyFor(addr)]
	if e == nil {
		return
	}
	e.lastAttempt = now
}

// MarkGood records a successful handshake, resetting the failure count.
func (m *Manager) MarkGood(addr *wire.NetAddress, now time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	e := m.entries[keyFor(addr)]
	if e == nil {
		return
	}
	e.failures = 0
	e.lastSuccess = now
}

// MarkFailed records a failed connection attempt, advancing the backoff
// schedule.
func (m *Manager) MarkFailed(addr *wire.NetAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	e := m.entries[keyFor(addr)]
	if e == nil {
		return
	}
	e.failures++
}

// Ban marks addr as banned; Addresses and NeedsRetry leave it out from
// then on. There is no way to unban an address.
func (m *Manager) Ban(addr *wire.NetAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	e := m.entries[keyFor(addr)]
	if e == nil {
		return
	}
	e.banned = true
	log.Infof("banned peer address %s", addr.IP)
}

// RemoveAddress forgets addr entirely.
func (m *Manager) RemoveAddress(addr *wire.NetAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.entries, keyFor(addr))
}

// Addresses returns every known, unbanned address.
func (m *Manager) Addresses() []*wire.NetAddress {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]*wire.NetAddress, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.banned {
			out = append(out, e.addr)
		}
	}
	return out
}

// NeedsRetry reports whether addr is unbanned and its backoff window has
// elapsed as of now — the candidate-selection predicate connmgr polls.
func (m *Manager) NeedsRetry(addr *wire.NetAddress, now time.Time) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	e := m.entries[keyFor(addr)]
	if e == nil || e.banned {
		return false
	}
	if e.lastAttempt.IsZero() {
		return true
	}
	return !now.Before(e.nextRetryAt())
}

// Count returns the number of known addresses.
func (m *Manager) Count() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.entries)
}
