// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connmgr resolves a node's DNS seeds at cold start and chooses
// outbound candidates from the address book (spec.md §4.7), adapted from
// daglabs-btcd's connmgr/seed.go DNS seed pattern against this module's
// wire.NetAddress instead of kaspad's appmessage.NetAddress.
package connmgr

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/ledgerforge/ledgerd/addrmgr"
	"github.com/ledgerforge/ledgerd/chaincfg"
	"github.com/ledgerforge/ledgerd/wire"
)

// LookupFunc resolves a hostname to a set of IPs, overridable in tests.
type LookupFunc func(host string) ([]net.IP, error)

// OnSeed is invoked with the addresses a DNS seed lookup produced.
type OnSeed func(addrs []*wire.NetAddress)

// SeedFromDNS resolves every DNS seed in params and invokes seedFn with
// the resulting addresses. Each seed is looked up concurrently, mirroring
// the per-seed spawn loop it is grounded on.
func SeedFromDNS(params *chaincfg.Params, lookupFn LookupFunc, seedFn OnSeed) {
	defaultPort, _ := strconv.Atoi(params.DefaultPort)

	for _, seed := range params.DNSSeeds {
		seed := seed
		spawn(func() {
			ips, err := lookupFn(seed)
			if err != nil {
				log.Infof("DNS discovery failed on seed %s: %s", seed, err)
				return
			}
			log.Infof("%d addresses found from DNS seed %s", len(ips), seed)
			if len(ips) == 0 {
				return
			}

			addrs := make([]*wire.NetAddress, len(ips))
			for i, ip := range ips {
				addrs[i] = wire.NewNetAddressIPPort(ip, uint16(defaultPort), wire.SFNodeNetwork)
			}
			seedFn(addrs)
		})
	}
}

// spawn runs fn in its own goroutine. A panic in fn is not recovered.
func spawn(fn func()) {
	go fn()
}

// DefaultLookup resolves host via the standard resolver.
func DefaultLookup(host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(context.Background(), "ip", host)
}

// SelectOutboundCandidates returns up to n addresses from mgr that are
// due for a connection attempt right now, the candidate-selection step
// connmgr's outbound loop polls on a timer (spec.md §4.7's "MAX_OUTBOUND
// ... outbound connections").
func SelectOutboundCandidates(mgr *addrmgr.Manager, n int, now time.Time) []*wire.NetAddress {
	var candidates []*wire.NetAddress
	for _, addr := range mgr.Addresses() {
		if len(candidates) >= n {
			break
		}
		if mgr.NeedsRetry(addr, now) {
			candidates = append(candidates, addr)
		}
	}
	return candidates
}
