// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet builds and signs spends against a Chain's UTXO set
// (spec.md §4.4). It offers the five coin-selection strategies spec.md
// §4.4 names, plus the standard P2PKH fee/change arithmetic its
// transaction-construction helpers rely on.
package wallet

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/util"
	"github.com/ledgerforge/ledgerd/wire"
)

// Strategy names a coin-selection algorithm (spec.md §4.4).
type Strategy int

// The five selection strategies spec.md §4.4 requires.
const (
	// LargestFirst spends the biggest outputs first, minimizing input
	// count at the cost of UTXO-set fragmentation over time.
	LargestFirst Strategy = iota
	// SmallestSufficient spends the smallest outputs that still cover
	// the target, consolidating dust at the cost of a larger witness.
	SmallestSufficient
	// BranchAndBound searches for a subset that sums to exactly target
	// (no change output), falling back to SmallestSufficient when no
	// exact match exists within the search budget. This is the default
	// (spec.md §4.4 "should default to... minimizing a change output").
	BranchAndBound
	// Random spends a random subset, resisting UTXO-clustering analysis.
	Random
	// OldestFirst spends outputs in the order their block height
	// increases, helping coinbase outputs clear maturity sooner.
	OldestFirst
)

// candidate is a spendable output paired with the UTXOEntry describing
// it, as returned by a Chain's UTXOSet.
type candidate struct {
	outpoint wire.Outpoint
	entry    *blockchain.UTXOEntry
}

// bnbSearchLimit bounds the branch-and-bound search so selection never
// runs unbounded against a wallet with thousands of candidate outputs.
const bnbSearchLimit = 100000

// ErrInsufficientFunds is returned when no subset of the wallet's
// spendable outputs covers the requested amount plus fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// SelectUTXOs chooses a subset of candidates whose total amount is at
// least target, per strategy. It returns the chosen candidates and their
// summed amount.
func selectUTXOs(candidates []candidate, target util.Amount, strategy Strategy) ([]candidate, util.Amount, error) {
	switch strategy {
	case LargestFirst:
		return selectLargestFirst(candidates, target)
	case SmallestSufficient:
		return selectSmallestSufficient(candidates, target)
	case BranchAndBound:
		if subset, sum, ok := selectBranchAndBound(candidates, target); ok {
			return subset, sum, nil
		}
		return selectSmallestSufficient(candidates, target)
	case Random:
		return selectRandom(candidates, target)
	case OldestFirst:
		return selectOldestFirst(candidates, target)
	default:
		return nil, 0, errors.Errorf("unknown selection strategy %d", strategy)
	}
}

func sumOf(candidates []candidate) util.Amount {
	var total util.Amount
	for _, c := range candidates {
		total += util.Amount(c.entry.Amount())
	}
	return total
}

// takeUntilCovered walks ordered (already sorted by the caller) and
// accumulates entries until their sum reaches target.
func takeUntilCovered(ordered []candidate, target util.Amount) ([]candidate, util.Amount, error) {
	var chosen []candidate
	var sum util.Amount
	for _, c := range ordered {
		if sum >= target {
			break
		}
		chosen = append(chosen, c)
		sum += util.Amount(c.entry.Amount())
	}
	if sum < target {
		return nil, 0, ErrInsufficientFunds
	}
	return chosen, sum, nil
}

func selectLargestFirst(candidates []candidate, target util.Amount) ([]candidate, util.Amount, error) {
	ordered := append([]candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.Amount() > ordered[j].entry.Amount()
	})
	return takeUntilCovered(ordered, target)
}

func selectSmallestSufficient(candidates []candidate, target util.Amount) ([]candidate, util.Amount, error) {
	ordered := append([]candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.Amount() < ordered[j].entry.Amount()
	})
	return takeUntilCovered(ordered, target)
}

func selectOldestFirst(candidates []candidate, target util.Amount) ([]candidate, util.Amount, error) {
	ordered := append([]candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.BlockHeight() < ordered[j].entry.BlockHeight()
	})
	return takeUntilCovered(ordered, target)
}

func selectRandom(candidates []candidate, target util.Amount) ([]candidate, util.Amount, error) {
	shuffled := append([]candidate(nil), candidates...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return takeUntilCovered(shuffled, target)
}

// selectBranchAndBound performs a depth-first branch-and-bound search for
// a subset summing to exactly target (the "no change output" ideal).
// Candidates are sorted largest-first so early branches prune fast.
func selectBranchAndBound(candidates []candidate, target util.Amount) ([]candidate, util.Amount, bool) {
	ordered := append([]candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.Amount() > ordered[j].entry.Amount()
	})

	var best []candidate
	var bestSum util.Amount
	found := false
	calls := 0

	var search func(idx int, selected []candidate, sum util.Amount) bool
	search = func(idx int, selected []candidate, sum util.Amount) bool {
		calls++
		if calls > bnbSearchLimit {
			return found
		}
		if sum == target {
			best = append([]candidate(nil), selected...)
			bestSum = sum
			found = true
			return true
		}
		if sum > target || idx >= len(ordered) {
			return false
		}
		// Branch: include ordered[idx].
		if search(idx+1, append(selected, ordered[idx]), sum+util.Amount(ordered[idx].entry.Amount())) {
			return true
		}
		// Branch: exclude ordered[idx].
		return search(idx+1, selected, sum)
	}
	search(0, nil, 0)
	return best, bestSum, found
}
