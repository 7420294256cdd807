// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package util holds value-and-address helpers shared by the wallet,
// mempool, and RPC layers: Amount (the smallest-unit integer spec.md §3
// defines value in) and Address (the Base58Check-encoded P2PKH address).
package util

import "strconv"

// Amount counts value in the smallest indivisible unit, as spec.md §3
// requires ("Amount is a non-negative integer in the smallest unit").
type Amount uint64

// AmountPerCoin is the number of smallest units in one whole coin,
// matching spec.md §8 scenario 1's "50·10^8 (smallest units)".
const AmountPerCoin = 100000000

// String renders the amount as a decimal coin value, e.g. "50.00000000".
func (a Amount) String() string {
	whole := uint64(a) / AmountPerCoin
	frac := uint64(a) % AmountPerCoin
	fracStr := strconv.FormatUint(frac, 10)
	for len(fracStr) < 8 {
		fracStr = "0" + fracStr
	}
	return strconv.FormatUint(whole, 10) + "." + fracStr
}
