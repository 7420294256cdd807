// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the tunable network parameters a node needs
// before it can validate or mine a single block: genesis, proof-of-work
// limits, retarget cadence, subsidy schedule, and bootstrap addresses.
package chaincfg

import (
	"math/big"
	"time"
)

var bigOne = big.NewInt(1)

// mainPowLimit is the highest allowed proof-of-work value on MainNet:
// 2^224 - 1.
var mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

// simNetPowLimit is deliberately permissive so simnet blocks mine
// instantly for tests.
var simNetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

// Params holds the consensus parameters for one network.
type Params struct {
	Name        string
	DefaultPort string
	DNSSeeds    []string

	GenesisBlock *GenesisBlock

	// PowLimit is the highest allowed proof-of-work value (lowest
	// difficulty).
	PowLimit *big.Int
	// PowLimitBits is PowLimit in compact form, the genesis block's
	// Bits field.
	PowLimitBits uint32

	// TargetTimePerBlock is the intended spacing between blocks.
	TargetTimePerBlock time.Duration

	// RetargetInterval is the number of blocks between difficulty
	// retargets (spec.md §4.1, default 2016).
	RetargetInterval uint64

	// RetargetAdjustmentFactor bounds how much a single retarget may
	// change the difficulty, in either direction.
	RetargetAdjustmentFactor int64

	// SubsidyHalvingInterval is the number of blocks between coinbase
	// subsidy halvings.
	SubsidyHalvingInterval uint64

	// InitialSubsidy is the block reward paid by the genesis era, in the
	// smallest unit.
	InitialSubsidy uint64

	// CoinbaseMaturity is the number of confirmations a coinbase output
	// needs before it is spendable (spec.md §3, default 100).
	CoinbaseMaturity uint64

	// TimestampDeviationTolerance bounds how far a block's timestamp may
	// sit ahead of the local clock (spec.md §4.1).
	TimestampDeviationTolerance time.Duration

	// MedianTimeBlocks is the number of preceding headers whose
	// timestamps are considered for the median-time-past rule.
	MedianTimeBlocks int

	// Net is the magic number framing every wire message on this
	// network.
	Net uint32
}

// BigToCompact and CompactToBig follow the same compact-encoding
// convention bitcoin-derived chains use for the difficulty target: the
// first byte is a base-256 exponent, the remaining three are the
// mantissa.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	exponent := uint(len(n.Bytes()))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return uint32(exponent<<24) | mantissa
}

// CompactToBig unpacks the compact-form difficulty target into a big.Int.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// CalcWork computes the cumulative-work contribution of a single header
// with the given compact difficulty bits: 2^256 / (target+1)
// (spec.md §3, §8).
func CalcWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

var oneLsh256 = new(big.Int).Lsh(bigOne, 256)

// MainNetParams defines the parameters for the production network.
var MainNetParams = Params{
	Name:                        "mainnet",
	DefaultPort:                 "8433",
	DNSSeeds:                    []string{"seed.ledgerd.example"},
	GenesisBlock:                genesisBlock,
	PowLimit:                    mainPowLimit,
	PowLimitBits:                BigToCompact(mainPowLimit),
	TargetTimePerBlock:          10 * time.Minute,
	RetargetInterval:            2016,
	RetargetAdjustmentFactor:    4,
	SubsidyHalvingInterval:      210000,
	InitialSubsidy:              50 * 100000000,
	CoinbaseMaturity:            100,
	TimestampDeviationTolerance: 2 * time.Hour,
	MedianTimeBlocks:            11,
	Net:                         0xd9b4bef9,
}

// SimNetParams defines the parameters used for local simulation and
// integration tests: trivial difficulty and a one-second block time, with
// the same 100-block coinbase maturity as MainNet.
var SimNetParams = Params{
	Name:                        "simnet",
	DefaultPort:                 "18433",
	DNSSeeds:                    nil,
	GenesisBlock:                simNetGenesisBlock,
	PowLimit:                    simNetPowLimit,
	PowLimitBits:                BigToCompact(simNetPowLimit),
	TargetTimePerBlock:          1 * time.Second,
	RetargetInterval:            2016,
	RetargetAdjustmentFactor:    4,
	SubsidyHalvingInterval:      210000,
	InitialSubsidy:              50 * 100000000,
	CoinbaseMaturity:            100,
	TimestampDeviationTolerance: 2 * time.Hour,
	MedianTimeBlocks:            11,
	Net:                         0x12141c16,
}
