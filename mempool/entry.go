// Package mempool implements the priority-ordered, conflict-resolving
// pool of unconfirmed transactions: admission, replace-by-fee, ancestor
// and descendant accounting, capacity eviction, and block-template
// selection (spec.md §4.5).
package mempool

import (
	"time"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
)

// PriorityClass orders mempool entries ahead of fee-rate (spec.md §4.5
// "Priority classes"). Boundaries are fee-rate in the smallest unit per
// byte.
type PriorityClass int

const (
	PriorityLow PriorityClass = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func classify(feeRate float64) PriorityClass {
	switch {
	case feeRate >= 10000:
		return PriorityUrgent
	case feeRate >= 5000:
		return PriorityHigh
	case feeRate >= 2000:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

func (p PriorityClass) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// RemovalReason records why an entry left the pool, surfaced on the
// `removed` event (spec.md §4.5 "Events").
type RemovalReason int

const (
	ReasonConfirmed RemovalReason = iota
	ReasonFeeTooLow
	ReasonExpired
	ReasonInvalid
	ReasonReplaced
	ReasonConflict
	ReasonManual
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonConfirmed:
		return "confirmed"
	case ReasonFeeTooLow:
		return "fee-too-low"
	case ReasonExpired:
		return "expired"
	case ReasonInvalid:
		return "invalid"
	case ReasonReplaced:
		return "replaced"
	case ReasonConflict:
		return "conflict"
	default:
		return "manual"
	}
}

// Entry is one unconfirmed transaction held by the pool, along with the
// bookkeeping spec.md §3 "Mempool entry" requires for ordering, RBF, and
// ancestor/descendant limits.
type Entry struct {
	Tx       *wire.MsgTx
	TxID     chainhash.Hash
	Fee      uint64
	Size     uint64
	FeeRate  float64
	Priority PriorityClass
	EntryTime time.Time

	// Parents are the txids of in-mempool entries this transaction
	// spends from (chained spending); Children are the inverse edge.
	Parents  map[chainhash.Hash]struct{}
	Children map[chainhash.Hash]struct{}

	rbfEligible bool
}

// NewEntry builds an Entry from a validated transaction and its fee.
func NewEntry(tx *wire.MsgTx, fee uint64, size uint64, now time.Time) *Entry {
	feeRate := float64(fee) / float64(size)
	rbf := false
	for _, in := range tx.TxIn {
		if in.Sequence < wire.MaxRBFSequence+1 {
			rbf = true
			break
		}
	}
	return &Entry{
		Tx:          tx,
		TxID:        tx.TxID(),
		Fee:         fee,
		Size:        size,
		FeeRate:     feeRate,
		Priority:    classify(feeRate),
		EntryTime:   now,
		Parents:     make(map[chainhash.Hash]struct{}),
		Children:    make(map[chainhash.Hash]struct{}),
		rbfEligible: rbf,
	}
}

// IsRBFEligible reports whether any input opted into replacement (sequence
// < 0xFFFFFFFE, spec.md §4.5 "RBF").
func (e *Entry) IsRBFEligible() bool { return e.rbfEligible }
