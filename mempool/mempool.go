package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
	"github.com/pkg/errors"
)

// Validator is the narrow surface the mempool validates admissions
// through — implemented by blockchain.Chain. The mempool never calls back
// into the chain beyond this read-only check (spec.md §9).
type Validator interface {
	ValidateTransaction(tx *wire.MsgTx) (fee uint64, err error)
}

// Config bundles the pool's tunables (spec.md §4.5 "Limits").
type Config struct {
	// MaxSize is the maximum number of entries the pool retains before
	// evicting the lowest-fee-rate entry.
	MaxSize int

	// MaxAncestors and MaxDescendants bound chained-spending depth.
	MaxAncestors   int
	MaxDescendants int

	// MinRelayFeeRate is the lowest fee-rate (fee per byte) admitted.
	MinRelayFeeRate float64

	// ExpiryAge evicts entries older than this during maintenance.
	ExpiryAge time.Duration
}

// DefaultConfig mirrors the bounds spec.md §4.5 names.
func DefaultConfig() Config {
	return Config{
		MaxSize:         5000,
		MaxAncestors:    25,
		MaxDescendants:  25,
		MinRelayFeeRate: 1,
		ExpiryAge:       14 * 24 * time.Hour,
	}
}

// Event is emitted to subscribers on every admission, removal, or
// replacement (spec.md §4.5 "Events").
type Event struct {
	Added     *Entry
	Removed   *Entry
	Reason    RemovalReason
	Replaced  *Entry // the entry Added replaced, if this is a replacement
}

// Subscriber receives pool events. Never called back into the Pool.
type Subscriber func(Event)

// Pool is the priority-ordered, conflict-resolving set of unconfirmed
// transactions (spec.md §4.5). It owns its own lock and is safe for
// concurrent use by peer-handling and mining goroutines alike.
type Pool struct {
	cfg       Config
	validator Validator

	mtx sync.RWMutex

	entries map[chainhash.Hash]*Entry

	// outpointOwner tracks which in-pool transaction currently spends an
	// outpoint, so a conflicting submission is recognised immediately
	// without walking every entry.
	outpointOwner map[wire.Outpoint]chainhash.Hash

	subscribers []Subscriber
}

// New constructs an empty pool bound to validator.
func New(cfg Config, validator Validator) *Pool {
	return &Pool{
		cfg:           cfg,
		validator:     validator,
		entries:       make(map[chainhash.Hash]*Entry),
		outpointOwner: make(map[wire.Outpoint]chainhash.Hash),
	}
}

// Subscribe registers a handler invoked on every pool event.
func (p *Pool) Subscribe(s Subscriber) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.subscribers = append(p.subscribers, s)
}

func (p *Pool) notify(ev Event) {
	// Copy under lock, invoke outside it — subscribers must not be able
	// to deadlock against the pool by calling back in.
	p.mtx.RLock()
	subs := append([]Subscriber(nil), p.subscribers...)
	p.mtx.RUnlock()
	for _, s := range subs {
		s(ev)
	}
}

// Size returns the number of entries currently held.
func (p *Pool) Size() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.entries)
}

// Have reports whether txID is already in the pool.
func (p *Pool) Have(txID chainhash.Hash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.entries[txID]
	return ok
}

// Get returns the entry for txID, if present.
func (p *Pool) Get(txID chainhash.Hash) (*Entry, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	e, ok := p.entries[txID]
	return e, ok
}

// ProcessTransaction validates tx and admits it, applying the
// replace-by-fee rule when tx conflicts with an existing entry (spec.md
// §4.5 "Admission" and "RBF"). now is supplied by the caller rather than
// read from the clock so admission is deterministic and testable.
func (p *Pool) ProcessTransaction(tx *wire.MsgTx, now time.Time) (*Entry, error) {
	txID := tx.TxID()

	p.mtx.RLock()
	if _, exists := p.entries[txID]; exists {
		p.mtx.RUnlock()
		return nil, errors.Errorf("transaction %s already in pool", txID)
	}
	p.mtx.RUnlock()

	fee, err := p.validator.ValidateTransaction(tx)
	if err != nil {
		return nil, errors.Wrap(err, "rejected by consensus validation")
	}

	size := uint64(tx.SerializeSize())
	candidate := NewEntry(tx, fee, size, now)
	if candidate.FeeRate < p.cfg.MinRelayFeeRate {
		return nil, errors.Errorf("fee rate %.4f below minimum relay fee rate %.4f", candidate.FeeRate, p.cfg.MinRelayFeeRate)
	}

	conflicts, err := p.conflictingEntries(tx, candidate)
	if err != nil {
		return nil, err
	}

	p.mtx.Lock()
	for _, c := range conflicts {
		p.removeLocked(c.TxID, ReasonReplaced)
	}
	if err := p.admitLocked(candidate); err != nil {
		p.mtx.Unlock()
		return nil, err
	}
	p.mtx.Unlock()

	if len(conflicts) > 0 {
		for _, c := range conflicts {
			p.notify(Event{Added: candidate, Replaced: c})
		}
	} else {
		p.notify(Event{Added: candidate})
	}

	if p.Size() > p.cfg.MaxSize {
		p.evictLowestFeeRate()
	}

	return candidate, nil
}

// conflictingEntries returns the existing entries tx's inputs double-spend
// against, applying spec.md §4.5's RBF rule: every conflicting entry must
// signal replaceability, and tx's fee rate must exceed all of theirs.
func (p *Pool) conflictingEntries(tx *wire.MsgTx, candidate *Entry) ([]*Entry, error) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	seen := make(map[chainhash.Hash]*Entry)
	for _, in := range tx.TxIn {
		ownerID, ok := p.outpointOwner[in.PreviousOutpoint]
		if !ok {
			continue
		}
		if ownerID == candidate.TxID {
			continue
		}
		owner := p.entries[ownerID]
		if owner == nil {
			continue
		}
		if !owner.IsRBFEligible() {
			return nil, errors.Errorf("conflicts with non-replaceable transaction %s", ownerID)
		}
		if candidate.FeeRate <= owner.FeeRate {
			return nil, errors.Errorf("replacement fee rate %.4f does not exceed replaced fee rate %.4f", candidate.FeeRate, owner.FeeRate)
		}
		seen[ownerID] = owner
	}

	conflicts := make([]*Entry, 0, len(seen))
	for _, e := range seen {
		conflicts = append(conflicts, e)
	}
	return conflicts, nil
}

// admitLocked links candidate's parent/child edges against already-pooled
// entries and enforces the ancestor/descendant depth bounds (spec.md §4.5
// "Limits"). Caller holds p.mtx.
func (p *Pool) admitLocked(candidate *Entry) error {
	ancestors := 0
	for _, in := range candidate.Tx.TxIn {
		if parentID, ok := p.outpointOwner[in.PreviousOutpoint]; ok {
			if parent, exists := p.entries[parentID]; exists {
				candidate.Parents[parentID] = struct{}{}
				parent.Children[candidate.TxID] = struct{}{}
				ancestors += 1 + len(parent.Parents)
			}
		}
	}
	if ancestors > p.cfg.MaxAncestors {
		return errors.Errorf("transaction %s exceeds max ancestor count %d", candidate.TxID, p.cfg.MaxAncestors)
	}
	for parentID := range candidate.Parents {
		if parent := p.entries[parentID]; parent != nil && len(parent.Children) > p.cfg.MaxDescendants {
			return errors.Errorf("admitting %s would exceed parent %s's max descendant count", candidate.TxID, parentID)
		}
	}

	p.entries[candidate.TxID] = candidate
	for idx := range candidate.Tx.TxIn {
		p.outpointOwner[candidate.Tx.TxIn[idx].PreviousOutpoint] = candidate.TxID
	}
	return nil
}

// RemoveTransaction evicts txID for reason, unlinking it from any children
// (which become parentless but remain pooled — spec.md does not require
// cascading eviction of descendants on a manual or confirmed removal).
func (p *Pool) RemoveTransaction(txID chainhash.Hash, reason RemovalReason) {
	p.mtx.Lock()
	entry, removed := p.removeLocked(txID, reason)
	p.mtx.Unlock()
	if removed {
		p.notify(Event{Removed: entry, Reason: reason})
	}
}

func (p *Pool) removeLocked(txID chainhash.Hash, reason RemovalReason) (*Entry, bool) {
	entry, ok := p.entries[txID]
	if !ok {
		return nil, false
	}
	for _, in := range entry.Tx.TxIn {
		if owner, ok := p.outpointOwner[in.PreviousOutpoint]; ok && owner == txID {
			delete(p.outpointOwner, in.PreviousOutpoint)
		}
	}
	for parentID := range entry.Parents {
		if parent, ok := p.entries[parentID]; ok {
			delete(parent.Children, txID)
		}
	}
	for childID := range entry.Children {
		if child, ok := p.entries[childID]; ok {
			delete(child.Parents, txID)
		}
	}
	delete(p.entries, txID)
	return entry, true
}

// evictLowestFeeRate drops the single lowest fee-rate entry once the pool
// exceeds MaxSize (spec.md §4.5 "Eviction").
func (p *Pool) evictLowestFeeRate() {
	p.mtx.Lock()
	var worst *Entry
	for _, e := range p.entries {
		if worst == nil || e.FeeRate < worst.FeeRate ||
			(e.FeeRate == worst.FeeRate && e.EntryTime.Before(worst.EntryTime)) {
			worst = e
		}
	}
	if worst == nil {
		p.mtx.Unlock()
		return
	}
	entry, _ := p.removeLocked(worst.TxID, ReasonFeeTooLow)
	p.mtx.Unlock()
	p.notify(Event{Removed: entry, Reason: ReasonFeeTooLow})
}

// OnTipAdvanced implements blockchain.TipAdvancedHandler: confirmed
// transactions leave the pool, and transactions restored by a
// reorganisation's disconnected blocks are re-offered for admission
// (spec.md §9 "the mempool ↔ consensus decoupling").
func (p *Pool) OnTipAdvanced(confirmedTxIDs []chainhash.Hash, restoredTxs []*wire.MsgTx) {
	for _, txID := range confirmedTxIDs {
		p.RemoveTransaction(txID, ReasonConfirmed)
	}
	now := time.Now()
	for _, tx := range restoredTxs {
		_, _ = p.ProcessTransaction(tx, now)
	}
}

// Purge evicts entries older than cfg.ExpiryAge, relative to now (spec.md
// §4.5 "Maintenance").
func (p *Pool) Purge(now time.Time) {
	p.mtx.Lock()
	var stale []chainhash.Hash
	for txID, e := range p.entries {
		if now.Sub(e.EntryTime) > p.cfg.ExpiryAge {
			stale = append(stale, txID)
		}
	}
	removed := make([]*Entry, 0, len(stale))
	for _, txID := range stale {
		if e, ok := p.removeLocked(txID, ReasonExpired); ok {
			removed = append(removed, e)
		}
	}
	p.mtx.Unlock()
	for _, e := range removed {
		p.notify(Event{Removed: e, Reason: ReasonExpired})
	}
}

// SelectForBlock returns entries ordered for block-template assembly:
// highest priority class first, then highest fee rate, with every parent
// ordered before its children regardless of its own fee rate (spec.md
// §4.5 "Block template selection"). It stops once the accumulated size
// would exceed maxSize.
func (p *Pool) SelectForBlock(maxSize uint64) []*Entry {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	all := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		if all[i].FeeRate != all[j].FeeRate {
			return all[i].FeeRate > all[j].FeeRate
		}
		return all[i].EntryTime.Before(all[j].EntryTime)
	})

	selected := make([]*Entry, 0, len(all))
	included := make(map[chainhash.Hash]struct{})
	var total uint64
	for _, e := range all {
		if _, ok := included[e.TxID]; ok {
			continue
		}
		chain := p.ancestorChainLocked(e, included)
		var chainSize uint64
		for _, a := range chain {
			chainSize += a.Size
		}
		if total+chainSize > maxSize {
			continue
		}
		for _, a := range chain {
			selected = append(selected, a)
			included[a.TxID] = struct{}{}
		}
		total += chainSize
	}
	return selected
}

// ancestorChainLocked returns e's not-yet-included in-pool ancestors
// followed by e itself, parents ordered strictly before children, so a
// caller appending the result to a block template never places a child
// ahead of a parent it spends from (spec.md §4.5 "parent before child").
// Caller holds p.mtx.
func (p *Pool) ancestorChainLocked(e *Entry, included map[chainhash.Hash]struct{}) []*Entry {
	var chain []*Entry
	visited := make(map[chainhash.Hash]struct{})
	var visit func(cur *Entry)
	visit = func(cur *Entry) {
		if _, ok := included[cur.TxID]; ok {
			return
		}
		if _, ok := visited[cur.TxID]; ok {
			return
		}
		visited[cur.TxID] = struct{}{}
		for parentID := range cur.Parents {
			if parent, ok := p.entries[parentID]; ok {
				visit(parent)
			}
		}
		chain = append(chain, cur)
	}
	visit(e)
	return chain
}
