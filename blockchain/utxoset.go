package blockchain

import (
	"sync"

	"github.com/ledgerforge/ledgerd/txscript"
	"github.com/ledgerforge/ledgerd/util"
	"github.com/ledgerforge/ledgerd/wire"
	"github.com/pkg/errors"
)

// UTXOEntry houses details about an individual unspent transaction output:
// its amount, locking script, the height of the block that created it, and
// whether it originated from a coinbase transaction (spec.md §4.2).
type UTXOEntry struct {
	amount       uint64
	scriptPubKey []byte
	blockHeight  uint64
	isCoinbase   bool
}

// NewUTXOEntry builds a UTXOEntry from the fields a block's transaction
// supplies.
func NewUTXOEntry(amount uint64, scriptPubKey []byte, blockHeight uint64, isCoinbase bool) *UTXOEntry {
	return &UTXOEntry{
		amount:       amount,
		scriptPubKey: scriptPubKey,
		blockHeight:  blockHeight,
		isCoinbase:   isCoinbase,
	}
}

// Amount returns the amount of the output.
func (e *UTXOEntry) Amount() uint64 { return e.amount }

// ScriptPubKey returns the locking script of the output.
func (e *UTXOEntry) ScriptPubKey() []byte { return e.scriptPubKey }

// BlockHeight returns the height of the block that created this output.
func (e *UTXOEntry) BlockHeight() uint64 { return e.blockHeight }

// IsCoinbase reports whether the output originated from a coinbase
// transaction.
func (e *UTXOEntry) IsCoinbase() bool { return e.isCoinbase }

// IsMature reports whether a coinbase output has cleared coinbase-maturity
// depth by atHeight. Non-coinbase outputs are always mature.
func (e *UTXOEntry) IsMature(atHeight, coinbaseMaturity uint64) bool {
	if !e.isCoinbase {
		return true
	}
	return atHeight-e.blockHeight >= coinbaseMaturity
}

// utxoKey is the map key form of an outpoint. wire.Outpoint is itself a
// comparable value (a [32]byte array plus a uint32), so it serves directly
// as the key.
type utxoKey = wire.Outpoint

func keyOf(op wire.Outpoint) utxoKey {
	return op
}

// UTXODiff groups the outpoints a block removes and the entries it adds so
// that an apply is observed by concurrent readers as a single atomic step
// (spec.md §4.2 "apply(block_diff)").
type UTXODiff struct {
	Removed []wire.Outpoint
	Added   map[wire.Outpoint]*UTXOEntry
}

// NewUTXODiff returns an empty diff ready for accumulation.
func NewUTXODiff() *UTXODiff {
	return &UTXODiff{Added: make(map[wire.Outpoint]*UTXOEntry)}
}

// UTXOSet is the authoritative mapping from outpoints to unspent outputs —
// the sole source of truth for balances and double-spend detection
// (spec.md §4.2). A secondary address index is maintained synchronously.
type UTXOSet struct {
	mtx     sync.RWMutex
	entries map[utxoKey]*UTXOEntry
	outpointOf map[utxoKey]wire.Outpoint

	// byAddress indexes live outpoints by the P2PKH hash160 they pay to,
	// so balance_of and address-scoped RPC queries need not scan the
	// whole set.
	byAddress map[[20]byte]map[utxoKey]struct{}
}

// NewUTXOSet returns an empty UTXO set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{
		entries:    make(map[utxoKey]*UTXOEntry),
		outpointOf: make(map[utxoKey]wire.Outpoint),
		byAddress:  make(map[[20]byte]map[utxoKey]struct{}),
	}
}

// Get returns the live entry for outpoint, or ErrUTXONotFound.
func (s *UTXOSet) Get(outpoint wire.Outpoint) (*UTXOEntry, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	entry, ok := s.entries[keyOf(outpoint)]
	if !ok {
		return nil, ruleErrorf(ErrUTXONotFound, "no utxo for outpoint %s", outpoint)
	}
	return entry, nil
}

// Add inserts a new live entry for outpoint. It is an error for the
// outpoint to already exist — the uniqueness invariant spec.md §3
// requires of outpoints.
func (s *UTXOSet) Add(outpoint wire.Outpoint, entry *UTXOEntry) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.addLocked(outpoint, entry)
}

func (s *UTXOSet) addLocked(outpoint wire.Outpoint, entry *UTXOEntry) error {
	k := keyOf(outpoint)
	if _, exists := s.entries[k]; exists {
		return errors.Errorf("outpoint %s already has a live utxo", outpoint)
	}
	if len(entry.scriptPubKey) == 0 || entry.amount == 0 {
		return errors.New("utxo entry must have a non-empty script and positive amount")
	}
	s.entries[k] = entry
	s.outpointOf[k] = outpoint
	s.indexAddress(k, entry)
	return nil
}

// Remove deletes the live entry for outpoint, returning it so callers
// (reorganisation) can restore it later.
func (s *UTXOSet) Remove(outpoint wire.Outpoint) (*UTXOEntry, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.removeLocked(outpoint)
}

func (s *UTXOSet) removeLocked(outpoint wire.Outpoint) (*UTXOEntry, error) {
	k := keyOf(outpoint)
	entry, ok := s.entries[k]
	if !ok {
		return nil, ruleErrorf(ErrUTXONotFound, "no utxo for outpoint %s", outpoint)
	}
	delete(s.entries, k)
	delete(s.outpointOf, k)
	s.unindexAddress(k, entry)
	return entry, nil
}

func (s *UTXOSet) indexAddress(k utxoKey, entry *UTXOEntry) {
	hash, class := txscript.ExtractPubKeyHash(entry.scriptPubKey)
	if class != txscript.PubKeyHashTy {
		return
	}
	var addr [20]byte
	copy(addr[:], hash)
	set, ok := s.byAddress[addr]
	if !ok {
		set = make(map[utxoKey]struct{})
		s.byAddress[addr] = set
	}
	set[k] = struct{}{}
}

func (s *UTXOSet) unindexAddress(k utxoKey, entry *UTXOEntry) {
	hash, class := txscript.ExtractPubKeyHash(entry.scriptPubKey)
	if class != txscript.PubKeyHashTy {
		return
	}
	var addr [20]byte
	copy(addr[:], hash)
	if set, ok := s.byAddress[addr]; ok {
		delete(set, k)
		if len(set) == 0 {
			delete(s.byAddress, addr)
		}
	}
}

// OutpointsByAddress returns every outpoint currently live for addr's
// hash160.
func (s *UTXOSet) OutpointsByAddress(hash160 []byte) []wire.Outpoint {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var addr [20]byte
	copy(addr[:], hash160)
	set, ok := s.byAddress[addr]
	if !ok {
		return nil
	}
	out := make([]wire.Outpoint, 0, len(set))
	for k := range set {
		out = append(out, s.outpointOf[k])
	}
	return out
}

// BalanceOf sums the amounts of every UTXO currently live for an address.
func (s *UTXOSet) BalanceOf(hash160 []byte) util.Amount {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var addr [20]byte
	copy(addr[:], hash160)
	set, ok := s.byAddress[addr]
	if !ok {
		return 0
	}
	var total uint64
	for k := range set {
		total += s.entries[k].amount
	}
	return util.Amount(total)
}

// Apply commits diff's removals and additions as a single atomic step:
// concurrent readers never observe an intermediate state (spec.md §4.2).
func (s *UTXOSet) Apply(diff *UTXODiff) (map[wire.Outpoint]*UTXOEntry, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	removedEntries := make(map[wire.Outpoint]*UTXOEntry, len(diff.Removed))
	for _, op := range diff.Removed {
		entry, err := s.removeLocked(op)
		if err != nil {
			return nil, errors.Wrapf(err, "applying utxo diff")
		}
		removedEntries[op] = entry
	}
	for op, entry := range diff.Added {
		if err := s.addLocked(op, entry); err != nil {
			return nil, errors.Wrapf(err, "applying utxo diff")
		}
	}
	return removedEntries, nil
}

// Snapshot returns a clone that deep-copies every entry and the address
// index up front, suitable for mutation by a single
// in-flight block validation without being visible to other readers
// (spec.md §4.2 "Snapshots").
func (s *UTXOSet) Snapshot() *UTXOSet {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	clone := NewUTXOSet()
	for k, entry := range s.entries {
		e := *entry
		clone.entries[k] = &e
		clone.outpointOf[k] = s.outpointOf[k]
	}
	for addr, set := range s.byAddress {
		cp := make(map[utxoKey]struct{}, len(set))
		for k := range set {
			cp[k] = struct{}{}
		}
		clone.byAddress[addr] = cp
	}
	return clone
}
