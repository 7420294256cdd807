package blockchain

import (
	"time"

	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
)

// maxOrphanBlocks bounds the orphan cache in count (spec.md §4.1
// "Orphans are cached bounded in count and age").
const maxOrphanBlocks = 100

// maxOrphanAge is the longest an orphan is kept waiting for its parent.
const maxOrphanAge = 20 * time.Minute

type orphanBlock struct {
	block     *wire.MsgBlock
	expiresAt time.Time
}

// orphanCache holds blocks whose parent is not yet known, indexed both by
// their own hash and by the parent hash they are waiting on so arrival of
// the parent can trigger a re-attempt.
type orphanCache struct {
	byHash       map[chainhash.Hash]*orphanBlock
	byParentHash map[chainhash.Hash][]chainhash.Hash
}

func newOrphanCache() *orphanCache {
	return &orphanCache{
		byHash:       make(map[chainhash.Hash]*orphanBlock),
		byParentHash: make(map[chainhash.Hash][]chainhash.Hash),
	}
}

func (o *orphanCache) add(block *wire.MsgBlock) {
	o.expireStale()
	if len(o.byHash) >= maxOrphanBlocks {
		return
	}
	hash := block.BlockHash()
	if _, exists := o.byHash[hash]; exists {
		return
	}
	o.byHash[hash] = &orphanBlock{block: block, expiresAt: time.Now().Add(maxOrphanAge)}
	parent := block.Header.PrevBlock
	o.byParentHash[parent] = append(o.byParentHash[parent], hash)
}

// take removes and returns every orphan whose parent is parentHash.
func (o *orphanCache) take(parentHash chainhash.Hash) []*wire.MsgBlock {
	hashes := o.byParentHash[parentHash]
	if len(hashes) == 0 {
		return nil
	}
	delete(o.byParentHash, parentHash)

	blocks := make([]*wire.MsgBlock, 0, len(hashes))
	for _, h := range hashes {
		if ob, ok := o.byHash[h]; ok {
			blocks = append(blocks, ob.block)
			delete(o.byHash, h)
		}
	}
	return blocks
}

func (o *orphanCache) expireStale() {
	now := time.Now()
	for hash, ob := range o.byHash {
		if now.After(ob.expiresAt) {
			delete(o.byHash, hash)
			parent := ob.block.Header.PrevBlock
			siblings := o.byParentHash[parent]
			for i, h := range siblings {
				if h == hash {
					o.byParentHash[parent] = append(siblings[:i], siblings[i+1:]...)
					break
				}
			}
		}
	}
}
