// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Controller drives a continuous mine loop inside the node process
// itself, rather than a separate out-of-process miner talking to
// a node over RPC (spec.md §4.2 folds mining into the daemon behind
// --mining). The template/solve/resubmit/re-template cycle is grounded
// in cmd/kaspaminer/mineloop.go's templatesLoop + mineNextBlock +
// handleFoundBlock, and the periodic hash-rate log in its logHashRate.
package mining

import (
	"context"
	"time"

	"github.com/ledgerforge/ledgerd/blockchain"
	"github.com/ledgerforge/ledgerd/mempool"
)

// hashRateLogInterval matches logHashRateInterval.
const hashRateLogInterval = 10 * time.Second

// retemplateInterval bounds how long a single solve attempt runs before
// the controller re-checks the mempool and tip for a fresher template,
// the in-process analogue of a 500ms getBlockTemplate
// polling ticker.
const retemplateInterval = 2 * time.Second

// Controller continuously assembles and solves block templates,
// submitting each solved block back into chain.
type Controller struct {
	chain   *blockchain.Chain
	pool    *mempool.Pool
	payTo   []byte
	workers int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewController builds a Controller that pays payToHash160 and searches
// with workerCount concurrent goroutines per template.
func NewController(chain *blockchain.Chain, pool *mempool.Pool, payToHash160 []byte, workerCount int) *Controller {
	return &Controller{chain: chain, pool: pool, payTo: payToHash160, workers: workerCount}
}

// Start begins mining in the background. Calling Start twice without an
// intervening Stop is a no-op.
func (c *Controller) Start() {
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
	go c.logHashRate(ctx)
}

// Stop cancels in-flight solving and waits for the mine loop to exit.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		template, err := NewBlockTemplate(c.chain, c.pool, c.payTo)
		if err != nil {
			log.Warnf("building block template: %s", err)
			time.Sleep(retemplateInterval)
			continue
		}

		solveCtx, cancel := context.WithTimeout(ctx, retemplateInterval)
		block, err := Solve(solveCtx, template.Block, c.workers)
		cancel()
		if err != nil || block == nil {
			continue
		}

		isOrphan, err := c.chain.ProcessBlock(block)
		if err != nil {
			log.Warnf("solved block rejected: %s", err)
			continue
		}
		if isOrphan {
			log.Warnf("solved block %s is an orphan; parent not yet known", block.BlockHash())
			continue
		}
		log.Infof("mined block %s at height %d (%d tx, %d fees)",
			block.BlockHash(), template.Height, len(block.Transactions), template.Fees)
	}
}

func (c *Controller) logHashRate(ctx context.Context) {
	ticker := time.NewTicker(hashRateLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hashes := HashesTried()
			rate := float64(hashes) / hashRateLogInterval.Seconds() / 1000
			log.Infof("current hash rate is %.2f khash/s", rate)
		}
	}
}
