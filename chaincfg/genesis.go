package chaincfg

import (
	"github.com/ledgerforge/ledgerd/chainhash"
	"github.com/ledgerforge/ledgerd/wire"
)

// GenesisBlock is the hard-coded first block of a network: it has no
// parent and its coinbase allocates the network's initial balances
// (spec.md §8 scenario 1, "genesis allocating 50 coins to address A").
type GenesisBlock = wire.MsgBlock

var genesisCoinbaseScript = []byte("ledgerd genesis block")

func buildGenesis(timestamp int64, bits uint32, extraNonce uint64, allocations []genesisAllocation) *GenesisBlock {
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutpoint: wire.Outpoint{Index: 0xffffffff},
		SignatureScript:  genesisCoinbaseScript,
		Sequence:         wire.SequenceLockTimeDisabled,
	})
	for _, alloc := range allocations {
		coinbase.AddTxOut(&wire.TxOut{
			Value:        alloc.amount,
			ScriptPubKey: alloc.scriptPubKey,
		})
	}

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  chainhash.ZeroHash,
			Timestamp:  timestamp,
			Bits:       bits,
			Nonce:      extraNonce,
			Height:     0,
		},
		Transactions: []*wire.MsgTx{coinbase},
	}
	txID := coinbase.TxID()
	block.Header.MerkleRoot = txID
	return block
}

type genesisAllocation struct {
	amount       uint64
	scriptPubKey []byte
}

// genesisBlock is MainNet's genesis. It allocates no coins; production
// balances originate from mined blocks.
var genesisBlock = buildGenesis(1231006505, BigToCompact(mainPowLimit), 0, nil)

// simNetGenesisBlock allocates 50 coins (5,000,000,000 smallest units) to
// a fixed P2PKH test address, matching spec.md §8 scenario 1's end-to-end
// fixture exactly.
var simNetGenesisBlock = buildGenesis(1598918400, BigToCompact(simNetPowLimit), 0, []genesisAllocation{
	{amount: 50 * 100000000, scriptPubKey: SimNetGenesisAllocationScript},
})

// SimNetGenesisAllocationScript is the P2PKH locking script of simnet's
// genesis allocation. It pays an all-zero hash160, which no key can sign
// for, so the allocation cannot be spent.
var SimNetGenesisAllocationScript = []byte{
	0x76, 0xa9, 0x14, // OP_DUP OP_HASH160 <20>
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x88, 0xac, // OP_EQUALVERIFY OP_CHECKSIG
}
