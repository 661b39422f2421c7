package core

import (
	"boxer/core/config"
	"boxer/core/header"
)

// GenesisBlock builds the deterministic genesis block of a consensus.
func GenesisBlock(c *config.Consensus) *Block {
	txs := []*Transaction{}
	return &Block{
		Header: header.Header{
			Version:    c.BlockVersion,
			Number:     0,
			ParentHash: header.Hash{}, // Zero hash for genesis
			Timestamp:  c.GenesisTimestamp,
			Target:     c.GenesisTarget.Bytes(),
			TxRoot:     TxRoot(txs),
		},
		Transactions: txs,
	}
}
