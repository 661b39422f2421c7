// Package config holds the consensus parameters shared by the chain service,
// the header verifier and the miner.
package config

import (
	"math/big"
	"time"
)

// MaximumTarget is the easiest possible target (highest value).
var MaximumTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Consensus is read-only after startup and safe to share between goroutines.
type Consensus struct {
	Name         string
	BlockVersion uint32

	// GenesisTimestamp is in unix milliseconds, like every header timestamp.
	GenesisTimestamp uint64
	GenesisTarget    *big.Int

	// Difficulty retarget parameters
	RetargetInterval    uint64        // # of blocks between adjustments
	TargetBlockSpacing  time.Duration // desired time per block
	MaxAdjustmentFactor int64         // clamp actual/expected to [1/f, f]

	MaxFutureDrift       time.Duration
	MaxBlockTransactions int

	InitialSubsidy  uint64
	HalvingInterval uint64
}

// DefaultConsensus returns the dev-chain parameters. The genesis target is the
// maximum target so that every nonce seals a block.
func DefaultConsensus() *Consensus {
	return &Consensus{
		Name:                 "boxer-dev",
		BlockVersion:         0,
		GenesisTimestamp:     1_700_000_000_000,
		GenesisTarget:        new(big.Int).Set(MaximumTarget),
		RetargetInterval:     2016,
		TargetBlockSpacing:   10 * time.Second,
		MaxAdjustmentFactor:  4,
		MaxFutureDrift:       15 * time.Second,
		MaxBlockTransactions: 1024,
		InitialSubsidy:       50_0000_0000,
		HalvingInterval:      210_000,
	}
}

// Subsidy returns the coinbase reward for the block at the given number.
func (c *Consensus) Subsidy(number uint64) uint64 {
	if c.HalvingInterval == 0 {
		return c.InitialSubsidy
	}
	halvings := number / c.HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return c.InitialSubsidy >> halvings
}
