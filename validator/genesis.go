package validator

import (
	"errors"
	"fmt"

	"boxer/core"
	"boxer/core/config"
)

// ErrGenesis marks a consensus whose genesis block cannot start a chain.
var ErrGenesis = errors.New("invalid genesis")

// GenesisVerifier checks the consensus parameters and the genesis block they
// produce.
type GenesisVerifier struct{}

// Verify runs before the store is opened.
func (GenesisVerifier) Verify(consensus *config.Consensus) error {
	if consensus.GenesisTarget == nil || consensus.GenesisTarget.Sign() <= 0 {
		return fmt.Errorf("%w: target must be positive", ErrGenesis)
	}
	if consensus.GenesisTarget.Cmp(config.MaximumTarget) > 0 {
		return fmt.Errorf("%w: target exceeds maximum", ErrGenesis)
	}
	if consensus.TargetBlockSpacing <= 0 {
		return fmt.Errorf("%w: block spacing must be positive", ErrGenesis)
	}
	if consensus.MaxBlockTransactions < 1 {
		return fmt.Errorf("%w: blocks must admit a coinbase", ErrGenesis)
	}

	genesis := core.GenesisBlock(consensus)
	hdr := &genesis.Header
	if hdr.Number != 0 || !hdr.ParentHash.IsZero() {
		return fmt.Errorf("%w: number %d parent %s", ErrGenesis, hdr.Number, hdr.ParentHash)
	}
	if len(genesis.Transactions) != 0 {
		return fmt.Errorf("%w: %d transactions", ErrGenesis, len(genesis.Transactions))
	}
	if hdr.TxRoot != core.TxRoot(nil) {
		return fmt.Errorf("%w: tx root %s", ErrGenesis, hdr.TxRoot)
	}
	if hdr.TargetInt().Cmp(consensus.GenesisTarget) != 0 {
		return fmt.Errorf("%w: header target differs from consensus", ErrGenesis)
	}
	if _, err := core.ViewOf(genesis); err != nil {
		return fmt.Errorf("%w: %v", ErrGenesis, err)
	}
	return nil
}
