package boxer

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"boxer/core"
	"boxer/core/config"
	"boxer/validator"
)

// NodeConfig selects where and under which consensus the node runs.
type NodeConfig struct {
	// DataDir holds the block store. Empty keeps everything in memory.
	DataDir   string
	Consensus *config.Consensus

	// ReadOnly opens an existing DataDir without writing to it. The chain
	// service of a read-only node rejects every block.
	ReadOnly bool
}

// Node is the in-process chain the driver submits to.
type Node struct {
	Store  *core.BadgerStore
	Shared *core.Shared
	Chain  *core.ChainService
}

// OpenNode checks the genesis, opens the store and starts the chain service.
func OpenNode(cfg NodeConfig, log zerolog.Logger) (*Node, error) {
	consensus := cfg.Consensus
	if consensus == nil {
		consensus = config.DefaultConsensus()
	}
	if err := (validator.GenesisVerifier{}).Verify(consensus); err != nil {
		return nil, err
	}

	readOnly := cfg.ReadOnly && cfg.DataDir != ""
	var store *core.BadgerStore
	var err error
	if cfg.DataDir == "" {
		store, err = core.OpenInMemoryStore()
	} else {
		store, err = core.OpenBadgerStore(cfg.DataDir, readOnly)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var shared *core.Shared
	if readOnly {
		shared, err = core.LoadShared(store, consensus, log)
	} else {
		shared, err = core.NewShared(store, consensus, log)
	}
	if err != nil {
		store.Close()
		return nil, err
	}
	chain := core.NewChainService(shared, validator.NewChainVerifier(consensus), log)
	return &Node{Store: store, Shared: shared, Chain: chain}, nil
}

// Close stops notifications and closes the store.
func (n *Node) Close() error {
	var result *multierror.Error
	if err := n.Chain.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close chain: %w", err))
	}
	if err := n.Store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	return result.ErrorOrNil()
}
