package unittest

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"boxer/core"
	"boxer/core/config"
	"boxer/core/header"
	"boxer/miner"
	"boxer/validator"
)

// Consensus returns the dev consensus. Its maximum genesis target lets every
// nonce seal a block.
func Consensus() *config.Consensus {
	return config.DefaultConsensus()
}

// Key returns a fresh secp256k1 key.
func Key(t testing.TB) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// Address returns a fresh account address.
func Address(t testing.TB) []byte {
	return core.AddressFromKey(Key(t))
}

// Clock returns a clock that starts at start and advances by step on every
// call.
func Clock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

// Chain is an in-memory node: store, shared state and chain service.
type Chain struct {
	Consensus *config.Consensus
	Store     *core.BadgerStore
	Shared    *core.Shared
	Service   *core.ChainService
}

// NewChain opens an in-memory chain at genesis, closed when the test ends.
func NewChain(t testing.TB, consensus *config.Consensus) *Chain {
	store, err := core.OpenInMemoryStore()
	require.NoError(t, err)
	shared, err := core.NewShared(store, consensus, Logger())
	require.NoError(t, err)
	service := core.NewChainService(shared, validator.NewChainVerifier(consensus), Logger())
	t.Cleanup(func() {
		_ = service.Close()
		_ = store.Close()
	})
	return &Chain{Consensus: consensus, Store: store, Shared: shared, Service: service}
}

// Miner returns a miner paying coinbase whose timestamps start one block
// spacing after genesis and advance one spacing per block.
func (c *Chain) Miner(coinbase []byte) *miner.Miner {
	start := time.UnixMilli(int64(c.Consensus.GenesisTimestamp)).Add(c.Consensus.TargetBlockSpacing)
	return miner.New(c.Consensus, coinbase, Logger()).WithClock(Clock(start, c.Consensus.TargetBlockSpacing))
}

// MineOn mines one block on parent.
func MineOn(t testing.TB, m *miner.Miner, chain core.HeaderReader, parent *header.Header, txs ...*core.Transaction) *core.Block {
	blk, err := m.Mine(context.Background(), chain, parent, txs)
	require.NoError(t, err)
	return blk
}

// MineChain mines n blocks on top of the current tip without storing them.
func (c *Chain) MineChain(t testing.TB, m *miner.Miner, n int) []*core.Block {
	blocks, err := m.MineChain(context.Background(), c.Shared.Snapshot(), n, nil)
	require.NoError(t, err)
	return blocks
}

// Extend mines n blocks on the tip and processes each of them.
func (c *Chain) Extend(t testing.TB, m *miner.Miner, n int) []*core.Block {
	blocks := c.MineChain(t, m, n)
	for _, blk := range blocks {
		tipChanged, err := c.Service.ProcessBlock(View(t, blk))
		require.NoError(t, err)
		require.True(t, tipChanged)
	}
	return blocks
}

// View returns the verified view of blk.
func View(t testing.TB, blk *core.Block) *core.BlockView {
	view, err := core.ViewOf(blk)
	require.NoError(t, err)
	return view
}

// Hex returns the hex encoding of blk.
func Hex(t testing.TB, blk *core.Block) string {
	raw, err := blk.Encode()
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}
