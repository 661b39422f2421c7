package miner_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxer/core"
	"boxer/miner"
	"boxer/utils/unittest"
)

func TestBuild(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	coinbase := unittest.Address(t)
	key := unittest.Key(t)
	tx := core.NewTx(core.AddressFromKey(key), coinbase, 1, 0)
	require.NoError(t, tx.Sign(key))

	snap := chain.Shared.Snapshot()
	blk, err := chain.Miner(coinbase).Build(snap, snap.TipHeader(), []*core.Transaction{tx})
	require.NoError(t, err)

	hdr := blk.Header
	assert.Equal(t, uint64(1), hdr.Number)
	assert.Equal(t, snap.TipHash(), hdr.ParentHash)
	assert.Greater(t, hdr.Timestamp, snap.TipHeader().Timestamp)
	assert.Equal(t, 0, hdr.TargetInt().Cmp(chain.Consensus.GenesisTarget))
	require.Len(t, blk.Transactions, 2)
	assert.True(t, blk.Transactions[0].IsCoinbase())
	assert.Equal(t, chain.Consensus.Subsidy(1), blk.Transactions[0].Amount)
	assert.Equal(t, coinbase, blk.Transactions[0].To)
	assert.Equal(t, core.TxRoot(blk.Transactions), hdr.TxRoot)
}

func TestBuildTimestampFollowsParent(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	// a clock stuck before genesis
	m := miner.New(chain.Consensus, unittest.Address(t), unittest.Logger()).
		WithClock(func() time.Time { return time.UnixMilli(0) })

	snap := chain.Shared.Snapshot()
	blk, err := m.Build(snap, snap.TipHeader(), nil)
	require.NoError(t, err)
	assert.Equal(t, snap.TipHeader().Timestamp+1, blk.Header.Timestamp)
}

func TestSealHonorsContext(t *testing.T) {
	consensus := unittest.Consensus()
	consensus.GenesisTarget = big.NewInt(1)
	chain := unittest.NewChain(t, consensus)

	snap := chain.Shared.Snapshot()
	blk, err := chain.Miner(unittest.Address(t)).Build(snap, snap.TipHeader(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	unittest.RequireReturnsBefore(t, func() {
		err = chain.Miner(unittest.Address(t)).Seal(ctx, blk)
	}, 5*time.Second, "sealing an impossible target should stop on cancel")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMineChain(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	blocks := chain.MineChain(t, chain.Miner(unittest.Address(t)), 4)
	require.Len(t, blocks, 4)

	parent := chain.Shared.Snapshot().TipHash()
	for i, blk := range blocks {
		assert.Equal(t, uint64(i+1), blk.Header.Number)
		assert.Equal(t, parent, blk.Header.ParentHash)
		assert.True(t, blk.Header.CheckProofOfWork())
		parent = blk.Hash()
	}
	assert.Equal(t, uint64(0), chain.Shared.Snapshot().TipHeader().Number, "mined blocks are not stored")

	for _, blk := range blocks {
		tipChanged, err := chain.Service.ProcessBlock(unittest.View(t, blk))
		require.NoError(t, err)
		assert.True(t, tipChanged)
	}
}

func TestMineChainRejectsNegativeCount(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	m := chain.Miner(unittest.Address(t))

	blocks, err := m.MineChain(context.Background(), chain.Shared.Snapshot(), -1, nil)
	require.Error(t, err)
	assert.Empty(t, blocks)

	blocks, err = m.MineChain(context.Background(), chain.Shared.Snapshot(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
