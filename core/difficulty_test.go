package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxer/core/config"
	"boxer/core/header"
)

// mockChain resolves headers by hash.
type mockChain struct {
	headers map[header.Hash]*header.Header
}

func (m *mockChain) HeaderByHash(hash header.Hash) *header.Header {
	return m.headers[hash]
}

// buildHeaders links n+1 headers starting at number 0, spacing apart, all
// carrying target.
func buildHeaders(n uint64, spacing time.Duration, target int64) (*mockChain, *header.Header) {
	chain := &mockChain{headers: make(map[header.Hash]*header.Header)}
	var parent header.Hash
	var tip *header.Header
	base := uint64(1_700_000_000_000)
	for i := uint64(0); i <= n; i++ {
		h := &header.Header{
			Number:     i,
			ParentHash: parent,
			Timestamp:  base + i*uint64(spacing.Milliseconds()),
		}
		h.SetTarget(big.NewInt(target))
		parent = h.Hash()
		chain.headers[parent] = h
		tip = h
	}
	return chain, tip
}

func testConsensus(interval uint64) *config.Consensus {
	c := config.DefaultConsensus()
	c.RetargetInterval = interval
	c.TargetBlockSpacing = 10 * time.Minute
	return c
}

func TestDifficultyAdjust(t *testing.T) {
	// blocks every 5 minutes instead of 10
	c := testConsensus(2016)
	chain, parent := buildHeaders(2015, 5*time.Minute, 1000)

	newTarget, err := NextTarget(chain, parent, c)
	require.NoError(t, err)
	assert.Equal(t, int64(500), newTarget.Int64(), "target should halve when blocks come twice as fast")
}

func TestDifficultyAdjustSlowBlocks(t *testing.T) {
	c := testConsensus(2016)
	chain, parent := buildHeaders(2015, 20*time.Minute, 1000)

	newTarget, err := NextTarget(chain, parent, c)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), newTarget.Int64())
}

func TestDifficultyAdjustClamping(t *testing.T) {
	c := testConsensus(2016)
	chain, parent := buildHeaders(2015, time.Second, 1000)

	newTarget, err := NextTarget(chain, parent, c)
	require.NoError(t, err)
	assert.Equal(t, int64(250), newTarget.Int64(), "adjustment is clamped to MaxAdjustmentFactor")
}

func TestDifficultyOutsideRetargetBoundary(t *testing.T) {
	c := testConsensus(2016)
	chain, parent := buildHeaders(1000, time.Second, 1000)

	newTarget, err := NextTarget(chain, parent, c)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), newTarget.Int64())
}

func TestDifficultyMissingAncestor(t *testing.T) {
	c := testConsensus(16)
	chain, parent := buildHeaders(15, time.Minute, 1000)
	for hash, h := range chain.headers {
		if h.Number == 3 {
			delete(chain.headers, hash)
		}
	}

	_, err := NextTarget(chain, parent, c)
	require.Error(t, err)
}

func TestAdjustBounds(t *testing.T) {
	c := testConsensus(16)

	first := &header.Header{Number: 0, Timestamp: 0}
	last := &header.Header{Number: 15, Timestamp: 100_000_000}
	last.SetTarget(config.MaximumTarget)
	target, err := Adjust(first, last, c)
	require.NoError(t, err)
	assert.Equal(t, 0, target.Cmp(config.MaximumTarget), "target never exceeds the maximum")

	last = &header.Header{Number: 15, Timestamp: 1}
	last.SetTarget(big.NewInt(1))
	target, err = Adjust(first, last, c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), target.Int64(), "target never drops below one")

	_, err = Adjust(last, first, c)
	require.Error(t, err)
}
