package core

import (
	"fmt"
	"math/big"
	"time"

	"boxer/core/config"
	"boxer/core/header"
)

// HeaderReader fetches any known header, canonical or not.
type HeaderReader interface {
	HeaderByHash(hash header.Hash) *header.Header
}

// Adjust scales last's target by the time the window [first, last] took
// relative to the expected spacing. The result never leaves [1, MaximumTarget].
func Adjust(first, last *header.Header, consensus *config.Consensus) (*big.Int, error) {
	if first == nil || last == nil {
		return big.NewInt(1), fmt.Errorf("adjust: nil header")
	}
	if last.Number <= first.Number {
		return last.TargetInt(), fmt.Errorf("adjust: empty window %d..%d", first.Number, last.Number)
	}

	// 1) Compute actual timespan
	var actual time.Duration
	if last.Timestamp > first.Timestamp {
		actual = time.Duration(last.Timestamp-first.Timestamp) * time.Millisecond
	}
	expected := time.Duration(last.Number-first.Number) * consensus.TargetBlockSpacing

	// 2) Clamp actual to [expected/MaxFactor, expected×MaxFactor]
	factor := time.Duration(consensus.MaxAdjustmentFactor)
	if factor < 1 {
		factor = 1
	}
	minSpan := expected / factor
	maxSpan := expected * factor
	if actual < minSpan {
		actual = minSpan
	} else if actual > maxSpan {
		actual = maxSpan
	}

	// 3) newT = oldT × actual / expected
	expectedMs := expected.Milliseconds()
	if expectedMs == 0 {
		expectedMs = 1
	}
	newT := new(big.Int).Mul(last.TargetInt(), big.NewInt(actual.Milliseconds()))
	newT.Div(newT, big.NewInt(expectedMs))

	if newT.Sign() <= 0 {
		newT.SetInt64(1)
	}
	if newT.Cmp(config.MaximumTarget) > 0 {
		newT.Set(config.MaximumTarget)
	}
	return newT, nil
}

// NextTarget returns the target a child of parent must carry. Ancestors are
// resolved through parent hashes, so it works for side branches too.
func NextTarget(chain HeaderReader, parent *header.Header, consensus *config.Consensus) (*big.Int, error) {
	interval := consensus.RetargetInterval
	number := parent.Number + 1
	if interval == 0 || number%interval != 0 {
		return parent.TargetInt(), nil
	}

	// Locate the first header in this window
	first := parent
	for i := uint64(1); i < interval && first.Number > 0; i++ {
		prev := chain.HeaderByHash(first.ParentHash)
		if prev == nil {
			return nil, fmt.Errorf("missing ancestor %s of block %d", first.ParentHash, first.Number)
		}
		first = prev
	}
	if first.Number == parent.Number {
		return parent.TargetInt(), nil
	}
	return Adjust(first, parent, consensus)
}
