// Package miner builds and seals blocks on top of a chain snapshot. The
// driver never mines; the mine command and tests use it to produce valid
// submissions.
package miner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"boxer/core"
	"boxer/core/config"
	"boxer/core/header"
	"boxer/core/storage"
)

// checkInterval is how many nonces are tried between context checks.
const checkInterval = 1 << 12

// Miner assembles block templates paying the subsidy to Coinbase.
type Miner struct {
	consensus *config.Consensus
	coinbase  []byte
	now       func() time.Time
	log       zerolog.Logger
}

// New returns a miner paying rewards to coinbase.
func New(consensus *config.Consensus, coinbase []byte, log zerolog.Logger) *Miner {
	return &Miner{
		consensus: consensus,
		coinbase:  coinbase,
		now:       time.Now,
		log:       log.With().Str("component", "miner").Logger(),
	}
}

// WithClock replaces the wall clock used for block timestamps.
func (m *Miner) WithClock(now func() time.Time) *Miner {
	m.now = now
	return m
}

// Build assembles an unsealed child of parent carrying a coinbase followed by
// txs. chain resolves ancestors for the target computation.
func (m *Miner) Build(chain core.HeaderReader, parent *header.Header, txs []*core.Transaction) (*core.Block, error) {
	target, err := core.NextTarget(chain, parent, m.consensus)
	if err != nil {
		return nil, fmt.Errorf("next target: %w", err)
	}
	number := parent.Number + 1
	body := make([]*core.Transaction, 0, len(txs)+1)
	body = append(body, core.NewCoinbaseTx(m.coinbase, m.consensus.Subsidy(number)))
	body = append(body, txs...)

	timestamp := uint64(m.now().UnixMilli())
	if timestamp <= parent.Timestamp {
		timestamp = parent.Timestamp + 1
	}
	blk := &core.Block{
		Header: header.Header{
			Version:    m.consensus.BlockVersion,
			Number:     number,
			ParentHash: parent.Hash(),
			Timestamp:  timestamp,
			TxRoot:     core.TxRoot(body),
		},
		Transactions: body,
	}
	blk.Header.SetTarget(target)
	return blk, nil
}

// Seal searches nonces until the header meets its target or ctx ends.
func (m *Miner) Seal(ctx context.Context, blk *core.Block) error {
	hdr := &blk.Header
	hdr.Nonce = rand.Uint64()
	start := time.Now()
	for tries := uint64(1); ; tries++ {
		if hdr.CheckProofOfWork() {
			m.log.Debug().
				Uint64("number", hdr.Number).
				Uint64("tries", tries).
				Dur("elapsed", time.Since(start)).
				Msg("block sealed")
			return nil
		}
		hdr.Nonce++
		if tries%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
}

// Mine builds and seals one child of parent.
func (m *Miner) Mine(ctx context.Context, chain core.HeaderReader, parent *header.Header, txs []*core.Transaction) (*core.Block, error) {
	blk, err := m.Build(chain, parent, txs)
	if err != nil {
		return nil, err
	}
	if err := m.Seal(ctx, blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// MineChain mines n consecutive blocks on top of the snapshot tip. txs go
// into the first block only.
func (m *Miner) MineChain(ctx context.Context, snapshot storage.Reader, n int, txs []*core.Transaction) ([]*core.Block, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative block count %d", n)
	}
	overlay := &pendingHeaders{base: snapshot, pending: make(map[header.Hash]*header.Header)}
	parent := snapshot.TipHeader()
	blocks := make([]*core.Block, 0, n)
	for i := 0; i < n; i++ {
		blk, err := m.Mine(ctx, overlay, parent, txs)
		if err != nil {
			return blocks, err
		}
		txs = nil
		overlay.pending[blk.Hash()] = &blk.Header
		parent = &blk.Header
		blocks = append(blocks, blk)
		m.log.Info().Uint64("number", blk.Header.Number).Str("hash", blk.Hash().String()).Msg("block mined")
	}
	return blocks, nil
}

// pendingHeaders resolves headers mined but not yet stored.
type pendingHeaders struct {
	base    core.HeaderReader
	pending map[header.Hash]*header.Header
}

func (p *pendingHeaders) HeaderByHash(hash header.Hash) *header.Header {
	if h, ok := p.pending[hash]; ok {
		return h
	}
	return p.base.HeaderByHash(hash)
}
