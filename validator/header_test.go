package validator_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxer/core"
	"boxer/core/config"
	"boxer/core/header"
	"boxer/miner"
	"boxer/utils/unittest"
	"boxer/validator"
)

// dummyDB is a storage.Reader over a fixed set of headers.
type dummyDB struct {
	hdrs map[header.Hash]*header.Header
	tip  *header.Header
}

func newDummyDB(genesis *header.Header) *dummyDB {
	return &dummyDB{hdrs: map[header.Hash]*header.Header{genesis.Hash(): genesis}, tip: genesis}
}

func (d *dummyDB) add(h *header.Header) {
	d.hdrs[h.Hash()] = h
	if h.Number > d.tip.Number {
		d.tip = h
	}
}

func (d *dummyDB) HeaderByHash(hash header.Hash) *header.Header { return d.hdrs[hash] }

func (d *dummyDB) HeaderByNumber(number uint64) *header.Header {
	for _, h := range d.hdrs {
		if h.Number == number {
			return h
		}
	}
	return nil
}

func (d *dummyDB) TipHeader() *header.Header { return d.tip }

func setup(t *testing.T, consensus *config.Consensus) (*dummyDB, *miner.Miner) {
	genesis := core.GenesisBlock(consensus)
	start := time.UnixMilli(int64(consensus.GenesisTimestamp)).Add(consensus.TargetBlockSpacing)
	m := miner.New(consensus, unittest.Address(t), unittest.Logger()).
		WithClock(unittest.Clock(start, consensus.TargetBlockSpacing))
	return newDummyDB(&genesis.Header), m
}

func TestVerifyHeader(t *testing.T) {
	consensus := unittest.Consensus()
	db, m := setup(t, consensus)

	blk, err := m.Mine(context.Background(), db, db.TipHeader(), nil)
	require.NoError(t, err)
	hdr := blk.Header

	verify := func(h header.Header) error {
		return validator.NewHeaderVerifier(db, consensus).Verify(validator.NewHeaderResolver(&h, db))
	}
	require.NoError(t, verify(hdr))
	require.NoError(t, validator.NewChainVerifier(consensus).VerifyHeader(db, &hdr))

	t.Run("unknown parent", func(t *testing.T) {
		h := hdr
		h.ParentHash[0] ^= 0xff
		assert.ErrorIs(t, verify(h), validator.ErrUnknownParent)
	})
	t.Run("number gap", func(t *testing.T) {
		h := hdr
		h.Number = 2
		assert.ErrorIs(t, verify(h), validator.ErrNumber)
	})
	t.Run("version", func(t *testing.T) {
		h := hdr
		h.Version = consensus.BlockVersion + 1
		assert.ErrorIs(t, verify(h), validator.ErrVersion)
	})
	t.Run("target", func(t *testing.T) {
		h := hdr
		h.SetTarget(big.NewInt(12345))
		assert.ErrorIs(t, verify(h), validator.ErrTarget)
	})
	t.Run("timestamp not after parent", func(t *testing.T) {
		h := hdr
		h.Timestamp = db.TipHeader().Timestamp
		assert.ErrorIs(t, verify(h), validator.ErrTimestamp)
	})
	t.Run("timestamp in the future", func(t *testing.T) {
		h := hdr
		h.Timestamp = uint64(time.Now().Add(consensus.MaxFutureDrift + time.Minute).UnixMilli())
		assert.ErrorIs(t, verify(h), validator.ErrTimestamp)
	})
}

func TestVerifyHeaderProofOfWork(t *testing.T) {
	consensus := unittest.Consensus()
	consensus.GenesisTarget = big.NewInt(1)
	db, m := setup(t, consensus)

	blk, err := m.Build(db, db.TipHeader(), nil)
	require.NoError(t, err)
	err = validator.NewHeaderVerifier(db, consensus).Verify(validator.NewHeaderResolver(&blk.Header, db))
	assert.ErrorIs(t, err, validator.ErrProofOfWork)
}

func TestVerifyHeaderSideBranch(t *testing.T) {
	consensus := unittest.Consensus()
	db, m := setup(t, consensus)
	genesis := db.TipHeader()

	a, err := m.Mine(context.Background(), db, genesis, nil)
	require.NoError(t, err)
	db.add(&a.Header)
	b, err := m.Mine(context.Background(), db, &a.Header, nil)
	require.NoError(t, err)
	db.add(&b.Header)

	// a sibling of a is checked against its own parent, not the tip
	sibling, err := m.Mine(context.Background(), db, genesis, nil)
	require.NoError(t, err)
	err = validator.NewHeaderVerifier(db, consensus).Verify(validator.NewHeaderResolver(&sibling.Header, db))
	require.NoError(t, err)
}

func TestVerifyHeaderRetarget(t *testing.T) {
	consensus := unittest.Consensus()
	consensus.RetargetInterval = 4
	consensus.GenesisTarget = new(big.Int).Rsh(config.MaximumTarget, 8)
	db, m := setup(t, consensus)

	parent := db.TipHeader()
	for i := 0; i < 3; i++ {
		blk, err := m.Mine(context.Background(), db, parent, nil)
		require.NoError(t, err)
		db.add(&blk.Header)
		parent = &blk.Header
	}

	// number 4 starts a new window; blocks came exactly on schedule
	blk, err := m.Build(db, parent, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, blk.Header.TargetInt().Cmp(consensus.GenesisTarget))

	blk.Header.SetTarget(new(big.Int).Rsh(consensus.GenesisTarget, 1))
	err = validator.NewHeaderVerifier(db, consensus).Verify(validator.NewHeaderResolver(&blk.Header, db))
	assert.ErrorIs(t, err, validator.ErrTarget)
}
