package core

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"boxer/core/config"
	"boxer/core/header"
)

// ErrGenesisMismatch is returned when a store was initialized under a
// different consensus.
var ErrGenesisMismatch = errors.New("stored genesis does not match consensus")

// Shared is the long-lived node state handed to every component: the store,
// the consensus, the current best-chain snapshot and the notify controller.
type Shared struct {
	store       *BadgerStore
	consensus   *config.Consensus
	notify      *NotifyController
	snapshot    atomic.Pointer[Snapshot]
	genesisHash header.Hash
	log         zerolog.Logger
}

// ErrUninitialized is returned when a read-only store holds no chain.
var ErrUninitialized = errors.New("store holds no chain")

// NewShared loads the best chain from store, writing the genesis block first
// when the store is empty.
func NewShared(store *BadgerStore, consensus *config.Consensus, log zerolog.Logger) (*Shared, error) {
	return openShared(store, consensus, log, false)
}

// LoadShared loads the best chain from store without writing to it. The store
// may be read-only; an empty store yields ErrUninitialized.
func LoadShared(store *BadgerStore, consensus *config.Consensus, log zerolog.Logger) (*Shared, error) {
	return openShared(store, consensus, log, true)
}

func openShared(store *BadgerStore, consensus *config.Consensus, log zerolog.Logger, readOnly bool) (*Shared, error) {
	genesis := GenesisBlock(consensus)
	raw, err := genesis.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode genesis: %w", err)
	}
	genesisHash := genesis.Hash()

	s := &Shared{
		store:       store,
		consensus:   consensus,
		notify:      NewNotifyController(log),
		genesisHash: genesisHash,
		log:         log.With().Str("component", "shared").Logger(),
	}

	var tipHash header.Hash
	var tip *header.Header
	load := func(txn *badger.Txn) error {
		stored, err := store.CanonicalHash(txn, 0)
		if errors.Is(err, ErrNotFound) {
			if readOnly {
				return ErrUninitialized
			}
			if err := store.PutBlock(txn, genesisHash, &genesis.Header, raw); err != nil {
				return err
			}
			if err := store.SetCanonical(txn, 0, genesisHash); err != nil {
				return err
			}
			if err := store.SetTip(txn, genesisHash); err != nil {
				return err
			}
			s.log.Info().Str("hash", genesisHash.String()).Msg("genesis block written")
			tipHash, tip = genesisHash, &genesis.Header
			return nil
		}
		if err != nil {
			return err
		}
		if stored != genesisHash {
			return fmt.Errorf("%w: have %s, want %s", ErrGenesisMismatch, stored, genesisHash)
		}
		if tipHash, err = store.GetTip(txn); err != nil {
			return err
		}
		tip, err = store.GetHeader(txn, tipHash)
		return err
	}
	if readOnly {
		err = store.View(load)
	} else {
		err = store.Update(load)
	}
	if err != nil {
		return nil, err
	}

	s.setSnapshot(newSnapshot(store, consensus, tipHash, tip))
	s.log.Info().
		Uint64("number", tip.Number).
		Str("hash", tipHash.String()).
		Bool("read_only", readOnly).
		Msg("chain loaded")
	return s, nil
}

// Snapshot returns the current best-chain snapshot.
func (s *Shared) Snapshot() *Snapshot { return s.snapshot.Load() }

func (s *Shared) setSnapshot(snap *Snapshot) { s.snapshot.Store(snap) }

// Consensus returns the consensus parameters.
func (s *Shared) Consensus() *config.Consensus { return s.consensus }

// Store returns the underlying block store.
func (s *Shared) Store() *BadgerStore { return s.store }

// NotifyController returns the new-block bus.
func (s *Shared) NotifyController() *NotifyController { return s.notify }

// SubscribeNewBlock registers a named new-block subscriber.
func (s *Shared) SubscribeNewBlock(name string) *NewBlockSubscription {
	return s.notify.SubscribeNewBlock(name)
}

// GenesisHash returns the hash of the consensus genesis block.
func (s *Shared) GenesisHash() header.Hash { return s.genesisHash }
