package core

import (
	"github.com/dgraph-io/badger/v4"

	"boxer/core/config"
	"boxer/core/header"
)

// Snapshot is an immutable view of the best chain at one tip. Header lookups
// by hash may also see blocks stored after the snapshot was taken; headers
// never change once stored.
type Snapshot struct {
	store     *BadgerStore
	consensus *config.Consensus
	tipHash   header.Hash
	tip       *header.Header
}

func newSnapshot(store *BadgerStore, consensus *config.Consensus, tipHash header.Hash, tip *header.Header) *Snapshot {
	return &Snapshot{store: store, consensus: consensus, tipHash: tipHash, tip: tip}
}

// TipHeader returns the best header. Callers must not modify it.
func (s *Snapshot) TipHeader() *header.Header { return s.tip }

// TipHash returns the best block hash.
func (s *Snapshot) TipHash() header.Hash { return s.tipHash }

// Consensus returns the consensus the snapshot was built under.
func (s *Snapshot) Consensus() *config.Consensus { return s.consensus }

// HeaderByHash returns any stored header, or nil.
func (s *Snapshot) HeaderByHash(hash header.Hash) *header.Header {
	if hash == s.tipHash {
		return s.tip
	}
	return s.store.HeaderByHash(hash)
}

// HeaderByNumber returns the canonical header at number, or nil when number
// is above the snapshot tip.
func (s *Snapshot) HeaderByNumber(number uint64) *header.Header {
	if number > s.tip.Number {
		return nil
	}
	if number == s.tip.Number {
		return s.tip
	}
	var hash header.Hash
	err := s.store.View(func(txn *badger.Txn) error {
		var err error
		hash, err = s.store.CanonicalHash(txn, number)
		return err
	})
	if err != nil {
		return nil
	}
	return s.HeaderByHash(hash)
}

// Balance returns the committed balance of addr.
func (s *Snapshot) Balance(addr []byte) (uint64, error) {
	return ReadBalance(s.store, addr)
}
