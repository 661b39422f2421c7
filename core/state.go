package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"boxer/core/header"
)

var (
	prefixBalance = []byte("s:bal:")
	prefixNonce   = []byte("s:nonce:")
)

// undoEntry records the value a key held before a block touched it.
type undoEntry struct {
	_       struct{} `cbor:",toarray"`
	Key     []byte
	Existed bool
	Prev    []byte
}

// State applies transactions inside one badger transaction and journals
// every first write so the block can be reverted.
type State struct {
	txn     *badger.Txn
	journal []undoEntry
	touched map[string]bool
}

// NewState wraps txn. Reads see the transaction's own pending writes.
func NewState(txn *badger.Txn) *State {
	return &State{txn: txn, touched: make(map[string]bool)}
}

func stateKey(prefix, addr []byte) []byte {
	return append(append([]byte{}, prefix...), addr...)
}

func (s *State) get(key []byte) ([]byte, error) {
	item, err := s.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *State) set(key, val []byte) error {
	if !s.touched[string(key)] {
		prev, err := s.get(key)
		if err != nil {
			return err
		}
		s.touched[string(key)] = true
		s.journal = append(s.journal, undoEntry{Key: key, Existed: prev != nil, Prev: prev})
	}
	return s.txn.Set(key, val)
}

func (s *State) getUint(key []byte) (uint64, error) {
	val, err := s.get(key)
	if err != nil || len(val) != 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

func (s *State) setUint(key []byte, v uint64) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, v)
	return s.set(key, val)
}

// GetBalance returns the balance for the given address.
func (s *State) GetBalance(addr []byte) (uint64, error) {
	return s.getUint(stateKey(prefixBalance, addr))
}

// GetNonce returns the next expected nonce for the given address.
func (s *State) GetNonce(addr []byte) (uint64, error) {
	return s.getUint(stateKey(prefixNonce, addr))
}

// ExecuteTransaction verifies a transaction against the current state and
// applies it.
func (s *State) ExecuteTransaction(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("transaction verification failed: %w", err)
	}

	toKey := stateKey(prefixBalance, tx.To)
	toBalance, err := s.getUint(toKey)
	if err != nil {
		return err
	}
	if toBalance+tx.Amount < toBalance {
		return errors.New("recipient balance overflow")
	}

	if tx.IsCoinbase() {
		return s.setUint(toKey, toBalance+tx.Amount)
	}

	// Check nonce
	nonceKey := stateKey(prefixNonce, tx.From)
	expectedNonce, err := s.getUint(nonceKey)
	if err != nil {
		return err
	}
	if tx.Nonce != expectedNonce {
		return fmt.Errorf("invalid nonce: expected %d, got %d", expectedNonce, tx.Nonce)
	}

	// Check balance
	fromKey := stateKey(prefixBalance, tx.From)
	balance, err := s.getUint(fromKey)
	if err != nil {
		return err
	}
	if balance < tx.Amount {
		return fmt.Errorf("insufficient balance: have %d, need %d", balance, tx.Amount)
	}

	if err := s.setUint(fromKey, balance-tx.Amount); err != nil {
		return fmt.Errorf("failed to subtract from sender: %w", err)
	}
	// re-read: sender and recipient may be the same account
	toBalance, err = s.getUint(toKey)
	if err != nil {
		return err
	}
	if err := s.setUint(toKey, toBalance+tx.Amount); err != nil {
		return fmt.Errorf("failed to add to recipient: %w", err)
	}
	return s.setUint(nonceKey, expectedNonce+1)
}

// Journal returns the encoded undo journal of everything applied so far.
func (s *State) Journal() ([]byte, error) {
	return header.EncMode().Marshal(s.journal)
}

// Revert restores every key recorded in an encoded journal.
func Revert(txn *badger.Txn, journal []byte) error {
	var entries []undoEntry
	if err := cbor.Unmarshal(journal, &entries); err != nil {
		return fmt.Errorf("decode undo journal: %w", err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		if !e.Existed {
			err = txn.Delete(e.Key)
		} else {
			err = txn.Set(e.Key, e.Prev)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadBalance returns the committed balance of addr.
func ReadBalance(store *BadgerStore, addr []byte) (uint64, error) {
	var balance uint64
	err := store.View(func(txn *badger.Txn) error {
		var err error
		balance, err = NewState(txn).GetBalance(addr)
		return err
	})
	return balance, err
}

// ReadNonce returns the committed next nonce of addr.
func ReadNonce(store *BadgerStore, addr []byte) (uint64, error) {
	var nonce uint64
	err := store.View(func(txn *badger.Txn) error {
		var err error
		nonce, err = NewState(txn).GetNonce(addr)
		return err
	})
	return nonce, err
}
