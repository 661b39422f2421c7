package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"boxer/core/header"
)

const headerCacheSize = 4096

var (
	keyTip          = []byte("chain:tip")
	prefixBlock     = []byte("b:")
	prefixHeader    = []byte("h:")
	prefixCanonical = []byte("n:")
	prefixUndo      = []byte("u:")
)

// ErrNotFound is returned for missing blocks and headers.
var ErrNotFound = errors.New("not found")

// BadgerStore persists blocks, headers, the canonical index and account state.
type BadgerStore struct {
	db      *badger.DB
	headers *lru.Cache[header.Hash, *header.Header]
}

// OpenBadgerStore opens (or creates) the store under dataDir.
func OpenBadgerStore(dataDir string, readOnly bool) (*BadgerStore, error) {
	dbPath := filepath.Join(dataDir, "badger")
	return openBadger(badger.DefaultOptions(dbPath).WithLogger(nil).WithReadOnly(readOnly))
}

// OpenInMemoryStore returns a store that lives only in memory.
func OpenInMemoryStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[header.Hash, *header.Header](headerCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BadgerStore{db: db, headers: cache}, nil
}

func hashKey(prefix []byte, h header.Hash) []byte {
	return append(append([]byte{}, prefix...), h[:]...)
}

func numberKey(n uint64) []byte {
	key := make([]byte, len(prefixCanonical)+8)
	copy(key, prefixCanonical)
	binary.BigEndian.PutUint64(key[len(prefixCanonical):], n)
	return key
}

// View runs fn in a read-only transaction.
func (s *BadgerStore) View(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// Update runs fn in a read-write transaction committed atomically.
func (s *BadgerStore) Update(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

// PutBlock stores the raw block and its header. It does not touch the
// canonical index.
func (s *BadgerStore) PutBlock(txn *badger.Txn, hash header.Hash, hdr *header.Header, raw []byte) error {
	hdrBytes, err := hdr.Encode()
	if err != nil {
		return err
	}
	if err := txn.Set(hashKey(prefixBlock, hash), raw); err != nil {
		return err
	}
	return txn.Set(hashKey(prefixHeader, hash), hdrBytes)
}

// HasBlock reports whether a block with the given hash is stored.
func (s *BadgerStore) HasBlock(txn *badger.Txn, hash header.Hash) (bool, error) {
	_, err := txn.Get(hashKey(prefixBlock, hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetBlock returns the raw encoding of a stored block.
func (s *BadgerStore) GetBlock(txn *badger.Txn, hash header.Hash) ([]byte, error) {
	item, err := txn.Get(hashKey(prefixBlock, hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("block %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// GetHeader returns a stored header, using the cache first.
func (s *BadgerStore) GetHeader(txn *badger.Txn, hash header.Hash) (*header.Header, error) {
	if h, ok := s.headers.Get(hash); ok {
		return h, nil
	}
	item, err := txn.Get(hashKey(prefixHeader, hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("header %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var h *header.Header
	err = item.Value(func(val []byte) error {
		h, err = header.Decode(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// HeaderByHash reads a committed header; nil when missing. Only committed
// headers enter the cache.
func (s *BadgerStore) HeaderByHash(hash header.Hash) *header.Header {
	var h *header.Header
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = s.GetHeader(txn, hash)
		return err
	})
	if err != nil {
		return nil
	}
	s.headers.Add(hash, h)
	return h
}

// SetCanonical points number at hash in the canonical index.
func (s *BadgerStore) SetCanonical(txn *badger.Txn, number uint64, hash header.Hash) error {
	return txn.Set(numberKey(number), hash[:])
}

// CanonicalHash returns the canonical hash at number.
func (s *BadgerStore) CanonicalHash(txn *badger.Txn, number uint64) (header.Hash, error) {
	var h header.Hash
	item, err := txn.Get(numberKey(number))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return h, fmt.Errorf("canonical block %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return h, err
	}
	err = item.Value(func(val []byte) error {
		copy(h[:], val)
		return nil
	})
	return h, err
}

// SetTip records the best block hash.
func (s *BadgerStore) SetTip(txn *badger.Txn, hash header.Hash) error {
	return txn.Set(keyTip, hash[:])
}

// GetTip returns the best block hash, or ErrNotFound on an empty store.
func (s *BadgerStore) GetTip(txn *badger.Txn) (header.Hash, error) {
	var h header.Hash
	item, err := txn.Get(keyTip)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return h, fmt.Errorf("tip: %w", ErrNotFound)
	}
	if err != nil {
		return h, err
	}
	err = item.Value(func(val []byte) error {
		copy(h[:], val)
		return nil
	})
	return h, err
}

// PutUndo stores the state journal needed to revert a block.
func (s *BadgerStore) PutUndo(txn *badger.Txn, hash header.Hash, journal []byte) error {
	return txn.Set(hashKey(prefixUndo, hash), journal)
}

// GetUndo returns the state journal of a block.
func (s *BadgerStore) GetUndo(txn *badger.Txn, hash header.Hash) ([]byte, error) {
	item, err := txn.Get(hashKey(prefixUndo, hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("undo %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
