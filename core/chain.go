package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"boxer/core/header"
	"boxer/core/storage"
)

var (
	// ErrUnknownParent is returned for blocks whose parent is not stored.
	ErrUnknownParent = errors.New("unknown parent")
	// ErrInvalidBlock wraps every consensus rule a block breaks.
	ErrInvalidBlock = errors.New("invalid block")
)

// HeaderVerifier checks a header against a snapshot before its block is
// stored. The validator package provides the consensus implementation.
type HeaderVerifier interface {
	VerifyHeader(snapshot storage.Reader, hdr *header.Header) error
}

// ChainService orders blocks into the best chain and owns every write to the
// store after startup.
type ChainService struct {
	mu       sync.Mutex
	shared   *Shared
	verifier HeaderVerifier
	log      zerolog.Logger
}

// NewChainService returns a chain service writing through shared.
func NewChainService(shared *Shared, verifier HeaderVerifier, log zerolog.Logger) *ChainService {
	return &ChainService{
		shared:   shared,
		verifier: verifier,
		log:      log.With().Str("component", "chain").Logger(),
	}
}

// ProcessBlock validates block and attaches it to the block tree. It reports
// whether the best chain changed. A block that is already stored, or that
// lands on a branch no longer than the best chain, returns false and no
// error.
func (c *ChainService) ProcessBlock(block *BlockView) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	store := c.shared.Store()
	snap := c.shared.Snapshot()
	hash := block.Hash()
	hdr := block.Header()

	var known bool
	err := store.View(func(txn *badger.Txn) error {
		var err error
		known, err = store.HasBlock(txn, hash)
		return err
	})
	if err != nil {
		return false, err
	}
	if known {
		c.log.Debug().Uint64("number", hdr.Number).Str("hash", hash.String()).Msg("block already known")
		return false, nil
	}

	if snap.HeaderByHash(hdr.ParentHash) == nil {
		return false, fmt.Errorf("%w %s of block %d", ErrUnknownParent, hdr.ParentHash, hdr.Number)
	}
	if err := c.verifier.VerifyHeader(snap, hdr); err != nil {
		return false, fmt.Errorf("%w: header: %v", ErrInvalidBlock, err)
	}
	txs, err := c.checkBody(block)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}

	switch {
	case hdr.ParentHash == snap.TipHash():
		err = store.Update(func(txn *badger.Txn) error {
			if err := c.applyBlock(txn, hash, hdr, block.Raw(), txs); err != nil {
				return err
			}
			return store.SetTip(txn, hash)
		})
		if err != nil {
			return false, err
		}
		c.advance(hash, hdr, []*BlockView{block})
		c.log.Info().Uint64("number", hdr.Number).Str("hash", hash.String()).Int("txs", len(txs)).Msg("block accepted")
		return true, nil

	case hdr.Number <= snap.TipHeader().Number:
		err = store.Update(func(txn *badger.Txn) error {
			return store.PutBlock(txn, hash, hdr, block.Raw())
		})
		if err != nil {
			return false, err
		}
		c.log.Info().Uint64("number", hdr.Number).Str("hash", hash.String()).Msg("block stored on side branch")
		return false, nil

	default:
		var attached []*BlockView
		err = store.Update(func(txn *badger.Txn) error {
			var err error
			attached, err = c.reorg(txn, snap, block, txs)
			return err
		})
		if err != nil {
			return false, err
		}
		c.advance(hash, hdr, attached)
		c.log.Warn().
			Uint64("number", hdr.Number).
			Str("hash", hash.String()).
			Uint64("old_number", snap.TipHeader().Number).
			Str("old_hash", snap.TipHash().String()).
			Int("attached", len(attached)).
			Msg("chain reorganized")
		return true, nil
	}
}

// checkBody decodes the transactions and checks the rules that need no state.
func (c *ChainService) checkBody(block *BlockView) ([]*Transaction, error) {
	consensus := c.shared.Consensus()
	hdr := block.Header()
	if n := block.TransactionCount(); n > consensus.MaxBlockTransactions {
		return nil, fmt.Errorf("%d transactions, limit %d", n, consensus.MaxBlockTransactions)
	}
	txs, err := block.Transactions()
	if err != nil {
		return nil, err
	}
	if root := TxRoot(txs); root != hdr.TxRoot {
		return nil, fmt.Errorf("tx root %s, header has %s", root, hdr.TxRoot)
	}
	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return nil, errors.New("first transaction is not a coinbase")
	}
	for i, tx := range txs[1:] {
		if tx.IsCoinbase() {
			return nil, fmt.Errorf("transaction %d is a second coinbase", i+1)
		}
	}
	if want := consensus.Subsidy(hdr.Number); txs[0].Amount != want {
		return nil, fmt.Errorf("coinbase pays %d, subsidy is %d", txs[0].Amount, want)
	}
	return txs, nil
}

// applyBlock executes txs on the current state, stores the block with its undo
// journal and makes it canonical at its number.
func (c *ChainService) applyBlock(txn *badger.Txn, hash header.Hash, hdr *header.Header, raw []byte, txs []*Transaction) error {
	store := c.shared.Store()
	state := NewState(txn)
	for i, tx := range txs {
		if err := state.ExecuteTransaction(tx); err != nil {
			return fmt.Errorf("%w: block %d transaction %d: %v", ErrInvalidBlock, hdr.Number, i, err)
		}
	}
	journal, err := state.Journal()
	if err != nil {
		return err
	}
	if err := store.PutBlock(txn, hash, hdr, raw); err != nil {
		return err
	}
	if err := store.PutUndo(txn, hash, journal); err != nil {
		return err
	}
	return store.SetCanonical(txn, hdr.Number, hash)
}

// reorg switches the best chain to the branch ending in block. It returns the
// newly attached blocks in ascending order.
func (c *ChainService) reorg(txn *badger.Txn, snap *Snapshot, block *BlockView, txs []*Transaction) ([]*BlockView, error) {
	store := c.shared.Store()

	// collect stored side blocks back to the fork point
	var branch []*BlockView
	cursor := block.Header().ParentHash
	var fork *header.Header
	for {
		hdr, err := store.GetHeader(txn, cursor)
		if err != nil {
			return nil, err
		}
		canonical, err := store.CanonicalHash(txn, hdr.Number)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil && canonical == cursor {
			fork = hdr
			break
		}
		raw, err := store.GetBlock(txn, cursor)
		if err != nil {
			return nil, err
		}
		r, err := VerifyBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("stored block %s: %w", cursor, err)
		}
		branch = append(branch, r.View())
		cursor = hdr.ParentHash
	}
	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}

	// unwind the old best chain
	for n := snap.TipHeader().Number; n > fork.Number; n-- {
		h, err := store.CanonicalHash(txn, n)
		if err != nil {
			return nil, err
		}
		journal, err := store.GetUndo(txn, h)
		if err != nil {
			return nil, err
		}
		if err := Revert(txn, journal); err != nil {
			return nil, fmt.Errorf("revert block %d: %w", n, err)
		}
		c.log.Debug().Uint64("number", n).Str("hash", h.String()).Msg("block reverted")
	}

	// every number up to the new tip is rewritten, so stale canonical
	// entries of the old chain are overwritten
	for _, b := range branch {
		btxs, err := b.Transactions()
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidBlock, b.Number(), err)
		}
		if err := c.applyBlock(txn, b.Hash(), b.Header(), b.Raw(), btxs); err != nil {
			return nil, err
		}
	}
	if err := c.applyBlock(txn, block.Hash(), block.Header(), block.Raw(), txs); err != nil {
		return nil, err
	}
	if err := store.SetTip(txn, block.Hash()); err != nil {
		return nil, err
	}
	return append(branch, block), nil
}

// advance publishes the new snapshot, then announces attached in order.
func (c *ChainService) advance(tipHash header.Hash, tip *header.Header, attached []*BlockView) {
	c.shared.setSnapshot(newSnapshot(c.shared.Store(), c.shared.Consensus(), tipHash, tip))
	for _, b := range attached {
		c.shared.NotifyController().NotifyNewBlock(b)
	}
}

// Close stops the notify controller; every subscription's Err() closes.
func (c *ChainService) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared.NotifyController().Stop()
	return nil
}
