// Package core implements the chain service, shared state and block schema.
package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"boxer/core/header"
)

// ErrSchema marks bytes that do not match the block schema.
var ErrSchema = errors.New("block schema violation")

const (
	majorUint  = 0
	majorBytes = 2
	majorArray = 4

	addressLength = 20
)

// Block is the owned, encodable form of a block. Miners and tests build
// blocks with it; the submission path only ever sees BlockReader/BlockView.
type Block struct {
	_            struct{} `cbor:",toarray"`
	Header       header.Header
	Transactions []*Transaction
}

// Hash returns the block's hash (same as header hash).
func (b *Block) Hash() header.Hash {
	return b.Header.Hash()
}

// Encode serializes the block for storage/transmission.
func (b *Block) Encode() ([]byte, error) {
	return header.EncMode().Marshal(b)
}

var (
	decModeOnce sync.Once
	decMode     cbor.DecMode
)

func getDecMode() cbor.DecMode {
	decModeOnce.Do(func() {
		dm, err := cbor.DecOptions{
			IndefLength:     cbor.IndefLengthForbidden,
			MaxNestedLevels: 16,
		}.DecMode()
		if err != nil {
			panic(err)
		}
		decMode = dm
	})
	return decMode
}

// BlockReader is a handle over bytes that already passed VerifyBlock.
// The only way to obtain one is VerifyBlock, so a BlockView is never built
// from unchecked bytes.
type BlockReader struct {
	raw    []byte
	header []byte
	txs    [][]byte
}

// VerifyBlock checks that raw is a well-formed block encoding: a two item
// array holding a header of FieldCount typed items and an array of
// transaction arrays. Transaction contents are not inspected.
func VerifyBlock(raw []byte) (*BlockReader, error) {
	dm := getDecMode()
	if err := dm.Wellformed(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	items, err := splitArray(dm, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: block: %v", ErrSchema, err)
	}
	if len(items) != 2 {
		return nil, fmt.Errorf("%w: block has %d items, want 2", ErrSchema, len(items))
	}
	if err := verifyHeader(dm, items[0]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrSchema, err)
	}
	txs, err := splitArray(dm, items[1])
	if err != nil {
		return nil, fmt.Errorf("%w: transactions: %v", ErrSchema, err)
	}
	for i, tx := range txs {
		if major, _ := itemHead(tx); major != majorArray {
			return nil, fmt.Errorf("%w: transaction %d is not an array", ErrSchema, i)
		}
	}
	return &BlockReader{raw: raw, header: items[0], txs: txs}, nil
}

// header field kinds in encoding order
var headerLayout = [header.FieldCount]struct {
	major  byte
	minLen int
	maxLen int
}{
	{majorUint, 0, 0},                                  // version
	{majorUint, 0, 0},                                  // number
	{majorBytes, header.HashLength, header.HashLength}, // parent hash
	{majorUint, 0, 0},                                  // timestamp
	{majorBytes, 1, header.HashLength},                 // target
	{majorBytes, header.HashLength, header.HashLength}, // tx root
	{majorUint, 0, 0},                                  // nonce
}

func verifyHeader(dm cbor.DecMode, data []byte) error {
	fields, err := splitArray(dm, data)
	if err != nil {
		return err
	}
	if len(fields) != header.FieldCount {
		return fmt.Errorf("%d fields, want %d", len(fields), header.FieldCount)
	}
	for i, f := range fields {
		want := headerLayout[i]
		major, arg := itemHead(f)
		if major != want.major {
			return fmt.Errorf("field %d has major type %d, want %d", i, major, want.major)
		}
		if i == 0 && arg > 0xffffffff {
			return fmt.Errorf("version %d overflows", arg)
		}
		if want.major == majorBytes && (arg < uint64(want.minLen) || arg > uint64(want.maxLen)) {
			return fmt.Errorf("field %d has length %d, want %d..%d", i, arg, want.minLen, want.maxLen)
		}
	}
	return nil
}

// View derives the structured block over the verified bytes.
func (r *BlockReader) View() *BlockView {
	return newBlockView(r)
}

// Raw returns the verified bytes.
func (r *BlockReader) Raw() []byte {
	return r.raw
}

// BlockView is a read-only structured block backed by verified bytes.
type BlockView struct {
	raw    []byte
	header *header.Header
	hash   header.Hash
	txs    [][]byte
}

func newBlockView(r *BlockReader) *BlockView {
	var h header.Header
	// shape and types were checked by VerifyBlock
	if err := getDecMode().Unmarshal(r.header, &h); err != nil {
		panic(fmt.Sprintf("header of verified block failed to decode: %v", err))
	}
	return &BlockView{raw: r.raw, header: &h, hash: h.Hash(), txs: r.txs}
}

// Header returns the decoded header. Callers must not modify it.
func (v *BlockView) Header() *header.Header { return v.header }

// Hash returns the block hash.
func (v *BlockView) Hash() header.Hash { return v.hash }

// Number returns the block number.
func (v *BlockView) Number() uint64 { return v.header.Number }

// Raw returns the block encoding the view was built from.
func (v *BlockView) Raw() []byte { return v.raw }

// TransactionCount returns the number of transactions without decoding them.
func (v *BlockView) TransactionCount() int { return len(v.txs) }

// Transactions decodes the block body.
func (v *BlockView) Transactions() ([]*Transaction, error) {
	txs := make([]*Transaction, 0, len(v.txs))
	for i, raw := range v.txs {
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ViewOf encodes b and returns its verified view.
func ViewOf(b *Block) (*BlockView, error) {
	raw, err := b.Encode()
	if err != nil {
		return nil, err
	}
	r, err := VerifyBlock(raw)
	if err != nil {
		return nil, err
	}
	return r.View(), nil
}

// skipItem consumes one data item without copying it.
type skipItem struct{}

func (*skipItem) UnmarshalCBOR([]byte) error { return nil }

// splitArray returns sub-slices of data, one per item of the definite-length
// array it encodes.
func splitArray(dm cbor.DecMode, data []byte) ([][]byte, error) {
	major, n := itemHead(data)
	if major != majorArray {
		return nil, fmt.Errorf("major type %d, want array", major)
	}
	rest := data[headLength(data):]
	if n > uint64(len(rest)) {
		return nil, fmt.Errorf("array length %d exceeds %d remaining bytes", n, len(rest))
	}
	items := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		var s skipItem
		next, err := dm.UnmarshalFirst(rest, &s)
		if err != nil {
			return nil, fmt.Errorf("item %d: %v", i, err)
		}
		items = append(items, rest[:len(rest)-len(next)])
		rest = next
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(rest))
	}
	return items, nil
}

// itemHead reads the major type and argument of the first item in data.
// data must be well-formed and use definite lengths.
func itemHead(data []byte) (byte, uint64) {
	if len(data) == 0 {
		return 0xff, 0
	}
	major := data[0] >> 5
	ai := data[0] & 0x1f
	switch {
	case ai < 24:
		return major, uint64(ai)
	case ai == 24 && len(data) >= 2:
		return major, uint64(data[1])
	case ai == 25 && len(data) >= 3:
		return major, uint64(data[1])<<8 | uint64(data[2])
	case ai == 26 && len(data) >= 5:
		var v uint64
		for _, b := range data[1:5] {
			v = v<<8 | uint64(b)
		}
		return major, v
	case ai == 27 && len(data) >= 9:
		var v uint64
		for _, b := range data[1:9] {
			v = v<<8 | uint64(b)
		}
		return major, v
	}
	return 0xff, 0
}

func headLength(data []byte) int {
	switch ai := data[0] & 0x1f; {
	case ai < 24:
		return 1
	case ai == 24:
		return 2
	case ai == 25:
		return 3
	case ai == 26:
		return 5
	default:
		return 9
	}
}
