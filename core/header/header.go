// Package header defines the canonical block header.
package header

import (
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// HashLength is the size of every hash on the chain.
const HashLength = 32

// FieldCount is the number of items in an encoded header array.
const FieldCount = 7

// Hash is a blake2b-256 digest.
type Hash [HashLength]byte

// String returns the lowercase hex form without prefix.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Sum256 hashes data with blake2b-256.
func Sum256(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// Header is encoded as a CBOR array in field order.
type Header struct {
	_          struct{} `cbor:",toarray"`
	Version    uint32
	Number     uint64
	ParentHash Hash
	Timestamp  uint64 // unix milliseconds
	Target     []byte // big-endian, at most 32 bytes
	TxRoot     Hash
	Nonce      uint64
}

var (
	encModeOnce sync.Once
	encMode     cbor.EncMode
)

// EncMode is the deterministic encoding used for everything that gets hashed.
func EncMode() cbor.EncMode {
	encModeOnce.Do(func() {
		opts := cbor.CoreDetEncOptions()
		opts.NilContainers = cbor.NilContainerAsEmpty
		em, err := opts.EncMode()
		if err != nil {
			panic(err)
		}
		encMode = em
	})
	return encMode
}

// Encode returns the canonical encoding of the header.
func (h *Header) Encode() ([]byte, error) {
	return EncMode().Marshal(h)
}

// Decode parses a header encoding.
func Decode(data []byte) (*Header, error) {
	var h Header
	if err := cbor.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Hash returns the blake2b-256 of the canonical encoding.
func (h *Header) Hash() Hash {
	data, err := h.Encode()
	if err != nil {
		// a Header has no field the encoder can reject
		panic(err)
	}
	return Sum256(data)
}

// TargetInt returns the target as an integer.
func (h *Header) TargetInt() *big.Int {
	return new(big.Int).SetBytes(h.Target)
}

// SetTarget stores t in big-endian form.
func (h *Header) SetTarget(t *big.Int) {
	h.Target = t.Bytes()
}

// CheckProofOfWork reports whether the header hash, read as a big-endian
// integer, does not exceed the header target.
func (h *Header) CheckProofOfWork() bool {
	hash := h.Hash()
	return new(big.Int).SetBytes(hash[:]).Cmp(h.TargetInt()) <= 0
}
