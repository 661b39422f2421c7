package core

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"boxer/core/header"
)

// Transaction is a value transfer. An empty From marks the coinbase.
type Transaction struct {
	_         struct{} `cbor:",toarray"`
	From      []byte   // sender address, empty for coinbase
	To        []byte   // recipient address
	Amount    uint64
	Nonce     uint64 // replay protection
	Signature []byte // 65-byte recoverable ECDSA signature
}

// NewCoinbaseTx creates a coinbase transaction for block subsidies.
func NewCoinbaseTx(minerAddr []byte, subsidy uint64) *Transaction {
	return &Transaction{
		From:   []byte{},
		To:     minerAddr,
		Amount: subsidy,
	}
}

// NewTx creates a regular value transfer transaction.
func NewTx(from, to []byte, amount uint64, nonce uint64) *Transaction {
	return &Transaction{
		From:   from,
		To:     to,
		Amount: amount,
		Nonce:  nonce,
	}
}

// SigningHash is the keccak256 of the encoding without the signature.
func (tx *Transaction) SigningHash() []byte {
	unsigned := *tx
	unsigned.Signature = []byte{}
	data, err := header.EncMode().Marshal(&unsigned)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal transaction: %v", err))
	}
	return crypto.Keccak256(data)
}

// Hash identifies the signed transaction.
func (tx *Transaction) Hash() header.Hash {
	data, err := tx.Encode()
	if err != nil {
		panic(fmt.Sprintf("failed to marshal transaction: %v", err))
	}
	return header.Sum256(data)
}

// Sign signs the transaction with the provided private key.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(tx.SigningHash(), privKey)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.Signature = sig
	return nil
}

// Verify checks the shape of the transaction and, for transfers, that the
// signature recovers to From.
func (tx *Transaction) Verify() error {
	if len(tx.To) != addressLength {
		return fmt.Errorf("recipient address has %d bytes, want %d", len(tx.To), addressLength)
	}
	if tx.IsCoinbase() {
		if len(tx.Signature) != 0 {
			return errors.New("coinbase transaction carries a signature")
		}
		return nil
	}
	if len(tx.From) != addressLength {
		return fmt.Errorf("sender address has %d bytes, want %d", len(tx.From), addressLength)
	}
	if len(tx.Signature) == 0 {
		return errors.New("transaction has no signature")
	}

	pubKey, err := crypto.SigToPub(tx.SigningHash(), tx.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	sender := crypto.PubkeyToAddress(*pubKey).Bytes()
	if !bytes.Equal(sender, tx.From) {
		return errors.New("signature does not match sender address")
	}
	return nil
}

// IsCoinbase returns true if this is a coinbase transaction.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.From) == 0
}

// String returns a string representation of the transaction.
func (tx *Transaction) String() string {
	from := "coinbase"
	if len(tx.From) > 0 {
		from = shortHex(tx.From)
	}
	return fmt.Sprintf("Tx{From: %s, To: %s, Amount: %d, Nonce: %d}",
		from, shortHex(tx.To), tx.Amount, tx.Nonce)
}

func shortHex(b []byte) string {
	if len(b) > 8 {
		return hex.EncodeToString(b[:8]) + "..."
	}
	return hex.EncodeToString(b)
}

// Encode serializes the transaction.
func (tx *Transaction) Encode() ([]byte, error) {
	return header.EncMode().Marshal(tx)
}

// DecodeTransaction deserializes a transaction.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := cbor.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return &tx, nil
}

// TxRoot commits to the ordered list of transaction hashes.
func TxRoot(txs []*Transaction) header.Hash {
	buf := make([]byte, 0, len(txs)*header.HashLength)
	for _, tx := range txs {
		h := tx.Hash()
		buf = append(buf, h[:]...)
	}
	return header.Sum256(buf)
}

// AddressFromKey derives the 20-byte account address of a key.
func AddressFromKey(key *ecdsa.PrivateKey) []byte {
	return crypto.PubkeyToAddress(key.PublicKey).Bytes()
}
