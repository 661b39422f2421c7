package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionSignAndVerify(t *testing.T) {
	privKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := AddressFromKey(privKey)
	recipient := make([]byte, addressLength)
	recipient[0] = 0x42

	tx := NewTx(sender, recipient, 100, 0)
	require.NoError(t, tx.Sign(privKey))
	require.Len(t, tx.Signature, 65)
	require.NoError(t, tx.Verify())

	t.Run("tampered amount", func(t *testing.T) {
		tampered := *tx
		tampered.Amount = 1000
		assert.Error(t, tampered.Verify())
	})

	t.Run("foreign signature", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		forged := NewTx(sender, recipient, 100, 0)
		require.NoError(t, forged.Sign(other))
		assert.Error(t, forged.Verify())
	})

	t.Run("unsigned", func(t *testing.T) {
		assert.Error(t, NewTx(sender, recipient, 100, 0).Verify())
	})

	t.Run("short recipient", func(t *testing.T) {
		bad := NewTx(sender, recipient[:10], 100, 0)
		require.NoError(t, bad.Sign(privKey))
		assert.Error(t, bad.Verify())
	})
}

func TestCoinbaseTransaction(t *testing.T) {
	recipient := make([]byte, addressLength)
	tx := NewCoinbaseTx(recipient, 50)
	assert.True(t, tx.IsCoinbase())
	require.NoError(t, tx.Verify())

	tx.Signature = []byte{1}
	assert.Error(t, tx.Verify(), "coinbase must not carry a signature")
}

func TestTransactionEncoding(t *testing.T) {
	privKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	recipient := make([]byte, addressLength)
	tx := NewTx(AddressFromKey(privKey), recipient, 7, 3)
	require.NoError(t, tx.Sign(privKey))

	data, err := tx.Encode()
	require.NoError(t, err)
	decoded, err := DecodeTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), decoded.Hash())
	require.NoError(t, decoded.Verify())

	coinbase, err := NewCoinbaseTx(recipient, 1).Encode()
	require.NoError(t, err)
	decoded, err = DecodeTransaction(coinbase)
	require.NoError(t, err)
	assert.True(t, decoded.IsCoinbase())
}

func TestTxRootOrderMatters(t *testing.T) {
	a := NewCoinbaseTx(make([]byte, addressLength), 1)
	b := NewCoinbaseTx(make([]byte, addressLength), 2)
	assert.NotEqual(t, TxRoot([]*Transaction{a, b}), TxRoot([]*Transaction{b, a}))
	assert.Equal(t, TxRoot(nil), TxRoot([]*Transaction{}))
}
