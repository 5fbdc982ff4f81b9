package dispatch

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testnet-faucet/internal/consensus"
	faucetErrors "github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/types"
)

func TestVerifyDonation(t *testing.T) {
	faucet := "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae"
	txHash := "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"

	t.Run("accepts a mined transfer to the faucet", func(t *testing.T) {
		lookup := &consensus.TxLookup{
			Status: types.TxStatusSuccess,
			To:     faucet,
			Value:  big.NewInt(1),
		}
		assert.NoError(t, VerifyDonation(lookup, faucet, txHash))
	})

	t.Run("recipient match is case insensitive", func(t *testing.T) {
		lookup := &consensus.TxLookup{
			Status: types.TxStatusSuccess,
			To:     "0xDE0B295669A9FD93D5F28D9EC85E40F4CB697BAE",
			Value:  big.NewInt(1),
		}
		assert.NoError(t, VerifyDonation(lookup, faucet, txHash))
	})

	t.Run("rejects a pending transaction", func(t *testing.T) {
		lookup := &consensus.TxLookup{Status: types.TxStatusPending, To: faucet, Value: big.NewInt(1)}
		err := VerifyDonation(lookup, faucet, txHash)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeDonationRejected))
		assert.Contains(t, err.Error(), "not yet mined")
	})

	t.Run("rejects a reverted transaction", func(t *testing.T) {
		lookup := &consensus.TxLookup{Status: types.TxStatusReverted, To: faucet, Value: big.NewInt(1)}
		err := VerifyDonation(lookup, faucet, txHash)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reverted")
	})

	t.Run("rejects a transfer to another address", func(t *testing.T) {
		lookup := &consensus.TxLookup{
			Status: types.TxStatusSuccess,
			To:     "0x1111111111111111111111111111111111111111",
			Value:  big.NewInt(1),
		}
		err := VerifyDonation(lookup, faucet, txHash)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "faucet address")
	})

	t.Run("rejects a zero-value transfer", func(t *testing.T) {
		lookup := &consensus.TxLookup{Status: types.TxStatusSuccess, To: faucet, Value: big.NewInt(0)}
		err := VerifyDonation(lookup, faucet, txHash)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no value")
	})
}
