package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faucetErrors "github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/types"
)

const testAddress = "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae"

// fakeEndpoint is an in-memory EndpointClient.
type fakeEndpoint struct {
	balance    *big.Int
	balanceErr error
	chainID    *big.Int
	chainErr   error
	tx         *ethtypes.Transaction
	pending    bool
	txErr      error
	receipt    *ethtypes.Receipt
	receiptErr error
}

func (f *fakeEndpoint) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, f.chainErr
}

func (f *fakeEndpoint) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, f.balanceErr
}

func (f *fakeEndpoint) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	return f.tx, f.pending, f.txErr
}

func (f *fakeEndpoint) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeEndpoint) Close() {}

// fakeDialer maps URLs onto fake endpoints.
func fakeDialer(endpoints map[string]*fakeEndpoint) Dialer {
	return func(ctx context.Context, rawURL string) (EndpointClient, error) {
		ep, ok := endpoints[rawURL]
		if !ok {
			return nil, fmt.Errorf("unknown endpoint %s", rawURL)
		}
		return ep, nil
	}
}

func testConfig() Config {
	return Config{
		Timeout:      time.Second,
		Attempts:     1,
		RetryBackoff: time.Millisecond,
	}
}

func TestPoolBalance(t *testing.T) {
	t.Run("majority wins with disagreeing and failing endpoints", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {balance: big.NewInt(100)},
			"https://rpc2.example": {balance: big.NewInt(100)},
			"https://rpc3.example": {balance: big.NewInt(100)},
			"https://rpc4.example": {balance: big.NewInt(42)},
			"https://rpc5.example": {balanceErr: errors.New("connection refused")},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		urls := []string{
			"https://rpc1.example", "https://rpc2.example", "https://rpc3.example",
			"https://rpc4.example", "https://rpc5.example",
		}
		result, err := client.PoolBalance(context.Background(), testAddress, urls, 11155111)
		require.NoError(t, err)

		assert.Equal(t, big.NewInt(100), result.Balance)
		assert.Equal(t, 5, result.Queried)
		// The disagreeing endpoint still answered; only the failed one is out.
		assert.Len(t, result.Working, 4)
		assert.NotContains(t, result.Working, "https://rpc5.example")
		assert.Contains(t, result.Working, "https://rpc4.example")
	})

	t.Run("single responder is enough", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {balance: big.NewInt(7)},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		result, err := client.PoolBalance(context.Background(), testAddress, []string{"https://rpc1.example"}, 1)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(7), result.Balance)
		assert.Equal(t, []string{"https://rpc1.example"}, result.Working)
	})

	t.Run("no quorum when every endpoint fails", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {balanceErr: errors.New("boom")},
			"https://rpc2.example": {balanceErr: errors.New("boom")},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		_, err := client.PoolBalance(context.Background(), testAddress,
			[]string{"https://rpc1.example", "https://rpc2.example"}, 1)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeNoQuorum))
	})

	t.Run("no quorum when no endpoint is usable", func(t *testing.T) {
		client := NewClient(fakeDialer(nil), testConfig(), nil)

		_, err := client.PoolBalance(context.Background(), testAddress,
			[]string{"wss://rpc.example", "https://rpc.example/${API_KEY}"}, 1)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeNoQuorum))
	})

	t.Run("rejects malformed address", func(t *testing.T) {
		client := NewClient(fakeDialer(nil), testConfig(), nil)

		_, err := client.PoolBalance(context.Background(), "not-an-address", []string{"https://rpc.example"}, 1)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeInvalidAddress))
	})

	t.Run("excluded endpoints are not counted as queried", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {balance: big.NewInt(9)},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		result, err := client.PoolBalance(context.Background(), testAddress,
			[]string{"https://rpc1.example", "wss://rpc2.example"}, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Queried)
	})
}

func TestMajorityValue(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected string
	}{
		{"strict majority", []string{"100", "100", "42"}, "100"},
		{"unanimous", []string{"5", "5", "5"}, "5"},
		{"tie broken by smallest value", []string{"200", "100"}, "100"},
		{"three-way tie", []string{"30", "10", "20"}, "10"},
		{"plurality without majority", []string{"7", "7", "1", "2"}, "7"},
		{"single value", []string{"9"}, "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, majorityValue(tt.values))
		})
	}
}

func TestLookupTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress(testAddress)
	chainID := big.NewInt(11155111)

	signedTx := ethtypes.MustSignNewTx(key, ethtypes.LatestSignerForChainID(chainID), &ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(5000),
	})
	txHash := signedTx.Hash().Hex()

	t.Run("successful transaction", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {
				tx:      signedTx,
				receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful},
			},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		lookup, err := client.LookupTransaction(context.Background(), txHash, []string{"https://rpc1.example"}, 11155111)
		require.NoError(t, err)
		assert.Equal(t, types.TxStatusSuccess, lookup.Status)
		assert.Equal(t, from.Hex(), lookup.From)
		assert.Equal(t, to.Hex(), lookup.To)
		assert.Equal(t, big.NewInt(5000), lookup.Value)
	})

	t.Run("pending transaction", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {tx: signedTx, pending: true},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		lookup, err := client.LookupTransaction(context.Background(), txHash, []string{"https://rpc1.example"}, 11155111)
		require.NoError(t, err)
		assert.Equal(t, types.TxStatusPending, lookup.Status)
	})

	t.Run("reverted transaction", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {
				tx:      signedTx,
				receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed},
			},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		lookup, err := client.LookupTransaction(context.Background(), txHash, []string{"https://rpc1.example"}, 11155111)
		require.NoError(t, err)
		assert.Equal(t, types.TxStatusReverted, lookup.Status)
	})

	t.Run("fails over to the next endpoint", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {txErr: errors.New("not found")},
			"https://rpc2.example": {
				tx:      signedTx,
				receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful},
			},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		lookup, err := client.LookupTransaction(context.Background(), txHash,
			[]string{"https://rpc1.example", "https://rpc2.example"}, 11155111)
		require.NoError(t, err)
		assert.Equal(t, types.TxStatusSuccess, lookup.Status)
	})

	t.Run("rejects malformed hash", func(t *testing.T) {
		client := NewClient(fakeDialer(nil), testConfig(), nil)

		_, err := client.LookupTransaction(context.Background(), "0x1234", []string{"https://rpc1.example"}, 1)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeInvalidTxHash))
	})
}

func TestCheckEndpoints(t *testing.T) {
	t.Run("probes unknown endpoints", func(t *testing.T) {
		endpoints := map[string]*fakeEndpoint{
			"https://rpc1.example": {chainID: big.NewInt(1)},
			"https://rpc2.example": {chainErr: errors.New("down")},
		}
		client := NewClient(fakeDialer(endpoints), testConfig(), nil)

		alive := client.CheckEndpoints(context.Background(),
			[]string{"https://rpc1.example", "https://rpc2.example", "wss://rpc3.example"})
		assert.Equal(t, []string{"https://rpc1.example"}, alive)
	})

	t.Run("answers from the liveness cache without probing", func(t *testing.T) {
		ctx := context.Background()
		cache, _ := setupLivenessCache(t, time.Minute)
		require.NoError(t, cache.Set(ctx, "https://rpc1.example", true))
		require.NoError(t, cache.Set(ctx, "https://rpc2.example", false))

		// The dialer knows nothing; a probe would come back dead.
		client := NewClient(fakeDialer(nil), testConfig(), cache)

		alive := client.CheckEndpoints(ctx,
			[]string{"https://rpc1.example", "https://rpc2.example"})
		assert.Equal(t, []string{"https://rpc1.example"}, alive)
	})

	// Cache hits land on the caller's goroutine while unknown URLs are
	// probed concurrently; with a mixed list every live endpoint must
	// still come back exactly once. Run under -race.
	t.Run("merges cached and probed endpoints under concurrency", func(t *testing.T) {
		ctx := context.Background()
		cache, _ := setupLivenessCache(t, time.Minute)

		endpoints := make(map[string]*fakeEndpoint)
		urls := make([]string, 0, 100)
		want := make([]string, 0, 100)
		for i := 0; i < 50; i++ {
			url := fmt.Sprintf("https://cached%02d.example", i)
			require.NoError(t, cache.Set(ctx, url, true))
			urls = append(urls, url)
			want = append(want, url)
		}
		for i := 0; i < 50; i++ {
			url := fmt.Sprintf("https://probed%02d.example", i)
			endpoints[url] = &fakeEndpoint{chainID: big.NewInt(1)}
			urls = append(urls, url)
			want = append(want, url)
		}

		client := NewClient(fakeDialer(endpoints), testConfig(), cache)

		alive := client.CheckEndpoints(ctx, urls)
		assert.ElementsMatch(t, want, alive)
	})
}

func TestUnitConversion(t *testing.T) {
	t.Run("wei to ether", func(t *testing.T) {
		wei, ok := new(big.Int).SetString("1500000000000000000", 10)
		require.True(t, ok)
		assert.InDelta(t, 1.5, ToDisplay(wei, 18), 1e-12)
	})

	t.Run("zero decimals passes through", func(t *testing.T) {
		assert.InDelta(t, 42, ToDisplay(big.NewInt(42), 0), 1e-12)
	})

	t.Run("nil balance is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, ToDisplay(nil, 18))
	})

	t.Run("ether to wei", func(t *testing.T) {
		expected, ok := new(big.Int).SetString("500000000000000000", 10)
		require.True(t, ok)
		assert.Equal(t, expected, ToNative(0.5, 18))
	})
}
