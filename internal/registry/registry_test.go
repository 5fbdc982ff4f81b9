package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faucetErrors "github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/types"
)

const chainListBody = `[
	{
		"name": "Ethereum Mainnet",
		"shortName": "eth",
		"chainId": 1,
		"rpc": ["https://eth.example"],
		"nativeCurrency": {"name": "Ether", "symbol": "ETH", "decimals": 18},
		"explorers": [{"url": "https://etherscan.io"}]
	},
	{
		"name": "Sepolia",
		"title": "Ethereum Testnet Sepolia",
		"shortName": "sep",
		"chainId": 11155111,
		"rpc": [
			"https://rpc.sepolia.org",
			"wss://sepolia.example/ws",
			"https://sepolia.infura.io/v3/${INFURA_API_KEY}"
		],
		"nativeCurrency": {"name": "Sepolia Ether", "symbol": "ETH", "decimals": 18},
		"explorers": [{"url": "https://sepolia.etherscan.io"}]
	},
	{
		"name": "Lonely Testnet",
		"shortName": "lonely",
		"chainId": 424242,
		"rpc": ["wss://lonely.example/ws"],
		"nativeCurrency": {"name": "Lonely", "symbol": "LON", "decimals": 18}
	}
]`

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *atomic.Bool) {
	t.Helper()

	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chainListBody))
	}))
	t.Cleanup(server.Close)

	reg := New(server.URL, ttl)
	reg.SetHTTPClient(server.Client())
	return reg, &failing
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves a test network with usable endpoints", func(t *testing.T) {
		reg, _ := newTestRegistry(t, time.Hour)

		resolution, err := reg.Resolve(ctx, 11155111)
		require.NoError(t, err)

		assert.Equal(t, types.FreshnessFresh, resolution.Freshness)
		assert.Equal(t, "Sepolia", resolution.Network.Name)
		assert.Equal(t, "ETH", resolution.Network.NativeCurrency.Symbol)
		assert.Equal(t, 18, resolution.Network.NativeCurrency.Decimals)
		// Websocket and templated URLs are filtered at snapshot build time.
		assert.Equal(t, []string{"https://rpc.sepolia.org"}, resolution.Network.RPC)
	})

	t.Run("rejects a mainnet", func(t *testing.T) {
		reg, _ := newTestRegistry(t, time.Hour)

		_, err := reg.Resolve(ctx, 1)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeUnsupportedNetwork))
	})

	t.Run("rejects a test network with no usable endpoints", func(t *testing.T) {
		reg, _ := newTestRegistry(t, time.Hour)

		_, err := reg.Resolve(ctx, 424242)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeUnsupportedNetwork))
	})

	t.Run("unknown chain ID", func(t *testing.T) {
		reg, _ := newTestRegistry(t, time.Hour)

		_, err := reg.Resolve(ctx, 999999999)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeNetworkNotFound))
	})

	t.Run("serves stale snapshot when upstream fails", func(t *testing.T) {
		reg, failing := newTestRegistry(t, 20*time.Millisecond)

		resolution, err := reg.Resolve(ctx, 11155111)
		require.NoError(t, err)
		require.Equal(t, types.FreshnessFresh, resolution.Freshness)

		failing.Store(true)
		time.Sleep(30 * time.Millisecond)

		resolution, err = reg.Resolve(ctx, 11155111)
		require.NoError(t, err)
		assert.Equal(t, types.FreshnessStale, resolution.Freshness)
		assert.Equal(t, "Sepolia", resolution.Network.Name)
	})

	t.Run("fails hard when upstream fails and no snapshot exists", func(t *testing.T) {
		reg, failing := newTestRegistry(t, time.Hour)
		failing.Store(true)

		_, err := reg.Resolve(ctx, 11155111)
		require.Error(t, err)
		assert.True(t, faucetErrors.IsCode(err, faucetErrors.CodeInternalError))
	})

	t.Run("snapshot is reused within the validity window", func(t *testing.T) {
		reg, failing := newTestRegistry(t, time.Hour)

		_, err := reg.Resolve(ctx, 11155111)
		require.NoError(t, err)

		// A broken upstream is invisible while the snapshot is valid.
		failing.Store(true)
		resolution, err := reg.Resolve(ctx, 11155111)
		require.NoError(t, err)
		assert.Equal(t, types.FreshnessFresh, resolution.Freshness)
	})
}

func TestIsTestNetwork(t *testing.T) {
	tests := []struct {
		name    string
		entry   upstreamNetwork
		matches bool
	}{
		{"keyword in name", upstreamNetwork{Name: "Holesky"}, true},
		{"keyword in title", upstreamNetwork{Name: "Foo", Title: "Ethereum Testnet Foo"}, true},
		{"keyword in short name", upstreamNetwork{Name: "Foo", ShortName: "foo-sepolia"}, true},
		{"case insensitive", upstreamNetwork{Name: "HOODI"}, true},
		{"devnet keyword", upstreamNetwork{Name: "Cardona Devnet"}, true},
		{"mainnet", upstreamNetwork{Name: "Ethereum Mainnet", ShortName: "eth"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, isTestNetwork(tt.entry))
		})
	}
}
