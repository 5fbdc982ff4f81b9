// Package registry resolves chain IDs to network metadata served from a
// periodically refreshed snapshot of a public chain registry.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/testnet-faucet/internal/consensus"
	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/models"
	"github.com/testnet-faucet/internal/types"
)

// testNetworkKeywords mark a chain as a test network when present in its
// name, title or short name.
var testNetworkKeywords = []string{"test", "sepolia", "goerli", "holesky", "hoodi", "devnet"}

// upstreamNetwork mirrors the chain registry's JSON entry shape.
type upstreamNetwork struct {
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	ShortName      string   `json:"shortName"`
	ChainID        int64    `json:"chainId"`
	RPC            []string `json:"rpc"`
	NativeCurrency struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"nativeCurrency"`
	Explorers []struct {
		URL string `json:"url"`
	} `json:"explorers"`
}

// snapshot is one complete registry state. Snapshots are replaced whole so
// concurrent readers never observe a partially updated registry.
type snapshot struct {
	networks  map[int64]models.Network
	desired   map[int64]bool
	fetchedAt time.Time
}

// Resolution is the outcome of a successful resolve, carrying whether it
// was served from a fresh snapshot or a stale one kept after an upstream
// failure.
type Resolution struct {
	Network   models.Network
	Freshness types.Freshness
}

// Registry caches the upstream chain list for a validity window and
// resolves chain IDs against it.
type Registry struct {
	upstreamURL string
	ttl         time.Duration
	httpClient  *http.Client

	snap      atomic.Pointer[snapshot]
	refreshMu sync.Mutex
}

// New creates a Registry. ttl zero defaults to 24 hours.
func New(upstreamURL string, ttl time.Duration) *Registry {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{
		upstreamURL: upstreamURL,
		ttl:         ttl,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Resolve returns the network for chainID, refreshing the snapshot when its
// validity window has elapsed. On upstream failure an existing snapshot is
// served stale rather than failing the caller; the resolve only fails hard
// when no snapshot exists at all.
func (r *Registry) Resolve(ctx context.Context, chainID int64) (*Resolution, error) {
	snap, freshness, err := r.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	network, ok := snap.networks[chainID]
	if !ok {
		return nil, errors.NewNetworkNotFoundError(chainID)
	}

	if !snap.desired[chainID] {
		return nil, errors.NewUnsupportedNetworkError(chainID)
	}

	return &Resolution{Network: network, Freshness: freshness}, nil
}

// currentSnapshot returns a valid snapshot, refreshing if needed.
func (r *Registry) currentSnapshot(ctx context.Context) (*snapshot, types.Freshness, error) {
	if snap := r.snap.Load(); snap != nil && time.Since(snap.fetchedAt) < r.ttl {
		return snap, types.FreshnessFresh, nil
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if snap := r.snap.Load(); snap != nil && time.Since(snap.fetchedAt) < r.ttl {
		return snap, types.FreshnessFresh, nil
	}

	fresh, err := r.fetch(ctx)
	if err != nil {
		if stale := r.snap.Load(); stale != nil {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"error": err.Error(),
				"age":   time.Since(stale.fetchedAt).String(),
			}).Warn("Registry refresh failed, serving stale snapshot")
			return stale, types.FreshnessStale, nil
		}
		return nil, "", errors.NewInternalError("network registry unavailable and no cached snapshot exists", err)
	}

	r.snap.Store(fresh)
	return fresh, types.FreshnessFresh, nil
}

// fetch downloads and validates the full upstream chain list.
func (r *Registry) fetch(ctx context.Context) (*snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.upstreamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	var upstream []upstreamNetwork
	if err := json.Unmarshal(body, &upstream); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	networks := make(map[int64]models.Network, len(upstream))
	desired := make(map[int64]bool)
	for _, entry := range upstream {
		if entry.ChainID <= 0 {
			continue
		}
		// First entry wins; chain IDs are unique within the registry.
		if _, exists := networks[entry.ChainID]; exists {
			continue
		}

		explorers := make([]string, 0, len(entry.Explorers))
		for _, e := range entry.Explorers {
			if e.URL != "" {
				explorers = append(explorers, e.URL)
			}
		}

		usableRPC := consensus.UsableEndpoints(entry.RPC)
		networks[entry.ChainID] = models.Network{
			ChainID: entry.ChainID,
			Name:    entry.Name,
			RPC:     usableRPC,
			NativeCurrency: models.NativeCurrency{
				Name:     entry.NativeCurrency.Name,
				Symbol:   entry.NativeCurrency.Symbol,
				Decimals: entry.NativeCurrency.Decimals,
			},
			Explorers: explorers,
		}
		desired[entry.ChainID] = isTestNetwork(entry) && len(usableRPC) > 0
	}

	return &snapshot{networks: networks, desired: desired, fetchedAt: time.Now()}, nil
}

// isTestNetwork applies the keyword half of the validation predicate
// against name, title and short name.
func isTestNetwork(entry upstreamNetwork) bool {
	haystack := strings.ToLower(entry.Name + " " + entry.Title + " " + entry.ShortName)
	for _, keyword := range testNetworkKeywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// SetHTTPClient overrides the upstream HTTP client; used by tests.
func (r *Registry) SetHTTPClient(client *http.Client) {
	r.httpClient = client
}
