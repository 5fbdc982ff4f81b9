// Package consensus implements the RPC consensus client: it queries a
// network's endpoints in parallel and derives a majority-agreed balance, so
// a single stale or misbehaving endpoint cannot skew what the faucet sees.
package consensus

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/types"
)

// EndpointClient is the per-endpoint RPC surface the consensus client needs.
// *ethclient.Client satisfies it.
type EndpointClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// Dialer opens an EndpointClient for a raw URL.
type Dialer func(ctx context.Context, rawURL string) (EndpointClient, error)

// EthDial is the production Dialer backed by go-ethereum's ethclient.
func EthDial(ctx context.Context, rawURL string) (EndpointClient, error) {
	return ethclient.DialContext(ctx, rawURL)
}

// Config holds consensus client tuning.
type Config struct {
	// Timeout bounds each individual endpoint call.
	Timeout time.Duration
	// Attempts is the per-endpoint attempt budget before it counts as failed.
	Attempts int
	// RetryBackoff is the fixed delay between attempts.
	RetryBackoff time.Duration
}

// DefaultConfig returns the baseline policy: 15s per call, 2 attempts with
// a fixed backoff.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		Attempts:     2,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Client queries candidate endpoints and derives consensus values.
type Client struct {
	dial     Dialer
	cfg      Config
	liveness *LivenessCache
}

// NewClient creates a consensus client. liveness may be nil, in which case
// endpoint health is not remembered between calls.
func NewClient(dial Dialer, cfg Config, liveness *LivenessCache) *Client {
	if dial == nil {
		dial = EthDial
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = DefaultConfig().Attempts
	}

	return &Client{
		dial:     dial,
		cfg:      cfg,
		liveness: liveness,
	}
}

// BalanceResult is the outcome of a balance consensus round.
type BalanceResult struct {
	// Balance is the majority-agreed balance in the chain's smallest unit.
	Balance *big.Int
	// Working is the subset of endpoints that answered with a well-formed
	// response, whether or not they agreed with the majority.
	Working []string
	// Queried is the number of usable endpoints actually queried.
	Queried int
}

type endpointAnswer struct {
	url   string
	value string // raw balance as a decimal string; exact-match comparable
	err   error
}

// PoolBalance queries all usable candidate endpoints concurrently and
// returns the most frequent exact balance value. Values are compared as
// fixed-point integers at native precision; any float conversion happens
// only after consensus.
func (c *Client) PoolBalance(ctx context.Context, address string, endpoints []string, chainID int64) (*BalanceResult, error) {
	if !types.IsValidAddress(address) {
		return nil, errors.NewInvalidAddressError(address)
	}

	usable := UsableEndpoints(endpoints)
	if len(usable) == 0 {
		return nil, errors.NewNoQuorumError(chainID, 0)
	}

	answers := make(chan endpointAnswer, len(usable))
	var wg sync.WaitGroup
	for _, url := range usable {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			value, err := c.fetchBalance(ctx, url, address)
			answers <- endpointAnswer{url: url, value: value, err: err}
		}(url)
	}
	wg.Wait()
	close(answers)

	working := make([]string, 0, len(usable))
	values := make([]string, 0, len(usable))
	for ans := range answers {
		c.recordLiveness(ctx, ans.url, ans.err == nil)
		if ans.err != nil {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"endpoint": ans.url,
				"chainId":  chainID,
				"error":    ans.err.Error(),
			}).Warn("RPC endpoint failed balance query")
			continue
		}
		working = append(working, ans.url)
		values = append(values, ans.value)
	}

	if len(values) == 0 {
		return nil, errors.NewNoQuorumError(chainID, len(usable))
	}

	winner := majorityValue(values)

	balance, ok := new(big.Int).SetString(winner, 10)
	if !ok {
		return nil, errors.NewInternalError("consensus produced a non-numeric balance", nil)
	}

	sort.Strings(working)

	return &BalanceResult{
		Balance: balance,
		Working: working,
		Queried: len(usable),
	}, nil
}

// majorityValue returns the mode of the responded values, short-circuiting
// as soon as one value's count exceeds half of the responses. Ties are
// broken deterministically in favour of the lexicographically smallest
// value.
func majorityValue(values []string) string {
	counts := make(map[string]int, len(values))
	majority := len(values)/2 + 1

	for _, v := range values {
		counts[v]++
		if counts[v] >= majority {
			return v
		}
	}

	best := ""
	bestCount := 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && (best == "" || v < best)) {
			best = v
			bestCount = n
		}
	}
	return best
}

// fetchBalance queries one endpoint with the configured attempt budget.
func (c *Client) fetchBalance(ctx context.Context, url, address string) (string, error) {
	account := common.HexToAddress(address)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.cfg.RetryBackoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		balance, err := c.balanceOnce(callCtx, url, account)
		cancel()
		if err == nil {
			return balance.String(), nil
		}
		lastErr = err
	}

	return "", lastErr
}

func (c *Client) balanceOnce(ctx context.Context, url string, account common.Address) (*big.Int, error) {
	client, err := c.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.BalanceAt(ctx, account, nil)
}

// TxLookup is the result of a transaction lookup.
type TxLookup struct {
	Status types.TxStatus
	From   string
	To     string
	Value  *big.Int
}

// LookupTransaction fetches a transaction and its receipt from the first
// endpoint that answers. A chain-finalized receipt needs no consensus.
func (c *Client) LookupTransaction(ctx context.Context, txHash string, endpoints []string, chainID int64) (*TxLookup, error) {
	if !types.IsValidTxHash(txHash) {
		return nil, errors.NewInvalidTxHashError(txHash)
	}

	usable := UsableEndpoints(endpoints)
	if len(usable) == 0 {
		return nil, errors.NewNoQuorumError(chainID, 0)
	}

	hash := common.HexToHash(txHash)

	for _, url := range usable {
		lookup, err := c.lookupOnce(ctx, url, hash)
		c.recordLiveness(ctx, url, err == nil)
		if err != nil {
			continue
		}
		return lookup, nil
	}

	return nil, errors.NewNoQuorumError(chainID, len(usable))
}

func (c *Client) lookupOnce(ctx context.Context, url string, hash common.Hash) (*TxLookup, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	client, err := c.dial(callCtx, url)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	tx, pending, err := client.TransactionByHash(callCtx, hash)
	if err != nil {
		return nil, err
	}

	lookup := &TxLookup{
		Status: types.TxStatusPending,
		Value:  tx.Value(),
	}
	if tx.To() != nil {
		lookup.To = tx.To().Hex()
	}
	if from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		lookup.From = from.Hex()
	}

	if pending {
		return lookup, nil
	}

	receipt, err := client.TransactionReceipt(callCtx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		lookup.Status = types.TxStatusSuccess
	} else {
		lookup.Status = types.TxStatusReverted
	}

	return lookup, nil
}

// CheckEndpoints returns the subset of URLs believed alive, answering from
// the liveness cache where possible so callers can probe cheaply without
// re-querying balances. Unknown URLs are probed with a single ChainID call.
func (c *Client) CheckEndpoints(ctx context.Context, endpoints []string) []string {
	usable := UsableEndpoints(endpoints)

	// Cache hits and probe results go to separate slices; the probe
	// goroutines share only probed, behind mu.
	cached := make([]string, 0, len(usable))
	probed := make([]string, 0, len(usable))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, url := range usable {
		if c.liveness != nil {
			if live, known := c.liveness.Get(ctx, url); known {
				if live {
					cached = append(cached, url)
				}
				continue
			}
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			ok := c.probe(ctx, url)
			c.recordLiveness(ctx, url, ok)
			if ok {
				mu.Lock()
				probed = append(probed, url)
				mu.Unlock()
			}
		}(url)
	}
	wg.Wait()

	alive := append(cached, probed...)
	sort.Strings(alive)
	return alive
}

func (c *Client) probe(ctx context.Context, url string) bool {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	client, err := c.dial(callCtx, url)
	if err != nil {
		return false
	}
	defer client.Close()

	_, err = client.ChainID(callCtx)
	return err == nil
}

func (c *Client) recordLiveness(ctx context.Context, url string, alive bool) {
	if c.liveness == nil {
		return
	}
	if err := c.liveness.Set(ctx, url, alive); err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"endpoint": url,
			"error":    err.Error(),
		}).Debug("Failed to record endpoint liveness")
	}
}

// ToDisplay converts a native fixed-point balance to a human unit float by
// decimal-shifted division. Call only after consensus: comparing floats
// before consensus could mask genuinely divergent endpoint values.
func ToDisplay(balance *big.Int, decimals int) float64 {
	if balance == nil {
		return 0
	}
	if decimals <= 0 {
		f, _ := new(big.Float).SetInt(balance).Float64()
		return f
	}

	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Float).SetInt(balance)
	divisor := new(big.Float).SetInt(shift)
	result, _ := new(big.Float).Quo(value, divisor).Float64()
	return result
}

// ToNative converts a human unit amount to the chain's fixed-point integer
// representation, truncating anything below native precision.
func ToNative(amount float64, decimals int) *big.Int {
	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Float).Mul(big.NewFloat(amount), new(big.Float).SetInt(shift))
	native, _ := value.Int(nil)
	return native
}

// normalizeURL trims whitespace for cache keying.
func normalizeURL(url string) string {
	return strings.TrimSpace(url)
}
