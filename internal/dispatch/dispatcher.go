// Package dispatch signs and broadcasts faucet payout transfers.
package dispatch

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/types"
)

// transferGasLimit is the gas cost of a plain value transfer.
const transferGasLimit = 21000

// tipSharePercent is the tip synthesized when an endpoint suggests a zero
// tip cap, as a percentage of the suggested fee cap. Several testnet
// endpoints report a zero tip and then refuse the resulting transaction.
const tipSharePercent = 30

// Client is the per-endpoint RPC surface the dispatcher needs.
// *ethclient.Client satisfies it.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	Close()
}

// Dialer opens a Client for a raw URL.
type Dialer func(ctx context.Context, rawURL string) (Client, error)

// EthDial is the production Dialer backed by go-ethereum's ethclient.
func EthDial(ctx context.Context, rawURL string) (Client, error) {
	return ethclient.DialContext(ctx, rawURL)
}

// Dispatcher broadcasts signed value transfers from the faucet account,
// failing over across a network's working endpoints one at a time.
type Dispatcher struct {
	dial    Dialer
	key     *ecdsa.PrivateKey
	from    common.Address
	timeout time.Duration
	logger  *logging.Logger
}

// NewDispatcher creates a dispatcher from the faucet's hex-encoded signing
// key. dial may be nil to use the production ethclient dialer.
func NewDispatcher(privateKeyHex string, dial Dialer, timeout time.Duration, logger *logging.Logger) (*Dispatcher, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid faucet private key: %w", err)
	}
	if dial == nil {
		dial = EthDial
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Dispatcher{
		dial:    dial,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// From returns the faucet's signing address.
func (d *Dispatcher) From() string {
	return d.from.Hex()
}

// Send broadcasts a transfer of amount (in the chain's smallest unit) to
// the recipient, trying each endpoint in order until one accepts. A
// returned hash means some endpoint accepted the broadcast; after that
// point the transfer is irreversible.
func (d *Dispatcher) Send(ctx context.Context, to string, amount *big.Int, endpoints []string, chainID int64) (string, error) {
	if !types.IsValidAddress(to) {
		return "", errors.NewInvalidAddressError(to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", errors.NewInvalidInputError("amount", "must be positive")
	}
	if len(endpoints) == 0 {
		return "", errors.NewNoQuorumError(chainID, 0)
	}

	recipient := common.HexToAddress(to)

	var lastErr error
	for _, url := range endpoints {
		hash, err := d.sendOnce(ctx, url, recipient, amount, chainID)
		if err != nil {
			d.logger.WithError(err).WithFields(map[string]interface{}{
				"endpoint": url,
				"chainId":  chainID,
			}).Warn("endpoint rejected transfer broadcast")
			lastErr = err
			continue
		}
		return hash, nil
	}

	return "", errors.NewDispatchFailedError(chainID, lastErr)
}

func (d *Dispatcher) sendOnce(ctx context.Context, url string, to common.Address, amount *big.Int, chainID int64) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	client, err := d.dial(callCtx, url)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", url, err)
	}
	defer client.Close()

	nonce, err := client.PendingNonceAt(callCtx, d.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	tx, err := d.buildTransaction(callCtx, client, nonce, to, amount, chainID)
	if err != nil {
		return "", err
	}

	signer := ethtypes.LatestSignerForChainID(big.NewInt(chainID))
	signed, err := ethtypes.SignTx(tx, signer, d.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(callCtx, signed); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// buildTransaction prefers an EIP-1559 dynamic-fee transaction and falls
// back to a legacy gas-price transaction when tip estimation is not
// available on the endpoint.
func (d *Dispatcher) buildTransaction(ctx context.Context, client Client, nonce uint64, to common.Address, amount *big.Int, chainID int64) (*ethtypes.Transaction, error) {
	maxFee, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("estimate gas price: %w", err)
	}

	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		// Endpoint predates EIP-1559 or does not expose tip estimation.
		d.logger.WithError(err).Debug("tip estimation unavailable, using legacy transaction")
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: maxFee,
			Gas:      transferGasLimit,
			To:       &to,
			Value:    amount,
		}), nil
	}

	if tip.Sign() == 0 {
		// Some testnet endpoints suggest a zero tip and then reject the
		// transaction as underpriced. Synthesize a tip from the fee cap
		// and raise the cap so it still covers base fee plus tip.
		tip = new(big.Int).Div(new(big.Int).Mul(maxFee, big.NewInt(tipSharePercent)), big.NewInt(100))
		maxFee = new(big.Int).Add(maxFee, tip)
	}

	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       transferGasLimit,
		To:        &to,
		Value:     amount,
	}), nil
}
