// Package ledger runs the faucet's two money flows, drips and donations,
// as explicit state machines inside single transactional units of work.
package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/testnet-faucet/internal/analytics"
	"github.com/testnet-faucet/internal/consensus"
	"github.com/testnet-faucet/internal/dispatch"
	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/identity"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/models"
	"github.com/testnet-faucet/internal/policy"
	"github.com/testnet-faucet/internal/ratelimit"
	"github.com/testnet-faucet/internal/registry"
	"github.com/testnet-faucet/internal/storage"
	"github.com/testnet-faucet/internal/types"
)

// Store opens transactional units of work.
type Store interface {
	Begin(ctx context.Context) (storage.UnitOfWork, error)
}

// ChainReader is the consensus surface the ledger needs.
type ChainReader interface {
	PoolBalance(ctx context.Context, address string, endpoints []string, chainID int64) (*consensus.BalanceResult, error)
	LookupTransaction(ctx context.Context, txHash string, endpoints []string, chainID int64) (*consensus.TxLookup, error)
	CheckEndpoints(ctx context.Context, endpoints []string) []string
}

// Sender broadcasts payout transfers.
type Sender interface {
	Send(ctx context.Context, to string, amount *big.Int, endpoints []string, chainID int64) (string, error)
}

// NetworkResolver resolves chain IDs to validated test networks.
type NetworkResolver interface {
	Resolve(ctx context.Context, chainID int64) (*registry.Resolution, error)
}

// Admitter gates drip requests.
type Admitter interface {
	Admit(ctx context.Context, account *models.Account, address, token string) (identity.Admission, error)
}

// EventSink receives best-effort activity events.
type EventSink interface {
	Record(ctx context.Context, event analytics.Event)
}

// Ledger owns the drip and donation flows.
type Ledger struct {
	store         Store
	networks      NetworkResolver
	chain         ChainReader
	gate          Admitter
	limiter       *ratelimit.Limiter
	policy        *policy.Policy
	sender        Sender
	events        EventSink
	faucetAddress string
	logger        *logging.Logger
}

// New creates a ledger. events may be nil.
func New(
	store Store,
	networks NetworkResolver,
	chain ChainReader,
	gate Admitter,
	limiter *ratelimit.Limiter,
	claimPolicy *policy.Policy,
	sender Sender,
	events EventSink,
	faucetAddress string,
	logger *logging.Logger,
) *Ledger {
	return &Ledger{
		store:         store,
		networks:      networks,
		chain:         chain,
		gate:          gate,
		limiter:       limiter,
		policy:        claimPolicy,
		sender:        sender,
		events:        events,
		faucetAddress: faucetAddress,
		logger:        logger,
	}
}

// DripRequest is one inbound claim.
type DripRequest struct {
	ChainID    int64
	Address    string
	ProofToken string
	ClientIP   string
}

// DripResult is the outcome of an accepted claim.
type DripResult struct {
	TxHash        string          `json:"txHash"`
	Amount        float64         `json:"amount"`
	Symbol        string          `json:"symbol"`
	NetworkName   string          `json:"networkName"`
	AdmissionPath string          `json:"admissionPath"`
	Freshness     types.Freshness `json:"freshness"`
}

// Drip runs the full claim flow. Every state before the broadcast rolls
// back cleanly on failure; failures after the broadcast are surfaced as
// the dispatched-but-unrecorded condition and must not be retried.
func (l *Ledger) Drip(ctx context.Context, req DripRequest) (*DripResult, error) {
	result, err := l.drip(ctx, req)
	l.recordDripEvent(ctx, req, result, err)
	return result, err
}

func (l *Ledger) drip(ctx context.Context, req DripRequest) (*DripResult, error) {
	state := types.DripReceived
	log := l.logger.WithFields(map[string]interface{}{
		"chainId": req.ChainID,
		"address": req.Address,
	})

	if !types.IsValidAddress(req.Address) {
		return nil, errors.NewInvalidAddressError(req.Address)
	}
	if req.ClientIP == "" {
		return nil, errors.NewInvalidInputError("clientIp", "missing")
	}

	resolution, err := l.networks.Resolve(ctx, req.ChainID)
	if err != nil {
		return nil, err
	}
	network := resolution.Network

	uow, err := l.store.Begin(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("begin drip unit", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx) // nolint:errcheck // rollback on abandoned unit
		}
	}()

	now := time.Now()

	walletDecision, err := l.limiter.CheckWallet(ctx, uow, req.Address, req.ChainID, now)
	if err != nil {
		return nil, errors.NewDatabaseError("check wallet rate limit", err)
	}
	if !walletDecision.CanRequest {
		return nil, errors.NewRateLimitedError("wallet", walletDecision.NextAvailableAt)
	}
	ipDecision, err := l.limiter.CheckIP(ctx, uow, req.ClientIP, req.ChainID, now)
	if err != nil {
		return nil, errors.NewDatabaseError("check ip rate limit", err)
	}
	if !ipDecision.CanRequest {
		return nil, errors.NewRateLimitedError("ip", ipDecision.NextAvailableAt)
	}
	state = types.DripRateLimitChecked

	account, err := uow.GetAccountByAddress(ctx, req.Address)
	if err != nil {
		return nil, errors.NewDatabaseError("load account", err)
	}
	admission, err := l.gate.Admit(ctx, account, req.Address, req.ProofToken)
	if err != nil {
		return nil, err
	}
	state = types.DripIdentityAdmitted

	balance, err := l.chain.PoolBalance(ctx, l.faucetAddress, l.liveEndpoints(ctx, network.RPC), req.ChainID)
	if err != nil {
		return nil, err
	}
	decimals := network.NativeCurrency.Decimals
	poolDisplay := consensus.ToDisplay(balance.Balance, decimals)
	claim := l.policy.Claim(poolDisplay)
	if claim <= 0 {
		return nil, errors.NewNoLiquidityError(req.ChainID)
	}
	state = types.DripBalanceAppraised

	txHash, err := l.sender.Send(ctx, req.Address, consensus.ToNative(claim, decimals), balance.Working, req.ChainID)
	if err != nil {
		return nil, err
	}
	state = types.DripDispatched
	log = log.WithField("txHash", txHash)

	if err := l.recordDrip(ctx, uow, req, account, claim, txHash, now); err != nil {
		// Funds already left the pool. This is the one state where the
		// books and the chain disagree; flag it for manual reconciliation
		// and make sure nothing upstream retries it.
		log.WithError(err).WithFields(map[string]interface{}{
			"state":          string(state),
			"reconciliation": "required",
		}).Error("drip dispatched but not recorded")
		return nil, errors.NewDispatchedUnrecordedError(req.ChainID, txHash, err)
	}
	committed = true
	state = types.DripRecorded

	log.WithFields(map[string]interface{}{
		"amount": claim,
		"state":  string(state),
		"path":   admission.Path,
	}).Info("drip recorded")

	return &DripResult{
		TxHash:        txHash,
		Amount:        claim,
		Symbol:        network.NativeCurrency.Symbol,
		NetworkName:   network.Name,
		AdmissionPath: admission.Path,
		Freshness:     resolution.Freshness,
	}, nil
}

// recordDrip writes all post-broadcast bookkeeping and commits the unit.
func (l *Ledger) recordDrip(ctx context.Context, uow storage.UnitOfWork, req DripRequest, account *models.Account, amount float64, txHash string, now time.Time) error {
	var err error
	if account == nil {
		if account, err = uow.CreateAccount(ctx, req.Address); err != nil {
			return err
		}
	}

	ip, err := uow.TouchIPAddress(ctx, req.ClientIP, now)
	if err != nil {
		return err
	}
	if err := uow.ApplyDrip(ctx, account.ID, amount, now); err != nil {
		return err
	}
	if err := uow.InsertRequestRecord(ctx, &models.RequestRecord{
		UserID:      account.ID,
		IPAddressID: ip.ID,
		NetworkID:   req.ChainID,
		Amount:      amount,
		TxHash:      txHash,
		CreatedAt:   now,
	}); err != nil {
		return err
	}
	if err := l.limiter.Commit(ctx, uow, req.Address, req.ClientIP, req.ChainID, now); err != nil {
		return err
	}

	return uow.Commit(ctx)
}

// DonationClaim is a donor's request to have a transfer credited.
type DonationClaim struct {
	ChainID int64
	TxHash  string
}

// DonationResult is the outcome of a credited donation.
type DonationResult struct {
	Donor       string  `json:"donor"`
	Amount      float64 `json:"amount"`
	Symbol      string  `json:"symbol"`
	NetworkName string  `json:"networkName"`
}

// Donate verifies a claimed donation transaction on chain and credits the
// donor's account. The duplicate check and the insert share one unit of
// work, and the unique index on the hash backstops concurrent claims.
func (l *Ledger) Donate(ctx context.Context, claim DonationClaim) (*DonationResult, error) {
	result, err := l.donate(ctx, claim)
	l.recordDonationEvent(ctx, claim, result, err)
	return result, err
}

func (l *Ledger) donate(ctx context.Context, claim DonationClaim) (*DonationResult, error) {
	if !types.IsValidTxHash(claim.TxHash) {
		return nil, errors.NewInvalidTxHashError(claim.TxHash)
	}

	resolution, err := l.networks.Resolve(ctx, claim.ChainID)
	if err != nil {
		return nil, err
	}
	network := resolution.Network

	uow, err := l.store.Begin(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("begin donation unit", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(ctx) // nolint:errcheck // rollback on abandoned unit
		}
	}()

	exists, err := uow.DonationExists(ctx, claim.TxHash)
	if err != nil {
		return nil, errors.NewDatabaseError("check donation", err)
	}
	if exists {
		return nil, errors.NewDuplicateDonationError(claim.TxHash)
	}

	lookup, err := l.chain.LookupTransaction(ctx, claim.TxHash, network.RPC, claim.ChainID)
	if err != nil {
		return nil, err
	}
	if err := dispatch.VerifyDonation(lookup, l.faucetAddress, claim.TxHash); err != nil {
		return nil, err
	}
	if !types.IsValidAddress(lookup.From) {
		return nil, errors.NewDonationRejectedError("transaction sender could not be recovered", claim.TxHash)
	}

	amount := consensus.ToDisplay(lookup.Value, network.NativeCurrency.Decimals)
	now := time.Now()

	account, err := uow.GetAccountByAddress(ctx, lookup.From)
	if err != nil {
		return nil, errors.NewDatabaseError("load donor account", err)
	}
	if account == nil {
		if account, err = uow.CreateAccount(ctx, lookup.From); err != nil {
			return nil, errors.NewDatabaseError("create donor account", err)
		}
	}

	if err := uow.InsertDonationRecord(ctx, &models.DonationRecord{
		UserID:    account.ID,
		NetworkID: claim.ChainID,
		Amount:    amount,
		TxHash:    claim.TxHash,
		CreatedAt: now,
	}); err != nil {
		return nil, errors.NewDatabaseError("record donation", err)
	}
	if err := uow.ApplyDonation(ctx, account.ID, amount, now); err != nil {
		return nil, errors.NewDatabaseError("apply donation", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewDatabaseError("commit donation", err)
	}
	committed = true

	l.logger.WithFields(map[string]interface{}{
		"chainId": claim.ChainID,
		"donor":   lookup.From,
		"amount":  amount,
		"txHash":  claim.TxHash,
	}).Info("donation credited")

	return &DonationResult{
		Donor:       lookup.From,
		Amount:      amount,
		Symbol:      network.NativeCurrency.Symbol,
		NetworkName: network.Name,
	}, nil
}

// PoolState is the public view of a network's faucet pool. Timestamp marks
// when the state was generated, so consumers of a cached copy can tell how
// stale it is.
type PoolState struct {
	ChainID              int64           `json:"chainId"`
	NetworkName          string          `json:"networkName"`
	Symbol               string          `json:"symbol"`
	Balance              float64         `json:"balance"`
	NextClaim            float64         `json:"nextClaim"`
	ClaimIntervalSeconds int64           `json:"claimIntervalSeconds"`
	Endpoints            int             `json:"endpoints"`
	Freshness            types.Freshness `json:"freshness"`
	Timestamp            time.Time       `json:"timestamp"`
}

// Pool reports the current pool balance, the claim it would pay, and the
// interval a successful claimant waits before the next one.
func (l *Ledger) Pool(ctx context.Context, chainID int64) (*PoolState, error) {
	resolution, err := l.networks.Resolve(ctx, chainID)
	if err != nil {
		return nil, err
	}
	network := resolution.Network

	balance, err := l.chain.PoolBalance(ctx, l.faucetAddress, l.liveEndpoints(ctx, network.RPC), chainID)
	if err != nil {
		return nil, err
	}

	display := consensus.ToDisplay(balance.Balance, network.NativeCurrency.Decimals)
	return &PoolState{
		ChainID:              chainID,
		NetworkName:          network.Name,
		Symbol:               network.NativeCurrency.Symbol,
		Balance:              display,
		NextClaim:            l.policy.Claim(display),
		ClaimIntervalSeconds: int64(l.limiter.Window().Seconds()),
		Endpoints:            len(balance.Working),
		Freshness:            resolution.Freshness,
		Timestamp:            time.Now().UTC(),
	}, nil
}

// liveEndpoints narrows a candidate list through the liveness view so the
// balance fan-out skips endpoints already known dead. The cache is
// advisory; an empty answer falls back to the full list rather than
// letting a cold cache block the network outright.
func (l *Ledger) liveEndpoints(ctx context.Context, endpoints []string) []string {
	live := l.chain.CheckEndpoints(ctx, endpoints)
	if len(live) == 0 {
		return endpoints
	}
	return live
}

func (l *Ledger) recordDripEvent(ctx context.Context, req DripRequest, result *DripResult, err error) {
	if l.events == nil {
		return
	}
	event := analytics.Event{
		Kind:    "drip",
		ChainID: req.ChainID,
		Address: req.Address,
	}
	if err != nil {
		event.Outcome = errors.Categorize(err).Code
		if txHash, ok := errors.Categorize(err).Details["txHash"].(string); ok {
			event.TxHash = txHash
		}
	} else {
		event.Outcome = string(types.DripRecorded)
		event.Amount = result.Amount
		event.TxHash = result.TxHash
	}
	l.events.Record(ctx, event)
}

func (l *Ledger) recordDonationEvent(ctx context.Context, claim DonationClaim, result *DonationResult, err error) {
	if l.events == nil {
		return
	}
	event := analytics.Event{
		Kind:    "donation",
		ChainID: claim.ChainID,
		TxHash:  claim.TxHash,
	}
	if err != nil {
		event.Outcome = errors.Categorize(err).Code
	} else {
		event.Outcome = "credited"
		event.Address = result.Donor
		event.Amount = result.Amount
	}
	l.events.Record(ctx, event)
}
