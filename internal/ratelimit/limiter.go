package ratelimit

import (
	"context"
	"time"

	"github.com/testnet-faucet/internal/storage"
)

// Decision is the outcome of a rolling-window check for one scope.
type Decision struct {
	CanRequest      bool
	LastRequestAt   *time.Time
	NextAvailableAt time.Time
}

// Limiter enforces one accepted drip per rolling window for a wallet and
// for a client IP, independently per network. State lives in Postgres so
// restarts do not reset open windows.
type Limiter struct {
	window time.Duration
}

// NewLimiter creates a limiter with the given rolling window.
func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{window: window}
}

// Window returns the configured rolling window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// CheckWallet checks the wallet scope against the rolling window.
func (l *Limiter) CheckWallet(ctx context.Context, uow storage.UnitOfWork, wallet string, networkID int64, now time.Time) (Decision, error) {
	last, err := uow.WalletLastRequest(ctx, wallet, networkID)
	if err != nil {
		return Decision{}, err
	}
	return l.decide(last, now), nil
}

// CheckIP checks the client IP scope against the rolling window.
func (l *Limiter) CheckIP(ctx context.Context, uow storage.UnitOfWork, ip string, networkID int64, now time.Time) (Decision, error) {
	last, err := uow.IPLastRequest(ctx, ip, networkID)
	if err != nil {
		return Decision{}, err
	}
	return l.decide(last, now), nil
}

// Commit records an accepted drip against both scopes at once. It is
// called inside the same unit of work as the checks so a failed drip
// never consumes the window.
func (l *Limiter) Commit(ctx context.Context, uow storage.UnitOfWork, wallet, ip string, networkID int64, at time.Time) error {
	return uow.CommitRateLimit(ctx, wallet, ip, networkID, at)
}

// decide applies the rolling-window rule: a scope with no prior drip, or
// whose last drip is at least one window old, may request again.
func (l *Limiter) decide(last *time.Time, now time.Time) Decision {
	if last == nil {
		return Decision{CanRequest: true, NextAvailableAt: now}
	}
	next := last.Add(l.window)
	if !next.After(now) {
		return Decision{CanRequest: true, LastRequestAt: last, NextAvailableAt: now}
	}
	return Decision{CanRequest: false, LastRequestAt: last, NextAvailableAt: next}
}
