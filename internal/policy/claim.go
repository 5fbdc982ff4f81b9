// Package policy implements the claim sizing policy: the single place that
// decides how large a drip is, and whether the faucet is out of funds.
package policy

import (
	"fmt"
	"math"
)

// Policy maps a pool balance to a bounded drip amount. It is pure: no I/O,
// no side effects, deterministic for a given configuration.
type Policy struct {
	minBalance     float64
	optimalBalance float64
	maxClaim       float64
}

// New validates the thresholds and returns a Policy. The linear ramp is
// undefined when minBalance >= optimalBalance, so that fails here rather
// than at claim time.
func New(minBalance, optimalBalance, maxClaim float64) (*Policy, error) {
	if minBalance >= optimalBalance {
		return nil, fmt.Errorf("minBalance (%v) must be less than optimalBalance (%v)", minBalance, optimalBalance)
	}
	if maxClaim <= 0 {
		return nil, fmt.Errorf("maxClaim must be positive, got %v", maxClaim)
	}

	return &Policy{
		minBalance:     minBalance,
		optimalBalance: optimalBalance,
		maxClaim:       maxClaim,
	}, nil
}

// Claim returns the drip amount for the given pool balance, rounded to four
// decimal places. Zero below minBalance, maxClaim at or above
// optimalBalance, linear in between.
func (p *Policy) Claim(poolBalance float64) float64 {
	if poolBalance < p.minBalance {
		return 0
	}
	if poolBalance >= p.optimalBalance {
		return p.maxClaim
	}

	amount := p.maxClaim * (poolBalance - p.minBalance) / (p.optimalBalance - p.minBalance)
	return math.Round(amount*10000) / 10000
}

// MinBalance returns the configured minimum pool balance.
func (p *Policy) MinBalance() float64 {
	return p.minBalance
}

// MaxClaim returns the configured maximum drip amount.
func (p *Policy) MaxClaim() float64 {
	return p.maxClaim
}
