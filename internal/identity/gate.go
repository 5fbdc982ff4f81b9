// Package identity gates drip requests behind either demonstrated
// donation history or a third-party reputation score.
package identity

import (
	"context"

	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/models"
)

// ScoreOracle answers whether a submitted proof token vouches for the
// requester, and with what reputation score.
type ScoreOracle interface {
	Verify(ctx context.Context, address, token string) (ok bool, score float64, err error)
}

// Admission explains how a requester got through the gate.
type Admission struct {
	Path  string // "donation_trust" or "reputation_score"
	Score float64
}

const (
	// PathDonationTrust admits accounts with enough cumulative donations.
	PathDonationTrust = "donation_trust"
	// PathReputationScore admits requesters vouched for by the score oracle.
	PathReputationScore = "reputation_score"
)

// Gate evaluates the two admission paths in order. Donation trust is
// checked first so established donors never depend on oracle uptime.
type Gate struct {
	oracle           ScoreOracle
	donationTrustMin float64
	scoreThreshold   float64
	logger           *logging.Logger
}

// NewGate creates an identity gate.
func NewGate(oracle ScoreOracle, donationTrustMin, scoreThreshold float64, logger *logging.Logger) *Gate {
	return &Gate{
		oracle:           oracle,
		donationTrustMin: donationTrustMin,
		scoreThreshold:   scoreThreshold,
		logger:           logger,
	}
}

// Admit decides whether the requester may drip. account may be nil for
// first-time requesters, which forces the reputation path.
func (g *Gate) Admit(ctx context.Context, account *models.Account, address, token string) (Admission, error) {
	if account != nil && account.TotalDonations >= g.donationTrustMin {
		g.logger.WithField("address", address).
			WithField("totalDonations", account.TotalDonations).
			Debug("admitted on donation trust")
		return Admission{Path: PathDonationTrust}, nil
	}

	if token == "" {
		return Admission{}, errors.NewIdentityDeniedError(
			"no reputation proof supplied; donate to the faucet or submit a valid proof token")
	}

	ok, score, err := g.oracle.Verify(ctx, address, token)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Warn("score oracle verification failed")
		return Admission{}, errors.NewIdentityDeniedError("reputation proof could not be verified")
	}
	if !ok {
		return Admission{}, errors.NewIdentityDeniedError("reputation proof was rejected")
	}
	if score < g.scoreThreshold {
		g.logger.WithField("address", address).
			WithField("score", score).
			WithField("threshold", g.scoreThreshold).
			Debug("score below threshold")
		return Admission{}, errors.NewIdentityDeniedError(
			"reputation score is below the faucet threshold; donate to the faucet to build trust")
	}

	return Admission{Path: PathReputationScore, Score: score}, nil
}
