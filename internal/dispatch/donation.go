package dispatch

import (
	"strings"

	"github.com/testnet-faucet/internal/consensus"
	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/types"
)

// VerifyDonation checks a looked-up transaction against the donation
// acceptance predicates: it must be mined successfully, pay the faucet
// address, and carry a positive value. Each rejection names the failed
// predicate so donors can tell a pending transaction from a wrong one.
func VerifyDonation(lookup *consensus.TxLookup, faucetAddress, txHash string) error {
	switch lookup.Status {
	case types.TxStatusPending:
		return errors.NewDonationRejectedError("transaction is not yet mined", txHash)
	case types.TxStatusReverted:
		return errors.NewDonationRejectedError("transaction reverted on chain", txHash)
	}

	if !strings.EqualFold(lookup.To, faucetAddress) {
		return errors.NewDonationRejectedError("transaction does not pay the faucet address", txHash)
	}
	if lookup.Value == nil || lookup.Value.Sign() <= 0 {
		return errors.NewDonationRejectedError("transaction carries no value", txHash)
	}

	return nil
}
