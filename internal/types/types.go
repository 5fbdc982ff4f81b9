// Package types provides common type definitions for the faucet service.
package types

import (
	"regexp"
	"strings"
)

// TxStatus represents the on-chain status of a transaction.
type TxStatus string

const (
	// TxStatusSuccess represents a transaction mined with a successful receipt
	TxStatusSuccess TxStatus = "success"
	// TxStatusReverted represents a transaction mined with a failed receipt
	TxStatusReverted TxStatus = "reverted"
	// TxStatusPending represents a transaction not yet mined
	TxStatusPending TxStatus = "pending"
)

// DripState represents the stage a drip request has reached inside the
// ledger's atomic unit. Error exits before DripDispatched roll back cleanly;
// error exits after it are partial failures.
type DripState string

const (
	DripReceived         DripState = "received"
	DripRateLimitChecked DripState = "rate_limit_checked"
	DripIdentityAdmitted DripState = "identity_admitted"
	DripBalanceAppraised DripState = "balance_appraised"
	DripDispatched       DripState = "dispatched"
	DripRecorded         DripState = "recorded"
)

// Freshness describes how current a registry resolution is.
type Freshness string

const (
	// FreshnessFresh means the snapshot was refreshed within its validity window
	FreshnessFresh Freshness = "fresh"
	// FreshnessStale means the upstream refresh failed and a previous snapshot was served
	FreshnessStale Freshness = "stale"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ZeroAddress is the null EVM address, never a valid faucet recipient.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// IsValidAddress reports whether s is a well-formed, non-zero EVM address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s) && !strings.EqualFold(s, ZeroAddress)
}

// IsValidTxHash reports whether s is a well-formed 32-byte transaction hash.
func IsValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}
