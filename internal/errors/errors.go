// Package errors provides the categorized error taxonomy for the faucet
// service and its mapping onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/testnet-faucet/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryRateLimit represents the expected steady-state cooldown condition
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryIdentity represents identity gate denials
	CategoryIdentity ErrorCategory = "identity"
	// CategoryNetwork represents unsupported or unknown chain errors
	CategoryNetwork ErrorCategory = "network"
	// CategoryRPC represents upstream RPC endpoint failures
	CategoryRPC ErrorCategory = "rpc"
	// CategoryDispatch represents transfer broadcast failures
	CategoryDispatch ErrorCategory = "dispatch"
	// CategoryDatabase represents persistence failures
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// Error codes surfaced to callers.
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidAddress       = "INVALID_ADDRESS"
	CodeInvalidTxHash        = "INVALID_TX_HASH"
	CodeRateLimited          = "RATE_LIMITED"
	CodeIdentityDenied       = "IDENTITY_DENIED"
	CodeUnsupportedNetwork   = "UNSUPPORTED_NETWORK"
	CodeNetworkNotFound      = "NETWORK_NOT_FOUND"
	CodeNoQuorum             = "NO_QUORUM"
	CodeNoLiquidity          = "NO_LIQUIDITY"
	CodeDispatchFailed       = "DISPATCH_FAILED"
	CodeDispatchedUnrecorded = "DISPATCHED_UNRECORDED"
	CodeDuplicateDonation    = "DUPLICATE_DONATION"
	CodeDonationRejected     = "DONATION_REJECTED"
	CodeDatabaseError        = "DATABASE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for the API boundary
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidInputError creates an invalid input error
func NewInvalidInputError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidInput,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidAddress,
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidTxHashError creates an invalid transaction hash error
func NewInvalidTxHashError(hash string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidTxHash,
		Message:    fmt.Sprintf("invalid transaction hash: %s", hash),
		Details: map[string]interface{}{
			"txHash": hash,
		},
	}
}

// NewRateLimitedError creates a cooldown error carrying the recovery time.
// This is an expected steady-state condition, not a failure.
func NewRateLimitedError(scope string, nextAvailableAt time.Time) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("claim window not yet elapsed for %s", scope),
		Details: map[string]interface{}{
			"scope":           scope,
			"nextAvailableAt": nextAvailableAt.UTC().Format(time.RFC3339),
		},
	}
}

// NewIdentityDeniedError creates an identity gate denial with remediation guidance
func NewIdentityDeniedError(reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryIdentity,
		StatusCode: http.StatusForbidden,
		Code:       CodeIdentityDenied,
		Message:    reason,
	}
}

// NewUnsupportedNetworkError creates an error for a chain that exists
// upstream but fails the test-network validation predicate
func NewUnsupportedNetworkError(chainID int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNetwork,
		StatusCode: http.StatusNotFound,
		Code:       CodeUnsupportedNetwork,
		Message:    fmt.Sprintf("network %d is not a supported test network", chainID),
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// NewNetworkNotFoundError creates an error for an unknown chain ID
func NewNetworkNotFoundError(chainID int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNetwork,
		StatusCode: http.StatusNotFound,
		Code:       CodeNetworkNotFound,
		Message:    fmt.Sprintf("network %d not found", chainID),
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// NewNoQuorumError creates an error for the case where no RPC endpoint
// produced a usable answer
func NewNoQuorumError(chainID int64, queried int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRPC,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeNoQuorum,
		Message:    fmt.Sprintf("no RPC endpoint for network %d returned a usable response", chainID),
		Details: map[string]interface{}{
			"chainId": chainID,
			"queried": queried,
		},
	}
}

// NewNoLiquidityError creates an error for an exhausted pool
func NewNoLiquidityError(chainID int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDispatch,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeNoLiquidity,
		Message:    fmt.Sprintf("faucet pool on network %d is below the minimum payout balance", chainID),
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// NewDispatchFailedError creates an error for a broadcast that failed on
// every working endpoint. No funds moved; the whole unit is safe to retry.
func NewDispatchFailedError(chainID int64, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDispatch,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeDispatchFailed,
		Message:    fmt.Sprintf("transfer broadcast failed on network %d", chainID),
		Cause:      cause,
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// NewDispatchedUnrecordedError creates the partial-failure error: the
// transfer was broadcast but bookkeeping did not commit. The broadcast is
// irreversible, so this must never be retried automatically.
func NewDispatchedUnrecordedError(chainID int64, txHash string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDispatch,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDispatchedUnrecorded,
		Message:    "transfer was broadcast but accounting failed to commit; manual reconciliation required",
		Cause:      cause,
		Details: map[string]interface{}{
			"chainId": chainID,
			"txHash":  txHash,
		},
	}
}

// NewDuplicateDonationError creates a rejection for an already recorded donation
func NewDuplicateDonationError(txHash string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeDuplicateDonation,
		Message:    "donation transaction already recorded",
		Details: map[string]interface{}{
			"txHash": txHash,
		},
	}
}

// NewDonationRejectedError creates a donation verification rejection with a
// specific user-facing reason
func NewDonationRejectedError(reason string, txHash string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeDonationRejected,
		Message:    reason,
		Details: map[string]interface{}{
			"txHash": txHash,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsRetryable reports whether retrying the whole unit is safe. Anything
// after a broadcast is not: retrying a DISPATCHED_UNRECORDED state would
// double-send funds.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Code {
	case CodeDispatchedUnrecorded:
		return false
	case CodeNoQuorum, CodeDispatchFailed, CodeDatabaseError:
		return true
	default:
		return false
	}
}
