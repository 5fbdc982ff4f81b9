package errors

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	nextAt := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid input", NewInvalidInputError("address", "missing"), http.StatusBadRequest},
		{"invalid address", NewInvalidAddressError("0x123"), http.StatusBadRequest},
		{"invalid tx hash", NewInvalidTxHashError("0x123"), http.StatusBadRequest},
		{"rate limited", NewRateLimitedError("wallet", nextAt), http.StatusTooManyRequests},
		{"identity denied", NewIdentityDeniedError("no proof"), http.StatusForbidden},
		{"unsupported network", NewUnsupportedNetworkError(1), http.StatusNotFound},
		{"network not found", NewNetworkNotFoundError(999), http.StatusNotFound},
		{"no quorum", NewNoQuorumError(11155111, 3), http.StatusServiceUnavailable},
		{"no liquidity", NewNoLiquidityError(11155111), http.StatusServiceUnavailable},
		{"dispatch failed", NewDispatchFailedError(11155111, errors.New("boom")), http.StatusServiceUnavailable},
		{"dispatched unrecorded", NewDispatchedUnrecordedError(11155111, "0xabc", errors.New("boom")), http.StatusInternalServerError},
		{"duplicate donation", NewDuplicateDonationError("0xabc"), http.StatusBadRequest},
		{"donation rejected", NewDonationRejectedError("reverted", "0xabc"), http.StatusBadRequest},
		{"database error", NewDatabaseError("commit", errors.New("boom")), http.StatusInternalServerError},
		{"internal error", NewInternalError("boom", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestRateLimitedDetails(t *testing.T) {
	nextAt := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	err := NewRateLimitedError("wallet", nextAt)

	assert.Equal(t, "wallet", err.Details["scope"])
	assert.Equal(t, "2026-02-11T12:00:00Z", err.Details["nextAvailableAt"])
}

func TestIsRetryable(t *testing.T) {
	t.Run("safe to retry before funds move", func(t *testing.T) {
		assert.True(t, IsRetryable(NewNoQuorumError(1, 3)))
		assert.True(t, IsRetryable(NewDispatchFailedError(1, errors.New("boom"))))
		assert.True(t, IsRetryable(NewDatabaseError("read", errors.New("boom"))))
	})

	t.Run("never retry after a broadcast", func(t *testing.T) {
		assert.False(t, IsRetryable(NewDispatchedUnrecordedError(1, "0xabc", errors.New("boom"))))
	})

	t.Run("user errors are not retried", func(t *testing.T) {
		assert.False(t, IsRetryable(NewInvalidAddressError("0x123")))
		assert.False(t, IsRetryable(NewIdentityDeniedError("denied")))
	})
}

func TestCategorize(t *testing.T) {
	t.Run("unwraps a wrapped categorized error", func(t *testing.T) {
		inner := NewNoLiquidityError(1)
		wrapped := &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       CodeInternalError,
			Message:    "outer",
			Cause:      inner,
		}

		assert.Equal(t, CodeInternalError, Categorize(wrapped).Code)
		assert.True(t, IsCode(wrapped, CodeInternalError))
	})

	t.Run("wraps a plain error as internal", func(t *testing.T) {
		catErr := Categorize(errors.New("boom"))
		require.NotNil(t, catErr)
		assert.Equal(t, CodeInternalError, catErr.Code)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Categorize(nil))
	})
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewInvalidAddressError("0x1")))
	assert.True(t, IsUserError(NewRateLimitedError("ip", time.Now())))
	assert.False(t, IsUserError(NewNoQuorumError(1, 1)))
	assert.False(t, IsUserError(NewDispatchedUnrecordedError(1, "0x", nil)))
}
