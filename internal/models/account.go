// Package models provides data models for the faucet service.
package models

import "time"

// Account represents a wallet that has interacted with the faucet. Created
// lazily on first donation or drip request, never deleted. All aggregate
// fields are monotonically non-decreasing.
type Account struct {
	ID             string     `json:"id" db:"id"`
	Address        string     `json:"address" db:"address"`
	TotalDonations float64    `json:"totalDonations" db:"total_donations"`
	TotalRequests  float64    `json:"totalRequests" db:"total_requests"`
	DonationCount  int        `json:"donationCount" db:"donation_count"`
	RequestCount   int        `json:"requestCount" db:"request_count"`
	LastDonationAt *time.Time `json:"lastDonationAt,omitempty" db:"last_donation_at"`
	LastRequestAt  *time.Time `json:"lastRequestAt,omitempty" db:"last_request_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// IPAddress represents a client IP seen by the faucet, keyed by the raw
// address string. Same lazy lifecycle as Account.
type IPAddress struct {
	ID           string    `json:"id" db:"id"`
	Address      string    `json:"address" db:"address"`
	LastSeenAt   time.Time `json:"lastSeenAt" db:"last_seen_at"`
	RequestCount int       `json:"requestCount" db:"request_count"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
