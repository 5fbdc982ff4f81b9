package models

import "time"

// RateLimitRecord tracks the cooldown state for one (wallet, ip, network)
// triple. LastRequestAt never regresses.
type RateLimitRecord struct {
	ID            string    `json:"id" db:"id"`
	WalletAddress string    `json:"walletAddress" db:"wallet_address"`
	IPAddress     string    `json:"ipAddress" db:"ip_address"`
	NetworkID     int64     `json:"networkId" db:"network_id"`
	LastRequestAt time.Time `json:"lastRequestAt" db:"last_request_at"`
	RequestCount  int       `json:"requestCount" db:"request_count"`
	IntervalStart time.Time `json:"intervalStart" db:"interval_start"`
}

// DonationRecord represents a verified inbound donation. Immutable once
// created; only written after on-chain verification succeeds.
type DonationRecord struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	NetworkID int64     `json:"networkId" db:"network_id"`
	Amount    float64   `json:"amount" db:"amount"`
	TxHash    string    `json:"txHash" db:"tx_hash"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// RequestRecord represents one outbound drip. Amount reflects what was
// actually broadcast, not merely requested. Immutable once created.
type RequestRecord struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"userId" db:"user_id"`
	IPAddressID string    `json:"ipAddressId" db:"ip_address_id"`
	NetworkID   int64     `json:"networkId" db:"network_id"`
	Amount      float64   `json:"amount" db:"amount"`
	TxHash      string    `json:"txHash" db:"tx_hash"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
