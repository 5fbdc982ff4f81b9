package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/testnet-faucet/internal/models"
)

// pgUniqueViolation is the Postgres error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// pgUnitOfWork implements UnitOfWork over a pgx transaction.
type pgUnitOfWork struct {
	tx pgx.Tx
}

func (u *pgUnitOfWork) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *pgUnitOfWork) Rollback(ctx context.Context) error {
	return u.tx.Rollback(ctx)
}

// GetAccountByAddress retrieves an account by wallet address, nil when absent
func (u *pgUnitOfWork) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	query := `
		SELECT id, address, total_donations, total_requests, donation_count,
		       request_count, last_donation_at, last_request_at, created_at, updated_at
		FROM accounts
		WHERE lower(address) = lower($1)
	`

	var account models.Account
	err := u.tx.QueryRow(ctx, query, address).Scan(
		&account.ID,
		&account.Address,
		&account.TotalDonations,
		&account.TotalRequests,
		&account.DonationCount,
		&account.RequestCount,
		&account.LastDonationAt,
		&account.LastRequestAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// CreateAccount creates an account with zeroed aggregates
func (u *pgUnitOfWork) CreateAccount(ctx context.Context, address string) (*models.Account, error) {
	now := time.Now()
	account := &models.Account{
		ID:        uuid.New().String(),
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO accounts (id, address, total_donations, total_requests,
		                      donation_count, request_count, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, $3, $4)
	`

	if _, err := u.tx.Exec(ctx, query, account.ID, account.Address, account.CreatedAt, account.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// ApplyDrip bumps the account's request aggregates. Aggregates only grow.
func (u *pgUnitOfWork) ApplyDrip(ctx context.Context, accountID string, amount float64, at time.Time) error {
	query := `
		UPDATE accounts
		SET total_requests = total_requests + $2,
		    request_count = request_count + 1,
		    last_request_at = $3,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := u.tx.Exec(ctx, query, accountID, amount, at)
	if err != nil {
		return fmt.Errorf("failed to apply drip to account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}

	return nil
}

// ApplyDonation bumps the account's donation aggregates.
func (u *pgUnitOfWork) ApplyDonation(ctx context.Context, accountID string, amount float64, at time.Time) error {
	query := `
		UPDATE accounts
		SET total_donations = total_donations + $2,
		    donation_count = donation_count + 1,
		    last_donation_at = $3,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := u.tx.Exec(ctx, query, accountID, amount, at)
	if err != nil {
		return fmt.Errorf("failed to apply donation to account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}

	return nil
}

// TouchIPAddress upserts the client IP and bumps its request count.
func (u *pgUnitOfWork) TouchIPAddress(ctx context.Context, ip string, at time.Time) (*models.IPAddress, error) {
	query := `
		INSERT INTO ip_addresses (id, address, last_seen_at, request_count, created_at)
		VALUES ($1, $2, $3, 1, $3)
		ON CONFLICT (address)
		DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at,
		              request_count = ip_addresses.request_count + 1
		RETURNING id, address, last_seen_at, request_count, created_at
	`

	var record models.IPAddress
	err := u.tx.QueryRow(ctx, query, uuid.New().String(), ip, at).Scan(
		&record.ID,
		&record.Address,
		&record.LastSeenAt,
		&record.RequestCount,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to touch ip address: %w", err)
	}

	return &record, nil
}

// InsertRequestRecord writes one drip record
func (u *pgUnitOfWork) InsertRequestRecord(ctx context.Context, rec *models.RequestRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO requests (id, user_id, ip_address_id, network_id, amount, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := u.tx.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.IPAddressID,
		rec.NetworkID,
		rec.Amount,
		rec.TxHash,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}

	return nil
}

// InsertDonationRecord writes one verified donation record
func (u *pgUnitOfWork) InsertDonationRecord(ctx context.Context, rec *models.DonationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO donations (id, user_id, network_id, amount, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := u.tx.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.NetworkID,
		rec.Amount,
		rec.TxHash,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert donation record: %w", err)
	}

	return nil
}

// DonationExists checks for an already recorded donation hash
func (u *pgUnitOfWork) DonationExists(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM donations WHERE lower(tx_hash) = lower($1))`

	if err := u.tx.QueryRow(ctx, query, txHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check donation existence: %w", err)
	}

	return exists, nil
}

// WalletLastRequest returns the most recent accepted drip time for the
// wallet on the network, nil when it has never dripped there.
func (u *pgUnitOfWork) WalletLastRequest(ctx context.Context, wallet string, networkID int64) (*time.Time, error) {
	query := `
		SELECT MAX(last_request_at)
		FROM rate_limits
		WHERE lower(wallet_address) = lower($1) AND network_id = $2
	`

	var last *time.Time
	if err := u.tx.QueryRow(ctx, query, wallet, networkID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read wallet rate limit: %w", err)
	}

	return last, nil
}

// IPLastRequest returns the most recent accepted drip time for the IP on
// the network, nil when it has never dripped there.
func (u *pgUnitOfWork) IPLastRequest(ctx context.Context, ip string, networkID int64) (*time.Time, error) {
	query := `
		SELECT MAX(last_request_at)
		FROM rate_limits
		WHERE ip_address = $1 AND network_id = $2
	`

	var last *time.Time
	if err := u.tx.QueryRow(ctx, query, ip, networkID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read ip rate limit: %w", err)
	}

	return last, nil
}

// CommitRateLimit records an accepted drip against the (wallet, ip,
// network) triple: update-if-exists, else optimistic insert. A duplicate
// key error during concurrent inserts means another writer already
// satisfied the invariant, so it is swallowed as a benign race. The update
// guard keeps last_request_at from regressing.
func (u *pgUnitOfWork) CommitRateLimit(ctx context.Context, wallet, ip string, networkID int64, at time.Time) error {
	update := `
		UPDATE rate_limits
		SET last_request_at = $4,
		    request_count = request_count + 1,
		    interval_start = $4
		WHERE lower(wallet_address) = lower($1) AND ip_address = $2 AND network_id = $3
		  AND last_request_at <= $4
	`

	result, err := u.tx.Exec(ctx, update, wallet, ip, networkID, at)
	if err != nil {
		return fmt.Errorf("failed to update rate limit: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	insert := `
		INSERT INTO rate_limits (id, wallet_address, ip_address, network_id,
		                         last_request_at, request_count, interval_start)
		VALUES ($1, $2, $3, $4, $5, 1, $5)
	`

	if _, err := u.tx.Exec(ctx, insert, uuid.New().String(), wallet, ip, networkID, at); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil
		}
		return fmt.Errorf("failed to insert rate limit: %w", err)
	}

	return nil
}
