package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/testnet-faucet/internal/models"
)

// UnitOfWork is the transactional surface the ledger operates on. Every
// read and write between the rate-limit check and the final commit goes
// through one UnitOfWork; Commit makes all of it durable, Rollback discards
// all of it. The unit is passed explicitly through the call chain rather
// than held in ambient session state.
type UnitOfWork interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// GetAccountByAddress returns nil (not an error) when no account exists.
	GetAccountByAddress(ctx context.Context, address string) (*models.Account, error)
	CreateAccount(ctx context.Context, address string) (*models.Account, error)
	ApplyDrip(ctx context.Context, accountID string, amount float64, at time.Time) error
	ApplyDonation(ctx context.Context, accountID string, amount float64, at time.Time) error

	TouchIPAddress(ctx context.Context, ip string, at time.Time) (*models.IPAddress, error)

	InsertRequestRecord(ctx context.Context, rec *models.RequestRecord) error
	InsertDonationRecord(ctx context.Context, rec *models.DonationRecord) error
	DonationExists(ctx context.Context, txHash string) (bool, error)

	// WalletLastRequest and IPLastRequest return nil when the wallet or IP
	// has never dripped on the network.
	WalletLastRequest(ctx context.Context, wallet string, networkID int64) (*time.Time, error)
	IPLastRequest(ctx context.Context, ip string, networkID int64) (*time.Time, error)
	CommitRateLimit(ctx context.Context, wallet, ip string, networkID int64, at time.Time) error
}

// FaucetStore opens units of work against Postgres.
type FaucetStore struct {
	db *PostgresDB
}

// NewFaucetStore creates a new faucet store
func NewFaucetStore(db *PostgresDB) *FaucetStore {
	return &FaucetStore{db: db}
}

// Begin opens a transactional unit of work.
func (s *FaucetStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.Pool().BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	return &pgUnitOfWork{tx: tx}, nil
}

// DB returns the underlying database handle.
func (s *FaucetStore) DB() *PostgresDB {
	return s.db
}
