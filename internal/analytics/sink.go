// Package analytics ships faucet activity events to ClickHouse. The sink
// is best effort: drip and donation outcomes never fail because an
// analytics write failed.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/testnet-faucet/internal/logging"
	"github.com/testnet-faucet/internal/storage"
)

// Event is one faucet activity record.
type Event struct {
	Kind      string // "drip" or "donation"
	Outcome   string // terminal state or error code
	ChainID   int64
	Address   string
	Amount    float64
	TxHash    string
	Timestamp time.Time
}

// Sink writes events to ClickHouse asynchronously through a buffered
// channel. A full buffer drops the event rather than blocking a request.
type Sink struct {
	db     *storage.ClickHouseDB
	logger *logging.Logger
	events chan Event
	done   chan struct{}
}

// NewSink creates and starts a sink. db may be nil, in which case events
// are discarded; that keeps analytics optional in local setups.
func NewSink(db *storage.ClickHouseDB, logger *logging.Logger) *Sink {
	s := &Sink{
		db:     db,
		logger: logger,
		events: make(chan Event, 1024),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues an event, dropping it if the buffer is full.
func (s *Sink) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case s.events <- event:
	default:
		s.logger.WithField("kind", event.Kind).Debug("analytics buffer full, dropping event")
	}
}

// Close stops the writer after draining buffered events.
func (s *Sink) Close() {
	close(s.events)
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for event := range s.events {
		if s.db == nil {
			continue
		}
		s.write(event)
	}
}

func (s *Sink) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO faucet_events (id, kind, outcome, chain_id, address, amount, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.db.Exec(ctx, query,
		uuid.New().String(),
		event.Kind,
		event.Outcome,
		event.ChainID,
		event.Address,
		event.Amount,
		event.TxHash,
		event.Timestamp,
	)
	if err != nil {
		s.logger.WithError(err).WithField("kind", event.Kind).Warn("failed to write analytics event")
	}
}

// EnsureSchema creates the events table if it does not exist.
func EnsureSchema(ctx context.Context, db *storage.ClickHouseDB) error {
	query := `
		CREATE TABLE IF NOT EXISTS faucet_events (
			id String,
			kind LowCardinality(String),
			outcome LowCardinality(String),
			chain_id Int64,
			address String,
			amount Float64,
			tx_hash String,
			created_at DateTime
		) ENGINE = MergeTree()
		ORDER BY (created_at, chain_id)
	`
	return db.Exec(ctx, query)
}
