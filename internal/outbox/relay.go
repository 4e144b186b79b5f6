package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/rs/zerolog/log"
)

// DefaultMaxAttempts is how many publish attempts an event gets before it is
// parked as FAILED.
const DefaultMaxAttempts = 10

// TxBeginner abstracts pool.Begin for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods the relay needs.
type Store interface {
	ClaimPendingOutboxEvents(ctx context.Context, limit int32) ([]database.OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, id uuid.UUID) error
	MarkOutboxEventFailed(ctx context.Context, arg database.MarkOutboxEventFailedParams) error
}

// NewStore creates a Store bound to a pool or transaction.
type NewStore func(db database.DBTX) Store

// Publisher delivers one committed event. Delivery is at least once;
// consumers dedupe on Event.ID.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Relay moves committed outbox rows to publishers.
type Relay struct {
	pool        TxBeginner
	newStore    NewStore
	publishers  []Publisher
	interval    time.Duration
	batchSize   int32
	maxAttempts int32
}

// NewRelay creates a Relay. Every publisher must accept an event for it to be
// marked processed.
func NewRelay(pool TxBeginner, newStore NewStore, interval time.Duration, batchSize int32, publishers ...Publisher) *Relay {
	return &Relay{
		pool:        pool,
		newStore:    newStore,
		publishers:  publishers,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Run polls for pending events until ctx is cancelled. A full batch is
// followed immediately by another poll.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.interval).Int32("batch_size", r.batchSize).Msg("outbox relay started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("outbox relay: process batch")
		}
		if n == int(r.batchSize) && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch claims up to batchSize pending events, publishes them in
// creation order and records each outcome. It returns how many were claimed.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := r.newStore(tx)
	rows, err := store.ClaimPendingOutboxEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox events: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	for _, row := range rows {
		ev := eventFromRow(row)
		if err := r.publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID.String()).Str("event_type", ev.Type).
				Int32("attempts", row.Attempts+1).Msg("outbox relay: publish failed")
			if err := store.MarkOutboxEventFailed(ctx, database.MarkOutboxEventFailedParams{
				LastError:   err.Error(),
				MaxAttempts: r.maxAttempts,
				ID:          row.ID,
			}); err != nil {
				return 0, fmt.Errorf("mark outbox event failed: %w", err)
			}
			continue
		}
		if err := store.MarkOutboxEventProcessed(ctx, row.ID); err != nil {
			return 0, fmt.Errorf("mark outbox event processed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(rows), nil
}

func (r *Relay) publish(ctx context.Context, ev Event) error {
	for _, p := range r.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func eventFromRow(row database.OutboxEvent) Event {
	return Event{
		ID:          row.ID,
		AggregateID: row.AggregateID,
		OutletID:    row.OutletID,
		Type:        row.EventType,
		Payload:     row.Payload,
		CreatedAt:   row.CreatedAt,
	}
}
