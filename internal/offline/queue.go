package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/rs/zerolog/log"
)

// Result is what the cashier sees after pressing pay.
type Result struct {
	State   string         `json:"state"`
	Order   *Order         `json:"order,omitempty"`
	EntryID *uuid.UUID     `json:"entry_id,omitempty"`
	Error   *RejectedError `json:"error,omitempty"`
}

// Kicker wakes the syncer early. Satisfied by *Syncer.
type Kicker interface {
	Kick()
}

// Queue runs checkouts against the server and falls back to the local store.
type Queue struct {
	store   Store
	client  Submitter
	kicker  Kicker
	timeout time.Duration
	now     func() time.Time
	newKey  func() uuid.UUID
}

// NewQueue creates a Queue. timeout bounds each live attempt; kicker may be nil.
func NewQueue(store Store, client Submitter, kicker Kicker, timeout time.Duration) *Queue {
	return &Queue{store: store, client: client, kicker: kicker, timeout: timeout, now: time.Now, newKey: uuid.New}
}

// Checkout tries the server once. A definite refusal is FAILED and nothing is
// queued. Any other failure, including a timeout whose outcome is unknown,
// queues the request under its idempotency key and reports PENDING_SYNC.
func (q *Queue) Checkout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("cart is empty")
	}
	key := q.newKey().String()

	attemptCtx, cancel := context.WithTimeout(ctx, q.timeout)
	order, err := q.client.Submit(attemptCtx, key, req)
	cancel()
	if err == nil {
		return &Result{State: StateCompleted, Order: order}, nil
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		log.Info().Str("error_kind", rejected.Kind).Msg("offline: checkout rejected by server")
		return &Result{State: StateFailed, Error: rejected}, nil
	}

	now := q.now().UTC()
	entry := Entry{
		ID:             uuid.New(),
		IdempotencyKey: key,
		Request:        req,
		Status:         enum.QueueStatusPending,
		// The live attempt counts: it may have reached the server, so the
		// first replay must look the key up before resubmitting.
		Attempts:      1,
		LastError:     err.Error(),
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := q.store.Enqueue(ctx, entry); err != nil {
		return nil, fmt.Errorf("queue checkout: %w", err)
	}
	log.Warn().Err(err).Str("entry_id", entry.ID.String()).Str("idempotency_key", key).
		Msg("offline: server unreachable, checkout queued")

	if q.kicker != nil {
		q.kicker.Kick()
	}
	return &Result{State: StatePendingSync, EntryID: &entry.ID}, nil
}
