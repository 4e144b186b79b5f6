package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/rs/zerolog/log"
)

const maxTransitionAttempts = 3

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can transition to.
// COMPLETED and CANCELLED are terminal.
var allowedTransitions = map[string][]string{
	enum.OrderStatusNew:        {enum.OrderStatusInProgress, enum.OrderStatusCancelled},
	enum.OrderStatusInProgress: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:      {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

// CanTransition reports whether from → to is a single allowed step.
func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no transition leaves the status.
func IsTerminalStatus(s string) bool {
	return s == enum.OrderStatusCompleted || s == enum.OrderStatusCancelled
}

// LifecycleStore defines the DB methods needed to move an order between states.
type LifecycleStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CreateOutboxEvent(ctx context.Context, arg database.CreateOutboxEventParams) (database.OutboxEvent, error)
}

// NewLifecycleStore creates a LifecycleStore from a DBTX (pool or tx).
type NewLifecycleStore func(db database.DBTX) LifecycleStore

// StatusInvalidator drops cached status views of an order.
type StatusInvalidator interface {
	Invalidate(ctx context.Context, orderID uuid.UUID)
}

// LifecycleService enforces the order state machine.
type LifecycleService struct {
	pool     TxBeginner
	newStore NewLifecycleStore
	cache    StatusInvalidator
}

// NewLifecycleService creates a new LifecycleService. cache may be nil.
func NewLifecycleService(pool TxBeginner, newStore NewLifecycleStore, cache StatusInvalidator) *LifecycleService {
	return &LifecycleService{pool: pool, newStore: newStore, cache: cache}
}

// errLostRace signals that the row changed between read and conditional write.
var errLostRace = errors.New("order status changed concurrently")

// Transition moves an order one step along the lifecycle. The write is a
// compare-and-set on the status that was read; if another writer got there
// first the transition is re-validated against the new status.
func (s *LifecycleService) Transition(ctx context.Context, outletID, orderID uuid.UUID, next string, actor uuid.UUID) (database.Order, error) {
	if !enum.IsOrderStatus(next) {
		return database.Order{}, ErrInvalidStatus
	}

	var lastErr error
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := s.transitionTx(ctx, outletID, orderID, next, actor)
		if err == nil {
			if s.cache != nil {
				s.cache.Invalidate(ctx, order.ID)
			}
			return order, nil
		}
		if !errors.Is(err, errLostRace) {
			return database.Order{}, err
		}
		lastErr = err
		log.Debug().Str("order_id", orderID.String()).Int("attempt", attempt+1).Msg("lifecycle: lost status race, retrying")
	}
	return database.Order{}, fmt.Errorf("transition order: %w", lastErr)
}

func (s *LifecycleService) transitionTx(ctx context.Context, outletID, orderID uuid.UUID, next string, actor uuid.UUID) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if !CanTransition(current.Status, next) {
		return database.Order{}, &TransitionError{From: current.Status, To: next}
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		Status:         next,
		ID:             orderID,
		OutletID:       outletID,
		ExpectedStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, errLostRace
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	payload, err := json.Marshal(outbox.StatusChanged{
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		OutletID:    updated.OutletID,
		TableNumber: updated.TableNumber.String,
		From:        current.Status,
		To:          updated.Status,
		ChangedBy:   actor,
		ChangedAt:   eventTime(updated.UpdatedAt),
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("marshal order.status_changed: %w", err)
	}
	if _, err := store.CreateOutboxEvent(ctx, database.CreateOutboxEventParams{
		AggregateID: updated.ID,
		OutletID:    updated.OutletID,
		EventType:   enum.EventOrderStatusChanged,
		Payload:     payload,
	}); err != nil {
		return database.Order{}, fmt.Errorf("create outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
