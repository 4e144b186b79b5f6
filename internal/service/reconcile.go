package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/kiwari-pos/ordercore/internal/payment"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Reconcile outcomes. Only OutcomeApplied changes state.
const (
	OutcomeApplied   = "APPLIED"
	OutcomeDuplicate = "DUPLICATE"
	OutcomeIgnored   = "IGNORED"
)

// paymentSources lists, per target payment status, the stored statuses it
// may be reached from. PAID → UNPAID is never allowed, so nothing moves to UNPAID.
var paymentSources = map[string][]string{
	enum.PaymentStatusPaid:     {enum.PaymentStatusUnpaid},
	enum.PaymentStatusRefunded: {enum.PaymentStatusUnpaid, enum.PaymentStatusPaid},
}

// ReconcileStore defines the DB methods needed to apply payment notifications.
type ReconcileStore interface {
	GetOrderByPaymentReference(ctx context.Context, paymentReference pgtype.Text) (database.Order, error)
	ApplyPaymentStatus(ctx context.Context, arg database.ApplyPaymentStatusParams) (database.Order, error)
	CreateOutboxEvent(ctx context.Context, arg database.CreateOutboxEventParams) (database.OutboxEvent, error)
}

// NewReconcileStore creates a ReconcileStore from a DBTX (pool or tx).
type NewReconcileStore func(db database.DBTX) ReconcileStore

// ReconcileResult describes what a notification did.
type ReconcileResult struct {
	Order         database.Order
	PaymentStatus string
	Outcome       string
}

// ReconcileService applies provider payment notifications to orders.
type ReconcileService struct {
	pool      TxBeginner
	newStore  NewReconcileStore
	serverKey string
	cache     StatusInvalidator
}

// NewReconcileService creates a new ReconcileService. cache may be nil.
func NewReconcileService(pool TxBeginner, newStore NewReconcileStore, serverKey string, cache StatusInvalidator) *ReconcileService {
	return &ReconcileService{pool: pool, newStore: newStore, serverKey: serverKey, cache: cache}
}

// Reconcile verifies and applies one notification. Redelivery of an already
// applied notification is a DUPLICATE no-op; a move the payment state machine
// forbids is IGNORED. Neither is an error.
func (s *ReconcileService) Reconcile(ctx context.Context, n payment.Notification) (*ReconcileResult, error) {
	if !payment.VerifySignature(n, s.serverKey) {
		log.Warn().Str("reference", n.OrderID).Str("transaction_status", n.TransactionStatus).
			Msg("reconcile: rejected notification with invalid signature")
		return nil, ErrInvalidSignature
	}

	target := payment.MapTransactionStatus(n.TransactionStatus, n.FraudStatus)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	ref := pgtype.Text{String: n.OrderID, Valid: true}

	current, err := store.GetOrderByPaymentReference(ctx, ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by payment reference: %w", err)
	}

	if target == enum.PaymentStatusPaid {
		amount, err := decimal.NewFromString(n.GrossAmount)
		if err != nil {
			return nil, ErrInvalidAmount
		}
		if total := NumericToDecimal(current.TotalAmount); !amount.Equal(total) {
			log.Warn().Str("order_number", current.OrderNumber).Str("gross_amount", n.GrossAmount).
				Str("total_amount", total.StringFixed(2)).Msg("reconcile: amount mismatch")
			return nil, ErrAmountMismatch
		}
	}

	allowed := paymentSources[target]
	if len(allowed) == 0 {
		return s.noop(current, target, n), nil
	}

	updated, err := store.ApplyPaymentStatus(ctx, database.ApplyPaymentStatusParams{
		PaymentStatus:    target,
		PaymentReference: ref,
		AllowedFrom:      allowed,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("apply payment status: %w", err)
		}
		// The conditional update matched nothing; re-read to tell a
		// redelivery from a forbidden move.
		latest, err := store.GetOrderByPaymentReference(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("get order by payment reference: %w", err)
		}
		return s.noop(latest, target, n), nil
	}

	payload, err := json.Marshal(outbox.PaymentUpdated{
		OrderID:           updated.ID,
		OrderNumber:       updated.OrderNumber,
		OutletID:          updated.OutletID,
		PaymentReference:  n.OrderID,
		From:              current.PaymentStatus,
		To:                updated.PaymentStatus,
		TransactionStatus: n.TransactionStatus,
		UpdatedAt:         eventTime(updated.UpdatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order.payment_updated: %w", err)
	}
	if _, err := store.CreateOutboxEvent(ctx, database.CreateOutboxEventParams{
		AggregateID: updated.ID,
		OutletID:    updated.OutletID,
		EventType:   enum.EventOrderPaymentUpdated,
		Payload:     payload,
	}); err != nil {
		return nil, fmt.Errorf("create outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, updated.ID)
	}

	log.Info().Str("order_number", updated.OrderNumber).Str("from", current.PaymentStatus).
		Str("to", updated.PaymentStatus).Msg("reconcile: payment status applied")

	return &ReconcileResult{Order: updated, PaymentStatus: updated.PaymentStatus, Outcome: OutcomeApplied}, nil
}

func (s *ReconcileService) noop(order database.Order, target string, n payment.Notification) *ReconcileResult {
	if order.PaymentStatus == target {
		log.Debug().Str("order_number", order.OrderNumber).Str("payment_status", target).
			Msg("reconcile: duplicate notification")
		return &ReconcileResult{Order: order, PaymentStatus: order.PaymentStatus, Outcome: OutcomeDuplicate}
	}
	log.Warn().Str("order_number", order.OrderNumber).Str("stored", order.PaymentStatus).
		Str("target", target).Str("transaction_status", n.TransactionStatus).
		Msg("reconcile: ignored notification that would move payment backwards")
	return &ReconcileResult{Order: order, PaymentStatus: order.PaymentStatus, Outcome: OutcomeIgnored}
}
