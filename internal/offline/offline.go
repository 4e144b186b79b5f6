// Package offline lets a POS terminal keep selling while the order server is
// unreachable. Checkouts that cannot reach the server are stored locally with
// an idempotency key and replayed later, so each one becomes exactly one order.
package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkout outcomes reported to the cashier.
const (
	StateCompleted   = "COMPLETED"
	StatePendingSync = "PENDING_SYNC"
	StateFailed      = "FAILED"
)

var (
	// ErrUnavailable means the server could not be reached or did not give
	// a definite answer. The request may or may not have been applied.
	ErrUnavailable = errors.New("order server unavailable")

	// ErrNotFound means the server has no order for an idempotency key.
	ErrNotFound = errors.New("no order for idempotency key")

	// ErrEntryNotFound is returned by stores for unknown queue ids.
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrInvalidState is returned when an operator action does not apply
	// to the entry's current status.
	ErrInvalidState = errors.New("queue entry is not in a state that allows this action")
)

// RejectedError is a definite refusal from the server. Nothing was recorded
// and replaying the same request will be refused again until the catalog
// changes.
type RejectedError struct {
	Kind    string
	Message string
	Details map[string]any
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// CheckoutRequest is the cart as sent to the order server.
type CheckoutRequest struct {
	TableNumber   string `json:"table_number,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	PaymentMethod string `json:"payment_method"`
	Source        string `json:"source,omitempty"`
	Items         []Line `json:"items"`
}

// Line is one cart line.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// Order is the server's record of a committed checkout.
type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
}

// Submitter talks to the order server. Submit must be idempotent on key.
type Submitter interface {
	Submit(ctx context.Context, key string, req CheckoutRequest) (*Order, error)
	Lookup(ctx context.Context, key string) (*Order, error)
}

// Entry is a queued checkout.
type Entry struct {
	ID             uuid.UUID       `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Request        CheckoutRequest `json:"request"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	OrderID        string          `json:"order_id,omitempty"`
	OrderNumber    string          `json:"order_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Store persists queue entries. Implementations must make ClaimDue atomic:
// an entry is handed to at most one caller until it leaves SYNCING.
type Store interface {
	Enqueue(ctx context.Context, e Entry) error
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	List(ctx context.Context, statuses ...string) ([]Entry, error)

	// ClaimDue moves up to limit PENDING entries due at or before now to
	// SYNCING and returns them oldest first.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	MarkSynced(ctx context.Context, id uuid.UUID, orderID, orderNumber string, now time.Time) error
	// MarkRetry counts a failed attempt and returns the entry to PENDING.
	MarkRetry(ctx context.Context, id uuid.UUID, lastErr string, next, now time.Time) error
	// MarkConflict counts a rejected attempt and parks the entry for the operator.
	MarkConflict(ctx context.Context, id uuid.UUID, kind, lastErr string, now time.Time) error

	// Requeue moves a CONFLICT entry back to PENDING, due now.
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) error
	// Dismiss retires a PENDING or CONFLICT entry for good.
	Dismiss(ctx context.Context, id uuid.UUID, now time.Time) error
	// ResetSyncing returns entries orphaned in SYNCING by a crash to PENDING.
	ResetSyncing(ctx context.Context, now time.Time) (int, error)
}
