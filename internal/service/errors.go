package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Validation errors. Returned before any side effect.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidProductID     = errors.New("invalid product_id")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidSource        = errors.New("invalid source")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrClientRefTooLong     = errors.New("idempotency key must be at most 64 characters")
	ErrInvalidAmount        = errors.New("invalid gross_amount")
	ErrPaymentNotRequired   = errors.New("cash orders do not need a payment token")
	ErrAlreadyPaid          = errors.New("order is no longer awaiting payment")
)

// Domain errors.
var (
	ErrProductNotFound   = errors.New("product not found in outlet")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidSignature  = errors.New("invalid notification signature")
	ErrAmountMismatch    = errors.New("gross_amount does not match order total")
)

// StockError names the product whose stock could not cover the request.
type StockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int32
	Available   int32
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// MissingProductsError lists product ids that do not exist in the outlet.
type MissingProductsError struct {
	ProductIDs []uuid.UUID
}

func (e *MissingProductsError) Error() string {
	return fmt.Sprintf("%d product(s) not found in outlet", len(e.ProductIDs))
}

func (e *MissingProductsError) Unwrap() error { return ErrProductNotFound }

// TransitionError reports a rejected lifecycle move.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IsValidationError reports whether err is malformed input rather than a domain failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyItems) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidProductID) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInvalidSource) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrClientRefTooLong) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrPaymentNotRequired) ||
		errors.Is(err, ErrAlreadyPaid)
}

// isUniqueViolation checks for pgconn error code 23505 on the given constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
