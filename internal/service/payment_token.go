package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/payment"
)

// PaymentTokenStore defines the DB methods needed to issue payment tokens.
type PaymentTokenStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	SetPaymentToken(ctx context.Context, arg database.SetPaymentTokenParams) (database.Order, error)
}

// SnapClient creates provider-side transactions.
// Satisfied by *payment.SnapClient.
type SnapClient interface {
	CreateTransaction(ctx context.Context, req payment.SnapRequest) (*payment.SnapResponse, error)
}

// PaymentToken is the provider token issued for an order.
type PaymentToken struct {
	OrderID   uuid.UUID
	Token     string
	Reference string
	Reused    bool
}

// PaymentTokenService issues Snap tokens for non-cash orders.
type PaymentTokenService struct {
	store PaymentTokenStore
	snap  SnapClient
	now   func() time.Time
}

// NewPaymentTokenService creates a new PaymentTokenService.
func NewPaymentTokenService(store PaymentTokenStore, snap SnapClient) *PaymentTokenService {
	return &PaymentTokenService{store: store, snap: snap, now: time.Now}
}

// IssueToken returns the order's stored token, or creates one with the
// provider and records it. The reference is assigned at most once; a
// concurrent caller that loses the race gets the winner's token.
func (s *PaymentTokenService) IssueToken(ctx context.Context, outletID, orderID uuid.UUID) (*PaymentToken, error) {
	order, err := s.getOrder(ctx, outletID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod == enum.PaymentMethodCash {
		return nil, ErrPaymentNotRequired
	}
	if order.PaymentToken.Valid && order.PaymentReference.Valid {
		return &PaymentToken{OrderID: order.ID, Token: order.PaymentToken.String, Reference: order.PaymentReference.String, Reused: true}, nil
	}
	if order.PaymentStatus != enum.PaymentStatusUnpaid {
		return nil, ErrAlreadyPaid
	}

	items, err := s.store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	reference := fmt.Sprintf("%s-%d", order.OrderNumber, s.now().UnixMilli())
	resp, err := s.snap.CreateTransaction(ctx, snapRequest(order, items, reference))
	if err != nil {
		return nil, fmt.Errorf("create snap transaction: %w", err)
	}

	updated, err := s.store.SetPaymentToken(ctx, database.SetPaymentTokenParams{
		PaymentToken:     pgtype.Text{String: resp.Token, Valid: true},
		PaymentReference: pgtype.Text{String: reference, Valid: true},
		ID:               order.ID,
		OutletID:         outletID,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("set payment token: %w", err)
		}
		winner, err := s.getOrder(ctx, outletID, orderID)
		if err != nil {
			return nil, err
		}
		return &PaymentToken{OrderID: winner.ID, Token: winner.PaymentToken.String, Reference: winner.PaymentReference.String, Reused: true}, nil
	}

	return &PaymentToken{OrderID: updated.ID, Token: updated.PaymentToken.String, Reference: updated.PaymentReference.String}, nil
}

func (s *PaymentTokenService) getOrder(ctx context.Context, outletID, orderID uuid.UUID) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// snapRequest builds the provider request. Amounts are whole rupiah.
func snapRequest(order database.Order, items []database.OrderItem, reference string) payment.SnapRequest {
	details := make([]payment.ItemDetail, len(items))
	for i, it := range items {
		details[i] = payment.ItemDetail{
			ID:       it.ProductID.String(),
			Name:     it.ProductName,
			Price:    NumericToDecimal(it.UnitPrice).IntPart(),
			Quantity: it.Quantity,
		}
	}
	req := payment.SnapRequest{
		TransactionDetails: payment.TransactionDetails{
			OrderID:     reference,
			GrossAmount: NumericToDecimal(order.TotalAmount).IntPart(),
		},
		ItemDetails: details,
	}
	if order.CustomerName.Valid {
		req.CustomerDetails = &payment.CustomerDetails{FirstName: order.CustomerName.String}
	}
	return req
}
