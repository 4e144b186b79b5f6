package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/service"
)

// PaymentTokenIssuer is satisfied by *service.PaymentTokenService.
type PaymentTokenIssuer interface {
	IssueToken(ctx context.Context, outletID, orderID uuid.UUID) (*service.PaymentToken, error)
}

// PaymentHandler issues provider payment tokens for non-cash orders.
type PaymentHandler struct {
	svc PaymentTokenIssuer
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentTokenIssuer) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// RegisterRoutes registers payment endpoints on the /outlets/{oid}/orders subrouter.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/payment-token", h.IssueToken)
}

type paymentTokenResponse struct {
	OrderID   uuid.UUID `json:"order_id"`
	Token     string    `json:"token"`
	Reference string    `json:"reference"`
	Reused    bool      `json:"reused"`
}

// IssueToken handles POST /outlets/{oid}/orders/{id}/payment-token.
func (h *PaymentHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}
	orderID, ok := parseUUIDParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	tok, err := h.svc.IssueToken(r.Context(), outletID, orderID)
	if err != nil {
		writeServiceError(w, r, "issue payment token", err)
		return
	}

	status := http.StatusCreated
	if tok.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, paymentTokenResponse{
		OrderID:   tok.OrderID,
		Token:     tok.Token,
		Reference: tok.Reference,
		Reused:    tok.Reused,
	})
}
