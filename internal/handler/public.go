package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ordercore/internal/cache"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/service"
)

// PublicOrderStore reads orders for customer status polling.
// Satisfied by *database.Queries.
type PublicOrderStore interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// PublicHandler serves the unauthenticated customer endpoints: table
// self-ordering and order status polling.
type PublicHandler struct {
	checkout CheckoutServicer
	store    PublicOrderStore
	cache    cache.StatusCache
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(checkout CheckoutServicer, store PublicOrderStore, statusCache cache.StatusCache) *PublicHandler {
	return &PublicHandler{checkout: checkout, store: store, cache: statusCache}
}

// RegisterRoutes registers public endpoints on the /public subrouter.
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Post("/outlets/{oid}/orders", h.SelfOrder)
	r.Get("/orders/{id}", h.Status)
}

type selfOrderRequest struct {
	TableNumber   string             `json:"table_number"`
	CustomerName  string             `json:"customer_name"`
	PaymentMethod string             `json:"payment_method"`
	ClientRef     string             `json:"client_ref"`
	Items         []checkoutLineBody `json:"items"`
}

// SelfOrder handles POST /public/outlets/{oid}/orders. Same engine as the
// cashier checkout, with source SELF_ORDER and no staff attribution.
func (h *PublicHandler) SelfOrder(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}

	var body selfOrderRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, err.Error())
		return
	}
	if body.TableNumber == "" {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "table_number is required")
		return
	}
	clientRef := body.ClientRef
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		clientRef = key
	}

	req := checkoutRequest{
		TableNumber:   body.TableNumber,
		CustomerName:  body.CustomerName,
		PaymentMethod: body.PaymentMethod,
		Source:        enum.OrderSourceSelfOrder,
		Items:         body.Items,
	}.toServiceRequest(outletID, clientRef)

	result, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "self order", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, statusFromOrder(result.Order))
}

// Status handles GET /public/orders/{id}. Snapshots are served from the
// status cache and refreshed from the database on a miss.
func (h *PublicHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	if snap, hit := h.cache.Get(r.Context(), orderID); hit {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	order, err := h.store.GetOrderByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = service.ErrOrderNotFound
		}
		writeServiceError(w, r, "get order status", err)
		return
	}

	snap := statusFromOrder(order)
	h.cache.Set(r.Context(), snap)
	writeJSON(w, http.StatusOK, snap)
}

func statusFromOrder(o database.Order) cache.OrderStatus {
	return cache.OrderStatus{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		TableNumber:   o.TableNumber.String,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   service.NumericToDecimal(o.TotalAmount).StringFixed(2),
		UpdatedAt:     o.UpdatedAt,
	}
}
