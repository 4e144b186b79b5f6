package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/middleware"
	"github.com/kiwari-pos/ordercore/internal/service"
	"github.com/rs/zerolog/hlog"
)

// IdempotencyKeyHeader carries the client's checkout idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CheckoutServicer is satisfied by *service.CheckoutService.
type CheckoutServicer interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	FindByClientRef(ctx context.Context, outletID uuid.UUID, clientRef string) (*service.CheckoutResult, error)
}

// Transitioner is satisfied by *service.LifecycleService.
type Transitioner interface {
	Transition(ctx context.Context, outletID, orderID uuid.UUID, next string, actor uuid.UUID) (database.Order, error)
}

// OrderStore defines the read queries behind the polling endpoints.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderHandler handles the staff order endpoints.
type OrderHandler struct {
	checkout  CheckoutServicer
	lifecycle Transitioner
	store     OrderStore
	now       func() time.Time
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(checkout CheckoutServicer, lifecycle Transitioner, store OrderStore) *OrderHandler {
	return &OrderHandler{checkout: checkout, lifecycle: lifecycle, store: store, now: time.Now}
}

// RegisterRoutes registers order endpoints on an outlet-scoped subrouter
// mounted at /outlets/{oid}/orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/by-ref/{ref}", h.GetByRef)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type checkoutRequest struct {
	TableNumber   string             `json:"table_number"`
	CustomerName  string             `json:"customer_name"`
	PaymentMethod string             `json:"payment_method"`
	Source        string             `json:"source"`
	ClientRef     string             `json:"client_ref"`
	Items         []checkoutLineBody `json:"items"`
}

type checkoutLineBody struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	OutletID         uuid.UUID           `json:"outlet_id"`
	OrderNumber      string              `json:"order_number"`
	TableNumber      *string             `json:"table_number"`
	CustomerName     *string             `json:"customer_name"`
	PaymentMethod    string              `json:"payment_method"`
	Status           string              `json:"status"`
	PaymentStatus    string              `json:"payment_status"`
	PaymentReference *string             `json:"payment_reference"`
	ClientRef        *string             `json:"client_ref"`
	Source           string              `json:"source"`
	TotalAmount      string              `json:"total_amount"`
	CreatedBy        *uuid.UUID          `json:"created_by"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	Items            []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	Subtotal    string    `json:"subtotal"`
}

// orderListResponse carries server_time so pollers can pass it back as
// updated_since without trusting their own clock.
type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
	ServerTime time.Time       `json:"server_time"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// Create handles POST /outlets/{oid}/orders. A replay of an earlier
// Idempotency-Key returns the original order with 200 instead of 201.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, enum.ErrorKindUnauthorized, "not authenticated")
		return
	}

	var body checkoutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, err.Error())
		return
	}

	clientRef := body.ClientRef
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		if clientRef != "" && clientRef != key {
			writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "client_ref does not match Idempotency-Key header")
			return
		}
		clientRef = key
	}

	req := body.toServiceRequest(outletID, clientRef)
	req.CreatedBy = claims.UserID
	result, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "create order", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, checkoutResultResponse(result))
}

// List handles GET /outlets/{oid}/orders. Filters: status, table,
// updated_since (RFC 3339), limit, offset.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}
	serverTime := h.now().UTC()

	q := r.URL.Query()
	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := 0
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		OutletID:    outletID,
		LimitCount:  int32(limit),
		OffsetCount: int32(offset),
	}
	if s := q.Get("status"); s != "" {
		if !enum.IsOrderStatus(s) {
			writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "invalid status filter")
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("table"); s != "" {
		params.TableNumber = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("updated_since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "invalid updated_since, use RFC 3339")
			return
		}
		params.UpdatedSince = pgtype.Timestamptz{Time: t, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, nil)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset, ServerTime: serverTime})
}

// Get handles GET /outlets/{oid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}
	orderID, ok := parseUUIDParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = service.ErrOrderNotFound
		}
		writeServiceError(w, r, "get order", err)
		return
	}
	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		writeServiceError(w, r, "list order items", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, items))
}

// GetByRef handles GET /outlets/{oid}/orders/by-ref/{ref}. Clients use it to
// learn the outcome of a checkout whose response they never saw.
func (h *OrderHandler) GetByRef(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "missing client ref")
		return
	}

	result, err := h.checkout.FindByClientRef(r.Context(), outletID, ref)
	if err != nil {
		writeServiceError(w, r, "get order by client ref", err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResultResponse(result))
}

// UpdateStatus handles PATCH /outlets/{oid}/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	outletID, ok := parseUUIDParam(w, r, "oid", "outlet ID")
	if !ok {
		return
	}
	orderID, ok := parseUUIDParam(w, r, "id", "order ID")
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, enum.ErrorKindUnauthorized, "not authenticated")
		return
	}

	var body updateStatusRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, err.Error())
		return
	}

	order, err := h.lifecycle.Transition(r.Context(), outletID, orderID, body.Status, claims.UserID)
	if err != nil {
		writeServiceError(w, r, "update order status", err)
		return
	}
	hlog.FromRequest(r).Info().Str("order_number", order.OrderNumber).Str("status", order.Status).
		Str("actor", claims.UserID.String()).Msg("order status updated")
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// --- Helpers ---

func (b checkoutRequest) toServiceRequest(outletID uuid.UUID, clientRef string) service.CheckoutRequest {
	items := make([]service.CheckoutItem, len(b.Items))
	for i, it := range b.Items {
		items[i] = service.CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return service.CheckoutRequest{
		OutletID:      outletID,
		TableNumber:   b.TableNumber,
		CustomerName:  b.CustomerName,
		PaymentMethod: b.PaymentMethod,
		Source:        b.Source,
		ClientRef:     clientRef,
		Items:         items,
	}
}

func checkoutResultResponse(res *service.CheckoutResult) orderResponse {
	return toOrderResponse(res.Order, res.Items)
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:               o.ID,
		OutletID:         o.OutletID,
		OrderNumber:      o.OrderNumber,
		TableNumber:      textPtr(o.TableNumber),
		CustomerName:     textPtr(o.CustomerName),
		PaymentMethod:    o.PaymentMethod,
		Status:           o.Status,
		PaymentStatus:    o.PaymentStatus,
		PaymentReference: textPtr(o.PaymentReference),
		ClientRef:        textPtr(o.ClientRef),
		Source:           o.Source,
		TotalAmount:      service.NumericToDecimal(o.TotalAmount).StringFixed(2),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if o.CreatedBy.Valid {
		id := uuid.UUID(o.CreatedBy.Bytes)
		resp.CreatedBy = &id
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   service.NumericToDecimal(it.UnitPrice).StringFixed(2),
			Subtotal:    service.NumericToDecimal(it.Subtotal).StringFixed(2),
		})
	}
	return resp
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
