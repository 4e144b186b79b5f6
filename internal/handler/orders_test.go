package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/handler"
	"github.com/kiwari-pos/ordercore/internal/middleware"
	"github.com/kiwari-pos/ordercore/internal/service"
)

// --- Mocks ---

type mockCheckout struct {
	checkoutFn func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	findFn     func(ctx context.Context, outletID uuid.UUID, clientRef string) (*service.CheckoutResult, error)
}

func (m *mockCheckout) Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	return m.checkoutFn(ctx, req)
}

func (m *mockCheckout) FindByClientRef(ctx context.Context, outletID uuid.UUID, clientRef string) (*service.CheckoutResult, error) {
	if m.findFn != nil {
		return m.findFn(ctx, outletID, clientRef)
	}
	return nil, service.ErrOrderNotFound
}

type mockLifecycle struct {
	transitionFn func(ctx context.Context, outletID, orderID uuid.UUID, next string, actor uuid.UUID) (database.Order, error)
}

func (m *mockLifecycle) Transition(ctx context.Context, outletID, orderID uuid.UUID, next string, actor uuid.UUID) (database.Order, error) {
	return m.transitionFn(ctx, outletID, orderID, next, actor)
}

type mockOrderStore struct {
	getOrderFn   func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	listOrdersFn func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listItemsFn  func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listItemsFn != nil {
		return m.listItemsFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

func setupOrderRouter(checkout *mockCheckout, lifecycle *mockLifecycle, store *mockOrderStore) *chi.Mux {
	if checkout == nil {
		checkout = &mockCheckout{}
	}
	if lifecycle == nil {
		lifecycle = &mockLifecycle{}
	}
	if store == nil {
		store = &mockOrderStore{}
	}
	h := handler.NewOrderHandler(checkout, lifecycle, store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/outlets/{oid}", func(r chi.Router) {
		r.Use(middleware.RequireOutlet)
		r.Route("/orders", h.RegisterRoutes)
	})
	return r
}

func createdResult(req service.CheckoutRequest, replayed bool) *service.CheckoutResult {
	o := testOrder(req.OutletID, enum.OrderStatusNew)
	o.ClientRef.String, o.ClientRef.Valid = req.ClientRef, req.ClientRef != ""
	return &service.CheckoutResult{
		Order: o,
		Items: []database.OrderItem{{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   uuid.New(),
			ProductName: "Kopi Kenangan Mantan",
			UnitPrice:   numeric("18000"),
			Quantity:    2,
			Subtotal:    numeric("36000"),
		}},
		Replayed: replayed,
	}
}

var validCart = map[string]any{
	"payment_method": enum.PaymentMethodCash,
	"table_number":   "A3",
	"items":          []map[string]any{{"product_id": uuid.NewString(), "quantity": 2}},
}

// --- Create ---

func TestCreateOrder_Created(t *testing.T) {
	outletID := uuid.New()
	claims := cashierClaims(outletID)
	var got service.CheckoutRequest
	router := setupOrderRouter(&mockCheckout{checkoutFn: func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
		got = req
		return createdResult(req, false), nil
	}}, nil, nil)

	rr := doAuthRequest(t, router, http.MethodPost, "/outlets/"+outletID.String()+"/orders", validCart, claims,
		map[string]string{handler.IdempotencyKeyHeader: "key-123"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got.OutletID != outletID || got.CreatedBy != claims.UserID || got.ClientRef != "key-123" {
		t.Errorf("service request = %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", got.Items)
	}

	resp := decode[map[string]any](t, rr)
	if resp["order_number"] != "ORD-0007" || resp["total_amount"] != "36000.00" || resp["client_ref"] != "key-123" {
		t.Errorf("unexpected body: %v", resp)
	}
	items, _ := resp["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", resp["items"])
	}
	if item := items[0].(map[string]any); item["unit_price"] != "18000.00" || item["subtotal"] != "36000.00" {
		t.Errorf("item = %v", item)
	}
}

func TestCreateOrder_ReplayReturns200(t *testing.T) {
	outletID := uuid.New()
	router := setupOrderRouter(&mockCheckout{checkoutFn: func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
		return createdResult(req, true), nil
	}}, nil, nil)

	rr := doAuthRequest(t, router, http.MethodPost, "/outlets/"+outletID.String()+"/orders", validCart,
		cashierClaims(outletID), map[string]string{handler.IdempotencyKeyHeader: "key-123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestCreateOrder_ConflictingKeys(t *testing.T) {
	outletID := uuid.New()
	router := setupOrderRouter(&mockCheckout{checkoutFn: func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}, nil, nil)

	body := map[string]any{
		"payment_method": enum.PaymentMethodCash,
		"client_ref":     "body-key",
		"items":          []map[string]any{{"product_id": uuid.NewString(), "quantity": 1}},
	}
	rr := doAuthRequest(t, router, http.MethodPost, "/outlets/"+outletID.String()+"/orders", body,
		cashierClaims(outletID), map[string]string{handler.IdempotencyKeyHeader: "header-key"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateOrder_RejectsMalformedBodies(t *testing.T) {
	outletID := uuid.New()
	router := setupOrderRouter(&mockCheckout{checkoutFn: func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}, nil, nil)

	for name, body := range map[string]string{
		"not json":      "{",
		"unknown field": `{"payment_method":"CASH","discount":"50%","items":[]}`,
		"trailing data": `{"payment_method":"CASH","items":[]} {}`,
		"wrong type":    `{"payment_method":"CASH","items":[{"product_id":"x","quantity":"two"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := doAuthRequest(t, router, http.MethodPost, "/outlets/"+outletID.String()+"/orders", body, cashierClaims(outletID), nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if e := decode[errorBody](t, rr); e.ErrorKind != enum.ErrorKindValidation {
				t.Errorf("error_kind = %s", e.ErrorKind)
			}
		})
	}
}

func TestCreateOrder_ServiceErrors(t *testing.T) {
	productID := uuid.New()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"validation", service.ErrEmptyItems, http.StatusBadRequest, enum.ErrorKindValidation},
		{"missing products", &service.MissingProductsError{ProductIDs: []uuid.UUID{productID}}, http.StatusUnprocessableEntity, enum.ErrorKindProductNotFound},
		{"stock", &service.StockError{ProductID: productID, ProductName: "Roti O Original", Requested: 3, Available: 1}, http.StatusConflict, enum.ErrorKindInsufficientStock},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError, enum.ErrorKindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outletID := uuid.New()
			router := setupOrderRouter(&mockCheckout{checkoutFn: func(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
				return nil, tt.err
			}}, nil, nil)

			rr := doAuthRequest(t, router, http.MethodPost, "/outlets/"+outletID.String()+"/orders", validCart, cashierClaims(outletID), nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			e := decode[errorBody](t, rr)
			if e.ErrorKind != tt.wantKind {
				t.Errorf("error_kind = %s, want %s", e.ErrorKind, tt.wantKind)
			}
			if tt.name == "stock" {
				if e.Details["product_name"] != "Roti O Original" || e.Details["available"] != float64(1) {
					t.Errorf("details = %v", e.Details)
				}
			}
			if tt.name == "internal" && strings.Contains(e.Error, "deadline") {
				t.Error("internal error leaked to client")
			}
		})
	}
}

func TestCreateOrder_OtherOutletForbidden(t *testing.T) {
	router := setupOrderRouter(&mockCheckout{}, nil, nil)
	rr := doAuthRequest(t, router, http.MethodPost, "/outlets/"+uuid.NewString()+"/orders", validCart, cashierClaims(uuid.New()), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

// --- Reads ---

func TestListOrders_FiltersAndServerTime(t *testing.T) {
	outletID := uuid.New()
	var got database.ListOrdersParams
	store := &mockOrderStore{listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
		got = arg
		return []database.Order{testOrder(outletID, enum.OrderStatusReady)}, nil
	}}
	router := setupOrderRouter(nil, nil, store)

	since := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	path := "/outlets/" + outletID.String() + "/orders?status=READY&table=A3&limit=500&offset=5&updated_since=" + since.Format(time.RFC3339)
	rr := doAuthRequest(t, router, http.MethodGet, path, nil, cashierClaims(outletID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	if got.OutletID != outletID || got.Status.String != "READY" || got.TableNumber.String != "A3" {
		t.Errorf("params = %+v", got)
	}
	if got.LimitCount != 100 || got.OffsetCount != 5 {
		t.Errorf("limit/offset = %d/%d, want 100/5", got.LimitCount, got.OffsetCount)
	}
	if !got.UpdatedSince.Valid || !got.UpdatedSince.Time.Equal(since) {
		t.Errorf("updated_since = %+v", got.UpdatedSince)
	}

	resp := decode[map[string]any](t, rr)
	if _, ok := resp["server_time"].(string); !ok {
		t.Errorf("missing server_time: %v", resp)
	}
	if orders := resp["orders"].([]any); len(orders) != 1 {
		t.Errorf("orders = %v", orders)
	}
}

func TestListOrders_BadFilters(t *testing.T) {
	outletID := uuid.New()
	router := setupOrderRouter(nil, nil, nil)
	for _, q := range []string{"status=SERVED", "updated_since=yesterday"} {
		rr := doAuthRequest(t, router, http.MethodGet, "/outlets/"+outletID.String()+"/orders?"+q, nil, cashierClaims(outletID), nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rr.Code)
		}
	}
}

func TestGetOrder(t *testing.T) {
	outletID := uuid.New()
	order := testOrder(outletID, enum.OrderStatusInProgress)
	store := &mockOrderStore{getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
		if arg.ID == order.ID && arg.OutletID == outletID {
			return order, nil
		}
		return database.Order{}, pgx.ErrNoRows
	}}
	router := setupOrderRouter(nil, nil, store)

	rr := doAuthRequest(t, router, http.MethodGet, "/outlets/"+outletID.String()+"/orders/"+order.ID.String(), nil, cashierClaims(outletID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = doAuthRequest(t, router, http.MethodGet, "/outlets/"+outletID.String()+"/orders/"+uuid.NewString(), nil, cashierClaims(outletID), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing order status = %d, want 404", rr.Code)
	}
	if e := decode[errorBody](t, rr); e.ErrorKind != enum.ErrorKindOrderNotFound {
		t.Errorf("error_kind = %s", e.ErrorKind)
	}

	rr = doAuthRequest(t, router, http.MethodGet, "/outlets/"+outletID.String()+"/orders/not-a-uuid", nil, cashierClaims(outletID), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rr.Code)
	}
}

func TestGetOrderByRef(t *testing.T) {
	outletID := uuid.New()
	checkout := &mockCheckout{findFn: func(ctx context.Context, oid uuid.UUID, ref string) (*service.CheckoutResult, error) {
		if oid == outletID && ref == "key-9" {
			return createdResult(service.CheckoutRequest{OutletID: oid, ClientRef: ref}, false), nil
		}
		return nil, service.ErrOrderNotFound
	}}
	router := setupOrderRouter(checkout, nil, nil)

	rr := doAuthRequest(t, router, http.MethodGet, "/outlets/"+outletID.String()+"/orders/by-ref/key-9", nil, cashierClaims(outletID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decode[map[string]any](t, rr); resp["client_ref"] != "key-9" {
		t.Errorf("body = %v", resp)
	}

	rr = doAuthRequest(t, router, http.MethodGet, "/outlets/"+outletID.String()+"/orders/by-ref/unknown", nil, cashierClaims(outletID), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown ref status = %d, want 404", rr.Code)
	}
}

// --- Status ---

func TestUpdateStatus(t *testing.T) {
	outletID := uuid.New()
	orderID := uuid.New()
	claims := cashierClaims(outletID)
	lifecycle := &mockLifecycle{transitionFn: func(ctx context.Context, oid, id uuid.UUID, next string, actor uuid.UUID) (database.Order, error) {
		if actor != claims.UserID {
			t.Errorf("actor = %s", actor)
		}
		if next == enum.OrderStatusCompleted {
			return database.Order{}, &service.TransitionError{From: enum.OrderStatusNew, To: next}
		}
		o := testOrder(oid, next)
		o.ID = id
		return o, nil
	}}
	router := setupOrderRouter(nil, lifecycle, nil)
	path := "/outlets/" + outletID.String() + "/orders/" + orderID.String() + "/status"

	rr := doAuthRequest(t, router, http.MethodPatch, path, map[string]string{"status": enum.OrderStatusInProgress}, claims, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if resp := decode[map[string]any](t, rr); resp["status"] != enum.OrderStatusInProgress {
		t.Errorf("body = %v", resp)
	}

	rr = doAuthRequest(t, router, http.MethodPatch, path, map[string]string{"status": enum.OrderStatusCompleted}, claims, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("invalid transition status = %d, want 409", rr.Code)
	}
	e := decode[errorBody](t, rr)
	if e.ErrorKind != enum.ErrorKindInvalidTransition || e.Details["from"] != enum.OrderStatusNew {
		t.Errorf("error = %+v", e)
	}
}
