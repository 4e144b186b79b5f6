package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/ordercore/internal/auth"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/service"
	"github.com/shopspring/decimal"
)

const testJWTSecret = "test-jwt-secret"

type errorBody struct {
	Error     string         `json:"error"`
	ErrorKind string         `json:"error_kind"`
	Details   map[string]any `json:"details"`
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body any, claims *auth.Claims, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.OutletID, claims.Role, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	h := map[string]string{"Authorization": "Bearer " + token}
	for k, v := range headers {
		h[k] = v
	}
	return doRequest(t, router, method, path, body, h)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rr.Body.String())
	}
	return v
}

func cashierClaims(outletID uuid.UUID) *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), OutletID: outletID, Role: enum.UserRoleCashier}
}

func numeric(s string) pgtype.Numeric {
	return service.DecimalToNumeric(decimal.RequireFromString(s))
}

func testOrder(outletID uuid.UUID, status string) database.Order {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return database.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-0007",
		OutletID:      outletID,
		TableNumber:   pgtype.Text{String: "A3", Valid: true},
		PaymentMethod: enum.PaymentMethodQRIS,
		Status:        status,
		PaymentStatus: enum.PaymentStatusUnpaid,
		Source:        enum.OrderSourcePOS,
		TotalAmount:   numeric("36000"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
