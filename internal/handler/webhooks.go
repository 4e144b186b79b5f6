package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/payment"
	"github.com/kiwari-pos/ordercore/internal/service"
	"github.com/rs/zerolog/hlog"
)

// Reconciler is satisfied by *service.ReconcileService.
type Reconciler interface {
	Reconcile(ctx context.Context, n payment.Notification) (*service.ReconcileResult, error)
}

// WebhookHandler receives payment provider notifications.
type WebhookHandler struct {
	svc Reconciler
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(svc Reconciler) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// RegisterRoutes registers webhook endpoints on the /webhooks subrouter.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/midtrans", h.Midtrans)
}

type webhookResponse struct {
	OrderNumber   string `json:"order_number"`
	PaymentStatus string `json:"payment_status"`
	Outcome       string `json:"outcome"`
}

// Midtrans handles POST /webhooks/midtrans. Duplicates and ignored
// notifications are acknowledged with 200 so the provider stops retrying;
// unknown references get 404 and transient failures 500 so it retries.
func (h *WebhookHandler) Midtrans(w http.ResponseWriter, r *http.Request) {
	var n payment.Notification
	// Unknown provider fields are allowed here.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "invalid notification body")
		return
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.TransactionStatus == "" {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "order_id, status_code, gross_amount and transaction_status are required")
		return
	}

	res, err := h.svc.Reconcile(r.Context(), n)
	if err != nil {
		writeServiceError(w, r, "reconcile payment notification", err)
		return
	}

	hlog.FromRequest(r).Info().Str("reference", n.OrderID).Str("transaction_status", n.TransactionStatus).
		Str("outcome", res.Outcome).Msg("payment notification handled")
	writeJSON(w, http.StatusOK, webhookResponse{
		OrderNumber:   res.Order.OrderNumber,
		PaymentStatus: res.PaymentStatus,
		Outcome:       res.Outcome,
	})
}
