// Package agent is the local HTTP API the POS terminal UI talks to. It works
// whether or not the order server is reachable.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/offline"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Checkouter runs a checkout with offline fallback. Satisfied by *offline.Queue.
type Checkouter interface {
	Checkout(ctx context.Context, req offline.CheckoutRequest) (*offline.Result, error)
}

// Syncer drives replays. Satisfied by *offline.Syncer.
type Syncer interface {
	SyncOnce(ctx context.Context) (offline.SyncReport, error)
	Requeue(ctx context.Context, id uuid.UUID) error
	Dismiss(ctx context.Context, id uuid.UUID) error
}

// QueueLister reads the local queue. Satisfied by every offline.Store.
type QueueLister interface {
	List(ctx context.Context, statuses ...string) ([]offline.Entry, error)
}

// Handler serves the agent API.
type Handler struct {
	checkout Checkouter
	syncer   Syncer
	queue    QueueLister
}

func NewHandler(checkout Checkouter, syncer Syncer, queue QueueLister) *Handler {
	return &Handler{checkout: checkout, syncer: syncer, queue: queue}
}

// NewRouter builds the agent's chi router with request logging.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", status).Dur("duration", duration).Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/checkout", h.Checkout)
	r.Get("/queue", h.ListQueue)
	r.Post("/queue/{id}/retry", h.Retry)
	r.Post("/queue/{id}/dismiss", h.Dismiss)
	r.Post("/sync", h.Sync)
	return r
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

type queueEntryResponse struct {
	ID             uuid.UUID               `json:"id"`
	IdempotencyKey string                  `json:"idempotency_key"`
	Status         string                  `json:"status"`
	Attempts       int                     `json:"attempts"`
	LastError      string                  `json:"last_error,omitempty"`
	ErrorKind      string                  `json:"error_kind,omitempty"`
	NextAttemptAt  time.Time               `json:"next_attempt_at"`
	OrderNumber    string                  `json:"order_number,omitempty"`
	Request        offline.CheckoutRequest `json:"request"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Checkout handles POST /checkout. Server refusals come back as 200 with
// state FAILED; the UI renders the reason.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req offline.CheckoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "items must not be empty")
		return
	}
	for _, l := range req.Items {
		if l.ProductID == "" || l.Quantity < 1 {
			writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "each item needs a product_id and a positive quantity")
			return
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = enum.PaymentMethodCash
	}

	res, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("agent: checkout failed")
		writeError(w, http.StatusInternalServerError, enum.ErrorKindInternal, "checkout could not be recorded")
		return
	}
	status := http.StatusOK
	if res.State == offline.StatePendingSync {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// ListQueue handles GET /queue. Optional repeated ?status= filters.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	statuses := r.URL.Query()["status"]
	entries, err := h.queue.List(r.Context(), statuses...)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("agent: list queue failed")
		writeError(w, http.StatusInternalServerError, enum.ErrorKindInternal, "could not read queue")
		return
	}
	out := make([]queueEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = queueEntryResponse{
			ID:             e.ID,
			IdempotencyKey: e.IdempotencyKey,
			Status:         e.Status,
			Attempts:       e.Attempts,
			LastError:      e.LastError,
			ErrorKind:      e.ErrorKind,
			NextAttemptAt:  e.NextAttemptAt,
			OrderNumber:    e.OrderNumber,
			Request:        e.Request,
			CreatedAt:      e.CreatedAt,
			UpdatedAt:      e.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// Retry handles POST /queue/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, h.syncer.Requeue, enum.QueueStatusPending)
}

// Dismiss handles POST /queue/{id}/dismiss.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, h.syncer.Dismiss, enum.QueueStatusDismissed)
}

func (h *Handler) entryAction(w http.ResponseWriter, r *http.Request, action func(context.Context, uuid.UUID) error, result string) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "invalid entry ID")
		return
	}
	if err := action(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, offline.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, enum.ErrorKindValidation, "queue entry not found")
		case errors.Is(err, offline.ErrInvalidState):
			writeError(w, http.StatusConflict, enum.ErrorKindValidation, err.Error())
		default:
			hlog.FromRequest(r).Error().Err(err).Str("entry_id", id.String()).Msg("agent: queue action failed")
			writeError(w, http.StatusInternalServerError, enum.ErrorKindInternal, "queue action failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": result})
}

// Sync handles POST /sync: one replay pass now.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncer.SyncOnce(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("agent: sync pass failed")
		writeError(w, http.StatusInternalServerError, enum.ErrorKindInternal, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, ErrorKind: kind})
}
