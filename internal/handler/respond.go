package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/service"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string         `json:"error"`
	ErrorKind string         `json:"error_kind"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, ErrorKind: kind})
}

// writeServiceError maps service errors onto status codes and error kinds.
// Anything unrecognised is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		stockErr   *service.StockError
		missingErr *service.MissingProductsError
		transErr   *service.TransitionError
	)
	switch {
	case service.IsValidationError(err):
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, err.Error())
	case errors.As(err, &missingErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     err.Error(),
			ErrorKind: enum.ErrorKindProductNotFound,
			Details:   map[string]any{"product_ids": missingErr.ProductIDs},
		})
	case errors.Is(err, service.ErrProductNotFound):
		writeError(w, http.StatusUnprocessableEntity, enum.ErrorKindProductNotFound, err.Error())
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			ErrorKind: enum.ErrorKindInsufficientStock,
			Details: map[string]any{
				"product_id":   stockErr.ProductID,
				"product_name": stockErr.ProductName,
				"requested":    stockErr.Requested,
				"available":    stockErr.Available,
			},
		})
	case errors.Is(err, service.ErrInsufficientStock):
		writeError(w, http.StatusConflict, enum.ErrorKindInsufficientStock, err.Error())
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			ErrorKind: enum.ErrorKindInvalidTransition,
			Details:   map[string]any{"from": transErr.From, "to": transErr.To},
		})
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, enum.ErrorKindOrderNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidSignature):
		writeError(w, http.StatusForbidden, enum.ErrorKindInvalidSignature, err.Error())
	case errors.Is(err, service.ErrAmountMismatch):
		writeError(w, http.StatusUnprocessableEntity, enum.ErrorKindAmountMismatch, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg(op)
		writeError(w, http.StatusInternalServerError, enum.ErrorKindInternal, "internal server error")
	}
}

// decodeJSON decodes a single JSON object, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, enum.ErrorKindValidation, "invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}
