// Package handler exposes the ingestion API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/logger"
)

// maxBodyBytes bounds a request of MaxTermsPerRequest maximal terms plus JSON
// overhead.
const maxBodyBytes = 1 << 20

// Submitter is satisfied by *publisher.Publisher.
type Submitter interface {
	Submit(ctx context.Context, req *ingestion.TermsRequest, requestID string) (*ingestion.TermsResponse, error)
}

type Handler struct {
	publisher Submitter
	logger    *slog.Logger
}

func New(pub Submitter) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Terms handles POST /api/v1/terms.
func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.TermsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateTermsRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Submit(ctx, &req, logger.RequestID(ctx))
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("term submission failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "term submission failed")
		return
	}
	log.Info("terms submitted",
		"op", resp.Op,
		"accepted", resp.Accepted,
		"affected", resp.Affected,
		"status", resp.Status,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
