package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/autotaghq/autotag/internal/api/response"
	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// FeedbackRecordsService defines the interface for feedback records business logic.
type FeedbackRecordsService interface {
	ListFeedbackRecords(ctx context.Context, executionID string, limit, offset int) (*models.ListFeedbackRecordsResponse, error)
	GetLatestFeedbackRecord(ctx context.Context, refID string) (*models.FeedbackRecord, error)
	ApplyCorrections(ctx context.Context, req *models.ApplyCorrectionsRequest) (*models.ApplyCorrectionsResponse, error)
}

// FeedbackRecordsHandler handles HTTP requests for feedback records.
type FeedbackRecordsHandler struct {
	service FeedbackRecordsService
}

// NewFeedbackRecordsHandler creates a new feedback records handler.
func NewFeedbackRecordsHandler(service FeedbackRecordsService) *FeedbackRecordsHandler {
	return &FeedbackRecordsHandler{service: service}
}

// List handles GET /v1/feedback-records?execution_id=...&limit=...&offset=...
func (h *FeedbackRecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := parseIntParam(query.Get("limit"), 0)
	offset := parseIntParam(query.Get("offset"), 0)

	result, err := h.service.ListFeedbackRecords(r.Context(), query.Get("execution_id"), limit, offset)
	if err != nil {
		if errors.Is(err, autotagerrors.ErrInvalidInput) {
			response.RespondBadRequest(w, err.Error())
			return
		}

		response.RespondInternalServerError(w, "Failed to list feedback records")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// GetLatest handles GET /v1/feedback-records/{ref_id}. A ref_id re-submitted
// across runs has multiple rows; this returns the most recently updated one.
func (h *FeedbackRecordsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	refID := r.PathValue("ref_id")

	record, err := h.service.GetLatestFeedbackRecord(r.Context(), refID)
	if err != nil {
		switch {
		case errors.Is(err, autotagerrors.ErrInvalidInput):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, autotagerrors.ErrNotFound):
			response.RespondNotFound(w, "Feedback record not found")
		default:
			response.RespondInternalServerError(w, "Failed to get feedback record")
		}

		return
	}

	response.RespondSuccess(w, http.StatusOK, record)
}

// ApplyCorrections handles POST /v1/corrections: operator-supplied label
// corrections applied in bulk to existing rows.
func (h *FeedbackRecordsHandler) ApplyCorrections(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyCorrectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.ApplyCorrections(r.Context(), &req)
	if err != nil {
		var invalid *autotagerrors.InvalidInputError
		if errors.As(err, &invalid) {
			response.RespondErrorWithDetails(w, http.StatusBadRequest, "Bad Request", invalid.Message, invalid.Details)
			return
		}

		response.RespondInternalServerError(w, "Failed to apply corrections")
		return
	}

	response.RespondSuccess(w, http.StatusOK, result)
}

// parseIntParam parses a non-negative integer query parameter, returning
// fallback when absent or unparsable.
func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}

	return value
}
