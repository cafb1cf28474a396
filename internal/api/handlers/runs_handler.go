package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/autotaghq/autotag/internal/api/response"
	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// RunsService defines the interface for run lifecycle operations.
type RunsService interface {
	Start(ctx context.Context, req *models.StartRunRequest) (*models.RunStatusResponse, error)
	Status(ctx context.Context, executionID string) (*models.RunStatusResponse, error)
	List(ctx context.Context) []models.RunStatusResponse
	Abort(ctx context.Context, executionID string) error
}

// RunsHandler handles HTTP requests for classification runs.
type RunsHandler struct {
	service RunsService
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(service RunsService) *RunsHandler {
	return &RunsHandler{service: service}
}

// Start handles POST /v1/runs. The run executes in the background; the
// response carries the execution id to poll.
func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	status, err := h.service.Start(r.Context(), &req)
	if err != nil {
		if errors.Is(err, autotagerrors.ErrInvalidInput) {
			response.RespondBadRequest(w, err.Error())
			return
		}

		response.RespondInternalServerError(w, "Failed to start run")
		return
	}

	response.RespondSuccess(w, http.StatusAccepted, status)
}

// Get handles GET /v1/runs/{execution_id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")
	if executionID == "" {
		response.RespondBadRequest(w, "execution_id is required")
		return
	}

	status, err := h.service.Status(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, autotagerrors.ErrNotFound) {
			response.RespondNotFound(w, "Run not found")
			return
		}

		response.RespondInternalServerError(w, "Failed to get run")
		return
	}

	response.RespondSuccess(w, http.StatusOK, status)
}

// List handles GET /v1/runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.service.List(r.Context())

	response.RespondJSON(w, http.StatusOK, models.ListRunsResponse{
		Data:  runs,
		Total: len(runs),
	})
}

// Abort handles POST /v1/runs/{execution_id}/abort. Queued batches are
// cancelled; batches already in flight finish before the run fails.
func (h *RunsHandler) Abort(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")
	if executionID == "" {
		response.RespondBadRequest(w, "execution_id is required")
		return
	}

	if err := h.service.Abort(r.Context(), executionID); err != nil {
		switch {
		case errors.Is(err, autotagerrors.ErrNotFound):
			response.RespondNotFound(w, "Run not found")
		case errors.Is(err, autotagerrors.ErrInvalidInput):
			response.RespondConflict(w, err.Error())
		default:
			response.RespondInternalServerError(w, "Failed to abort run")
		}

		return
	}

	w.WriteHeader(http.StatusAccepted)
}
