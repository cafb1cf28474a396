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

// TaxonomyService defines the interface for taxonomy reads and mass updates.
type TaxonomyService interface {
	ListCategories(ctx context.Context) (*models.ListCategoriesResponse, error)
	ReplaceCategories(ctx context.Context, names []string) (*models.ReplaceCategoriesResponse, error)
}

// CategoriesHandler handles HTTP requests for the category taxonomy.
type CategoriesHandler struct {
	service TaxonomyService
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(service TaxonomyService) *CategoriesHandler {
	return &CategoriesHandler{service: service}
}

// List handles GET /v1/categories.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListCategories(r.Context())
	if err != nil {
		response.RespondInternalServerError(w, "Failed to list categories")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Replace handles PUT /v1/categories: the body is the full desired set of
// active category names. Missing names are soft-deleted, known ones kept or
// reactivated, new ones embedded and inserted.
func (h *CategoriesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req models.ReplaceCategoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.ReplaceCategories(r.Context(), req.Categories)
	if err != nil {
		if errors.Is(err, autotagerrors.ErrInvalidInput) {
			response.RespondBadRequest(w, err.Error())
			return
		}

		response.RespondInternalServerError(w, "Failed to replace categories")
		return
	}

	response.RespondSuccess(w, http.StatusOK, result)
}
