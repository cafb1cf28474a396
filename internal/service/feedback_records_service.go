package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// FeedbackRecordsRepository defines the interface for feedback records data access.
type FeedbackRecordsRepository interface {
	InsertBatch(ctx context.Context, records []models.FeedbackRecord) error
	ListByExecution(ctx context.Context, executionID string, limit, offset int) ([]models.FeedbackRecord, error)
	CountByExecution(ctx context.Context, executionID string) (int64, error)
	GetLatestByRefID(ctx context.Context, refID string) (*models.FeedbackRecord, error)
	ListUnresolvedUnknowns(ctx context.Context, executionID string) ([]models.FeedbackRecord, error)
	SetLabelPostProcessing(ctx context.Context, ids []int64, label string) (int64, error)
	TopCategories(ctx context.Context, executionID string, limit int) ([]models.CategoryCount, error)
	ApplyCorrections(ctx context.Context, corrections []models.LabelCorrectionRequest) (int64, error)
}

// FeedbackRecordsService handles business logic for feedback records
type FeedbackRecordsService struct {
	repo FeedbackRecordsRepository
}

// NewFeedbackRecordsService creates a new feedback records service
func NewFeedbackRecordsService(repo FeedbackRecordsRepository) *FeedbackRecordsService {
	return &FeedbackRecordsService{repo: repo}
}

// ListFeedbackRecords retrieves one run's feedback records, newest first.
func (s *FeedbackRecordsService) ListFeedbackRecords(ctx context.Context, executionID string, limit, offset int) (*models.ListFeedbackRecordsResponse, error) {
	if executionID == "" {
		return nil, autotagerrors.NewInvalidInputError("execution_id is required")
	}

	if limit <= 0 {
		limit = 100 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.ListByExecution(ctx, executionID, limit, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return &models.ListFeedbackRecordsResponse{
		Data:   records,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// GetLatestFeedbackRecord retrieves the most recently updated row for a ref_id.
// Re-submitted items append new rows, so this is the row that supersedes the rest.
func (s *FeedbackRecordsService) GetLatestFeedbackRecord(ctx context.Context, refID string) (*models.FeedbackRecord, error) {
	if strings.TrimSpace(refID) == "" {
		return nil, autotagerrors.NewInvalidInputError("ref_id is required")
	}

	return s.repo.GetLatestByRefID(ctx, refID)
}

// ApplyCorrections validates and applies operator label corrections. Rows that
// no longer exist are skipped; the count reflects rows actually updated.
func (s *FeedbackRecordsService) ApplyCorrections(ctx context.Context, req *models.ApplyCorrectionsRequest) (*models.ApplyCorrectionsResponse, error) {
	if err := s.validateCorrections(req); err != nil {
		return nil, err
	}

	updated, err := s.repo.ApplyCorrections(ctx, req.Corrections)
	if err != nil {
		return nil, err
	}

	return &models.ApplyCorrectionsResponse{
		UpdatedCount: updated,
		Message:      fmt.Sprintf("applied corrections to %d records", updated),
	}, nil
}

// validateCorrections validates the mass-correction request.
func (s *FeedbackRecordsService) validateCorrections(req *models.ApplyCorrectionsRequest) error {
	if req == nil || len(req.Corrections) == 0 {
		return autotagerrors.NewInvalidInputError("at least one correction is required")
	}

	details := []string{}
	for i, correction := range req.Corrections {
		if correction.ID <= 0 {
			details = append(details, fmt.Sprintf("correction %d: id must be positive", i))
		}
		if strings.TrimSpace(correction.LabelCorrection) == "" {
			details = append(details, fmt.Sprintf("correction %d: label_correction is required", i))
		}
	}

	if len(details) > 0 {
		return autotagerrors.NewInvalidInputError("corrections failed validation", details...)
	}

	return nil
}
