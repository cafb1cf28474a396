package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// RunsService starts classification runs and serves their status. Each run
// executes in its own goroutine on a context detached from the request, so
// the caller's disconnect never aborts a run; only an explicit Abort does.
type RunsService struct {
	orchestrator *Orchestrator
	runs         *RunManager
}

// NewRunsService creates a runs service.
func NewRunsService(orchestrator *Orchestrator, runs *RunManager) *RunsService {
	return &RunsService{
		orchestrator: orchestrator,
		runs:         runs,
	}
}

// Start registers and launches one run. The execution id is taken from the
// request when present (re-submissions append new record rows under the same
// ref_ids) and generated otherwise. A duplicate execution id is rejected.
func (s *RunsService) Start(ctx context.Context, req *models.StartRunRequest) (*models.RunStatusResponse, error) {
	if req == nil || strings.TrimSpace(req.SourcePath) == "" {
		return nil, autotagerrors.NewInvalidInputError("source_path is required")
	}

	executionID := strings.TrimSpace(req.ExecutionID)
	if executionID == "" {
		executionID = uuid.Must(uuid.NewV7()).String()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if err := s.runs.Begin(executionID, cancel); err != nil {
		cancel()

		if errors.Is(err, ErrRunExists) {
			return nil, autotagerrors.NewInvalidInputError(fmt.Sprintf("run %q already exists", executionID))
		}

		return nil, err
	}

	go s.orchestrator.Execute(runCtx, executionID, req.SourcePath)

	return &models.RunStatusResponse{
		ExecutionID: executionID,
		State:       models.RunStateValidating,
	}, nil
}

// Status returns one run's current state and, once terminal, its outcome.
func (s *RunsService) Status(_ context.Context, executionID string) (*models.RunStatusResponse, error) {
	return s.runs.Status(executionID)
}

// List returns every run tracked by this process.
func (s *RunsService) List(_ context.Context) []models.RunStatusResponse {
	return s.runs.List()
}

// Abort cancels a run's queued batches. In-flight batches finish and the run
// terminates with a failure notification.
func (s *RunsService) Abort(_ context.Context, executionID string) error {
	return s.runs.Abort(executionID)
}
