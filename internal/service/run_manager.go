package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// ErrRunExists is returned by Begin when the execution id is already tracked.
var ErrRunExists = errors.New("run already exists")

// runEntry is the in-memory bookkeeping for one run.
type runEntry struct {
	state   models.RunState
	outcome *models.RunOutcome
	cancel  context.CancelFunc
}

// RunManager tracks runs in memory for the lifetime of the process: the live
// state machine of in-flight runs and the outcome of finished ones. Execution
// ids are unique per process; re-submitting one is rejected.
type RunManager struct {
	mu   sync.RWMutex
	runs map[string]*runEntry
}

// NewRunManager creates an empty run registry.
func NewRunManager() *RunManager {
	return &RunManager{
		runs: make(map[string]*runEntry),
	}
}

// Begin registers a new run in the Validating state. cancel stops dispatch of
// the run's queued batches when the run is aborted.
func (m *RunManager) Begin(executionID string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[executionID]; exists {
		return fmt.Errorf("%w: %s", ErrRunExists, executionID)
	}

	m.runs[executionID] = &runEntry{
		state:  models.RunStateValidating,
		cancel: cancel,
	}

	return nil
}

// SetState moves a run to the next state, enforcing the forward-only state
// machine. An illegal transition is a programming error and is rejected.
func (m *RunManager) SetState(executionID string, next models.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.runs[executionID]
	if !exists {
		return autotagerrors.NewNotFoundError("run", fmt.Sprintf("run %q not found", executionID))
	}

	if !entry.state.CanTransition(next) {
		return fmt.Errorf("illegal run state transition from %s to %s", entry.state, next)
	}

	slog.Info("run state changed", "execution_id", executionID, "from", entry.state, "to", next)
	entry.state = next

	return nil
}

// Complete records a run's terminal outcome and drops its cancel handle.
func (m *RunManager) Complete(executionID string, outcome *models.RunOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.runs[executionID]
	if !exists {
		return
	}

	entry.state = outcome.State
	entry.outcome = outcome
	entry.cancel = nil
}

// Status returns the current view of a run: its live state while in flight,
// plus the outcome once terminal.
func (m *RunManager) Status(executionID string) (*models.RunStatusResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.runs[executionID]
	if !exists {
		return nil, autotagerrors.NewNotFoundError("run", fmt.Sprintf("run %q not found", executionID))
	}

	return &models.RunStatusResponse{
		ExecutionID: executionID,
		State:       entry.state,
		Outcome:     entry.outcome,
	}, nil
}

// List returns the status of every tracked run, ordered by execution id.
func (m *RunManager) List() []models.RunStatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Initialize as empty slice, not nil
	statuses := []models.RunStatusResponse{}
	for executionID, entry := range m.runs {
		statuses = append(statuses, models.RunStatusResponse{
			ExecutionID: executionID,
			State:       entry.state,
			Outcome:     entry.outcome,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ExecutionID < statuses[j].ExecutionID
	})

	return statuses
}

// Abort cancels a run's batch dispatch. In-flight batches finish; the run
// skips reconciliation and terminates with a failure notification.
func (m *RunManager) Abort(executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.runs[executionID]
	if !exists {
		return autotagerrors.NewNotFoundError("run", fmt.Sprintf("run %q not found", executionID))
	}

	if entry.state.Terminal() || entry.cancel == nil {
		return autotagerrors.NewInvalidInputError(fmt.Sprintf("run %q already finished", executionID))
	}

	slog.Info("run abort requested", "execution_id", executionID, "state", entry.state)
	entry.cancel()

	return nil
}

// ActiveCount returns the number of runs not yet in a terminal state.
func (m *RunManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0

	for _, entry := range m.runs {
		if !entry.state.Terminal() {
			active++
		}
	}

	return active
}
