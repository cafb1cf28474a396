package models

import (
	"time"
)

// RunState is one node of the run state machine. Transitions only move
// forward; Failed is reachable from every non-terminal state and no state is
// re-entered.
type RunState string

// Run states in execution order.
const (
	RunStateValidating  RunState = "validating"
	RunStatePartitioned RunState = "partitioned"
	RunStateClassifying RunState = "classifying"
	RunStateReconciling RunState = "reconciling"
	RunStateNotifying   RunState = "notifying"
	RunStateSucceeded   RunState = "succeeded"
	RunStateFailed      RunState = "failed"
)

// runTransitions holds the allowed forward edges, Failed excluded (allowed
// from every non-terminal state).
var runTransitions = map[RunState]RunState{
	RunStateValidating:  RunStatePartitioned,
	RunStatePartitioned: RunStateClassifying,
	RunStateClassifying: RunStateReconciling,
	RunStateReconciling: RunStateNotifying,
	RunStateNotifying:   RunStateSucceeded,
}

// Terminal reports whether the state ends the run.
func (s RunState) Terminal() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

// CanTransition reports whether next is a legal successor of s.
func (s RunState) CanTransition(next RunState) bool {
	if s.Terminal() {
		return false
	}

	if next == RunStateFailed {
		return true
	}

	return runTransitions[s] == next
}

// Batch is one deterministic slice of a run's records. Index is the position
// in the partition order; retries of a batch keep the same Index and records.
type Batch struct {
	Index   int
	Records []FeedbackRecord
}

// BatchStats counts per-batch classification outcomes.
type BatchStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Add accumulates other into s.
func (s *BatchStats) Add(other BatchStats) {
	s.Total += other.Total
	s.Success += other.Success
	s.Failure += other.Failure
}

// ReconciliationReport summarizes one reconciliation pass over a run's
// unknown records. UpdateFailures counts records whose label update failed
// and was left for a later run.
type ReconciliationReport struct {
	UnknownRecords    int      `json:"unknown_records"`
	Reconciled        int      `json:"reconciled"`
	CategoriesCreated int      `json:"categories_created"`
	CategoriesReused  int      `json:"categories_reused"`
	Unresolved        int      `json:"unresolved"`
	UpdateFailures    int      `json:"update_failures"`
	CreatedLabels     []string `json:"created_labels,omitempty"`
}

// RunOutcome is the terminal summary of one run. Exactly one notification is
// built from it, whatever the outcome.
type RunOutcome struct {
	ExecutionID   string                `json:"execution_id"`
	State         RunState              `json:"state"`
	Stats         BatchStats            `json:"stats"`
	Report        *ReconciliationReport `json:"report,omitempty"`
	TopCategories []CategoryCount       `json:"top_categories,omitempty"`
	ErrorMessage  string                `json:"error,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
}

// Succeeded reports whether the run reached the Succeeded state.
func (o *RunOutcome) Succeeded() bool {
	return o.State == RunStateSucceeded
}

// StartRunRequest is the request body to start a run. SourcePath references
// the parsed record set; ExecutionID is optional (one is generated when empty).
type StartRunRequest struct {
	SourcePath  string `json:"source_path"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// RunStatusResponse is the API view of a run: its current state while in
// flight, plus the outcome once terminal.
type RunStatusResponse struct {
	ExecutionID string      `json:"execution_id"`
	State       RunState    `json:"state"`
	Outcome     *RunOutcome `json:"outcome,omitempty"`
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Data  []RunStatusResponse `json:"data"`
	Total int                 `json:"total"`
}
