package service

import (
	"context"
	"errors"
	"testing"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

func TestRunManager_Begin(t *testing.T) {
	m := NewRunManager()

	if err := m.Begin("run-1", func() {}); err != nil {
		t.Fatalf("Begin() unexpected error: %v", err)
	}

	if err := m.Begin("run-1", func() {}); !errors.Is(err, ErrRunExists) {
		t.Errorf("Begin() duplicate error = %v, want ErrRunExists", err)
	}

	status, err := m.Status("run-1")
	if err != nil {
		t.Fatalf("Status() unexpected error: %v", err)
	}

	if status.State != models.RunStateValidating {
		t.Errorf("state = %s, want validating", status.State)
	}
}

func TestRunManager_SetState(t *testing.T) {
	m := NewRunManager()
	_ = m.Begin("run-1", func() {})

	forward := []models.RunState{
		models.RunStatePartitioned,
		models.RunStateClassifying,
		models.RunStateReconciling,
		models.RunStateNotifying,
	}

	for _, next := range forward {
		if err := m.SetState("run-1", next); err != nil {
			t.Fatalf("SetState(%s) unexpected error: %v", next, err)
		}
	}

	// Skipping backward or re-entering a state is rejected.
	if err := m.SetState("run-1", models.RunStateClassifying); err == nil {
		t.Error("SetState() re-entering a state succeeded, want error")
	}

	if err := m.SetState("missing", models.RunStatePartitioned); !errors.Is(err, autotagerrors.ErrNotFound) {
		t.Errorf("SetState() on unknown run = %v, want NotFoundError", err)
	}
}

func TestRunManager_FailedReachableFromAnyState(t *testing.T) {
	m := NewRunManager()
	_ = m.Begin("run-1", func() {})

	if err := m.SetState("run-1", models.RunStateFailed); err != nil {
		t.Fatalf("SetState(failed) from validating unexpected error: %v", err)
	}

	if err := m.SetState("run-1", models.RunStateNotifying); err == nil {
		t.Error("SetState() out of a terminal state succeeded, want error")
	}
}

func TestRunManager_Abort(t *testing.T) {
	m := NewRunManager()

	ctx, cancel := context.WithCancel(context.Background())
	_ = m.Begin("run-1", cancel)

	if err := m.Abort("run-1"); err != nil {
		t.Fatalf("Abort() unexpected error: %v", err)
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("Abort() did not cancel the run context")
	}

	m.Complete("run-1", &models.RunOutcome{ExecutionID: "run-1", State: models.RunStateFailed})

	if err := m.Abort("run-1"); !errors.Is(err, autotagerrors.ErrInvalidInput) {
		t.Errorf("Abort() on finished run = %v, want InvalidInputError", err)
	}

	if err := m.Abort("missing"); !errors.Is(err, autotagerrors.ErrNotFound) {
		t.Errorf("Abort() on unknown run = %v, want NotFoundError", err)
	}
}

func TestRunManager_CompleteAndList(t *testing.T) {
	m := NewRunManager()
	_ = m.Begin("run-b", func() {})
	_ = m.Begin("run-a", func() {})

	if got := m.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}

	outcome := &models.RunOutcome{ExecutionID: "run-a", State: models.RunStateSucceeded}
	m.Complete("run-a", outcome)

	if got := m.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1 after completion", got)
	}

	status, err := m.Status("run-a")
	if err != nil {
		t.Fatalf("Status() unexpected error: %v", err)
	}

	if status.Outcome != outcome {
		t.Errorf("Status() outcome = %+v, want the recorded outcome", status.Outcome)
	}

	list := m.List()
	if len(list) != 2 || list[0].ExecutionID != "run-a" || list[1].ExecutionID != "run-b" {
		t.Errorf("List() = %+v, want run-a then run-b", list)
	}
}
