package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// fakeSource serves a canned record set, optionally failing the first few loads.
type fakeSource struct {
	mu        sync.Mutex
	records   []models.SourceRecord
	err       error
	failFirst int
	calls     int
}

func (f *fakeSource) Load(_ context.Context, _ string) ([]models.SourceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.failFirst > 0 {
		f.failFirst--

		return nil, autotagerrors.NewTransientDependencyError("source", "flaky load", errors.New("timeout"))
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.records, nil
}

// fakeSnapshotter hands out one snapshot and records releases.
type fakeSnapshotter struct {
	mu       sync.Mutex
	snapshot *models.TaxonomySnapshot
	err      error
	released []string
}

func (f *fakeSnapshotter) SnapshotFor(_ context.Context, _ string) (*models.TaxonomySnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.snapshot, nil
}

func (f *fakeSnapshotter) ReleaseSnapshot(executionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.released = append(f.released, executionID)
}

// fakeClassifier counts every batch as success, failing batches whose index
// is in failIndexes. It tracks concurrent invocations.
type fakeClassifier struct {
	mu          sync.Mutex
	batches     []models.Batch
	failIndexes map[int]bool
	delay       time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (f *fakeClassifier) ClassifyBatch(
	_ context.Context, _ string, _ *models.TaxonomySnapshot, batch models.Batch,
) (models.BatchStats, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		observed := f.maxInFlight.Load()
		if current <= observed || f.maxInFlight.CompareAndSwap(observed, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()

	stats := models.BatchStats{Total: len(batch.Records)}

	if f.failIndexes[batch.Index] {
		stats.Failure = stats.Total

		return stats, fmt.Errorf("batch %d: %w",
			batch.Index, autotagerrors.NewTransientDependencyError("oracle", "exhausted retries", errors.New("unavailable")))
	}

	stats.Success = stats.Total

	return stats, nil
}

func (f *fakeClassifier) classified() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.batches)
}

// fakeReconciler records when it was called relative to classification.
type fakeReconciler struct {
	mu                sync.Mutex
	report            *models.ReconciliationReport
	err               error
	calls             int
	batchesAtCallTime int
	classifier        *fakeClassifier
}

func (f *fakeReconciler) Reconcile(_ context.Context, _ string) (*models.ReconciliationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.classifier != nil {
		f.batchesAtCallTime = f.classifier.classified()
	}

	if f.report == nil {
		return &models.ReconciliationReport{}, f.err
	}

	return f.report, f.err
}

// fakeRecordsRepo implements FeedbackRecordsRepository in memory.
type fakeRecordsRepo struct {
	mu        sync.Mutex
	inserted  [][]models.FeedbackRecord
	insertErr error

	unknowns        []models.FeedbackRecord
	listUnknownsErr error

	updates   map[int64]string
	updateErr error

	top    []models.CategoryCount
	topErr error
}

func (f *fakeRecordsRepo) InsertBatch(_ context.Context, records []models.FeedbackRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}

	cp := make([]models.FeedbackRecord, len(records))
	copy(cp, records)
	f.inserted = append(f.inserted, cp)

	return nil
}

func (f *fakeRecordsRepo) ListByExecution(_ context.Context, _ string, _, _ int) ([]models.FeedbackRecord, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRecordsRepo) CountByExecution(_ context.Context, _ string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeRecordsRepo) GetLatestByRefID(_ context.Context, _ string) (*models.FeedbackRecord, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRecordsRepo) ListUnresolvedUnknowns(_ context.Context, _ string) ([]models.FeedbackRecord, error) {
	if f.listUnknownsErr != nil {
		return nil, f.listUnknownsErr
	}

	return f.unknowns, nil
}

func (f *fakeRecordsRepo) SetLabelPostProcessing(_ context.Context, ids []int64, label string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return 0, f.updateErr
	}

	if f.updates == nil {
		f.updates = make(map[int64]string)
	}

	for _, id := range ids {
		f.updates[id] = label
	}

	return int64(len(ids)), nil
}

func (f *fakeRecordsRepo) TopCategories(_ context.Context, _ string, _ int) ([]models.CategoryCount, error) {
	if f.topErr != nil {
		return nil, f.topErr
	}

	return f.top, nil
}

func (f *fakeRecordsRepo) ApplyCorrections(_ context.Context, corrections []models.LabelCorrectionRequest) (int64, error) {
	return int64(len(corrections)), nil
}

// captureNotifier records every event it is handed.
type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) Notify(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
}

func (c *captureNotifier) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Event(nil), c.events...)
}

func sourceRecords(n int) []models.SourceRecord {
	records := make([]models.SourceRecord, n)
	for i := range records {
		records[i] = models.SourceRecord{
			RefID:    fmt.Sprintf("ref-%d", i),
			Feedback: fmt.Sprintf("feedback %d", i),
		}
	}

	return records
}

// testHarness wires an orchestrator over fakes with a real run manager and
// notification publisher.
type testHarness struct {
	orchestrator *Orchestrator
	source       *fakeSource
	snapshotter  *fakeSnapshotter
	classifier   *fakeClassifier
	reconciler   *fakeReconciler
	records      *fakeRecordsRepo
	runs         *RunManager
	publisher    *NotificationPublisher
	notifier     *captureNotifier
}

func newTestHarness(records int, cfg OrchestratorConfig) *testHarness {
	h := &testHarness{
		source:      &fakeSource{records: sourceRecords(records)},
		snapshotter: &fakeSnapshotter{snapshot: &models.TaxonomySnapshot{}},
		classifier:  &fakeClassifier{},
		records:     &fakeRecordsRepo{},
		runs:        NewRunManager(),
		notifier:    &captureNotifier{},
	}

	h.reconciler = &fakeReconciler{classifier: h.classifier}
	h.publisher = NewNotificationPublisher(16, time.Second, nil)
	h.publisher.RegisterNotifier(h.notifier)

	if cfg.ValidationRetry.MaxAttempts == 0 {
		cfg.ValidationRetry = RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	}

	h.orchestrator = NewOrchestrator(
		h.source, h.snapshotter, h.classifier, h.reconciler, h.records, h.runs, h.publisher, cfg, nil,
	)

	return h
}

// execute registers the run and drives it to its terminal state, then drains
// the publisher so notification assertions see every event.
func (h *testHarness) execute(t *testing.T, executionID string) *models.RunOutcome {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.runs.Begin(executionID, cancel); err != nil {
		t.Fatalf("Begin(%q) unexpected error: %v", executionID, err)
	}

	outcome := h.orchestrator.Execute(ctx, executionID, "records.csv")
	h.publisher.Shutdown()

	return outcome
}

func TestOrchestrator_Execute_Success(t *testing.T) {
	h := newTestHarness(5, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})
	h.records.top = []models.CategoryCount{{Label: "Crash", Count: 3}}

	outcome := h.execute(t, "run-1")

	if !outcome.Succeeded() {
		t.Fatalf("outcome state = %s, want %s (error: %s)", outcome.State, models.RunStateSucceeded, outcome.ErrorMessage)
	}

	if outcome.Stats.Total != 5 || outcome.Stats.Success != 5 || outcome.Stats.Failure != 0 {
		t.Errorf("stats = %+v, want total 5 success 5 failure 0", outcome.Stats)
	}

	if got := h.classifier.classified(); got != 3 {
		t.Errorf("classified batches = %d, want 3", got)
	}

	if h.reconciler.calls != 1 {
		t.Errorf("reconciler calls = %d, want 1", h.reconciler.calls)
	}

	events := h.notifier.all()
	if len(events) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(events))
	}

	if events[0].Type != EventTypeRunSucceeded {
		t.Errorf("event type = %s, want %s", events[0].Type, EventTypeRunSucceeded)
	}

	if len(outcome.TopCategories) != 1 || outcome.TopCategories[0].Label != "Crash" {
		t.Errorf("top categories = %+v, want Crash", outcome.TopCategories)
	}

	status, err := h.runs.Status("run-1")
	if err != nil {
		t.Fatalf("Status() unexpected error: %v", err)
	}

	if status.State != models.RunStateSucceeded {
		t.Errorf("registry state = %s, want %s", status.State, models.RunStateSucceeded)
	}

	if len(h.snapshotter.released) != 1 {
		t.Errorf("snapshot releases = %d, want 1", len(h.snapshotter.released))
	}
}

func TestOrchestrator_Execute_ReconciliationAfterAllBatches(t *testing.T) {
	h := newTestHarness(10, OrchestratorConfig{BatchSize: 3, MaxConcurrentBatches: 2})
	h.classifier.delay = 2 * time.Millisecond

	outcome := h.execute(t, "run-barrier")

	if !outcome.Succeeded() {
		t.Fatalf("outcome state = %s, want succeeded", outcome.State)
	}

	if h.reconciler.batchesAtCallTime != 4 {
		t.Errorf("batches settled at reconcile time = %d, want 4", h.reconciler.batchesAtCallTime)
	}
}

func TestOrchestrator_Execute_BoundsConcurrentBatches(t *testing.T) {
	h := newTestHarness(12, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})
	h.classifier.delay = 5 * time.Millisecond

	outcome := h.execute(t, "run-bound")

	if !outcome.Succeeded() {
		t.Fatalf("outcome state = %s, want succeeded", outcome.State)
	}

	if got := h.classifier.maxInFlight.Load(); got > 2 {
		t.Errorf("max concurrent batches = %d, want at most 2", got)
	}
}

func TestOrchestrator_Execute_EmptyInputFailsAtValidation(t *testing.T) {
	h := newTestHarness(0, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})
	h.source.err = autotagerrors.NewInvalidInputError("record set is empty")

	outcome := h.execute(t, "run-empty")

	if outcome.State != models.RunStateFailed {
		t.Fatalf("outcome state = %s, want failed", outcome.State)
	}

	if got := h.classifier.classified(); got != 0 {
		t.Errorf("classified batches = %d, want 0", got)
	}

	if h.reconciler.calls != 0 {
		t.Errorf("reconciler calls = %d, want 0", h.reconciler.calls)
	}

	events := h.notifier.all()
	if len(events) != 1 {
		t.Fatalf("notifications = %d, want exactly 1 failure notification", len(events))
	}

	if events[0].Type != EventTypeRunFailed {
		t.Errorf("event type = %s, want %s", events[0].Type, EventTypeRunFailed)
	}

	if h.source.calls != 1 {
		t.Errorf("source loads = %d, want 1 (InvalidInputError never retries)", h.source.calls)
	}
}

func TestOrchestrator_Execute_RetriesTransientValidation(t *testing.T) {
	h := newTestHarness(4, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})
	h.source.failFirst = 2

	outcome := h.execute(t, "run-flaky")

	if !outcome.Succeeded() {
		t.Fatalf("outcome state = %s, want succeeded after retries", outcome.State)
	}

	if h.source.calls != 3 {
		t.Errorf("source loads = %d, want 3", h.source.calls)
	}
}

func TestOrchestrator_Execute_ExhaustedValidationRetriesFailRun(t *testing.T) {
	h := newTestHarness(4, OrchestratorConfig{
		BatchSize:            2,
		MaxConcurrentBatches: 2,
		ValidationRetry:      RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	h.source.failFirst = 10

	outcome := h.execute(t, "run-exhausted")

	if outcome.State != models.RunStateFailed {
		t.Fatalf("outcome state = %s, want failed", outcome.State)
	}

	if h.source.calls != 3 {
		t.Errorf("source loads = %d, want exactly the configured 3 attempts", h.source.calls)
	}

	if got := len(h.notifier.all()); got != 1 {
		t.Errorf("notifications = %d, want exactly 1", got)
	}
}

func TestOrchestrator_Execute_BatchFailureFailsRunButSettlesAll(t *testing.T) {
	h := newTestHarness(6, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 1})
	h.classifier.failIndexes = map[int]bool{1: true}

	outcome := h.execute(t, "run-batchfail")

	if outcome.State != models.RunStateFailed {
		t.Fatalf("outcome state = %s, want failed", outcome.State)
	}

	// With concurrency 1 all three batches were dispatched in order; the
	// failing one does not stop the others.
	if got := h.classifier.classified(); got != 3 {
		t.Errorf("classified batches = %d, want all 3 dispatched", got)
	}

	if h.reconciler.calls != 0 {
		t.Errorf("reconciler calls = %d, want 0 on a partially classified run", h.reconciler.calls)
	}

	if outcome.Stats.Failure != 2 || outcome.Stats.Success != 4 {
		t.Errorf("stats = %+v, want failure 2 success 4", outcome.Stats)
	}

	events := h.notifier.all()
	if len(events) != 1 || events[0].Type != EventTypeRunFailed {
		t.Fatalf("events = %+v, want exactly 1 failure notification", events)
	}
}

func TestOrchestrator_Execute_AbortSkipsReconciliation(t *testing.T) {
	h := newTestHarness(6, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})

	ctx, cancel := context.WithCancel(context.Background())

	if err := h.runs.Begin("run-abort", cancel); err != nil {
		t.Fatalf("Begin() unexpected error: %v", err)
	}

	// Abort before dispatch: queued batches are skipped, the run fails and
	// still notifies.
	cancel()

	outcome := h.orchestrator.Execute(ctx, "run-abort", "records.csv")
	h.publisher.Shutdown()

	if outcome.State != models.RunStateFailed {
		t.Fatalf("outcome state = %s, want failed", outcome.State)
	}

	if got := h.classifier.classified(); got != 0 {
		t.Errorf("classified batches = %d, want 0 after abort", got)
	}

	if h.reconciler.calls != 0 {
		t.Errorf("reconciler calls = %d, want 0 on an aborted run", h.reconciler.calls)
	}

	events := h.notifier.all()
	if len(events) != 1 || events[0].Type != EventTypeRunFailed {
		t.Fatalf("events = %+v, want exactly 1 failure notification", events)
	}
}

func TestOrchestrator_Execute_ReconciliationPartialFailureDoesNotFailRun(t *testing.T) {
	h := newTestHarness(4, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})
	h.reconciler.report = &models.ReconciliationReport{UnknownRecords: 3, Reconciled: 2, UpdateFailures: 1}
	h.reconciler.err = autotagerrors.NewReconciliationPartialFailureError(1, "1 of 3 updates failed")

	outcome := h.execute(t, "run-partial")

	if !outcome.Succeeded() {
		t.Fatalf("outcome state = %s, want succeeded despite partial reconciliation", outcome.State)
	}

	if outcome.Report == nil || outcome.Report.UpdateFailures != 1 {
		t.Errorf("report = %+v, want update_failures 1 carried in outcome", outcome.Report)
	}
}

func TestOrchestrator_Execute_ReconciliationHardFailureFailsRun(t *testing.T) {
	h := newTestHarness(4, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 2})
	h.reconciler.err = autotagerrors.NewTransientDependencyError("database", "listing unknowns failed", errors.New("conn reset"))

	outcome := h.execute(t, "run-reconcile-fail")

	if outcome.State != models.RunStateFailed {
		t.Fatalf("outcome state = %s, want failed", outcome.State)
	}

	if got := len(h.notifier.all()); got != 1 {
		t.Errorf("notifications = %d, want exactly 1", got)
	}
}

func TestOrchestrator_Execute_TopCategoriesFailureIsBestEffort(t *testing.T) {
	h := newTestHarness(2, OrchestratorConfig{BatchSize: 2, MaxConcurrentBatches: 1})
	h.records.topErr = errors.New("conn reset")

	outcome := h.execute(t, "run-topfail")

	if !outcome.Succeeded() {
		t.Fatalf("outcome state = %s, want succeeded", outcome.State)
	}

	if outcome.TopCategories != nil {
		t.Errorf("top categories = %+v, want none on read failure", outcome.TopCategories)
	}
}
