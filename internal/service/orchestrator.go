package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
)

// topCategoriesLimit bounds how many category counts the notification carries.
const topCategoriesLimit = 3

// RecordSource loads and validates the record set a run was started with.
type RecordSource interface {
	Load(ctx context.Context, sourceRef string) ([]models.SourceRecord, error)
}

// TaxonomySnapshotter pins one taxonomy snapshot per run.
type TaxonomySnapshotter interface {
	SnapshotFor(ctx context.Context, executionID string) (*models.TaxonomySnapshot, error)
	ReleaseSnapshot(executionID string)
}

// BatchClassifier classifies one batch against a run's snapshot.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, executionID string, snapshot *models.TaxonomySnapshot, batch models.Batch) (models.BatchStats, error)
}

// RunReconciler resolves a run's unknown records after all batches settle.
type RunReconciler interface {
	Reconcile(ctx context.Context, executionID string) (*models.ReconciliationReport, error)
}

// OrchestratorConfig holds the run-shape and retry knobs of the orchestrator.
type OrchestratorConfig struct {
	BatchSize            int
	MaxConcurrentBatches int
	ValidationRetry      RetryPolicy
	ErrorRateThreshold   float64
}

// Orchestrator drives one run end to end: validate the record set, partition
// it into deterministic batches, classify the batches with bounded
// concurrency (the worker retries transient failures per record), reconcile
// the run's unknown records once
// every batch has settled, and emit exactly one terminal notification.
//
// The run state machine only moves forward (Validating → Partitioned →
// Classifying → Reconciling → Notifying → Succeeded); Failed is reachable
// from every non-terminal state and no state is re-entered.
type Orchestrator struct {
	source     RecordSource
	taxonomy   TaxonomySnapshotter
	worker     BatchClassifier
	reconciler RunReconciler
	records    FeedbackRecordsRepository
	runs       *RunManager
	publisher  *NotificationPublisher
	cfg        OrchestratorConfig
	metrics    observability.RunMetrics
}

// NewOrchestrator creates an orchestrator. metrics may be nil when metrics
// are disabled.
func NewOrchestrator(
	source RecordSource,
	taxonomy TaxonomySnapshotter,
	worker BatchClassifier,
	reconciler RunReconciler,
	records FeedbackRecordsRepository,
	runs *RunManager,
	publisher *NotificationPublisher,
	cfg OrchestratorConfig,
	metrics observability.RunMetrics,
) *Orchestrator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	if cfg.MaxConcurrentBatches < 1 {
		cfg.MaxConcurrentBatches = 1
	}

	return &Orchestrator{
		source:     source,
		taxonomy:   taxonomy,
		worker:     worker,
		reconciler: reconciler,
		records:    records,
		runs:       runs,
		publisher:  publisher,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// Execute runs one classification run to its terminal state and returns the
// outcome. The run must already be registered with the RunManager in the
// Validating state. Whatever happens, the run terminates in exactly one
// notification; only a fault inside notification delivery itself escapes
// that guarantee.
func (o *Orchestrator) Execute(ctx context.Context, executionID, sourceRef string) *models.RunOutcome {
	ctx = observability.ContextWithExecutionID(ctx, executionID)

	outcome := &models.RunOutcome{
		ExecutionID: executionID,
		StartedAt:   time.Now(),
	}

	if o.metrics != nil {
		o.metrics.RecordRunStarted(ctx)
		o.metrics.SetActiveRuns(o.runs.ActiveCount())
	}

	slog.Info("run started", "execution_id", executionID, "source", sourceRef)

	// Validation. An invalid record set short-circuits straight to the
	// failure notification: no batches dispatched, no taxonomy touched.
	var records []models.SourceRecord

	err := retryTransient(ctx, o.cfg.ValidationRetry, "source", o.metrics, func(ctx context.Context) error {
		var err error

		records, err = o.source.Load(ctx, sourceRef)

		return err
	})
	if err != nil {
		return o.fail(ctx, outcome, fmt.Errorf("validation failed: %w", err))
	}

	batches := Partition(records, executionID, o.cfg.BatchSize)
	if err := o.setState(executionID, models.RunStatePartitioned); err != nil {
		return o.fail(ctx, outcome, err)
	}

	slog.Info("run partitioned",
		"execution_id", executionID,
		"records", len(records),
		"batches", len(batches),
		"batch_size", o.cfg.BatchSize,
	)

	// One snapshot per run: every batch classifies against the same
	// category set even while other runs extend the taxonomy.
	var snapshot *models.TaxonomySnapshot

	err = retryTransient(ctx, o.cfg.ValidationRetry, "database", o.metrics, func(ctx context.Context) error {
		var err error

		snapshot, err = o.taxonomy.SnapshotFor(ctx, executionID)

		return err
	})
	if err != nil {
		return o.fail(ctx, outcome, fmt.Errorf("loading taxonomy snapshot: %w", err))
	}

	if err := o.setState(executionID, models.RunStateClassifying); err != nil {
		return o.fail(ctx, outcome, err)
	}

	stats, batchErr := o.classifyAll(ctx, executionID, snapshot, batches)
	outcome.Stats = stats

	// Aggregation barrier: every dispatched batch has settled here.
	// Reconciliation never runs on a cancelled or partially classified run.
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, outcome, fmt.Errorf("run aborted: %w", err))
	}

	if batchErr != nil {
		return o.fail(ctx, outcome, batchErr)
	}

	if err := o.setState(executionID, models.RunStateReconciling); err != nil {
		return o.fail(ctx, outcome, err)
	}

	report, err := o.reconciler.Reconcile(ctx, executionID)
	outcome.Report = report

	if err != nil {
		// Per-record update shortfalls ride along in the report and are
		// retried by a later run; anything else fails this one.
		if !errors.Is(err, autotagerrors.ErrReconciliationPartialFailure) {
			return o.fail(ctx, outcome, fmt.Errorf("reconciliation failed: %w", err))
		}

		slog.Warn("reconciliation finished with partial failures", "execution_id", executionID, "error", err)
	}

	if err := o.setState(executionID, models.RunStateNotifying); err != nil {
		return o.fail(ctx, outcome, err)
	}

	outcome.TopCategories = o.topCategories(ctx, executionID)
	outcome.State = models.RunStateSucceeded

	o.finish(ctx, outcome)

	return outcome
}

// classifyAll dispatches batches with bounded concurrency and blocks until
// every dispatched batch settles. Aborting the run stops dispatch of queued
// batches; batches already in flight run to completion on a detached
// context. The returned error is the first exhausted-batch failure.
func (o *Orchestrator) classifyAll(
	ctx context.Context, executionID string, snapshot *models.TaxonomySnapshot, batches []models.Batch,
) (models.BatchStats, error) {
	var (
		mu       sync.Mutex
		stats    models.BatchStats
		batchErr error
	)

	group := new(errgroup.Group)
	group.SetLimit(o.cfg.MaxConcurrentBatches)

	for _, batch := range batches {
		// Group admission doubles as the dispatch queue: Go blocks until a
		// slot frees, so an abort observed here cancels everything not yet
		// dispatched.
		if err := ctx.Err(); err != nil {
			mu.Lock()
			stats.Add(models.BatchStats{Total: len(batch.Records), Failure: len(batch.Records)})
			mu.Unlock()

			slog.Info("batch dispatch cancelled", "execution_id", executionID, "batch", batch.Index)

			continue
		}

		group.Go(func() error {
			// In-flight batches finish even when the run is aborted.
			batchStats, err := o.worker.ClassifyBatch(context.WithoutCancel(ctx), executionID, snapshot, batch)

			mu.Lock()
			defer mu.Unlock()

			stats.Add(batchStats)

			if err != nil && batchErr == nil {
				batchErr = fmt.Errorf("classification failed: %w", err)
			}

			return nil
		})
	}

	// Barrier: the goroutines never return errors, so Wait only blocks.
	_ = group.Wait()

	return stats, batchErr
}

// fail terminates a run with a failure outcome. The failure notification is
// still emitted; only the error is recorded in place of the counts a
// successful run would carry.
func (o *Orchestrator) fail(ctx context.Context, outcome *models.RunOutcome, err error) *models.RunOutcome {
	slog.Error("run failed", "execution_id", outcome.ExecutionID, "state", models.RunStateFailed, "error", err)

	outcome.State = models.RunStateFailed
	outcome.ErrorMessage = err.Error()

	o.finish(ctx, outcome)

	return outcome
}

// finish seals the outcome, publishes the run's single terminal notification,
// and releases the run's bookkeeping. Called exactly once per run.
func (o *Orchestrator) finish(ctx context.Context, outcome *models.RunOutcome) {
	outcome.FinishedAt = time.Now()

	notification := BuildRunNotification(outcome, o.cfg.ErrorRateThreshold)

	eventType := EventTypeRunFailed
	if notification.Success {
		eventType = EventTypeRunSucceeded
	}

	// Publish before Complete: the run is not terminal until its
	// notification is on the wire.
	o.publisher.Publish(ctx, eventType, notification)

	o.runs.Complete(outcome.ExecutionID, outcome)
	o.taxonomy.ReleaseSnapshot(outcome.ExecutionID)

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(ctx, string(outcome.State), outcome.FinishedAt.Sub(outcome.StartedAt))
		o.metrics.SetActiveRuns(o.runs.ActiveCount())
	}

	slog.Info("run finished",
		"execution_id", outcome.ExecutionID,
		"state", outcome.State,
		"total", outcome.Stats.Total,
		"success", outcome.Stats.Success,
		"failure", outcome.Stats.Failure,
		"duration", outcome.FinishedAt.Sub(outcome.StartedAt),
	)
}

// topCategories fetches the run's top label counts for the notification
// body. Best effort: a read failure only costs the notification its
// category table.
func (o *Orchestrator) topCategories(ctx context.Context, executionID string) []models.CategoryCount {
	counts, err := o.records.TopCategories(ctx, executionID, topCategoriesLimit)
	if err != nil {
		slog.Warn("failed to load top categories for notification", "execution_id", executionID, "error", err)

		return nil
	}

	return counts
}

// setState advances the run state machine, mapping an illegal transition to
// a run failure instead of panicking mid-run.
func (o *Orchestrator) setState(executionID string, next models.RunState) error {
	if err := o.runs.SetState(executionID, next); err != nil {
		return fmt.Errorf("advancing run state to %s: %w", next, err)
	}

	return nil
}
