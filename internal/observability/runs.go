package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunMetrics records classification run lifecycle metrics.
type RunMetrics interface {
	RecordRunStarted(ctx context.Context)
	RecordRunCompleted(ctx context.Context, state string, duration time.Duration)
	RecordBatchCompleted(ctx context.Context, duration time.Duration)
	RecordRecordLabeled(ctx context.Context, outcome string)
	RecordRetry(ctx context.Context, dependency string)
	RecordReconciliation(ctx context.Context, created, reused, unresolved int)
	SetActiveRuns(n int)
}

// runMetrics implements RunMetrics.
type runMetrics struct {
	runsStarted        metric.Int64Counter
	runsCompleted      metric.Int64Counter
	runDuration        metric.Float64Histogram
	batchesCompleted   metric.Int64Counter
	batchDuration      metric.Float64Histogram
	recordsLabeled     metric.Int64Counter
	retries            metric.Int64Counter
	categoriesCreated  metric.Int64Counter
	categoriesReused   metric.Int64Counter
	unknownsUnresolved metric.Int64Counter
	activeRuns         atomic.Int64
	activeRunsGauge    metric.Float64ObservableGauge
}

// NewRunMetrics creates RunMetrics and registers gauges. Returns (nil, nil) when meter is nil (metrics disabled).
func NewRunMetrics(meter metric.Meter) (RunMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	runsStarted, err := meter.Int64Counter(
		MetricNameRunsStarted,
		metric.WithDescription("Total classification runs started"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs started counter: %w", err)
	}

	runsCompleted, err := meter.Int64Counter(
		MetricNameRunsCompleted,
		metric.WithDescription("Total classification runs completed by terminal state"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs completed counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		MetricNameRunDuration,
		metric.WithDescription("End-to-end run duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run duration histogram: %w", err)
	}

	batchesCompleted, err := meter.Int64Counter(
		MetricNameBatchesCompleted,
		metric.WithDescription("Total classification batches completed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batches completed counter: %w", err)
	}

	batchDuration, err := meter.Float64Histogram(
		MetricNameBatchDuration,
		metric.WithDescription("Per-batch classification duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch duration histogram: %w", err)
	}

	recordsLabeled, err := meter.Int64Counter(
		MetricNameRecordsLabeled,
		metric.WithDescription("Total records labeled by outcome (known/unknown)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create records labeled counter: %w", err)
	}

	retries, err := meter.Int64Counter(
		MetricNameRetries,
		metric.WithDescription("Total retry attempts by dependency"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retries counter: %w", err)
	}

	categoriesCreated, err := meter.Int64Counter(
		MetricNameCategoriesCreated,
		metric.WithDescription("Total categories created during reconciliation"),
	)
	if err != nil {
		return nil, fmt.Errorf("create categories created counter: %w", err)
	}

	categoriesReused, err := meter.Int64Counter(
		MetricNameCategoriesReused,
		metric.WithDescription("Total near-duplicate categories reused during reconciliation"),
	)
	if err != nil {
		return nil, fmt.Errorf("create categories reused counter: %w", err)
	}

	unknownsUnresolved, err := meter.Int64Counter(
		MetricNameUnknownsUnresolved,
		metric.WithDescription("Total unknown records left unresolved after reconciliation"),
	)
	if err != nil {
		return nil, fmt.Errorf("create unknowns unresolved counter: %w", err)
	}

	rm := &runMetrics{
		runsStarted:        runsStarted,
		runsCompleted:      runsCompleted,
		runDuration:        runDuration,
		batchesCompleted:   batchesCompleted,
		batchDuration:      batchDuration,
		recordsLabeled:     recordsLabeled,
		retries:            retries,
		categoriesCreated:  categoriesCreated,
		categoriesReused:   categoriesReused,
		unknownsUnresolved: unknownsUnresolved,
	}

	activeRunsGauge, err := meter.Float64ObservableGauge(
		MetricNameRunsActive,
		metric.WithDescription("Number of runs currently executing"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(float64(rm.activeRuns.Load()))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create active runs gauge: %w", err)
	}

	rm.activeRunsGauge = activeRunsGauge

	return rm, nil
}

func (r *runMetrics) RecordRunStarted(ctx context.Context) {
	r.runsStarted.Add(ctx, 1)
}

func (r *runMetrics) RecordRunCompleted(ctx context.Context, state string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrState, NormalizeRunState(state)))
	r.runsCompleted.Add(ctx, 1, attrs)
	r.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (r *runMetrics) RecordBatchCompleted(ctx context.Context, duration time.Duration) {
	r.batchesCompleted.Add(ctx, 1)
	r.batchDuration.Record(ctx, duration.Seconds())
}

func (r *runMetrics) RecordRecordLabeled(ctx context.Context, outcome string) {
	r.recordsLabeled.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrLabel, NormalizeLabelOutcome(outcome))))
}

func (r *runMetrics) RecordRetry(ctx context.Context, dependency string) {
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrDependency, NormalizeDependency(dependency))))
}

func (r *runMetrics) RecordReconciliation(ctx context.Context, created, reused, unresolved int) {
	if created > 0 {
		r.categoriesCreated.Add(ctx, int64(created))
	}

	if reused > 0 {
		r.categoriesReused.Add(ctx, int64(reused))
	}

	if unresolved > 0 {
		r.unknownsUnresolved.Add(ctx, int64(unresolved))
	}
}

func (r *runMetrics) SetActiveRuns(n int) {
	r.activeRuns.Store(int64(n))
}
