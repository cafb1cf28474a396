package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
)

// ClassificationOracle labels records against a taxonomy snapshot and
// suggests labels for clusters of unknown feedback.
type ClassificationOracle interface {
	Classify(ctx context.Context, record models.FeedbackRecord, snapshot *models.TaxonomySnapshot) (string, error)
	SuggestLabel(ctx context.Context, samples []string) (string, error)
}

// ClassificationWorker classifies one batch at a time: items in order, one
// label per item, then a single append of the labeled rows. Transient oracle
// and store faults are retried per the batch retry policy; exhausting it
// fails the batch, which fails the run.
type ClassificationWorker struct {
	oracle  ClassificationOracle
	records FeedbackRecordsRepository
	retry   RetryPolicy
	metrics observability.RunMetrics
}

// NewClassificationWorker creates a worker. metrics may be nil when metrics are disabled.
func NewClassificationWorker(
	oracle ClassificationOracle,
	records FeedbackRecordsRepository,
	retry RetryPolicy,
	metrics observability.RunMetrics,
) *ClassificationWorker {
	return &ClassificationWorker{
		oracle:  oracle,
		records: records,
		retry:   retry,
		metrics: metrics,
	}
}

// ClassifyBatch labels every record of one batch against the run's snapshot
// and appends the labeled rows in one transaction. On error the batch's
// records count as failures and nothing is appended; retries of the batch
// would operate on the same item set.
func (w *ClassificationWorker) ClassifyBatch(
	ctx context.Context, executionID string, snapshot *models.TaxonomySnapshot, batch models.Batch,
) (models.BatchStats, error) {
	start := time.Now()
	stats := models.BatchStats{Total: len(batch.Records)}

	labeled := make([]models.FeedbackRecord, 0, len(batch.Records))

	for _, record := range batch.Records {
		label, err := w.classifyRecord(ctx, record, snapshot)
		if err != nil {
			stats.Failure = stats.Total

			return stats, fmt.Errorf("batch %d: classifying record %q: %w", batch.Index, record.RefID, err)
		}

		record.LabelLLM = &label
		labeled = append(labeled, record)

		if w.metrics != nil {
			outcome := "known"
			if label == models.LabelUnknown {
				outcome = models.LabelUnknown
			}

			w.metrics.RecordRecordLabeled(ctx, outcome)
		}
	}

	err := retryTransient(ctx, w.retry, "database", w.metrics, func(ctx context.Context) error {
		if err := w.records.InsertBatch(ctx, labeled); err != nil {
			return autotagerrors.NewTransientDependencyError("database", "batch append failed", err)
		}

		return nil
	})
	if err != nil {
		stats.Failure = stats.Total

		return stats, fmt.Errorf("batch %d: appending %d records: %w", batch.Index, len(labeled), err)
	}

	stats.Success = len(labeled)

	if w.metrics != nil {
		w.metrics.RecordBatchCompleted(ctx, time.Since(start))
	}

	slog.Info("batch classified",
		"execution_id", executionID,
		"batch", batch.Index,
		"total", stats.Total,
		"success", stats.Success,
		"duration", time.Since(start),
	)

	return stats, nil
}

// classifyRecord labels one record, retrying transient oracle faults.
// Malformed oracle output resolves to the unknown label so a single bad
// response can never fail a batch.
func (w *ClassificationWorker) classifyRecord(
	ctx context.Context, record models.FeedbackRecord, snapshot *models.TaxonomySnapshot,
) (string, error) {
	var label string

	err := retryTransient(ctx, w.retry, "oracle", w.metrics, func(ctx context.Context) error {
		var err error

		label, err = w.oracle.Classify(ctx, record, snapshot)

		return err
	})
	if err != nil {
		if errors.Is(err, autotagerrors.ErrMalformedOracleResponse) {
			slog.Warn("malformed oracle response, recording record as unknown",
				"ref_id", record.RefID,
				"error", err,
			)

			return models.LabelUnknown, nil
		}

		return "", err
	}

	return label, nil
}
