// Package repository provides data access for feedback records and the
// category taxonomy.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// feedbackColumns is the scan order shared by every feedback query.
const feedbackColumns = `id, product_name, store, ref_id, stars, title, feedback,
	label_llm, create_date, last_updated_time, label_post_processing, label_correction, execution_id`

// FeedbackRecordsRepository handles data access for feedback records.
type FeedbackRecordsRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRecordsRepository creates a new feedback records repository.
func NewFeedbackRecordsRepository(db *pgxpool.Pool) *FeedbackRecordsRepository {
	return &FeedbackRecordsRepository{db: db}
}

// InsertBatch appends one labeled batch in a single transaction and fills in
// the generated IDs. Ref IDs are never updated in place: re-submitting a
// source item appends a new row and readers take the latest one per ref_id.
// All-or-nothing per batch, so a retried batch cannot leave duplicates behind.
func (r *FeedbackRecordsRepository) InsertBatch(ctx context.Context, records []models.FeedbackRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO customer_feedback (
			product_name, store, ref_id, stars, title, feedback,
			label_llm, create_date, execution_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, last_updated_time
	`

	for i := range records {
		record := &records[i]

		err := tx.QueryRow(ctx, query,
			record.ProductName, record.Store, record.RefID, record.Stars, record.Title,
			record.Feedback, record.LabelLLM, record.CreateDate, record.ExecutionID,
		).Scan(&record.ID, &record.LastUpdatedTime)
		if err != nil {
			return fmt.Errorf("failed to insert feedback record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch insert: %w", err)
	}

	return nil
}

// ListByExecution retrieves the feedback rows appended by one run, in insert order.
func (r *FeedbackRecordsRepository) ListByExecution(
	ctx context.Context, executionID string, limit, offset int,
) ([]models.FeedbackRecord, error) {
	query := `
		SELECT ` + feedbackColumns + `
		FROM customer_feedback
		WHERE execution_id = $1
		ORDER BY id
	`
	args := []any{executionID}
	argCount := 2

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)

		args = append(args, limit)
		argCount++
	}

	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)

		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback records: %w", err)
	}
	defer rows.Close()

	return scanFeedbackRecords(rows)
}

// CountByExecution returns the number of feedback rows one run appended.
func (r *FeedbackRecordsRepository) CountByExecution(ctx context.Context, executionID string) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM customer_feedback WHERE execution_id = $1`, executionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback records: %w", err)
	}

	return count, nil
}

// GetLatestByRefID retrieves the most recently updated row for a ref_id.
// Older rows for the same ref_id stay in place but are superseded.
func (r *FeedbackRecordsRepository) GetLatestByRefID(ctx context.Context, refID string) (*models.FeedbackRecord, error) {
	query := `
		SELECT ` + feedbackColumns + `
		FROM customer_feedback
		WHERE ref_id = $1
		ORDER BY last_updated_time DESC, id DESC
		LIMIT 1
	`

	record, err := scanFeedbackRecord(r.db.QueryRow(ctx, query, refID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autotagerrors.NewNotFoundError("feedback record", "feedback record not found")
		}

		return nil, fmt.Errorf("failed to get feedback record: %w", err)
	}

	return record, nil
}

// ListUnresolvedUnknowns retrieves a run's rows the oracle could not classify
// and no later pass or operator has resolved yet.
func (r *FeedbackRecordsRepository) ListUnresolvedUnknowns(
	ctx context.Context, executionID string,
) ([]models.FeedbackRecord, error) {
	query := `
		SELECT ` + feedbackColumns + `
		FROM customer_feedback
		WHERE execution_id = $1
		  AND label_llm = $2
		  AND label_post_processing IS NULL
		  AND label_correction IS NULL
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, executionID, models.LabelUnknown)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved unknowns: %w", err)
	}
	defer rows.Close()

	return scanFeedbackRecords(rows)
}

// SetLabelPostProcessing resolves a set of unknown rows to label in one
// statement and returns how many rows were updated.
func (r *FeedbackRecordsRepository) SetLabelPostProcessing(
	ctx context.Context, ids []int64, label string,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(ctx,
		`UPDATE customer_feedback SET label_post_processing = $1, last_updated_time = CURRENT_TIMESTAMP WHERE id = ANY($2)`,
		label, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set label_post_processing: %w", err)
	}

	return result.RowsAffected(), nil
}

// TopCategories returns the most frequent labels a run assigned, for the run report.
func (r *FeedbackRecordsRepository) TopCategories(
	ctx context.Context, executionID string, limit int,
) ([]models.CategoryCount, error) {
	query := `
		SELECT label_llm, COUNT(*) AS category_count
		FROM customer_feedback
		WHERE execution_id = $1 AND label_llm IS NOT NULL
		GROUP BY label_llm
		ORDER BY category_count DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, executionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories: %w", err)
	}
	defer rows.Close()

	counts := []models.CategoryCount{}

	for rows.Next() {
		var count models.CategoryCount
		if err := rows.Scan(&count.Label, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}

		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top categories: %w", err)
	}

	return counts, nil
}

// ApplyCorrections records operator label corrections in one transaction and
// returns how many rows were updated. Rows whose ID no longer exists are
// skipped, not errors.
func (r *FeedbackRecordsRepository) ApplyCorrections(
	ctx context.Context, corrections []models.LabelCorrectionRequest,
) (int64, error) {
	if len(corrections) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin corrections update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var updated int64

	for _, correction := range corrections {
		result, err := tx.Exec(ctx,
			`UPDATE customer_feedback SET label_correction = $1, last_updated_time = CURRENT_TIMESTAMP WHERE id = $2`,
			correction.LabelCorrection, correction.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to apply correction for id %d: %w", correction.ID, err)
		}

		updated += result.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit corrections: %w", err)
	}

	return updated, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedbackRecord(row rowScanner) (*models.FeedbackRecord, error) {
	var record models.FeedbackRecord

	err := row.Scan(
		&record.ID, &record.ProductName, &record.Store, &record.RefID, &record.Stars,
		&record.Title, &record.Feedback, &record.LabelLLM, &record.CreateDate,
		&record.LastUpdatedTime, &record.LabelPostProcessing, &record.LabelCorrection,
		&record.ExecutionID,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func scanFeedbackRecords(rows pgx.Rows) ([]models.FeedbackRecord, error) {
	records := []models.FeedbackRecord{} // Initialize as empty slice, not nil

	for rows.Next() {
		record, err := scanFeedbackRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback record: %w", err)
		}

		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback records: %w", err)
	}

	return records, nil
}
