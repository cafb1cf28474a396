package service

import (
	"github.com/autotaghq/autotag/internal/models"
)

// Partition slices a validated record set into deterministic batches of at
// most batchSize, preserving source order. Batch boundaries are fixed for the
// life of the run: a retried batch carries exactly the same records under the
// same index.
func Partition(records []models.SourceRecord, executionID string, batchSize int) []models.Batch {
	if len(records) == 0 {
		return nil
	}

	if batchSize < 1 {
		batchSize = 1
	}

	batches := make([]models.Batch, 0, (len(records)+batchSize-1)/batchSize)

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))

		batch := models.Batch{
			Index:   len(batches),
			Records: make([]models.FeedbackRecord, 0, end-start),
		}

		for _, source := range records[start:end] {
			batch.Records = append(batch.Records, models.FeedbackRecord{
				ProductName: nilIfEmpty(source.ProductName),
				Store:       nilIfEmpty(source.Store),
				RefID:       source.RefID,
				Stars:       nilIfEmpty(source.Stars),
				Title:       nilIfEmpty(source.Title),
				Feedback:    source.Feedback,
				CreateDate:  source.Date,
				ExecutionID: executionID,
			})
		}

		batches = append(batches, batch)
	}

	return batches
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
