package models

import (
	"time"
)

// LabelUnknown is the sentinel label for items the oracle could not classify.
// It is the only oracle output accepted besides a label from the taxonomy.
const LabelUnknown = "unknown"

// FeedbackRecord is one row of the customer_feedback table. A ref_id is not
// unique: re-submitting the same source item in a later run appends a new row
// (append-then-supersede); readers take the most-recently-updated row per ref_id.
type FeedbackRecord struct {
	ID                  int64      `json:"id"`
	ProductName         *string    `json:"product_name,omitempty"`
	Store               *string    `json:"store,omitempty"`
	RefID               string     `json:"ref_id"`
	Stars               *string    `json:"stars,omitempty"`
	Title               *string    `json:"title,omitempty"`
	Feedback            string     `json:"feedback"`
	LabelLLM            *string    `json:"label_llm,omitempty"`
	CreateDate          *time.Time `json:"create_date,omitempty"`
	LastUpdatedTime     time.Time  `json:"last_updated_time"`
	LabelPostProcessing *string    `json:"label_post_processing,omitempty"`
	LabelCorrection     *string    `json:"label_correction,omitempty"`
	ExecutionID         string     `json:"execution_id"`
}

// SourceRecord is one parsed row of an ingested record set, before any
// feedback row exists for it. Date is optional in the source data.
type SourceRecord struct {
	ProductName string     `json:"product_name"`
	Store       string     `json:"store"`
	RefID       string     `json:"id"`
	Stars       string     `json:"stars"`
	Title       string     `json:"title"`
	Feedback    string     `json:"feedback"`
	Date        *time.Time `json:"date,omitempty"`
}

// LabelCorrectionRequest is one operator-provided correction row.
type LabelCorrectionRequest struct {
	ID              int64  `json:"id"`
	LabelCorrection string `json:"label_correction"`
}

// ApplyCorrectionsRequest is the request body for the mass-correction endpoint.
type ApplyCorrectionsRequest struct {
	Corrections []LabelCorrectionRequest `json:"corrections"`
}

// ApplyCorrectionsResponse reports how many feedback rows were updated.
type ApplyCorrectionsResponse struct {
	UpdatedCount int64  `json:"updated_count"`
	Message      string `json:"message"`
}

// ListFeedbackRecordsResponse is the response for listing feedback records.
type ListFeedbackRecordsResponse struct {
	Data   []FeedbackRecord `json:"data"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
