package models

import (
	"strings"
	"time"
)

// Category is one row of the customer_feedback_category table. Name keeps the
// display form; uniqueness is enforced on lower(category_name). Embedding is
// the vector of the name text, used for near-duplicate detection. Rows are
// soft-deleted (mass category updates), never removed.
type Category struct {
	ID              int64     `json:"id"`
	Name            string    `json:"category_name"`
	Embedding       []float32 `json:"-"`
	LastUpdatedTime time.Time `json:"last_updated_time"`
	Deleted         bool      `json:"deleted,omitempty"`
}

// CategoryMatch is a category with its distance to a probe embedding.
type CategoryMatch struct {
	Category
	Distance float64 `json:"distance"`
}

// TaxonomySnapshot is the set of active categories a run classifies against.
// Workers read it; only reconcilers (and mass updates) write the underlying table.
type TaxonomySnapshot struct {
	Categories []Category `json:"categories"`
}

// Labels returns the category names in snapshot order.
func (s *TaxonomySnapshot) Labels() []string {
	labels := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		labels[i] = c.Name
	}

	return labels
}

// Contains reports whether label matches a snapshot category under normalization.
func (s *TaxonomySnapshot) Contains(label string) bool {
	_, ok := s.Canonical(label)

	return ok
}

// Canonical returns the snapshot's display form for label, matching under
// normalization, and whether a match exists.
func (s *TaxonomySnapshot) Canonical(label string) (string, bool) {
	normalized := NormalizeLabel(label)
	for _, c := range s.Categories {
		if NormalizeLabel(c.Name) == normalized {
			return c.Name, true
		}
	}

	return "", false
}

// NormalizeLabel lower-cases, trims, and collapses inner whitespace so that
// "Login  Issue " and "login issue" key the same category.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// CategoryCount is a label with its record count, for run reports.
type CategoryCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// ReplaceCategoriesRequest is the request body for the mass category update:
// the full desired set of active category names.
type ReplaceCategoriesRequest struct {
	Categories []string `json:"categories"`
}

// ReplaceCategoriesResponse summarizes a mass category update.
type ReplaceCategoriesResponse struct {
	Deleted     int64  `json:"deleted"`
	Reactivated int64  `json:"reactivated"`
	Inserted    int64  `json:"inserted"`
	Message     string `json:"message"`
}

// ListCategoriesResponse is the response for listing active categories.
type ListCategoriesResponse struct {
	Data  []Category `json:"data"`
	Total int        `json:"total"`
}
