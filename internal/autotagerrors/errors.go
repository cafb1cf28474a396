// Package autotagerrors provides sentinel and custom error types for the application.
package autotagerrors

// ErrInvalidInput represents invalid run input.
// Use when a record set is empty, malformed, or exceeds the configured maximum size.
var ErrInvalidInput = &InvalidInputError{}

// InvalidInputError is a sentinel error for run input that fails validation.
// It is never retried; the run goes straight to a failure notification.
type InvalidInputError struct {
	Message string
	// Details carries per-row validation failures for the failure report.
	Details []string
}

// NewInvalidInputError creates a new InvalidInputError with a custom message.
func NewInvalidInputError(message string, details ...string) *InvalidInputError {
	return &InvalidInputError{
		Message: message,
		Details: details,
	}
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "invalid input"
}

// Is implements the error interface for error comparison.
func (e *InvalidInputError) Is(target error) bool {
	_, ok := target.(*InvalidInputError)

	return ok
}

// ErrTransientDependency represents a transient fault in an external dependency.
// Use for oracle unavailability or transient store errors; retryable per run policy.
var ErrTransientDependency = &TransientDependencyError{}

// TransientDependencyError is a sentinel error for retryable dependency faults.
type TransientDependencyError struct {
	Dependency string
	Message    string
	Err        error
}

// NewTransientDependencyError creates a TransientDependencyError wrapping err.
func NewTransientDependencyError(dependency, message string, err error) *TransientDependencyError {
	return &TransientDependencyError{
		Dependency: dependency,
		Message:    message,
		Err:        err,
	}
}

// Error implements the error interface.
func (e *TransientDependencyError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "transient dependency failure"
	}

	if e.Dependency != "" {
		msg = e.Dependency + ": " + msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the wrapped error.
func (e *TransientDependencyError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *TransientDependencyError) Is(target error) bool {
	_, ok := target.(*TransientDependencyError)

	return ok
}

// ErrMalformedOracleResponse represents oracle output that violates the
// classification contract (not one supplied label and not the unknown sentinel).
// Absorbed by the worker: the item is recorded as unknown, the batch continues.
var ErrMalformedOracleResponse = &MalformedOracleResponseError{}

// MalformedOracleResponseError is a sentinel error for contract-violating oracle output.
type MalformedOracleResponseError struct {
	Raw     string
	Message string
}

// NewMalformedOracleResponseError creates a MalformedOracleResponseError keeping the raw output.
func NewMalformedOracleResponseError(raw, message string) *MalformedOracleResponseError {
	return &MalformedOracleResponseError{
		Raw:     raw,
		Message: message,
	}
}

// Error implements the error interface.
func (e *MalformedOracleResponseError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "malformed oracle response"
}

// Is implements the error interface for error comparison.
func (e *MalformedOracleResponseError) Is(target error) bool {
	_, ok := target.(*MalformedOracleResponseError)

	return ok
}

// ErrTaxonomyConflict represents a lost category-creation race (duplicate
// normalized label). Expected under concurrent reconcilers; recovered locally
// by reusing the winning row.
var ErrTaxonomyConflict = &TaxonomyConflictError{}

// TaxonomyConflictError is a sentinel error for duplicate category creation.
type TaxonomyConflictError struct {
	Label   string
	Message string
}

// NewTaxonomyConflictError creates a TaxonomyConflictError for the given label.
func NewTaxonomyConflictError(label, message string) *TaxonomyConflictError {
	return &TaxonomyConflictError{
		Label:   label,
		Message: message,
	}
}

// Error implements the error interface.
func (e *TaxonomyConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Label != "" {
		return "category already exists: " + e.Label
	}

	return "taxonomy conflict"
}

// Is implements the error interface for error comparison.
func (e *TaxonomyConflictError) Is(target error) bool {
	_, ok := target.(*TaxonomyConflictError)

	return ok
}

// ErrReconciliationPartialFailure represents per-record update failures during
// a reconciliation pass. The pass continues; failed records keep their prior
// label and are picked up by a later run.
var ErrReconciliationPartialFailure = &ReconciliationPartialFailureError{}

// ReconciliationPartialFailureError is a sentinel error summarizing skipped record updates.
type ReconciliationPartialFailureError struct {
	Failed  int
	Message string
}

// NewReconciliationPartialFailureError creates a ReconciliationPartialFailureError.
func NewReconciliationPartialFailureError(failed int, message string) *ReconciliationPartialFailureError {
	return &ReconciliationPartialFailureError{
		Failed:  failed,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ReconciliationPartialFailureError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "reconciliation completed with record update failures"
}

// Is implements the error interface for error comparison.
func (e *ReconciliationPartialFailureError) Is(target error) bool {
	_, ok := target.(*ReconciliationPartialFailureError)

	return ok
}

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}
