package models

// Notification is the operator-facing summary of one finished run. Exactly
// one is built per run, whatever the outcome.
type Notification struct {
	ExecutionID string `json:"execution_id"`
	Success     bool   `json:"success"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
}
