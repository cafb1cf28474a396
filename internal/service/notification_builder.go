package service

import (
	"fmt"
	"strings"

	"github.com/autotaghq/autotag/internal/models"
)

// Run event types published to notifiers.
const (
	EventTypeRunSucceeded = "run.succeeded"
	EventTypeRunFailed    = "run.failed"
)

// BuildRunNotification renders the operator notification for a finished run.
// A run that died before classifying anything reports its error; otherwise
// the body carries the counts and success requires both a succeeded run and a
// failure ratio within errorRateThreshold. An empty record set never gets
// this far, so a zero total only means the run failed early.
func BuildRunNotification(outcome *models.RunOutcome, errorRateThreshold float64) models.Notification {
	if outcome.State == models.RunStateFailed && outcome.Stats.Total == 0 {
		errorMessage := outcome.ErrorMessage
		if errorMessage == "" {
			errorMessage = "run failed"
		}

		return models.Notification{
			ExecutionID: outcome.ExecutionID,
			Success:     false,
			Subject:     fmt.Sprintf("Task failed for execution %s", outcome.ExecutionID),
			Message:     fmt.Sprintf("Your job has some errors due to:\n %s", errorMessage),
		}
	}

	ratio := 0.0
	if outcome.Stats.Total > 0 {
		ratio = float64(outcome.Stats.Failure) / float64(outcome.Stats.Total)
	}

	success := ratio <= errorRateThreshold && outcome.State != models.RunStateFailed

	var b strings.Builder

	verdict := "been successfully finished"
	if !success {
		verdict = "some errors"
	}

	fmt.Fprintf(&b, "Your job has %s. Here is the statistics.\n", verdict)
	fmt.Fprintf(&b, "- Total: %d\n", outcome.Stats.Total)
	fmt.Fprintf(&b, "- Success: %d\n", outcome.Stats.Success)
	fmt.Fprintf(&b, "- Failure: %d\n", outcome.Stats.Failure)

	if !success {
		b.WriteString("Please check the service logs for error message details\n")
	}

	b.WriteString("\n" + reconciliationSummary(outcome.Report))

	if len(outcome.TopCategories) > 0 {
		b.WriteString("\nCategories:\n")
		for _, category := range outcome.TopCategories {
			fmt.Fprintf(&b, "- %-16s%d\n", category.Label, category.Count)
		}
	}

	subject := fmt.Sprintf("Task Done for execution %s", outcome.ExecutionID)
	if !success {
		subject = fmt.Sprintf("Task failed for execution %s", outcome.ExecutionID)
	}

	return models.Notification{
		ExecutionID: outcome.ExecutionID,
		Success:     success,
		Subject:     subject,
		Message:     b.String(),
	}
}

// reconciliationSummary renders the report line of the notification body.
// Empty when the run had nothing to reconcile.
func reconciliationSummary(report *models.ReconciliationReport) string {
	if report == nil || report.UnknownRecords == 0 {
		return ""
	}

	summary := fmt.Sprintf("Reconciliation: %d of %d unknown records resolved (%d categories created, %d reused, %d unresolved).",
		report.Reconciled, report.UnknownRecords, report.CategoriesCreated, report.CategoriesReused, report.Unresolved)

	if report.UpdateFailures > 0 {
		summary += fmt.Sprintf(" %d label updates failed and will be retried by a later run.", report.UpdateFailures)
	}

	return summary
}
