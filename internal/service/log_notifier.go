package service

import (
	"context"
	"log/slog"

	"github.com/autotaghq/autotag/internal/observability"
)

// LogNotifier writes run notifications to the structured log. It is always
// registered, so every run outcome is visible even when no webhook is configured.
type LogNotifier struct {
	metrics observability.NotificationMetrics
}

// NewLogNotifier creates a log notifier. metrics may be nil when metrics are disabled.
func NewLogNotifier(metrics observability.NotificationMetrics) *LogNotifier {
	return &LogNotifier{metrics: metrics}
}

// Notify logs the notification (implements RunNotifier). Failed runs log at warn.
func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if !event.Data.Success {
		level = slog.LevelWarn
	}

	slog.Log(ctx, level, "run notification",
		"event_id", event.ID,
		"event_type", event.Type,
		"execution_id", event.Data.ExecutionID,
		"subject", event.Data.Subject,
		"message", event.Data.Message,
	)

	if n.metrics != nil {
		n.metrics.RecordDelivery(event.Type, "delivered")
	}
}
