package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autotaghq/autotag/internal/observability"
)

// TestMetricsEndpointExposesExpectedMetrics ensures that when metrics are enabled,
// the /metrics handler exposes the expected metric names (Prometheus format).
func TestMetricsEndpointExposesExpectedMetrics(t *testing.T) {
	ctx := context.Background()
	provider, metricsHandler, metrics, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{})
	require.NoError(t, err)

	defer func() { _ = provider.Shutdown(ctx) }()

	// Record at least one sample per metric so they appear in the output
	metrics.Runs.RecordRunStarted(ctx)
	metrics.Runs.RecordRunCompleted(ctx, "succeeded", time.Second)
	metrics.Runs.RecordBatchCompleted(ctx, 100*time.Millisecond)
	metrics.Runs.RecordRecordLabeled(ctx, "success")
	metrics.Runs.RecordRetry(ctx, "oracle")
	metrics.Runs.RecordReconciliation(ctx, 1, 1, 1)
	metrics.Oracle.RecordOracleRequest(ctx, "openai", "classify", "success", 50*time.Millisecond)
	metrics.Oracle.RecordEmbeddingRequest(ctx, "openai", "success", 50*time.Millisecond, 3)
	metrics.Events.RecordEventDiscarded(ctx, "run.succeeded")
	metrics.Events.RecordFanOutDuration(ctx, 10*time.Millisecond, "run.succeeded")
	metrics.Notifications.RecordDelivery("run.succeeded", "success")
	metrics.Notifications.RecordProviderError("timeout")
	metrics.Cache.RecordHit(ctx, "taxonomy_snapshot")
	metrics.Cache.RecordMiss(ctx, "taxonomy_snapshot")
	metrics.API.RecordRequest(ctx, "GET", "GET /v1/runs", "2xx", 10*time.Millisecond)
	metrics.API.RecordRequestBodyTooLarge(ctx)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metricsHandler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "metrics endpoint should return 200")
	body := rec.Body.String()

	expectedStems := []string{
		"autotag_runs_started_total",
		"autotag_runs_completed_total",
		"autotag_run_duration_seconds",
		"autotag_batches_completed_total",
		"autotag_records_labeled_total",
		"autotag_retries_total",
		"autotag_categories_created_total",
		"autotag_oracle_requests_total",
		"autotag_embedding_requests_total",
		"autotag_events_discarded_total",
		"autotag_notification_deliveries_total",
		"autotag_cache_hits_total",
		"autotag_request_body_too_large_total",
	}
	for _, stem := range expectedStems {
		require.Contains(t, body, stem,
			"metrics response should contain %q; got body (first 2k): %s", stem, truncate(body, 2000))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen] + "..."
}
