// Package observability provides OpenTelemetry metrics (Prometheus exporter)
// and context-aware logging for the classification pipeline.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameRunsStarted      = "autotag_runs_started_total"
	MetricNameRunsCompleted    = "autotag_runs_completed_total"
	MetricNameRunDuration      = "autotag_run_duration_seconds"
	MetricNameRunsActive       = "autotag_runs_active"
	MetricNameBatchesCompleted = "autotag_batches_completed_total"
	MetricNameBatchDuration    = "autotag_batch_duration_seconds"
	MetricNameRecordsLabeled   = "autotag_records_labeled_total"
	MetricNameRetries          = "autotag_retries_total"

	MetricNameOracleRequests     = "autotag_oracle_requests_total"
	MetricNameOracleDuration     = "autotag_oracle_request_duration_seconds"
	MetricNameEmbeddingRequests  = "autotag_embedding_requests_total"
	MetricNameEmbeddingDuration  = "autotag_embedding_request_duration_seconds"
	MetricNameCategoriesCreated  = "autotag_categories_created_total"
	MetricNameCategoriesReused   = "autotag_categories_reused_total"
	MetricNameUnknownsUnresolved = "autotag_unknowns_unresolved_total"

	MetricNameEventsDiscarded       = "autotag_events_discarded_total"
	MetricNameFanOutDuration        = "autotag_notification_fan_out_duration_seconds"
	MetricNameEventChannelDepth     = "autotag_notification_channel_depth"
	MetricNameNotifyDeliveries      = "autotag_notification_deliveries_total"
	MetricNameNotifyDeliveryLatency = "autotag_notification_delivery_duration_seconds"
	MetricNameNotifyProviderErrors  = "autotag_notification_provider_errors_total"

	MetricNameCacheHits           = "autotag_cache_hits_total"
	MetricNameCacheMisses         = "autotag_cache_misses_total"
	MetricNameRequestBodyTooLarge = "autotag_request_body_too_large_total"
)

// Attribute keys.
const (
	AttrEventType  = "event_type"
	AttrReason     = "reason"
	AttrStatus     = "status"
	AttrState      = "state"
	AttrProvider   = "provider"
	AttrOperation  = "operation"
	AttrLabel      = "label"
	AttrDependency = "dependency"
)

// AllowedEventTypes for notification metrics (bounded cardinality).
var AllowedEventTypes = map[string]bool{
	"run.succeeded": true,
	"run.failed":    true,
}

// AllowedRunStates for run completion metrics.
var AllowedRunStates = map[string]bool{
	"validating":  true,
	"partitioned": true,
	"classifying": true,
	"reconciling": true,
	"notifying":   true,
	"succeeded":   true,
	"failed":      true,
}

// AllowedProviders for oracle and embedding metrics.
var AllowedProviders = map[string]bool{
	"openai": true,
	"google": true,
	"mock":   true,
}

// AllowedOperations for oracle metrics.
var AllowedOperations = map[string]bool{
	"classify":      true,
	"suggest_label": true,
}

// AllowedLabelOutcomes for per-record classification metrics.
var AllowedLabelOutcomes = map[string]bool{
	"known":   true,
	"unknown": true,
}

// AllowedDependencies for retry metrics.
var AllowedDependencies = map[string]bool{
	"oracle":     true,
	"embeddings": true,
	"database":   true,
	"source":     true,
}

// AllowedDeliveryStatuses for autotag_notification_deliveries_total and its duration histogram.
var AllowedDeliveryStatuses = map[string]bool{
	"success":      true,
	"retry":        true,
	"failed_final": true,
}

// AllowedProviderReasons for autotag_notification_provider_errors_total.
var AllowedProviderReasons = map[string]bool{
	"sign_failed":    true,
	"send_failed":    true,
	"not_configured": true,
}

// AllowedCacheNames for cache hit/miss metrics.
var AllowedCacheNames = map[string]bool{
	"taxonomy_snapshot": true,
}

// NormalizeEventType returns eventType if allowed, otherwise "unknown".
func NormalizeEventType(eventType string) string {
	if AllowedEventTypes[eventType] {
		return eventType
	}

	return "unknown"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedDeliveryStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	if AllowedDeliveryStatuses[status] {
		return status
	}

	return "other"
}

// NormalizeRunState returns state if in AllowedRunStates, otherwise "unknown".
func NormalizeRunState(state string) string {
	if AllowedRunStates[state] {
		return state
	}

	return "unknown"
}

// NormalizeProvider returns provider if in AllowedProviders, otherwise "other".
func NormalizeProvider(provider string) string {
	if AllowedProviders[provider] {
		return provider
	}

	return "other"
}

// NormalizeOperation returns op if in AllowedOperations, otherwise "other".
func NormalizeOperation(op string) string {
	if AllowedOperations[op] {
		return op
	}

	return "other"
}

// NormalizeLabelOutcome returns outcome if in AllowedLabelOutcomes, otherwise "other".
func NormalizeLabelOutcome(outcome string) string {
	if AllowedLabelOutcomes[outcome] {
		return outcome
	}

	return "other"
}

// NormalizeDependency returns dep if in AllowedDependencies, otherwise "other".
func NormalizeDependency(dep string) string {
	if AllowedDependencies[dep] {
		return dep
	}

	return "other"
}

// NormalizeCacheName returns name if in AllowedCacheNames, otherwise "other".
func NormalizeCacheName(name string) string {
	if AllowedCacheNames[name] {
		return name
	}

	return "other"
}
