package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all pipeline metric collectors. When metrics are disabled, all fields are nil.
// Components that accept an interface (RunMetrics, OracleMetrics, EventMetrics,
// NotificationMetrics, CacheMetrics, APIMetrics) can receive the corresponding field;
// they already handle nil.
type Metrics struct {
	Runs          RunMetrics
	Oracle        OracleMetrics
	Events        EventMetrics
	Notifications NotificationMetrics
	Cache         CacheMetrics
	API           APIMetrics
}

// NewMetrics creates all metric collectors from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	runs, err := NewRunMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("run metrics: %w", err)
	}

	oracle, err := NewOracleMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("oracle metrics: %w", err)
	}

	events, err := NewEventMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("event metrics: %w", err)
	}

	notifications, err := NewNotificationMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("notification metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Runs:          runs,
		Oracle:        oracle,
		Events:        events,
		Notifications: notifications,
		Cache:         cache,
		API:           api,
	}, nil
}
