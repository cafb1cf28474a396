package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics records HTTP server metrics.
type APIMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

// apiMetrics implements APIMetrics.
type apiMetrics struct {
	requestCount        metric.Int64Counter
	requestDuration     metric.Float64Histogram
	requestBodyTooLarge metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requestCount, err := meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request count counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request duration histogram: %w", err)
	}

	bodyTooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription("Total number of requests rejected because the request body exceeded the configured limit (413)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	return &apiMetrics{
		requestCount:        requestCount,
		requestDuration:     requestDuration,
		requestBodyTooLarge: bodyTooLarge,
	}, nil
}

func (a *apiMetrics) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)
	a.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
	)
	a.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.requestBodyTooLarge.Add(ctx, 1)
}
