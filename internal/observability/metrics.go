package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/autotaghq/autotag/internal/observability"
	defaultServiceName = "autotag-api"
	cardinalityLimit   = 2000
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for duration histograms.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: autotag-api).
	ServiceName string
}

// NewMeterProvider creates a MeterProvider with Prometheus exporter and returns the provider,
// an HTTP handler for /metrics, and the metric collectors backed by the provider's Meter.
// Caller must call provider.Shutdown on exit. When metrics are disabled, pass nil for metrics at call sites.
func NewMeterProvider(_ context.Context, cfg MeterProviderConfig) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics *Metrics, err error) {
	serviceNameVal := cfg.ServiceName
	if serviceNameVal == "" {
		serviceNameVal = defaultServiceName
	}

	// Use a single resource to avoid Schema URL conflicts when merging with resource.Default().
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceNameVal),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "http.server.duration"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "autotag_*_duration_seconds"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
		),
	)
	provider = mp
	meter := mp.Meter(meterScope)

	metrics, err = NewMetrics(meter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return provider, metricsHandler, metrics, nil
}

// ShutdownMeterProvider flushes and shuts down the MeterProvider. Safe to call with nil.
func ShutdownMeterProvider(ctx context.Context, provider MeterProviderShutdown) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}
