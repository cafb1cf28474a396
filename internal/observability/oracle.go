package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OracleMetrics records generative-model call metrics (classification, label
// suggestion, embeddings) per provider. Methods accept ctx for future exemplar support.
type OracleMetrics interface {
	RecordOracleRequest(ctx context.Context, provider, operation, status string, duration time.Duration)
	RecordEmbeddingRequest(ctx context.Context, provider, status string, duration time.Duration, inputs int)
}

// oracleMetrics implements OracleMetrics.
type oracleMetrics struct {
	oracleRequests    metric.Int64Counter
	oracleDuration    metric.Float64Histogram
	embeddingRequests metric.Int64Counter
	embeddingDuration metric.Float64Histogram
}

// NewOracleMetrics creates OracleMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewOracleMetrics(meter metric.Meter) (OracleMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	oracleRequests, err := meter.Int64Counter(
		MetricNameOracleRequests,
		metric.WithDescription("Total oracle requests by provider, operation, and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create oracle requests counter: %w", err)
	}

	oracleDuration, err := meter.Float64Histogram(
		MetricNameOracleDuration,
		metric.WithDescription("Oracle request duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create oracle duration histogram: %w", err)
	}

	embeddingRequests, err := meter.Int64Counter(
		MetricNameEmbeddingRequests,
		metric.WithDescription("Total embedding inputs sent by provider and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding requests counter: %w", err)
	}

	embeddingDuration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding request duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	return &oracleMetrics{
		oracleRequests:    oracleRequests,
		oracleDuration:    oracleDuration,
		embeddingRequests: embeddingRequests,
		embeddingDuration: embeddingDuration,
	}, nil
}

func (o *oracleMetrics) RecordOracleRequest(ctx context.Context, provider, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeProvider(provider)),
		attribute.String(AttrOperation, NormalizeOperation(operation)),
		attribute.String(AttrStatus, normalizeCallStatus(status)),
	)
	o.oracleRequests.Add(ctx, 1, attrs)
	o.oracleDuration.Record(ctx, duration.Seconds(), attrs)
}

func (o *oracleMetrics) RecordEmbeddingRequest(ctx context.Context, provider, status string, duration time.Duration, inputs int) {
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeProvider(provider)),
		attribute.String(AttrStatus, normalizeCallStatus(status)),
	)
	o.embeddingRequests.Add(ctx, int64(inputs), attrs)
	o.embeddingDuration.Record(ctx, duration.Seconds(), attrs)
}

// normalizeCallStatus maps a call status to success/error.
func normalizeCallStatus(status string) string {
	if status == "success" || status == "error" {
		return status
	}

	return "other"
}
