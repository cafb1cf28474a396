package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NotificationMetrics records notification delivery metrics (log and webhook notifiers).
type NotificationMetrics interface {
	RecordDelivery(eventType, status string)
	RecordDeliveryDuration(duration time.Duration, eventType, status string)
	RecordProviderError(reason string)
}

// notificationMetrics implements NotificationMetrics.
type notificationMetrics struct {
	deliveries       metric.Int64Counter
	deliveryDuration metric.Float64Histogram
	providerErrors   metric.Int64Counter
}

// NewNotificationMetrics creates NotificationMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewNotificationMetrics(meter metric.Meter) (NotificationMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	deliveries, err := meter.Int64Counter(
		MetricNameNotifyDeliveries,
		metric.WithDescription("Total notification delivery outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification deliveries counter: %w", err)
	}

	deliveryDuration, err := meter.Float64Histogram(
		MetricNameNotifyDeliveryLatency,
		metric.WithDescription("Notification delivery duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification delivery duration histogram: %w", err)
	}

	providerErrors, err := meter.Int64Counter(
		MetricNameNotifyProviderErrors,
		metric.WithDescription("Total notifier errors (signing/sending failures)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification provider errors counter: %w", err)
	}

	return &notificationMetrics{
		deliveries:       deliveries,
		deliveryDuration: deliveryDuration,
		providerErrors:   providerErrors,
	}, nil
}

func (nm *notificationMetrics) RecordDelivery(eventType, status string) {
	eventType = NormalizeEventType(eventType)
	status = NormalizeStatus(status)
	nm.deliveries.Add(context.Background(), 1,
		metric.WithAttributes(attrEventType(eventType), attribute.String(AttrStatus, status)))
}

func (nm *notificationMetrics) RecordDeliveryDuration(duration time.Duration, eventType, status string) {
	eventType = NormalizeEventType(eventType)
	status = NormalizeStatus(status)
	nm.deliveryDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(attrEventType(eventType), attribute.String(AttrStatus, status)))
}

func (nm *notificationMetrics) RecordProviderError(reason string) {
	reason = NormalizeReason(reason, AllowedProviderReasons)
	nm.providerErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}
