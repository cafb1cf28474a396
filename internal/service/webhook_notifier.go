package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// NotificationPayload is the wire format POSTed to the notification endpoint.
type NotificationPayload struct {
	ID        uuid.UUID           `json:"id"`        // Unique event id (UUID v7)
	Type      string              `json:"type"`      // Event type (run.succeeded, run.failed)
	Timestamp time.Time           `json:"timestamp"` // Event creation timestamp
	Data      models.Notification `json:"data"`      // The rendered notification
}

// WebhookNotifier delivers run notifications to one operator-configured
// endpoint, signed per the Standard Webhooks spec. Transport-level retries
// are handled by the retrying HTTP client; a delivery that still fails is
// logged and counted, never surfaced to the run.
type WebhookNotifier struct {
	url        string
	signingKey string
	httpClient *http.Client
	metrics    observability.NotificationMetrics
}

// NewWebhookNotifier creates a webhook notifier. The HTTP client retries up
// to 3 times with a 15s timeout and does not follow redirects.
// metrics may be nil when metrics are disabled.
func NewWebhookNotifier(url, signingKey string, metrics observability.NotificationMetrics) *WebhookNotifier {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = 15 * time.Second
	retryClient.RetryMax = 3
	retryClient.Logger = nil // disable retryablehttp's default logger; we log at delivery layer
	retryClient.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &WebhookNotifier{
		url:        url,
		signingKey: signingKey,
		httpClient: retryClient.StandardClient(),
		metrics:    metrics,
	}
}

// Notify signs and POSTs the notification (implements RunNotifier).
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	if n.url == "" {
		if n.metrics != nil {
			n.metrics.RecordProviderError("not_configured")
		}

		return
	}

	start := time.Now()
	err := n.send(ctx, event)

	status := "delivered"
	if err != nil {
		status = "failed"
	}

	if n.metrics != nil {
		n.metrics.RecordDelivery(event.Type, status)
		n.metrics.RecordDeliveryDuration(time.Since(start), event.Type, status)
	}

	if err != nil {
		slog.Error("run notification delivery failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"execution_id", event.Data.ExecutionID,
			"url", n.url,
			"error", err,
		)

		if n.metrics != nil {
			n.metrics.RecordProviderError("send_failed")
		}

		return
	}

	slog.Info("run notification delivered",
		"event_id", event.ID,
		"event_type", event.Type,
		"execution_id", event.Data.ExecutionID,
	)
}

// send signs and POSTs one event to the notification endpoint.
func (n *WebhookNotifier) send(ctx context.Context, event Event) error {
	payload := NotificationPayload{
		ID:        event.ID,
		Type:      event.Type,
		Timestamp: time.Unix(event.Timestamp, 0).UTC(),
		Data:      event.Data,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	messageID := event.ID.String()

	wh, err := standardwebhooks.NewWebhook(n.signingKey)
	if err != nil {
		return fmt.Errorf("create webhook signer: %w", err)
	}

	timestamp := time.Now()

	signature, err := wh.Sign(messageID, timestamp, payloadJSON)
	if err != nil {
		return fmt.Errorf("sign notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payloadJSON))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(standardwebhooks.HeaderWebhookID, messageID)
	req.Header.Set(standardwebhooks.HeaderWebhookSignature, signature)
	req.Header.Set(standardwebhooks.HeaderWebhookTimestamp, strconv.FormatInt(timestamp.Unix(), 10))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close notification response body", "event_id", event.ID, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}
