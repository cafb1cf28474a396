package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
	"github.com/google/uuid"
)

// defaultEventChanBufferSize is the fallback buffer size for the event channel.
const defaultEventChanBufferSize = 1024

// defaultPerEventTimeout bounds how long one event may spend across all notifiers.
const defaultPerEventTimeout = 5 * time.Second

// Event is the envelope handed to notifiers for one finished run.
type Event struct {
	ID        uuid.UUID           // Unique event id (UUID v7, time-ordered)
	Type      string              // Event type (run.succeeded, run.failed)
	Timestamp int64               // Unix timestamp
	Data      models.Notification // The rendered notification
}

// RunNotifier delivers one run event to a destination (log, webhook, etc.)
type RunNotifier interface {
	Notify(ctx context.Context, event Event)
}

// NotificationPublisher fans run events out to registered notifiers from a
// dedicated worker goroutine, so a slow destination never blocks a run's
// final state transition. The channel send is non-blocking: when the buffer
// is full the event is dropped and counted, not queued.
type NotificationPublisher struct {
	eventChan chan Event
	notifiers []RunNotifier
	timeout   time.Duration
	metrics   observability.EventMetrics
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewNotificationPublisher creates a publisher and starts its worker.
// metrics may be nil when metrics are disabled.
func NewNotificationPublisher(bufferSize int, perEventTimeout time.Duration, metrics observability.EventMetrics) *NotificationPublisher {
	if bufferSize <= 0 {
		bufferSize = defaultEventChanBufferSize
	}

	if perEventTimeout <= 0 {
		perEventTimeout = defaultPerEventTimeout
	}

	p := &NotificationPublisher{
		eventChan: make(chan Event, bufferSize),
		notifiers: make([]RunNotifier, 0),
		timeout:   perEventTimeout,
		metrics:   metrics,
	}

	p.wg.Add(1)
	go p.startWorker()

	return p
}

// RegisterNotifier registers a notification destination.
// Must only be called during startup, before any events are published.
func (p *NotificationPublisher) RegisterNotifier(notifier RunNotifier) {
	p.notifiers = append(p.notifiers, notifier)
}

// Publish enqueues one run event for delivery to all registered notifiers.
// Runs may outlive graceful shutdown on their detached contexts, so an event
// arriving after Shutdown is dropped and counted instead of panicking on a
// closed channel.
func (p *NotificationPublisher) Publish(ctx context.Context, eventType string, notification models.Notification) {
	event := Event{
		ID:        uuid.Must(uuid.NewV7()),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      notification,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		slog.Warn("Publisher shut down, run event dropped",
			"event_id", event.ID,
			"event_type", event.Type,
			"execution_id", notification.ExecutionID,
		)

		if p.metrics != nil {
			p.metrics.RecordEventDiscarded(ctx, eventType)
		}

		return
	}

	select {
	case p.eventChan <- event:
		slog.Debug("Run event published to channel", "event_id", event.ID, "event_type", event.Type)
	default:
		slog.Warn("Event channel full, run event dropped",
			"event_id", event.ID,
			"event_type", event.Type,
			"execution_id", notification.ExecutionID,
		)

		if p.metrics != nil {
			p.metrics.RecordEventDiscarded(ctx, eventType)
		}
	}

	if p.metrics != nil {
		p.metrics.SetChannelDepth(len(p.eventChan))
	}
}

// startWorker runs in a dedicated goroutine, reading events from the channel
// and fanning out each event to all registered notifiers. It is started with
// go in NewNotificationPublisher and runs for the lifetime of the publisher.
func (p *NotificationPublisher) startWorker() {
	defer p.wg.Done()
	bgCtx := context.Background()

	// This loop automatically breaks when p.eventChan is closed
	for event := range p.eventChan {
		// Create a timeout per event so one stuck destination doesn't freeze the worker forever
		ctx, cancel := context.WithTimeout(bgCtx, p.timeout)

		start := time.Now()

		for _, notifier := range p.notifiers {
			notifier.Notify(ctx, event)
		}

		cancel()

		if p.metrics != nil {
			p.metrics.RecordFanOutDuration(bgCtx, time.Since(start), event.Type)
			p.metrics.SetChannelDepth(len(p.eventChan))
		}
	}
}

// Shutdown stops the background worker and waits for the buffer to drain.
// Idempotent. Later Publish calls drop their event instead of panicking.
func (p *NotificationPublisher) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	close(p.eventChan)
	p.mu.Unlock()

	p.wg.Wait()
}
