// Package service implements the classification pipeline: run orchestration,
// batch classification, taxonomy reconciliation, and run notifications.
package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/observability"
)

// backoffMultiplier doubles the backoff after every failed attempt.
const backoffMultiplier = 2

// RetryPolicy bounds the retries of one operation against a transient
// dependency fault. MaxAttempts counts the first attempt too.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}

	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}

	return p
}

// retryTransient runs op under policy, retrying only transient dependency
// faults with exponential backoff and jitter. Invalid input and malformed
// oracle output never retry. Respects context cancellation during backoff.
// metrics may be nil when metrics are disabled.
func retryTransient(
	ctx context.Context, policy RetryPolicy, dependency string,
	metrics observability.RunMetrics, op func(context.Context) error,
) error {
	policy = policy.normalized()

	var lastErr error

	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if !errors.Is(err, autotagerrors.ErrTransientDependency) {
			return err
		}

		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		if metrics != nil {
			metrics.RecordRetry(ctx, dependency)
		}

		sleep := jitter(backoff)
		slog.Warn("transient dependency fault, retrying after backoff",
			"dependency", dependency,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff", sleep,
			"error", err,
		)

		if err := sleepCtx(ctx, sleep); err != nil {
			return err
		}

		backoff = min(backoff*backoffMultiplier, policy.MaxBackoff)
	}

	return lastErr
}

// jitter returns a duration between 50% and 100% of duration to avoid thundering herd.
func jitter(duration time.Duration) time.Duration {
	const jitterHalf = 2

	half := duration / jitterHalf

	if half <= 0 {
		return duration
	}

	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	randVal := binary.BigEndian.Uint64(buf[:])
	halfNanos := half.Nanoseconds()

	if halfNanos <= 0 {
		return half
	}

	// randVal % halfNanos is in [0, halfNanos); duration nanos fit in int64
	//nolint:gosec // G115: modulo result is in [0, halfNanos), safe to convert to int64
	jitterNanos := int64(randVal % uint64(halfNanos))

	return half + time.Duration(jitterNanos)
}

// sleepCtx blocks for the given duration or until ctx is cancelled; returns ctx.Err() if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
