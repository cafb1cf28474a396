// Package oracle labels feedback records against the current taxonomy using a
// generative model, and suggests labels for clusters of unlabeled feedback.
package oracle

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
)

// ErrNoNewLabel is returned by SuggestLabel when the model answers the
// NoNewTag sentinel: the samples share no common issue worth a category.
var ErrNoNewLabel = errors.New("oracle: model found no common issue")

// maxSuggestSamples caps how many cluster samples go into one suggest prompt.
const maxSuggestSamples = 20

// ChatCompleter sends one prompt to a generative model and returns its text response.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Oracle classifies feedback against a taxonomy snapshot via a ChatCompleter.
type Oracle struct {
	completer ChatCompleter
	provider  string
	limiter   *rate.Limiter
	metrics   observability.OracleMetrics
}

// New creates an Oracle. limiter and metrics may be nil (no rate limiting / metrics disabled).
func New(completer ChatCompleter, provider string, limiter *rate.Limiter, metrics observability.OracleMetrics) *Oracle {
	return &Oracle{
		completer: completer,
		provider:  provider,
		limiter:   limiter,
		metrics:   metrics,
	}
}

// Classify returns the snapshot label that best matches the record, or
// models.LabelUnknown when the model declines or answers with a label outside
// the snapshot. Transport and API failures return a TransientDependencyError;
// a response without a parseable <tag> returns a MalformedOracleResponseError.
func (o *Oracle) Classify(ctx context.Context, record models.FeedbackRecord, snapshot *models.TaxonomySnapshot) (string, error) {
	title := ""
	if record.Title != nil {
		title = *record.Title
	}

	prompt := BuildClassifyPrompt(snapshot.Labels(), title, record.Feedback)

	raw, err := o.complete(ctx, "classify", prompt)
	if err != nil {
		return "", err
	}

	tag, err := ExtractTag(raw)
	if err != nil {
		return "", err
	}

	if strings.EqualFold(tag, models.LabelUnknown) {
		return models.LabelUnknown, nil
	}

	// The model occasionally answers with a label that is not in the list;
	// treat it the same as a declined classification.
	canonical, ok := snapshot.Canonical(tag)
	if !ok {
		return models.LabelUnknown, nil
	}

	return canonical, nil
}

// SuggestLabel asks the model to name the most common issue across the given
// samples. Returns ErrNoNewLabel when the model answers the NoNewTag sentinel.
// Only the first maxSuggestSamples samples are sent.
func (o *Oracle) SuggestLabel(ctx context.Context, samples []string) (string, error) {
	if len(samples) > maxSuggestSamples {
		samples = samples[:maxSuggestSamples]
	}

	prompt := BuildSuggestPrompt(samples)

	raw, err := o.complete(ctx, "suggest_label", prompt)
	if err != nil {
		return "", err
	}

	tag, err := ExtractTag(raw)
	if err != nil {
		return "", err
	}

	if strings.EqualFold(tag, NoNewTag) {
		return "", ErrNoNewLabel
	}

	return tag, nil
}

// complete rate-limits, calls the model, and records metrics for one request.
func (o *Oracle) complete(ctx context.Context, operation, prompt string) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", autotagerrors.NewTransientDependencyError("oracle", "rate limiter wait", err)
		}
	}

	start := time.Now()

	raw, err := o.completer.Complete(ctx, prompt)

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}

		o.metrics.RecordOracleRequest(ctx, o.provider, operation, status, time.Since(start))
	}

	if err != nil {
		return "", autotagerrors.NewTransientDependencyError("oracle", operation+" request failed", err)
	}

	return raw, nil
}
