package sources

import (
	"context"
	"errors"
	"time"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/pkg/retry"
)

type retryingExtractor struct {
	inner  Extractor
	policy retry.Policy
	log    Logger
}

// WithRetry wraps inner so every extraction runs under policy. A source's
// max_attempts and config.retry_backoff_ms override the policy per call.
// Failures after the budget is spent are returned as *ExtractError.
func WithRetry(inner Extractor, policy retry.Policy, log Logger) Extractor {
	return &retryingExtractor{inner: inner, policy: policy, log: ensureLogger(log)}
}

func (r *retryingExtractor) ID() string { return r.inner.ID() }

func (r *retryingExtractor) Extract(ctx context.Context, src Source) ([]domain.Item, error) {
	p := r.policy
	if src.MaxAttempts > 0 {
		p.MaxAttempts = src.MaxAttempts
	}
	if ms := ConfigInt(src, ConfigBackoffMsKey, 0); ms > 0 {
		p.InitialBackoff = time.Duration(ms) * time.Millisecond
	}
	p.OnRetry = func(attempt int, wait time.Duration, err error) {
		r.log.WarnObj("extraction attempt failed", "extract_retry", map[string]any{
			"source_id": src.ID,
			"attempt":   attempt,
			"wait_ms":   wait.Milliseconds(),
			"error":     err.Error(),
		})
	}

	var items []domain.Item
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		out, err := r.inner.Extract(ctx, src)
		if err != nil {
			return classify(err)
		}
		items = out
		return nil
	})
	if err != nil {
		return nil, &ExtractError{SourceID: src.ID, Err: err}
	}
	return items, nil
}

// classify marks errors that another attempt cannot fix.
func classify(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && !statusErr.Retryable() {
		return retry.Permanent(err)
	}
	if errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	return err
}
