package model

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/roundtable/logging"
)

// RetryOptions configures the retry decorator.
type RetryOptions struct {
	// MaxAttempts bounds the total number of Generate calls (initial + retries).
	MaxAttempts int
	// BaseDelay is the first backoff delay; it doubles per retry.
	BaseDelay time.Duration
	// RateLimitDelay is added on top of the backoff after a 429.
	RateLimitDelay time.Duration
	// Logger receives retry diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// RetryModel wraps a Model with exponential backoff retries.
//
// Failure classification:
//   - retryable: timeouts, 429 (with a fixed extra delay) and 5xx
//   - non-retryable: any other 4xx; failed immediately
//
// Providers surface HTTP statuses through *APIError so classification stays
// provider-neutral.
type RetryModel struct {
	inner Model
	opts  RetryOptions
}

// WithRetry decorates a model with retry behavior.
func WithRetry(inner Model, optFns ...func(o *RetryOptions)) *RetryModel {
	opts := RetryOptions{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		RateLimitDelay: 5 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &RetryModel{inner: inner, opts: opts}
}

// Generate implements Model.
func (r *RetryModel) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.opts.BaseDelay << (attempt - 1)
			if isRateLimited(lastErr) {
				delay += r.opts.RateLimitDelay
			}
			r.opts.Logger.Warn("model.retry",
				"model", r.inner.Info().Name,
				"attempt", attempt,
				"max_attempts", r.opts.MaxAttempts,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr.Error(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Info implements Model.
func (r *RetryModel) Info() Info { return r.inner.Info() }

// IsRetryable reports whether a generation failure is worth retrying:
// timeouts, rate limits and server-side errors are; other client errors and
// cancellations are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= 500:
			return true
		case apiErr.StatusCode >= 400:
			return false
		}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Unknown transport failures get the benefit of the doubt.
	return true
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
