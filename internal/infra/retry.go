package infra

import (
	"context"
	"log/slog"
	"time"

	"gridmaker_go/internal/domain"
)

// RetryTransport wraps remote calls with bounded exponential-backoff retry.
// Only errors classified retriable by domain.IsRetriable are retried;
// business errors surface immediately on the assumption that insufficient
// funds or invalid parameters will not resolve by retrying.
type RetryTransport struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	log *slog.Logger
}

// NewRetryTransport creates a transport with the default policy
// (3 retries, 2s base delay, 30s cap).
func NewRetryTransport() *RetryTransport {
	return &RetryTransport{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		log:        slog.Default().With("module", "retry"),
	}
}

// Retry executes op, retrying transient failures with exponential backoff.
// The backoff sleep is cooperative: it aborts when ctx is cancelled.
// After exhausting retries the last transient error is returned; the
// caller must treat that as the operation having failed this tick.
func Retry[T any](ctx context.Context, rt *RetryTransport, label string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= rt.MaxRetries; attempt++ {
		result, err := op(ctx)
		ObserveVenueCall(label, err)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !domain.IsRetriable(err) {
			rt.logger().Error("operation failed with non-retryable error",
				slog.String("op", label), slog.Any("error", err))
			return zero, err
		}
		if attempt == rt.MaxRetries {
			rt.logger().Error("operation failed after all attempts",
				slog.String("op", label),
				slog.Int("attempts", rt.MaxRetries+1),
				slog.Any("error", err))
			return zero, err
		}

		delay := rt.BaseDelay << uint(attempt)
		if delay > rt.MaxDelay {
			delay = rt.MaxDelay
		}
		IncRetry(label)
		rt.logger().Warn("operation failed, retrying",
			slog.String("op", label),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", rt.MaxRetries+1),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

func (rt *RetryTransport) logger() *slog.Logger {
	if rt.log != nil {
		return rt.log
	}
	return slog.Default()
}
