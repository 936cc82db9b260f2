package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridmaker_go/internal/domain"
)

func fastRetry() *RetryTransport {
	return &RetryTransport{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	rt := fastRetry()
	calls := 0

	result, err := Retry(context.Background(), rt, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", domain.NewTransientVenueError("op", domain.KindNetwork, errors.New("boom"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetry_FatalErrorReturnsImmediately(t *testing.T) {
	rt := fastRetry()
	calls := 0
	fatal := domain.NewFatalVenueError("op", domain.KindInsufficientFunds, errors.New("no funds"))

	_, err := Retry(context.Background(), rt, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "fatal errors must not be retried")
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	rt := fastRetry()
	calls := 0
	transient := domain.NewTransientVenueError("op", domain.KindTimeout, errors.New("slow"))

	_, err := Retry(context.Background(), rt, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, rt.MaxRetries+1, calls)
}

func TestRetry_PlainErrorsAreNotRetried(t *testing.T) {
	rt := fastRetry()
	calls := 0

	_, err := Retry(context.Background(), rt, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("plain")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancellationAbortsBackoff(t *testing.T) {
	rt := &RetryTransport{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, rt, "op", func(ctx context.Context) (int, error) {
			return 0, domain.NewTransientVenueError("op", domain.KindNetwork, errors.New("boom"))
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not abort on context cancellation")
	}
}
