package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Is(t *testing.T) {
	unauthorized := fmt.Errorf("load receipt: %w", &APIError{StatusCode: http.StatusUnauthorized, Message: "expired"})
	assert.ErrorIs(t, unauthorized, ErrUnauthorized)
	assert.NotErrorIs(t, unauthorized, ErrNotFound)

	missing := &APIError{StatusCode: http.StatusNotFound, Message: "no receipt"}
	assert.ErrorIs(t, missing, ErrNotFound)
	assert.Equal(t, "no receipt", missing.Error())

	assert.ErrorIs(t, &APIError{StatusCode: http.StatusTooManyRequests}, ErrRateLimit)
}

func TestTransport(t *testing.T) {
	assert.NoError(t, Transport(nil))
	assert.ErrorIs(t, Transport(errors.New("connection reset")), ErrTransport)

	cancelled := Transport(fmt.Errorf("do request: %w", context.Canceled))
	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.NotErrorIs(t, cancelled, ErrTransport)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "transport", err: Transport(errors.New("eof")), want: true},
		{name: "server error", err: &APIError{StatusCode: 502, Message: "bad gateway"}, want: true},
		{name: "too many requests", err: &APIError{StatusCode: 429, Message: "slow down"}, want: true},
		{name: "client error", err: &APIError{StatusCode: 400, Message: "bad"}, want: false},
		{name: "unauthorized", err: &APIError{StatusCode: 401, Message: "expired"}, want: false},
		{name: "cancelled", err: ErrCancelled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "explicit retryable", err: &RetryableError{Err: errors.New("x"), Retryable: true}, want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	opts := service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return Transport(errors.New("reset"))
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &APIError{StatusCode: 400, Message: "bad request"}
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &APIError{StatusCode: 503, Message: "unavailable"}
		}, opts)
		require.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)

		var apiErr *APIError
		assert.ErrorAs(t, err, &apiErr)
	})

	t.Run("rate limit waits max delay", func(t *testing.T) {
		calls := 0
		start := time.Now()
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls == 1 {
				return &APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.GreaterOrEqual(t, time.Since(start), opts.MaxDelay)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			cancel()
			return Transport(errors.New("reset"))
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})
		require.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, 1, calls)
	})
}

func TestParseLevel(t *testing.T) {
	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}
