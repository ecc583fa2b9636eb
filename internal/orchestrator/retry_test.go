package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRetryUpstream_SucceedsFirstTry(t *testing.T) {
	calls := 0
	attempts, err := retryUpstream(context.Background(), fastRetry(3), zap.NewNop(), "create", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryUpstream_TransientThenSuccess(t *testing.T) {
	calls := 0
	attempts, err := retryUpstream(context.Background(), fastRetry(3), zap.NewNop(), "create", func() error {
		calls++
		if calls < 3 {
			return &jira.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryUpstream_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	attempts, err := retryUpstream(context.Background(), fastRetry(3), zap.NewNop(), "create", func() error {
		calls++
		return &jira.APIError{StatusCode: http.StatusBadRequest, Message: "invalid payload"}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamRejected)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls, "permanent rejections are never retried")
}

func TestRetryUpstream_ConflictIsUpstreamRejection(t *testing.T) {
	attempts, err := retryUpstream(context.Background(), fastRetry(3), zap.NewNop(), "create", func() error {
		return &jira.APIError{StatusCode: http.StatusConflict, Message: "name already taken"}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamRejected)
	assert.Equal(t, 1, attempts)
}

func TestRetryUpstream_AuthFailureIsNotUpstreamRejection(t *testing.T) {
	_, err := retryUpstream(context.Background(), fastRetry(3), zap.NewNop(), "create", func() error {
		return &jira.APIError{StatusCode: http.StatusUnauthorized, Message: "bad credentials"}
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstreamRejected)
}

func TestRetryUpstream_BudgetExhausted(t *testing.T) {
	calls := 0
	attempts, err := retryUpstream(context.Background(), fastRetry(2), zap.NewNop(), "option:High", func() error {
		calls++
		return &jira.APIError{StatusCode: http.StatusBadGateway, Message: "still down"}
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstreamRejected)
	assert.Contains(t, err.Error(), "retry budget exhausted after 3 attempts")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryUpstream_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := retryUpstream(ctx, cfg, zap.NewNop(), "create", func() error {
		return &jira.APIError{StatusCode: http.StatusServiceUnavailable, Message: "down"}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &jira.APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &jira.APIError{StatusCode: http.StatusBadGateway}, true},
		{"bad request", &jira.APIError{StatusCode: http.StatusBadRequest}, false},
		{"conflict", &jira.APIError{StatusCode: http.StatusConflict}, false},
		{"unauthorized", &jira.APIError{StatusCode: http.StatusUnauthorized}, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"unknown transport error", errors.New("connection reset"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}
