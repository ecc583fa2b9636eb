package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/pkg/jira"
)

// RetryConfig configures the bounded retry policy for tracker write calls.
// Only transient failures are retried; permanent rejections fail
// immediately.
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the first call.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	// Default: 500ms
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth.
	// Default: 10s
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor.
	// Default: 2
	BackoffMultiplier float64
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
}

// retryUpstream runs one upstream operation under the retry policy and
// returns the number of attempts made.
func retryUpstream(ctx context.Context, cfg RetryConfig, logger *zap.Logger, step string, op func() error) (int, error) {
	cfg.ApplyDefaults()

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info("upstream call recovered after retries",
					zap.String("step", step),
					zap.Int("attempts", attempt+1),
				)
			}
			return attempt + 1, nil
		}
		lastErr = err

		if !isTransient(err) {
			// A conflict is the race case: the resource was taken upstream
			// despite passing local checks. Other permanent failures (auth,
			// not found) surface as-is.
			var apiErr *jira.APIError
			if errors.As(err, &apiErr) && apiErr.IsConflict() {
				return attempt + 1, fmt.Errorf("%w: %v", ErrUpstreamRejected, err)
			}
			return attempt + 1, err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		logger.Warn("transient upstream failure, backing off",
			zap.String("step", step),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return cfg.MaxRetries + 1, fmt.Errorf("retry budget exhausted after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// isTransient classifies an upstream failure. Timeouts and server-side
// errors are retried; cancellation and permanent rejections are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *jira.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unknown transport failures get the benefit of the doubt.
	return true
}
