package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"ideagraph/internal/logging"
)

// RetryConfig configures exponential-backoff retry behavior.
type RetryConfig struct {
	MaxAttempts  int           // total attempts including the first (default: 3)
	BaseDelay    time.Duration // base delay for exponential backoff (default: 500ms)
	MaxDelay     time.Duration // delay cap (default: 10s)
	JitterFactor float64       // randomization factor (default: 0.25)
}

// DefaultRetryConfig matches the request-handler policy: 3 attempts,
// 0.5s base, capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.25,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// Retry executes fn with exponential backoff, retrying only transient errors.
func Retry(ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, config, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult executes fn with exponential backoff and returns its result.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	config = config.normalized()
	logger = logging.OrNop(logger)

	var zero T
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("cancelled: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := backoffDelay(config, attempt, err)
		logger.Debug("attempt %d/%d failed, retrying in %v: %v", attempt, config.MaxAttempts, delay, err)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}

func backoffDelay(config RetryConfig, attempt int, err error) time.Duration {
	// Honor an explicit Retry-After hint when present.
	var transientErr *TransientError
	if As(err, &transientErr) && transientErr.RetryAfter > 0 {
		hinted := time.Duration(transientErr.RetryAfter) * time.Second
		if hinted > config.MaxDelay {
			return config.MaxDelay
		}
		return hinted
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * config.JitterFactor * float64(delay)
		delay += time.Duration(jitter)
	}
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if delay < 0 {
		delay = config.BaseDelay
	}
	return delay
}
