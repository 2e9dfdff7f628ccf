package errors

import (
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/logging"
)

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(Transient(New("boom"))))
	assert.False(t, IsTransient(Permanent(New("boom"))))
	assert.False(t, IsTransient(Disabled("mail")))
	assert.False(t, IsTransient(Conflict("duplicate short-id %s", "A2B3C4")))
	assert.True(t, IsTransient(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	assert.False(t, IsTransient(nil))
}

func TestFromHTTPStatus(t *testing.T) {
	assert.True(t, IsTransient(FromHTTPStatus(503, New("unavailable"))))
	assert.True(t, IsTransient(FromHTTPStatus(429, New("rate limited"))))
	assert.False(t, IsTransient(FromHTTPStatus(401, New("unauthorized"))))
	assert.Equal(t, 401, HTTPStatus(FromHTTPStatus(401, New("unauthorized"))))
}

func TestUserMessageSanitized(t *testing.T) {
	msg := UserMessage(Permanent(New("token sk-secret-12345 rejected by api.internal.example")))
	assert.NotContains(t, msg, "sk-secret")
	assert.NotContains(t, msg, "internal.example")
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), logging.Nop(), func(ctx context.Context) error {
		calls++
		return Permanent(New("bad request"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesTransient(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	result, err := RetryWithResult(context.Background(), cfg, logging.Nop(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(New("flaky"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), logging.Nop(), func(ctx context.Context) error {
		return Transient(New("never reached"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	fail := func(ctx context.Context) (int, error) { return 0, Transient(New("down")) }
	ok := func(ctx context.Context) (int, error) { return 42, nil }

	_, _ = Execute(cb, context.Background(), fail)
	_, _ = Execute(cb, context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls fail fast with a transient error.
	_, err := Execute(cb, context.Background(), ok)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	time.Sleep(15 * time.Millisecond)
	v, err := Execute(cb, context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StateClosed, cb.State())
}
