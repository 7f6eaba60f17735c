package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls, retries int
	cfg := fastConfig()
	cfg.OnRetry = func(int, error) { retries++ }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("database is starting"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return fmt.Errorf("sqlite: insert: database is locked (5) (SQLITE_BUSY)")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientStops(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return errors.New("syntax error at or near")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("temporary"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"))))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", NewTransientError(errors.New("x")))))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(errors.New("FATAL: the database system is starting up")))
	assert.False(t, IsTransient(errors.New("relation does not exist")))
}

func TestComputeBackoff_Capped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second})
	cfg.JitterFraction = 0
	assert.Equal(t, time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(5, cfg))
}
