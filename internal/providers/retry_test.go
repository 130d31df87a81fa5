package providers

import (
	"context"
	"testing"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) config.RetryConfig {
	return config.RetryConfig{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
		Factor:    1,
		JitterPct: 0,
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errkind.New(errkind.Transient, "", nil)
		}
		return 42, nil
	}

	out, err := withRetry(context.Background(), fastRetryConfig(4), errkind.ImageryUnavailable, fn)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NonTransientErrorReturnsImmediately(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 0, errkind.New(errkind.InvalidInput, "", nil)
	}

	_, err := withRetry(context.Background(), fastRetryConfig(4), errkind.ImageryUnavailable, fn)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CapExhaustionPromotesToUnavailableKind(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 0, errkind.New(errkind.Transient, "", nil)
	}

	_, err := withRetry(context.Background(), fastRetryConfig(3), errkind.WeatherUnavailable, fn)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.WeatherUnavailable))
	assert.False(t, errkind.Is(err, errkind.Transient))
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ContextCancelledDuringBackoffReturnsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			cancel()
		}
		return 0, errkind.New(errkind.Transient, "", nil)
	}

	cfg := config.RetryConfig{Attempts: 4, BaseDelay: 50 * time.Millisecond, Factor: 2, JitterPct: 0}
	_, err := withRetry(ctx, cfg, errkind.ImageryUnavailable, fn)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Cancelled))
}

func TestWithRetry_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	}

	out, err := withRetry(context.Background(), config.RetryConfig{Attempts: 0}, errkind.ImageryUnavailable, fn)
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 1, calls)
}
