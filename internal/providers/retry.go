package providers

import (
	"context"
	"math/rand"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
)

// withRetry retries fn on a Transient error using exponential backoff
// with jitter, per spec.md §4.E step 2: base 250ms, factor 2, max 4
// attempts, jitter ±20%. A non-Transient error (Unavailable,
// InvalidRequest) returns immediately without retrying. On final
// retry-cap exhaustion the last Transient error is promoted to
// unavailableKind (ImageryUnavailable/WeatherUnavailable per caller),
// matching the same "final failure" outcome the circuit-breaker-open
// path already returns.
func withRetry[T any](ctx context.Context, cfg config.RetryConfig, unavailableKind errkind.Kind, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	delay := cfg.BaseDelay
	var lastErr error

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errkind.Is(err, errkind.Transient) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		jittered := applyJitter(delay, cfg.JitterPct)
		select {
		case <-ctx.Done():
			return zero, errkind.New(errkind.Cancelled, "", ctx.Err())
		case <-time.After(jittered):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
	}
	return zero, errkind.New(unavailableKind, "", lastErr)
}

func applyJitter(d time.Duration, jitterPct float64) time.Duration {
	if jitterPct <= 0 {
		return d
	}
	span := float64(d) * (jitterPct / 100)
	offset := (rand.Float64()*2 - 1) * span
	jittered := float64(d) + offset
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
