package resilience

import (
	"context"
	"math"
	"time"

	cerrors "github.com/brightlane/ingestflow/internal/errors"
)

// RetryConfig configures the connector retry engine described in spec
// §4.3.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// ExtendVisibilityThreshold is the delay above which the engine
	// raises ExtendVisibilityError instead of sleeping in-process.
	ExtendVisibilityThreshold time.Duration
	// InitialDelay/MaxDelay/Multiplier/Jitter are only consulted by the
	// ambient Retry() helper in breaker.go; the connector engine below
	// derives its own delay from RateLimited.RetryAfter or BaseDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultRetryConfig matches spec §4.3: base_delay doubling, at most 5
// attempts, extend-visibility above 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:               5,
		BaseDelay:                 time.Second,
		ExtendVisibilityThreshold: 30 * time.Second,
	}
}

// Sleeper abstracts time.Sleep so tests can run the retry loop without
// wall-clock delay.
type Sleeper func(ctx context.Context, d time.Duration) error

// RealSleeper sleeps for the given duration or until ctx is cancelled.
func RealSleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunWithRetry wraps a connector operation with the algorithm in spec
// §4.3:
//  1. On RateLimitedError, compute delay = RetryAfter if provided, else
//     BaseDelay * 2^attempt.
//  2. If delay exceeds the extend-visibility threshold, return an
//     ExtendVisibilityError{delay+5s} instead of sleeping — the job
//     handler is expected to catch this, extend the queue message's
//     visibility, and return without consuming a retry attempt.
//  3. Otherwise sleep delay, increment attempt, retry up to MaxAttempts.
//  4. On exhaustion, return the last RateLimitedError as terminal.
//
// Non-RateLimited errors (AuthFailed, NotFound, APIError) are returned
// immediately without retry, per the propagation policy in spec §7.
func RunWithRetry(ctx context.Context, cfg RetryConfig, sleep Sleeper, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.ExtendVisibilityThreshold <= 0 {
		cfg.ExtendVisibilityThreshold = 30 * time.Second
	}
	if sleep == nil {
		sleep = RealSleeper
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		rl, ok := cerrors.AsRateLimited(err)
		if !ok {
			// Non-retryable taxonomy member: AuthFailed, NotFound,
			// APIError. Propagate untouched.
			return err
		}
		lastErr = err

		delay := rl.RetryAfter
		if delay <= 0 {
			delay = cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
		}

		if delay > cfg.ExtendVisibilityThreshold {
			return &cerrors.ExtendVisibilityError{Seconds: int(delay.Seconds()) + 5}
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

// ClassifyTimeout maps a connection/read timeout into the same
// RateLimited-like retry path described in spec §4.3's timeout policy,
// with a retry_after in the 10-35s band.
func ClassifyTimeout(endpoint string, retryAfter time.Duration) *cerrors.RateLimitedError {
	if retryAfter <= 0 {
		retryAfter = 15 * time.Second
	}
	return &cerrors.RateLimitedError{Endpoint: endpoint, RetryAfter: retryAfter}
}

// LinearRateLimitWait derives an accurate wait from Linear's leaky-bucket
// headers per spec §4.3's Linear-specific augmentation:
// tokens_to_wait / (limit/duration), bounded to [1, 300]s.
func LinearRateLimitWait(tokensRemaining, tokensRequired, limit int, duration time.Duration) time.Duration {
	if limit <= 0 || duration <= 0 {
		return time.Second
	}
	tokensToWait := tokensRequired - tokensRemaining
	if tokensToWait <= 0 {
		return time.Second
	}
	refillRate := float64(limit) / duration.Seconds()
	if refillRate <= 0 {
		return 300 * time.Second
	}
	wait := time.Duration(float64(tokensToWait)/refillRate*float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}
	if wait > 300*time.Second {
		wait = 300 * time.Second
	}
	return wait
}
