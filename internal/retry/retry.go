package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"ytsubs/internal/config"
	"ytsubs/internal/logging"
)

// Policy controls the backoff loop in Do.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Sleep suspends the caller for d. Nil uses a context-aware timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// DefaultPolicy retries three times with 1s, 2s, 4s delays capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
}

// FromConfig builds a policy from the [retry] configuration section.
func FromConfig(cfg config.Retry, logger *slog.Logger) Policy {
	return Policy{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		BackoffFactor: cfg.BackoffFactor,
		Logger:        logger,
	}
}

// Delay returns the wait before retry number attempt (1-indexed):
// min(base * factor^(attempt-1), max).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	wait := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && wait > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if wait > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(wait)
}

// Do invokes op once, then retries retryable failures until MaxRetries
// retries have been spent. Non-retryable failures return immediately without
// delay. attempt is 0 for the first invocation.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := logging.WithContext(ctx, p.Logger)

	attempt := 0
	for {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		attempt++
		if attempt > p.MaxRetries {
			return zero, err
		}

		delay := p.Delay(attempt)
		logging.WarnWithContext(logger, "retry scheduled", "retry_scheduled",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_retries", p.MaxRetries),
			logging.Duration("delay", delay),
			logging.String("class", ClassOf(err).String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient failure, waiting before the next attempt"),
		)
		if serr := sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry wait interrupted: %w (last error: %v)", serr, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
