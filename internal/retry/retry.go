package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/apex/log"

	"mts/internal/errors"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultConfig returns retry defaults for search backend calls
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// QuickConfig returns faster retry settings for interactive operations
func QuickConfig() *Config {
	return &Config{
		MaxAttempts: 2,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// backoff returns the delay before the attempt following attempt.
func (c *Config) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// delayFor returns the wait after a failed attempt. An AppError's retry hint
// is a floor on the backoff; the result never exceeds MaxDelay.
func (c *Config) delayFor(attempt int, err error) time.Duration {
	delay := c.backoff(attempt)
	if appErr, ok := err.(*errors.AppError); ok {
		delay = max(delay, appErr.GetRetryAfter())
	}
	return min(delay, c.MaxDelay)
}

// WithRetry executes fn with exponential backoff. Non-retryable AppErrors stop
// the loop immediately.
func WithRetry(ctx context.Context, config *Config, operation string, fn func() error) error {
	if config == nil {
		config = DefaultConfig()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if appErr, ok := err.(*errors.AppError); ok && !appErr.IsRetryable() {
			return appErr
		}
		delay := config.delayFor(attempt, err)

		if attempt >= config.MaxAttempts {
			break
		}

		log.WithFields(log.Fields{
			"op":      operation,
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Debug("retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if appErr, ok := lastErr.(*errors.AppError); ok {
		appErr.Message = fmt.Sprintf("%s (failed after %d attempts)", appErr.Message, config.MaxAttempts)
		return appErr
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}
