// Package retry runs idempotent operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // upper bound of any single delay
	Multiplier float64       // growth factor between delays
	Jitter     bool          // spread delays by up to ±10%
}

// DefaultConfig returns a retry configuration for remote status reads.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Result describes a finished retry sequence.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	Err           error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes op until it succeeds, returns a permanent error, the context
// ends or the retry budget is spent. The returned error is the last one seen,
// with any Permanent wrapper removed.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	var result Result

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := op(ctx)
		if err == nil {
			result.Err = nil
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				logger.Debug("operation succeeded after retries",
					"retries", attempt, "duration", result.TotalDuration)
			}
			return result
		}

		var p *permanentError
		if errors.As(err, &p) {
			result.Err = p.err
			result.TotalDuration = time.Since(start)
			return result
		}
		result.Err = err

		if attempt >= cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			break
		}

		delay := calculateDelay(cfg, attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Err = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// calculateDelay returns baseDelay * multiplier^attempt, capped at MaxDelay.
func calculateDelay(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(mult, float64(attempt))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}
