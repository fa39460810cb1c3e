// Package retry provides bounded retry with exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Config controls retry behavior.
type Config struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	BaseDelay   time.Duration // delay before the second attempt (default: 1s)
	MaxDelay    time.Duration // backoff ceiling (default: 30s)
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do executes fn with exponential backoff, stopping on success or when the
// context is canceled. The last error is returned after the final attempt.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * cfg.BaseDelay
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		slog.Debug("request failed, retrying",
			"attempt", attempt+1,
			"wait_time", wait,
			"error", lastErr)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
