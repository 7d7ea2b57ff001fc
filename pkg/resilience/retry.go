package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig bounds a retried operation. The delay doubles after every
// failed attempt, capped at MaxDelay, with full jitter so synchronized
// retries spread out.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	return cfg
}

// Retry runs op up to cfg.MaxAttempts times, sleeping a jittered doubling
// delay between failures. Cancelling ctx aborts the wait; the context is not
// consulted mid-call, op is expected to honor it.
func Retry(ctx context.Context, name string, cfg RetryConfig, op func() error) error {
	cfg = cfg.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			if attempt > 1 {
				log.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: %d attempts exhausted: %w", name, cfg.MaxAttempts, err)
		}

		wait := time.Duration(rand.Int63n(int64(delay) + 1))
		log.Warn("attempt failed",
			"attempt", attempt,
			"of", cfg.MaxAttempts,
			"backoff", wait,
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: abandoned during backoff: %w", name, ctx.Err())
		case <-timer.C:
		}

		if delay *= 2; delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
